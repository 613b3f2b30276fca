package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/spf13/cobra"
)

var recordFlags struct {
	server     string
	apiKey     string
	system     string
	project    string
	client     string
	channel    string
	status     string
	durationMS int64
	message    string
	timeout    time.Duration
	strict     bool
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a run outcome",
	Long: `Record one test-run outcome against a running monitoroor API server.
Intended to be called from CI runners after a flow finishes.`,
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()

	f.StringVar(&recordFlags.server, "server", "http://localhost:8090",
		"monitoroor API base URL")
	f.StringVar(&recordFlags.apiKey, "api-key", "",
		"API key for authentication")
	f.StringVar(&recordFlags.system, "system", "", "flow name")
	f.StringVar(&recordFlags.project, "project", "", "project name")
	f.StringVar(&recordFlags.client, "client", "", "client name")
	f.StringVar(&recordFlags.channel, "channel", "", "channel name")
	f.StringVar(&recordFlags.status, "status", "",
		"run status (OK, ERROR, RUNNING)")
	f.Int64Var(&recordFlags.durationMS, "duration-ms", 0,
		"run duration in milliseconds")
	f.StringVar(&recordFlags.message, "message", "", "run message")
	f.DurationVar(&recordFlags.timeout, "timeout", 15*time.Second,
		"request timeout")
	f.BoolVar(&recordFlags.strict, "fail-on-error", true,
		"exit non-zero after recording an ERROR outcome")

	rootCmd.AddCommand(recordCmd)
}

type recordPayload struct {
	System     string `json:"system"`
	Project    string `json:"project,omitempty"`
	Client     string `json:"client,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordFlags.system == "" {
		return fmt.Errorf("--system is required")
	}

	switch recordFlags.status {
	case monitor.StatusOK, monitor.StatusError, monitor.StatusRunning:
	default:
		return fmt.Errorf("--status must be OK, ERROR, or RUNNING")
	}

	if recordFlags.apiKey == "" {
		return fmt.Errorf("--api-key is required")
	}

	body, err := json.Marshal(recordPayload{
		System:     recordFlags.system,
		Project:    recordFlags.project,
		Client:     recordFlags.client,
		Channel:    recordFlags.channel,
		Status:     recordFlags.status,
		DurationMS: recordFlags.durationMS,
		Message:    recordFlags.message,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), recordFlags.timeout,
	)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		recordFlags.server+"/api/v1/runs",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+recordFlags.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf(
			"recording run: server returned %d: %s",
			resp.StatusCode, bytes.TrimSpace(data),
		)
	}

	log.WithField("system", recordFlags.system).
		WithField("status", recordFlags.status).
		Info("Run recorded")

	if recordFlags.strict && recordFlags.status == monitor.StatusError {
		return fmt.Errorf("run finished with status ERROR")
	}

	return nil
}
