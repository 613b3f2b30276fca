package api

import (
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	plaintext, hash, prefix, err := generateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, apiKeyPrefix))
	assert.True(t, strings.HasPrefix(plaintext, prefix))
	assert.Equal(t, hashAPIKey(plaintext), hash)
	assert.NotEqual(t, plaintext, hash)

	// Keys must be unique across calls.
	other, _, _, err := generateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, other)
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := generateSessionToken()
	require.NoError(t, err)

	b, err := generateSessionToken()
	require.NoError(t, err)

	assert.Len(t, a, sessionTokenBytes*2)
	assert.NotEqual(t, a, b)
}

func TestSessionTTL(t *testing.T) {
	defaultTTL, err := time.ParseDuration(config.DefaultSessionTTL)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "configured", value: "12h", want: 12 * time.Hour},
		{name: "empty falls back", value: "", want: defaultTTL},
		{name: "unparseable falls back", value: "pronto", want: defaultTTL},
		{name: "zero falls back", value: "0s", want: defaultTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &server{cfg: &config.APIConfig{}}
			s.cfg.Auth.SessionTTL = tt.value

			assert.Equal(t, tt.want, s.sessionTTL())
		})
	}
}

func TestLoadingReport(t *testing.T) {
	report := loadingReport([]monitor.HealthSection{{
		Title: "1. Core",
		Checks: []monitor.HealthCheck{
			{Label: "A", Dependencies: []string{"x"}},
			{Label: "B", Dependencies: []string{"y"}},
		},
	}})

	assert.Equal(t, monitor.HealthLoading, report.Status)
	require.Len(t, report.Sections, 1)
	require.Len(t, report.Sections[0].Checks, 2)

	for _, check := range report.Sections[0].Checks {
		assert.Equal(t, monitor.HealthLoading, check.Status)
	}
}
