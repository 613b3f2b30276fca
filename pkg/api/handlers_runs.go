package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/api/feed"
	"github.com/ethpandaops/monitoroor/pkg/api/store"
	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/ethpandaops/monitoroor/pkg/report"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// runResponse decorates a stored run with the derived fields the
// dashboard renders.
type runResponse struct {
	monitor.Run

	DisplayStatus string `json:"display_status"`
	FailedStep    string `json:"failed_step,omitempty"`
}

func toRunResponse(run *monitor.Run) runResponse {
	resp := runResponse{
		Run:           *run,
		DisplayStatus: run.DisplayStatus(),
	}

	if step, ok := monitor.ExtractFailedStep(run.Message); ok {
		resp.FailedStep = step
	}

	return resp
}

// --- Run ingestion ---

type createRunRequest struct {
	System     string `json:"system"`
	Project    string `json:"project,omitempty"`
	Client     string `json:"client,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`

	// CreatedAt lets late-delivering recorders backfill the real
	// execution time. RFC3339; defaults to now.
	CreatedAt *string `json:"created_at,omitempty"`
}

// handleCreateRun records one run outcome from a test runner.
func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	switch req.Status {
	case monitor.StatusOK, monitor.StatusError, monitor.StatusRunning:
	default:
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"status must be OK, ERROR, or RUNNING"})

		return
	}

	if req.DurationMS < 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"duration_ms must not be negative"})

		return
	}

	run := &monitor.Run{
		System:     req.System,
		Project:    req.Project,
		Client:     req.Client,
		Channel:    req.Channel,
		Status:     req.Status,
		DurationMS: req.DurationMS,
		Message:    req.Message,
	}

	if req.CreatedAt != nil && *req.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, *req.CreatedAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid created_at format, use RFC3339"})

			return
		}

		run.CreatedAt = t.UTC()
	}

	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.log.WithError(err).Error("Failed to create run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	s.metrics.RunsRecorded.WithLabelValues(run.Status).Inc()

	if err := s.feed.Publish(r.Context(), feed.Event{
		Kind:  feed.KindInsert,
		Table: "runs",
		RunID: run.ID,
	}); err != nil {
		s.log.WithError(err).Warn("Failed to publish run insert event")
	}

	writeJSON(w, http.StatusCreated, toRunResponse(run))
}

// --- Run reads ---

// handleListRuns returns recent runs, newest first, optionally narrowed
// by filter/value query parameters.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid limit"})

			return
		}

		if n > maxListLimit {
			n = maxListLimit
		}

		limit = n
	}

	fc := s.filterFromQuery(r)

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	filtered := fc.Apply(runs)

	resp := make([]runResponse, 0, len(filtered))
	for i := range filtered {
		resp = append(resp, toRunResponse(&filtered[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetRun returns a single run by ID.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	run, err := s.store.GetRunByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"run not found"})

			return
		}

		s.log.WithError(err).Error("Failed to get run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// --- Aggregates ---

type statsResponse struct {
	monitor.Summary

	FetchedAt string `json:"fetched_at"`
	Stale     bool   `json:"stale"`
}

// handleStats serves the aggregated dashboard view for one filter
// context, computed over the current snapshot.
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.refresher.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{"snapshot not ready"})

		return
	}

	fc := s.filterFromQuery(r)
	summary := monitor.Aggregate(snap.Runs, fc, time.Now())

	writeJSON(w, http.StatusOK, statsResponse{
		Summary:   summary,
		FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339),
		Stale:     s.refresher.IsStale(snap),
	})
}

type statusResponse struct {
	monitor.HealthReport

	Loading   bool   `json:"loading"`
	Stale     bool   `json:"stale"`
	FetchedAt string `json:"fetched_at,omitempty"`
	TotalRuns int64  `json:"total_runs"`
}

// handleStatus serves the operational status page. Before the first
// snapshot lands, every check reads LOADING rather than guessing.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.refresher.Current()
	if snap == nil {
		writeJSON(w, http.StatusOK, statusResponse{
			HealthReport: loadingReport(s.health),
			Loading:      true,
			Stale:        true,
		})

		return
	}

	stale := s.refresher.IsStale(snap)
	if stale {
		s.metrics.SnapshotStale.Set(1)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		HealthReport: snap.Health,
		Stale:        stale,
		FetchedAt:    snap.FetchedAt.UTC().Format(time.RFC3339),
		TotalRuns:    snap.TotalRuns,
	})
}

// loadingReport mirrors the configured sections with LOADING statuses.
func loadingReport(sections []monitor.HealthSection) monitor.HealthReport {
	report := monitor.HealthReport{
		Status:   monitor.HealthLoading,
		Sections: make([]monitor.SectionResult, 0, len(sections)),
	}

	for _, section := range sections {
		sr := monitor.SectionResult{
			Title:  section.Title,
			Status: monitor.HealthLoading,
			Checks: make([]monitor.CheckResult, 0, len(section.Checks)),
		}

		for _, check := range section.Checks {
			sr.Checks = append(sr.Checks, monitor.CheckResult{
				Label:  check.Label,
				Status: monitor.HealthLoading,
			})
		}

		report.Sections = append(report.Sections, sr)
	}

	return report
}

// filterFromQuery builds a filter context from type/value query
// parameters. Unknown filter types fall back to global, with a warning
// so a misbehaving client is visible in the logs.
func (s *server) filterFromQuery(r *http.Request) monitor.FilterContext {
	rawKind := r.URL.Query().Get("type")

	kind, known := monitor.ParseFilterKind(rawKind)
	if !known {
		s.log.WithField("filter", rawKind).
			Warn("Unknown filter type, falling back to global")
	}

	fc := monitor.FilterContext{Kind: kind}
	if kind != monitor.FilterGlobal {
		fc.Value = r.URL.Query().Get("value")
	}

	return fc
}

// --- Corrections ---

type correctionRequest struct {
	Comment string `json:"comment"`
}

// handleApplyCorrection marks a failed run as corrected.
func (s *server) handleApplyCorrection(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	run, err := s.store.ApplyCorrection(r.Context(), id, req.Comment)
	if err != nil {
		s.writeCorrectionError(w, err)

		return
	}

	s.metrics.CorrectionsApplied.Inc()

	if err := s.feed.Publish(r.Context(), feed.Event{
		Kind:  feed.KindUpdate,
		Table: "runs",
		RunID: run.ID,
	}); err != nil {
		s.log.WithError(err).Warn("Failed to publish correction event")
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

func (s *server) writeCorrectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrCommentTooShort),
		errors.Is(err, store.ErrNotCorrectable):
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{err.Error()})
	case errors.Is(err, store.ErrRunNotFound):
		writeJSON(w, http.StatusNotFound,
			errorResponse{"run not found"})
	case errors.Is(err, store.ErrCorrectionInFlight):
		writeJSON(w, http.StatusConflict,
			errorResponse{err.Error()})
	case errors.Is(err, store.ErrPersistence):
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"persistence failure"})
	default:
		s.log.WithError(err).Error("Failed to apply correction")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})
	}
}

// --- Reports ---

// buildDailyReport renders the CSV report for the local calendar day in
// the optional date query parameter, defaulting to today.
func (s *server) buildDailyReport(
	r *http.Request,
) (name string, data []byte, status int, errMsg string) {
	loc := time.Local

	day := time.Now().In(loc)

	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return "", nil, http.StatusBadRequest,
				"invalid date format, use 2006-01-02"
		}

		day = parsed
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.Add(24 * time.Hour)

	runs, err := s.store.ListRunsBetween(r.Context(), from, to)
	if err != nil {
		s.log.WithError(err).Error("Failed to load report runs")

		return "", nil, http.StatusInternalServerError, "internal error"
	}

	data, err = report.WriteCSV(runs, loc)
	if err != nil {
		s.log.WithError(err).Error("Failed to render report")

		return "", nil, http.StatusInternalServerError, "internal error"
	}

	return report.Filename(day, loc), data, http.StatusOK, ""
}

// handleDailyReport streams the CSV report for one local calendar day.
func (s *server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	name, data, status, errMsg := s.buildDailyReport(r)
	if status != http.StatusOK {
		writeJSON(w, status, errorResponse{errMsg})

		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.log.WithError(err).Debug("Failed to write report body")
	}
}

// handleArchiveReport renders a daily report and persists it to the
// configured archive storage.
func (s *server) handleArchiveReport(
	w http.ResponseWriter, r *http.Request,
) {
	if s.archiver == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"report archival is not configured"})

		return
	}

	name, data, status, errMsg := s.buildDailyReport(r)
	if status != http.StatusOK {
		writeJSON(w, status, errorResponse{errMsg})

		return
	}

	if err := s.archiver.Archive(r.Context(), name, data); err != nil {
		s.log.WithError(err).Error("Failed to archive report")
		writeJSON(w, http.StatusBadGateway,
			errorResponse{"archiving report failed"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"name":   name,
	})
}
