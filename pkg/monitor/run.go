// Package monitor contains the core status model for QA flow monitoring:
// run records, correction overlays, filtered aggregation, and the
// dependency-based health evaluation that drives the status page.
package monitor

import (
	"time"
)

// Run statuses as recorded by the test runner.
const (
	StatusOK      = "OK"
	StatusError   = "ERROR"
	StatusRunning = "RUNNING"
)

// Correction overlay states. A failed run starts as PENDIENTE and is moved
// to CORREGIDO by an explicit operator action; there is no reverse path.
const (
	CorrectionPending   = "PENDIENTE"
	CorrectionCorrected = "CORREGIDO"
)

// UnknownSystem is the grouping bucket for records missing a system name.
const UnknownSystem = "Desconocido"

// Run is one completed (or in-flight) execution of a test flow. The
// observational fields are written once by the recorder; only the
// correction overlay fields change afterwards.
type Run struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// System is the flow name, the primary grouping key.
	System  string `gorm:"index;column:system" json:"system"`
	Project string `json:"project,omitempty"`
	Client  string `json:"client,omitempty"`
	Channel string `json:"channel,omitempty"`

	Status     string `gorm:"index" json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Message    string `gorm:"type:text" json:"message"`

	// Correction overlay, joined onto the record at read time.
	CorrectionStatus  string `gorm:"default:PENDIENTE" json:"correction_status"`
	CorrectionComment string `gorm:"type:text" json:"correction_comment,omitempty"`
}

// DisplayStatus returns the correction-aware status used by every
// dashboard-visible aggregate. A corrected failure reads as OK; anything
// else that is not a plain OK reads as ERROR.
func (r *Run) DisplayStatus() string {
	if r.Status == StatusOK {
		return StatusOK
	}

	if r.Status == StatusError && r.CorrectionStatus == CorrectionCorrected {
		return StatusOK
	}

	return StatusError
}

// IsTerminal reports whether the run has reached a final OK/ERROR outcome.
// RUNNING records only drive the live-progress indicator.
func (r *Run) IsTerminal() bool {
	return r.Status == StatusOK || r.Status == StatusError
}

// SystemName returns the run's system, falling back to the unknown bucket
// so a single malformed record never breaks grouping.
func (r *Run) SystemName() string {
	if r.System == "" {
		return UnknownSystem
	}

	return r.System
}

// ClampedDuration returns the duration with negative values clamped to 0.
func (r *Run) ClampedDuration() int64 {
	if r.DurationMS < 0 {
		return 0
	}

	return r.DurationMS
}

// LatestBySystem reduces a set of runs to the most recent run per system.
// Recency is CreatedAt first, then ID descending, so the most recently
// inserted record wins on timestamp ties.
func LatestBySystem(runs []Run) map[string]Run {
	latest := make(map[string]Run, 16)

	for _, run := range runs {
		name := run.SystemName()

		cur, ok := latest[name]
		if !ok || newerThan(run, cur) {
			latest[name] = run
		}
	}

	return latest
}

func newerThan(a, b Run) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}

	return a.ID > b.ID
}
