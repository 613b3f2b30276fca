package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustLoc loads a fixed-offset zone so day-boundary behavior is
// deterministic regardless of the test host's timezone.
func mustLoc(t *testing.T) *time.Location {
	t.Helper()

	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	return loc
}

func TestAggregate_TodayWindow(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	runs := []Run{
		// 00:01 local on the 16th: inside today.
		{ID: 2, System: "Consulta Prueba", Status: StatusOK,
			CreatedAt: time.Date(2024, 1, 16, 0, 1, 0, 0, loc)},
		// 23:59 local on the 15th: outside today.
		{ID: 1, System: "Consulta Prueba", Status: StatusOK,
			CreatedAt: time.Date(2024, 1, 15, 23, 59, 0, 0, loc)},
	}

	summary := Aggregate(runs, FilterContext{}, now)

	assert.Equal(t, 1, summary.Today.Total)
	assert.Equal(t, 1, summary.Today.OK)
	assert.Equal(t, 0, summary.Today.Error)
}

func TestAggregate_TodayWindowCrossesUTCMidnight(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 20, 30, 0, 0, loc)

	// 01:00 UTC on the 17th is still the 16th in Bogotá (UTC-5).
	utcRun := Run{
		ID: 1, System: "Consulta Prueba", Status: StatusOK,
		CreatedAt: time.Date(2024, 1, 17, 1, 0, 0, 0, time.UTC),
	}

	summary := Aggregate([]Run{utcRun}, FilterContext{}, now)
	assert.Equal(t, 1, summary.Today.Total)
}

func TestAggregate_RollingAverage(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	newRun := func(id uint, duration int64) Run {
		return Run{
			ID: id, System: "Consulta Prueba", Status: StatusOK,
			DurationMS: duration,
			CreatedAt:  now.Add(-time.Duration(id) * time.Minute),
		}
	}

	tests := []struct {
		name     string
		runs     []Run
		expected float64
	}{
		{
			name:     "no runs yields zero",
			runs:     nil,
			expected: 0,
		},
		{
			name:     "fewer than four averages what exists",
			runs:     []Run{newRun(1, 1000), newRun(2, 3000)},
			expected: 2000,
		},
		{
			name: "only the four most recent count",
			runs: []Run{
				newRun(1, 1000), newRun(2, 1000),
				newRun(3, 1000), newRun(4, 1000),
				newRun(5, 500000),
			},
			expected: 1000,
		},
		{
			name:     "negative duration clamps to zero",
			runs:     []Run{newRun(1, -4000), newRun(2, 2000)},
			expected: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := Aggregate(tt.runs, FilterContext{}, now)
			assert.InDelta(t, tt.expected, summary.AvgDurationLast, 0.001)
		})
	}
}

func TestAggregate_FilterFallbackMatchesGlobal(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	runs := []Run{
		{ID: 3, System: "A", Client: "x", Status: StatusOK, CreatedAt: now},
		{ID: 2, System: "B", Client: "y", Status: StatusError, CreatedAt: now},
		{ID: 1, System: "C", Client: "z", Status: StatusOK, CreatedAt: now},
	}

	bogus, known := ParseFilterKind("bogus")
	assert.False(t, known)

	global, known := ParseFilterKind("global")
	assert.True(t, known)

	fromBogus := Aggregate(runs, FilterContext{Kind: bogus, Value: "x"}, now)
	fromGlobal := Aggregate(runs, FilterContext{Kind: global, Value: "Dashboard"}, now)

	assert.Equal(t, fromGlobal.Filtered, fromBogus.Filtered)
	assert.Equal(t, fromGlobal.Today, fromBogus.Today)
	assert.Equal(t, fromGlobal.SuccessRatio, fromBogus.SuccessRatio)
}

func TestAggregate_FilterNarrowsByField(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	runs := []Run{
		{ID: 4, System: "Flujo A", Project: "parly", Client: "fibot", Channel: "web", Status: StatusOK, CreatedAt: now},
		{ID: 3, System: "Flujo B", Project: "parly", Client: "otros", Channel: "wa", Status: StatusOK, CreatedAt: now},
		{ID: 2, System: "Flujo A", Project: "atomic", Client: "fibot", Channel: "web", Status: StatusError, CreatedAt: now},
	}

	tests := []struct {
		kind     string
		value    string
		expected int
	}{
		{"project", "parly", 2},
		{"client", "fibot", 2},
		{"canal", "web", 2},
		{"flow", "Flujo A", 2},
		{"flow", "Flujo C", 0},
		{"global", "", 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s=%s", tt.kind, tt.value), func(t *testing.T) {
			kind, _ := ParseFilterKind(tt.kind)
			summary := Aggregate(runs, FilterContext{Kind: kind, Value: tt.value}, now)
			assert.Len(t, summary.Filtered, tt.expected)
		})
	}
}

func TestAggregate_TimeSeries(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 12, 0, 0, 0, loc)

	// Newest first, as the store returns them.
	runs := []Run{
		{ID: 3, System: "A", Status: StatusError, DurationMS: 4500,
			CreatedAt: now.Add(-1 * time.Minute)},
		{ID: 2, System: "A", Status: StatusOK, DurationMS: 2500,
			CreatedAt: now.Add(-2 * time.Minute)},
		{ID: 1, System: "A", Status: StatusError, DurationMS: 3000,
			CorrectionStatus: CorrectionCorrected,
			CreatedAt:        now.Add(-3 * time.Minute)},
	}

	summary := Aggregate(runs, FilterContext{}, now)
	require.Len(t, summary.TimeSeries, 3)

	// Oldest first.
	assert.Equal(t, "11:57", summary.TimeSeries[0].TimeLabel)
	assert.Equal(t, "11:59", summary.TimeSeries[2].TimeLabel)

	// Corrected failure charts with its real height.
	assert.Equal(t, 3.0, summary.TimeSeries[0].VisualSeconds)

	// Uncorrected failure charts at zero but keeps its true duration.
	last := summary.TimeSeries[2]
	assert.Equal(t, 0.0, last.VisualSeconds)
	assert.Equal(t, 4.5, last.DurationSeconds)
	assert.Equal(t, StatusError, last.Status)
}

func TestAggregate_TimeSeriesWindow(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 12, 0, 0, 0, loc)

	runs := make([]Run, 0, 30)
	for i := 0; i < 30; i++ {
		runs = append(runs, Run{
			ID: uint(30 - i), System: "A", Status: StatusOK, DurationMS: 1000,
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}

	summary := Aggregate(runs, FilterContext{}, now)
	require.Len(t, summary.TimeSeries, 20)
}

func TestAggregate_SuccessRatioUsesDisplayStatus(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	runs := []Run{
		{ID: 3, System: "A", Status: StatusOK, CreatedAt: now},
		{ID: 2, System: "A", Status: StatusError, CreatedAt: now},
		{ID: 1, System: "A", Status: StatusError,
			CorrectionStatus: CorrectionCorrected, CreatedAt: now},
	}

	summary := Aggregate(runs, FilterContext{}, now)

	assert.Equal(t, 2, summary.SuccessRatio.OK)
	assert.Equal(t, 1, summary.SuccessRatio.Error)
}

func TestAggregate_RunningExcludedFromStats(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	runs := []Run{
		{ID: 2, System: "A", Status: StatusRunning, CreatedAt: now},
		{ID: 1, System: "A", Status: StatusOK, DurationMS: 2000,
			CreatedAt: now.Add(-time.Minute)},
	}

	summary := Aggregate(runs, FilterContext{}, now)

	assert.Equal(t, 1, summary.SuccessRatio.OK)
	assert.Equal(t, 0, summary.SuccessRatio.Error)
	assert.InDelta(t, 2000, summary.AvgDurationLast, 0.001)

	// But it still counts towards today's totals and the live indicator.
	assert.Equal(t, 2, summary.Today.Total)
	require.NotNil(t, summary.LiveRun)
	assert.Equal(t, uint(2), summary.LiveRun.ID)
}

func TestAggregate_ByFlowCounts(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	runs := []Run{
		{ID: 4, System: "Solicitud Crédito", Status: StatusOK, CreatedAt: now},
		{ID: 3, System: "Solicitud Crédito", Status: StatusError, CreatedAt: now},
		{ID: 2, System: "Clave Registro", Status: StatusOK, CreatedAt: now},
		{ID: 1, Status: StatusOK, CreatedAt: now},
	}

	summary := Aggregate(runs, FilterContext{}, now)

	assert.Equal(t, 2, summary.ByFlowCounts["Solicitud Crédito"])
	assert.Equal(t, 1, summary.ByFlowCounts["Clave Registro"])
	assert.Equal(t, 1, summary.ByFlowCounts[UnknownSystem])
}

func TestAggregate_EmptyInput(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, loc)

	summary := Aggregate(nil, FilterContext{Kind: FilterFlow, Value: "nada"}, now)

	assert.Equal(t, TodayStats{}, summary.Today)
	assert.Equal(t, SuccessRatio{}, summary.SuccessRatio)
	assert.Equal(t, 0.0, summary.AvgDurationLast)
	assert.Empty(t, summary.TimeSeries)
	assert.Empty(t, summary.ByFlowCounts)
	assert.Nil(t, summary.LiveRun)
}
