package monitor

import (
	"time"
)

const (
	// avgWindow is how many of the most recent runs feed the rolling
	// average duration card.
	avgWindow = 4

	// seriesWindow is how many of the most recent runs feed the
	// performance chart.
	seriesWindow = 20
)

// TodayStats counts the current local calendar day's runs.
type TodayStats struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Error int `json:"error"`
}

// SeriesPoint is one chart sample. VisualSeconds is zeroed for failed runs
// so they never inflate the duration chart; DurationSeconds keeps the true
// value queryable.
type SeriesPoint struct {
	TimeLabel       string  `json:"time_label"`
	DurationSeconds float64 `json:"duration_seconds"`
	VisualSeconds   float64 `json:"visual_seconds"`
	Status          string  `json:"status"`
}

// SuccessRatio counts display statuses over the whole filtered set.
type SuccessRatio struct {
	OK    int `json:"ok"`
	Error int `json:"error"`
}

// Summary is the full derived view for one filter context.
type Summary struct {
	Filter          string         `json:"filter"`
	FilterValue     string         `json:"filter_value,omitempty"`
	Today           TodayStats     `json:"today"`
	AvgDurationLast float64        `json:"avg_duration_ms_last4"`
	TimeSeries      []SeriesPoint  `json:"time_series"`
	ByFlowCounts    map[string]int `json:"by_flow_counts"`
	SuccessRatio    SuccessRatio   `json:"success_ratio"`
	Filtered        []Run          `json:"-"`

	// LiveRun points at the newest RUNNING record among the filtered
	// runs, regardless of what its flow did afterwards. Best effort only.
	LiveRun *Run `json:"live_run,omitempty"`
}

// Aggregate computes the derived dashboard view over a snapshot of runs.
// Runs are expected in CreatedAt-descending order, the order the store
// returns them in. The function is pure: it never mutates its input and
// tolerates malformed records (missing system, negative duration, unknown
// status) without failing the whole pass.
func Aggregate(runs []Run, fc FilterContext, now time.Time) Summary {
	filtered := fc.Apply(runs)

	summary := Summary{
		Filter:       fc.Kind.String(),
		FilterValue:  fc.Value,
		TimeSeries:   []SeriesPoint{},
		ByFlowCounts: make(map[string]int, 8),
		Filtered:     filtered,
	}

	loc := now.Location()
	today := localDay(now, loc)

	recent := 0

	var recentDuration int64

	for _, run := range filtered {
		summary.ByFlowCounts[run.SystemName()]++

		if run.Status == StatusRunning {
			// RUNNING records are excluded from historical stats but
			// the newest one drives the live-progress indicator.
			if summary.LiveRun == nil {
				live := run
				summary.LiveRun = &live
			}

			if localDay(run.CreatedAt, loc) == today {
				summary.Today.Total++
			}

			continue
		}

		display := run.DisplayStatus()

		if localDay(run.CreatedAt, loc) == today {
			summary.Today.Total++

			switch display {
			case StatusOK:
				summary.Today.OK++
			case StatusError:
				summary.Today.Error++
			}
		}

		switch display {
		case StatusOK:
			summary.SuccessRatio.OK++
		case StatusError:
			summary.SuccessRatio.Error++
		}

		if recent < avgWindow {
			recentDuration += run.ClampedDuration()
			recent++
		}
	}

	if recent > 0 {
		summary.AvgDurationLast = float64(recentDuration) / float64(recent)
	}

	summary.TimeSeries = buildSeries(filtered, now)

	return summary
}

// buildSeries maps the most recent runs to chart points, oldest first.
func buildSeries(filtered []Run, now time.Time) []SeriesPoint {
	n := len(filtered)
	if n > seriesWindow {
		n = seriesWindow
	}

	points := make([]SeriesPoint, 0, n)

	// filtered is newest-first; walk backwards for oldest-first output.
	for i := n - 1; i >= 0; i-- {
		run := filtered[i]

		seconds := round2(float64(run.ClampedDuration()) / 1000.0)

		visual := seconds
		if run.DisplayStatus() == StatusError {
			visual = 0
		}

		points = append(points, SeriesPoint{
			TimeLabel:       run.CreatedAt.In(now.Location()).Format("15:04"),
			DurationSeconds: seconds,
			VisualSeconds:   visual,
			Status:          run.Status,
		})
	}

	return points
}

// localDay returns the calendar day of t in the given location. Day
// boundaries must use the local date, not UTC midnight, to match the
// dashboard client at the edges of the day.
func localDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
