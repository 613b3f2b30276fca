// Package report renders daily run reports as CSV and archives them to
// S3-compatible storage.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/monitor"
)

// csvHeader is the column layout consumed by the operations team's
// existing spreadsheets; the order is load-bearing.
var csvHeader = []string{
	"ID",
	"Fecha",
	"Cliente",
	"Flujo",
	"Estado",
	"Duración",
	"Mensaje",
	"Estado Corrección",
	"Comentario Corrección",
}

const naValue = "N/A"

// WriteCSV renders the runs as a daily report. Timestamps are formatted
// in loc, durations in seconds with two decimals, and empty optional
// fields as N/A.
func WriteCSV(runs []monitor.Run, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}

	for i := range runs {
		if err := w.Write(csvRow(&runs[i], loc)); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}

	return buf.Bytes(), nil
}

func csvRow(run *monitor.Run, loc *time.Location) []string {
	seconds := float64(run.ClampedDuration()) / 1000

	return []string{
		strconv.FormatUint(uint64(run.ID), 10),
		run.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
		orNA(run.Client),
		run.SystemName(),
		run.Status,
		strconv.FormatFloat(seconds, 'f', 2, 64),
		orNA(run.Message),
		run.CorrectionStatus,
		orNA(run.CorrectionComment),
	}
}

func orNA(s string) string {
	if s == "" {
		return naValue
	}

	return s
}

// Filename returns the canonical report name for a day.
func Filename(day time.Time, loc *time.Location) string {
	return fmt.Sprintf(
		"reporte-monitoreo-%s.csv", day.In(loc).Format("2006-01-02"),
	)
}
