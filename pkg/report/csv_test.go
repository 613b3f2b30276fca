package report

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	runs := []monitor.Run{
		{
			ID:               2,
			CreatedAt:        time.Date(2026, 8, 30, 18, 30, 0, 0, time.UTC),
			Client:           "Atomic",
			System:           "Consulta Prueba",
			Status:           monitor.StatusError,
			DurationMS:       12345,
			Message:          "FALLO EN: [Login]",
			CorrectionStatus: monitor.CorrectionCorrected,
			CorrectionComment: "reinicio del servicio de login " +
				"tras despliegue",
		},
		{
			ID:               1,
			CreatedAt:        time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
			System:           "",
			Status:           monitor.StatusOK,
			DurationMS:       -50,
			CorrectionStatus: monitor.CorrectionPending,
		},
	}

	data, err := WriteCSV(runs, loc)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{
		"ID", "Fecha", "Cliente", "Flujo", "Estado", "Duración",
		"Mensaje", "Estado Corrección", "Comentario Corrección",
	}, records[0])

	// UTC 18:30 is 13:30 in Bogota.
	first := records[1]
	assert.Equal(t, "2", first[0])
	assert.Equal(t, "2026-08-30 13:30:00", first[1])
	assert.Equal(t, "Atomic", first[2])
	assert.Equal(t, "Consulta Prueba", first[3])
	assert.Equal(t, "ERROR", first[4])
	assert.Equal(t, "12.35", first[5])
	assert.Equal(t, "CORREGIDO", first[7])

	second := records[2]
	assert.Equal(t, "N/A", second[2])
	assert.Equal(t, monitor.UnknownSystem, second[3])
	assert.Equal(t, "0.00", second[5])
	assert.Equal(t, "N/A", second[6])
	assert.Equal(t, "N/A", second[8])
}

func TestWriteCSV_Empty(t *testing.T) {
	data, err := WriteCSV(nil, time.UTC)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFilename(t *testing.T) {
	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	// UTC 2026-08-31 03:00 is still 2026-08-30 in Bogota.
	day := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "reporte-monitoreo-2026-08-30.csv", Filename(day, loc))
}
