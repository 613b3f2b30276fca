package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFailedStep(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
		found    bool
	}{
		{
			name:     "detenido marker",
			message:  "AssertionError - DETENIDO EN: [Validar OTP] elemento no visible",
			expected: "Validar OTP",
			found:    true,
		},
		{
			name:     "fallo marker",
			message:  "TimeoutError - FALLO EN: [Abrir chat] timed out after 30000ms",
			expected: "Abrir chat",
			found:    true,
		},
		{
			name:    "no marker",
			message: "Flujo completado exitosamente en 42s",
			found:   false,
		},
		{
			name:    "empty message",
			message: "",
			found:   false,
		},
		{
			name:    "empty brackets",
			message: "FALLO EN: [] sin paso",
			found:   false,
		},
		{
			name:     "first marker wins",
			message:  "DETENIDO EN: [Paso Uno] y luego FALLO EN: [Paso Dos]",
			expected: "Paso Uno",
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, ok := ExtractFailedStep(tt.message)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, step)
		})
	}
}
