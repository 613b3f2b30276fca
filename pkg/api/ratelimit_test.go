package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.10:52110",
			want:       "192.0.2.10",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
		{
			name:       "forwarded single hop",
			remoteAddr: "10.0.0.1:80",
			forwarded:  "203.0.113.7",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded chain keeps first hop",
			remoteAddr: "10.0.0.1:80",
			forwarded:  "203.0.113.7, 10.0.0.2, 10.0.0.3",
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			r.RemoteAddr = tt.remoteAddr

			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}

func TestTierLimiters_PerClientBuckets(t *testing.T) {
	tl := newTierLimiters(2)

	// Each client gets its own bucket up to the burst size.
	assert.True(t, tl.get("192.0.2.1").Allow())
	assert.True(t, tl.get("192.0.2.1").Allow())
	assert.False(t, tl.get("192.0.2.1").Allow())

	assert.True(t, tl.get("192.0.2.2").Allow())
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	s := &server{cfg: &config.APIConfig{}}

	handler := s.rateLimitMiddleware(config.RateLimitTier{
		RequestsPerMinute: 1,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	r.RemoteAddr = "192.0.2.9:41000"
	handler.ServeHTTP(first, r)
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, r)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
