package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type statusCollector struct {
	mu    sync.Mutex
	codes []int
}

func (c *statusCollector) RecordGateDecision(string, string)           {}
func (c *statusCollector) RecordIdPCall(string, string, time.Duration) {}
func (c *statusCollector) RecordUserUpsert(string)                     {}
func (c *statusCollector) RecordHTTPStatus(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"explicit", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }, http.StatusUnauthorized},
		{"implicit write", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, http.StatusOK},
		{"no write", func(w http.ResponseWriter, r *http.Request) {}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &statusCollector{}
			NewMetricsMiddleware(c)(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if len(c.codes) != 1 {
				t.Fatalf("recorded %d statuses, want 1", len(c.codes))
			}
			if c.codes[0] != tt.want {
				t.Errorf("status = %d, want %d", c.codes[0], tt.want)
			}
		})
	}
}
