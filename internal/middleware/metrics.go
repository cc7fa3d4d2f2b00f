package middleware

import (
	"net/http"

	"github.com/hitoshi/sessiongate/internal/metrics"
)

// NewMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録するミドルウェアを返す。
func NewMetricsMiddleware(m metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				onStatus:       m.RecordHTTPStatus,
			}
			next.ServeHTTP(rec, r)
			if !rec.written {
				m.RecordHTTPStatus(http.StatusOK)
			}
		})
	}
}
