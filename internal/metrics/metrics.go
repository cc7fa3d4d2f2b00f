// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、リクエストゲート、ユーザーディレクトリから利用する。
type MetricsCollector interface {
	RecordGateDecision(decision, reason string)
	RecordIdPCall(operation, outcome string, duration time.Duration)
	RecordUserUpsert(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions *prometheus.CounterVec
	idpCalls      *prometheus.CounterVec
	idpLatency    *prometheus.HistogramVec
	userUpserts   *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiongate_gate_decisions_total",
			Help: "リクエストゲートの判定結果別の件数",
		}, []string{"decision", "reason"}),
		idpCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiongate_idp_calls_total",
			Help: "IdP呼び出しの操作・結果別の件数",
		}, []string{"operation", "outcome"}),
		idpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sessiongate_idp_latency_seconds",
			Help:    "IdP呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		userUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiongate_user_upserts_total",
			Help: "ユーザーレコード作成・更新の結果別の件数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiongate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.idpCalls,
		c.idpLatency,
		c.userUpserts,
		c.httpStatus,
	)

	return c
}

// RecordGateDecision はゲートの判定（admitted / rejected）と理由を記録する。
func (c *Collector) RecordGateDecision(decision, reason string) {
	c.gateDecisions.WithLabelValues(decision, reason).Inc()
}

// RecordIdPCall はIdP呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordIdPCall(operation, outcome string, duration time.Duration) {
	c.idpCalls.WithLabelValues(operation, outcome).Inc()
	c.idpLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUserUpsert はユーザーレコードの作成・更新結果（created / updated / failed）を記録する。
func (c *Collector) RecordUserUpsert(outcome string) {
	c.userUpserts.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordGateDecision(string, string)           {}
func (NopCollector) RecordIdPCall(string, string, time.Duration) {}
func (NopCollector) RecordUserUpsert(string)                     {}
func (NopCollector) RecordHTTPStatus(int)                        {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
