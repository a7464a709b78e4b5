// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 認証サービス・AIサービス・取り込みワーカーから利用する。
type Collector struct {
	authAttempts    *prometheus.CounterVec
	aiCalls         *prometheus.CounterVec
	aiLatency       *prometheus.HistogramVec
	fetches         *prometheus.CounterVec
	fetchStatus     *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	entriesImported prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillstack_auth_attempts_total",
			Help: "認証操作の結果別の回数",
		}, []string{"operation", "outcome"}),
		aiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillstack_ai_calls_total",
			Help: "AI機能呼び出しの機能・結果別の回数",
		}, []string{"feature", "outcome"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skillstack_ai_call_duration_seconds",
			Help:    "AI機能呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"feature"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillstack_source_fetches_total",
			Help: "ソースフェッチの結果別の回数",
		}, []string{"outcome"}),
		fetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillstack_source_http_status_total",
			Help: "ソースフェッチのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skillstack_source_fetch_duration_seconds",
			Help:    "ソースフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		entriesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skillstack_source_entries_imported_total",
			Help: "ソースから取り込まれたリソースの合計数",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.aiCalls,
		c.aiLatency,
		c.fetches,
		c.fetchStatus,
		c.fetchLatency,
		c.entriesImported,
	)

	return c
}

// RecordAuthAttempt は認証操作（signup, signin, refresh）の結果を記録する。
func (c *Collector) RecordAuthAttempt(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordAICall はAI機能呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordAICall(feature, outcome string, duration time.Duration) {
	c.aiCalls.WithLabelValues(feature, outcome).Inc()
	c.aiLatency.WithLabelValues(feature).Observe(duration.Seconds())
}

// RecordFetch はソースフェッチの結果を記録する。status が0の場合（接続失敗など）はステータス別の集計をしない。
func (c *Collector) RecordFetch(outcome string, status int, duration time.Duration) {
	c.fetches.WithLabelValues(outcome).Inc()
	if status > 0 {
		c.fetchStatus.WithLabelValues(strconv.Itoa(status)).Inc()
	}
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordEntriesImported は取り込まれたリソース数を記録する。
func (c *Collector) RecordEntriesImported(count int) {
	c.entriesImported.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントのみを提供するHTTPハンドラーを返す。
// ワーカープロセスが単独でメトリクスを公開する際に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
