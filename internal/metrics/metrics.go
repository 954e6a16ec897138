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
// 統計取得サービス・レンダラー・ティア同期ワーカーから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(source string)
	RecordFetchFailure(source string)
	RecordFetchLatency(duration time.Duration)
	RecordUpstreamStatus(statusCode int)
	RecordRenderFailure()
	RecordRenderLatency(duration time.Duration)
	RecordTierRowsSynced(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess   *prometheus.CounterVec
	fetchFail      *prometheus.CounterVec
	upstreamStatus *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	renderFail     prometheus.Counter
	renderLatency  prometheus.Histogram
	tierRowsSynced prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kzcard_fetch_success_total",
			Help: "統計取得成功の合計数（データ提供元別）",
		}, []string{"source"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kzcard_fetch_fail_total",
			Help: "統計取得失敗の合計数（データ提供元別）",
		}, []string{"source"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kzcard_upstream_status_total",
			Help: "上流サービスのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kzcard_fetch_latency_seconds",
			Help:    "統計取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		renderFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kzcard_render_fail_total",
			Help: "カード描画失敗の合計数",
		}),
		renderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kzcard_render_latency_seconds",
			Help:    "カード描画のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tierRowsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kzcard_tier_rows_synced_total",
			Help: "ティア同期で保存されたマップ行の合計数",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.upstreamStatus,
		c.fetchLatency,
		c.renderFail,
		c.renderLatency,
		c.tierRowsSynced,
	)

	return c
}

// RecordFetchSuccess は統計取得成功を記録する。
func (c *Collector) RecordFetchSuccess(source string) {
	c.fetchSuccess.WithLabelValues(source).Inc()
}

// RecordFetchFailure は統計取得失敗を記録する。
func (c *Collector) RecordFetchFailure(source string) {
	c.fetchFail.WithLabelValues(source).Inc()
}

// RecordFetchLatency は統計取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordUpstreamStatus は上流サービスのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRenderFailure はカード描画失敗を記録する。
func (c *Collector) RecordRenderFailure() {
	c.renderFail.Inc()
}

// RecordRenderLatency はカード描画のレイテンシを記録する。
func (c *Collector) RecordRenderLatency(duration time.Duration) {
	c.renderLatency.Observe(duration.Seconds())
}

// RecordTierRowsSynced はティア同期で保存された行数を記録する。
func (c *Collector) RecordTierRowsSynced(count int) {
	c.tierRowsSynced.Add(float64(count))
}

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
