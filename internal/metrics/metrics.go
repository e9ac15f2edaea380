// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetricsCollector はメトリクス収集のインターフェース。
// フェッチャーと同期エンジンから利用する。
type SyncMetricsCollector interface {
	RecordPageFetched(endpoint string)
	RecordTransportFailure(endpoint string)
	RecordItemsFetched(endpoint string, count int)
	RecordItemsSkipped(endpoint string, count int)
	RecordCoerceFailures(endpoint string, count int)
	RecordRowsInserted(endpoint string, count int)
	RecordRowsUpdated(endpoint string, count int)
	RecordEndpointFailure(endpoint string)
	RecordSyncDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pagesFetched      *prometheus.CounterVec
	transportFailures *prometheus.CounterVec
	itemsFetched      *prometheus.CounterVec
	itemsSkipped      *prometheus.CounterVec
	coerceFailures    *prometheus.CounterVec
	rowsInserted      *prometheus.CounterVec
	rowsUpdated       *prometheus.CounterVec
	endpointFailures  *prometheus.CounterVec
	syncDuration      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_pages_fetched_total",
			Help: "取得したAPIページの合計数",
		}, []string{"endpoint"}),
		transportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_transport_failures_total",
			Help: "フェッチ中の転送エラーの合計数",
		}, []string{"endpoint"}),
		itemsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_items_fetched_total",
			Help: "フェッチで受理されたアイテムの合計数",
		}, []string{"endpoint"}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_items_skipped_total",
			Help: "ID未解決などで除外されたアイテムの合計数",
		}, []string{"endpoint"}),
		coerceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_coerce_failures_total",
			Help: "デフォルト値で吸収された型強制失敗の合計数",
		}, []string{"endpoint"}),
		rowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_rows_inserted_total",
			Help: "書き込み先テーブルへ挿入された行の合計数",
		}, []string{"endpoint"}),
		rowsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_rows_updated_total",
			Help: "マージで更新された行の合計数",
		}, []string{"endpoint"}),
		endpointFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcosync_endpoint_failures_total",
			Help: "ペア処理失敗の合計数",
		}, []string{"endpoint"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pcosync_sync_duration_seconds",
			Help:    "同期実行全体の所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}

	reg.MustRegister(
		c.pagesFetched,
		c.transportFailures,
		c.itemsFetched,
		c.itemsSkipped,
		c.coerceFailures,
		c.rowsInserted,
		c.rowsUpdated,
		c.endpointFailures,
		c.syncDuration,
	)

	return c
}

// RecordPageFetched はページ取得成功を記録する。
func (c *Collector) RecordPageFetched(endpoint string) {
	c.pagesFetched.WithLabelValues(endpoint).Inc()
}

// RecordTransportFailure は転送エラーを記録する。
func (c *Collector) RecordTransportFailure(endpoint string) {
	c.transportFailures.WithLabelValues(endpoint).Inc()
}

// RecordItemsFetched は受理アイテム数を記録する。
func (c *Collector) RecordItemsFetched(endpoint string, count int) {
	c.itemsFetched.WithLabelValues(endpoint).Add(float64(count))
}

// RecordItemsSkipped は除外アイテム数を記録する。
func (c *Collector) RecordItemsSkipped(endpoint string, count int) {
	c.itemsSkipped.WithLabelValues(endpoint).Add(float64(count))
}

// RecordCoerceFailures は型強制失敗件数を記録する。
func (c *Collector) RecordCoerceFailures(endpoint string, count int) {
	c.coerceFailures.WithLabelValues(endpoint).Add(float64(count))
}

// RecordRowsInserted は挿入行数を記録する。
func (c *Collector) RecordRowsInserted(endpoint string, count int) {
	c.rowsInserted.WithLabelValues(endpoint).Add(float64(count))
}

// RecordRowsUpdated は更新行数を記録する。
func (c *Collector) RecordRowsUpdated(endpoint string, count int) {
	c.rowsUpdated.WithLabelValues(endpoint).Add(float64(count))
}

// RecordEndpointFailure はペア処理失敗を記録する。
func (c *Collector) RecordEndpointFailure(endpoint string) {
	c.endpointFailures.WithLabelValues(endpoint).Inc()
}

// RecordSyncDuration は同期実行の所要時間を記録する。
func (c *Collector) RecordSyncDuration(duration time.Duration) {
	c.syncDuration.Observe(duration.Seconds())
}

// SetupMetricsRoute は/metricsエンドポイントのハンドラーを返す。
func SetupMetricsRoute(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// compile-time interface check
var _ SyncMetricsCollector = (*Collector)(nil)
