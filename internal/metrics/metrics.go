// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層から利用する。
type MetricsCollector interface {
	RecordTriggerSuccess(workflowTitle string)
	RecordTriggerFailure(workflowTitle string)
	RecordTriggerLatency(duration time.Duration)
	RecordRunLogged()
	RecordSignIn(success bool)
	RecordSignUp()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	triggerSuccess *prometheus.CounterVec
	triggerFail    *prometheus.CounterVec
	triggerLatency prometheus.Histogram
	runsLogged     prometheus.Counter
	signIns        *prometheus.CounterVec
	signUps        prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		triggerSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflowhub_trigger_success_total",
			Help: "ワークフロートリガー成功の合計数",
		}, []string{"workflow"}),
		triggerFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflowhub_trigger_fail_total",
			Help: "ワークフロートリガー失敗の合計数",
		}, []string{"workflow"}),
		triggerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflowhub_trigger_latency_seconds",
			Help:    "ワークフロートリガーのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		runsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflowhub_runs_logged_total",
			Help: "記録されたワークフロー実行ログの合計数",
		}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflowhub_sign_in_total",
			Help: "サインイン試行の合計数（成否別）",
		}, []string{"result"}),
		signUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflowhub_sign_up_total",
			Help: "サインアップ成功の合計数",
		}),
	}

	reg.MustRegister(
		c.triggerSuccess,
		c.triggerFail,
		c.triggerLatency,
		c.runsLogged,
		c.signIns,
		c.signUps,
	)

	return c
}

// RecordTriggerSuccess はトリガー成功を記録する。
func (c *Collector) RecordTriggerSuccess(workflowTitle string) {
	c.triggerSuccess.WithLabelValues(workflowTitle).Inc()
}

// RecordTriggerFailure はトリガー失敗を記録する。
func (c *Collector) RecordTriggerFailure(workflowTitle string) {
	c.triggerFail.WithLabelValues(workflowTitle).Inc()
}

// RecordTriggerLatency はトリガーのレイテンシを記録する。
func (c *Collector) RecordTriggerLatency(duration time.Duration) {
	c.triggerLatency.Observe(duration.Seconds())
}

// RecordRunLogged は実行ログの記録を記録する。
func (c *Collector) RecordRunLogged() {
	c.runsLogged.Inc()
}

// RecordSignIn はサインイン試行を成否別に記録する。
func (c *Collector) RecordSignIn(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.signIns.WithLabelValues(result).Inc()
}

// RecordSignUp はサインアップ成功を記録する。
func (c *Collector) RecordSignUp() {
	c.signUps.Inc()
}

// RegisterRunActivityGauge は直近24時間の実行件数を公開するゲージを登録する。
// countFnはスクレイプのたびに呼ばれる。エラー時はログだけ残して0を報告する。
func RegisterRunActivityGauge(reg prometheus.Registerer, countFn func() (int, error)) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "workflowhub_runs_last_24h",
		Help: "直近24時間に記録されたワークフロー実行件数",
	}, func() float64 {
		count, err := countFn()
		if err != nil {
			slog.Warn("failed to count recent runs", slog.String("error", err.Error()))
			return 0
		}
		return float64(count)
	}))
}

// Handler はPrometheusメトリクス公開用のHTTPハンドラーを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
