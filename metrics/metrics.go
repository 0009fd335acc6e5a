// Package metrics provides Prometheus metrics for the trading daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve 启动 Prometheus 指标服务器。
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}

// Collector 聚合守护进程关心的全部指标。
type Collector struct {
	RestCalls        *prometheus.CounterVec
	RestErrors       *prometheus.CounterVec
	IntervalsEmitted *prometheus.CounterVec
	TradesMerged     *prometheus.CounterVec
	TapeGaps         *prometheus.CounterVec
	OrdersCompleted  *prometheus.CounterVec
	OrdersSkipped    prometheus.Counter
	OrdersFatal      prometheus.Counter
	WalletBalance    *prometheus.GaugeVec
}

func NewCollector() *Collector {
	return &Collector{
		RestCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crocket_rest_calls_total",
			Help: "REST 请求数量",
		}, []string{"action"}),
		RestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crocket_rest_errors_total",
			Help: "REST 错误数量",
		}, []string{"action"}),
		IntervalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crocket_intervals_emitted_total",
			Help: "已产出的区间指标条数",
		}, []string{"market"}),
		TradesMerged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crocket_trades_merged_total",
			Help: "并入窗口的新成交条数",
		}, []string{"market"}),
		TapeGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crocket_tape_gaps_total",
			Help: "检测到的成交历史断档次数",
		}, []string{"market"}),
		OrdersCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crocket_orders_completed_total",
			Help: "已对账完成的订单数量",
		}, []string{"side"}),
		OrdersSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crocket_orders_skipped_total",
			Help: "提交前放弃的订单数量",
		}),
		OrdersFatal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crocket_orders_fatal_total",
			Help: "需要人工介入的订单数量",
		}),
		WalletBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crocket_wallet_balance",
			Help: "钱包账本当前余额",
		}, []string{"asset"}),
	}
}
