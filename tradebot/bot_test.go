package tradebot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crocket-go/market"
	"crocket-go/order"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// scriptedExec 记录收到的订单并返回预置结果。
type scriptedExec struct {
	orders []order.Order
	err    error
	fill   func(order.Order) order.Order
}

func (s *scriptedExec) Execute(ctx context.Context, o order.Order) (order.Order, error) {
	s.orders = append(s.orders, o)
	if s.err != nil {
		return o, s.err
	}
	if s.fill != nil {
		return s.fill(o), nil
	}
	return o, nil
}

type memSink struct {
	saved []order.Order
}

func (s *memSink) SaveOrder(ctx context.Context, o order.Order) error {
	s.saved = append(s.saved, o)
	return nil
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		BaseQuantity:  d("0.01"),
		VolumeSpike:   d("3"),
		Lookback:      5,
		TakeProfitPct: d("5"),
		StopLossPct:   d("3"),
	}
}

func metricsAt(vol, price string) market.IntervalMetrics {
	return market.IntervalMetrics{
		WindowStart: time.Now().UTC(),
		Volume:      d(vol),
		Price:       d(price),
		PriceVWAP:   d(price),
	}
}

// completeFill 模拟全部成交并对账完成的订单。
func completeFill(o order.Order) order.Order {
	_ = o.MarkExecuted("uuid-1")
	o.CurrentQuantity = o.TargetQuantity
	o.ActualPrice = o.TargetPrice
	if o.ActualPrice.IsZero() {
		o.ActualPrice = d("0.005")
	}
	o.Status = order.StatusCompleted
	return o
}

func feedBaseline(b *Bot, mkt string, n int) {
	for i := 0; i < n; i++ {
		b.onMetrics(context.Background(), mkt, metricsAt("1", "0.005"))
	}
}

func TestVolumeSpikeEntry(t *testing.T) {
	exec := &scriptedExec{fill: completeFill}
	sink := &memSink{}
	b := New(exec, sink, testConfig(), zap.NewNop())

	feedBaseline(b, "BTC-LTC", 3) // 均值 1
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("5", "0.005"))

	if len(exec.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(exec.orders))
	}
	o := exec.orders[0]
	if o.Side != order.SideBuy || o.Market != "BTC-LTC" {
		t.Fatalf("order = %+v", o)
	}
	// 申报量 = 预算 / 当前价
	if !o.TargetQuantity.Equal(d("2")) {
		t.Fatalf("target quantity = %s, want 2", o.TargetQuantity.String())
	}
	if len(sink.saved) != 1 || sink.saved[0].Status != order.StatusCompleted {
		t.Fatalf("completed order not persisted")
	}
}

func TestNoEntryWithoutSpike(t *testing.T) {
	exec := &scriptedExec{fill: completeFill}
	b := New(exec, &memSink{}, testConfig(), zap.NewNop())

	feedBaseline(b, "BTC-LTC", 3)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("2", "0.005")) // 2 < 1*3

	if len(exec.orders) != 0 {
		t.Fatalf("unexpected entry on quiet volume")
	}
}

func TestNoEntryWhileHolding(t *testing.T) {
	exec := &scriptedExec{fill: completeFill}
	b := New(exec, &memSink{}, testConfig(), zap.NewNop())

	feedBaseline(b, "BTC-LTC", 3)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("5", "0.005"))
	// 持仓期间再次放量不应加仓
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("50", "0.005"))

	if len(exec.orders) != 1 {
		t.Fatalf("orders = %d, want 1 (no pyramiding)", len(exec.orders))
	}
}

func TestTakeProfitExit(t *testing.T) {
	exec := &scriptedExec{fill: completeFill}
	b := New(exec, &memSink{}, testConfig(), zap.NewNop())

	feedBaseline(b, "BTC-LTC", 3)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("5", "0.005")) // 入场 0.005

	// 涨 6% > 止盈 5%
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("1", "0.0053"))

	if len(exec.orders) != 2 {
		t.Fatalf("orders = %d, want entry+exit", len(exec.orders))
	}
	if exec.orders[1].Side != order.SideSell {
		t.Fatalf("exit side = %s", exec.orders[1].Side)
	}
	// 平仓后允许再次入场
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("50", "0.005"))
	if len(exec.orders) != 3 {
		t.Fatalf("re-entry after exit not allowed")
	}
}

func TestStopLossExit(t *testing.T) {
	exec := &scriptedExec{fill: completeFill}
	b := New(exec, &memSink{}, testConfig(), zap.NewNop())

	feedBaseline(b, "BTC-LTC", 3)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("5", "0.005"))

	// 持仓期间小幅波动：不动
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("1", "0.00505"))
	if len(exec.orders) != 1 {
		t.Fatalf("premature exit on small move")
	}

	// 跌 4% > 止损 3%
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("1", "0.0048"))
	if len(exec.orders) != 2 || exec.orders[1].Side != order.SideSell {
		t.Fatalf("stop loss did not trigger")
	}
}

func TestAbortedOrderSkippedAndSaved(t *testing.T) {
	exec := &scriptedExec{err: order.ErrInsufficientBalance}
	sink := &memSink{}
	b := New(exec, sink, testConfig(), zap.NewNop())

	feedBaseline(b, "BTC-LTC", 3)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("5", "0.005"))

	if len(sink.saved) != 1 || sink.saved[0].Status != order.StatusSkipped {
		t.Fatalf("aborted order should be saved as SKIPPED, saved=%v", sink.saved)
	}
	// Abort 不停机：下一次放量仍会尝试
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("50", "0.005"))
	if len(exec.orders) != 2 {
		t.Fatalf("bot stopped after abort-level error")
	}
}

func TestFatalErrorHaltsBot(t *testing.T) {
	exec := &scriptedExec{err: order.ErrConfirmationExhausted}
	b := New(exec, &memSink{}, testConfig(), zap.NewNop())

	feedBaseline(b, "BTC-LTC", 3)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("5", "0.005"))
	if len(exec.orders) != 1 {
		t.Fatalf("orders = %d", len(exec.orders))
	}

	// Fatal 后停止自动下单
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("50", "0.005"))
	if len(exec.orders) != 1 {
		t.Fatalf("bot kept trading after fatal error")
	}
}

func TestSetEnabled(t *testing.T) {
	exec := &scriptedExec{fill: completeFill}
	b := New(exec, &memSink{}, testConfig(), zap.NewNop())
	b.SetEnabled(false)

	feedBaseline(b, "BTC-LTC", 3)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("5", "0.005"))
	if len(exec.orders) != 0 {
		t.Fatalf("disabled bot placed an order")
	}

	b.SetEnabled(true)
	b.onMetrics(context.Background(), "BTC-LTC", metricsAt("50", "0.005"))
	if len(exec.orders) != 1 {
		t.Fatalf("re-enabled bot did not trade")
	}
}
