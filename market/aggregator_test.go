package market

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeTape 按调用次序返回预置页。
type fakeTape struct {
	pages [][]Trade
	calls int
}

func (f *fakeTape) GetMarketHistory(ctx context.Context, market string) ([]Trade, error) {
	page := f.pages[f.calls]
	if f.calls < len(f.pages)-1 {
		f.calls++
	}
	return page, nil
}

type memSink struct {
	rows []IntervalMetrics
}

func (s *memSink) AppendMetrics(ctx context.Context, market string, m IntervalMetrics) error {
	s.rows = append(s.rows, m)
	return nil
}

func newTestAggregator(src TapeSource, sink Sink, cfg AggregatorConfig) *Aggregator {
	return NewAggregator("BTC-LTC", src, sink, nil, cfg, zap.NewNop())
}

func TestAggregatorBoundaryEmission(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	boot := []Trade{tr(1, base, 100, 1, SideBuy)}
	page := []Trade{
		tr(3, base.Add(70*time.Second), 102, 2, SideBuy), // 跨过区间边界
		tr(2, base.Add(30*time.Second), 101, 1, SideSell),
		tr(1, base, 100, 1, SideBuy),
	}
	src := &fakeTape{pages: [][]Trade{boot, page}}
	sink := &memSink{}
	agg := newTestAggregator(src, sink, AggregatorConfig{
		Interval: time.Minute, StaleThreshold: 2, NewEntryThreshold: 30, Scale: 8,
	})

	ctx := context.Background()
	if err := agg.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := agg.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if len(sink.rows) != 1 {
		t.Fatalf("emitted %d intervals, want 1", len(sink.rows))
	}
	m := sink.rows[0]
	if !m.WindowStart.Equal(base) {
		t.Fatalf("window start = %v, want %v", m.WindowStart, base)
	}
	// 区间 (base, base+60s] 只含 id=2；id=1 在起点上，id=3 在区间外
	if m.Volume.String() != "1" || m.SellCount != 1 || m.BuyCount != 0 {
		t.Fatalf("unexpected interval: volume=%s buys=%d sells=%d",
			m.Volume.String(), m.BuyCount, m.SellCount)
	}
}

func TestAggregatorStaleForcedEmission(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	boot := []Trade{tr(1, base, 100, 1, SideBuy)}
	active := []Trade{
		tr(2, base.Add(70*time.Second), 105, 1, SideBuy),
		tr(1, base, 100, 1, SideBuy),
	}
	// 此后行情停摆，页面不再变化
	src := &fakeTape{pages: [][]Trade{boot, active, active, active, active, active, active}}
	sink := &memSink{}
	agg := newTestAggregator(src, sink, AggregatorConfig{
		Interval: time.Minute, StaleThreshold: 2, NewEntryThreshold: 30, Scale: 8,
	})

	ctx := context.Background()
	if err := agg.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	// poll1 边界产出（该区间恰好为空）；poll2..4 空转计数，
	// poll5 计数越过阈值强制产出
	for i := 0; i < 5; i++ {
		if _, err := agg.Poll(ctx); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}
	if len(sink.rows) != 2 {
		t.Fatalf("emitted %d intervals, want 2", len(sink.rows))
	}
	forced := sink.rows[1]
	// 强制产出的区间含 id=2（落在第二个区间内），价格为 105
	if forced.Price.String() != "105" {
		t.Fatalf("forced interval price = %s", forced.Price.String())
	}

	// 计数器不清零：此后每轮都产出一个空区间，价格沿用上一次
	if _, err := agg.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(sink.rows) != 3 {
		t.Fatalf("emitted %d intervals, want 3", len(sink.rows))
	}
	carried := sink.rows[2]
	if !carried.Volume.IsZero() || carried.BuyCount != 0 {
		t.Fatalf("expected empty interval, got volume=%s", carried.Volume.String())
	}
	if carried.Price.String() != "105" || carried.PriceVWAP.String() != "105" {
		t.Fatalf("carried price = %s / %s, want 105", carried.Price.String(), carried.PriceVWAP.String())
	}
}

func TestAggregatorAdaptiveCadence(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	boot := []Trade{tr(1, base, 100, 1, SideBuy)}
	busy := []Trade{
		tr(3, base.Add(3*time.Second), 101, 1, SideBuy),
		tr(2, base.Add(2*time.Second), 101, 1, SideBuy),
		tr(1, base, 100, 1, SideBuy),
	}
	src := &fakeTape{pages: [][]Trade{boot, busy, busy}}
	sink := &memSink{}
	agg := newTestAggregator(src, sink, AggregatorConfig{
		Interval:  time.Minute,
		PollShort: 30 * time.Second, PollLong: time.Minute,
		StaleThreshold: 10, NewEntryThreshold: 2, Scale: 8,
	})

	ctx := context.Background()
	if err := agg.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	delay, err := agg.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if delay != 30*time.Second {
		t.Fatalf("busy market delay = %v, want short cadence", delay)
	}
	delay, err = agg.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if delay != time.Minute {
		t.Fatalf("quiet market delay = %v, want long cadence", delay)
	}
}

func TestAggregatorGapFlushes(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	boot := []Trade{tr(1, base, 100, 1, SideBuy)}
	// 锚点 id=1 已被刷出页面：断档
	jumped := []Trade{
		tr(9, base.Add(30*time.Second), 108, 1, SideBuy),
		tr(8, base.Add(20*time.Second), 107, 1, SideSell),
	}
	src := &fakeTape{pages: [][]Trade{boot, jumped}}
	sink := &memSink{}
	agg := newTestAggregator(src, sink, AggregatorConfig{
		Interval: time.Minute, StaleThreshold: 2, NewEntryThreshold: 30, Scale: 8,
	})

	ctx := context.Background()
	if err := agg.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := agg.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	// 断档按边界处理：立即产出当前区间
	if len(sink.rows) != 1 {
		t.Fatalf("emitted %d intervals after gap, want 1", len(sink.rows))
	}
	if sink.rows[0].BuyCount != 1 || sink.rows[0].SellCount != 1 {
		t.Fatalf("gap interval counts = %d/%d", sink.rows[0].BuyCount, sink.rows[0].SellCount)
	}
}
