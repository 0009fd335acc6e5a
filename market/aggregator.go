package market

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TapeSource 拉取某市场最近一页成交（从新到旧）。
type TapeSource interface {
	GetMarketHistory(ctx context.Context, market string) ([]Trade, error)
}

// Sink 持久化区间指标。写入失败由聚合器记日志，不重试。
type Sink interface {
	AppendMetrics(ctx context.Context, market string, m IntervalMetrics) error
}

// Publisher 向在线订阅方推送已生成的区间指标（可选）。
type Publisher interface {
	Publish(market string, m IntervalMetrics)
}

// AggregatorConfig 聚合节奏参数，均可由外部配置。
type AggregatorConfig struct {
	Interval          time.Duration // 指标区间长度
	PollShort         time.Duration // 活跃市场轮询间隔
	PollLong          time.Duration // 清淡市场轮询间隔
	StaleThreshold    int           // 连续空转多少轮后强制产出空区间
	NewEntryThreshold int           // 新成交低于该条数则放慢轮询
	Scale             int32         // 金额量化位数
}

// Aggregator 维护单个市场的成交窗口并按固定区间产出指标。
// 单协程驱动：Run 内的轮询循环是唯一的执行线索，取消只在
// 两次轮询之间生效。
type Aggregator struct {
	market string
	src    TapeSource
	sink   Sink
	pub    Publisher
	cfg    AggregatorConfig
	log    *zap.Logger

	win           *Window
	intervalStart time.Time
	stale         int
	last          IntervalMetrics
	hasLast       bool
}

func NewAggregator(market string, src TapeSource, sink Sink, pub Publisher, cfg AggregatorConfig, log *zap.Logger) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PollShort <= 0 {
		cfg.PollShort = 30 * time.Second
	}
	if cfg.PollLong <= 0 {
		cfg.PollLong = time.Minute
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 2
	}
	if cfg.NewEntryThreshold <= 0 {
		cfg.NewEntryThreshold = 30
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 8
	}
	return &Aggregator{
		market: market,
		src:    src,
		sink:   sink,
		pub:    pub,
		cfg:    cfg,
		log:    log.With(zap.String("market", market)),
		win:    NewWindow(),
	}
}

// Bootstrap 首次拉取成交并确定第一个区间的起点（最新成交的时间戳）。
// 空白市场以当前时间起步。
func (a *Aggregator) Bootstrap(ctx context.Context) error {
	page, err := a.src.GetMarketHistory(ctx, a.market)
	if err != nil {
		return err
	}
	a.win.Merge(page)
	if newest, ok := a.win.Newest(); ok {
		a.intervalStart = newest.Timestamp
	} else {
		a.intervalStart = time.Now().UTC()
	}
	a.log.Info("aggregator bootstrapped",
		zap.Int("window", a.win.Len()),
		zap.Time("intervalStart", a.intervalStart))
	return nil
}

// Poll 执行一轮合并，必要时产出指标，返回到下一轮的休眠时长。
// 拉取失败保留窗口原状，错误交由调用方记录。
func (a *Aggregator) Poll(ctx context.Context) (time.Duration, error) {
	page, err := a.src.GetMarketHistory(ctx, a.market)
	if err != nil {
		return a.cfg.PollShort, err
	}

	added, gap := a.win.Merge(page)
	if gap {
		// 两次轮询之间的成交超过了单页容量，漏掉的部分无法找回。
		// 记告警后按正常边界处理：产出当前区间并前移。
		a.log.Warn("trade tape gap: window anchor not in fetched page, merged whole page",
			zap.Int("page", len(page)),
			zap.Int("added", added))
		a.flushInterval(ctx)
		a.stale = 0
		return a.cfg.PollShort, nil
	}

	newest, ok := a.win.Newest()
	switch {
	case ok && newest.Timestamp.Sub(a.intervalStart) > a.cfg.Interval:
		a.flushInterval(ctx)
		a.stale = 0

	case a.stale > a.cfg.StaleThreshold:
		// 死市保护：即使没有成交跨过边界，也至少每个区间产出一次。
		// 计数器故意不清零，清淡市场会保持每轮一个空区间的节奏。
		a.flushInterval(ctx)

	default:
		a.stale++
		a.log.Debug("latest entry within interval, skipping metrics generation",
			zap.Int("stale", a.stale))
	}

	if added < a.cfg.NewEntryThreshold {
		return a.cfg.PollLong, nil
	}
	return a.cfg.PollShort, nil
}

// flushInterval 产出 [intervalStart, intervalStart+Interval) 的指标，
// 裁剪窗口并把区间起点前移一个周期。空区间的价格字段沿用上一次
// 产出（空 tape 没有价格），其余字段为零。
func (a *Aggregator) flushInterval(ctx context.Context) {
	trades := a.win.CutInterval(a.intervalStart, a.cfg.Interval)
	m := ComputeInterval(trades, a.intervalStart, a.cfg.Scale)
	if len(trades) == 0 && a.hasLast {
		m.Price = a.last.Price
		m.PriceVWAP = a.last.PriceVWAP
	}
	a.intervalStart = a.intervalStart.Add(a.cfg.Interval)

	if err := a.sink.AppendMetrics(ctx, a.market, m); err != nil {
		a.log.Error("append metrics failed", zap.Error(err))
	}
	if a.pub != nil {
		a.pub.Publish(a.market, m)
	}
	a.last = m
	a.hasLast = true

	a.log.Debug("interval metrics emitted",
		zap.Time("windowStart", m.WindowStart),
		zap.String("volume", m.Volume.String()),
		zap.Int("buys", m.BuyCount),
		zap.Int("sells", m.SellCount))
}

// Run 启动轮询循环，直到 ctx 取消。取消只在轮询间隙检查，
// 进行中的一轮会先完成。
func (a *Aggregator) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	// 首次拉取失败只是推迟起步，不终止循环
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		err := a.Bootstrap(ctx)
		if err == nil {
			break
		}
		a.log.Warn("bootstrap failed, retrying", zap.Error(err))
		timer.Reset(a.cfg.PollShort)
	}
	timer.Reset(a.cfg.PollShort)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		delay, err := a.Poll(ctx)
		if err != nil {
			a.log.Warn("poll failed, keeping window", zap.Error(err))
		}
		timer.Reset(delay)
	}
}
