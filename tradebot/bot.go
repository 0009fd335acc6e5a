// Package tradebot turns emitted interval metrics into trading decisions and
// drives the order executor. One position per market: a volume spike against
// the rolling mean opens it, take-profit or stop-loss closes it.
package tradebot

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crocket-go/market"
	"crocket-go/order"
)

// Executor 抽象订单执行器，测试时替换。
type Executor interface {
	Execute(ctx context.Context, o order.Order) (order.Order, error)
}

// OrderSink 终态订单的去处（完成或跳过都落库）。
type OrderSink interface {
	SaveOrder(ctx context.Context, o order.Order) error
}

// Config 决策参数。
type Config struct {
	Enabled       bool
	BaseQuantity  decimal.Decimal // 每次买入动用的计价币数量
	VolumeSpike   decimal.Decimal // 成交量触发倍数
	Lookback      int             // 滚动均值窗口（区间数）
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
}

// signal 聚合循环投递过来的一条指标。
type signal struct {
	market string
	m      market.IntervalMetrics
}

// position 某市场的持仓与入场价。
type position struct {
	entry decimal.Decimal
	qty   decimal.Decimal
}

// Bot 消费指标、维护活跃订单集合。自己一个协程跑 Run，
// Publish 只投递不阻塞，聚合循环永远不等交易。
type Bot struct {
	exec Executor
	sink OrderSink
	log  *zap.Logger

	mu      sync.RWMutex
	cfg     Config
	halted  bool // Fatal 级错误后停止自动下单
	history map[string][]decimal.Decimal
	pos     map[string]position

	ch chan signal
}

func New(exec Executor, sink OrderSink, cfg Config, log *zap.Logger) *Bot {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 20
	}
	return &Bot{
		exec:    exec,
		sink:    sink,
		cfg:     cfg,
		log:     log,
		history: make(map[string][]decimal.Decimal),
		pos:     make(map[string]position),
		ch:      make(chan signal, 256),
	}
}

// SetEnabled 热更新开关（配置文件变更时调用）。
func (b *Bot) SetEnabled(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Enabled = on
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Publish 实现 market.Publisher：满了直接丢，宁丢信号不堵行情。
func (b *Bot) Publish(mkt string, m market.IntervalMetrics) {
	select {
	case b.ch <- signal{market: mkt, m: m}:
	default:
		b.log.Warn("tradebot signal buffer full, dropping", zap.String("market", mkt))
	}
}

// Run 消费信号直到 ctx 取消。
func (b *Bot) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-b.ch:
			b.onMetrics(ctx, s.market, s.m)
		}
	}
}

// onMetrics 按市场更新滚动均值并做一次决策。
func (b *Bot) onMetrics(ctx context.Context, mkt string, m market.IntervalMetrics) {
	cfg := b.config()

	hist := b.history[mkt]
	mean := rollingMean(hist)
	hist = append(hist, m.Volume)
	if len(hist) > cfg.Lookback {
		hist = hist[len(hist)-cfg.Lookback:]
	}
	b.history[mkt] = hist

	b.mu.RLock()
	halted := b.halted
	b.mu.RUnlock()
	if !cfg.Enabled || halted {
		return
	}
	if m.Price.IsZero() {
		return // 空区间沿用的价格也可能为零，没有可交易的信号
	}

	if pos, held := b.pos[mkt]; held {
		b.maybeExit(ctx, cfg, mkt, m, pos)
		return
	}
	b.maybeEnter(ctx, cfg, mkt, m, mean)
}

// maybeEnter 成交量突破滚动均值的 VolumeSpike 倍时买入。
func (b *Bot) maybeEnter(ctx context.Context, cfg Config, mkt string, m market.IntervalMetrics, mean decimal.Decimal) {
	if mean.IsZero() || !m.Volume.GreaterThanOrEqual(mean.Mul(cfg.VolumeSpike)) {
		return
	}
	quantity := cfg.BaseQuantity.Div(m.Price).Round(8)
	o := order.New(mkt, order.SideBuy, quantity, cfg.BaseQuantity)
	b.log.Info("volume spike, entering",
		zap.String("market", mkt),
		zap.String("volume", m.Volume.String()),
		zap.String("mean", mean.String()))

	done, err := b.exec.Execute(ctx, o)
	b.settle(ctx, done, err)
	if err == nil {
		b.pos[mkt] = position{entry: done.ActualPrice, qty: done.CurrentQuantity}
	}
}

// maybeExit 止盈或止损触发时清仓。
func (b *Bot) maybeExit(ctx context.Context, cfg Config, mkt string, m market.IntervalMetrics, pos position) {
	pct := decimal.NewFromInt(100)
	up := pos.entry.Mul(pct.Add(cfg.TakeProfitPct)).Div(pct)
	down := pos.entry.Mul(pct.Sub(cfg.StopLossPct)).Div(pct)
	if m.Price.LessThan(up) && m.Price.GreaterThan(down) {
		return
	}
	o := order.New(mkt, order.SideSell, pos.qty, decimal.Zero)
	b.log.Info("exit triggered, selling",
		zap.String("market", mkt),
		zap.String("entry", pos.entry.String()),
		zap.String("price", m.Price.String()))

	done, err := b.exec.Execute(ctx, o)
	b.settle(ctx, done, err)
	if err == nil {
		delete(b.pos, mkt)
	}
}

// settle 处理执行结果：Abort 标记 SKIPPED 后落库继续，
// Fatal 停止自动下单等人工介入，成功直接落库。
func (b *Bot) settle(ctx context.Context, o order.Order, err error) {
	switch {
	case err == nil:
	case order.IsAbort(err):
		b.log.Info("order skipped", zap.String("market", o.Market), zap.Error(err))
		if skipErr := o.Skip(); skipErr != nil {
			b.log.Error("skip transition failed", zap.Error(skipErr))
			return
		}
	case order.IsFatal(err):
		b.log.Error("fatal order outcome, halting tradebot: TAKE MANUAL ACTION",
			zap.String("market", o.Market), zap.Error(err))
		b.mu.Lock()
		b.halted = true
		b.mu.Unlock()
		return
	default:
		b.log.Error("order execution failed", zap.String("market", o.Market), zap.Error(err))
		return
	}

	if !order.IsTerminal(o.Status) {
		return
	}
	if err := b.sink.SaveOrder(ctx, o); err != nil {
		b.log.Error("save order failed", zap.String("clientId", o.ClientID), zap.Error(err))
	}
}

func rollingMean(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range vals {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(vals))))
}
