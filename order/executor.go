package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crocket-go/gateway"
)

// Exchange 执行器需要的交易所操作子集。
type Exchange interface {
	GetTicker(ctx context.Context, market string) (gateway.Ticker, error)
	BuyLimit(ctx context.Context, market string, quantity, rate decimal.Decimal) (string, error)
	SellLimit(ctx context.Context, market string, quantity, rate decimal.Decimal) (string, error)
	GetOrder(ctx context.Context, uuid string) (gateway.OrderStatus, error)
	CancelOrder(ctx context.Context, uuid string) error
}

// Ledger 钱包账本：定价前置检查读余额，对账写增量。
type Ledger interface {
	Balance(asset string) decimal.Decimal
	ApplyDelta(market string, quantity, cost decimal.Decimal)
}

// ExecutorConfig 重试与定价参数，均可由外部配置。
type ExecutorConfig struct {
	RetryBudget   int             // 每个重试环节的尝试次数 R
	Backoff       time.Duration   // 两次尝试之间的固定退避
	ConfirmDelay  time.Duration   // 提交成功后到首次回查的等待
	BufferPercent decimal.Decimal // 定价缓冲比例
	Scale         int32           // 金额量化位数
	BaseAsset     string          // 计价币
}

// Executor 把一笔定价后的订单变成一次确认（或放弃）的交易所交互，
// 并对账钱包。提交→回查→撤余量是一个显式的阶段机，每条边带自己的
// 重试预算；钱包只在对账阶段变动，提交时绝不预扣。
//
// 同步阻塞执行：挂起点只有重试间的定时等待，取消在阶段之间检查，
// 进行中的一次重试会先完成。
type Executor struct {
	ex  Exchange
	led Ledger
	log *zap.Logger

	mu  sync.RWMutex
	cfg ExecutorConfig

	sleep func(time.Duration) // 测试注入
}

func NewExecutor(ex Exchange, led Ledger, cfg ExecutorConfig, log *zap.Logger) *Executor {
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = 3 * time.Second
	}
	if cfg.BufferPercent.IsZero() {
		cfg.BufferPercent = decimal.NewFromInt(5)
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 8
	}
	return &Executor{
		ex:    ex,
		led:   led,
		cfg:   cfg,
		log:   log,
		sleep: time.Sleep,
	}
}

// SetBufferPercent 热更新定价缓冲比例（配置文件变更时调用）。
func (e *Executor) SetBufferPercent(p decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.BufferPercent = p
}

func (e *Executor) config() ExecutorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// 执行阶段。
type phase int

const (
	phasePrice phase = iota
	phaseSubmit
	phaseConfirm
	phaseCancel
	phaseReconcile
	phaseDone
)

// Execute 驱动订单走完 定价→提交→回查→(撤余量)→对账。
// 按值接收订单，返回更新后的副本；Abort 级错误时订单停留在
// UNEXECUTED，由调用方决定是否标记 SKIPPED。
func (e *Executor) Execute(ctx context.Context, o Order) (Order, error) {
	cfg := e.config()
	log := e.log.With(
		zap.String("market", o.Market),
		zap.String("side", string(o.Side)),
		zap.String("clientId", o.ClientID),
	)

	var st gateway.OrderStatus
	for ph := phasePrice; ph != phaseDone; {
		if err := ctx.Err(); err != nil {
			return o, err
		}
		var err error
		switch ph {
		case phasePrice:
			if err = e.price(ctx, cfg, &o, log); err == nil {
				ph = phaseSubmit
			}
		case phaseSubmit:
			if err = e.submit(ctx, cfg, &o, log); err == nil {
				ph = phaseConfirm
			}
		case phaseConfirm:
			if st, err = e.confirm(ctx, cfg, &o, log); err == nil {
				if o.Side == SideBuy && st.QuantityRemaining.IsPositive() {
					ph = phaseCancel
				} else {
					ph = phaseReconcile
				}
			}
		case phaseCancel:
			if err = e.cancelRemainder(ctx, cfg, &o, st, log); err == nil {
				ph = phaseReconcile
			}
		case phaseReconcile:
			if err = e.reconcile(cfg, &o, st, log); err == nil {
				ph = phaseDone
			}
		}
		if err != nil {
			return o, err
		}
	}
	return o, nil
}

// price 取实时盘口定价并做钱包前置检查。任何失败都是 Abort 级。
func (e *Executor) price(ctx context.Context, cfg ExecutorConfig, o *Order, log *zap.Logger) error {
	tk, err := e.ex.GetTicker(ctx, o.Market)
	if err != nil {
		log.Debug("failed to get price, skipping order", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	switch o.Side {
	case SideBuy:
		o.TargetPrice = BuyPrice(tk.Bid, tk.Ask, cfg.BufferPercent, cfg.Scale)
		if e.led.Balance(cfg.BaseAsset).LessThan(o.BaseQuantity) {
			log.Info("not enough in wallet to place buy order, skipping")
			return ErrInsufficientBalance
		}
	case SideSell:
		o.TargetPrice = SellPrice(tk.Bid, tk.Ask, cfg.BufferPercent, cfg.Scale)
		held := e.led.Balance(o.Market)
		if !held.IsPositive() {
			log.Info("nothing in wallet to place sell order, skipping")
			return ErrInsufficientBalance
		}
		// 卖单清仓：申报量取钱包当前持仓。
		o.TargetQuantity = held
	default:
		return fmt.Errorf("unknown order side %q", o.Side)
	}
	return nil
}

// submit 提交限价单，重试耗尽为 Abort 级，订单停留在 UNEXECUTED。
func (e *Executor) submit(ctx context.Context, cfg ExecutorConfig, o *Order, log *zap.Logger) error {
	var uuid string
	err := e.attempt(cfg, func() error {
		var err error
		if o.Side == SideBuy {
			uuid, err = e.ex.BuyLimit(ctx, o.Market, o.TargetQuantity, o.TargetPrice)
		} else {
			uuid, err = e.ex.SellLimit(ctx, o.Market, o.TargetQuantity, o.TargetPrice)
		}
		return err
	})
	if err != nil {
		log.Info("order submission failed, max retries reached",
			zap.Int("retries", cfg.RetryBudget), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSubmissionExhausted, err)
	}
	if err := o.MarkExecuted(uuid); err != nil {
		return err
	}
	log.Info("order submitted", zap.String("uuid", o.UUID),
		zap.String("price", o.TargetPrice.String()),
		zap.String("quantity", o.TargetQuantity.String()))
	return nil
}

// confirm 等待固定延迟后回查订单。确认的是"状态查询成功"，
// 不是订单成交；重试耗尽为 Fatal 级。
func (e *Executor) confirm(ctx context.Context, cfg ExecutorConfig, o *Order, log *zap.Logger) (gateway.OrderStatus, error) {
	e.sleep(cfg.ConfirmDelay)

	var st gateway.OrderStatus
	err := e.attempt(cfg, func() error {
		var err error
		st, err = e.ex.GetOrder(ctx, o.UUID)
		return err
	})
	if err != nil {
		log.Error("order confirmation failed, max retries reached: TAKE MANUAL ACTION",
			zap.String("uuid", o.UUID), zap.Error(err))
		return st, fmt.Errorf("%w: %v", ErrConfirmationExhausted, err)
	}
	return st, nil
}

// cancelRemainder 撤掉买单未成交的余量；重试耗尽为 Fatal 级，
// 订单处于半撤销状态有资金风险。
func (e *Executor) cancelRemainder(ctx context.Context, cfg ExecutorConfig, o *Order, st gateway.OrderStatus, log *zap.Logger) error {
	log.Info("buy order partially filled, canceling remainder",
		zap.String("remaining", st.QuantityRemaining.String()),
		zap.String("quantity", st.Quantity.String()))

	err := e.attempt(cfg, func() error {
		return e.ex.CancelOrder(ctx, o.UUID)
	})
	if err != nil {
		log.Error("order cancellation failed, max retries reached: TAKE MANUAL ACTION",
			zap.String("uuid", o.UUID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCancellationExhausted, err)
	}
	return nil
}

// reconcile 用交易所数据收口订单并把已成交部分记入钱包。
// 钱包只在这里变动：买入为正增量，卖出为负。
func (e *Executor) reconcile(cfg ExecutorConfig, o *Order, st gateway.OrderStatus, log *zap.Logger) error {
	if err := o.Reconcile(st, cfg.Scale); err != nil {
		return err
	}
	if o.Side == SideBuy {
		e.led.ApplyDelta(o.Market, o.CurrentQuantity, o.Cost)
	} else {
		e.led.ApplyDelta(o.Market, o.CurrentQuantity.Neg(), o.Cost.Neg())
	}
	log.Info("order reconciled",
		zap.String("uuid", o.UUID),
		zap.String("filled", o.CurrentQuantity.String()),
		zap.String("actualPrice", o.ActualPrice.String()),
		zap.String("cost", o.Cost.String()))
	return nil
}

// attempt 以固定退避重试 fn，预算耗尽返回最后一次的错误。
func (e *Executor) attempt(cfg ExecutorConfig, fn func() error) error {
	var err error
	for i := 0; i < cfg.RetryBudget; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < cfg.RetryBudget-1 {
			e.sleep(cfg.Backoff)
		}
	}
	return err
}
