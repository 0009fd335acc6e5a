package wallet

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Wallet 本地钱包账本：按资产（市场符号或计价币）记数量。
// 只有订单对账会写入，定价前置检查会读取。守护进程对每个市场
// 各起一个协程，账本用自己的锁保护写入。
type Wallet struct {
	mu        sync.RWMutex
	baseAsset string
	balances  map[string]decimal.Decimal
}

// New 创建账本，baseAsset 是计价币（如 BTC），买单花费、卖单回笼
// 都记在它名下。
func New(baseAsset string) *Wallet {
	return &Wallet{
		baseAsset: baseAsset,
		balances:  make(map[string]decimal.Decimal),
	}
}

func (w *Wallet) BaseAsset() string { return w.baseAsset }

// Balance 返回资产当前数量，未知资产为零。
func (w *Wallet) Balance(asset string) decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balances[asset]
}

// Set 覆盖资产数量，用于启动时从交易所余额播种。
func (w *Wallet) Set(asset string, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[asset] = amount
}

// ApplyDelta 记一笔已对账的成交：市场资产加 quantity，
// 计价币减 cost。买单两者为正（得币、花钱），卖单为负（出币、回钱）。
func (w *Wallet) ApplyDelta(market string, quantity, cost decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[market] = w.balances[market].Add(quantity)
	w.balances[w.baseAsset] = w.balances[w.baseAsset].Sub(cost)
}

// Snapshot 返回全部余额的副本。
func (w *Wallet) Snapshot() map[string]decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(w.balances))
	for k, v := range w.balances {
		out[k] = v
	}
	return out
}
