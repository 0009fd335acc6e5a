package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crocket-go/gateway"
)

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status 订单生命周期状态。
type Status string

const (
	StatusUnexecuted Status = "UNEXECUTED" // 已创建未提交
	StatusExecuted   Status = "EXECUTED"   // 交易所已受理
	StatusCompleted  Status = "COMPLETED"  // 终态数据已对账
	StatusSkipped    Status = "SKIPPED"    // 提交前放弃
)

// transitions 合法的状态转换，状态只能单向推进。
var transitions = map[Status][]Status{
	StatusUnexecuted: {StatusExecuted, StatusSkipped},
	StatusExecuted:   {StatusCompleted},
}

// CanTransition 校验状态转换是否合法；相同状态幂等放行。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 终态订单应移出活跃集合并交给落库方。
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Order 一笔交易意图及其交易所侧的生命周期。值语义传递：
// 执行器按值接收、返回更新后的副本，调用方持有唯一可写版本。
type Order struct {
	ClientID string // 本地跟踪 ID
	Market   string
	Side     Side

	TargetPrice    decimal.Decimal
	TargetQuantity decimal.Decimal
	BaseQuantity   decimal.Decimal // 计价币口径的预算

	// 以下字段只由交易所返回的数据填充，绝不本地推算。
	CurrentQuantity decimal.Decimal
	ActualPrice     decimal.Decimal
	Cost            decimal.Decimal

	Status   Status
	UUID     string // 交易所订单号，EXECUTED 起才有值
	OpenedAt time.Time
	ClosedAt time.Time
}

// New 创建一笔未执行订单。
func New(market string, side Side, targetQuantity, baseQuantity decimal.Decimal) Order {
	return Order{
		ClientID:       uuid.NewString(),
		Market:         market,
		Side:           side,
		TargetQuantity: targetQuantity,
		BaseQuantity:   baseQuantity,
		Status:         StatusUnexecuted,
	}
}

// advance 推进状态，非法转换报错。
func (o *Order) advance(to Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("order %s: illegal status transition %s -> %s", o.ClientID, o.Status, to)
	}
	o.Status = to
	return nil
}

// MarkExecuted 记录交易所受理：保存订单号并进入 EXECUTED。
func (o *Order) MarkExecuted(exchangeUUID string) error {
	if exchangeUUID == "" {
		return fmt.Errorf("order %s: empty exchange uuid", o.ClientID)
	}
	if err := o.advance(StatusExecuted); err != nil {
		return err
	}
	o.UUID = exchangeUUID
	o.OpenedAt = time.Now().UTC()
	return nil
}

// Skip 放弃订单（提交前），进入 SKIPPED 终态。
func (o *Order) Skip() error {
	return o.advance(StatusSkipped)
}

// Reconcile 用交易所终态数据完成对账：实际成交量 = 申报量 − 剩余量，
// 成本 = 成交额 ± 手续费（买加卖减，卖的手续费直接从回款里扣）。
// 全部金额按 scale 位量化。
func (o *Order) Reconcile(st gateway.OrderStatus, scale int32) error {
	if err := o.advance(StatusCompleted); err != nil {
		return err
	}
	o.CurrentQuantity = st.Quantity.Sub(st.QuantityRemaining).Round(scale)
	o.ActualPrice = st.PricePerUnit.Round(scale)
	o.ClosedAt = st.ClosedAt()
	if o.Side == SideBuy {
		o.Cost = st.Price.Add(st.CommissionPaid).Round(scale)
	} else {
		o.Cost = st.Price.Sub(st.CommissionPaid).Round(scale)
	}
	return nil
}
