package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crocket-go/market"
)

// envelope 交易所统一响应格式。success=false 属于业务失败，
// 与传输层错误区分开，message 原样保留用于诊断。
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// APIError 表示交易所返回 success=false 的业务失败。
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange %s: %s", e.Op, e.Message)
}

// Ticker 是实时盘口的买一/卖一。
type Ticker struct {
	Bid  decimal.Decimal `json:"Bid"`
	Ask  decimal.Decimal `json:"Ask"`
	Last decimal.Decimal `json:"Last"`
}

// MarketInfo 市场元数据，用于按计价币筛选活跃市场。
type MarketInfo struct {
	MarketName   string `json:"MarketName"`
	BaseCurrency string `json:"BaseCurrency"`
	IsActive     bool   `json:"IsActive"`
}

type orderRef struct {
	UUID string `json:"uuid"`
}

// OrderStatus 下单回查返回的订单终态数据，钱包对账的唯一依据。
type OrderStatus struct {
	OrderUUID         string          `json:"OrderUuid"`
	Exchange          string          `json:"Exchange"`
	Type              string          `json:"Type"` // LIMIT_BUY / LIMIT_SELL
	Quantity          decimal.Decimal `json:"Quantity"`
	QuantityRemaining decimal.Decimal `json:"QuantityRemaining"`
	Limit             decimal.Decimal `json:"Limit"`
	PricePerUnit      decimal.Decimal `json:"PricePerUnit"`
	Price             decimal.Decimal `json:"Price"` // 总成交额（计价币）
	CommissionPaid    decimal.Decimal `json:"CommissionPaid"`
	IsOpen            bool            `json:"IsOpen"`
	Opened            string          `json:"Opened"`
	Closed            string          `json:"Closed"` // 未完全成交时为空
}

// ClosedAt 解析订单关闭时间；订单未关闭时返回当前时间。
func (s OrderStatus) ClosedAt() time.Time {
	if ts, err := ParseTimestamp(s.Closed); err == nil {
		return ts
	}
	return time.Now().UTC()
}

// tradeEntry 成交历史的线格式。Total 是本笔成交的计价币金额，
// 域模型的 Quantity 取它：区间成交量与 VWAP 权重均以计价币计。
type tradeEntry struct {
	ID        int64           `json:"Id"`
	TimeStamp string          `json:"TimeStamp"`
	Price     decimal.Decimal `json:"Price"`
	Quantity  decimal.Decimal `json:"Quantity"`
	Total     decimal.Decimal `json:"Total"`
	OrderType string          `json:"OrderType"`
}

func (t tradeEntry) toTrade() (market.Trade, error) {
	ts, err := ParseTimestamp(t.TimeStamp)
	if err != nil {
		return market.Trade{}, fmt.Errorf("trade %d: %w", t.ID, err)
	}
	return market.Trade{
		ID:        t.ID,
		Timestamp: ts,
		Price:     t.Price,
		Quantity:  t.Total,
		Side:      t.OrderType,
	}, nil
}

// balanceResult 账户余额。
type balanceResult struct {
	Currency  string          `json:"Currency"`
	Balance   decimal.Decimal `json:"Balance"`
	Available decimal.Decimal `json:"Available"`
}

const timestampLayout = "2006-01-02T15:04:05.999999999"

// ParseTimestamp 解析交易所时间戳（UTC，无时区后缀，小数秒可缺省）。
func ParseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	ts, err := time.ParseInLocation(timestampLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return ts, nil
}
