package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntervalMetrics 是一个固定区间的成交汇总快照，生成后不再修改。
type IntervalMetrics struct {
	WindowStart time.Time
	Volume      decimal.Decimal
	BuyCount    int
	SellCount   int
	Price       decimal.Decimal // 区间内量化后价格的算术平均
	PriceVWAP   decimal.Decimal // 成交量加权平均价
}

// ComputeInterval 汇总一个区间内的成交。空区间返回全零快照，
// 价格字段定义为零而不是除零报错。所有金额按 scale 位小数量化。
func ComputeInterval(trades []Trade, start time.Time, scale int32) IntervalMetrics {
	m := IntervalMetrics{
		WindowStart: start,
		Volume:      decimal.Zero,
		Price:       decimal.Zero,
		PriceVWAP:   decimal.Zero,
	}
	if len(trades) == 0 {
		return m
	}

	var priceSum, weighted decimal.Decimal
	for _, t := range trades {
		p := t.Price.Round(scale)
		m.Volume = m.Volume.Add(t.Quantity)
		priceSum = priceSum.Add(p)
		weighted = weighted.Add(p.Mul(t.Quantity))
		if t.Side == SideBuy {
			m.BuyCount++
		}
	}
	m.SellCount = len(trades) - m.BuyCount

	m.Price = priceSum.Div(decimal.NewFromInt(int64(len(trades)))).Round(scale)
	if m.Volume.IsPositive() {
		m.PriceVWAP = weighted.Div(m.Volume).Round(scale)
	}
	return m
}
