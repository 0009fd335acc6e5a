package order

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// BuyPrice 买单定价：在买一之上加 (ask-bid)*percent/100 的缓冲，
// 越过卖一则退回买一。结果始终落在 [bid, ask] 内。
func BuyPrice(bid, ask, percent decimal.Decimal, scale int32) decimal.Decimal {
	buffer := ask.Sub(bid).Mul(percent).Div(hundred)
	price := bid.Add(buffer).Round(scale)
	if price.GreaterThan(ask) {
		return bid.Round(scale)
	}
	return price
}

// SellPrice 卖单定价：在卖一之下减同样的缓冲，跌破买一则退回卖一。
// 结果始终落在 [bid, ask] 内。
func SellPrice(bid, ask, percent decimal.Decimal, scale int32) decimal.Decimal {
	buffer := ask.Sub(bid).Mul(percent).Div(hundred)
	price := ask.Sub(buffer).Round(scale)
	if price.LessThan(bid) {
		return ask.Round(scale)
	}
	return price
}
