package order

import (
	"testing"

	"crocket-go/gateway"
)

func TestOrderLifecycle(t *testing.T) {
	o := New("BTC-LTC", SideBuy, d("2"), d("0.01"))
	if o.Status != StatusUnexecuted {
		t.Fatalf("new order status = %s", o.Status)
	}
	if o.ClientID == "" {
		t.Fatalf("client id not assigned")
	}

	if err := o.MarkExecuted("abc-123"); err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	if o.Status != StatusExecuted || o.UUID != "abc-123" || o.OpenedAt.IsZero() {
		t.Fatalf("executed order = %+v", o)
	}

	// 已提交的订单不能再跳过
	if err := o.Skip(); err == nil {
		t.Fatalf("skip after execution should fail")
	}
}

func TestOrderSkip(t *testing.T) {
	o := New("BTC-LTC", SideBuy, d("2"), d("0.01"))
	if err := o.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if o.Status != StatusSkipped || !IsTerminal(o.Status) {
		t.Fatalf("skipped order status = %s", o.Status)
	}
	// 终态不可再推进
	if err := o.MarkExecuted("abc"); err == nil {
		t.Fatalf("executed after skip should fail")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusUnexecuted, StatusExecuted, true},
		{StatusUnexecuted, StatusSkipped, true},
		{StatusUnexecuted, StatusCompleted, false},
		{StatusExecuted, StatusCompleted, true},
		{StatusExecuted, StatusSkipped, false},
		{StatusCompleted, StatusExecuted, false},
		{StatusSkipped, StatusSkipped, true}, // 幂等
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestReconcileBuy(t *testing.T) {
	o := New("BTC-LTC", SideBuy, d("2"), d("0.01"))
	if err := o.MarkExecuted("abc"); err != nil {
		t.Fatalf("mark executed: %v", err)
	}

	st := gateway.OrderStatus{
		Quantity:          d("2"),
		QuantityRemaining: d("0.5"),
		PricePerUnit:      d("0.00500000"),
		Price:             d("0.0075"),
		CommissionPaid:    d("0.00001875"),
		Closed:            "2026-01-02T03:04:05.123",
	}
	if err := o.Reconcile(st, 8); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if o.Status != StatusCompleted {
		t.Fatalf("status = %s", o.Status)
	}
	if !o.CurrentQuantity.Equal(d("1.5")) {
		t.Fatalf("current quantity = %s", o.CurrentQuantity.String())
	}
	// 买单成本 = 成交额 + 手续费
	if !o.Cost.Equal(d("0.00751875")) {
		t.Fatalf("cost = %s", o.Cost.String())
	}
	if o.ClosedAt.IsZero() {
		t.Fatalf("closed at not set")
	}
}

func TestReconcileSell(t *testing.T) {
	o := New("BTC-LTC", SideSell, d("2"), d("0"))
	if err := o.MarkExecuted("abc"); err != nil {
		t.Fatalf("mark executed: %v", err)
	}

	st := gateway.OrderStatus{
		Quantity:          d("2"),
		QuantityRemaining: d("0"),
		PricePerUnit:      d("0.005"),
		Price:             d("0.01"),
		CommissionPaid:    d("0.000025"),
	}
	if err := o.Reconcile(st, 8); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// 卖单回款 = 成交额 − 手续费
	if !o.Cost.Equal(d("0.009975")) {
		t.Fatalf("cost = %s", o.Cost.String())
	}
	if !o.CurrentQuantity.Equal(d("2")) {
		t.Fatalf("current quantity = %s", o.CurrentQuantity.String())
	}
}
