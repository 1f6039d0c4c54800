package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLineRecalculate(t *testing.T) {
	li := BillLineItem{
		UnitPrice:          decimal.NewFromInt(50),
		Quantity:           2,
		QuantityType:       QuantityBoxes,
		UnitsPerBox:        10,
		DiscountPercentage: decimal.NewFromInt(10),
	}
	li.Recalculate()
	if !li.Subtotal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("subtotal expected 100, got %s", li.Subtotal)
	}
	if !li.DiscountAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("discount expected 10, got %s", li.DiscountAmount)
	}
	if !li.Total.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("total expected 90, got %s", li.Total)
	}
	if li.AtomicUnits() != 20 {
		t.Fatalf("atomic units expected 20, got %d", li.AtomicUnits())
	}
}

func TestBillRecalculate_WithTax(t *testing.T) {
	b := NewBill(time.Now())
	a := BillLineItem{UnitPrice: decimal.NewFromInt(5), Quantity: 5, QuantityType: QuantityUnits, DiscountPercentage: decimal.Zero}
	a.Recalculate()
	c := BillLineItem{UnitPrice: decimal.NewFromInt(50), Quantity: 2, QuantityType: QuantityBoxes, UnitsPerBox: 10, DiscountPercentage: decimal.NewFromInt(10)}
	c.Recalculate()
	b.Items = append(b.Items, a, c)

	b.Recalculate(decimal.Zero)
	if !b.Subtotal.Equal(decimal.NewFromInt(125)) || !b.Discount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("aggregates wrong: %s %s", b.Subtotal, b.Discount)
	}
	if !b.Tax.IsZero() || !b.GrandTotal.Equal(decimal.NewFromInt(115)) {
		t.Fatalf("grand total expected 115, got %s (tax %s)", b.GrandTotal, b.Tax)
	}

	b.Recalculate(decimal.NewFromInt(10))
	if !b.Tax.Equal(decimal.RequireFromString("11.5")) {
		t.Fatalf("tax expected 11.5, got %s", b.Tax)
	}
	if !b.GrandTotal.Equal(b.Subtotal.Sub(b.Discount).Add(b.Tax)) {
		t.Fatalf("grand total inconsistent")
	}
}

func TestMedicineStatus(t *testing.T) {
	cases := []struct {
		qty, threshold int64
		want           StockStatus
	}{
		{0, 10, StockOut},
		{10, 10, StockLow},
		{11, 10, StockIn},
		{50, 0, StockLow},
		{51, 0, StockIn},
	}
	for _, c := range cases {
		m := Medicine{Quantity: c.qty, LowStockThreshold: c.threshold}
		if got := m.Status(); got != c.want {
			t.Fatalf("qty %d threshold %d: expected %s, got %s", c.qty, c.threshold, c.want, got)
		}
	}
}

func TestPricingFallback(t *testing.T) {
	p := Pricing{
		General:             TierPrice{SellingPrice: decimal.NewFromInt(100), DiscountPercentage: decimal.Zero},
		Doctor:              TierPrice{DiscountPercentage: decimal.NewFromInt(15)},
		MedicalProfessional: TierPrice{SellingPrice: decimal.NewFromInt(90), DiscountPercentage: decimal.NewFromInt(10)},
	}
	if got := p.For(TierDoctor); !got.SellingPrice.Equal(decimal.NewFromInt(100)) || !got.DiscountPercentage.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("doctor fallback wrong: %+v", got)
	}
	if got := p.For(TierMedicalProfessional); !got.SellingPrice.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("medical professional price wrong: %+v", got)
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	soon := now.AddDate(0, 2, 0)
	later := now.AddDate(1, 0, 0)
	if !(Medicine{ExpiryDate: &soon}).ExpiresWithin(now, 3) {
		t.Fatalf("expected near expiry")
	}
	if (Medicine{ExpiryDate: &later}).ExpiresWithin(now, 3) {
		t.Fatalf("expected not near expiry")
	}
	if (Medicine{}).ExpiresWithin(now, 3) {
		t.Fatalf("no expiry date must not be flagged")
	}
}
