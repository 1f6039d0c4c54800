package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold applies when a medicine has no threshold of its own.
const DefaultLowStockThreshold int64 = 50

// CustomerTier selects which price list a bill is charged from
type CustomerTier string

const (
	TierGeneral             CustomerTier = "general"
	TierDoctor              CustomerTier = "doctor"
	TierMedicalProfessional CustomerTier = "medical_professional"
)

// Valid reports whether t is one of the known tiers.
func (t CustomerTier) Valid() bool {
	switch t {
	case TierGeneral, TierDoctor, TierMedicalProfessional:
		return true
	}
	return false
}

// TierPrice is a per-box selling price and the default discount for one tier
type TierPrice struct {
	SellingPrice       decimal.Decimal `json:"selling_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

// Pricing holds the three independent customer price lists
type Pricing struct {
	General             TierPrice `json:"general"`
	Doctor              TierPrice `json:"doctor"`
	MedicalProfessional TierPrice `json:"medical_professional"`
}

// For returns the price list of tier. Doctor and medical professional prices
// fall back to the general price when unset.
func (p Pricing) For(tier CustomerTier) TierPrice {
	var tp TierPrice
	switch tier {
	case TierDoctor:
		tp = p.Doctor
	case TierMedicalProfessional:
		tp = p.MedicalProfessional
	default:
		return p.General
	}
	if tp.SellingPrice.IsZero() {
		tp.SellingPrice = p.General.SellingPrice
	}
	return tp
}

// Medicine is a catalog entry. Quantity is counted in atomic units.
type Medicine struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	GenericName       string          `json:"generic_name"`
	CompanyName       string          `json:"company_name"`
	Type              string          `json:"type"`
	Quantity          int64           `json:"quantity"`
	UnitsPerBox       int64           `json:"units_per_box"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	PurchasePrice     decimal.Decimal `json:"purchase_price"`
	Pricing           Pricing         `json:"pricing"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
}

// StockStatus classifies a medicine's stock level for display
type StockStatus string

const (
	StockOut StockStatus = "out_of_stock"
	StockLow StockStatus = "low_stock"
	StockIn  StockStatus = "in_stock"
)

// Status classifies m against its low stock threshold.
func (m Medicine) Status() StockStatus {
	threshold := m.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	switch {
	case m.Quantity <= 0:
		return StockOut
	case m.Quantity <= threshold:
		return StockLow
	default:
		return StockIn
	}
}

// ExpiresWithin reports whether m expires within the given number of months.
func (m Medicine) ExpiresWithin(now time.Time, months int) bool {
	if m.ExpiryDate == nil {
		return false
	}
	return !m.ExpiryDate.After(now.AddDate(0, months, 0))
}

// QuantityType is the unit a bill line is denominated in
type QuantityType string

const (
	QuantityUnits QuantityType = "units"
	QuantityBoxes QuantityType = "boxes"
)

// BillLineItem is one add-to-bill action. Subtotal, DiscountAmount and Total
// are derived and only ever set by Recalculate.
type BillLineItem struct {
	ItemID             string          `json:"item_id"`
	MedicineID         int64           `json:"medicine_id"`
	Name               string          `json:"name"`
	GenericName        string          `json:"generic_name"`
	CompanyName        string          `json:"company_name"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Quantity           int64           `json:"quantity"`
	QuantityType       QuantityType    `json:"quantity_type"`
	UnitsPerBox        int64           `json:"units_per_box"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	Total              decimal.Decimal `json:"total"`
	// Committed lines belong to a completed sale; their stock is never returned.
	Committed bool `json:"committed"`
}

var hundred = decimal.NewFromInt(100)

// Recalculate derives Subtotal, DiscountAmount and Total.
func (li *BillLineItem) Recalculate() {
	li.Subtotal = li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
	li.DiscountAmount = li.Subtotal.Mul(li.DiscountPercentage).Div(hundred)
	li.Total = li.Subtotal.Sub(li.DiscountAmount)
}

// AtomicUnits is the number of stock units the line represents.
func (li BillLineItem) AtomicUnits() int64 {
	if li.QuantityType == QuantityBoxes {
		return li.Quantity * li.UnitsPerBox
	}
	return li.Quantity
}

// BillState tags where a bill is in its lifecycle
type BillState string

const (
	BillActive BillState = "active"
	BillSaved  BillState = "saved"
)

// Customer is pass-through bill metadata
type Customer struct {
	Name  string       `json:"name"`
	Phone string       `json:"phone"`
	Tier  CustomerTier `json:"tier"`
}

// Bill is the in-progress or snapshotted bill
type Bill struct {
	State      BillState       `json:"state"`
	Customer   Customer        `json:"customer"`
	Date       string          `json:"date"`
	Items      []BillLineItem  `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	// SourceBillID is set when the bill was loaded from a saved bill.
	SourceBillID int64 `json:"source_bill_id,omitempty"`
}

// NewBill returns an empty active bill dated now.
func NewBill(now time.Time) Bill {
	return Bill{
		State:      BillActive,
		Customer:   Customer{Tier: TierGeneral},
		Date:       now.Format("2006-01-02"),
		Items:      []BillLineItem{},
		Subtotal:   decimal.Zero,
		Discount:   decimal.Zero,
		Tax:        decimal.Zero,
		GrandTotal: decimal.Zero,
	}
}

// Recalculate recomputes the aggregates from Items. taxRate is a flat
// percentage applied to the discounted subtotal.
func (b *Bill) Recalculate(taxRate decimal.Decimal) {
	subtotal, discount := decimal.Zero, decimal.Zero
	for _, it := range b.Items {
		subtotal = subtotal.Add(it.Subtotal)
		discount = discount.Add(it.DiscountAmount)
	}
	b.Subtotal = subtotal
	b.Discount = discount
	b.Tax = subtotal.Sub(discount).Mul(taxRate).Div(hundred)
	b.GrandTotal = subtotal.Sub(discount).Add(b.Tax)
}

// Clone returns a deep copy of b.
func (b Bill) Clone() Bill {
	cp := b
	cp.Items = make([]BillLineItem, len(b.Items))
	copy(cp.Items, b.Items)
	return cp
}

// SavedBill is an immutable snapshot of a bill
type SavedBill struct {
	ID      int64     `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	Bill    Bill      `json:"bill"`
}
