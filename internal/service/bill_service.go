package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pharmpos/internal/domain"
	"pharmpos/internal/metrics"
	"pharmpos/internal/repository"
	"pharmpos/internal/units"
)

var (
	ErrNoSelection = errors.New("no medicine selected")
	ErrOutOfStock  = errors.New("medicine is out of stock")
	ErrEmptyBill   = errors.New("cannot save empty bill")
)

// StockPolicy decides how the ledger follows edits that do not add or remove a line
type StockPolicy struct {
	// AdjustOnQuantityChange deducts or restores the delta when a line's quantity is edited.
	AdjustOnQuantityChange bool
	// RestoreOnClear returns the stock of uncommitted lines when the bill is discarded.
	RestoreOnClear bool
}

func DefaultStockPolicy() StockPolicy {
	return StockPolicy{AdjustOnQuantityChange: true, RestoreOnClear: true}
}

// BillOptions configures a BillService
type BillOptions struct {
	// TaxRate is a flat percentage of the discounted subtotal.
	TaxRate decimal.Decimal
	Policy  StockPolicy
	// NodeID seeds the snowflake generator for saved bill ids (0..1023).
	NodeID  int64
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// AddItemRequest describes one add-to-bill action. UnitQuantity wins when both
// quantities are set. A nil price or discount falls back to the selected
// medicine's price list for the bill's customer tier.
type AddItemRequest struct {
	UnitQuantity       int64            `json:"unit_quantity"`
	BoxQuantity        int64            `json:"box_quantity"`
	SellingPrice       *decimal.Decimal `json:"selling_price,omitempty"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
}

// BillService ведёт единственный активный чек, выбор лекарства и сохранённые чеки.
// Все мутации сериализуются mu; склад меняется только через StockLedger.
type BillService struct {
	catalog repository.Catalog
	bills   repository.BillRepository
	taxRate decimal.Decimal
	policy  StockPolicy
	node    *snowflake.Node
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	current   domain.Bill
	selection *domain.Medicine
}

func NewBillService(catalog repository.Catalog, bills repository.BillRepository, opts BillOptions) (*BillService, error) {
	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("bill id generator: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &BillService{
		catalog: catalog,
		bills:   bills,
		taxRate: opts.TaxRate,
		policy:  opts.Policy,
		node:    node,
		metrics: opts.Metrics,
		now:     now,
		current: domain.NewBill(now()),
	}, nil
}

// Current returns a copy of the active bill.
func (s *BillService) Current() domain.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Select makes id the medicine the next AddItem applies to.
func (s *BillService) Select(ctx context.Context, id int64) (*domain.Medicine, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	m, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Quantity <= 0 {
		s.metrics.Reject("select")
		return nil, fmt.Errorf("%w: %s", ErrOutOfStock, m.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sel := *m
	s.selection = &sel
	return m, nil
}

// Selection returns the selected medicine, or nil.
func (s *BillService) Selection() *domain.Medicine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return nil
	}
	cp := *s.selection
	return &cp
}

func (s *BillService) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = nil
}

// SetCustomer updates the customer block. Lines already on the bill keep their prices.
func (s *BillService) SetCustomer(name, phone string, tier domain.CustomerTier) (domain.Bill, error) {
	if tier == "" {
		tier = domain.TierGeneral
	}
	if !tier.Valid() {
		return domain.Bill{}, fmt.Errorf("%w: unknown customer type %q", ErrInvalidInput, tier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Customer = domain.Customer{Name: name, Phone: phone, Tier: tier}
	return s.current.Clone(), nil
}

// AddItem deducts the requested stock and appends a new line for the selected
// medicine. Lines are never merged. On success the selection is cleared.
func (s *BillService) AddItem(ctx context.Context, req AddItemRequest) (domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selection == nil {
		s.metrics.Reject("add_item")
		return domain.Bill{}, ErrNoSelection
	}
	if req.UnitQuantity < 0 || req.BoxQuantity < 0 {
		return domain.Bill{}, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidInput)
	}
	qty, qtyType := req.UnitQuantity, domain.QuantityUnits
	if qty == 0 {
		qty, qtyType = req.BoxQuantity, domain.QuantityBoxes
	}
	if qty == 0 {
		s.metrics.Reject("add_item")
		return domain.Bill{}, fmt.Errorf("%w: enter a unit or box quantity", repository.ErrInvalidQuantity)
	}

	// stock may have moved since selection
	med, err := s.catalog.GetByID(ctx, s.selection.ID)
	if err != nil {
		return domain.Bill{}, err
	}
	tierPrice := med.Pricing.For(s.current.Customer.Tier)
	boxPrice := tierPrice.SellingPrice
	if req.SellingPrice != nil {
		boxPrice = *req.SellingPrice
	}
	discount := tierPrice.DiscountPercentage
	if req.DiscountPercentage != nil {
		discount = *req.DiscountPercentage
	}
	if boxPrice.IsNegative() {
		return domain.Bill{}, fmt.Errorf("%w: selling price cannot be negative", ErrInvalidInput)
	}
	if !validPercentage(discount) {
		return domain.Bill{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidInput)
	}

	atomic, err := lineUnits(qty, qtyType, med.UnitsPerBox)
	if err != nil {
		s.metrics.Reject("add_item")
		return domain.Bill{}, err
	}
	unitPrice := boxPrice
	if qtyType == domain.QuantityUnits {
		unitPrice = units.UnitPrice(boxPrice, med.UnitsPerBox)
	}
	if atomic > med.Quantity {
		s.metrics.Reject("add_item")
		return domain.Bill{}, fmt.Errorf("%w: available %d units, requested %d units", repository.ErrInsufficientStock, med.Quantity, atomic)
	}
	if err := s.catalog.Deduct(ctx, med.ID, atomic); err != nil {
		s.metrics.Reject("add_item")
		return domain.Bill{}, err
	}

	li := domain.BillLineItem{
		ItemID:             uuid.NewString(),
		MedicineID:         med.ID,
		Name:               med.Name,
		GenericName:        med.GenericName,
		CompanyName:        med.CompanyName,
		UnitPrice:          unitPrice,
		Quantity:           qty,
		QuantityType:       qtyType,
		UnitsPerBox:        med.UnitsPerBox,
		DiscountPercentage: discount,
	}
	li.Recalculate()
	s.current.Items = append(s.current.Items, li)
	s.current.Recalculate(s.taxRate)
	s.selection = nil
	s.metrics.LineAdded(atomic)
	log.Printf("[bill] added %d %s of %s (medicine %d), %d units deducted", qty, qtyType, med.Name, med.ID, atomic)
	return s.current.Clone(), nil
}

// RemoveItem returns the line's stock to the ledger and drops it from the bill.
func (s *BillService) RemoveItem(ctx context.Context, itemID string) (domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(itemID)
	if idx < 0 {
		return domain.Bill{}, fmt.Errorf("bill item %s: %w", itemID, repository.ErrNotFound)
	}
	if err := s.restoreLine(ctx, s.current.Items[idx], s.current.Items[idx].AtomicUnits()); err != nil {
		return domain.Bill{}, err
	}
	s.removeAt(idx)
	return s.current.Clone(), nil
}

// UpdateQuantity sets a line's quantity; qty <= 0 removes the line. With
// AdjustOnQuantityChange the ledger follows the change in atomic units and an
// increase beyond stock on hand rejects the edit.
func (s *BillService) UpdateQuantity(ctx context.Context, itemID string, qty int64) (domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(itemID)
	if idx < 0 {
		return domain.Bill{}, fmt.Errorf("bill item %s: %w", itemID, repository.ErrNotFound)
	}
	li := s.current.Items[idx]
	if qty <= 0 {
		if err := s.restoreLine(ctx, li, li.AtomicUnits()); err != nil {
			return domain.Bill{}, err
		}
		s.removeAt(idx)
		return s.current.Clone(), nil
	}

	updated := li
	updated.Quantity = qty
	newUnits, err := lineUnits(qty, li.QuantityType, li.UnitsPerBox)
	if err != nil {
		s.metrics.Reject("update_quantity")
		return domain.Bill{}, err
	}
	if s.policy.AdjustOnQuantityChange && !li.Committed {
		delta := newUnits - li.AtomicUnits()
		switch {
		case delta > 0:
			if err := s.catalog.Deduct(ctx, li.MedicineID, delta); err != nil {
				s.metrics.Reject("update_quantity")
				return domain.Bill{}, err
			}
			s.metrics.StockDeducted(delta)
		case delta < 0:
			if err := s.restoreLine(ctx, li, -delta); err != nil {
				return domain.Bill{}, err
			}
		}
	}
	updated.Recalculate()
	s.current.Items[idx] = updated
	s.current.Recalculate(s.taxRate)
	return s.current.Clone(), nil
}

// UpdateDiscount changes a line's discount percentage. Stock is untouched.
func (s *BillService) UpdateDiscount(ctx context.Context, itemID string, pct decimal.Decimal) (domain.Bill, error) {
	if !validPercentage(pct) {
		return domain.Bill{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(itemID)
	if idx < 0 {
		return domain.Bill{}, fmt.Errorf("bill item %s: %w", itemID, repository.ErrNotFound)
	}
	li := &s.current.Items[idx]
	li.DiscountPercentage = pct
	li.Recalculate()
	s.current.Recalculate(s.taxRate)
	return s.current.Clone(), nil
}

// Save snapshots the active bill under a new id and starts a fresh bill. Stock
// stays deducted: the sale is complete.
func (s *BillService) Save(ctx context.Context) (*domain.SavedBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.current.Items) == 0 {
		s.metrics.Reject("save")
		return nil, ErrEmptyBill
	}
	now := s.now()
	snapshot := s.current.Clone()
	snapshot.State = domain.BillSaved
	for i := range snapshot.Items {
		snapshot.Items[i].Committed = true
	}
	sb := domain.SavedBill{ID: s.node.Generate().Int64(), SavedAt: now, Bill: snapshot}
	if err := s.bills.Save(ctx, &sb); err != nil {
		return nil, err
	}
	s.current = domain.NewBill(now)
	s.selection = nil
	s.metrics.BillSaved()
	log.Printf("[bill] saved bill %d with %d items, grand total %s", sb.ID, len(sb.Bill.Items), sb.Bill.GrandTotal.StringFixed(2))
	return &sb, nil
}

// Load replaces the active bill with a copy of saved bill id. The bill being
// replaced is discarded as Clear would. Loaded lines are committed and never
// return stock.
func (s *BillService) Load(ctx context.Context, id int64) (domain.Bill, error) {
	sb, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return domain.Bill{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discard(ctx)
	b := sb.Bill.Clone()
	b.State = domain.BillActive
	b.SourceBillID = sb.ID
	for i := range b.Items {
		b.Items[i].Committed = true
	}
	s.current = b
	log.Printf("[bill] loaded saved bill %d", sb.ID)
	return s.current.Clone(), nil
}

// Clear discards the active bill and starts a fresh one. With RestoreOnClear
// the stock of uncommitted lines goes back to the ledger.
func (s *BillService) Clear(ctx context.Context) domain.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discard(ctx)
	s.current = domain.NewBill(s.now())
	return s.current.Clone()
}

// DeleteSaved removes a saved bill. The ledger is not touched.
func (s *BillService) DeleteSaved(ctx context.Context, id int64) error {
	return s.bills.Delete(ctx, id)
}

func (s *BillService) ListSaved(ctx context.Context) ([]domain.SavedBill, error) {
	return s.bills.List(ctx)
}

func (s *BillService) GetSaved(ctx context.Context, id int64) (*domain.SavedBill, error) {
	return s.bills.GetByID(ctx, id)
}

// discard drops the active bill and selection. Caller holds mu.
func (s *BillService) discard(ctx context.Context) {
	if s.policy.RestoreOnClear {
		for _, li := range s.current.Items {
			if err := s.restoreLine(ctx, li, li.AtomicUnits()); err != nil {
				log.Printf("[bill] restore of line %s failed: %v", li.ItemID, err)
			}
		}
	}
	s.selection = nil
	s.metrics.BillCleared()
}

// restoreLine returns n atomic units of li's medicine to the ledger. Committed
// lines return nothing. A medicine deleted from the catalog is skipped.
func (s *BillService) restoreLine(ctx context.Context, li domain.BillLineItem, n int64) error {
	if li.Committed {
		return nil
	}
	if li.QuantityType == domain.QuantityBoxes && li.UnitsPerBox <= 0 {
		med, err := s.catalog.GetByID(ctx, li.MedicineID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Printf("[bill] medicine %d not found, skipping restore", li.MedicineID)
				return nil
			}
			return err
		}
		if n, err = lineUnits(li.Quantity, li.QuantityType, med.UnitsPerBox); err != nil {
			return err
		}
	}
	if n <= 0 {
		return nil
	}
	if err := s.catalog.Restore(ctx, li.MedicineID, n); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[bill] medicine %d not found, skipping restore of %d units", li.MedicineID, n)
			return nil
		}
		return err
	}
	s.metrics.StockRestored(n)
	return nil
}

// lineUnits converts a line quantity to atomic units.
func lineUnits(qty int64, qtyType domain.QuantityType, unitsPerBox int64) (int64, error) {
	if qtyType != domain.QuantityBoxes {
		return qty, nil
	}
	n, err := units.BoxesToUnits(qty, unitsPerBox)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", repository.ErrInvalidQuantity, err)
	}
	return n, nil
}

func (s *BillService) indexOf(itemID string) int {
	for i, it := range s.current.Items {
		if it.ItemID == itemID {
			return i
		}
	}
	return -1
}

// removeAt drops line idx and recomputes the aggregates. Caller holds mu.
func (s *BillService) removeAt(idx int) {
	s.current.Items = append(s.current.Items[:idx], s.current.Items[idx+1:]...)
	s.current.Recalculate(s.taxRate)
	s.metrics.LineRemoved()
}
