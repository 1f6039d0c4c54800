package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pharmpos/internal/domain"
	"pharmpos/internal/metrics"
	"pharmpos/internal/repository"
	"pharmpos/internal/search"
	"pharmpos/internal/units"
)

// MaxUnitsPerBox bounds the box factor a medicine may declare
const MaxUnitsPerBox = 99999

var ErrInvalidInput = errors.New("invalid input")

// StockDefinition is the operator-facing stock entry. Source names the field
// typed by hand; the other one is derived from it.
type StockDefinition struct {
	Units  int64                  `json:"units"`
	Boxes  int64                  `json:"boxes"`
	Source units.DerivationSource `json:"source"`
}

// MedicineService инкапсулирует бизнес-логику каталога лекарств
type MedicineService struct {
	repo     repository.MedicineRepository
	searcher *search.Searcher
	metrics  *metrics.Metrics
}

func NewMedicineService(repo repository.MedicineRepository, searcher *search.Searcher, m *metrics.Metrics) *MedicineService {
	if searcher == nil {
		searcher = search.NewSearcher(search.DefaultLimit)
	}
	return &MedicineService{repo: repo, searcher: searcher, metrics: m}
}

// Create validates m, reconciles stock into m.Quantity and stores it.
func (s *MedicineService) Create(ctx context.Context, m domain.Medicine, stock StockDefinition) (*domain.Medicine, error) {
	if stock.Source == units.SourceNone && stock.Units <= 0 && stock.Boxes <= 0 {
		return nil, fmt.Errorf("%w: either stock units or stock boxes is required", ErrInvalidInput)
	}
	cp := m
	cp.ID = 0
	if err := normalizeMedicine(&cp); err != nil {
		return nil, err
	}
	qty, err := reconcileQuantity(stock, cp.UnitsPerBox)
	if err != nil {
		return nil, err
	}
	cp.Quantity = qty
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MedicineService) GetByID(ctx context.Context, id int64) (*domain.Medicine, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

// Update replaces the catalog fields of m. A nil stock keeps the quantity on
// hand, so an edit never races the ledger unless stock is given explicitly.
func (s *MedicineService) Update(ctx context.Context, m domain.Medicine, stock *StockDefinition) (*domain.Medicine, error) {
	if m.ID <= 0 {
		return nil, ErrInvalidInput
	}
	existing, err := s.repo.GetByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	cp := m
	if err := normalizeMedicine(&cp); err != nil {
		return nil, err
	}
	cp.Quantity = existing.Quantity
	if stock != nil {
		qty, err := reconcileQuantity(*stock, cp.UnitsPerBox)
		if err != nil {
			return nil, err
		}
		cp.Quantity = qty
	}
	if err := s.repo.Update(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MedicineService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	return s.repo.Delete(ctx, id)
}

func (s *MedicineService) List(ctx context.Context, f repository.MedicineFilter) ([]domain.Medicine, error) {
	return s.repo.List(ctx, f)
}

// Search ranks the whole catalog against query.
func (s *MedicineService) Search(ctx context.Context, query string) ([]search.Result, error) {
	all, err := s.repo.List(ctx, repository.MedicineFilter{})
	if err != nil {
		return nil, err
	}
	s.metrics.Searched()
	return s.searcher.Search(query, all), nil
}

// Reconcile re-derives the stock field that was not typed by hand.
func (s *MedicineService) Reconcile(stock StockDefinition, unitsPerBox int64) (units.StockFields, error) {
	if !stock.Source.Valid() {
		return units.StockFields{}, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, stock.Source)
	}
	f, err := units.Reconcile(units.StockFields{Units: stock.Units, Boxes: stock.Boxes}, unitsPerBox, stock.Source)
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return f, nil
}

func reconcileQuantity(stock StockDefinition, unitsPerBox int64) (int64, error) {
	if !stock.Source.Valid() {
		return 0, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, stock.Source)
	}
	if stock.Units < 0 || stock.Boxes < 0 {
		return 0, fmt.Errorf("%w: stock cannot be negative", ErrInvalidInput)
	}
	source := stock.Source
	// only boxes typed, nothing marked: derive from boxes
	if source == units.SourceNone && stock.Units == 0 && stock.Boxes > 0 {
		source = units.FromBoxes
	}
	f, err := units.Reconcile(units.StockFields{Units: stock.Units, Boxes: stock.Boxes}, unitsPerBox, source)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return f.Units, nil
}

func normalizeMedicine(m *domain.Medicine) error {
	m.Name = strings.TrimSpace(m.Name)
	m.GenericName = strings.TrimSpace(m.GenericName)
	m.CompanyName = strings.TrimSpace(m.CompanyName)
	m.Type = strings.TrimSpace(m.Type)

	switch {
	case m.Name == "":
		return fmt.Errorf("%w: medicine name is required", ErrInvalidInput)
	case m.Type == "":
		return fmt.Errorf("%w: medicine type is required", ErrInvalidInput)
	case m.UnitsPerBox < 1 || m.UnitsPerBox > MaxUnitsPerBox:
		return fmt.Errorf("%w: units per box must be between 1 and %d", ErrInvalidInput, MaxUnitsPerBox)
	case !m.Pricing.General.SellingPrice.IsPositive():
		return fmt.Errorf("%w: customer selling price must be greater than 0", ErrInvalidInput)
	case m.PurchasePrice.IsNegative():
		return fmt.Errorf("%w: purchase price cannot be negative", ErrInvalidInput)
	case m.LowStockThreshold < 0:
		return fmt.Errorf("%w: low stock threshold cannot be negative", ErrInvalidInput)
	}
	tiers := []struct {
		name  string
		price domain.TierPrice
	}{
		{"customer", m.Pricing.General},
		{"doctor", m.Pricing.Doctor},
		{"medical professional", m.Pricing.MedicalProfessional},
	}
	for _, t := range tiers {
		if t.price.SellingPrice.IsNegative() {
			return fmt.Errorf("%w: %s selling price cannot be negative", ErrInvalidInput, t.name)
		}
		if !validPercentage(t.price.DiscountPercentage) {
			return fmt.Errorf("%w: %s discount must be between 0 and 100", ErrInvalidInput, t.name)
		}
	}
	if m.LowStockThreshold == 0 {
		m.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	return nil
}

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(decimal.NewFromInt(100))
}
