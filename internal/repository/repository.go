package repository

import (
	"context"
	"errors"
	"strings"

	"pharmpos/internal/domain"
)

var (
	// ErrNotFound возвращается, когда сущность не найдена
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when a deduction exceeds the stock on hand
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity is returned for non-positive ledger movements
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// MedicineFilter параметры фильтрации списка лекарств
type MedicineFilter struct {
	NameSubstring string
	InStockOnly   bool
}

// MedicineRepository интерфейс репозитория каталога
type MedicineRepository interface {
	Create(ctx context.Context, m *domain.Medicine) error
	GetByID(ctx context.Context, id int64) (*domain.Medicine, error)
	Update(ctx context.Context, m *domain.Medicine) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f MedicineFilter) ([]domain.Medicine, error)
}

// StockLedger is the only path that moves a medicine's quantity during billing.
// Deduct never clamps: asking for more than is on hand fails with
// ErrInsufficientStock and changes nothing.
type StockLedger interface {
	Deduct(ctx context.Context, medicineID, units int64) error
	Restore(ctx context.Context, medicineID, units int64) error
}

// Catalog is a repository that also owns the stock ledger
type Catalog interface {
	MedicineRepository
	StockLedger
}

// BillRepository хранилище сохранённых чеков по id, последняя запись побеждает.
type BillRepository interface {
	Save(ctx context.Context, b *domain.SavedBill) error
	GetByID(ctx context.Context, id int64) (*domain.SavedBill, error)
	List(ctx context.Context) ([]domain.SavedBill, error)
	Delete(ctx context.Context, id int64) error
}

func matchesFilter(m domain.Medicine, f MedicineFilter) bool {
	if f.InStockOnly && m.Quantity <= 0 {
		return false
	}
	return containsIgnoreCase(m.Name, f.NameSubstring)
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
