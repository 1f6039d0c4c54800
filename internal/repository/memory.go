package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pharmpos/internal/domain"
)

// MemoryStore in-memory каталог лекарств и складской учёт
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	medicinesByID map[int64]domain.Medicine
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:        1,
		medicinesByID: make(map[int64]domain.Medicine),
	}
}

// Ensure interfaces
var _ Catalog = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, med *domain.Medicine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	med.ID = m.nextID
	m.nextID++
	m.medicinesByID[med.ID] = *med
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	med, ok := m.medicinesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := med
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, med *domain.Medicine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.medicinesByID[med.ID]; !ok {
		return ErrNotFound
	}
	m.medicinesByID[med.ID] = *med
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.medicinesByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.medicinesByID, id)
	return nil
}

// List returns matching medicines ordered by id.
func (m *MemoryStore) List(ctx context.Context, f MedicineFilter) ([]domain.Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Medicine, 0, len(m.medicinesByID))
	for _, med := range m.medicinesByID {
		if !matchesFilter(med, f) {
			continue
		}
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Deduct списывает units со склада. Проверка и списание выполняются под одной блокировкой.
func (m *MemoryStore) Deduct(ctx context.Context, medicineID, units int64) error {
	if units <= 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.medicinesByID[medicineID]
	if !ok {
		return ErrNotFound
	}
	if med.Quantity < units {
		return fmt.Errorf("%w: available %d units, requested %d units", ErrInsufficientStock, med.Quantity, units)
	}
	med.Quantity -= units
	m.medicinesByID[medicineID] = med
	return nil
}

// Restore возвращает units на склад
func (m *MemoryStore) Restore(ctx context.Context, medicineID, units int64) error {
	if units <= 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.medicinesByID[medicineID]
	if !ok {
		return ErrNotFound
	}
	med.Quantity += units
	m.medicinesByID[medicineID] = med
	return nil
}

// MemoryBills хранилище сохранённых чеков в памяти
type MemoryBills struct {
	mu      sync.RWMutex
	billsBy map[int64]domain.SavedBill
}

func NewMemoryBills() *MemoryBills {
	return &MemoryBills{billsBy: make(map[int64]domain.SavedBill)}
}

var _ BillRepository = (*MemoryBills)(nil)

func (mb *MemoryBills) Save(ctx context.Context, b *domain.SavedBill) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cp := *b
	cp.Bill = b.Bill.Clone()
	mb.billsBy[b.ID] = cp
	return nil
}

func (mb *MemoryBills) GetByID(ctx context.Context, id int64) (*domain.SavedBill, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	b, ok := mb.billsBy[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := b
	cp.Bill = b.Bill.Clone()
	return &cp, nil
}

// List returns saved bills oldest first.
func (mb *MemoryBills) List(ctx context.Context) ([]domain.SavedBill, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	out := make([]domain.SavedBill, 0, len(mb.billsBy))
	for _, b := range mb.billsBy {
		cp := b
		cp.Bill = b.Bill.Clone()
		out = append(out, cp)
	}
	sortSavedBills(out)
	return out, nil
}

func (mb *MemoryBills) Delete(ctx context.Context, id int64) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if _, ok := mb.billsBy[id]; !ok {
		return ErrNotFound
	}
	delete(mb.billsBy, id)
	return nil
}

func sortSavedBills(bills []domain.SavedBill) {
	sort.Slice(bills, func(i, j int) bool {
		if bills[i].SavedAt.Equal(bills[j].SavedAt) {
			return bills[i].ID < bills[j].ID
		}
		return bills[i].SavedAt.Before(bills[j].SavedAt)
	})
}
