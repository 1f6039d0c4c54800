package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pharmpos/internal/domain"
)

func TestMemoryStore_MedicineCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	m := domain.Medicine{Name: "Amoxicillin", UnitsPerBox: 10, Quantity: 100}
	if err := store.Create(ctx, &m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("no id")
	}

	got, err := store.GetByID(ctx, m.ID)
	if err != nil || got.ID != m.ID {
		t.Fatalf("get: %v", err)
	}

	m.Quantity = 120
	if err := store.Update(ctx, &m); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := store.Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetByID(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_DeductRestore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := domain.Medicine{Name: "A", UnitsPerBox: 10, Quantity: 100}
	if err := store.Create(ctx, &m); err != nil {
		t.Fatal(err)
	}

	if err := store.Deduct(ctx, m.ID, 5); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	got, _ := store.GetByID(ctx, m.ID)
	if got.Quantity != 95 {
		t.Fatalf("expected 95, got %d", got.Quantity)
	}

	// over-deduction is rejected, never clamped
	if err := store.Deduct(ctx, m.ID, 96); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	got, _ = store.GetByID(ctx, m.ID)
	if got.Quantity != 95 {
		t.Fatalf("rejected deduct mutated stock: %d", got.Quantity)
	}

	if err := store.Restore(ctx, m.ID, 5); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, _ = store.GetByID(ctx, m.ID)
	if got.Quantity != 100 {
		t.Fatalf("expected 100, got %d", got.Quantity)
	}

	if err := store.Deduct(ctx, m.ID, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if err := store.Restore(ctx, 999, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_ConcurrentDeductNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := domain.Medicine{Name: "A", UnitsPerBox: 1, Quantity: 50}
	if err := store.Create(ctx, &m); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Deduct(ctx, m.ID, 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := store.GetByID(ctx, m.ID)
	if ok != 50 || got.Quantity != 0 {
		t.Fatalf("expected 50 deductions and zero stock, got %d and %d", ok, got.Quantity)
	}
}

func TestList_Filtering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	add := func(n string, qty int64) {
		m := domain.Medicine{Name: n, UnitsPerBox: 1, Quantity: qty}
		if err := store.Create(ctx, &m); err != nil {
			t.Fatal(err)
		}
	}
	add("Aspirin", 10)
	add("Paracetamol", 0)
	add("Ibuprofen", 5)

	list, _ := store.List(ctx, MedicineFilter{NameSubstring: "in"})
	if len(list) != 2 {
		t.Fatalf("name filter expected 2, got %d", len(list))
	}
	if list[0].Name != "Aspirin" || list[1].Name != "Ibuprofen" {
		t.Fatalf("expected id order, got %v", list)
	}

	list, _ = store.List(ctx, MedicineFilter{InStockOnly: true})
	for _, m := range list {
		if m.Quantity <= 0 {
			t.Fatalf("in stock filter fail")
		}
	}
}

func TestMemoryBills(t *testing.T) {
	ctx := context.Background()
	bills := NewMemoryBills()
	now := time.Now().UTC()

	b1 := domain.SavedBill{ID: 2, SavedAt: now, Bill: domain.NewBill(now)}
	b2 := domain.SavedBill{ID: 1, SavedAt: now.Add(time.Minute), Bill: domain.NewBill(now)}
	if err := bills.Save(ctx, &b2); err != nil {
		t.Fatal(err)
	}
	if err := bills.Save(ctx, &b1); err != nil {
		t.Fatal(err)
	}

	list, _ := bills.List(ctx)
	if len(list) != 2 || list[0].ID != 2 {
		t.Fatalf("expected oldest first, got %v", list)
	}

	if err := bills.Delete(ctx, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := bills.GetByID(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := bills.Delete(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
