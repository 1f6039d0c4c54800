package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"pharmpos/internal/domain"
	"pharmpos/internal/repository"
	"pharmpos/internal/units"
)

func setupMS(t *testing.T) *MedicineService {
	t.Helper()
	store := repository.NewMemoryStore()
	return NewMedicineService(store, nil, nil)
}

func validMedicine(name string) domain.Medicine {
	return domain.Medicine{
		Name:        name,
		GenericName: "Generic " + name,
		CompanyName: "Acme",
		Type:        "Tablet",
		UnitsPerBox: 10,
		Pricing: domain.Pricing{
			General: domain.TierPrice{SellingPrice: decimal.NewFromInt(50), DiscountPercentage: decimal.Zero},
		},
	}
}

func TestMedicine_Create_Valid(t *testing.T) {
	ctx := context.Background()
	ms := setupMS(t)
	m, err := ms.Create(ctx, validMedicine("Aspirin"), StockDefinition{Boxes: 3, Source: units.FromBoxes})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("expected id assigned")
	}
	if m.Quantity != 30 {
		t.Fatalf("expected 30 units from 3 boxes, got %d", m.Quantity)
	}
	if m.LowStockThreshold != domain.DefaultLowStockThreshold {
		t.Fatalf("expected default threshold, got %d", m.LowStockThreshold)
	}
}

func TestMedicine_Create_BoxesWithoutSource(t *testing.T) {
	ctx := context.Background()
	ms := setupMS(t)
	m, err := ms.Create(ctx, validMedicine("Aspirin"), StockDefinition{Boxes: 2})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.Quantity != 20 {
		t.Fatalf("expected 20, got %d", m.Quantity)
	}
}

func TestMedicine_Create_Invalid(t *testing.T) {
	ctx := context.Background()
	ms := setupMS(t)
	stock := StockDefinition{Units: 10, Source: units.FromUnits}

	cases := map[string]func(m *domain.Medicine){
		"no name":        func(m *domain.Medicine) { m.Name = "  " },
		"no type":        func(m *domain.Medicine) { m.Type = "" },
		"zero factor":    func(m *domain.Medicine) { m.UnitsPerBox = 0 },
		"huge factor":    func(m *domain.Medicine) { m.UnitsPerBox = MaxUnitsPerBox + 1 },
		"zero price":     func(m *domain.Medicine) { m.Pricing.General.SellingPrice = decimal.Zero },
		"neg doctor":     func(m *domain.Medicine) { m.Pricing.Doctor.SellingPrice = decimal.NewFromInt(-1) },
		"discount > 100": func(m *domain.Medicine) { m.Pricing.General.DiscountPercentage = decimal.NewFromInt(101) },
		"neg threshold":  func(m *domain.Medicine) { m.LowStockThreshold = -1 },
		"neg purchase":   func(m *domain.Medicine) { m.PurchasePrice = decimal.NewFromInt(-5) },
	}
	for name, mutate := range cases {
		m := validMedicine("X")
		mutate(&m)
		if _, err := ms.Create(ctx, m, stock); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}

	if _, err := ms.Create(ctx, validMedicine("X"), StockDefinition{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing stock: expected invalid input, got %v", err)
	}
	if _, err := ms.Create(ctx, validMedicine("X"), StockDefinition{Units: 5, Source: "crates"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad source: expected invalid input, got %v", err)
	}
}

func TestMedicine_StockOverflow(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	ms := NewMedicineService(store, nil, nil)
	huge := StockDefinition{Boxes: math.MaxInt64/2 + 1, Source: units.FromBoxes}

	m := validMedicine("A")
	m.UnitsPerBox = 2
	if _, err := ms.Create(ctx, m, huge); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if list, _ := store.List(ctx, repository.MedicineFilter{}); len(list) != 0 {
		t.Fatalf("overflowing medicine stored: %+v", list)
	}

	created, err := ms.Create(ctx, m, StockDefinition{Boxes: 3, Source: units.FromBoxes})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ms.Update(ctx, *created, &huge); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("update: expected invalid input, got %v", err)
	}
	if got, _ := ms.GetByID(ctx, created.ID); got.Quantity != 6 {
		t.Fatalf("quantity changed on rejected update: %d", got.Quantity)
	}
	if _, err := ms.Reconcile(huge, 2); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("reconcile: expected invalid input, got %v", err)
	}
}

func TestMedicine_Update_Get_Delete(t *testing.T) {
	ctx := context.Background()
	ms := setupMS(t)
	m, _ := ms.Create(ctx, validMedicine("A"), StockDefinition{Units: 15, Source: units.FromUnits})

	// get
	got, err := ms.GetByID(ctx, m.ID)
	if err != nil || got.ID != m.ID {
		t.Fatalf("get failed: %v", err)
	}

	// update keeps quantity when no stock given
	m.Name = "A+"
	m.Pricing.General.SellingPrice = decimal.NewFromInt(60)
	m.Quantity = 999
	up, err := ms.Update(ctx, *m, nil)
	if err != nil {
		t.Fatalf("update err: %v", err)
	}
	if up.Name != "A+" || up.Quantity != 15 {
		t.Fatalf("not updated: %+v", up)
	}

	// update with stock re-derives from the sticky source under the new factor
	m.UnitsPerBox = 5
	up, err = ms.Update(ctx, *m, &StockDefinition{Units: 99, Boxes: 4, Source: units.FromBoxes})
	if err != nil {
		t.Fatalf("update err: %v", err)
	}
	if up.Quantity != 20 {
		t.Fatalf("expected 20, got %d", up.Quantity)
	}

	// delete
	if err := ms.Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete err: %v", err)
	}
	if _, err := ms.GetByID(ctx, m.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := ms.Update(ctx, *m, nil); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestMedicine_Reconcile(t *testing.T) {
	ms := setupMS(t)
	f, err := ms.Reconcile(StockDefinition{Units: 25, Boxes: 0, Source: units.FromUnits}, 10)
	if err != nil || f.Boxes != 2 || f.Units != 25 {
		t.Fatalf("unexpected %+v %v", f, err)
	}
	if _, err := ms.Reconcile(StockDefinition{Units: 25, Source: units.FromUnits}, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestMedicine_Search(t *testing.T) {
	ctx := context.Background()
	ms := setupMS(t)
	stock := StockDefinition{Units: 10, Source: units.FromUnits}
	for _, n := range []string{"Amoxicillin", "Paracetamol", "Ibuprofen"} {
		if _, err := ms.Create(ctx, validMedicine(n), stock); err != nil {
			t.Fatal(err)
		}
	}
	res, err := ms.Search(ctx, "amx")
	if err != nil {
		t.Fatalf("search err: %v", err)
	}
	if len(res) == 0 || res[0].Medicine.Name != "Amoxicillin" {
		t.Fatalf("expected Amoxicillin first, got %+v", res)
	}
}
