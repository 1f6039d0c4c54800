package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pharmpos/internal/domain"
)

const dateLayout = "2006-01-02"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS medicines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            generic_name TEXT NOT NULL DEFAULT '',
            company_name TEXT NOT NULL DEFAULT '',
            type TEXT NOT NULL DEFAULT '',
            quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
            units_per_box INTEGER NOT NULL DEFAULT 1 CHECK (units_per_box > 0),
            low_stock_threshold INTEGER NOT NULL DEFAULT 0,
            purchase_price TEXT NOT NULL DEFAULT '0',
            general_price TEXT NOT NULL DEFAULT '0',
            general_discount TEXT NOT NULL DEFAULT '0',
            doctor_price TEXT NOT NULL DEFAULT '0',
            doctor_discount TEXT NOT NULL DEFAULT '0',
            professional_price TEXT NOT NULL DEFAULT '0',
            professional_discount TEXT NOT NULL DEFAULT '0',
            expiry_date TEXT
        );`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_name ON medicines(name);`,
}

// SQLiteCatalog каталог и складской учёт поверх SQLite
type SQLiteCatalog struct {
	db *sqlx.DB
}

var _ Catalog = (*SQLiteCatalog)(nil)

// OpenSQLite connects to dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLiteCatalog, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	c := &SQLiteCatalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCatalog) migrate() error {
	for _, stmt := range sqliteSchema {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database.
func (c *SQLiteCatalog) Close() error { return c.db.Close() }

type medicineRow struct {
	ID                   int64           `db:"id"`
	Name                 string          `db:"name"`
	GenericName          string          `db:"generic_name"`
	CompanyName          string          `db:"company_name"`
	Type                 string          `db:"type"`
	Quantity             int64           `db:"quantity"`
	UnitsPerBox          int64           `db:"units_per_box"`
	LowStockThreshold    int64           `db:"low_stock_threshold"`
	PurchasePrice        decimal.Decimal `db:"purchase_price"`
	GeneralPrice         decimal.Decimal `db:"general_price"`
	GeneralDiscount      decimal.Decimal `db:"general_discount"`
	DoctorPrice          decimal.Decimal `db:"doctor_price"`
	DoctorDiscount       decimal.Decimal `db:"doctor_discount"`
	ProfessionalPrice    decimal.Decimal `db:"professional_price"`
	ProfessionalDiscount decimal.Decimal `db:"professional_discount"`
	ExpiryDate           sql.NullString  `db:"expiry_date"`
}

func toRow(m *domain.Medicine) medicineRow {
	r := medicineRow{
		ID:                   m.ID,
		Name:                 m.Name,
		GenericName:          m.GenericName,
		CompanyName:          m.CompanyName,
		Type:                 m.Type,
		Quantity:             m.Quantity,
		UnitsPerBox:          m.UnitsPerBox,
		LowStockThreshold:    m.LowStockThreshold,
		PurchasePrice:        m.PurchasePrice,
		GeneralPrice:         m.Pricing.General.SellingPrice,
		GeneralDiscount:      m.Pricing.General.DiscountPercentage,
		DoctorPrice:          m.Pricing.Doctor.SellingPrice,
		DoctorDiscount:       m.Pricing.Doctor.DiscountPercentage,
		ProfessionalPrice:    m.Pricing.MedicalProfessional.SellingPrice,
		ProfessionalDiscount: m.Pricing.MedicalProfessional.DiscountPercentage,
	}
	if m.ExpiryDate != nil {
		r.ExpiryDate = sql.NullString{String: m.ExpiryDate.Format(dateLayout), Valid: true}
	}
	return r
}

func (r medicineRow) toDomain() domain.Medicine {
	m := domain.Medicine{
		ID:                r.ID,
		Name:              r.Name,
		GenericName:       r.GenericName,
		CompanyName:       r.CompanyName,
		Type:              r.Type,
		Quantity:          r.Quantity,
		UnitsPerBox:       r.UnitsPerBox,
		LowStockThreshold: r.LowStockThreshold,
		PurchasePrice:     r.PurchasePrice,
		Pricing: domain.Pricing{
			General:             domain.TierPrice{SellingPrice: r.GeneralPrice, DiscountPercentage: r.GeneralDiscount},
			Doctor:              domain.TierPrice{SellingPrice: r.DoctorPrice, DiscountPercentage: r.DoctorDiscount},
			MedicalProfessional: domain.TierPrice{SellingPrice: r.ProfessionalPrice, DiscountPercentage: r.ProfessionalDiscount},
		},
	}
	if r.ExpiryDate.Valid {
		if t, err := time.Parse(dateLayout, r.ExpiryDate.String); err == nil {
			m.ExpiryDate = &t
		}
	}
	return m
}

const selectMedicine = `SELECT id, name, generic_name, company_name, type, quantity, units_per_box,
       low_stock_threshold, purchase_price, general_price, general_discount, doctor_price,
       doctor_discount, professional_price, professional_discount, expiry_date
  FROM medicines`

func (c *SQLiteCatalog) Create(ctx context.Context, m *domain.Medicine) error {
	res, err := c.db.NamedExecContext(ctx, `INSERT INTO medicines (name, generic_name, company_name, type, quantity,
            units_per_box, low_stock_threshold, purchase_price, general_price, general_discount, doctor_price,
            doctor_discount, professional_price, professional_discount, expiry_date)
        VALUES (:name, :generic_name, :company_name, :type, :quantity, :units_per_box, :low_stock_threshold,
            :purchase_price, :general_price, :general_discount, :doctor_price, :doctor_discount,
            :professional_price, :professional_discount, :expiry_date)`, toRow(m))
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (c *SQLiteCatalog) GetByID(ctx context.Context, id int64) (*domain.Medicine, error) {
	var r medicineRow
	if err := c.db.GetContext(ctx, &r, selectMedicine+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m := r.toDomain()
	return &m, nil
}

func (c *SQLiteCatalog) Update(ctx context.Context, m *domain.Medicine) error {
	res, err := c.db.NamedExecContext(ctx, `UPDATE medicines SET name = :name, generic_name = :generic_name,
            company_name = :company_name, type = :type, quantity = :quantity, units_per_box = :units_per_box,
            low_stock_threshold = :low_stock_threshold, purchase_price = :purchase_price,
            general_price = :general_price, general_discount = :general_discount, doctor_price = :doctor_price,
            doctor_discount = :doctor_discount, professional_price = :professional_price,
            professional_discount = :professional_discount, expiry_date = :expiry_date
        WHERE id = :id`, toRow(m))
	if err != nil {
		return fmt.Errorf("update medicine: %w", err)
	}
	return requireAffected(res)
}

func (c *SQLiteCatalog) Delete(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (c *SQLiteCatalog) List(ctx context.Context, f MedicineFilter) ([]domain.Medicine, error) {
	query := selectMedicine + ` WHERE 1 = 1`
	var args []any
	if f.NameSubstring != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+f.NameSubstring+"%")
	}
	if f.InStockOnly {
		query += ` AND quantity > 0`
	}
	query += ` ORDER BY id`

	var rows []medicineRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]domain.Medicine, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Deduct decrements stock only when enough is on hand.
func (c *SQLiteCatalog) Deduct(ctx context.Context, medicineID, units int64) error {
	if units <= 0 {
		return ErrInvalidQuantity
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE medicines SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`, units, medicineID, units)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var available int64
	if err := c.db.GetContext(ctx, &available, `SELECT quantity FROM medicines WHERE id = ?`, medicineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return fmt.Errorf("%w: available %d units, requested %d units", ErrInsufficientStock, available, units)
}

func (c *SQLiteCatalog) Restore(ctx context.Context, medicineID, units int64) error {
	if units <= 0 {
		return ErrInvalidQuantity
	}
	res, err := c.db.ExecContext(ctx, `UPDATE medicines SET quantity = quantity + ? WHERE id = ?`, units, medicineID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
