// Package importer loads medicines into the catalog from delimited text files.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmpos/internal/domain"
	"pharmpos/internal/service"
	"pharmpos/internal/units"
)

// ErrMissingColumns is returned when the header lacks a required field
var ErrMissingColumns = errors.New("missing required columns")

// Field is a catalog attribute a column can be mapped to
type Field string

const (
	FieldName              Field = "name"
	FieldGenericName       Field = "generic_name"
	FieldCompanyName       Field = "company_name"
	FieldType              Field = "type"
	FieldUnitsPerBox       Field = "units_per_box"
	FieldStockUnits        Field = "stock_units"
	FieldCustomerPrice     Field = "customer_price"
	FieldDoctorPrice       Field = "doctor_price"
	FieldProfessionalPrice Field = "professional_price"
	FieldExpiryDate        Field = "expiry_date"
	FieldThreshold         Field = "low_stock_threshold"
)

var requiredFields = []Field{FieldName, FieldUnitsPerBox, FieldStockUnits, FieldCustomerPrice}

const defaultType = "Tablet"

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

var expiryLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02", "01-2006", "Jan 2006"}

// Creator stores one medicine with its stock definition
type Creator interface {
	Create(ctx context.Context, m domain.Medicine, stock service.StockDefinition) (*domain.Medicine, error)
}

// RowError reports a skipped data row
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Result summarises an import run
type Result struct {
	Imported int              `json:"imported"`
	Columns  map[string]Field `json:"columns"`
	Errors   []RowError       `json:"errors"`
}

// Importer maps CSV rows onto catalog medicines
type Importer struct {
	creator Creator
	now     func() time.Time
}

func New(creator Creator) *Importer {
	return &Importer{creator: creator, now: time.Now}
}

// MapHeader assigns each header column to a field by normalised substring
// rules. The first column claiming a field wins; unmatched columns map to "".
func MapHeader(header []string) []Field {
	out := make([]Field, len(header))
	taken := make(map[Field]bool)
	for i, h := range header {
		f := classify(nonAlnum.ReplaceAllString(strings.ToLower(h), ""))
		if f == "" || taken[f] {
			continue
		}
		taken[f] = true
		out[i] = f
	}
	return out
}

func classify(h string) Field {
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(h, s) {
				return true
			}
		}
		return false
	}
	switch {
	case h == "":
		return ""
	case has("generic"):
		return FieldGenericName
	case has("company", "manufacturer"):
		return FieldCompanyName
	case has("medicinename", "name"):
		return FieldName
	case has("type"):
		return FieldType
	case has("unitsperbox", "perbox"):
		return FieldUnitsPerBox
	case has("threshold", "alert"):
		return FieldThreshold
	case has("totalstock", "stock"):
		return FieldStockUnits
	case has("customerprice", "customersellingprice"):
		return FieldCustomerPrice
	case has("doctorprice", "doctorsellingprice"):
		return FieldDoctorPrice
	case has("medicalprofessional", "professionalprice"):
		return FieldProfessionalPrice
	case has("expiry", "date"):
		return FieldExpiryDate
	}
	return ""
}

// DetectDelimiter picks tab, semicolon or comma, whichever the header line uses most.
func DetectDelimiter(headerLine string) rune {
	best, bestCount := ',', strings.Count(headerLine, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(headerLine, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// Import reads r and creates one medicine per valid row. Rows that fail to
// parse or validate are skipped and reported with their line number.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	headerLine, _, _ := bytes.Cut(first, []byte("\n"))

	cr := csv.NewReader(br)
	cr.Comma = DetectDelimiter(string(headerLine))
	cr.FieldsPerRecord = -1
	// leading-space trimming would swallow empty tab-separated fields
	cr.TrimLeadingSpace = cr.Comma != '\t'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	mapping := MapHeader(header)

	res := &Result{Columns: make(map[string]Field), Errors: []RowError{}}
	present := make(map[Field]bool)
	for i, f := range mapping {
		if f != "" {
			res.Columns[header[i]] = f
			present[f] = true
		}
	}
	var missing []string
	for _, f := range requiredFields {
		if !present[f] {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	row := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.Line
			}
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		line, _ := cr.FieldPos(0)
		if blank(record) {
			continue
		}
		m, stock, err := im.parseRow(record, mapping, row)
		if err == nil {
			_, err = im.creator.Create(ctx, m, stock)
		}
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err.Error()})
			continue
		}
		res.Imported++
	}
	log.Printf("[import] imported %d medicines, %d rows skipped", res.Imported, len(res.Errors))
	return res, nil
}

func (im *Importer) parseRow(record []string, mapping []Field, row int) (domain.Medicine, service.StockDefinition, error) {
	m := domain.Medicine{Type: defaultType, UnitsPerBox: 1}
	stock := service.StockDefinition{Source: units.FromUnits}
	for i, f := range mapping {
		if f == "" || i >= len(record) {
			continue
		}
		v := strings.TrimSpace(record[i])
		if v == "" {
			continue
		}
		var err error
		switch f {
		case FieldName:
			m.Name = v
		case FieldGenericName:
			m.GenericName = v
		case FieldCompanyName:
			m.CompanyName = v
		case FieldType:
			m.Type = v
		case FieldUnitsPerBox:
			m.UnitsPerBox, err = parseInt(v)
		case FieldStockUnits:
			stock.Units, err = parseInt(v)
		case FieldCustomerPrice:
			m.Pricing.General.SellingPrice, err = decimal.NewFromString(v)
		case FieldDoctorPrice:
			m.Pricing.Doctor.SellingPrice, err = decimal.NewFromString(v)
		case FieldProfessionalPrice:
			m.Pricing.MedicalProfessional.SellingPrice, err = decimal.NewFromString(v)
		case FieldThreshold:
			m.LowStockThreshold, err = parseInt(v)
		case FieldExpiryDate:
			m.ExpiryDate = parseExpiry(v)
		}
		if err != nil {
			return m, stock, fmt.Errorf("%s: invalid value %q", f, v)
		}
	}
	if m.Name == "" {
		m.Name = fmt.Sprintf("Imported Medicine %d", row)
	}
	if m.ExpiryDate == nil {
		exp := im.now().AddDate(1, 0, 0)
		m.ExpiryDate = &exp
	}
	return m, stock, nil
}

func parseInt(v string) (int64, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	// spreadsheets export whole numbers as "12.0"
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsInteger() {
		return 0, errors.New("not an integer")
	}
	return d.IntPart(), nil
}

func parseExpiry(v string) *time.Time {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
