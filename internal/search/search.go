package search

import (
	"slices"
	"strings"
	"time"

	"pharmpos/internal/domain"
)

// DefaultLimit caps the number of ranked results
const DefaultLimit = 10

// expiryWarningMonths flags medicines expiring within this many months
const expiryWarningMonths = 3

// Field names which medicine attribute produced the best score
type Field string

const (
	FieldName        Field = "name"
	FieldType        Field = "type"
	FieldGenericName Field = "generic_name"
	FieldCompanyName Field = "company_name"
)

// Result is one ranked medicine
type Result struct {
	Medicine     domain.Medicine    `json:"medicine"`
	Tier         Tier               `json:"tier"`
	Score        float64            `json:"score"`
	MatchedField Field              `json:"matched_field"`
	StockStatus  domain.StockStatus `json:"stock_status"`
	// Selectable is false for out-of-stock medicines; they cannot be billed.
	Selectable bool `json:"selectable"`
	ExpiryNear bool `json:"expiry_near"`
}

// Searcher ranks medicines with Score
type Searcher struct {
	Limit int
	Now   func() time.Time
}

func NewSearcher(limit int) *Searcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Searcher{Limit: limit, Now: time.Now}
}

// Search scores every medicine on name, type, generic name and company name,
// keeps the best field, drops non-matches and orders in-stock medicines first,
// then by match tier and score. A blank query returns nothing.
func (s *Searcher) Search(query string, medicines []domain.Medicine) []Result {
	if strings.TrimSpace(query) == "" {
		return []Result{}
	}
	now := s.Now()

	results := make([]Result, 0)
	for _, m := range medicines {
		fields := []struct {
			field Field
			text  string
		}{
			{FieldName, m.Name},
			{FieldType, m.Type},
			{FieldGenericName, m.GenericName},
			{FieldCompanyName, m.CompanyName},
		}
		var best Match
		bestField := FieldName
		for _, f := range fields {
			// first field wins ties
			if mt := Score(query, f.text); mt.Compare(best) > 0 {
				best, bestField = mt, f.field
			}
		}
		if !best.Matched {
			continue
		}
		results = append(results, Result{
			Medicine:     m,
			Tier:         best.Tier,
			Score:        best.Score,
			MatchedField: bestField,
			StockStatus:  m.Status(),
			Selectable:   m.Quantity > 0,
			ExpiryNear:   m.ExpiresWithin(now, expiryWarningMonths),
		})
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		if a.Selectable != b.Selectable {
			if a.Selectable {
				return -1
			}
			return 1
		}
		return Match{Tier: b.Tier, Score: b.Score}.Compare(Match{Tier: a.Tier, Score: a.Score})
	})

	if len(results) > s.Limit {
		results = results[:s.Limit]
	}
	return results
}
