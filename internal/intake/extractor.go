package intake

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/payplan-sync/internal/models"
	"github.com/payplan-sync/internal/types"
	"github.com/shopspring/decimal"
)

// Candidate is one obligation extracted from a normalized document. Parsing
// is lenient: unparsable quarters, amounts, dates, and tax years become nil
// rather than errors, because partially-entered rows are normal while the
// document is being edited.
type Candidate struct {
	Scope       types.PaymentScope
	StateCode   *string
	PaymentType string
	Quarter     *int
	DueDate     *time.Time
	Amount      *decimal.Decimal
	TaxYear     *int
	Notes       *string
	Method      *string
	SortOrder   int
}

// IdentityKey returns the candidate's stable identity within its work unit:
// scope, jurisdiction, and ordinal position in the source document.
// Reordering rows in the document therefore changes identity; the sync engine
// treats that as cancel-old/create-new.
func (c *Candidate) IdentityKey() string {
	return models.IdentityKey(c.Scope, c.StateCode, c.SortOrder)
}

// Complete reports whether the candidate carries everything the sync engine
// requires before it may be persisted: federal rows need a type, due date,
// and amount; state rows additionally need a recognized jurisdiction.
// Incomplete rows are excluded from the candidate set entirely so an
// incomplete row in the UI never reaches storage as a usable obligation.
func (c *Candidate) Complete() bool {
	if c.Scope == types.ScopeState && c.StateCode == nil {
		return false
	}
	return c.PaymentType != "" && c.DueDate != nil && c.Amount != nil
}

// ExtractCandidates flattens a normalized document into obligation
// candidates. Federal ordinals are 1..N. State ordinals are
// groupIndex*100 + rowIndex + 1, reserving up to 99 obligations per
// jurisdiction group before keys collide; that capacity limit is documented,
// not enforced. Obligations under an unrecognized state name are dropped
// silently.
func ExtractCandidates(doc Document) []Candidate {
	var candidates []Candidate

	for i, row := range doc.FederalPayments {
		candidates = append(candidates, Candidate{
			Scope:       types.ScopeFederal,
			PaymentType: defaultLabel(row.Type, "Federal"),
			Quarter:     ParseQuarter(row.Quarter),
			DueDate:     ParseDueDate(row.DueDate),
			Amount:      ParseAmount(row.Amount),
			TaxYear:     ParseTaxYear(row.TaxPeriod),
			Notes:       optional(row.Description),
			Method:      optional(row.Method),
			SortOrder:   i + 1,
		})
	}

	for gi, group := range doc.StatePayments {
		code := StateCode(group.StateName)
		var stateCode *string
		if code != "" {
			stateCode = &code
		}
		for pi, row := range group.Payments {
			if stateCode == nil {
				continue
			}
			candidates = append(candidates, Candidate{
				Scope:       types.ScopeState,
				StateCode:   stateCode,
				PaymentType: defaultLabel(row.Type, "State"),
				Quarter:     ParseQuarter(row.Quarter),
				DueDate:     ParseDueDate(row.DueDate),
				Amount:      ParseAmount(row.Amount),
				TaxYear:     ParseTaxYear(row.TaxPeriod),
				Notes:       optional(row.Description),
				Method:      optional(row.Method),
				SortOrder:   gi*100 + pi + 1,
			})
		}
	}

	return candidates
}

var quarterRe = regexp.MustCompile(`^Q?([1-4])$`)

// ParseQuarter parses "Q1".."Q4" or a bare digit 1-4; anything else is nil
func ParseQuarter(value string) *int {
	raw := strings.ToUpper(strings.TrimSpace(value))
	if raw == "" {
		return nil
	}
	m := quarterRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	q, _ := strconv.Atoi(m[1])
	return &q
}

var amountCleanRe = regexp.MustCompile(`[$,\s]`)

// ParseAmount parses a currency amount, stripping dollar signs, commas, and
// whitespace. Unparsable values are nil.
func ParseAmount(value string) *decimal.Decimal {
	cleaned := amountCleanRe.ReplaceAllString(value, "")
	if cleaned == "" {
		return nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

// ParseDueDate parses a date accepting ISO and US slash formats. The
// normalizer has usually already canonicalized the value; this re-coerces so
// extraction also works on raw documents.
func ParseDueDate(value string) *time.Time {
	coerced := CoerceDate(value)
	if coerced == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", coerced)
	if err != nil {
		return nil
	}
	return &t
}

var digitsRe = regexp.MustCompile(`[^0-9]`)

// ParseTaxYear extracts the digits of a tax period. Years outside 1900-2200
// are rejected.
func ParseTaxYear(value string) *int {
	cleaned := digitsRe.ReplaceAllString(value, "")
	if cleaned == "" {
		return nil
	}
	year, err := strconv.Atoi(cleaned)
	if err != nil || year < 1900 || year > 2200 {
		return nil
	}
	return &year
}

func defaultLabel(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
