// Package intake turns arbitrary intake document snapshots into typed,
// defaulted documents and extracts payment obligation candidates from them.
//
// Normalization is total: the document is user-editable and must always be
// re-openable, so malformed input degrades to defaults instead of erroring.
package intake

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is the multi-client envelope produced by the intake wizard
type Session struct {
	Version   int             `json:"version"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
	Clients   []ClientSection `json:"clients"`
}

// ClientSection pairs a wizard-local client id with that client's document
type ClientSection struct {
	ClientID string   `json:"clientId"`
	Document Document `json:"data"`
}

// Document is one client's fully-defaulted intake document
type Document struct {
	AddresseeName       string       `json:"addresseeName"`
	EntityName          string       `json:"entityName"`
	EntityType          string       `json:"entityType"`
	BusinessType        string       `json:"businessType"`
	SenderName          string       `json:"senderName"`
	PrimaryEmail        string       `json:"primaryEmail"`
	PaymentDueDate      string       `json:"paymentDueDate"`
	ShowDueDateReminder bool         `json:"showDueDateReminder"`
	ShowDisclaimers     bool         `json:"showDisclaimers"`
	FederalPayments     []PaymentRow `json:"federalPayments"`
	StatePayments       []StateGroup `json:"statePayments"`
}

// PaymentRow is one obligation row as entered in the wizard. Fields stay
// textual here; parsing into typed values happens at extraction.
type PaymentRow struct {
	Type        string `json:"type"`
	Quarter     string `json:"quarter"`
	DueDate     string `json:"dueDate"`
	Amount      string `json:"amount"`
	TaxPeriod   string `json:"taxPeriod"`
	Description string `json:"description"`
	Method      string `json:"method"`
}

// StateGroup holds the obligations entered for one state jurisdiction
type StateGroup struct {
	StateName string       `json:"stateName"`
	Payments  []PaymentRow `json:"payments"`
}

// NewSession creates an empty session envelope
func NewSession() Session {
	now := time.Now().UTC().Format(time.RFC3339)
	return Session{
		Version:   1,
		ID:        uuid.New().String(),
		Name:      "Untitled Session",
		CreatedAt: now,
		UpdatedAt: now,
		Clients:   []ClientSection{},
	}
}

// NormalizeSession coerces an arbitrary snapshot into a session envelope.
// Clients without a client id are dropped; everything else defaults.
func NormalizeSession(input any) Session {
	base := NewSession()

	obj, ok := input.(map[string]any)
	if !ok {
		return base
	}

	if v, ok := obj["version"].(float64); ok {
		base.Version = int(v)
	}
	if id := asString(obj["id"]); id != "" {
		base.ID = id
	}
	if name := asString(obj["name"]); name != "" {
		base.Name = name
	}
	if created := asString(obj["createdAt"]); created != "" {
		base.CreatedAt = created
	}
	base.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	rawClients, _ := obj["clients"].([]any)
	for _, rc := range rawClients {
		entry, _ := rc.(map[string]any)
		clientID := asString(entry["clientId"])
		if clientID == "" {
			continue
		}
		base.Clients = append(base.Clients, ClientSection{
			ClientID: clientID,
			Document: NormalizeDocument(entry["data"]),
		})
	}

	return base
}

// NormalizeDocument coerces an arbitrary client snapshot into a defaulted
// document. It never fails.
func NormalizeDocument(input any) Document {
	doc := Document{
		EntityType:          "individual",
		ShowDueDateReminder: true,
		ShowDisclaimers:     true,
		FederalPayments:     []PaymentRow{},
		StatePayments:       []StateGroup{},
	}

	obj, ok := input.(map[string]any)
	if !ok {
		return doc
	}

	doc.AddresseeName = asString(obj["addresseeName"])
	doc.EntityName = asString(obj["entityName"])
	doc.BusinessType = asString(obj["businessType"])
	doc.SenderName = asString(obj["senderName"])
	doc.PrimaryEmail = asString(obj["primaryEmail"])
	doc.PaymentDueDate = CoerceDate(asString(obj["paymentDueDate"]))
	doc.ShowDueDateReminder = asBool(obj["showDueDateReminder"], true)
	doc.ShowDisclaimers = asBool(obj["showDisclaimers"], true)

	if asString(obj["entityType"]) == "business" {
		doc.EntityType = "business"
	}

	if rows, ok := obj["federalPayments"].([]any); ok {
		for _, row := range rows {
			doc.FederalPayments = append(doc.FederalPayments, normalizeRow(row))
		}
	}

	if groups, ok := obj["statePayments"].([]any); ok {
		for _, rg := range groups {
			entry, _ := rg.(map[string]any)
			group := StateGroup{
				StateName: asString(entry["stateName"]),
				Payments:  []PaymentRow{},
			}
			if rows, ok := entry["payments"].([]any); ok {
				for _, row := range rows {
					group.Payments = append(group.Payments, normalizeRow(row))
				}
			}
			doc.StatePayments = append(doc.StatePayments, group)
		}
	}

	return doc
}

func normalizeRow(input any) PaymentRow {
	obj, _ := input.(map[string]any)
	return PaymentRow{
		Type:        asString(obj["type"]),
		Quarter:     asString(obj["quarter"]),
		DueDate:     CoerceDate(asString(obj["dueDate"])),
		Amount:      asString(obj["amount"]),
		TaxPeriod:   asString(obj["taxPeriod"]),
		Description: asString(obj["description"]),
		Method:      asString(obj["method"]),
	}
}

var (
	isoDateRe = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
	mdyDateRe = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
)

// CoerceDate canonicalizes a date entered as MM/DD/YYYY or YYYY-MM-DD (and
// their single-digit variants) into YYYY-MM-DD. Values it cannot parse are
// returned trimmed, unchanged; extraction treats those as null dates.
func CoerceDate(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}

	if m := isoDateRe.FindStringSubmatch(raw); m != nil {
		return canonicalDate(m[1], m[2], m[3])
	}
	if m := mdyDateRe.FindStringSubmatch(raw); m != nil {
		return canonicalDate(m[3], m[1], m[2])
	}
	return raw
}

func canonicalDate(yyyy, mm, dd string) string {
	candidate := fmt.Sprintf("%s-%s-%s", yyyy, pad2(mm), pad2(dd))
	if _, err := time.Parse("2006-01-02", candidate); err != nil {
		return ""
	}
	return candidate
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// asString coerces a JSON value to a trimmed string, defaulting to ""
func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return ""
	}
}

// asBool coerces a JSON value to a bool; anything that is not explicitly a
// boolean keeps the default.
func asBool(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}
