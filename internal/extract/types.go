package extract

import (
	"bytes"
	"encoding/json"
)

// EntityType identifies one of the fixed extraction categories.
type EntityType string

const (
	Emails                EntityType = "emails"
	Phones                EntityType = "phones"
	Dates                 EntityType = "dates"
	URLs                  EntityType = "urls"
	Invoices              EntityType = "invoices"
	CurrencyAmounts       EntityType = "currency_amounts"
	CreditCardNumbers     EntityType = "credit_card_numbers"
	AccountNumbers        EntityType = "account_numbers"
	SocialSecurityNumbers EntityType = "social_security_numbers"
	IPAddresses           EntityType = "ip_addresses"
	Names                 EntityType = "names"
)

// EntityTypes lists every category in declaration order. Result serialization
// and presenters iterate this slice; Go maps carry no insertion order.
var EntityTypes = []EntityType{
	Emails,
	Phones,
	Dates,
	URLs,
	Invoices,
	CurrencyAmounts,
	CreditCardNumbers,
	AccountNumbers,
	SocialSecurityNumbers,
	IPAddresses,
	Names,
}

// Result maps every entity type to the substrings matched for it, ordered by
// first character position in the source text. All eleven keys are always
// present; a category with no matches holds an empty, non-nil slice.
type Result map[EntityType][]string

// Total returns the number of matches across all categories.
func (r Result) Total() int {
	n := 0
	for _, matches := range r {
		n += len(matches)
	}
	return n
}

// Counts returns the per-category match counts for the categories that
// matched at least once. Values themselves are never exposed here so the
// counts are safe to log and broadcast.
func (r Result) Counts() map[EntityType]int {
	counts := make(map[EntityType]int)
	for entityType, matches := range r {
		if len(matches) > 0 {
			counts[entityType] = len(matches)
		}
	}
	return counts
}

// MarshalJSON emits the categories in declaration order rather than the
// alphabetical order encoding/json uses for maps.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entityType := range EntityTypes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(entityType))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		matches := r[entityType]
		if matches == nil {
			matches = []string{}
		}
		value, err := json.Marshal(matches)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NameTrigger tells which trigger phrase introduced a name match.
type NameTrigger int

const (
	// TriggerContact marks a name that followed the word "Contact".
	TriggerContact NameTrigger = iota
	// TriggerContactLabel marks a name that followed the label "contact:".
	TriggerContactLabel
)

// String returns the trigger phrase itself.
func (t NameTrigger) String() string {
	if t == TriggerContactLabel {
		return "contact:"
	}
	return "Contact"
}

// NameMatch is one captured two-word name. Value holds only the name, never
// the trigger phrase.
type NameMatch struct {
	Trigger NameTrigger
	Value   string
	Start   int
}
