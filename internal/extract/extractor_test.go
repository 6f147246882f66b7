package extract

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/logger"
)

// sampleDocument exercises every category at once.
const sampleDocument = `
Contact Sarah Johnson at sarah.johnson@techcorp.com or call (555) 123-4567.
Meeting scheduled for 2024-03-15 at 2:30 PM EST. Invoice #INV-2024-001
for $1,250.75 is due. Alternative contact: Mike Davis at +1-800-555-0199 or
mike.davis@company.org. Visit our website at https://www.techcorp.com
or ftp://files.techcorp.com/docs. Reference ticket #TK-9876 and
order #ORD-ABC-123. Payment via credit card 4532-1234-5678-9012
or wire transfer to account 987-654-3210. Social Security Number
123-45-6789 on file. IP address 192.168.1.100, and 192.168.1.1 flagged.
Additional phone numbers: 555.987.6543, (+44)7912991234 and (800)CALL-NOW.
Sub-totals: £3,000.80 and $2,100. Website: http://techcorp.com.
Today's date is 06/06/2025.
`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(config.ExtractorConfig{Enabled: true, Detectors: []string{"all"}}, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create extractor: %v", err)
	}
	return e
}

func TestExtractAllKeysAlwaysPresent(t *testing.T) {
	for _, text := range []string{"", "no entities here", sampleDocument} {
		result := ExtractAll(text)
		if len(result) != len(EntityTypes) {
			t.Fatalf("expected %d keys, got %d for %q", len(EntityTypes), len(result), text)
		}
		for _, entityType := range EntityTypes {
			matches, ok := result[entityType]
			if !ok {
				t.Fatalf("missing key %q for %q", entityType, text)
			}
			if matches == nil {
				t.Fatalf("nil sequence for key %q", entityType)
			}
		}
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	first := ExtractAll(sampleDocument)
	second := ExtractAll(sampleDocument)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated extraction differs:\n%+v\n%+v", first, second)
	}
}

func TestExtractFullSampleDocument(t *testing.T) {
	result := ExtractAll(sampleDocument)

	want := map[EntityType][]string{
		Emails: {"sarah.johnson@techcorp.com", "mike.davis@company.org."},
		Phones: {"(555) 123-4567", "+1-800-555-0199", "555.987.6543", "(+44)7912991234", "(800)CALL-NOW"},
		Dates:  {"2024-03-15", "06/06/2025"},
		URLs:   {"https://www.techcorp.com", "ftp://files.techcorp.com/docs.", "http://techcorp.com."},
		Invoices: {
			"#INV-2024-001", "#TK-9876", "#ORD-ABC-123",
		},
		CurrencyAmounts:       {"$1,250.75", "£3,000.80", "$2,100"},
		CreditCardNumbers:     {"4532-1234-5678-9012"},
		AccountNumbers:        {"987-654-3210"},
		SocialSecurityNumbers: {"123-45-6789"},
		IPAddresses:           {"192.168.1.100", "192.168.1.1"},
		Names:                 {"Sarah Johnson", "Mike Davis"},
	}

	for entityType, expected := range want {
		if got := result[entityType]; !reflect.DeepEqual(got, expected) {
			t.Errorf("%s: got %v, want %v", entityType, got, expected)
		}
	}
}

func TestExtractOrderFollowsTextPosition(t *testing.T) {
	result := ExtractAll(sampleDocument)
	for entityType, matches := range result {
		lastIndex := -1
		for _, match := range matches {
			index := strings.Index(sampleDocument[lastIndex+1:], match)
			if index < 0 {
				t.Fatalf("%s: match %q not found after position %d", entityType, match, lastIndex)
			}
			lastIndex += 1 + index
		}
	}
}

func TestContactNameScenario(t *testing.T) {
	result := ExtractAll("Contact Sarah Johnson at sarah.johnson@techcorp.com or call (555) 123-4567.")

	if got := result[Names]; !reflect.DeepEqual(got, []string{"Sarah Johnson"}) {
		t.Errorf("names: got %v", got)
	}
	if got := result[Emails]; !reflect.DeepEqual(got, []string{"sarah.johnson@techcorp.com"}) {
		t.Errorf("emails: got %v", got)
	}
	if got := result[Phones]; !reflect.DeepEqual(got, []string{"(555) 123-4567"}) {
		t.Errorf("phones: got %v", got)
	}
}

func TestInvoiceAndCurrencyScenario(t *testing.T) {
	result := ExtractAll("Invoice #INV-2024-001 for $1,250.75 is due.")

	if got := result[Invoices]; !reflect.DeepEqual(got, []string{"#INV-2024-001"}) {
		t.Errorf("invoices: got %v", got)
	}
	if got := result[CurrencyAmounts]; !reflect.DeepEqual(got, []string{"$1,250.75"}) {
		t.Errorf("currency_amounts: got %v", got)
	}
}

func TestAccountNumberExclusionScenario(t *testing.T) {
	result := ExtractAll("Alternative contact: Mike Davis at +1-800-555-0199.")

	if got := result[Names]; !reflect.DeepEqual(got, []string{"Mike Davis"}) {
		t.Errorf("names: got %v", got)
	}
	if got := result[Phones]; !reflect.DeepEqual(got, []string{"+1-800-555-0199"}) {
		t.Errorf("phones: got %v", got)
	}
	if got := result[AccountNumbers]; len(got) != 0 {
		t.Errorf("account_numbers should be empty under the +1- exclusion, got %v", got)
	}
}

func TestIPAddressScenario(t *testing.T) {
	result := ExtractAll("IP address 192.168.1.100, and 192.168.1.1 flagged.")

	want := []string{"192.168.1.100", "192.168.1.1"}
	if got := result[IPAddresses]; !reflect.DeepEqual(got, want) {
		t.Errorf("ip_addresses: got %v, want %v", got, want)
	}
}

func TestURLScenario(t *testing.T) {
	result := ExtractAll("Visit https://www.techcorp.com or ftp://files.techcorp.com/docs.")

	// The URL rule is a rest-of-token capture: the sentence-final dot is not
	// whitespace, so it stays part of the second match.
	want := []string{"https://www.techcorp.com", "ftp://files.techcorp.com/docs."}
	if got := result[URLs]; !reflect.DeepEqual(got, want) {
		t.Errorf("urls: got %v, want %v", got, want)
	}
}

func TestAccountNumberExclusionAppliesOnlyToPlusOnePrefix(t *testing.T) {
	result := ExtractAll("wire 987-654-3210 or call +1-800-555-0199 or 111-222-3333")

	want := []string{"987-654-3210", "111-222-3333"}
	if got := result[AccountNumbers]; !reflect.DeepEqual(got, want) {
		t.Errorf("account_numbers: got %v, want %v", got, want)
	}
	// The phone side still reports the full +1 form.
	if got := result[Phones]; !reflect.DeepEqual(got, []string{"+1-800-555-0199"}) {
		t.Errorf("phones: got %v", got)
	}
}

func TestCreditCardShapeOnlyNoLuhn(t *testing.T) {
	result := ExtractAll("card 0000-0000-0000-0000 on file")
	if got := result[CreditCardNumbers]; !reflect.DeepEqual(got, []string{"0000-0000-0000-0000"}) {
		t.Errorf("credit_card_numbers: got %v", got)
	}
}

func TestDatesAreShapeOnly(t *testing.T) {
	result := ExtractAll("due 13/13/9999 or 0000-99-99")
	want := []string{"13/13/9999", "0000-99-99"}

	got := result[Dates]
	// Scan order is by text position: the hyphen form appears second here.
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("dates: got %v, want %v", got, want)
	}
}

func TestIPAddressNoOctetValidation(t *testing.T) {
	result := ExtractAll("bogus host 999.999.999.999 seen")
	if got := result[IPAddresses]; !reflect.DeepEqual(got, []string{"999.999.999.999"}) {
		t.Errorf("ip_addresses: got %v", got)
	}
}

func TestCategoriesScanIndependently(t *testing.T) {
	// Categories scan independently; a token claimed by one rule is still
	// visible to every other rule.
	result := ExtractAll("SSN 123-45-6789 and account 123-456-7890")

	if got := result[SocialSecurityNumbers]; !reflect.DeepEqual(got, []string{"123-45-6789"}) {
		t.Errorf("social_security_numbers: got %v", got)
	}
	if got := result[AccountNumbers]; !reflect.DeepEqual(got, []string{"123-456-7890"}) {
		t.Errorf("account_numbers: got %v", got)
	}
}

func TestVanityAndInternationalPhones(t *testing.T) {
	result := ExtractAll("dial (800)CALL-NOW or (+44)7912991234 or 555.987.6543")

	want := []string{"(800)CALL-NOW", "(+44)7912991234", "555.987.6543"}
	got := result[Phones]
	if len(got) != 3 {
		t.Fatalf("phones: got %v", got)
	}
	for _, expected := range want {
		found := false
		for _, match := range got {
			if match == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("phones missing %q in %v", expected, got)
		}
	}
}

func TestExtractNamesTaggedTriggers(t *testing.T) {
	matches := ExtractNames("Contact Sarah Johnson today. Alternative contact: Mike Davis later.")

	if len(matches) != 2 {
		t.Fatalf("expected 2 name matches, got %+v", matches)
	}
	if matches[0].Trigger != TriggerContact || matches[0].Value != "Sarah Johnson" {
		t.Errorf("first match: %+v", matches[0])
	}
	if matches[1].Trigger != TriggerContactLabel || matches[1].Value != "Mike Davis" {
		t.Errorf("second match: %+v", matches[1])
	}
	if matches[0].Start >= matches[1].Start {
		t.Errorf("matches out of text order: %+v", matches)
	}
}

func TestNamesRequireTriggerPhrase(t *testing.T) {
	result := ExtractAll("Sarah Johnson met Mike Davis for lunch.")
	if got := result[Names]; len(got) != 0 {
		t.Errorf("names without a trigger phrase should not match, got %v", got)
	}
}

func TestResultMarshalJSONKeyOrder(t *testing.T) {
	data, err := json.Marshal(ExtractAll("nothing"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	lastIndex := -1
	for _, entityType := range EntityTypes {
		index := strings.Index(string(data), `"`+string(entityType)+`"`)
		if index < 0 {
			t.Fatalf("key %q missing from %s", entityType, data)
		}
		if index < lastIndex {
			t.Errorf("key %q out of declaration order in %s", entityType, data)
		}
		lastIndex = index
	}

	var decoded map[string][]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	for key, matches := range decoded {
		if matches == nil {
			t.Errorf("key %q encoded as null", key)
		}
	}
}

func TestExtractorDetectorConfiguration(t *testing.T) {
	t.Run("unknown detector rejected", func(t *testing.T) {
		_, err := New(config.ExtractorConfig{Enabled: true, Detectors: []string{"passports"}}, logger.NewNop())
		if err == nil {
			t.Fatal("expected error for unknown detector")
		}
	})

	t.Run("specific detectors only", func(t *testing.T) {
		e, err := New(config.ExtractorConfig{Enabled: true, Detectors: []string{"emails"}}, logger.NewNop())
		if err != nil {
			t.Fatalf("failed to create extractor: %v", err)
		}

		result := e.Extract(sampleDocument)
		if len(result) != len(EntityTypes) {
			t.Fatalf("disabled rules must keep their keys, got %d", len(result))
		}
		if got := result[Emails]; len(got) != 2 {
			t.Errorf("emails: got %v", got)
		}
		if got := result[Phones]; len(got) != 0 {
			t.Errorf("disabled phones rule produced %v", got)
		}
	})

	t.Run("disable and re-enable", func(t *testing.T) {
		e := newTestExtractor(t)
		if err := e.DisableRule("urls"); err != nil {
			t.Fatalf("disable failed: %v", err)
		}
		if got := e.Extract(sampleDocument)[URLs]; len(got) != 0 {
			t.Errorf("urls still matching after disable: %v", got)
		}
		if err := e.EnableRule("urls"); err != nil {
			t.Fatalf("enable failed: %v", err)
		}
		if got := e.Extract(sampleDocument)[URLs]; len(got) != 3 {
			t.Errorf("urls after re-enable: %v", got)
		}
		if err := e.EnableRule("nope"); err == nil {
			t.Error("expected error for unknown rule")
		}
	})
}

func TestExtractorMatchesExtractAll(t *testing.T) {
	e := newTestExtractor(t)
	if !reflect.DeepEqual(e.Extract(sampleDocument), ExtractAll(sampleDocument)) {
		t.Fatal("extractor with all rules enabled diverges from ExtractAll")
	}
}
