package extract

import "regexp"

// Rule pairs an entity type with its compiled pattern.
type Rule struct {
	Type    EntityType
	Pattern *regexp.Regexp
}

var (
	// Local part, @, domain, then a dot-separated letter/hyphen/dot suffix.
	// The suffix class includes '.', so a dot that touches the token is kept.
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z-.]+`)

	// Five sub-forms, tried in order at each position:
	//   (555) 123-4567 | +1-800-555-0199 | 555.987.6543 | (800)CALL-NOW | (+44)7912991234
	phonePattern = regexp.MustCompile(`\(\d{3}\)\s?\d{3}-\d{4}|\+1-\d{3}-\d{3}-\d{4}|\d{3}\.\d{3}\.\d{4}|\(\d{3}\)[a-zA-Z\-]{4,}|\(\+\d{2}\)\d{10}`)

	// YYYY-MM-DD or DD/MM/YYYY, digit shape only.
	datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}`)

	// Loose rest-of-token capture after the scheme, not a URL grammar.
	urlPattern = regexp.MustCompile(`(?:https?|ftp)://[^\s/$.?#].[^\s]*`)

	// #INV-, #TK-, or #ORD- followed by an alphanumeric/hyphen run.
	invoicePattern = regexp.MustCompile(`#(?:INV|TK|ORD)-[A-Z0-9\-]+`)

	// $ or £, 1-3 digits, comma-grouped thousands, optional 2-digit cents.
	currencyPattern = regexp.MustCompile(`[$£]\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)

	creditCardPattern = regexp.MustCompile(`\d{4}-\d{4}-\d{4}-\d{4}`)

	// Candidates only; occurrences preceded by "+1-" are dropped afterwards,
	// RE2 has no lookbehind.
	accountPattern = regexp.MustCompile(`\d{3}-\d{3}-\d{4}\b`)

	// Unanchored, so it can also hit inside longer digit-hyphen runs. That
	// overlap with account and card shapes is accepted, not deduplicated.
	ssnPattern = regexp.MustCompile(`\d{3}-\d{2}-\d{4}`)

	ipPattern = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

	// Two trigger phrases, one capture each; exactly one group is set per
	// match. Unicode letter classes cover non-ASCII names.
	namePattern = regexp.MustCompile(`Contact\s+(\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+)|contact:\s+(\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+)`)
)

// scanRules covers the categories that are a plain non-overlapping scan.
// Account numbers and names need post-processing and are dispatched
// separately.
var scanRules = []Rule{
	{Type: Emails, Pattern: emailPattern},
	{Type: Phones, Pattern: phonePattern},
	{Type: Dates, Pattern: datePattern},
	{Type: URLs, Pattern: urlPattern},
	{Type: Invoices, Pattern: invoicePattern},
	{Type: CurrencyAmounts, Pattern: currencyPattern},
	{Type: CreditCardNumbers, Pattern: creditCardPattern},
	{Type: SocialSecurityNumbers, Pattern: ssnPattern},
	{Type: IPAddresses, Pattern: ipPattern},
}

var scanRuleByType = func() map[EntityType]Rule {
	byType := make(map[EntityType]Rule, len(scanRules))
	for _, rule := range scanRules {
		byType[rule.Type] = rule
	}
	return byType
}()
