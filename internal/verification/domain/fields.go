package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// ExtractedFields is the structured view over one receipt's raw text.
// Amounts holds every monetary value found; the evaluator decides which one
// counts.
type ExtractedFields struct {
	RecipientName   string    `json:"recipient_name,omitempty"`
	AccountNumbers  []string  `json:"account_numbers,omitempty"`
	Amounts         []float64 `json:"amounts,omitempty"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	DateTime        string    `json:"date_time,omitempty"`
}

var (
	// mobile-wallet account in any of its printed forms: 09XXXXXXXXX,
	// +639XXXXXXXXX, 639XXXXXXXXX, with optional spacing or dashes between
	// digit groups
	accountPattern = regexp.MustCompile(`(?:\+?63|0)[\s\-.]?9(?:[\s\-.]?\d){9}`)

	// amounts with an explicit currency marker
	markedAmountPattern = regexp.MustCompile(`(?:₱|PHP|Php|php)\s*([\d,]+(?:\.\d{1,2})?)`)

	// amounts introduced by an "Amount ..." label, marker optional
	labeledAmountPattern = regexp.MustCompile(`(?i)amount[^\d₱\r\n]*(?:₱|PHP)?\s*([\d,]+(?:\.\d{1,2})?)`)

	// bare decimal figures; two decimal places keeps reference numbers and
	// phone digits out
	bareAmountPattern = regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})*\.\d{2})\b`)

	labeledReferencePattern = regexp.MustCompile(`(?i)ref(?:erence)?\s*(?:no\.?|number|#)?\s*:?\s*([0-9A-Za-z]{9,13})\b`)
	bareReferencePattern    = regexp.MustCompile(`\b(\d{13})\b`)

	recipientPattern = regexp.MustCompile(`(?i)(?:sent to|to|recipient)[:\s]+([A-Za-z][A-Za-z .]{2,40})`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?\s*(?:AM|PM)?\b`),
	}
)

// NormalizeAccount collapses the printed variants of a mobile-wallet number
// to the canonical 09XXXXXXXXX form. Unrecognizable input normalizes to "".
func NormalizeAccount(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()

	switch {
	case len(number) == 11 && strings.HasPrefix(number, "09"):
		return number
	case len(number) == 12 && strings.HasPrefix(number, "639"):
		return "0" + number[2:]
	}
	return ""
}

// ParseFields extracts structured fields from raw receipt text using
// tolerant pattern rules. It never fails: missing fields stay zero-valued
// and are scored by the evaluator instead.
func ParseFields(text string) ExtractedFields {
	fields := ExtractedFields{}

	seen := map[string]bool{}
	for _, match := range accountPattern.FindAllString(text, -1) {
		normalized := NormalizeAccount(match)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		fields.AccountNumbers = append(fields.AccountNumbers, normalized)
	}

	amountSeen := map[float64]bool{}
	addAmount := func(raw string) {
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil || value <= 0 || amountSeen[value] {
			return
		}
		amountSeen[value] = true
		fields.Amounts = append(fields.Amounts, value)
	}
	for _, match := range markedAmountPattern.FindAllStringSubmatch(text, -1) {
		addAmount(match[1])
	}
	for _, match := range labeledAmountPattern.FindAllStringSubmatch(text, -1) {
		addAmount(match[1])
	}
	for _, match := range bareAmountPattern.FindAllStringSubmatch(text, -1) {
		addAmount(match[1])
	}

	if match := labeledReferencePattern.FindStringSubmatch(text); match != nil {
		fields.ReferenceNumber = match[1]
	} else if match := bareReferencePattern.FindStringSubmatch(text); match != nil {
		fields.ReferenceNumber = match[1]
	}

	if match := recipientPattern.FindStringSubmatch(text); match != nil {
		fields.RecipientName = strings.TrimSpace(match[1])
	}

	for _, pattern := range datePatterns {
		if match := pattern.FindString(text); match != "" {
			fields.DateTime = strings.TrimSpace(match)
			break
		}
	}

	return fields
}
