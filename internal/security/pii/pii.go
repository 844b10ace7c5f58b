// Package pii detects and redacts personally identifiable information in
// prompt and completion text.
//
// Detection is rule-ordered: SSNs are matched before credit cards, cards
// before emails, and so on, so an overlapping span is attributed to the
// more specific type. Credit card candidates must additionally pass a Luhn
// checksum to count as detections.
package pii

import (
	"regexp"
	"strings"
)

// PII types reported in detections.
const (
	TypeSSN        = "ssn"
	TypeCreditCard = "credit_card"
	TypeEmail      = "email"
	TypePhone      = "phone"
	TypeIPAddress  = "ip_address"
)

// Actions taken when PII is found.
const (
	ActionRedact  = "redact"
	ActionBlock   = "block"
	ActionLogOnly = "log_only"
)

// Detection records one matched span. Value holds the original matched
// text; callers that log detections should log the type, not the value.
type Detection struct {
	Type  string
	Value string
}

// Result is the outcome of a scan. Clean is false whenever the configured
// action intervenes (redact or block); under log_only detections are
// recorded but Clean stays true. Redacted is set only for the redact
// action.
type Result struct {
	Clean      bool
	Detections []Detection
	Redacted   string
}

type rule struct {
	typ         string
	re          *regexp.Regexp
	placeholder string
	validate    func(string) bool
}

// Rule order is significant: earlier rules claim overlapping spans.
var rules = []rule{
	{TypeSSN, regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`), "[REDACTED_SSN]", nil},
	{TypeCreditCard, regexp.MustCompile(`\b(?:\d[-\s]?){12,18}\d\b`), "[REDACTED_CC]", luhnValid},
	{TypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]", nil},
	{TypePhone, regexp.MustCompile(`(?:\+1[-.\s])?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`), "[REDACTED_PHONE]", nil},
	{TypeIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`), "[REDACTED_IP]", nil},
}

// Scan inspects content and applies action (redact, block, or log_only).
func Scan(content, action string) Result {
	if content == "" {
		return Result{Clean: true}
	}

	detections, redacted := detect(content)
	if len(detections) == 0 {
		return Result{Clean: true}
	}

	switch action {
	case ActionBlock:
		return Result{Clean: false, Detections: detections}
	case ActionRedact:
		return Result{Clean: false, Detections: detections, Redacted: redacted}
	default: // log_only
		return Result{Clean: true, Detections: detections}
	}
}

// Redact returns content with all detected PII replaced by placeholders.
// Content without PII is returned unchanged.
func Redact(content string) string {
	if content == "" {
		return content
	}
	_, redacted := detect(content)
	return redacted
}

// detect matches every rule against the original content, then replaces
// each match's first remaining occurrence in a running redacted copy.
// Matching against the original (not the partially redacted text) keeps
// detection independent of replacement order.
func detect(content string) ([]Detection, string) {
	var detections []Detection
	redacted := content
	for _, r := range rules {
		for _, m := range r.re.FindAllString(content, -1) {
			if r.validate != nil && !r.validate(m) {
				continue
			}
			detections = append(detections, Detection{Type: r.typ, Value: m})
			redacted = strings.Replace(redacted, m, r.placeholder, 1)
		}
	}
	return detections, redacted
}

// luhnValid reports whether the digits in s form a valid Luhn checksum.
// Filters card-shaped number runs that are not real card numbers.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
