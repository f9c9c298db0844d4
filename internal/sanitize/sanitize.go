// Package sanitize redacts personal data from text before it leaves
// the process boundary. Redaction is deterministic and idempotent:
// running the sanitizer over its own output changes nothing.
package sanitize

import "regexp"

// Placeholder tokens inserted in place of matched spans. None of them
// contain digits or '@', so no later pass can re-match them.
const (
	PlaceholderEmail = "[EMAIL]"
	PlaceholderPhone = "[PHONE]"
	PlaceholderIBAN  = "[IBAN]"
	PlaceholderTaxID = "[TAX_ID]"
)

type pass struct {
	re          *regexp.Regexp
	placeholder string
}

// Passes run in a fixed order: email, IBAN, tax id, phone. IBAN must
// run before phone so the phone pattern cannot eat the digit run inside
// an account number, and tax id before phone so a bare nine-digit
// number keeps its own placeholder instead of being treated as a
// short phone number.
var passes = []pass{
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), PlaceholderEmail},
	{regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`), PlaceholderIBAN},
	{regexp.MustCompile(`\b\d{9}\b`), PlaceholderTaxID},
	{regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`), PlaceholderPhone},
}

// Sanitize returns text with every email address, phone number, IBAN
// and nine-digit tax identifier replaced by its placeholder token.
// It never fails; input with no matches is returned unchanged.
func Sanitize(text string) string {
	for _, p := range passes {
		text = p.re.ReplaceAllString(text, p.placeholder)
	}
	return text
}
