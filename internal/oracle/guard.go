package oracle

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxPolicyLen bounds user-supplied policy override text.
const MaxPolicyLen = 1000

// Free-text policy overrides are embedded into the oracle prompt, so they
// are screened as untrusted input before they are ever included. Matching is
// case-insensitive against the collapsed-whitespace form.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+|any\s+)?(previous|prior|above|earlier)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+|any\s+)?(previous|prior|above|earlier)`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)act\s+as\s+(a|an|the)\s`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`),
	regexp.MustCompile(`(?i)new\s+instructions\s*:`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)do\s+anything\s+now`),
}

// ValidatePolicy screens a free-text policy override. Rejected instructions
// are surfaced to the caller; they are never truncated-and-used.
func ValidatePolicy(s string) error {
	if s == "" {
		return nil
	}
	if len(s) > MaxPolicyLen {
		return fmt.Errorf("%w: instruction exceeds %d characters", ErrUntrustedPolicy, MaxPolicyLen)
	}
	collapsed := strings.Join(strings.Fields(s), " ")
	for _, re := range injectionPatterns {
		if re.MatchString(collapsed) {
			return fmt.Errorf("%w: instruction matches a blocked pattern", ErrUntrustedPolicy)
		}
	}
	return nil
}
