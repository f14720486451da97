package redact

import "strings"

// PlaceholderResponse is substituted for the credential in any text returned
// to the caller.
const PlaceholderResponse = "(API key redacted due to security reasons)"

// PlaceholderLog is substituted for the credential in diagnostic output.
const PlaceholderLog = "***REDACTED***"

// Rule pairs a secret value with the placeholder that replaces it.
type Rule struct {
	Secret      string
	Placeholder string
}

// Filter scrubs configured secret values from text before it crosses the
// process boundary. A Filter is immutable after construction and safe for
// concurrent use: Apply is a pure function over the rule set.
type Filter struct {
	rules []Rule
}

// New builds a filter from the given rules. Rules with an empty secret are
// dropped rather than matching everywhere. Rules whose placeholder contains
// the secret are dropped too, since they would break idempotency.
func New(rules ...Rule) *Filter {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Secret == "" {
			continue
		}
		if strings.Contains(r.Placeholder, r.Secret) {
			continue
		}
		kept = append(kept, r)
	}
	return &Filter{rules: kept}
}

// Apply replaces every occurrence of each configured secret with its
// placeholder. Returns the input unchanged when no rule matches.
func (f *Filter) Apply(text string) string {
	if f == nil || len(f.rules) == 0 {
		return text
	}
	for _, r := range f.rules {
		if strings.Contains(text, r.Secret) {
			text = strings.ReplaceAll(text, r.Secret, r.Placeholder)
		}
	}
	return text
}

// Empty reports whether the filter holds no active rules.
func (f *Filter) Empty() bool {
	return f == nil || len(f.rules) == 0
}
