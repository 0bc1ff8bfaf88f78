// Package security provides request content validation against the
// suspicious pattern set, plus log redaction helpers.
package security

import (
	"net/url"

	"github.com/sellerdesk/edgeguard/internal/patterns"
)

// LabelNoPatternSet is reported when no pattern set is available.
// Validation fails closed in that case.
const LabelNoPatternSet = "pattern set unavailable"

// PatternSource supplies the active pattern set.
// *patterns.Manager satisfies it.
type PatternSource interface {
	Current() *patterns.Set
}

type staticSource struct {
	set *patterns.Set
}

func (s staticSource) Current() *patterns.Set {
	return s.set
}

// StaticSource wraps a fixed pattern set.
func StaticSource(set *patterns.Set) PatternSource {
	return staticSource{set: set}
}

// ValidationResult is the outcome of validating one string.
type ValidationResult struct {
	Safe bool
	// Suspicious lists the labels of every matched pattern in pattern
	// order. Empty when Safe.
	Suspicious []string
}

// Validator checks request URLs and headers against a pattern source.
// It holds no per-request state and is safe for concurrent use.
type Validator struct {
	source PatternSource
}

// NewValidator creates a Validator reading patterns from source.
func NewValidator(source PatternSource) *Validator {
	return &Validator{source: source}
}

// ValidateRequestURL decodes rawURL and reports every URL pattern it
// contains. Malformed percent-encoding falls back to the raw string.
func (v *Validator) ValidateRequestURL(rawURL string) ValidationResult {
	set := v.source.Current()
	if set == nil {
		return ValidationResult{Safe: false, Suspicious: []string{LabelNoPatternSet}}
	}

	matched := set.MatchURL(DecodeURL(rawURL))
	return ValidationResult{Safe: len(matched) == 0, Suspicious: matched}
}

// ContainsSuspiciousPattern reports whether value contains any header
// pattern. It stops at the first match.
func (v *Validator) ContainsSuspiciousPattern(value string) bool {
	set := v.source.Current()
	if set == nil {
		return true
	}
	return set.MatchHeader(value)
}

// DecodeURL percent-decodes s without treating '+' as a space.
// On malformed input it returns s unchanged.
func DecodeURL(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
