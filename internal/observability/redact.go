package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// PIIType categorizes identifiers masked out of logs and audit entries.
type PIIType string

const (
	PIITypeNationalID PIIType = "national_id"
	PIITypeCard       PIIType = "card_number"
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeIPAddress  PIIType = "ip_address"
)

// MaskingStyle determines how a match is replaced.
type MaskingStyle string

const (
	MaskingStyleRedact MaskingStyle = "redact" // [REDACTED:type]
	MaskingStyleHash   MaskingStyle = "hash"   // stable short hash
)

// PIIMatch is one detected identifier.
type PIIMatch struct {
	Type     PIIType
	StartPos int
	EndPos   int
}

// Redactor masks contact details and identifiers in free text. Diagnoses,
// medicines and dates pass through.
type Redactor struct {
	style    MaskingStyle
	patterns []piiPattern
}

type piiPattern struct {
	typ PIIType
	re  *regexp.Regexp
}

// NewRedactor returns a Redactor using style (MaskingStyleRedact when empty).
func NewRedactor(style MaskingStyle) *Redactor {
	if style == "" {
		style = MaskingStyleRedact
	}
	// Card numbers before phones: a phone pattern matches inside them.
	return &Redactor{
		style: style,
		patterns: []piiPattern{
			{PIITypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{PIITypeCard, regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
			{PIITypeNationalID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
			{PIITypeIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
			{PIITypePhone, regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
		},
	}
}

var defaultRedactor = NewRedactor(MaskingStyleRedact)

// Redact masks text with the default Redactor.
func Redact(text string) string {
	return defaultRedactor.Redact(text)
}

// Detect returns non-overlapping matches in text, ordered by position.
// Earlier patterns win overlaps.
func (r *Redactor) Detect(text string) []PIIMatch {
	var matches []PIIMatch
	for _, p := range r.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if overlaps(matches, loc[0], loc[1]) {
				continue
			}
			matches = append(matches, PIIMatch{Type: p.typ, StartPos: loc[0], EndPos: loc[1]})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartPos < matches[j].StartPos })
	return matches
}

// Redact returns text with every match masked.
func (r *Redactor) Redact(text string) string {
	matches := r.Detect(text)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.StartPos])
		b.WriteString(r.mask(text[m.StartPos:m.EndPos], m.Type))
		last = m.EndPos
	}
	b.WriteString(text[last:])
	return b.String()
}

func (r *Redactor) mask(value string, typ PIIType) string {
	if r.style == MaskingStyleHash {
		sum := sha256.Sum256([]byte(value))
		return "[" + string(typ) + ":" + hex.EncodeToString(sum[:4]) + "]"
	}
	return "[REDACTED:" + string(typ) + "]"
}

func overlaps(matches []PIIMatch, start, end int) bool {
	for _, m := range matches {
		if start < m.EndPos && m.StartPos < end {
			return true
		}
	}
	return false
}
