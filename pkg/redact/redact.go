// Package redact masks Singapore-format personal data in free text.
//
// Rules run in a fixed order and each one sees the output of the rules before
// it. Reordering them changes which spans get masked, so the order returned by
// Rules is part of the package contract.
//
// The address rules are heuristics. They miss unusual formatting, and they
// will mask prose where a number is followed by a few words and a street-type
// word ("3 trips down the road"). A phone number glued to other digits is not
// masked, and addresses without a house or block number are never masked.
package redact

import "regexp"

// Sentinel tokens substituted for matched spans.
const (
	MaskNRIC    = "[MASKED_NRIC]"
	MaskPhone   = "[MASKED_PHONE]"
	MaskEmail   = "[MASKED_EMAIL]"
	MaskPostal  = "[MASKED_POSTAL]"
	MaskAddress = "[MASKED_ADDRESS]"
)

// streetSuffix matches a street-type word with an optional trailing period.
const streetSuffix = `(?:street|st|road|rd|avenue|ave|drive|dr|lane|ln)\b\.?`

// Rule is one substitution pass.
type Rule struct {
	Name     string
	Sentinel string
	pattern  *regexp.Regexp
}

// Pattern returns the rule's regular expression source.
func (r Rule) Pattern() string {
	return r.pattern.String()
}

var rules = []Rule{
	{
		Name:     "nric",
		Sentinel: MaskNRIC,
		pattern:  regexp.MustCompile(`(?i)\b[STFG]\d{7}[A-Z]\b`),
	},
	{
		// The +65 prefix starts with a non-word character, so the leading
		// boundary is only required when the prefix is absent.
		Name:     "phone",
		Sentinel: MaskPhone,
		pattern:  regexp.MustCompile(`(?i)(?:\+65[- ]?|\b)[689]\d{7}\b`),
	},
	{
		Name:     "email",
		Sentinel: MaskEmail,
		pattern:  regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	},
	{
		Name:     "postal",
		Sentinel: MaskPostal,
		pattern:  regexp.MustCompile(`\b\d{6}\b`),
	},
	{
		Name:     "block_address",
		Sentinel: MaskAddress,
		pattern:  regexp.MustCompile(`(?i)\b(?:blk|block)\s*\d+\w*[\s,]+(?:[a-z0-9]+[\s,]+){0,6}?` + streetSuffix),
	},
	{
		Name:     "street_address",
		Sentinel: MaskAddress,
		pattern:  regexp.MustCompile(`(?i)\b\d+\w*[\s,]+(?:[a-z0-9]+[\s,]+){0,5}?` + streetSuffix),
	},
}

// Rules returns the substitution rules in the order they are applied.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Redact returns text with every rule applied in order.
// It is safe for concurrent use.
func Redact(text string) string {
	if text == "" {
		return ""
	}
	for _, r := range rules {
		text = r.pattern.ReplaceAllLiteralString(text, r.Sentinel)
	}
	return text
}

// RedactCount behaves like Redact and also reports how many spans each rule
// replaced. Rules with no matches are omitted from the map.
func RedactCount(text string) (string, map[string]int) {
	counts := make(map[string]int)
	if text == "" {
		return "", counts
	}
	for _, r := range rules {
		sentinel := r.Sentinel
		n := 0
		text = r.pattern.ReplaceAllStringFunc(text, func(string) string {
			n++
			return sentinel
		})
		if n > 0 {
			counts[r.Name] += n
		}
	}
	return text, counts
}
