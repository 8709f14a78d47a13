package legalref

import (
	"regexp"
	"strings"
)

// Rule is a named pattern. The first capture group, when present, holds the
// normalized reference (statute number or case name).
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// statuteNum matches "940.01", "939.50(3)(a)"
const statuteNum = `\d+\.\d+(?:\([0-9a-zA-Z]+\))*`

// StatuteRules recognize statute references in free text, in priority order
var StatuteRules = []Rule{
	{Name: "section_symbol", Pattern: regexp.MustCompile(`§\s*(` + statuteNum + `)`)},
	{Name: "section_word", Pattern: regexp.MustCompile(`(?i)(?:Section|Sec\.)\s+(` + statuteNum + `)`)},
	{Name: "wis_stat", Pattern: regexp.MustCompile(`(?i)(?:Wis\.?\s*Stat\.?|W\.S\.A\.?)\s*(` + statuteNum + `)`)},
}

// SectionSymbol matches a bare "§ N.N(...)" reference
var SectionSymbol = StatuteRules[0].Pattern

// CaseCitationRules recognize "Name v. Name" and "Name v. Name, YYYY"
var CaseCitationRules = []Rule{
	{Name: "case_name_year", Pattern: regexp.MustCompile(`([A-Z][a-z]+\s+v\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*),\s*\d{4}`)},
	{Name: "case_name", Pattern: regexp.MustCompile(`([A-Z][a-z]+\s+v\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)},
}

// FindStatuteNumbers returns every statute number referenced in text,
// deduplicated in order of rule priority and then position.
func FindStatuteNumbers(text string) []string {
	var out []string
	for _, r := range StatuteRules {
		for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
			out = append(out, m[1])
		}
	}
	return dedupe(out)
}

// FirstStatuteNumber returns the first statute number found using the
// "§" and "Section" forms, or "" when none is present.
func FirstStatuteNumber(text string) string {
	for _, r := range StatuteRules[:2] {
		if m := r.Pattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// FindCaseCitations returns every case name referenced in text, deduplicated
func FindCaseCitations(text string) []string {
	var out []string
	for _, r := range CaseCitationRules {
		for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
			out = append(out, m[1])
		}
	}
	return dedupe(out)
}

// FirstCaseCitation returns the first "Name v. Name" occurrence or ""
func FirstCaseCitation(text string) string {
	if m := CaseCitationRules[1].Pattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// StatuteMatches reports whether two statute numbers refer to the same
// provision by substring containment in either direction.
func StatuteMatches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// CaseMatches is StatuteMatches for case names, ignoring case
func CaseMatches(a, b string) bool {
	return StatuteMatches(strings.ToLower(a), strings.ToLower(b))
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
