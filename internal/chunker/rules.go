package chunker

import (
	"regexp"
	"sort"
	"strings"
)

// patternRule is a named boundary or heading pattern. Capture group 1, when
// present, is the heading label.
type patternRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// ruleSet is an ordered table of rules applied together
type ruleSet []patternRule

// boundary is a split point with its heading label
type boundary struct {
	Start int
	Label string
}

const statuteNum = `\d+\.\d+(?:\([0-9a-zA-Z]+\))*`

// statuteSectionRules mark major statute sections
var statuteSectionRules = ruleSet{
	{Name: "section_symbol", Pattern: regexp.MustCompile(`(?i)§\s*` + statuteNum)},
	{Name: "section_word", Pattern: regexp.MustCompile(`(?i)(?:Section|Sec\.)\s+` + statuteNum)},
}

// statuteSubsectionRules are only used when no major section is found
var statuteSubsectionRules = ruleSet{
	{Name: "numbered_subsection", Pattern: regexp.MustCompile(`(?i)(?:^|\n)\s*\(\d+\)(?:\s*\([a-z]+\))?\s+[A-Z]`)},
}

// statuteFallbackRules combine sections and subsections
var statuteFallbackRules = ruleSet{statuteSectionRules[0], statuteSectionRules[1], statuteSubsectionRules[0]}

// caseHeadings are the recognized case-law section headings
var caseHeadings = []string{
	"FACTS", "HOLDING", "REASONING", "ANALYSIS", "CONCLUSION",
	"ISSUE", "BACKGROUND", "PROCEDURAL HISTORY", "DISCUSSION",
	"DISSENT", "CONCURRENCE", "OPINION",
}

var caseRules = ruleSet{
	{Name: "case_heading", Pattern: regexp.MustCompile(`(?im)(?:^|\n)[ \t]*(` + strings.Join(caseHeadings, "|") + `)[ \t]*$`)},
}

var (
	numberedHeadingRule = patternRule{Name: "numbered_heading", Pattern: regexp.MustCompile(`(?:^|\n)[ \t]*(\d+(?:\.\d+)*(?:\([a-zA-Z]+\))?)\s+[A-Z]`)}
	capsHeadingRule     = patternRule{Name: "caps_heading", Pattern: regexp.MustCompile(`(?m)(?:^|\n)[ \t]*([A-Z][A-Z \t]{10,})$`)}
)

var policyRules = ruleSet{numberedHeadingRule, capsHeadingRule}

// hierarchy rules
var (
	chapterRe    = regexp.MustCompile(`(?i)Chapter\s+(\d+)`)
	sectionRe    = regexp.MustCompile(`§\s*(\d+\.\d+)`)
	subsectionRe = regexp.MustCompile(`\((\d+)\)`)
	sentenceEnd  = regexp.MustCompile(`[.!?]\s+`)
)

// find returns the boundaries of all rules sorted by position, keeping the
// first label at any given position.
func (rs ruleSet) find(text string) []boundary {
	byStart := make(map[int]string)
	for _, r := range rs {
		for _, m := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
			label := text[m[0]:m[1]]
			if len(m) >= 4 && m[2] >= 0 {
				label = text[m[2]:m[3]]
			}
			if !r.accept(label) {
				continue
			}
			if _, ok := byStart[m[0]]; !ok {
				byStart[m[0]] = strings.TrimSpace(label)
			}
		}
	}

	out := make([]boundary, 0, len(byStart))
	for start, label := range byStart {
		out = append(out, boundary{Start: start, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// accept applies post-match checks regexp cannot express
func (r patternRule) accept(label string) bool {
	if r.Name == "caps_heading" {
		return len(strings.Fields(label)) >= 3
	}
	return true
}

// first returns the label of the earliest boundary, or ""
func (rs ruleSet) first(text string) string {
	b := rs.find(text)
	if len(b) == 0 {
		return ""
	}
	return b[0].Label
}
