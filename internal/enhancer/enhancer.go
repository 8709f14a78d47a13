package enhancer

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	// MaxVariants caps the number of variants per query
	MaxVariants = 3

	maxSynonymsPerTerm = 2
	maxSynonymVariants = 2
)

var (
	// statuteRef matches a statute reference including its prefix so the
	// whole reference can be protected from rewriting
	statuteRef = regexp.MustCompile(`(?i)(?:§\s*|Section\s+|Sec\.\s+|Wis\.?\s*Stat\.?\s*)(\d+\.\d+(?:\([0-9a-zA-Z]+\))*)`)
	wordRe     = regexp.MustCompile(`\b\w+\b`)
)

// Enhanced is a query with its alternate phrasings
type Enhanced struct {
	Original string
	Variants []string
	Log      []string
}

// All returns the original query followed by its variants
func (e *Enhanced) All() []string {
	return append([]string{e.Original}, e.Variants...)
}

func (e *Enhanced) add(variant, reason string) {
	if variant == "" || strings.EqualFold(variant, e.Original) {
		return
	}
	for _, v := range e.Variants {
		if v == variant {
			return
		}
	}
	e.Variants = append(e.Variants, variant)
	e.Log = append(e.Log, fmt.Sprintf("added variant %q (%s)", variant, reason))
}

// Enhancer expands abbreviations, substitutes synonyms and corrects
// misspelled legal terms to produce alternate query phrasings
type Enhancer struct {
	dict   *Dictionary
	logger *zap.Logger

	abbrevPhrases     []string
	synonymPhrases    []string
	correctionPhrases []string
}

// New creates an Enhancer. A nil dictionary uses DefaultDictionary.
func New(dict *Dictionary, logger *zap.Logger) *Enhancer {
	if dict == nil {
		dict = DefaultDictionary()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{
		dict:              dict,
		logger:            logger,
		abbrevPhrases:     phrases(dict.Abbreviations),
		synonymPhrases:    phrases(dict.Synonyms),
		correctionPhrases: phrases(dict.Corrections),
	}
}

// protected is a lowercased query with statute references swapped out
type protected struct {
	text         string
	placeholders []string
}

// protect replaces each statute reference with __statute_n__
func protect(query string) protected {
	var p protected
	text := statuteRef.ReplaceAllStringFunc(query, func(m string) string {
		ph := fmt.Sprintf("__statute_%d__", len(p.placeholders))
		p.placeholders = append(p.placeholders, m)
		return ph
	})
	p.text = strings.ToLower(text)
	return p
}

// restore puts the original statute references back
func (p protected) restore(variant string) string {
	for i, ref := range p.placeholders {
		variant = strings.ReplaceAll(variant, fmt.Sprintf("__statute_%d__", i), ref)
	}
	return variant
}

// Enhance builds up to MaxVariants alternate phrasings of query. Statute
// references are never rewritten.
func (e *Enhancer) Enhance(query string) Enhanced {
	out := Enhanced{Original: query}
	if strings.TrimSpace(query) == "" {
		return out
	}

	p := protect(query)
	words := wordRe.FindAllString(p.text, -1)
	abbreviationFound := false

	// multi-word abbreviations
	for _, phrase := range e.abbrevPhrases {
		exp := e.dict.Abbreviations[phrase]
		if len(exp) == 0 || !strings.Contains(p.text, phrase) {
			continue
		}
		abbreviationFound = true
		out.add(p.restore(strings.ReplaceAll(p.text, phrase, exp[0])), "expanded abbreviation: "+phrase)
	}

	// single-word abbreviations
	for _, w := range words {
		exp := e.dict.Abbreviations[w]
		if len(exp) == 0 {
			continue
		}
		abbreviationFound = true
		if exp[0] == w {
			continue
		}
		out.add(p.restore(replaceWord(p.text, w, exp[0])), "expanded abbreviation: "+w)
	}

	// synonyms, single words first and then phrases
	var synonymVariants []string
	for _, w := range words {
		for _, syn := range first(e.dict.Synonyms[w], maxSynonymsPerTerm) {
			synonymVariants = append(synonymVariants, replaceWord(p.text, w, syn))
		}
	}
	for _, phrase := range e.synonymPhrases {
		if !strings.Contains(p.text, phrase) {
			continue
		}
		for _, syn := range first(e.dict.Synonyms[phrase], maxSynonymsPerTerm) {
			synonymVariants = append(synonymVariants, strings.ReplaceAll(p.text, phrase, syn))
		}
	}
	for _, v := range first(synonymVariants, maxSynonymVariants) {
		out.add(p.restore(v), "added synonym")
	}

	// spelling of known legal terms
	corrected := p.text
	for _, phrase := range e.correctionPhrases {
		corrected = strings.ReplaceAll(corrected, phrase, e.dict.Corrections[phrase])
	}
	for _, w := range words {
		if fix, ok := e.dict.Corrections[w]; ok && fix != w {
			corrected = replaceWord(corrected, w, fix)
		}
	}
	if corrected != p.text {
		out.add(p.restore(corrected), "corrected spelling")
	}

	// abbreviations expanded together with a synonym for the leading word
	if abbreviationFound && len(synonymVariants) > 0 && len(words) > 0 {
		combined := p.text
		for _, w := range words {
			if exp := e.dict.Abbreviations[w]; len(exp) > 0 {
				combined = replaceWord(combined, w, exp[0])
			}
		}
		if syns := e.dict.Synonyms[words[0]]; len(syns) > 0 {
			combined = replaceWord(combined, words[0], syns[0])
		}
		out.add(p.restore(combined), "combined enhancement")
	}

	if len(out.Variants) > MaxVariants {
		out.Variants = out.Variants[:MaxVariants]
	}

	if len(out.Log) > 0 {
		e.logger.Debug("Query enhanced",
			zap.String("query", query),
			zap.Strings("variants", out.Variants),
			zap.Strings("log", out.Log))
	}

	return out
}

// replaceWord replaces whole-word occurrences of word
func replaceWord(text, word, with string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.ReplaceAllLiteralString(text, with)
}

func first[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
