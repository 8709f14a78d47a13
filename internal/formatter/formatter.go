// Package formatter turns raw answer-generator output into a chat response:
// it extracts source citations, strips JSON and citation artifacts from the
// answer text and selects the source excerpts returned to the caller.
package formatter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/KRuddra/codefourrag/internal/safety"
	"github.com/KRuddra/codefourrag/pkg/types"
)

const (
	// MaxSources is how many source excerpts a response carries
	MaxSources = 3

	// ExcerptChars is the length at which source excerpts are truncated
	ExcerptChars = 500

	// DefaultAnswerConfidence is the self-reported confidence assumed when
	// the generator does not state one
	DefaultAnswerConfidence = "medium"
)

var (
	// "[Source src_000_x]" or "Source src_000_x"; the bracket form is a
	// superset match of the bare form.
	citationRe = regexp.MustCompile(`(?i)source\s+(src_\d+_\w+)`)

	answerFieldRe = regexp.MustCompile(`(?s)"answer"\s*:\s*"((?:[^"\\]|\\.)*)"`)

	leadingObjectRe   = regexp.MustCompile(`(?s)^\s*\{.*?"answer"\s*:\s*"`)
	leadingAnswerRe   = regexp.MustCompile(`(?s)^.*?"answer"\s*:\s*"`)
	trailingCitesRe   = regexp.MustCompile(`(?s)"\s*,\s*"citations".*$`)
	trailingCloseRe   = regexp.MustCompile(`(?s)"\s*\}\s*$`)
	citationMarkerRe  = regexp.MustCompile(`(?i)\[\s*Source[^\]]*\]`)
	braceGroupRe      = regexp.MustCompile(`\{[^}]*\}`)
	keyValueRe        = regexp.MustCompile(`"\s*:\s*"[^"]*"`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
	jsonStringEscapes = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\\`, `\`)
)

// Answer is generator output split into its parts
type Answer struct {
	Text       string   `json:"answer"`
	Citations  []string `json:"citations"`
	Confidence string   `json:"confidence"`
}

// ExtractCitations returns the distinct source IDs cited in text, in order
// of first appearance. Matching is case-insensitive and brackets are optional.
func ExtractCitations(text string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		id := strings.ToLower(m[1][:4]) + m[1][4:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ParseAnswer reads generator output that is expected to be a JSON object
// {"answer", "citations", "confidence"} but may be wrapped in prose, cut
// off or plain text. It never fails; malformed input yields its own
// cleaned text with no citations.
func ParseAnswer(raw string) Answer {
	if obj, ok := firstObject(raw); ok {
		if a, err := decodeAnswer(obj); err == nil {
			if a.Text == "" {
				a.Text = raw
			}
			return a
		}
	}

	if m := answerFieldRe.FindStringSubmatch(raw); m != nil {
		return Answer{
			Text:       jsonStringEscapes.Replace(m[1]),
			Citations:  []string{},
			Confidence: DefaultAnswerConfidence,
		}
	}

	text := strings.TrimSpace(raw)
	text = leadingAnswerRe.ReplaceAllString(text, "")
	text = trailingCitesRe.ReplaceAllString(text, "")
	text = trailingCloseRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))

	return Answer{Text: text, Citations: []string{}, Confidence: DefaultAnswerConfidence}
}

// firstObject returns the first balanced {...} span of s. Braces inside
// JSON strings are ignored.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeAnswer(obj string) (Answer, error) {
	var payload struct {
		Answer     any `json:"answer"`
		Citations  any `json:"citations"`
		Confidence any `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return Answer{}, err
	}

	a := Answer{Citations: []string{}, Confidence: DefaultAnswerConfidence}
	if payload.Answer != nil {
		a.Text = fmt.Sprint(payload.Answer)
	}
	if list, ok := payload.Citations.([]any); ok {
		for _, c := range list {
			if s, ok := c.(string); ok {
				a.Citations = append(a.Citations, s)
			}
		}
	}
	if payload.Confidence != nil {
		a.Confidence = fmt.Sprint(payload.Confidence)
	}
	return a, nil
}

// CleanAnswer strips leftover JSON structure and citation markers, collapses
// whitespace into a single paragraph, capitalizes the first letter and
// ensures terminal punctuation.
func CleanAnswer(text string) string {
	text = leadingObjectRe.ReplaceAllString(text, "")
	text = trailingCitesRe.ReplaceAllString(text, "")
	text = trailingCloseRe.ReplaceAllString(text, "")
	text = citationMarkerRe.ReplaceAllString(text, "")
	text = braceGroupRe.ReplaceAllString(text, "")
	text = keyValueRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return text
	}

	first, size := utf8.DecodeRuneInString(text)
	if !unicode.IsUpper(first) {
		text = string(unicode.ToUpper(first)) + text[size:]
	}
	if !strings.ContainsRune(".!?", rune(text[len(text)-1])) {
		text += "."
	}
	return text
}

// Format builds the chat response for raw generator output. Cited sources
// are listed first, padded with the highest-scoring remaining sources up to
// MaxSources, then ordered by score. The disclaimer is always appended and
// the use-of-force notice follows when that flag is raised.
func Format(raw string, packet *types.ContextPacket, confidence float64, flags []safety.Flag, conversationID string) *types.ChatResponse {
	parsed := ParseAnswer(raw)
	answer := CleanAnswer(parsed.Text)

	resp := &types.ChatResponse{
		Response:       answer + Footer(flags),
		Sources:        SelectSources(packet, ExtractCitations(parsed.Text)),
		Confidence:     confidence,
		Flags:          FlagStrings(flags),
		ConversationID: conversationID,
	}
	return resp
}

// Footer is the disclaimer block appended to every answer
func Footer(flags []safety.Flag) string {
	footer := "\n\n" + safety.Disclaimer
	if safety.HasFlag(flags, safety.FlagUseOfForceCaution) {
		footer += "\n\n" + safety.UseOfForceNotice
	}
	return footer
}

// SelectSources picks the excerpts returned with an answer
func SelectSources(packet *types.ContextPacket, cited []string) []types.SourceDocument {
	out := []types.SourceDocument{}
	if packet.Len() == 0 {
		return out
	}

	used := make(map[string]bool)
	add := func(src types.ContextSource) {
		used[src.SourceID] = true
		out = append(out, types.SourceDocument{
			Text:     Excerpt(src.Text),
			Metadata: src.Metadata(),
			Score:    src.Score,
		})
	}

	for _, id := range cited {
		if len(out) >= MaxSources {
			break
		}
		if src, ok := packet.Source(id); ok && !used[id] {
			add(src)
		}
	}

	byScore := make([]types.ContextSource, len(packet.Sources))
	copy(byScore, packet.Sources)
	sort.SliceStable(byScore, func(i, j int) bool { return byScore[i].Score > byScore[j].Score })
	for _, src := range byScore {
		if len(out) >= MaxSources {
			break
		}
		if !used[src.SourceID] {
			add(src)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Excerpt truncates text to ExcerptChars characters plus "..."
func Excerpt(text string) string {
	if utf8.RuneCountInString(text) <= ExcerptChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:ExcerptChars]) + "..."
}

// FlagStrings converts flags for the wire
func FlagStrings(flags []safety.Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
