package generator

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// offlineMaxSources is how many context sources the offline answer quotes
	offlineMaxSources = 2

	offlineSentenceMax = 300

	// InsufficientAnswer is returned when the prompt carries no sources
	InsufficientAnswer = "Insufficient information available in the provided sources."
)

var (
	sourceHeaderRe  = regexp.MustCompile(`(?m)^\[Source (src_\d+_\w+)\]\n`)
	offlineSentence = regexp.MustCompile(`(?s)^.*?[.!?](?:\s|$)`)
)

// Offline answers by quoting the leading sentence of the first context
// sources with their citation markers. It needs no network access and is
// deterministic.
type Offline struct{}

// NewOffline creates an offline generator
func NewOffline() *Offline {
	return &Offline{}
}

func (g *Offline) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	headers := sourceHeaderRe.FindAllStringSubmatchIndex(req.Prompt, -1)
	if len(headers) == 0 {
		return InsufficientAnswer, nil
	}

	var parts []string
	for i, h := range headers {
		if len(parts) >= offlineMaxSources {
			break
		}
		end := len(req.Prompt)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		sentence := leadingSentence(req.Prompt[h[1]:end])
		if sentence == "" {
			continue
		}
		parts = append(parts, sentence+" [Source "+req.Prompt[h[2]:h[3]]+"]")
	}

	if len(parts) == 0 {
		return InsufficientAnswer, nil
	}
	return strings.Join(parts, " "), nil
}

// leadingSentence returns the first sentence of a block, or its first
// line when no sentence end is found
func leadingSentence(block string) string {
	block = strings.TrimSpace(block)
	if block == "" {
		return ""
	}

	sentence := strings.TrimSpace(offlineSentence.FindString(block))
	if sentence == "" {
		sentence, _, _ = strings.Cut(block, "\n")
		sentence = strings.TrimSpace(sentence)
	}
	if len(sentence) > offlineSentenceMax {
		cut := offlineSentenceMax
		for cut > 0 && !utf8.RuneStart(sentence[cut]) {
			cut--
		}
		sentence = sentence[:cut]
	}
	return strings.Join(strings.Fields(sentence), " ")
}

func (g *Offline) Provider() string {
	return ProviderOffline
}

func (g *Offline) Model() string {
	return DefaultOfflineModel
}
