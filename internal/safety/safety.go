// Package safety scores answer confidence from retrieval signals and raises
// the flags that gate unsafe answers.
//
// Confidence starts at 0.4 and is adjusted by exact-match, top-score,
// source-count, citation-count and score-variance signals, then clamped to
// [0, 1]. A packet with no sources always scores exactly 0.1.
//
// Use-of-force questions are hard gated: unless the context carries a
// statute or a policy document, the pipeline must refuse with
// RefusalMessage instead of calling the answer generator.
package safety

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/pkg/types"
)

// Flag is a safety or quality marker attached to a chat response
type Flag string

const (
	FlagLowConfidence          Flag = "LOW_CONFIDENCE"
	FlagOutdatedPossible       Flag = "OUTDATED_POSSIBLE"
	FlagJurisdictionNote       Flag = "JURISDICTION_NOTE"
	FlagUseOfForceCaution      Flag = "USE_OF_FORCE_CAUTION"
	FlagUseOfForceInsufficient Flag = "USE_OF_FORCE_INSUFFICIENT"
)

const (
	// BaseConfidence is the starting point before adjustments
	BaseConfidence = 0.4

	// NoSourcesConfidence is the fixed confidence of an empty packet
	NoSourcesConfidence = 0.1

	// LowConfidenceThreshold is the level below which LOW_CONFIDENCE is raised
	LowConfidenceThreshold = 0.5

	// DefaultVariance is used when there are no scores to measure
	DefaultVariance = 1.0
)

const (
	RefusalMessage = "I cannot provide information about use-of-force procedures without explicit " +
		"supporting policy documents or statutes in the available sources. " +
		"Please consult your department's official use-of-force policy and legal counsel " +
		"for guidance on these matters."

	Disclaimer = "⚠️ DISCLAIMER: This information is for informational purposes only and does not constitute legal advice."

	UseOfForceNotice = "🚨 USE OF FORCE CAUTION: This response involves use-of-force matters. Verify information with official " +
		"department policies and legal counsel before taking action."
)

// useOfForceKeywords mark a question as touching use of force
var useOfForceKeywords = []string{
	"use of force", "force", "deadly force", "lethal force",
	"shooting", "taser", "restraint", "chokehold", "neck restraint",
	"handcuff", "take down", "take-down", "self-defense", "defense",
	"threat", "imminent threat", "reasonable force", "excessive force",
	"force policy",
}

// A keyword must start on a word boundary so "enforcement" does not read
// as "force".
var useOfForceRe = keywordPattern(useOfForceKeywords)

// stateRe marks a question as asking about Wisconsin law. "wi" must be a
// whole word so "with" does not count.
var stateRe = regexp.MustCompile(`\b(?:wisconsin|wis\. stat|state statute|wi\b)`)

func keywordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)`)
}

// Signals are the retrieval measurements confidence is computed from
type Signals struct {
	ExactMatch    bool    `json:"exact_match"`
	TopScore      float64 `json:"top_score"`
	NumSources    int     `json:"num_sources"`
	ScoreVariance float64 `json:"score_variance"`
}

// SignalsFrom derives signals from ranked search results and the packet
// built from them. ScoreVariance is the population variance of the result
// scores, DefaultVariance when there are none.
func SignalsFrom(results []types.ScoredChunk, packet *types.ContextPacket, exactTop3 bool) Signals {
	s := Signals{
		ExactMatch:    exactTop3,
		NumSources:    packet.Len(),
		ScoreVariance: DefaultVariance,
	}
	if len(results) == 0 {
		return s
	}

	s.TopScore = results[0].Score

	var mean float64
	for _, r := range results {
		mean += r.Score
	}
	mean /= float64(len(results))

	var variance float64
	for _, r := range results {
		d := r.Score - mean
		variance += d * d
	}
	s.ScoreVariance = variance / float64(len(results))
	return s
}

// Scorer computes confidence and flags
type Scorer struct {
	logger *zap.Logger
}

// NewScorer creates a Scorer; nil logger is allowed
func NewScorer(logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{logger: logger}
}

// Confidence combines retrieval signals with the citations the answer
// actually used. The packet only decides the zero-source override.
func (s *Scorer) Confidence(sig Signals, citations []string, packet *types.ContextPacket) float64 {
	confidence := BaseConfidence

	if sig.ExactMatch {
		confidence += 0.35
		s.logger.Debug("confidence adjusted", zap.String("signal", "exact_match"), zap.Float64("delta", 0.35))
	}

	if delta := topScoreDelta(sig.TopScore); delta != 0 {
		confidence += delta
		s.logger.Debug("confidence adjusted",
			zap.String("signal", "top_score"),
			zap.Float64("top_score", sig.TopScore),
			zap.Float64("delta", delta))
	}

	if packet.Len() == 0 || sig.NumSources == 0 {
		s.logger.Debug("no sources; confidence fixed", zap.Float64("confidence", NoSourcesConfidence))
		return NoSourcesConfidence
	}

	switch {
	case sig.NumSources >= 5:
		confidence += 0.15
	case sig.NumSources >= 3:
		confidence += 0.1
	case sig.NumSources >= 2:
		confidence += 0.05
	}

	switch n := len(citations); {
	case n >= 3:
		confidence += 0.1
	case n >= 2:
		confidence += 0.05
	case n == 1:
		confidence += 0.02
	}

	switch v := sig.ScoreVariance; {
	case v < 0.05:
		confidence += 0.08
	case v < 0.1:
		confidence += 0.05
	case v > 0.5:
		confidence -= 0.1
	}

	confidence = clamp(confidence)
	s.logger.Debug("confidence computed",
		zap.Float64("confidence", confidence),
		zap.Int("sources", sig.NumSources),
		zap.Int("citations", len(citations)),
		zap.Float64("variance", sig.ScoreVariance))
	return confidence
}

// topScoreDelta maps the best fused score onto a tiered adjustment
func topScoreDelta(top float64) float64 {
	switch {
	case top > 0.9:
		return 0.25
	case top > 0.8:
		return 0.2
	case top > 0.7:
		return 0.15
	case top > 0.6:
		return 0.1
	case top > 0.5:
		return 0.05
	case top < 0.3:
		return -0.25
	case top < 0.4:
		return -0.15
	}
	return 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Flags returns the markers that apply to a query answered from packet
func (s *Scorer) Flags(query string, packet *types.ContextPacket, confidence float64, sig Signals) []Flag {
	flags := []Flag{}

	if confidence < LowConfidenceThreshold {
		flags = append(flags, FlagLowConfidence)
	}

	if possiblyOutdated(packet) {
		flags = append(flags, FlagOutdatedPossible)
	}

	if mentionsState(query) && hasFederalSource(packet) {
		flags = append(flags, FlagJurisdictionNote)
	}

	if DetectUseOfForce(query) {
		flags = append(flags, FlagUseOfForceCaution)
		if !hasAuthority(packet) {
			flags = append(flags, FlagUseOfForceInsufficient)
		}
	}

	if len(flags) > 0 {
		s.logger.Debug("flags raised",
			zap.Strings("flags", flagStrings(flags)),
			zap.Bool("exact_match", sig.ExactMatch))
	}
	return flags
}

// possiblyOutdated is the currency hook. Source currency is not tracked
// beyond the relevance boosts, so it never fires.
func possiblyOutdated(*types.ContextPacket) bool {
	return false
}

// DetectUseOfForce reports whether the query touches use of force
func DetectUseOfForce(query string) bool {
	return useOfForceRe.MatchString(strings.ToLower(query))
}

// AllowUseOfForce is the hard gate for use-of-force answers. Queries that do
// not touch use of force always pass; the rest need a statute or a policy
// source in the packet.
func AllowUseOfForce(query string, packet *types.ContextPacket) bool {
	if !DetectUseOfForce(query) {
		return true
	}
	return hasAuthority(packet)
}

// HasFlag reports whether flags contains f
func HasFlag(flags []Flag, f Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}

func mentionsState(query string) bool {
	return stateRe.MatchString(strings.ToLower(query))
}

func hasFederalSource(packet *types.ContextPacket) bool {
	if packet == nil {
		return false
	}
	for _, src := range packet.Sources {
		if strings.ToUpper(src.Jurisdiction) == "US" {
			return true
		}
	}
	return false
}

// hasAuthority reports whether some source is a statute or a policy
func hasAuthority(packet *types.ContextPacket) bool {
	if packet == nil {
		return false
	}
	for _, src := range packet.Sources {
		if src.StatuteNumber != "" || src.DocType == types.DocPolicy {
			return true
		}
	}
	return false
}

func flagStrings(flags []Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
