package verdict

import (
	"fmt"
	"strings"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/google/uuid"
)

// Accuracy thresholds over the mean source credibility.
const (
	verifiedThreshold = 90
	partialThreshold  = 75
)

// Each detected pairwise contradiction across source excerpts lowers the
// confidence score by this much.
const contradictionPenalty = 8

// Word budgets for the two summary variants. The voice summary must fit
// roughly 15 seconds of speech.
const (
	summaryMaxWords      = 60
	voiceSummaryMaxWords = 35
)

// Antonym pairs used for the pairwise contradiction heuristic.
var contradictoryPairs = [][2]string{
	{"increase", "decrease"},
	{"increased", "decreased"},
	{"true", "false"},
	{"confirmed", "denied"},
	{"supports", "opposes"},
	{"rose", "fell"},
	{"higher", "lower"},
}

// Phrases in a high-credibility excerpt that authoritatively negate the
// claim and force a "false" verdict regardless of the mean score.
var negationPhrases = []string{
	"false", "debunked", "no evidence", "incorrect", "myth",
	"denied", "refuted", "not true",
}

const negationCredibilityFloor = 90

// Uncertainty markers flagged per source in the result.
var uncertaintyMarkers = []string{
	"may", "might", "possibly", "unclear", "disputed", "alleged", "reportedly",
}

const uncertaintySourceScoreFloor = 70

// Synthesizer composes a FactCheckResult from exactly three scored
// sources. Deterministic given identical inputs: no randomness, no clock
// dependence beyond the CreatedAt stamp.
type Synthesizer struct{}

// New creates a synthesizer
func New() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize produces the verdict for a claim backed by exactly three
// sources. ProcessingTimeMs and session-threshold flagging are owned by
// the caller; Flagged is pre-set here only for a "false" verdict.
func (s *Synthesizer) Synthesize(claim models.Claim, sources []models.VerificationSource) models.FactCheckResult {
	contradictions := detectContradictions(sources)
	uncertainties := detectUncertainties(sources)

	score := meanCredibility(sources) - contradictionPenalty*len(contradictions)
	if score < 0 {
		score = 0
	}

	accuracy := accuracyFor(score)
	if negatedByAuthoritativeSource(claim, sources) {
		accuracy = models.AccuracyFalse
	}

	top := topSource(sources)

	return models.FactCheckResult{
		ID:              uuid.NewString(),
		ClaimID:         claim.ID,
		Accuracy:        accuracy,
		ConfidenceTier:  tierFor(score),
		ConfidenceScore: score,
		Sources:         sources,
		Summary:         buildSummary(accuracy, score, top),
		VoiceSummary:    buildVoiceSummary(accuracy, top, contradictions, uncertainties),
		Contradictions:  contradictions,
		Uncertainties:   uncertainties,
		Flagged:         accuracy == models.AccuracyFalse,
		CreatedAt:       time.Now().UTC(),
	}
}

// Unverifiable produces the explicit zero-source result used when fewer
// than three distinct-domain candidates were found.
func (s *Synthesizer) Unverifiable(claim models.Claim) models.FactCheckResult {
	return models.FactCheckResult{
		ID:              uuid.NewString(),
		ClaimID:         claim.ID,
		Accuracy:        models.AccuracyUnverifiable,
		ConfidenceTier:  models.TierLow,
		ConfidenceScore: 0,
		Sources:         []models.VerificationSource{},
		Summary:         "Unable to verify: fewer than three independent sources were found for this claim. Treat it as unconfirmed.",
		VoiceSummary:    "I could not find enough independent sources to verify that claim.",
		Flagged:         true,
		CreatedAt:       time.Now().UTC(),
	}
}

// Degraded produces the flagged low-confidence result emitted when the
// claim deadline elapsed before the pipeline finished.
func (s *Synthesizer) Degraded(claim models.Claim) models.FactCheckResult {
	return models.FactCheckResult{
		ID:              uuid.NewString(),
		ClaimID:         claim.ID,
		Accuracy:        models.AccuracyUncertain,
		ConfidenceTier:  models.TierLow,
		ConfidenceScore: 0,
		Sources:         []models.VerificationSource{},
		Summary:         "Verification did not complete within the time budget. No verdict is available for this claim yet.",
		VoiceSummary:    "Verification timed out before a verdict was reached.",
		Flagged:         true,
		CreatedAt:       time.Now().UTC(),
	}
}

func meanCredibility(sources []models.VerificationSource) int {
	if len(sources) == 0 {
		return 0
	}
	sum := 0
	for _, src := range sources {
		sum += src.CredibilityScore
	}
	return sum / len(sources)
}

func accuracyFor(score int) models.Accuracy {
	switch {
	case score >= verifiedThreshold:
		return models.AccuracyVerified
	case score >= partialThreshold:
		return models.AccuracyPartial
	default:
		return models.AccuracyUncertain
	}
}

func tierFor(score int) models.ConfidenceTier {
	switch {
	case score >= verifiedThreshold:
		return models.TierHigh
	case score >= partialThreshold:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// detectContradictions runs the antonym-pair heuristic over every pair of
// source excerpts.
func detectContradictions(sources []models.VerificationSource) []string {
	var contradictions []string
	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			if excerptsContradict(sources[i].Excerpt, sources[j].Excerpt) {
				contradictions = append(contradictions,
					fmt.Sprintf("%s vs %s: conflicting statements", sources[i].Domain, sources[j].Domain))
			}
		}
	}
	return contradictions
}

func excerptsContradict(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range contradictoryPairs {
		if (containsWord(la, pair[0]) && containsWord(lb, pair[1])) ||
			(containsWord(la, pair[1]) && containsWord(lb, pair[0])) {
			return true
		}
	}
	return false
}

func detectUncertainties(sources []models.VerificationSource) []string {
	var uncertainties []string
	for _, src := range sources {
		hedged := false
		lower := strings.ToLower(src.Excerpt)
		for _, marker := range uncertaintyMarkers {
			if containsWord(lower, marker) {
				hedged = true
				break
			}
		}
		if hedged || src.CredibilityScore < uncertaintySourceScoreFloor {
			uncertainties = append(uncertainties,
				fmt.Sprintf("%s: hedged or low-credibility statement", src.Domain))
		}
	}
	return uncertainties
}

// negatedByAuthoritativeSource reports whether a source with credibility
// at or above the floor explicitly negates the claim.
func negatedByAuthoritativeSource(claim models.Claim, sources []models.VerificationSource) bool {
	for _, src := range sources {
		if src.CredibilityScore < negationCredibilityFloor {
			continue
		}
		lower := strings.ToLower(src.Excerpt)
		for _, phrase := range negationPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}

func topSource(sources []models.VerificationSource) models.VerificationSource {
	top := sources[0]
	for _, src := range sources[1:] {
		if src.CredibilityScore > top.CredibilityScore {
			top = src
		}
	}
	return top
}

func buildSummary(accuracy models.Accuracy, score int, top models.VerificationSource) string {
	var lead string
	switch accuracy {
	case models.AccuracyVerified:
		lead = fmt.Sprintf("Verified with %d%% confidence.", score)
	case models.AccuracyFalse:
		lead = fmt.Sprintf("Contradicted by the evidence (%d%% confidence).", score)
	case models.AccuracyPartial:
		lead = fmt.Sprintf("Partially supported (%d%% confidence); some aspects remain disputed.", score)
	default:
		lead = fmt.Sprintf("Uncertain (%d%% confidence); the evidence is mixed.", score)
	}

	body := fmt.Sprintf("%s %s %s reports: %s",
		lead, "Top source:", top.Domain, top.Excerpt)
	return truncateWords(body, summaryMaxWords)
}

func buildVoiceSummary(accuracy models.Accuracy, top models.VerificationSource, contradictions, uncertainties []string) string {
	var lead string
	switch accuracy {
	case models.AccuracyVerified:
		lead = "That claim checks out."
	case models.AccuracyFalse:
		lead = "That claim appears to be false."
	case models.AccuracyPartial:
		lead = "That claim is only partially supported."
	default:
		lead = "The evidence on that claim is mixed."
	}

	parts := []string{lead, fmt.Sprintf("The strongest source is %s.", top.Domain)}
	if len(contradictions) > 0 {
		parts = append(parts, "Sources disagree with each other.")
	}
	if len(uncertainties) > 0 {
		parts = append(parts, "Some details remain uncertain.")
	}
	return truncateWords(strings.Join(parts, " "), voiceSummaryMaxWords)
}

func truncateWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:max], " ") + "..."
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end == len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}
