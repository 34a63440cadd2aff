package claims

import (
	"regexp"
	"strings"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/google/uuid"
)

// Transcript text shorter than this is never a checkable claim.
const minClaimLength = 20

// Patterns that make a sentence worth checking: concrete numbers, dates,
// citations and quantified assertions.
var claimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+(\.\d+)?\s*(%|percent)`),
	regexp.MustCompile(`\bin\s+(19|20)\d{2}\b`),
	regexp.MustCompile(`(?i)\baccording to\b`),
	regexp.MustCompile(`(?i)\b(studies|study|research|researchers|scientists)\s+(show|shows|showed|found|prove|proves|suggest|suggests)\b`),
	regexp.MustCompile(`[$€£]\s?\d`),
	regexp.MustCompile(`(?i)\d+(\.\d+)?\s*(million|billion|trillion|thousand)\b`),
	regexp.MustCompile(`(?i)\b(always|never|every|all|none|no one)\s+\w+`),
	regexp.MustCompile(`(?i)\b(causes?|prevents?|cures?|reduces?|increases?|doubles?)\b.*\b(risk|rate|chance|cases|deaths)\b`),
}

// Likely reports whether a piece of transcript text looks like a
// verifiable factual claim. It is a cheap filter, not a classifier: false
// positives cost one wasted job, false negatives cost a missed check.
func Likely(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minClaimLength {
		return false
	}
	for _, p := range claimPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// New builds a claim with a fresh id.
func New(sessionID, text string, origin models.ClaimOrigin) models.Claim {
	return models.Claim{
		ID:         uuid.NewString(),
		Text:       strings.TrimSpace(text),
		SessionID:  sessionID,
		Origin:     origin,
		CreatedAt:  time.Now().UTC(),
		Confidence: 1.0,
	}
}

// FromSegment extracts detected claims from a finalized transcript
// segment. Non-final segments and unlikely text yield nothing.
func FromSegment(sessionID string, seg models.TranscriptSegment) []models.Claim {
	if !seg.Final {
		return nil
	}

	var out []models.Claim
	for _, sentence := range splitSentences(seg.Text) {
		if !Likely(sentence) {
			continue
		}
		claim := New(sessionID, sentence, models.OriginDetected)
		claim.Confidence = seg.Confidence
		out = append(out, claim)
	}
	return out
}

func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// CommandKind classifies a parsed voice command.
type CommandKind string

const (
	CommandCheck       CommandKind = "check"
	CommandReadSources CommandKind = "read_sources"
	CommandHelp        CommandKind = "help"
	CommandUnknown     CommandKind = "unknown"
)

// Command is a parsed voice instruction.
type Command struct {
	Kind CommandKind
	Text string // claim text for CommandCheck
}

// HelpText is spoken back for the help command.
const HelpText = "Say check followed by a statement to verify it, " +
	"read sources to hear where the last verdict came from, or help to repeat this."

// ParseVoiceCommand interprets a spoken instruction. "check <claim>"
// produces a checkable claim text; other known phrases map to their
// commands; everything else is unknown and ignored by callers.
func ParseVoiceCommand(utterance string) Command {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	normalized = strings.TrimSuffix(normalized, ".")

	switch {
	case strings.HasPrefix(normalized, "check "):
		text := strings.TrimSpace(utterance[strings.Index(strings.ToLower(utterance), "check ")+len("check "):])
		return Command{Kind: CommandCheck, Text: text}
	case normalized == "read sources" || normalized == "read the sources":
		return Command{Kind: CommandReadSources}
	case normalized == "help":
		return Command{Kind: CommandHelp}
	default:
		return Command{Kind: CommandUnknown}
	}
}
