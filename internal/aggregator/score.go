package aggregator

import (
	"strings"

	"github.com/factpulse/factpulse/internal/models"
)

// Category base scores. The credibility of a candidate is a deterministic
// function of its category, a known-outlet bonus and hedging-language
// penalties found in the excerpt.
var categoryBaseScores = map[models.SourceCategory]int{
	models.CategoryGovernment:   95,
	models.CategoryAcademic:     90,
	models.CategoryEncyclopedic: 85,
	models.CategoryNews:         80,
	models.CategorySocial:       50,
	models.CategoryOther:        70,
}

// Outlets with an established accuracy track record get a small bonus on
// top of their category base.
var knownReliableOutlets = map[string]bool{
	"reuters.com":           true,
	"apnews.com":            true,
	"bbc.com":               true,
	"bbc.co.uk":             true,
	"nature.com":            true,
	"science.org":           true,
	"nejm.org":              true,
	"thelancet.com":         true,
	"who.int":               true,
	"cdc.gov":               true,
	"nih.gov":               true,
	"pubmed.ncbi.nlm.nih.gov": true,
	"census.gov":            true,
	"bls.gov":               true,
	"data.gov":              true,
	"catalog.data.gov":      true,
	"europa.eu":             true,
	"britannica.com":        true,
}

const knownOutletBonus = 5

// Hedging markers in an excerpt lower the candidate's score; each distinct
// marker costs hedgingPenalty points.
var hedgingMarkers = []string{
	"may", "might", "possibly", "unclear", "disputed", "alleged",
	"reportedly", "rumored", "unconfirmed",
}

const hedgingPenalty = 4

// Scorer assigns credibility scores to candidate sources.
type Scorer struct {
	extraTrusted map[string]bool
}

// NewScorer creates a scorer. Extra trusted domains (deployment-specific
// outlets) receive the same bonus as the built-in list.
func NewScorer(trustedDomains []string) *Scorer {
	extra := make(map[string]bool, len(trustedDomains))
	for _, d := range trustedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			extra[d] = true
		}
	}
	return &Scorer{extraTrusted: extra}
}

// Score computes the 0-100 credibility score for one candidate. The
// candidate's Domain must already be canonicalized.
func (s *Scorer) Score(src models.VerificationSource) int {
	category := src.Category
	if category == "" {
		category = classifyDomain(src.Domain)
	}

	score, ok := categoryBaseScores[category]
	if !ok {
		score = categoryBaseScores[models.CategoryOther]
	}

	if knownReliableOutlets[src.Domain] || s.extraTrusted[src.Domain] {
		score += knownOutletBonus
	}

	score -= hedgingPenalty * countHedgingMarkers(src.Excerpt)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// classifyDomain infers a category from the domain when the provider did
// not set one. Suffix rules cover official and academic registries.
func classifyDomain(domain string) models.SourceCategory {
	switch {
	case strings.HasSuffix(domain, ".gov") || strings.Contains(domain, ".gov."):
		return models.CategoryGovernment
	case strings.HasSuffix(domain, ".edu") || strings.HasSuffix(domain, ".ac.uk"):
		return models.CategoryAcademic
	case strings.Contains(domain, "wikipedia.org") || domain == "britannica.com":
		return models.CategoryEncyclopedic
	case domain == "reddit.com" || domain == "twitter.com" || domain == "x.com":
		return models.CategorySocial
	default:
		return models.CategoryOther
	}
}

func countHedgingMarkers(excerpt string) int {
	if excerpt == "" {
		return 0
	}

	words := strings.FieldsFunc(strings.ToLower(excerpt), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	present := make(map[string]bool)
	for _, w := range words {
		present[w] = true
	}

	count := 0
	for _, marker := range hedgingMarkers {
		if present[marker] {
			count++
		}
	}
	return count
}
