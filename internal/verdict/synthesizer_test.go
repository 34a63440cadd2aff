package verdict

import (
	"strings"
	"testing"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClaim() models.Claim {
	return models.Claim{ID: "claim-1", SessionID: "sess-1", Text: "Coffee reduces the risk of heart disease by 30%"}
}

func source(domain string, category models.SourceCategory, score int, excerpt string) models.VerificationSource {
	return models.VerificationSource{
		ID:               "src-" + domain,
		Title:            "Article on " + domain,
		URL:              "https://" + domain + "/article",
		Domain:           domain,
		Category:         category,
		CredibilityScore: score,
		Excerpt:          excerpt,
	}
}

func TestSynthesize_VerifiedAboveThreshold(t *testing.T) {
	s := New()
	sources := []models.VerificationSource{
		source("cdc.gov", models.CategoryGovernment, 95, "The data supports the stated effect."),
		source("nature.com", models.CategoryAcademic, 92, "Results are consistent across cohorts."),
		source("reuters.com", models.CategoryNews, 85, "Experts agree the figure is accurate."),
	}

	result := s.Synthesize(testClaim(), sources)

	assert.Equal(t, models.AccuracyVerified, result.Accuracy)
	assert.Equal(t, models.TierHigh, result.ConfidenceTier)
	assert.Equal(t, 90, result.ConfidenceScore)
	assert.False(t, result.Flagged)
	assert.Len(t, result.Sources, 3)
}

func TestSynthesize_CoffeeClaimScenario(t *testing.T) {
	// Mixed-credibility evidence across three categories lands in the
	// partial band.
	s := New()
	sources := []models.VerificationSource{
		source("cdc.gov", models.CategoryGovernment, 92, "Moderate coffee intake is associated with lower cardiovascular risk."),
		source("nature.com", models.CategoryAcademic, 88, "The observed reduction was smaller than 30 percent."),
		source("reuters.com", models.CategoryNews, 81, "Researchers caution the exact figure is disputed."),
	}

	result := s.Synthesize(testClaim(), sources)

	assert.Equal(t, models.AccuracyPartial, result.Accuracy)
	assert.Equal(t, models.TierMedium, result.ConfidenceTier)
	assert.Equal(t, 87, result.ConfidenceScore)
	require.Len(t, result.Sources, 3)

	categories := make(map[models.SourceCategory]bool)
	for _, src := range result.Sources {
		categories[src.Category] = true
	}
	assert.Len(t, categories, 3)
}

func TestSynthesize_ContradictionPenalty(t *testing.T) {
	s := New()
	sources := []models.VerificationSource{
		source("cdc.gov", models.CategoryGovernment, 92, "Rates continued to increase through the decade."),
		source("nature.com", models.CategoryAcademic, 92, "The study found rates decrease over the same period."),
		source("reuters.com", models.CategoryNews, 92, "Coverage of the trend has been extensive."),
	}

	result := s.Synthesize(testClaim(), sources)

	require.NotEmpty(t, result.Contradictions)
	// 92 mean minus one pairwise contradiction.
	assert.Equal(t, 92-contradictionPenalty, result.ConfidenceScore)
}

func TestSynthesize_AuthoritativeNegationForcesFalse(t *testing.T) {
	s := New()
	sources := []models.VerificationSource{
		source("who.int", models.CategoryGovernment, 97, "This claim has been debunked by multiple reviews."),
		source("nature.com", models.CategoryAcademic, 90, "No such effect was observed."),
		source("reuters.com", models.CategoryNews, 85, "The claim circulated widely online."),
	}

	result := s.Synthesize(testClaim(), sources)

	assert.Equal(t, models.AccuracyFalse, result.Accuracy)
	assert.True(t, result.Flagged)
}

func TestSynthesize_LowCredibilityNegationDoesNotForceFalse(t *testing.T) {
	s := New()
	sources := []models.VerificationSource{
		source("blog.example.com", models.CategoryOther, 70, "This is false and a myth."),
		source("forum.example.org", models.CategoryOther, 70, "Probably not true."),
		source("site.example.net", models.CategoryOther, 70, "Hard to say."),
	}

	result := s.Synthesize(testClaim(), sources)

	assert.NotEqual(t, models.AccuracyFalse, result.Accuracy)
	assert.Equal(t, models.AccuracyUncertain, result.Accuracy)
}

func TestSynthesize_UncertaintiesRecorded(t *testing.T) {
	s := New()
	sources := []models.VerificationSource{
		source("cdc.gov", models.CategoryGovernment, 95, "The effect may depend on dosage."),
		source("nature.com", models.CategoryAcademic, 92, "Findings are robust."),
		source("reddit.com", models.CategorySocial, 50, "People are saying all kinds of things."),
	}

	result := s.Synthesize(testClaim(), sources)

	// One hedged excerpt plus one low-credibility source.
	assert.Len(t, result.Uncertainties, 2)
}

func TestSynthesize_SummaryWordBudgets(t *testing.T) {
	s := New()
	long := strings.Repeat("a very long excerpt with many words ", 20)
	sources := []models.VerificationSource{
		source("cdc.gov", models.CategoryGovernment, 95, long),
		source("nature.com", models.CategoryAcademic, 92, long),
		source("reuters.com", models.CategoryNews, 85, long),
	}

	result := s.Synthesize(testClaim(), sources)

	assert.LessOrEqual(t, wordCount(result.Summary), 61)
	assert.LessOrEqual(t, wordCount(result.VoiceSummary), 36)
	assert.NotEmpty(t, result.VoiceSummary)
}

func TestSynthesize_Deterministic(t *testing.T) {
	s := New()
	sources := []models.VerificationSource{
		source("cdc.gov", models.CategoryGovernment, 95, "Supported by surveillance data."),
		source("nature.com", models.CategoryAcademic, 92, "Replicated in three trials."),
		source("reuters.com", models.CategoryNews, 85, "Widely reported."),
	}

	first := s.Synthesize(testClaim(), sources)
	second := s.Synthesize(testClaim(), sources)

	assert.Equal(t, first.Accuracy, second.Accuracy)
	assert.Equal(t, first.ConfidenceScore, second.ConfidenceScore)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.VoiceSummary, second.VoiceSummary)
	assert.Equal(t, first.Contradictions, second.Contradictions)
}

func TestUnverifiable(t *testing.T) {
	s := New()
	result := s.Unverifiable(testClaim())

	assert.Equal(t, models.AccuracyUnverifiable, result.Accuracy)
	assert.Empty(t, result.Sources)
	assert.NotNil(t, result.Sources, "sources must be an empty list, not null")
	assert.Equal(t, 0, result.ConfidenceScore)
	assert.True(t, result.Flagged)
}

func TestDegraded(t *testing.T) {
	s := New()
	result := s.Degraded(testClaim())

	assert.Equal(t, models.AccuracyUncertain, result.Accuracy)
	assert.Equal(t, models.TierLow, result.ConfidenceTier)
	assert.Equal(t, 0, result.ConfidenceScore)
	assert.True(t, result.Flagged)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
