package providers

import (
	"context"
	"unicode/utf8"

	"github.com/factpulse/factpulse/internal/models"
)

// Provider is the uniform search capability over one external backend.
// Implementations return zero candidates (not an error) when nothing
// matches; errors are reserved for hard transport failure. The caller owns
// the per-call timeout via ctx.
type Provider interface {
	Name() string
	Category() models.SourceCategory
	Search(ctx context.Context, claimText string) ([]models.VerificationSource, error)
	IsEnabled() bool
}

// truncateExcerpt caps an excerpt at max bytes without splitting a
// multi-byte rune.
func truncateExcerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
