package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/factpulse/factpulse/internal/providers"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequiredSources is the fixed number of sources backing every verdict.
const RequiredSources = 3

// ErrInsufficientSources is returned when fewer than three distinct-domain
// candidates survive deduplication. Callers must treat it as "unable to
// verify", not as a pipeline fault.
var ErrInsufficientSources = errors.New("fewer than three distinct-domain sources found")

// ErrAllProvidersFailed is returned when every configured adapter failed
// with a hard transport error. Retryable.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Aggregator fans a claim out to every configured provider concurrently,
// deduplicates and scores the candidates, and selects exactly three
// maximizing credibility and category diversity. Stateless across calls.
type Aggregator struct {
	providers       []providers.Provider
	scorer          *Scorer
	providerTimeout time.Duration
}

// New creates an aggregator over the given providers. Each provider call
// runs under its own providerTimeout, independent of the claim deadline.
func New(provs []providers.Provider, scorer *Scorer, providerTimeout time.Duration) *Aggregator {
	return &Aggregator{
		providers:       provs,
		scorer:          scorer,
		providerTimeout: providerTimeout,
	}
}

// Aggregate returns exactly RequiredSources scored sources for the claim,
// or ErrInsufficientSources / ErrAllProvidersFailed.
func (a *Aggregator) Aggregate(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error) {
	enabled := make([]providers.Provider, 0, len(a.providers))
	for _, p := range a.providers {
		if p.IsEnabled() {
			enabled = append(enabled, p)
		}
	}

	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrAllProvidersFailed)
	}

	var wg sync.WaitGroup
	resultsChan := make(chan []models.VerificationSource, len(enabled))
	errorsChan := make(chan error, len(enabled))

	for _, p := range enabled {
		wg.Add(1)
		go func(p providers.Provider) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.providerTimeout)
			defer cancel()

			sources, err := p.Search(callCtx, claim.Text)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					logrus.Warnf("Provider %s timed out after %v", p.Name(), a.providerTimeout)
				} else {
					logrus.Errorf("Provider %s failed: %v", p.Name(), err)
				}
				errorsChan <- err
				return
			}

			logrus.Debugf("Provider %s returned %d candidates", p.Name(), len(sources))
			resultsChan <- sources
		}(p)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
		close(errorsChan)
	}()

	var candidates []models.VerificationSource
	for sources := range resultsChan {
		candidates = append(candidates, sources...)
	}

	errorCount := 0
	var lastErr error
	for err := range errorsChan {
		errorCount++
		lastErr = err
	}

	if errorCount == len(enabled) {
		return nil, fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
	}

	candidates = a.prepare(candidates)

	if len(candidates) < RequiredSources {
		return nil, fmt.Errorf("%w: %d candidates after dedup", ErrInsufficientSources, len(candidates))
	}

	return selectDiverse(candidates), nil
}

// prepare discards invalid URLs, canonicalizes domains, deduplicates by
// domain and assigns credibility scores. First-seen candidates win a
// domain; a later duplicate replaces it only when it scores higher.
func (a *Aggregator) prepare(candidates []models.VerificationSource) []models.VerificationSource {
	byDomain := make(map[string]models.VerificationSource)
	var order []string

	for _, c := range candidates {
		domain, ok := canonicalDomain(c.URL)
		if !ok {
			logrus.Debugf("Dropping candidate with invalid URL: %q", c.URL)
			continue
		}

		c.Domain = domain
		if c.Category == "" {
			c.Category = classifyDomain(domain)
		}
		c.CredibilityScore = a.scorer.Score(c)
		if c.ID == "" {
			c.ID = uuid.NewString()
		}

		existing, seen := byDomain[domain]
		if !seen {
			byDomain[domain] = c
			order = append(order, domain)
			continue
		}
		if c.CredibilityScore > existing.CredibilityScore {
			byDomain[domain] = c
		}
	}

	deduped := make([]models.VerificationSource, 0, len(order))
	for _, domain := range order {
		deduped = append(deduped, byDomain[domain])
	}
	return deduped
}

// selectDiverse picks exactly RequiredSources sources: greedy by
// credibility, preferring unseen categories; falls back to top-3 overall
// when fewer than three distinct categories exist. Ties break by domain
// so selection is deterministic.
func selectDiverse(candidates []models.VerificationSource) []models.VerificationSource {
	sorted := make([]models.VerificationSource, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CredibilityScore != sorted[j].CredibilityScore {
			return sorted[i].CredibilityScore > sorted[j].CredibilityScore
		}
		return sorted[i].Domain < sorted[j].Domain
	})

	selected := make([]models.VerificationSource, 0, RequiredSources)
	usedCategories := make(map[models.SourceCategory]bool)
	usedDomains := make(map[string]bool)

	for _, c := range sorted {
		if len(selected) == RequiredSources {
			break
		}
		if usedCategories[c.Category] {
			continue
		}
		selected = append(selected, c)
		usedCategories[c.Category] = true
		usedDomains[c.Domain] = true
	}

	// Not enough distinct categories: top up by raw credibility.
	for _, c := range sorted {
		if len(selected) == RequiredSources {
			break
		}
		if usedDomains[c.Domain] {
			continue
		}
		selected = append(selected, c)
		usedDomains[c.Domain] = true
	}

	return selected
}

// canonicalDomain extracts the lowercase host without a www. prefix or
// port. Returns false for unparseable or non-HTTP URLs.
func canonicalDomain(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", false
	}
	host = strings.TrimPrefix(host, "www.")
	return host, true
}
