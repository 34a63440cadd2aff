package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultCrossrefBaseURL = "https://api.crossref.org"

// CrossrefProvider searches peer-reviewed literature via the Crossref
// works API. No credentials required.
type CrossrefProvider struct {
	baseURL string
	client  *resty.Client
	limiter *rate.Limiter
}

type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	Title    []string `json:"title"`
	DOI      string   `json:"DOI"`
	URL      string   `json:"URL"`
	Abstract string   `json:"abstract"`
	Created  struct {
		DateTime string `json:"date-time"`
	} `json:"created"`
}

// NewCrossrefProvider creates a Crossref-backed academic provider
func NewCrossrefProvider(rps float64, burst int) *CrossrefProvider {
	return &CrossrefProvider{
		baseURL: defaultCrossrefBaseURL,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("User-Agent", "factpulse/1.0 (mailto:ops@factpulse.dev)"),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *CrossrefProvider) Name() string { return "crossref" }

func (p *CrossrefProvider) Category() models.SourceCategory { return models.CategoryAcademic }

// IsEnabled always returns true; the Crossref API is open.
func (p *CrossrefProvider) IsEnabled() bool { return true }

func (p *CrossrefProvider) Search(ctx context.Context, claimText string) ([]models.VerificationSource, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query": claimText,
			"rows":  "5",
		}).
		Get(p.baseURL + "/works")

	if err != nil {
		return nil, fmt.Errorf("crossref request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("crossref returned status %d", resp.StatusCode())
	}

	var parsed crossrefResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("crossref response decode failed: %w", err)
	}

	var sources []models.VerificationSource
	for _, work := range parsed.Message.Items {
		u := work.URL
		if u == "" && work.DOI != "" {
			u = "https://doi.org/" + work.DOI
		}
		if u == "" || len(work.Title) == 0 {
			continue
		}

		src := models.VerificationSource{
			Title:    work.Title[0],
			URL:      u,
			Category: models.CategoryAcademic,
			Excerpt:  stripJATSMarkup(work.Abstract),
		}
		if ts, err := time.Parse(time.RFC3339, work.Created.DateTime); err == nil {
			src.PublishedAt = ts
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// stripJATSMarkup removes the JATS XML tags Crossref embeds in abstracts.
func stripJATSMarkup(abstract string) string {
	var b strings.Builder
	inTag := false
	for _, r := range abstract {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
