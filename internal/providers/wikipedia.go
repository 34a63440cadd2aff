package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultWikipediaBaseURL = "https://en.wikipedia.org"

// WikipediaProvider searches article summaries via the MediaWiki search
// API. No credentials required.
type WikipediaProvider struct {
	baseURL string
	client  *resty.Client
	limiter *rate.Limiter
}

type wikipediaResponse struct {
	Query struct {
		Search []wikipediaHit `json:"search"`
	} `json:"query"`
}

type wikipediaHit struct {
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Timestamp string `json:"timestamp"`
}

// NewWikipediaProvider creates a Wikipedia-backed encyclopedic provider
func NewWikipediaProvider(rps float64, burst int) *WikipediaProvider {
	return &WikipediaProvider{
		baseURL: defaultWikipediaBaseURL,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("User-Agent", "factpulse/1.0"),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *WikipediaProvider) Name() string { return "wikipedia" }

func (p *WikipediaProvider) Category() models.SourceCategory { return models.CategoryEncyclopedic }

// IsEnabled always returns true; the MediaWiki API is open.
func (p *WikipediaProvider) IsEnabled() bool { return true }

func (p *WikipediaProvider) Search(ctx context.Context, claimText string) ([]models.VerificationSource, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"action":   "query",
			"list":     "search",
			"srsearch": claimText,
			"srlimit":  "5",
			"format":   "json",
		}).
		Get(p.baseURL + "/w/api.php")

	if err != nil {
		return nil, fmt.Errorf("wikipedia request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("wikipedia returned status %d", resp.StatusCode())
	}

	var parsed wikipediaResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("wikipedia response decode failed: %w", err)
	}

	var sources []models.VerificationSource
	for _, hit := range parsed.Query.Search {
		if hit.Title == "" {
			continue
		}

		src := models.VerificationSource{
			Title:    hit.Title,
			URL:      p.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")),
			Category: models.CategoryEncyclopedic,
			Excerpt:  stripSearchMarkup(hit.Snippet),
		}
		if ts, err := time.Parse(time.RFC3339, hit.Timestamp); err == nil {
			src.PublishedAt = ts
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// stripSearchMarkup removes the highlight spans MediaWiki embeds in
// search snippets.
func stripSearchMarkup(snippet string) string {
	replacer := strings.NewReplacer(
		`<span class="searchmatch">`, "",
		"</span>", "",
		"&quot;", `"`,
		"&amp;", "&",
	)
	return strings.TrimSpace(replacer.Replace(snippet))
}
