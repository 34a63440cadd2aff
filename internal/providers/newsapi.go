package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultNewsAPIBaseURL = "https://newsapi.org"

// NewsAPIProvider searches news coverage via the NewsAPI "everything"
// endpoint.
type NewsAPIProvider struct {
	apiKey  string
	baseURL string
	client  *resty.Client
	limiter *rate.Limiter
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// NewNewsAPIProvider creates a NewsAPI-backed news provider
func NewNewsAPIProvider(apiKey string, rps float64, burst int) *NewsAPIProvider {
	return &NewsAPIProvider{
		apiKey:  apiKey,
		baseURL: defaultNewsAPIBaseURL,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("User-Agent", "factpulse/1.0"),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *NewsAPIProvider) Name() string { return "newsapi" }

func (p *NewsAPIProvider) Category() models.SourceCategory { return models.CategoryNews }

func (p *NewsAPIProvider) IsEnabled() bool { return p.apiKey != "" }

func (p *NewsAPIProvider) Search(ctx context.Context, claimText string) ([]models.VerificationSource, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", p.apiKey).
		SetQueryParams(map[string]string{
			"q":        claimText,
			"language": "en",
			"sortBy":   "relevancy",
			"pageSize": "5",
		}).
		Get(p.baseURL + "/v2/everything")

	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("newsapi returned status %d", resp.StatusCode())
	}

	var parsed newsAPIResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("newsapi response decode failed: %w", err)
	}

	var sources []models.VerificationSource
	for _, article := range parsed.Articles {
		if article.URL == "" {
			continue
		}

		src := models.VerificationSource{
			Title:    article.Title,
			URL:      article.URL,
			Category: models.CategoryNews,
			Excerpt:  article.Description,
		}
		if ts, err := time.Parse(time.RFC3339, article.PublishedAt); err == nil {
			src.PublishedAt = ts
		}
		sources = append(sources, src)
	}

	return sources, nil
}
