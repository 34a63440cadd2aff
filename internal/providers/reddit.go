package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// RedditProvider surfaces public discussion of a claim via the Reddit
// search API. Social sources carry low base credibility but widen
// category diversity.
type RedditProvider struct {
	clientID     string
	clientSecret string
	authURL      string
	searchURL    string
	client       *resty.Client
	limiter      *rate.Limiter

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Selftext  string  `json:"selftext"`
	Subreddit string  `json:"subreddit"`
	Permalink string  `json:"permalink"`
	Created   float64 `json:"created_utc"`
}

// NewRedditProvider creates a Reddit-backed social provider
func NewRedditProvider(clientID, clientSecret string, rps float64, burst int) *RedditProvider {
	return &RedditProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      "https://www.reddit.com/api/v1/access_token",
		searchURL:    "https://oauth.reddit.com/search.json",
		client:       resty.New().SetTimeout(10 * time.Second),
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *RedditProvider) Name() string { return "reddit" }

func (p *RedditProvider) Category() models.SourceCategory { return models.CategorySocial }

func (p *RedditProvider) IsEnabled() bool {
	return p.clientID != "" && p.clientSecret != ""
}

func (p *RedditProvider) Search(ctx context.Context, claimText string) ([]models.VerificationSource, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := p.authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", "factpulse/1.0").
		SetQueryParams(map[string]string{
			"q":     claimText,
			"sort":  "relevance",
			"limit": "5",
		}).
		Get(p.searchURL)

	if err != nil {
		return nil, fmt.Errorf("reddit request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("reddit returned status %d", resp.StatusCode())
	}

	var parsed redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("reddit response decode failed: %w", err)
	}

	var sources []models.VerificationSource
	for _, child := range parsed.Data.Children {
		post := child.Data
		if post.Permalink == "" {
			continue
		}

		excerpt := truncateExcerpt(post.Selftext, 400)

		sources = append(sources, models.VerificationSource{
			Title:       fmt.Sprintf("%s (r/%s)", post.Title, post.Subreddit),
			URL:         "https://reddit.com" + post.Permalink,
			Category:    models.CategorySocial,
			Excerpt:     excerpt,
			PublishedAt: time.Unix(int64(post.Created), 0).UTC(),
		})
	}

	return sources, nil
}

// authenticate obtains an app-only OAuth token, reusing it until shortly
// before expiry.
func (p *RedditProvider) authenticate(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "factpulse/1.0").
		SetBasicAuth(p.clientID, p.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(p.authURL)

	if err != nil {
		return "", err
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", err
	}

	if authResp.AccessToken == "" {
		return "", fmt.Errorf("reddit auth returned empty token")
	}

	p.accessToken = authResp.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn-60) * time.Second)
	return p.accessToken, nil
}
