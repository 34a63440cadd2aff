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

const defaultDataGovBaseURL = "https://catalog.data.gov"

// DataGovProvider searches official datasets via the data.gov CKAN
// package search API. No credentials required.
type DataGovProvider struct {
	baseURL string
	client  *resty.Client
	limiter *rate.Limiter
}

type ckanResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Results []ckanPackage `json:"results"`
	} `json:"result"`
}

type ckanPackage struct {
	Name             string `json:"name"`
	Title            string `json:"title"`
	Notes            string `json:"notes"`
	MetadataModified string `json:"metadata_modified"`
}

// NewDataGovProvider creates a data.gov-backed government provider
func NewDataGovProvider(rps float64, burst int) *DataGovProvider {
	return &DataGovProvider{
		baseURL: defaultDataGovBaseURL,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("User-Agent", "factpulse/1.0"),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *DataGovProvider) Name() string { return "datagov" }

func (p *DataGovProvider) Category() models.SourceCategory { return models.CategoryGovernment }

// IsEnabled always returns true; the CKAN API is open.
func (p *DataGovProvider) IsEnabled() bool { return true }

func (p *DataGovProvider) Search(ctx context.Context, claimText string) ([]models.VerificationSource, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":    claimText,
			"rows": "5",
		}).
		Get(p.baseURL + "/api/3/action/package_search")

	if err != nil {
		return nil, fmt.Errorf("datagov request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("datagov returned status %d", resp.StatusCode())
	}

	var parsed ckanResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("datagov response decode failed: %w", err)
	}

	if !parsed.Success {
		return nil, fmt.Errorf("datagov search reported failure")
	}

	var sources []models.VerificationSource
	for _, pkg := range parsed.Result.Results {
		if pkg.Name == "" {
			continue
		}

		excerpt := truncateExcerpt(pkg.Notes, 400)

		src := models.VerificationSource{
			Title:    pkg.Title,
			URL:      p.baseURL + "/dataset/" + pkg.Name,
			Category: models.CategoryGovernment,
			Excerpt:  excerpt,
		}
		if ts, err := time.Parse("2006-01-02T15:04:05.999999", pkg.MetadataModified); err == nil {
			src.PublishedAt = ts
		}
		sources = append(sources, src)
	}

	return sources, nil
}
