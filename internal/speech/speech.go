package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Synthesizer renders a voice summary to playable audio. Failures are
// never fatal to result delivery; callers fall back to text-only.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, settings models.VoiceSettings) (models.AudioClip, error)
	IsEnabled() bool
}

// Noop is used when no TTS endpoint is configured.
type Noop struct{}

func (Noop) Synthesize(context.Context, string, models.VoiceSettings) (models.AudioClip, error) {
	return models.AudioClip{}, fmt.Errorf("speech synthesis is not configured")
}

func (Noop) IsEnabled() bool { return false }

// HTTPSynthesizer calls an external text-to-speech service.
type HTTPSynthesizer struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)

// NewHTTPSynthesizer creates a TTS adapter for the given endpoint.
func NewHTTPSynthesizer(endpoint, apiKey string) *HTTPSynthesizer {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(1)

	return &HTTPSynthesizer{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

func (s *HTTPSynthesizer) IsEnabled() bool {
	return s.endpoint != ""
}

type synthesisRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice"`
	Speed  float64 `json:"speed"`
	Volume float64 `json:"volume"`
}

type synthesisResponse struct {
	AudioURL   string `json:"audio_url"`
	DurationMs int64  `json:"duration_ms"`
}

// Synthesize renders text with the session's voice settings.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, settings models.VoiceSettings) (models.AudioClip, error) {
	if !s.IsEnabled() {
		return models.AudioClip{}, fmt.Errorf("speech synthesis is not configured")
	}

	var result synthesisResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.apiKey).
		SetBody(synthesisRequest{
			Text:   text,
			Voice:  settings.VoiceType,
			Speed:  settings.Speed,
			Volume: settings.Volume,
		}).
		SetResult(&result).
		Post(s.endpoint)

	if err != nil {
		return models.AudioClip{}, fmt.Errorf("tts request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return models.AudioClip{}, fmt.Errorf("tts service returned status %d", resp.StatusCode())
	}
	if result.AudioURL == "" {
		return models.AudioClip{}, fmt.Errorf("tts service returned no audio")
	}

	logrus.Debugf("Synthesized %d chars of speech (%dms)", len(text), result.DurationMs)
	return models.AudioClip{URL: result.AudioURL, DurationMs: result.DurationMs}, nil
}
