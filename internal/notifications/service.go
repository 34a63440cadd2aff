package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/factpulse/factpulse/internal/config"
	"github.com/factpulse/factpulse/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service pushes flagged fact-check results to the configured webhook
// and/or email. Alerting runs off the hot path; callers tolerate errors.
type Service struct {
	config *config.Config
	client *resty.Client
}

var _ NotificationInterface = (*Service)(nil)

// CardMessage is the MessageCard-style webhook payload.
type CardMessage struct {
	Type     string        `json:"@type"`
	Context  string        `json:"@context"`
	Title    string        `json:"title"`
	Text     string        `json:"text"`
	Sections []CardSection `json:"sections,omitempty"`
}

type CardSection struct {
	ActivityTitle string     `json:"activityTitle,omitempty"`
	ActivityText  string     `json:"activityText,omitempty"`
	Facts         []CardFact `json:"facts,omitempty"`
	Markdown      bool       `json:"markdown,omitempty"`
}

type CardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a notification service.
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// NotifyFlagged sends the flagged result over every configured channel.
func (s *Service) NotifyFlagged(claim models.Claim, result models.FactCheckResult) error {
	var errs []string

	if s.config.AlertWebhookURL != "" {
		if err := s.sendWebhook(claim, result); err != nil {
			logrus.Errorf("Failed to send webhook alert: %v", err)
			errs = append(errs, fmt.Sprintf("webhook: %v", err))
		} else {
			logrus.Infof("Sent webhook alert for flagged claim %s", claim.ID)
		}
	}

	if s.config.AlertEmail != "" {
		if err := s.sendEmail(claim, result); err != nil {
			logrus.Errorf("Failed to send email alert: %v", err)
			errs = append(errs, fmt.Sprintf("email: %v", err))
		} else {
			logrus.Infof("Sent email alert for flagged claim %s", claim.ID)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Service) sendWebhook(claim models.Claim, result models.FactCheckResult) error {
	message := s.buildCard(claim, result)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.AlertWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to post alert webhook: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("alert webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func (s *Service) buildCard(claim models.Claim, result models.FactCheckResult) *CardMessage {
	message := &CardMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Flagged claim: %s", string(result.Accuracy)),
		Text:    fmt.Sprintf("A claim in session %s was flagged with %d%% confidence", claim.SessionID, result.ConfidenceScore),
	}

	facts := []CardFact{
		{Name: "Claim", Value: claim.Text},
		{Name: "Verdict", Value: string(result.Accuracy)},
		{Name: "Confidence", Value: fmt.Sprintf("%d%%", result.ConfidenceScore)},
		{Name: "Checked", Value: result.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
	}
	message.Sections = append(message.Sections, CardSection{
		ActivityTitle: "Verdict",
		Facts:         facts,
		Markdown:      true,
	})

	if len(result.Sources) > 0 {
		var lines []string
		for _, src := range result.Sources {
			lines = append(lines, fmt.Sprintf("**[%s](%s)** (%s, %d)",
				src.Title, src.URL, src.Category, src.CredibilityScore))
		}
		message.Sections = append(message.Sections, CardSection{
			ActivityTitle: "Sources",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(claim models.Claim, result models.FactCheckResult) error {
	subject := fmt.Sprintf("Flagged claim (%s, %d%% confidence)", result.Accuracy, result.ConfidenceScore)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.AlertEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", s.buildEmailText(claim, result))

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *Service) buildEmailText(claim models.Claim, result models.FactCheckResult) string {
	var text strings.Builder

	text.WriteString("FLAGGED CLAIM\n")
	text.WriteString("=============\n")
	text.WriteString(fmt.Sprintf("Session: %s\n", claim.SessionID))
	text.WriteString(fmt.Sprintf("Claim: %s\n", claim.Text))
	text.WriteString(fmt.Sprintf("Verdict: %s (%d%% confidence)\n", result.Accuracy, result.ConfidenceScore))
	text.WriteString(fmt.Sprintf("Checked: %s\n\n", result.CreatedAt.Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(result.Summary)
	text.WriteString("\n")

	if len(result.Sources) > 0 {
		text.WriteString("\nSOURCES\n")
		text.WriteString("=======\n")
		for i, src := range result.Sources {
			text.WriteString(fmt.Sprintf("%d. %s (%s, credibility %d)\n   %s\n",
				i+1, src.Title, src.Category, src.CredibilityScore, src.URL))
		}
	}

	return text.String()
}
