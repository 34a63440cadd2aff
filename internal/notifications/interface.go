package notifications

import "github.com/factpulse/factpulse/internal/models"

// NotificationInterface defines the contract for flagged-result alerting.
type NotificationInterface interface {
	NotifyFlagged(claim models.Claim, result models.FactCheckResult) error
}
