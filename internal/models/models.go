package models

import "time"

// SourceCategory classifies a verification source by the kind of outlet it
// comes from. Diversity of categories across the three selected sources is
// part of the verification contract.
type SourceCategory string

const (
	CategoryNews         SourceCategory = "news"
	CategoryAcademic     SourceCategory = "academic"
	CategoryGovernment   SourceCategory = "government"
	CategoryEncyclopedic SourceCategory = "encyclopedic"
	CategorySocial       SourceCategory = "social"
	CategoryOther        SourceCategory = "other"
)

// ClaimOrigin records how a claim entered the pipeline.
type ClaimOrigin string

const (
	OriginDetected     ClaimOrigin = "detected"
	OriginManual       ClaimOrigin = "manual"
	OriginVoiceCommand ClaimOrigin = "voice_command"
)

// Claim is a short factual assertion extracted from speech or text.
// Immutable once created.
type Claim struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	SessionID  string      `json:"session_id"`
	Origin     ClaimOrigin `json:"origin"`
	CreatedAt  time.Time   `json:"created_at"`
	Confidence float64     `json:"confidence"` // detection confidence, 0-1
}

// VerificationSource is one candidate or selected source backing a verdict.
// Produced per claim; never shared across claims.
type VerificationSource struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	URL              string         `json:"url"`
	Domain           string         `json:"domain"`
	Category         SourceCategory `json:"category"`
	CredibilityScore int            `json:"credibility_score"` // 0-100
	Excerpt          string         `json:"excerpt"`
	PublishedAt      time.Time      `json:"published_at,omitempty"`
}

// Accuracy is the verdict label attached to a checked claim.
type Accuracy string

const (
	AccuracyVerified  Accuracy = "verified"
	AccuracyFalse     Accuracy = "false"
	AccuracyUncertain Accuracy = "uncertain"
	AccuracyPartial   Accuracy = "partial"
	// AccuracyUnverifiable is the explicit zero-source outcome when fewer
	// than three distinct-domain candidates were found.
	AccuracyUnverifiable Accuracy = "unable_to_verify"
)

// ConfidenceTier buckets the numeric confidence score.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// FactCheckResult is the outcome of one claim verification. Exactly three
// sources unless Accuracy is AccuracyUnverifiable (zero sources).
type FactCheckResult struct {
	ID               string               `json:"id"`
	ClaimID          string               `json:"claim_id"`
	Accuracy         Accuracy             `json:"accuracy"`
	ConfidenceTier   ConfidenceTier       `json:"confidence_tier"`
	ConfidenceScore  int                  `json:"confidence_score"` // 0-100
	Sources          []VerificationSource `json:"sources"`
	Summary          string               `json:"summary"`
	VoiceSummary     string               `json:"voice_summary,omitempty"`
	Contradictions   []string             `json:"contradictions,omitempty"`
	Uncertainties    []string             `json:"uncertainties,omitempty"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
	Flagged          bool                 `json:"flagged"`
	CreatedAt        time.Time            `json:"created_at"`
}

// JobState is the scheduler-visible lifecycle state of a job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobRetrying  JobState = "retrying"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job priorities. Manually and voice-triggered claims outrank passively
// detected ones.
const (
	PriorityPassive = 0
	PriorityManual  = 10
)

// Job is the unit of work that runs one claim through the pipeline.
type Job struct {
	ID          string           `json:"id"`
	ClaimID     string           `json:"claim_id"`
	SessionID   string           `json:"session_id"`
	Priority    int              `json:"priority"`
	Attempt     int              `json:"attempt"`
	MaxAttempts int              `json:"max_attempts"`
	Deadline    time.Time        `json:"deadline"`
	State       JobState         `json:"state"`
	EnqueuedAt  time.Time        `json:"enqueued_at"`
	Result      *FactCheckResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// SessionMode controls how a session takes input and delivers results.
type SessionMode string

const (
	ModeVoiceOnly SessionMode = "voice_only"
	ModeTextOnly  SessionMode = "text_only"
	ModeHybrid    SessionMode = "hybrid"
	ModePassive   SessionMode = "passive"
)

// VoiceSettings configures spoken result delivery for a session.
// Speed is clamped to 0.5-2.0, Volume and ChimeVolume to 0-1.
type VoiceSettings struct {
	Enabled      bool    `json:"enabled"`
	PrivateAudio bool    `json:"private_audio"`
	VoiceType    string  `json:"voice_type"`
	Speed        float64 `json:"speed"`
	Volume       float64 `json:"volume"`
	AudioAlerts  bool    `json:"audio_alerts"`
	ChimeVolume  float64 `json:"chime_volume"`
}

// VoiceSettingsPatch is a partial settings update. Nil fields keep the
// session's current values; later patches replace earlier ones field by
// field (last write wins).
type VoiceSettingsPatch struct {
	Enabled      *bool    `json:"enabled,omitempty"`
	PrivateAudio *bool    `json:"private_audio,omitempty"`
	VoiceType    *string  `json:"voice_type,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	Volume       *float64 `json:"volume,omitempty"`
	AudioAlerts  *bool    `json:"audio_alerts,omitempty"`
	ChimeVolume  *float64 `json:"chime_volume,omitempty"`
}

// TranscriptSegment is one finalized piece of live transcription emitted by
// the external speech-to-text collaborator.
type TranscriptSegment struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Final      bool      `json:"final"`
}

// AudioClip points at rendered speech output.
type AudioClip struct {
	URL        string `json:"url"`
	DurationMs int64  `json:"duration_ms"`
}

// AudioFeedback is a spoken summary delivered alongside a visual result.
type AudioFeedback struct {
	Text     string    `json:"text"`
	Clip     AudioClip `json:"clip"`
	Priority string    `json:"priority"` // "low", "medium", "high"
}

// EventType enumerates the typed messages carried on the session channel.
type EventType string

const (
	EventFactCheckStarted EventType = "fact_check_started"
	EventFactCheckResult  EventType = "fact_check_result"
	EventFactCheckError   EventType = "fact_check_error"
	EventSettingsUpdated  EventType = "settings_updated"
	EventAudioFeedback    EventType = "audio_feedback"
)

// Event is one message on a session's publish/subscribe channel. Delivery
// is at-least-once; consumers must be idempotent on ClaimID.
type Event struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"session_id"`
	ClaimID   string           `json:"claim_id,omitempty"`
	Result    *FactCheckResult `json:"result,omitempty"`
	Settings  *VoiceSettings   `json:"settings,omitempty"`
	Audio     *AudioFeedback   `json:"audio,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
