package session

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned for operations on unknown or stopped sessions.
var ErrNotFound = errors.New("session not found")

const shardCount = 16

// Voice settings clamp ranges.
const (
	minSpeed = 0.5
	maxSpeed = 2.0
)

// session is the mutable per-session state. All mutations are serialized
// by the owning shard's lock; sessions on different shards proceed fully
// in parallel.
type session struct {
	id         string
	userID     string
	mode       models.SessionMode
	settings   models.VoiceSettings
	threshold  int
	startedAt  time.Time
	lastActive time.Time
	claims     []models.Claim
	results    []models.FactCheckResult
	seen       map[string]bool // claim ids with a recorded result
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID          string               `json:"id"`
	UserID      string               `json:"user_id"`
	Mode        models.SessionMode   `json:"mode"`
	Settings    models.VoiceSettings `json:"settings"`
	Threshold   int                  `json:"confidence_threshold"`
	StartedAt   time.Time            `json:"started_at"`
	LastActive  time.Time            `json:"last_active"`
	ClaimCount  int                  `json:"claim_count"`
	ResultCount int                  `json:"result_count"`
}

// Archive is the durable record of a stopped session.
type Archive struct {
	Session   Snapshot                 `json:"session"`
	Claims    []models.Claim           `json:"claims"`
	Results   []models.FactCheckResult `json:"results"`
	StoppedAt time.Time                `json:"stopped_at"`
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// Registry holds live session state behind a sharded-lock map. It is the
// only structure mutated by concurrent jobs; per-session mutations are
// serialized while unrelated sessions never contend.
type Registry struct {
	shards           [shardCount]*shard
	defaultThreshold int
}

// NewRegistry creates a registry. Results scoring below defaultThreshold
// are flagged unless a session overrides it.
func NewRegistry(defaultThreshold int) *Registry {
	r := &Registry{defaultThreshold: defaultThreshold}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*session)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Create starts a session with default voice settings for the mode.
func (r *Registry) Create(userID string, mode models.SessionMode) Snapshot {
	now := time.Now().UTC()
	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		mode:   mode,
		settings: models.VoiceSettings{
			Enabled:      mode != models.ModeTextOnly,
			PrivateAudio: true,
			VoiceType:    "professional",
			Speed:        1.0,
			Volume:       0.8,
			AudioAlerts:  true,
			ChimeVolume:  0.5,
		},
		threshold:  r.defaultThreshold,
		startedAt:  now,
		lastActive: now,
		seen:       make(map[string]bool),
	}

	sh := r.shardFor(s.id)
	sh.mu.Lock()
	sh.sessions[s.id] = s
	sh.mu.Unlock()

	logrus.Infof("Session %s created (user %s, mode %s)", s.id, userID, mode)
	return snapshotOf(s)
}

// Snapshot returns a read-only view of the session.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	s, ok := sh.sessions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshotOf(s), nil
}

// AppendClaim records an intake claim on the session.
func (r *Registry) AppendClaim(id string, claim models.Claim) error {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.claims = append(s.claims, claim)
	s.lastActive = time.Now().UTC()
	return nil
}

// AppendResult appends a result to the session history. Idempotent per
// claim: redelivery of a result for an already-recorded claim is a no-op
// and returns false.
func (r *Registry) AppendResult(id string, result models.FactCheckResult) (bool, error) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return false, ErrNotFound
	}

	key := result.ClaimID
	if key == "" {
		key = result.ID
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.results = append(s.results, result)
	s.lastActive = time.Now().UTC()
	return true, nil
}

// Results returns a copy of the session's result history, oldest first.
func (r *Registry) Results(id string) ([]models.FactCheckResult, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	s, ok := sh.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.FactCheckResult, len(s.results))
	copy(out, s.results)
	return out, nil
}

// Settings returns the session's current voice settings.
func (r *Registry) Settings(id string) (models.VoiceSettings, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	s, ok := sh.sessions[id]
	if !ok {
		return models.VoiceSettings{}, ErrNotFound
	}
	return s.settings, nil
}

// ConfidenceThreshold returns the flagging threshold for the session, or
// the registry default when the session is unknown.
func (r *Registry) ConfidenceThreshold(id string) int {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if s, ok := sh.sessions[id]; ok {
		return s.threshold
	}
	return r.defaultThreshold
}

// UpdateSettings applies a partial settings update. Only the fields the
// patch specifies change; later patches replace earlier ones field by
// field. Out-of-range values are clamped, not rejected.
func (r *Registry) UpdateSettings(id string, patch models.VoiceSettingsPatch) (models.VoiceSettings, error) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return models.VoiceSettings{}, ErrNotFound
	}

	next := s.settings
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	if patch.PrivateAudio != nil {
		next.PrivateAudio = *patch.PrivateAudio
	}
	if patch.VoiceType != nil {
		next.VoiceType = *patch.VoiceType
	}
	if patch.Speed != nil {
		next.Speed = *patch.Speed
	}
	if patch.Volume != nil {
		next.Volume = *patch.Volume
	}
	if patch.AudioAlerts != nil {
		next.AudioAlerts = *patch.AudioAlerts
	}
	if patch.ChimeVolume != nil {
		next.ChimeVolume = *patch.ChimeVolume
	}

	s.settings = ClampSettings(next)
	s.lastActive = time.Now().UTC()
	return s.settings, nil
}

// Stop removes the session and returns its archive record.
func (r *Registry) Stop(id string) (*Archive, error) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(sh.sessions, id)

	logrus.Infof("Session %s stopped (%d claims, %d results)", id, len(s.claims), len(s.results))
	return archiveOf(s), nil
}

// ReapIdle removes sessions with no activity for at least idle and
// returns their archives.
func (r *Registry) ReapIdle(idle time.Duration) []*Archive {
	cutoff := time.Now().UTC().Add(-idle)
	var archives []*Archive

	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			if s.lastActive.Before(cutoff) {
				delete(sh.sessions, id)
				archives = append(archives, archiveOf(s))
				logrus.Infof("Session %s reaped after %v idle", id, idle)
			}
		}
		sh.mu.Unlock()
	}
	return archives
}

// AuditArchives returns archive records for every live session without
// removing any of them. Claims and results are copied so later mutations
// do not race with serialization.
func (r *Registry) AuditArchives() []*Archive {
	var archives []*Archive
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			a := archiveOf(s)
			a.Claims = append([]models.Claim(nil), s.claims...)
			a.Results = append([]models.FactCheckResult(nil), s.results...)
			archives = append(archives, a)
		}
		sh.mu.RUnlock()
	}
	return archives
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// ClampSettings forces voice settings into their documented ranges:
// speed 0.5-2.0, volume and chime volume 0-1.
func ClampSettings(s models.VoiceSettings) models.VoiceSettings {
	s.Speed = clamp(s.Speed, minSpeed, maxSpeed)
	s.Volume = clamp(s.Volume, 0, 1)
	s.ChimeVolume = clamp(s.ChimeVolume, 0, 1)
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func snapshotOf(s *session) Snapshot {
	return Snapshot{
		ID:          s.id,
		UserID:      s.userID,
		Mode:        s.mode,
		Settings:    s.settings,
		Threshold:   s.threshold,
		StartedAt:   s.startedAt,
		LastActive:  s.lastActive,
		ClaimCount:  len(s.claims),
		ResultCount: len(s.results),
	}
}

func archiveOf(s *session) *Archive {
	return &Archive{
		Session:   snapshotOf(s),
		Claims:    s.claims,
		Results:   s.results,
		StoppedAt: time.Now().UTC(),
	}
}
