package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/factpulse/factpulse/internal/aggregator"
	"github.com/factpulse/factpulse/internal/models"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Aggregator resolves a claim to exactly three scored sources.
type Aggregator interface {
	Aggregate(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error)
}

// Synthesizer composes verdicts, including the zero-source and
// deadline-degraded variants.
type Synthesizer interface {
	Synthesize(claim models.Claim, sources []models.VerificationSource) models.FactCheckResult
	Unverifiable(claim models.Claim) models.FactCheckResult
	Degraded(claim models.Claim) models.FactCheckResult
}

// Sessions is the slice of the session registry the scheduler needs.
type Sessions interface {
	AppendClaim(sessionID string, claim models.Claim) error
	AppendResult(sessionID string, result models.FactCheckResult) (bool, error)
	Settings(sessionID string) (models.VoiceSettings, error)
	ConfidenceThreshold(sessionID string) int
}

// Bus publishes typed events to every subscriber of a session.
type Bus interface {
	Publish(sessionID string, ev models.Event)
}

// Speech renders a short spoken summary. Invoked asynchronously after the
// visual result is published; failure degrades to text-only delivery.
type Speech interface {
	Synthesize(ctx context.Context, text string, settings models.VoiceSettings) (models.AudioClip, error)
	IsEnabled() bool
}

// Notifier receives flagged results for out-of-band alerting.
type Notifier interface {
	NotifyFlagged(claim models.Claim, result models.FactCheckResult) error
}

// Options configures the scheduler.
type Options struct {
	Workers        int
	MaxAttempts    int
	CheckDeadline  time.Duration
	RetryBaseDelay time.Duration
	DedupWindow    time.Duration
	Retention      time.Duration // how long terminal jobs stay pollable
}

// Stats is the scheduler's metrics snapshot.
type Stats struct {
	QueueDepth    int            `json:"queue_depth"`
	Running       int            `json:"running"`
	Enqueued      int64          `json:"enqueued"`
	Deduplicated  int64          `json:"deduplicated"`
	Retries       int64          `json:"retries"`
	Failed        int64          `json:"failed"`
	SLAViolations int64          `json:"sla_violations"`
	ByAccuracy    map[string]int `json:"by_accuracy"`
}

type jobEntry struct {
	job   models.Job
	claim models.Claim
	seq   uint64
}

// Scheduler runs claim-check jobs on a bounded worker pool with priority
// ordering, in-flight deduplication, exponential-backoff retry and a hard
// per-job deadline measured from enqueue.
type Scheduler struct {
	opts  Options
	agg   Aggregator
	synth Synthesizer
	sess  Sessions
	bus   Bus

	speech   Speech   // optional
	notifier Notifier // optional

	mu       sync.Mutex
	entries  map[string]*jobEntry
	pending  jobHeap
	inflight *gocache.Cache // dedup key -> job id
	seq      uint64
	running  int

	stats struct {
		enqueued      int64
		deduplicated  int64
		retries       int64
		failed        int64
		slaViolations int64
		byAccuracy    map[models.Accuracy]int
	}

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. speech and notifier may be nil.
func New(opts Options, agg Aggregator, synth Synthesizer, sess Sessions, bus Bus, speech Speech, notifier Notifier) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Retention <= 0 {
		opts.Retention = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		opts:     opts,
		agg:      agg,
		synth:    synth,
		sess:     sess,
		bus:      bus,
		speech:   speech,
		notifier: notifier,
		entries:  make(map[string]*jobEntry),
		inflight: gocache.New(opts.DedupWindow, 2*opts.DedupWindow),
		signal:   make(chan struct{}, 4096),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.stats.byAccuracy = make(map[models.Accuracy]int)
	return s
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	logrus.Infof("Scheduler started with %d workers, %v deadline", s.opts.Workers, s.opts.CheckDeadline)
}

// Stop cancels all workers and waits for them to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	logrus.Info("Scheduler stopped")
}

// Enqueue registers a claim-check job. Idempotent per (sessionId,
// normalized claim text) within the dedup window: a duplicate claim while
// an identical one is in flight returns the existing job id.
func (s *Scheduler) Enqueue(claim models.Claim, priority int) (string, error) {
	key := dedupKey(claim.SessionID, claim.Text)

	s.mu.Lock()
	if existing, found := s.inflight.Get(key); found {
		id := existing.(string)
		if entry, ok := s.entries[id]; ok && !terminal(entry.job.State) {
			s.stats.deduplicated++
			s.mu.Unlock()
			logrus.Debugf("Claim %q attached to in-flight job %s", claim.Text, id)
			return id, nil
		}
	}

	now := time.Now()
	entry := &jobEntry{
		job: models.Job{
			ID:          uuid.NewString(),
			ClaimID:     claim.ID,
			SessionID:   claim.SessionID,
			Priority:    priority,
			MaxAttempts: s.opts.MaxAttempts,
			Deadline:    now.Add(s.opts.CheckDeadline),
			State:       models.JobQueued,
			EnqueuedAt:  now,
		},
		claim: claim,
		seq:   s.seq,
	}
	s.seq++
	s.entries[entry.job.ID] = entry
	s.inflight.Set(key, entry.job.ID, gocache.DefaultExpiration)
	s.stats.enqueued++
	heap.Push(&s.pending, entry)
	s.mu.Unlock()

	if err := s.sess.AppendClaim(claim.SessionID, claim); err != nil {
		logrus.Warnf("Failed to record claim %s on session %s: %v", claim.ID, claim.SessionID, err)
	}

	s.wake()
	return entry.job.ID, nil
}

// Job returns a snapshot of the job's current state for status polling.
func (s *Scheduler) Job(id string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return models.Job{}, false
	}
	return entry.job, true
}

// Stats returns a metrics snapshot.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAccuracy := make(map[string]int, len(s.stats.byAccuracy))
	for acc, n := range s.stats.byAccuracy {
		byAccuracy[string(acc)] = n
	}
	return Stats{
		QueueDepth:    s.pending.Len(),
		Running:       s.running,
		Enqueued:      s.stats.enqueued,
		Deduplicated:  s.stats.deduplicated,
		Retries:       s.stats.retries,
		Failed:        s.stats.failed,
		SLAViolations: s.stats.slaViolations,
		ByAccuracy:    byAccuracy,
	}
}

func (s *Scheduler) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.signal:
		}

		for {
			entry := s.pop()
			if entry == nil {
				break
			}
			s.execute(entry)
		}
	}
}

func (s *Scheduler) pop() *jobEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil || s.pending.Len() == 0 {
		return nil
	}
	entry := heap.Pop(&s.pending).(*jobEntry)
	entry.job.State = models.JobRunning
	entry.job.Attempt++
	s.running++
	return entry
}

// execute runs one attempt of the claim pipeline: aggregate, synthesize,
// record, broadcast. The job's deadline is a hard cancellation boundary.
func (s *Scheduler) execute(entry *jobEntry) {
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()

	claim := entry.claim
	if entry.job.Attempt == 1 {
		s.publish(models.Event{
			Type:      models.EventFactCheckStarted,
			SessionID: claim.SessionID,
			ClaimID:   claim.ID,
		})
	}

	ctx, cancel := context.WithDeadline(s.ctx, entry.job.Deadline)
	defer cancel()

	sources, err := s.agg.Aggregate(ctx, claim)

	switch {
	case err == nil:
		result := s.synth.Synthesize(claim, sources)
		s.complete(entry, result)

	case errors.Is(err, aggregator.ErrInsufficientSources):
		// Recovered locally: explicit zero-source verdict, not a fault.
		s.complete(entry, s.synth.Unverifiable(claim))

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.degrade(entry)

	case ctx.Err() != nil:
		// Scheduler shutdown interrupted the attempt; not a latency
		// violation and no verdict to deliver.
		s.requeue(entry)

	default:
		s.retryOrFail(entry, err)
	}
}

// requeue returns a job interrupted mid-attempt to the queue without
// touching its state counters.
func (s *Scheduler) requeue(entry *jobEntry) {
	s.mu.Lock()
	entry.job.State = models.JobQueued
	entry.seq = s.seq
	s.seq++
	heap.Push(&s.pending, entry)
	s.mu.Unlock()
	logrus.Debugf("Job %s requeued after interrupted attempt", entry.job.ID)
}

// complete finalizes a successful attempt: stamps processing time, applies
// the session's flagging threshold, records the result and broadcasts it.
// The visual result event always precedes the audio feedback event.
func (s *Scheduler) complete(entry *jobEntry, result models.FactCheckResult) {
	claim := entry.claim
	result.ProcessingTimeMs = time.Since(entry.job.EnqueuedAt).Milliseconds()
	if result.ConfidenceScore < s.sess.ConfidenceThreshold(claim.SessionID) {
		result.Flagged = true
	}

	if _, err := s.sess.AppendResult(claim.SessionID, result); err != nil {
		logrus.Warnf("Failed to record result for claim %s: %v", claim.ID, err)
	}

	s.finish(entry, models.JobSucceeded, &result, "")

	s.publish(models.Event{
		Type:      models.EventFactCheckResult,
		SessionID: claim.SessionID,
		ClaimID:   claim.ID,
		Result:    &result,
	})

	s.deliverAudio(claim, result)

	if result.Flagged && s.notifier != nil {
		go func() {
			if err := s.notifier.NotifyFlagged(claim, result); err != nil {
				logrus.Errorf("Flagged-result notification failed for claim %s: %v", claim.ID, err)
			}
		}()
	}
}

// deliverAudio renders and broadcasts the voice summary when the session
// has voice output enabled. Runs after the visual event; TTS failure
// degrades to text-only delivery.
func (s *Scheduler) deliverAudio(claim models.Claim, result models.FactCheckResult) {
	if s.speech == nil || !s.speech.IsEnabled() || result.VoiceSummary == "" {
		return
	}
	settings, err := s.sess.Settings(claim.SessionID)
	if err != nil || !settings.Enabled {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clip, err := s.speech.Synthesize(ctx, result.VoiceSummary, settings)
		if err != nil {
			logrus.Warnf("Speech synthesis failed for claim %s, delivering text only: %v", claim.ID, err)
			return
		}

		priority := "medium"
		if result.Accuracy == models.AccuracyFalse {
			priority = "high"
		}
		s.publish(models.Event{
			Type:      models.EventAudioFeedback,
			SessionID: claim.SessionID,
			ClaimID:   claim.ID,
			Audio: &models.AudioFeedback{
				Text:     result.VoiceSummary,
				Clip:     clip,
				Priority: priority,
			},
		})
	}()
}

// degrade emits the flagged low-confidence result after the deadline
// elapsed. Logged as a latency-SLA violation; never retried.
func (s *Scheduler) degrade(entry *jobEntry) {
	claim := entry.claim
	logrus.Warnf("Claim %s exceeded the %v deadline (attempt %d); emitting degraded result",
		claim.ID, s.opts.CheckDeadline, entry.job.Attempt)

	s.mu.Lock()
	s.stats.slaViolations++
	s.mu.Unlock()

	result := s.synth.Degraded(claim)
	result.ProcessingTimeMs = time.Since(entry.job.EnqueuedAt).Milliseconds()

	if _, err := s.sess.AppendResult(claim.SessionID, result); err != nil {
		logrus.Warnf("Failed to record degraded result for claim %s: %v", claim.ID, err)
	}

	s.finish(entry, models.JobSucceeded, &result, "deadline exceeded")

	s.publish(models.Event{
		Type:      models.EventFactCheckResult,
		SessionID: claim.SessionID,
		ClaimID:   claim.ID,
		Result:    &result,
	})
}

// retryOrFail handles a transient failure: re-enqueue with exponential
// backoff while attempts and deadline headroom remain, otherwise terminal.
func (s *Scheduler) retryOrFail(entry *jobEntry, cause error) {
	claim := entry.claim

	if entry.job.Attempt >= entry.job.MaxAttempts {
		logrus.Errorf("Claim %s failed after %d attempts: %v", claim.ID, entry.job.Attempt, cause)
		s.mu.Lock()
		s.stats.failed++
		s.mu.Unlock()
		s.finish(entry, models.JobFailed, nil, cause.Error())
		s.publish(models.Event{
			Type:      models.EventFactCheckError,
			SessionID: claim.SessionID,
			ClaimID:   claim.ID,
			Reason:    fmt.Sprintf("verification failed: %v", cause),
		})
		return
	}

	delay := s.opts.RetryBaseDelay << uint(entry.job.Attempt)
	if !time.Now().Add(delay).Before(entry.job.Deadline) {
		// No headroom left under the deadline for another attempt.
		s.degrade(entry)
		return
	}

	logrus.Warnf("Claim %s attempt %d failed transiently, retrying in %v: %v",
		claim.ID, entry.job.Attempt, delay, cause)

	s.mu.Lock()
	entry.job.State = models.JobRetrying
	s.stats.retries++
	s.mu.Unlock()

	time.AfterFunc(delay, func() {
		s.mu.Lock()
		if entry.job.State != models.JobRetrying {
			s.mu.Unlock()
			return
		}
		entry.job.State = models.JobQueued
		entry.seq = s.seq
		s.seq++
		heap.Push(&s.pending, entry)
		s.mu.Unlock()
		s.wake()
	})
}

func (s *Scheduler) finish(entry *jobEntry, state models.JobState, result *models.FactCheckResult, errMsg string) {
	s.mu.Lock()
	entry.job.State = state
	entry.job.Result = result
	entry.job.Error = errMsg
	if result != nil {
		s.stats.byAccuracy[result.Accuracy]++
	}
	s.mu.Unlock()

	// Terminal jobs stay pollable for the retention window, then drop
	// from the registry so the entry map does not grow without bound.
	if terminal(state) {
		id := entry.job.ID
		time.AfterFunc(s.opts.Retention, func() {
			s.mu.Lock()
			delete(s.entries, id)
			s.mu.Unlock()
		})
	}
}

func (s *Scheduler) publish(ev models.Event) {
	ev.Timestamp = time.Now().UTC()
	s.bus.Publish(ev.SessionID, ev)
}

func terminal(state models.JobState) bool {
	return state == models.JobSucceeded || state == models.JobFailed
}

// dedupKey normalizes claim text so trivially re-phrased duplicates
// (case, extra whitespace) collapse onto one in-flight job.
func dedupKey(sessionID, text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	normalized = strings.Trim(normalized, ".!?,;: ")
	return sessionID + "|" + normalized
}
