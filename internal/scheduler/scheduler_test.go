package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/factpulse/factpulse/internal/aggregator"
	"github.com/factpulse/factpulse/internal/models"
	"github.com/factpulse/factpulse/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAggregator is a mock implementation of the Aggregator interface.
type MockAggregator struct {
	mock.Mock
}

func (m *MockAggregator) Aggregate(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VerificationSource), args.Error(1)
}

// funcAggregator adapts a function, used where the aggregation needs to
// observe the job's context.
type funcAggregator struct {
	fn func(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error)
}

func (f *funcAggregator) Aggregate(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error) {
	return f.fn(ctx, claim)
}

// fakeSessions records claims and results in memory.
type fakeSessions struct {
	mu        sync.Mutex
	claims    []models.Claim
	results   []models.FactCheckResult
	settings  models.VoiceSettings
	threshold int
}

func (f *fakeSessions) AppendClaim(sessionID string, claim models.Claim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, claim)
	return nil
}

func (f *fakeSessions) AppendResult(sessionID string, result models.FactCheckResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return true, nil
}

func (f *fakeSessions) Settings(sessionID string) (models.VoiceSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeSessions) ConfidenceThreshold(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}

func (f *fakeSessions) recordedResults() []models.FactCheckResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FactCheckResult, len(f.results))
	copy(out, f.results)
	return out
}

// fakeBus records published events in order.
type fakeBus struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeBus) Publish(sessionID string, ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeBus) recorded() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Event, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeBus) countByType(t models.EventType) int {
	n := 0
	for _, ev := range f.recorded() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// fakeSpeech returns a canned clip.
type fakeSpeech struct{}

func (fakeSpeech) Synthesize(ctx context.Context, text string, settings models.VoiceSettings) (models.AudioClip, error) {
	return models.AudioClip{URL: "https://audio.example.com/clip.mp3", DurationMs: 4000}, nil
}

func (fakeSpeech) IsEnabled() bool { return true }

func goodSources() []models.VerificationSource {
	return []models.VerificationSource{
		{Domain: "cdc.gov", Category: models.CategoryGovernment, CredibilityScore: 95, Excerpt: "Supported."},
		{Domain: "nature.com", Category: models.CategoryAcademic, CredibilityScore: 92, Excerpt: "Replicated."},
		{Domain: "reuters.com", Category: models.CategoryNews, CredibilityScore: 85, Excerpt: "Confirmed by officials."},
	}
}

func testOptions() Options {
	return Options{
		Workers:        2,
		MaxAttempts:    3,
		CheckDeadline:  2 * time.Second,
		RetryBaseDelay: time.Millisecond,
		DedupWindow:    30 * time.Second,
	}
}

func newClaim(text string) models.Claim {
	return models.Claim{ID: "claim-" + text, SessionID: "sess-1", Text: text, Origin: models.OriginManual}
}

func TestScheduler_SuccessfulCheck(t *testing.T) {
	agg := &MockAggregator{}
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(goodSources(), nil)

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	s := New(testOptions(), agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()
	defer s.Stop()

	jobID, err := s.Enqueue(newClaim("coffee reduces heart disease risk"), models.PriorityManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := s.Job(jobID)
		return ok && job.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := s.Job(jobID)
	require.NotNil(t, job.Result)
	assert.Equal(t, models.AccuracyVerified, job.Result.Accuracy)
	assert.Len(t, job.Result.Sources, 3)

	assert.Equal(t, 1, bus.countByType(models.EventFactCheckStarted))
	assert.Equal(t, 1, bus.countByType(models.EventFactCheckResult))
	assert.Len(t, sessions.recordedResults(), 1)
}

func TestScheduler_DedupAttachesToInflightJob(t *testing.T) {
	block := make(chan struct{})
	agg := &funcAggregator{fn: func(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error) {
		<-block
		return goodSources(), nil
	}}

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	s := New(testOptions(), agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()
	defer s.Stop()
	defer close(block)

	first, err := s.Enqueue(newClaim("the GDP grew 3% in 2024"), models.PriorityPassive)
	require.NoError(t, err)

	// Same text modulo case and whitespace lands on the same job.
	dup := models.Claim{ID: "other", SessionID: "sess-1", Text: "  The GDP grew 3%   in 2024. "}
	second, err := s.Enqueue(dup, models.PriorityManual)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), s.Stats().Deduplicated)
}

func TestScheduler_RetryBoundThenFailed(t *testing.T) {
	agg := &MockAggregator{}
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 503"))

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	opts := testOptions()
	s := New(opts, agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()
	defer s.Stop()

	jobID, err := s.Enqueue(newClaim("unemployment fell to 4%"), models.PriorityManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := s.Job(jobID)
		return ok && job.State == models.JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := s.Job(jobID)
	assert.Equal(t, opts.MaxAttempts, job.Attempt)
	assert.NotEmpty(t, job.Error)

	stats := s.Stats()
	assert.Equal(t, int64(opts.MaxAttempts-1), stats.Retries)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, 1, bus.countByType(models.EventFactCheckError))
	// No result is recorded for a hard failure.
	assert.Empty(t, sessions.recordedResults())
}

func TestScheduler_InsufficientSourcesIsUnableToVerify(t *testing.T) {
	agg := &funcAggregator{fn: func(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error) {
		return nil, fmt.Errorf("%w: 2 candidates after dedup", aggregator.ErrInsufficientSources)
	}}

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	s := New(testOptions(), agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()
	defer s.Stop()

	jobID, err := s.Enqueue(newClaim("an obscure claim with 2 sources"), models.PriorityManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := s.Job(jobID)
		return ok && job.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := s.Job(jobID)
	require.NotNil(t, job.Result)
	assert.Equal(t, models.AccuracyUnverifiable, job.Result.Accuracy)
	assert.Empty(t, job.Result.Sources)
	assert.True(t, job.Result.Flagged)
	// Not a retryable fault.
	assert.Equal(t, int64(0), s.Stats().Retries)
}

func TestScheduler_DeadlineProducesDegradedResult(t *testing.T) {
	agg := &funcAggregator{fn: func(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	opts := testOptions()
	opts.CheckDeadline = 50 * time.Millisecond
	s := New(opts, agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()
	defer s.Stop()

	jobID, err := s.Enqueue(newClaim("a claim the providers cannot answer in time"), models.PriorityManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := s.Job(jobID)
		return ok && job.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := s.Job(jobID)
	require.NotNil(t, job.Result)
	assert.Equal(t, models.AccuracyUncertain, job.Result.Accuracy)
	assert.Equal(t, 0, job.Result.ConfidenceScore)
	assert.True(t, job.Result.Flagged)
	assert.Equal(t, int64(1), s.Stats().SLAViolations)
	assert.Equal(t, 1, bus.countByType(models.EventFactCheckResult))
}

func TestScheduler_VisualResultPrecedesAudio(t *testing.T) {
	agg := &MockAggregator{}
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(goodSources(), nil)

	sessions := &fakeSessions{threshold: 70, settings: models.VoiceSettings{Enabled: true, Speed: 1.0, Volume: 0.8}}
	bus := &fakeBus{}

	s := New(testOptions(), agg, verdict.New(), sessions, bus, fakeSpeech{}, nil)
	s.Start()
	defer s.Stop()

	_, err := s.Enqueue(newClaim("inflation reached 2% in 2025"), models.PriorityManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bus.countByType(models.EventAudioFeedback) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events := bus.recorded()
	resultIdx, audioIdx := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case models.EventFactCheckResult:
			resultIdx = i
		case models.EventAudioFeedback:
			audioIdx = i
			require.NotNil(t, ev.Audio)
			assert.NotEmpty(t, ev.Audio.Clip.URL)
		}
	}
	require.NotEqual(t, -1, resultIdx)
	require.NotEqual(t, -1, audioIdx)
	assert.Less(t, resultIdx, audioIdx)
}

func TestScheduler_FlagsBelowSessionThreshold(t *testing.T) {
	lowSources := []models.VerificationSource{
		{Domain: "a.example.com", Category: models.CategoryOther, CredibilityScore: 65, Excerpt: "Thin evidence."},
		{Domain: "b.example.com", Category: models.CategoryOther, CredibilityScore: 60, Excerpt: "Anecdotal."},
		{Domain: "c.example.com", Category: models.CategoryOther, CredibilityScore: 62, Excerpt: "Unsourced."},
	}
	agg := &MockAggregator{}
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(lowSources, nil)

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	s := New(testOptions(), agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()
	defer s.Stop()

	jobID, err := s.Enqueue(newClaim("a weakly sourced claim from 2023"), models.PriorityManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := s.Job(jobID)
		return ok && job.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := s.Job(jobID)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Flagged)
}

func TestScheduler_TerminalJobsEvictedAfterRetention(t *testing.T) {
	agg := &MockAggregator{}
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(goodSources(), nil)

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	opts := testOptions()
	opts.Retention = 50 * time.Millisecond
	s := New(opts, agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()
	defer s.Stop()

	jobID, err := s.Enqueue(newClaim("the population doubled since 1990"), models.PriorityManual)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := s.Job(jobID)
		return ok && job.State == models.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	// The terminal job stays pollable only for the retention window.
	require.Eventually(t, func() bool {
		_, ok := s.Job(jobID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_ShutdownIsNotSLAViolation(t *testing.T) {
	started := make(chan struct{}, 1)
	agg := &funcAggregator{fn: func(ctx context.Context, claim models.Claim) ([]models.VerificationSource, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	sessions := &fakeSessions{threshold: 70}
	bus := &fakeBus{}

	s := New(testOptions(), agg, verdict.New(), sessions, bus, nil, nil)
	s.Start()

	jobID, err := s.Enqueue(newClaim("a claim interrupted by shutdown"), models.PriorityManual)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job never started")
	}
	s.Stop()

	// Stopping mid-attempt must not masquerade as a deadline miss.
	assert.Equal(t, int64(0), s.Stats().SLAViolations)
	assert.Equal(t, 0, bus.countByType(models.EventFactCheckResult))
	assert.Empty(t, sessions.recordedResults())

	job, ok := s.Job(jobID)
	require.True(t, ok)
	assert.Equal(t, models.JobQueued, job.State)
}

func TestJobHeap_PriorityThenFIFO(t *testing.T) {
	var h jobHeap
	heap.Init(&h)

	push := func(id string, priority int, seq uint64) {
		heap.Push(&h, &jobEntry{job: models.Job{ID: id, Priority: priority}, seq: seq})
	}
	push("passive-1", models.PriorityPassive, 1)
	push("manual-1", models.PriorityManual, 2)
	push("passive-2", models.PriorityPassive, 3)
	push("manual-2", models.PriorityManual, 4)

	var order []string
	for h.Len() > 0 {
		order = append(order, heap.Pop(&h).(*jobEntry).job.ID)
	}
	assert.Equal(t, []string{"manual-1", "manual-2", "passive-1", "passive-2"}, order)
}

func TestDedupKey_Normalization(t *testing.T) {
	a := dedupKey("sess-1", "The  Earth is ROUND.")
	b := dedupKey("sess-1", "the earth is round")
	c := dedupKey("sess-2", "the earth is round")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
