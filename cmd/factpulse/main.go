package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/factpulse/factpulse/internal/aggregator"
	"github.com/factpulse/factpulse/internal/claims"
	"github.com/factpulse/factpulse/internal/config"
	"github.com/factpulse/factpulse/internal/models"
	"github.com/factpulse/factpulse/internal/notifications"
	"github.com/factpulse/factpulse/internal/providers"
	"github.com/factpulse/factpulse/internal/scheduler"
	"github.com/factpulse/factpulse/internal/session"
	"github.com/factpulse/factpulse/internal/speech"
	"github.com/factpulse/factpulse/internal/storage"
	"github.com/factpulse/factpulse/internal/verdict"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting FactPulse")

	// Archive storage: blob when configured, in-memory otherwise.
	var store storage.StorageInterface
	if cfg.StorageAccount != "" {
		azure, err := storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		store = azure
	} else {
		logrus.Warn("No storage account configured, session archives are in-memory only")
		store = storage.NewMemoryStorage()
	}

	provs := []providers.Provider{
		providers.NewNewsAPIProvider(cfg.NewsAPIKey, cfg.ProviderRateLimit, cfg.ProviderRateBurst),
		providers.NewCrossrefProvider(cfg.ProviderRateLimit, cfg.ProviderRateBurst),
		providers.NewWikipediaProvider(cfg.ProviderRateLimit, cfg.ProviderRateBurst),
		providers.NewDataGovProvider(cfg.ProviderRateLimit, cfg.ProviderRateBurst),
		providers.NewRedditProvider(cfg.RedditClientID, cfg.RedditClientSecret, cfg.ProviderRateLimit, cfg.ProviderRateBurst),
	}
	for _, p := range provs {
		if !p.IsEnabled() {
			logrus.Warnf("Provider %s is not configured and will be skipped", p.Name())
		}
	}

	scorer := aggregator.NewScorer(cfg.TrustedDomains)
	agg := aggregator.New(provs, scorer, cfg.ProviderTimeout)
	synth := verdict.New()

	bus := session.NewBus(cfg.SubscriberBuffer)
	registry := session.NewRegistry(cfg.ConfidenceThreshold)

	var tts speech.Synthesizer = speech.Noop{}
	if cfg.TTSEndpoint != "" {
		tts = speech.NewHTTPSynthesizer(cfg.TTSEndpoint, cfg.TTSAPIKey)
	}

	notifier := notifications.NewService(cfg)

	sched := scheduler.New(scheduler.Options{
		Workers:        cfg.Workers,
		MaxAttempts:    cfg.MaxAttempts,
		CheckDeadline:  cfg.CheckDeadline,
		RetryBaseDelay: cfg.RetryBaseDelay,
		DedupWindow:    cfg.DedupWindow,
		Retention:      cfg.JobRetention,
	}, agg, synth, registry, bus, tts, notifier)
	sched.Start()
	defer sched.Stop()

	janitor := session.NewJanitor(registry, store, cfg.SessionIdleTimeout)
	if err := janitor.Start(); err != nil {
		logrus.Fatalf("Failed to start session janitor: %v", err)
	}
	defer janitor.Stop()

	wsHandler := session.NewWSHandler(registry, bus)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(sched, registry, bus)).Methods("GET")
	router.HandleFunc("/sessions", createSessionHandler(registry)).Methods("POST")
	router.HandleFunc("/sessions/{id}", getSessionHandler(registry)).Methods("GET")
	router.HandleFunc("/sessions/{id}", stopSessionHandler(registry, janitor)).Methods("DELETE")
	router.HandleFunc("/sessions/{id}/settings", updateSettingsHandler(registry, bus)).Methods("PATCH")
	router.HandleFunc("/sessions/{id}/results", resultsHandler(registry)).Methods("GET")
	router.HandleFunc("/sessions/{id}/claims", submitClaimHandler(registry, sched)).Methods("POST")
	router.HandleFunc("/sessions/{id}/transcript", transcriptHandler(registry, sched)).Methods("POST")
	router.HandleFunc("/jobs/{id}", jobStatusHandler(sched)).Methods("GET")
	router.HandleFunc("/ws/{sessionID}", wsHandler.Handle).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(sched *scheduler.Scheduler, registry *session.Registry, bus *session.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"scheduler":       sched.Stats(),
			"active_sessions": registry.Count(),
			"dropped_events":  bus.Dropped(),
		})
	}
}

type createSessionRequest struct {
	UserID string             `json:"user_id"`
	Mode   models.SessionMode `json:"mode"`
}

func createSessionHandler(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Mode == "" {
			req.Mode = models.ModeHybrid
		}

		snapshot := registry.Create(req.UserID, req.Mode)
		writeJSON(w, http.StatusCreated, snapshot)
	}
}

func getSessionHandler(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := registry.Snapshot(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func stopSessionHandler(registry *session.Registry, janitor *session.Janitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		archive, err := registry.Stop(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		if err := janitor.ArchiveSession(archive); err != nil {
			logrus.Errorf("Failed to archive stopped session %s: %v", archive.Session.ID, err)
		}
		writeJSON(w, http.StatusOK, archive.Session)
	}
}

func updateSettingsHandler(registry *session.Registry, bus *session.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]

		var patch models.VoiceSettingsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		settings, err := registry.UpdateSettings(sessionID, patch)
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		bus.Publish(sessionID, models.Event{
			Type:      models.EventSettingsUpdated,
			SessionID: sessionID,
			Settings:  &settings,
			Timestamp: time.Now().UTC(),
		})
		writeJSON(w, http.StatusOK, settings)
	}
}

func resultsHandler(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := registry.Results(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
	}
}

type submitClaimRequest struct {
	Text         string `json:"text"`
	VoiceCommand bool   `json:"voice_command,omitempty"`
}

func submitClaimHandler(registry *session.Registry, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]
		if _, err := registry.Snapshot(sessionID); err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		var req submitClaimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			writeError(w, http.StatusBadRequest, "claim text is required")
			return
		}

		origin := models.OriginManual
		text := req.Text
		if req.VoiceCommand {
			cmd := claims.ParseVoiceCommand(req.Text)
			switch cmd.Kind {
			case claims.CommandCheck:
				origin = models.OriginVoiceCommand
				text = cmd.Text
			case claims.CommandHelp:
				writeJSON(w, http.StatusOK, map[string]string{"message": claims.HelpText})
				return
			case claims.CommandReadSources:
				results, err := registry.Results(sessionID)
				if err != nil || len(results) == 0 {
					writeError(w, http.StatusNotFound, "no results to read sources from")
					return
				}
				last := results[len(results)-1]
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"claim_id": last.ClaimID,
					"sources":  last.Sources,
				})
				return
			default:
				writeError(w, http.StatusBadRequest, "unrecognized voice command")
				return
			}
		}

		claim := claims.New(sessionID, text, origin)
		jobID, err := sched.Enqueue(claim, models.PriorityManual)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to enqueue claim")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id":   jobID,
			"claim_id": claim.ID,
		})
	}
}

func transcriptHandler(registry *session.Registry, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]
		if _, err := registry.Snapshot(sessionID); err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		var seg models.TranscriptSegment
		if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		detected := claims.FromSegment(sessionID, seg)
		jobIDs := make([]string, 0, len(detected))
		for _, claim := range detected {
			jobID, err := sched.Enqueue(claim, models.PriorityPassive)
			if err != nil {
				logrus.Errorf("Failed to enqueue detected claim: %v", err)
				continue
			}
			jobIDs = append(jobIDs, jobID)
		}

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"detected_claims": len(detected),
			"job_ids":         jobIDs,
		})
	}
}

func jobStatusHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := sched.Job(mux.Vars(r)["id"])
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
