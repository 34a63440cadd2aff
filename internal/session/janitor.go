package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/factpulse/factpulse/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Janitor reaps idle sessions on a fixed schedule and archives their
// records to the configured store.
type Janitor struct {
	registry    *Registry
	store       storage.StorageInterface
	idleTimeout time.Duration
	cron        *cron.Cron
}

// NewJanitor creates a janitor over the registry and archive store.
func NewJanitor(registry *Registry, store storage.StorageInterface, idleTimeout time.Duration) *Janitor {
	return &Janitor{
		registry:    registry,
		store:       store,
		idleTimeout: idleTimeout,
		cron:        cron.New(cron.WithSeconds()),
	}
}

// Start schedules the idle sweep once a minute.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc("0 * * * * *", func() {
		reaped := j.registry.ReapIdle(j.idleTimeout)
		for _, archive := range reaped {
			if err := j.ArchiveSession(archive); err != nil {
				logrus.Errorf("Failed to archive reaped session %s: %v", archive.Session.ID, err)
			}
		}
		if len(reaped) > 0 {
			logrus.Infof("Idle sweep archived %d sessions", len(reaped))
		}
	})
	if err != nil {
		return err
	}

	// Nightly audit snapshot of sessions that are still running.
	_, err = j.cron.AddFunc("0 0 0 * * *", j.runNightlyAudit)
	if err != nil {
		return err
	}

	j.cron.Start()
	logrus.Infof("Session janitor started (idle timeout %v)", j.idleTimeout)
	return nil
}

// runNightlyAudit writes the history of every live session to the store
// without stopping any of them.
func (j *Janitor) runNightlyAudit() {
	archives := j.registry.AuditArchives()
	for _, archive := range archives {
		if err := j.archiveAudit(archive); err != nil {
			logrus.Errorf("Failed to write audit snapshot for session %s: %v", archive.Session.ID, err)
		}
	}
	if len(archives) > 0 {
		logrus.Infof("Nightly audit snapshotted %d live sessions", len(archives))
	}
}

func (j *Janitor) archiveAudit(archive *Archive) error {
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit snapshot: %w", err)
	}

	filename := fmt.Sprintf("audit/%s/%s.json",
		archive.StoppedAt.Format("2006-01-02"), archive.Session.ID)
	if err := j.store.Store(filename, data); err != nil {
		return fmt.Errorf("failed to store audit snapshot: %w", err)
	}

	return nil
}

// Stop stops the sweep schedule.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
		logrus.Info("Session janitor stopped")
	}
}

// ArchiveSession serializes the archive record and writes it to the
// store. Also called directly when a session is stopped explicitly.
func (j *Janitor) ArchiveSession(archive *Archive) error {
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session archive: %w", err)
	}

	filename := fmt.Sprintf("sessions/%s/%s.json",
		archive.StoppedAt.Format("2006-01-02"), archive.Session.ID)
	if err := j.store.Store(filename, data); err != nil {
		return fmt.Errorf("failed to store session archive: %w", err)
	}

	return nil
}
