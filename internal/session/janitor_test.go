package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/factpulse/factpulse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_ArchiveSession(t *testing.T) {
	store := storage.NewMemoryStorage()
	registry := NewRegistry(70)
	janitor := NewJanitor(registry, store, time.Minute)

	snap := registry.Create("user-1", models.ModeHybrid)
	require.NoError(t, registry.AppendClaim(snap.ID, models.Claim{ID: "claim-1", Text: "x"}))

	archive, err := registry.Stop(snap.ID)
	require.NoError(t, err)
	require.NoError(t, janitor.ArchiveSession(archive))

	names, err := store.List("sessions/")
	require.NoError(t, err)
	require.Len(t, names, 1)

	data, err := store.Retrieve(names[0])
	require.NoError(t, err)

	var restored Archive
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, snap.ID, restored.Session.ID)
	assert.Len(t, restored.Claims, 1)
}

func TestJanitor_NightlyAuditKeepsSessionsLive(t *testing.T) {
	store := storage.NewMemoryStorage()
	registry := NewRegistry(70)
	janitor := NewJanitor(registry, store, time.Minute)

	snap := registry.Create("user-1", models.ModeHybrid)
	require.NoError(t, registry.AppendClaim(snap.ID, models.Claim{ID: "claim-1", Text: "x"}))
	_, err := registry.AppendResult(snap.ID, models.FactCheckResult{ID: "res-1", ClaimID: "claim-1"})
	require.NoError(t, err)

	janitor.runNightlyAudit()

	names, err := store.List("audit/")
	require.NoError(t, err)
	require.Len(t, names, 1)

	data, err := store.Retrieve(names[0])
	require.NoError(t, err)

	var restored Archive
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, snap.ID, restored.Session.ID)
	assert.Len(t, restored.Claims, 1)
	assert.Len(t, restored.Results, 1)

	// The snapshot must not stop the session.
	_, err = registry.Snapshot(snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, registry.Count())
}
