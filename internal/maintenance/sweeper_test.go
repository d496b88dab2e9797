package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/cleanup"
	"github.com/aura-studio/aura/internal/config"
	"github.com/aura-studio/aura/internal/database"
	"github.com/aura-studio/aura/internal/events"
	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/repository"
)

func TestSweepRemovesOldTempDirs(t *testing.T) {
	workDir := t.TempDir()

	old := filepath.Join(workDir, cleanup.TempDirPrefix+"stale")
	require.NoError(t, os.MkdirAll(old, 0o755))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	recent := filepath.Join(workDir, cleanup.TempDirPrefix+"fresh")
	require.NoError(t, os.MkdirAll(recent, 0o755))

	s := New(Options{
		WorkDir:       workDir,
		TempRetention: time.Hour,
	}, nil, nil, nil, nil)
	s.Sweep(context.Background())

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
}

func TestSweepPrunesOldTerminalJobs(t *testing.T) {
	bus := events.NewBus(events.Options{}, nil)
	store := jobstore.New(nil, bus, nil)

	terminal := &models.Job{ID: models.NewULID().String()}
	require.NoError(t, store.Create(terminal))
	require.NoError(t, store.Cancel(terminal.ID))

	queued := &models.Job{ID: models.NewULID().String()}
	require.NoError(t, store.Create(queued))

	time.Sleep(20 * time.Millisecond)

	s := New(Options{RecordRetention: time.Millisecond}, store, bus, nil, nil)
	s.Sweep(context.Background())

	_, ok := store.Get(terminal.ID)
	assert.False(t, ok, "old terminal job should be pruned")
	_, ok = store.Get(queued.ID)
	assert.True(t, ok, "queued job must survive the sweep")
}

func TestSweepKeepsRecentTerminalJobs(t *testing.T) {
	bus := events.NewBus(events.Options{}, nil)
	store := jobstore.New(nil, bus, nil)

	job := &models.Job{ID: models.NewULID().String()}
	require.NoError(t, store.Create(job))
	require.NoError(t, store.Cancel(job.ID))

	s := New(Options{RecordRetention: time.Hour}, store, bus, nil, nil)
	s.Sweep(context.Background())

	_, ok := store.Get(job.ID)
	assert.True(t, ok)
}

func TestSweepDeletesExpiredRecords(t *testing.T) {
	db, err := database.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}, nil, &database.Options{PrepareStmt: false})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewJobRecordRepository(db)
	ctx := context.Background()

	oldEnded := time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, repo.Create(ctx, &models.JobRecord{
		JobID:      models.NewULID().String(),
		Topic:      "Expired",
		Status:     models.JobDone,
		CreatedUTC: oldEnded.Add(-time.Minute),
		EndedUTC:   &oldEnded,
	}))

	recentEnded := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &models.JobRecord{
		JobID:      models.NewULID().String(),
		Topic:      "Recent",
		Status:     models.JobDone,
		CreatedUTC: recentEnded.Add(-time.Minute),
		EndedUTC:   &recentEnded,
	}))

	s := New(Options{RecordRetention: 24 * time.Hour}, nil, nil, repo, nil)
	s.Sweep(ctx)

	records, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "Recent", records[0].Topic)
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(Options{Schedule: "0 0 3 * * *"}, nil, nil, nil, nil)
	require.NoError(t, s.Start())
	s.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Options{Schedule: "not a schedule"}, nil, nil, nil, nil)
	require.Error(t, s.Start())
}
