package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phenodcc/crawler/internal/config"
	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tracker"
)

func newTestStore(t *testing.T) *tracker.Store {
	db, err := tracker.Open("sqlite://:memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.CreateTestSchema())
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`INSERT INTO centre (id, short_name, name, active) VALUES (1, 'ABCD', 'Centre ABCD', 1)`)
	require.NoError(t, err)
	return tracker.NewStore(db)
}

func baseConfig(t *testing.T) Config {
	return Config{
		Flags: config.Flags{
			NumDownloaders: 1,
			MaxRetries:     1,
			PoolSize:       2,
			DataDir:        t.TempDir(),
		},
		Crawler: config.CrawlerProperties{
			LockPath:   filepath.Join(t.TempDir(), "phenodcc.lock"),
			ZipPattern: `^([A-Za-z]+)_(\d{4})(\d{2})(\d{2})_(\d+)\.zip$`,
			XMLPattern: `^([A-Za-z]+)_(\d{4})(\d{2})(\d{2})_(\d+)_(specimen|experiment)\.xml$`,
		},
	}
}

func TestRunOnce_NoSourcesStillOpensAndClosesSession(t *testing.T) {
	store := newTestStore(t)
	orch := New(store, baseConfig(t))

	result, err := orch.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.StatusDone, result.Status)

	got, err := store.GetSession(result.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Ended)
}

func TestRunOnce_ConcurrentTickIsSkipped(t *testing.T) {
	store := newTestStore(t)
	orch := New(store, baseConfig(t))

	orch.mu.Lock()
	orch.active = true
	orch.mu.Unlock()

	_, err := orch.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrTickSkipped)
}

func TestRunOnce_RespectsContextCancellation(t *testing.T) {
	store := newTestStore(t)
	cfg := baseConfig(t)
	orch := New(store, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := orch.RunOnce(ctx)
	require.NoError(t, err)
}
