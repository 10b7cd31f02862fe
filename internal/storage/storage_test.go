package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "websum/pkg/logx"
)

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "mongo", Path: "x"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func TestStores(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "websum.db")
			cfg := Config{Driver: driver, Path: path}
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			require.NotNil(t, st)

			ctx := context.Background()
			base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			for i := 0; i < 4; i++ {
				require.NoError(t, st.AppendJob(ctx, JobRecord{
					ID:         fmt.Sprintf("job-%d", i),
					ChatID:     7,
					Kind:       "summarize",
					Status:     StatusSucceeded,
					URL:        "https://example.com/" + fmt.Sprint(i),
					QueuedAt:   base.Add(time.Duration(i) * time.Hour),
					FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
					TookMS:     60000,
				}))
			}
			require.NoError(t, st.AppendJob(ctx, JobRecord{
				ID: "other", ChatID: 8, Kind: "summarize", Status: StatusFailed, Error: "boom",
				QueuedAt: base, FinishedAt: base.Add(10 * time.Hour),
			}))

			recent, err := st.RecentJobs(ctx, 7, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "job-3", recent[0].ID)
			assert.Equal(t, "job-2", recent[1].ID)
			assert.Equal(t, "https://example.com/3", recent[0].URL)
			assert.True(t, recent[0].FinishedAt.Equal(base.Add(3*time.Hour+time.Minute)))

			other, err := st.RecentJobs(ctx, 8, 5)
			require.NoError(t, err)
			require.Len(t, other, 1)
			assert.Equal(t, "boom", other[0].Error)

			n, err := st.PruneJobs(ctx, base.Add(2*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, st.Close())

			// Reopen: pruned state survives.
			st, err = Open(cfg, logx.Nop())
			require.NoError(t, err)
			defer st.Close()
			recent, err = st.RecentJobs(ctx, 7, 10)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "job-3", recent[0].ID)
		})
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h.json")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.ErrorIs(t, st.AppendJob(context.Background(), JobRecord{ID: "x"}), ErrClosed)
}

func TestPrunerRunOnce(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	p, err := NewPruner(PrunerConfig{Retention: 24 * time.Hour, Spec: "@every 1h", Parser: parser}, st, logx.Nop())
	require.NoError(t, err)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, st.AppendJob(ctx, JobRecord{ID: "old", ChatID: 1, Status: StatusSucceeded, FinishedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, st.AppendJob(ctx, JobRecord{ID: "new", ChatID: 1, Status: StatusSucceeded, FinishedAt: now.Add(-time.Hour)}))

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := st.RecentJobs(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].ID)

	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	p.Stop(stopCtx)
	p.Stop(stopCtx)
}

func TestNewPrunerValidates(t *testing.T) {
	t.Parallel()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	_, err := NewPruner(PrunerConfig{Retention: time.Hour, Spec: "@every 1h", Parser: parser}, nil, logx.Nop())
	require.ErrorIs(t, err, ErrDisabled)

	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = NewPruner(PrunerConfig{Retention: 0, Spec: "@every 1h", Parser: parser}, st, logx.Nop())
	require.Error(t, err)
	_, err = NewPruner(PrunerConfig{Retention: time.Hour, Spec: "every hour", Parser: parser}, st, logx.Nop())
	require.Error(t, err)
}
