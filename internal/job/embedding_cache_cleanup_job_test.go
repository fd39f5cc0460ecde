package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDeleter struct {
	cutoff int64
	err    error
}

func (f *fakeDeleter) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestEmbeddingCacheCleanupCutoff(t *testing.T) {
	now := time.Date(2026, 3, 31, 3, 0, 0, 0, time.UTC)
	del := &fakeDeleter{}
	j := NewEmbeddingCacheCleanupJob(del, 0)
	j.now = func() time.Time { return now }

	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.AddDate(0, 0, -defaultCacheMaxAgeDays).UnixMilli(), del.cutoff)
	require.Equal(t, "embedding_cache_cleanup", j.Name())
}

func TestEmbeddingCacheCleanupError(t *testing.T) {
	j := NewEmbeddingCacheCleanupJob(&fakeDeleter{err: errors.New("boom")}, 7)
	require.Error(t, j.Run(context.Background()))

	require.NoError(t, NewEmbeddingCacheCleanupJob(nil, 7).Run(context.Background()))
}
