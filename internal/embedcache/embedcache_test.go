package embedcache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return cloneEmbedding(c.vec), nil
}

func (c *countingEmbedder) ModelName() string { return "test-model" }

type memStore struct {
	items  map[model.EmbeddingKey]*model.CachedEmbedding
	getErr error
	saves  int
}

func newMemStore() *memStore {
	return &memStore{items: map[model.EmbeddingKey]*model.CachedEmbedding{}}
}

func (m *memStore) Lookup(ctx context.Context, key model.EmbeddingKey) (*model.CachedEmbedding, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	item, ok := m.items[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return item, nil
}

func (m *memStore) Upsert(ctx context.Context, item *model.CachedEmbedding) error {
	m.saves++
	m.items[item.EmbeddingKey] = item
	return nil
}

type gatedEmbedder struct {
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	g.calls.Add(1)
	<-g.gate
	return []float32{0.1, 0.2}, nil
}

func (g *gatedEmbedder) ModelName() string { return "gated" }

func TestLruEmbedderCachesAndClones(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	e := WrapLruCacheToEmbedder(inner, 10, time.Minute)
	first, err := e.Embed(context.Background(), "deductible", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	first[0] = 99
	second, err := e.Embed(context.Background(), "deductible", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, second)
	require.Equal(t, 1, inner.calls)

	_, err = e.Embed(context.Background(), "deductible", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, "test-model", e.ModelName())
}

func TestLruEmbedderDisabled(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
}

func TestLruEmbedderSharesConcurrentMisses(t *testing.T) {
	inner := &gatedEmbedder{gate: make(chan struct{})}
	e := WrapLruCacheToEmbedder(inner, 10, time.Minute)

	var wg sync.WaitGroup
	results := make([][]float32, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vec, err := e.Embed(context.Background(), "same question", "RETRIEVAL_QUERY")
			assert.NoError(t, err)
			results[i] = vec
		}(i)
	}
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	require.Equal(t, int32(1), inner.calls.Load())
	for _, vec := range results {
		require.Equal(t, []float32{0.1, 0.2}, vec)
	}
	results[0][0] = 42
	require.Equal(t, float32(0.1), results[1][0])
}

func TestLruEmbedderSkipsEmptyVectors(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(inner, 10, time.Minute)
	for i := 0; i < 2; i++ {
		vec, err := e.Embed(context.Background(), "q", "")
		require.NoError(t, err)
		require.Empty(t, vec)
	}
	require.Equal(t, 2, inner.calls)
}

func TestDBEmbedderReadThrough(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{0.5}}
	store := newMemStore()
	e := WrapDBCacheToEmbedder(inner, store)
	for i := 0; i < 3; i++ {
		vec, err := e.Embed(context.Background(), "q", "RETRIEVAL_QUERY")
		require.NoError(t, err)
		require.Equal(t, []float32{0.5}, vec)
	}
	require.Equal(t, 1, inner.calls)
	require.Equal(t, 1, store.saves)
}

func TestDBEmbedderStoreFailureFallsThrough(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{0.5}}
	store := newMemStore()
	store.getErr = errors.New("db down")
	e := WrapDBCacheToEmbedder(inner, store)
	vec, err := e.Embed(context.Background(), "q", "")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5}, vec)
}

func TestProviderErrorIsReturned(t *testing.T) {
	boom := errors.New("quota")
	e := Wrap(&countingEmbedder{err: boom}, nil, newMemStore(), ChainConfig{LRUSize: 4, LRUTTL: time.Minute})
	_, err := e.Embed(context.Background(), "q", "")
	require.ErrorIs(t, err, boom)
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
	_, err = decodeVector(nil)
	require.Error(t, err)
}

func TestBuildCacheKey(t *testing.T) {
	a := buildCacheKey(" m ", "t", "hello")
	b := buildCacheKey("m", "t", "hello")
	require.Equal(t, a, b)
	require.Len(t, a.ContentHash, 64)
	require.Equal(t, "unknown", buildCacheKey("", "t", "x").ModelName)
	require.Equal(t, "embed:m:t:"+a.ContentHash, a.String())
	require.NotEqual(t, a.String(), buildCacheKey("m", "t", "hello!").String())
}

func TestRedisEmbedder(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	inner := &countingEmbedder{vec: []float32{0.25, 0.75}}
	e := WrapRedisCacheToEmbedder(inner, rdb, time.Minute)
	text := "redis-test-" + time.Now().String()
	for i := 0; i < 2; i++ {
		vec, err := e.Embed(context.Background(), text, "RETRIEVAL_QUERY")
		require.NoError(t, err)
		require.Equal(t, []float32{0.25, 0.75}, vec)
	}
	require.Equal(t, 1, inner.calls)
}
