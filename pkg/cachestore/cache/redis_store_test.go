package cache

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"chunkvault/pkg/cachestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. SpyStore (间谍存储)
// 统计底层方法被调用的次数，验证请求有没有穿透缓存
// -----------------------------------------------------------------------------

type SpyStore struct {
	existsCount int32
	putCount    int32
	chunks      map[string][]byte
}

func NewSpyStore() *SpyStore {
	return &SpyStore{chunks: make(map[string][]byte)}
}

func spyKey(key cachestore.Key, index int64) string {
	return fmt.Sprintf("%s/%s/%d/%d", key.FileID, key.Encoding, key.ChunkSize, index)
}

func (s *SpyStore) Exists(ctx context.Context, key cachestore.Key, index int64) (bool, error) {
	atomic.AddInt32(&s.existsCount, 1)
	_, ok := s.chunks[spyKey(key, index)]
	return ok, nil
}

func (s *SpyStore) Put(ctx context.Context, key cachestore.Key, index int64, data []byte) error {
	atomic.AddInt32(&s.putCount, 1)
	s.chunks[spyKey(key, index)] = data
	return nil
}

func (s *SpyStore) Get(ctx context.Context, key cachestore.Key, index int64) ([]byte, error) {
	data, ok := s.chunks[spyKey(key, index)]
	if !ok {
		return nil, cachestore.ErrNotFound
	}
	return data, nil
}

func (s *SpyStore) Stats(ctx context.Context, key cachestore.Key) (cachestore.Stats, error) {
	return cachestore.Stats{}, nil
}

func (s *SpyStore) GetManifest(ctx context.Context, key cachestore.Key) (cachestore.Manifest, error) {
	return cachestore.Manifest{}, cachestore.ErrNotFound
}

func (s *SpyStore) PutManifest(ctx context.Context, key cachestore.Key, m cachestore.Manifest) error {
	return nil
}

func (s *SpyStore) ClearFile(ctx context.Context, fileID string) error { return nil }

func (s *SpyStore) ClearEncoding(ctx context.Context, fileID, encoding string) error { return nil }

// -----------------------------------------------------------------------------
// 2. 集成测试 (需要本地 Redis)
// -----------------------------------------------------------------------------

func TestCachedStore_Integration(t *testing.T) {
	// 环境检查: Redis 没起就跳过，不干扰正常测试
	redisAddr := "localhost:6379"
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()

	ctx := context.Background()
	spy := NewSpyStore()
	cfg := Config{
		RedisURL: fmt.Sprintf("redis://%s/0", redisAddr),
		TTL:      1 * time.Hour,
	}
	cachedStore, err := NewCachedStore(spy, cfg)
	require.NoError(t, err)

	// 清理上次测试的残留
	cachedStore.client.FlushDB(ctx)

	key := cachestore.Key{
		FileID:    "1111222233334444555566667777888899990000aaaabbbbccccddddeeeeffff",
		Encoding:  "base64",
		ChunkSize: 1024 * 1024,
	}

	// --- Step 1: Cache Miss ---
	exists, err := cachedStore.Exists(ctx, key, 0)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.existsCount), "miss 必须穿透到后端")

	// --- Step 2: Put (写穿 + 标记) ---
	require.NoError(t, cachedStore.Put(ctx, key, 0, []byte("QUJD")))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.putCount))

	redisVal, err := cachedStore.client.Exists(ctx, cachedStore.existsKey(key, 0)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), redisVal, "Put 之后 Redis 里应该有存在性标记")

	// --- Step 3: Cache Hit ---
	exists, err = cachedStore.Exists(ctx, key, 0)
	require.NoError(t, err)
	assert.True(t, exists)
	// 核心断言：后端 Exists 调用次数不变，流量被 Redis 拦截
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.existsCount), "hit 不应该穿透到后端")

	// --- Step 4: ClearFile 失效标记 ---
	require.NoError(t, cachedStore.ClearFile(ctx, key.FileID))
	redisVal, err = cachedStore.client.Exists(ctx, cachedStore.existsKey(key, 0)).Result()
	require.NoError(t, err)
	assert.Zero(t, redisVal, "ClearFile 之后存在性标记必须失效")
}
