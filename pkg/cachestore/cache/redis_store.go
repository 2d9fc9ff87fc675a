package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"chunkvault/pkg/cachestore"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，为底层的 cachestore.Store 添加 Redis 存在性缓存
//
// 只缓存 Exists (存在性标记)，不缓存 chunk 数据本身：
// 编码后的 chunk 接近 1MiB，Redis 内存极其宝贵，而热路径上真正贵的是
// 对 S3 这类后端反复发 Head 请求 —— 拦掉它们性价比最高。
type CachedStore struct {
	backend cachestore.Store
	client  *redis.Client
	ttl     time.Duration
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 存在性标记的过期时间 (例如 24h)
}

func NewCachedStore(backend cachestore.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{backend: backend, client: client, ttl: cfg.TTL}, nil
}

// existsKey 生成 Redis Key
// 前缀按 file_id 分段，方便 ClearFile 时按模式失效
func (s *CachedStore) existsKey(key cachestore.Key, index int64) string {
	return "cv:chunk:" + key.FileID + ":" + key.Encoding + ":" +
		strconv.FormatInt(key.ChunkSize, 10) + ":" + strconv.FormatInt(index, 10)
}

// Exists 优先查 Redis
func (s *CachedStore) Exists(ctx context.Context, key cachestore.Key, index int64) (bool, error) {
	rkey := s.existsKey(key, index)

	val, err := s.client.Exists(ctx, rkey).Result()
	if err != nil {
		// 缓存故障降级：Redis 挂了就退化为无缓存模式，直接查后端
		fmt.Printf("WARN: Redis error: %v\n", err)
	} else if val > 0 {
		return true, nil
	}

	found, err := s.backend.Exists(ctx, key, index)
	if err != nil {
		return false, err
	}

	// 缓存回填：异步写，不阻塞主流程
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, rkey, "1", s.ttl)
		}()
	}
	return found, nil
}

// Put 写穿后端，成功后才标记存在
func (s *CachedStore) Put(ctx context.Context, key cachestore.Key, index int64, data []byte) error {
	if err := s.backend.Put(ctx, key, index, data); err != nil {
		return err
	}
	// Set 失败可以忽略，不影响主流程
	s.client.Set(ctx, s.existsKey(key, index), "1", s.ttl)
	return nil
}

// Get 透传 —— chunk 数据不进 Redis
func (s *CachedStore) Get(ctx context.Context, key cachestore.Key, index int64) ([]byte, error) {
	return s.backend.Get(ctx, key, index)
}

// Stats 透传 —— 计数必须是真实观测值，不能从缓存里猜
func (s *CachedStore) Stats(ctx context.Context, key cachestore.Key) (cachestore.Stats, error) {
	return s.backend.Stats(ctx, key)
}

func (s *CachedStore) GetManifest(ctx context.Context, key cachestore.Key) (cachestore.Manifest, error) {
	return s.backend.GetManifest(ctx, key)
}

func (s *CachedStore) PutManifest(ctx context.Context, key cachestore.Key, m cachestore.Manifest) error {
	return s.backend.PutManifest(ctx, key, m)
}

// ClearFile 先清后端，再把对应的存在性标记全部失效
// 顺序很重要：反过来的话，清理间隙里回填的脏标记会活过整个 TTL
func (s *CachedStore) ClearFile(ctx context.Context, fileID string) error {
	if err := s.backend.ClearFile(ctx, fileID); err != nil {
		return err
	}
	return s.invalidatePattern(ctx, "cv:chunk:"+fileID+":*")
}

func (s *CachedStore) ClearEncoding(ctx context.Context, fileID, encoding string) error {
	if err := s.backend.ClearEncoding(ctx, fileID, encoding); err != nil {
		return err
	}
	return s.invalidatePattern(ctx, "cv:chunk:"+fileID+":"+encoding+":*")
}

// invalidatePattern 用 SCAN 批量删除匹配的 Key (不用 KEYS，避免阻塞 Redis)
func (s *CachedStore) invalidatePattern(ctx context.Context, pattern string) error {
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 256 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		// 失效失败只影响缓存一致性，不影响数据正确性 (Get 路径不走 Redis)
		fmt.Printf("WARN: Redis invalidation failed: %v\n", err)
		return nil
	}
	if len(keys) > 0 {
		return s.client.Del(ctx, keys...).Err()
	}
	return nil
}
