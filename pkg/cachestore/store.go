package cachestore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound 请求的 chunk (或 manifest) 不在缓存里
	ErrNotFound = errors.New("cache entry not found")

	// ErrWriteFailed 缓存写入失败 (磁盘满 / 权限 / 网络)
	// 属于瞬时错误：写入是原子的，失败不会留下半个 chunk，重试是安全的
	ErrWriteFailed = errors.New("cache write failed")
)

// Key 定位一个缓存区 (cache area)
// 同一个文件在不同编码、不同目标块大小下各有独立的缓存区，互不污染；
// 区内的 chunk 索引从 0 开始连续递增
type Key struct {
	FileID    string
	Encoding  string
	ChunkSize int64
}

func (k Key) Validate() error {
	if k.FileID == "" || k.Encoding == "" || k.ChunkSize <= 0 {
		return fmt.Errorf("invalid cache key %+v", k)
	}
	return nil
}

// Stats 是一个缓存区的真实观测值 (绝不是估算)
type Stats struct {
	// Count 已缓存的 chunk 数量
	Count int64
	// Bytes 已缓存的编码字节总量
	Bytes int64
}

// Store 定义编码 chunk 缓存的存储后端
// 实现可以是本地磁盘、S3，或者再套一层 Redis 存在性缓存
//
// 物理布局是实现细节，但所有实现必须保证：
//   - Put 对单个 chunk 是原子的 (读者绝不会看到写了一半的 chunk)
//   - 缓存里存在的 chunk 一定是完整且对其编码合法的
type Store interface {
	// Exists 检查某个 chunk 是否已缓存
	Exists(ctx context.Context, key Key, index int64) (bool, error)

	// Get 读取已缓存的 chunk，未命中返回 ErrNotFound
	Get(ctx context.Context, key Key, index int64) ([]byte, error)

	// Put 原子写入一个 chunk (重复写入同一索引是幂等的)
	Put(ctx context.Context, key Key, index int64, data []byte) error

	// Stats 返回缓存区的真实 chunk 数和字节量，供 Info 层报告"实际值"
	Stats(ctx context.Context, key Key) (Stats, error)

	// GetManifest / PutManifest 读写缓存区的切块方案清单
	// 清单在首次建立窗口时写入一次，之后的请求 O(1) 读取，进程重启后依然有效
	GetManifest(ctx context.Context, key Key) (Manifest, error)
	PutManifest(ctx context.Context, key Key, m Manifest) error

	// ClearFile 删除某个文件在所有编码下的全部缓存区
	ClearFile(ctx context.Context, fileID string) error

	// ClearEncoding 删除某个文件在某个编码下的全部缓存区 (所有块大小变体)
	ClearEncoding(ctx context.Context, fileID, encoding string) error
}

// Count 是 Stats 的便捷包装：只要 chunk 数
func Count(ctx context.Context, s Store, key Key) (int64, error) {
	st, err := s.Stats(ctx, key)
	if err != nil {
		return 0, err
	}
	return st.Count, nil
}
