package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"chunkvault/pkg/cachestore"
)

// Adapter 实现了 cachestore.Store 接口 (本地磁盘后端)
//
// 物理布局 (file_id 前 2 字符做 Sharding，避免单目录文件数爆炸):
//   root/<id[:2]>/<id[2:]>/<encoding>/<chunk_size>/00000000.chunk
//   root/<id[:2]>/<id[2:]>/<encoding>/<chunk_size>/manifest.cbor
type Adapter struct {
	rootPath string
}

const (
	chunkSuffix  = ".chunk"
	manifestName = "manifest.cbor"
)

// NewAdapter 创建磁盘缓存适配器
func NewAdapter(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// fileDir 返回某个文件的顶层缓存目录 (含所有编码)
func (s *Adapter) fileDir(fileID string) string {
	if len(fileID) < 2 {
		return filepath.Join(s.rootPath, fileID)
	}
	return filepath.Join(s.rootPath, fileID[:2], fileID[2:])
}

// areaDir 返回一个缓存区目录
func (s *Adapter) areaDir(key cachestore.Key) string {
	return filepath.Join(s.fileDir(key.FileID), key.Encoding, strconv.FormatInt(key.ChunkSize, 10))
}

func chunkName(index int64) string {
	return fmt.Sprintf("%08d%s", index, chunkSuffix)
}

func (s *Adapter) chunkPath(key cachestore.Key, index int64) string {
	return filepath.Join(s.areaDir(key), chunkName(index))
}

// isAbsent 判断 stat/read 错误是否等价于"没缓存"
// 路径组件被普通文件占住时 (ENOTDIR) chunk 同样不存在，不该当错误冒泡
func isAbsent(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR)
}

func (s *Adapter) Exists(ctx context.Context, key cachestore.Key, index int64) (bool, error) {
	_, err := os.Stat(s.chunkPath(key, index))
	if err == nil {
		return true, nil
	}
	if isAbsent(err) {
		return false, nil
	}
	return false, err
}

func (s *Adapter) Get(ctx context.Context, key cachestore.Key, index int64) ([]byte, error) {
	data, err := os.ReadFile(s.chunkPath(key, index))
	if isAbsent(err) {
		return nil, cachestore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Adapter) Put(ctx context.Context, key cachestore.Key, index int64, data []byte) error {
	return s.writeAtomic(s.chunkPath(key, index), data)
}

// writeAtomic 先写临时文件再 Rename
// 保证读者要么看不到文件，要么看到完整的文件，绝无中间态
func (s *Adapter) writeAtomic(targetPath string, data []byte) error {
	// 重复写入直接跳过 (chunk 一旦写入就不可变)
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", cachestore.ErrWriteFailed, err)
	}

	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", cachestore.ErrWriteFailed, err)
	}
	// Rename 成功后这个删除会失效，失败时负责清场
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("%w: %v", cachestore.ErrWriteFailed, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: %v", cachestore.ErrWriteFailed, err)
	}

	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return fmt.Errorf("%w: %v", cachestore.ErrWriteFailed, err)
	}
	return nil
}

func (s *Adapter) Stats(ctx context.Context, key cachestore.Key) (cachestore.Stats, error) {
	entries, err := os.ReadDir(s.areaDir(key))
	if isAbsent(err) {
		return cachestore.Stats{}, nil // 空缓存区不算错误
	}
	if err != nil {
		return cachestore.Stats{}, err
	}

	var st cachestore.Stats
	for _, entry := range entries {
		// 临时文件和 manifest 不计入
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), chunkSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // 并发删除时可能消失，跳过即可
		}
		st.Count++
		st.Bytes += info.Size()
	}
	return st, nil
}

func (s *Adapter) GetManifest(ctx context.Context, key cachestore.Key) (cachestore.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.areaDir(key), manifestName))
	if isAbsent(err) {
		return cachestore.Manifest{}, cachestore.ErrNotFound
	}
	if err != nil {
		return cachestore.Manifest{}, err
	}
	return cachestore.DecodeManifest(data)
}

func (s *Adapter) PutManifest(ctx context.Context, key cachestore.Key, m cachestore.Manifest) error {
	data, err := cachestore.EncodeManifest(m)
	if err != nil {
		return err
	}
	return s.writeAtomic(filepath.Join(s.areaDir(key), manifestName), data)
}

func (s *Adapter) ClearFile(ctx context.Context, fileID string) error {
	if err := os.RemoveAll(s.fileDir(fileID)); err != nil {
		return fmt.Errorf("failed to clear cache for file %s: %w", fileID, err)
	}
	return nil
}

func (s *Adapter) ClearEncoding(ctx context.Context, fileID, encoding string) error {
	// 删掉该编码下所有块大小变体
	if err := os.RemoveAll(filepath.Join(s.fileDir(fileID), encoding)); err != nil {
		return fmt.Errorf("failed to clear %s cache for file %s: %w", encoding, fileID, err)
	}
	return nil
}
