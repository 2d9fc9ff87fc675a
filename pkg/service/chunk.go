package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"chunkvault/pkg/cachestore"
	"chunkvault/pkg/codec"
	"chunkvault/pkg/planner"
	"chunkvault/pkg/registry"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Chunk 是一次 chunk 请求的完整结果
type Chunk struct {
	Index       int64
	TotalChunks int64
	Data        []byte // 编码后的文本字节
	IsLast      bool
	ChunkSize   int64 // 请求的目标块大小 (不是实际产出大小)
	Encoding    string
}

// ChunkService 是缓存的唯一写入方
// 状态机：未请求 -> 编码中 -> 已缓存。命中直接回，未命中懒编码，
// 同一个 chunk 的并发请求通过 singleflight 合并成恰好一次编码
type ChunkService struct {
	registry *registry.Registry
	store    cachestore.Store
	codecs   *codec.Registry
	log      *slog.Logger

	// flights 按 (file_id, encoding, chunk_size, index) 合并在途编码
	// 锁粒度是单个 chunk：不同 chunk 完全并行，绝不按文件加锁
	flights singleflight.Group
}

func NewChunkService(reg *registry.Registry, store cachestore.Store, codecs *codec.Registry, log *slog.Logger) *ChunkService {
	if log == nil {
		log = slog.Default()
	}
	return &ChunkService{
		registry: reg,
		store:    store,
		codecs:   codecs,
		log:      log,
	}
}

// =============================================================================
// 1. GetChunk (懒编码 + 缓存命中)
// =============================================================================

// GetChunk 返回文件第 index 块的编码结果
// 命中缓存是 O(1) 快路径；未命中则读原始窗口、编码、原子落盘后返回
func (s *ChunkService) GetChunk(ctx context.Context, fileID string, index int64, encoding string, chunkSize int64) (Chunk, error) {
	rec, err := s.registry.Lookup(ctx, fileID)
	if err != nil {
		return Chunk{}, err
	}

	c, err := s.codecs.Lookup(encoding)
	if err != nil {
		return Chunk{}, err
	}

	key := cachestore.Key{FileID: fileID, Encoding: c.Profile().Name, ChunkSize: chunkSize}
	if err := key.Validate(); err != nil {
		return Chunk{}, err
	}

	plan, err := s.ensurePlan(ctx, key, c.Profile(), rec)
	if err != nil {
		return Chunk{}, err
	}

	// 越界判定基于精确总块数，早于任何 IO
	offset, length, err := plan.WindowAt(index)
	if err != nil {
		return Chunk{}, err
	}

	// --- 快路径：已缓存 ---
	data, err := s.store.Get(ctx, key, index)
	if err == nil {
		return s.assemble(plan, index, data, key), nil
	}
	if !errors.Is(err, cachestore.ErrNotFound) {
		return Chunk{}, err
	}

	// --- 慢路径：singleflight 内恰好编码一次 ---
	// 领飞请求被取消不应该拖垮搭车的请求，也不应该浪费已完成的编码，
	// 所以飞行内部用不可取消的上下文，算完的结果一定落盘
	flightKey := fmt.Sprintf("%s|%s|%d|%d", key.FileID, key.Encoding, key.ChunkSize, index)
	v, err, _ := s.flights.Do(flightKey, func() (any, error) {
		fctx := context.WithoutCancel(ctx)

		// 双重检查：排队期间别的飞行可能已经写好了
		if data, err := s.store.Get(fctx, key, index); err == nil {
			return data, nil
		} else if !errors.Is(err, cachestore.ErrNotFound) {
			return nil, err
		}

		raw, err := readWindow(rec.Path, offset, length)
		if err != nil {
			return nil, err
		}

		encoded := c.Encode(raw)

		// 写入失败不留半个 chunk (Put 是原子的)，下次请求重试即可
		if err := s.store.Put(fctx, key, index, encoded); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", cachestore.ErrWriteFailed, index, err)
		}
		return encoded, nil
	})
	if err != nil {
		return Chunk{}, err
	}

	return s.assemble(plan, index, v.([]byte), key), nil
}

func (s *ChunkService) assemble(plan planner.Plan, index int64, data []byte, key cachestore.Key) Chunk {
	return Chunk{
		Index:       index,
		TotalChunks: plan.TotalChunks,
		Data:        data,
		IsLast:      index == plan.TotalChunks-1,
		ChunkSize:   key.ChunkSize,
		Encoding:    key.Encoding,
	}
}

// ensurePlan 读取缓存区清单，没有就建立并固化
// 清单一旦写入，这个缓存区的窗口参数就钉死了，重启后也不会重算出别的值
func (s *ChunkService) ensurePlan(ctx context.Context, key cachestore.Key, profile codec.Profile, rec registry.FileRecord) (planner.Plan, error) {
	if m, err := s.store.GetManifest(ctx, key); err == nil {
		if m.Matches(key, rec.SizeBytes) {
			return planner.Plan{
				FileSize:    m.FileSize,
				TargetSize:  m.ChunkSize,
				Window:      m.Window,
				TotalChunks: m.TotalChunks,
			}, nil
		}
		// file_id 由 size/mtime 推导，清单对不上说明缓存目录被污染了
		s.log.Warn("manifest mismatch, rebuilding plan",
			"file_id", key.FileID, "encoding", key.Encoding)
	} else if !errors.Is(err, cachestore.ErrNotFound) {
		return planner.Plan{}, err
	}

	plan, err := planner.New(profile, rec.SizeBytes, key.ChunkSize)
	if err != nil {
		return planner.Plan{}, err
	}

	m := cachestore.Manifest{
		FileID:      key.FileID,
		Encoding:    key.Encoding,
		ChunkSize:   key.ChunkSize,
		Window:      plan.Window,
		TotalChunks: plan.TotalChunks,
		FileSize:    plan.FileSize,
	}
	// 清单只是 O(1) 恢复的优化，写失败降级为下次重算
	if err := s.store.PutManifest(ctx, key, m); err != nil {
		s.log.Warn("failed to persist plan manifest", "file_id", key.FileID, "err", err)
	}

	return plan, nil
}

// readWindow 从源文件读出 [offset, offset+length) 的原始字节
func readWindow(path string, offset, length int64) ([]byte, error) {
	if length == 0 {
		// 零长度文件的 chunk 0
		return []byte{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// 注册过但文件已经不在了 (等下一次 Scan 来清理记录)
			return nil, fmt.Errorf("%w: source file vanished: %s", registry.ErrFileNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, fmt.Errorf("failed to read window [%d, %d) of %s: %w", offset, offset+length, path, err)
	}
	return buf, nil
}

// =============================================================================
// 2. EncodeAll (预热)
// =============================================================================

// EncodeAll 把一个文件在某编码下的全部 chunk 预先编码进缓存
// 有界并行 (errgroup)，已缓存的块被 GetChunk 的快路径直接跳过
func (s *ChunkService) EncodeAll(ctx context.Context, fileID, encoding string, chunkSize int64, parallelism int) (int64, error) {
	rec, err := s.registry.Lookup(ctx, fileID)
	if err != nil {
		return 0, err
	}
	c, err := s.codecs.Lookup(encoding)
	if err != nil {
		return 0, err
	}

	key := cachestore.Key{FileID: fileID, Encoding: c.Profile().Name, ChunkSize: chunkSize}
	plan, err := s.ensurePlan(ctx, key, c.Profile(), rec)
	if err != nil {
		return 0, err
	}

	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i := int64(0); i < plan.TotalChunks; i++ {
		index := i
		g.Go(func() error {
			// 存在性探测远比取数据便宜 (Redis 装饰层会直接拦下重复预热)
			ok, err := s.store.Exists(gctx, key, index)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			_, err = s.GetChunk(gctx, fileID, index, encoding, chunkSize)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return plan.TotalChunks, nil
}

// =============================================================================
// 3. 注册 / 删除 (注册表与缓存的事务性协调)
// =============================================================================

// RegisterFile 登记一个文件，并清掉同一路径被替换掉的旧缓存区
// (内容变化 -> 新 file_id，旧 ID 的缓存不再可达，必须回收)
func (s *ChunkService) RegisterFile(ctx context.Context, path string) (registry.FileRecord, error) {
	rec, staleIDs, err := s.registry.Register(ctx, path)
	if err != nil {
		return registry.FileRecord{}, err
	}
	s.clearStale(ctx, staleIDs)
	return rec, nil
}

// ScanInput 扫描输入目录重建注册表，并回收失效记录的缓存
func (s *ChunkService) ScanInput(ctx context.Context, dir string) ([]registry.FileRecord, error) {
	records, removedIDs, err := s.registry.Scan(ctx, dir)
	if err != nil {
		return nil, err
	}
	s.clearStale(ctx, removedIDs)
	return records, nil
}

// RemoveFile 删除注册记录及其全部缓存区
// 顺序固定：先注册表后缓存 —— 记录删掉后新请求立刻 404，
// 缓存清理哪怕失败也只是泄漏磁盘空间，绝不会出现"注册表没了缓存还能服务"
func (s *ChunkService) RemoveFile(ctx context.Context, fileID string) error {
	if err := s.registry.Remove(ctx, fileID); err != nil {
		return err
	}
	if err := s.store.ClearFile(ctx, fileID); err != nil {
		s.log.Error("failed to clear cache for removed file", "file_id", fileID, "err", err)
		return err
	}
	return nil
}

// ClearEncoding 丢弃一个文件在某编码下的全部缓存区 (所有块大小变体)
// 注册记录保留，之后的请求重新走懒编码
func (s *ChunkService) ClearEncoding(ctx context.Context, fileID, encoding string) error {
	if _, err := s.registry.Lookup(ctx, fileID); err != nil {
		return err
	}
	c, err := s.codecs.Lookup(encoding)
	if err != nil {
		return err
	}
	return s.store.ClearEncoding(ctx, fileID, c.Profile().Name)
}

func (s *ChunkService) clearStale(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := s.store.ClearFile(ctx, id); err != nil {
			// 清理失败只是泄漏，不能阻塞主流程
			s.log.Warn("failed to clear stale cache area", "file_id", id, "err", err)
		}
	}
}
