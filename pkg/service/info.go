package service

import (
	"context"
	"log/slog"

	"chunkvault/pkg/cachestore"
	"chunkvault/pkg/codec"
	"chunkvault/pkg/planner"
	"chunkvault/pkg/registry"
)

// Info 是一次 info 查询的结果
//
// 双态契约：
//   - IsProcessed == true  => TotalChunks / EncodedSize 是缓存的真实观测值
//   - IsProcessed == false => 两者都是名义膨胀率公式的估算，可能与最终
//     真实值差一两块 (yEnc 尤其明显)，客户端不得把估算当承诺
type Info struct {
	FileID       string
	Filename     string
	OriginalSize int64
	EncodedSize  int64
	TotalChunks  int64
	ChunkSize    int64
	Encoding     string
	IsProcessed  bool
}

// InfoService 只读地报告文件在某编码下的处理状态
// 它从不触发编码，也从不写缓存
type InfoService struct {
	registry *registry.Registry
	store    cachestore.Store
	codecs   *codec.Registry
	log      *slog.Logger
}

func NewInfoService(reg *registry.Registry, store cachestore.Store, codecs *codec.Registry, log *slog.Logger) *InfoService {
	if log == nil {
		log = slog.Default()
	}
	return &InfoService{
		registry: reg,
		store:    store,
		codecs:   codecs,
		log:      log,
	}
}

// GetInfo 报告 (文件, 编码, 目标块大小) 组合的处理状态
//
// IsProcessed 判定必须同时满足两个条件：
//  1. 缓存 chunk 数 == 方案的精确总块数 (不是估算值！)
//  2. 缓存 chunk 数 > 0
//
// 部分处理 (0 < count < total) 一律按未处理报告估算值 —— 估算和真实计数
// 可能不一致，混用会让客户端在最后一块附近越界或漏块
func (s *InfoService) GetInfo(ctx context.Context, fileID, encoding string, chunkSize int64) (Info, error) {
	rec, err := s.registry.Lookup(ctx, fileID)
	if err != nil {
		return Info{}, err
	}

	c, err := s.codecs.Lookup(encoding)
	if err != nil {
		return Info{}, err
	}
	profile := c.Profile()

	key := cachestore.Key{FileID: fileID, Encoding: profile.Name, ChunkSize: chunkSize}
	if err := key.Validate(); err != nil {
		return Info{}, err
	}

	info := Info{
		FileID:       rec.FileID,
		Filename:     rec.Filename,
		OriginalSize: rec.SizeBytes,
		ChunkSize:    chunkSize,
		Encoding:     profile.Name,
	}

	stats, err := s.store.Stats(ctx, key)
	if err != nil {
		return Info{}, err
	}

	if stats.Count > 0 {
		// 有真实数据，对照精确方案判断是否完整
		plan, err := planner.New(profile, rec.SizeBytes, chunkSize)
		if err != nil {
			return Info{}, err
		}
		if stats.Count == plan.TotalChunks {
			info.TotalChunks = stats.Count
			info.EncodedSize = stats.Bytes
			info.IsProcessed = true
			return info, nil
		}
	}

	// 未处理或半处理：报告公式估算，明确打上 IsProcessed=false
	info.TotalChunks = planner.EstimateChunks(profile, rec.SizeBytes, chunkSize)
	info.EncodedSize = profile.EncodedSizeEstimate(rec.SizeBytes)
	info.IsProcessed = false
	return info, nil
}
