package planner

import (
	"errors"
	"fmt"

	"chunkvault/pkg/codec"
)

var (
	// ErrChunkOutOfRange 表示请求的 chunk index 超出了文件的总块数
	ErrChunkOutOfRange = errors.New("chunk index out of range")

	// ErrPlanInconsistent 表示窗口推导违反了内部不变量 (致命，不可重试)
	ErrPlanInconsistent = errors.New("chunk plan inconsistency")
)

// Plan 描述一个 (文件, 编码, 目标块大小) 组合下的切块方案
//
// 窗口宽度在构造时一次性算好，之后每个 chunk 的 offset 都是 O(1) 推导
// (offset = index * window)，不需要从 chunk 0 开始扫描。
// Plan 是纯值对象，无状态、可随意复制。
type Plan struct {
	// FileSize 原始文件大小
	FileSize int64

	// TargetSize 目标编码块大小 T
	TargetSize int64

	// Window 每个 chunk 消费的原始字节数 (最后一块除外)
	// 固定比率编码: floor(T * den / num) 向下对齐到 RawAlignment 的倍数
	// yEnc: 用名义上界做保守种子，实际产出一般略低于 T
	Window int64

	// TotalChunks 精确总块数 (由 Window 推导，不是估算)
	TotalChunks int64
}

// New 为给定编码和目标大小构造切块方案
// 零长度文件约定为恰好一个零长度 chunk (编码输出是该编码对空输入的表示)
func New(profile codec.Profile, fileSize, targetSize int64) (Plan, error) {
	if fileSize < 0 {
		return Plan{}, fmt.Errorf("%w: negative file size %d", ErrPlanInconsistent, fileSize)
	}
	if targetSize <= 0 {
		return Plan{}, fmt.Errorf("%w: non-positive target size %d", ErrPlanInconsistent, targetSize)
	}

	// 原始窗口 = floor(T / expansion_ratio)，再向下对齐
	window := targetSize * profile.ExpansionDen / profile.ExpansionNum
	window -= window % profile.RawAlignment

	// 目标块太小装不下一个对齐组时，退化为每块一个对齐组
	// (编码块会略超 T，但绝不能切断编码组)
	if window < profile.RawAlignment {
		window = profile.RawAlignment
	}

	total := int64(1) // 零长度文件也恰好有一块
	if fileSize > 0 {
		total = (fileSize + window - 1) / window
	}

	p := Plan{
		FileSize:    fileSize,
		TargetSize:  targetSize,
		Window:      window,
		TotalChunks: total,
	}

	// 自检：所有窗口拼起来必须恰好覆盖文件，不重不漏
	if fileSize > 0 {
		covered := window * (total - 1)
		if covered >= fileSize || covered+window < fileSize {
			return Plan{}, fmt.Errorf("%w: windows cover [%d, %d) for file of %d bytes",
				ErrPlanInconsistent, covered, covered+window, fileSize)
		}
	}

	return p, nil
}

// WindowAt 返回 chunk i 对应的原始字节区间 [offset, offset+length)
// 最后一块吸收全部余量，可能短于 Window
func (p Plan) WindowAt(index int64) (offset, length int64, err error) {
	if index < 0 || index >= p.TotalChunks {
		return 0, 0, fmt.Errorf("%w: index %d, total %d", ErrChunkOutOfRange, index, p.TotalChunks)
	}

	offset = index * p.Window
	length = p.Window
	if offset+length > p.FileSize {
		length = p.FileSize - offset
	}
	if length < 0 {
		// 只可能是零长度文件的 chunk 0
		length = 0
	}
	return offset, length, nil
}

// EstimateChunks 按名义膨胀率估算总块数 (处理前的预测值)
// 注意：这是公式估算，与 Plan.TotalChunks 的精确值可能差一两块，
// Info 层的契约是一旦有真实数据就必须用精确计数，估算只在处理前使用
func EstimateChunks(profile codec.Profile, fileSize, targetSize int64) int64 {
	if fileSize <= 0 {
		return 1
	}
	encoded := profile.EncodedSizeEstimate(fileSize)
	return (encoded + targetSize - 1) / targetSize
}
