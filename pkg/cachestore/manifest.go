package cachestore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Manifest 记录一个缓存区建立时的切块方案
// 它把"窗口怎么算的"固化在缓存区旁边：重启后不用重算，也能在源文件
// 意外变化时发现参数漂移 (FileSize 对不上就说明 file_id 失效了)
type Manifest struct {
	FileID      string `cbor:"f"`
	Encoding    string `cbor:"e"`
	ChunkSize   int64  `cbor:"t"`
	Window      int64  `cbor:"w"`
	TotalChunks int64  `cbor:"n"`
	FileSize    int64  `cbor:"s"`
}

// CBOR 编码选项：规范化输出，保证同一方案序列化结果字节级稳定
var encOptions = cbor.EncOptions{
	Sort:        cbor.SortCanonical,
	IndefLength: cbor.IndefLengthForbidden,
	Time:        cbor.TimeUnix,
	TimeTag:     cbor.EncTagNone,
}

var em, _ = encOptions.EncMode()

// 解码选项：限制容器大小，缓存目录里的东西不应该被无条件信任
var decOptions = cbor.DecOptions{
	MaxArrayElements: 64,
	MaxMapPairs:      64,
	MaxNestedLevels:  8,
	IndefLength:      cbor.IndefLengthForbidden,
	DupMapKey:        cbor.DupMapKeyEnforcedAPF,
}

var dm, _ = decOptions.DecMode()

// EncodeManifest 序列化清单
func EncodeManifest(m Manifest) ([]byte, error) {
	data, err := em.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest 反序列化清单
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := dm.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("corrupted manifest: %w", err)
	}
	return m, nil
}

// Matches 校验清单与当前请求参数是否一致
func (m Manifest) Matches(key Key, fileSize int64) bool {
	return m.FileID == key.FileID &&
		m.Encoding == key.Encoding &&
		m.ChunkSize == key.ChunkSize &&
		m.FileSize == fileSize
}
