package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMalformedInput 表示解码输入不合法 (字母表外字符 / 坏 padding / 悬空转义)
	ErrMalformedInput = errors.New("malformed encoded input")

	// ErrUnsupportedEncoding 表示请求了一个未注册的编码名
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// Codec 是一个可逆的文本编码器
// 契约：对任意字节序列 x (包括空)，Decode(Encode(x)) == x
type Codec interface {
	// Encode 把原始字节编码成文本 (以 []byte 返回，避免 string 拷贝)
	Encode(raw []byte) []byte

	// Decode 把文本还原成原始字节
	// 输入不合法时返回 ErrMalformedInput (可能被 %w 包装)
	Decode(text []byte) ([]byte, error)

	// Profile 返回编码的静态元数据 (膨胀率 / 对齐单位)
	Profile() Profile
}

// Profile 描述一个编码的切块相关元数据
// 膨胀率用精确分数表示 (encoded = raw * Num / Den)，避免浮点误差
type Profile struct {
	Name string

	// ExpansionNum / ExpansionDen: 每 Den 个原始字节产出 Num 个编码字节
	// base64 = 4/3, hex = 2/1, base32 = 8/5, base85 = 5/4
	// yEnc 的膨胀率依赖数据内容，这里记录的是规划用的名义上界 (11/10)
	ExpansionNum int64
	ExpansionDen int64

	// RawAlignment 是编码必须整组消费的最小原始字节单位
	// 切块窗口必须是它的整数倍，否则编码组会被切断，拼接语义就变了
	RawAlignment int64

	// Exact 表示膨胀率是否精确
	// false (yEnc/base85): 实际产出可能低于估算，估算只能当上界用
	Exact bool
}

// EncodedSizeEstimate 按名义膨胀率估算编码后大小 (向上取整)
func (p Profile) EncodedSizeEstimate(rawSize int64) int64 {
	if rawSize <= 0 {
		return 0
	}
	return (rawSize*p.ExpansionNum + p.ExpansionDen - 1) / p.ExpansionDen
}

// -----------------------------------------------------------------------------
// Registry: 封闭的编码表
// 编码集合固定且很小，用静态 map 分发，不做任何反射/插件机制
// -----------------------------------------------------------------------------

// Options 控制个别编码的可配置行为
type Options struct {
	// HexUppercase: hex 编码输出大写 (默认小写)
	// 大小写在进程启动时固定，保证缓存的 chunk 之间风格一致
	HexUppercase bool
}

type Registry struct {
	codecs map[string]Codec
}

// NewRegistry 构建包含全部六种编码的注册表
func NewRegistry(opts Options) *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	for _, c := range []Codec{
		newBase64Codec(),
		newHexCodec(opts.HexUppercase),
		newBase32Codec(),
		newBase85Codec(),
		newUUCodec(),
		newYEncCodec(),
	} {
		r.codecs[c.Profile().Name] = c
	}
	return r
}

// Lookup 按名字查找编码 (大小写不敏感，"yEnc" 和 "yenc" 等价)
func (r *Registry) Lookup(name string) (Codec, error) {
	c, ok := r.codecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
	return c, nil
}

// Names 返回全部已注册编码名 (排序后，保证输出稳定)
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
