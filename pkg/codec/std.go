package codec

import (
	"bytes"
	"encoding/ascii85"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// 标准库覆盖的四种编码 (base64 / hex / base32 / base85)
// 这里只做两件事：薄封装 + 把标准库的错误映射成 ErrMalformedInput

// -----------------------------------------------------------------------------
// base64 (RFC 4648 标准字母表)
// 对齐单位 3：窗口是 3 的倍数时不产生 '='，padding 只会出现在整个文件的最后一块
// -----------------------------------------------------------------------------

type base64Codec struct{}

func newBase64Codec() base64Codec { return base64Codec{} }

func (base64Codec) Encode(raw []byte) []byte {
	dst := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(dst, raw)
	return dst
}

func (base64Codec) Decode(text []byte) ([]byte, error) {
	dst := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(dst, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return dst[:n], nil
}

func (base64Codec) Profile() Profile {
	return Profile{Name: "base64", ExpansionNum: 4, ExpansionDen: 3, RawAlignment: 3, Exact: true}
}

// -----------------------------------------------------------------------------
// hex
// 1 字节 -> 2 字符，无对齐约束，无 padding，是最简单的情况
// -----------------------------------------------------------------------------

type hexCodec struct {
	uppercase bool
}

func newHexCodec(uppercase bool) hexCodec { return hexCodec{uppercase: uppercase} }

func (c hexCodec) Encode(raw []byte) []byte {
	dst := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(dst, raw)
	if c.uppercase {
		dst = bytes.ToUpper(dst)
	}
	return dst
}

func (c hexCodec) Decode(text []byte) ([]byte, error) {
	// hex.Decode 本身两种大小写都接受，这里不用额外处理
	dst := make([]byte, hex.DecodedLen(len(text)))
	n, err := hex.Decode(dst, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return dst[:n], nil
}

func (hexCodec) Profile() Profile {
	return Profile{Name: "hex", ExpansionNum: 2, ExpansionDen: 1, RawAlignment: 1, Exact: true}
}

// -----------------------------------------------------------------------------
// base32 (RFC 4648 标准字母表)
// 对齐单位 5：5 字节 -> 8 字符，padding 同样只出现在文件末尾
// -----------------------------------------------------------------------------

type base32Codec struct{}

func newBase32Codec() base32Codec { return base32Codec{} }

func (base32Codec) Encode(raw []byte) []byte {
	dst := make([]byte, base32.StdEncoding.EncodedLen(len(raw)))
	base32.StdEncoding.Encode(dst, raw)
	return dst
}

func (base32Codec) Decode(text []byte) ([]byte, error) {
	dst := make([]byte, base32.StdEncoding.DecodedLen(len(text)))
	n, err := base32.StdEncoding.Decode(dst, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return dst[:n], nil
}

func (base32Codec) Profile() Profile {
	return Profile{Name: "base32", ExpansionNum: 8, ExpansionDen: 5, RawAlignment: 5, Exact: true}
}

// -----------------------------------------------------------------------------
// base85 (ASCII85)
// 对齐单位 4：4 字节组绝不能被窗口切断，否则 'z' 缩写和组边界都会漂移
// 注意：标准库对全零组输出 'z'，所以 5/4 只是上界，实际可能更短 (Exact=false)
// -----------------------------------------------------------------------------

type base85Codec struct{}

func newBase85Codec() base85Codec { return base85Codec{} }

func (base85Codec) Encode(raw []byte) []byte {
	dst := make([]byte, ascii85.MaxEncodedLen(len(raw)))
	n := ascii85.Encode(dst, raw)
	return dst[:n]
}

func (base85Codec) Decode(text []byte) ([]byte, error) {
	// ascii85 解码的产出上界：每 1 个输入字符最多还原 4 字节 ('z' 缩写)
	dst := make([]byte, len(text)*4)
	ndst, _, err := ascii85.Decode(dst, text, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return dst[:ndst], nil
}

func (base85Codec) Profile() Profile {
	return Profile{Name: "base85", ExpansionNum: 5, ExpansionDen: 4, RawAlignment: 4, Exact: false}
}
