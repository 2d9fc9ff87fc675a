package codec

import "fmt"

// yEnc
//
// 每个字节 out = (raw + 42) mod 256。如果 out 命中保留控制值
// (NUL / LF / CR / '=' 0x3D)，则转义为 0x3D 后跟 (out + 64) mod 256。
// 膨胀率依赖数据内容 (1 字节 -> 1 或 2 字节)，规划时只能按名义上界处理。

const yencEscape = 0x3D // '='

// yencNeedsEscape 判断编码后的字节是否命中保留控制值
func yencNeedsEscape(b byte) bool {
	switch b {
	case 0x00, 0x0A, 0x0D, yencEscape:
		return true
	}
	return false
}

type yencCodec struct{}

func newYEncCodec() yencCodec { return yencCodec{} }

func (yencCodec) Encode(raw []byte) []byte {
	// 大多数数据的转义频率 ~1.5% (4/256)，初始容量按无转义分配即可
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		v := b + 42 // byte 加法自带 mod 256
		if yencNeedsEscape(v) {
			out = append(out, yencEscape, v+64)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func (yencCodec) Decode(text []byte) ([]byte, error) {
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == yencEscape {
			if i+1 >= len(text) {
				return nil, fmt.Errorf("%w: yenc stream ends with dangling escape byte", ErrMalformedInput)
			}
			i++
			out = append(out, text[i]-64-42)
			continue
		}
		out = append(out, c-42)
	}
	return out, nil
}

func (yencCodec) Profile() Profile {
	// 11/10 是文档化的名义上界：普通数据转义很少，实际产出一般低于它；
	// 构造出来的最坏数据 (每个字节都转义) 会超出，规划层对此有明确的容忍说明
	return Profile{Name: "yenc", ExpansionNum: 11, ExpansionDen: 10, RawAlignment: 1, Exact: false}
}
