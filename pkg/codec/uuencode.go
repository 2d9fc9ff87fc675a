package codec

import "fmt"

// uuencode (简化变体)
//
// 经典 uuencode 依赖行结构：每行开头一个长度字节，结尾 begin/end 包裹。
// 作为纯字节流编码，这里采用无行结构的简化变体：
//   - 字母表沿用历史约定：值 v -> 0x20+v，其中 0 输出为 0x60 '`' (避免裸空格)
//   - 没有行长度字节，尾部不足 3 字节的组用 '~' padding 自我定界
//     (1 字节尾 -> "xx~~"，2 字节尾 -> "xxx~"；'=' 不能用作 padding，
//     因为 0x3D 本身就在 uu 字母表 0x20..0x5F 的范围内)
// 尺寸特性与 base64 完全一致：3 字节 -> 4 字符，膨胀率 4/3。

type uuCodec struct{}

func newUUCodec() uuCodec { return uuCodec{} }

// uuChar 把 6-bit 值映射到输出字符
func uuChar(v byte) byte {
	if v == 0 {
		return 0x60 // '`'
	}
	return v + 0x20
}

// uuVal 把输出字符还原成 6-bit 值
// 历史上 0x20 (空格) 和 0x60 ('`') 都表示 0，两种都接受
func uuVal(c byte) (byte, bool) {
	switch {
	case c == 0x60:
		return 0, true
	case c >= 0x20 && c < 0x60:
		return c - 0x20, true
	}
	return 0, false
}

func (uuCodec) Encode(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte{}
	}
	out := make([]byte, 0, ((len(raw)+2)/3)*4)

	i := 0
	for ; i+3 <= len(raw); i += 3 {
		v := uint32(raw[i])<<16 | uint32(raw[i+1])<<8 | uint32(raw[i+2])
		out = append(out,
			uuChar(byte(v>>18&0x3F)),
			uuChar(byte(v>>12&0x3F)),
			uuChar(byte(v>>6&0x3F)),
			uuChar(byte(v&0x3F)),
		)
	}

	// 尾部不足一组：补零编码，再用 '~' 标记缺了几个字节
	switch len(raw) - i {
	case 1:
		v := uint32(raw[i]) << 16
		out = append(out, uuChar(byte(v>>18&0x3F)), uuChar(byte(v>>12&0x3F)), '~', '~')
	case 2:
		v := uint32(raw[i])<<16 | uint32(raw[i+1])<<8
		out = append(out, uuChar(byte(v>>18&0x3F)), uuChar(byte(v>>12&0x3F)), uuChar(byte(v>>6&0x3F)), '~')
	}
	return out
}

func (uuCodec) Decode(text []byte) ([]byte, error) {
	if len(text) == 0 {
		return []byte{}, nil
	}
	if len(text)%4 != 0 {
		return nil, fmt.Errorf("%w: uuencode length %d is not a multiple of 4", ErrMalformedInput, len(text))
	}

	out := make([]byte, 0, len(text)/4*3)

	for i := 0; i < len(text); i += 4 {
		quad := text[i : i+4]
		last := i+4 == len(text)

		// '~' 只允许出现在最后一组的尾部
		pad := 0
		for pad < 2 && quad[3-pad] == '~' {
			pad++
		}
		if pad > 0 && !last {
			return nil, fmt.Errorf("%w: uuencode padding before end of stream", ErrMalformedInput)
		}

		var vals [4]byte
		for j := 0; j < 4-pad; j++ {
			v, ok := uuVal(quad[j])
			if !ok {
				return nil, fmt.Errorf("%w: uuencode byte 0x%02x outside alphabet", ErrMalformedInput, quad[j])
			}
			vals[j] = v
		}

		v := uint32(vals[0])<<18 | uint32(vals[1])<<12 | uint32(vals[2])<<6 | uint32(vals[3])
		switch pad {
		case 0:
			out = append(out, byte(v>>16), byte(v>>8), byte(v))
		case 1:
			out = append(out, byte(v>>16), byte(v>>8))
		case 2:
			out = append(out, byte(v>>16))
		}
	}
	return out, nil
}

func (uuCodec) Profile() Profile {
	// 尺寸语义上等同 base64：3 字节 -> 4 字符
	return Profile{Name: "uuencode", ExpansionNum: 4, ExpansionDen: 3, RawAlignment: 3, Exact: true}
}
