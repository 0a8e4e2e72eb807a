package nbt

import (
	"bytes"
	"unicode/utf8"
)

// decodeModifiedUTF8 converts Java's modified UTF-8 to standard UTF-8: NUL
// is stored as C0 80 and supplementary characters as two 3-byte surrogates.
// Bytes that fit neither form are passed through untouched.
func decodeModifiedUTF8(b []byte) string {
	if bytes.IndexByte(b, 0xc0) < 0 && bytes.IndexByte(b, 0xed) < 0 {
		return string(b)
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		switch {
		case b[i] == 0xc0 && i+1 < len(b) && b[i+1] == 0x80:
			out = append(out, 0)
			i += 2
		case isHighSurrogate(b[i:]) && isLowSurrogate(b[i+3:]):
			hi := rune(b[i+1]&0x0f)<<6 | rune(b[i+2]&0x3f)
			lo := rune(b[i+4]&0x0f)<<6 | rune(b[i+5]&0x3f)
			r := 0x10000 + (hi << 10) + lo
			out = utf8.AppendRune(out, r)
			i += 6
		default:
			out = append(out, b[i])
			i++
		}
	}
	return string(out)
}

// encodeModifiedUTF8 writes NUL as C0 80 and supplementary characters as
// surrogate pairs.
func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == 0:
			out = append(out, 0xc0, 0x80)
		case r >= 0x10000 && size == 4:
			r -= 0x10000
			out = appendSurrogate(out, 0xd800+(r>>10))
			out = appendSurrogate(out, 0xdc00+(r&0x3ff))
		default:
			out = append(out, s[i:i+size]...)
		}
		i += size
	}
	return out
}

func appendSurrogate(out []byte, r rune) []byte {
	return append(out, 0xe0|byte(r>>12), 0x80|byte(r>>6)&0x3f, 0x80|byte(r)&0x3f)
}

func isHighSurrogate(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xed && b[1]&0xf0 == 0xa0 && b[2]&0xc0 == 0x80
}

func isLowSurrogate(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xed && b[1]&0xf0 == 0xb0 && b[2]&0xc0 == 0x80
}
