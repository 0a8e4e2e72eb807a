package nbt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// maxDepth bounds compound/list nesting so hostile input cannot exhaust the stack.
const maxDepth = 512

var ErrMalformed = errors.New("nbt: malformed data")

// MalformedError reports where in the input decoding failed.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("nbt: malformed data at byte %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

// Decode parses an uncompressed NBT document whose root is a named compound.
func Decode(data []byte) (*Compound, error) {
	_, root, err := DecodeNamed(data)
	return root, err
}

// DecodeNamed is Decode but also returns the root tag's name, which is
// usually empty.
func DecodeNamed(data []byte) (name string, root *Compound, err error) {
	d := &decoder{buf: data}
	typ, err := d.readType()
	if err != nil {
		return "", nil, err
	}
	if typ != TagCompound {
		return "", nil, d.fail(d.off-1, "expected root %s, got %s", TagCompound, typ)
	}
	if name, err = d.readString(); err != nil {
		return "", nil, err
	}
	if root, err = d.readCompound(1); err != nil {
		return "", nil, err
	}
	return name, root, nil
}

// DecodeFile decodes a standalone file such as a player .dat, which is
// normally gzip compressed. zlib and uncompressed documents are accepted too.
func DecodeFile(data []byte) (*Compound, error) {
	raw, err := decompressFile(data)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// ReadFile reads and decodes the file at path with DecodeFile.
func ReadFile(path string) (*Compound, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeFile(data)
}

func decompressFile(data []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		r, err = gzip.NewReader(bytes.NewReader(data))
	case len(data) >= 2 && data[0] == 0x78 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0:
		r, err = zlib.NewReader(bytes.NewReader(data))
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nbt: could not open compressed stream: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("nbt: could not decompress: %w", err)
	}
	return raw, nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) fail(offset int, format string, args ...any) error {
	return &MalformedError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// take returns the next n bytes or fails without moving the cursor.
func (d *decoder) take(n int, what string) ([]byte, error) {
	if n < 0 || n > len(d.buf)-d.off {
		return nil, d.fail(d.off, "%s needs %d bytes, %d left", what, n, len(d.buf)-d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) readType() (TagType, error) {
	b, err := d.take(1, "tag type")
	if err != nil {
		return 0, err
	}
	return TagType(b[0]), nil
}

func (d *decoder) readString() (string, error) {
	b, err := d.take(2, "string length")
	if err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(b))
	if b, err = d.take(n, "string"); err != nil {
		return "", err
	}
	return decodeModifiedUTF8(b), nil
}

// readLength reads a signed 32-bit element count and checks that at least
// count*minSize bytes remain, so a bogus length cannot force a huge allocation.
func (d *decoder) readLength(minSize int, what string) (int, error) {
	start := d.off
	b, err := d.take(4, what+" length")
	if err != nil {
		return 0, err
	}
	n := int32(binary.BigEndian.Uint32(b))
	if n < 0 {
		return 0, d.fail(start, "negative %s length %d", what, n)
	}
	if minSize > 0 && int64(n)*int64(minSize) > int64(len(d.buf)-d.off) {
		return 0, d.fail(start, "%s length %d exceeds remaining %d bytes", what, n, len(d.buf)-d.off)
	}
	return int(n), nil
}

func (d *decoder) readCompound(depth int) (*Compound, error) {
	if depth > maxDepth {
		return nil, d.fail(d.off, "nesting deeper than %d", maxDepth)
	}
	c := NewCompound()
	for {
		typ, err := d.readType()
		if err != nil {
			return nil, err
		}
		if typ == TagEnd {
			return c, nil
		}
		if !typ.Valid() {
			return nil, d.fail(d.off-1, "unknown tag type %d", byte(typ))
		}
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		tag, err := d.readPayload(typ, depth)
		if err != nil {
			return nil, err
		}
		c.Set(name, tag)
	}
}

func (d *decoder) readList(depth int) (*List, error) {
	if depth > maxDepth {
		return nil, d.fail(d.off, "nesting deeper than %d", maxDepth)
	}
	start := d.off
	elem, err := d.readType()
	if err != nil {
		return nil, err
	}
	if !elem.Valid() {
		return nil, d.fail(start, "unknown list element type %d", byte(elem))
	}
	n, err := d.readLength(minPayloadSize(elem), "list")
	if err != nil {
		return nil, err
	}
	if elem == TagEnd && n > 0 {
		return nil, d.fail(start, "list of %s with %d elements", TagEnd, n)
	}
	list := &List{ElemType: elem, Value: make([]Tag, n)}
	for i := range list.Value {
		if list.Value[i], err = d.readPayload(elem, depth); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (d *decoder) readPayload(typ TagType, depth int) (Tag, error) {
	switch typ {
	case TagByte:
		b, err := d.take(1, "byte")
		if err != nil {
			return nil, err
		}
		return &Byte{int8(b[0])}, nil

	case TagShort:
		b, err := d.take(2, "short")
		if err != nil {
			return nil, err
		}
		return &Short{int16(binary.BigEndian.Uint16(b))}, nil

	case TagInt:
		b, err := d.take(4, "int")
		if err != nil {
			return nil, err
		}
		return &Int{int32(binary.BigEndian.Uint32(b))}, nil

	case TagLong:
		b, err := d.take(8, "long")
		if err != nil {
			return nil, err
		}
		return &Long{int64(binary.BigEndian.Uint64(b))}, nil

	case TagFloat:
		b, err := d.take(4, "float")
		if err != nil {
			return nil, err
		}
		return &Float{math.Float32frombits(binary.BigEndian.Uint32(b))}, nil

	case TagDouble:
		b, err := d.take(8, "double")
		if err != nil {
			return nil, err
		}
		return &Double{math.Float64frombits(binary.BigEndian.Uint64(b))}, nil

	case TagByteArray:
		n, err := d.readLength(1, "byte array")
		if err != nil {
			return nil, err
		}
		b, err := d.take(n, "byte array")
		if err != nil {
			return nil, err
		}
		arr := make([]int8, n)
		for i, v := range b {
			arr[i] = int8(v)
		}
		return &ByteArray{arr}, nil

	case TagString:
		s, err := d.readString()
		if err != nil {
			return nil, err
		}
		return &String{s}, nil

	case TagList:
		return d.readList(depth + 1)

	case TagCompound:
		return d.readCompound(depth + 1)

	case TagIntArray:
		n, err := d.readLength(4, "int array")
		if err != nil {
			return nil, err
		}
		b, err := d.take(4*n, "int array")
		if err != nil {
			return nil, err
		}
		arr := make([]int32, n)
		for i := range arr {
			arr[i] = int32(binary.BigEndian.Uint32(b[4*i:]))
		}
		return &IntArray{arr}, nil

	case TagLongArray:
		n, err := d.readLength(8, "long array")
		if err != nil {
			return nil, err
		}
		b, err := d.take(8*n, "long array")
		if err != nil {
			return nil, err
		}
		arr := make([]int64, n)
		for i := range arr {
			arr[i] = int64(binary.BigEndian.Uint64(b[8*i:]))
		}
		return &LongArray{arr}, nil
	}

	return nil, d.fail(d.off, "unknown tag type %d", byte(typ))
}

// minPayloadSize is the smallest encoding of one unnamed payload of typ.
func minPayloadSize(typ TagType) int {
	switch typ {
	case TagEnd:
		return 0
	case TagByte, TagCompound:
		return 1
	case TagShort, TagString:
		return 2
	case TagInt, TagFloat, TagByteArray, TagIntArray, TagLongArray:
		return 4
	case TagLong, TagDouble:
		return 8
	case TagList:
		return 5
	}
	return 1
}
