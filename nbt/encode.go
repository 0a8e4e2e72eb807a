package nbt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encode writes root as a named compound. It is the inverse of Decode and
// exists so that fixtures can be produced from trees. Errors from w are
// returned as is.
func Encode(w io.Writer, name string, root *Compound) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}
	e.writeType(TagCompound)
	e.writeString(name)
	e.writeCompound(root)
	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) write(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) writeBig(v any) {
	if e.err == nil {
		e.err = binary.Write(e.w, binary.BigEndian, v)
	}
}

func (e *encoder) writeType(t TagType) {
	e.write([]byte{byte(t)})
}

func (e *encoder) writeString(s string) {
	b := encodeModifiedUTF8(s)
	if len(b) > math.MaxUint16 {
		if e.err == nil {
			e.err = fmt.Errorf("nbt: string length %d exceeds maximum %d", len(b), math.MaxUint16)
		}
		return
	}
	e.writeBig(uint16(len(b)))
	e.write(b)
}

func (e *encoder) writeLength(n int) {
	if n > math.MaxInt32 {
		if e.err == nil {
			e.err = fmt.Errorf("nbt: length %d exceeds maximum %d", n, math.MaxInt32)
		}
		return
	}
	e.writeBig(int32(n))
}

func (e *encoder) writeCompound(c *Compound) {
	if c != nil {
		for _, name := range c.names {
			tag := c.tags[name]
			e.writeType(tag.Type())
			e.writeString(name)
			e.writePayload(tag)
		}
	}
	e.writeType(TagEnd)
}

func (e *encoder) writePayload(tag Tag) {
	switch v := tag.(type) {
	case *Byte:
		e.writeBig(v.Value)
	case *Short:
		e.writeBig(v.Value)
	case *Int:
		e.writeBig(v.Value)
	case *Long:
		e.writeBig(v.Value)
	case *Float:
		e.writeBig(v.Value)
	case *Double:
		e.writeBig(v.Value)
	case *ByteArray:
		e.writeLength(len(v.Value))
		e.writeBig(v.Value)
	case *String:
		e.writeString(v.Value)
	case *List:
		e.writeType(v.ElemType)
		e.writeLength(len(v.Value))
		for _, elem := range v.Value {
			if elem.Type() != v.ElemType && e.err == nil {
				e.err = fmt.Errorf("nbt: %s element in list of %s", elem.Type(), v.ElemType)
			}
			e.writePayload(elem)
		}
	case *Compound:
		e.writeCompound(v)
	case *IntArray:
		e.writeLength(len(v.Value))
		e.writeBig(v.Value)
	case *LongArray:
		e.writeLength(len(v.Value))
		e.writeBig(v.Value)
	default:
		if e.err == nil {
			e.err = fmt.Errorf("nbt: cannot encode %T", tag)
		}
	}
}
