package nbt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// arrays longer than this are summarised instead of printed in full
const explainArrayLimit = 16

// Explain writes one line per tag below root, each prefixed with its lookup
// path, e.g. "Level/Sections/0/Y: TAG_Byte = 4".
func Explain(w io.Writer, name string, root Tag) error {
	e := &explainer{w: bufio.NewWriter(w)}
	if name != "" {
		e.stack = append(e.stack, name)
	}
	e.explain(root)
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

type explainer struct {
	w     *bufio.Writer
	stack []string
	err   error
}

func (e *explainer) printf(format string, args ...any) {
	if e.err == nil {
		_, e.err = fmt.Fprintf(e.w, format, args...)
	}
}

func (e *explainer) path() string {
	if len(e.stack) == 0 {
		return "/"
	}
	return strings.Join(e.stack, "/")
}

func (e *explainer) child(name string, tag Tag) {
	e.stack = append(e.stack, name)
	e.explain(tag)
	e.stack = e.stack[:len(e.stack)-1]
}

func (e *explainer) explain(tag Tag) {
	switch v := tag.(type) {
	case *Compound:
		e.printf("%s: %s (%d entries)\n", e.path(), v.Type(), v.Len())
		for _, name := range v.names {
			e.child(name, v.tags[name])
		}
	case *List:
		e.printf("%s: %s of %s (%d entries)\n", e.path(), v.Type(), v.ElemType, v.Len())
		for i, elem := range v.Value {
			e.child(strconv.Itoa(i), elem)
		}
	case *ByteArray:
		e.array(v, len(v.Value))
	case *IntArray:
		e.array(v, len(v.Value))
	case *LongArray:
		e.array(v, len(v.Value))
	case *String:
		e.printf("%s: %s = %q\n", e.path(), v.Type(), v.Value)
	default:
		e.printf("%s: %s = %s\n", e.path(), tag.Type(), tag)
	}
}

func (e *explainer) array(tag Tag, n int) {
	if n > explainArrayLimit {
		e.printf("%s: %s (%d values)\n", e.path(), tag.Type(), n)
		return
	}
	e.printf("%s: %s = %s\n", e.path(), tag.Type(), tag)
}
