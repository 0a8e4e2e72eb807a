// Package nbt reads the Named Binary Tag format used by Minecraft save files
// into an immutable tree of typed tags.
package nbt

import (
	"strconv"
	"strings"
)

type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

var tagNames = [...]string{
	TagEnd:       "TAG_End",
	TagByte:      "TAG_Byte",
	TagShort:     "TAG_Short",
	TagInt:       "TAG_Int",
	TagLong:      "TAG_Long",
	TagFloat:     "TAG_Float",
	TagDouble:    "TAG_Double",
	TagByteArray: "TAG_Byte_Array",
	TagString:    "TAG_String",
	TagList:      "TAG_List",
	TagCompound:  "TAG_Compound",
	TagIntArray:  "TAG_Int_Array",
	TagLongArray: "TAG_Long_Array",
}

func (t TagType) Valid() bool {
	return t <= TagLongArray
}

func (t TagType) String() string {
	if t.Valid() {
		return tagNames[t]
	}
	return "TAG_Unknown(" + strconv.Itoa(int(t)) + ")"
}

// Tag is one node of a decoded tree. Callers type-switch on the concrete
// variant; String renders the payload the way the listing tools print it.
type Tag interface {
	Type() TagType
	String() string
	// Lookup resolves a slash separated path of compound member names and
	// list indices below this tag, returning nil if any step is missing.
	Lookup(path string) Tag
}

type Byte struct{ Value int8 }
type Short struct{ Value int16 }
type Int struct{ Value int32 }
type Long struct{ Value int64 }
type Float struct{ Value float32 }
type Double struct{ Value float64 }
type ByteArray struct{ Value []int8 }
type String struct{ Value string }
type IntArray struct{ Value []int32 }
type LongArray struct{ Value []int64 }

// List holds unnamed tags that all have the type ElemType.
type List struct {
	ElemType TagType
	Value    []Tag
}

// Compound is an ordered set of named tags.
type Compound struct {
	names []string
	tags  map[string]Tag
}

func (*Byte) Type() TagType      { return TagByte }
func (*Short) Type() TagType     { return TagShort }
func (*Int) Type() TagType       { return TagInt }
func (*Long) Type() TagType      { return TagLong }
func (*Float) Type() TagType     { return TagFloat }
func (*Double) Type() TagType    { return TagDouble }
func (*ByteArray) Type() TagType { return TagByteArray }
func (*String) Type() TagType    { return TagString }
func (*List) Type() TagType      { return TagList }
func (*Compound) Type() TagType  { return TagCompound }
func (*IntArray) Type() TagType  { return TagIntArray }
func (*LongArray) Type() TagType { return TagLongArray }

func (*Byte) Lookup(string) Tag      { return nil }
func (*Short) Lookup(string) Tag     { return nil }
func (*Int) Lookup(string) Tag       { return nil }
func (*Long) Lookup(string) Tag      { return nil }
func (*Float) Lookup(string) Tag     { return nil }
func (*Double) Lookup(string) Tag    { return nil }
func (*ByteArray) Lookup(string) Tag { return nil }
func (*String) Lookup(string) Tag    { return nil }
func (*IntArray) Lookup(string) Tag  { return nil }
func (*LongArray) Lookup(string) Tag { return nil }

func (b *Byte) String() string   { return strconv.FormatInt(int64(b.Value), 10) }
func (s *Short) String() string  { return strconv.FormatInt(int64(s.Value), 10) }
func (i *Int) String() string    { return strconv.FormatInt(int64(i.Value), 10) }
func (l *Long) String() string   { return strconv.FormatInt(l.Value, 10) }
func (f *Float) String() string  { return strconv.FormatFloat(float64(f.Value), 'f', -1, 32) }
func (d *Double) String() string { return strconv.FormatFloat(d.Value, 'f', -1, 64) }
func (s *String) String() string { return s.Value }

func (b *ByteArray) String() string { return joinInts(b.Value) }
func (i *IntArray) String() string  { return joinInts(i.Value) }
func (l *LongArray) String() string { return joinInts(l.Value) }

func joinInts[T int8 | int32 | int64](values []T) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	}
	sb.WriteByte(']')
	return sb.String()
}

// String joins the elements with commas, e.g. a Pos list prints as "1.5,64,-3".
func (l *List) String() string {
	parts := make([]string, len(l.Value))
	for i, tag := range l.Value {
		parts[i] = tag.String()
	}
	return strings.Join(parts, ",")
}

func (l *List) Len() int {
	return len(l.Value)
}

// Index returns the i-th element or nil if i is out of range.
func (l *List) Index(i int) Tag {
	if i < 0 || i >= len(l.Value) {
		return nil
	}
	return l.Value[i]
}

func (l *List) Lookup(path string) Tag {
	head, rest, more := strings.Cut(path, "/")
	i, err := strconv.Atoi(head)
	if err != nil {
		return nil
	}
	tag := l.Index(i)
	if tag == nil || !more {
		return tag
	}
	return tag.Lookup(rest)
}

// NewCompound returns an empty compound. Members are added with Set, which
// is how the decoder and test fixtures build trees.
func NewCompound() *Compound {
	return &Compound{tags: make(map[string]Tag)}
}

// Set adds a member. Setting an existing name replaces its value and keeps
// its original position.
func (c *Compound) Set(name string, tag Tag) *Compound {
	if c.tags == nil {
		c.tags = make(map[string]Tag)
	}
	if _, ok := c.tags[name]; !ok {
		c.names = append(c.names, name)
	}
	c.tags[name] = tag
	return c
}

// Get returns the named member or nil.
func (c *Compound) Get(name string) Tag {
	if c == nil {
		return nil
	}
	return c.tags[name]
}

func (c *Compound) Has(name string) bool {
	return c.Get(name) != nil
}

// Names lists the member names in the order they were decoded.
func (c *Compound) Names() []string {
	return append([]string(nil), c.names...)
}

func (c *Compound) Len() int {
	return len(c.names)
}

func (c *Compound) String() string {
	return "{" + strconv.Itoa(len(c.names)) + " entries}"
}

func (c *Compound) Lookup(path string) Tag {
	head, rest, more := strings.Cut(path, "/")
	tag := c.Get(head)
	if tag == nil || !more {
		return tag
	}
	return tag.Lookup(rest)
}

// GetCompound returns the named member if it is a compound.
func (c *Compound) GetCompound(name string) (*Compound, bool) {
	v, ok := c.Get(name).(*Compound)
	return v, ok
}

// GetString returns the named member if it is a string.
func (c *Compound) GetString(name string) (string, bool) {
	v, ok := c.Get(name).(*String)
	if !ok {
		return "", false
	}
	return v.Value, true
}

// GetInt returns the named member widened to int64 if it is any integer tag.
func (c *Compound) GetInt(name string) (int64, bool) {
	switch v := c.Get(name).(type) {
	case *Byte:
		return int64(v.Value), true
	case *Short:
		return int64(v.Value), true
	case *Int:
		return int64(v.Value), true
	case *Long:
		return v.Value, true
	}
	return 0, false
}
