package nbt_test

import (
	"bytes"
	"compress/gzip"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/811Alex/MC-World-Analysis-Tools/nbt"
)

// Test case inspired by https://wiki.vg/NBT 'bigtest.nbt'
func bigTest() *nbt.Compound {
	egg := nbt.NewCompound().
		Set("name", &nbt.String{"Eggbert"}).
		Set("value", &nbt.Float{0.5})
	ham := nbt.NewCompound().
		Set("name", &nbt.String{"Hampus"}).
		Set("value", &nbt.Float{0.75})

	return nbt.NewCompound().
		Set("nested compound test", nbt.NewCompound().Set("egg", egg).Set("ham", ham)).
		Set("intTest", &nbt.Int{math.MaxInt32}).
		Set("shortTest", &nbt.Short{math.MaxInt16}).
		Set("byteTest", &nbt.Byte{127}).
		Set("stringTest", &nbt.String{"HELLO WORLD THIS IS A TEST STRING ÅÄÖ!"}).
		Set("listTest (long)", &nbt.List{ElemType: nbt.TagLong, Value: []nbt.Tag{
			&nbt.Long{11}, &nbt.Long{12}, &nbt.Long{math.MaxInt64}, &nbt.Long{math.MinInt64},
		}}).
		Set("doubleTest", &nbt.Double{0.49312871321823148}).
		Set("floatTest", &nbt.Float{0.49823147058486938}).
		Set("longTest", &nbt.Long{math.MaxInt64}).
		Set("listTest (compound)", &nbt.List{ElemType: nbt.TagCompound, Value: []nbt.Tag{
			nbt.NewCompound().Set("name", &nbt.String{"Compound tag #0"}).Set("created-on", &nbt.Long{1264099775885}),
			nbt.NewCompound().Set("name", &nbt.String{"Compound tag #1"}).Set("created-on", &nbt.Long{1264099775885}),
		}}).
		Set("byteArrayTest", &nbt.ByteArray{[]int8{0, -1, 127, -128}}).
		Set("intArrayTest", &nbt.IntArray{[]int32{123, math.MaxInt32, math.MinInt32, 321}}).
		Set("longArrayTest", &nbt.LongArray{[]int64{1, -1, math.MaxInt64}}).
		Set("emptyList", &nbt.List{ElemType: nbt.TagEnd, Value: []nbt.Tag{}}).
		Set("emptyCompound", nbt.NewCompound())
}

func encode(t *testing.T, name string, root *nbt.Compound) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := nbt.Encode(&buf, name, root); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestEncodeDecode(t *testing.T) {
	val := bigTest()
	data := encode(t, "Level", val)

	name, decoded, err := nbt.DecodeNamed(data)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Level" {
		t.Errorf("root name %q, want %q", name, "Level")
	}
	if !reflect.DeepEqual(val, decoded) {
		t.Fatalf("decoded tree differs:\n got %#v\nwant %#v", decoded, val)
	}
	if got, want := decoded.Names(), val.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("member order %v, want %v", got, want)
	}
}

func TestEncodeDecodePrimitives(t *testing.T) {
	tests := []nbt.Tag{
		&nbt.Byte{-128},
		&nbt.Short{-2},
		&nbt.Int{0x10203040},
		&nbt.Long{-0x1020304050607080},
		&nbt.Float{1.5},
		&nbt.Double{-1e300},
		&nbt.ByteArray{[]int8{}},
		&nbt.String{""},
		&nbt.String{"nul\x00inside"},
		&nbt.String{"astral \U0001F600"},
		&nbt.List{ElemType: nbt.TagDouble, Value: []nbt.Tag{&nbt.Double{1}, &nbt.Double{2}, &nbt.Double{3}}},
		&nbt.IntArray{[]int32{-1}},
		&nbt.LongArray{[]int64{}},
	}

	for _, tag := range tests {
		root := nbt.NewCompound().Set("v", tag)
		decoded, err := nbt.Decode(encode(t, "", root))
		if err != nil {
			t.Errorf("%s: %v", tag.Type(), err)
			continue
		}
		if !reflect.DeepEqual(root, decoded) {
			t.Errorf("%s: got %#v, want %#v", tag.Type(), decoded.Get("v"), tag)
		}
	}
}

func TestDecodeLiteral(t *testing.T) {
	serialized := []byte("" +
		"\x0a\x00\x00" + // Empty name containing Compound
		"\x0a\x00\x04Data" + // "Data" Compound
		"\x01\x00\x04Byte\x05" + // Byte{5}
		"\x09\x00\x03Pos\x06\x00\x00\x00\x01\x3f\xf0\x00\x00\x00\x00\x00\x00" + // List of Double{1}
		"\x00\x00") // End of both compounds.

	root, err := nbt.Decode(serialized)
	if err != nil {
		t.Fatalf("Got Decode error: %v", err)
	}

	want := nbt.NewCompound().Set("Data", nbt.NewCompound().
		Set("Byte", &nbt.Byte{5}).
		Set("Pos", &nbt.List{ElemType: nbt.TagDouble, Value: []nbt.Tag{&nbt.Double{1}}}))
	if !reflect.DeepEqual(want, root) {
		t.Errorf("Got unexpected result: %#v", root)
	}

	if got := encode(t, "", want); !bytes.Equal(got, serialized) {
		t.Errorf("Encode = %x, want %x", got, serialized)
	}
}

func TestDecodeModifiedUTF8(t *testing.T) {
	serialized := []byte("\x0a\x00\x00" +
		"\x08\x00\x01s\x00\x05a\xc0\x80b\x00" + // "a", NUL as C0 80, "b", then a raw zero byte
		"\x08\x00\x01e\x00\x06\xed\xa0\xbd\xed\xb8\x80" + // U+1F600 as a surrogate pair
		"\x00")

	root, err := nbt.Decode(serialized)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := root.GetString("s"); got != "a\x00b\x00" {
		t.Errorf("s = %q, want %q", got, "a\x00b\x00")
	}
	if got, _ := root.GetString("e"); got != "\U0001F600" {
		t.Errorf("e = %q, want %q", got, "\U0001F600")
	}
}

func TestDuplicateNameLastWins(t *testing.T) {
	serialized := []byte("\x0a\x00\x00" +
		"\x03\x00\x01a\x00\x00\x00\x01" +
		"\x03\x00\x01b\x00\x00\x00\x02" +
		"\x08\x00\x01a\x00\x03two" +
		"\x00")

	root, err := nbt.Decode(serialized)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := root.GetString("a"); !ok || got != "two" {
		t.Errorf("a = %#v, want String two", root.Get("a"))
	}
	if got := root.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		offset int
	}{
		{"empty", "", 0},
		{"root not compound", "\x08\x00\x00", 0},
		{"truncated root name", "\x0a\x00\x05ab", 3},
		{"missing end", "\x0a\x00\x00", 3},
		{"unknown tag type", "\x0a\x00\x00\x0d\x00\x01x\x00", 3},
		{"truncated int", "\x0a\x00\x00\x03\x00\x01x\x00\x00", 7},
		{"string past buffer", "\x0a\x00\x00\x08\x00\x01x\x00\x10abc\x00", 9},
		{"negative array length", "\x0a\x00\x00\x07\x00\x01x\xff\xff\xff\xff\x00", 7},
		{"array past buffer", "\x0a\x00\x00\x0b\x00\x01x\x00\x00\x01\x00\x00", 7},
		{"unknown list element", "\x0a\x00\x00\x09\x00\x01x\x0e\x00\x00\x00\x00\x00", 7},
		{"list of end with members", "\x0a\x00\x00\x09\x00\x01x\x00\x00\x00\x00\x02\x00", 7},
	}

	for _, test := range tests {
		_, err := nbt.Decode([]byte(test.data))
		if !errors.Is(err, nbt.ErrMalformed) {
			t.Errorf("%s: error %v is not ErrMalformed", test.name, err)
			continue
		}
		var merr *nbt.MalformedError
		if !errors.As(err, &merr) {
			t.Errorf("%s: error %T is not *MalformedError", test.name, err)
			continue
		}
		if merr.Offset != test.offset {
			t.Errorf("%s: offset %d, want %d (%v)", test.name, merr.Offset, test.offset, err)
		}
	}
}

func TestDecodeTooDeep(t *testing.T) {
	var b strings.Builder
	b.WriteString("\x0a\x00\x00")
	for i := 0; i < 600; i++ {
		b.WriteString("\x0a\x00\x00")
	}
	if _, err := nbt.Decode([]byte(b.String())); !errors.Is(err, nbt.ErrMalformed) {
		t.Errorf("error %v is not ErrMalformed", err)
	}
}

func TestDecodeFileGzip(t *testing.T) {
	val := bigTest()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write(encode(t, "", val))
	gw.Close()

	decoded, err := nbt.DecodeFile(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(val, decoded) {
		t.Error("gzip decoded tree differs")
	}

	plain, err := nbt.DecodeFile(encode(t, "", val))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(val, plain) {
		t.Error("uncompressed decoded tree differs")
	}
}

func TestLookup(t *testing.T) {
	root := nbt.NewCompound().Set("Level", nbt.NewCompound().
		Set("Status", &nbt.String{"full"}).
		Set("Pos", &nbt.List{ElemType: nbt.TagDouble, Value: []nbt.Tag{&nbt.Double{1.5}, &nbt.Double{64}, &nbt.Double{-3}}}))

	if tag, ok := root.Lookup("Level/Status").(*nbt.String); !ok || tag.Value != "full" {
		t.Errorf("Level/Status = %#v", root.Lookup("Level/Status"))
	}
	if tag, ok := root.Lookup("Level/Pos/1").(*nbt.Double); !ok || tag.Value != 64 {
		t.Errorf("Level/Pos/1 = %#v", root.Lookup("Level/Pos/1"))
	}
	for _, path := range []string{"Missing", "Level/Missing", "Level/Pos/3", "Level/Pos/x", "Level/Status/deeper"} {
		if tag := root.Lookup(path); tag != nil {
			t.Errorf("Lookup(%q) = %#v, want nil", path, tag)
		}
	}
	if got := root.Lookup("Level/Pos").String(); got != "1.5,64,-3" {
		t.Errorf("Pos.String() = %q", got)
	}
}

func TestExplain(t *testing.T) {
	root := nbt.NewCompound().
		Set("DataVersion", &nbt.Int{3465}).
		Set("Status", &nbt.String{"minecraft:full"}).
		Set("Pos", &nbt.List{ElemType: nbt.TagDouble, Value: []nbt.Tag{&nbt.Double{1}}}).
		Set("Heights", &nbt.LongArray{make([]int64, 37)})

	var buf bytes.Buffer
	if err := nbt.Explain(&buf, "", root); err != nil {
		t.Fatal(err)
	}

	want := "/: TAG_Compound (4 entries)\n" +
		"DataVersion: TAG_Int = 3465\n" +
		"Status: TAG_String = \"minecraft:full\"\n" +
		"Pos: TAG_List of TAG_Double (1 entries)\n" +
		"Pos/0: TAG_Double = 1\n" +
		"Heights: TAG_Long_Array (37 values)\n"
	if buf.String() != want {
		t.Errorf("Explain output:\n%s\nwant:\n%s", buf.String(), want)
	}
}
