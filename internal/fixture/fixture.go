// Package fixture builds region and player-data files for tests.
package fixture

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/811Alex/MC-World-Analysis-Tools/anvil"
	"github.com/811Alex/MC-World-Analysis-Tools/nbt"
)

// Chunk describes one cell of a generated region file.
type Chunk struct {
	X, Z int
	Root *nbt.Compound
	// Compression defaults to zlib.
	Compression anvil.Compression
	// Payload replaces the compressed encoding of Root.
	Payload []byte
	// Length, when non-zero, overrides the length field of the payload header.
	Length    int32
	Timestamp uint32
	// External sets the external-file flag; the payload itself is not written.
	External bool
}

// Encode returns the uncompressed NBT encoding of root.
func Encode(tb testing.TB, root *nbt.Compound) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := nbt.Encode(&buf, "", root); err != nil {
		tb.Fatal(err)
	}
	return buf.Bytes()
}

// Compress compresses data the way a region payload of the given scheme is
// stored.
func Compress(tb testing.TB, scheme anvil.Compression, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	switch scheme {
	case anvil.CompressionGzip:
		w := gzip.NewWriter(&buf)
		w.Write(data)
		if err := w.Close(); err != nil {
			tb.Fatal(err)
		}
	case anvil.CompressionZlib:
		w := zlib.NewWriter(&buf)
		w.Write(data)
		if err := w.Close(); err != nil {
			tb.Fatal(err)
		}
	default:
		buf.Write(data)
	}
	return buf.Bytes()
}

// payload returns the compressed payload the region will hold for c.
func (c Chunk) payload(tb testing.TB) (anvil.Compression, []byte) {
	scheme := c.Compression
	if scheme == 0 {
		scheme = anvil.CompressionZlib
	}
	if c.Payload != nil {
		return scheme, c.Payload
	}
	if c.External {
		return scheme, nil
	}
	return scheme, Compress(tb, scheme, Encode(tb, c.Root))
}

// Region lays the chunks out one after another from sector 2 in the order
// given, so the last chunk is at the end of the file.
func Region(tb testing.TB, chunks ...Chunk) []byte {
	tb.Helper()
	var (
		locations  [anvil.Cells]uint32
		timestamps [anvil.Cells]uint32
		body       bytes.Buffer
	)

	sector := uint32(2)
	for _, c := range chunks {
		scheme, payload := c.payload(tb)
		length := int32(len(payload) + 1)
		if c.Length != 0 {
			length = c.Length
		}
		flag := byte(scheme)
		if c.External {
			flag |= 0x80
		}

		start := body.Len()
		binary.Write(&body, binary.BigEndian, length)
		body.WriteByte(flag)
		body.Write(payload)

		used := body.Len() - start
		sectors := (used + anvil.SectorSize - 1) / anvil.SectorSize
		body.Write(make([]byte, sectors*anvil.SectorSize-used))

		locations[c.X+c.Z*anvil.Edge] = sector<<8 | uint32(sectors)
		timestamps[c.X+c.Z*anvil.Edge] = c.Timestamp
		sector += uint32(sectors)
	}

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, locations)
	binary.Write(&out, binary.BigEndian, timestamps)
	body.WriteTo(&out)
	return out.Bytes()
}

// Truncated returns the region with the last n bytes cut off.
func Truncated(data []byte, n int) []byte {
	return data[:len(data)-n]
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatal(err)
	}
	return path
}

// WriteRegion writes a region built from chunks to dir/name.
func WriteRegion(tb testing.TB, dir, name string, chunks ...Chunk) string {
	tb.Helper()
	return WriteFile(tb, dir, name, Region(tb, chunks...))
}

// WritePlayer writes root as a gzip compressed player-data file.
func WritePlayer(tb testing.TB, dir, name string, root *nbt.Compound) string {
	tb.Helper()
	return WriteFile(tb, dir, name, Compress(tb, anvil.CompressionGzip, Encode(tb, root)))
}

// ChunkRoot is a chunk in the flat layout used since 1.18.
func ChunkRoot(x, z int32, status string) *nbt.Compound {
	return nbt.NewCompound().
		Set("DataVersion", &nbt.Int{Value: 3465}).
		Set("xPos", &nbt.Int{Value: x}).
		Set("zPos", &nbt.Int{Value: z}).
		Set("Status", &nbt.String{Value: status})
}

// LegacyChunkRoot is a chunk whose data is nested under a Level compound.
func LegacyChunkRoot(x, z int32, status string) *nbt.Compound {
	return nbt.NewCompound().
		Set("DataVersion", &nbt.Int{Value: 2586}).
		Set("Level", nbt.NewCompound().
			Set("xPos", &nbt.Int{Value: x}).
			Set("zPos", &nbt.Int{Value: z}).
			Set("Status", &nbt.String{Value: status}))
}

// PlayerRoot is a player record with a 1.16+ int array UUID.
func PlayerRoot(uuid [4]int32, pos [3]float64) *nbt.Compound {
	return nbt.NewCompound().
		Set("UUID", &nbt.IntArray{Value: uuid[:]}).
		Set("Pos", Pos(pos))
}

// LegacyPlayerRoot is a player record with UUIDMost/UUIDLeast longs.
func LegacyPlayerRoot(most, least int64, pos [3]float64) *nbt.Compound {
	return nbt.NewCompound().
		Set("UUIDLeast", &nbt.Long{Value: least}).
		Set("UUIDMost", &nbt.Long{Value: most}).
		Set("Pos", Pos(pos))
}

func Pos(pos [3]float64) *nbt.List {
	return &nbt.List{ElemType: nbt.TagDouble, Value: []nbt.Tag{
		&nbt.Double{Value: pos[0]}, &nbt.Double{Value: pos[1]}, &nbt.Double{Value: pos[2]},
	}}
}
