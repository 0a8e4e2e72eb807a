// Package anvil reads Minecraft region (.mca) files: a fixed header of
// 1024 chunk locations and timestamps followed by individually compressed
// chunk payloads aligned to 4096 byte sectors.
package anvil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/811Alex/MC-World-Analysis-Tools/nbt"
)

const (
	Edge       = 32
	Cells      = Edge * Edge
	SectorSize = 4096
	HeaderSize = 2 * SectorSize
)

var (
	ErrCellOutOfRange         = errors.New("anvil: cell out of range")
	ErrUnsupportedCompression = errors.New("anvil: unsupported compression scheme")
	ErrTruncatedRegion        = errors.New("anvil: truncated region")
	ErrCorruptChunkData       = errors.New("anvil: corrupt chunk data")
	ErrExternalChunk          = errors.New("anvil: external chunk file not available")
)

type Compression byte

const (
	CompressionGzip Compression = 1
	CompressionZlib Compression = 2
	CompressionNone Compression = 3

	// compressionExternal is or-ed into the scheme when the payload is kept in
	// a separate c.<x>.<z>.mcc file because it outgrew 255 sectors.
	compressionExternal = 0x80
)

// Location is a raw header entry: the high 24 bits are the sector offset,
// the low 8 bits the sector count.
type Location uint32

func (l Location) Sector() uint32 {
	return uint32(l) >> 8
}

func (l Location) Sectors() int {
	return int(l & 0xff)
}

// Offset is the byte offset of the payload in the file.
func (l Location) Offset() int64 {
	return int64(l.Sector()) * SectorSize
}

// Present reports whether the entry points at a chunk. A zero offset means
// the chunk has never been generated.
func (l Location) Present() bool {
	return l.Sector() != 0
}

type header struct {
	Locations  [Cells]Location
	Timestamps [Cells]uint32
}

// ChunkError attributes a failure to one cell of a region file.
type ChunkError struct {
	Region string
	X, Z   int
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("failed at region %q, chunk (%d,%d): %v", e.Region, e.X, e.Z, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Region allows you to read the chunks of one region file. The header is
// parsed when the region is opened; chunk payloads are read on access. A
// Region is not safe for concurrent access.
type Region struct {
	Name string

	path   string
	source io.ReaderAt
	size   int64
	closer io.Closer
	header header
}

// Open opens the region file at path. The caller must Close the region.
func Open(path string) (*Region, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	region, err := newRegion(filepath.Base(path), file, info.Size())
	if err != nil {
		file.Close()
		return nil, err
	}
	region.path = path
	region.closer = file
	return region, nil
}

// OpenBytes reads a region from the full content of a region file. name is
// only used to attribute errors.
func OpenBytes(name string, data []byte) (*Region, error) {
	return newRegion(name, bytes.NewReader(data), int64(len(data)))
}

func newRegion(name string, source io.ReaderAt, size int64) (*Region, error) {
	region := &Region{Name: name, source: source, size: size}
	if err := region.readHeader(); err != nil {
		return nil, err
	}
	return region, nil
}

func (region *Region) readHeader() error {
	n := region.size
	if n > HeaderSize {
		n = HeaderSize
	}

	raw := make([]byte, HeaderSize)
	if _, err := region.source.ReadAt(raw[:n], 0); err != nil && err != io.EOF {
		return fmt.Errorf("anvil: could not read header of %q: %w", region.Name, err)
	}

	// Files shorter than a header are accepted only while they hold nothing.
	if n < HeaderSize && !allZero(raw[:n]) {
		return fmt.Errorf("%w: %q has a %d byte header, want %d", ErrTruncatedRegion, region.Name, n, HeaderSize)
	}

	return binary.Read(bytes.NewReader(raw), binary.BigEndian, &region.header)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func (region *Region) Close() error {
	if region.closer != nil {
		return region.closer.Close()
	}
	return nil
}

// Coords returns the region coordinates encoded in a r.<x>.<z>.mca name.
func (region *Region) Coords() (x, z int, ok bool) {
	return ParseName(region.Name)
}

// ParseName extracts the region coordinates from a file name such as
// "r.-1.3.mca".
func ParseName(name string) (x, z int, ok bool) {
	fields := strings.Split(filepath.Base(name), ".")
	if len(fields) != 4 || fields[0] != "r" || fields[3] != "mca" {
		return 0, 0, false
	}
	x, xErr := strconv.Atoi(fields[1])
	z, zErr := strconv.Atoi(fields[2])
	if xErr != nil || zErr != nil {
		return 0, 0, false
	}
	return x, z, true
}

func inRange(x, z int) bool {
	return x >= 0 && x < Edge && z >= 0 && z < Edge
}

// Location returns the header entry for cell (x, z), or zero if the cell is
// outside the grid.
func (region *Region) Location(x, z int) Location {
	if !inRange(x, z) {
		return 0
	}
	return region.header.Locations[x+z*Edge]
}

func (region *Region) Exists(x, z int) bool {
	return region.Location(x, z).Present()
}

// Timestamp returns when cell (x, z) was last saved. Absent chunks report the
// zero time.
func (region *Region) Timestamp(x, z int) time.Time {
	if !inRange(x, z) || region.header.Timestamps[x+z*Edge] == 0 {
		return time.Time{}
	}
	return time.Unix(int64(region.header.Timestamps[x+z*Edge]), 0).UTC()
}

// Empty reports whether no cell holds a chunk.
func (region *Region) Empty() bool {
	for _, loc := range region.header.Locations {
		if loc.Present() {
			return false
		}
	}
	return true
}

func (region *Region) cellError(x, z int, err error) error {
	return &ChunkError{Region: region.Name, X: x, Z: z, Err: err}
}

// Raw returns the decompressed, undecoded NBT bytes of cell (x, z), or nil if
// the chunk is absent.
func (region *Region) Raw(x, z int) ([]byte, error) {
	data, err := region.raw(x, z)
	if err != nil {
		return nil, region.cellError(x, z, err)
	}
	return data, nil
}

// Chunk returns the decoded root compound of cell (x, z), or nil if the chunk
// is absent.
func (region *Region) Chunk(x, z int) (*nbt.Compound, error) {
	data, err := region.raw(x, z)
	if err != nil || data == nil {
		if err != nil {
			err = region.cellError(x, z, err)
		}
		return nil, err
	}

	root, err := nbt.Decode(data)
	if err != nil {
		return nil, region.cellError(x, z, err)
	}
	return root, nil
}

func (region *Region) raw(x, z int) ([]byte, error) {
	if !inRange(x, z) {
		return nil, ErrCellOutOfRange
	}
	loc := region.header.Locations[x+z*Edge]
	if !loc.Present() {
		return nil, nil
	}

	scheme, payload, err := region.readPayload(loc)
	if err != nil {
		return nil, err
	}

	if scheme&compressionExternal != 0 {
		scheme &^= compressionExternal
		if payload, err = region.readExternal(x, z); err != nil {
			return nil, err
		}
	}
	return decompress(scheme, payload)
}

// readPayload reads the 5 byte payload header (big endian length including
// the scheme byte, then the scheme) and the bytes that follow it.
func (region *Region) readPayload(loc Location) (Compression, []byte, error) {
	start := loc.Offset()
	if start+5 > region.size {
		return 0, nil, fmt.Errorf("%w: payload header at byte %d is past end of file (%d bytes)", ErrTruncatedRegion, start, region.size)
	}

	var payloadInfo struct {
		Length      int32
		Compression Compression
	}
	head := make([]byte, 5)
	if _, err := region.source.ReadAt(head, start); err != nil {
		return 0, nil, fmt.Errorf("%w: could not read payload header: %w", ErrTruncatedRegion, err)
	}
	if err := binary.Read(bytes.NewReader(head), binary.BigEndian, &payloadInfo); err != nil {
		return 0, nil, fmt.Errorf("%w: could not parse payload header: %w", ErrTruncatedRegion, err)
	}

	if payloadInfo.Length < 1 {
		return 0, nil, fmt.Errorf("%w: invalid payload length %d at byte %d", ErrTruncatedRegion, payloadInfo.Length, start)
	}
	if end := start + 4 + int64(payloadInfo.Length); end > region.size {
		return 0, nil, fmt.Errorf("%w: payload of %d bytes at byte %d runs past end of file (%d bytes)", ErrTruncatedRegion, payloadInfo.Length, start, region.size)
	}

	payload := make([]byte, payloadInfo.Length-1)
	if _, err := region.source.ReadAt(payload, start+5); err != nil && !(err == io.EOF && len(payload) == 0) {
		return 0, nil, fmt.Errorf("%w: could not read payload: %w", ErrTruncatedRegion, err)
	}
	return payloadInfo.Compression, payload, nil
}

// ExternalName is the file holding an oversized chunk at absolute chunk
// coordinates (chunkX, chunkZ).
func ExternalName(chunkX, chunkZ int) string {
	return fmt.Sprintf("c.%d.%d.mcc", chunkX, chunkZ)
}

func (region *Region) readExternal(x, z int) ([]byte, error) {
	rx, rz, ok := region.Coords()
	if region.path == "" || !ok {
		return nil, fmt.Errorf("%w: %q was not opened from a region file path", ErrExternalChunk, region.Name)
	}

	path := filepath.Join(filepath.Dir(region.path), ExternalName(rx*Edge+x, rz*Edge+z))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalChunk, err)
	}
	return data, nil
}

func decompress(scheme Compression, payload []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)
	switch scheme {
	case CompressionGzip:
		r, err = gzip.NewReader(bytes.NewReader(payload))
	case CompressionZlib:
		r, err = zlib.NewReader(bytes.NewReader(payload))
	case CompressionNone:
		return payload, nil
	default:
		return nil, fmt.Errorf("%w %d", ErrUnsupportedCompression, scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptChunkData, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptChunkData, err)
	}
	return data, nil
}
