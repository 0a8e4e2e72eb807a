package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v2"

	"github.com/811Alex/MC-World-Analysis-Tools/anvil"
	"github.com/811Alex/MC-World-Analysis-Tools/world"
)

const bundleMagic = 0xC4B1
const bundleVersion = 1

var exportCommand = &cli.Command{
	Name:  "export",
	Usage: "pack the raw NBT of every chunk into one zstd compressed bundle",
	Description: "Bundle layout: u16 magic, u8 version, u32 compressed length, u32\n" +
		"uncompressed length, then a zstd frame holding u32 count and per chunk\n" +
		"i32 x, i32 z, u32 timestamp, u32 length and the NBT bytes, ordered by z then x.",
	ArgsUsage: "<regionpath>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     outputFlag.Name,
			Aliases:  outputFlag.Aliases,
			Usage:    outputFlag.Usage,
			Required: true,
		},
	},
	Action: exportChunks,
}

// bundleChunk is one chunk of a bundle at absolute chunk coordinates.
type bundleChunk struct {
	X, Z      int32
	Timestamp uint32
	Data      []byte
}

func exportChunks(c *cli.Context) error {
	path, err := pathArg(c, "regionpath")
	if err != nil {
		return err
	}

	out, err := openOutput(c)
	if err != nil {
		return err
	}
	defer out.Close()

	w := newWalker(c, out)
	w.WantRaw = true

	var chunks []bundleChunk
	matched, err := w.Regions(c.Context, path, func(chunk world.Chunk) error {
		if !chunk.Present() {
			return nil
		}
		rx, rz, ok := anvil.ParseName(chunk.File)
		if !ok {
			return fmt.Errorf("%q is not named r.<x>.<z>.mca, chunk coordinates unknown", chunk.File)
		}
		bc := bundleChunk{
			X:    int32(rx*anvil.Edge + chunk.X),
			Z:    int32(rz*anvil.Edge + chunk.Z),
			Data: chunk.Raw,
		}
		if !chunk.Timestamp.IsZero() {
			bc.Timestamp = uint32(chunk.Timestamp.Unix())
		}
		chunks = append(chunks, bc)
		return nil
	})
	if err := walkError(path, world.RegionExt, matched, err); err != nil {
		return err
	}

	logger(c).WithField("chunks", len(chunks)).Info("writing bundle")
	if err := writeBundle(out, chunks); err != nil {
		return err
	}
	return out.Done()
}

func writeBundle(writer io.Writer, chunks []bundleChunk) error {
	zstdWriter, err := zstd.NewWriter(io.Discard)
	if err != nil {
		return err
	}
	w := &bundleWriter{writer: writer, zstdWriter: zstdWriter}
	if err = w.writeHeader(); err != nil {
		return err
	}
	return w.writeChunks(chunks)
}

type bundleWriter struct {
	writer     io.Writer
	zstdWriter *zstd.Encoder
}

func (w *bundleWriter) writeHeader() error {
	var header struct {
		Magic   uint16
		Version uint8
	}

	header.Magic = bundleMagic
	header.Version = bundleVersion
	return binary.Write(w.writer, binary.BigEndian, header)
}

func (w *bundleWriter) writeChunks(chunks []bundleChunk) (err error) {
	sort.Slice(chunks, func(one, two int) bool {
		if chunks[one].Z != chunks[two].Z {
			return chunks[one].Z < chunks[two].Z
		}
		return chunks[one].X < chunks[two].X
	})

	var out bytes.Buffer
	if err = binary.Write(&out, binary.BigEndian, uint32(len(chunks))); err != nil {
		return
	}

	for _, chunk := range chunks {
		head := struct {
			X, Z      int32
			Timestamp uint32
			Length    uint32
		}{chunk.X, chunk.Z, chunk.Timestamp, uint32(len(chunk.Data))}
		if err = binary.Write(&out, binary.BigEndian, head); err != nil {
			return
		}
		out.Write(chunk.Data)
	}

	return w.writeZstdCompressed(&out)
}

func (w *bundleWriter) writeZstdCompressed(buf *bytes.Buffer) (err error) {
	uncompressedSize := buf.Len()

	var compressedOutput bytes.Buffer
	w.zstdWriter.Reset(&compressedOutput)
	if _, err = buf.WriteTo(w.zstdWriter); err != nil {
		return
	}
	if err = w.zstdWriter.Close(); err != nil {
		return
	}

	if err = binary.Write(w.writer, binary.BigEndian, uint32(compressedOutput.Len())); err != nil {
		return
	}
	if err = binary.Write(w.writer, binary.BigEndian, uint32(uncompressedSize)); err != nil {
		return
	}
	_, err = compressedOutput.WriteTo(w.writer)
	return
}
