package world_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/811Alex/MC-World-Analysis-Tools/anvil"
	"github.com/811Alex/MC-World-Analysis-Tools/internal/fixture"
	"github.com/811Alex/MC-World-Analysis-Tools/nbt"
	"github.com/811Alex/MC-World-Analysis-Tools/world"
)

// chunkAt places a chunk at cell (x, z) of region (rx, rz).
func chunkAt(rx, rz, x, z int, status string) fixture.Chunk {
	return fixture.Chunk{X: x, Z: z, Root: fixture.ChunkRoot(int32(rx*32+x), int32(rz*32+z), status)}
}

func writeWorld(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	fixture.WriteRegion(t, dir, "r.0.0.mca",
		chunkAt(0, 0, 3, 7, "full"),
		chunkAt(0, 0, 0, 0, "full"),
		chunkAt(0, 0, 1, 0, "empty"),
		chunkAt(0, 0, 2, 1, "full"),
	)
	fixture.WriteRegion(t, dir, "r.0.1.mca",
		chunkAt(0, 1, 5, 5, "full"),
		chunkAt(0, 1, 0, 0, "full"),
		chunkAt(0, 1, 9, 9, "minecraft:full"),
	)
	fixture.WriteFile(t, dir, "r.1.0.mca", nil)
	fixture.WriteFile(t, dir, "level.dat", []byte("not a region"))
	return dir
}

// listChunks collects "x,z" for every chunk whose status matches pattern.
func listChunks(t *testing.T, w *world.Walker, path, pattern string) []string {
	t.Helper()
	re := regexp.MustCompile(pattern)
	var lines []string
	matched, err := w.Regions(context.Background(), path, func(c world.Chunk) error {
		if c.Root == nil {
			return nil
		}
		record, err := world.ParseChunk(c.File, c.Root)
		if err != nil {
			return err
		}
		if re.MatchString(record.Status) {
			lines = append(lines, fmt.Sprintf("%d,%d", record.X, record.Z))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Fatal("no region files matched")
	}
	return lines
}

func TestRegionsFullChunks(t *testing.T) {
	dir := writeWorld(t)
	w := &world.Walker{}

	got := listChunks(t, w, dir, "^full$")
	want := []string{"0,0", "2,1", "3,7", "0,32", "5,37"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	stats := w.Stats()
	if want := (world.Stats{Files: 3, Processed: 3, Records: 3 * anvil.Cells}); stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}

	got = listChunks(t, w, dir, "full")
	if len(got) != 6 || got[5] != "9,41" {
		t.Errorf("search for full = %v", got)
	}
}

func TestRegionsSingleFile(t *testing.T) {
	dir := writeWorld(t)
	w := &world.Walker{}

	got := listChunks(t, w, filepath.Join(dir, "r.0.1.mca"), "^full$")
	if want := []string{"0,32", "5,37"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	matched, err := w.Regions(context.Background(), filepath.Join(dir, "level.dat"), func(world.Chunk) error {
		t.Fatal("visited a chunk of a non-region file")
		return nil
	})
	if matched || err != nil {
		t.Errorf("Regions(level.dat) = %v, %v", matched, err)
	}

	matched, err = w.Regions(context.Background(), t.TempDir(), func(world.Chunk) error { return nil })
	if matched || err != nil {
		t.Errorf("Regions(empty dir) = %v, %v", matched, err)
	}

	_, err = w.Regions(context.Background(), filepath.Join(dir, "missing"), func(world.Chunk) error { return nil })
	if !errors.Is(err, world.ErrInvalidPath) {
		t.Errorf("error %v is not ErrInvalidPath", err)
	}
}

func TestRegionsGridOrder(t *testing.T) {
	dir := t.TempDir()
	fixture.WriteRegion(t, dir, "r.0.0.mca", chunkAt(0, 0, 0, 1, "full"))

	var cells [][2]int
	_, err := (&world.Walker{}).Regions(context.Background(), dir, func(c world.Chunk) error {
		if c.Present() != (c.X == 0 && c.Z == 1) {
			t.Errorf("cell (%d,%d) Present = %v", c.X, c.Z, c.Present())
		}
		cells = append(cells, [2]int{c.X, c.Z})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != anvil.Cells {
		t.Fatalf("visited %d cells", len(cells))
	}
	for i, cell := range cells {
		if want := [2]int{i / anvil.Edge, i % anvil.Edge}; cell != want {
			t.Fatalf("visit %d was cell %v, want %v", i, cell, want)
		}
	}
}

func writeCorrupt(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	fixture.WriteRegion(t, dir, "r.0.0.mca",
		chunkAt(0, 0, 0, 0, "full"),
		fixture.Chunk{X: 3, Z: 7, Payload: []byte("definitely not zlib"), Compression: anvil.CompressionZlib},
		chunkAt(0, 0, 31, 31, "full"),
	)
	return dir
}

func TestRegionsStopsAtFirstError(t *testing.T) {
	dir := writeCorrupt(t)

	visits := 0
	_, err := (&world.Walker{}).Regions(context.Background(), dir, func(world.Chunk) error {
		visits++
		return nil
	})

	var rerr *world.RecordError
	if !errors.As(err, &rerr) {
		t.Fatalf("error %v is not a *RecordError", err)
	}
	if rerr.File != "r.0.0.mca" || rerr.X != 3 || rerr.Z != 7 {
		t.Errorf("error attributed to %s (%d,%d)", rerr.File, rerr.X, rerr.Z)
	}
	if !errors.Is(err, anvil.ErrCorruptChunkData) {
		t.Errorf("error %v is not ErrCorruptChunkData", err)
	}
	if msg := err.Error(); !strings.Contains(msg, `"r.0.0.mca"`) || !strings.Contains(msg, "(3,7)") {
		t.Errorf("error %q does not name the file and cell", msg)
	}
	if want := 3*anvil.Edge + 7; visits != want {
		t.Errorf("visited %d cells before the error, want %d", visits, want)
	}
}

func TestRegionsKeepGoing(t *testing.T) {
	dir := writeCorrupt(t)

	var errs []error
	visits, present := 0, 0
	w := &world.Walker{OnError: func(err error) error {
		errs = append(errs, err)
		return nil
	}}
	_, err := w.Regions(context.Background(), dir, func(c world.Chunk) error {
		visits++
		if c.Present() {
			present++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], anvil.ErrCorruptChunkData) {
		t.Errorf("errors = %v", errs)
	}
	if visits != anvil.Cells-1 || present != 2 {
		t.Errorf("visited %d cells, %d present; want %d, 2", visits, present, anvil.Cells-1)
	}
	if w.Stats().Errors != 1 {
		t.Errorf("Stats = %+v", w.Stats())
	}
}

func TestRegionsVisitorError(t *testing.T) {
	dir := writeWorld(t)
	boom := errors.New("boom")

	_, err := (&world.Walker{}).Regions(context.Background(), dir, func(c world.Chunk) error {
		if c.File == "r.0.1.mca" && c.X == 5 && c.Z == 5 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error %v does not wrap the visitor error", err)
	}
	if want := `failed at region "r.0.1.mca", chunk (5,5): boom`; err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
}

func TestRegionsWantRaw(t *testing.T) {
	dir := t.TempDir()
	root := fixture.ChunkRoot(4, 4, "full")
	fixture.WriteRegion(t, dir, "r.0.0.mca", fixture.Chunk{X: 4, Z: 4, Root: root, Compression: anvil.CompressionGzip})

	found := false
	_, err := (&world.Walker{WantRaw: true}).Regions(context.Background(), dir, func(c world.Chunk) error {
		if c.Root != nil {
			t.Fatal("Root set when raw bytes were requested")
		}
		if !c.Present() {
			return nil
		}
		found = true
		if !bytes.Equal(c.Raw, fixture.Encode(t, root)) {
			t.Errorf("Raw = %x", c.Raw)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("chunk (4,4) not visited")
	}
}

func TestRegionsWorkers(t *testing.T) {
	dir := t.TempDir()
	var want []string
	for i := 0; i < 9; i++ {
		var chunks []fixture.Chunk
		for j := 0; j <= i; j++ {
			chunks = append(chunks, chunkAt(i, 0, j, j, "full"))
			want = append(want, fmt.Sprintf("%d,%d", i*32+j, j))
		}
		fixture.WriteRegion(t, dir, fmt.Sprintf("r.%d.0.mca", i), chunks...)
	}

	for _, workers := range []int{0, 1, 2, 4, 16} {
		var files []string
		w := &world.Walker{Workers: workers, OnFile: func(processed, total int, name string) {
			if processed != len(files)+1 || total != 9 {
				t.Errorf("OnFile(%d, %d, %s) out of order", processed, total, name)
			}
			files = append(files, name)
		}}
		got := listChunks(t, w, dir, "full")
		if !reflect.DeepEqual(got, want) {
			t.Errorf("workers=%d: got %v, want %v", workers, got, want)
		}
		if len(files) != 9 || files[0] != "r.0.0.mca" || files[8] != "r.8.0.mca" {
			t.Errorf("workers=%d: files = %v", workers, files)
		}
	}
}

func TestRegionsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&world.Walker{}).Regions(ctx, writeWorld(t), func(world.Chunk) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v is not context.Canceled", err)
	}
}

func TestPlayers(t *testing.T) {
	dir := t.TempDir()
	fixture.WritePlayer(t, dir, "b.dat", fixture.LegacyPlayerRoot(0x2222222222222222, 0x1111111111111111, [3]float64{1, 2, 3}))
	fixture.WritePlayer(t, dir, "a.dat", fixture.PlayerRoot([4]int32{0, 0, 9, 1}, [3]float64{4, 5, 6}))
	fixture.WriteFile(t, dir, "c.dat", []byte("junk"))
	fixture.WriteFile(t, dir, "a.dat_old", nil)
	if err := os.Mkdir(filepath.Join(dir, "d.dat"), 0o755); err != nil {
		t.Fatal(err)
	}

	var (
		records []world.PlayerRecord
		errs    []error
	)
	w := &world.Walker{Workers: 2, OnError: func(err error) error {
		errs = append(errs, err)
		return nil
	}}
	matched, err := w.Players(context.Background(), dir, func(p world.Player) error {
		record, err := world.ParsePlayer(p.File, p.Root)
		records = append(records, record)
		return err
	})
	if err != nil || !matched {
		t.Fatalf("Players = %v, %v", matched, err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %+v", records)
	}
	if records[0].File != "a.dat" || !world.IsFloodgate(records[0].UUID) || records[0].Pos != [3]float64{4, 5, 6} {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].File != "b.dat" || records[1].UUID.String() != "22222222-2222-2222-1111-111111111111" {
		t.Errorf("records[1] = %+v", records[1])
	}

	if len(errs) != 1 || !errors.Is(errs[0], nbt.ErrMalformed) {
		t.Fatalf("errors = %v", errs)
	}
	var rerr *world.RecordError
	if !errors.As(errs[0], &rerr) || rerr.File != "c.dat" || rerr.X != -1 {
		t.Errorf("error %v not attributed to c.dat", errs[0])
	}
	if !strings.HasPrefix(errs[0].Error(), `failed at file "c.dat"`) {
		t.Errorf("error = %q", errs[0])
	}
}
