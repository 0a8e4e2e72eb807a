// Package world walks the region and player-data files of a Minecraft save
// and hands every decoded record to a visitor.
package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/811Alex/MC-World-Analysis-Tools/anvil"
	"github.com/811Alex/MC-World-Analysis-Tools/nbt"
)

const (
	RegionExt = ".mca"
	PlayerExt = ".dat"
)

var (
	ErrInvalidPath     = errors.New("world: path is neither a file nor a directory")
	ErrNoMatchingFiles = errors.New("world: no matching files")
)

// RecordError attributes a failure to one file, and for region files to one
// chunk of it.
type RecordError struct {
	File string
	// X and Z are the cell within a region, or -1 when the error concerns a
	// whole file.
	X, Z int
	Err  error
}

func (e *RecordError) Error() string {
	if e.X < 0 {
		return fmt.Sprintf("failed at file %q: %v", e.File, e.Err)
	}
	return fmt.Sprintf("failed at region %q, chunk (%d,%d): %v", e.File, e.X, e.Z, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func recordError(file string, x, z int, err error) error {
	var cerr *anvil.ChunkError
	if errors.As(err, &cerr) {
		err = cerr.Err
	}
	return &RecordError{File: file, X: x, Z: z, Err: err}
}

// Chunk is one cell of a region as handed to a ChunkVisitor. Root and Raw
// are both nil for cells that hold no chunk.
type Chunk struct {
	File      string
	X, Z      int
	Root      *nbt.Compound
	Raw       []byte
	Timestamp time.Time
}

func (c Chunk) Present() bool {
	return c.Root != nil || c.Raw != nil
}

// Player is one decoded player-data file.
type Player struct {
	File string
	Root *nbt.Compound
}

type (
	ChunkVisitor  func(Chunk) error
	PlayerVisitor func(Player) error
)

// Stats counts the progress of the last walk.
type Stats struct {
	Files     int64
	Processed int64
	Records   int64
	Errors    int64
}

type counters struct {
	files, processed, records, errors atomic.Int64
}

// Walker visits every record below a path. The zero value walks one file at
// a time and stops at the first error.
type Walker struct {
	// WantRaw hands chunks to the visitor as undecoded NBT bytes.
	WantRaw bool
	// Workers > 1 decodes that many files concurrently. Records are still
	// reported in file order, one file at a time.
	Workers int
	// OnError is called with every record error. Returning nil continues the
	// walk; a nil OnError stops at the first error and returns it.
	OnError func(err error) error
	// OnFile is called before the records of each file are reported.
	OnFile func(processed, total int, name string)
	Log    logrus.FieldLogger

	stats counters
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (w *Walker) log() logrus.FieldLogger {
	if w.Log != nil {
		return w.Log
	}
	return discard
}

func (w *Walker) Stats() Stats {
	return Stats{
		Files:     w.stats.files.Load(),
		Processed: w.stats.processed.Load(),
		Records:   w.stats.records.Load(),
		Errors:    w.stats.errors.Load(),
	}
}

func (w *Walker) fail(err error) error {
	w.stats.errors.Add(1)
	if w.OnError == nil {
		return err
	}
	return w.OnError(err)
}

// Regions visits all 1024 cells of every region file at path, which is a
// .mca file or a directory holding them. Cells are visited with x in the
// outer loop and z in the inner loop; directories are read in name order.
// matched is false if no region file was found.
func (w *Walker) Regions(ctx context.Context, path string, visit ChunkVisitor) (matched bool, err error) {
	files, err := collect(path, RegionExt)
	if err != nil || len(files) == 0 {
		return false, err
	}

	report := func(cell cellResult) error {
		if cell.err != nil {
			return w.fail(recordError(cell.chunk.File, cell.chunk.X, cell.chunk.Z, cell.err))
		}
		w.stats.records.Add(1)
		if err := visit(cell.chunk); err != nil {
			return w.fail(recordError(cell.chunk.File, cell.chunk.X, cell.chunk.Z, err))
		}
		return nil
	}
	return true, walkFiles(ctx, w, files, w.readRegion, report)
}

// Players visits every player-data file at path, which is a .dat file or a
// directory holding them.
func (w *Walker) Players(ctx context.Context, path string, visit PlayerVisitor) (matched bool, err error) {
	files, err := collect(path, PlayerExt)
	if err != nil || len(files) == 0 {
		return false, err
	}

	report := func(player Player) error {
		w.stats.records.Add(1)
		if err := visit(player); err != nil {
			return w.fail(recordError(player.File, -1, -1, err))
		}
		return nil
	}
	return true, walkFiles(ctx, w, files, w.readPlayer, report)
}

func collect(path, ext string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	} else if err != nil {
		return nil, err
	}

	switch {
	case info.Mode().IsRegular():
		if filepath.Ext(path) != ext {
			return nil, nil
		}
		return []string{path}, nil

	case info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, entry := range entries {
			if entry.Type().IsRegular() && filepath.Ext(entry.Name()) == ext {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
		return files, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
}

type cellResult struct {
	chunk Chunk
	err   error
}

func (w *Walker) readRegion(path string) ([]cellResult, error) {
	name := filepath.Base(path)
	region, err := anvil.Open(path)
	if err != nil {
		return nil, recordError(name, -1, -1, err)
	}
	defer region.Close()
	w.log().WithField("file", name).Debug("reading region")

	cells := make([]cellResult, 0, anvil.Cells)
	for x := 0; x < anvil.Edge; x++ {
		for z := 0; z < anvil.Edge; z++ {
			cell := cellResult{chunk: Chunk{File: name, X: x, Z: z, Timestamp: region.Timestamp(x, z)}}
			if w.WantRaw {
				cell.chunk.Raw, cell.err = region.Raw(x, z)
			} else {
				cell.chunk.Root, cell.err = region.Chunk(x, z)
			}
			cells = append(cells, cell)
		}
	}
	return cells, nil
}

func (w *Walker) readPlayer(path string) ([]Player, error) {
	name := filepath.Base(path)
	w.log().WithField("file", name).Debug("reading player data")
	root, err := nbt.ReadFile(path)
	if err != nil {
		return nil, recordError(name, -1, -1, err)
	}
	return []Player{{File: name, Root: root}}, nil
}

type fileResult[T any] struct {
	records []T
	err     error
}

// walkFiles decodes each file with decode and passes its records to report,
// strictly in file order. With more than one worker the files are decoded
// concurrently, at most 2*Workers files ahead of the one being reported.
func walkFiles[T any](ctx context.Context, w *Walker, files []string, decode func(string) ([]T, error), report func(T) error) error {
	w.stats.files.Store(int64(len(files)))
	w.stats.processed.Store(0)
	w.stats.records.Store(0)
	w.stats.errors.Store(0)

	if w.Workers <= 1 {
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			records, err := decode(file)
			if err := reportFile(w, file, len(files), fileResult[T]{records, err}, report); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	results := make([]chan fileResult[T], len(files))
	for i := range results {
		results[i] = make(chan fileResult[T], 1)
	}
	window := make(chan struct{}, 2*w.Workers)
	jobs := make(chan int)

	go func() {
		defer close(jobs)
		for i := range files {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Add(w.Workers)
	for n := 0; n < w.Workers; n++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				records, err := decode(files[i])
				results[i] <- fileResult[T]{records, err}
			}
		}()
	}

	for i, file := range files {
		var res fileResult[T]
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		<-window
		if err := reportFile(w, file, len(files), res, report); err != nil {
			return err
		}
	}
	return nil
}

func reportFile[T any](w *Walker, file string, total int, res fileResult[T], report func(T) error) error {
	processed := w.stats.processed.Add(1)
	if w.OnFile != nil {
		w.OnFile(int(processed), total, filepath.Base(file))
	}
	if res.err != nil {
		return w.fail(res.err)
	}
	for _, record := range res.records {
		if err := report(record); err != nil {
			return err
		}
	}
	return nil
}
