package world

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/811Alex/MC-World-Analysis-Tools/nbt"
)

var (
	ErrMissingStatus = errors.New("world: no Status in chunk level")
	ErrMissingUUID   = errors.New("world: no UUID in player data")
	ErrMissingField  = errors.New("world: missing field")
)

// ChunkRecord is the part of a chunk the listing tools print.
type ChunkRecord struct {
	File   string
	X, Z   int32
	Status string
}

// PlayerRecord is the part of a player-data file the listing tools print.
type PlayerRecord struct {
	File   string
	UUID   uuid.UUID
	Pos    [3]float64
	HasPos bool
}

// Level returns the compound holding a chunk's level data. Chunks saved
// before 1.18 nest it under "Level"; newer chunks keep it at the top. A nil
// chunk yields nil.
func Level(chunk *nbt.Compound) (*nbt.Compound, error) {
	if chunk == nil {
		return nil, nil
	}
	if chunk.Has("Status") {
		return chunk, nil
	}
	if level, ok := chunk.GetCompound("Level"); ok {
		chunk = level
	}
	if !chunk.Has("Status") {
		return nil, ErrMissingStatus
	}
	return chunk, nil
}

// ParseChunk normalizes chunk with Level and extracts its coordinates and
// generation status.
func ParseChunk(file string, chunk *nbt.Compound) (ChunkRecord, error) {
	level, err := Level(chunk)
	if err != nil {
		return ChunkRecord{}, err
	}
	if level == nil {
		return ChunkRecord{}, fmt.Errorf("%w: chunk is absent", ErrMissingField)
	}

	record := ChunkRecord{File: file}
	var ok bool
	if record.Status, ok = level.GetString("Status"); !ok {
		return ChunkRecord{}, fmt.Errorf("%w: Status is a %s", ErrMissingStatus, level.Get("Status").Type())
	}

	x, xok := level.GetInt("xPos")
	z, zok := level.GetInt("zPos")
	if !xok || !zok {
		return ChunkRecord{}, fmt.Errorf("%w: xPos/zPos", ErrMissingField)
	}
	record.X, record.Z = int32(x), int32(z)
	return record, nil
}

// PlayerUUID reads a player's UUID. 1.16+ stores it as one 128-bit value
// (an int array of four); older files split it into UUIDMost and UUIDLeast.
func PlayerUUID(player *nbt.Compound) (uuid.UUID, error) {
	var id uuid.UUID
	switch v := player.Get("UUID").(type) {
	case *nbt.IntArray:
		if len(v.Value) != 4 {
			return uuid.Nil, fmt.Errorf("%w: UUID has %d ints, want 4", ErrMissingUUID, len(v.Value))
		}
		for i, n := range v.Value {
			binary.BigEndian.PutUint32(id[4*i:], uint32(n))
		}
		return id, nil
	case *nbt.String:
		id, err := uuid.Parse(v.Value)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %w", ErrMissingUUID, err)
		}
		return id, nil
	}

	most, mok := player.Get("UUIDMost").(*nbt.Long)
	least, lok := player.Get("UUIDLeast").(*nbt.Long)
	if !mok || !lok {
		return uuid.Nil, ErrMissingUUID
	}
	binary.BigEndian.PutUint64(id[:8], uint64(most.Value))
	binary.BigEndian.PutUint64(id[8:], uint64(least.Value))
	return id, nil
}

// ParsePlayer extracts the UUID and, if present, the position of a player.
func ParsePlayer(file string, player *nbt.Compound) (PlayerRecord, error) {
	id, err := PlayerUUID(player)
	if err != nil {
		return PlayerRecord{}, err
	}
	record := PlayerRecord{File: file, UUID: id}

	if pos, ok := player.Get("Pos").(*nbt.List); ok && pos.Len() == 3 {
		record.HasPos = true
		for i := range record.Pos {
			d, ok := pos.Index(i).(*nbt.Double)
			if !ok {
				record.HasPos = false
				break
			}
			record.Pos[i] = d.Value
		}
	}
	return record, nil
}

// IsFloodgate reports whether id was minted by Floodgate for a Bedrock
// player: such UUIDs carry the Xbox user id in the low 64 bits and zero in
// the high 64 bits.
func IsFloodgate(id uuid.UUID) bool {
	return id != uuid.Nil && binary.BigEndian.Uint64(id[:8]) == 0
}
