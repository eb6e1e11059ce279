// Package replay describes the decoded form of a replay file consumed by the
// interpreter and provides decoders producing it.
package replay

import (
	"io"
	"strings"
)

const (
	BlockTimeslotOld = 30
	BlockTimeslot    = 31
	BlockLeaveGame   = 0x17
)

// Action opcodes the interpreter reacts to.
const (
	ActionUnitOrder         = 0x10
	ActionUnitOrderPoint    = 0x11
	ActionUnitOrderTarget   = 0x12
	ActionUnitOrderTwoItems = 0x15
	ActionSelectSubgroup    = 0x19
	ActionCancelQueue       = 0x1e
	ActionCancelBuild       = 0x1f
	ActionSyncStoreInteger  = 0x6b
)

type PlayerRecord struct {
	ID   int    `json:"playerId"`
	Name string `json:"playerName"`
}

type Metadata struct {
	MapName string         `json:"mapName"`
	Players []PlayerRecord `json:"players"`
}

// MapFileName is the last path segment of the map path, "" when there is none.
func (m Metadata) MapFileName() string {
	name := m.MapName
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Action is one decoded player action. Object references are either four raw
// bytes or an (object, value) pair, see GameID.
type Action struct {
	ID       int     `json:"id"`
	OrderID  []int64 `json:"orderId,omitempty"`
	Object   []int64 `json:"object,omitempty"`
	ItemID   []int64 `json:"itemId,omitempty"`
	CacheKey string  `json:"key,omitempty"`
}

type Command struct {
	PlayerID int      `json:"playerId"`
	Actions  []Action `json:"actions"`
}

type Block struct {
	ID            int       `json:"id"`
	TimeIncrement int64     `json:"timeIncrement,omitempty"`
	PlayerID      int       `json:"playerId,omitempty"`
	Commands      []Command `json:"commandBlocks,omitempty"`
}

func (b Block) IsTimeslot() bool {
	return b.ID == BlockTimeslot || b.ID == BlockTimeslotOld
}

func (b Block) IsLeave() bool {
	return b.ID == BlockLeaveGame
}

// Stream yields blocks in replay order; Next returns io.EOF after the last one.
type Stream interface {
	Next() (Block, error)
	Close() error
}

type Replay struct {
	Metadata Metadata
	Blocks   Stream
}

// SliceStream serves blocks from memory.
type SliceStream struct {
	blocks []Block
	pos    int
}

func NewSliceStream(blocks ...Block) *SliceStream {
	return &SliceStream{blocks: blocks}
}

func (s *SliceStream) Next() (Block, error) {
	if s.pos >= len(s.blocks) {
		return Block{}, io.EOF
	}
	b := s.blocks[s.pos]
	s.pos++
	return b, nil
}

func (s *SliceStream) Close() error {
	return nil
}
