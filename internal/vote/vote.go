// Package vote decodes a Solana vote-program instruction payload into the
// slots it votes upon. Variants are a tagged union identified by a
// single-byte discriminator; the remainder of each variant is
// little-endian, length-prefixed binary.
package vote

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/hellomoon/svlm/internal/svlmerr"
)

// Discriminators for the recognised vote-instruction variants.
const (
	discVote                         = 2
	discVoteSwitch                   = 6
	discUpdateVoteState              = 8
	discUpdateVoteStateSwitch        = 9
	discCompactUpdateVoteState       = 12
	discCompactUpdateVoteStateSwitch = 13
	discTowerSync                    = 14
	discTowerSyncSwitch              = 15
)

// Event is the decoder's output for one vote transaction: the slots it
// votes upon, ready to be paired with a landing slot by the latency
// computer.
type Event struct {
	Validator   [32]byte
	VoteAccount [32]byte
	Signature   [64]byte
	LandedSlot  uint64
	VotedSlots  []uint64
	ReceivedAt  time.Time
}

// DecodeInstructions decodes every vote-program instruction payload found
// in a transaction and returns the union of voted slots across all of
// them, sorted and deduplicated. A failure decoding one instruction does
// not prevent the others from contributing; decodeErrors counts payloads
// that failed to parse.
func DecodeInstructions(payloads [][]byte) (votedSlots []uint64, decodeErrors int) {
	seen := make(map[uint64]struct{})
	for _, p := range payloads {
		slots, err := DecodeInstruction(p)
		if err != nil {
			decodeErrors++
			continue
		}
		for _, s := range slots {
			seen[s] = struct{}{}
		}
	}
	votedSlots = make([]uint64, 0, len(seen))
	for s := range seen {
		votedSlots = append(votedSlots, s)
	}
	sort.Slice(votedSlots, func(i, j int) bool { return votedSlots[i] < votedSlots[j] })
	return votedSlots, decodeErrors
}

// DecodeInstruction decodes a single vote-program instruction payload and
// returns the slots it votes upon, sorted ascending with adjacent
// duplicates removed. Non-slot-bearing or unrecognised variants return an
// empty, non-nil slice and no error.
func DecodeInstruction(payload []byte) ([]uint64, error) {
	if len(payload) < 1 {
		return nil, svlmerr.New(svlmerr.KindParse, "vote.DecodeInstruction", fmt.Errorf("empty payload"))
	}

	disc := payload[0]
	body := payload[1:]
	c := &cursor{buf: body}

	var slots []uint64
	var err error

	switch disc {
	case discVote, discVoteSwitch:
		slots, err = decodeVote(c)
	case discUpdateVoteState, discUpdateVoteStateSwitch:
		slots, err = decodeLockoutTower(c, allLockouts)
	case discCompactUpdateVoteState, discCompactUpdateVoteStateSwitch:
		slots, err = decodeCompactLockoutTower(c, allLockouts)
	case discTowerSync, discTowerSyncSwitch:
		slots, err = decodeLockoutTower(c, lastLockoutOnly)
	default:
		return []uint64{}, nil
	}
	if err != nil {
		return nil, svlmerr.New(svlmerr.KindParse, "vote.DecodeInstruction", err)
	}

	return normalizeSlots(slots), nil
}

// lockoutSelection controls how many of a tower's lockouts contribute
// slots: all of them (UpdateVoteState family) or only the most recent
// one (TowerSync family, per the policy of never double-counting
// historical votes already observed in earlier transactions).
type lockoutSelection int

const (
	allLockouts lockoutSelection = iota
	lastLockoutOnly
)

// decodeVote parses the `Vote` / `VoteSwitch` payload: a length-prefixed
// vector of u64 slots, a 32-byte hash (ignored for VoteSwitch's switch
// proof too), and an optional i64 timestamp.
func decodeVote(c *cursor) ([]uint64, error) {
	slots, err := c.readU64Vec()
	if err != nil {
		return nil, fmt.Errorf("vote slots: %w", err)
	}
	// hash + optional timestamp follow but carry no slot information.
	return slots, nil
}

// decodeLockoutTower parses the `UpdateVoteState` family: a length-prefixed
// vector of (slot u64, confirmation_count u32) lockouts.
func decodeLockoutTower(c *cursor, sel lockoutSelection) ([]uint64, error) {
	n, err := c.readU32()
	if err != nil {
		return nil, fmt.Errorf("lockout count: %w", err)
	}
	slots := make([]uint64, 0, n)
	for i := uint32(0); i < n; i++ {
		slot, err := c.readU64()
		if err != nil {
			return nil, fmt.Errorf("lockout[%d].slot: %w", i, err)
		}
		if _, err := c.readU32(); err != nil { // confirmation_count
			return nil, fmt.Errorf("lockout[%d].confirmation_count: %w", i, err)
		}
		slots = append(slots, slot)
	}
	if sel == lastLockoutOnly {
		if len(slots) == 0 {
			return []uint64{}, nil
		}
		return []uint64{slots[len(slots)-1]}, nil
	}
	return slots, nil
}

// decodeCompactLockoutTower parses the `CompactUpdateVoteState` family:
// functionally the same lockout tower as decodeLockoutTower, but each
// slot after the first is delta-encoded against its predecessor to save
// wire bytes, and confirmation counts are single bytes.
func decodeCompactLockoutTower(c *cursor, sel lockoutSelection) ([]uint64, error) {
	n, err := c.readU32()
	if err != nil {
		return nil, fmt.Errorf("compact lockout count: %w", err)
	}
	slots := make([]uint64, 0, n)
	var prev uint64
	for i := uint32(0); i < n; i++ {
		delta, err := c.readU64()
		if err != nil {
			return nil, fmt.Errorf("compact lockout[%d].slot_delta: %w", i, err)
		}
		if _, err := c.readU8(); err != nil { // confirmation_count
			return nil, fmt.Errorf("compact lockout[%d].confirmation_count: %w", i, err)
		}
		slot := prev + delta
		slots = append(slots, slot)
		prev = slot
	}
	if sel == lastLockoutOnly {
		if len(slots) == 0 {
			return []uint64{}, nil
		}
		return []uint64{slots[len(slots)-1]}, nil
	}
	return slots, nil
}

// normalizeSlots sorts ascending and removes adjacent duplicates, per the
// decoder's post-processing contract. An empty input returns an empty,
// non-nil slice so callers can treat "no slots" uniformly.
func normalizeSlots(slots []uint64) []uint64 {
	if len(slots) == 0 {
		return []uint64{}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	out := slots[:1]
	for _, s := range slots[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// cursor is a minimal little-endian byte reader for the fixed-integer,
// length-prefixed framing the vote program uses.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) readU8() (uint8, error) {
	if c.pos+1 > len(c.buf) {
		return 0, fmt.Errorf("unexpected end of buffer reading u8")
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) readU32() (uint32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, fmt.Errorf("unexpected end of buffer reading u32")
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *cursor) readU64() (uint64, error) {
	if c.pos+8 > len(c.buf) {
		return 0, fmt.Errorf("unexpected end of buffer reading u64")
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

func (c *cursor) readU64Vec() ([]uint64, error) {
	n, err := c.readU32()
	if err != nil {
		return nil, fmt.Errorf("vec length: %w", err)
	}
	out := make([]uint64, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := c.readU64()
		if err != nil {
			return nil, fmt.Errorf("vec[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
