// Package latency turns decoded vote events into per-slot latency records.
package latency

import (
	"github.com/hellomoon/svlm/internal/vote"
)

const maxLatencySlots = 255

// VoteLatency is a single stored latency record: one voted slot paired
// with the slot its vote transaction landed in.
type VoteLatency struct {
	Validator    [32]byte
	VoteAccount  [32]byte
	Signature    [64]byte
	LandedSlot   uint64
	VotedSlot    uint64
	LatencySlots uint8
	ReceivedAtNs int64
}

// Compute decomposes a VoteEvent into one VoteLatency per voted slot,
// dropping the event entirely if any voted slot exceeds the landed slot
// (such an event breaks the VoteEvent invariant and is malformed).
//
// Returns the latencies and the count of voted slots that exceeded the
// landed slot; when that count is non-zero no latencies are returned.
func Compute(ev vote.Event) (out []VoteLatency, malformed int) {
	for _, voted := range ev.VotedSlots {
		if voted > ev.LandedSlot {
			malformed++
		}
	}
	if malformed > 0 {
		return nil, malformed
	}

	out = make([]VoteLatency, 0, len(ev.VotedSlots))
	for _, voted := range ev.VotedSlots {
		out = append(out, VoteLatency{
			Validator:    ev.Validator,
			VoteAccount:  ev.VoteAccount,
			Signature:    ev.Signature,
			LandedSlot:   ev.LandedSlot,
			VotedSlot:    voted,
			LatencySlots: saturate(ev.LandedSlot - voted),
			ReceivedAtNs: ev.ReceivedAt.UnixNano(),
		})
	}
	return out, malformed
}

func saturate(delta uint64) uint8 {
	if delta > maxLatencySlots {
		return maxLatencySlots
	}
	return uint8(delta)
}
