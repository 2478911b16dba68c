package subscription

import (
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hellomoon/svlm/internal/geyser"
)

func TestHighestSlot_MonotonicUnderConcurrentObserve(t *testing.T) {
	t.Parallel()
	h := &HighestSlot{}

	var wg sync.WaitGroup
	for _, slot := range []uint64{5, 3, 9, 1, 7} {
		slot := slot
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Observe(slot)
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(9), h.Load())

	h.Observe(4)
	require.Equal(t, uint64(9), h.Load(), "observing a lower slot must never move HighestSlot backward")
}

func TestResolveEndpoint_EnvOverrideWins(t *testing.T) {
	t.Parallel()
	endpoint, err := ResolveEndpoint("https://override:2083", "https://config:2083", "https://rpc.example.com")
	require.NoError(t, err)
	require.Equal(t, "https://override:2083", endpoint)
}

func TestResolveEndpoint_ConfigWinsOverDerivation(t *testing.T) {
	t.Parallel()
	endpoint, err := ResolveEndpoint("", "https://config:2083", "https://rpc.example.com")
	require.NoError(t, err)
	require.Equal(t, "https://config:2083", endpoint)
}

func TestResolveEndpoint_DerivesFromRPCWithExplicitPort(t *testing.T) {
	t.Parallel()
	endpoint, err := ResolveEndpoint("", "", "https://rpc.example.com:8899/path")
	require.NoError(t, err)
	require.Equal(t, "https://rpc.example.com:8899/path", endpoint)
}

func TestResolveEndpoint_DerivesDefaultPortWhenRPCPortImplicit(t *testing.T) {
	t.Parallel()
	endpoint, err := ResolveEndpoint("", "", "https://api.mainnet-beta.solana.com")
	require.NoError(t, err)
	require.Equal(t, "http://api.mainnet-beta.solana.com:10000", endpoint)
}

func TestVoteInstructionPayloads_FiltersByProgramID(t *testing.T) {
	t.Parallel()
	otherProgram := make([]byte, 32)
	otherProgram[0] = 0xFF

	info := &geyser.SubscribeUpdateTransactionInfo{
		AccountKeys: [][]byte{otherProgram, solanago.VoteProgramID[:]},
		Instructions: []*geyser.CompiledInstruction{
			{ProgramIdIndex: 0, Data: []byte{0x01}},
			{ProgramIdIndex: 1, Data: []byte{0x02}},
			{ProgramIdIndex: 9, Data: []byte{0x03}}, // out of range
		},
	}

	payloads := voteInstructionPayloads(info)
	require.Equal(t, [][]byte{{0x02}}, payloads)
}

func TestVoteInstructionPayloads_NoAccountKeysPassesEverything(t *testing.T) {
	t.Parallel()
	info := &geyser.SubscribeUpdateTransactionInfo{
		Instructions: []*geyser.CompiledInstruction{
			{ProgramIdIndex: 3, Data: []byte{0x0A}},
		},
	}
	require.Len(t, voteInstructionPayloads(info), 1)
}

func TestSupervisor_ShutdownWithNoSubscriptions(t *testing.T) {
	t.Parallel()
	// Constructing a Supervisor and immediately shutting it down with no
	// subscriptions exercises the handle-map lifecycle without requiring
	// an actual CDC endpoint.
	sup := NewSupervisor(nil, WorkerConfig{Endpoint: "http://127.0.0.1:0"}, 10, 0)
	require.Equal(t, 0, sup.ActiveCount())
	sup.Shutdown()
	require.Equal(t, 0, sup.ActiveCount())
}
