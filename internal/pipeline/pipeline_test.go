package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hellomoon/svlm/internal/discovery"
	"github.com/hellomoon/svlm/internal/latency"
	"github.com/hellomoon/svlm/internal/store"
	"github.com/hellomoon/svlm/internal/subscription"
	"github.com/hellomoon/svlm/internal/testutil"
	"github.com/hellomoon/svlm/internal/vote"
)

type fakeBackend struct {
	mu   sync.Mutex
	rows []latency.VoteLatency
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) WriteBatch(ctx context.Context, batch []latency.VoteLatency) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, batch...)
	return nil
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeBackend) first() latency.VoteLatency {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[0]
}

func sampleEvent() vote.Event {
	return vote.Event{
		Validator:   [32]byte{1},
		VoteAccount: [32]byte{2},
		Signature:   [64]byte{3},
		LandedSlot:  105,
		VotedSlots:  []uint64{100, 103},
		ReceivedAt:  time.Now(),
	}
}

func TestDriver_VoteProcessor_ComputesAndWritesLatency(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	// A single writer keeps the one-point batches in dispatch order.
	s := store.New(testutil.NewLogger(), store.Config{BatchSize: 1, FlushInterval: time.Hour, NumWorkers: 1}, backend)
	defer s.Shutdown(context.Background())

	d := &Driver{log: testutil.NewLogger(), writeStore: s}

	events := make(chan vote.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.voteProcessor(ctx, events)
	events <- sampleEvent()

	require.Eventually(t, func() bool { return backend.count() == 2 }, time.Second, 5*time.Millisecond,
		"one VoteEvent with two voted slots should yield two stored latency rows")

	row := backend.first()
	require.Equal(t, uint64(100), row.VotedSlot)
	require.Equal(t, uint8(5), row.LatencySlots)
}

func TestDriver_VoteProcessor_StopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	s := store.New(testutil.NewLogger(), store.Config{BatchSize: 1, FlushInterval: time.Hour}, backend)
	defer s.Shutdown(context.Background())

	d := &Driver{log: testutil.NewLogger(), writeStore: s}

	events := make(chan vote.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.voteProcessor(ctx, events)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("voteProcessor did not return after context cancellation")
	}
}

func TestDriver_ApplyDiff_SubscribesAndUnsubscribes(t *testing.T) {
	t.Parallel()

	supervisor := subscription.NewSupervisor(testutil.NewLogger(), subscription.WorkerConfig{
		Endpoint:          "http://127.0.0.1:1",
		ConnectTimeout:    50 * time.Millisecond,
		ReconnectInterval: time.Hour,
	}, 10, 0)
	defer supervisor.Shutdown()

	d := &Driver{log: testutil.NewLogger(), supervisor: supervisor}

	v := discovery.Validator{IdentityKey: "validator-a", VoteAccountKey: "vote-a"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.applyDiff(ctx, discovery.Diff{Added: []discovery.Validator{v}})
	require.Equal(t, 1, supervisor.ActiveCount())

	d.applyDiff(ctx, discovery.Diff{Removed: []discovery.Validator{v}})
	require.Equal(t, 0, supervisor.ActiveCount())
}
