// Package subscription owns the per-validator CDC worker state machine
// and the supervisor that subscribes/unsubscribes workers and exposes
// the shared event channel and monotonic HighestSlot.
package subscription

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/hellomoon/svlm/internal/discovery"
	"github.com/hellomoon/svlm/internal/geyser"
	"github.com/hellomoon/svlm/internal/metrics"
	"github.com/hellomoon/svlm/internal/vote"
)

// State is a worker's position in the connect/stream/backoff cycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// WorkerConfig configures one validator's subscription worker.
type WorkerConfig struct {
	Endpoint              string
	AccessToken           string
	ConnectTimeout        time.Duration
	ReconnectInterval     time.Duration
	MaxDecodingMessageMiB int
}

// Worker owns one long-lived bidirectional gRPC subscription for one
// validator, decoding vote transactions and forwarding VoteEvents onto
// the shared channel, and bumping HighestSlot on commitment-graded slot
// updates. Stream errors never propagate past the worker: they log and
// trigger reconnect per the state machine in the subscription contract.
type Worker struct {
	log       *slog.Logger
	cfg       WorkerConfig
	validator discovery.Validator
	events    chan<- vote.Event
	highest   *HighestSlot

	state atomic.Int32
}

// NewWorker constructs a worker for validator, writing decoded events
// onto the shared events channel.
func NewWorker(log *slog.Logger, cfg WorkerConfig, validator discovery.Validator, events chan<- vote.Event, highest *HighestSlot) *Worker {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Worker{
		log:       log.With("validator", validator.IdentityKey),
		cfg:       cfg,
		validator: validator,
		events:    events,
		highest:   highest,
	}
}

// State reports the worker's current state machine position.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run drives the connect/subscribe/stream/reconnect cycle until ctx is
// cancelled. It never returns an error: every failure is logged and
// triggers a backoff-then-retry, per the "reconnect indefinitely unless
// the supervisor cancels" contract.
func (w *Worker) Run(ctx context.Context) {
	defer w.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.runOnce(ctx); err != nil {
			w.log.Warn("subscription worker stream ended, reconnecting", "error", err)
			metrics.SubscriptionReconnectTotal.WithLabelValues(reconnectReason(err)).Inc()
		}

		w.setState(StateDisconnected)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.ReconnectInterval):
		}
	}
}

func reconnectReason(err error) string {
	if err == nil {
		return "eof"
	}
	return "stream_error"
}

func (w *Worker) runOnce(ctx context.Context) error {
	w.setState(StateConnecting)
	conn, err := geyser.Dial(ctx, geyser.DialConfig{
		Endpoint:              w.cfg.Endpoint,
		AccessToken:           w.cfg.AccessToken,
		ConnectTimeout:        w.cfg.ConnectTimeout,
		MaxDecodingMessageMiB: w.cfg.MaxDecodingMessageMiB,
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	metrics.SubscriptionActiveStreams.Inc()
	defer metrics.SubscriptionActiveStreams.Dec()

	w.setState(StateSubscribing)
	stream, err := geyser.Subscribe(ctx, conn)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	vTrue := true
	vFalse := false
	commitment := geyser.CommitmentProcessed
	req := &geyser.SubscribeRequest{
		Commitment: &commitment,
		Transactions: map[string]*geyser.SubscribeRequestFilterTransactions{
			"votes": {
				Vote:           &vTrue,
				Failed:         &vFalse,
				AccountInclude: []string{w.validator.VoteAccountKey},
			},
		},
		Slots: map[string]*geyser.SubscribeRequestFilterSlots{
			"commitment": {
				FilterByCommitment: &vTrue,
				InterslotUpdates:   &vFalse,
			},
		},
		Accounts: map[string]*geyser.SubscribeRequestFilterAccounts{
			"vote-account": {
				Account: []string{w.validator.VoteAccountKey},
			},
		},
	}
	if err := stream.Send(req); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}

	w.setState(StateStreaming)
	for {
		update, err := stream.Recv()
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		if err := w.dispatch(ctx, update); err != nil {
			return err
		}
	}
}

// dispatch handles one server-sent update, per the one-of tag.
func (w *Worker) dispatch(ctx context.Context, update *geyser.SubscribeUpdate) error {
	switch {
	case update.GetTransaction() != nil:
		w.handleTransaction(ctx, update.GetTransaction())
	case update.GetSlot() != nil:
		w.highest.Observe(update.GetSlot().Slot)
	case update.GetAccount() != nil, update.GetPing() != nil:
		// Observed only; not forwarded downstream.
	}
	return ctx.Err()
}

func (w *Worker) handleTransaction(ctx context.Context, tx *geyser.SubscribeUpdateTransaction) {
	info := tx.Transaction
	if info == nil || !info.IsVote {
		return
	}

	payloads := voteInstructionPayloads(info)
	if len(payloads) == 0 {
		return
	}

	slots, decodeErrors := vote.DecodeInstructions(payloads)
	if decodeErrors > 0 {
		metrics.VoteDecodeTotal.WithLabelValues("unknown", "error").Inc()
	}
	if len(slots) == 0 {
		return
	}
	metrics.VoteDecodeTotal.WithLabelValues("unknown", "success").Inc()

	voteAccount, err := pubkeyBytes(w.validator.VoteAccountKey)
	if err != nil {
		w.log.Warn("subscription worker: dropping vote with unparsable vote account key", "error", err)
		return
	}
	validator, err := pubkeyBytes(w.validator.IdentityKey)
	if err != nil {
		w.log.Warn("subscription worker: dropping vote with unparsable identity key", "error", err)
		return
	}

	ev := vote.Event{
		VoteAccount: voteAccount,
		Validator:   validator,
		LandedSlot:  tx.Slot,
		VotedSlots:  slots,
		ReceivedAt:  time.Now(),
	}
	copy(ev.Signature[:], info.Signature)

	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// voteInstructionPayloads picks the instruction payloads addressed to the
// vote program straight out of the pre-framed update, so no
// full-transaction deserialisation happens on the hot path. When the
// server sent no account keys the program index cannot be resolved and
// every instruction is handed to the decoder, which ignores unrecognised
// discriminators anyway.
func voteInstructionPayloads(info *geyser.SubscribeUpdateTransactionInfo) [][]byte {
	payloads := make([][]byte, 0, len(info.Instructions))
	for _, inst := range info.Instructions {
		if inst == nil {
			continue
		}
		if len(info.AccountKeys) > 0 {
			idx := int(inst.ProgramIdIndex)
			if idx >= len(info.AccountKeys) || !bytes.Equal(info.AccountKeys[idx], solanago.VoteProgramID[:]) {
				continue
			}
		}
		payloads = append(payloads, inst.Data)
	}
	return payloads
}

// pubkeyBytes base58-decodes a Solana pubkey string into its canonical
// 32-byte form; every on-chain pubkey decodes to exactly 32 bytes.
func pubkeyBytes(s string) ([32]byte, error) {
	var out [32]byte
	decoded, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("base58-decode pubkey %q: %w", s, err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("pubkey %q decodes to %d bytes, want 32", s, len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// HighestSlot is a monotonic slot counter updated by compare-and-swap:
// Observe only ever moves it forward, never backward, regardless of how
// many workers race to update it concurrently.
type HighestSlot struct {
	v atomic.Uint64
}

// Observe bumps the tracked slot to newSlot iff it is strictly greater
// than the current value.
func (h *HighestSlot) Observe(newSlot uint64) {
	for {
		cur := h.v.Load()
		if newSlot <= cur {
			return
		}
		if h.v.CompareAndSwap(cur, newSlot) {
			metrics.SubscriptionHighestSlot.Set(float64(newSlot))
			return
		}
	}
}

// Load returns the current highest observed slot.
func (h *HighestSlot) Load() uint64 {
	return h.v.Load()
}

// handle tracks one running worker so the supervisor can cancel and
// await it independently of the others.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the identity_key → worker-handle map and the single
// shared consumer channel every worker writes VoteEvents onto.
type Supervisor struct {
	log              *slog.Logger
	cfg              WorkerConfig
	highest          *HighestSlot
	maxSubscriptions int

	events       chan vote.Event
	receiverOnce sync.Once

	mu      sync.Mutex
	handles map[string]*handle
}

// NewSupervisor constructs a Supervisor with the given shared-channel
// depth (default 10,000, per the backpressure contract) and an optional
// cap on concurrent subscriptions (0 means uncapped).
func NewSupervisor(log *slog.Logger, cfg WorkerConfig, bufferSize, maxSubscriptions int) *Supervisor {
	if bufferSize <= 0 {
		bufferSize = 10_000
	}
	return &Supervisor{
		log:              log,
		cfg:              cfg,
		highest:          &HighestSlot{},
		maxSubscriptions: maxSubscriptions,
		events:           make(chan vote.Event, bufferSize),
		handles:          make(map[string]*handle),
	}
}

// HighestSlot exposes the shared monotonic slot counter.
func (s *Supervisor) HighestSlot() *HighestSlot {
	return s.highest
}

// TakeReceiver hands ownership of the consumer channel to the caller.
// It is intended to be called exactly once, by the pipeline driver.
func (s *Supervisor) TakeReceiver() <-chan vote.Event {
	var ch <-chan vote.Event
	s.receiverOnce.Do(func() {
		ch = s.events
	})
	return ch
}

// Subscribe spawns a worker for validator if one is not already running;
// otherwise it is a no-op.
func (s *Supervisor) Subscribe(ctx context.Context, validator discovery.Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handles[validator.IdentityKey]; exists {
		return
	}
	if s.maxSubscriptions > 0 && len(s.handles) >= s.maxSubscriptions {
		s.log.Warn("subscription cap reached, not subscribing validator",
			"validator", validator.IdentityKey, "max_subscriptions", s.maxSubscriptions)
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	s.handles[validator.IdentityKey] = h

	worker := NewWorker(s.log, s.cfg, validator, s.events, s.highest)
	go func() {
		defer close(h.done)
		worker.Run(workerCtx)
	}()
}

// Unsubscribe aborts and removes the handle for identityKey, if any.
func (s *Supervisor) Unsubscribe(identityKey string) {
	s.mu.Lock()
	h, exists := s.handles[identityKey]
	if exists {
		delete(s.handles, identityKey)
	}
	s.mu.Unlock()

	if exists {
		h.cancel()
	}
}

// ActiveCount returns the number of currently subscribed validators.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Shutdown aborts every handle and awaits each, up to 5s per handle.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	handles := make(map[string]*handle, len(s.handles))
	for k, v := range s.handles {
		handles[k] = v
	}
	s.handles = make(map[string]*handle)
	s.mu.Unlock()

	for key, h := range handles {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			s.log.Warn("subscription worker did not shut down within timeout", "validator", key)
		}
	}
}

// ResolveEndpoint resolves the CDC endpoint in priority order:
// environment override → explicit config entry → derivation from the
// RPC endpoint. The derivation rule: if the RPC URL has an explicit
// non-default port, preserve scheme/host/port/path verbatim; otherwise
// use scheme http, the same host, and port 10000.
func ResolveEndpoint(envOverride, configEndpoint, rpcURL string) (string, error) {
	if v := strings.TrimSpace(envOverride); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(configEndpoint); v != "" {
		return v, nil
	}
	return deriveEndpoint(rpcURL)
}

func deriveEndpoint(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", fmt.Errorf("parse rpc endpoint: %w", err)
	}
	if p := u.Port(); p != "" && !(u.Scheme == "https" && p == "443") && !(u.Scheme == "http" && p == "80") {
		return u.String(), nil
	}
	host := u.Hostname()
	derived := url.URL{Scheme: "http", Host: host + ":" + strconv.Itoa(10000)}
	return derived.String(), nil
}
