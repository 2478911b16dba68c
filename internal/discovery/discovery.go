// Package discovery turns a cluster roster into an active subscription
// set: filtering, diffing against the previous pass, and a
// clockwork-driven periodic refresh loop.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hellomoon/svlm/internal/metrics"
	"github.com/hellomoon/svlm/internal/solanarpc"
)

const lamportsPerSOL = 1_000_000_000

// Validator is one admitted roster entry.
type Validator struct {
	IdentityKey    string
	VoteAccountKey string
	StakeLamports  uint64
	Delinquent     bool
}

// ActiveSet is the filter's output for one refresh cycle, keyed by
// identity key so diffing against the previous pass is a map comparison.
type ActiveSet map[string]Validator

// Diff is the added/removed validators between two ActiveSets.
type Diff struct {
	Added   []Validator
	Removed []Validator
}

// RosterFetcher is the subset of solanarpc.Client the filter depends on.
type RosterFetcher interface {
	FetchVoteAccounts(ctx context.Context) (solanarpc.Roster, error)
}

// Filter holds the discovery configuration: thresholds and allow/deny
// lists applied in the fixed order the fleet-tracking rules specify.
type Filter struct {
	MinStakeSol       float64
	IncludeDelinquent bool
	Whitelist         map[string]bool
	Blacklist         map[string]bool
}

// NewFilter builds a Filter from list-form config, indexing the
// allow/deny lists for O(1) membership checks.
func NewFilter(minStakeSol float64, includeDelinquent bool, whitelist, blacklist []string) Filter {
	return Filter{
		MinStakeSol:       minStakeSol,
		IncludeDelinquent: includeDelinquent,
		Whitelist:         toSet(whitelist),
		Blacklist:         toSet(blacklist),
	}
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// Apply runs the four-step filter against roster and returns the
// resulting ActiveSet. Steps run in order: stake floor, allow-list,
// deny-list, delinquent inclusion.
func (f Filter) Apply(roster solanarpc.Roster) ActiveSet {
	active := make(ActiveSet)

	f.applyEntries(active, roster.Current, false)
	if f.IncludeDelinquent {
		f.applyEntries(active, roster.Delinquent, true)
	}
	return active
}

func (f Filter) applyEntries(active ActiveSet, entries []solanarpc.Entry, delinquent bool) {
	for _, e := range entries {
		if !f.admit(e) {
			continue
		}
		active[e.IdentityKey] = Validator{
			IdentityKey:    e.IdentityKey,
			VoteAccountKey: e.VoteAccountKey,
			StakeLamports:  e.StakeLamports,
			Delinquent:     delinquent,
		}
	}
}

func (f Filter) admit(e solanarpc.Entry) bool {
	stakeSol := float64(e.StakeLamports) / lamportsPerSOL
	if stakeSol < f.MinStakeSol {
		return false
	}

	if len(f.Whitelist) > 0 {
		if !f.Whitelist[e.IdentityKey] && !f.Whitelist[e.VoteAccountKey] {
			return false
		}
	}

	if f.Blacklist[e.IdentityKey] || f.Blacklist[e.VoteAccountKey] {
		return false
	}

	return true
}

// ComputeDiff compares prev against next, identity-key keyed.
func ComputeDiff(prev, next ActiveSet) Diff {
	var d Diff
	for key, v := range next {
		if _, ok := prev[key]; !ok {
			d.Added = append(d.Added, v)
		}
	}
	for key, v := range prev {
		if _, ok := next[key]; !ok {
			d.Removed = append(d.Removed, v)
		}
	}
	return d
}

// DiffHandler is notified of each refresh's diff against the prior set.
type DiffHandler func(ctx context.Context, diff Diff)

// ViewConfig configures a refresh loop.
type ViewConfig struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	Fetcher         RosterFetcher
	Filter          Filter
	RefreshInterval time.Duration
	OnDiff          DiffHandler
}

func (cfg *ViewConfig) validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Fetcher == nil {
		return errors.New("roster fetcher is required")
	}
	if cfg.OnDiff == nil {
		return errors.New("diff handler is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 300 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// View runs the periodic discovery refresh loop: an initial synchronous
// pass when Start is called, then one pass per RefreshInterval. A failed
// refresh logs and retains the previous ActiveSet, per the fleet
// tracker's retain-on-failure rule.
type View struct {
	log *slog.Logger
	cfg ViewConfig

	mu        sync.Mutex
	active    ActiveSet
	readyOnce sync.Once
	readyCh   chan struct{}
}

// NewView constructs a View; callers must still call Start to run the
// refresh loop, or Refresh for a one-shot pass.
func NewView(cfg ViewConfig) (*View, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &View{
		log:     cfg.Logger,
		cfg:     cfg,
		active:  make(ActiveSet),
		readyCh: make(chan struct{}),
	}, nil
}

// Ready reports whether at least one refresh has completed.
func (v *View) Ready() bool {
	select {
	case <-v.readyCh:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the first refresh completes or ctx is done.
func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for discovery view: %w", ctx.Err())
	}
}

// ActiveSet returns a copy of the current active set.
func (v *View) ActiveSet() ActiveSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(ActiveSet, len(v.active))
	for k, val := range v.active {
		out[k] = val
	}
	return out
}

// Start runs an immediate synchronous refresh, then spawns the periodic
// refresh loop in the background.
func (v *View) Start(ctx context.Context) error {
	if err := v.Refresh(ctx); err != nil {
		return fmt.Errorf("initial discovery refresh: %w", err)
	}

	go func() {
		v.log.Info("discovery: starting refresh loop", "interval", v.cfg.RefreshInterval)

		ticker := v.cfg.Clock.NewTicker(v.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				v.safeRefresh(ctx)
			}
		}
	}()
	return nil
}

func (v *View) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("discovery: refresh panicked", "panic", r)
			metrics.DiscoveryRefreshTotal.WithLabelValues("panic").Inc()
		}
	}()

	if err := v.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		v.log.Error("discovery: refresh failed, retaining current set", "error", err)
	}
}

// Refresh fetches the roster, applies the filter, and invokes OnDiff
// with the result against the previous ActiveSet. On fetch failure the
// previous ActiveSet is left untouched and the error is returned.
func (v *View) Refresh(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.DiscoveryRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	roster, err := v.cfg.Fetcher.FetchVoteAccounts(ctx)
	if err != nil {
		metrics.DiscoveryRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch vote accounts: %w", err)
	}

	next := v.cfg.Filter.Apply(roster)

	v.mu.Lock()
	prev := v.active
	v.active = next
	v.mu.Unlock()

	diff := ComputeDiff(prev, next)
	v.log.Info("discovery: refresh completed", "active", len(next), "added", len(diff.Added), "removed", len(diff.Removed))
	metrics.DiscoveryActiveValidators.Set(float64(len(next)))
	v.cfg.OnDiff(ctx, diff)

	v.readyOnce.Do(func() {
		close(v.readyCh)
		v.log.Info("discovery: view is now ready")
	})

	metrics.DiscoveryRefreshTotal.WithLabelValues("success").Inc()
	return nil
}
