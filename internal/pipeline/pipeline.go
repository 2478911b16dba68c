// Package pipeline wires the discovery, subscription, decode, latency,
// and store components into the running ingest-to-storage pipeline and
// drives its two long-running tasks: the vote processor and the fleet
// refresher.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hellomoon/svlm/internal/config"
	"github.com/hellomoon/svlm/internal/discovery"
	"github.com/hellomoon/svlm/internal/latency"
	"github.com/hellomoon/svlm/internal/metrics"
	"github.com/hellomoon/svlm/internal/solanarpc"
	"github.com/hellomoon/svlm/internal/store"
	"github.com/hellomoon/svlm/internal/subscription"
	"github.com/hellomoon/svlm/internal/vote"
)

const fleetRefreshInterval = 60 * time.Second

// Driver owns the pipeline's component lifecycle: the store comes up
// first, then discovery, then the subscription supervisor and the two
// supervised tasks; shutdown walks the same chain in reverse.
type Driver struct {
	log *slog.Logger
	cfg *config.Config

	discoveryView *discovery.View
	supervisor    *subscription.Supervisor
	writeStore    *store.Store
}

// New constructs a Driver from a resolved config. It does not start any
// background work; call Run for that.
func New(log *slog.Logger, cfg *config.Config, backend store.Backend, cdcEndpoint string) (*Driver, error) {
	writeStore := store.New(log, store.Config{
		BatchSize:     cfg.Store.BatchSize,
		FlushInterval: time.Duration(cfg.Store.FlushIntervalMs) * time.Millisecond,
		NumWorkers:    cfg.Store.NumWorkers,
	}, backend)

	rosterClient := solanarpc.New(cfg.Solana.RPCEndpoint, time.Duration(cfg.Solana.TimeoutSecs)*time.Second)
	filter := discovery.NewFilter(cfg.Discovery.MinStakeSol, cfg.Discovery.IncludeDelinquent, cfg.Discovery.Whitelist, cfg.Discovery.Blacklist)

	supervisor := subscription.NewSupervisor(log, subscription.WorkerConfig{
		Endpoint:          cdcEndpoint,
		AccessToken:       cfg.Grpc.AccessToken,
		ConnectTimeout:    time.Duration(cfg.Grpc.ConnectionTimeoutSecs) * time.Second,
		ReconnectInterval: time.Duration(cfg.Grpc.ReconnectIntervalSecs) * time.Second,
	}, cfg.Grpc.BufferSize, cfg.Grpc.MaxSubscriptions)

	d := &Driver{
		log:        log,
		cfg:        cfg,
		supervisor: supervisor,
		writeStore: writeStore,
	}

	refreshInterval := time.Duration(cfg.Discovery.RefreshIntervalSecs) * time.Second
	view, err := discovery.NewView(discovery.ViewConfig{
		Logger:          log,
		Fetcher:         rosterClient,
		Filter:          filter,
		RefreshInterval: refreshInterval,
		OnDiff:          d.applyDiff,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: build discovery view: %w", err)
	}
	d.discoveryView = view

	return d, nil
}

// Ready reports whether the pipeline has completed at least one
// discovery pass, for wiring into the health server's readiness probe.
func (d *Driver) Ready() bool {
	return d.discoveryView.Ready()
}

// applyDiff subscribes added validators and unsubscribes removed ones,
// shared between the initial startup pass and every subsequent refresh.
func (d *Driver) applyDiff(ctx context.Context, diff discovery.Diff) {
	for _, v := range diff.Added {
		d.supervisor.Subscribe(ctx, v)
	}
	for _, v := range diff.Removed {
		d.supervisor.Unsubscribe(v.IdentityKey)
	}
}

// Run starts the discovery refresh loop, subscribes the initial active
// set, and blocks running the vote processor and fleet refresher tasks
// until ctx is cancelled. On return, the supervisor and the store have
// been stopped.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.discoveryView.Start(ctx); err != nil {
		return fmt.Errorf("pipeline: start discovery: %w", err)
	}

	events := d.supervisor.TakeReceiver()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.voteProcessor(gctx, events)
		return nil
	})
	g.Go(func() error {
		d.fleetRefresher(gctx)
		return nil
	})

	<-ctx.Done()
	err := g.Wait()

	d.supervisor.Shutdown()
	if shutdownErr := d.writeStore.Shutdown(context.Background()); shutdownErr != nil {
		d.log.Error("pipeline: store shutdown error", "error", shutdownErr)
	}

	return err
}

// voteProcessor reads VoteEvents from the shared channel, computes
// latency, and writes on a detached goroutine per event so a slow store
// never blocks the channel consumer.
func (d *Driver) voteProcessor(ctx context.Context, events <-chan vote.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			points, malformed := latency.Compute(ev)
			if malformed > 0 {
				metrics.LatencyComputeTotal.WithLabelValues("malformed").Inc()
			}
			for _, p := range points {
				metrics.LatencyComputeTotal.WithLabelValues("success").Inc()
				metrics.LatencySlotsObserved.Observe(float64(p.LatencySlots))
			}
			go func(points []latency.VoteLatency) {
				for _, p := range points {
					d.writeStore.Write(p)
				}
			}(points)
		}
	}
}

// fleetRefresher re-runs discovery on a fixed cadence independent of the
// configured refresh interval, per the driver's periodic diff contract.
func (d *Driver) fleetRefresher(ctx context.Context) {
	ticker := time.NewTicker(fleetRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.discoveryView.Refresh(ctx); err != nil {
				d.log.Warn("pipeline: fleet refresh failed", "error", err)
			}
		}
	}
}
