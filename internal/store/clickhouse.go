package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hellomoon/svlm/internal/clickhouse"
	"github.com/hellomoon/svlm/internal/clickhouse/dataset"
	"github.com/hellomoon/svlm/internal/latency"
)

// voteLatencySchema describes the legacy relational fact table this
// backend writes into; its column order and dedup key mirror the
// fact_vote_latency migration.
type voteLatencySchema struct{}

func (voteLatencySchema) Name() string { return "vote_latency" }

func (voteLatencySchema) Columns() []string {
	return []string{
		"validator_id:VARCHAR",
		"vote_account:VARCHAR",
		"network:VARCHAR",
		"voted_slot:BIGINT",
		"landed_slot:BIGINT",
		"latency_slots:INTEGER",
		"latency_ms:BIGINT",
		"received_at:TIMESTAMP",
		"ingested_at:TIMESTAMP",
	}
}

func (voteLatencySchema) UniqueKeyColumns() []string {
	return []string{"validator_id", "vote_account", "voted_slot"}
}

func (voteLatencySchema) TimeColumn() string           { return "received_at" }
func (voteLatencySchema) PartitionByTime() bool        { return true }
func (voteLatencySchema) DedupMode() dataset.DedupMode { return dataset.DedupReplacing }
func (voteLatencySchema) DedupVersionColumn() string   { return "ingested_at" }

// ClickHouseBackend is the legacy relational store variant: a
// ReplacingMergeTree fact table reached through the same
// clickhouse.Client/dataset.FactDataset machinery the rest of the
// warehouse's fact tables use.
type ClickHouseBackend struct {
	client  clickhouse.Client
	dataset *dataset.FactDataset
	network string
}

// NewClickHouseBackend builds a ClickHouseBackend against an already
// connected client.
func NewClickHouseBackend(log *slog.Logger, client clickhouse.Client, network string) (*ClickHouseBackend, error) {
	ds, err := dataset.NewFactDataset(log, voteLatencySchema{})
	if err != nil {
		return nil, fmt.Errorf("clickhouse store: build dataset: %w", err)
	}
	return &ClickHouseBackend{client: client, dataset: ds, network: network}, nil
}

// Name identifies this backend in metrics labels.
func (b *ClickHouseBackend) Name() string { return "clickhouse" }

// WriteBatch writes batch as a single ClickHouse insert, stamping every
// row with the same ingestion timestamp so the batch shares one dedup
// version.
func (b *ClickHouseBackend) WriteBatch(ctx context.Context, batch []latency.VoteLatency) error {
	if len(batch) == 0 {
		return nil
	}

	ctx = clickhouse.ContextWithSyncInsert(ctx)
	conn, err := b.client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("clickhouse store: acquire connection: %w", err)
	}

	ingestedAt := time.Now()
	return b.dataset.WriteBatch(ctx, conn, len(batch), func(i int) ([]any, error) {
		v := batch[i]
		return []any{
			pubkeyString(v.Validator),
			pubkeyString(v.VoteAccount),
			b.network,
			int64(v.VotedSlot),
			int64(v.LandedSlot),
			int32(v.LatencySlots),
			toLatencyMs(v.LatencySlots),
			time.Unix(0, v.ReceivedAtNs),
			ingestedAt,
		}, nil
	})
}

// Close is a no-op: the connection pool is owned by whoever constructed
// the clickhouse.Client passed to NewClickHouseBackend.
func (b *ClickHouseBackend) Close(ctx context.Context) error { return nil }
