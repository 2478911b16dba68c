package store

import (
	"context"
	"fmt"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
	"github.com/mr-tron/base58"

	"github.com/hellomoon/svlm/internal/latency"
)

const (
	measurementName  = "vote_latency"
	truncatedKeyRune = 16 // truncated base58 pubkey length for low-cardinality tags
)

// InfluxBackend is the forward-path time-series writer.
type InfluxBackend struct {
	client  *influxdb3.Client
	network string
}

// NewInfluxBackend dials an InfluxDB 3 instance at url, authenticating
// with token and writing into database.
func NewInfluxBackend(url, token, database, network string) (*InfluxBackend, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     url,
		Token:    token,
		Database: database,
	})
	if err != nil {
		return nil, fmt.Errorf("influx: new client: %w", err)
	}
	return &InfluxBackend{client: client, network: network}, nil
}

// Name identifies this backend in metrics labels.
func (b *InfluxBackend) Name() string { return "influx" }

// WriteBatch encodes each VoteLatency as a point per the record encoding
// contract and writes the batch in one call.
func (b *InfluxBackend) WriteBatch(ctx context.Context, batch []latency.VoteLatency) error {
	points := make([]*influxdb3.Point, 0, len(batch))
	for _, v := range batch {
		points = append(points, b.toPoint(v))
	}
	if err := b.client.WritePoints(ctx, points); err != nil {
		return fmt.Errorf("influx: write points: %w", err)
	}
	return nil
}

func (b *InfluxBackend) toPoint(v latency.VoteLatency) *influxdb3.Point {
	return influxdb3.NewPointWithMeasurement(measurementName).
		SetTag("validator_id", truncate(pubkeyString(v.Validator))).
		SetTag("vote_account", truncate(pubkeyString(v.VoteAccount))).
		SetTag("network", b.network).
		SetIntegerField("latency_slots", int64(v.LatencySlots)).
		SetIntegerField("voted_slot", int64(v.VotedSlot)).
		SetIntegerField("landed_slot", int64(v.LandedSlot)).
		SetIntegerField("latency_ms", toLatencyMs(v.LatencySlots)).
		SetTimestamp(time.Unix(0, v.ReceivedAtNs))
}

// Close releases the underlying HTTP client.
func (b *InfluxBackend) Close(ctx context.Context) error {
	return b.client.Close()
}

func truncate(s string) string {
	if len(s) <= truncatedKeyRune {
		return s
	}
	return s[:truncatedKeyRune]
}

func pubkeyString(b [32]byte) string {
	return base58.Encode(b[:])
}
