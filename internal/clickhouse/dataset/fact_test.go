package dataset

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hellomoon/svlm/internal/testutil"
)

var sharedDB *testutil.ClickHouseDB

func TestMain(m *testing.M) {
	log := testutil.NewLogger()
	var err error
	sharedDB, err = testutil.NewClickHouseDB(context.Background(), log, nil)
	if err != nil {
		log.Error("failed to start ClickHouse test container", "error", err)
		os.Exit(1)
	}
	code := m.Run()
	sharedDB.Close()
	os.Exit(code)
}

// sampleSchema mirrors the shape of the vote_latency fact table without
// depending on internal/store, to keep this package's tests self-contained.
type sampleSchema struct{}

func (sampleSchema) Name() string { return "sample_events" }
func (sampleSchema) Columns() []string {
	return []string{
		"id:BIGINT",
		"label:VARCHAR",
		"observed_at:TIMESTAMP",
	}
}
func (sampleSchema) UniqueKeyColumns() []string { return []string{"id"} }
func (sampleSchema) TimeColumn() string         { return "observed_at" }
func (sampleSchema) PartitionByTime() bool      { return false }
func (sampleSchema) DedupMode() DedupMode       { return DedupNone }
func (sampleSchema) DedupVersionColumn() string { return "" }

func TestFactDataset_WriteBatch_RoundTrips(t *testing.T) {
	t.Parallel()
	log := testutil.NewLogger()
	client := testutil.NewClickHouseClient(t, sharedDB)

	ds, err := NewFactDataset(log, sampleSchema{})
	require.NoError(t, err)

	conn, err := client.Conn(t.Context())
	require.NoError(t, err)

	ddl, err := ds.CreateTableDDL()
	require.NoError(t, err)
	require.NoError(t, conn.Exec(t.Context(), ddl))

	observedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err = ds.WriteBatch(t.Context(), conn, 3, func(i int) ([]any, error) {
		return []any{int64(i), "event", observedAt.Add(time.Duration(i) * time.Second)}, nil
	})
	require.NoError(t, err)

	rows, err := conn.Query(t.Context(), "SELECT count() FROM "+ds.TableName())
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var count uint64
	require.NoError(t, rows.Scan(&count))
	require.Equal(t, uint64(3), count)
}
