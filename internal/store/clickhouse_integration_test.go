package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hellomoon/svlm/internal/latency"
	"github.com/hellomoon/svlm/internal/testutil"
)

var sharedClickHouseDB *testutil.ClickHouseDB

func TestMain(m *testing.M) {
	log := testutil.NewLogger()
	var err error
	sharedClickHouseDB, err = testutil.NewClickHouseDB(context.Background(), log, nil)
	if err != nil {
		log.Error("failed to start ClickHouse test container", "error", err)
		os.Exit(1)
	}
	code := m.Run()
	sharedClickHouseDB.Close()
	os.Exit(code)
}

func TestClickHouseBackend_WriteBatch_PersistsRows(t *testing.T) {
	t.Parallel()
	info := testutil.NewClickHouseClientWithInfo(t, sharedClickHouseDB)

	backend, err := NewClickHouseBackend(testutil.NewLogger(), info.Client, "testnet")
	require.NoError(t, err)

	batch := []latency.VoteLatency{sampleLatency(1), sampleLatency(2)}
	require.NoError(t, backend.WriteBatch(t.Context(), batch))

	conn, err := info.Client.Conn(t.Context())
	require.NoError(t, err)

	rows, err := conn.Query(t.Context(), "SELECT count() FROM fact_vote_latency")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var count uint64
	require.NoError(t, rows.Scan(&count))
	require.Equal(t, uint64(2), count, "each VoteLatency in the batch should land as one row")
}
