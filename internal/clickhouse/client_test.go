package clickhouse_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hellomoon/svlm/internal/clickhouse"
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

func TestNewClient_PingsSuccessfully(t *testing.T) {
	t.Parallel()
	info := testutil.NewClickHouseClientWithInfo(t, sharedDB)
	require.NotNil(t, info.Client)
}

func TestUp_CreatesFactVoteLatencyTable(t *testing.T) {
	t.Parallel()
	info := testutil.NewClickHouseClientWithInfo(t, sharedDB)

	conn, err := info.Client.Conn(t.Context())
	require.NoError(t, err)

	rows, err := conn.Query(t.Context(), "EXISTS TABLE fact_vote_latency")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var exists uint8
	require.NoError(t, rows.Scan(&exists))
	require.Equal(t, uint8(1), exists, "running migrations should provision fact_vote_latency")
}

func TestMigrationConfig_RejectsUnreachableAddr(t *testing.T) {
	t.Parallel()
	err := clickhouse.Up(context.Background(), testutil.NewLogger(), clickhouse.MigrationConfig{
		Addr:     "127.0.0.1:1",
		Database: "default",
		Username: "default",
	})
	require.Error(t, err)
}
