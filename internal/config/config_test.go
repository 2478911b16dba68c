package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	cfg.Store.URL = "https://timeseries.example.com"
	cfg.Store.Token = "secret-token"
	return cfg
}

func TestConfig_Validate_Valid(t *testing.T) {
	t.Parallel()
	require.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_RejectsBadNetwork(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Solana.Network = "localnet"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsPrivateRPCHost(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Solana.RPCEndpoint = "http://10.0.0.5:8899"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_AllowsLocalhostStoreURL(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Store.URL = "http://localhost:8086"
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsEmptyStoreToken(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Store.Token = ""
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsMalformedWhitelistPubkey(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Discovery.Whitelist = []string{"not-a-pubkey"}
	require.Error(t, cfg.Validate())
}

func TestConfig_ApplyEnvOverlay(t *testing.T) {
	t.Setenv("SVLM_APP_LOG_LEVEL", "debug")
	t.Setenv("SVLM_GRPC_ENDPOINT", "https://override.example.com:2083")
	t.Setenv("SVLM_DISCOVERY_MIN_STAKE_SOL", "123.5")

	cfg := Default()
	ApplyEnvOverlay(cfg)

	require.Equal(t, "debug", cfg.App.LogLevel)
	require.Equal(t, "https://override.example.com:2083", cfg.Grpc.Endpoint)
	require.InDelta(t, 123.5, cfg.Discovery.MinStakeSol, 0.0001)
}

func TestConfig_Load_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load("/nonexistent/path/to/config.toml")
	require.Error(t, err)
}

func TestValidatePubkey(t *testing.T) {
	t.Parallel()
	// 32 zero bytes base58-encode to 32 '1' characters (the System Program ID).
	require.NoError(t, ValidatePubkey(strings.Repeat("1", 32)))
	require.Error(t, ValidatePubkey("not-a-pubkey"))
}
