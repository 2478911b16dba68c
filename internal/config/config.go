// Package config loads SVLM's configuration from a TOML file plus an
// SVLM_-prefixed environment overlay, and validates the result before
// any component is constructed from it.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/hellomoon/svlm/internal/svlmerr"
)

// AppConfig is the [app] section.
type AppConfig struct {
	Name          string `toml:"name"`
	LogLevel      string `toml:"log_level"`
	WorkerThreads int    `toml:"worker_threads"`
	Debug         bool   `toml:"debug"`
}

// SolanaConfig is the [solana] section: the cluster-roster RPC endpoint.
type SolanaConfig struct {
	RPCEndpoint           string `toml:"rpc_endpoint"`
	Network               string `toml:"network"`
	TimeoutSecs           int    `toml:"timeout_secs"`
	MaxConcurrentRequests int    `toml:"max_concurrent_requests"`
}

// GrpcConfig is the [grpc] section: the CDC subscription transport.
type GrpcConfig struct {
	Endpoint              string `toml:"endpoint"`
	AccessToken           string `toml:"access_token"`
	MaxSubscriptions      int    `toml:"max_subscriptions"`
	ConnectionTimeoutSecs int    `toml:"connection_timeout_secs"`
	ReconnectIntervalSecs int    `toml:"reconnect_interval_secs"`
	BufferSize            int    `toml:"buffer_size"`
	EnableTLS             bool   `toml:"enable_tls"`
}

// StoreConfig is the [store] section: the time-series writer's backend.
type StoreConfig struct {
	URL               string `toml:"url"`
	Org               string `toml:"org"`
	Token             string `toml:"token"`
	Bucket            string `toml:"bucket"`
	BatchSize         int    `toml:"batch_size"`
	FlushIntervalMs   int    `toml:"flush_interval_ms"`
	NumWorkers        int    `toml:"num_workers"`
	EnableCompression bool   `toml:"enable_compression"`
}

// DiscoveryConfig is the [discovery] section.
type DiscoveryConfig struct {
	Enabled             bool     `toml:"enabled"`
	RefreshIntervalSecs int      `toml:"refresh_interval_secs"`
	MinStakeSol         float64  `toml:"min_stake_sol"`
	IncludeDelinquent   bool     `toml:"include_delinquent"`
	Whitelist           []string `toml:"whitelist"`
	Blacklist           []string `toml:"blacklist"`
}

// LatencyConfig is the [latency] section.
type LatencyConfig struct {
	WindowSize           int     `toml:"window_size"`
	CalculateGlobalStats bool    `toml:"calculate_global_stats"`
	StatsIntervalSecs    int     `toml:"stats_interval_secs"`
	OutlierThreshold     float64 `toml:"outlier_threshold"`
}

// Config is the fully resolved configuration driving a pipeline run.
type Config struct {
	App       AppConfig       `toml:"app"`
	Solana    SolanaConfig    `toml:"solana"`
	Grpc      GrpcConfig      `toml:"grpc"`
	Store     StoreConfig     `toml:"store"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Latency   LatencyConfig   `toml:"latency"`
}

// Default returns a Config populated with the documented defaults,
// before a file or environment overlay is applied.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:     "svlm",
			LogLevel: "info",
		},
		Solana: SolanaConfig{
			Network:               "mainnet-beta",
			TimeoutSecs:           30,
			MaxConcurrentRequests: 8,
		},
		Grpc: GrpcConfig{
			MaxSubscriptions:      1000,
			ConnectionTimeoutSecs: 30,
			ReconnectIntervalSecs: 5,
			BufferSize:            10_000,
		},
		Store: StoreConfig{
			BatchSize:       5_000,
			FlushIntervalMs: 100,
			NumWorkers:      4,
		},
		Discovery: DiscoveryConfig{
			Enabled:             true,
			RefreshIntervalSecs: 300,
		},
		Latency: LatencyConfig{
			WindowSize: 1000,
		},
	}
}

// Load reads path as TOML over the defaults, applies the SVLM_ environment
// overlay, validates the result, and returns it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if os.IsNotExist(err) {
				return nil, svlmerr.New(svlmerr.KindConfig, "config.Load", fmt.Errorf("config file %q not found: %w", path, err))
			}
			return nil, svlmerr.New(svlmerr.KindConfig, "config.Load", fmt.Errorf("parsing %q: %w", path, err))
		}
	}

	ApplyEnvOverlay(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
