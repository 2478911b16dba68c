package config

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnvOverlay overlays SVLM_-prefixed environment variables onto
// cfg with an explicit os.Getenv check per field rather than a
// reflection-based binder.
func ApplyEnvOverlay(cfg *Config) {
	if v := os.Getenv("SVLM_APP_NAME"); v != "" {
		cfg.App.Name = v
	}
	if v := os.Getenv("SVLM_APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v, ok := envInt("SVLM_APP_WORKER_THREADS"); ok {
		cfg.App.WorkerThreads = v
	}
	if v, ok := envBool("SVLM_APP_DEBUG"); ok {
		cfg.App.Debug = v
	}

	if v := os.Getenv("SVLM_SOLANA_RPC_ENDPOINT"); v != "" {
		cfg.Solana.RPCEndpoint = v
	}
	if v := os.Getenv("SVLM_SOLANA_NETWORK"); v != "" {
		cfg.Solana.Network = v
	}
	if v, ok := envInt("SVLM_SOLANA_TIMEOUT_SECS"); ok {
		cfg.Solana.TimeoutSecs = v
	}
	if v, ok := envInt("SVLM_SOLANA_MAX_CONCURRENT_REQUESTS"); ok {
		cfg.Solana.MaxConcurrentRequests = v
	}

	// SVLM_GRPC_ENDPOINT is also the documented process-start override
	// used directly by the subscription supervisor's endpoint resolution,
	// ahead of this config section entirely; applying it here too keeps
	// `validate-config` honest about what endpoint will actually be used.
	if v := os.Getenv("SVLM_GRPC_ENDPOINT"); v != "" {
		cfg.Grpc.Endpoint = v
	}
	if v := os.Getenv("SVLM_GRPC_ACCESS_TOKEN"); v != "" {
		cfg.Grpc.AccessToken = v
	}
	if v, ok := envInt("SVLM_GRPC_MAX_SUBSCRIPTIONS"); ok {
		cfg.Grpc.MaxSubscriptions = v
	}
	if v, ok := envInt("SVLM_GRPC_CONNECTION_TIMEOUT_SECS"); ok {
		cfg.Grpc.ConnectionTimeoutSecs = v
	}
	if v, ok := envInt("SVLM_GRPC_RECONNECT_INTERVAL_SECS"); ok {
		cfg.Grpc.ReconnectIntervalSecs = v
	}
	if v, ok := envInt("SVLM_GRPC_BUFFER_SIZE"); ok {
		cfg.Grpc.BufferSize = v
	}
	if v, ok := envBool("SVLM_GRPC_ENABLE_TLS"); ok {
		cfg.Grpc.EnableTLS = v
	}

	if v := os.Getenv("SVLM_STORE_URL"); v != "" {
		cfg.Store.URL = v
	}
	if v := os.Getenv("SVLM_STORE_ORG"); v != "" {
		cfg.Store.Org = v
	}
	if v := os.Getenv("SVLM_STORE_TOKEN"); v != "" {
		cfg.Store.Token = v
	}
	if v := os.Getenv("SVLM_STORE_BUCKET"); v != "" {
		cfg.Store.Bucket = v
	}
	if v, ok := envInt("SVLM_STORE_BATCH_SIZE"); ok {
		cfg.Store.BatchSize = v
	}
	if v, ok := envInt("SVLM_STORE_FLUSH_INTERVAL_MS"); ok {
		cfg.Store.FlushIntervalMs = v
	}
	if v, ok := envInt("SVLM_STORE_NUM_WORKERS"); ok {
		cfg.Store.NumWorkers = v
	}
	if v, ok := envBool("SVLM_STORE_ENABLE_COMPRESSION"); ok {
		cfg.Store.EnableCompression = v
	}

	if v, ok := envBool("SVLM_DISCOVERY_ENABLED"); ok {
		cfg.Discovery.Enabled = v
	}
	if v, ok := envInt("SVLM_DISCOVERY_REFRESH_INTERVAL_SECS"); ok {
		cfg.Discovery.RefreshIntervalSecs = v
	}
	if v, ok := envFloat("SVLM_DISCOVERY_MIN_STAKE_SOL"); ok {
		cfg.Discovery.MinStakeSol = v
	}
	if v, ok := envBool("SVLM_DISCOVERY_INCLUDE_DELINQUENT"); ok {
		cfg.Discovery.IncludeDelinquent = v
	}
	if v := os.Getenv("SVLM_DISCOVERY_WHITELIST"); v != "" {
		cfg.Discovery.Whitelist = splitList(v)
	}
	if v := os.Getenv("SVLM_DISCOVERY_BLACKLIST"); v != "" {
		cfg.Discovery.Blacklist = splitList(v)
	}

	if v, ok := envInt("SVLM_LATENCY_WINDOW_SIZE"); ok {
		cfg.Latency.WindowSize = v
	}
	if v, ok := envBool("SVLM_LATENCY_CALCULATE_GLOBAL_STATS"); ok {
		cfg.Latency.CalculateGlobalStats = v
	}
	if v, ok := envInt("SVLM_LATENCY_STATS_INTERVAL_SECS"); ok {
		cfg.Latency.StatsIntervalSecs = v
	}
	if v, ok := envFloat("SVLM_LATENCY_OUTLIER_THRESHOLD"); ok {
		cfg.Latency.OutlierThreshold = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
