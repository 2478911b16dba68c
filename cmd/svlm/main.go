package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/hellomoon/svlm/internal/clickhouse"
	"github.com/hellomoon/svlm/internal/config"
	"github.com/hellomoon/svlm/internal/discovery"
	"github.com/hellomoon/svlm/internal/healthserver"
	"github.com/hellomoon/svlm/internal/logger"
	"github.com/hellomoon/svlm/internal/metrics"
	"github.com/hellomoon/svlm/internal/pipeline"
	"github.com/hellomoon/svlm/internal/solanarpc"
	"github.com/hellomoon/svlm/internal/store"
	"github.com/hellomoon/svlm/internal/subscription"
)

// Populated by the release build via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: expected a subcommand (run, validate-config, list-validators)")
		return 1
	}

	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "run":
		err = runCommand(rest)
	case "validate-config":
		err = validateConfigCommand(rest)
	case "list-validators":
		err = listValidatorsCommand(rest)
	default:
		err = fmt.Errorf("unknown subcommand %q (want run, validate-config, or list-validators)", sub)
	}

	if errors.Is(err, errInterrupted) {
		return 130
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// errInterrupted signals that "run" stopped because of SIGINT/SIGTERM
// rather than a failure, so main can report the conventional 128+SIGINT
// exit code instead of 1.
var errInterrupted = errors.New("interrupted")

func resolveConfig(configPath, logLevelOverride string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevelOverride != "" {
		cfg.App.LogLevel = logLevelOverride
	}
	return cfg, nil
}

func validateConfigCommand(args []string) error {
	flags := flag.NewFlagSet("validate-config", flag.ContinueOnError)
	configFlag := flags.String("config", "", "path to the TOML config file")
	logLevelFlag := flags.String("log-level", "", "override app.log_level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveConfig(*configFlag, *logLevelFlag)
	if err != nil {
		return err
	}

	endpoint, err := subscription.ResolveEndpoint(os.Getenv("SVLM_GRPC_ENDPOINT"), cfg.Grpc.Endpoint, cfg.Solana.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("resolve gRPC endpoint: %w", err)
	}

	fmt.Printf("config OK: solana.network=%s grpc.buffer_size=%d discovery.min_stake_sol=%.2f\n",
		cfg.Solana.Network, cfg.Grpc.BufferSize, cfg.Discovery.MinStakeSol)
	fmt.Printf("resolved CDC endpoint: %s\n", endpoint)
	return nil
}

func listValidatorsCommand(args []string) error {
	flags := flag.NewFlagSet("list-validators", flag.ContinueOnError)
	configFlag := flags.String("config", "", "path to the TOML config file")
	logLevelFlag := flags.String("log-level", "", "override app.log_level")
	rpcURLFlag := flags.String("rpc-url", "", "Solana RPC endpoint to query (overrides solana.rpc_endpoint)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveConfig(*configFlag, *logLevelFlag)
	if err != nil {
		return err
	}
	rpcURL := cfg.Solana.RPCEndpoint
	if *rpcURLFlag != "" {
		rpcURL = *rpcURLFlag
	}

	client := solanarpc.New(rpcURL, time.Duration(cfg.Solana.TimeoutSecs)*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	roster, err := client.FetchVoteAccounts(ctx)
	if err != nil {
		return fmt.Errorf("fetch vote accounts: %w", err)
	}

	filter := discovery.NewFilter(cfg.Discovery.MinStakeSol, cfg.Discovery.IncludeDelinquent, cfg.Discovery.Whitelist, cfg.Discovery.Blacklist)
	active := filter.Apply(roster)

	fmt.Printf("%d validators admitted (of %d current, %d delinquent)\n", len(active), len(roster.Current), len(roster.Delinquent))
	for _, v := range active {
		fmt.Printf("%-44s  vote=%-44s  stake_lamports=%d  delinquent=%v\n", v.IdentityKey, v.VoteAccountKey, v.StakeLamports, v.Delinquent)
	}
	return nil
}

func runCommand(args []string) error {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	configFlag := flags.String("config", "", "path to the TOML config file")
	logLevelFlag := flags.String("log-level", "", "override app.log_level")
	workersFlag := flags.Int("workers", 0, "override store.num_workers")
	backendFlag := flags.String("backend", "influx", "time-series backend: influx or clickhouse")
	healthAddrFlag := flags.String("health-addr", ":9090", "address the /healthz, /readyz, /version server listens on")

	chAddrFlag := flags.String("clickhouse-addr", "", "ClickHouse address (host:port), required when --backend=clickhouse")
	chDatabaseFlag := flags.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name")
	chUsernameFlag := flags.String("clickhouse-username", "default", "ClickHouse username")
	chPasswordFlag := flags.String("clickhouse-password", "", "ClickHouse password")
	chSecureFlag := flags.Bool("clickhouse-secure", false, "enable TLS for ClickHouse Cloud")

	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveConfig(*configFlag, *logLevelFlag)
	if err != nil {
		return err
	}
	if *workersFlag > 0 {
		cfg.Store.NumWorkers = *workersFlag
	}

	log := logger.New(cfg.App.LogLevel)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := buildBackend(ctx, log, cfg, *backendFlag, *chAddrFlag, *chDatabaseFlag, *chUsernameFlag, *chPasswordFlag, *chSecureFlag)
	if err != nil {
		return err
	}

	endpoint, err := subscription.ResolveEndpoint(os.Getenv("SVLM_GRPC_ENDPOINT"), cfg.Grpc.Endpoint, cfg.Solana.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("resolve gRPC endpoint: %w", err)
	}

	driver, err := pipeline.New(log, cfg, backend, endpoint)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	health := healthserver.New(log, healthserver.Config{
		ListenAddr: *healthAddrFlag,
		Version:    healthserver.VersionInfo{Version: version, Commit: commit, Date: date},
	}, driver.Ready)

	errCh := make(chan error, 2)
	go func() { errCh <- driver.Run(ctx) }()
	go func() { errCh <- health.Run(ctx) }()

	// Both tasks return when ctx is cancelled; a task failing early is
	// itself grounds to unwind the other one.
	var firstErr error
	for i := 0; i < 2; i++ {
		if e := <-errCh; e != nil && firstErr == nil {
			firstErr = e
			stop()
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if ctx.Err() != nil {
		log.Info("run: shutdown signal received, drained")
		return errInterrupted
	}
	return nil
}

func buildBackend(ctx context.Context, log *slog.Logger, cfg *config.Config, backend, chAddr, chDatabase, chUsername, chPassword string, chSecure bool) (store.Backend, error) {
	switch backend {
	case "clickhouse":
		if chAddr == "" {
			return nil, fmt.Errorf("--clickhouse-addr is required for --backend=clickhouse")
		}
		migrationCfg := clickhouse.MigrationConfig{
			Addr:     chAddr,
			Database: chDatabase,
			Username: chUsername,
			Password: chPassword,
			Secure:   chSecure,
		}
		if err := clickhouse.Up(ctx, log, migrationCfg); err != nil {
			return nil, fmt.Errorf("clickhouse: run migrations: %w", err)
		}
		client, err := clickhouse.NewClient(ctx, log, chAddr, chDatabase, chUsername, chPassword, chSecure)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: connect: %w", err)
		}
		return store.NewClickHouseBackend(log, client, cfg.Solana.Network)
	case "influx", "":
		return store.NewInfluxBackend(cfg.Store.URL, cfg.Store.Token, cfg.Store.Bucket, cfg.Solana.Network)
	default:
		return nil, fmt.Errorf("unknown backend %q (want influx or clickhouse)", backend)
	}
}
