// Command rmmd boots a standalone RMM core: it loads the protocol
// configuration, wires up structured logging and optional OTEL export, then
// decodes and executes one instruction batch against a fresh in-memory
// store. It exists to exercise the dispatcher/instructions stack end to end
// the way a host embedding this module would, not as a production service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"rmmcore/adapters"
	"rmmcore/config"
	"rmmcore/crypto"
	"rmmcore/dispatcher"
	"rmmcore/instructions"
	telemetry "rmmcore/observability/otel"
	"rmmcore/observability/logging"
	"rmmcore/pool"
)

func main() {
	var (
		cfgPath    string
		batchPath  string
		controller string
		riskyAddr  string
		stableAddr string
	)
	flag.StringVar(&cfgPath, "config", "", "path to protocol configuration TOML")
	flag.StringVar(&batchPath, "batch", "", "path to a binary instruction batch to execute")
	flag.StringVar(&controller, "controller", "", "bech32 address the batch executes as (owner of its allocate/deallocate/swap/claim calls)")
	flag.StringVar(&riskyAddr, "risky", "", "bech32 address of the risky token")
	flag.StringVar(&stableAddr, "stable", "", "bech32 address of the stable token")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("RMM_ENV"))
	slogger := logging.Setup("rmmd", env)
	logger := log.New(os.Stdout, "rmmd ", log.LstdFlags|log.Lmsgprefix)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "rmmd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     otlpEndpoint != "",
		Traces:      otlpEndpoint != "",
	})
	if err != nil {
		slogger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if batchPath == "" {
		logger.Fatalf("-batch is required")
	}
	controllerAddr, riskyToken, stableToken, err := resolveAddresses(controller, riskyAddr, stableAddr)
	if err != nil {
		logger.Fatalf("resolve addresses: %v", err)
	}

	payload, err := os.ReadFile(batchPath)
	if err != nil {
		logger.Fatalf("read batch: %v", err)
	}

	store := pool.NewStore()
	d := dispatcher.New(store, adapters.SystemClock{Seconds: wallClockSeconds()}, nil)
	d.Config = cfg
	// rmmd has no live chain backend to resolve transfers against, so the
	// risky/stable legs are backed by an in-memory reference token that
	// always succeeds -- enough to exercise the settlement pass end to end.
	d.RegisterToken(riskyToken, adapters.NewMemoryToken(18))
	d.RegisterToken(stableToken, adapters.NewMemoryToken(18))

	resolver := staticResolver{risky: riskyToken, stable: stableToken}

	digest, err := instructions.Execute(d, resolver, controllerAddr, "", decodeOrFatal(logger, payload))
	if err != nil {
		slogger.Error("batch execution failed", "error", err, "digest", digest)
		os.Exit(1)
	}
	slogger.Info("batch executed", "digest", digest, "instructions", batchPath)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := &config.Config{}
		cfg.EnsureDefaults()
		return cfg, nil
	}
	return config.Load(path)
}

func resolveAddresses(controller, risky, stable string) (crypto.Address, crypto.Address, crypto.Address, error) {
	c, err := crypto.DecodeAddress(controller)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, crypto.Address{}, err
	}
	r, err := crypto.DecodeAddress(risky)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, crypto.Address{}, err
	}
	s, err := crypto.DecodeAddress(stable)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, crypto.Address{}, err
	}
	return c, r, s, nil
}

func decodeOrFatal(logger *log.Logger, payload []byte) []instructions.Instruction {
	instrs, err := instructions.Decode(payload)
	if err != nil {
		logger.Fatalf("decode batch: %v", err)
	}
	return instrs
}

type staticResolver struct {
	risky  crypto.Address
	stable crypto.Address
}

func (r staticResolver) PairTokens(pool.PairID) (crypto.Address, crypto.Address, error) {
	return r.risky, r.stable, nil
}

func wallClockSeconds() int64 {
	// A real host supplies block or request time via adapters.Clock; rmmd
	// has none, so it stamps the batch with the execution wall clock.
	return time.Now().Unix()
}
