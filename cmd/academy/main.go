package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Solstice-Labs/academy/core/pkg/api"
	"github.com/Solstice-Labs/academy/core/pkg/archive"
	"github.com/Solstice-Labs/academy/core/pkg/auth"
	"github.com/Solstice-Labs/academy/core/pkg/config"
	"github.com/Solstice-Labs/academy/core/pkg/content"
	"github.com/Solstice-Labs/academy/core/pkg/engine"
	"github.com/Solstice-Labs/academy/core/pkg/ledger"
	"github.com/Solstice-Labs/academy/core/pkg/model"
	"github.com/Solstice-Labs/academy/core/pkg/observability"
	"github.com/Solstice-Labs/academy/core/pkg/xpcap"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stdout, stderr)
	case "seed":
		return runSeedCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServer(stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Academy Core")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  academy <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  server   Run the academy API server (default)")
	fmt.Fprintln(w, "  seed     Register courses from a seed manifest")
	fmt.Fprintln(w, "  token    Issue an admin token from ADMIN_TOKEN_SECRET")
	fmt.Fprintln(w, "  health   Check server health (HTTP)")
	fmt.Fprintln(w, "  help     Show this help")
	fmt.Fprintln(w, "")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// buildEngine wires the adapters from the environment and returns the
// engine plus the pieces the callers expose directly.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Engine, content.Store, *observability.Provider, error) {
	store, err := content.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("content store: %w", err)
	}

	arc, err := archive.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("archive: %w", err)
	}

	var caps xpcap.Accumulator
	if cfg.RedisAddr != "" {
		caps = xpcap.NewRedisAccumulator(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		logger.Info("daily cap accumulator: redis", "addr", cfg.RedisAddr)
	} else {
		caps = xpcap.NewMemoryAccumulator()
		logger.Info("daily cap accumulator: in-memory")
	}

	var lgr ledger.Ledger = ledger.NewMemory(model.Config{
		Authority:    "academy-authority",
		MaxDailyXP:   500,
		SeasonClosed: true,
	})
	lgr = ledger.NewThrottled(lgr, cfg.LedgerRPS, int(cfg.LedgerRPS)+1)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "academy-core",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.MetricsEnabled,
		Insecure:       true,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("observability: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Ledger:   lgr,
		Store:    store,
		Archive:  arc,
		Caps:     caps,
		Recorder: obs,
		Logger:   logger,
		Workers:  cfg.Workers,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, store, obs, nil
}

func runServer(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.AdminTokenSecret == "" {
		fmt.Fprintln(stderr, "ADMIN_TOKEN_SECRET is required")
		return 2
	}

	eng, store, obs, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	verifier := auth.NewVerifier([]byte(cfg.AdminTokenSecret))
	server := api.NewServer(eng, store, verifier, logger)
	limiter := api.NewGlobalRateLimiter(50, 100)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("academy server listening", "port", cfg.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server failed", "err", err)
		return 1
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
		return 1
	}
	return 0
}

func runSeedCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var manifestPath string
	cmd.StringVar(&manifestPath, "manifest", "", "Path to seed manifest YAML (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if manifestPath == "" {
		fmt.Fprintln(stderr, "Error: --manifest is required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	manifest, err := config.LoadSeedManifest(manifestPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	eng, _, obs, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	seeds := make([]engine.SeedCourse, 0, len(manifest.Courses))
	for _, c := range manifest.Courses {
		seeds = append(seeds, engine.SeedCourse{Course: c.Course(), Content: c.Content()})
	}

	res, err := eng.SeedCourses(ctx, auth.Capability("seed-cli"), seeds)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "created: %d  skipped: %d  failed: %d\n", res.Uploaded, res.Skipped, res.Failed)
	for _, f := range res.Failures {
		fmt.Fprintf(stdout, "  %s: %s\n", f.CourseID, f.Reason)
	}
	if res.Failed > 0 {
		return 1
	}
	return 0
}

func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		subject string
		ttl     time.Duration
	)
	cmd.StringVar(&subject, "subject", "admin", "Token subject")
	cmd.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	secret := os.Getenv("ADMIN_TOKEN_SECRET")
	if secret == "" {
		fmt.Fprintln(stderr, "ADMIN_TOKEN_SECRET is required")
		return 2
	}

	token, err := auth.NewVerifier([]byte(secret)).Issue(subject, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runHealthCmd(out, errOut io.Writer) int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	resp, err := http.Get("http://localhost:" + port + "/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}
