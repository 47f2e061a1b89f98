package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crossing/internal/config"
	"github.com/Iron-Ham/crossing/internal/episode"
	"github.com/Iron-Ham/crossing/internal/errors"
	"github.com/Iron-Ham/crossing/internal/metrics"
	"github.com/Iron-Ham/crossing/internal/report"
	"github.com/Iron-Ham/crossing/internal/scenario"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Play a full intersection episode",
	Long: `Run a complete episode for a scenario. Every vehicle runs in its own
goroutine; fleet leaders discover each other, exchange proposals and scores,
and agree on one assignment that all vehicles then follow until they have
crossed the intersection.

Shows:
- The round in which the leaders agreed
- Total scores per proposal and the selected winner
- The final deadlines with each vehicle's delay
- Any zone conflicts observed while driving`,
	RunE: runRun,
}

var (
	runInput       string
	runMetricsAddr string
	runShowMetrics bool
)

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "scenario file (required)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (e.g. :9090)")
	runCmd.Flags().BoolVar(&runShowMetrics, "show-metrics", false, "Print collected metrics after the episode")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	sc, err := scenario.Load(runInput, cfg.Kinematics.FleetLength)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	if runMetricsAddr != "" {
		shutdown, err := serveMetrics(runMetricsAddr, rec)
		if err != nil {
			return err
		}
		defer shutdown()
		logger.Info("serving metrics", "addr", runMetricsAddr)
	}

	ecfg := episode.FromConfig(cfg)
	runner := episode.New(ecfg, episode.WithLogger(logger), episode.WithMetrics(rec))
	res, err := runner.Run(ctx, sc)
	if err != nil {
		return fmt.Errorf("episode failed: %w", err)
	}

	w := report.New(cmd.OutOrStdout(), styled(cmd))
	w.Episode(res)
	w.Assignment("Final assignment", res.Final, sc.States, ecfg.Layout)
	if runShowMetrics {
		samples, err := rec.Samples()
		if err != nil {
			return fmt.Errorf("failed to gather metrics: %w", err)
		}
		w.Metrics(samples)
	}
	return nil
}

// serveMetrics exposes rec on addr and returns a function that stops the
// server.
func serveMetrics(addr string, rec *metrics.Recorder) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
