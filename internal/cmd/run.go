package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/srediag/regionshm/internal/config"
	"github.com/srediag/regionshm/internal/logging"
	"github.com/srediag/regionshm/internal/report"
	"github.com/srediag/regionshm/pkg/health"
	"github.com/srediag/regionshm/pkg/supervisor"
)

const shutdownTimeout = 2 * time.Second

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create the shared buffer and locks, run the worker fleet, tear down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(v, v.GetString("config")); err != nil {
				return withExitCode(1, err)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return withExitCode(1, err)
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("metrics-addr", "", "serve /metrics, /live and /ready on this address")
	cmd.Flags().Duration("ceiling", supervisor.DefaultCeiling, "global lifetime ceiling")
	cmd.Flags().Duration("tick", supervisor.DefaultTick, "supervision polling interval")
	_ = v.BindPFlag("supervisor.metrics_addr", cmd.Flags().Lookup("metrics-addr"))
	_ = v.BindPFlag("supervisor.ceiling", cmd.Flags().Lookup("ceiling"))
	_ = v.BindPFlag("supervisor.tick", cmd.Flags().Lookup("tick"))
	return cmd
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return withExitCode(1, err)
	}
	defer func() { _ = logger.Sync() }()

	scfg, err := cfg.SupervisorConfig()
	if err != nil {
		return withExitCode(1, err)
	}
	metrics := supervisor.NewPrometheusMetricsCollector(cfg.Supervisor.MetricsNamespace)
	spawner := supervisor.NewExecSpawner()
	spawner.Env = append(spawner.Env, logging.Environ(cfg.Logging)...)
	sup, err := supervisor.New(scfg,
		supervisor.WithLogger(logger.Named("supervisor")),
		supervisor.WithMetricsCollector(metrics),
		supervisor.WithSpawner(spawner))
	if err != nil {
		return withExitCode(1, err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	terminated := make(chan os.Signal, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case sig := <-signals:
			if err := sup.Terminate(sig); err != nil {
				logger.Warn("teardown after signal incomplete", zap.Error(err))
			}
			terminated <- sig
		case <-done:
		}
	}()

	// exit maps a failed step to its exit code, 128+signo when a signal
	// already tore everything down.
	exit := func(err error) error {
		if errors.Is(err, supervisor.ErrTerminated) {
			sig := <-terminated
			logger.Warn("stopped by signal", zap.Stringer("signal", sig))
			return withExitCode(128+signalNumber(sig), nil)
		}
		return withExitCode(1, err)
	}

	if err := sup.Setup(ctx); err != nil {
		return exit(err)
	}
	rows, err := sup.Rows(cfg.Buffer.RowWidth)
	if err != nil {
		return exit(err)
	}
	_ = report.WriteDump(out, "Initial buffer", rows)

	if addr := cfg.Supervisor.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           health.NewMux(health.NewHandler(sup, metrics.Registry(), cfg.Supervisor.MetricsNamespace), metrics.Registry()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if _, err := sup.SpawnAll(ctx); err != nil {
		return exit(err)
	}
	if err := sup.Supervise(ctx); err != nil {
		if !errors.Is(err, supervisor.ErrTerminated) {
			err = errors.Join(err, sup.Terminate(syscall.SIGTERM))
		}
		return exit(err)
	}

	_ = report.WriteSummary(out, sup.Configs())
	if rows, err := sup.Rows(cfg.Buffer.RowWidth); err == nil {
		_ = report.WriteDump(out, "Final buffer", rows)
	}
	if err := sup.Teardown(); err != nil {
		logger.Warn("teardown incomplete", zap.Error(err))
	}
	return nil
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return int(syscall.SIGTERM)
}
