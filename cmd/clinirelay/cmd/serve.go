package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
	"github.com/harunnryd/clinirelay/pkg/observers"
	"github.com/harunnryd/clinirelay/pkg/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := relay.LoadConfig(cfgFile)
		if err != nil {
			printError("load config", err)
			return err
		}
		logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
		logger = logger.With(slog.String("environment", cfg.Environment))

		obs := metrics.NewAsyncObserver(metrics.NewMultiObserver(
			metrics.NewLoggerObserver(logger),
			observers.NewLatencyObserver(logger, cfg.Pipeline.Retention),
		), 1024)
		defer obs.Close()

		r, err := relay.New(relay.Options{Config: cfg, Logger: logger, Observer: obs})
		if err != nil {
			printError("build relay", err)
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := r.Run(ctx, os.Stdout); err != nil {
			logger.Error("relay_stopped_with_error", slog.String("error", err.Error()))
			return err
		}
		logger.Info("relay_stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
