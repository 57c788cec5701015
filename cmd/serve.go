package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/analyzer"
	"github.com/spigell/interview-scorer/internal/metrics"
	"github.com/spigell/interview-scorer/internal/server"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "listen address, overrides server.addr")
	serveCmd.Flags().String("store", "", "session store driver: redis or memory")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("store.driver", serveCmd.Flags().Lookup("store"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the interview-scorer", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	parts, err := buildComponents(ctx, config, m, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer parts.close()

	an := analyzer.New(config.Analyzers, logger)
	logger.Info("modality analyzers", zap.Any("configured", an.Configured()))

	srv := server.New(config.Server, server.Deps{
		Service:  parts.service,
		Analyzer: an,
		Recorder: m,
		Gatherer: reg,
		Logger:   logger,
	})

	if err := srv.Run(ctx, shutdownGrace); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}

// redacted returns a copy of config that is safe to log.
func redacted(config *Config) Config {
	c := *config
	if c.Store.Redis.Password != "" {
		c.Store.Redis.Password = "***"
	}
	if c.AI.Gemini != nil {
		g := *c.AI.Gemini
		if g.APIKey != "" {
			g.APIKey = "***"
		}
		c.AI.Gemini = &g
	}
	if c.AI.Judge != nil {
		j := *c.AI.Judge
		if j.APIKey != "" {
			j.APIKey = "***"
		}
		c.AI.Judge = &j
	}
	return c
}
