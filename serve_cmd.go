package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxcache/voxcache/internal/httpapi"
)

var refreshInterval time.Duration

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve synthesized speech over HTTP",
	Long:    paragraph(fmt.Sprintf("\n%s text to speech on GET /transform?text=...&effects=... and list cached voices on GET /records.", keyword("Serve"))),
	Example: paragraph("voxcache serve\nvoxcache serve --listen 127.0.0.1:9000"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on")
	serveCmd.Flags().DurationVar(&refreshInterval, "refresh", time.Minute, "how often to retry an unavailable voice provider (0 disables)")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func serve(ctx context.Context) error {
	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Error("Unable to flush voice index", "err", err)
		}
	}()

	p.polly.StartRefresh(ctx, refreshInterval)
	watchConfig()

	logger := log.Default().WithPrefix("http")
	router := httpapi.NewRouter(p.orchestrator, p.store, p.metrics.Handler(), logger)
	srv := httpapi.NewServer(httpapi.ServerConfig{Addr: cfg.Listen}, router, logger)

	log.Info("Starting voxcache", "listen", cfg.Listen, "data_dir", cfg.DataDir, "records", p.store.Len())
	return srv.Run(ctx)
}
