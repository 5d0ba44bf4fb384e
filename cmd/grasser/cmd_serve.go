package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yanpl/grasser/internal/chat"
	"github.com/yanpl/grasser/internal/cloudflare"
	"github.com/yanpl/grasser/internal/monitoring"
	"github.com/yanpl/grasser/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket chat server with AI rewriting",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := cloudflare.NewClientFromConfig(cfg.Cloudflare)
	if cfg.ChatModifier.Enabled {
		// Startup does not wait for discovery; rewrites fail with
		// "account not available" until it succeeds.
		discovered := client.DiscoverAsync(ctx)
		go func() {
			if err := <-discovered; err != nil {
				log.Warn().Err(err).Msg("chat rewriting unavailable until restart")
			}
		}()
	}

	loop := server.NewLoop()
	hub := server.NewHub(loop)
	metrics := monitoring.NewMetricsCollector()

	interceptor := chat.NewInterceptor(chat.OptionsFromConfig(cfg.ChatModifier), client, loop, metrics)
	defer interceptor.Close()
	hub.AddListener(interceptor)
	hub.OnQuit(interceptor.OnQuit)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Server.Addr, hub.Handler(metrics))
	})

	err = g.Wait()
	log.Info().Interface("stats", metrics.Stats()).Msg("chat server stopped")
	return err
}
