package main

import (
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yanpl/grasser/internal/config"
	"github.com/yanpl/grasser/internal/monitoring"
)

// loadConfig reads --config and installs logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, io.Closer, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	closer, err := monitoring.SetupLogging(monitoring.LoggerConfig{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Debug:  debug,
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("config", path).
		Bool("enabled", cfg.ChatModifier.Enabled).
		Str("model", cfg.Cloudflare.ModelID).
		Str("api_key", monitoring.MaskKey(cfg.Cloudflare.APIKey)).
		Msg("config loaded")
	return cfg, closer, nil
}
