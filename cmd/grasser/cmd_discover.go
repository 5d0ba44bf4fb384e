package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanpl/grasser/internal/cloudflare"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Resolve and print the Cloudflare account id for the API key",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().Duration("timeout", 30*time.Second, "Discovery timeout")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := cloudflare.NewClientFromConfig(cfg.Cloudflare)
	id, err := client.Discover(ctx)
	if err != nil {
		return fmt.Errorf("account discovery: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
