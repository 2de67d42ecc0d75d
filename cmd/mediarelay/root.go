package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	serverURL  string
	apiKey     string
	jsonOutput bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "mediarelay",
	Short: "CLI client for the mediarelay server",
	Long: `mediarelay - CLI client for the mediarelay server

Extract media from web pages, download it and push it to public
file hosts, either synchronously or as queued jobs.

Run 'mediarelayd' to start the server daemon.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("MEDIARELAY_SERVER", "http://localhost:3000"), "Server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("MEDIARELAY_API_KEY"), "API key sent as X-API-Key")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Request timeout")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("mediarelay {{.Version}}\n")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *Client {
	return NewClient(serverURL, apiKey, timeout)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
