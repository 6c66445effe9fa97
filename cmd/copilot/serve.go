package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/feed-copilot/internal/config"
	"github.com/jonathan/feed-copilot/internal/server"
	"github.com/jonathan/feed-copilot/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local message service",
	Long: `Start an HTTP server exposing POST /messages, which writes a suggested
first message for a profile's titles with the configured language model.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := a.newLLM(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	port := a.cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	srv, err := server.New(server.Config{
		Port:              port,
		RateLimit:         rateLimitConfig(a.cfg.Server.RateLimit),
		GenerationTimeout: a.cfg.Server.GenerationTimeout,
	}, client, a.logger.Named("server"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// rateLimitConfig applies the configured message budget to the default rules.
func rateLimitConfig(c config.RateLimitConfig) ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	rl.Enabled = c.Enabled
	rl.Exempt = c.Exempt
	for i, rule := range rl.Rules {
		if rule.Path == "/messages" {
			rl.Rules[i].Limit = c.Limit
			rl.Rules[i].Window = c.Window
			rl.Rules[i].Burst = c.Burst
		}
	}
	return rl
}
