package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smartrouter/internal/logger"
	"smartrouter/internal/server"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SmartRouter HTTP API",
	Long: `Start the HTTP API exposing health/status probes, the route endpoint,
and the due-reviews queue over REST.

Examples:
  smartrouter serve
  smartrouter serve --port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "HTTP server host (default from config)")
}

func runServe(ctx context.Context) error {
	log := logger.Get()

	p, err := buildPipeline(cfgFile)
	if err != nil {
		return err
	}
	defer p.Close()

	serverCfg := p.cfg.Server
	if servePort != 0 {
		serverCfg.Port = servePort
	}
	if serveHost != "" {
		serverCfg.Host = serveHost
	}

	srv := server.New(serverCfg, p.validator, p.router, p.sched, p.idx)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("host", serverCfg.Host).Int("port", serverCfg.Port).Msg("server listening")
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		log.Info().Msg("server stopped")
	}
	return nil
}
