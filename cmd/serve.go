package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/constants"
	"github.com/kozaktomas/photo-curator/internal/journal"
	"github.com/kozaktomas/photo-curator/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Photo Curator HTTP API.
Runs are started with POST /api/v1/runs and their progress is streamed over
server-sent events from /api/v1/runs/{id}/events.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().String("root", "", "Only allow runs on directories under this path")
	serveCmd.Flags().String("journal", "", "Journal DSN: file path, sqlite://, postgres:// or mysql://")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("root") {
		cfg.Server.Root = mustGetString(cmd, "root")
	}
	if dsn := mustGetString(cmd, "journal"); dsn != "" {
		cfg.Journal.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Server.Root == "" && !isLoopback(cfg.Server.Host) {
		logger.Warn("API reachable from the network without a root directory; any writable path can be curated",
			"host", cfg.Server.Host)
	}

	ctx, stop := signalContext()
	defer stop()

	var j *journal.Journal
	if cfg.Journal.DSN != "" {
		j, err = journal.Open(ctx, cfg.Journal)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		logger.Info("journal enabled", "dialect", j.Dialect())
	}

	server := web.NewServer(cfg, j, logger)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Starting Photo Curator API on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
