package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/api"
)

const (
	readHeaderTimeout      = 10 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP API until
// the command context is cancelled.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the crawl HTTP API",
		Long: `Serves POST /api/v1/crawler/crawl plus health and metrics endpoints.
The listen port comes from --port, then the PORT environment variable, then
server.port in the configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port override")
	return cmd
}

func runServe(cmd *cobra.Command, portFlag int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	port, err := listenPort(portFlag, os.Getenv("PORT"), cfg.Server.Port)
	if err != nil {
		return err
	}

	server := api.NewServer(appInstance.Crawler(), cfg, logger.Named("api"))
	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-cmd.Context().Done():
	}

	logger.Info("shutting down http server")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func listenPort(flag int, env string, configured int) (int, error) {
	if flag > 0 {
		return flag, nil
	}
	if env != "" {
		p, err := strconv.Atoi(env)
		if err != nil || p <= 0 {
			return 0, fmt.Errorf("invalid PORT %q", env)
		}
		return p, nil
	}
	if configured <= 0 {
		return 0, errors.New("no listen port configured")
	}
	return configured, nil
}
