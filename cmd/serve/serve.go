package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/schemapush/cmd/internal/cliconfig"
	"github.com/stokaro/schemapush/connector/registry"
	"github.com/stokaro/schemapush/server"
)

const addrFlag = cliconfig.KeyAddr

func newServeFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		addrFlag: &cobraflags.StringFlag{
			Name:  addrFlag,
			Value: "",
			Usage: "Address to listen on (default :8080)",
		},
	}
}

// shutdownTimeout bounds how long in-flight pushes may run after a signal.
const shutdownTimeout = 30 * time.Second

func NewServeCommand() *cobra.Command {
	flags := newServeFlags()
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the push HTTP service",
		Long: `Serve POST /push, POST /plan and POST /apply-script for any database URL
the service can reach, plus GET /healthz and GET /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveCommand(cmd, flags)
		},
	}

	cobraflags.RegisterMap(serveCmd, flags)
	return serveCmd
}

func serveCommand(cmd *cobra.Command, flags map[string]cobraflags.Flag) error {
	addr := cliconfig.String(flags[addrFlag].GetString(), cliconfig.KeyAddr)
	logger := cliconfig.Logger()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(registry.Default()).WithLogger(logger)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
