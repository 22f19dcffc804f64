// =============================================================================
// PRF Budget Import - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   prfimport serve [--addr :8080]
//
// Runs the HTTP API until SIGINT/SIGTERM, then drains in-flight uploads
// for up to shutdownTimeout.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/httpapi"
)

const shutdownTimeout = 30 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: http.addr from the configuration)")
}

func runServe(ctx context.Context) error {
	addr := serveAddr
	if addr == "" {
		addr = appConfig.HTTP.Addr
	}

	p, st, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	api := httpapi.New(p, st, appConfig.ImportOptions(), appConfig.HTTP.MaxUploadMB, log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
