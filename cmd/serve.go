package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Chinzzii/wpvulscan/handlers"
)

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan, query, history and rules API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireTarget(); err != nil {
				return err
			}

			api := &handlers.API{
				Scanner:  a.scanner,
				Findings: a.store,
				Rules:    a.catalog,
				Log:      a.log,
			}
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           api.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Infow("Server starting", "addr", srv.Addr)
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

			a.log.Info("Shutting down server")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}
