package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve list queries for the collections of a data file",
		Example: `  multiquery serve --data posts.yaml --addr :8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.require("data"); err != nil {
				return err
			}

			server, err := LoadData(a.v.GetString("data"), a.logger)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              a.v.GetString("addr"),
				Handler:           NewRouter(server, a.logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", srv.Addr).Msg("serving list queries on /graphql")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			a.logger.Info().Msg("shutting down")
			return srv.Shutdown(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("data", "", "data file with collections, views and items")

	return cmd
}
