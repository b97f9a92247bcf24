package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/nrfta/multiquery"
	"github.com/nrfta/multiquery/client"
)

// pageLine is one line of fetch output.
type pageLine struct {
	Page         int              `json:"page"`
	Limit        int              `json:"limit"`
	Count        int              `json:"count"`
	TotalCount   *int             `json:"totalCount,omitempty"`
	ShowLoadMore bool             `json:"showLoadMore"`
	Results      []map[string]any `json:"results"`
}

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a list query and grow it with load more",
		Long: `Runs the list query of a collection against a GraphQL endpoint and calls
load more until --pages windows were printed or nothing is left to load.
Each window is printed as one JSON line.`,
		Example: `  multiquery fetch --schema schema.yaml --endpoint http://localhost:8080/graphql \
    --collection Posts --fragment PostsList --term view=recent --pages 3 --enable-total`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.require("endpoint", "collection", "fragment"); err != nil {
				return err
			}

			reg, err := a.registry()
			if err != nil {
				return err
			}

			headers, err := cmd.Flags().GetStringToString("header")
			if err != nil {
				return err
			}
			termFlags, err := cmd.Flags().GetStringToString("term")
			if err != nil {
				return err
			}

			httpOpts := []client.HTTPOption{
				client.WithRetries(uint64(max(a.v.GetInt("retries"), 0))),
				client.WithHTTPLogger(a.logger),
			}
			for key, value := range headers {
				httpOpts = append(httpOpts, client.WithHeader(key, value))
			}
			gql := client.New(
				client.NewHTTPTransport(a.v.GetString("endpoint"), httpOpts...),
				client.WithLogger(a.logger),
			)

			opts := []multiquery.Option{
				multiquery.WithLogger(a.logger),
				multiquery.WithCallSite("cli/fetch"),
				multiquery.WithLimit(a.v.GetInt("limit")),
				multiquery.WithItemsPerPage(a.v.GetInt("items-per-page")),
			}
			if a.v.GetBool("enable-total") {
				opts = append(opts, multiquery.WithEnableTotal())
			}

			list, err := multiquery.NewList[map[string]any](
				gql, reg, a.v.GetString("collection"), a.v.GetString("fragment"), opts...,
			)
			if err != nil {
				return err
			}

			terms := multiquery.Terms{}
			for key, value := range termFlags {
				terms[key] = value
			}

			ctx := cmd.Context()
			enc := json.NewEncoder(cmd.OutOrStdout())
			pages := max(a.v.GetInt("pages"), 1)

			res := list.Use(ctx, terms)
			for page := 1; ; page++ {
				if res.Error != nil {
					return res.Error
				}

				if err := enc.Encode(pageLine{
					Page:         page,
					Limit:        res.Limit,
					Count:        res.Count,
					TotalCount:   res.TotalCount,
					ShowLoadMore: res.ShowLoadMore,
					Results:      res.Results,
				}); err != nil {
					return err
				}

				if page >= pages || !res.ShowLoadMore {
					return nil
				}

				if err := res.LoadMore(ctx); err != nil {
					return err
				}
				res = list.Result()
			}
		},
	}

	flags := cmd.Flags()
	flags.String("endpoint", "", "GraphQL endpoint URL")
	flags.String("collection", "", "collection name")
	flags.String("fragment", "", "fragment name")
	flags.StringToString("term", nil, "list term as key=value (repeatable)")
	flags.StringToString("header", nil, "HTTP header as name=value (repeatable)")
	flags.Int("limit", multiquery.DefaultLimit, "initial window size when the terms carry none")
	flags.Int("items-per-page", multiquery.DefaultItemsPerPage, "window growth per load more")
	flags.Int("pages", 1, "number of windows to print")
	flags.Bool("enable-total", false, "request totalCount")
	flags.Int("retries", 0, "retries for failed HTTP requests")

	return cmd
}
