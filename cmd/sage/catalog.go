package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sage/internal/app"
	"sage/internal/broadcast"
	"sage/internal/catalog"
	"sage/internal/config"
)

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the bestseller categories offered by the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := catalogClient()
			if err != nil {
				return err
			}
			names, err := client.ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}

func newBooksCmd() *cobra.Command {
	var (
		limit     int
		quoteOnly bool
	)
	cmd := &cobra.Command{
		Use:   "books <category>",
		Short: "Show the books of one category in list order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := catalogClient()
			if err != nil {
				return err
			}
			items, err := client.FetchTopItems(cmd.Context(), catalog.Category(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if quoteOnly {
				fmt.Fprintln(out, broadcast.FormatQuote(items[0]))
				return nil
			}
			if limit > 0 && limit < len(items) {
				items = items[:limit]
			}
			for i, b := range items {
				fmt.Fprintf(out, "%2d. %s, by %s\n", i+1, b.Title, b.Author)
				if d := strings.TrimSpace(b.Description); d != "" {
					fmt.Fprintf(out, "    %s\n", d)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n books (0 = all)")
	cmd.Flags().BoolVar(&quoteOnly, "quote", false, "print only the message that would be broadcast")
	return cmd
}

func catalogClient() (*catalog.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := app.NewCatalogClient(cfg, config.SecretsFromEnv(), cliLogger())
	if err != nil {
		return nil, fmt.Errorf("%w (set %s)", err, config.EnvCatalogToken)
	}
	return client, nil
}
