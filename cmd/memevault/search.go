package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/internal/log"
	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var (
		envFile string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find indexed memes by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			logger := log.Configure(cfg).Slog()

			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			return runSearch(cmd.Context(), client.Search, strings.Join(args, " "), limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default: SEARCH_LIMIT)")

	return cmd
}

// memeSearcher is the part of the searcher the command uses.
type memeSearcher interface {
	Search(ctx context.Context, query string, topK int) (meme.SearchResult, error)
}

// runSearch writes the result message for query to out. A blank query or a
// missing index prints the corresponding message and is not an error.
func runSearch(ctx context.Context, searcher memeSearcher, query string, limit int, out io.Writer) error {
	result, err := searcher.Search(ctx, query, limit)
	if errors.Is(err, meme.ErrInvalidQuery) {
		_, _ = fmt.Fprintln(out, meme.EmptyQueryMessage)
		return nil
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, result.Message())
	return nil
}
