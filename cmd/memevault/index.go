package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/memevault/memevault/application/service"
	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/internal/log"
	"github.com/spf13/cobra"
)

func indexCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "index <folder>",
		Short: "Describe and index the images in a folder",
		Long: `Scan a folder recursively for images, describe each new image with the
vision model and add it to the search index. Images indexed by an
earlier run are skipped. Interrupting keeps the images finished so far.`,
		Args: cobra.ExactArgs(1),
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIndex(ctx, client.Indexer, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	return cmd
}

// folderIndexer is the part of the indexer the command uses.
type folderIndexer interface {
	IndexFolder(ctx context.Context, folder string, progress service.ProgressFunc) (meme.Summary, error)
}

// runIndex indexes folder, writing progress to errOut and the report to out.
func runIndex(ctx context.Context, indexer folderIndexer, folder string, out, errOut io.Writer) error {
	progress := func(done, total int, sourceID string) {
		_, _ = fmt.Fprintf(errOut, "[%d/%d] %s\n", done, total, sourceID)
	}

	summary, err := indexer.IndexFolder(ctx, folder, progress)
	if errors.Is(err, meme.ErrInvalidFolder) {
		_, _ = fmt.Fprintln(out, meme.InvalidFolderMessage)
		return err
	}
	_, _ = fmt.Fprintln(out, summary.Report())
	return err
}
