package main

import (
	"fmt"

	"github.com/memevault/memevault/infrastructure/provider"
	"github.com/spf13/cobra"
)

func downloadModelCmd() *cobra.Command {
	var (
		envFile string
		repo    string
		dest    string
	)

	cmd := &cobra.Command{
		Use:   "download-model",
		Short: "Download the local embedding model",
		Long: `Download a sentence-transformers ONNX model from Hugging Face so that
embeddings can be computed locally without an embedding endpoint.
The model is stored in MODEL_DIR (default: {DATA_DIR}/models).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				cfg, err := loadConfig(envFile)
				if err != nil {
					return err
				}
				dest = cfg.ModelDir()
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Downloading %s to %s...\n", repo, dest)
			modelPath, err := provider.DownloadLocalModel(repo, dest)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Model ready at %s\n", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&repo, "repo", provider.DefaultLocalModelRepo, "Hugging Face model repository")
	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory (default: MODEL_DIR)")

	return cmd
}
