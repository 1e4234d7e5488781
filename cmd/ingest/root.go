package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bookplatform/internal/bootstrap"
	"bookplatform/internal/config"
)

var errNoCredentials = errors.New("llm credentials are required for ingestion")

type options struct {
	configPath string
	docsDir    string
	store      string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Index the book documents into the vector store",
		Long: `Chunks every document in the docs directory, embeds the chunks and
writes them to the configured persistent vector store (qdrant or sqlite).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRAG(cmd, opts, func(ctx context.Context, r *bootstrap.RAG) error {
				report, err := r.Ingestor.Run(ctx)
				if report != nil {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					_ = enc.Encode(report)
				}
				return err
			})
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CONFIG_FILE or configs/config.toml)")
	root.PersistentFlags().StringVar(&opts.docsDir, "docs", "", "override rag.docs_dir")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "override rag.vector_store")

	root.AddCommand(&cobra.Command{
		Use:   "reindex <document>",
		Short: "Re-index a single document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRAG(cmd, opts, func(ctx context.Context, r *bootstrap.RAG) error {
				n, err := r.Ingestor.Reindex(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", args[0], n)
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "remove <document>",
		Short: "Delete the indexed chunks of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRAG(cmd, opts, func(ctx context.Context, r *bootstrap.RAG) error {
				if err := r.Ingestor.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed\n", args[0])
				return nil
			})
		},
	})
	return root
}

func loadConfig(opts *options) (*config.Config, error) {
	_ = godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.docsDir != "" {
		cfg.RAG.DocsDir = opts.docsDir
	}
	if opts.store != "" {
		cfg.RAG.VectorStore = opts.store
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withRAG(cmd *cobra.Command, opts *options, fn func(ctx context.Context, r *bootstrap.RAG) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := bootstrap.NewLogger(cfg.App, cmd.ErrOrStderr())
	if cfg.RAG.VectorStore == "memory" {
		logger.Warn("memory vector store is not persistent, the index is discarded on exit")
	}

	r, err := bootstrap.NewRAG(cfg, logger)
	if err != nil {
		return err
	}
	defer r.Close()
	if r.Ingestor == nil {
		return errNoCredentials
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fn(ctx, r); err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return nil
}
