package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cartageio/cartage/internal/app"
	"github.com/cartageio/cartage/internal/knowledge"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the document index",
}

var indexAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Index a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexAdd,
}

var indexRemoveCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Remove a file's chunks from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexRemove,
}

func init() {
	indexCmd.AddCommand(indexAddCmd)
	indexCmd.AddCommand(indexRemoveCmd)
	rootCmd.AddCommand(indexCmd)
}

// withIndexer loads config, builds the app, and hands the indexer to fn.
func withIndexer(fn func(ctx context.Context, idx *knowledge.Indexer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(false)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a.Indexer)
}

func runIndexAdd(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking path: %w", err)
	}

	return withIndexer(func(ctx context.Context, idx *knowledge.Indexer) error {
		if info.IsDir() {
			result, err := idx.AddDirectory(ctx, path)
			if err != nil {
				return fmt.Errorf("indexing directory: %w", err)
			}
			fmt.Printf("indexed %s: %d files (%d chunks), %d skipped, %d failed in %s\n",
				filepath.Clean(path),
				result.FilesAdded, result.ChunksAdded,
				result.FilesSkipped, result.FilesFailed,
				result.Duration.Round(1e6))
			return nil
		}

		chunks, err := idx.AddFile(ctx, path)
		if err != nil {
			return fmt.Errorf("indexing file: %w", err)
		}
		fmt.Printf("indexed %s: %d chunks\n", filepath.Clean(path), chunks)
		return nil
	})
}

func runIndexRemove(cmd *cobra.Command, args []string) error {
	path := args[0]
	return withIndexer(func(ctx context.Context, idx *knowledge.Indexer) error {
		removed, err := idx.RemoveFile(ctx, path)
		if err != nil {
			return fmt.Errorf("removing file: %w", err)
		}
		fmt.Printf("removed %s: %d chunks\n", filepath.Clean(path), removed)
		return nil
	})
}
