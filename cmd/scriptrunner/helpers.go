package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cruft-ninja/script-runner/internal/catalog"
	"github.com/cruft-ninja/script-runner/internal/config"
	clierrors "github.com/cruft-ninja/script-runner/internal/errors"
)

// catalogPath returns the --catalog flag when set, else the configured path.
func catalogPath(cmd *cobra.Command, cfg *config.Config) string {
	if path, err := cmd.Flags().GetString("catalog"); err == nil && strings.TrimSpace(path) != "" {
		return path
	}

	return cfg.CatalogPath()
}

// loadCatalog reads the script catalog and maps failures to CLI errors.
func loadCatalog(cmd *cobra.Command, cfg *config.Config) (*catalog.Catalog, error) {
	path := catalogPath(cmd, cfg)

	cat, err := catalog.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierrors.CatalogNotFound(path)
		}

		return nil, clierrors.CatalogInvalid(path, err)
	}

	return cat, nil
}

// historyDir returns the transcript directory, or "" when transcripts are off.
func historyDir(cfg *config.Config) (string, error) {
	if !cfg.HistoryEnabled() {
		return "", nil
	}

	dir, err := cfg.HistoryDir()
	if err != nil {
		return "", clierrors.ConfigFailed("resolve history directory", err)
	}

	return dir, nil
}
