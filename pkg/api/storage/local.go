package storage

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"github.com/buildgauge/buildgauge/pkg/config"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	// paths maps discovery path names to absolute directory paths.
	paths map[string]string
}

// NewLocalReader creates a Reader backed by local results directories.
func NewLocalReader(cfg *config.APIStorageConfig) Reader {
	paths := make(map[string]string, len(cfg.DiscoveryPaths))
	maps.Copy(paths, cfg.DiscoveryPaths)

	return &localReader{paths: paths}
}

// DiscoveryPaths returns the configured discovery path names sorted.
func (r *localReader) DiscoveryPaths() []string {
	keys := make([]string, 0, len(r.paths))
	for k := range r.paths {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// ListReportDirs returns configuration directory names under the
// discovery path's root. Plain files at the root, such as the summary,
// are not report directories.
func (r *localReader) ListReportDirs(
	_ context.Context, discoveryPath string,
) ([]string, error) {
	dirPath, ok := r.paths[discoveryPath]
	if !ok {
		return nil, fmt.Errorf(
			"unknown discovery path: %q", discoveryPath,
		)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading results directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}

	return ids, nil
}

// GetReportFile reads a file from {dirPath}/{configurationID}/{filename}.
// Returns (nil, nil) when the file does not exist.
func (r *localReader) GetReportFile(
	_ context.Context, discoveryPath, configurationID, filename string,
) ([]byte, error) {
	dirPath, ok := r.paths[discoveryPath]
	if !ok {
		return nil, fmt.Errorf(
			"unknown discovery path: %q", discoveryPath,
		)
	}

	p := filepath.Join(dirPath, configurationID, filename)

	data, err := os.ReadFile(p) //nolint:gosec // trusted paths from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}
