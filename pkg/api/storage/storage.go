// Package storage provides read access to rendered analysis results on
// disk for the report API and its indexer.
package storage

import "context"

// Reader provides read access to rendered report directories. It is used
// by the indexer to discover and read report files without knowing the
// underlying layout details.
type Reader interface {
	// ListReportDirs returns the configuration directory names under the
	// given discovery path.
	ListReportDirs(ctx context.Context, discoveryPath string) ([]string, error)

	// GetReportFile reads a file from a configuration's report directory.
	// Returns (nil, nil) when the file does not exist.
	GetReportFile(
		ctx context.Context, discoveryPath, configurationID, filename string,
	) ([]byte, error)

	// DiscoveryPaths returns all configured discovery paths.
	DiscoveryPaths() []string
}
