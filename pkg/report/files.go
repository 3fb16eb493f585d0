package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/buildgauge/buildgauge/pkg/analyzer"
	"gopkg.in/yaml.v3"
)

const (
	// FileMarkdown is the human-readable report.
	FileMarkdown = "report.md"

	// FileJSON is the machine-readable report consumed by the serving
	// layer and its indexer.
	FileJSON = "report.json"

	// FilePartition is the slow/fast class partition consumed by
	// suite-splitting tooling.
	FilePartition = "partition.yaml"

	// FileSummary is the cross-configuration summary at the results root.
	FileSummary = "summary.md"
)

// Partition is the YAML shape of the suite split.
type Partition struct {
	ConfigurationID string   `yaml:"configuration"`
	ThresholdMS     int64    `yaml:"threshold_ms"`
	SlowClasses     []string `yaml:"slow_classes"`
	FastClasses     []string `yaml:"fast_classes"`
}

// Document is the JSON report envelope.
type Document struct {
	GeneratedAt time.Time `json:"generated_at"`

	*analyzer.Result
}

// WriteFiles writes the per-configuration report files into
// dir/<configuration id>/. The partition file is only written when the
// result carries a classification.
func WriteFiles(dir string, result *analyzer.Result, now time.Time) error {
	target := filepath.Join(dir, result.ConfigurationID)

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	markdown := Render(result)
	if err := os.WriteFile(
		filepath.Join(target, FileMarkdown), []byte(markdown), 0o644,
	); err != nil {
		return fmt.Errorf("writing markdown report: %w", err)
	}

	doc, err := json.MarshalIndent(&Document{
		GeneratedAt: now,
		Result:      result,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}

	if err := os.WriteFile(
		filepath.Join(target, FileJSON), doc, 0o644,
	); err != nil {
		return fmt.Errorf("writing JSON report: %w", err)
	}

	if result.Classification == nil {
		return nil
	}

	partition, err := yaml.Marshal(&Partition{
		ConfigurationID: result.ConfigurationID,
		ThresholdMS:     result.Classification.Threshold,
		SlowClasses:     result.Classification.SlowClasses(),
		FastClasses:     result.Classification.FastClasses(),
	})
	if err != nil {
		return fmt.Errorf("encoding partition: %w", err)
	}

	if err := os.WriteFile(
		filepath.Join(target, FilePartition), partition, 0o644,
	); err != nil {
		return fmt.Errorf("writing partition: %w", err)
	}

	return nil
}

// WriteSummary writes the cross-configuration summary at the results
// root.
func WriteSummary(dir string, results []*analyzer.Result, duplicates map[string]int) error {
	summary := RenderSummary(results, duplicates)

	if err := os.WriteFile(
		filepath.Join(dir, FileSummary), []byte(summary), 0o644,
	); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	return nil
}
