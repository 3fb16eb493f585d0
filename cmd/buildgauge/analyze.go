package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildgauge/buildgauge/pkg/analyzer"
	"github.com/buildgauge/buildgauge/pkg/config"
	"github.com/buildgauge/buildgauge/pkg/report"
	"github.com/buildgauge/buildgauge/pkg/teamcity"
	"github.com/buildgauge/buildgauge/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var limitConfigurations []string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the build time analysis",
	Long:  `Sample recent builds of all configured build configurations and write reports.`,
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringSliceVar(&limitConfigurations, "limit-configuration", nil,
		"Limit to these configuration IDs (comma-separated or repeated flag)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	configurations := filterConfigurations(
		cfg.Analysis.Configurations, limitConfigurations,
	)
	if len(configurations) == 0 {
		return fmt.Errorf("no configurations match the specified filters")
	}

	if len(configurations) != len(cfg.Analysis.Configurations) {
		log.WithFields(logrus.Fields{
			"total":    len(cfg.Analysis.Configurations),
			"filtered": len(configurations),
		}).Info("Analyzing filtered configurations")
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	// Create S3 uploader if configured.
	var resultsUploader upload.Uploader

	if cfg.Upload != nil && cfg.Upload.Enabled {
		resultsUploader, err = upload.NewS3Uploader(log, cfg.Upload)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		// Fail fast: verify S3 is reachable and writable before sampling.
		if err := resultsUploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 upload preflight check failed: %w", err)
		}

		log.Info("S3 upload preflight check passed")
	}

	timeout, err := parseTimeout(cfg.Server.Timeout)
	if err != nil {
		return fmt.Errorf("parsing server timeout: %w", err)
	}

	client := teamcity.NewClient(log, &teamcity.Config{
		BaseURL:           cfg.Server.URL,
		Token:             cfg.Server.Token,
		Timeout:           timeout,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		PageSize:          cfg.Server.PageSize,
	})

	revisions := analyzer.NewRevisionCounter()

	a := analyzer.NewAnalyzer(log, client, revisions, &analyzer.Config{
		ExtraSamples: cfg.Analysis.ExtraSamples,
		Concurrency:  cfg.Analysis.Concurrency,
	})

	log.WithField("configurations", len(configurations)).
		Info("Starting analysis")

	results := a.AnalyzeAll(ctx, configurations)

	if err := ctx.Err(); err != nil {
		log.Info("Analysis interrupted")

		return err
	}

	now := time.Now().UTC()

	for _, result := range results {
		if err := report.WriteFiles(cfg.Global.ResultsDir, result, now); err != nil {
			log.WithError(err).
				WithField("configuration", result.ConfigurationID).
				Error("Failed to write report")
		}
	}

	if err := report.WriteSummary(
		cfg.Global.ResultsDir, results, revisions.Duplicates(),
	); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	log.WithField("results_dir", cfg.Global.ResultsDir).
		Info("Analysis completed")

	if resultsUploader != nil {
		if err := resultsUploader.Upload(ctx, cfg.Global.ResultsDir); err != nil {
			return fmt.Errorf("uploading results: %w", err)
		}
	}

	return nil
}

// parseTimeout parses the configured request timeout, empty means default.
func parseTimeout(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	return time.ParseDuration(value)
}

// filterConfigurations filters configuration IDs by the --limit flags.
// If no filters are specified, all configurations are returned.
func filterConfigurations(configurations, limits []string) []string {
	if len(limits) == 0 {
		return configurations
	}

	limitSet := make(map[string]struct{}, len(limits))
	for _, id := range limits {
		limitSet[id] = struct{}{}
	}

	filtered := make([]string, 0, len(configurations))

	for _, id := range configurations {
		if _, ok := limitSet[id]; ok {
			filtered = append(filtered, id)
		}
	}

	return filtered
}
