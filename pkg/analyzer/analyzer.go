package analyzer

import (
	"context"
	"fmt"

	"github.com/buildgauge/buildgauge/pkg/classify"
	"github.com/buildgauge/buildgauge/pkg/teamcity"
	"github.com/buildgauge/buildgauge/pkg/timedist"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultExtraSamples is how many builds beyond the primary one are
	// sampled (without test occurrences) to strengthen the aggregate.
	defaultExtraSamples = 5

	// defaultConcurrency bounds how many configurations are analyzed in
	// parallel.
	defaultConcurrency = 4
)

// Config tunes the analyzer.
type Config struct {
	// ExtraSamples is the number of additional builds sampled per
	// configuration. Zero means 5.
	ExtraSamples int

	// Concurrency bounds parallel configuration processing. Zero means 4.
	Concurrency int
}

// Result is the analysis outcome for one build configuration. A result
// with a nil BuildDist carries no data: the configuration had no usable
// primary build.
type Result struct {
	ConfigurationID string `json:"configuration_id"`

	// Build is the primary (most recent) build's metadata.
	Build *teamcity.Build `json:"-"`

	BuildDisplayName string `json:"build_display_name,omitempty"`
	ProjectPath      string `json:"project_path,omitempty"`

	// BuildDist and TestDist are the merged aggregates across all
	// complete samples.
	BuildDist *timedist.TimeDistribution `json:"build_distribution,omitempty"`
	TestDist  *timedist.TimeDistribution `json:"test_distribution,omitempty"`

	// Classification is the slow/fast partition derived from the primary
	// sample, nil when there was no data to classify.
	Classification *classify.Outcome `json:"classification,omitempty"`

	// TestCount is the maximum authoritative test count observed across
	// the merged samples, the best point estimate of the suite size.
	TestCount int `json:"test_count"`

	// MergedSamples is how many samples were folded into the aggregate.
	MergedSamples int `json:"merged_samples"`

	// ArtifactsSize is the primary build's artifact size in bytes.
	ArtifactsSize *int64 `json:"artifacts_size_bytes,omitempty"`
}

// NoData reports whether the configuration yielded no usable sample.
func (r *Result) NoData() bool {
	return r.BuildDist == nil
}

// Analyzer drives sampling and aggregation across build configurations.
type Analyzer struct {
	log          logrus.FieldLogger
	sampler      *Sampler
	client       teamcity.Client
	revisions    *RevisionCounter
	extraSamples int
	concurrency  int
}

// NewAnalyzer creates an analyzer. The revision counter is shared across
// configurations; pass one counter per invocation.
func NewAnalyzer(
	log logrus.FieldLogger,
	client teamcity.Client,
	revisions *RevisionCounter,
	cfg *Config,
) *Analyzer {
	extraSamples := cfg.ExtraSamples
	if extraSamples == 0 {
		extraSamples = defaultExtraSamples
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Analyzer{
		log:          log.WithField("component", "analyzer"),
		sampler:      NewSampler(log, client),
		client:       client,
		revisions:    revisions,
		extraSamples: extraSamples,
		concurrency:  concurrency,
	}
}

// AnalyzeConfiguration analyzes one build configuration: the most recent
// finished build is sampled fully (including test occurrences) as the
// canonical sample, then up to ExtraSamples further builds are sampled
// cheaply and merged into the aggregate. Samples with missing phases are
// kept out of the aggregate so partial data never skews it.
//
// Returns a no-data Result (never nil) when the configuration has no
// builds or the primary build lacks a mandatory metric. Transport errors
// abort this configuration only.
func (a *Analyzer) AnalyzeConfiguration(
	ctx context.Context, configurationID string,
) (*Result, error) {
	log := a.log.WithField("configuration", configurationID)

	refs, err := a.client.ListRecentBuilds(
		ctx, configurationID, a.extraSamples+1,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent builds: %w", err)
	}

	result := &Result{ConfigurationID: configurationID}

	if len(refs) == 0 {
		log.Info("No recent builds")

		return result, nil
	}

	primary, err := a.sampler.Sample(ctx, refs[0].ID, true)
	if err != nil {
		return nil, fmt.Errorf("sampling primary build %d: %w", refs[0].ID, err)
	}

	if primary == nil {
		log.WithField("build", refs[0].ID).
			Info("Primary build is missing mandatory metrics")

		return result, nil
	}

	a.revisions.Record(primary.Build.Revisions...)

	result.Build = primary.Build
	result.BuildDisplayName = primary.Build.DisplayName
	result.ProjectPath = primary.Build.ProjectPath
	result.ArtifactsSize = primary.ArtifactsSize

	var (
		buildDist, testDist *timedist.TimeDistribution
		testCount           int
		mergedSamples       int
	)

	merge := func(sample *Sample) {
		if !sample.Complete() {
			return
		}

		if buildDist == nil {
			buildDist, testDist = sample.BuildDist, sample.TestDist
		} else {
			buildDist = buildDist.Merge(sample.BuildDist)
			testDist = testDist.Merge(sample.TestDist)
		}

		testCount = max(testCount, sample.TestCount)
		mergedSamples++
	}

	merge(primary)

	for _, ref := range refs[1:] {
		sample, err := a.sampler.Sample(ctx, ref.ID, false)
		if err != nil {
			// A failed fetch discards this build's sample, not the run.
			log.WithError(err).WithField("build", ref.ID).
				Warn("Failed to sample build")

			continue
		}

		if sample == nil {
			continue
		}

		a.revisions.Record(sample.Build.Revisions...)
		merge(sample)
	}

	// When every sample had missing phases the primary one still makes a
	// reportable (if unreliable) result on its own.
	if buildDist == nil {
		buildDist, testDist = primary.BuildDist, primary.TestDist
		testCount = primary.TestCount
	}

	result.BuildDist = buildDist
	result.TestDist = testDist
	result.TestCount = testCount
	result.MergedSamples = mergedSamples

	result.Classification = classify.Partition(
		primary.Occurrences, primary.TestCount, primary.TestExecutionTime,
	)

	log.WithFields(logrus.Fields{
		"build":          primary.Build.DisplayName,
		"merged_samples": mergedSamples,
		"test_count":     testCount,
	}).Info("Configuration analyzed")

	return result, nil
}

// AnalyzeAll analyzes the given configurations with bounded parallelism.
// Configurations share no mutable state beyond the revision counter. A
// configuration that fails yields a no-data result and does not abort the
// others.
func (a *Analyzer) AnalyzeAll(
	ctx context.Context, configurationIDs []string,
) []*Result {
	results := make([]*Result, len(configurationIDs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, id := range configurationIDs {
		g.Go(func() error {
			result, err := a.AnalyzeConfiguration(gCtx, id)
			if err != nil {
				a.log.WithError(err).WithField("configuration", id).
					Error("Configuration analysis failed")

				results[i] = &Result{ConfigurationID: id}

				return nil
			}

			results[i] = result

			return nil
		})
	}

	// Worker errors are swallowed above; Wait only synchronizes.
	_ = g.Wait()

	return results
}
