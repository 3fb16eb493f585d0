// Package analyzer samples per-build timing data from the build server,
// folds the samples into aggregate time distributions and derives a
// slow/fast partition of the test suite.
package analyzer

import (
	"context"

	"github.com/buildgauge/buildgauge/pkg/classify"
	"github.com/buildgauge/buildgauge/pkg/teamcity"
	"github.com/buildgauge/buildgauge/pkg/timedist"
	"github.com/sirupsen/logrus"
)

// Server-side statistic keys consumed by the sampler. Builds are free to
// report any subset; only BuildDuration and the metadata test count are
// mandatory.
const (
	MetricBuildDuration       = "BuildDuration"
	MetricSourcesUpdate       = "buildStageDuration:sourcesUpdate"
	MetricCompilation         = "buildStageDuration:compilation"
	MetricTestExecution       = "buildStageDuration:testExecution"
	MetricArtifactsPublishing = "buildStageDuration:artifactsPublishing"
	MetricTestSetup           = "testStageDuration:setup"
	MetricTestTeardown        = "testStageDuration:teardown"
	MetricGCTime              = "testStageDuration:gc"
	MetricArtifactsSize       = "ArtifactsSize"
)

// Phase names used in the build-phase and test-phase distributions.
const (
	DistBuild = "Build time"
	DistTest  = "Test execution time"

	PhaseSourcesUpdate       = "Sources update time"
	PhaseCompilation         = "Compilation time"
	PhaseTestExecution       = "Test execution time"
	PhaseArtifactsPublishing = "Artifacts publishing time"

	PhaseIndividualTests = "Individual test time"
	PhaseTestSetup       = "Setup time"
	PhaseTestTeardown    = "Teardown time"
	PhaseGC              = "GC time"
)

// Sample is the distribution data derived from a single build.
type Sample struct {
	Build *teamcity.Build

	// BuildDist decomposes the build's total duration.
	BuildDist *timedist.TimeDistribution

	// TestDist decomposes the test-execution phase.
	TestDist *timedist.TimeDistribution

	// Occurrences are the individual test timings, only populated for
	// the primary sample.
	Occurrences []classify.Occurrence

	// TestCount is the authoritative test count from build metadata.
	TestCount int

	// TestExecutionTime is the aggregate test phase duration: the
	// server-reported metric when present, otherwise the sum of
	// individual occurrence durations when those were fetched.
	TestExecutionTime *int64

	// ArtifactsSize is the reported artifact size in bytes, if any.
	ArtifactsSize *int64
}

// Complete reports whether the sample may be folded into an aggregate:
// every optional phase it touched was actually reported.
func (s *Sample) Complete() bool {
	return !s.BuildDist.MissingPhases && !s.TestDist.MissingPhases
}

// Sampler produces Samples from single builds.
type Sampler struct {
	log    logrus.FieldLogger
	client teamcity.Client
}

// NewSampler creates a sampler on top of the given build-server client.
func NewSampler(log logrus.FieldLogger, client teamcity.Client) *Sampler {
	return &Sampler{
		log:    log.WithField("component", "sampler"),
		client: client,
	}
}

// Sample fetches one build's metadata, statistics and (optionally) test
// occurrences and builds its time distributions. Returns (nil, nil) when
// a mandatory metric (the total build duration or the authoritative
// test count) is unavailable: that build yields no sample, which is an
// expected condition, not an error. Transport failures are returned as
// errors.
func (s *Sampler) Sample(
	ctx context.Context, buildID int64, withOccurrences bool,
) (*Sample, error) {
	build, err := s.client.BuildMetadata(ctx, buildID)
	if err != nil {
		return nil, err
	}

	stats, err := s.client.BuildStatistics(ctx, buildID)
	if err != nil {
		return nil, err
	}

	totalDuration, ok := stats[MetricBuildDuration]
	if !ok {
		s.log.WithField("build", buildID).
			Debug("Build reports no total duration, skipping")

		return nil, nil
	}

	if build.TestCount == nil {
		s.log.WithField("build", buildID).
			Debug("Build reports no test count, skipping")

		return nil, nil
	}

	sample := &Sample{
		Build:         build,
		TestCount:     *build.TestCount,
		ArtifactsSize: metric(stats, MetricArtifactsSize),
	}

	if withOccurrences {
		occurrences, err := s.fetchAllOccurrences(ctx, buildID)
		if err != nil {
			return nil, err
		}

		sample.Occurrences = occurrences
	}

	// Prefer the authoritative metric over the sum of individual test
	// durations; fall back to the sum only when occurrences were fetched.
	sample.TestExecutionTime = metric(stats, MetricTestExecution)

	if sample.TestExecutionTime == nil && withOccurrences {
		var sum int64
		for _, occ := range sample.Occurrences {
			sum += occ.Duration
		}

		sample.TestExecutionTime = &sum
	}

	sample.BuildDist = timedist.New(DistBuild, totalDuration)
	sample.BuildDist.AddPhase(PhaseSourcesUpdate, metric(stats, MetricSourcesUpdate))
	sample.BuildDist.AddPhase(PhaseCompilation, metric(stats, MetricCompilation))
	sample.BuildDist.AddPhase(PhaseTestExecution, sample.TestExecutionTime)
	sample.BuildDist.AddPhase(PhaseArtifactsPublishing, metric(stats, MetricArtifactsPublishing))

	var testTotal int64
	if sample.TestExecutionTime != nil {
		testTotal = *sample.TestExecutionTime
	}

	sample.TestDist = timedist.New(DistTest, testTotal)

	// The individual-test phase only exists when occurrences were
	// fetched; a cheap sample simply does not model it.
	if withOccurrences {
		var sum int64
		for _, occ := range sample.Occurrences {
			sum += occ.Duration
		}

		sample.TestDist.AddPhase(PhaseIndividualTests, &sum)
	}

	sample.TestDist.AddPhase(PhaseTestSetup, metric(stats, MetricTestSetup))
	sample.TestDist.AddPhase(PhaseTestTeardown, metric(stats, MetricTestTeardown))
	sample.TestDist.AddPhase(PhaseGC, metric(stats, MetricGCTime))

	return sample, nil
}

// fetchAllOccurrences accumulates every test-occurrence page of a build
// into one ordered sequence. The offset of each request is the number of
// items fetched so far; the loop stops on an empty page or when the
// server signals there is no further page.
func (s *Sampler) fetchAllOccurrences(
	ctx context.Context, buildID int64,
) ([]classify.Occurrence, error) {
	var all []classify.Occurrence

	offset := 0

	for {
		page, err := s.client.TestOccurrencesPage(ctx, buildID, offset)
		if err != nil {
			return nil, err
		}

		if page.Count == 0 {
			break
		}

		for _, item := range page.Items {
			all = append(all, classify.Occurrence{
				ID:       item.ID,
				Name:     item.Name,
				Duration: item.Duration,
			})
		}

		offset += page.Count

		if !page.HasNext {
			break
		}
	}

	return all, nil
}

// metric returns a pointer to the named statistic, or nil when the build
// did not report it. Zero is a legitimate value and stays distinguishable
// from absence.
func metric(stats map[string]int64, name string) *int64 {
	value, ok := stats[name]
	if !ok {
		return nil
	}

	return &value
}
