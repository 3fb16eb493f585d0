// Package report renders analysis results as markdown for humans, YAML
// for suite-splitting tooling and JSON for machine consumers.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/buildgauge/buildgauge/pkg/analyzer"
	"github.com/buildgauge/buildgauge/pkg/timedist"
)

// Render produces the full markdown report for one configuration.
func Render(result *analyzer.Result) string {
	var b strings.Builder

	title := result.ConfigurationID
	if result.ProjectPath != "" {
		title = result.ProjectPath
	}

	fmt.Fprintf(&b, "# %s\n\n", title)

	if result.NoData() {
		fmt.Fprintf(
			&b,
			"No usable build data for configuration `%s`.\n",
			result.ConfigurationID,
		)

		return b.String()
	}

	fmt.Fprintf(&b, "- Configuration: `%s`\n", result.ConfigurationID)
	fmt.Fprintf(&b, "- Latest build: %s\n", result.BuildDisplayName)
	fmt.Fprintf(&b, "- Samples aggregated: %d\n", result.MergedSamples)
	fmt.Fprintf(&b, "- Tests: %d\n", result.TestCount)

	if result.ArtifactsSize != nil {
		fmt.Fprintf(&b, "- Artifacts size: %s\n", formatBytes(*result.ArtifactsSize))
	}

	b.WriteString("\n")

	renderDistribution(&b, result.BuildDist)
	renderDistribution(&b, result.TestDist)
	renderClassification(&b, result)

	return b.String()
}

// renderDistribution writes one phase table. Min/max columns only carry
// information when more than one sample was merged, but are printed
// unconditionally to keep the table shape stable.
func renderDistribution(b *strings.Builder, dist *timedist.TimeDistribution) {
	fmt.Fprintf(b, "## %s\n\n", dist.Label)
	fmt.Fprintf(
		b, "Average total: %s over %d sample(s).\n\n",
		formatDuration(dist.AverageTotal()), dist.SampleCount,
	)

	b.WriteString("| Phase | Average | Min | Max | Share |\n")
	b.WriteString("|---|---|---|---|---|\n")

	for _, phase := range dist.Phases {
		avg, _ := dist.PhaseAverage(phase.Name)
		pct, _ := dist.PhasePercent(phase.Name)

		fmt.Fprintf(
			b, "| %s | %s | %s | %s | %s |\n",
			phase.Name,
			formatDuration(avg),
			formatDuration(phase.MinDuration),
			formatDuration(phase.MaxDuration),
			formatPercent(pct),
		)
	}

	fmt.Fprintf(
		b, "| _Unaccounted_ | %s | | | %s |\n",
		formatDuration(dist.UnaccountedAverage()),
		formatPercent(dist.UnaccountedPercent()),
	)

	b.WriteString("\n")

	if dist.UnaccountedTime < 0 {
		b.WriteString(
			"Reported phases exceed the total duration; phase metrics overlap for this configuration.\n\n",
		)
	}

	if dist.MissingPhases {
		b.WriteString(
			"Some builds did not report every phase; the table above may understate phase times.\n\n",
		)
	}
}

// renderClassification writes the slow/fast partition section.
func renderClassification(b *strings.Builder, result *analyzer.Result) {
	b.WriteString("## Test suite partition\n\n")

	outcome := result.Classification
	if outcome == nil {
		b.WriteString("No per-test timing data available for the latest build.\n")

		return
	}

	fmt.Fprintf(
		b, "Threshold: %s (mean of %d tests over %s).\n\n",
		formatDuration(outcome.Threshold),
		result.TestCount,
		formatDuration(outcome.TestExecutionTime),
	)

	fmt.Fprintf(
		b, "- Slow group: %d tests, %s total, %s average, %d classes\n",
		len(outcome.Slow),
		formatDuration(outcome.SlowTotal),
		formatDuration(outcome.SlowAverage()),
		len(outcome.SlowClasses()),
	)
	fmt.Fprintf(
		b, "- Fast group: %d tests, %s total, %s average, %d classes\n\n",
		len(outcome.Fast),
		formatDuration(outcome.FastTotal),
		formatDuration(outcome.FastAverage()),
		len(outcome.FastClasses()),
	)

	switch {
	case len(outcome.Slow) == 0:
		b.WriteString("No test exceeds the threshold; the suite is uniformly fast.\n")
	case len(outcome.Fast) == 0:
		b.WriteString("Every test class contains a slow test; a split would not help.\n")
	default:
		slowOnly, fastOnly := outcome.HypotheticalBuildTimes(
			result.BuildDist.AverageTotal(),
		)

		fmt.Fprintf(
			b,
			"Splitting the suite would put the build at %s (slow tests only) or %s (fast tests only).\n",
			formatDuration(slowOnly), formatDuration(fastOnly),
		)
	}
}

// RenderSummary produces the cross-configuration markdown summary,
// including the redundant-revision table.
func RenderSummary(results []*analyzer.Result, duplicates map[string]int) string {
	var b strings.Builder

	b.WriteString("# Build time analysis\n\n")
	b.WriteString("| Configuration | Build | Avg build time | Samples |\n")
	b.WriteString("|---|---|---|---|\n")

	for _, result := range results {
		if result.NoData() {
			fmt.Fprintf(&b, "| `%s` | - | no data | 0 |\n", result.ConfigurationID)

			continue
		}

		fmt.Fprintf(
			&b, "| `%s` | %s | %s | %d |\n",
			result.ConfigurationID,
			result.BuildDisplayName,
			formatDuration(result.BuildDist.AverageTotal()),
			result.MergedSamples,
		)
	}

	b.WriteString("\n## Revisions built more than once\n\n")

	if len(duplicates) == 0 {
		b.WriteString("None.\n")

		return b.String()
	}

	type dup struct {
		revision string
		count    int
	}

	dups := make([]dup, 0, len(duplicates))
	for rev, n := range duplicates {
		dups = append(dups, dup{rev, n})
	}

	// Most-rebuilt first, revision as tie breaker for stable output.
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].count != dups[j].count {
			return dups[i].count > dups[j].count
		}

		return dups[i].revision < dups[j].revision
	})

	b.WriteString("| Revision | Builds |\n")
	b.WriteString("|---|---|\n")

	for _, d := range dups {
		fmt.Fprintf(&b, "| `%s` | %d |\n", d.revision, d.count)
	}

	return b.String()
}
