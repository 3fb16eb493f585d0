package analyzer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/buildgauge/buildgauge/pkg/teamcity"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

// fakeClient serves canned build data keyed by build ID.
type fakeClient struct {
	refs    map[string][]teamcity.BuildRef
	listErr map[string]error

	builds map[int64]*teamcity.Build
	stats  map[int64]map[string]int64

	// pages are served in order per build; offsets records the offsets
	// the sampler actually requested.
	pages    map[int64][]*teamcity.TestOccurrencePage
	pageCall map[int64]int
	offsets  map[int64][]int
}

var _ teamcity.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		refs:     make(map[string][]teamcity.BuildRef),
		listErr:  make(map[string]error),
		builds:   make(map[int64]*teamcity.Build),
		stats:    make(map[int64]map[string]int64),
		pages:    make(map[int64][]*teamcity.TestOccurrencePage),
		pageCall: make(map[int64]int),
		offsets:  make(map[int64][]int),
	}
}

func (f *fakeClient) ListRecentBuilds(
	_ context.Context, buildTypeID string, count int,
) ([]teamcity.BuildRef, error) {
	if err := f.listErr[buildTypeID]; err != nil {
		return nil, err
	}

	refs := f.refs[buildTypeID]
	if len(refs) > count {
		refs = refs[:count]
	}

	return refs, nil
}

func (f *fakeClient) BuildStatistics(
	_ context.Context, buildID int64,
) (map[string]int64, error) {
	stats, ok := f.stats[buildID]
	if !ok {
		return nil, fmt.Errorf("no statistics for build %d", buildID)
	}

	return stats, nil
}

func (f *fakeClient) BuildMetadata(
	_ context.Context, buildID int64,
) (*teamcity.Build, error) {
	build, ok := f.builds[buildID]
	if !ok {
		return nil, fmt.Errorf("no metadata for build %d", buildID)
	}

	return build, nil
}

func (f *fakeClient) TestOccurrencesPage(
	_ context.Context, buildID int64, offset int,
) (*teamcity.TestOccurrencePage, error) {
	f.offsets[buildID] = append(f.offsets[buildID], offset)

	pages := f.pages[buildID]

	call := f.pageCall[buildID]
	f.pageCall[buildID]++

	if call >= len(pages) {
		return &teamcity.TestOccurrencePage{}, nil
	}

	return pages[call], nil
}

// addBuild registers a complete build: every phase metric reported.
func (f *fakeClient) addBuild(id int64, testCount int, revisions ...string) {
	count := testCount
	f.builds[id] = &teamcity.Build{
		ID:          id,
		DisplayName: fmt.Sprintf("#%d", id),
		ProjectPath: "Acme / Main",
		TestCount:   &count,
		Revisions:   revisions,
	}
	f.stats[id] = map[string]int64{
		MetricBuildDuration:       600000,
		MetricSourcesUpdate:       30000,
		MetricCompilation:         200000,
		MetricTestExecution:       300000,
		MetricArtifactsPublishing: 20000,
		MetricTestSetup:           10000,
		MetricTestTeardown:        5000,
		MetricGCTime:              2000,
	}
}

func occurrencePage(start, n int, hasNext bool) *teamcity.TestOccurrencePage {
	page := &teamcity.TestOccurrencePage{Count: n, HasNext: hasNext}

	for i := range n {
		page.Items = append(page.Items, teamcity.TestOccurrence{
			ID:       fmt.Sprintf("id:%d", start+i),
			Name:     fmt.Sprintf("pkg.Class%d.test%d", (start+i)%7, start+i),
			Duration: 100,
		})
	}

	return page
}

func newTestAnalyzer(client teamcity.Client, revisions *RevisionCounter) *Analyzer {
	return NewAnalyzer(testLogger(), client, revisions, &Config{Concurrency: 1})
}

func TestAnalyzeConfigurationMergesSamples(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Main"] = []teamcity.BuildRef{{ID: 3}, {ID: 2}, {ID: 1}}
	client.addBuild(3, 12, "rev-c")
	client.addBuild(2, 15, "rev-b")
	client.addBuild(1, 12, "rev-a")
	client.pages[3] = []*teamcity.TestOccurrencePage{occurrencePage(0, 12, false)}

	analyzer := newTestAnalyzer(client, NewRevisionCounter())

	result, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Main")
	require.NoError(t, err)
	require.False(t, result.NoData())

	assert.Equal(t, 3, result.MergedSamples)
	assert.Equal(t, int64(1800000), result.BuildDist.TotalDuration)
	assert.Equal(t, 3, result.BuildDist.SampleCount)

	// The largest authoritative test count wins.
	assert.Equal(t, 15, result.TestCount)

	assert.Equal(t, "#3", result.BuildDisplayName)
	assert.Equal(t, "Acme / Main", result.ProjectPath)

	require.NotNil(t, result.Classification)
	assert.Len(t, result.Classification.Slow, 0)
	assert.Len(t, result.Classification.Fast, 12)
}

func TestAnalyzeConfigurationPagination(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Main"] = []teamcity.BuildRef{{ID: 9}}
	client.addBuild(9, 200)
	client.pages[9] = []*teamcity.TestOccurrencePage{
		occurrencePage(0, 100, true),
		occurrencePage(100, 100, true),
		{Count: 0},
	}

	analyzer := newTestAnalyzer(client, NewRevisionCounter())

	result, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Main")
	require.NoError(t, err)

	// Offsets advance by the number of items actually received and the
	// loop stops on the empty page.
	assert.Equal(t, []int{0, 100, 200}, client.offsets[9])

	classified := len(result.Classification.Slow) + len(result.Classification.Fast)
	assert.Equal(t, 200, classified)
}

func TestAnalyzeConfigurationNoBuilds(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Idle"] = nil

	analyzer := newTestAnalyzer(client, NewRevisionCounter())

	result, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Idle")
	require.NoError(t, err)

	assert.True(t, result.NoData())
	assert.Equal(t, "Proj_Idle", result.ConfigurationID)
	assert.Nil(t, result.Classification)
}

func TestAnalyzeConfigurationPrimaryMissingDuration(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Main"] = []teamcity.BuildRef{{ID: 5}}
	client.addBuild(5, 10)
	delete(client.stats[5], MetricBuildDuration)

	analyzer := newTestAnalyzer(client, NewRevisionCounter())

	result, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Main")
	require.NoError(t, err)

	assert.True(t, result.NoData())
}

func TestAnalyzeConfigurationPrimaryMissingTestCount(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Main"] = []teamcity.BuildRef{{ID: 5}}
	client.addBuild(5, 10)
	client.builds[5].TestCount = nil

	analyzer := newTestAnalyzer(client, NewRevisionCounter())

	result, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Main")
	require.NoError(t, err)

	assert.True(t, result.NoData())
}

func TestAnalyzeConfigurationSkipsIncompleteSamples(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Main"] = []teamcity.BuildRef{{ID: 3}, {ID: 2}, {ID: 1}}
	client.addBuild(3, 12)
	client.addBuild(2, 99)
	client.addBuild(1, 12)
	client.pages[3] = []*teamcity.TestOccurrencePage{occurrencePage(0, 12, false)}

	// Build 2 reports its totals but not the compilation phase, so its
	// distributions are incomplete and must stay out of the aggregate.
	delete(client.stats[2], MetricCompilation)

	analyzer := newTestAnalyzer(client, NewRevisionCounter())

	result, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Main")
	require.NoError(t, err)

	assert.Equal(t, 2, result.MergedSamples)
	assert.Equal(t, 2, result.BuildDist.SampleCount)
	assert.Equal(t, 12, result.TestCount)
	assert.False(t, result.BuildDist.MissingPhases)
}

func TestAnalyzeConfigurationSamplingErrorDiscardsBuild(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Main"] = []teamcity.BuildRef{{ID: 3}, {ID: 2}}
	client.addBuild(3, 12)
	client.pages[3] = []*teamcity.TestOccurrencePage{occurrencePage(0, 12, false)}
	// Build 2 has no metadata: fetching it fails.

	analyzer := newTestAnalyzer(client, NewRevisionCounter())

	result, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Main")
	require.NoError(t, err)

	assert.Equal(t, 1, result.MergedSamples)
}

func TestAnalyzeConfigurationRecordsRevisions(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_Main"] = []teamcity.BuildRef{{ID: 3}, {ID: 2}, {ID: 1}}
	client.addBuild(3, 5, "shared", "only-c")
	client.addBuild(2, 5, "shared")
	client.addBuild(1, 5, "only-a")
	client.pages[3] = []*teamcity.TestOccurrencePage{occurrencePage(0, 5, false)}

	revisions := NewRevisionCounter()
	analyzer := newTestAnalyzer(client, revisions)

	_, err := analyzer.AnalyzeConfiguration(t.Context(), "Proj_Main")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"shared": 2,
		"only-c": 1,
		"only-a": 1,
	}, revisions.Counts())
	assert.Equal(t, map[string]int{"shared": 2}, revisions.Duplicates())
}

func TestAnalyzeAll(t *testing.T) {
	client := newFakeClient()
	client.refs["Proj_A"] = []teamcity.BuildRef{{ID: 10}}
	client.addBuild(10, 3)
	client.pages[10] = []*teamcity.TestOccurrencePage{occurrencePage(0, 3, false)}
	client.listErr["Proj_B"] = errors.New("connection refused")

	analyzer := NewAnalyzer(testLogger(), client, NewRevisionCounter(), &Config{
		Concurrency: 2,
	})

	results := analyzer.AnalyzeAll(t.Context(), []string{"Proj_A", "Proj_B"})
	require.Len(t, results, 2)

	assert.Equal(t, "Proj_A", results[0].ConfigurationID)
	assert.False(t, results[0].NoData())

	// A failing configuration yields a no-data result, not a crash.
	assert.Equal(t, "Proj_B", results[1].ConfigurationID)
	assert.True(t, results[1].NoData())
}
