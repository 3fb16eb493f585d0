package teamcity

import "context"

// BuildRef identifies a single finished build.
type BuildRef struct {
	ID int64 `json:"id"`
}

// Build is the metadata for one build.
type Build struct {
	ID          int64
	DisplayName string
	ProjectPath string

	// TestCount is the authoritative number of tests the server recorded
	// for the build; nil when the build ran no tests or the server did
	// not report the figure.
	TestCount *int

	// Revisions are the VCS revision identifiers the build was run
	// against.
	Revisions []string
}

// TestOccurrence is a single test execution within a build.
type TestOccurrence struct {
	ID       string
	Name     string
	Duration int64 // milliseconds
}

// TestOccurrencePage is one page of a build's test occurrences.
type TestOccurrencePage struct {
	Count   int
	Items   []TestOccurrence
	HasNext bool
}

// Client is the read-only surface of the build server consumed by the
// analyzer. Implementations own transport concerns: authentication,
// timeouts and retries never belong to callers.
type Client interface {
	// ListRecentBuilds returns up to count finished, non-personal builds
	// of the given build configuration, most recent first.
	ListRecentBuilds(ctx context.Context, buildTypeID string, count int) ([]BuildRef, error)

	// BuildStatistics returns the build's numeric statistics keyed by
	// metric name. Metrics the build did not report are simply absent.
	BuildStatistics(ctx context.Context, buildID int64) (map[string]int64, error)

	// BuildMetadata returns the build's metadata.
	BuildMetadata(ctx context.Context, buildID int64) (*Build, error)

	// TestOccurrencesPage returns one page of the build's test
	// occurrences starting at the given offset.
	TestOccurrencesPage(ctx context.Context, buildID int64, offset int) (*TestOccurrencePage, error)
}
