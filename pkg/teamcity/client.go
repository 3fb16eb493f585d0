// Package teamcity implements the TeamCity REST client used to fetch
// build timings and test occurrences.
package teamcity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100
	defaultRetryMax = 3
)

// Config holds the connection settings for a build server.
type Config struct {
	// BaseURL is the server root, e.g. https://ci.example.com.
	BaseURL string

	// Token is the bearer token used for authentication.
	Token string

	// Timeout is the per-request timeout. Zero means 30s.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables
	// client-side throttling.
	RequestsPerSecond float64

	// PageSize is the test-occurrence page size. Zero means 100.
	PageSize int
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient is the REST implementation of Client. Retries are handled
// by the underlying retryable transport; callers never retry.
type HTTPClient struct {
	log      logrus.FieldLogger
	cfg      *Config
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	pageSize int
}

// NewClient creates a build-server client from the given configuration.
func NewClient(log logrus.FieldLogger, cfg *Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetryMax
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}

	return &HTTPClient{
		log:      log.WithField("component", "teamcity"),
		cfg:      cfg,
		http:     rc,
		limiter:  limiter,
		pageSize: pageSize,
	}
}

// ListRecentBuilds returns up to count finished non-personal builds of a
// build configuration, most recent first (server ordering).
func (c *HTTPClient) ListRecentBuilds(
	ctx context.Context, buildTypeID string, count int,
) ([]BuildRef, error) {
	path := fmt.Sprintf(
		"/app/rest/builds?locator=buildType:(id:%s),state:finished,personal:false,count:%d&fields=build(id)",
		buildTypeID, count,
	)

	var resp struct {
		Build []BuildRef `json:"build"`
	}

	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("listing builds for %s: %w", buildTypeID, err)
	}

	return resp.Build, nil
}

// BuildStatistics returns the build's numeric statistics. The server
// reports string values; entries that do not parse as integers are
// skipped so unknown or non-numeric metrics never break ingestion.
func (c *HTTPClient) BuildStatistics(
	ctx context.Context, buildID int64,
) (map[string]int64, error) {
	path := fmt.Sprintf("/app/rest/builds/id:%d/statistics", buildID)

	var resp struct {
		Property []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"property"`
	}

	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetching statistics for build %d: %w", buildID, err)
	}

	stats := make(map[string]int64, len(resp.Property))

	for _, prop := range resp.Property {
		value, err := strconv.ParseInt(prop.Value, 10, 64)
		if err != nil {
			continue
		}

		stats[prop.Name] = value
	}

	return stats, nil
}

// BuildMetadata returns the build's display name, project path,
// authoritative test count and VCS revisions.
func (c *HTTPClient) BuildMetadata(
	ctx context.Context, buildID int64,
) (*Build, error) {
	path := fmt.Sprintf(
		"/app/rest/builds/id:%d?fields=id,number,buildType(name,projectName),testOccurrences(count),revisions(revision(version))",
		buildID,
	)

	var resp struct {
		ID     int64  `json:"id"`
		Number string `json:"number"`

		BuildType struct {
			Name        string `json:"name"`
			ProjectName string `json:"projectName"`
		} `json:"buildType"`

		TestOccurrences *struct {
			Count int `json:"count"`
		} `json:"testOccurrences"`

		Revisions struct {
			Revision []struct {
				Version string `json:"version"`
			} `json:"revision"`
		} `json:"revisions"`
	}

	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetching metadata for build %d: %w", buildID, err)
	}

	build := &Build{
		ID:          resp.ID,
		DisplayName: resp.Number,
		ProjectPath: resp.BuildType.ProjectName + " / " + resp.BuildType.Name,
	}

	if resp.TestOccurrences != nil {
		count := resp.TestOccurrences.Count
		build.TestCount = &count
	}

	for _, rev := range resp.Revisions.Revision {
		build.Revisions = append(build.Revisions, rev.Version)
	}

	return build, nil
}

// TestOccurrencesPage returns one page of a build's test occurrences
// starting at offset. HasNext mirrors the server's nextHref signal.
func (c *HTTPClient) TestOccurrencesPage(
	ctx context.Context, buildID int64, offset int,
) (*TestOccurrencePage, error) {
	path := fmt.Sprintf(
		"/app/rest/testOccurrences?locator=build:(id:%d),start:%d,count:%d&fields=count,nextHref,testOccurrence(id,name,duration)",
		buildID, offset, c.pageSize,
	)

	var resp struct {
		Count    int    `json:"count"`
		NextHref string `json:"nextHref"`

		TestOccurrence []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Duration int64  `json:"duration"`
		} `json:"testOccurrence"`
	}

	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetching test occurrences for build %d: %w", buildID, err)
	}

	page := &TestOccurrencePage{
		Count:   resp.Count,
		Items:   make([]TestOccurrence, 0, len(resp.TestOccurrence)),
		HasNext: resp.NextHref != "",
	}

	for _, occ := range resp.TestOccurrence {
		page.Items = append(page.Items, TestOccurrence{
			ID:       occ.ID,
			Name:     occ.Name,
			Duration: occ.Duration,
		})
	}

	return page, nil
}

// get performs a rate-limited, authenticated GET and decodes the JSON
// response into out.
func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx, http.MethodGet, c.cfg.BaseURL+path, nil,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	c.log.WithField("path", path).Debug("GET")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
