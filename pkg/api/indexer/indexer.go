// Package indexer periodically scans results directories and maintains
// the report index used by the API's listing endpoints.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildgauge/buildgauge/pkg/api/indexstore"
	"github.com/buildgauge/buildgauge/pkg/api/storage"
	"github.com/buildgauge/buildgauge/pkg/report"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is the number of reports indexed in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Indexer is a background service that periodically scans storage and
// upserts indexed report data into the index store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       indexstore.Store
	reader      storage.Reader
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new background indexer.
func NewIndexer(
	log logrus.FieldLogger,
	store indexstore.Store,
	reader storage.Reader,
	interval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       store,
		reader:      reader,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval. The first pass is
// asynchronous so the caller (the API server) is not blocked.
func (idx *indexer) Start(ctx context.Context) error {
	idx.log.WithFields(logrus.Fields{
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		// Run one pass immediately.
		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	close(idx.done)
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

// runPass executes one full indexing pass across all discovery paths.
func (idx *indexer) runPass(ctx context.Context) {
	start := time.Now()
	paths := idx.reader.DiscoveryPaths()

	idx.log.WithField("discovery_paths", len(paths)).
		Info("Indexing pass started")

	for _, dp := range paths {
		select {
		case <-ctx.Done():
			return
		case <-idx.done:
			return
		default:
		}

		if err := idx.indexDiscoveryPath(ctx, dp); err != nil {
			idx.log.WithError(err).
				WithField("discovery_path", dp).
				Warn("Indexing pass failed for discovery path")
		}
	}

	idx.log.WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Indexing pass completed")
}

// indexDiscoveryPath indexes every report directory under a single
// discovery path using a bounded worker pool. Reports are re-read each
// pass; the analyzer overwrites them in place when it runs again, so the
// index always converges on the latest generation.
func (idx *indexer) indexDiscoveryPath(
	ctx context.Context, dp string,
) error {
	dirs, err := idx.reader.ListReportDirs(ctx, dp)
	if err != nil {
		return fmt.Errorf("listing report directories: %w", err)
	}

	dpLog := idx.log.WithField("discovery_path", dp)
	dpLog.WithField("reports", len(dirs)).Info("Scanning discovery path")

	if len(dirs) == 0 {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed atomic.Int64

	for _, configurationID := range dirs {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-idx.done:
				return nil
			default:
			}

			if err := idx.indexReport(gCtx, dp, configurationID); err != nil {
				dpLog.WithError(err).
					WithField("configuration", configurationID).
					Warn("Failed to index report")

				return nil //nolint:nilerr // log and continue
			}

			indexed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing reports: %w", err)
	}

	if count := indexed.Load(); count > 0 {
		dpLog.WithField("count", count).
			Info("Discovery path indexing complete")
	}

	return nil
}

// indexReport reads a configuration's report.json, builds the index
// model and upserts it into the store.
func (idx *indexer) indexReport(
	ctx context.Context, dp, configurationID string,
) error {
	data, err := idx.reader.GetReportFile(
		ctx, dp, configurationID, report.FileJSON,
	)
	if err != nil {
		return fmt.Errorf("reading report file: %w", err)
	}

	if data == nil {
		return fmt.Errorf("report file not found")
	}

	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing report: %w", err)
	}

	if doc.Result == nil {
		return fmt.Errorf("report has no payload")
	}

	entry := &indexstore.Report{
		DiscoveryPath:    dp,
		ConfigurationID:  configurationID,
		BuildDisplayName: doc.BuildDisplayName,
		ProjectPath:      doc.ProjectPath,
		TestCount:        doc.TestCount,
		MergedSamples:    doc.MergedSamples,
		NoData:           doc.BuildDist == nil,
		GeneratedAt:      doc.GeneratedAt,
		IndexedAt:        time.Now().UTC(),
	}

	if doc.BuildDist != nil {
		entry.BuildTimeMS = doc.BuildDist.AverageTotal()
	}

	if doc.TestDist != nil {
		entry.TestTimeMS = doc.TestDist.AverageTotal()
	}

	if doc.Classification != nil {
		entry.ThresholdMS = doc.Classification.Threshold
		entry.SlowTests = len(doc.Classification.Slow)
		entry.FastTests = len(doc.Classification.Fast)
	}

	// Serialize DB writes to avoid SQLite BUSY errors under concurrency.
	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.store.UpsertReport(ctx, entry); err != nil {
		return fmt.Errorf("upserting report: %w", err)
	}

	return nil
}
