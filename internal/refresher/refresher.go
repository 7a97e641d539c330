// Package refresher owns the background catalog refresh pipeline: crawl the
// ranking, fetch every detail page with per-item retry, and replace the
// cached snapshot only when the run produced at least one record.
package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/distrowiki/catalogd/internal/catalog"
	"github.com/distrowiki/catalogd/internal/metrics"
)

// ErrAlreadyRunning is returned when a refresh is requested while one is in
// progress. The API surfaces it as HTTP 409.
var ErrAlreadyRunning = errors.New("a refresh is already running")

// CrawlSource fetches the ranking list and individual detail records.
type CrawlSource interface {
	Ranking(ctx context.Context, opts catalog.ScrapeOptions) ([]catalog.RankingEntry, error)
	Distribution(ctx context.Context, entry catalog.RankingEntry) (catalog.Distribution, error)
}

// Config controls the refresh pipeline.
type Config struct {
	Topic         string
	ArchivePrefix string
}

// Deps are the collaborators a Refresher needs. Archive and Publisher may be
// noop implementations but must not be nil.
type Deps struct {
	Crawler   CrawlSource
	Sheet     catalog.Source
	Store     catalog.SnapshotStore
	Archive   catalog.ArchiveStore
	Publisher catalog.Publisher
	Clock     catalog.Clock
	IDs       catalog.IDGenerator
	Retry     *ExponentialRetryPolicy
	Logger    *zap.Logger
}

// Refresher runs at most one refresh at a time.
type Refresher struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	status  catalog.RunStatus
	results []catalog.Distribution
}

// New builds a Refresher.
func New(cfg Config, deps Deps) (*Refresher, error) {
	switch {
	case deps.Crawler == nil:
		return nil, fmt.Errorf("crawl source is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("snapshot store is required")
	case deps.Archive == nil:
		return nil, fmt.Errorf("archive store is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Retry == nil {
		deps.Retry = NewExponentialRetryPolicy(0, 0, 0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = "catalog-refresh"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "snapshots"
	}
	metrics.Init()
	return &Refresher{cfg: cfg, deps: deps, status: catalog.RunStatus{State: catalog.RunStateIdle}}, nil
}

// Start launches a background refresh. It returns the run ID immediately, or
// ErrAlreadyRunning when a run is in flight. Options override the configured
// crawl limit and dataspan for this run.
func (r *Refresher) Start(opts catalog.ScrapeOptions) (string, error) {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	started := r.deps.Clock.Now()
	r.running = true
	r.cancel = cancel
	r.status = catalog.RunStatus{
		State:   catalog.RunStateRunning,
		RunID:   runID,
		Started: &started,
	}
	r.results = nil
	r.mu.Unlock()

	metrics.SetScrapeActive(true)
	go r.run(ctx, runID, opts)
	return runID, nil
}

// Stop cancels the in-flight run. It reports whether one was running.
func (r *Refresher) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Status returns a point-in-time copy of the run state.
func (r *Refresher) Status() catalog.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Results returns a window over the records produced by the latest run,
// including partial results of a run still in flight.
func (r *Refresher) Results(skip, limit int) []catalog.Distribution {
	r.mu.Lock()
	defer r.mu.Unlock()
	if skip < 0 {
		skip = 0
	}
	if skip >= len(r.results) {
		return nil
	}
	end := len(r.results)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	out := make([]catalog.Distribution, end-skip)
	copy(out, r.results[skip:end])
	return out
}

func (r *Refresher) run(ctx context.Context, runID string, opts catalog.ScrapeOptions) {
	logger := r.deps.Logger.With(zap.String("run_id", runID))
	logger.Info("refresh run started")

	entries, err := r.deps.Crawler.Ranking(ctx, opts)
	if err != nil {
		logger.Error("ranking fetch failed", zap.Error(err))
		r.finish(nil, catalog.ScrapeCounters{}, err)
		return
	}

	var (
		counters catalog.ScrapeCounters
		records  []catalog.Distribution
	)
	for _, entry := range entries {
		if ctx.Err() != nil {
			counters.Skipped = len(entries) - counters.Succeeded - counters.Failed - counters.Skipped
			break
		}
		if catalog.KnownMissing(entry.Slug) {
			counters.Skipped++
			logger.Debug("no detail page for slug, skipping", zap.String("slug", entry.Slug))
			continue
		}
		dist, retries, err := r.fetchWithRetry(ctx, entry)
		counters.Retries += retries
		if err != nil {
			counters.Failed++
			metrics.ObserveScrapePage("failed", 0)
			logger.Warn("detail fetch failed, skipping",
				zap.String("slug", entry.Slug),
				zap.Error(err),
			)
			continue
		}
		counters.Succeeded++
		records = append(records, dist)
		r.setPartial(records, counters)
	}

	if len(records) == 0 {
		err := fmt.Errorf("refresh produced no records (%d failed)", counters.Failed)
		if ctx.Err() != nil {
			err = fmt.Errorf("refresh canceled: %w", ctx.Err())
		}
		logger.Error("refresh run failed, previous snapshot kept", zap.Error(err))
		r.finish(records, counters, err)
		return
	}

	snap := catalog.Snapshot{
		ScrapedAt:      r.deps.Clock.Now(),
		Source:         catalog.SourceDistroWatch,
		ScraperVersion: catalog.ScraperVersion,
		Counters:       counters,
		Distributions:  records,
	}
	if err := r.persist(snap, runID, logger); err != nil {
		r.finish(records, counters, err)
		return
	}

	logger.Info("refresh run complete",
		zap.Int("records", len(records)),
		zap.Int("failed", counters.Failed),
		zap.Int("retries", counters.Retries),
	)
	r.finish(records, counters, nil)
}

func (r *Refresher) fetchWithRetry(ctx context.Context, entry catalog.RankingEntry) (catalog.Distribution, int, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		start := r.deps.Clock.Now()
		dist, err := r.deps.Crawler.Distribution(ctx, entry)
		if err == nil {
			metrics.ObserveScrapePage("success", r.deps.Clock.Now().Sub(start))
			return dist, attempt, nil
		}
		lastErr = err
		if !r.deps.Retry.ShouldRetry(err, attempt+1) {
			return catalog.Distribution{}, attempt, lastErr
		}

		timer := time.NewTimer(r.deps.Retry.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return catalog.Distribution{}, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// persist saves the snapshot, then best-effort archives a versioned copy and
// publishes the refresh event. Only the save can fail the run.
func (r *Refresher) persist(snap catalog.Snapshot, runID string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.deps.Store.Save(ctx, snap); err != nil {
		logger.Error("snapshot save failed", zap.Error(err))
		return fmt.Errorf("save snapshot: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		logger.Error("snapshot marshal for archive failed", zap.Error(err))
	} else {
		path := fmt.Sprintf("%s/%s/run-%s.json",
			r.cfg.ArchivePrefix, snap.ScrapedAt.UTC().Format("2006/01/02"), runID)
		if loc, err := r.deps.Archive.PutObject(ctx, path, "application/json", data); err != nil {
			logger.Warn("snapshot archive failed", zap.Error(err))
		} else {
			logger.Info("snapshot archived", zap.String("location", loc))
		}
	}

	event := map[string]any{
		"run_id":          runID,
		"source":          snap.Source,
		"scraper_version": snap.ScraperVersion,
		"scraped_at":      snap.ScrapedAt,
		"records":         len(snap.Distributions),
	}
	if id, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, event); err != nil {
		logger.Warn("refresh event publish failed", zap.Error(err))
	} else {
		logger.Debug("refresh event published", zap.String("message_id", id))
	}
	return nil
}

// SyncSheet replaces the snapshot from the spreadsheet source, synchronously.
// It shares the single-run lock with the crawl pipeline.
func (r *Refresher) SyncSheet(ctx context.Context) (catalog.Snapshot, error) {
	if r.deps.Sheet == nil {
		return catalog.Snapshot{}, fmt.Errorf("no sheet source configured")
	}
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("generate run id: %w", err)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return catalog.Snapshot{}, ErrAlreadyRunning
	}
	r.running = true
	started := r.deps.Clock.Now()
	r.status = catalog.RunStatus{State: catalog.RunStateRunning, RunID: runID, Started: &started}
	r.mu.Unlock()
	metrics.SetScrapeActive(true)

	distros, err := r.deps.Sheet.FetchAll(ctx)
	if err != nil {
		r.finish(nil, catalog.ScrapeCounters{}, fmt.Errorf("sheet sync: %w", err))
		return catalog.Snapshot{}, fmt.Errorf("sheet sync: %w", err)
	}

	snap := catalog.Snapshot{
		ScrapedAt:      r.deps.Clock.Now(),
		Source:         catalog.SourceSheet,
		ScraperVersion: catalog.ScraperVersion,
		Counters:       catalog.ScrapeCounters{Succeeded: len(distros)},
		Distributions:  distros,
	}
	if err := r.persist(snap, runID, r.deps.Logger.With(zap.String("run_id", runID))); err != nil {
		r.finish(distros, snap.Counters, err)
		return catalog.Snapshot{}, err
	}
	r.finish(distros, snap.Counters, nil)
	return snap, nil
}

func (r *Refresher) setPartial(records []catalog.Distribution, counters catalog.ScrapeCounters) {
	r.mu.Lock()
	r.results = append(r.results[:0], records...)
	r.status.Counters = counters
	r.mu.Unlock()
}

func (r *Refresher) finish(records []catalog.Distribution, counters catalog.ScrapeCounters, err error) {
	finished := r.deps.Clock.Now()

	r.mu.Lock()
	r.running = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.results = append(r.results[:0], records...)
	r.status.State = catalog.RunStateIdle
	r.status.Finished = &finished
	r.status.Counters = counters
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
	}
	r.mu.Unlock()

	metrics.SetScrapeActive(false)
	if err != nil {
		metrics.ObserveScrapeRun("failed")
	} else {
		metrics.ObserveScrapeRun("success")
	}
}
