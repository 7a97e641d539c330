// Package scraper crawls DistroWatch for distribution metadata while staying
// under anti-bot radar: rotated browser headers, jittered pacing between
// requests, cookie persistence, and a headless-browser fallback for pages
// that serve a challenge instead of content.
package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/distrowiki/catalogd/internal/catalog"
)

// Config controls the crawl.
type Config struct {
	BaseURL  string
	DataSpan string
	Limit    int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Scraper fetches and parses DistroWatch pages. It does not orchestrate
// runs; the refresher owns retries, counters and snapshot assembly.
type Scraper struct {
	cfg      Config
	fetcher  Fetcher
	headless Fetcher
	pacer    *pacer
	logger   *zap.Logger
}

// New builds a Scraper. headless may be nil when no fallback is configured.
func New(cfg Config, fetcher Fetcher, headless Fetcher, logger *zap.Logger) (*Scraper, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.DataSpan == "" {
		cfg.DataSpan = "1"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 3 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay + 4*time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		cfg:      cfg,
		fetcher:  fetcher,
		headless: headless,
		pacer:    &pacer{min: cfg.MinDelay, max: cfg.MaxDelay},
		logger:   logger,
	}, nil
}

// Ranking fetches the popularity page and returns ranked entries. Options
// override the configured dataspan and entry limit for this call only.
func (s *Scraper) Ranking(ctx context.Context, opts catalog.ScrapeOptions) ([]catalog.RankingEntry, error) {
	span := s.cfg.DataSpan
	if opts.DataSpan != "" {
		span = opts.DataSpan
	}
	limit := s.cfg.Limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	pageURL := fmt.Sprintf("%s/index.php?dataspan=%s", s.cfg.BaseURL, span)
	page, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	entries, err := ParseRankingList(page.Body, s.cfg.BaseURL, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ranking page scraped",
		zap.Int("entries", len(entries)),
		zap.Bool("headless", page.UsedHeadless),
	)
	return entries, nil
}

// Distribution fetches one detail page and builds a Distribution record.
func (s *Scraper) Distribution(ctx context.Context, entry catalog.RankingEntry) (catalog.Distribution, error) {
	pageURL := fmt.Sprintf("%s/table.php?distribution=%s", s.cfg.BaseURL, catalog.DistroWatchSlug(entry.Slug))
	page, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		return catalog.Distribution{}, err
	}
	detail, err := ParseDetail(page.Body)
	if err != nil {
		return catalog.Distribution{}, err
	}

	dist := catalog.Distribution{
		ID:                  entry.Slug,
		Name:                entry.Name,
		BasedOn:             detail.BasedOn,
		Description:         detail.Description,
		DesktopEnvironments: detail.Desktops,
		PackageManager:      detail.PackageManager,
		Architectures:       detail.Architectures,
		InitSystem:          detail.InitSystem,
		FileSystems:         detail.FileSystems,
		ReleaseType:         detail.ReleaseType,
		PopularityRank:      detail.PopularityRank,
		LatestRelease:       detail.LatestRelease,
		ReleaseYear:         detail.ReleaseYear,
		Homepage:            detail.Homepage,
		Status:              detail.Status,
	}
	if dist.PopularityRank == 0 {
		dist.PopularityRank = entry.Rank
	}
	if dist.Name == "" {
		dist.Name = entry.Slug
	}
	return dist, nil
}

// fetchPage paces the request, runs the probe fetcher, and promotes blocked
// fetches to the headless browser when one is configured.
func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (Page, error) {
	if err := s.pacer.wait(ctx); err != nil {
		return Page{}, err
	}

	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err == nil {
		return page, nil
	}
	if !IsBlocked(err) || s.headless == nil {
		return Page{}, err
	}

	s.logger.Warn("probe fetch blocked, retrying headless",
		zap.String("url", pageURL),
		zap.Error(err),
	)
	page, hErr := s.headless.Fetch(ctx, pageURL)
	if hErr != nil {
		return Page{}, fmt.Errorf("headless fallback after block: %w", hErr)
	}
	if bErr := detectBlock(page.URL, page.StatusCode, page.Body); bErr != nil {
		return Page{}, bErr
	}
	page.UsedHeadless = true
	return page, nil
}

// pacer enforces a randomized minimum gap between requests so the crawl does
// not tick like a metronome. The drawn delay gets an extra ±30% jitter.
type pacer struct {
	min, max time.Duration

	mu   sync.Mutex
	last time.Time
}

func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	var delay time.Duration
	if !p.last.IsZero() {
		span := p.max - p.min
		delay = p.min + time.Duration(rand.Int64N(int64(span)+1))
		delay = time.Duration(float64(delay) * (0.7 + rand.Float64()*0.6))
		if elapsed := time.Since(p.last); elapsed > 0 {
			delay -= elapsed
		}
	}
	p.last = time.Now()
	p.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
