package refresher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distrowiki/catalogd/internal/catalog"
)

type fakeCrawler struct {
	mu          sync.Mutex
	entries     []catalog.RankingEntry
	rankingErr  error
	failSlugs   map[string]int // slug -> remaining failures before success
	alwaysFail  map[string]bool
	block       chan struct{} // when set, detail fetches wait on it
	detailCalls int
}

func (f *fakeCrawler) Ranking(_ context.Context, _ catalog.ScrapeOptions) ([]catalog.RankingEntry, error) {
	if f.rankingErr != nil {
		return nil, f.rankingErr
	}
	return f.entries, nil
}

func (f *fakeCrawler) Distribution(ctx context.Context, entry catalog.RankingEntry) (catalog.Distribution, error) {
	f.mu.Lock()
	f.detailCalls++
	if f.block != nil {
		block := f.block
		f.mu.Unlock()
		select {
		case <-block:
		case <-ctx.Done():
			return catalog.Distribution{}, ctx.Err()
		}
		f.mu.Lock()
	}
	defer f.mu.Unlock()

	if f.alwaysFail[entry.Slug] {
		return catalog.Distribution{}, fmt.Errorf("fetch %s: boom", entry.Slug)
	}
	if n := f.failSlugs[entry.Slug]; n > 0 {
		f.failSlugs[entry.Slug] = n - 1
		return catalog.Distribution{}, fmt.Errorf("fetch %s: transient", entry.Slug)
	}
	return catalog.Distribution{ID: entry.Slug, Name: entry.Name, PopularityRank: entry.Rank}, nil
}

func (f *fakeCrawler) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls
}

type memStore struct {
	mu    sync.Mutex
	snap  *catalog.Snapshot
	saves int
	err   error
}

func (s *memStore) Load(context.Context) (catalog.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return catalog.Snapshot{}, false, nil
	}
	return *s.snap, true, nil
}

func (s *memStore) Save(_ context.Context, snap catalog.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snap = &snap
	s.saves++
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

func (s *memStore) Info(context.Context) (catalog.CacheInfo, error) {
	return catalog.CacheInfo{}, nil
}

type memArchive struct {
	mu    sync.Mutex
	paths []string
}

func (a *memArchive) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
	return "mem://" + path, nil
}

type memPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *memPublisher) Publish(_ context.Context, topic string, _ any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return "msg-1", nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDs struct{ n int }

func (g *fakeIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("run-%04d", g.n), nil
}

type fixture struct {
	refresher *Refresher
	crawler   *fakeCrawler
	store     *memStore
	archive   *memArchive
	publisher *memPublisher
}

func newFixture(t *testing.T, crawler *fakeCrawler, sheet catalog.Source) *fixture {
	t.Helper()
	store := &memStore{}
	archive := &memArchive{}
	publisher := &memPublisher{}
	r, err := New(Config{Topic: "catalog-refresh", ArchivePrefix: "snapshots"}, Deps{
		Crawler:   crawler,
		Sheet:     sheet,
		Store:     store,
		Archive:   archive,
		Publisher: publisher,
		Clock:     &fakeClock{now: time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC)},
		IDs:       &fakeIDs{},
		Retry:     NewExponentialRetryPolicy(3, time.Millisecond, 2*time.Millisecond),
	})
	require.NoError(t, err)
	return &fixture{refresher: r, crawler: crawler, store: store, archive: archive, publisher: publisher}
}

func waitIdle(t *testing.T, r *Refresher) catalog.RunStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status := r.Status()
		if status.State == catalog.RunStateIdle && status.Finished != nil {
			return status
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("refresh run did not finish in time")
	return catalog.RunStatus{}
}

func entries(slugs ...string) []catalog.RankingEntry {
	out := make([]catalog.RankingEntry, len(slugs))
	for i, slug := range slugs {
		out[i] = catalog.RankingEntry{Rank: i + 1, Slug: slug, Name: slug}
	}
	return out
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeCrawler{entries: entries("mint", "debian", "arch")}, nil)
	runID, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)
	require.Equal(t, "run-0001", runID)

	status := waitIdle(t, f.refresher)
	require.Empty(t, status.LastError)
	require.Equal(t, 3, status.Counters.Succeeded)
	require.Zero(t, status.Counters.Failed)

	snap, ok, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, catalog.SourceDistroWatch, snap.Source)
	require.Equal(t, catalog.ScraperVersion, snap.ScraperVersion)
	require.Len(t, snap.Distributions, 3)

	require.Equal(t, []string{"snapshots/2025/08/30/run-run-0001.json"}, f.archive.paths)
	require.Equal(t, []string{"catalog-refresh"}, f.publisher.topics)
}

func TestRunSkipsSlugsWithoutDetailPages(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{entries: entries("mint", "holoiso", "arch")}
	f := newFixture(t, crawler, nil)
	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)

	status := waitIdle(t, f.refresher)
	require.Empty(t, status.LastError)
	require.Equal(t, 2, status.Counters.Succeeded)
	require.Equal(t, 1, status.Counters.Skipped)
	require.Equal(t, 2, crawler.calls())
}

func TestRunPartialFailure(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{
		entries:    entries("mint", "broken", "arch"),
		alwaysFail: map[string]bool{"broken": true},
	}
	f := newFixture(t, crawler, nil)
	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)

	status := waitIdle(t, f.refresher)
	require.Empty(t, status.LastError) // partial results still count as success
	require.Equal(t, 2, status.Counters.Succeeded)
	require.Equal(t, 1, status.Counters.Failed)

	snap, ok, _ := f.store.Load(context.Background())
	require.True(t, ok)
	require.Len(t, snap.Distributions, 2)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{
		entries:   entries("flaky"),
		failSlugs: map[string]int{"flaky": 2},
	}
	f := newFixture(t, crawler, nil)
	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)

	status := waitIdle(t, f.refresher)
	require.Equal(t, 1, status.Counters.Succeeded)
	require.Equal(t, 2, status.Counters.Retries)
}

func TestRunTotalFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{
		entries:    entries("a", "b"),
		alwaysFail: map[string]bool{"a": true, "b": true},
	}
	f := newFixture(t, crawler, nil)

	previous := catalog.Snapshot{Source: catalog.SourceSheet, Distributions: entriesToDistros("old")}
	require.NoError(t, f.store.Save(context.Background(), previous))

	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)

	status := waitIdle(t, f.refresher)
	require.NotEmpty(t, status.LastError)
	require.Equal(t, 2, status.Counters.Failed)

	snap, ok, _ := f.store.Load(context.Background())
	require.True(t, ok)
	require.Equal(t, catalog.SourceSheet, snap.Source) // untouched
	require.Empty(t, f.archive.paths)
}

func TestStartWhileRunningConflicts(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	crawler := &fakeCrawler{entries: entries("mint"), block: block}
	f := newFixture(t, crawler, nil)

	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.refresher.Status().State == catalog.RunStateRunning
	}, time.Second, time.Millisecond)

	_, err = f.refresher.Start(catalog.ScrapeOptions{})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	waitIdle(t, f.refresher)
}

func TestStopCancelsRun(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	crawler := &fakeCrawler{entries: entries("mint", "arch"), block: block}
	f := newFixture(t, crawler, nil)

	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.refresher.Status().State == catalog.RunStateRunning
	}, time.Second, time.Millisecond)

	require.True(t, f.refresher.Stop())
	status := waitIdle(t, f.refresher)
	require.NotEmpty(t, status.LastError)

	_, ok, _ := f.store.Load(context.Background())
	require.False(t, ok)
	require.False(t, f.refresher.Stop()) // nothing left to stop
}

type stubSheet struct {
	distros []catalog.Distribution
	err     error
}

func (s *stubSheet) FetchAll(context.Context) ([]catalog.Distribution, error) {
	return s.distros, s.err
}

func TestSyncSheet(t *testing.T) {
	t.Parallel()

	sheet := &stubSheet{distros: entriesToDistros("ubuntu", "fedora")}
	f := newFixture(t, &fakeCrawler{}, sheet)

	snap, err := f.refresher.SyncSheet(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.SourceSheet, snap.Source)
	require.Len(t, snap.Distributions, 2)

	stored, ok, _ := f.store.Load(context.Background())
	require.True(t, ok)
	require.Equal(t, catalog.SourceSheet, stored.Source)
	require.Len(t, f.archive.paths, 1)
}

func TestSyncSheetConflictsWithRun(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	crawler := &fakeCrawler{entries: entries("mint"), block: block}
	sheet := &stubSheet{distros: entriesToDistros("ubuntu")}
	f := newFixture(t, crawler, sheet)

	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.refresher.Status().State == catalog.RunStateRunning
	}, time.Second, time.Millisecond)

	_, err = f.refresher.SyncSheet(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	waitIdle(t, f.refresher)
}

func TestResultsWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeCrawler{entries: entries("a", "b", "c", "d")}, nil)
	_, err := f.refresher.Start(catalog.ScrapeOptions{})
	require.NoError(t, err)
	waitIdle(t, f.refresher)

	all := f.refresher.Results(0, 0)
	require.Len(t, all, 4)

	window := f.refresher.Results(1, 2)
	require.Len(t, window, 2)
	require.Equal(t, "b", window[0].ID)
	require.Equal(t, "c", window[1].ID)

	require.Nil(t, f.refresher.Results(10, 5))
}

func entriesToDistros(ids ...string) []catalog.Distribution {
	out := make([]catalog.Distribution, len(ids))
	for i, id := range ids {
		out[i] = catalog.Distribution{ID: id, Name: id}
	}
	return out
}
