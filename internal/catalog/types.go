// Package catalog defines core types shared across subsystems.
package catalog

import "time"

// SnapshotSource identifies where a snapshot's records came from.
type SnapshotSource string

// Snapshot sources persisted in the cache file.
const (
	SourceDistroWatch SnapshotSource = "distrowatch"
	SourceSheet       SnapshotSource = "sheet"
)

// ScraperVersion is stamped into every snapshot so stale formats can be
// detected after a deploy.
const ScraperVersion = "1.3.0"

// Distribution is one catalog record, sourced from either a spreadsheet row
// or a scraped DistroWatch detail page.
type Distribution struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Family              string   `json:"family"`
	BasedOn             string   `json:"based_on,omitempty"`
	Description         string   `json:"description,omitempty"`
	DesktopEnvironments []string `json:"desktop_environments,omitempty"`
	PackageManager      string   `json:"package_manager,omitempty"`
	Architectures       []string `json:"architectures,omitempty"`
	InitSystem          string   `json:"init_system,omitempty"`
	FileSystems         []string `json:"file_systems,omitempty"`
	ReleaseType         string   `json:"release_type,omitempty"`
	PopularityRank      int      `json:"popularity_rank,omitempty"`
	Rating              float64  `json:"rating,omitempty"`
	LatestRelease       string   `json:"latest_release,omitempty"`
	ReleaseYear         int      `json:"release_year,omitempty"`
	Homepage            string   `json:"homepage,omitempty"`
	Status              string   `json:"status,omitempty"`
}

// ScrapeCounters tracks per-run success/failure stats.
type ScrapeCounters struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Retries   int `json:"retries"`
}

// Snapshot is one full replacement copy of the catalog. Refreshes replace the
// whole snapshot; there is no incremental merge.
type Snapshot struct {
	ScrapedAt      time.Time      `json:"scraped_at"`
	Source         SnapshotSource `json:"source"`
	ScraperVersion string         `json:"scraper_version"`
	Counters       ScrapeCounters `json:"counters"`
	Distributions  []Distribution `json:"distros"`
}

// CacheInfo describes the snapshot currently on disk.
type CacheInfo struct {
	Exists         bool           `json:"exists"`
	ScrapedAt      time.Time      `json:"scraped_at,omitempty"`
	Source         SnapshotSource `json:"source,omitempty"`
	ScraperVersion string         `json:"scraper_version,omitempty"`
	AgeSeconds     int64          `json:"age_seconds,omitempty"`
	TTLSeconds     int64          `json:"ttl_seconds"`
	Stale          bool           `json:"stale"`
	Records        int            `json:"records"`
}

// RunState is the lifecycle state of the background scrape task.
type RunState string

// Run states reported by the status endpoint.
const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
)

// RunStatus is a point-in-time view of the background scrape task.
type RunStatus struct {
	State     RunState       `json:"state"`
	RunID     string         `json:"run_id,omitempty"`
	Started   *time.Time     `json:"started_at,omitempty"`
	Finished  *time.Time     `json:"finished_at,omitempty"`
	Counters  ScrapeCounters `json:"counters"`
	LastError string         `json:"last_error,omitempty"`
}

// ScrapeOptions overrides the configured crawl parameters for one run.
// Zero values fall back to the configured defaults.
type ScrapeOptions struct {
	Limit    int    `json:"limit,omitempty"`
	DataSpan string `json:"dataspan,omitempty"`
}

// RankingEntry is one row of the DistroWatch popularity table.
type RankingEntry struct {
	Rank int    `json:"rank"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// VoteStatus is the moderation state of a community row. The catalog only
// writes and reads these values; moderation itself happens elsewhere.
type VoteStatus string

// Community row states.
const (
	StatusPending  VoteStatus = "pending"
	StatusApproved VoteStatus = "approved"
	StatusRejected VoteStatus = "rejected"
)

// Vote is a user rating for a distribution.
type Vote struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	DistroID  string     `json:"distro_id"`
	Score     int        `json:"score"`
	Status    VoteStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Edit is a crowd-sourced field correction for a distribution.
type Edit struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	DistroID  string     `json:"distro_id"`
	Field     string     `json:"field"`
	Value     string     `json:"value"`
	Status    VoteStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
