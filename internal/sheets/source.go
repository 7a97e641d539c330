// Package sheets loads the community-maintained spreadsheet export as a
// catalog source. Read path only: the published CSV needs no credentials.
package sheets

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/distrowiki/catalogd/internal/catalog"
)

// Config controls the sheet source.
type Config struct {
	CSVURL  string
	Timeout time.Duration
}

// Source implements catalog.Source over a published spreadsheet CSV export.
type Source struct {
	cfg    Config
	client *resty.Client
	logger *zap.Logger
}

// New builds a Source.
func New(cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.CSVURL == "" {
		return nil, fmt.Errorf("csv url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	return &Source{cfg: cfg, client: client, logger: logger}, nil
}

// FetchAll downloads the CSV export and converts rows to Distributions.
// Rows without a name are skipped; a malformed row never fails the batch.
func (s *Source) FetchAll(ctx context.Context) ([]catalog.Distribution, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.cfg.CSVURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet csv: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch sheet csv: unexpected status %d", resp.StatusCode())
	}

	distros, err := parseCSV(resp.Body())
	if err != nil {
		return nil, err
	}
	s.logger.Info("sheet sync parsed", zap.Int("records", len(distros)))
	return distros, nil
}

func parseCSV(data []byte) ([]catalog.Distribution, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse sheet csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("sheet csv has no data rows")
	}

	header := records[0]
	var distros []catalog.Distribution
	for _, record := range records[1:] {
		row := rowMap(header, record)
		dist, ok := parseRow(row)
		if !ok {
			continue
		}
		distros = append(distros, dist)
	}
	if len(distros) == 0 {
		return nil, fmt.Errorf("sheet csv produced no usable rows")
	}
	return distros, nil
}

// rowMap keys a record by lowercased header names so column order in the
// sheet can change freely.
func rowMap(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, name := range header {
		if i >= len(record) {
			break
		}
		row[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(record[i])
	}
	return row
}

func parseRow(row map[string]string) (catalog.Distribution, bool) {
	name := row["name"]
	if name == "" {
		return catalog.Distribution{}, false
	}

	id := row["distro id"]
	if id == "" {
		id = normalizeID(name)
	}
	base := row["base"]
	if base == "" {
		base = row["os type"]
	}

	dist := catalog.Distribution{
		ID:                  id,
		Name:                name,
		Family:              mapFamily(base),
		BasedOn:             base,
		Description:         row["description"],
		DesktopEnvironments: parseDesktops(row["desktop"]),
		PackageManager:      row["package management"],
		Architectures:       splitList(row["architecture"]),
		Homepage:            row["website"],
		Status:              row["status"],
	}
	if rating, err := strconv.ParseFloat(row["rating"], 64); err == nil {
		dist.Rating = rating
	}
	dist.LatestRelease, dist.ReleaseYear = parseReleaseDate(row["release date"])
	return dist, true
}

func normalizeID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "-")
	return strings.ReplaceAll(id, "/", "-")
}

// Matching is by substring over the base string, first hit wins.
var familyMapping = []struct {
	key    string
	family string
}{
	{"debian", "Debian"},
	{"ubuntu", "Ubuntu"},
	{"fedora", "Fedora"},
	{"red hat", "Fedora"},
	{"rhel", "Fedora"},
	{"arch", "Arch"},
	{"opensuse", "openSUSE"},
	{"suse", "openSUSE"},
	{"gentoo", "Gentoo"},
	{"slackware", "Slackware"},
	{"independent", "Independent"},
}

func mapFamily(base string) string {
	lower := strings.ToLower(strings.TrimSpace(base))
	if lower == "" {
		return "Independent"
	}
	for _, m := range familyMapping {
		if strings.Contains(lower, m.key) {
			return m.family
		}
	}
	return "Independent"
}

var desktopMapping = map[string]string{
	"gnome":    "GNOME",
	"kde":      "KDE",
	"plasma":   "KDE",
	"xfce":     "Xfce",
	"mate":     "MATE",
	"cinnamon": "Cinnamon",
	"lxde":     "LXDE",
	"lxqt":     "LXQt",
	"budgie":   "Budgie",
	"pantheon": "Pantheon",
	"deepin":   "Deepin",
	"i3":       "i3",
	"sway":     "Sway",
}

func parseDesktops(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range splitList(s) {
		de := part
		lower := strings.ToLower(part)
		for key, canonical := range desktopMapping {
			if strings.Contains(lower, key) {
				de = canonical
				break
			}
		}
		if !seen[de] {
			seen[de] = true
			out = append(out, de)
		}
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var releaseDateLayouts = []string{"2006-01-02", "02/01/2006", "01/02/2006", "2 January 2006"}

func parseReleaseDate(s string) (string, int) {
	if s == "" {
		return "", 0
	}
	for _, layout := range releaseDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.Format("02/01/2006"), t.Year()
	}
	return s, 0
}
