package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/distrowiki/catalogd/internal/catalog"
)

// Detail holds everything extractable from one distribution page.
type Detail struct {
	BasedOn        string
	Description    string
	Desktops       []string
	PackageManager string
	Architectures  []string
	InitSystem     string
	FileSystems    []string
	ReleaseType    string
	PopularityRank int
	LatestRelease  string
	ReleaseYear    int
	Homepage       string
	Status         string
}

const detailAnchorSel = "a[href*='table.php?distribution=']"

var (
	firstNumberRe = regexp.MustCompile(`\d+`)
	releaseDateRe = regexp.MustCompile(`&nbsp;&bull;\s*(\d{4})-(\d{2})-(\d{2})`)
)

// ParseRankingList extracts ranked distribution entries from the popularity
// page. The primary source is the ranking table; when the page layout shifts
// and the table is missing, every detail-page anchor is taken instead, in
// document order, capped at limit.
func ParseRankingList(body []byte, baseURL string, limit int) ([]catalog.RankingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ranking page: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	entries := parseRankingTable(doc, baseURL)
	if len(entries) == 0 {
		entries = parseRankingAnchors(doc, baseURL, limit)
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("ranking page contains no distribution links")
	}
	return entries, nil
}

func parseRankingTable(doc *goquery.Document, baseURL string) []catalog.RankingEntry {
	var entries []catalog.RankingEntry
	doc.Find("table.News tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 2 {
			return
		}
		link := cols.Eq(1).Find(detailAnchorSel).First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		slug := slugFromHref(href)
		if slug == "" {
			return
		}

		rank := len(entries) + 1
		if n, err := strconv.Atoi(strings.TrimSpace(cols.Eq(0).Text())); err == nil {
			rank = n
		}
		entries = append(entries, catalog.RankingEntry{
			Rank: rank,
			Slug: slug,
			Name: strings.TrimSpace(link.Text()),
			URL:  absoluteURL(baseURL, href),
		})
	})
	return entries
}

func parseRankingAnchors(doc *goquery.Document, baseURL string, limit int) []catalog.RankingEntry {
	var entries []catalog.RankingEntry
	seen := map[string]bool{}
	doc.Find(detailAnchorSel).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		slug := slugFromHref(href)
		if slug == "" || seen[slug] {
			return true
		}
		seen[slug] = true
		entries = append(entries, catalog.RankingEntry{
			Rank: len(entries) + 1,
			Slug: slug,
			Name: strings.TrimSpace(link.Text()),
			URL:  absoluteURL(baseURL, href),
		})
		return len(entries) < limit
	})
	return entries
}

// ParseDetail extracts the metadata table from one distribution page.
func ParseDetail(body []byte) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Detail{}, fmt.Errorf("parse detail page: %w", err)
	}

	d := Detail{
		BasedOn:        findInfoValue(doc, "Based on"),
		Desktops:       splitList(findInfoValue(doc, "Desktop")),
		PackageManager: findInfoValue(doc, "Package Management"),
		Architectures:  splitList(findInfoValue(doc, "Architecture")),
		InitSystem:     findInfoValue(doc, "Init Software", "Init"),
		FileSystems:    splitList(findInfoValue(doc, "File Systems", "Filesystems")),
		ReleaseType:    normalizeReleaseModel(findInfoValue(doc, "Release Model")),
		Status:         findInfoValue(doc, "Status"),
		Homepage:       findHomepage(doc),
		Description:    strings.TrimSpace(doc.Find("td.TablesTitle ul li").First().Text()),
	}

	d.PopularityRank = findRank(doc)
	d.LatestRelease, d.ReleaseYear = findLatestRelease(body)
	return d, nil
}

// findInfoValue locates a table cell whose text starts with one of the label
// aliases (case-insensitive) and returns the text of the next cell over.
func findInfoValue(doc *goquery.Document, labels ...string) string {
	value := ""
	doc.Find("th, td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		text := strings.TrimSpace(cell.Text())
		for _, label := range labels {
			if !hasFoldPrefix(text, label) {
				continue
			}
			next := cell.NextFiltered("td")
			if next.Length() == 0 {
				continue
			}
			value = strings.TrimSpace(next.Text())
			return false
		}
		return true
	})
	return value
}

func findHomepage(doc *goquery.Document) string {
	href := ""
	doc.Find("th, td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if !hasFoldPrefix(strings.TrimSpace(cell.Text()), "Home Page") {
			return true
		}
		link := cell.NextFiltered("td").Find("a[href]").First()
		if link.Length() > 0 {
			href, _ = link.Attr("href")
			return false
		}
		return true
	})
	return href
}

func findRank(doc *goquery.Document) int {
	rank := 0
	doc.Find("th, td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(cell.Text()), "page hit ranking") {
			return true
		}
		next := cell.NextFiltered("td")
		if next.Length() == 0 {
			return true
		}
		if m := firstNumberRe.FindString(next.Text()); m != "" {
			rank, _ = strconv.Atoi(m)
			return false
		}
		return true
	})
	return rank
}

// findLatestRelease pulls the newest release date from the raw markup. The
// release column renders dates as "&nbsp;&bull; YYYY-MM-DD" entities that
// goquery would decode away, so this works on the bytes directly.
func findLatestRelease(body []byte) (string, int) {
	m := releaseDateRe.FindSubmatch(body)
	if m == nil {
		return "", 0
	}
	year, month, day := string(m[1]), string(m[2]), string(m[3])
	y, _ := strconv.Atoi(year)
	return fmt.Sprintf("%s/%s/%s", day, month, year), y
}

func normalizeReleaseModel(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "rolling"):
		return "Rolling"
	case strings.Contains(lower, "lts"):
		return "LTS"
	case strings.Contains(lower, "fixed"):
		return "Point Release"
	default:
		return model
	}
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

func slugFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("distribution")
}

func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(href, "/")
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
