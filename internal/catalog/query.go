package catalog

import (
	"sort"
	"strings"
)

// Sort keys accepted by ListQuery.
const (
	SortByName   = "name"
	SortByRating = "rating"
	SortByFamily = "family"
	SortByRank   = "rank"
)

// ListQuery captures the list endpoint's pagination, filter and sort knobs.
type ListQuery struct {
	Page     int
	PageSize int
	Family   string
	Desktop  string
	Search   string
	SortBy   string
	Order    string
}

// Normalize clamps pagination and fills defaults.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	if q.SortBy == "" {
		q.SortBy = SortByName
	}
	if q.Order == "" {
		q.Order = "asc"
	}
	return q
}

// ListResult is the paginated answer to a ListQuery.
type ListResult struct {
	Distributions []Distribution `json:"distros"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
}

// Apply filters, sorts and paginates a snapshot's records, in that order.
// The input slice is never mutated.
func (q ListQuery) Apply(distros []Distribution) ListResult {
	q = q.Normalize()

	filtered := make([]Distribution, 0, len(distros))
	for _, d := range distros {
		if !q.matches(d) {
			continue
		}
		filtered = append(filtered, d)
	}

	sortDistributions(filtered, q.SortBy, strings.EqualFold(q.Order, "desc"))

	total := len(filtered)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return ListResult{
		Distributions: filtered[start:end],
		Total:         total,
		Page:          q.Page,
		PageSize:      q.PageSize,
	}
}

func (q ListQuery) matches(d Distribution) bool {
	if q.Family != "" && !strings.EqualFold(d.Family, q.Family) {
		return false
	}
	if q.Desktop != "" && !containsFold(d.DesktopEnvironments, q.Desktop) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(d.Name), needle) &&
			!strings.Contains(strings.ToLower(d.Description), needle) {
			return false
		}
	}
	return true
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func sortDistributions(distros []Distribution, key string, desc bool) {
	less := func(i, j int) bool {
		return strings.ToLower(distros[i].Name) < strings.ToLower(distros[j].Name)
	}
	switch key {
	case SortByRating:
		less = func(i, j int) bool { return distros[i].Rating < distros[j].Rating }
	case SortByFamily:
		less = func(i, j int) bool {
			return strings.ToLower(distros[i].Family) < strings.ToLower(distros[j].Family)
		}
	case SortByRank:
		// Unranked records sort last regardless of order; desc only
		// inverts the comparison between two ranked records.
		less = func(i, j int) bool {
			ri, rj := distros[i].PopularityRank, distros[j].PopularityRank
			if ri == 0 {
				return false
			}
			if rj == 0 {
				return true
			}
			if desc {
				return ri > rj
			}
			return ri < rj
		}
		sort.SliceStable(distros, less)
		return
	}
	if desc {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	sort.SliceStable(distros, less)
}

// FindByID returns the record with the given slug, if present.
func FindByID(distros []Distribution, id string) (Distribution, bool) {
	for _, d := range distros {
		if strings.EqualFold(d.ID, id) {
			return d, true
		}
	}
	return Distribution{}, false
}
