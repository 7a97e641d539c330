package catalog

import "strings"

// catalogToDistroWatch maps catalog slugs to the IDs DistroWatch uses in
// table.php URLs where the two differ.
var catalogToDistroWatch = map[string]string{
	"archlinux":    "arch",
	"artixlinux":   "artix",
	"arcolinux":    "arco",
	"endeavouros":  "endeavour",
	"linuxmint":    "mint",
	"mxlinux":      "mx",
	"popos":        "pop",
	"pop_os":       "pop",
	"kdeneon":      "neon",
	"almalinux":    "alma",
	"rockylinux":   "rocky",
	"opensuse":     "opensuse",
	"dragonflybsd": "dragonfly",
	"cachyos":      "cachy",
}

// unknownOnDistroWatch lists slugs with no DistroWatch page (waiting list or
// absent entirely); scrapes skip them instead of burning requests.
var unknownOnDistroWatch = map[string]struct{}{
	"holoiso":  {},
	"tigeros":  {},
	"locos":    {},
	"anduinos": {},
}

// DistroWatchSlug converts a catalog ID to the slug DistroWatch expects.
// Falls back to stripping common "linux"/"os" suffixes before giving up and
// returning the normalized input.
func DistroWatchSlug(id string) string {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if mapped, ok := catalogToDistroWatch[normalized]; ok {
		return mapped
	}
	if trimmed, ok := strings.CutSuffix(normalized, "linux"); ok && trimmed != "" {
		if mapped, ok := catalogToDistroWatch[trimmed]; ok {
			return mapped
		}
		return trimmed
	}
	if trimmed, ok := strings.CutSuffix(normalized, "os"); ok && trimmed != "" {
		if mapped, ok := catalogToDistroWatch[trimmed]; ok {
			return mapped
		}
	}
	return normalized
}

// KnownMissing reports whether DistroWatch has no page for the slug.
func KnownMissing(id string) bool {
	_, ok := unknownOnDistroWatch[strings.ToLower(strings.TrimSpace(id))]
	return ok
}
