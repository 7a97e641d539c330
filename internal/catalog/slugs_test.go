package catalog

import "testing"

func TestDistroWatchSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"ubuntu", "ubuntu"},
		{"ArchLinux", "arch"},
		{"linuxmint", "mint"},
		{"popos", "pop"},
		{"cachyos", "cachy"},
		{"RockyLinux", "rocky"},
		{"voidlinux", "void"},
		{"garuda", "garuda"},
	}
	for _, tt := range tests {
		if got := DistroWatchSlug(tt.in); got != tt.want {
			t.Fatalf("DistroWatchSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKnownMissing(t *testing.T) {
	t.Parallel()

	if !KnownMissing("holoiso") {
		t.Fatal("expected holoiso to be flagged missing")
	}
	if KnownMissing("ubuntu") {
		t.Fatal("ubuntu should not be flagged missing")
	}
}
