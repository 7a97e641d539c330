// Package noop provides an archive that discards everything. It keeps the
// refresh pipeline wiring uniform when archival is disabled.
package noop

import "context"

// Archive discards every object.
type Archive struct{}

// New creates a discarding archive.
func New() *Archive {
	return &Archive{}
}

// PutObject drops the data and reports a sentinel location.
func (Archive) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return "noop://" + path, nil
}
