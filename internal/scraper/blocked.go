package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
)

// BlockedError signals that the site refused or challenged the request.
// Callers may retry the URL through the headless fetcher.
type BlockedError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked fetching %s (status %d): %s", e.URL, e.StatusCode, e.Reason)
}

// IsBlocked reports whether err wraps a BlockedError.
func IsBlocked(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}

// Markers Cloudflare injects into challenge interstitials.
var challengeMarkers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("cf_chl_opt"),
	[]byte("Checking your browser"),
	[]byte("Just a moment..."),
	[]byte("Attention Required! | Cloudflare"),
}

// detectBlock inspects a response and returns a BlockedError when the page
// is a refusal or a bot challenge rather than real content.
func detectBlock(url string, status int, body []byte) error {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return &BlockedError{URL: url, StatusCode: status, Reason: http.StatusText(status)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &BlockedError{URL: url, StatusCode: status, Reason: "empty body"}
	}
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return &BlockedError{URL: url, StatusCode: status, Reason: "challenge page"}
		}
	}
	return nil
}
