// Package proxy implements a rotating proxy pool with failure eviction.
package proxy

import (
	"errors"
	"net/url"
	"sync"
)

// ErrEmpty is returned by Next when no healthy proxy remains.
var ErrEmpty = errors.New("proxy pool is empty")

type entry struct {
	url      *url.URL
	failures int
}

// Pool hands out proxies round-robin. A proxy that fails failLimit times in
// a row is evicted; a success resets its counter.
type Pool struct {
	mu        sync.Mutex
	entries   []*entry
	next      int
	failLimit int
}

// NewPool builds a Pool that evicts after failLimit consecutive failures.
func NewPool(failLimit int) *Pool {
	if failLimit <= 0 {
		failLimit = 3
	}
	return &Pool{failLimit: failLimit}
}

// Add registers a proxy URL. Duplicates are ignored.
func (p *Pool) Add(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("proxy url must include scheme and host")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.url.String() == u.String() {
			return nil
		}
	}
	p.entries = append(p.entries, &entry{url: u})
	return nil
}

// Remove drops a proxy by URL. It reports whether anything was removed.
func (p *Pool) Remove(rawURL string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.url.String() == rawURL {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			if p.next > i {
				p.next--
			}
			return true
		}
	}
	return false
}

// Next returns the next proxy in rotation.
func (p *Pool) Next() (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return nil, ErrEmpty
	}
	if p.next >= len(p.entries) {
		p.next = 0
	}
	e := p.entries[p.next]
	p.next++
	return e.url, nil
}

// MarkFailure counts a failure against the proxy and evicts it once the
// limit is reached. It reports whether the proxy was evicted.
func (p *Pool) MarkFailure(u *url.URL) bool {
	if u == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.url.String() != u.String() {
			continue
		}
		e.failures++
		if e.failures >= p.failLimit {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			if p.next > i {
				p.next--
			}
			return true
		}
		return false
	}
	return false
}

// MarkSuccess resets the failure counter for the proxy.
func (p *Pool) MarkSuccess(u *url.URL) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.url.String() == u.String() {
			e.failures = 0
			return
		}
	}
}

// List returns the current proxy URLs in rotation order.
func (p *Pool) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.url.String())
	}
	return out
}

// Len reports how many proxies remain in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
