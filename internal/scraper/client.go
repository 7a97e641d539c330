package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
)

// Page is the raw result of fetching one URL.
type Page struct {
	URL          string
	StatusCode   int
	Body         []byte
	UsedHeadless bool
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// ProxySelector hands out proxies and records their outcomes.
type ProxySelector interface {
	Next() (*url.URL, error)
	MarkFailure(u *url.URL) bool
	MarkSuccess(u *url.URL)
	Len() int
}

// ClientConfig controls the probe fetcher.
type ClientConfig struct {
	Timeout          time.Duration
	CloudflareBypass bool
}

// Client implements Fetcher with a Colly collector. Each request carries a
// rotated browser header set and shares one cookie jar, so the session looks
// like a single returning visitor.
type Client struct {
	cfg           ClientConfig
	jar           http.CookieJar
	transport     http.RoundTripper
	proxies       ProxySelector
	baseCollector *colly.Collector

	mu        sync.Mutex
	lastProxy *url.URL
}

// NewClient builds a Client. proxies may be nil.
func NewClient(cfg ClientConfig, proxies ProxySelector) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("build cookie jar: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		jar:     jar,
		proxies: proxies,
	}

	transport := newHTTPTransport()
	transport.Proxy = c.selectProxy
	c.transport = http.RoundTripper(transport)
	if cfg.CloudflareBypass {
		c.transport = cloudflarebp.AddCloudFlareByPass(transport)
	}

	base := colly.NewCollector(colly.Async(false))
	base.WithTransport(c.transport)
	c.baseCollector = base
	return c, nil
}

// Fetch executes a single GET and reports a BlockedError when the response
// looks like a refusal or a bot challenge.
func (c *Client) Fetch(ctx context.Context, pageURL string) (Page, error) {
	var (
		result   Page
		fetchErr error
	)
	collector := c.buildCollector(&result, &fetchErr)

	if err := c.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		c.markProxyFailure()
		return Page{}, err
	}
	if err := detectBlock(result.URL, result.StatusCode, result.Body); err != nil {
		c.markProxyFailure()
		return Page{}, err
	}
	c.markProxySuccess()
	return result, nil
}

func (c *Client) buildCollector(result *Page, fetchErr *error) *colly.Collector {
	collector := c.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	// Error statuses still carry the challenge page we need to inspect.
	collector.ParseHTTPErrorResponse = true
	collector.SetCookieJar(c.jar)
	collector.WithTransport(c.transport)

	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range randomHeaders() {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		*result = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = Page{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
		}
		*fetchErr = err
	})
	return collector
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, pageURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", pageURL, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", pageURL, *fetchErr)
		}
		return nil
	}
}

// selectProxy is installed as the transport's Proxy hook. Requests run one at
// a time, so remembering the last handed-out proxy is enough to attribute
// outcomes back to it.
func (c *Client) selectProxy(*http.Request) (*url.URL, error) {
	if c.proxies == nil || c.proxies.Len() == 0 {
		c.setLastProxy(nil)
		return nil, nil
	}
	u, err := c.proxies.Next()
	if err != nil {
		c.setLastProxy(nil)
		return nil, nil //nolint:nilerr // empty pool means direct connection
	}
	c.setLastProxy(u)
	return u, nil
}

func (c *Client) setLastProxy(u *url.URL) {
	c.mu.Lock()
	c.lastProxy = u
	c.mu.Unlock()
}

func (c *Client) markProxyFailure() {
	c.mu.Lock()
	u := c.lastProxy
	c.mu.Unlock()
	if u != nil && c.proxies != nil {
		c.proxies.MarkFailure(u)
	}
}

func (c *Client) markProxySuccess() {
	c.mu.Lock()
	u := c.lastProxy
	c.mu.Unlock()
	if u != nil && c.proxies != nil {
		c.proxies.MarkSuccess(u)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
