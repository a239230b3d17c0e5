package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"

	"harvest-go/pkg/logger"
	"harvest-go/pkg/proxy"
	"harvest-go/pkg/retry"
)

const (
	searchPathFormat = "/fr/search-results/%s?page=%d"
	detailPathFormat = "/fr/classified/get-result/%d"
)

// Config holds the catalog client settings
type Config struct {
	BaseURL           string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// HTTPClient fetches catalog pages and listing details over fasthttp
// with browser-like headers. One shared limiter paces every outbound
// request regardless of which endpoint it routes through.
type HTTPClient struct {
	cfg     Config
	limiter *rate.Limiter
	direct  *fasthttp.Client

	mu      sync.Mutex
	proxied map[string]*fasthttp.Client

	userAgents []string
	log        *logger.Logger
}

// NewHTTPClient creates a catalog client
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	return &HTTPClient{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		direct:  newFasthttpClient(cfg.RequestTimeout, nil),
		proxied: make(map[string]*fasthttp.Client),
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
		},
		log: logger.GetLogger().Component("catalog"),
	}
}

func newFasthttpClient(timeout time.Duration, dial fasthttp.DialFunc) *fasthttp.Client {
	return &fasthttp.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		Dial:         dial,
	}
}

func (c *HTTPClient) CountListings(ctx context.Context, category string, endpoint *proxy.Endpoint) (int, FetchMeta, error) {
	page, meta, err := c.SearchListings(ctx, category, 1, endpoint)
	if err != nil {
		return 0, meta, err
	}
	if page.TotalItems < 0 {
		return 0, meta, retry.Terminal(fmt.Errorf("category %s: %w", category, ErrCountUnavailable))
	}
	return page.TotalItems, meta, nil
}

func (c *HTTPClient) SearchListings(ctx context.Context, category string, page int, endpoint *proxy.Endpoint) (SearchPage, FetchMeta, error) {
	target := c.cfg.BaseURL + fmt.Sprintf(searchPathFormat, category, page)

	body, meta, err := c.fetch(ctx, target, endpoint)
	if err != nil {
		return SearchPage{}, meta, err
	}

	parsed, err := parseSearchPage(body)
	if err != nil {
		return SearchPage{}, meta, fmt.Errorf("search page %d of %s: %w", page, category, err)
	}
	return parsed, meta, nil
}

func (c *HTTPClient) FetchListing(ctx context.Context, id int64, endpoint *proxy.Endpoint) (json.RawMessage, FetchMeta, error) {
	target := c.cfg.BaseURL + fmt.Sprintf(detailPathFormat, id)

	body, meta, err := c.fetch(ctx, target, endpoint)
	if err != nil {
		if retry.Classify(err) == retry.NotFound {
			return nil, meta, fmt.Errorf("listing %d: %w", id, retry.ErrNotFound)
		}
		return nil, meta, err
	}

	detail, err := parseListingDetail(body)
	if err != nil {
		return nil, meta, fmt.Errorf("listing %d: %w", id, err)
	}
	return detail, meta, nil
}

func (c *HTTPClient) fetch(ctx context.Context, target string, endpoint *proxy.Endpoint) ([]byte, FetchMeta, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, FetchMeta{}, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)
	c.setRequestHeaders(req, target)

	start := time.Now()
	err := c.clientFor(endpoint).DoTimeout(req, resp, c.timeout(ctx))
	meta := FetchMeta{Latency: time.Since(start)}
	if err != nil {
		return nil, meta, fmt.Errorf("request failed: %w", err)
	}
	meta.StatusCode = resp.StatusCode()

	if meta.StatusCode < 200 || meta.StatusCode > 299 {
		httpErr := &retry.HTTPError{StatusCode: meta.StatusCode}
		if meta.StatusCode == fasthttp.StatusTooManyRequests {
			httpErr.RetryAfter = retryAfterHint(resp)
		}
		return nil, meta, httpErr
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return nil, meta, fmt.Errorf("failed to decompress response: %w", err)
	}

	decoded, err := decodeCharset(body)
	if err != nil {
		return nil, meta, err
	}

	// The pooled response owns its buffer
	out := make([]byte, len(decoded))
	copy(out, decoded)
	return out, meta, nil
}

// setRequestHeaders adds browser-like headers; the user agent is picked
// by URL hash so repeated fetches of the same page look consistent
func (c *HTTPClient) setRequestHeaders(req *fasthttp.Request, target string) {
	userAgent := c.userAgents[hash(target)%uint32(len(c.userAgents))]
	req.Header.SetUserAgent(userAgent)

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("Connection", "keep-alive")
}

// clientFor returns the transport for an endpoint, building a proxied
// client per distinct proxy URL on first use
func (c *HTTPClient) clientFor(endpoint *proxy.Endpoint) *fasthttp.Client {
	if endpoint.Direct() {
		return c.direct
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.proxied[endpoint.ProxyURL]; ok {
		return client
	}
	client := newFasthttpClient(c.cfg.RequestTimeout, fasthttpproxy.FasthttpHTTPDialer(proxyAddr(endpoint.ProxyURL)))
	c.proxied[endpoint.ProxyURL] = client
	return client
}

// timeout clamps the per-request timeout to an earlier context deadline
func (c *HTTPClient) timeout(ctx context.Context) time.Duration {
	timeout := c.cfg.RequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until > 0 && until < timeout {
			timeout = until
		}
	}
	return timeout
}

// proxyAddr reduces a proxy URL to the host[:port] form the dialer
// expects, keeping optional credentials
func proxyAddr(proxyURL string) string {
	if !strings.Contains(proxyURL, "://") {
		return proxyURL
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return proxyURL
	}
	if parsed.User != nil {
		return parsed.User.String() + "@" + parsed.Host
	}
	return parsed.Host
}

func retryAfterHint(resp *fasthttp.Response) time.Duration {
	seconds, err := strconv.Atoi(string(resp.Header.Peek("Retry-After")))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// decodeCharset passes valid UTF-8 through and re-decodes anything else
// as windows-1252, which covers the legacy encodings seen on the site
func decodeCharset(body []byte) ([]byte, error) {
	if utf8.Valid(body) {
		return body, nil
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response charset: %w", err)
	}
	return decoded, nil
}

// Hash function for consistent user agent rotation
func hash(s string) uint32 {
	h := uint32(0)
	for _, c := range s {
		h = h*31 + uint32(c)
	}
	return h
}
