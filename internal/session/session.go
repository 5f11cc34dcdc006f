// Package session provides a fingerprinted HTTP client for harvesting a
// storefront guarded by an anti-bot layer. All page fetches go through one
// Client so cookie state, fingerprint, proxy, and pacing stay coherent.
package session

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/observability"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Client is a stealth HTTP session. It paces its own requests, classifies
// failures, and rotates proxies on soft blocks.
type Client struct {
	cfg     *config.SessionConfig
	site    *config.SiteConfig
	client  *http.Client
	jar     *cookiejar.Jar
	fp      Fingerprint
	proxies *ProxyManager
	metrics *observability.Metrics
	logger  *slog.Logger

	// sleep is replaceable so tests can skip real pacing.
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a session Client. metrics may be nil.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	fp, err := NewFingerprint(cfg.Session.Fingerprint)
	if err != nil {
		return nil, err
	}

	var proxies *ProxyManager
	if cfg.Proxy.Enabled {
		proxies = NewProxyManager(&cfg.Proxy, logger)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     fp.TLSConfig(),
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}
	if proxies != nil {
		transport.Proxy = func(*http.Request) (*url.URL, error) {
			return proxies.Current(), nil
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.Session.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= 10 {
			return fmt.Errorf("max redirects reached")
		}
		return nil
	}

	return &Client{
		cfg:  &cfg.Session,
		site: &cfg.Site,
		client: &http.Client{
			Transport:     transport,
			Jar:           jar,
			Timeout:       cfg.Session.RequestTimeout,
			CheckRedirect: redirectPolicy,
		},
		jar:     jar,
		fp:      fp,
		proxies: proxies,
		metrics: metrics,
		logger:  logger.With("component", "session"),
		sleep:   sleepFor,
	}, nil
}

// SetTransport replaces the underlying round tripper.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.client.Transport = rt
}

// Fingerprint returns the active fingerprint name.
func (c *Client) Fingerprint() string { return c.fp.Name() }

// Init seeds the cookie jar with a configured anti-bot token and warms the
// session by visiting the landing page, which lets the anti-bot layer drop
// or refresh its token cookie. Missing token with token_required set is
// fatal: every subsequent fetch would be served a block page.
func (c *Client) Init(ctx context.Context) error {
	landing := c.site.BaseURL + c.site.LandingPath
	c.logger.Info("initializing session",
		"landing", landing, "fingerprint", c.fp.Name(), "token_configured", c.cfg.Token != "")

	if c.cfg.Token != "" {
		if err := c.injectToken(); err != nil {
			return err
		}
	}

	if _, err := c.Get(ctx, landing); err != nil {
		return fmt.Errorf("landing page visit: %w", err)
	}

	if c.cfg.TokenRequired && !c.HasToken() {
		return fmt.Errorf("%w: cookie %q not set after landing page visit and session.token is empty",
			types.ErrMissingToken, c.cfg.TokenCookie)
	}
	return nil
}

// injectToken places the externally held anti-bot token in the jar so the
// landing visit already carries it.
func (c *Client) injectToken() error {
	u, err := url.Parse(c.site.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	c.jar.SetCookies(u, []*http.Cookie{{
		Name:  c.cfg.TokenCookie,
		Value: c.cfg.Token,
		Path:  "/",
	}})
	return nil
}

// HasToken reports whether the anti-bot token cookie is present.
func (c *Client) HasToken() bool {
	u, err := url.Parse(c.site.BaseURL)
	if err != nil {
		return false
	}
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == c.cfg.TokenCookie && ck.Value != "" {
			return true
		}
	}
	return false
}

// Get fetches a page, pacing with a random pre-delay and retrying transient,
// soft-block, and rate-limit failures. Soft blocks rotate the proxy before
// the retry. Fatal classifications return immediately.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		if err := c.sleep(ctx, jitterBetween(c.cfg.PreDelayMin, c.cfg.PreDelayMax)); err != nil {
			return nil, err
		}

		if c.proxies != nil {
			if _, err := c.proxies.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		body, err := c.fetch(ctx, rawURL)
		if err == nil {
			return body, nil
		}

		var fe *types.FetchError
		if !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}
		lastErr = err
		c.countRequest(fe.Class.String())

		if fe.Class == types.ClassSoftBlock && c.proxies != nil {
			c.proxies.Invalidate()
			if c.metrics != nil {
				c.metrics.ProxyFailures.Inc()
				c.metrics.ProxyRotations.Inc()
			}
		}

		if attempt > c.cfg.MaxRetries {
			break
		}

		wait := backoffFor(fe.Class, c.cfg.RetryBaseDelay, attempt)
		if fe.RetryAfter > wait {
			wait = fe.RetryAfter
		}
		c.logger.Warn("fetch failed, backing off",
			"url", rawURL,
			"class", fe.Class.String(),
			"status", fe.StatusCode,
			"attempt", attempt,
			"wait", wait,
		)
		if c.metrics != nil {
			c.metrics.RequestsRetried.Inc()
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// fetch performs a single request and classifies the outcome.
func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Class: types.ClassFatal, Err: err}
	}
	c.fp.Apply(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		class := types.ClassFatal
		if isRetryableNetErr(err) {
			class = types.ClassTransient
		}
		return nil, &types.FetchError{URL: rawURL, Class: class, Err: err}
	}
	defer resp.Body.Close()

	switch class := classifyStatus(resp.StatusCode); {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to body read
	case class == types.ClassRateLimited:
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Class:      class,
			Err:        fmt.Errorf("rate limited"),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Class:      class,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, body),
		}
	}

	var reader io.Reader = resp.Body
	if c.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, c.cfg.MaxBodySize)
	}
	reader, err = decompressReader(resp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Class: types.ClassFatal, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Class: types.ClassTransient, Err: err}
	}
	if len(body) == 0 {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode,
			Class: types.ClassTransient, Err: types.ErrEmptyResponse}
	}

	c.countRequest("success")
	c.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)
	return body, nil
}

func (c *Client) countRequest(label string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RequestsTotal.WithLabelValues(label).Inc()
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
