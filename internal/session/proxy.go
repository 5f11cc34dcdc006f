package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// ProxyManager hands out one working proxy at a time. A proxy that has been
// invalidated is not handed out again until every known proxy has failed,
// at which point the failed set resets and the pool gets a second life.
type ProxyManager struct {
	cfg    *config.ProxyConfig
	client *http.Client
	logger *slog.Logger

	mu         sync.Mutex
	candidates []*url.URL
	current    *url.URL
	failed     map[string]struct{}

	// checkFn is replaceable so tests can skip the network check.
	checkFn func(ctx context.Context, proxyURL *url.URL) error
}

// NewProxyManager creates a ProxyManager from configuration. Static URLs from
// the config seed the candidate pool; the provider API is consulted when the
// pool runs dry.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.CheckTimeout},
		logger: logger.With("component", "proxy_manager"),
		failed: make(map[string]struct{}),
	}
	pm.checkFn = pm.check

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.candidates = append(pm.candidates, u)
	}

	pm.logger.Info("proxy manager initialized", "static", len(pm.candidates), "provider", cfg.ProviderURL != "")
	return pm
}

// Acquire returns a working proxy, reusing the current one when it has not
// been invalidated. Returns types.ErrProxyExhausted (wrapped) when no
// candidate remains.
func (pm *ProxyManager) Acquire(ctx context.Context) (*url.URL, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.current != nil {
		return pm.current, nil
	}

	for attempt := 0; attempt < pm.cfg.MaxAttempts; attempt++ {
		u := pm.nextCandidateLocked(ctx)
		if u == nil {
			break
		}
		if err := pm.checkFn(ctx, u); err != nil {
			pm.logger.Warn("proxy check failed", "proxy", u.Host, "error", err)
			pm.failed[u.String()] = struct{}{}
			continue
		}
		pm.current = u
		pm.logger.Info("proxy acquired", "proxy", u.Host)
		return u, nil
	}

	return nil, fmt.Errorf("%w: no usable proxy after %d attempts", types.ErrProxyExhausted, pm.cfg.MaxAttempts)
}

// Invalidate discards the current proxy so the next Acquire fetches a fresh
// one. The discarded proxy joins the failed set.
func (pm *ProxyManager) Invalidate() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.current == nil {
		return
	}
	pm.failed[pm.current.String()] = struct{}{}
	pm.logger.Warn("proxy invalidated", "proxy", pm.current.Host)
	pm.current = nil
}

// Current returns the cached proxy, or nil when none is held.
func (pm *ProxyManager) Current() *url.URL {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.current
}

// FailedCount returns the number of proxies retired so far.
func (pm *ProxyManager) FailedCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.failed)
}

// nextCandidateLocked pops the next non-failed candidate, refreshing the pool
// from the provider when empty. At most one provider fetch per call keeps the
// lock hold bounded. When a refreshed pool consists entirely of failed
// proxies, the failed set resets: every proxy gets a second chance rather
// than the manager going dark. Caller holds pm.mu.
func (pm *ProxyManager) nextCandidateLocked(ctx context.Context) *url.URL {
	for refreshed := false; ; refreshed = true {
		for len(pm.candidates) > 0 {
			u := pm.candidates[0]
			pm.candidates = pm.candidates[1:]
			if _, bad := pm.failed[u.String()]; !bad {
				return u
			}
		}
		if pm.cfg.ProviderURL == "" || refreshed {
			return nil
		}
		fresh, err := pm.fetchFromProvider(ctx)
		if err != nil {
			pm.logger.Error("proxy provider fetch failed", "error", err)
			return nil
		}
		if len(fresh) == 0 {
			return nil
		}
		if pm.allFailedLocked(fresh) {
			pm.logger.Warn("every known proxy has failed, resetting the failed set",
				"failed", len(pm.failed))
			pm.failed = make(map[string]struct{})
		}
		pm.candidates = fresh
	}
}

// allFailedLocked reports whether every URL is already in the failed set.
// Caller holds pm.mu.
func (pm *ProxyManager) allFailedLocked(urls []*url.URL) bool {
	for _, u := range urls {
		if _, bad := pm.failed[u.String()]; !bad {
			return false
		}
	}
	return true
}

// providerResponse is the shape returned by the rotating-proxy provider API.
type providerResponse struct {
	Proxies []struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"proxies"`
}

func (pm *ProxyManager) fetchFromProvider(ctx context.Context) ([]*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pm.cfg.ProviderURL, nil)
	if err != nil {
		return nil, err
	}
	if pm.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+pm.cfg.APIKey)
	}

	resp, err := pm.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, body)
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	urls := make([]*url.URL, 0, len(pr.Proxies))
	for _, p := range pr.Proxies {
		u := &url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		}
		if p.Username != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// check verifies the proxy can reach the public internet.
func (pm *ProxyManager) check(ctx context.Context, proxyURL *url.URL) error {
	client := &http.Client{
		Timeout: pm.cfg.CheckTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://httpbin.org/ip", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("check returned HTTP %d", resp.StatusCode)
	}
	return nil
}
