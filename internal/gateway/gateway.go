// Package gateway is the agent's offline proxy: a state machine over the
// service-worker lifecycle (install, activate, fetch, push, notification
// click, message) with injected cache storage, fetcher, and window registry.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/brunovales/painelzap/internal/notify"
	"github.com/brunovales/painelzap/internal/push"
)

// State is the worker lifecycle phase.
type State int

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
)

// Fetcher performs a network request on the gateway's behalf.
type Fetcher func(ctx context.Context, req Request) (*Response, error)

// Request is a fetch intercepted by the gateway.
type Request struct {
	Method     string
	URL        string
	Navigation bool
}

// Window is one open app window or tab.
type Window interface {
	URL() string
	Focus(ctx context.Context) error
}

// WindowClients enumerates and opens app windows.
type WindowClients interface {
	List(ctx context.Context) ([]Window, error)
	OpenWindow(ctx context.Context, url string) error
}

// Notifier renders a notification for a delivered push.
type Notifier interface {
	Show(title, body, tag string, opts notify.Options) bool
}

var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".html": true, ".png": true, ".jpg": true,
	".jpeg": true, ".svg": true, ".ico": true, ".woff": true, ".woff2": true,
}

// Config assembles a Gateway.
type Config struct {
	StaticCacheName string
	DataCacheName   string
	Precache        []string
	AppOrigin       string
	APIHost         string
	Caches          CacheStorage
	Fetch           Fetcher
	Windows         WindowClients
	Notifier        Notifier
	Logger          *slog.Logger
}

type Gateway struct {
	cfg Config

	mu          sync.Mutex
	state       State
	skipWaiting bool

	// revalidations tracks background cache refreshes so shutdown and tests
	// can wait for them.
	revalidations sync.WaitGroup
}

func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gateway{cfg: cfg}
}

func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Install precaches the static assets and requests immediate takeover from
// any previously waiting worker.
func (g *Gateway) Install(ctx context.Context) error {
	cache, err := g.cfg.Caches.Open(g.cfg.StaticCacheName)
	if err != nil {
		return fmt.Errorf("open static cache: %w", err)
	}

	for _, asset := range g.cfg.Precache {
		resp, err := g.cfg.Fetch(ctx, Request{Method: http.MethodGet, URL: asset})
		if err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
		if err := cache.Put(asset, resp); err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
	}

	g.mu.Lock()
	g.state = StateWaiting
	g.skipWaiting = true
	g.mu.Unlock()
	return nil
}

// Activate drops caches from older deploys and claims the open windows so
// the new worker governs them without a reload.
func (g *Gateway) Activate(ctx context.Context) error {
	names, err := g.cfg.Caches.Names()
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if name == g.cfg.StaticCacheName || name == g.cfg.DataCacheName {
			continue
		}
		if err := g.cfg.Caches.Delete(name); err != nil {
			return fmt.Errorf("drop cache %s: %w", name, err)
		}
		g.cfg.Logger.Info("dropped stale cache", "name", name)
	}

	if g.cfg.Windows != nil {
		if _, err := g.cfg.Windows.List(ctx); err != nil {
			g.cfg.Logger.Warn("claim clients", "error", err)
		}
	}

	g.mu.Lock()
	g.state = StateActive
	g.mu.Unlock()
	return nil
}

// HandlePush renders a notification for an incoming push. The payload is
// JSON; raw text falls back to a body-only notification.
func (g *Gateway) HandlePush(data []byte) {
	var payload push.Payload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Title == "" {
		payload = push.Payload{Title: "PainelZap", Body: string(data)}
	}
	if g.cfg.Notifier == nil {
		return
	}
	g.cfg.Notifier.Show(payload.Title, payload.Body, payload.Tag, notify.Options{TargetURL: payload.URL})
}

// HandleNotificationClick routes a clicked notification: focus an open app
// window when one exists, otherwise open the target URL.
func (g *Gateway) HandleNotificationClick(ctx context.Context, action, targetURL string) error {
	if action == "close" {
		return nil
	}
	if g.cfg.Windows == nil {
		return nil
	}

	windows, err := g.cfg.Windows.List(ctx)
	if err != nil {
		return fmt.Errorf("list windows: %w", err)
	}
	for _, w := range windows {
		if strings.HasPrefix(w.URL(), g.cfg.AppOrigin) {
			return w.Focus(ctx)
		}
	}
	if targetURL == "" {
		targetURL = g.cfg.AppOrigin + "/"
	}
	return g.cfg.Windows.OpenWindow(ctx, targetURL)
}

// HandleMessage processes a page-to-worker message. SKIP_WAITING activates a
// waiting worker immediately.
func (g *Gateway) HandleMessage(ctx context.Context, msgType string) error {
	if msgType != "SKIP_WAITING" {
		return nil
	}
	g.mu.Lock()
	waiting := g.state == StateWaiting
	g.skipWaiting = true
	g.mu.Unlock()
	if waiting {
		return g.Activate(ctx)
	}
	return nil
}

// HandleFetch applies the caching policy for one intercepted request.
func (g *Gateway) HandleFetch(ctx context.Context, req Request) (*Response, error) {
	switch {
	case req.Navigation:
		return g.networkFirst(ctx, req, g.cfg.StaticCacheName)
	case isStaticAsset(req.URL):
		return g.cacheFirst(ctx, req)
	case g.isAPIRequest(req.URL):
		resp, err := g.networkFirst(ctx, req, g.cfg.DataCacheName)
		if err != nil {
			return offlineResponse(), nil
		}
		return resp, nil
	default:
		return g.networkFirst(ctx, req, g.cfg.DataCacheName)
	}
}

// Wait blocks until in-flight background revalidations finish.
func (g *Gateway) Wait() {
	g.revalidations.Wait()
}

func (g *Gateway) networkFirst(ctx context.Context, req Request, cacheName string) (*Response, error) {
	cache, err := g.cfg.Caches.Open(cacheName)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", cacheName, err)
	}

	resp, err := g.cfg.Fetch(ctx, req)
	if err == nil {
		if resp.Status < 400 {
			if err := cache.Put(req.URL, resp); err != nil {
				g.cfg.Logger.Warn("cache write failed", "url", req.URL, "error", err)
			}
		}
		return resp, nil
	}

	cached, ok, cacheErr := cache.Match(req.URL)
	if cacheErr == nil && ok {
		return cached, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
}

func (g *Gateway) cacheFirst(ctx context.Context, req Request) (*Response, error) {
	cache, err := g.cfg.Caches.Open(g.cfg.StaticCacheName)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", g.cfg.StaticCacheName, err)
	}

	cached, ok, err := cache.Match(req.URL)
	if err == nil && ok {
		g.revalidations.Add(1)
		go func() {
			defer g.revalidations.Done()
			fresh, err := g.cfg.Fetch(context.WithoutCancel(ctx), req)
			if err != nil || fresh.Status >= 400 {
				return
			}
			if err := cache.Put(req.URL, fresh); err != nil {
				g.cfg.Logger.Warn("revalidate write failed", "url", req.URL, "error", err)
			}
		}()
		return cached, nil
	}

	fresh, err := g.cfg.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	if fresh.Status < 400 {
		if err := cache.Put(req.URL, fresh); err != nil {
			g.cfg.Logger.Warn("cache write failed", "url", req.URL, "error", err)
		}
	}
	return fresh, nil
}

func (g *Gateway) isAPIRequest(rawURL string) bool {
	if g.cfg.APIHost == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Host == g.cfg.APIHost
}

func isStaticAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return staticExtensions[strings.ToLower(path.Ext(u.Path))]
}

func offlineResponse() *Response {
	return &Response{
		Status:      http.StatusServiceUnavailable,
		ContentType: "application/json",
		Body:        []byte(`{"error":"offline"}`),
	}
}
