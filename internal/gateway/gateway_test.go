package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/brunovales/painelzap/internal/notify"
)

type fakeFetcher struct {
	responses map[string]*Response
	err       error
	calls     []string
}

func (f *fakeFetcher) fetch(ctx context.Context, req Request) (*Response, error) {
	f.calls = append(f.calls, req.URL)
	if f.err != nil {
		return nil, f.err
	}
	resp, ok := f.responses[req.URL]
	if !ok {
		return &Response{Status: http.StatusNotFound}, nil
	}
	return resp.clone(), nil
}

type fakeWindow struct {
	url     string
	focused bool
}

func (w *fakeWindow) URL() string                    { return w.url }
func (w *fakeWindow) Focus(ctx context.Context) error { w.focused = true; return nil }

type fakeWindows struct {
	windows []Window
	opened  []string
}

func (f *fakeWindows) List(ctx context.Context) ([]Window, error) { return f.windows, nil }
func (f *fakeWindows) OpenWindow(ctx context.Context, url string) error {
	f.opened = append(f.opened, url)
	return nil
}

type fakeNotifier struct {
	titles []string
	bodies []string
	tags   []string
}

func (n *fakeNotifier) Show(title, body, tag string, opts notify.Options) bool {
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	n.tags = append(n.tags, tag)
	return true
}

func testGateway(fetch *fakeFetcher) (*Gateway, *MemCacheStorage) {
	caches := NewMemCacheStorage()
	g := New(Config{
		StaticCacheName: "static-v2",
		DataCacheName:   "data-v2",
		Precache:        []string{"https://app.example/app.js"},
		AppOrigin:       "https://app.example",
		APIHost:         "api.example",
		Caches:          caches,
		Fetch:           fetch.fetch,
	})
	return g, caches
}

func TestInstallPrecachesAndSkipsWaiting(t *testing.T) {
	fetch := &fakeFetcher{responses: map[string]*Response{
		"https://app.example/app.js": {Status: 200, Body: []byte("v1")},
	}}
	g, caches := testGateway(fetch)

	if err := g.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if g.State() != StateWaiting {
		t.Errorf("state = %v, want waiting", g.State())
	}

	cache, _ := caches.Open("static-v2")
	if _, ok, _ := cache.Match("https://app.example/app.js"); !ok {
		t.Error("precached asset missing from static cache")
	}
}

func TestActivateDropsStaleCaches(t *testing.T) {
	fetch := &fakeFetcher{}
	g, caches := testGateway(fetch)
	caches.Open("static-v1")
	caches.Open("static-v2")
	caches.Open("data-v2")

	if err := g.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if g.State() != StateActive {
		t.Errorf("state = %v, want active", g.State())
	}

	names, _ := caches.Names()
	for _, name := range names {
		if name == "static-v1" {
			t.Error("stale cache static-v1 survived activate")
		}
	}
	if len(names) != 2 {
		t.Errorf("caches = %v, want the two current ones", names)
	}
}

func TestSkipWaitingMessageActivates(t *testing.T) {
	fetch := &fakeFetcher{responses: map[string]*Response{
		"https://app.example/app.js": {Status: 200, Body: []byte("v1")},
	}}
	g, _ := testGateway(fetch)
	g.Install(context.Background())

	if err := g.HandleMessage(context.Background(), "SKIP_WAITING"); err != nil {
		t.Fatalf("message: %v", err)
	}
	if g.State() != StateActive {
		t.Errorf("state = %v, want active after SKIP_WAITING", g.State())
	}

	// Unknown message types are ignored.
	if err := g.HandleMessage(context.Background(), "PING"); err != nil {
		t.Fatalf("unknown message: %v", err)
	}
}

func TestCacheFirstServesStaleAndRevalidates(t *testing.T) {
	url := "https://app.example/style.css"
	fetch := &fakeFetcher{responses: map[string]*Response{
		url: {Status: 200, Body: []byte("new-body")},
	}}
	g, caches := testGateway(fetch)

	cache, _ := caches.Open("static-v2")
	cache.Put(url, &Response{Status: 200, Body: []byte("stale-body")})

	resp, err := g.HandleFetch(context.Background(), Request{Method: "GET", URL: url})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Body) != "stale-body" {
		t.Errorf("served %q, want the cached body", resp.Body)
	}

	g.Wait()
	refreshed, ok, _ := cache.Match(url)
	if !ok || string(refreshed.Body) != "new-body" {
		t.Errorf("cache after revalidation = %q, want new-body", refreshed.Body)
	}
}

func TestCacheFirstMissFetchesAndFills(t *testing.T) {
	url := "https://app.example/logo.png"
	fetch := &fakeFetcher{responses: map[string]*Response{
		url: {Status: 200, Body: []byte("png")},
	}}
	g, caches := testGateway(fetch)

	resp, err := g.HandleFetch(context.Background(), Request{Method: "GET", URL: url})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Body) != "png" {
		t.Errorf("body = %q", resp.Body)
	}

	cache, _ := caches.Open("static-v2")
	if _, ok, _ := cache.Match(url); !ok {
		t.Error("miss was not written back to the cache")
	}
}

func TestNavigationNetworkFirstFallsBackToCache(t *testing.T) {
	url := "https://app.example/clientes"
	fetch := &fakeFetcher{responses: map[string]*Response{
		url: {Status: 200, Body: []byte("shell")},
	}}
	g, _ := testGateway(fetch)

	// Online: network wins and seeds the cache.
	resp, err := g.HandleFetch(context.Background(), Request{Method: "GET", URL: url, Navigation: true})
	if err != nil || string(resp.Body) != "shell" {
		t.Fatalf("online navigation = %q, %v", resp.Body, err)
	}

	// Offline: the cached copy serves.
	fetch.err = errors.New("network down")
	resp, err = g.HandleFetch(context.Background(), Request{Method: "GET", URL: url, Navigation: true})
	if err != nil || string(resp.Body) != "shell" {
		t.Errorf("offline navigation = %q, %v; want cached shell", resp.Body, err)
	}
}

func TestAPIOfflineSynthesizes503(t *testing.T) {
	fetch := &fakeFetcher{err: errors.New("network down")}
	g, _ := testGateway(fetch)

	resp, err := g.HandleFetch(context.Background(), Request{Method: "GET", URL: "https://api.example/api/clients"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if resp.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.Status)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body, &body); err != nil || body["error"] != "offline" {
		t.Errorf("body = %s, want {\"error\":\"offline\"}", resp.Body)
	}
}

func TestHandlePushJSONAndTextFallback(t *testing.T) {
	notifier := &fakeNotifier{}
	g := New(Config{Notifier: notifier})

	g.HandlePush([]byte(`{"title":"Assinatura vence HOJE!","body":"Ana","tag":"subs-today"}`))
	g.HandlePush([]byte("plain text ping"))

	if len(notifier.titles) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifier.titles))
	}
	if notifier.titles[0] != "Assinatura vence HOJE!" || notifier.tags[0] != "subs-today" {
		t.Errorf("json push rendered %q/%q", notifier.titles[0], notifier.tags[0])
	}
	if notifier.titles[1] != "PainelZap" || notifier.bodies[1] != "plain text ping" {
		t.Errorf("text push rendered %q/%q", notifier.titles[1], notifier.bodies[1])
	}
}

func TestNotificationClickFocusesOrOpens(t *testing.T) {
	appWin := &fakeWindow{url: "https://app.example/clientes"}
	windows := &fakeWindows{windows: []Window{
		&fakeWindow{url: "https://other.example/"},
		appWin,
	}}
	g := New(Config{AppOrigin: "https://app.example", Windows: windows})

	if err := g.HandleNotificationClick(context.Background(), "open", "/clientes"); err != nil {
		t.Fatalf("click: %v", err)
	}
	if !appWin.focused {
		t.Error("matching window was not focused")
	}
	if len(windows.opened) != 0 {
		t.Errorf("opened %v, want none", windows.opened)
	}

	// No matching window: open the target URL instead.
	windows.windows = nil
	appWin.focused = false
	if err := g.HandleNotificationClick(context.Background(), "open", "https://app.example/clientes"); err != nil {
		t.Fatalf("click: %v", err)
	}
	if len(windows.opened) != 1 || windows.opened[0] != "https://app.example/clientes" {
		t.Errorf("opened = %v", windows.opened)
	}

	// Close action dismisses without routing.
	if err := g.HandleNotificationClick(context.Background(), "close", ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(windows.opened) != 1 {
		t.Error("close action must not open windows")
	}
}
