// zapagent is the device-resident companion of the panel: it scans for
// expirations locally, shows desktop notifications, queues writes while
// offline, syncs them when the connection returns, and runs an offline-aware
// local proxy in front of the server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	ws "github.com/coder/websocket"

	"github.com/brunovales/painelzap/internal/gateway"
	"github.com/brunovales/painelzap/internal/kv"
	"github.com/brunovales/painelzap/internal/logging"
	"github.com/brunovales/painelzap/internal/middleware"
	"github.com/brunovales/painelzap/internal/model"
	"github.com/brunovales/painelzap/internal/notify"
	"github.com/brunovales/painelzap/internal/outbox"
	"github.com/brunovales/painelzap/internal/scanner"
	events "github.com/brunovales/painelzap/internal/websocket"
)

const scanInterval = time.Hour

func main() {
	serverURL := strings.TrimRight(envOr("ZAPAGENT_SERVER_URL", "http://localhost:8080"), "/")
	token := os.Getenv("ZAPAGENT_SESSION_TOKEN")
	statePath := envOr("ZAPAGENT_STATE_PATH", defaultStatePath())
	proxyAddr := envOr("ZAPAGENT_PROXY_ADDR", "127.0.0.1:8090")

	logger := logging.Setup(os.Getenv("ZAPAGENT_LOG_LEVEL"), os.Getenv("ZAPAGENT_LOG_FORMAT"))

	if token == "" {
		log.Fatal("ZAPAGENT_SESSION_TOKEN is required")
	}

	state, err := kv.OpenFileStore(statePath)
	if err != nil {
		log.Fatalf("open state: %v", err)
	}

	api := &apiClient{
		baseURL: serverURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}

	presenter := notify.NewPresenter(notify.NewDesktopDisplay("PainelZap"), logger.With("component", "notify"))
	defer presenter.Close()

	box := outbox.New(outbox.Config{
		Store:  state,
		Online: api.online,
		SubmitMessage: func(ctx context.Context, m model.QueuedMessage) error {
			return api.post(ctx, "/api/messages", m, nil)
		},
		SubmitRenewal: func(ctx context.Context, r model.QueuedRenewal) error {
			return api.post(ctx, "/api/renewals", r, nil)
		},
		Notifier: presenter,
		Logger:   logger.With("component", "outbox"),
	})

	dedup := scanner.NewDedup(state)
	scanners := []*scanner.Scanner{
		scanner.New(scanner.Config{
			Name:      "subs",
			Tiers:     scanner.SubscriptionTiers,
			Source:    api.subscriptionSource(),
			Format:    scanner.FormatSubscriptions,
			Dedup:     dedup,
			Presenter: presenter,
			Enabled:   notificationsEnabled(state),
			Logger:    logger.With("component", "scanner"),
		}),
		scanner.New(scanner.Config{
			Name:      "apps",
			Tiers:     scanner.AppTiers,
			Source:    api.appSource(),
			Format:    scanner.FormatApps,
			Dedup:     dedup,
			Presenter: presenter,
			Enabled:   notificationsEnabled(state),
			Logger:    logger.With("component", "scanner"),
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Offline proxy: the panel UI talks to this instead of the server, so
	// cached pages and a synthetic offline answer survive connection drops.
	gw := gateway.New(gateway.Config{
		StaticCacheName: "painelzap-static-v1",
		DataCacheName:   "painelzap-data-v1",
		AppOrigin:       serverURL,
		APIHost:         hostOf(serverURL),
		Caches:          gateway.NewMemCacheStorage(),
		Fetch:           api.gatewayFetch,
		Notifier:        presenter,
		Logger:          logger.With("component", "gateway"),
	})
	if err := gw.Install(ctx); err != nil {
		logger.Warn("gateway install", "error", err)
	}
	if err := gw.Activate(ctx); err != nil {
		logger.Warn("gateway activate", "error", err)
	}
	go serveProxy(ctx, proxyAddr, serverURL, gw, logger)

	// Real-time events: remote pushes dispatched by the server sweep render
	// locally too.
	go consumeEvents(ctx, serverURL, token, gw, logger)

	// Scan loop plus outbox sync on reconnect.
	go func() {
		wasOnline := false
		scanTicker := time.NewTicker(scanInterval)
		onlineTicker := time.NewTicker(30 * time.Second)
		defer scanTicker.Stop()
		defer onlineTicker.Stop()

		runScans := func() {
			for _, sc := range scanners {
				if _, err := sc.Scan(ctx, 0); err != nil {
					logger.Warn("scan failed", "scanner", sc.Name(), "error", err)
				}
			}
		}

		runScans()
		for {
			select {
			case <-ctx.Done():
				return
			case <-scanTicker.C:
				runScans()
			case <-onlineTicker.C:
				online := api.online()
				if online && !wasOnline {
					if report, err := box.Sync(ctx); err != nil {
						logger.Warn("outbox sync", "error", err)
					} else if n := report.Messages.Synced + report.Renewals.Synced; n > 0 {
						logger.Info("outbox drained", "synced", n)
					}
				}
				wasOnline = online
			}
		}
	}()

	logger.Info("zapagent running", "server", serverURL, "proxy", proxyAddr)
	<-ctx.Done()
	gw.Wait()
}

// apiClient wraps the panel API with the agent's session cookie.
type apiClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func (a *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: a.token})

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: server returned %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (a *apiClient) get(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodGet, path, nil, out)
}

func (a *apiClient) post(ctx context.Context, path string, body, out any) error {
	return a.do(ctx, http.MethodPost, path, body, out)
}

func (a *apiClient) online() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (a *apiClient) subscriptionSource() scanner.Source {
	return func(ctx context.Context, _ int64, from, to time.Time) ([]scanner.Item, error) {
		days := int(to.Sub(from).Hours() / 24)
		var clients []model.Client
		if err := a.get(ctx, fmt.Sprintf("/api/clients/expiring?days=%d", days), &clients); err != nil {
			return nil, err
		}
		items := make([]scanner.Item, 0, len(clients))
		for _, c := range clients {
			items = append(items, scanner.Item{
				ClientID:   c.ID,
				Name:       c.Name,
				Phone:      c.Phone,
				Detail:     c.PlanName,
				Expiration: c.ExpirationDate,
			})
		}
		return items, nil
	}
}

func (a *apiClient) appSource() scanner.Source {
	return func(ctx context.Context, _ int64, from, to time.Time) ([]scanner.Item, error) {
		days := int(to.Sub(from).Hours() / 24)
		var links []model.ClientApp
		if err := a.get(ctx, fmt.Sprintf("/api/client-apps/expiring?days=%d", days), &links); err != nil {
			return nil, err
		}
		items := make([]scanner.Item, 0, len(links))
		for _, l := range links {
			items = append(items, scanner.Item{
				ClientID:   l.ClientID,
				Name:       l.ClientName,
				Phone:      l.ClientPhone,
				Detail:     l.AppName,
				Expiration: l.ExpirationDate,
			})
		}
		return items, nil
	}
}

// gatewayFetch adapts the API client to the gateway's Fetcher contract.
func (a *apiClient) gatewayFetch(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: a.token})

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &gateway.Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// serveProxy exposes the gateway on a local port. Every request is routed
// through the worker-style fetch policy.
func serveProxy(ctx context.Context, addr, serverURL string, gw *gateway.Gateway, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		resp, err := gw.HandleFetch(r.Context(), gateway.Request{
			Method:     r.Method,
			URL:        serverURL + r.URL.RequestURI(),
			Navigation: r.Header.Get("Sec-Fetch-Mode") == "navigate",
		})
		if err != nil {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.Status)
		w.Write(resp.Body)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("offline proxy listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("proxy server", "error", err)
	}
}

// consumeEvents keeps a websocket to the server and renders dispatched
// pushes locally, reconnecting with backoff.
func consumeEvents(ctx context.Context, serverURL, token string, gw *gateway.Gateway, logger *slog.Logger) {
	wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/ws"

	for ctx.Err() == nil {
		conn, _, err := ws.Dial(ctx, wsURL, &ws.DialOptions{
			HTTPHeader: http.Header{"Cookie": []string{middleware.SessionCookieName + "=" + token}},
		})
		if err != nil {
			logger.Warn("event stream dial", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(15 * time.Second):
			}
			continue
		}

		logger.Info("event stream connected")
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				conn.Close(ws.StatusNormalClosure, "")
				break
			}

			var event events.Message
			if err := json.Unmarshal(data, &event); err != nil {
				continue
			}
			if event.Type == events.TypePushDispatched {
				if raw, ok := event.Data["payload"].(string); ok {
					gw.HandlePush([]byte(raw))
				}
			}
		}
	}
}

func notificationsEnabled(state kv.Store) func(int64) bool {
	return func(int64) bool {
		v, ok, err := state.Get("notifications:enabled")
		if err != nil || !ok {
			return true
		}
		return v != "false"
	}
}

func hostOf(rawURL string) string {
	u := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if i := strings.IndexByte(u, '/'); i >= 0 {
		u = u[:i]
	}
	return u
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "zapagent-state.json"
	}
	return filepath.Join(home, ".config", "zapagent", "state.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
