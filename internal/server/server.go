package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/brunovales/painelzap/internal/handler"
	"github.com/brunovales/painelzap/internal/metrics"
	"github.com/brunovales/painelzap/internal/middleware"
	"github.com/brunovales/painelzap/internal/push"
	"github.com/brunovales/painelzap/internal/scanner"
	"github.com/brunovales/painelzap/internal/store"
	ws "github.com/brunovales/painelzap/internal/websocket"
)

// Config carries the deploy-time settings the server needs.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	SecureCookies   bool
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	authH        *handler.AuthHandler
	clientH      *handler.ClientHandler
	syncH        *handler.SyncHandler
	pushH        *handler.PushHandler
	sessionStore *store.SessionStore
	userStore    *store.UserStore
	pushStore    *store.PushStore
	pushService  *push.Service
	sweeper      *scanner.Sweeper
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	clientStore := store.NewClientStore(db)
	messageStore := store.NewMessageStore(db)
	pushStore := store.NewPushStore(db)

	pushLogger := logger.With("component", "push")

	// Push delivery is optional: without VAPID keys the panel still works,
	// the sweep just has nowhere to dispatch.
	var pushSvc *push.Service
	var pushH *handler.PushHandler
	var sweeper *scanner.Sweeper
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		signer, err := push.NewSigner(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
		if err != nil {
			return nil, err
		}
		pushSvc = push.NewService(signer, pushStore, pushLogger)
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
		sweeper = newSweeper(clientStore, pushStore, store.NewKV(db), pushSvc, hub, logger.With("component", "sweep"))
	}

	return &Server{
		db:           db,
		hub:          hub,
		authH:        handler.NewAuthHandler(userStore, sessionStore, cfg.SecureCookies, logger.With("component", "auth")),
		clientH:      handler.NewClientHandler(clientStore, logger.With("component", "client")),
		syncH:        handler.NewSyncHandler(messageStore, clientStore, hub, logger.With("component", "sync")),
		pushH:        pushH,
		sessionStore: sessionStore,
		userStore:    userStore,
		pushStore:    pushStore,
		pushService:  pushSvc,
		sweeper:      sweeper,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}, nil
}

// broadcastDispatcher mirrors every remote dispatch onto the event hub so
// connected agents can render the notification without their own push
// subscription.
type broadcastDispatcher struct {
	svc *push.Service
	hub *ws.Hub
}

func (d *broadcastDispatcher) Dispatch(ctx context.Context, userID int64, payload push.Payload) (push.Result, error) {
	res, err := d.svc.Dispatch(ctx, userID, payload)
	if err != nil {
		return res, err
	}
	raw, merr := json.Marshal(payload)
	if merr == nil {
		d.hub.Broadcast(ws.PushDispatched(userID, string(raw), res.Sent, res.Failed))
	}
	return res, nil
}

// newSweeper builds the server-resident expiration sweep: both scanners feed
// from the clients tables, dedup through the kv_state table, and dispatch
// remotely to every subscribed device.
func newSweeper(clients *store.ClientStore, subs *store.PushStore, kvStore *store.KV, svc *push.Service, hub *ws.Hub, logger *slog.Logger) *scanner.Sweeper {
	dedup := scanner.NewDedup(kvStore)
	dispatcher := &broadcastDispatcher{svc: svc, hub: hub}

	onSummary := func(name string) func(userID int64, s scanner.Summary) {
		return func(userID int64, s scanner.Summary) {
			hub.Broadcast(ws.ScanSummary(userID, name, s))
		}
	}

	subscriptions := scanner.New(scanner.Config{
		Name:  "subs",
		Tiers: scanner.SubscriptionTiers,
		Source: func(ctx context.Context, userID int64, from, to time.Time) ([]scanner.Item, error) {
			expiring, err := clients.ListExpiring(userID, from, to)
			if err != nil {
				return nil, err
			}
			items := make([]scanner.Item, 0, len(expiring))
			for _, c := range expiring {
				items = append(items, scanner.Item{
					ClientID:   c.ID,
					Name:       c.Name,
					Phone:      c.Phone,
					Detail:     c.PlanName,
					Expiration: c.ExpirationDate,
				})
			}
			return items, nil
		},
		Format:     scanner.FormatSubscriptions,
		Dedup:      dedup,
		Dispatcher: dispatcher,
		OnSummary:  onSummary("subs"),
		Logger:     logger,
	})

	apps := scanner.New(scanner.Config{
		Name:  "apps",
		Tiers: scanner.AppTiers,
		Source: func(ctx context.Context, userID int64, from, to time.Time) ([]scanner.Item, error) {
			expiring, err := clients.ListExpiringApps(userID, from, to)
			if err != nil {
				return nil, err
			}
			items := make([]scanner.Item, 0, len(expiring))
			for _, l := range expiring {
				items = append(items, scanner.Item{
					ClientID:   l.ClientID,
					Name:       l.ClientName,
					Phone:      l.ClientPhone,
					Detail:     l.AppName,
					Expiration: l.ExpirationDate,
				})
			}
			return items, nil
		},
		Format:     scanner.FormatApps,
		Dedup:      dedup,
		Dispatcher: dispatcher,
		OnSummary:  onSummary("apps"),
		Logger:     logger,
	})

	return scanner.NewSweeper(subs, logger, subscriptions, apps)
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// Sweeper returns the expiration sweeper, nil when push is unconfigured.
func (s *Server) Sweeper() *scanner.Sweeper {
	return s.sweeper
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.Handle("POST /api/login", middleware.LoginRateLimit(s.rateLimiter)(http.HandlerFunc(s.authH.Login)))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", metrics.Handler())

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Client API routes
	mux.HandleFunc("GET /api/clients", s.clientH.List)
	mux.HandleFunc("POST /api/clients", s.clientH.Create)
	mux.HandleFunc("GET /api/clients/expiring", s.clientH.ListExpiring)
	mux.HandleFunc("GET /api/client-apps/expiring", s.clientH.ListExpiringApps)
	mux.HandleFunc("GET /api/clients/{id}", s.clientH.Get)
	mux.HandleFunc("POST /api/clients/{id}/apps", s.clientH.LinkApp)

	// Outbox sync targets
	mux.HandleFunc("POST /api/messages", s.syncH.CreateMessage)
	mux.HandleFunc("POST /api/renewals", s.syncH.CreateRenewal)

	// Push API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
