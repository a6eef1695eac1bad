package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brunovales/painelzap/internal/auth"
	"github.com/brunovales/painelzap/internal/database"
	"github.com/brunovales/painelzap/internal/store"
)

func setupHandlerDB(t *testing.T) (*sql.DB, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	result, err := db.Exec(`INSERT INTO users (email, password_hash) VALUES ('revenda@example.com', 'x')`)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	userID, _ := result.LastInsertId()
	return db, userID
}

func authedRequest(method, target, body string, userID int64) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{UserID: userID})
	return req.WithContext(ctx)
}

func TestSubscribeStoresSubscription(t *testing.T) {
	db, userID := setupHandlerDB(t)
	ps := store.NewPushStore(db)
	h := NewPushHandler(ps, nil, slog.Default())

	body := `{"subscription":{"endpoint":"https://push.example/abc","keys":{"p256dh":"pk","auth":"ak"}},"action":"subscribe"}`
	rec := httptest.NewRecorder()
	h.Subscribe(rec, authedRequest("POST", "/api/push/subscribe", body, userID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	subs, err := ps.ListByUser(userID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("subs = %v, %v", subs, err)
	}
	if subs[0].Endpoint != "https://push.example/abc" || subs[0].P256dhKey != "pk" {
		t.Errorf("stored sub = %+v", subs[0])
	}
}

func TestSubscribeRejectsMissingKeys(t *testing.T) {
	db, userID := setupHandlerDB(t)
	h := NewPushHandler(store.NewPushStore(db), nil, slog.Default())

	cases := []string{
		`{"subscription":{"endpoint":"","keys":{"p256dh":"pk","auth":"ak"}}}`,
		`{"subscription":{"endpoint":"https://push.example/abc","keys":{"p256dh":"","auth":"ak"}}}`,
		`{"subscription":{"endpoint":"https://push.example/abc","keys":{"p256dh":"pk","auth":""}}}`,
		`not json`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		h.Subscribe(rec, authedRequest("POST", "/api/push/subscribe", body, userID))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	db, userID := setupHandlerDB(t)
	ps := store.NewPushStore(db)
	h := NewPushHandler(ps, nil, slog.Default())

	if _, err := ps.Upsert(userID, "https://push.example/abc", "pk", "ak"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := `{"subscription":{"endpoint":"https://push.example/abc"},"action":"unsubscribe"}`
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Subscribe(rec, authedRequest("POST", "/api/push/subscribe", body, userID))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}

	subs, _ := ps.ListByUser(userID)
	if len(subs) != 0 {
		t.Errorf("subs after unsubscribe = %v", subs)
	}
}

func TestSubscribeUnknownAction(t *testing.T) {
	db, userID := setupHandlerDB(t)
	h := NewPushHandler(store.NewPushStore(db), nil, slog.Default())

	body := `{"subscription":{"endpoint":"https://push.example/abc"},"action":"pause"}`
	rec := httptest.NewRecorder()
	h.Subscribe(rec, authedRequest("POST", "/api/push/subscribe", body, userID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
