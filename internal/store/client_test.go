package store

import (
	"testing"
	"time"

	"github.com/brunovales/painelzap/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestListExpiringWindow(t *testing.T) {
	db, uid := setupTestDB(t)
	cs := NewClientStore(db)

	today := date(2024, 1, 10)
	cs.Create(uid, "Ana", "+5511999990001", "Plano Mensal", today)                 // day 0
	cs.Create(uid, "Bruno", "+5511999990002", "Plano Mensal", today.AddDate(0, 0, 3))
	cs.Create(uid, "Carla", "", "Plano Anual", today.AddDate(0, 0, 45))            // outside window
	late, _ := cs.Create(uid, "Davi", "", "", today.AddDate(0, 0, 1))

	// Archived clients never show up.
	if _, err := db.Exec(`UPDATE clients SET archived = 1 WHERE id = ?`, late.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	clients, err := cs.ListExpiring(uid, today, today.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("len = %d, want 2", len(clients))
	}
	if clients[0].Name != "Ana" {
		t.Errorf("first = %q, want Ana (ordered by expiration)", clients[0].Name)
	}
}

func TestListExpiringApps(t *testing.T) {
	db, uid := setupTestDB(t)
	cs := NewClientStore(db)

	today := date(2024, 3, 1)
	client, _ := cs.Create(uid, "Ana", "+5511999990001", "", today.AddDate(0, 0, 60))
	app, err := cs.CreateApp("StreamMax")
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	if _, err := cs.LinkApp(client.ID, app.ID, "ana@mail.com", today.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("link app: %v", err)
	}

	links, err := cs.ListExpiringApps(uid, today, today.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("list expiring apps: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("len = %d, want 1", len(links))
	}
	if links[0].AppName != "StreamMax" || links[0].ClientName != "Ana" {
		t.Errorf("link = %+v", links[0])
	}
}

func TestApplyRenewalFutureExpiration(t *testing.T) {
	db, uid := setupTestDB(t)
	cs := NewClientStore(db)

	now := date(2024, 1, 5)
	client, _ := cs.Create(uid, "Ana", "", "Plano Mensal", date(2024, 1, 20))

	newExp, err := cs.ApplyRenewal(uid, model.QueuedRenewal{
		ID:                "q1",
		ClientID:          client.ID,
		NewExpirationDate: date(2024, 2, 19), // +30 days from current
	}, now)
	if err != nil {
		t.Fatalf("apply renewal: %v", err)
	}
	if !newExp.Equal(date(2024, 2, 19)) {
		t.Errorf("new expiration = %s, want 2024-02-19", newExp.Format("2006-01-02"))
	}
}

func TestApplyRenewalLapsedAnchorsToNow(t *testing.T) {
	db, uid := setupTestDB(t)
	cs := NewClientStore(db)

	// Client expired 2024-01-01; a 30-day renewal queued offline would have
	// targeted 2024-01-31. Synced on 2024-01-05, it must land on 2024-02-04.
	client, _ := cs.Create(uid, "Bruno", "", "", date(2024, 1, 1))

	newExp, err := cs.ApplyRenewal(uid, model.QueuedRenewal{
		ID:                "q2",
		ClientID:          client.ID,
		NewExpirationDate: date(2024, 1, 31),
	}, date(2024, 1, 5))
	if err != nil {
		t.Fatalf("apply renewal: %v", err)
	}
	if !newExp.Equal(date(2024, 2, 4)) {
		t.Errorf("new expiration = %s, want 2024-02-04", newExp.Format("2006-01-02"))
	}

	got, _ := cs.GetByID(client.ID, uid)
	if !got.ExpirationDate.Equal(date(2024, 2, 4)) {
		t.Errorf("stored expiration = %s, want 2024-02-04", got.ExpirationDate.Format("2006-01-02"))
	}
}

func TestApplyRenewalUnknownClient(t *testing.T) {
	db, uid := setupTestDB(t)
	cs := NewClientStore(db)

	_, err := cs.ApplyRenewal(uid, model.QueuedRenewal{ID: "q3", ClientID: 999, NewExpirationDate: date(2024, 2, 1)}, date(2024, 1, 1))
	if err == nil {
		t.Fatal("expected error for unknown client")
	}
}

func TestKVStore(t *testing.T) {
	db, _ := setupTestDB(t)
	s := NewKV(db)

	if _, ok, _ := s.Get("lastcheck:subs"); ok {
		t.Error("expected missing key")
	}
	if err := s.Set("lastcheck:subs", "2024-01-05"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("lastcheck:subs", "2024-01-06"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := s.Get("lastcheck:subs")
	if err != nil || !ok || v != "2024-01-06" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}
	if err := s.Delete("lastcheck:subs"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get("lastcheck:subs"); ok {
		t.Error("expected deleted")
	}
}
