package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brunovales/painelzap/internal/kv"
	"github.com/brunovales/painelzap/internal/model"
	"github.com/brunovales/painelzap/internal/notify"
)

type recordingNotifier struct {
	titles []string
}

func (n *recordingNotifier) Show(title, body, tag string, opts notify.Options) bool {
	n.titles = append(n.titles, title)
	return true
}

type submitLog struct {
	ids      []string
	failIDs  map[string]bool
	failAll  bool
}

func (s *submitLog) submitMessage(ctx context.Context, m model.QueuedMessage) error {
	if s.failAll || s.failIDs[m.ID] {
		return errors.New("server unavailable")
	}
	s.ids = append(s.ids, m.ID)
	return nil
}

func testOutbox(store kv.Store, submit *submitLog, online bool) *Outbox {
	seq := 0
	return New(Config{
		Store:         store,
		SubmitMessage: submit.submitMessage,
		SubmitRenewal: func(ctx context.Context, r model.QueuedRenewal) error { return nil },
		Online:        func() bool { return online },
		Now:           func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
}

func enqueueN(t *testing.T, o *Outbox, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := o.EnqueueMessage(model.QueuedMessage{
			ClientID:       int64(i + 1),
			ClientName:     fmt.Sprintf("cliente %d", i+1),
			MessageType:    "renewal_reminder",
			MessageContent: "Sua assinatura vence em breve",
			Phone:          "+5511999990000",
			Platform:       model.PlatformWhatsApp,
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestSyncDrainsQueueInOrder(t *testing.T) {
	store := kv.NewMemStore()
	submit := &submitLog{}
	o := testOutbox(store, submit, true)
	ids := enqueueN(t, o, 5)

	report, err := o.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Messages != (Result{Synced: 5, Failed: 0}) {
		t.Errorf("report = %+v, want 5 synced", report.Messages)
	}
	if len(submit.ids) != 5 {
		t.Fatalf("submitted %d items", len(submit.ids))
	}
	for i, id := range ids {
		if submit.ids[i] != id {
			t.Errorf("submit order[%d] = %s, want %s", i, submit.ids[i], id)
		}
	}

	remaining, _ := o.Messages()
	if len(remaining) != 0 {
		t.Errorf("queue not empty after full sync: %v", remaining)
	}
}

func TestSyncRetainsFailedItemsInOrder(t *testing.T) {
	store := kv.NewMemStore()
	submit := &submitLog{failIDs: map[string]bool{"id-2": true, "id-4": true}}
	o := testOutbox(store, submit, true)
	enqueueN(t, o, 5)

	report, err := o.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Messages != (Result{Synced: 3, Failed: 2}) {
		t.Errorf("report = %+v, want 3/2", report.Messages)
	}

	remaining, _ := o.Messages()
	if len(remaining) != 2 || remaining[0].ID != "id-2" || remaining[1].ID != "id-4" {
		t.Fatalf("retained = %v, want id-2 then id-4", remaining)
	}

	// The retry drains the survivors.
	submit.failIDs = nil
	report, _ = o.Sync(context.Background())
	if report.Messages != (Result{Synced: 2, Failed: 0}) {
		t.Errorf("retry report = %+v", report.Messages)
	}
	remaining, _ = o.Messages()
	if len(remaining) != 0 {
		t.Errorf("queue not empty after retry: %v", remaining)
	}
}

func TestSyncOfflineIsNoop(t *testing.T) {
	store := kv.NewMemStore()
	submit := &submitLog{}
	o := testOutbox(store, submit, false)
	enqueueN(t, o, 2)

	report, err := o.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report != (SyncReport{}) {
		t.Errorf("offline sync report = %+v, want zero", report)
	}
	if len(submit.ids) != 0 {
		t.Error("offline sync must not submit")
	}
	remaining, _ := o.Messages()
	if len(remaining) != 2 {
		t.Errorf("queue = %d items, want 2 untouched", len(remaining))
	}
}

func TestQueueSurvivesReload(t *testing.T) {
	store := kv.NewMemStore()
	submit := &submitLog{}
	o := testOutbox(store, submit, true)
	enqueueN(t, o, 3)

	// A fresh outbox over the same store sees the queue.
	reloaded := testOutbox(store, submit, true)
	messages, err := reloaded.Messages()
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("reloaded queue = %d items, want 3", len(messages))
	}
	if messages[0].ClientName != "cliente 1" || messages[0].Platform != model.PlatformWhatsApp {
		t.Errorf("reloaded item = %+v", messages[0])
	}
}

func TestDequeueRemovesOneItem(t *testing.T) {
	store := kv.NewMemStore()
	o := testOutbox(store, &submitLog{}, true)
	ids := enqueueN(t, o, 3)

	if err := o.DequeueMessage(ids[1]); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	remaining, _ := o.Messages()
	if len(remaining) != 2 || remaining[0].ID != ids[0] || remaining[1].ID != ids[2] {
		t.Errorf("remaining = %v", remaining)
	}

	if n, _ := o.Pending(); n != 2 {
		t.Errorf("pending = %d, want 2", n)
	}
}

func TestSyncCompleteNotification(t *testing.T) {
	store := kv.NewMemStore()
	submit := &submitLog{}
	notifier := &recordingNotifier{}
	o := testOutbox(store, submit, true)
	o.cfg.Notifier = notifier
	enqueueN(t, o, 2)

	var got SyncReport
	o.cfg.OnSynced = func(r SyncReport) { got = r }

	o.Sync(context.Background())

	// Two capture toasts plus the completion notification.
	if len(notifier.titles) != 3 || notifier.titles[2] != "Sincronização concluída" {
		t.Errorf("notifications = %v", notifier.titles)
	}
	if got.Messages.Synced != 2 {
		t.Errorf("OnSynced report = %+v", got)
	}

	// Nothing synced on the next pass: no completion noise.
	notifier.titles = nil
	o.Sync(context.Background())
	if len(notifier.titles) != 0 {
		t.Errorf("empty sync notified: %v", notifier.titles)
	}
}

func TestSentMarkExclusivity(t *testing.T) {
	marks := NewSentMarks(kv.NewMemStore())
	at := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }

	marks.Mark(model.SentMark{ClientID: 7, TemplateType: model.TemplateTypeLoyalty, TemplateName: "fidelidade", SentAt: at(1)})
	marks.Mark(model.SentMark{ClientID: 7, TemplateType: model.TemplateTypeReferral, TemplateName: "indicação", SentAt: at(2)})
	marks.Mark(model.SentMark{ClientID: 7, TemplateType: "", TemplateName: "cobrança", SentAt: at(3)})
	marks.Mark(model.SentMark{ClientID: 7, TemplateType: "promo", TemplateName: "promoção", SentAt: at(4)})

	got, err := marks.ForClient(7)
	if err != nil {
		t.Fatalf("for client: %v", err)
	}
	// Loyalty and referral coexist; the promo mark superseded the default one.
	if len(got) != 3 {
		t.Fatalf("marks = %+v, want 3", got)
	}
	byName := map[string]bool{}
	for _, m := range got {
		byName[m.TemplateName] = true
	}
	if !byName["fidelidade"] || !byName["indicação"] || !byName["promoção"] || byName["cobrança"] {
		t.Errorf("surviving marks = %v", byName)
	}

	// A newer loyalty mark replaces only the loyalty slot.
	marks.Mark(model.SentMark{ClientID: 7, TemplateType: model.TemplateTypeLoyalty, TemplateName: "fidelidade-2", SentAt: at(5)})
	got, _ = marks.ForClient(7)
	if len(got) != 3 {
		t.Fatalf("marks after loyalty refresh = %+v", got)
	}
	for _, m := range got {
		if m.TemplateName == "fidelidade" {
			t.Error("old loyalty mark survived")
		}
	}

	// Other clients are untouched.
	marks.Mark(model.SentMark{ClientID: 8, TemplateType: "promo", SentAt: at(6)})
	got, _ = marks.ForClient(7)
	if len(got) != 3 {
		t.Errorf("client 7 marks changed by client 8 write")
	}

	if err := marks.Clear(7); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = marks.ForClient(7)
	if len(got) != 0 {
		t.Errorf("marks after clear = %+v", got)
	}
	if others, _ := marks.ForClient(8); len(others) != 1 {
		t.Errorf("client 8 marks = %+v, want 1", others)
	}
}
