// Package outbox holds the device's pending writes while it is offline: a
// message queue and a renewal queue, both persisted through the local
// key-value store and drained oldest-first when connectivity returns.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brunovales/painelzap/internal/kv"
	"github.com/brunovales/painelzap/internal/metrics"
	"github.com/brunovales/painelzap/internal/model"
	"github.com/brunovales/painelzap/internal/notify"
)

const (
	messagesKey = "outbox:messages"
	renewalsKey = "outbox:renewals"
)

// Result counts one queue's sync outcome.
type Result struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncReport is the per-queue accounting of one Sync pass.
type SyncReport struct {
	Messages Result `json:"messages"`
	Renewals Result `json:"renewals"`
}

func (r SyncReport) total() Result {
	return Result{
		Synced: r.Messages.Synced + r.Renewals.Synced,
		Failed: r.Messages.Failed + r.Renewals.Failed,
	}
}

// Notifier surfaces capture toasts and the sync-complete notification.
type Notifier interface {
	Show(title, body, tag string, opts notify.Options) bool
}

// Config assembles an Outbox. SubmitMessage and SubmitRenewal perform the
// server writes; Online gates Sync.
type Config struct {
	Store         kv.Store
	SubmitMessage func(ctx context.Context, m model.QueuedMessage) error
	SubmitRenewal func(ctx context.Context, r model.QueuedRenewal) error
	Online        func() bool
	Notifier      Notifier
	OnSynced      func(report SyncReport)
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

type Outbox struct {
	cfg Config
}

func New(cfg Config) *Outbox {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Outbox{cfg: cfg}
}

// EnqueueMessage captures a message for later delivery. The queue is
// persisted before the call returns.
func (o *Outbox) EnqueueMessage(m model.QueuedMessage) (string, error) {
	m.ID = o.cfg.NewID()
	m.CreatedAt = o.cfg.Now()

	queue, err := loadQueue[model.QueuedMessage](o.cfg.Store, messagesKey)
	if err != nil {
		return "", err
	}
	if err := saveQueue(o.cfg.Store, messagesKey, append(queue, m)); err != nil {
		return "", err
	}

	if o.cfg.Notifier != nil {
		o.cfg.Notifier.Show("Mensagem guardada", "Será enviada quando a conexão voltar", "outbox", notify.Options{})
	}
	return m.ID, nil
}

// EnqueueRenewal captures a renewal for later application.
func (o *Outbox) EnqueueRenewal(r model.QueuedRenewal) (string, error) {
	r.ID = o.cfg.NewID()
	r.CreatedAt = o.cfg.Now()

	queue, err := loadQueue[model.QueuedRenewal](o.cfg.Store, renewalsKey)
	if err != nil {
		return "", err
	}
	if err := saveQueue(o.cfg.Store, renewalsKey, append(queue, r)); err != nil {
		return "", err
	}

	if o.cfg.Notifier != nil {
		o.cfg.Notifier.Show("Renovação guardada", "Será aplicada quando a conexão voltar", "outbox", notify.Options{})
	}
	return r.ID, nil
}

// Messages returns the queued messages in enqueue order.
func (o *Outbox) Messages() ([]model.QueuedMessage, error) {
	return loadQueue[model.QueuedMessage](o.cfg.Store, messagesKey)
}

// Renewals returns the queued renewals in enqueue order.
func (o *Outbox) Renewals() ([]model.QueuedRenewal, error) {
	return loadQueue[model.QueuedRenewal](o.cfg.Store, renewalsKey)
}

// DequeueMessage removes one queued message by id.
func (o *Outbox) DequeueMessage(id string) error {
	queue, err := loadQueue[model.QueuedMessage](o.cfg.Store, messagesKey)
	if err != nil {
		return err
	}
	kept := queue[:0]
	for _, m := range queue {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	return saveQueue(o.cfg.Store, messagesKey, kept)
}

// DequeueRenewal removes one queued renewal by id.
func (o *Outbox) DequeueRenewal(id string) error {
	queue, err := loadQueue[model.QueuedRenewal](o.cfg.Store, renewalsKey)
	if err != nil {
		return err
	}
	kept := queue[:0]
	for _, r := range queue {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return saveQueue(o.cfg.Store, renewalsKey, kept)
}

// Clear drops both queues.
func (o *Outbox) Clear() error {
	if err := o.cfg.Store.Delete(messagesKey); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if err := o.cfg.Store.Delete(renewalsKey); err != nil {
		return fmt.Errorf("clear renewals: %w", err)
	}
	return nil
}

// Pending counts items across both queues.
func (o *Outbox) Pending() (int, error) {
	messages, err := o.Messages()
	if err != nil {
		return 0, err
	}
	renewals, err := o.Renewals()
	if err != nil {
		return 0, err
	}
	return len(messages) + len(renewals), nil
}

// Sync drains both queues sequentially, oldest first. Items that fail stay
// queued in order for the next attempt; the server writes must tolerate a
// retry after a lost acknowledgement.
func (o *Outbox) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	if o.cfg.Online != nil && !o.cfg.Online() {
		return report, nil
	}

	messages, err := o.Messages()
	if err != nil {
		return report, err
	}
	keptMessages := messages[:0]
	for _, m := range messages {
		if err := o.cfg.SubmitMessage(ctx, m); err != nil {
			o.cfg.Logger.Warn("message sync failed", "id", m.ID, "error", err)
			metrics.RecordOutboxItem("messages", "failed")
			report.Messages.Failed++
			keptMessages = append(keptMessages, m)
			continue
		}
		metrics.RecordOutboxItem("messages", "synced")
		report.Messages.Synced++
	}
	if err := saveQueue(o.cfg.Store, messagesKey, keptMessages); err != nil {
		return report, err
	}

	renewals, err := o.Renewals()
	if err != nil {
		return report, err
	}
	keptRenewals := renewals[:0]
	for _, r := range renewals {
		if err := o.cfg.SubmitRenewal(ctx, r); err != nil {
			o.cfg.Logger.Warn("renewal sync failed", "id", r.ID, "error", err)
			metrics.RecordOutboxItem("renewals", "failed")
			report.Renewals.Failed++
			keptRenewals = append(keptRenewals, r)
			continue
		}
		metrics.RecordOutboxItem("renewals", "synced")
		report.Renewals.Synced++
	}
	if err := saveQueue(o.cfg.Store, renewalsKey, keptRenewals); err != nil {
		return report, err
	}

	if total := report.total(); total.Synced > 0 {
		if o.cfg.Notifier != nil {
			body := fmt.Sprintf("%d itens enviados", total.Synced)
			if total.Failed > 0 {
				body = fmt.Sprintf("%d enviados, %d pendentes", total.Synced, total.Failed)
			}
			o.cfg.Notifier.Show("Sincronização concluída", body, "outbox-sync", notify.Options{})
		}
		if o.cfg.OnSynced != nil {
			o.cfg.OnSynced(report)
		}
	}

	return report, nil
}

func loadQueue[T any](store kv.Store, key string) ([]T, error) {
	raw, ok, err := store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode queue %s: %w", key, err)
	}
	return items, nil
}

func saveQueue[T any](store kv.Store, key string, items []T) error {
	if len(items) == 0 {
		if err := store.Delete(key); err != nil {
			return fmt.Errorf("clear queue %s: %w", key, err)
		}
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue %s: %w", key, err)
	}
	if err := store.Set(key, string(data)); err != nil {
		return fmt.Errorf("write queue %s: %w", key, err)
	}
	return nil
}
