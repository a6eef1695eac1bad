// Package scanner detects client subscriptions and external-app credentials
// approaching expiration, buckets them by days remaining, and fires local
// and/or remote notifications at most once per day (or week) per tier.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/brunovales/painelzap/internal/metrics"
	"github.com/brunovales/painelzap/internal/notify"
	"github.com/brunovales/painelzap/internal/push"
)

// Item is one expiring record, already joined with whatever names the
// notification text needs.
type Item struct {
	ClientID   int64
	Name       string
	Phone      string
	Detail     string // plan name or "app / device"
	Expiration time.Time
}

// Source reads the records expiring in [from, to] for one user.
type Source func(ctx context.Context, userID int64, from, to time.Time) ([]Item, error)

// Formatter builds the notification for one tier's items.
type Formatter func(tier Tier, items []Item) push.Payload

// Dispatcher delivers a payload to the user's other devices.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64, payload push.Payload) (push.Result, error)
}

// Presenter shows a same-device notification.
type Presenter interface {
	Show(title, body, tag string, opts notify.Options) bool
}

// Summary maps tier key to how many items fell in the bucket. It is computed
// on every scan, even when notifications are suppressed, so the UI can show
// badges without OS-level permission.
type Summary map[string]int

// Config assembles a Scanner. Presenter and Dispatcher are each optional;
// whether a scanner pushes remotely in addition to presenting locally is a
// deliberate per-scanner switch.
type Config struct {
	Name       string
	Tiers      []Tier
	Source     Source
	Format     Formatter
	Dedup      *Dedup
	Presenter  Presenter
	Dispatcher Dispatcher
	Enabled    func(userID int64) bool
	OnSummary  func(userID int64, s Summary)
	Logger     *slog.Logger
	Now        func() time.Time
}

// Scanner is one expiration detector: Idle until a tick, scans, then either
// notifies or returns to Idle.
type Scanner struct {
	cfg Config
}

func New(cfg Config) *Scanner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scanner{cfg: cfg}
}

func (s *Scanner) Name() string {
	return s.cfg.Name
}

// Scan runs one pass for one user. A source read failure aborts the pass
// without touching dedup stamps; the next tick retries.
func (s *Scanner) Scan(ctx context.Context, userID int64) (Summary, error) {
	now := s.cfg.Now()
	today := truncateDay(now)
	to := today.AddDate(0, 0, horizon(s.cfg.Tiers))

	metrics.RecordScan(s.cfg.Name)

	items, err := s.cfg.Source(ctx, userID, today, to)
	if err != nil {
		s.cfg.Logger.Warn("scan read failed", "scanner", s.cfg.Name, "user", userID, "error", err)
		return nil, err
	}

	buckets := classify(s.cfg.Tiers, now, items)

	summary := make(Summary, len(buckets))
	for key, bucket := range buckets {
		summary[key] = len(bucket)
	}
	if s.cfg.OnSummary != nil {
		s.cfg.OnSummary(userID, summary)
	}

	// Opt-out suppresses side effects only; the date math above still feeds
	// in-app badges.
	if s.cfg.Enabled != nil && !s.cfg.Enabled(userID) {
		return summary, nil
	}

	for _, tier := range s.cfg.Tiers {
		bucket := buckets[tier.Key]
		if len(bucket) == 0 {
			continue
		}

		ok, err := s.cfg.Dedup.ShouldNotify(userID, s.cfg.Name, tier, now)
		if err != nil {
			s.cfg.Logger.Warn("dedup read failed", "scanner", s.cfg.Name, "tier", tier.Key, "error", err)
			continue
		}
		if !ok {
			continue
		}

		payload := s.cfg.Format(tier, bucket)

		fired := false
		if s.cfg.Presenter != nil {
			shown := s.cfg.Presenter.Show(payload.Title, payload.Body, payload.Tag, notify.Options{TargetURL: payload.URL})
			fired = fired || shown
		}
		if s.cfg.Dispatcher != nil {
			if _, err := s.cfg.Dispatcher.Dispatch(ctx, userID, payload); err != nil {
				s.cfg.Logger.Error("remote dispatch failed", "scanner", s.cfg.Name, "tier", tier.Key, "error", err)
			} else {
				fired = true
			}
		}

		if fired {
			metrics.RecordNotification(s.cfg.Name, tier.Key)
			if err := s.cfg.Dedup.MarkNotified(userID, s.cfg.Name, tier, now); err != nil {
				s.cfg.Logger.Error("dedup write failed", "scanner", s.cfg.Name, "tier", tier.Key, "error", err)
			}
		}
	}

	return summary, nil
}
