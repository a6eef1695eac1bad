// Package notify shows same-device notifications immediately, mirroring what
// the push dispatcher also delivers to the user's other devices.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Notification is what a Display renders.
type Notification struct {
	Title     string
	Body      string
	Tag       string
	TargetURL string
}

// Handle lets the presenter close a transient notification after its delay.
type Handle interface {
	Close()
}

// Display is the platform notification surface.
type Display interface {
	Permission() Permission
	Show(n Notification) (Handle, error)
}

// Options control per-notification behavior. Sticky notifications (renewal
// prompts and other deep links) are not auto-closed.
type Options struct {
	TargetURL string
	Sticky    bool
}

const (
	defaultAutoClose = 10 * time.Second
	defaultGap       = 3 * time.Second
	queueCapacity    = 32
)

// Presenter shows notifications through a Display. Multiple notifications
// are presented sequentially with a short gap so the OS does not collapse a
// burst into one.
type Presenter struct {
	display   Display
	autoClose time.Duration
	gap       time.Duration
	logger    *slog.Logger

	queue chan queuedNotification

	closeOnce sync.Once
	done      chan struct{}
}

type queuedNotification struct {
	n      Notification
	sticky bool
}

func NewPresenter(display Display, logger *slog.Logger) *Presenter {
	p := &Presenter{
		display:   display,
		autoClose: defaultAutoClose,
		gap:       defaultGap,
		logger:    logger,
		queue:     make(chan queuedNotification, queueCapacity),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Show queues a notification for presentation. Returns false, without error,
// when no display is available or permission is not granted; callers treat
// that as "nothing happened", not a failure.
func (p *Presenter) Show(title, body, tag string, opts Options) bool {
	if p.display == nil {
		return false
	}
	if p.display.Permission() != PermissionGranted {
		return false
	}

	q := queuedNotification{
		n:      Notification{Title: title, Body: body, Tag: tag, TargetURL: opts.TargetURL},
		sticky: opts.Sticky,
	}
	select {
	case p.queue <- q:
		return true
	default:
		p.logger.Warn("notification queue full, dropping", "tag", tag)
		return false
	}
}

// Close stops the presentation worker. Show must not be called afterwards.
func (p *Presenter) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		<-p.done
	})
}

func (p *Presenter) run() {
	defer close(p.done)
	first := true
	for q := range p.queue {
		if !first {
			time.Sleep(p.gap)
		}
		first = false

		handle, err := p.display.Show(q.n)
		if err != nil {
			p.logger.Warn("show notification", "tag", q.n.Tag, "error", err)
			continue
		}
		if !q.sticky && handle != nil {
			time.AfterFunc(p.autoClose, handle.Close)
		}
	}
}
