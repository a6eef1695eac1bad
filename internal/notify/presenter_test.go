package notify

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeHandle struct {
	mu     sync.Mutex
	closed bool
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

type fakeDisplay struct {
	mu         sync.Mutex
	permission Permission
	shown      []Notification
	handles    []*fakeHandle
	showTimes  []time.Time
}

func (d *fakeDisplay) Permission() Permission { return d.permission }

func (d *fakeDisplay) Show(n Notification) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := &fakeHandle{}
	d.shown = append(d.shown, n)
	d.handles = append(d.handles, h)
	d.showTimes = append(d.showTimes, time.Now())
	return h, nil
}

func (d *fakeDisplay) snapshot() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.shown...)
}

func newTestPresenter(d Display) *Presenter {
	p := NewPresenter(d, slog.Default())
	p.gap = 10 * time.Millisecond
	p.autoClose = 20 * time.Millisecond
	return p
}

func TestShowRequiresPermission(t *testing.T) {
	d := &fakeDisplay{permission: PermissionDenied}
	p := newTestPresenter(d)
	defer p.Close()

	if p.Show("t", "b", "tag", Options{}) {
		t.Error("expected Show to report false without permission")
	}
	if len(d.snapshot()) != 0 {
		t.Error("expected nothing shown")
	}
}

func TestShowNilDisplay(t *testing.T) {
	p := NewPresenter(nil, slog.Default())
	defer p.Close()

	if p.Show("t", "b", "tag", Options{}) {
		t.Error("expected false with no display")
	}
}

func TestShowPresentsInOrderWithGap(t *testing.T) {
	d := &fakeDisplay{permission: PermissionGranted}
	p := newTestPresenter(d)

	for _, tag := range []string{"today", "tomorrow", "soon"} {
		if !p.Show("Aviso", "corpo", tag, Options{}) {
			t.Fatalf("show %s returned false", tag)
		}
	}
	p.Close() // drains the queue

	shown := d.snapshot()
	if len(shown) != 3 {
		t.Fatalf("shown = %d, want 3", len(shown))
	}
	for i, want := range []string{"today", "tomorrow", "soon"} {
		if shown[i].Tag != want {
			t.Errorf("shown[%d].Tag = %q, want %q", i, shown[i].Tag, want)
		}
	}

	// Consecutive presentations are spaced, not burst.
	d.mu.Lock()
	gap := d.showTimes[1].Sub(d.showTimes[0])
	d.mu.Unlock()
	if gap < 5*time.Millisecond {
		t.Errorf("gap = %v, want staggered presentation", gap)
	}
}

func TestTransientNotificationAutoCloses(t *testing.T) {
	d := &fakeDisplay{permission: PermissionGranted}
	p := newTestPresenter(d)
	defer p.Close()

	p.Show("t", "b", "tag", Options{})

	deadline := time.After(time.Second)
	for {
		d.mu.Lock()
		closed := len(d.handles) == 1 && func() bool {
			d.handles[0].mu.Lock()
			defer d.handles[0].mu.Unlock()
			return d.handles[0].closed
		}()
		d.mu.Unlock()
		if closed {
			return
		}
		select {
		case <-deadline:
			t.Fatal("notification never auto-closed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStickyNotificationStaysOpen(t *testing.T) {
	d := &fakeDisplay{permission: PermissionGranted}
	p := newTestPresenter(d)

	p.Show("Renovar", "clique para renovar", "renew", Options{TargetURL: "/clientes/7", Sticky: true})
	p.Close()

	time.Sleep(50 * time.Millisecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) != 1 {
		t.Fatalf("handles = %d, want 1", len(d.handles))
	}
	d.handles[0].mu.Lock()
	closed := d.handles[0].closed
	d.handles[0].mu.Unlock()
	if closed {
		t.Error("sticky notification was auto-closed")
	}
	if d.shown[0].TargetURL != "/clientes/7" {
		t.Errorf("target url = %q", d.shown[0].TargetURL)
	}
}
