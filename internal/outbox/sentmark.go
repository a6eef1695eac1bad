package outbox

import (
	"time"

	"github.com/brunovales/painelzap/internal/kv"
	"github.com/brunovales/painelzap/internal/model"
)

const sentMarksKey = "outbox:sentmarks"

// SentMarks remembers which clients were already messaged so the UI does not
// prompt twice. Loyalty and referral campaigns each keep their own mark per
// client; every other template type shares a single slot where the newest
// mark wins.
type SentMarks struct {
	store kv.Store
	now   func() time.Time
}

func NewSentMarks(store kv.Store) *SentMarks {
	return &SentMarks{store: store, now: time.Now}
}

// Mark records a sent message, superseding marks per the retention rules.
func (s *SentMarks) Mark(mark model.SentMark) error {
	if mark.SentAt.IsZero() {
		mark.SentAt = s.now()
	}

	marks, err := loadQueue[model.SentMark](s.store, sentMarksKey)
	if err != nil {
		return err
	}

	kept := marks[:0]
	for _, m := range marks {
		if m.ClientID != mark.ClientID {
			kept = append(kept, m)
			continue
		}
		if slot(m) != slot(mark) {
			kept = append(kept, m)
		}
	}
	kept = append(kept, mark)

	return saveQueue(s.store, sentMarksKey, kept)
}

// ForClient returns the client's surviving marks.
func (s *SentMarks) ForClient(clientID int64) ([]model.SentMark, error) {
	marks, err := loadQueue[model.SentMark](s.store, sentMarksKey)
	if err != nil {
		return nil, err
	}
	var out []model.SentMark
	for _, m := range marks {
		if m.ClientID == clientID {
			out = append(out, m)
		}
	}
	return out, nil
}

// List returns every surviving mark.
func (s *SentMarks) List() ([]model.SentMark, error) {
	return loadQueue[model.SentMark](s.store, sentMarksKey)
}

// Clear drops all marks for one client.
func (s *SentMarks) Clear(clientID int64) error {
	marks, err := loadQueue[model.SentMark](s.store, sentMarksKey)
	if err != nil {
		return err
	}
	kept := marks[:0]
	for _, m := range marks {
		if m.ClientID != clientID {
			kept = append(kept, m)
		}
	}
	return saveQueue(s.store, sentMarksKey, kept)
}

// slot maps a template type to its retention slot: loyalty and referral each
// have their own, everything else shares the default one.
func slot(m model.SentMark) string {
	switch m.TemplateType {
	case model.TemplateTypeLoyalty, model.TemplateTypeReferral:
		return m.TemplateType
	default:
		return "default"
	}
}
