package scanner

import (
	"fmt"
	"time"

	"github.com/brunovales/painelzap/internal/kv"
)

const dateLayout = "2006-01-02"

// Dedup tracks the last date each notification class fired, keyed per user,
// scanner, and tier. Stamps are written only after a successful dispatch so
// a failed tick retries on the next run.
type Dedup struct {
	store kv.Store
}

func NewDedup(store kv.Store) *Dedup {
	return &Dedup{store: store}
}

func dedupKey(userID int64, scanner, tier string) string {
	return fmt.Sprintf("lastcheck:%d:%s:%s", userID, scanner, tier)
}

// ShouldNotify reports whether the tier's class may fire today: daily tiers
// at most once per calendar day, weekly tiers with at least 7 days spacing.
func (d *Dedup) ShouldNotify(userID int64, scanner string, tier Tier, now time.Time) (bool, error) {
	last, ok, err := d.store.Get(dedupKey(userID, scanner, tier.Key))
	if err != nil {
		return false, fmt.Errorf("read dedup stamp: %w", err)
	}
	if !ok {
		return true, nil
	}

	lastDate, err := time.ParseInLocation(dateLayout, last, time.UTC)
	if err != nil {
		// Corrupt stamp: allow the notification and let the new write fix it.
		return true, nil
	}

	today := truncateDay(now)
	if tier.Weekly {
		return today.Sub(lastDate).Hours() >= 7*24, nil
	}
	return !today.Equal(lastDate), nil
}

// MarkNotified stamps the tier's class with today's date.
func (d *Dedup) MarkNotified(userID int64, scanner string, tier Tier, now time.Time) error {
	key := dedupKey(userID, scanner, tier.Key)
	if err := d.store.Set(key, truncateDay(now).Format(dateLayout)); err != nil {
		return fmt.Errorf("write dedup stamp: %w", err)
	}
	return nil
}
