package store

import (
	"database/sql"
	"fmt"

	"github.com/brunovales/painelzap/internal/model"
)

type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// RecordSent inserts a message-history row for a synced outbox item. The
// queued item's client-generated id is stored for audit; the insert itself is
// not deduplicated on it (accepted at-least-once trade-off).
func (s *MessageStore) RecordSent(userID int64, m model.QueuedMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO message_history (user_id, client_id, queued_id, template_id, message_type, content, phone, platform, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, m.ClientID, m.ID, m.TemplateID, m.MessageType, m.MessageContent, m.Phone, m.Platform, m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record sent message: %w", err)
	}
	return nil
}

// CountByClient returns how many history rows exist for a client, used by
// tests and the history view.
func (s *MessageStore) CountByClient(userID, clientID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM message_history WHERE user_id = ? AND client_id = ?`,
		userID, clientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count message history: %w", err)
	}
	return count, nil
}
