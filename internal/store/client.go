package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/brunovales/painelzap/internal/model"
)

// dateLayout is how calendar-day columns are stored.
const dateLayout = "2006-01-02"

type ClientStore struct {
	db *sql.DB
}

func NewClientStore(db *sql.DB) *ClientStore {
	return &ClientStore{db: db}
}

func (s *ClientStore) Create(userID int64, name, phone, planName string, expiration time.Time) (*model.Client, error) {
	result, err := s.db.Exec(
		`INSERT INTO clients (user_id, name, phone, plan_name, expiration_date)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, name, phone, planName, expiration.UTC().Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	id, _ := result.LastInsertId()
	return s.GetByID(id, userID)
}

const clientCols = `id, user_id, name, phone, plan_name, expiration_date, archived, created_at, updated_at`

func (s *ClientStore) GetByID(id, userID int64) (*model.Client, error) {
	row := s.db.QueryRow(`SELECT `+clientCols+` FROM clients WHERE id = ? AND user_id = ?`, id, userID)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *ClientStore) List(userID int64) ([]model.Client, error) {
	rows, err := s.db.Query(
		`SELECT `+clientCols+` FROM clients WHERE user_id = ? AND archived = 0 ORDER BY expiration_date`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

// ListExpiring returns non-archived clients whose expiration falls in
// [from, to], both calendar days inclusive.
func (s *ClientStore) ListExpiring(userID int64, from, to time.Time) ([]model.Client, error) {
	rows, err := s.db.Query(
		`SELECT `+clientCols+` FROM clients
		 WHERE user_id = ? AND archived = 0 AND expiration_date >= ? AND expiration_date <= ?
		 ORDER BY expiration_date`,
		userID, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list expiring clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

// ListExpiringApps returns client/external-app links whose credential
// expiration falls in [from, to], joined with client and app names.
func (s *ClientStore) ListExpiringApps(userID int64, from, to time.Time) ([]model.ClientApp, error) {
	rows, err := s.db.Query(
		`SELECT ca.id, c.id, c.name, c.phone, a.name, ca.device_or_email, ca.expiration_date
		 FROM client_apps ca
		 JOIN clients c ON c.id = ca.client_id
		 JOIN external_apps a ON a.id = ca.app_id
		 WHERE c.user_id = ? AND c.archived = 0 AND ca.expiration_date >= ? AND ca.expiration_date <= ?
		 ORDER BY ca.expiration_date`,
		userID, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list expiring client apps: %w", err)
	}
	defer rows.Close()

	var links []model.ClientApp
	for rows.Next() {
		var l model.ClientApp
		var expiration string
		if err := rows.Scan(&l.LinkID, &l.ClientID, &l.ClientName, &l.ClientPhone, &l.AppName, &l.DeviceOrEmail, &expiration); err != nil {
			return nil, fmt.Errorf("scan client app: %w", err)
		}
		l.ExpirationDate, err = time.ParseInLocation(dateLayout, expiration, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse app expiration %q: %w", expiration, err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// CreateApp registers an external app by name, returning the existing row if
// the name is already known.
func (s *ClientStore) CreateApp(name string) (*model.ExternalApp, error) {
	_, err := s.db.Exec(`INSERT INTO external_apps (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return nil, fmt.Errorf("insert external app: %w", err)
	}
	var app model.ExternalApp
	err = s.db.QueryRow(`SELECT id, name, created_at FROM external_apps WHERE name = ?`, name).
		Scan(&app.ID, &app.Name, &app.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get external app: %w", err)
	}
	return &app, nil
}

// LinkApp attaches an external-app credential to a client.
func (s *ClientStore) LinkApp(clientID, appID int64, deviceOrEmail string, expiration time.Time) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO client_apps (client_id, app_id, device_or_email, expiration_date) VALUES (?, ?, ?, ?)`,
		clientID, appID, deviceOrEmail, expiration.UTC().Format(dateLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("link client app: %w", err)
	}
	id, _ := result.LastInsertId()
	return id, nil
}

// ApplyRenewal applies a queued renewal to the client's expiration date.
//
// The queued NewExpirationDate was computed on the device from the expiration
// current at queue time. If the stored expiration is already in the past when
// the renewal syncs, the renewal duration is re-anchored to today so a lapsed
// grace period is not reinstated.
func (s *ClientStore) ApplyRenewal(userID int64, r model.QueuedRenewal, now time.Time) (time.Time, error) {
	client, err := s.GetByID(r.ClientID, userID)
	if err != nil {
		return time.Time{}, err
	}
	if client == nil {
		return time.Time{}, fmt.Errorf("renewal for unknown client %d", r.ClientID)
	}

	today := truncateDay(now)
	oldExp := truncateDay(client.ExpirationDate)
	newExp := truncateDay(r.NewExpirationDate)

	if oldExp.Before(today) {
		durationDays := int(newExp.Sub(oldExp).Hours() / 24)
		newExp = today.AddDate(0, 0, durationDays)
	}

	_, err = s.db.Exec(
		`UPDATE clients SET expiration_date = ?, plan_name = CASE WHEN ? != '' THEN ? ELSE plan_name END, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		newExp.Format(dateLayout), r.PlanName, r.PlanName, now.UTC(), r.ClientID, userID,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("apply renewal: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO renewal_history (user_id, client_id, queued_id, old_expiration, new_expiration, plan_name, plan_price)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, r.ClientID, r.ID, oldExp.Format(dateLayout), newExp.Format(dateLayout), r.PlanName, r.PlanPrice,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("record renewal: %w", err)
	}

	return newExp, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func scanClient(scanner interface{ Scan(...any) error }) (*model.Client, error) {
	var c model.Client
	var expiration string
	var archived int
	err := scanner.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.PlanName, &expiration, &archived, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Archived = archived != 0
	c.ExpirationDate, err = time.ParseInLocation(dateLayout, expiration, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse expiration %q: %w", expiration, err)
	}
	return &c, nil
}

func scanClients(rows *sql.Rows) ([]model.Client, error) {
	var clients []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}
