package model

import "time"

// Client is a reseller's subscription client. ExpirationDate carries
// calendar-day precision only (midnight UTC).
type Client struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	PlanName       string    `json:"plan_name,omitempty"`
	ExpirationDate time.Time `json:"expiration_date"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ExternalApp struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientApp is a client's credential on an external app, joined with the
// client and app names the scanners need.
type ClientApp struct {
	LinkID         int64     `json:"link_id"`
	ClientID       int64     `json:"client_id"`
	ClientName     string    `json:"client_name"`
	ClientPhone    string    `json:"client_phone,omitempty"`
	AppName        string    `json:"app_name"`
	DeviceOrEmail  string    `json:"device_or_email"`
	ExpirationDate time.Time `json:"expiration_date"`
}
