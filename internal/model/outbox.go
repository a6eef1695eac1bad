package model

import "time"

// Messaging platforms for queued messages.
const (
	PlatformWhatsApp = "whatsapp"
	PlatformTelegram = "telegram"
)

// Template types with per-type sent-mark retention.
const (
	TemplateTypeLoyalty  = "loyalty"
	TemplateTypeReferral = "referral"
)

// QueuedMessage is a message captured on the device while offline. The ID is
// client-generated; the record is owned by the device until synced.
type QueuedMessage struct {
	ID             string    `json:"id"`
	ClientID       int64     `json:"client_id"`
	ClientName     string    `json:"client_name"`
	TemplateID     string    `json:"template_id,omitempty"`
	MessageType    string    `json:"message_type"`
	MessageContent string    `json:"message_content"`
	Phone          string    `json:"phone"`
	Platform       string    `json:"platform"`
	CreatedAt      time.Time `json:"created_at"`
}

// QueuedRenewal is a plan renewal captured on the device while offline.
type QueuedRenewal struct {
	ID                string    `json:"id"`
	ClientID          int64     `json:"client_id"`
	ClientName        string    `json:"client_name"`
	NewExpirationDate time.Time `json:"new_expiration_date"`
	PlanID            string    `json:"plan_id,omitempty"`
	PlanName          string    `json:"plan_name,omitempty"`
	PlanPrice         float64   `json:"plan_price,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SentMark records that the user already messaged a client, so the UI does
// not prompt again. Local-only.
type SentMark struct {
	ClientID     int64     `json:"client_id"`
	SentAt       time.Time `json:"sent_at"`
	TemplateName string    `json:"template_name,omitempty"`
	TemplateType string    `json:"template_type,omitempty"`
	Platform     string    `json:"platform"`
}
