package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brunovales/painelzap/internal/metrics"
	"github.com/brunovales/painelzap/internal/model"
)

// ErrExpired is returned when a push subscription is no longer valid
// (404/410 from the push service). The row is pruned and the failure is
// counted, never surfaced as an error to the caller.
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON body sent to the push service and rendered by the
// service worker. Tag lets the platform coalesce notifications.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Result is the per-dispatch delivery accounting.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// SubscriptionStore is the slice of the push store the dispatcher needs.
type SubscriptionStore interface {
	ListByUser(userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Service delivers web push notifications to every device a user subscribed.
type Service struct {
	signer *Signer
	store  SubscriptionStore
	client *http.Client
	ttl    int
	logger *slog.Logger
}

// NewService creates a push service. The signer must already hold imported
// VAPID keys.
func NewService(signer *Signer, store SubscriptionStore, logger *slog.Logger) *Service {
	return &Service{
		signer: signer,
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		ttl:    86400,
		logger: logger,
	}
}

// VAPIDPublicKey returns the public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.signer.PublicKey()
}

// Dispatch sends the payload to every subscription of the user.
//
// No subscriptions is not a failure. Per-endpoint failures never fail the
// call: 404/410 prunes the row, anything else leaves it for the next
// dispatch. Only marshal and signing errors are fatal.
func (s *Service) Dispatch(ctx context.Context, userID int64, payload Payload) (Result, error) {
	subs, err := s.store.ListByUser(userID)
	if err != nil {
		return Result{}, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return Result{}, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	res := Result{Total: len(subs)}
	for i := range subs {
		sub := &subs[i]

		origin, err := endpointOrigin(sub.Endpoint)
		if err != nil {
			res.Failed++
			s.logger.Warn("bad endpoint", "endpoint", sub.Endpoint, "error", err)
			continue
		}

		token, err := s.signer.Sign(origin)
		if err != nil {
			// Signer failure is a configuration problem; no endpoint can
			// succeed, so abort the whole dispatch.
			return res, err
		}

		err = s.post(ctx, sub, token, body)
		switch {
		case err == nil:
			res.Sent++
			metrics.RecordPushSent()
		case errors.Is(err, ErrExpired):
			res.Failed++
			metrics.RecordPushPruned()
			if derr := s.store.DeleteByEndpoint(sub.Endpoint); derr != nil {
				s.logger.Error("prune expired subscription", "error", derr)
			}
		default:
			res.Failed++
			metrics.RecordPushFailed()
			s.logger.Warn("push delivery failed", "endpoint", sub.Endpoint, "error", err)
		}
	}

	return res, nil
}

// post encrypts and delivers one message to one endpoint.
func (s *Service) post(ctx context.Context, sub *model.PushSubscription, token string, body []byte) error {
	ciphertext, err := encryptPayload(body, sub.P256dhKey, sub.AuthKey)
	if err != nil {
		return fmt.Errorf("encrypt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(ciphertext))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("TTL", strconv.Itoa(s.ttl))
	req.Header.Set("Authorization", fmt.Sprintf("vapid t=%s, k=%s", token, s.signer.PublicKey()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to push service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrExpired
	default:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
}

// endpointOrigin derives the push-service origin the VAPID JWT is scoped to.
func endpointOrigin(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no origin", endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}
