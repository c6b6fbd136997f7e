package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// NotifyEvent is a JSON payload posted to the notification service.
type NotifyEvent struct {
	Type        string `json:"type"`
	AffiliateID string `json:"affiliate_id"`
	Email       string `json:"email,omitempty"`
	Status      string `json:"status,omitempty"`
	PayoutID    string `json:"payout_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
}

// Notifier posts events to the external notification service. Delivery is
// fire-and-forget: failures are logged and never surfaced to the write path
// that triggered them. A Notifier with an empty BaseURL discards events.
type Notifier struct {
	BaseURL string
	Token   string
	Client  *http.Client
	queue   chan NotifyEvent
}

func NewNotifier(baseURL, token string) *Notifier {
	return &Notifier{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
		queue: make(chan NotifyEvent, 256),
	}
}

// Enqueue hands an event to the notifier without blocking the caller.
// Safe on a nil Notifier so services can treat notification as optional.
func (n *Notifier) Enqueue(event NotifyEvent) {
	if n == nil || n.BaseURL == "" {
		return
	}
	select {
	case n.queue <- event:
	default:
		log.Printf("⚠️ [Notifier] queue full, dropping %s event for affiliate %s", event.Type, event.AffiliateID)
	}
}

// Start consumes the queue until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	if n == nil || n.BaseURL == "" {
		return
	}
	log.Println("[Notifier] started")
	for {
		select {
		case event := <-n.queue:
			n.send(event)
		case <-ctx.Done():
			log.Println("⏹️ [Notifier] stopped")
			return
		}
	}
}

func (n *Notifier) send(event NotifyEvent) {
	jsonData, err := json.Marshal(event)
	if err != nil {
		log.Printf("❌ [Notifier] failed to marshal %s event: %v", event.Type, err)
		return
	}

	req, err := http.NewRequest("POST", n.BaseURL+"/api/v1/notifications", bytes.NewBuffer(jsonData))
	if err != nil {
		log.Printf("❌ [Notifier] failed to build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	resp, err := n.Client.Do(req)
	if err != nil {
		log.Printf("❌ [Notifier] failed to deliver %s event: %v", event.Type, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[Notifier] notification service returned %d for %s event", resp.StatusCode, event.Type)
	}
}
