package orders

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"comanda/internal/models"

	"github.com/google/uuid"
)

// WebhookClient delivers committed-order summaries to the tenant's automation
// endpoint. Delivery is best effort: a failure is logged and never retried
// inside the request path, and never affects order durability.
type WebhookClient struct {
	client *http.Client
}

// NewWebhookClient creates a client with a bounded request timeout.
func NewWebhookClient() *WebhookClient {
	return &WebhookClient{client: &http.Client{Timeout: 10 * time.Second}}
}

type webhookEvent struct {
	EventID string        `json:"event_id"`
	Event   string        `json:"event"`
	SentAt  time.Time     `json:"sent_at"`
	Order   *models.Order `json:"order"`
}

// NotifyOrderCreated posts the order summary to url in the background.
// A nil receiver or empty url is a no-op.
func (w *WebhookClient) NotifyOrderCreated(url string, order *models.Order) {
	if w == nil || url == "" {
		return
	}

	event := webhookEvent{
		EventID: uuid.NewString(),
		Event:   "order.created",
		SentAt:  time.Now().UTC(),
		Order:   order,
	}

	go func() {
		body, err := json.Marshal(event)
		if err != nil {
			log.Printf("webhook: marshal order %d: %v", order.ID, err)
			return
		}
		resp, err := w.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("webhook: deliver order %d: %v", order.ID, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Printf("webhook: deliver order %d: status %d", order.ID, resp.StatusCode)
		}
	}()
}
