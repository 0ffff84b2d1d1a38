package extract

import (
	"encoding/json"
	"strings"

	"comanda/internal/models"
)

// payloadMarker identifies the structured order block inside a model reply.
const payloadMarker = `"create_order"`

// OrderCandidate is the unvalidated order the model claims the customer
// confirmed. Prices on items are always replaced with the catalog's current
// price; a model-stated figure is discarded to block price injection.
type OrderCandidate struct {
	CustomerName    string               `json:"customer_name"`
	Phone           string               `json:"phone"`
	DeliveryAddress *string              `json:"delivery_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	Items           []CandidateItem      `json:"items"`
}

// CandidateItem references a product from the assembled menu.
type CandidateItem struct {
	ProductID uint     `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
	Notes     string   `json:"notes"`
}

// payload is the raw fenced block shape.
type payload struct {
	Type string `json:"type"`
	OrderCandidate
}

// Extract separates the customer-facing text from an embedded create_order
// payload. The payload is validated against the active menu: unknown or
// inactive product ids, non-positive quantities, an unrecognized payment
// method or an empty item list all degrade to (text, nil) — never to an
// error, and never to a best-guess order. The returned text never contains
// the payload.
func Extract(raw string, menu []models.Product) (string, *OrderCandidate) {
	start, end, body := locatePayload(raw)
	if body == "" {
		return strings.TrimSpace(raw), nil
	}

	text := strings.TrimSpace(raw[:start] + raw[end:])

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return text, nil
	}
	if p.Type != "create_order" {
		return text, nil
	}

	cand := p.OrderCandidate
	if !validate(&cand, menu) {
		return text, nil
	}
	return text, &cand
}

// locatePayload finds the payload region in the raw reply: a fenced code
// block containing the marker when present, otherwise a bare balanced JSON
// object around the marker. Returns the region bounds and the JSON body.
func locatePayload(raw string) (start, end int, body string) {
	marker := strings.Index(raw, payloadMarker)
	if marker < 0 {
		return 0, 0, ""
	}

	// Prefer the surrounding code fence when the model kept it.
	if fenceOpen := strings.LastIndex(raw[:marker], "```"); fenceOpen >= 0 {
		rest := raw[marker:]
		if fenceClose := strings.Index(rest, "```"); fenceClose >= 0 {
			start = fenceOpen
			end = marker + fenceClose + 3
			body = raw[fenceOpen:end]
			body = strings.TrimPrefix(strings.TrimSpace(strings.Trim(body, "`")), "json")
			return start, end, strings.TrimSpace(body)
		}
	}

	// No fence: take the balanced object enclosing the marker.
	open := strings.LastIndex(raw[:marker], "{")
	if open < 0 {
		return 0, 0, ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return open, i + 1, raw[open : i+1]
			}
		}
	}
	return 0, 0, ""
}

// validate checks the candidate against the menu and substitutes catalog
// prices. Fail closed: any problem rejects the whole candidate.
func validate(cand *OrderCandidate, menu []models.Product) bool {
	if cand.CustomerName == "" || cand.Phone == "" {
		return false
	}
	if !models.ValidPaymentMethod(cand.PaymentMethod) {
		return false
	}
	if len(cand.Items) == 0 {
		return false
	}
	if cand.DeliveryAddress != nil && strings.TrimSpace(*cand.DeliveryAddress) == "" {
		cand.DeliveryAddress = nil
	}

	active := models.ActiveByID(menu)
	for i := range cand.Items {
		item := &cand.Items[i]
		if item.Quantity <= 0 {
			return false
		}
		product, ok := active[item.ProductID]
		if !ok {
			return false
		}
		// Catalog price is authoritative regardless of what the model said.
		price := product.Price
		item.Price = &price
	}
	return true
}
