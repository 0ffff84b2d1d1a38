package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ApiClient talks to the comanda API on behalf of the terminal client.
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
	Token      string
}

// NewApiClient creates a new API client. The base URL comes from
// COMANDA_API_URL and the staff JWT from COMANDA_TOKEN.
func NewApiClient() *ApiClient {
	baseURL := os.Getenv("COMANDA_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &ApiClient{
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		BaseURL: baseURL,
		Token:   os.Getenv("COMANDA_TOKEN"),
	}
}

// Order mirrors the API's order representation.
type Order struct {
	ID              uint        `json:"ID"`
	Code            string      `json:"code"`
	CustomerName    string      `json:"customer_name"`
	CustomerPhone   string      `json:"customer_phone"`
	DeliveryAddress *string     `json:"delivery_address"`
	Status          string      `json:"status"`
	Origin          string      `json:"origin"`
	PaymentMethod   string      `json:"payment_method"`
	Total           float64     `json:"total"`
	Items           []OrderItem `json:"items"`
	PlacedAt        time.Time   `json:"placed_at"`
}

// OrderItem mirrors one order line.
type OrderItem struct {
	ID        uint    `json:"ID"`
	ProductID uint    `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Notes     string  `json:"notes,omitempty"`
}

// nextStatus maps each status to the one the advance key should request.
var nextStatus = map[string]string{
	"pending":          "accepted",
	"accepted":         "preparing",
	"preparing":        "out_for_delivery",
	"out_for_delivery": "finished",
}

func (c *ApiClient) do(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.httpClient.Do(req)
}

// Ping checks if the API server is available.
func (c *ApiClient) Ping() bool {
	resp, err := c.httpClient.Get(c.BaseURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// GetOrders retrieves all orders, newest first.
func (c *ApiClient) GetOrders() ([]Order, error) {
	resp, err := c.do(http.MethodGet, "/api/orders", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list orders with status code: %d", resp.StatusCode)
	}

	var orders []Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder retrieves a specific order by ID.
func (c *ApiClient) GetOrder(id uint) (*Order, error) {
	resp, err := c.do(http.MethodGet, fmt.Sprintf("/api/orders/%d", id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get order with status code: %d", resp.StatusCode)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// AdvanceOrder requests the order's next lifecycle status.
func (c *ApiClient) AdvanceOrder(order *Order) (*Order, error) {
	next, ok := nextStatus[order.Status]
	if !ok {
		return nil, fmt.Errorf("order %d is %s and cannot advance", order.ID, order.Status)
	}
	return c.setStatus(order.ID, next)
}

// CancelOrder moves an order to cancelled.
func (c *ApiClient) CancelOrder(id uint) (*Order, error) {
	return c.setStatus(id, "cancelled")
}

func (c *ApiClient) setStatus(id uint, status string) (*Order, error) {
	resp, err := c.do(http.MethodPatch, fmt.Sprintf("/api/orders/%d/status", id), map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return nil, fmt.Errorf("order %d moved on, refresh and retry", id)
	case http.StatusNotFound:
		return nil, fmt.Errorf("order %d not found", id)
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to update status: %s", string(body))
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}
