package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"comanda/internal/database"
	"comanda/internal/models"
	"comanda/internal/monitoring"
	"comanda/internal/orders"
	"comanda/internal/pipeline"
	"comanda/internal/timectx"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type cannedRunner struct {
	reply string
}

func (r *cannedRunner) Run(ctx context.Context, promptText string) (string, error) {
	return r.reply, nil
}

type testServer struct {
	server *Server
	db     *gorm.DB
	pizza  models.Product
	runner *cannedRunner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	cfg := &models.RestaurantConfig{
		Name:        "Pizzaria Bella",
		Timezone:    "UTC",
		DeliveryFee: 5,
		BotEnabled:  true,
		Hours: []models.OpeningHours{
			{Weekday: 1, IsOpen: true, OpenMinute: 0, CloseMinute: 1439},
		},
	}
	require.NoError(t, db.Create(cfg).Error)

	pizza := models.Product{RestaurantID: cfg.ID, Name: "Margherita", Price: 12.5, Category: "Pizzas", Active: true}
	require.NoError(t, db.Create(&pizza).Error)
	retired := models.Product{RestaurantID: cfg.ID, Name: "Calzone", Price: 14, Category: "Pizzas", Active: false}
	require.NoError(t, db.Create(&retired).Error)

	monitor := monitoring.NewMonitor()
	svc := orders.NewService(db, nil, nil)
	runner := &cannedRunner{reply: "Hi! What would you like?"}
	clock := timectx.Fixed(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) // a Monday
	pipe := pipeline.New(db, runner, svc, monitor, clock)

	server := NewServer(db, pipe, svc, nil, monitor, testSecret)
	return &testServer{server: server, db: db, pizza: pizza, runner: runner}
}

func staffToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "staff",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) request(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Router.ServeHTTP(w, req)
	return w
}

func TestMenuListsOnlyActiveProducts(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/menu", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var products []models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Margherita", products[0].Name)
}

func TestPublicOrderCreated(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/orders", gin.H{
		"customer_name":  "Ana",
		"phone":          "+1",
		"payment_method": "card",
		"items":          []gin.H{{"product_id": ts.pizza.ID, "quantity": 2}},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.OriginPublicMenu, order.Origin)
	assert.Equal(t, 25.0, order.Total)
}

func TestOrderResponseUsesSnakeCaseFields(t *testing.T) {
	ts := newTestServer(t)

	address := "Main St 1"
	w := ts.request(t, http.MethodPost, "/api/orders", gin.H{
		"customer_name":    "Ana",
		"phone":            "+1",
		"delivery_address": address,
		"payment_method":   "card",
		"items":            []gin.H{{"product_id": ts.pizza.ID, "quantity": 2}},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The cli client and webhook receivers decode these exact field names.
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "Ana", raw["customer_name"])
	assert.Equal(t, "+1", raw["customer_phone"])
	assert.Equal(t, address, raw["delivery_address"])
	assert.Equal(t, "card", raw["payment_method"])
	assert.Contains(t, raw, "placed_at")
	assert.Contains(t, raw, "code")

	items, ok := raw["items"].([]interface{})
	require.True(t, ok, "items must serialize under the items key")
	require.Len(t, items, 1)
	item, ok := items[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Margherita", item["name"])
	assert.Equal(t, 12.5, item["unit_price"])
	assert.Equal(t, float64(ts.pizza.ID), item["product_id"])
}

func TestPublicOrderRejectsUnknownProduct(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/orders", gin.H{
		"customer_name":  "Ana",
		"payment_method": "cash",
		"items":          []gin.H{{"product_id": 9999, "quantity": 1}},
	}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStaffEndpointsRequireToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/orders", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.request(t, http.MethodGet, "/api/orders", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.request(t, http.MethodGet, "/api/orders", nil, staffToken(t))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStaffOrderDefaultsToManualOrigin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/staff/orders", gin.H{
		"customer_name":  "Walk-in",
		"payment_method": "cash",
		"items":          []gin.H{{"product_id": ts.pizza.ID, "quantity": 1}},
	}, staffToken(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, models.OriginManual, order.Origin)
}

func TestStatusTransitionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := staffToken(t)

	w := ts.request(t, http.MethodPost, "/api/staff/orders", gin.H{
		"customer_name":  "Ana",
		"payment_method": "pix",
		"items":          []gin.H{{"product_id": ts.pizza.ID, "quantity": 1}},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))

	path := "/api/orders/" + itoa(order.ID) + "/status"

	w = ts.request(t, http.MethodPatch, path, gin.H{"status": "accepted"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Skipping preparing is not a legal move.
	w = ts.request(t, http.MethodPatch, path, gin.H{"status": "finished"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.request(t, http.MethodPatch, "/api/orders/424242/status", gin.H{"status": "accepted"}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookReturnsReply(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/webhook/whatsapp", gin.H{
		"phone": "+5511999990000",
		"name":  "Ana",
		"text":  "hello",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Reply string `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hi! What would you like?", resp.Reply)
}

func TestConversationPauseToggle(t *testing.T) {
	ts := newTestServer(t)
	token := staffToken(t)

	// A webhook call creates the conversation.
	w := ts.request(t, http.MethodPost, "/webhook/whatsapp", gin.H{
		"phone": "+1", "name": "Ana", "text": "hi",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var conv models.Conversation
	require.NoError(t, ts.db.Where("phone = ?", "+1").First(&conv).Error)

	w = ts.request(t, http.MethodPost, "/api/conversations/"+itoa(conv.ID)+"/pause", gin.H{"paused": true}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, ts.db.First(&conv, conv.ID).Error)
	assert.True(t, conv.BotPaused)
}

func TestMessagesListClearsUnread(t *testing.T) {
	ts := newTestServer(t)
	token := staffToken(t)

	w := ts.request(t, http.MethodPost, "/webhook/whatsapp", gin.H{
		"phone": "+1", "name": "Ana", "text": "hi",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var conv models.Conversation
	require.NoError(t, ts.db.Where("phone = ?", "+1").First(&conv).Error)
	require.NotZero(t, conv.Unread)

	w = ts.request(t, http.MethodGet, "/api/conversations/"+itoa(conv.ID)+"/messages", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	var messages []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	assert.Len(t, messages, 2)

	require.NoError(t, ts.db.First(&conv, conv.ID).Error)
	assert.Zero(t, conv.Unread)
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
