package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"comanda/internal/database"
	"comanda/internal/llm"
	"comanda/internal/models"
	"comanda/internal/orders"
	"comanda/internal/timectx"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner returns canned model replies and counts invocations.
type scriptedRunner struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (r *scriptedRunner) Run(ctx context.Context, promptText string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.reply, r.err
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fixture struct {
	db     *gorm.DB
	cfg    *models.RestaurantConfig
	pizza  models.Product
	runner *scriptedRunner
	pipe   *Pipeline
}

// newFixture seeds a restaurant open all day Monday and pins the clock to
// Monday noon.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	cfg := &models.RestaurantConfig{
		Name:        "Pizzaria Bella",
		Timezone:    "UTC",
		DeliveryFee: 5,
		BotEnabled:  true,
		BotName:     "Bella",
		Hours: []models.OpeningHours{
			{Weekday: 1, IsOpen: true, OpenMinute: 0, CloseMinute: 1439},
		},
	}
	require.NoError(t, db.Create(cfg).Error)

	pizza := models.Product{RestaurantID: cfg.ID, Name: "Margherita", Price: 12.5, Category: "Pizzas", Active: true}
	require.NoError(t, db.Create(&pizza).Error)

	runner := &scriptedRunner{reply: "Anything else?"}
	svc := orders.NewService(db, nil, nil)

	// 2024-01-01 is a Monday.
	clock := timectx.Fixed(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	pipe := New(db, runner, svc, nil, clock)

	return &fixture{db: db, cfg: cfg, pizza: pizza, runner: runner, pipe: pipe}
}

func (f *fixture) confirmationReply() string {
	return "Your order is confirmed!\n```json\n" +
		`{"type": "create_order", "customer_name": "Ana", "phone": "+1", "delivery_address": null, "payment_method": "cash", "items": [{"product_id": ` +
		strconv.FormatUint(uint64(f.pizza.ID), 10) + `, "quantity": 2, "notes": ""}]}` + "\n```"
}

func TestTurnWithoutOrder(t *testing.T) {
	f := newFixture(t)

	result, err := f.pipe.HandleInbound(context.Background(), "+5511999990000", "Ana", "what's on the menu?")
	require.NoError(t, err)

	assert.Equal(t, "Anything else?", result.Reply)
	assert.Zero(t, result.OrderID)

	var count int
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)

	// Both turns of the exchange were logged.
	var messages []models.Message
	require.NoError(t, f.db.Order("id").Find(&messages).Error)
	require.Len(t, messages, 2)
	assert.Equal(t, models.DirectionInbound, messages[0].Direction)
	assert.Equal(t, models.DirectionOutbound, messages[1].Direction)
}

func TestTurnCommitsExtractedOrder(t *testing.T) {
	f := newFixture(t)
	f.runner.reply = f.confirmationReply()

	result, err := f.pipe.HandleInbound(context.Background(), "+5511999990000", "Ana", "yes, confirm")
	require.NoError(t, err)

	assert.Equal(t, "Your order is confirmed!", result.Reply)
	assert.NotContains(t, result.Reply, "create_order", "payload must never reach the customer")
	require.NotZero(t, result.OrderID)

	var order models.Order
	require.NoError(t, f.db.Preload("Items").First(&order, result.OrderID).Error)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.OriginWhatsApp, order.Origin)
	assert.Equal(t, 25.0, order.Total)
	assert.Equal(t, "+5511999990000", order.CustomerPhone, "conversation phone wins over model claim")
}

func TestClosedRestaurantSendsNoticeOnce(t *testing.T) {
	f := newFixture(t)
	// Closed on Mondays after all.
	require.NoError(t, f.db.Model(&models.OpeningHours{}).
		Where("restaurant_id = ?", f.cfg.ID).
		Update("is_open", false).Error)

	first, err := f.pipe.HandleInbound(context.Background(), "+1", "Ana", "hello?")
	require.NoError(t, err)
	assert.Equal(t, ClosedReply, first.Reply)

	second, err := f.pipe.HandleInbound(context.Background(), "+1", "Ana", "anyone there?")
	require.NoError(t, err)
	assert.Empty(t, second.Reply, "debounced repeat must stay silent")

	assert.Zero(t, f.runner.callCount(), "the model is never invoked while closed")
}

func TestPausedConversationStaysSilent(t *testing.T) {
	f := newFixture(t)

	// First turn creates the conversation, then staff pause it.
	_, err := f.pipe.HandleInbound(context.Background(), "+1", "Ana", "hi")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Conversation{}).
		Where("phone = ?", "+1").
		Update("bot_paused", true).Error)

	result, err := f.pipe.HandleInbound(context.Background(), "+1", "Ana", "hello?")
	require.NoError(t, err)
	assert.Empty(t, result.Reply)

	// The inbound message is still recorded for staff to read.
	var count int
	require.NoError(t, f.db.Model(&models.Message{}).
		Where("direction = ?", models.DirectionInbound).
		Count(&count).Error)
	assert.Equal(t, 2, count)
}

func TestModelFailureFallsBackToApology(t *testing.T) {
	f := newFixture(t)
	f.runner.err = &llm.ModelError{Kind: llm.ErrKindUpstream, Err: errors.New("503")}

	result, err := f.pipe.HandleInbound(context.Background(), "+1", "Ana", "hi")
	require.NoError(t, err)
	assert.Equal(t, ApologyReply, result.Reply)
	assert.Zero(t, result.OrderID)

	var count int
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count, "a failed turn must never fabricate an order")
}

func TestMalformedPayloadKeepsHumanText(t *testing.T) {
	f := newFixture(t)
	f.runner.reply = "Order confirmed!\n```json\n{\"type\": \"create_order\", broken\n```"

	result, err := f.pipe.HandleInbound(context.Background(), "+1", "Ana", "confirm")
	require.NoError(t, err)

	assert.Equal(t, "Order confirmed!", result.Reply)
	assert.Zero(t, result.OrderID)

	var count int
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDuplicateConfirmationsCommitOnce(t *testing.T) {
	f := newFixture(t)
	f.runner.reply = f.confirmationReply()

	const phone = "+5511999990000"
	var wg sync.WaitGroup
	results := make([]*TurnResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.pipe.HandleInbound(context.Background(), phone, "Ana", "yes, confirm")
			require.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	var count int
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, 1, count, "near-simultaneous confirmations must create exactly one order")
	assert.Equal(t, results[0].OrderID, results[1].OrderID)
}

func TestHistoryWindowFeedsThePrompt(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipe.HandleInbound(context.Background(), "+1", "Ana", "first message")
	require.NoError(t, err)
	_, err = f.pipe.HandleInbound(context.Background(), "+1", "Ana", "second message")
	require.NoError(t, err)

	var messages []models.Message
	require.NoError(t, f.db.Where("phone = ?", "+1").Order("id").Find(&messages).Error)
	// Two exchanges: inbound/outbound pairs.
	require.Len(t, messages, 4)
}
