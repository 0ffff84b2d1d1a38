package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"comanda/internal/extract"
	"comanda/internal/gatekeeper"
	"comanda/internal/llm"
	"comanda/internal/models"
	"comanda/internal/monitoring"
	"comanda/internal/orders"
	"comanda/internal/prompt"
	"comanda/internal/timectx"

	"github.com/jinzhu/gorm"
)

// Customer-facing fallback texts. The model failure apology deliberately
// promises nothing about any order.
const (
	ApologyReply = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	ClosedReply  = "Thanks for your message! We are closed at the moment, but we'll be happy to serve you during our opening hours."
)

// TurnRunner executes one model turn. *llm.Executor satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, promptText string) (string, error)
}

// TurnResult is what one inbound message produced: zero or one replies for
// the gateway to deliver, and the committed order id when the turn closed a
// sale.
type TurnResult struct {
	Reply   string
	OrderID uint
}

// Pipeline runs the conversational intake sequence: gatekeeper, context
// assembly, model turn, order extraction, commit. Turns for the same phone
// are serialized; different phones run fully in parallel.
type Pipeline struct {
	db      *gorm.DB
	runner  TurnRunner
	orders  *orders.Service
	monitor *monitoring.Monitor
	clock   timectx.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires the pipeline. monitor may be nil.
func New(db *gorm.DB, runner TurnRunner, orderSvc *orders.Service, monitor *monitoring.Monitor, clock timectx.Clock) *Pipeline {
	if clock == nil {
		clock = timectx.SystemClock{}
	}
	return &Pipeline{
		db:      db,
		runner:  runner,
		orders:  orderSvc,
		monitor: monitor,
		clock:   clock,
		locks:   make(map[string]*sync.Mutex),
	}
}

// HandleInbound processes one customer message end to end and returns the
// reply the gateway should deliver, if any. The whole sequence holds the
// phone's lock so a duplicated or racing message cannot commit twice.
func (p *Pipeline) HandleInbound(ctx context.Context, phone, displayName, text string) (*TurnResult, error) {
	lock := p.lockFor(phone)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := p.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load restaurant config: %w", err)
	}

	conv, err := p.touchConversation(cfg, phone, displayName)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	inbound, err := p.appendMessage(conv, models.DirectionInbound, text)
	if err != nil {
		return nil, fmt.Errorf("store inbound message: %w", err)
	}

	tc := timectx.For(p.clock, cfg.Location())
	ledger := gatekeeper.NewDBLedger(p.db, cfg.ID)

	decision, err := gatekeeper.Decide(cfg, conv, ledger, tc)
	if err != nil {
		return nil, fmt.Errorf("gatekeeper: %w", err)
	}

	switch decision {
	case gatekeeper.Suppress:
		monitoring.TurnsTotal.WithLabelValues("suppressed").Inc()
		return &TurnResult{}, nil
	case gatekeeper.SendClosedNotice:
		monitoring.TurnsTotal.WithLabelValues("closed_notice").Inc()
		monitoring.ClosedNoticesTotal.Inc()
		return p.reply(conv, ClosedReply, 0)
	}
	monitoring.TurnsTotal.WithLabelValues("proceed").Inc()

	menu, err := p.loadMenu(cfg)
	if err != nil {
		return nil, fmt.Errorf("load menu: %w", err)
	}
	history, err := p.loadHistory(conv, inbound.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	promptText := prompt.Assemble(cfg, menu, history, text, tc)

	started := time.Now()
	raw, err := p.runner.Run(ctx, promptText)
	monitoring.ModelLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		var modelErr *llm.ModelError
		kind := string(llm.ErrKindUpstream)
		if errors.As(err, &modelErr) {
			kind = string(modelErr.Kind)
		}
		monitoring.ModelErrorsTotal.WithLabelValues(kind).Inc()
		log.Printf("pipeline: model turn for %s failed: %v", phone, err)
		// No order may be fabricated from a failed turn.
		return p.reply(conv, ApologyReply, 0)
	}

	customerText, candidate := extract.Extract(raw, menu)

	var orderID uint
	if candidate != nil {
		order, err := p.orders.Commit(cfg, phone, candidate)
		if err != nil {
			log.Printf("pipeline: order commit for %s failed: %v", phone, err)
			// The model's text claims a confirmed order; without a committed
			// id we must not echo that claim.
			return p.reply(conv, ApologyReply, 0)
		}
		orderID = order.ID
		monitoring.OrdersTotal.WithLabelValues(string(models.OriginWhatsApp)).Inc()
		if p.monitor != nil {
			p.monitor.IncrMetric("orders_whatsapp")
		}
	}

	if customerText == "" {
		customerText = ApologyReply
	}
	return p.reply(conv, customerText, orderID)
}

// lockFor returns the serialization mutex for a phone.
func (p *Pipeline) lockFor(phone string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[phone]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[phone] = lock
	}
	return lock
}

func (p *Pipeline) loadConfig() (*models.RestaurantConfig, error) {
	var cfg models.RestaurantConfig
	if err := p.db.Preload("Hours").First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Pipeline) loadMenu(cfg *models.RestaurantConfig) ([]models.Product, error) {
	var menu []models.Product
	err := p.db.Where("restaurant_id = ? AND active = ?", cfg.ID, true).Find(&menu).Error
	return menu, err
}

// loadHistory fetches the window of messages that precede the new inbound
// one, oldest first.
func (p *Pipeline) loadHistory(conv *models.Conversation, beforeID uint) ([]models.Message, error) {
	var recent []models.Message
	err := p.db.Where("conversation_id = ? AND id < ?", conv.ID, beforeID).
		Order("id desc").
		Limit(prompt.HistoryWindow).
		Find(&recent).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// touchConversation finds or lazily creates the conversation for a phone and
// bumps its unread state for the inbound message.
func (p *Pipeline) touchConversation(cfg *models.RestaurantConfig, phone, displayName string) (*models.Conversation, error) {
	var conv models.Conversation
	err := p.db.Where("restaurant_id = ? AND phone = ?", cfg.ID, phone).First(&conv).Error
	if gorm.IsRecordNotFoundError(err) {
		conv = models.Conversation{
			RestaurantID: cfg.ID,
			Phone:        phone,
			CustomerName: displayName,
		}
		if err := p.db.Create(&conv).Error; err != nil {
			return nil, err
		}
		return &conv, nil
	}
	if err != nil {
		return nil, err
	}
	if conv.CustomerName == "" && displayName != "" {
		if err := p.db.Model(&conv).Update("customer_name", displayName).Error; err != nil {
			return nil, err
		}
	}
	return &conv, nil
}

// appendMessage stores a message and refreshes the conversation summary
// fields.
func (p *Pipeline) appendMessage(conv *models.Conversation, direction models.MessageDirection, text string) (*models.Message, error) {
	now := p.clock.Now()
	msg := models.Message{
		ConversationID: conv.ID,
		Phone:          conv.Phone,
		Text:           text,
		Direction:      direction,
		SentAt:         now,
	}
	if err := p.db.Create(&msg).Error; err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"last_message":    text,
		"last_message_at": now,
	}
	if direction == models.DirectionInbound {
		updates["unread"] = gorm.Expr("unread + 1")
	}
	if err := p.db.Model(conv).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// reply stores the outbound message and wraps it in a TurnResult.
func (p *Pipeline) reply(conv *models.Conversation, text string, orderID uint) (*TurnResult, error) {
	if _, err := p.appendMessage(conv, models.DirectionOutbound, text); err != nil {
		return nil, fmt.Errorf("store outbound message: %w", err)
	}
	return &TurnResult{Reply: text, OrderID: orderID}, nil
}
