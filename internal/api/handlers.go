package api

import (
	"errors"
	"net/http"
	"strconv"

	"comanda/internal/models"
	"comanda/internal/orders"

	"github.com/gin-gonic/gin"
)

// inboundMessage is what the WhatsApp gateway posts for each customer message.
type inboundMessage struct {
	Phone string `json:"phone" binding:"required"`
	Name  string `json:"name"`
	Text  string `json:"text" binding:"required"`
}

// HandleInboundMessage runs one customer message through the ordering
// pipeline. An empty reply means the gateway should send nothing.
func (s *Server) HandleInboundMessage(c *gin.Context) {
	var msg inboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.pipeline.HandleInbound(c.Request.Context(), msg.Phone, msg.Name, msg.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"reply": result.Reply}
	if result.OrderID != 0 {
		response["order_id"] = result.OrderID
	}
	c.JSON(http.StatusOK, response)
}

// GetMenu returns the active catalog for the public menu page.
func (s *Server) GetMenu(c *gin.Context) {
	var products []models.Product
	err := s.db.Where("active = ?", true).
		Order("category, name").
		Find(&products).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, products)
}

// orderRequest is the body for both the public and the staff order endpoints.
type orderRequest struct {
	CustomerName    string             `json:"customer_name" binding:"required"`
	Phone           string             `json:"phone"`
	DeliveryAddress *string            `json:"delivery_address"`
	PaymentMethod   string             `json:"payment_method" binding:"required"`
	Items           []orders.ItemInput `json:"items" binding:"required,dive"`
	Origin          models.OrderOrigin `json:"origin"`
}

func (s *Server) placeOrder(c *gin.Context, req orderRequest, origin models.OrderOrigin) {
	cfg, err := s.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	order, err := s.orders.Place(cfg, orders.PlaceInput{
		CustomerName:    req.CustomerName,
		Phone:           req.Phone,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   models.PaymentMethod(req.PaymentMethod),
		Items:           req.Items,
		Origin:          origin,
	})
	if err != nil {
		var commitErr *orders.CommitError
		if errors.As(err, &commitErr) && commitErr.Kind == orders.CommitValidationFailed {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": commitErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, order)
}

// CreatePublicOrder takes an order from the customer-facing menu page.
func (s *Server) CreatePublicOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.placeOrder(c, req, models.OriginPublicMenu)
}

// CreateStaffOrder takes a phone or walk-in order entered by staff. The body
// may name the origin (manual or table); anything else falls back to manual.
func (s *Server) CreateStaffOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	origin := models.OriginManual
	if req.Origin == models.OriginTable {
		origin = models.OriginTable
	}
	s.placeOrder(c, req, origin)
}

// ListOrders returns all orders, newest first.
func (s *Server) ListOrders(c *gin.Context) {
	list, err := s.orders.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetOrder returns one order with its items.
func (s *Server) GetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := s.orders.Get(id)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus advances an order through its lifecycle. A stale or
// illegal transition answers 409 so the dashboard can refresh and retry.
func (s *Server) UpdateOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Status models.OrderStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.orders.Transition(id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, orders.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, order)
}

// DeleteOrder removes an order outright. Administrative, not a lifecycle step.
func (s *Server) DeleteOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.orders.Delete(id); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}

// ListConversations returns conversations, most recently active first.
func (s *Server) ListConversations(c *gin.Context) {
	var conversations []models.Conversation
	err := s.db.Order("last_message_at desc").Find(&conversations).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// ListMessages returns a conversation's messages oldest first and clears its
// unread counter, since staff have now seen them.
func (s *Server) ListMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var conv models.Conversation
	if err := s.db.First(&conv, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	var messages []models.Message
	if err := s.db.Where("conversation_id = ?", conv.ID).Order("id").Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if conv.Unread > 0 {
		if err := s.db.Model(&conv).Update("unread", 0).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, messages)
}

// SetConversationPause lets staff take over a conversation (or hand it back
// to the bot).
func (s *Server) SetConversationPause(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Paused *bool `json:"paused" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var conv models.Conversation
	if err := s.db.First(&conv, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err := s.db.Model(&conv).Update("bot_paused", *req.Paused).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	conv.BotPaused = *req.Paused
	c.JSON(http.StatusOK, conv)
}

// GetMetricsSnapshot serves the staff dashboard counters.
func (s *Server) GetMetricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetMetrics())
}

// pathID parses the :id route parameter, answering 400 itself on garbage.
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
