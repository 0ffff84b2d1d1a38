package api

import (
	"net/http"

	"comanda/internal/models"
	"comanda/internal/monitoring"
	"comanda/internal/orders"
	"comanda/internal/pipeline"
	"comanda/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

// Server is the HTTP surface of the ordering system: the gateway webhook, the
// public menu endpoints and the JWT-guarded staff endpoints.
type Server struct {
	Router *gin.Engine

	db        *gorm.DB
	pipeline  *pipeline.Pipeline
	orders    *orders.Service
	hub       *realtime.Hub
	monitor   *monitoring.Monitor
	jwtSecret string
}

// NewServer creates the API server and registers all routes.
func NewServer(db *gorm.DB, pipe *pipeline.Pipeline, orderSvc *orders.Service, hub *realtime.Hub, monitor *monitoring.Monitor, jwtSecret string) *Server {
	s := &Server{
		Router:    gin.Default(),
		db:        db,
		pipeline:  pipe,
		orders:    orderSvc,
		hub:       hub,
		monitor:   monitor,
		jwtSecret: jwtSecret,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Inbound messages from the WhatsApp gateway. The reply travels back in
	// the response body; delivery is the gateway's job.
	s.Router.POST("/webhook/whatsapp", s.HandleInboundMessage)

	// Public endpoints backing the customer-facing menu page.
	s.Router.GET("/api/menu", s.GetMenu)
	s.Router.POST("/api/orders", s.CreatePublicOrder)

	staff := s.Router.Group("/api", AuthMiddleware(s.jwtSecret))
	{
		staff.GET("/orders", s.ListOrders)
		staff.GET("/orders/:id", s.GetOrder)
		staff.POST("/staff/orders", s.CreateStaffOrder)
		staff.PATCH("/orders/:id/status", s.UpdateOrderStatus)
		staff.DELETE("/orders/:id", s.DeleteOrder)

		staff.GET("/conversations", s.ListConversations)
		staff.GET("/conversations/:id/messages", s.ListMessages)
		staff.POST("/conversations/:id/pause", s.SetConversationPause)

		staff.GET("/metrics", s.GetMetricsSnapshot)
	}

	s.Router.GET("/ws", AuthMiddleware(s.jwtSecret), realtime.HandleWebSocket(s.hub))
}

// loadConfig fetches the single restaurant row with its opening hours.
func (s *Server) loadConfig() (*models.RestaurantConfig, error) {
	var cfg models.RestaurantConfig
	if err := s.db.Preload("Hours").First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}
