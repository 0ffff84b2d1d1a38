package orders

import (
	"fmt"
	"log"
	"math"
	"time"

	"comanda/internal/extract"
	"comanda/internal/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// DedupeWindow is how long an identical conversational order from the same
// phone is treated as a duplicate of an already committed one.
const DedupeWindow = time.Minute

// Notifier receives order change events for fan-out to staff clients.
type Notifier interface {
	OrderCreated(order *models.Order)
	OrderUpdated(order *models.Order)
	OrderDeleted(orderID uint)
}

// Service owns order persistence: the commit transaction for every intake
// channel and the lifecycle transitions. All pricing flows through a single
// path so the total invariant holds regardless of origin.
type Service struct {
	db       *gorm.DB
	webhook  *WebhookClient
	notifier Notifier
}

// NewService wires the order service. webhook and notifier may be nil.
func NewService(db *gorm.DB, webhook *WebhookClient, notifier Notifier) *Service {
	return &Service{db: db, webhook: webhook, notifier: notifier}
}

// ItemInput references a product to order.
type ItemInput struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Notes     string `json:"notes"`
}

// PlaceInput is a priced-order request from any intake channel.
type PlaceInput struct {
	CustomerName    string
	Phone           string
	DeliveryAddress *string
	PaymentMethod   models.PaymentMethod
	Items           []ItemInput
	Origin          models.OrderOrigin
}

// Place validates, prices and persists a new order. Item names and unit
// prices are snapshotted from the catalog; the delivery fee applies only when
// an address is present. The new order always starts Pending.
func (s *Service) Place(cfg *models.RestaurantConfig, in PlaceInput) (*models.Order, error) {
	if !models.ValidPaymentMethod(in.PaymentMethod) {
		return nil, &CommitError{Kind: CommitValidationFailed, Err: fmt.Errorf("unknown payment method %q", in.PaymentMethod)}
	}
	if len(in.Items) == 0 {
		return nil, &CommitError{Kind: CommitValidationFailed, Err: fmt.Errorf("order has no items")}
	}

	items, total, err := s.priceItems(in.Items)
	if err != nil {
		return nil, err
	}

	address := in.DeliveryAddress
	if address != nil && *address == "" {
		address = nil
	}
	if address != nil {
		total = round2(total + cfg.DeliveryFee)
	}

	order := models.Order{
		RestaurantID:    cfg.ID,
		Code:            uuid.NewString(),
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.Phone,
		DeliveryAddress: address,
		Status:          models.OrderStatusPending,
		Origin:          in.Origin,
		PaymentMethod:   in.PaymentMethod,
		Total:           total,
		Items:           items,
		PlacedAt:        time.Now().UTC(),
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, &CommitError{Kind: CommitPersistenceFailed, Err: tx.Error}
	}

	if in.Phone != "" {
		customer, err := upsertCustomer(tx, cfg.ID, in)
		if err != nil {
			tx.Rollback()
			return nil, &CommitError{Kind: CommitPersistenceFailed, Err: err}
		}
		order.CustomerID = customer.ID
	}

	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, &CommitError{Kind: CommitPersistenceFailed, Err: err}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, &CommitError{Kind: CommitPersistenceFailed, Err: err}
	}

	if s.notifier != nil {
		s.notifier.OrderCreated(&order)
	}
	s.webhook.NotifyOrderCreated(cfg.WebhookURL, &order)

	return &order, nil
}

// Commit persists a conversational order candidate for a phone. The caller
// holds the per-phone serialization lock; under it an identical order
// committed within the dedupe window is returned as-is instead of creating a
// second row, so a retried or duplicated confirmation yields exactly one
// order.
func (s *Service) Commit(cfg *models.RestaurantConfig, phone string, cand *extract.OrderCandidate) (*models.Order, error) {
	in := PlaceInput{
		CustomerName:    cand.CustomerName,
		Phone:           phone, // the conversation's phone, not the model's claim
		DeliveryAddress: cand.DeliveryAddress,
		PaymentMethod:   cand.PaymentMethod,
		Origin:          models.OriginWhatsApp,
	}
	for _, item := range cand.Items {
		in.Items = append(in.Items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, Notes: item.Notes})
	}

	if existing := s.recentDuplicate(cfg, in); existing != nil {
		log.Printf("orders: duplicate confirmation for %s, reusing order %d", phone, existing.ID)
		return existing, nil
	}

	return s.Place(cfg, in)
}

// Transition moves an order to the next lifecycle status. The write is
// guarded by the status read: if another actor moved the order first, the
// stale request fails with ErrInvalidTransition instead of silently applying.
func (s *Service) Transition(orderID uint, next models.OrderStatus) (*models.Order, error) {
	var order models.Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if !models.CanTransition(order.Status, next) {
		return nil, ErrInvalidTransition
	}

	result := s.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, order.Status).
		Update("status", next)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// State moved on between read and write.
		return nil, ErrInvalidTransition
	}

	if err := s.db.Preload("Items").First(&order, orderID).Error; err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.OrderUpdated(&order)
	}
	return &order, nil
}

// Get loads one order with its items.
func (s *Service) Get(orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("Items").First(&order, orderID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// List returns orders newest first.
func (s *Service) List() ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.Preload("Items").Order("id desc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Delete removes an order. This is an administrative action outside the
// lifecycle, not a status.
func (s *Service) Delete(orderID uint) error {
	var order models.Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return ErrOrderNotFound
		}
		return err
	}
	if err := s.db.Delete(&order).Error; err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.OrderDeleted(orderID)
	}
	return nil
}

// priceItems snapshots name and unit price for each referenced product and
// computes the item subtotal. Unknown or inactive products fail validation.
func (s *Service) priceItems(inputs []ItemInput) ([]models.OrderItem, float64, error) {
	var items []models.OrderItem
	var total float64
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, 0, &CommitError{Kind: CommitValidationFailed, Err: fmt.Errorf("non-positive quantity for product %d", in.ProductID)}
		}
		var product models.Product
		if err := s.db.Where("id = ? AND active = ?", in.ProductID, true).First(&product).Error; err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return nil, 0, &CommitError{Kind: CommitValidationFailed, Err: fmt.Errorf("product %d not found or inactive", in.ProductID)}
			}
			return nil, 0, &CommitError{Kind: CommitPersistenceFailed, Err: err}
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  in.Quantity,
			Notes:     in.Notes,
		})
		total += product.Price * float64(in.Quantity)
	}
	return items, round2(total), nil
}

// upsertCustomer finds or creates the customer for a phone. An existing
// profile is left untouched on purpose: a mistyped chat address must not
// silently corrupt a saved one, so profile edits only happen through the
// customer-management endpoints.
func upsertCustomer(tx *gorm.DB, restaurantID uint, in PlaceInput) (*models.Customer, error) {
	var customer models.Customer
	err := tx.Where("restaurant_id = ? AND phone = ?", restaurantID, in.Phone).First(&customer).Error
	if err == nil {
		return &customer, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	customer = models.Customer{
		RestaurantID: restaurantID,
		Name:         in.CustomerName,
		Phone:        in.Phone,
	}
	if in.DeliveryAddress != nil {
		customer.Address = *in.DeliveryAddress
	}
	if err := tx.Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// recentDuplicate looks for an order committed moments ago for the same
// phone with the same items and total.
func (s *Service) recentDuplicate(cfg *models.RestaurantConfig, in PlaceInput) *models.Order {
	var last models.Order
	err := s.db.Preload("Items").
		Where("restaurant_id = ? AND customer_phone = ? AND origin = ?", cfg.ID, in.Phone, models.OriginWhatsApp).
		Order("id desc").
		First(&last).Error
	if err != nil {
		return nil
	}
	if time.Since(last.PlacedAt) > DedupeWindow {
		return nil
	}
	if !sameItems(last.Items, in.Items) {
		return nil
	}
	return &last
}

// sameItems compares the (product, quantity) multiset of an existing order
// against a new request.
func sameItems(existing []models.OrderItem, requested []ItemInput) bool {
	if len(existing) != len(requested) {
		return false
	}
	counts := make(map[uint]int, len(existing))
	for _, item := range existing {
		counts[item.ProductID] += item.Quantity
	}
	for _, item := range requested {
		counts[item.ProductID] -= item.Quantity
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
