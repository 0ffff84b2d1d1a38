package gatekeeper

import (
	"time"

	"comanda/internal/models"

	"github.com/jinzhu/gorm"
)

// DBLedger persists closed-notice timestamps in the conversation store. The
// pipeline's per-phone serialization makes read-then-stamp safe for a given
// phone.
type DBLedger struct {
	db           *gorm.DB
	restaurantID uint
}

// NewDBLedger creates a ledger bound to one restaurant.
func NewDBLedger(db *gorm.DB, restaurantID uint) *DBLedger {
	return &DBLedger{db: db, restaurantID: restaurantID}
}

// LastClosedNotice returns when the closed notice was last sent to phone.
func (l *DBLedger) LastClosedNotice(phone string) (time.Time, bool) {
	var notice models.ClosedNotice
	err := l.db.Where("restaurant_id = ? AND phone = ?", l.restaurantID, phone).
		First(&notice).Error
	if err != nil {
		return time.Time{}, false
	}
	return notice.LastSentAt, true
}

// StampClosedNotice records that a notice is being sent now.
func (l *DBLedger) StampClosedNotice(phone string, at time.Time) error {
	var notice models.ClosedNotice
	err := l.db.Where("restaurant_id = ? AND phone = ?", l.restaurantID, phone).
		First(&notice).Error
	if gorm.IsRecordNotFoundError(err) {
		return l.db.Create(&models.ClosedNotice{
			RestaurantID: l.restaurantID,
			Phone:        phone,
			LastSentAt:   at,
		}).Error
	}
	if err != nil {
		return err
	}
	return l.db.Model(&notice).Update("last_sent_at", at).Error
}
