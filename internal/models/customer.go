package models

import (
	"github.com/jinzhu/gorm"
)

// Customer is a saved customer profile, unique per phone. Conversational
// orders upsert by phone but never overwrite an existing profile; edits go
// through the customer-management collaborator.
type Customer struct {
	gorm.Model
	RestaurantID uint
	Name         string
	Phone        string `gorm:"unique_index"`
	Address      string
}
