package models

import (
	"github.com/jinzhu/gorm"
)

// Product is a menu item. Only active products are offered to the agent and
// accepted on incoming orders; order items snapshot the name and price so
// later edits never rewrite a placed order.
type Product struct {
	gorm.Model
	RestaurantID uint
	Name         string
	Description  string
	Price        float64
	Category     string
	Active       bool
}

// ActiveByID indexes active products by id for extraction-time validation.
func ActiveByID(products []Product) map[uint]Product {
	index := make(map[uint]Product, len(products))
	for _, p := range products {
		if p.Active {
			index[p.ID] = p
		}
	}
	return index
}
