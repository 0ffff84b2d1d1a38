package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// RestaurantConfig holds the single restaurant's identity and the knobs that
// drive the conversational agent: business hours, delivery fee and the bot
// persona. Mutated by the settings collaborator; the ordering pipeline only
// reads it.
type RestaurantConfig struct {
	gorm.Model
	Name            string
	Address         string
	Phone           string
	Timezone        string // IANA zone name, e.g. "America/Sao_Paulo"
	DeliveryFee     float64
	BotEnabled      bool
	BotName         string
	BotInstructions string `gorm:"type:text"`
	WebhookURL      string
	Hours           []OpeningHours `gorm:"foreignkey:RestaurantID"`
}

// OpeningHours is one weekday entry of the weekly schedule. Times are stored
// as minutes of the local day; a close minute earlier than the open minute
// means the window spans midnight into the next day.
type OpeningHours struct {
	gorm.Model
	RestaurantID uint
	Weekday      int // time.Weekday numbering, 0 = Sunday
	IsOpen       bool
	OpenMinute   int
	CloseMinute  int
}

// HoursFor returns the schedule entry for a weekday, or nil when none is
// configured.
func (c *RestaurantConfig) HoursFor(day time.Weekday) *OpeningHours {
	for i := range c.Hours {
		if c.Hours[i].Weekday == int(day) {
			return &c.Hours[i]
		}
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC when the
// zone name is empty or unknown.
func (c *RestaurantConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClosedNotice records when the "we are closed" message was last sent to a
// phone. One row per phone; the gatekeeper debounces against it.
type ClosedNotice struct {
	gorm.Model
	RestaurantID uint
	Phone        string `gorm:"index"`
	LastSentAt   time.Time
}
