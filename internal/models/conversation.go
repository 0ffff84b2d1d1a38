package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// MessageDirection marks who authored a message.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// Conversation is one WhatsApp thread, unique per customer phone. Created
// lazily on the first message in either direction and never hard-deleted.
type Conversation struct {
	gorm.Model
	RestaurantID  uint
	Phone         string `gorm:"unique_index"`
	CustomerName  string
	LastMessage   string
	LastMessageAt time.Time
	BotPaused     bool
	Unread        int
}

// Message is one turn in a conversation. Append-only; ordering is by
// timestamp with insertion order breaking ties.
type Message struct {
	gorm.Model
	ConversationID uint `gorm:"index"`
	Phone          string
	Text           string `gorm:"type:text"`
	Direction      MessageDirection
	SentAt         time.Time
}
