package gatekeeper

import (
	"time"

	"comanda/internal/models"
	"comanda/internal/timectx"
)

// Decision is the gatekeeper's verdict for one inbound turn.
type Decision int

const (
	// Proceed lets the agent answer this turn.
	Proceed Decision = iota
	// Suppress sends nothing at all.
	Suppress
	// SendClosedNotice sends the rate-limited "we are closed" reply.
	SendClosedNotice
)

// NoticeDebounce is the minimum interval between closed notices to the same
// phone.
const NoticeDebounce = time.Hour

// NoticeLedger tracks the last closed notice per phone. The stamp must land
// before or atomically with the notice send so concurrent evaluations for the
// same phone cannot double-notify.
type NoticeLedger interface {
	LastClosedNotice(phone string) (time.Time, bool)
	StampClosedNotice(phone string, at time.Time) error
}

// Decide applies the liveness rules for an automated reply: bot paused
// (globally or for this conversation) means silence, outside business hours
// means at most one closed notice per debounce window, and only an enabled
// bot inside an open window proceeds.
//
// conv may be nil when the conversation does not exist yet.
func Decide(cfg *models.RestaurantConfig, conv *models.Conversation, ledger NoticeLedger, tc timectx.TimeContext) (Decision, error) {
	if !cfg.BotEnabled {
		return Suppress, nil
	}
	if conv != nil && conv.BotPaused {
		return Suppress, nil
	}

	if OpenAt(cfg, tc) {
		return Proceed, nil
	}

	phone := ""
	if conv != nil {
		phone = conv.Phone
	}
	if last, ok := ledger.LastClosedNotice(phone); ok && tc.Now.Sub(last) < NoticeDebounce {
		return Suppress, nil
	}
	if err := ledger.StampClosedNotice(phone, tc.Now); err != nil {
		return Suppress, err
	}
	return SendClosedNotice, nil
}

// OpenAt reports whether the restaurant is open at the context instant.
// Windows whose close minute precedes their open minute span midnight, so
// both today's window and yesterday's overnight tail are checked. Boundary
// minutes count as open.
func OpenAt(cfg *models.RestaurantConfig, tc timectx.TimeContext) bool {
	minute := tc.MinuteOfDay()

	if h := cfg.HoursFor(tc.Weekday()); h != nil && h.IsOpen {
		if h.CloseMinute >= h.OpenMinute {
			if minute >= h.OpenMinute && minute <= h.CloseMinute {
				return true
			}
		} else if minute >= h.OpenMinute {
			return true
		}
	}

	yesterday := (tc.Weekday() + 6) % 7
	if h := cfg.HoursFor(yesterday); h != nil && h.IsOpen && h.CloseMinute < h.OpenMinute {
		if minute <= h.CloseMinute {
			return true
		}
	}

	return false
}
