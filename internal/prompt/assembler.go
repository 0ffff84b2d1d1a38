package prompt

import (
	"fmt"
	"sort"
	"strings"

	"comanda/internal/models"
	"comanda/internal/timectx"
)

// HistoryWindow bounds how many prior messages are replayed to the model.
// Older turns are dropped, not summarized.
const HistoryWindow = 20

// OrderPayloadContract instructs the model to emit the machine-readable order
// block the extraction parser depends on. The fenced JSON shape is a fixed
// wire contract; changing it breaks the parser.
const OrderPayloadContract = `When the customer has confirmed their order, finish your reply with the order data in a fenced json block, exactly in this shape:

` + "```json" + `
{"type": "create_order", "customer_name": "...", "phone": "...", "delivery_address": null, "payment_method": "cash", "items": [{"product_id": 1, "quantity": 1, "notes": ""}]}
` + "```" + `

Rules: payment_method must be one of cash, card or pix. delivery_address must be null for pickup. product_id must be an id from the menu above. Never invent products. Never emit the block before the customer confirms.`

// Assemble builds the deterministic system prompt for one conversational
// turn: persona and local time, business identity, the active menu grouped by
// category with ids, the weekly schedule, the order payload contract, and the
// staff-written instructions appended last so they refine but never override
// the contract. The bounded history window and the new inbound message close
// the prompt.
func Assemble(cfg *models.RestaurantConfig, menu []models.Product, history []models.Message, inbound string, tc timectx.TimeContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, the ordering assistant for %s.\n", persona(cfg), cfg.Name)
	fmt.Fprintf(&b, "Current local date and time: %s.\n\n", tc.Now.Format("Monday, 02 Jan 2006 15:04"))

	b.WriteString("Business information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", cfg.Name)
	if cfg.Address != "" {
		fmt.Fprintf(&b, "- Address: %s\n", cfg.Address)
	}
	if cfg.Phone != "" {
		fmt.Fprintf(&b, "- Phone: %s\n", cfg.Phone)
	}
	fmt.Fprintf(&b, "- Delivery fee: %.2f\n\n", cfg.DeliveryFee)

	writeMenu(&b, menu)
	writeSchedule(&b, cfg)

	b.WriteString(OrderPayloadContract)
	b.WriteString("\n")

	if cfg.BotInstructions != "" {
		b.WriteString("\nAdditional instructions from the restaurant:\n")
		b.WriteString(cfg.BotInstructions)
		b.WriteString("\n")
	}

	b.WriteString("\nConversation so far:\n")
	for _, m := range trimHistory(history) {
		fmt.Fprintf(&b, "%s: %s\n", label(m.Direction), m.Text)
	}
	fmt.Fprintf(&b, "Customer: %s\n", inbound)

	return b.String()
}

func persona(cfg *models.RestaurantConfig) string {
	if cfg.BotName != "" {
		return cfg.BotName
	}
	return "the assistant"
}

// writeMenu lists active products grouped by category, categories and items
// alphabetical so the prompt is stable across runs. Ids are included because
// the extraction step validates referenced ids against this listing.
func writeMenu(b *strings.Builder, menu []models.Product) {
	byCategory := make(map[string][]models.Product)
	for _, p := range menu {
		if !p.Active {
			continue
		}
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	b.WriteString("Menu:\n")
	for _, c := range categories {
		items := byCategory[c]
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		fmt.Fprintf(b, "%s:\n", c)
		for _, p := range items {
			fmt.Fprintf(b, "- [id %d] %s - %.2f", p.ID, p.Name, p.Price)
			if p.Description != "" {
				fmt.Fprintf(b, " (%s)", p.Description)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

func writeSchedule(b *strings.Builder, cfg *models.RestaurantConfig) {
	names := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	b.WriteString("Opening hours:\n")
	for day := 0; day < 7; day++ {
		h := hoursFor(cfg, day)
		if h == nil || !h.IsOpen {
			fmt.Fprintf(b, "- %s: closed\n", names[day])
			continue
		}
		fmt.Fprintf(b, "- %s: %s to %s\n", names[day], clock(h.OpenMinute), clock(h.CloseMinute))
	}
	b.WriteString("\n")
}

func hoursFor(cfg *models.RestaurantConfig, day int) *models.OpeningHours {
	for i := range cfg.Hours {
		if cfg.Hours[i].Weekday == day {
			return &cfg.Hours[i]
		}
	}
	return nil
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// trimHistory keeps the most recent HistoryWindow messages in chronological
// order.
func trimHistory(history []models.Message) []models.Message {
	if len(history) <= HistoryWindow {
		return history
	}
	return history[len(history)-HistoryWindow:]
}

func label(d models.MessageDirection) string {
	if d == models.DirectionOutbound {
		return "Assistant"
	}
	return "Customer"
}
