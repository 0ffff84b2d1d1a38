package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styling
var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#30d158")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)
)

// Model defines the application state
type Model struct {
	orderList   list.Model
	orderDetail Order
	spinner     spinner.Model
	client      *ApiClient
	currentView string
	status      string
	error       string
}

// orderItem represents an order in the list
type orderItem struct {
	id    uint
	title string
	desc  string
}

func (i orderItem) Title() string       { return i.title }
func (i orderItem) Description() string { return i.desc }
func (i orderItem) FilterValue() string { return i.title }

// Initialize the model
func initialModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	orderList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	orderList.Title = "Orders"

	client := NewApiClient()

	return Model{
		orderList:   orderList,
		spinner:     s,
		client:      client,
		currentView: "orders",
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.EnterAltScreen, fetchOrders(m.client))
}

// Update handles UI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.orderList.SetSize(msg.Width-h, msg.Height-v)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if m.currentView == "orders" {
				if selected, ok := m.orderList.SelectedItem().(orderItem); ok {
					m.currentView = "order_detail"
					return m, fetchOrderDetails(m.client, selected.id)
				}
			}
		case "esc":
			if m.currentView == "order_detail" {
				m.currentView = "orders"
				m.status = ""
				m.error = ""
				return m, fetchOrders(m.client)
			}
		case "r":
			if m.currentView == "orders" {
				m.status = ""
				m.error = ""
				return m, fetchOrders(m.client)
			}
		case "a":
			if m.currentView == "order_detail" {
				return m, advanceOrder(m.client, m.orderDetail)
			}
		case "c":
			if m.currentView == "order_detail" {
				return m, cancelOrder(m.client, m.orderDetail.ID)
			}
		}
	case ordersMsg:
		m.orderList.SetItems(convertOrdersToItems(msg.orders))
		return m, nil
	case orderDetailMsg:
		m.orderDetail = msg.order
		m.error = ""
		return m, nil
	case errorMsg:
		m.error = msg.err
		return m, nil
	case confirmMsg:
		m.error = ""
		m.status = msg.message
		if m.currentView == "order_detail" {
			return m, fetchOrderDetails(m.client, m.orderDetail.ID)
		}
		return m, fetchOrders(m.client)
	}

	var cmd tea.Cmd
	if m.currentView == "orders" {
		m.orderList, cmd = m.orderList.Update(msg)
	}
	return m, cmd
}

// View renders the UI
func (m Model) View() string {
	switch m.currentView {
	case "orders":
		help := "\nPress 'enter' for details, 'r' to refresh, 'q' to quit\n"
		if m.status != "" {
			help += successStyle.Render(m.status) + "\n"
		}
		if m.error != "" {
			help += errorStyle.Render(m.error) + "\n"
		}
		return docStyle.Render(m.orderList.View() + help)
	case "order_detail":
		view := orderDetailView(m.orderDetail)
		if m.status != "" {
			view += "\n" + successStyle.Render(m.status)
		}
		if m.error != "" {
			view += "\n" + errorStyle.Render(m.error)
		}
		return docStyle.Render(view)
	default:
		return "Loading..."
	}
}

// Custom message types for the tea.Model
type ordersMsg struct {
	orders []Order
}

type orderDetailMsg struct {
	order Order
}

type errorMsg struct {
	err string
}

type confirmMsg struct {
	message string
}

// fetchOrders retrieves orders from the API
func fetchOrders(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		orders, err := client.GetOrders()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching orders: %v", err)}
		}
		return ordersMsg{orders: orders}
	}
}

// fetchOrderDetails retrieves details for a specific order
func fetchOrderDetails(client *ApiClient, id uint) tea.Cmd {
	return func() tea.Msg {
		order, err := client.GetOrder(id)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching order details: %v", err)}
		}
		return orderDetailMsg{order: *order}
	}
}

// advanceOrder moves an order to its next lifecycle status
func advanceOrder(client *ApiClient, order Order) tea.Cmd {
	return func() tea.Msg {
		updated, err := client.AdvanceOrder(&order)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error advancing order: %v", err)}
		}
		return confirmMsg{message: fmt.Sprintf("Order %d is now %s", updated.ID, updated.Status)}
	}
}

// cancelOrder cancels an order
func cancelOrder(client *ApiClient, id uint) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.CancelOrder(id); err != nil {
			return errorMsg{err: fmt.Sprintf("Error canceling order: %v", err)}
		}
		return confirmMsg{message: "Order cancelled"}
	}
}

// convertOrdersToItems converts API orders to list items
func convertOrdersToItems(orders []Order) []list.Item {
	items := make([]list.Item, len(orders))
	for i, order := range orders {
		kind := "pickup"
		if order.DeliveryAddress != nil {
			kind = "delivery"
		}
		items[i] = orderItem{
			id:    order.ID,
			title: fmt.Sprintf("Order #%d - %s (%s)", order.ID, order.CustomerName, order.Origin),
			desc:  fmt.Sprintf("%d items - %.2f - %s - %s", len(order.Items), order.Total, kind, order.Status),
		}
	}
	return items
}

// orderDetailView creates a detailed view of an order
func orderDetailView(order Order) string {
	view := titleStyle.Render(fmt.Sprintf("Order #%d", order.ID)) + "\n\n"
	view += fmt.Sprintf("Customer: %s", order.CustomerName)
	if order.CustomerPhone != "" {
		view += fmt.Sprintf(" (%s)", order.CustomerPhone)
	}
	view += "\n"
	view += fmt.Sprintf("Status: %s\n", order.Status)
	view += fmt.Sprintf("Origin: %s\n", order.Origin)
	view += fmt.Sprintf("Payment: %s\n", order.PaymentMethod)
	if order.DeliveryAddress != nil {
		view += fmt.Sprintf("Deliver to: %s\n", *order.DeliveryAddress)
	} else {
		view += "Pickup\n"
	}
	view += fmt.Sprintf("Placed: %s\n", order.PlacedAt.Format(time.RFC1123))

	view += "\nItems:\n"
	for i, item := range order.Items {
		view += fmt.Sprintf("%d. %s (x%d) - %.2f\n", i+1, item.Name, item.Quantity, item.UnitPrice)
		if item.Notes != "" {
			view += fmt.Sprintf("   Notes: %s\n", item.Notes)
		}
	}
	view += fmt.Sprintf("\nTotal: %.2f\n", order.Total)

	view += "\nPress 'a' to advance the status, 'c' to cancel, 'esc' to go back"

	return view
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v", err)
		os.Exit(1)
	}
}
