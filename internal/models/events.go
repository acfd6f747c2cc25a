package models

import "time"

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeOrderPaid         = "ORDER_PAID"
	EventTypePaymentLinkFailed = "PAYMENT_LINK_FAILED"
	EventTypeTicketOpened      = "TICKET_OPENED"
	EventTypeAgentRequested    = "AGENT_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a pending order with a payment link is created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	WAID          string `json:"wa_id"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	TotalAmount   int64  `json:"total_amount"`
	PayLink       string `json:"pay_link"`
}

// OrderPaidEvent published when settlement completes and a receipt exists
type OrderPaidEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	WAID        string `json:"wa_id"`
	InvoiceNo   int64  `json:"invoice_no"`
	TotalAmount int64  `json:"total_amount"`
	CaptureID   string `json:"capture_id,omitempty"`
}

// PaymentLinkFailedEvent published when the payment provider rejects
// link creation, leaving the local order pending without a link
type PaymentLinkFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	WAID    string `json:"wa_id"`
	Reason  string `json:"reason"`
}

// TicketOpenedEvent published when a broken-device ticket is filed
type TicketOpenedEvent struct {
	BaseEvent
	TicketID      int64  `json:"ticket_id"`
	WAID          string `json:"wa_id"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Device        string `json:"device"`
	Issue         string `json:"issue"`
}

// AgentRequestedEvent published when a customer asks for a human agent
type AgentRequestedEvent struct {
	BaseEvent
	WAID    string `json:"wa_id"`
	Message string `json:"message,omitempty"`
}
