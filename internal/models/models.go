package models

import "time"

// Order represents a single purchase attempt. Line item labels and amounts
// are snapshots taken from the catalog at creation time; the stored values
// never change even if catalog prices do.
type Order struct {
	ID            int64  `db:"id" json:"id"`
	WAID          string `db:"wa_id" json:"wa_id"`
	CustomerName  string `db:"customer_name" json:"customer_name"`
	CustomerPhone string `db:"customer_phone" json:"customer_phone"`

	Item1Key    string `db:"item1_key" json:"item1_key"`
	Item1Label  string `db:"item1_label" json:"item1_label"`
	Item1Amount int64  `db:"item1_amount" json:"item1_amount"`

	Item2Key    string `db:"item2_key" json:"item2_key,omitempty"`
	Item2Label  string `db:"item2_label" json:"item2_label,omitempty"`
	Item2Amount int64  `db:"item2_amount" json:"item2_amount,omitempty"`

	TotalAmount int64  `db:"total_amount" json:"total_amount"`
	Note        string `db:"note" json:"note"`
	PayLink     string `db:"pay_link" json:"pay_link,omitempty"`
	Status      string `db:"status" json:"status"`

	InvoiceNo   int64  `db:"invoice_no" json:"invoice_no,omitempty"`
	InvoicePath string `db:"invoice_path" json:"invoice_path,omitempty"`

	ProviderOrderID   string `db:"provider_order_id" json:"provider_order_id,omitempty"`
	ProviderCaptureID string `db:"provider_capture_id" json:"provider_capture_id,omitempty"`
	ProviderStatus    string `db:"provider_status" json:"provider_status,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	PaidAt    *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

// HasSecondItem reports whether the order carries a second line item.
func (o *Order) HasSecondItem() bool {
	return o.Item2Key != ""
}

// Order statuses. The only legal transition is pending -> paid.
const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
)

// Customer is the long-lived identity record for a messaging-platform user,
// keyed by their WhatsApp id (phone number without leading symbols).
type Customer struct {
	WAID     string    `db:"wa_id" json:"wa_id"`
	Name     string    `db:"name" json:"name"`
	Phone    string    `db:"phone" json:"phone"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}

// Known reports whether we already hold usable contact details, allowing
// repeat customers to skip the name/phone collection steps.
func (c *Customer) Known() bool {
	return c != nil && c.Name != "" && c.Phone != ""
}

// Ticket is a non-monetary service request filed through the broken-device
// flow. Status changes are administrative only.
type Ticket struct {
	ID            int64     `db:"id" json:"id"`
	WAID          string    `db:"wa_id" json:"wa_id"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	CustomerPhone string    `db:"customer_phone" json:"customer_phone"`
	Device        string    `db:"device" json:"device"`
	Issue         string    `db:"issue" json:"issue"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

const TicketStatusOpen = "open"
