package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"repairbot/internal/catalog"
	"repairbot/internal/models"
)

// Advisory lock key serializing invoice-number assignment across orders.
// The per-order row lock is not enough: two different orders settling at
// the same moment must not both read the same MAX(invoice_no).
const invoiceCounterLockKey = 4207001

// DefaultNote is attached to every order and printed on receipts.
var DefaultNote = "יתכנו שינויים לרכיבים מקוריים/פירוק"

// CreateOrder validates the selected item keys against the catalog, snapshots
// labels and amounts, and inserts a pending order. item2 may be empty or the
// catalog.NoneKey sentinel for a single-item order. Keys are re-validated
// here, not at selection time: catalog contents can change during a
// long-lived session.
func (s *Store) CreateOrder(ctx context.Context, waID, name, phone, item1, item2 string) (*models.Order, error) {
	i1, err := s.catalog.PriceOf(item1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidItem, item1)
	}

	var i2 catalog.Item
	if item2 != "" && item2 != catalog.NoneKey {
		i2, err = s.catalog.PriceOf(item2)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", models.ErrInvalidItem, item2)
		}
	}

	order := &models.Order{
		WAID:          waID,
		CustomerName:  name,
		CustomerPhone: phone,
		Item1Key:      i1.Key,
		Item1Label:    i1.Label,
		Item1Amount:   i1.Amount,
		Item2Key:      i2.Key,
		Item2Label:    i2.Label,
		Item2Amount:   i2.Amount,
		TotalAmount:   i1.Amount + i2.Amount,
		Note:          DefaultNote,
		Status:        models.OrderStatusPending,
	}

	if err := s.insertOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateCustomOrder inserts a pending order for a free-form amount, used by
// the admin custom-amount flow.
func (s *Store) CreateCustomOrder(ctx context.Context, waID, name, phone string, amount int64, label string) (*models.Order, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidAmount, amount)
	}

	order := &models.Order{
		WAID:          waID,
		CustomerName:  name,
		CustomerPhone: phone,
		Item1Key:      "custom",
		Item1Label:    label,
		Item1Amount:   amount,
		TotalAmount:   amount,
		Note:          DefaultNote,
		Status:        models.OrderStatusPending,
	}

	if err := s.insertOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateManualInvoice inserts an order that is paid from creation, with no
// payment-provider interaction at all, and immediately issues its receipt.
// Used by the admin manual-invoice flow.
func (s *Store) CreateManualInvoice(ctx context.Context, name, phone, reason string, amount int64) (*models.Order, string, error) {
	if amount <= 0 {
		return nil, "", fmt.Errorf("%w: %d", models.ErrInvalidAmount, amount)
	}

	label := "🧾 תשלום"
	if reason != "" {
		label = "🧾 " + reason
	}

	order := &models.Order{
		WAID:          phone,
		CustomerName:  name,
		CustomerPhone: phone,
		Item1Key:      "manual",
		Item1Label:    label,
		Item1Amount:   amount,
		TotalAmount:   amount,
		Note:          DefaultNote,
		Status:        models.OrderStatusPaid,
	}

	if err := s.insertPaidOrder(ctx, order); err != nil {
		return nil, "", err
	}

	path, err := s.MarkPaid(ctx, order.ID, "", "MANUAL")
	if err != nil {
		return nil, "", err
	}
	return order, path, nil
}

func (s *Store) insertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			wa_id, customer_name, customer_phone,
			item1_key, item1_label, item1_amount,
			item2_key, item2_label, item2_amount,
			total_amount, note, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, order, query,
		order.WAID, order.CustomerName, order.CustomerPhone,
		order.Item1Key, order.Item1Label, order.Item1Amount,
		order.Item2Key, order.Item2Label, order.Item2Amount,
		order.TotalAmount, order.Note, order.Status)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *Store) insertPaidOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			wa_id, customer_name, customer_phone,
			item1_key, item1_label, item1_amount,
			total_amount, note, status, paid_at, provider_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), 'MANUAL')
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, order, query,
		order.WAID, order.CustomerName, order.CustomerPhone,
		order.Item1Key, order.Item1Label, order.Item1Amount,
		order.TotalAmount, order.Note, order.Status)
	if err != nil {
		return fmt.Errorf("failed to create manual order: %w", err)
	}
	return nil
}

// RecordPaymentLink is the one-time association of a freshly created order
// with its provider order id and payer-facing link. An already linked order
// is left untouched.
func (s *Store) RecordPaymentLink(ctx context.Context, orderID int64, providerOrderID, payLink, providerStatus string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET provider_order_id = $1, pay_link = $2, provider_status = $3
		WHERE id = $4 AND pay_link = ''`,
		providerOrderID, payLink, providerStatus, orderID)
	if err != nil {
		return fmt.Errorf("failed to record payment link: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the order does not exist or the link is already set.
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// GetOrder retrieves an order by id.
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// LatestPendingOrder returns the most recent pending order for a customer,
// or nil when there is none.
func (s *Store) LatestPendingOrder(ctx context.Context, waID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT * FROM orders
		WHERE wa_id = $1 AND status = $2
		ORDER BY id DESC LIMIT 1`,
		waID, models.OrderStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending order: %w", err)
	}
	return &order, nil
}

// PaidInvoicesByPhone returns up to limit orders with an issued receipt for
// the given phone number, most recent first.
func (s *Store) PaidInvoicesByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE customer_phone = $1 AND invoice_path <> ''
		ORDER BY id DESC LIMIT $2`,
		phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return orders, nil
}

// UpdateProviderStatus records the last observed provider status. An empty
// status is never written over an existing one.
func (s *Store) UpdateProviderStatus(ctx context.Context, orderID int64, status string) error {
	if status == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET provider_status = $1 WHERE id = $2", status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update provider status: %w", err)
	}
	return nil
}

// MarkPaid settles an order exactly once. It is idempotent: when a receipt
// artifact already exists its path is returned unchanged, only backfilling
// capture id and provider status if they were previously unset
// (first-write-wins). Otherwise the next invoice number is assigned, the
// artifact rendered, and status/paid_at/invoice fields persisted in one
// transaction.
//
// Two independent triggers can race here for the same order: the provider
// return callback and a customer-initiated payment check. The row FOR UPDATE
// serializes settlement per order; the advisory lock serializes invoice
// numbering globally.
func (s *Store) MarkPaid(ctx context.Context, orderID int64, captureID, providerStatus string) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock order: %w", err)
	}

	if order.InvoicePath != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET
				status  = $1,
				paid_at = COALESCE(paid_at, NOW()),
				provider_capture_id = COALESCE(NULLIF(provider_capture_id, ''), NULLIF($2, '')),
				provider_status     = COALESCE(NULLIF($3, ''), provider_status)
			WHERE id = $4`,
			models.OrderStatusPaid, captureID, providerStatus, orderID)
		if err != nil {
			return "", fmt.Errorf("failed to backfill settlement: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit settlement: %w", err)
		}
		return order.InvoicePath, nil
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", invoiceCounterLockKey); err != nil {
		return "", fmt.Errorf("failed to take invoice lock: %w", err)
	}

	var invoiceNo int64
	if err := tx.GetContext(ctx, &invoiceNo, "SELECT COALESCE(MAX(invoice_no), 0) + 1 FROM orders"); err != nil {
		return "", fmt.Errorf("failed to assign invoice number: %w", err)
	}

	path, err := s.renderer.Render(&order, invoiceNo, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to render receipt: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET
			status       = $1,
			paid_at      = COALESCE(paid_at, NOW()),
			invoice_no   = $2,
			invoice_path = $3,
			provider_capture_id = COALESCE(NULLIF(provider_capture_id, ''), NULLIF($4, '')),
			provider_status     = COALESCE(NULLIF($5, ''), provider_status)
		WHERE id = $6`,
		models.OrderStatusPaid, invoiceNo, path, captureID, providerStatus, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to persist settlement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit settlement: %w", err)
	}
	return path, nil
}
