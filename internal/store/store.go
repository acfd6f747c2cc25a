package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"repairbot/internal/catalog"
	"repairbot/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// InvoiceRenderer produces the receipt artifact for a settled order and
// returns its path. Called by MarkPaid exactly once per order.
type InvoiceRenderer interface {
	Render(order *models.Order, invoiceNo int64, issuedAt time.Time) (string, error)
}

// Store is the durable ledger of orders, customers and tickets.
type Store struct {
	db       *sqlx.DB
	catalog  *catalog.Catalog
	renderer InvoiceRenderer
}

// New connects to the database and configures the connection pool.
func New(databaseURL string, cat *catalog.Catalog, renderer InvoiceRenderer) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, catalog: cat, renderer: renderer}, nil
}

// Migrate applies the embedded schema. All statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertCustomer records last-seen for every inbound event and fills in
// name/phone when a flow captures them. Empty values never overwrite
// existing ones.
func (s *Store) UpsertCustomer(ctx context.Context, waID, name, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (wa_id, name, phone, last_seen)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (wa_id) DO UPDATE SET
			name      = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			phone     = COALESCE(NULLIF(EXCLUDED.phone, ''), customers.phone),
			last_seen = NOW()`,
		waID, name, phone)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer record, or nil when unknown.
func (s *Store) GetCustomer(ctx context.Context, waID string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.GetContext(ctx, &c, "SELECT * FROM customers WHERE wa_id = $1", waID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// CreateTicket inserts an open service ticket and fills in its assigned id
// and creation time.
func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if t.Status == "" {
		t.Status = models.TicketStatusOpen
	}
	query := `
		INSERT INTO tickets (wa_id, customer_name, customer_phone, device, issue, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, t, query,
		t.WAID, t.CustomerName, t.CustomerPhone, t.Device, t.Issue, t.Status)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}
