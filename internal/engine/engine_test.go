package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"repairbot/internal/catalog"
	"repairbot/internal/models"
	"repairbot/internal/payment"
	"repairbot/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage implements Storage in memory with the same settle-once
// semantics as the SQL store: settlement under a lock, render exactly once,
// first-write-wins on capture id.
type fakeStorage struct {
	mu        sync.Mutex
	nextID    int64
	nextInv   int64
	orders    map[int64]*models.Order
	customers map[string]*models.Customer
	tickets   []*models.Ticket
	renders   int
	artifacts string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		orders:    make(map[int64]*models.Order),
		customers: make(map[string]*models.Customer),
	}
}

func (f *fakeStorage) CreateOrder(_ context.Context, waID, name, phone, item1, item2 string) (*models.Order, error) {
	cat := catalog.Default()
	i1, err := cat.PriceOf(item1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidItem, item1)
	}
	var i2 catalog.Item
	if item2 != "" && item2 != catalog.NoneKey {
		i2, err = cat.PriceOf(item2)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", models.ErrInvalidItem, item2)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order := &models.Order{
		ID: f.nextID, WAID: waID, CustomerName: name, CustomerPhone: phone,
		Item1Key: i1.Key, Item1Label: i1.Label, Item1Amount: i1.Amount,
		Item2Key: i2.Key, Item2Label: i2.Label, Item2Amount: i2.Amount,
		TotalAmount: i1.Amount + i2.Amount,
		Status:      models.OrderStatusPending,
		CreatedAt:   time.Now(),
	}
	f.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

func (f *fakeStorage) CreateCustomOrder(_ context.Context, waID, name, phone string, amount int64, label string) (*models.Order, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order := &models.Order{
		ID: f.nextID, WAID: waID, CustomerName: name, CustomerPhone: phone,
		Item1Key: "custom", Item1Label: label, Item1Amount: amount,
		TotalAmount: amount, Status: models.OrderStatusPending, CreatedAt: time.Now(),
	}
	f.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

func (f *fakeStorage) CreateManualInvoice(ctx context.Context, name, phone, reason string, amount int64) (*models.Order, string, error) {
	if amount <= 0 {
		return nil, "", models.ErrInvalidAmount
	}
	f.mu.Lock()
	f.nextID++
	order := &models.Order{
		ID: f.nextID, WAID: phone, CustomerName: name, CustomerPhone: phone,
		Item1Key: "manual", Item1Label: reason, Item1Amount: amount,
		TotalAmount: amount, Status: models.OrderStatusPaid, CreatedAt: time.Now(),
	}
	f.orders[order.ID] = order
	id := order.ID
	f.mu.Unlock()

	path, err := f.MarkPaid(ctx, id, "", "MANUAL")
	if err != nil {
		return nil, "", err
	}
	cp := *order
	return &cp, path, nil
}

func (f *fakeStorage) RecordPaymentLink(_ context.Context, orderID int64, providerOrderID, payLink, providerStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.PayLink == "" {
		order.ProviderOrderID = providerOrderID
		order.PayLink = payLink
		order.ProviderStatus = providerStatus
	}
	return nil
}

func (f *fakeStorage) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeStorage) LatestPendingOrder(_ context.Context, waID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Order
	for _, o := range f.orders {
		if o.WAID == waID && o.Status == models.OrderStatusPending {
			if latest == nil || o.ID > latest.ID {
				latest = o
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStorage) PaidInvoicesByPhone(_ context.Context, phone string, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for id := f.nextID; id > 0 && len(out) < limit; id-- {
		o, ok := f.orders[id]
		if ok && o.CustomerPhone == phone && o.InvoicePath != "" {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStorage) UpdateProviderStatus(_ context.Context, orderID int64, status string) error {
	if status == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[orderID]; ok {
		order.ProviderStatus = status
	}
	return nil
}

func (f *fakeStorage) MarkPaid(_ context.Context, orderID int64, captureID, providerStatus string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return "", fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}

	if order.InvoicePath != "" {
		if order.ProviderCaptureID == "" && captureID != "" {
			order.ProviderCaptureID = captureID
		}
		return order.InvoicePath, nil
	}

	f.nextInv++
	f.renders++
	path := filepath.Join(f.artifacts, fmt.Sprintf("invoice_%d.pdf", f.nextInv))
	now := time.Now()
	order.Status = models.OrderStatusPaid
	order.PaidAt = &now
	order.InvoiceNo = f.nextInv
	order.InvoicePath = path
	if captureID != "" {
		order.ProviderCaptureID = captureID
	}
	if providerStatus != "" {
		order.ProviderStatus = providerStatus
	}
	return path, nil
}

func (f *fakeStorage) UpsertCustomer(_ context.Context, waID, name, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[waID]
	if !ok {
		c = &models.Customer{WAID: waID}
		f.customers[waID] = c
	}
	if name != "" {
		c.Name = name
	}
	if phone != "" {
		c.Phone = phone
	}
	c.LastSeen = time.Now()
	return nil
}

func (f *fakeStorage) GetCustomer(_ context.Context, waID string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[waID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStorage) CreateTicket(_ context.Context, t *models.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = int64(len(f.tickets) + 1)
	t.CreatedAt = time.Now()
	f.tickets = append(f.tickets, t)
	return nil
}

func (f *fakeStorage) order(t *testing.T, id int64) *models.Order {
	t.Helper()
	o, err := f.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

// fakeGateway implements payment.Gateway with scripted responses.
type fakeGateway struct {
	mu            sync.Mutex
	createErr     error
	status        string
	captureStatus string
	captureID     string
	captureCalls  int
}

func (g *fakeGateway) CreateOrder(_ context.Context, localOrderID int64, _ int64) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return "", "", g.createErr
	}
	id := fmt.Sprintf("PP-%d", localOrderID)
	return id, "https://pay.example/" + id, nil
}

func (g *fakeGateway) GetOrderStatus(_ context.Context, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, nil
}

func (g *fakeGateway) Capture(_ context.Context, _ string) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	return g.captureStatus, g.captureID, nil
}

type sentText struct{ to, body string }
type sentMenu struct {
	to      string
	options []MenuOption
}
type sentDoc struct{ to, path, caption string }

// fakeSender records everything sent.
type fakeSender struct {
	mu    sync.Mutex
	texts []sentText
	menus []sentMenu
	docs  []sentDoc
}

func (s *fakeSender) SendText(_ context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, sentText{to, text})
	return nil
}

func (s *fakeSender) SendMenu(_ context.Context, to, _, _ string, options []MenuOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus = append(s.menus, sentMenu{to, options})
	return nil
}

func (s *fakeSender) SendDocument(_ context.Context, to, path, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, sentDoc{to, path, caption})
	return nil
}

func (s *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.texts)
	return s.texts[len(s.texts)-1].body
}

func (s *fakeSender) lastMenu(t *testing.T) sentMenu {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.menus)
	return s.menus[len(s.menus)-1]
}

// fakePublisher records published events.
type fakePublisher struct {
	mu          sync.Mutex
	created     []*models.OrderCreatedEvent
	paid        []*models.OrderPaidEvent
	linkFailed  []*models.PaymentLinkFailedEvent
	tickets     []*models.TicketOpenedEvent
	agentAsked  []*models.AgentRequestedEvent
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *fakePublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return nil
}

func (p *fakePublisher) PublishPaymentLinkFailed(_ context.Context, e *models.PaymentLinkFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkFailed = append(p.linkFailed, e)
	return nil
}

func (p *fakePublisher) PublishTicketOpened(_ context.Context, e *models.TicketOpenedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickets = append(p.tickets, e)
	return nil
}

func (p *fakePublisher) PublishAgentRequested(_ context.Context, e *models.AgentRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agentAsked = append(p.agentAsked, e)
	return nil
}

type rig struct {
	engine   *Engine
	storage  *fakeStorage
	gateway  *fakeGateway
	sender   *fakeSender
	events   *fakePublisher
	sessions *session.MemoryStore
	admins   *AdminList
}

func newRig(t *testing.T, adminPhones ...string) *rig {
	t.Helper()
	storage := newFakeStorage()
	storage.artifacts = t.TempDir()
	gateway := &fakeGateway{status: payment.StatusCreated}
	sender := &fakeSender{}
	events := &fakePublisher{}
	sessions := session.NewMemoryStore()
	admins := NewAdminList(adminPhones)

	eng := New(sessions, storage, catalog.Default(), gateway, sender, events, admins, Config{
		BusinessName:    "Expresphone",
		WazeURL:         "https://waze.example/expresphone",
		GoogleReviewURL: "https://g.example/reviews",
		EasyReviewURL:   "https://easy.example/reviews",
	})
	return &rig{engine: eng, storage: storage, gateway: gateway, sender: sender,
		events: events, sessions: sessions, admins: admins}
}

// placeOrder walks a customer through the whole order flow.
func (r *rig) placeOrder(t *testing.T, ctx context.Context, waID, name, phone, item1, item2 string) *models.Order {
	t.Helper()
	r.engine.HandleSelection(ctx, waID, "menu:pay")
	r.engine.HandleText(ctx, waID, name)
	r.engine.HandleText(ctx, waID, phone)
	r.engine.HandleSelection(ctx, waID, "item1:"+item1)
	r.engine.HandleSelection(ctx, waID, "item2:"+item2)

	order, err := r.storage.GetOrder(ctx, r.storage.nextID)
	require.NoError(t, err)
	return order
}

const customerID = "972501234567"

func TestGreetingFromNewCustomerSendsWelcomeAndMenu(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleText(ctx, customerID, "שלום")

	assert.Contains(t, r.sender.lastText(t), "ברוכים הבאים")
	menu := r.sender.lastMenu(t)
	assert.Equal(t, customerID, menu.to)
	assert.Equal(t, "menu:pay", menu.options[0].ID)
}

func TestRestartWordClearsSessionAndShowsMenu(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, customerID, "menu:pay")
	sess, err := r.sessions.Get(ctx, customerID)
	require.NoError(t, err)
	require.NotNil(t, sess)

	r.engine.HandleText(ctx, customerID, "תפריט")

	sess, err = r.sessions.Get(ctx, customerID)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.NotEmpty(t, r.sender.menus)
}

func TestOrderFlowEndToEnd(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, int64(39900), order.TotalAmount)
	assert.Equal(t, "PP-1", order.ProviderOrderID)
	assert.Equal(t, "https://pay.example/PP-1", order.PayLink)
	assert.False(t, order.HasSecondItem())

	summary := r.sender.lastText(t)
	assert.Contains(t, summary, "399.00 ₪")
	assert.Contains(t, summary, order.PayLink)

	// session is cleared and the customer is re-anchored to the menu
	sess, err := r.sessions.Get(ctx, customerID)
	require.NoError(t, err)
	assert.Nil(t, sess)
	menu := r.sender.lastMenu(t)
	assert.Equal(t, "menu:pay", menu.options[0].ID)

	require.Len(t, r.events.created, 1)
	assert.Equal(t, order.ID, r.events.created[0].OrderID)
	assert.Equal(t, order.PayLink, r.events.created[0].PayLink)
}

func TestOrderFlowTwoItems(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", "glass")

	assert.True(t, order.HasSecondItem())
	assert.Equal(t, int64(44800), order.TotalAmount)
}

func TestRepeatCustomerSkipsContactSteps(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	// second order: straight to item selection
	r.engine.HandleSelection(ctx, customerID, "menu:pay")
	sess, err := r.sessions.Get(ctx, customerID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, session.StepItem1, sess.Step)
	assert.Equal(t, "דני לוי", sess.Name)
	assert.Equal(t, "0501234567", sess.Phone)

	r.engine.HandleSelection(ctx, customerID, "item1:battery")
	r.engine.HandleSelection(ctx, customerID, "item2:"+catalog.NoneKey)

	order := r.storage.order(t, 2)
	assert.Equal(t, "דני לוי", order.CustomerName)
	assert.Equal(t, int64(29900), order.TotalAmount)
}

func TestInvalidSecondItemRepromptsWithoutAdvancing(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, customerID, "menu:pay")
	r.engine.HandleText(ctx, customerID, "דני לוי")
	r.engine.HandleText(ctx, customerID, "0501234567")
	r.engine.HandleSelection(ctx, customerID, "item1:screen")

	r.engine.HandleSelection(ctx, customerID, "item2:hovercraft")

	// no order was created and the flow is still waiting on item2
	assert.Equal(t, int64(0), r.storage.nextID)
	sess, err := r.sessions.Get(ctx, customerID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, session.StepItem2, sess.Step)
	assert.Equal(t, "screen", sess.Item1)

	// choosing a valid item still completes the order
	r.engine.HandleSelection(ctx, customerID, "item2:glass")
	order := r.storage.order(t, 1)
	assert.Equal(t, int64(44800), order.TotalAmount)
}

func TestItemSelectionWithoutSessionRecovers(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, customerID, "item2:glass")

	assert.Equal(t, int64(0), r.storage.nextID)
	assert.Contains(t, r.sender.lastText(t), "נתחיל מחדש")
	assert.NotEmpty(t, r.sender.menus)
}

func TestPaymentLinkFailureLeavesOrderPending(t *testing.T) {
	r := newRig(t)
	r.gateway.createErr = &payment.ProviderError{Op: "create order", StatusCode: 503, Err: errors.New("unavailable")}
	ctx := context.Background()

	r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	order := r.storage.order(t, 1)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Empty(t, order.PayLink)

	assert.Contains(t, r.sender.texts[len(r.sender.texts)-1].body, "לא הצלחתי להפיק לינק")
	require.Len(t, r.events.linkFailed, 1)
	assert.Equal(t, order.ID, r.events.linkFailed[0].OrderID)

	// session cleared, customer can retry from the menu
	sess, err := r.sessions.Get(ctx, customerID)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestPaymentReturnSettlesOrder(t *testing.T) {
	r := newRig(t)
	r.gateway.captureStatus = payment.StatusCompleted
	r.gateway.captureID = "CAP-1"
	ctx := context.Background()

	order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	paid, err := r.engine.HandlePaymentReturn(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, paid)

	settled := r.storage.order(t, order.ID)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)
	assert.Equal(t, int64(1), settled.InvoiceNo)
	assert.Equal(t, "CAP-1", settled.ProviderCaptureID)
	assert.NotNil(t, settled.PaidAt)

	require.Len(t, r.sender.docs, 1)
	assert.Equal(t, settled.InvoicePath, r.sender.docs[0].path)
	require.Len(t, r.events.paid, 1)
	assert.Equal(t, int64(1), r.events.paid[0].InvoiceNo)
}

func TestPaymentReturnIsIdempotentUnderRace(t *testing.T) {
	r := newRig(t)
	r.gateway.captureStatus = payment.StatusCompleted
	r.gateway.captureID = "CAP-1"
	ctx := context.Background()

	order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paid, err := r.engine.HandlePaymentReturn(ctx, order.ID)
			assert.NoError(t, err)
			assert.True(t, paid)
		}()
	}
	wg.Wait()

	settled := r.storage.order(t, order.ID)
	assert.Equal(t, int64(1), settled.InvoiceNo)
	assert.Equal(t, "CAP-1", settled.ProviderCaptureID)
	assert.Equal(t, 1, r.storage.renders, "receipt must be rendered exactly once")
}

func TestCheckPaymentNothingPending(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, customerID, "menu:checkpay")

	assert.Contains(t, r.sender.lastText(t), "לא מצאתי הזמנה ממתינה")
}

func TestCheckPaymentStillUnpaidReportsStatusAndLink(t *testing.T) {
	r := newRig(t)
	r.gateway.status = payment.StatusCreated
	ctx := context.Background()

	order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	r.engine.HandleSelection(ctx, customerID, "menu:checkpay")

	msg := r.sender.lastText(t)
	assert.Contains(t, msg, payment.StatusCreated)
	assert.Contains(t, msg, order.PayLink)
	assert.Equal(t, models.OrderStatusPending, r.storage.order(t, order.ID).Status)
	assert.Zero(t, r.gateway.captureCalls)
}

func TestCheckPaymentApprovedTriggersCaptureAndSettles(t *testing.T) {
	r := newRig(t)
	r.gateway.status = payment.StatusApproved
	r.gateway.captureStatus = payment.StatusCompleted
	r.gateway.captureID = "CAP-7"
	ctx := context.Background()

	order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	r.engine.HandleSelection(ctx, customerID, "menu:checkpay")

	assert.Equal(t, 1, r.gateway.captureCalls)
	settled := r.storage.order(t, order.ID)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)
	assert.Equal(t, "CAP-7", settled.ProviderCaptureID)
	require.Len(t, r.sender.docs, 1)
}

func TestCheckPaymentCompletedSettlesWithoutCapture(t *testing.T) {
	r := newRig(t)
	r.gateway.status = payment.StatusCompleted
	ctx := context.Background()

	order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "screen", catalog.NoneKey)

	r.engine.HandleSelection(ctx, customerID, "menu:checkpay")

	assert.Zero(t, r.gateway.captureCalls)
	assert.Equal(t, models.OrderStatusPaid, r.storage.order(t, order.ID).Status)
}

func TestRestoreFlowNoInvoices(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, customerID, "menu:restore")
	r.engine.HandleText(ctx, customerID, "0509999999")

	assert.Contains(t, r.sender.lastText(t), "לא נמצאו חשבוניות")
}

func TestRestoreFlowResendsAtMostFive(t *testing.T) {
	r := newRig(t)
	r.gateway.captureStatus = payment.StatusCompleted
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		order := r.placeOrder(t, ctx, customerID, "דני לוי", "0501234567", "glass", catalog.NoneKey)
		_, err := r.engine.HandlePaymentReturn(ctx, order.ID)
		require.NoError(t, err)
	}
	// settlement already sent 7 receipts
	require.Len(t, r.sender.docs, 7)

	// restore only finds artifacts that exist on disk
	for _, o := range r.storage.orders {
		require.NoError(t, os.WriteFile(o.InvoicePath, []byte("pdf"), 0o644))
	}

	r.engine.HandleSelection(ctx, customerID, "menu:restore")
	r.engine.HandleText(ctx, customerID, "0501234567")

	assert.Len(t, r.sender.docs, 7+5)
}

func TestBrokenDeviceFlowOpensTicket(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleText(ctx, customerID, "המסך שלי נשבר")
	r.engine.HandleText(ctx, customerID, "iPhone 13")
	r.engine.HandleSelection(ctx, customerID, "broken:form")
	r.engine.HandleText(ctx, customerID, "נפל מהכיס, הפינה סדוקה")

	require.Len(t, r.storage.tickets, 1)
	ticket := r.storage.tickets[0]
	assert.Equal(t, "iPhone 13", ticket.Device)
	assert.Equal(t, "נפל מהכיס, הפינה סדוקה", ticket.Issue)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)

	require.Len(t, r.events.tickets, 1)
	assert.Equal(t, ticket.ID, r.events.tickets[0].TicketID)
	assert.Contains(t, r.sender.lastText(t), "הפנייה נפתחה")
}

func TestAgentIntentPublishesRequest(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleText(ctx, customerID, "אפשר לדבר עם נציג?")

	require.Len(t, r.events.agentAsked, 1)
	assert.Equal(t, customerID, r.events.agentAsked[0].WAID)
	assert.Contains(t, r.sender.lastText(t), "נציג")
}

func TestPricelistIntentListsCatalog(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleText(ctx, customerID, "כמה עולה מסך?")

	msg := r.sender.lastText(t)
	assert.Contains(t, msg, "📱 מסך")
	assert.Contains(t, msg, "399.00 ₪")
	assert.Contains(t, msg, "🔋 סוללה")
}

func TestAdminRowsHiddenFromRegularCustomers(t *testing.T) {
	r := newRig(t, "972500000001")
	ctx := context.Background()

	r.engine.HandleText(ctx, customerID, "תפריט")
	for _, opt := range r.sender.lastMenu(t).options {
		assert.NotContains(t, opt.ID, "admin:")
	}

	r.engine.HandleText(ctx, "972500000001", "תפריט")
	ids := make([]string, 0)
	for _, opt := range r.sender.lastMenu(t).options {
		ids = append(ids, opt.ID)
	}
	assert.Contains(t, ids, "admin:pay_any")
	assert.Contains(t, ids, "admin:invoice")
}

func TestAdminFlowDeniedForNonAdmin(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, customerID, "admin:pay_any")

	sess, err := r.sessions.Get(ctx, customerID)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Contains(t, r.sender.lastText(t), "אדמין בלבד")
}

func TestAdminRevokedMidFlowIsRejected(t *testing.T) {
	const admin = "972500000001"
	r := newRig(t, admin)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, admin, "admin:pay_any")
	r.engine.HandleText(ctx, admin, "משה כהן")

	r.admins.Replace(nil)
	r.engine.HandleText(ctx, admin, "0507654321")

	assert.Equal(t, int64(0), r.storage.nextID)
	sess, err := r.sessions.Get(ctx, admin)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestAdminCustomPaymentFlow(t *testing.T) {
	const admin = "972500000001"
	r := newRig(t, admin)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, admin, "admin:pay_any")
	r.engine.HandleText(ctx, admin, "משה כהן")
	r.engine.HandleText(ctx, admin, "0507654321")
	r.engine.HandleText(ctx, admin, "149.90")

	order := r.storage.order(t, 1)
	assert.Equal(t, int64(14990), order.TotalAmount)
	assert.Equal(t, "משה כהן", order.CustomerName)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.NotEmpty(t, order.PayLink)

	assert.Contains(t, r.sender.texts[len(r.sender.texts)-1].body, order.PayLink)
}

func TestAdminCustomPaymentRejectsBadAmount(t *testing.T) {
	const admin = "972500000001"
	r := newRig(t, admin)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, admin, "admin:pay_any")
	r.engine.HandleText(ctx, admin, "משה כהן")
	r.engine.HandleText(ctx, admin, "0507654321")
	r.engine.HandleText(ctx, admin, "הרבה כסף")

	assert.Equal(t, int64(0), r.storage.nextID)
	assert.Contains(t, r.sender.lastText(t), "הסכום לא תקין")
}

func TestAdminManualInvoiceFlow(t *testing.T) {
	const admin = "972500000001"
	r := newRig(t, admin)
	ctx := context.Background()

	r.engine.HandleSelection(ctx, admin, "admin:invoice")
	r.engine.HandleText(ctx, admin, "משה כהן")
	r.engine.HandleText(ctx, admin, "0507654321")
	r.engine.HandleText(ctx, admin, "החלפת מסך")
	r.engine.HandleText(ctx, admin, "1,200")

	order := r.storage.order(t, 1)
	assert.Equal(t, int64(120000), order.TotalAmount)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, int64(1), order.InvoiceNo)

	require.Len(t, r.sender.docs, 1)
	assert.Equal(t, admin, r.sender.docs[0].to)
	assert.Equal(t, order.InvoicePath, r.sender.docs[0].path)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"250", 25000, false},
		{"149.90", 14990, false},
		{"1,200", 120000, false},
		{" 99 ", 9900, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"שלוש מאות", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := parseAmount(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, models.ErrInvalidAmount, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
