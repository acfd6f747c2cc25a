// Package engine is the conversation state machine. It receives normalized
// inbound events (free text or an interactive selection), consults the
// per-customer session, and drives the order, ticket, restore and admin
// flows. All customer-visible text lives here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repairbot/internal/catalog"
	"repairbot/internal/intent"
	"repairbot/internal/models"
	"repairbot/internal/payment"
	"repairbot/internal/session"
	"repairbot/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MenuOption is one row of an interactive list menu.
type MenuOption struct {
	ID          string
	Title       string
	Description string
}

// Sender delivers outbound messages to a customer. Implemented by the
// WhatsApp client; tests use a recording fake.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendMenu(ctx context.Context, to, title, body string, options []MenuOption) error
	SendDocument(ctx context.Context, to, path, caption string) error
}

// Storage is the durable order/customer/ticket store as the engine sees it.
type Storage interface {
	CreateOrder(ctx context.Context, waID, name, phone, item1, item2 string) (*models.Order, error)
	CreateCustomOrder(ctx context.Context, waID, name, phone string, amount int64, label string) (*models.Order, error)
	CreateManualInvoice(ctx context.Context, name, phone, reason string, amount int64) (*models.Order, string, error)
	RecordPaymentLink(ctx context.Context, orderID int64, providerOrderID, payLink, providerStatus string) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	LatestPendingOrder(ctx context.Context, waID string) (*models.Order, error)
	PaidInvoicesByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error)
	UpdateProviderStatus(ctx context.Context, orderID int64, status string) error
	MarkPaid(ctx context.Context, orderID int64, captureID, providerStatus string) (string, error)
	UpsertCustomer(ctx context.Context, waID, name, phone string) error
	GetCustomer(ctx context.Context, waID string) (*models.Customer, error)
	CreateTicket(ctx context.Context, t *models.Ticket) error
}

// Publisher emits domain events for the notifier worker and any other
// downstream consumers. Publish failures are logged, never shown to the
// customer.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, e *models.OrderPaidEvent) error
	PublishPaymentLinkFailed(ctx context.Context, e *models.PaymentLinkFailedEvent) error
	PublishTicketOpened(ctx context.Context, e *models.TicketOpenedEvent) error
	PublishAgentRequested(ctx context.Context, e *models.AgentRequestedEvent) error
}

// Config carries the business-facing strings and links the engine embeds in
// replies.
type Config struct {
	BusinessName    string
	SiteURL         string
	WazeURL         string
	GoogleReviewURL string
	EasyReviewURL   string
}

// Engine drives every conversation.
type Engine struct {
	sessions session.Store
	store    Storage
	catalog  *catalog.Catalog
	gateway  payment.Gateway
	sender   Sender
	events   Publisher
	admins   *AdminList
	cfg      Config
	logger   *zap.Logger
}

// New wires an engine from its collaborators.
func New(sessions session.Store, store Storage, cat *catalog.Catalog, gateway payment.Gateway,
	sender Sender, events Publisher, admins *AdminList, cfg Config) *Engine {
	return &Engine{
		sessions: sessions,
		store:    store,
		catalog:  cat,
		gateway:  gateway,
		sender:   sender,
		events:   events,
		admins:   admins,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// Restart phrases reset the conversation from any state.
var restartWords = map[string]struct{}{
	"תפריט": {}, "התחל": {}, "menu": {}, "start": {}, "/start": {},
}

// HandleText processes an inbound free-text message. It never returns an
// error to the webhook layer: failures are logged and the customer is
// re-anchored to the main menu.
func (e *Engine) HandleText(ctx context.Context, waID, text string) {
	util.MessagesReceivedTotal.WithLabelValues("text").Inc()
	e.touchCustomer(ctx, waID)

	text = strings.TrimSpace(text)
	if _, ok := restartWords[strings.ToLower(text)]; ok {
		e.clearSession(ctx, waID)
		e.sendMainMenu(ctx, waID)
		return
	}

	sess, err := e.sessions.Get(ctx, waID)
	if err != nil {
		e.logger.Warn("session read failed", zap.String("wa_id", waID), zap.Error(err))
		sess = nil
	}

	if sess == nil {
		e.recover(ctx, waID, e.handleIdleText(ctx, waID, text))
		return
	}
	e.recover(ctx, waID, e.handleStep(ctx, waID, sess, text))
}

// HandleSelection processes a tap on an interactive menu row.
func (e *Engine) HandleSelection(ctx context.Context, waID, actionID string) {
	util.MessagesReceivedTotal.WithLabelValues("interactive").Inc()
	e.touchCustomer(ctx, waID)
	e.recover(ctx, waID, e.dispatchSelection(ctx, waID, actionID))
}

// HandlePaymentReturn settles an order after the payer came back from the
// provider's approval page. Returns whether the order is now paid.
func (e *Engine) HandlePaymentReturn(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "engine.HandlePaymentReturn")
	defer span.End()

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.ProviderOrderID == "" {
		return false, fmt.Errorf("%w: order %d has no provider order", models.ErrOrderNotFound, orderID)
	}

	util.CaptureAttemptsTotal.WithLabelValues("return").Inc()
	status, captureID, err := e.gateway.Capture(ctx, order.ProviderOrderID)
	if err != nil {
		return false, err
	}
	if err := e.store.UpdateProviderStatus(ctx, orderID, status); err != nil {
		e.logger.Warn("provider status update failed", zap.Int64("order_id", orderID), zap.Error(err))
	}

	if status != payment.StatusCompleted {
		e.logger.Info("return capture not completed",
			zap.Int64("order_id", orderID), zap.String("status", status))
		return false, nil
	}

	if err := e.settle(ctx, order, captureID, status); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) handleStep(ctx context.Context, waID string, sess *session.Session, text string) error {
	switch sess.Step {
	case session.StepName:
		return e.stepName(ctx, waID, sess, text)
	case session.StepPhone:
		return e.stepPhone(ctx, waID, sess, text)
	case session.StepRestorePhone:
		return e.stepRestorePhone(ctx, waID, text)
	case session.StepBrokenDevice:
		return e.stepBrokenDevice(ctx, waID, sess, text)
	case session.StepBrokenIssue:
		return e.stepBrokenIssue(ctx, waID, sess, text)
	case session.StepAdminPayName, session.StepAdminPayPhone, session.StepAdminPayAmount:
		return e.adminPayStep(ctx, waID, sess, text)
	case session.StepAdminInvName, session.StepAdminInvPhone, session.StepAdminInvReason, session.StepAdminInvAmount:
		return e.adminInvoiceStep(ctx, waID, sess, text)
	case session.StepItem1, session.StepItem2:
		// Items are chosen from the menu; free text while waiting just
		// re-shows it.
		e.sendItemsMenu(ctx, waID, sess.Step)
		return nil
	default:
		return fmt.Errorf("%w: step %q", models.ErrSessionInconsistent, sess.Step)
	}
}

func (e *Engine) dispatchSelection(ctx context.Context, waID, actionID string) error {
	switch {
	case strings.HasPrefix(actionID, "item1:"):
		return e.selectItem1(ctx, waID, strings.TrimPrefix(actionID, "item1:"))
	case strings.HasPrefix(actionID, "item2:"):
		return e.selectItem2(ctx, waID, strings.TrimPrefix(actionID, "item2:"))
	case strings.HasPrefix(actionID, "broken:"):
		return e.selectBroken(ctx, waID, strings.TrimPrefix(actionID, "broken:"))
	case strings.HasPrefix(actionID, "admin:"):
		return e.selectAdmin(ctx, waID, strings.TrimPrefix(actionID, "admin:"))
	}

	switch actionID {
	case "menu:pay":
		return e.startOrder(ctx, waID)
	case "menu:checkpay":
		return e.checkPayment(ctx, waID)
	case "menu:restore":
		return e.startRestore(ctx, waID)
	case "menu:pricelist":
		if err := e.sendText(ctx, waID, e.pricelistText()); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	case "menu:location":
		if err := e.sendText(ctx, waID, "📍 הנה ניווט אלינו:\n"+e.cfg.WazeURL); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	case "menu:reviews":
		if err := e.sendText(ctx, waID, e.reviewsText()); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	case "menu:agent":
		return e.requestAgent(ctx, waID, "")
	case "menu:broken":
		return e.startBrokenFlow(ctx, waID)
	default:
		e.logger.Info("unknown selection", zap.String("wa_id", waID), zap.String("action", actionID))
		if err := e.sendText(ctx, waID, "לא הכרתי את הבחירה הזו, בוא ננסה שוב 🙏"); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	}
}

func (e *Engine) handleIdleText(ctx context.Context, waID, text string) error {
	it := intent.Detect(text)
	util.IntentDetectedTotal.WithLabelValues(string(it)).Inc()

	switch it {
	case intent.Delivery:
		return e.replyThenMenu(ctx, waID, e.deliveryText())
	case intent.Location:
		return e.replyThenMenu(ctx, waID, "📍 הנה ניווט אלינו:\n"+e.cfg.WazeURL)
	case intent.Pricelist:
		return e.replyThenMenu(ctx, waID, e.pricelistText())
	case intent.Reviews:
		return e.replyThenMenu(ctx, waID, e.reviewsText())
	case intent.Agent:
		return e.requestAgent(ctx, waID, text)
	case intent.Broken:
		return e.startBrokenFlow(ctx, waID)
	case intent.Pay:
		return e.startOrder(ctx, waID)
	default:
		cust, err := e.store.GetCustomer(ctx, waID)
		if err != nil {
			return err
		}
		greeting := "לא הבנתי 🙏 בחר פעולה מהתפריט:"
		if !cust.Known() {
			greeting = "היי 👋 ברוכים הבאים ל-" + e.cfg.BusinessName + "!\nבחר פעולה מהתפריט:"
			if e.cfg.SiteURL != "" {
				greeting += "\n🌐 " + e.cfg.SiteURL
			}
		}
		if err := e.sendText(ctx, waID, greeting); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	}
}

func (e *Engine) requestAgent(ctx context.Context, waID, message string) error {
	e.publishAgentRequested(ctx, waID, message)
	return e.replyThenMenu(ctx, waID, "קיבלתי 🙏 נציג אנושי יחזור אליך בהקדם.")
}

// recover is the error boundary of every flow: classify the failure, tell
// the customer something useful in their language, and re-anchor them to the
// main menu with a clean session.
func (e *Engine) recover(ctx context.Context, waID string, err error) {
	if err == nil {
		return
	}

	var provErr *payment.ProviderError
	var msg string
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		msg = "הפעולה הזו זמינה לאדמין בלבד 🔒"
	case errors.Is(err, models.ErrInvalidAmount):
		msg = "הסכום לא תקין 🤔 נסה שוב עם מספר, למשל: 250 או 149.90"
	case errors.Is(err, models.ErrInvalidItem):
		msg = "הפריט שנבחר כבר לא קיים במחירון. בוא נתחיל מההתחלה 🙏"
	case errors.Is(err, models.ErrSessionInconsistent):
		msg = "משהו התבלבל לי בשיחה 😅 בוא נתחיל מחדש."
	case errors.Is(err, models.ErrOrderNotFound):
		msg = "לא מצאתי את ההזמנה המבוקשת 🤔"
	case errors.As(err, &provErr):
		msg = "לא הצלחתי לתקשר עם ספק התשלומים כרגע 😕 נסה שוב בעוד כמה דקות."
	default:
		msg = "משהו השתבש אצלנו 😕 נסה שוב, ואם זה חוזר כתוב \"נציג\"."
	}

	e.logger.Error("conversation turn failed", zap.String("wa_id", waID), zap.Error(err))
	e.clearSession(ctx, waID)
	if sendErr := e.sendText(ctx, waID, msg); sendErr != nil {
		e.logger.Warn("recovery reply failed", zap.String("wa_id", waID), zap.Error(sendErr))
		return
	}
	e.sendMainMenu(ctx, waID)
}

func (e *Engine) sendMainMenu(ctx context.Context, waID string) {
	options := []MenuOption{
		{ID: "menu:pay", Title: "💳 הזמנה ותשלום", Description: "תיקון, שליחות או מקדמה"},
		{ID: "menu:checkpay", Title: "🔎 בדיקת תשלום", Description: "בדיקה שהתשלום האחרון נקלט"},
		{ID: "menu:restore", Title: "🧾 שחזור חשבונית", Description: "שליחה חוזרת של חשבוניות"},
		{ID: "menu:broken", Title: "📱 מכשיר שבור", Description: "פתיחת פנייה לתיקון"},
		{ID: "menu:pricelist", Title: "💰 מחירון"},
		{ID: "menu:location", Title: "📍 ניווט אלינו"},
		{ID: "menu:reviews", Title: "⭐ ביקורות"},
		{ID: "menu:agent", Title: "🧑‍💼 נציג אנושי"},
	}
	if e.admins.IsAdmin(waID) {
		options = append(options,
			MenuOption{ID: "admin:pay_any", Title: "🛠️ לינק סכום חופשי", Description: "אדמין: לינק תשלום לכל סכום"},
			MenuOption{ID: "admin:invoice", Title: "🛠️ חשבונית ידנית", Description: "אדמין: חשבונית ללא תשלום"},
		)
	}

	if err := e.sender.SendMenu(ctx, waID, e.cfg.BusinessName, "בחר פעולה 👇", options); err != nil {
		e.logger.Warn("menu send failed", zap.String("wa_id", waID), zap.Error(err))
	}
}

// sendItemsMenu shows the catalog as an interactive list. For the second
// item the "no second item" row is appended.
func (e *Engine) sendItemsMenu(ctx context.Context, waID string, step session.Step) {
	prefix, title := "item1:", "מה מתקנים? 🔧"
	if step == session.StepItem2 {
		prefix, title = "item2:", "להוסיף עוד משהו? ➕"
	}

	var options []MenuOption
	for _, it := range e.catalog.Items() {
		options = append(options, MenuOption{
			ID:          prefix + it.Key,
			Title:       it.Label,
			Description: catalog.FormatAmount(it.Amount),
		})
	}
	if step == session.StepItem2 {
		options = append(options, MenuOption{ID: prefix + catalog.NoneKey, Title: "➖ בלי פריט נוסף"})
	}

	if err := e.sender.SendMenu(ctx, waID, e.cfg.BusinessName, title, options); err != nil {
		e.logger.Warn("items menu send failed", zap.String("wa_id", waID), zap.Error(err))
	}
}

func (e *Engine) pricelistText() string {
	var b strings.Builder
	b.WriteString("💰 המחירון שלנו:\n")
	for _, it := range e.catalog.Items() {
		fmt.Fprintf(&b, "%s - %s\n", it.Label, catalog.FormatAmount(it.Amount))
	}
	b.WriteString("\nהמחירים כוללים התקנה במעבדה.")
	return b.String()
}

func (e *Engine) deliveryText() string {
	price, err := e.catalog.PriceOf("delivery")
	if err != nil {
		return "🚚 יש לנו שירות שליחויות עד הבית! כתוב \"תשלום\" כדי להזמין."
	}
	return fmt.Sprintf("🚚 שליחות עד הבית: %s\nאפשר להזמין ולשלם כאן בצ'אט 👇", catalog.FormatAmount(price.Amount))
}

func (e *Engine) reviewsText() string {
	return "⭐ לקוחות ממליצים עלינו:\n" + e.cfg.GoogleReviewURL + "\n" + e.cfg.EasyReviewURL
}

func (e *Engine) replyThenMenu(ctx context.Context, waID, text string) error {
	if err := e.sendText(ctx, waID, text); err != nil {
		return err
	}
	e.sendMainMenu(ctx, waID)
	return nil
}

func (e *Engine) sendText(ctx context.Context, waID, text string) error {
	return e.sender.SendText(ctx, waID, text)
}

func (e *Engine) setSession(ctx context.Context, waID string, sess *session.Session) error {
	if err := e.sessions.Set(ctx, waID, sess); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (e *Engine) clearSession(ctx context.Context, waID string) {
	if err := e.sessions.Clear(ctx, waID); err != nil {
		e.logger.Warn("session clear failed", zap.String("wa_id", waID), zap.Error(err))
	}
}

// touchCustomer upserts the customer row so last_seen tracks every inbound
// message, without overwriting known name/phone.
func (e *Engine) touchCustomer(ctx context.Context, waID string) {
	if err := e.store.UpsertCustomer(ctx, waID, "", ""); err != nil {
		e.logger.Warn("customer upsert failed", zap.String("wa_id", waID), zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Engine) publishAgentRequested(ctx context.Context, waID, message string) {
	err := e.events.PublishAgentRequested(ctx, &models.AgentRequestedEvent{
		BaseEvent: newBaseEvent(models.EventTypeAgentRequested),
		WAID:      waID,
		Message:   message,
	})
	if err != nil {
		e.logger.Warn("agent-requested publish failed", zap.String("wa_id", waID), zap.Error(err))
	}
}
