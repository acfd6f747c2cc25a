package engine

import (
	"context"
	"fmt"
	"strings"

	"repairbot/internal/catalog"
	"repairbot/internal/models"
	"repairbot/internal/payment"
	"repairbot/internal/session"
	"repairbot/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// startOrder begins the order flow. Repeat customers with known contact
// details skip straight to item selection.
func (e *Engine) startOrder(ctx context.Context, waID string) error {
	cust, err := e.store.GetCustomer(ctx, waID)
	if err != nil {
		return err
	}

	if cust.Known() {
		sess := &session.Session{Step: session.StepItem1, Name: cust.Name, Phone: cust.Phone}
		if err := e.setSession(ctx, waID, sess); err != nil {
			return err
		}
		if err := e.sendText(ctx, waID, fmt.Sprintf("היי %s 👋 זיהיתי אותך!", cust.Name)); err != nil {
			return err
		}
		e.sendItemsMenu(ctx, waID, session.StepItem1)
		return nil
	}

	if err := e.setSession(ctx, waID, &session.Session{Step: session.StepName}); err != nil {
		return err
	}
	return e.sendText(ctx, waID, "נעים להכיר 🙂 מה השם המלא?")
}

func (e *Engine) stepName(ctx context.Context, waID string, sess *session.Session, text string) error {
	if text == "" {
		return e.sendText(ctx, waID, "צריך שם בשביל ההזמנה 🙂 מה השם המלא?")
	}

	sess.Name = text
	sess.Step = session.StepPhone
	if err := e.setSession(ctx, waID, sess); err != nil {
		return err
	}
	return e.sendText(ctx, waID, "ומה מספר הטלפון? 📞")
}

func (e *Engine) stepPhone(ctx context.Context, waID string, sess *session.Session, text string) error {
	if text == "" {
		return e.sendText(ctx, waID, "צריך מספר טלפון להזמנה 📞 נסה שוב:")
	}

	sess.Phone = text
	sess.Step = session.StepItem1
	if err := e.setSession(ctx, waID, sess); err != nil {
		return err
	}
	if err := e.store.UpsertCustomer(ctx, waID, sess.Name, sess.Phone); err != nil {
		e.logger.Warn("customer upsert failed", zap.String("wa_id", waID), zap.Error(err))
	}

	e.sendItemsMenu(ctx, waID, session.StepItem1)
	return nil
}

// selectItem1 records the first line item. An unknown key re-shows the menu
// without advancing the flow.
func (e *Engine) selectItem1(ctx context.Context, waID, key string) error {
	sess, err := e.sessions.Get(ctx, waID)
	if err != nil {
		return err
	}
	if sess == nil || sess.Name == "" || sess.Phone == "" {
		return fmt.Errorf("%w: item selected before contact details", models.ErrSessionInconsistent)
	}

	if !e.catalog.Has(key) {
		if err := e.sendText(ctx, waID, "הבחירה לא מוכרת לי 🤔 בחר מהתפריט:"); err != nil {
			return err
		}
		e.sendItemsMenu(ctx, waID, session.StepItem1)
		return nil
	}

	sess.Item1 = key
	sess.Step = session.StepItem2
	if err := e.setSession(ctx, waID, sess); err != nil {
		return err
	}
	e.sendItemsMenu(ctx, waID, session.StepItem2)
	return nil
}

// selectItem2 completes item collection and finalizes the order. The
// catalog.NoneKey sentinel means a single-item order.
func (e *Engine) selectItem2(ctx context.Context, waID, key string) error {
	sess, err := e.sessions.Get(ctx, waID)
	if err != nil {
		return err
	}
	if sess == nil || sess.Name == "" || sess.Phone == "" || sess.Item1 == "" {
		return fmt.Errorf("%w: second item selected before first", models.ErrSessionInconsistent)
	}

	if key != catalog.NoneKey && !e.catalog.Has(key) {
		if err := e.sendText(ctx, waID, "הבחירה לא מוכרת לי 🤔 בחר מהתפריט:"); err != nil {
			return err
		}
		e.sendItemsMenu(ctx, waID, session.StepItem2)
		return nil
	}

	return e.finalizeOrder(ctx, waID, sess, key)
}

// finalizeOrder persists the order, asks the provider for a payment link and
// records it. A provider failure leaves the order pending without a link;
// the customer is told to retry and the failure is published for the admins.
func (e *Engine) finalizeOrder(ctx context.Context, waID string, sess *session.Session, item2 string) error {
	ctx, span := util.StartSpan(ctx, "engine.finalizeOrder")
	defer span.End()

	order, err := e.store.CreateOrder(ctx, waID, sess.Name, sess.Phone, sess.Item1, item2)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("create").Inc()
		return err
	}
	util.OrdersCreatedTotal.Inc()

	timer := prometheus.NewTimer(util.PaymentLinkLatency)
	providerOrderID, payLink, err := e.gateway.CreateOrder(ctx, order.ID, order.TotalAmount)
	timer.ObserveDuration()
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("payment_link").Inc()
		e.logger.Error("payment link creation failed",
			zap.Int64("order_id", order.ID), zap.Error(err))
		e.publishPaymentLinkFailed(ctx, order, err)

		e.clearSession(ctx, waID)
		if err := e.sendText(ctx, waID, "❌ לא הצלחתי להפיק לינק תשלום כרגע. נסה שוב בעוד רגע 🙏"); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	}

	if err := e.store.RecordPaymentLink(ctx, order.ID, providerOrderID, payLink, payment.StatusCreated); err != nil {
		return err
	}
	order.ProviderOrderID = providerOrderID
	order.PayLink = payLink

	if err := e.sendText(ctx, waID, orderSummaryText(order)); err != nil {
		return err
	}

	e.publishOrderCreated(ctx, order)
	e.clearSession(ctx, waID)
	e.sendMainMenu(ctx, waID)
	return nil
}

func orderSummaryText(order *models.Order) string {
	var b strings.Builder
	b.WriteString("📋 סיכום הזמנה:\n")
	fmt.Fprintf(&b, "• %s - %s\n", order.Item1Label, catalog.FormatAmount(order.Item1Amount))
	if order.HasSecondItem() {
		fmt.Fprintf(&b, "• %s - %s\n", order.Item2Label, catalog.FormatAmount(order.Item2Amount))
	}
	fmt.Fprintf(&b, "\n💰 סה\"כ לתשלום: %s\n", catalog.FormatAmount(order.TotalAmount))
	fmt.Fprintf(&b, "📝 %s\n", order.Note)
	fmt.Fprintf(&b, "\n💳 לתשלום מאובטח:\n%s", order.PayLink)
	return b.String()
}

// checkPayment is the customer-initiated reconciliation path. It looks up
// the latest pending order, queries the provider and settles when payment
// completed, capturing first when the payer approved but capture has not
// happened yet.
func (e *Engine) checkPayment(ctx context.Context, waID string) error {
	ctx, span := util.StartSpan(ctx, "engine.checkPayment")
	defer span.End()

	order, err := e.store.LatestPendingOrder(ctx, waID)
	if err != nil {
		return err
	}
	if order == nil {
		return e.replyThenMenu(ctx, waID, "לא מצאתי הזמנה ממתינה לתשלום 🙂 אפשר לפתוח חדשה מהתפריט.")
	}
	if order.ProviderOrderID == "" {
		return e.replyThenMenu(ctx, waID, "להזמנה האחרונה אין עדיין לינק תשלום. פתח הזמנה חדשה מהתפריט 🙏")
	}

	status, err := e.gateway.GetOrderStatus(ctx, order.ProviderOrderID)
	if err != nil {
		return err
	}
	if err := e.store.UpdateProviderStatus(ctx, order.ID, status); err != nil {
		e.logger.Warn("provider status update failed", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	captureID := ""
	if status == payment.StatusApproved {
		// Payer approved on the provider side but the capture callback never
		// reached us. Capture here so the customer is not stuck.
		util.CaptureAttemptsTotal.WithLabelValues("check").Inc()
		status, captureID, err = e.gateway.Capture(ctx, order.ProviderOrderID)
		if err != nil {
			return err
		}
		if err := e.store.UpdateProviderStatus(ctx, order.ID, status); err != nil {
			e.logger.Warn("provider status update failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	if status != payment.StatusCompleted {
		msg := fmt.Sprintf("עדיין לא רואה תשלום שנקלט (סטטוס: %s) 🤔", status)
		if order.PayLink != "" {
			msg += "\nאפשר להשלים את התשלום כאן:\n" + order.PayLink
		}
		return e.replyThenMenu(ctx, waID, msg)
	}

	if err := e.settle(ctx, order, captureID, status); err != nil {
		return err
	}
	e.sendMainMenu(ctx, waID)
	return nil
}

// settle marks the order paid, sends the receipt to the customer and
// publishes the paid event. Safe to reach twice for the same order: the
// store settles exactly once and returns the same artifact.
func (e *Engine) settle(ctx context.Context, order *models.Order, captureID, providerStatus string) error {
	ctx, span := util.StartSpan(ctx, "engine.settle")
	defer span.End()

	path, err := e.store.MarkPaid(ctx, order.ID, captureID, providerStatus)
	if err != nil {
		return err
	}
	util.OrdersPaidTotal.Inc()

	if err := e.sendText(ctx, order.WAID, "✅ התשלום נקלט! שולח חשבונית..."); err != nil {
		return err
	}
	if err := e.sender.SendDocument(ctx, order.WAID, path, "🧾 חשבונית ✅"); err != nil {
		e.logger.Error("receipt send failed", zap.Int64("order_id", order.ID), zap.Error(err))
		if err := e.sendText(ctx, order.WAID, "החשבונית מוכנה אבל השליחה נתקעה 😕 כתוב \"שחזור חשבונית\" בתפריט."); err != nil {
			return err
		}
	}

	e.publishOrderPaid(ctx, order, captureID)
	return nil
}

func (e *Engine) publishOrderCreated(ctx context.Context, order *models.Order) {
	err := e.events.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderCreated),
		OrderID:       order.ID,
		WAID:          order.WAID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		TotalAmount:   order.TotalAmount,
		PayLink:       order.PayLink,
	})
	if err != nil {
		e.logger.Warn("order-created publish failed", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (e *Engine) publishOrderPaid(ctx context.Context, order *models.Order, captureID string) {
	// Re-read for the invoice number assigned during settlement.
	invoiceNo := order.InvoiceNo
	if fresh, err := e.store.GetOrder(ctx, order.ID); err == nil {
		invoiceNo = fresh.InvoiceNo
	}

	err := e.events.PublishOrderPaid(ctx, &models.OrderPaidEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderPaid),
		OrderID:     order.ID,
		WAID:        order.WAID,
		InvoiceNo:   invoiceNo,
		TotalAmount: order.TotalAmount,
		CaptureID:   captureID,
	})
	if err != nil {
		e.logger.Warn("order-paid publish failed", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (e *Engine) publishPaymentLinkFailed(ctx context.Context, order *models.Order, cause error) {
	err := e.events.PublishPaymentLinkFailed(ctx, &models.PaymentLinkFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentLinkFailed),
		OrderID:   order.ID,
		WAID:      order.WAID,
		Reason:    cause.Error(),
	})
	if err != nil {
		e.logger.Warn("payment-link-failed publish failed", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}
