package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"repairbot/internal/models"
	"repairbot/internal/payment"
	"repairbot/internal/session"
	"repairbot/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CustomOrderLabel is the line-item label for admin free-amount payments.
const CustomOrderLabel = "💳 מקדמה / סכום חופשי"

// selectAdmin routes admin menu entries. The allow-list is checked here and
// again on every collected step, so revoking an admin takes effect mid-flow.
func (e *Engine) selectAdmin(ctx context.Context, waID, action string) error {
	if !e.admins.IsAdmin(waID) {
		return fmt.Errorf("%w: %s requested admin:%s", models.ErrUnauthorized, waID, action)
	}

	switch action {
	case "pay_any":
		if err := e.setSession(ctx, waID, &session.Session{Step: session.StepAdminPayName}); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "🛠️ לינק סכום חופשי.\nמה שם הלקוח?")

	case "invoice":
		if err := e.setSession(ctx, waID, &session.Session{Step: session.StepAdminInvName}); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "🛠️ חשבונית ידנית.\nמה שם הלקוח?")

	default:
		return fmt.Errorf("%w: unknown admin action %q", models.ErrUnauthorized, action)
	}
}

// adminPayStep collects name, phone and amount, then creates a custom-amount
// order with a payment link the admin forwards to the customer.
func (e *Engine) adminPayStep(ctx context.Context, waID string, sess *session.Session, text string) error {
	if !e.admins.IsAdmin(waID) {
		return fmt.Errorf("%w: %s in admin payment flow", models.ErrUnauthorized, waID)
	}

	switch sess.Step {
	case session.StepAdminPayName:
		sess.Name = text
		sess.Step = session.StepAdminPayPhone
		if err := e.setSession(ctx, waID, sess); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "טלפון הלקוח? 📞")

	case session.StepAdminPayPhone:
		sess.Phone = text
		sess.Step = session.StepAdminPayAmount
		if err := e.setSession(ctx, waID, sess); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "מה הסכום בש\"ח? (למשל: 250 או 149.90)")

	case session.StepAdminPayAmount:
		amount, err := parseAmount(text)
		if err != nil {
			return err
		}
		return e.finalizeAdminPayment(ctx, waID, sess, amount)

	default:
		return fmt.Errorf("%w: step %q in admin payment flow", models.ErrSessionInconsistent, sess.Step)
	}
}

func (e *Engine) finalizeAdminPayment(ctx context.Context, waID string, sess *session.Session, amount int64) error {
	ctx, span := util.StartSpan(ctx, "engine.finalizeAdminPayment")
	defer span.End()

	order, err := e.store.CreateCustomOrder(ctx, waID, sess.Name, sess.Phone, amount, CustomOrderLabel)
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
		e.logger.Error("admin payment link creation failed",
			zap.Int64("order_id", order.ID), zap.Error(err))
		e.publishPaymentLinkFailed(ctx, order, err)

		e.clearSession(ctx, waID)
		if err := e.sendText(ctx, waID, "❌ לא הצלחתי להפיק לינק כרגע. נסה שוב בעוד רגע 🙏"); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	}

	if err := e.store.RecordPaymentLink(ctx, order.ID, providerOrderID, payLink, payment.StatusCreated); err != nil {
		return err
	}
	order.PayLink = payLink
	e.publishOrderCreated(ctx, order)

	e.clearSession(ctx, waID)
	msg := fmt.Sprintf("✅ נוצר לינק עבור %s:\n%s\nהעבר ללקוח 👆", sess.Name, payLink)
	if err := e.sendText(ctx, waID, msg); err != nil {
		return err
	}
	e.sendMainMenu(ctx, waID)
	return nil
}

// adminInvoiceStep collects name, phone, reason and amount, then issues a
// receipt with no provider interaction at all.
func (e *Engine) adminInvoiceStep(ctx context.Context, waID string, sess *session.Session, text string) error {
	if !e.admins.IsAdmin(waID) {
		return fmt.Errorf("%w: %s in admin invoice flow", models.ErrUnauthorized, waID)
	}

	switch sess.Step {
	case session.StepAdminInvName:
		sess.Name = text
		sess.Step = session.StepAdminInvPhone
		if err := e.setSession(ctx, waID, sess); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "טלפון הלקוח? 📞")

	case session.StepAdminInvPhone:
		sess.Phone = text
		sess.Step = session.StepAdminInvReason
		if err := e.setSession(ctx, waID, sess); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "עבור מה החשבונית? (למשל: החלפת מסך)")

	case session.StepAdminInvReason:
		sess.Reason = text
		sess.Step = session.StepAdminInvAmount
		if err := e.setSession(ctx, waID, sess); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "מה הסכום בש\"ח?")

	case session.StepAdminInvAmount:
		amount, err := parseAmount(text)
		if err != nil {
			return err
		}

		_, path, err := e.store.CreateManualInvoice(ctx, sess.Name, sess.Phone, sess.Reason, amount)
		if err != nil {
			return err
		}

		e.clearSession(ctx, waID)
		if err := e.sendText(ctx, waID, "✅ החשבונית הופקה, שולח..."); err != nil {
			return err
		}
		if err := e.sender.SendDocument(ctx, waID, path, "🧾 חשבונית ידנית ✅"); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil

	default:
		return fmt.Errorf("%w: step %q in admin invoice flow", models.ErrSessionInconsistent, sess.Step)
	}
}

// parseAmount converts shekel text like "250", "149.90" or "1,200" to
// agorot. Rejects non-numeric and non-positive values.
func parseAmount(text string) (int64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%w: %q", models.ErrInvalidAmount, text)
	}
	return int64(math.Round(f * 100)), nil
}
