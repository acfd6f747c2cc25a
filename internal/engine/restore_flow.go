package engine

import (
	"context"
	"fmt"
	"os"

	"repairbot/internal/session"
	"repairbot/internal/util"

	"go.uber.org/zap"
)

// restoreLimit caps how many receipts one restore request resends.
const restoreLimit = 5

// startRestore begins the receipt-restore flow.
func (e *Engine) startRestore(ctx context.Context, waID string) error {
	if err := e.setSession(ctx, waID, &session.Session{Step: session.StepRestorePhone}); err != nil {
		return err
	}
	return e.sendText(ctx, waID, "🧾 לאיזה מספר טלפון להוציא את החשבוניות?")
}

// stepRestorePhone resends the most recent receipts issued for the given
// phone number. Lookup is by phone, not by the chat identity, so a customer
// can restore receipts issued to a family member's number.
func (e *Engine) stepRestorePhone(ctx context.Context, waID, text string) error {
	if text == "" {
		return e.sendText(ctx, waID, "כתוב מספר טלפון 📞")
	}

	orders, err := e.store.PaidInvoicesByPhone(ctx, text, restoreLimit)
	if err != nil {
		return err
	}

	e.clearSession(ctx, waID)
	if len(orders) == 0 {
		return e.replyThenMenu(ctx, waID, "לא נמצאו חשבוניות למספר הזה 🤔")
	}

	if err := e.sendText(ctx, waID, fmt.Sprintf("נמצאו %d חשבוניות, שולח... 🧾", len(orders))); err != nil {
		return err
	}

	sent := 0
	for _, o := range orders {
		if _, err := os.Stat(o.InvoicePath); err != nil {
			e.logger.Warn("receipt artifact missing",
				zap.Int64("order_id", o.ID), zap.String("path", o.InvoicePath))
			continue
		}
		caption := fmt.Sprintf("🧾 חשבונית #%d", o.InvoiceNo)
		if err := e.sender.SendDocument(ctx, waID, o.InvoicePath, caption); err != nil {
			e.logger.Warn("receipt resend failed", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		sent++
	}
	util.InvoicesResentTotal.Add(float64(sent))

	if sent == 0 {
		return e.replyThenMenu(ctx, waID, "הקבצים לא זמינים כרגע 😕 כתוב \"נציג\" ונעזור ידנית.")
	}
	e.sendMainMenu(ctx, waID)
	return nil
}
