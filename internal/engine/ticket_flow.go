package engine

import (
	"context"
	"fmt"

	"repairbot/internal/models"
	"repairbot/internal/session"
	"repairbot/internal/util"

	"go.uber.org/zap"
)

// startBrokenFlow opens the broken-device flow by asking which device broke.
func (e *Engine) startBrokenFlow(ctx context.Context, waID string) error {
	if err := e.setSession(ctx, waID, &session.Session{Step: session.StepBrokenDevice}); err != nil {
		return err
	}
	return e.sendText(ctx, waID, "אוי 😔 איזה מכשיר נשבר? (למשל: iPhone 13)")
}

// stepBrokenDevice records the device and offers what to do next.
func (e *Engine) stepBrokenDevice(ctx context.Context, waID string, sess *session.Session, text string) error {
	if text == "" {
		return e.sendText(ctx, waID, "איזה מכשיר נשבר? כתוב את הדגם 📱")
	}

	sess.Device = text
	if err := e.setSession(ctx, waID, sess); err != nil {
		return err
	}

	options := []MenuOption{
		{ID: "broken:form", Title: "📝 פתיחת פנייה", Description: "נחזור אליך עם הצעת מחיר"},
		{ID: "broken:pay", Title: "💳 תשלום מקדמה", Description: "שריון תור עם מקדמה"},
		{ID: "broken:rep", Title: "🧑‍💼 נציג אנושי"},
	}
	if err := e.sender.SendMenu(ctx, waID, e.cfg.BusinessName, "איך נוכל לעזור עם ה-"+text+"? 👇", options); err != nil {
		e.logger.Warn("broken menu send failed", zap.String("wa_id", waID), zap.Error(err))
	}
	return nil
}

// selectBroken routes the choice made after the device was named.
func (e *Engine) selectBroken(ctx context.Context, waID, choice string) error {
	sess, err := e.sessions.Get(ctx, waID)
	if err != nil {
		return err
	}
	if sess == nil || sess.Device == "" {
		return fmt.Errorf("%w: broken choice without a device", models.ErrSessionInconsistent)
	}

	switch choice {
	case "form":
		sess.Step = session.StepBrokenIssue
		if err := e.setSession(ctx, waID, sess); err != nil {
			return err
		}
		return e.sendText(ctx, waID, "ספר לי בקצרה מה קרה למכשיר 🙏")

	case "pay":
		e.clearSession(ctx, waID)
		return e.startOrder(ctx, waID)

	case "rep":
		e.clearSession(ctx, waID)
		return e.requestAgent(ctx, waID, "מכשיר שבור: "+sess.Device)

	default:
		e.clearSession(ctx, waID)
		if err := e.sendText(ctx, waID, "לא הכרתי את הבחירה 🤔 בוא ננסה מהתפריט:"); err != nil {
			return err
		}
		e.sendMainMenu(ctx, waID)
		return nil
	}
}

// stepBrokenIssue files the ticket. Contact details come from the customer
// record when known; the ticket is valid without them.
func (e *Engine) stepBrokenIssue(ctx context.Context, waID string, sess *session.Session, text string) error {
	if text == "" {
		return e.sendText(ctx, waID, "כתוב כמה מילים על התקלה 🙏")
	}

	ticket := &models.Ticket{
		WAID:   waID,
		Device: sess.Device,
		Issue:  text,
		Status: models.TicketStatusOpen,
	}
	if cust, err := e.store.GetCustomer(ctx, waID); err == nil && cust != nil {
		ticket.CustomerName = cust.Name
		ticket.CustomerPhone = cust.Phone
	}

	if err := e.store.CreateTicket(ctx, ticket); err != nil {
		return err
	}
	util.TicketsOpenedTotal.Inc()

	err := e.events.PublishTicketOpened(ctx, &models.TicketOpenedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeTicketOpened),
		TicketID:      ticket.ID,
		WAID:          waID,
		CustomerName:  ticket.CustomerName,
		CustomerPhone: ticket.CustomerPhone,
		Device:        ticket.Device,
		Issue:         ticket.Issue,
	})
	if err != nil {
		e.logger.Warn("ticket-opened publish failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}

	e.clearSession(ctx, waID)
	if err := e.sendText(ctx, waID, fmt.Sprintf("הפנייה נפתחה ✅ (מספר %d)\nנחזור אליך בהקדם עם הצעת מחיר 🙏", ticket.ID)); err != nil {
		return err
	}
	e.sendMainMenu(ctx, waID)
	return nil
}
