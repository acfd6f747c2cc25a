// Package worker runs the background consumers. The notifier turns domain
// events into WhatsApp messages for the admin phones, replacing synchronous
// admin broadcasts in the conversation path.
package worker

import (
	"context"
	"fmt"

	"repairbot/internal/broker"
	"repairbot/internal/catalog"
	"repairbot/internal/engine"
	"repairbot/internal/models"
	"repairbot/internal/util"

	"go.uber.org/zap"
)

// Notifier consumes domain events and fans each one out to all admins.
type Notifier struct {
	consumer *broker.Consumer
	sender   engine.Sender
	admins   *engine.AdminList
	logger   *zap.Logger
}

// NewNotifier creates a notifier over the given consumer.
func NewNotifier(consumer *broker.Consumer, sender engine.Sender, admins *engine.AdminList) *Notifier {
	return &Notifier{
		consumer: consumer,
		sender:   sender,
		admins:   admins,
		logger:   util.GetLogger(),
	}
}

// Start blocks consuming events until the context is cancelled.
func (n *Notifier) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()

	handler.OnOrderCreated(func(ctx context.Context, e *models.OrderCreatedEvent) error {
		n.broadcast(ctx, fmt.Sprintf(
			"🆕 הזמנה חדשה #%d\n👤 %s (%s)\n💰 %s\n🔗 %s",
			e.OrderID, e.CustomerName, e.CustomerPhone,
			catalog.FormatAmount(e.TotalAmount), e.PayLink))
		return nil
	})

	handler.OnOrderPaid(func(ctx context.Context, e *models.OrderPaidEvent) error {
		n.broadcast(ctx, fmt.Sprintf(
			"✅ תשלום נקלט! הזמנה #%d\n🧾 חשבונית %d\n💰 %s",
			e.OrderID, e.InvoiceNo, catalog.FormatAmount(e.TotalAmount)))
		return nil
	})

	handler.OnPaymentLinkFailed(func(ctx context.Context, e *models.PaymentLinkFailedEvent) error {
		n.broadcast(ctx, fmt.Sprintf(
			"⚠️ יצירת לינק תשלום נכשלה להזמנה #%d\nלקוח: %s\nסיבה: %s",
			e.OrderID, e.WAID, e.Reason))
		return nil
	})

	handler.OnTicketOpened(func(ctx context.Context, e *models.TicketOpenedEvent) error {
		n.broadcast(ctx, fmt.Sprintf(
			"📝 פנייה חדשה #%d\n👤 %s (%s)\n📱 %s\n🛠️ %s",
			e.TicketID, e.CustomerName, e.CustomerPhone, e.Device, e.Issue))
		return nil
	})

	handler.OnAgentRequested(func(ctx context.Context, e *models.AgentRequestedEvent) error {
		msg := fmt.Sprintf("🧑‍💼 לקוח מבקש נציג: %s", e.WAID)
		if e.Message != "" {
			msg += "\n💬 " + e.Message
		}
		n.broadcast(ctx, msg)
		return nil
	})

	return n.consumer.StartConsuming(ctx, handler.HandleMessage)
}

// broadcast sends to every admin; one failed delivery does not stop the rest.
func (n *Notifier) broadcast(ctx context.Context, text string) {
	for _, phone := range n.admins.List() {
		if err := n.sender.SendText(ctx, phone, text); err != nil {
			n.logger.Warn("admin notification failed",
				zap.String("admin", phone), zap.Error(err))
		}
	}
}

// Close closes the underlying consumer.
func (n *Notifier) Close() error {
	return n.consumer.Close()
}
