// Package api exposes the HTTP surface: the WhatsApp webhook, the payment
// provider's browser return endpoints and the operational endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"repairbot/internal/engine"
	"repairbot/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	engine      *engine.Engine
	verifyToken string
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(eng *engine.Engine, verifyToken string) *Handler {
	return &Handler{
		engine:      eng,
		verifyToken: verifyToken,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/webhook", h.verifyWebhook)
	router.POST("/webhook", h.receiveWebhook)

	router.GET("/paypal/return", h.paypalReturn)
	router.GET("/paypal/cancel", h.paypalCancel)
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// verifyWebhook answers Meta's subscription handshake by echoing the
// challenge when the verify token matches.
func (h *Handler) verifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "verification failed")
}

// receiveWebhook ingests inbound messages. It always answers 200: a non-2xx
// makes the platform retry the same delivery, and conversation failures are
// already handled by replying to the customer.
func (h *Handler) receiveWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("undecodable webhook payload", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := c.Request.Context()
	for _, msg := range payload.messages() {
		switch {
		case msg.Type == "text" && msg.Text != nil:
			h.engine.HandleText(ctx, msg.From, msg.Text.Body)
		case msg.Type == "interactive" && msg.Interactive != nil:
			if id := msg.Interactive.replyID(); id != "" {
				h.engine.HandleSelection(ctx, msg.From, id)
			}
		default:
			// Media, reactions, stickers and such are acknowledged silently.
			util.MessagesReceivedTotal.WithLabelValues("other").Inc()
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// paypalReturn is where the payer's browser lands after approving payment.
// The capture happens here; the chat reply and receipt go out through
// WhatsApp, this page only tells the payer whether to go back to the chat.
func (h *Handler) paypalReturn(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Query("oid"), 10, 64)
	if err != nil {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			[]byte(resultPage("הקישור לא תקין 🤔", "חזור לצ'אט ונסה שוב.")))
		return
	}

	paid, err := h.engine.HandlePaymentReturn(c.Request.Context(), orderID)
	if err != nil {
		h.logger.Error("payment return failed", zap.Int64("order_id", orderID), zap.Error(err))
		c.Data(http.StatusOK, "text/html; charset=utf-8",
			[]byte(resultPage("לא הצלחנו לאשר את התשלום כרגע 😕", "חזור לוואטסאפ ולחץ על \"בדיקת תשלום\".")))
		return
	}

	if paid {
		c.Data(http.StatusOK, "text/html; charset=utf-8",
			[]byte(resultPage("התשלום נקלט בהצלחה ✅", "החשבונית נשלחה אליך בוואטסאפ. אפשר לסגור את הדף.")))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(resultPage("התשלום עדיין בתהליך ⏳", "חזור לוואטסאפ ולחץ על \"בדיקת תשלום\" בעוד רגע.")))
}

func (h *Handler) paypalCancel(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(resultPage("התשלום בוטל", "אפשר לחזור לוואטסאפ ולנסות שוב מתי שנוח.")))
}

func resultPage(title, body string) string {
	return `<!DOCTYPE html><html dir="rtl" lang="he"><head><meta charset="utf-8">` +
		`<meta name="viewport" content="width=device-width, initial-scale=1">` +
		`<title>` + title + `</title></head>` +
		`<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">` +
		`<h2>` + title + `</h2><p>` + body + `</p></body></html>`
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
