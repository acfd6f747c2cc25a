package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_messages_received_total",
		Help: "Total number of inbound webhook messages by type",
	}, []string{"type"})

	IntentDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_intent_detected_total",
		Help: "Total number of free-text messages classified per intent",
	}, []string{"intent"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders settled as paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order attempts",
	}, []string{"reason"})

	PaymentLinkLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_link_latency_seconds",
		Help:    "Latency of payment-link creation against the provider",
		Buckets: prometheus.DefBuckets,
	})

	CaptureAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_capture_attempts_total",
		Help: "Total number of capture attempts by trigger",
	}, []string{"trigger"})

	InvoicesGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_generated_total",
		Help: "Total number of receipt artifacts generated",
	})

	InvoicesResentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_resent_total",
		Help: "Total number of receipts resent through the restore flow",
	})

	TicketsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_opened_total",
		Help: "Total number of broken-device tickets opened",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
