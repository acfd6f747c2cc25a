// Package payment wraps the external payment provider's three-call
// lifecycle (create, query, capture) behind an interface the conversation
// engine can treat as abstract.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"repairbot/internal/util"

	"go.uber.org/zap"
)

// Provider order statuses we act on.
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
)

// Gateway is the abstract payment provider. Amounts are in agorot.
type Gateway interface {
	// CreateOrder creates a provider-side order and returns its id and the
	// payer-facing approval URL. No local state is committed by this call.
	CreateOrder(ctx context.Context, localOrderID int64, amount int64) (providerOrderID, approveURL string, err error)

	// GetOrderStatus queries the current provider status. Read-only, safe to
	// call repeatedly and concurrently.
	GetOrderStatus(ctx context.Context, providerOrderID string) (string, error)

	// Capture attempts to finalize payment. A non-success provider status
	// means "not yet completed", not hard failure; only transport/HTTP
	// errors produce a ProviderError.
	Capture(ctx context.Context, providerOrderID string) (status, captureID string, err error)
}

// ProviderError is an infrastructure failure talking to the provider. It is
// never shown to the customer verbatim.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment provider %s failed: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config holds PayPal connection settings.
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	Currency      string
	BrandName     string
	ReturnBaseURL string
	Timeout       time.Duration
}

// PayPal implements Gateway against the PayPal checkout API.
type PayPal struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewPayPal creates a PayPal gateway. The bearer credential is fetched
// lazily on first use.
func NewPayPal(cfg Config) *PayPal {
	if cfg.Timeout == 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &PayPal{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: util.GetLogger(),
	}
}

// accessToken returns the cached bearer token, refreshing it when within 60
// seconds of expiry. The margin avoids reading a "still valid" token that
// expires mid-flight. Racing a refresh is harmless, so no lock is held
// across the HTTP call.
func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && time.Until(p.tokenExp) > 60*time.Second {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ProviderError{Op: "token", Err: err}
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &ProviderError{Op: "token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Op: "token", StatusCode: resp.StatusCode, Err: readBodyErr(resp.Body)}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &ProviderError{Op: "token", Err: err}
	}
	if body.ExpiresIn == 0 {
		body.ExpiresIn = 300
	}

	p.mu.Lock()
	p.token = body.AccessToken
	p.tokenExp = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	p.mu.Unlock()

	p.logger.Info("Payment provider token refreshed",
		zap.Int64("expires_in", body.ExpiresIn))
	return body.AccessToken, nil
}

// CreateOrder creates a provider order with a CAPTURE intent and extracts
// the payer approval link.
func (p *PayPal) CreateOrder(ctx context.Context, localOrderID int64, amount int64) (string, string, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": "PU1",
			"custom_id":    fmt.Sprintf("%d", localOrderID),
			"invoice_id":   fmt.Sprintf("EXP-%d", localOrderID),
			"amount": map[string]string{
				"currency_code": p.cfg.Currency,
				"value":         formatValue(amount),
			},
		}},
		"application_context": map[string]string{
			"brand_name":   p.cfg.BrandName,
			"landing_page": "BILLING",
			"user_action":  "PAY_NOW",
			"return_url":   fmt.Sprintf("%s/paypal/return?oid=%d", p.cfg.ReturnBaseURL, localOrderID),
			"cancel_url":   fmt.Sprintf("%s/paypal/cancel?oid=%d", p.cfg.ReturnBaseURL, localOrderID),
		},
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := p.doJSON(ctx, "create", http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return "", "", err
	}

	approveURL := ""
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approveURL = l.Href
			break
		}
	}
	if approveURL == "" {
		return "", "", &ProviderError{Op: "create", Err: fmt.Errorf("approve URL not found in response")}
	}

	p.logger.Info("Payment provider order created",
		zap.Int64("order_id", localOrderID),
		zap.String("provider_order_id", out.ID))
	return out.ID, approveURL, nil
}

// GetOrderStatus queries the provider order status.
func (p *PayPal) GetOrderStatus(ctx context.Context, providerOrderID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := "/v2/checkout/orders/" + providerOrderID
	if err := p.doJSON(ctx, "query", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Capture finalizes payment and extracts the first capture id, when present.
func (p *PayPal) Capture(ctx context.Context, providerOrderID string) (string, string, error) {
	var out struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	path := "/v2/checkout/orders/" + providerOrderID + "/capture"
	if err := p.doJSON(ctx, "capture", http.MethodPost, path, map[string]any{}, &out); err != nil {
		return "", "", err
	}

	captureID := ""
	for _, pu := range out.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			captureID = pu.Payments.Captures[0].ID
			break
		}
	}
	return out.Status, captureID, nil
}

func (p *PayPal) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &ProviderError{Op: op, Err: err}
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, payload)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: readBodyErr(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	return nil
}

func readBodyErr(r io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(r, 512))
	return fmt.Errorf("%s", strings.TrimSpace(string(raw)))
}

// formatValue renders an agorot amount as a decimal string, e.g. 39900 -> "399.00".
func formatValue(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
