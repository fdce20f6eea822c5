package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"order-pipeline/internal/config"
)

func basicAuth(apiKey, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(apiKey + ":" + secret))
}

// Gateway speaks to the redirect-based checkout provider. Every call is a
// bounded round trip; a timeout surfaces as an error and the caller decides
// what that means for local state.
type Gateway interface {
	// CreateSession registers a checkout for the declared amount and returns
	// the opaque token plus the page the buyer is redirected to. The declared
	// price must equal the computed subtotal exactly or the provider rejects.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// Retrieve is the server-to-server source of truth for a payment outcome.
	Retrieve(ctx context.Context, token, conversationID string) (*PaymentResult, error)
	// Cancel voids the full payment by payment id.
	Cancel(ctx context.Context, paymentID string) error
	// Refund returns a partial amount against a specific transaction.
	Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) error
}

type SessionRequest struct {
	ConversationID string
	OrderID        string
	AmountMinor    int64
	Currency       string
	BuyerName      string
	BuyerEmail     string
	CallbackURL    string
}

type Session struct {
	Token       string
	RedirectURL string
}

// PaymentResult mirrors the provider's retrieval payload.
type PaymentResult struct {
	Status         string   `json:"paymentStatus"`
	PaymentID      string   `json:"paymentId"`
	ConversationID string   `json:"conversationId"`
	ErrorCode      string   `json:"errorCode"`
	ErrorMessage   string   `json:"errorMessage"`
	TransactionIDs []string `json:"transactionIds"`
}

func (r *PaymentResult) Paid() bool {
	return r != nil && r.Status == "SUCCESS"
}

// FormatMinor renders integer minor units as the decimal string the provider
// expects. Money stays integral everywhere else.
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

type httpGateway struct {
	cfg    config.Gateway
	client *http.Client
}

func New(cfg config.Gateway) Gateway {
	return &httpGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *httpGateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+basicAuth(g.cfg.APIKey, g.cfg.SecretKey))

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (g *httpGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	payload := map[string]any{
		"conversationId": req.ConversationID,
		"basketId":       req.OrderID,
		"price":          FormatMinor(req.AmountMinor),
		"paidPrice":      FormatMinor(req.AmountMinor),
		"currency":       req.Currency,
		"buyerName":      req.BuyerName,
		"buyerEmail":     req.BuyerEmail,
		"callbackUrl":    req.CallbackURL,
	}
	var out struct {
		Status         string `json:"status"`
		Token          string `json:"token"`
		PaymentPageURL string `json:"paymentPageUrl"`
		ErrorMessage   string `json:"errorMessage"`
	}
	if err := g.post(ctx, "/payment/checkoutform/initialize", payload, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" || out.Token == "" {
		return nil, fmt.Errorf("gateway session rejected: %s", out.ErrorMessage)
	}
	return &Session{Token: out.Token, RedirectURL: out.PaymentPageURL}, nil
}

func (g *httpGateway) Retrieve(ctx context.Context, token, conversationID string) (*PaymentResult, error) {
	payload := map[string]any{"token": token}
	if conversationID != "" {
		payload["conversationId"] = conversationID
	}
	var out PaymentResult
	if err := g.post(ctx, "/payment/checkoutform/retrieve", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *httpGateway) Cancel(ctx context.Context, paymentID string) error {
	var out struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := g.post(ctx, "/payment/cancel", map[string]any{"paymentId": paymentID}, &out); err != nil {
		return err
	}
	if out.Status != "success" {
		return fmt.Errorf("gateway cancel rejected: %s", out.ErrorMessage)
	}
	return nil
}

func (g *httpGateway) Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) error {
	payload := map[string]any{
		"paymentTransactionId": transactionID,
		"price":                FormatMinor(amountMinor),
		"currency":             currency,
	}
	var out struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := g.post(ctx, "/payment/refund", payload, &out); err != nil {
		return err
	}
	if out.Status != "success" {
		return fmt.Errorf("gateway refund rejected: %s", out.ErrorMessage)
	}
	return nil
}
