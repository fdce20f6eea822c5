package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/segmentio/kafka-go"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/gateway"
	"order-pipeline/internal/repository"
)

// Notifier is the best-effort multi-channel dispatcher. A channel with missing
// credentials is disabled, not an error; a failed send is logged and
// journaled, never propagated into the calling pipeline.
type Notifier struct {
	cfg    config.Notifier
	audit  repository.AuditRepo
	writer *kafka.Writer
	client *http.Client
}

func NewNotifier(cfg config.Notifier, audit repository.AuditRepo, writer *kafka.Writer) *Notifier {
	return &Notifier{
		cfg:    cfg,
		audit:  audit,
		writer: writer,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Send delivers one message over the named channel (email, sms, chat,
// webhook). It never returns an error.
func (n *Notifier) Send(ctx context.Context, channel, recipient, template string, data map[string]string) {
	message := formatTemplate(template, data)

	var err error
	var disabled bool
	switch channel {
	case "email":
		if n.cfg.EmailAPIKey == "" {
			disabled = true
			break
		}
		err = n.sendEmail(ctx, recipient, data["subject"], message)
	case "sms":
		if n.cfg.SMSAccountSID == "" || n.cfg.SMSAuthToken == "" || n.cfg.SMSFromNumber == "" {
			disabled = true
			break
		}
		err = n.sendSMS(ctx, recipient, message)
	case "chat":
		if n.cfg.ChatWebhookURL == "" {
			disabled = true
			break
		}
		err = n.postJSON(ctx, n.cfg.ChatWebhookURL, map[string]string{"text": message})
	case "webhook":
		if n.cfg.WebhookURL == "" {
			disabled = true
			break
		}
		err = n.postJSON(ctx, n.cfg.WebhookURL, map[string]string{"recipient": recipient, "message": message})
	default:
		err = fmt.Errorf("unsupported channel %q", channel)
	}

	note := ""
	switch {
	case disabled:
		note = "disabled"
		if n.cfg.Debug {
			logger.Warn().Str("channel", channel).Msg("notification channel disabled: missing credentials")
		}
	case err != nil:
		note = err.Error()
		logger.Error().Err(err).Str("channel", channel).Str("recipient", recipient).Msg("notification send failed")
	}
	if jerr := n.audit.AppendNotification(ctx, channel, recipient, template, err == nil, note); jerr != nil {
		logger.Error().Err(jerr).Msg("notification journal append failed")
	}
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, message string) error {
	if subject == "" {
		subject = "Order update"
	}
	payload := map[string]any{
		"from":    n.cfg.EmailFrom,
		"to":      []string{to},
		"subject": subject,
		"text":    message,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+n.cfg.EmailAPIKey)
	req.Header.Set("Content-Type", "application/json")
	return n.do(req)
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", n.cfg.SMSAccountSID)
	form := url.Values{"From": {n.cfg.SMSFromNumber}, "To": {to}, "Body": {message}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	creds := base64.StdEncoding.EncodeToString([]byte(n.cfg.SMSAccountSID + ":" + n.cfg.SMSAuthToken))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return n.do(req)
}

func (n *Notifier) postJSON(ctx context.Context, target string, payload any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return n.do(req)
}

func (n *Notifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send failed: status %d", resp.StatusCode)
	}
	return nil
}

// PublishOrderEvent emits a lifecycle event to the order-events topic,
// best-effort.
func (n *Notifier) PublishOrderEvent(ctx context.Context, o *entity.Order, key string) {
	if n.writer == nil {
		return
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%s", key, o.ID)),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error().Err(err).Str("order_id", o.ID).Msg("order event publish failed")
	}
}

func (n *Notifier) OrderConfirmation(ctx context.Context, o *entity.Order) {
	n.Send(ctx, "email", o.CustomerEmail, orderConfirmationTemplate, map[string]string{
		"subject":  "Order confirmed",
		"name":     o.CustomerName,
		"order_id": o.ID,
		"amount":   gateway.FormatMinor(o.TotalMinor),
		"currency": o.Currency,
	})
}

func (n *Notifier) OrderShipped(ctx context.Context, o *entity.Order) {
	n.Send(ctx, "email", o.CustomerEmail, shippingTemplate, map[string]string{
		"subject":  "Order shipped",
		"name":     o.CustomerName,
		"order_id": o.ID,
		"carrier":  o.Carrier,
		"tracking": o.TrackingNumber,
	})
}

func (n *Notifier) OrderDelivered(ctx context.Context, o *entity.Order) {
	n.Send(ctx, "email", o.CustomerEmail, deliveryTemplate, map[string]string{
		"subject":  "Order delivered",
		"name":     o.CustomerName,
		"order_id": o.ID,
	})
}

func (n *Notifier) ReturnStatus(ctx context.Context, o *entity.Order, ret *entity.Return) {
	n.Send(ctx, "email", o.CustomerEmail, returnStatusTemplate, map[string]string{
		"subject":   "Return update",
		"name":      o.CustomerName,
		"order_id":  o.ID,
		"return_id": ret.ID,
		"status":    string(ret.Status),
	})
}

func (n *Notifier) LowStock(ctx context.Context, p entity.Product, stock int) {
	n.Send(ctx, "chat", "stock-alerts", lowStockTemplate, map[string]string{
		"product":   p.Name,
		"stock":     fmt.Sprintf("%d", stock),
		"threshold": fmt.Sprintf("%d", p.StockThreshold),
	})
}

const (
	orderConfirmationTemplate = "Hi {{name}}, your order {{order_id}} is confirmed. Total: {{amount}} {{currency}}."
	shippingTemplate          = "Hi {{name}}, order {{order_id}} shipped via {{carrier}}. Tracking: {{tracking}}."
	deliveryTemplate          = "Hi {{name}}, order {{order_id}} was delivered."
	returnStatusTemplate      = "Hi {{name}}, return {{return_id}} for order {{order_id}} is now {{status}}."
	lowStockTemplate          = "Stock alert: {{product}} is down to {{stock}} (threshold {{threshold}})."
)

func formatTemplate(template string, data map[string]string) string {
	out := template
	for k, v := range data {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
