package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"order-pipeline/internal/entity"
)

// WebhookDelivery is one raw inbound carrier request: the untouched body plus
// the authenticity and dedup headers, extracted by the transport layer.
type WebhookDelivery struct {
	Body      []byte
	Signature string
	Token     string
	EventID   string
	Timestamp string
}

// verifyDelivery checks HMAC-SHA256 over the raw body against the configured
// secret, or the shared token when no secret is set. Neither configured means
// reject everything. A timestamp header outside the replay window also
// rejects; an absent timestamp is accepted as-is.
func verifyDelivery(d WebhookDelivery, secret, token string, replayWindow time.Duration, now time.Time) bool {
	if secret == "" && token == "" {
		return false
	}
	if d.Timestamp != "" && replayWindow > 0 {
		sec, err := strconv.ParseInt(d.Timestamp, 10, 64)
		if err != nil {
			return false
		}
		sent := time.Unix(sec, 0)
		if sent.Before(now.Add(-replayWindow)) || sent.After(now.Add(replayWindow)) {
			return false
		}
	}
	if secret != "" {
		sig := strings.TrimPrefix(d.Signature, "sha256=")
		if sig == "" {
			return false
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(d.Body)
		want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(sig), []byte(want))
	}
	return subtle.ConstantTimeCompare([]byte(d.Token), []byte(token)) == 1
}

// bodyHash fingerprints the raw payload for the journal.
func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Carriers disagree on field names; each alias list is tried in order and the
// first present non-empty value wins.
var (
	orderIDAliases     = []string{"order_id", "orderId", "order_number", "orderNumber", "id"}
	returnIDAliases    = []string{"return_id", "returnId", "rid"}
	carrierAliases     = []string{"carrier", "provider"}
	trackingNumAliases = []string{"tracking_number", "trackingNumber", "tn"}
	trackingURLAliases = []string{"tracking_url", "trackingUrl"}
	statusAliases      = []string{"status", "state", "event"}
	shippedAtAliases   = []string{"shipped_at", "shippedAt", "shipDate"}
	deliveredAtAliases = []string{"delivered_at", "deliveredAt", "deliveryDate"}
)

// shippingVocab folds carrier status dialects onto the order status axis.
var shippingVocab = map[string]entity.OrderStatus{
	"accepted":   entity.OrderShipped,
	"picked_up":  entity.OrderShipped,
	"in_transit": entity.OrderShipped,
	"shipped":    entity.OrderShipped,
	"delivered":  entity.OrderDelivered,
	"completed":  entity.OrderDelivered,
	"failed":     entity.OrderFailed,
	"cancelled":  entity.OrderFailed,
	"canceled":   entity.OrderFailed,
}

// returnsVocab folds carrier status dialects onto the return status axis.
var returnsVocab = map[string]entity.ReturnStatus{
	"in_transit": entity.ReturnInTransit,
	"transit":    entity.ReturnInTransit,
	"returning":  entity.ReturnInTransit,
	"received":   entity.ReturnReceived,
	"delivered":  entity.ReturnReceived,
	"returned":   entity.ReturnReceived,
	"completed":  entity.ReturnReceived,
	"cancelled":  entity.ReturnCancelled,
	"canceled":   entity.ReturnCancelled,
}

// normalizeShipment parses a carrier payload into the canonical event,
// whatever alias dialect it arrived in. Unknown extra fields are ignored.
func normalizeShipment(body []byte) (*entity.ShipmentEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	ev := &entity.ShipmentEvent{
		OrderID:        pickString(raw, orderIDAliases),
		ReturnID:       pickString(raw, returnIDAliases),
		Carrier:        pickString(raw, carrierAliases),
		TrackingNumber: pickString(raw, trackingNumAliases),
		TrackingURL:    pickString(raw, trackingURLAliases),
		Status:         strings.ToLower(strings.TrimSpace(pickString(raw, statusAliases))),
		ShippedAt:      pickTime(raw, shippedAtAliases),
		DeliveredAt:    pickTime(raw, deliveredAtAliases),
	}
	return ev, nil
}

func pickString(raw map[string]any, aliases []string) string {
	for _, key := range aliases {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func pickTime(raw map[string]any, aliases []string) *time.Time {
	s := pickString(raw, aliases)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
