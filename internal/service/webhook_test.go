package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyDeliveryHMAC(t *testing.T) {
	body := []byte(`{"order_id":"ORD-1"}`)
	now := fixedNow()

	d := WebhookDelivery{Body: body, Signature: sign(body, "s3cret")}
	assert.True(t, verifyDelivery(d, "s3cret", "", 5*time.Minute, now))

	// Provider-prefixed signatures are accepted too.
	d.Signature = "sha256=" + sign(body, "s3cret")
	assert.True(t, verifyDelivery(d, "s3cret", "", 5*time.Minute, now))

	d.Signature = sign(body, "wrong")
	assert.False(t, verifyDelivery(d, "s3cret", "", 5*time.Minute, now))

	d.Signature = ""
	assert.False(t, verifyDelivery(d, "s3cret", "", 5*time.Minute, now))
}

func TestVerifyDeliverySharedToken(t *testing.T) {
	d := WebhookDelivery{Body: []byte(`{}`), Token: "hooktoken"}
	assert.True(t, verifyDelivery(d, "", "hooktoken", 0, fixedNow()))
	d.Token = "other"
	assert.False(t, verifyDelivery(d, "", "hooktoken", 0, fixedNow()))
}

func TestVerifyDeliveryNothingConfiguredRejects(t *testing.T) {
	d := WebhookDelivery{Body: []byte(`{}`), Token: "anything", Signature: "anything"}
	assert.False(t, verifyDelivery(d, "", "", 0, fixedNow()))
}

func TestVerifyDeliveryReplayWindow(t *testing.T) {
	body := []byte(`{}`)
	now := fixedNow()

	fresh := WebhookDelivery{Body: body, Signature: sign(body, "s"), Timestamp: strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)}
	assert.True(t, verifyDelivery(fresh, "s", "", 5*time.Minute, now))

	stale := fresh
	stale.Timestamp = strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	assert.False(t, verifyDelivery(stale, "s", "", 5*time.Minute, now))

	garbled := fresh
	garbled.Timestamp = "not-a-unix-time"
	assert.False(t, verifyDelivery(garbled, "s", "", 5*time.Minute, now))
}

func TestNormalizeShipmentAliases(t *testing.T) {
	body := []byte(`{
		"orderId": "ORD-1",
		"provider": "yurtici",
		"trackingNumber": "TN-42",
		"trackingUrl": "https://track.example/TN-42",
		"state": "In_Transit",
		"shippedAt": "2026-03-15T09:30:00Z"
	}`)
	ev, err := normalizeShipment(body)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", ev.OrderID)
	assert.Equal(t, "yurtici", ev.Carrier)
	assert.Equal(t, "TN-42", ev.TrackingNumber)
	assert.Equal(t, "https://track.example/TN-42", ev.TrackingURL)
	assert.Equal(t, "in_transit", ev.Status)
	require.NotNil(t, ev.ShippedAt)
	assert.Equal(t, time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC), ev.ShippedAt.UTC())
}

func TestNormalizeShipmentSnakeCaseAndNumericID(t *testing.T) {
	body := []byte(`{"order_id": 12345, "carrier": "aras", "status": "DELIVERED", "delivered_at": "2026-03-15"}`)
	ev, err := normalizeShipment(body)
	require.NoError(t, err)
	assert.Equal(t, "12345", ev.OrderID)
	assert.Equal(t, "delivered", ev.Status)
	require.NotNil(t, ev.DeliveredAt)
}

func TestNormalizeShipmentMalformed(t *testing.T) {
	_, err := normalizeShipment([]byte(`not json`))
	assert.Error(t, err)
}

func TestShippingVocabulary(t *testing.T) {
	assert.Equal(t, shippingVocab["picked_up"], shippingVocab["shipped"])
	assert.Equal(t, shippingVocab["cancelled"], shippingVocab["canceled"])
	_, known := shippingVocab["teleported"]
	assert.False(t, known)
}
