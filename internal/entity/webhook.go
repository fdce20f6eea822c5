package entity

import "time"

// WebhookEvent is the journaled record of one received carrier event. The
// event_id column doubles as the dedup gate: a previously seen id is returned
// as a duplicate without reapplying.
type WebhookEvent struct {
	EventID      string    `json:"event_id"`
	Source       string    `json:"source"` // "shipping" or "returns"
	OrderID      string    `json:"order_id,omitempty"`
	ReturnID     string    `json:"return_id,omitempty"`
	Carrier      string    `json:"carrier,omitempty"`
	StatusRaw    string    `json:"status_raw,omitempty"`
	StatusMapped string    `json:"status_mapped,omitempty"`
	BodyHash     string    `json:"body_hash"`
	ReceivedAt   time.Time `json:"received_at"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// ShipmentEvent is the canonical record one carrier payload normalizes into,
// regardless of which field aliases the carrier used.
type ShipmentEvent struct {
	OrderID        string
	ReturnID       string
	Carrier        string
	TrackingNumber string
	TrackingURL    string
	Status         string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

type ReturnStatus string

const (
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnInTransit ReturnStatus = "in_transit"
	ReturnReceived  ReturnStatus = "received"
	ReturnRefunded  ReturnStatus = "refunded"
	ReturnCancelled ReturnStatus = "cancelled"
)

var returnRank = map[ReturnStatus]int{
	ReturnRequested: 0,
	ReturnApproved:  1,
	ReturnRejected:  1,
	ReturnInTransit: 2,
	ReturnReceived:  3,
	ReturnRefunded:  4,
	ReturnCancelled: 4,
}

func (s ReturnStatus) Rank() int {
	r, ok := returnRank[s]
	if !ok {
		return 0
	}
	return r
}

// Return is a reverse-logistics record tied to an order.
type Return struct {
	ID             string       `json:"id"`
	OrderID        string       `json:"order_id"`
	Status         ReturnStatus `json:"status"`
	Carrier        string       `json:"carrier,omitempty"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	ReceivedAt     *time.Time   `json:"received_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
