package changefeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

// Envelope is the wire shape of one order change on every broker.
type Envelope struct {
	OrderID        uuid.UUID `json:"order_id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	Kind           string    `json:"kind"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
	OrderCreatedAt time.Time `json:"order_created_at"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EnvelopeFromEvent builds the wire envelope for a persisted change event.
func EnvelopeFromEvent(event models.OrderChangeEvent) Envelope {
	return Envelope{
		OrderID:        event.OrderID,
		TenantID:       event.TenantID,
		Kind:           event.Kind.String(),
		DeliveryStatus: event.DeliveryStatus.String(),
		OrderCreatedAt: event.OrderCreatedAt.UTC(),
		OccurredAt:     event.OccurredAt.UTC(),
	}
}

// Encode marshals the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a broker payload into a Notification. Unknown delivery
// statuses are tolerated; an unknown kind or a missing order id is not.
func Decode(payload []byte) (Notification, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Notification{}, fmt.Errorf("decode change envelope: %w", err)
	}
	kind, err := enums.ParseChangeKind(env.Kind)
	if err != nil {
		return Notification{}, err
	}
	if env.OrderID == uuid.Nil {
		return Notification{}, fmt.Errorf("change envelope missing order_id")
	}
	n := Notification{
		OrderID:        env.OrderID,
		Kind:           kind,
		OrderCreatedAt: env.OrderCreatedAt,
		OccurredAt:     env.OccurredAt,
	}
	if status, err := enums.ParseDeliveryStatus(env.DeliveryStatus); err == nil {
		n.DeliveryStatus = status
	}
	return n, nil
}
