package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/types"
)

const dayLayout = "2006-01-02"

// StatusFilter narrows a window on the delivery axis, the payment axis, or
// neither. The two axes never combine.
type StatusFilter struct {
	Raw      string
	Delivery *enums.DeliveryStatus
	Payment  *enums.PaymentStatus
}

// IsAll reports whether the filter matches every order.
func (f StatusFilter) IsAll() bool {
	return f.Delivery == nil && f.Payment == nil
}

// Matches reports whether order passes the filter.
func (f StatusFilter) Matches(order models.Order) bool {
	if f.Delivery != nil && order.DeliveryStatus != *f.Delivery {
		return false
	}
	if f.Payment != nil && order.PaymentStatus != *f.Payment {
		return false
	}
	return true
}

var paymentFilterAliases = map[string]enums.PaymentStatus{
	"received":  enums.PaymentStatusRecebido,
	"to_deduct": enums.PaymentStatusPayrollDiscount,
}

var deliveryFilterAliases = map[string]enums.DeliveryStatus{
	"confirmed": enums.DeliveryStatusAccepted,
}

// ParseStatusFilter maps the admin filter vocabulary onto the two status axes.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" || value == "all" {
		return StatusFilter{Raw: "all"}, nil
	}
	if status, err := enums.ParseDeliveryStatus(value); err == nil {
		return StatusFilter{Raw: value, Delivery: &status}, nil
	}
	if status, ok := deliveryFilterAliases[value]; ok {
		return StatusFilter{Raw: value, Delivery: &status}, nil
	}
	if status, err := enums.ParsePaymentStatus(value); err == nil {
		return StatusFilter{Raw: value, Payment: &status}, nil
	}
	if status, ok := paymentFilterAliases[value]; ok {
		return StatusFilter{Raw: value, Payment: &status}, nil
	}
	return StatusFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown status filter").
		WithDetails(map[string]any{"status": raw})
}

// QueryWindow is the creation-time range and status filter of an admin view.
// A zero From means no range was chosen yet.
type QueryWindow struct {
	From   time.Time
	To     time.Time
	Filter StatusFilter
}

// IsEmpty reports whether the window selects nothing.
func (w QueryWindow) IsEmpty() bool {
	return w.From.IsZero()
}

// Contains reports whether createdAt falls inside the window bounds.
func (w QueryWindow) Contains(createdAt time.Time) bool {
	if w.IsEmpty() {
		return false
	}
	return !createdAt.Before(w.From) && !createdAt.After(w.To)
}

// SameRange reports whether two windows cover the same creation-time span.
func (w QueryWindow) SameRange(other QueryWindow) bool {
	return w.From.Equal(other.From) && w.To.Equal(other.To)
}

// Equal reports whether two windows select the same orders.
func (w QueryWindow) Equal(other QueryWindow) bool {
	return w.SameRange(other) && w.Filter.Raw == other.Filter.Raw
}

// NewDayWindow builds a window spanning whole calendar days in loc. An empty
// from yields an empty window; an empty to defaults to from.
func NewDayWindow(from, to, status string, loc *time.Location) (QueryWindow, error) {
	filter, err := ParseStatusFilter(status)
	if err != nil {
		return QueryWindow{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return QueryWindow{Filter: filter}, nil
	}
	if to == "" {
		to = from
	}

	start, err := time.ParseInLocation(dayLayout, from, loc)
	if err != nil {
		return QueryWindow{}, pkgerrors.New(pkgerrors.CodeValidation, "from must be YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dayLayout, to, loc)
	if err != nil {
		return QueryWindow{}, pkgerrors.New(pkgerrors.CodeValidation, "to must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return QueryWindow{}, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}

	return QueryWindow{
		From:   start,
		To:     end.AddDate(0, 0, 1).Add(-time.Millisecond),
		Filter: filter,
	}, nil
}

// Expectation is the order state a caller read before asking for a change.
type Expectation struct {
	DeliveryStatus enums.DeliveryStatus
	PaymentStatus  enums.PaymentStatus
	Version        int64
}

// Actor identifies who requested a mutation, for the status history.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// Patch is a status mutation applied with compare-and-swap semantics.
type Patch struct {
	Expect             Expectation
	DeliveryStatus     *enums.DeliveryStatus
	PaymentStatus      *enums.PaymentStatus
	AssignDeliverer    *uuid.UUID
	ClearDeliverer     bool
	DeliveredAt        *time.Time
	CancellationReason *string
	Actor              Actor
}

// OrderDTO is the wire shape of an order.
type OrderDTO struct {
	ID                  uuid.UUID            `json:"id"`
	TenantID            uuid.UUID            `json:"tenant_id"`
	DeliveryStatus      enums.DeliveryStatus `json:"delivery_status"`
	PaymentStatus       enums.PaymentStatus  `json:"payment_status"`
	CustomerName        string               `json:"customer_name"`
	CustomerPhone       string               `json:"customer_phone"`
	Address             types.Address        `json:"address"`
	AddressLine         string               `json:"address_line"`
	Items               types.OrderItems     `json:"items"`
	Total               decimal.Decimal      `json:"total"`
	Discount            *types.Discount      `json:"discount,omitempty"`
	AssignedDelivererID *uuid.UUID           `json:"assigned_deliverer_id,omitempty"`
	CancellationReason  *string              `json:"cancellation_reason,omitempty"`
	Version             int64                `json:"version"`
	CreatedAt           time.Time            `json:"created_at"`
	DeliveredAt         *time.Time           `json:"delivered_at,omitempty"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

func NewOrderDTO(order models.Order) OrderDTO {
	items := order.Items
	if items == nil {
		items = types.OrderItems{}
	}
	return OrderDTO{
		ID:                  order.ID,
		TenantID:            order.TenantID,
		DeliveryStatus:      order.DeliveryStatus,
		PaymentStatus:       order.PaymentStatus,
		CustomerName:        order.CustomerName,
		CustomerPhone:       order.CustomerPhone,
		Address:             order.Address,
		AddressLine:         order.Address.Line(),
		Items:               items,
		Total:               order.Total,
		Discount:            order.Discount,
		AssignedDelivererID: order.AssignedDelivererID,
		CancellationReason:  order.CancellationReason,
		Version:             order.Version,
		CreatedAt:           order.CreatedAt,
		DeliveredAt:         order.DeliveredAt,
		UpdatedAt:           order.UpdatedAt,
	}
}

func NewOrderDTOs(list []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(list))
	for _, order := range list {
		out = append(out, NewOrderDTO(order))
	}
	return out
}

// HistoryDTO is one audit row of an order.
type HistoryDTO struct {
	FromDelivery       enums.DeliveryStatus `json:"from_delivery_status"`
	ToDelivery         enums.DeliveryStatus `json:"to_delivery_status"`
	FromPayment        enums.PaymentStatus  `json:"from_payment_status"`
	ToPayment          enums.PaymentStatus  `json:"to_payment_status"`
	DelivererID        *uuid.UUID           `json:"deliverer_id,omitempty"`
	ActorID            *uuid.UUID           `json:"actor_id,omitempty"`
	ActorRole          *string              `json:"actor_role,omitempty"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	Version            int64                `json:"version"`
	CreatedAt          time.Time            `json:"created_at"`
}

func NewHistoryDTOs(list []models.OrderStatusHistory) []HistoryDTO {
	out := make([]HistoryDTO, 0, len(list))
	for _, entry := range list {
		out = append(out, HistoryDTO{
			FromDelivery:       entry.FromDelivery,
			ToDelivery:         entry.ToDelivery,
			FromPayment:        entry.FromPayment,
			ToPayment:          entry.ToPayment,
			DelivererID:        entry.DelivererID,
			ActorID:            entry.ActorID,
			ActorRole:          entry.ActorRole,
			CancellationReason: entry.CancellationReason,
			Version:            entry.Version,
			CreatedAt:          entry.CreatedAt,
		})
	}
	return out
}
