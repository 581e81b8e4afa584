package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
)

// Totals summarise the orders currently in a view.
type Totals struct {
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// ReadModel is what an admin view renders. Orders is always the result of
// the last successful authoritative fetch for Window, and Generation is the
// window generation that fetch served. RequestedGeneration is the view's
// current window; it runs ahead of Generation while a new window is loading
// or its first fetch failed.
type ReadModel struct {
	Orders              []models.Order
	Loading             bool
	Err                 error
	Totals              Totals
	Window              orders.QueryWindow
	Generation          uint64
	RequestedGeneration uint64
	FreshOrders         []uuid.UUID
	FetchedAt           time.Time
}

// ComputeTotals counts and sums orders. Totals are derived, never stored.
func ComputeTotals(list []models.Order) Totals {
	sum := decimal.Zero
	for _, o := range list {
		sum = sum.Add(o.Total)
	}
	return Totals{Count: len(list), Sum: sum}
}

// NewReadModel builds a settled model from one authoritative fetch.
func NewReadModel(window orders.QueryWindow, list []models.Order, fetchedAt time.Time) ReadModel {
	if list == nil {
		list = []models.Order{}
	}
	return ReadModel{
		Orders:    list,
		Totals:    ComputeTotals(list),
		Window:    window,
		FetchedAt: fetchedAt,
	}
}

func (m ReadModel) clone() ReadModel {
	out := m
	out.Orders = append([]models.Order(nil), m.Orders...)
	out.FreshOrders = append([]uuid.UUID(nil), m.FreshOrders...)
	return out
}

// ReadModelDTO is the JSON shape of a read model.
type ReadModelDTO struct {
	ViewID              string            `json:"view_id,omitempty"`
	From                string            `json:"from,omitempty"`
	To                  string            `json:"to,omitempty"`
	Status              string            `json:"status"`
	Orders              []orders.OrderDTO `json:"orders"`
	Loading             bool              `json:"loading"`
	Error               *ErrorDTO         `json:"error,omitempty"`
	Totals              Totals            `json:"totals"`
	Generation          uint64            `json:"generation"`
	RequestedGeneration uint64            `json:"requested_generation"`
	FreshOrders         []uuid.UUID       `json:"fresh_orders,omitempty"`
	FetchedAt           *time.Time        `json:"fetched_at,omitempty"`
}

// ErrorDTO describes a failed refresh; the orders shown are the last good ones.
type ErrorDTO struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

const dayLayout = "2006-01-02"

// NewReadModelDTO renders m; loc formats the window days.
func NewReadModelDTO(viewID string, m ReadModel, loc *time.Location) ReadModelDTO {
	if loc == nil {
		loc = time.UTC
	}
	dto := ReadModelDTO{
		ViewID:              viewID,
		Status:              m.Window.Filter.Raw,
		Orders:              orders.NewOrderDTOs(m.Orders),
		Loading:             m.Loading,
		Totals:              m.Totals,
		Generation:          m.Generation,
		RequestedGeneration: m.RequestedGeneration,
		FreshOrders:         m.FreshOrders,
	}
	if dto.Status == "" {
		dto.Status = "all"
	}
	if !m.Window.IsEmpty() {
		dto.From = m.Window.From.In(loc).Format(dayLayout)
		dto.To = m.Window.To.In(loc).Format(dayLayout)
	}
	if !m.FetchedAt.IsZero() {
		at := m.FetchedAt.UTC()
		dto.FetchedAt = &at
	}
	if m.Err != nil {
		dto.Error = errorDTO(m.Err)
	}
	return dto
}
