package views

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/api/middleware"
	"github.com/afonso-rickman/newdelivery/api/responses"
	"github.com/afonso-rickman/newdelivery/api/validators"
	internalorders "github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/internal/reconcile"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// HeartbeatInterval spaces keep-alive comments on event streams. Each
// heartbeat also keeps the view from being swept as idle.
var HeartbeatInterval = 15 * time.Second

type viewRegistry interface {
	Open(ctx context.Context, tenantID uuid.UUID, window internalorders.QueryWindow) *reconcile.View
	Get(tenantID, viewID uuid.UUID) (*reconcile.View, error)
	Close(ctx context.Context, tenantID, viewID uuid.UUID) error
}

type windowRequest struct {
	From   string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Status string `json:"status" validate:"omitempty,max=32"`
}

func (w windowRequest) window(loc *time.Location) (internalorders.QueryWindow, error) {
	return internalorders.NewDayWindow(w.From, w.To, w.Status, loc)
}

// Open mounts a live view for the tenant and returns its first model, which
// is usually still loading.
func Open(registry viewRegistry, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		var body windowRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		window, err := body.window(loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view := registry.Open(r.Context(), tenantID, window)
		responses.WriteSuccessStatus(w, http.StatusCreated, render(view, loc))
	}
}

func Get(registry viewRegistry, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := lookup(registry, w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, render(view, loc))
	}
}

// Update moves the view to a new window. Results still in flight for the
// previous window are discarded.
func Update(registry viewRegistry, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := lookup(registry, w, r, logg)
		if !ok {
			return
		}
		var body windowRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		window, err := body.window(loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view.Loop.SetWindow(window)
		responses.WriteSuccess(w, render(view, loc))
	}
}

// Refresh forces an authoritative refetch, typically after an error.
func Refresh(registry viewRegistry, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := lookup(registry, w, r, logg)
		if !ok {
			return
		}
		view.Loop.Refresh()
		responses.WriteSuccessStatus(w, http.StatusAccepted, render(view, loc))
	}
}

func Close(registry viewRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		viewID, err := validators.ParseUUIDParam(r, "viewId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := registry.Close(r.Context(), tenantID, viewID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// Events streams the view's read model as server-sent events. Every event
// carries the whole model; clients replace what they render.
func Events(registry viewRegistry, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := lookup(registry, w, r, logg)
		if !ok {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithViewID(ctx, view.ID.String())
		}
		updates, stop := view.Loop.Watch()
		defer stop()

		heartbeat := time.NewTicker(HeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case model, open := <-updates:
				if !open {
					fmt.Fprint(w, "event: closed\ndata: {}\n\n")
					flusher.Flush()
					return
				}
				if err := writeEvent(w, view.ID, model, loc); err != nil {
					if logg != nil {
						logg.Warn(ctx, "view stream write failed")
					}
					return
				}
				flusher.Flush()
			case <-heartbeat.C:
				if _, err := registry.Get(view.TenantID, view.ID); err != nil {
					return
				}
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, viewID uuid.UUID, model reconcile.ReadModel, loc *time.Location) error {
	payload, err := json.Marshal(reconcile.NewReadModelDTO(viewID.String(), model, loc))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: model\nid: %d\ndata: %s\n\n", model.Generation, payload)
	return err
}

func render(view *reconcile.View, loc *time.Location) reconcile.ReadModelDTO {
	return reconcile.NewReadModelDTO(view.ID.String(), view.Loop.Snapshot(), loc)
}

func lookup(registry viewRegistry, w http.ResponseWriter, r *http.Request, logg *logger.Logger) (*reconcile.View, bool) {
	tenantID, ok := tenantID(w, r, logg)
	if !ok {
		return nil, false
	}
	viewID, err := validators.ParseUUIDParam(r, "viewId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	view, err := registry.Get(tenantID, viewID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return view, true
}

func tenantID(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing"))
		return uuid.Nil, false
	}
	return tenant.ID, true
}
