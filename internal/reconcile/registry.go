package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/afonso-rickman/newdelivery/internal/changefeed"
	"github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// View is one mounted admin view.
type View struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Loop     *Loop

	mu       sync.Mutex
	lastSeen time.Time
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// Registry owns every open view of this process and routes successful
// mutations to the views of the mutated order's tenant.
type Registry struct {
	fetcher  Fetcher
	hub      *changefeed.Hub
	recorder Recorder
	logg     *logger.Logger
	opts     Options
	idleTTL  time.Duration

	mu    sync.RWMutex
	views map[uuid.UUID]*View
}

func NewRegistry(fetcher Fetcher, hub *changefeed.Hub, recorder Recorder, logg *logger.Logger, opts Options, idleTTL time.Duration) *Registry {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Registry{
		fetcher:  fetcher,
		hub:      hub,
		recorder: recorder,
		logg:     logg,
		opts:     opts.withDefaults(),
		idleTTL:  idleTTL,
		views:    map[uuid.UUID]*View{},
	}
}

// Open mounts a view for tenantID and starts its first fetch.
func (r *Registry) Open(ctx context.Context, tenantID uuid.UUID, window orders.QueryWindow) *View {
	view := &View{
		ID:       uuid.New(),
		TenantID: tenantID,
		Loop:     NewLoop(tenantID, r.fetcher, r.hub, r.recorder, r.logg, r.opts),
		lastSeen: r.opts.Now(),
	}
	r.mu.Lock()
	r.views[view.ID] = view
	count := len(r.views)
	r.mu.Unlock()
	r.setOpen(count)

	view.Loop.SetWindow(window)
	r.logg.Info(r.logg.WithViewID(ctx, view.ID.String()), "admin view opened")
	return view
}

// Get returns a tenant's view. Another tenant's view is an authorization
// error, never a silent miss.
func (r *Registry) Get(tenantID, viewID uuid.UUID) (*View, error) {
	r.mu.RLock()
	view, ok := r.views[viewID]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "view not found")
	}
	if view.TenantID != tenantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "view belongs to another tenant")
	}
	view.touch(r.opts.Now())
	return view, nil
}

// Close unmounts a view.
func (r *Registry) Close(ctx context.Context, tenantID, viewID uuid.UUID) error {
	view, err := r.Get(tenantID, viewID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.views, viewID)
	count := len(r.views)
	r.mu.Unlock()
	r.setOpen(count)

	r.logg.Info(r.logg.WithViewID(ctx, viewID.String()), "admin view closed")
	return view.Loop.Close()
}

// Len returns the number of open views.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// OrderMutated refreshes every view of the order's tenant.
func (r *Registry) OrderMutated(ctx context.Context, order models.Order) {
	r.mu.RLock()
	targets := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		if v.TenantID == order.TenantID {
			targets = append(targets, v)
		}
	}
	r.mu.RUnlock()

	for _, v := range targets {
		v.Loop.Trigger(TriggerMutation)
	}
	if len(targets) > 0 {
		r.logg.Debug(r.logg.WithField(ctx, "views", len(targets)), "views refreshed after mutation")
	}
}

// Sweep closes views not touched within the idle TTL.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.opts.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var stale []*View
	for id, v := range r.views {
		if v.idleSince().Before(cutoff) {
			stale = append(stale, v)
			delete(r.views, id)
		}
	}
	count := len(r.views)
	r.mu.Unlock()
	r.setOpen(count)

	var err error
	for _, v := range stale {
		err = multierr.Append(err, v.Loop.Close())
	}
	if err != nil {
		r.logg.Error(ctx, "closing idle views", err)
	}
	if len(stale) > 0 {
		r.logg.Info(r.logg.WithField(ctx, "closed", len(stale)), "idle admin views closed")
	}
	return len(stale)
}

// Run sweeps idle views until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	if r.idleTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll stops every view.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	views := r.views
	r.views = map[uuid.UUID]*View{}
	r.mu.Unlock()
	r.setOpen(0)

	var err error
	for _, v := range views {
		err = multierr.Append(err, v.Loop.Close())
	}
	return err
}

func (r *Registry) setOpen(n int) {
	if r.recorder != nil {
		r.recorder.SetOpenViews(n)
	}
}
