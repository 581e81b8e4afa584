package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afonso-rickman/newdelivery/api/controllers"
	ordercontrollers "github.com/afonso-rickman/newdelivery/api/controllers/orders"
	viewcontrollers "github.com/afonso-rickman/newdelivery/api/controllers/views"
	"github.com/afonso-rickman/newdelivery/api/middleware"
	"github.com/afonso-rickman/newdelivery/internal/deliverers"
	"github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/internal/reconcile"
	"github.com/afonso-rickman/newdelivery/internal/tenants"
	"github.com/afonso-rickman/newdelivery/pkg/config"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// Deps carries everything the router hands to controllers.
type Deps struct {
	Gateway     *orders.Gateway
	Service     *orders.Service
	Coordinator *deliverers.Coordinator
	Registry    *reconcile.Registry
	Tenants     *tenants.Resolver
	Location    *time.Location
	Gatherer    prometheus.Gatherer
	Ready       map[string]controllers.Pinger
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
	)

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/admin/v1/tenants/{slug}", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleDeveloper))
		r.Use(middleware.TenantContext(deps.Tenants, cfg.FeatureFlags.DeveloperTenantBypass, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Gateway, loc, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Gateway, logg))
				r.Get("/history", ordercontrollers.History(deps.Gateway, logg))
				r.Post("/transitions", ordercontrollers.Transition(deps.Service, deps.Coordinator, logg))
				r.Post("/payment", ordercontrollers.ChangePayment(deps.Service, logg))
				r.Post("/assignment", ordercontrollers.Assign(deps.Coordinator, logg))
			})
		})
		r.Get("/deliverers", ordercontrollers.Deliverers(deps.Coordinator, logg))

		r.Route("/views", func(r chi.Router) {
			r.Post("/", viewcontrollers.Open(deps.Registry, loc, logg))
			r.Route("/{viewId}", func(r chi.Router) {
				r.Get("/", viewcontrollers.Get(deps.Registry, loc, logg))
				r.Patch("/", viewcontrollers.Update(deps.Registry, loc, logg))
				r.Delete("/", viewcontrollers.Close(deps.Registry, logg))
				r.Post("/refresh", viewcontrollers.Refresh(deps.Registry, loc, logg))
				r.Get("/events", viewcontrollers.Events(deps.Registry, loc, logg))
			})
		})
	})

	return r
}
