package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/afonso-rickman/newdelivery/api/responses"
	"github.com/afonso-rickman/newdelivery/internal/tenants"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

type tenantResolver interface {
	Resolve(ctx context.Context, slug string) (*tenants.Tenant, error)
}

// TenantContext resolves the {slug} route parameter and checks it against the
// tenant bound to the access token. Developers may cross tenants when
// developerBypass is set.
func TenantContext(resolver tenantResolver, developerBypass bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := strings.TrimSpace(chi.URLParam(r, "slug"))
			if slug == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant slug is required"))
				return
			}
			if resolver == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenant resolver unavailable"))
				return
			}

			tenant, err := resolver.Resolve(r.Context(), slug)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			role := enums.UserRole(RoleFromContext(r.Context()))
			bypass := developerBypass && role == enums.UserRoleDeveloper
			if !bypass && TokenTenantIDFromContext(r.Context()) != tenant.ID.String() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "tenant not accessible"))
				return
			}

			ctx := WithTenant(r.Context(), tenant)
			if logg != nil {
				ctx = logg.WithTenantID(ctx, tenant.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
