package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/internal/tenants"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxTenantID contextKey = "token_tenant_id"
	ctxTenant   contextKey = "tenant"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// TokenTenantIDFromContext returns the tenant the access token is bound to.
func TokenTenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTenantID).(string); ok {
		return v
	}
	return ""
}

// TenantFromContext returns the tenant resolved from the route slug.
func TenantFromContext(ctx context.Context) *tenants.Tenant {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxTenant).(*tenants.Tenant); ok {
		return v
	}
	return nil
}

// ActorFromContext builds the acting user for audit rows. Unparseable ids
// come back as uuid.Nil.
func ActorFromContext(ctx context.Context) (uuid.UUID, enums.UserRole) {
	userID, _ := uuid.Parse(UserIDFromContext(ctx))
	return userID, enums.UserRole(RoleFromContext(ctx))
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithTenant stores the resolved tenant for downstream handlers.
func WithTenant(ctx context.Context, tenant *tenants.Tenant) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTenant, tenant)
}
