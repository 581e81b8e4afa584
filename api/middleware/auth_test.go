package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/internal/tenants"
	"github.com/afonso-rickman/newdelivery/pkg/auth"
	"github.com/afonso-rickman/newdelivery/pkg/config"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthRejectsMissingToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
	tenantID := uuid.New()
	token := mintTestToken(t, cfg, enums.UserRoleAdmin, &tenantID)

	var captured struct {
		user   string
		role   string
		tenant string
	}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		captured.tenant = TokenTenantIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user == "" {
		t.Fatal("expected user id in context")
	}
	if captured.role != string(enums.UserRoleAdmin) {
		t.Fatalf("expected role admin got %s", captured.role)
	}
	if captured.tenant != tenantID.String() {
		t.Fatalf("expected tenant %s got %s", tenantID, captured.tenant)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.UserRoleAdmin, enums.UserRoleDeveloper)(okHandler)

	cases := map[enums.UserRole]int{
		enums.UserRoleAdmin:     http.StatusOK,
		enums.UserRoleDeveloper: http.StatusOK,
		enums.UserRoleDeliverer: http.StatusForbidden,
		enums.UserRoleCustomer:  http.StatusForbidden,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), string(role)))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("role %s: expected %d got %d", role, want, resp.Code)
		}
	}
}

type stubResolver struct {
	tenant *tenants.Tenant
	err    error
}

func (s stubResolver) Resolve(ctx context.Context, slug string) (*tenants.Tenant, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tenant, nil
}

func serveTenant(t *testing.T, resolver tenantResolver, bypass bool, role enums.UserRole, tokenTenant *uuid.UUID) (int, *tenants.Tenant) {
	t.Helper()
	var seen *tenants.Tenant
	r := chi.NewRouter()
	r.With(TenantContext(resolver, bypass, nil)).Get("/tenants/{slug}/orders", func(w http.ResponseWriter, r *http.Request) {
		seen = TenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/tenants/pizzaria-centro/orders", nil)
	ctx := WithRole(req.Context(), string(role))
	if tokenTenant != nil {
		ctx = context.WithValue(ctx, ctxTenantID, tokenTenant.String())
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req.WithContext(ctx))
	return resp.Code, seen
}

func TestTenantContextMatchesTokenTenant(t *testing.T) {
	tenant := &tenants.Tenant{ID: uuid.New(), Slug: "pizzaria-centro"}
	resolver := stubResolver{tenant: tenant}

	code, seen := serveTenant(t, resolver, false, enums.UserRoleAdmin, &tenant.ID)
	if code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if seen == nil || seen.ID != tenant.ID {
		t.Fatalf("expected tenant in context, got %+v", seen)
	}

	other := uuid.New()
	code, _ = serveTenant(t, resolver, false, enums.UserRoleAdmin, &other)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for another tenant's admin got %d", code)
	}
}

func TestTenantContextDeveloperBypass(t *testing.T) {
	tenant := &tenants.Tenant{ID: uuid.New(), Slug: "pizzaria-centro"}
	resolver := stubResolver{tenant: tenant}

	code, _ := serveTenant(t, resolver, true, enums.UserRoleDeveloper, nil)
	if code != http.StatusOK {
		t.Fatalf("expected developer bypass got %d", code)
	}
	code, _ = serveTenant(t, resolver, false, enums.UserRoleDeveloper, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 with bypass disabled got %d", code)
	}
	code, _ = serveTenant(t, resolver, true, enums.UserRoleAdmin, nil)
	if code != http.StatusForbidden {
		t.Fatalf("bypass must not apply to admins, got %d", code)
	}
}

func TestTenantContextUnknownSlug(t *testing.T) {
	resolver := stubResolver{err: pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")}
	code, _ := serveTenant(t, resolver, true, enums.UserRoleDeveloper, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", code)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.UserRole, tenantID *uuid.UUID) string {
	t.Helper()
	payload := auth.AccessTokenPayload{
		UserID:   uuid.New(),
		Role:     role,
		TenantID: tenantID,
		JTI:      uuid.NewString(),
	}
	token, err := auth.MintAccessToken(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
