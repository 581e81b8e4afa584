package views

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afonso-rickman/newdelivery/api/middleware"
	"github.com/afonso-rickman/newdelivery/internal/changefeed"
	internalorders "github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/internal/reconcile"
	"github.com/afonso-rickman/newdelivery/internal/tenants"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	list  []models.Order
}

func (f *stubFetcher) FetchOrders(ctx context.Context, tenantID uuid.UUID, window internalorders.QueryWindow) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]models.Order(nil), f.list...), nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type envelope struct {
	Data reconcile.ReadModelDTO `json:"data"`
}

func newRouter(t *testing.T, tenantID uuid.UUID, fetcher *stubFetcher) (*reconcile.Registry, http.Handler) {
	t.Helper()
	registry := reconcile.NewRegistry(fetcher, changefeed.NewHub(nil), nil, nil, reconcile.Options{}, time.Hour)
	t.Cleanup(func() { _ = registry.CloseAll() })

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithTenant(req.Context(), &tenants.Tenant{ID: tenantID, Slug: "pizzaria-centro"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/views", Open(registry, time.UTC, nil))
	r.Get("/views/{viewId}", Get(registry, time.UTC, nil))
	r.Patch("/views/{viewId}", Update(registry, time.UTC, nil))
	r.Post("/views/{viewId}/refresh", Refresh(registry, time.UTC, nil))
	r.Get("/views/{viewId}/events", Events(registry, time.UTC, nil))
	r.Delete("/views/{viewId}", Close(registry, nil))
	return registry, r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(method, target, strings.NewReader(body)))
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) reconcile.ReadModelDTO {
	t.Helper()
	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

func testOrders(tenantID uuid.UUID) []models.Order {
	return []models.Order{
		{ID: uuid.New(), TenantID: tenantID, DeliveryStatus: enums.DeliveryStatusPending, PaymentStatus: enums.PaymentStatusAReceber, Total: decimal.RequireFromString("100.00"), Version: 1},
		{ID: uuid.New(), TenantID: tenantID, DeliveryStatus: enums.DeliveryStatusReady, PaymentStatus: enums.PaymentStatusAReceber, Total: decimal.RequireFromString("50.00"), Version: 1},
	}
}

func TestOpenViewConverges(t *testing.T) {
	tenantID := uuid.New()
	fetcher := &stubFetcher{list: testOrders(tenantID)}
	_, h := newRouter(t, tenantID, fetcher)

	resp := do(t, h, http.MethodPost, "/views", `{"from":"2025-03-01","to":"2025-03-02","status":"all"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	opened := decode(t, resp)
	require.NotEmpty(t, opened.ViewID)

	require.Eventually(t, func() bool {
		model := decode(t, do(t, h, http.MethodGet, "/views/"+opened.ViewID, ""))
		return !model.Loading && model.Totals.Count == 2
	}, time.Second, 10*time.Millisecond)

	model := decode(t, do(t, h, http.MethodGet, "/views/"+opened.ViewID, ""))
	assert.True(t, decimal.RequireFromString("150").Equal(model.Totals.Sum))
	assert.Equal(t, "2025-03-01", model.From)
	assert.Equal(t, "2025-03-02", model.To)
}

func TestUpdateToEmptyWindowSkipsFetch(t *testing.T) {
	tenantID := uuid.New()
	fetcher := &stubFetcher{list: testOrders(tenantID)}
	_, h := newRouter(t, tenantID, fetcher)

	opened := decode(t, do(t, h, http.MethodPost, "/views", `{}`))
	require.Equal(t, 0, fetcher.callCount())

	resp := do(t, h, http.MethodPatch, "/views/"+opened.ViewID, `{"from":"2025-03-01"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 10*time.Millisecond)

	resp = do(t, h, http.MethodPatch, "/views/"+opened.ViewID, `{"from":"2025-03-01","to":"2025-02-01"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestViewsAreTenantScoped(t *testing.T) {
	fetcher := &stubFetcher{}
	registry, h := newRouter(t, uuid.New(), fetcher)

	foreign := registry.Open(context.Background(), uuid.New(), internalorders.QueryWindow{})
	resp := do(t, h, http.MethodGet, "/views/"+foreign.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = do(t, h, http.MethodGet, "/views/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRefreshAndClose(t *testing.T) {
	tenantID := uuid.New()
	fetcher := &stubFetcher{list: testOrders(tenantID)}
	registry, h := newRouter(t, tenantID, fetcher)

	opened := decode(t, do(t, h, http.MethodPost, "/views", `{"from":"2025-03-01"}`))
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 10*time.Millisecond)

	resp := do(t, h, http.MethodPost, "/views/"+opened.ViewID+"/refresh", "")
	assert.Equal(t, http.StatusAccepted, resp.Code)
	require.Eventually(t, func() bool { return fetcher.callCount() == 2 }, time.Second, 10*time.Millisecond)

	resp = do(t, h, http.MethodDelete, "/views/"+opened.ViewID, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, 0, registry.Len())
}

func TestEventsStreamModels(t *testing.T) {
	tenantID := uuid.New()
	fetcher := &stubFetcher{list: testOrders(tenantID)}
	_, h := newRouter(t, tenantID, fetcher)
	srv := httptest.NewServer(h)
	defer srv.Close()

	opened := decode(t, do(t, h, http.MethodPost, "/views", `{"from":"2025-03-01"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/views/"+opened.ViewID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var model reconcile.ReadModelDTO
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &model))
		if !model.Loading && model.Totals.Count == 2 {
			assert.Equal(t, opened.ViewID, model.ViewID)
			return
		}
	}
	t.Fatalf("stream ended before a settled model: %v", scanner.Err())
}
