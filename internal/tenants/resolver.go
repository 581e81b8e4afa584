package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/db"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// Tenant is the resolved tenant context of a request.
type Tenant struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
}

type repository interface {
	FindBySlug(ctx context.Context, slug string) (*models.Tenant, error)
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	TenantKey(slug string) string
}

// Resolver maps a slug to a tenant, caching hits in Redis. Cache failures
// degrade to a store read.
type Resolver struct {
	repo  repository
	cache cache
	ttl   time.Duration
	logg  *logger.Logger
}

func NewResolver(repo repository, cache cache, ttl time.Duration, logg *logger.Logger) (*Resolver, error) {
	if repo == nil {
		return nil, errors.New("tenant repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{repo: repo, cache: cache, ttl: ttl, logg: logg}, nil
}

// Resolve returns the tenant for slug or a NotFound error.
func (r *Resolver) Resolve(ctx context.Context, slug string) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant slug is required")
	}

	if tenant, ok := r.fromCache(ctx, slug); ok {
		return tenant, nil
	}

	row, err := r.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		if db.IsTransient(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve tenant")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve tenant")
	}

	tenant := &Tenant{ID: row.ID, Slug: row.Slug, Name: row.Name}
	r.store(ctx, tenant)
	return tenant, nil
}

func (r *Resolver) fromCache(ctx context.Context, slug string) (*Tenant, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, r.cache.TenantKey(slug))
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "tenant cache read failed")
		}
		return nil, false
	}
	var tenant Tenant
	if err := json.Unmarshal([]byte(raw), &tenant); err != nil || tenant.ID == uuid.Nil {
		return nil, false
	}
	return &tenant, true
}

func (r *Resolver) store(ctx context.Context, tenant *Tenant) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(tenant)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, r.cache.TenantKey(tenant.Slug), payload, r.ttl); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "tenant cache write failed")
	}
}
