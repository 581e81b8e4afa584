package tenants

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

const tenantsDDL = `CREATE TABLE tenants (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at DATETIME,
	updated_at DATETIME
)`

func setupTenantsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.Exec(tenantsDDL).Error)
	return conn
}

type mapCache struct {
	data   map[string]string
	gets   int
	getErr error
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.gets++
	if c.getErr != nil {
		return "", c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		c.data[key] = string(v)
	default:
		c.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (c *mapCache) TenantKey(slug string) string { return "nd:tenant:" + slug }

type countingRepo struct {
	inner *Repository
	calls int
}

func (r *countingRepo) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	r.calls++
	return r.inner.FindBySlug(ctx, slug)
}

func TestResolveCachesTenant(t *testing.T) {
	conn := setupTenantsDB(t)
	id := uuid.New()
	require.NoError(t, conn.Create(&models.Tenant{ID: id, Slug: "pizzaria-centro", Name: "Pizzaria Centro"}).Error)

	repo := &countingRepo{inner: NewRepository(conn)}
	cache := &mapCache{data: map[string]string{}}
	resolver, err := NewResolver(repo, cache, time.Minute, logger.Nop())
	require.NoError(t, err)

	first, err := resolver.Resolve(context.Background(), " Pizzaria-Centro ")
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)

	second, err := resolver.Resolve(context.Background(), "pizzaria-centro")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls, "second lookup should be served from cache")
}

func TestResolveUnknownSlug(t *testing.T) {
	resolver, err := NewResolver(NewRepository(setupTenantsDB(t)), nil, 0, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "nope")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = resolver.Resolve(context.Background(), "  ")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestResolveFallsBackWhenCacheFails(t *testing.T) {
	conn := setupTenantsDB(t)
	require.NoError(t, conn.Create(&models.Tenant{ID: uuid.New(), Slug: "bar", Name: "Bar"}).Error)

	cache := &mapCache{data: map[string]string{}, getErr: errors.New("redis down")}
	resolver, err := NewResolver(NewRepository(conn), cache, time.Minute, logger.Nop())
	require.NoError(t, err)

	tenant, err := resolver.Resolve(context.Background(), "bar")
	require.NoError(t, err)
	assert.Equal(t, "Bar", tenant.Name)
}
