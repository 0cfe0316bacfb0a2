package routing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildcache/config"
	"buildcache/storage"
)

// stubStore - заглушка хранилища: роутер не вызывает операции над
// объектами, ему нужен только сам экземпляр
type stubStore struct{}

func (stubStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (stubStore) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	return nil, storage.ErrObjectNotFound
}

func (stubStore) Get(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	return nil, nil, storage.ErrObjectNotFound
}

func (stubStore) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	return nil
}

func testResolved() *config.ResolvedConfig {
	return &config.ResolvedConfig{
		Port: 3000,
		Buckets: []config.ResolvedBucket{
			{Name: "main-storage", BucketName: "prod-cache", Region: "us-east-1", Timeout: 30 * time.Second},
			{Name: "backup-storage", BucketName: "backup-cache", Region: "us-east-1", Timeout: 30 * time.Second},
		},
		Tokens: []config.ResolvedToken{
			{Name: "ci-token", Bucket: "main-storage", Prefix: "/ci", AccessToken: "secret-abc"},
			{Name: "frontend-token", Bucket: "main-storage", Prefix: "/frontend", AccessToken: "frontend-secret"},
			{Name: "backend-token", Bucket: "main-storage", Prefix: "/backend", AccessToken: "backend-secret"},
			{Name: "root-token", Bucket: "backup-storage", Prefix: "", AccessToken: "root-secret"},
		},
	}
}

func testStores() map[string]storage.ObjectStore {
	return map[string]storage.ObjectStore{
		"main-storage":   stubStore{},
		"backup-storage": stubStore{},
	}
}

func TestRouteKnownToken(t *testing.T) {
	router, err := NewRouter(testResolved(), testStores())
	require.NoError(t, err)

	tenant, err := router.Route("secret-abc")
	require.NoError(t, err)
	assert.Equal(t, "ci-token", tenant.Name)
	assert.Equal(t, "main-storage", tenant.BackendName)
	assert.Equal(t, "/ci", tenant.Prefix)
	assert.NotNil(t, tenant.Store)
	assert.Equal(t, "/ci/deadbeef", tenant.ObjectKey("deadbeef"))
}

func TestRouteUnknownToken(t *testing.T) {
	router, err := NewRouter(testResolved(), testStores())
	require.NoError(t, err)

	_, wrongErr := router.Route("wrong-token")
	require.ErrorIs(t, wrongErr, ErrUnknownToken)

	_, emptyErr := router.Route("")
	require.ErrorIs(t, emptyErr, ErrUnknownToken)

	// Отказ одинаков для любого неизвестного токена
	assert.Equal(t, wrongErr, emptyErr)
}

func TestRouteTenantIsolation(t *testing.T) {
	router, err := NewRouter(testResolved(), testStores())
	require.NoError(t, err)

	frontend, err := router.Route("frontend-secret")
	require.NoError(t, err)
	backend, err := router.Route("backend-secret")
	require.NoError(t, err)

	// Один бэкенд, но непересекающиеся пространства ключей
	assert.Equal(t, frontend.BackendName, backend.BackendName)
	assert.Equal(t, "/frontend/cafe", frontend.ObjectKey("cafe"))
	assert.Equal(t, "/backend/cafe", backend.ObjectKey("cafe"))
	assert.NotEqual(t, frontend.ObjectKey("cafe"), backend.ObjectKey("cafe"))
}

func TestObjectKeyWithoutPrefix(t *testing.T) {
	router, err := NewRouter(testResolved(), testStores())
	require.NoError(t, err)

	tenant, err := router.Route("root-secret")
	require.NoError(t, err)
	assert.Equal(t, "", tenant.Prefix)
	assert.Equal(t, "cafebabe", tenant.ObjectKey("cafebabe"))
}

func TestNewRouterMissingStore(t *testing.T) {
	stores := testStores()
	delete(stores, "backup-storage")

	_, err := NewRouter(testResolved(), stores)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root-token")
	assert.Contains(t, err.Error(), "backup-storage")
}

func TestNewRouterRequiresTokens(t *testing.T) {
	resolved := testResolved()
	resolved.Tokens = nil

	_, err := NewRouter(resolved, testStores())
	require.Error(t, err)
}

func TestTenantsOrder(t *testing.T) {
	router, err := NewRouter(testResolved(), testStores())
	require.NoError(t, err)

	tenants := router.Tenants()
	require.Len(t, tenants, 4)
	names := make([]string, 0, len(tenants))
	for _, tenant := range tenants {
		names = append(names, tenant.Name)
	}
	assert.Equal(t, []string{"ci-token", "frontend-token", "backend-token", "root-token"}, names)
}
