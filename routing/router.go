package routing

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"buildcache/config"
	"buildcache/logger"
	"buildcache/storage"
)

// ErrUnknownToken возвращается для любого токена, не прошедшего проверку.
// Причина отказа не детализируется, чтобы ответ не раскрывал, какие
// токены существуют
var ErrUnknownToken = errors.New("unknown access token")

// Tenant - разрешенный доступ одного сервисного токена: бэкенд и
// пространство ключей внутри него
type Tenant struct {
	Name        string
	BackendName string
	Prefix      string
	Store       storage.ObjectStore

	secret string
}

// ObjectKey строит ключ объекта для хэша в пространстве арендатора.
// Пустой префикс означает корень бакета: ключом становится сам хэш
func (t *Tenant) ObjectKey(hash string) string {
	if t.Prefix == "" {
		return hash
	}
	return t.Prefix + "/" + hash
}

// Router отвечает на единственный вопрос: какому арендатору принадлежит
// предъявленный токен. Карта строится один раз при старте, поиск по ней
// не зависит от числа настроенных токенов
type Router struct {
	bySecret map[string]*Tenant
	tenants  []*Tenant // в порядке конфигурации
	metrics  *Metrics
}

// NewRouter строит таблицу маршрутизации из разрешенной конфигурации
// и хранилищ, созданных менеджером бэкендов
func NewRouter(resolved *config.ResolvedConfig, stores map[string]storage.ObjectStore) (*Router, error) {
	if resolved == nil {
		return nil, fmt.Errorf("resolved config for router not provided")
	}
	if len(resolved.Tokens) == 0 {
		return nil, fmt.Errorf("no service tokens configured")
	}

	router := &Router{
		bySecret: make(map[string]*Tenant, len(resolved.Tokens)),
		metrics:  NewMetrics(),
	}

	for i := range resolved.Tokens {
		token := &resolved.Tokens[i]
		store, ok := stores[token.Bucket]
		if !ok {
			// Валидация конфигурации гарантирует ссылку на существующий
			// бэкенд, сюда можно попасть только при ошибке сборки
			return nil, fmt.Errorf("service token %q references backend %q which has no store", token.Name, token.Bucket)
		}
		tenant := &Tenant{
			Name:        token.Name,
			BackendName: token.Bucket,
			Prefix:      token.Prefix,
			Store:       store,
			secret:      token.AccessToken,
		}
		router.bySecret[token.AccessToken] = tenant
		router.tenants = append(router.tenants, tenant)
	}

	router.metrics.Tenants.Set(float64(len(router.tenants)))

	logger.Info("Router initialized with %d service tokens", len(router.tenants))
	for _, tenant := range router.tenants {
		logger.Info("  - %s -> backend %s (prefix: %s)", tenant.Name, tenant.BackendName, prefixLabel(tenant.Prefix))
	}

	return router, nil
}

// Route возвращает арендатора по токену. Найденное значение
// подтверждается сравнением за фиксированное время
func (r *Router) Route(accessToken string) (*Tenant, error) {
	tenant, exists := r.bySecret[accessToken]
	if !exists {
		r.metrics.RouteRequestsTotal.WithLabelValues("unknown_token").Inc()
		return nil, ErrUnknownToken
	}
	if subtle.ConstantTimeCompare([]byte(accessToken), []byte(tenant.secret)) != 1 {
		r.metrics.RouteRequestsTotal.WithLabelValues("unknown_token").Inc()
		return nil, ErrUnknownToken
	}
	r.metrics.RouteRequestsTotal.WithLabelValues("success").Inc()
	return tenant, nil
}

// Tenants возвращает арендаторов в порядке конфигурации
func (r *Router) Tenants() []*Tenant {
	return r.tenants
}

func prefixLabel(prefix string) string {
	if prefix == "" {
		return "bucket root"
	}
	return prefix
}
