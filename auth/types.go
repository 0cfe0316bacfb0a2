package auth

import (
	"errors"
	"net/http"

	"buildcache/routing"
)

// Authenticator - интерфейс аутентификации входящих запросов.
// Возвращает арендатора, которому принадлежит предъявленный токен,
// или ошибку аутентификации
type Authenticator interface {
	Authenticate(r *http.Request) (*routing.Tenant, error)
}

// Пользовательские ошибки для точной диагностики
var (
	// ErrMissingAuthHeader - отсутствует заголовок Authorization
	ErrMissingAuthHeader = errors.New("missing authorization header")
	// ErrInvalidAuthHeader - заголовок Authorization не является bearer-токеном
	ErrInvalidAuthHeader = errors.New("invalid authorization header")
)
