package server

import (
	"fmt"
	"time"
)

// Config содержит конфигурацию HTTP сервера кеша
type Config struct {
	// ListenAddress - адрес и порт для прослушивания (например, ":3000")
	ListenAddress string

	// TLSCertFile - путь к файлу SSL-сертификата (опционально, для включения HTTPS)
	TLSCertFile string

	// TLSKeyFile - путь к файлу приватного ключа SSL (опционально)
	TLSKeyFile string

	// ReadHeaderTimeout - таймаут на чтение заголовков запроса.
	// Таймаут на весь запрос не задается: передача большого артефакта
	// может занимать произвольное время
	ReadHeaderTimeout time.Duration

	// IdleTimeout - таймаут простоя keep-alive соединения
	IdleTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ListenAddress:     ":3000",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Validate проверяет конфигурацию сервера
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS cert file and key file must be provided together")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("read header timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	return nil
}
