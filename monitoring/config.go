package monitoring

import "fmt"

// Config содержит конфигурацию сервера метрик
type Config struct {
	// Enabled определяет, поднимается ли отдельный HTTP сервер метрик
	Enabled bool `yaml:"enabled"`

	// ListenAddress - адрес HTTP сервера метрик (например, ":9091")
	ListenAddress string `yaml:"listenAddress"`

	// MetricsPath - путь эндпоинта метрик (по умолчанию "/metrics")
	MetricsPath string `yaml:"metricsPath"`

	// ReadTimeout - таймаут чтения HTTP сервера метрик в секундах
	ReadTimeout int `yaml:"readTimeout"`

	// WriteTimeout - таймаут записи HTTP сервера метрик в секундах
	WriteTimeout int `yaml:"writeTimeout"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		ListenAddress: ":9091",
		MetricsPath:   "/metrics",
		ReadTimeout:   30,
		WriteTimeout:  30,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if !c.Enabled {
		// При отключенном мониторинге остальные поля не используются
		return nil
	}

	if c.ListenAddress == "" {
		return fmt.Errorf("listenAddress cannot be empty when monitoring is enabled")
	}

	if c.MetricsPath == "" {
		return fmt.Errorf("metricsPath cannot be empty")
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("readTimeout must be positive")
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("writeTimeout must be positive")
	}

	return nil
}
