package monitoring

import (
	"context"
	"fmt"

	"buildcache/logger"
)

// BackendHealth - источник сведений о живости бэкендов хранилища.
// Реализуется менеджером бэкендов; мониторинг при этом не зависит от
// пакета хранилища напрямую
type BackendHealth interface {
	// LiveCount возвращает число бэкендов, доступных в данный момент
	LiveCount() int
}

// Monitor представляет основной интерфейс модуля мониторинга
type Monitor struct {
	config *Config
	server *Server
}

// New создает новый экземпляр Monitor. health может быть nil, тогда
// готовность процесса не учитывает состояние бэкендов
func New(config *Config, health BackendHealth) (*Monitor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitoring config: %w", err)
	}

	monitor := &Monitor{
		config: config,
		server: NewServer(config, health),
	}

	logger.Debug("Monitoring config: enabled=%v, listen=%s, path=%s",
		config.Enabled, config.ListenAddress, config.MetricsPath)

	return monitor, nil
}

// Start запускает модуль мониторинга
func (m *Monitor) Start() error {
	if !m.config.Enabled {
		logger.Info("Monitoring is disabled")
		return nil
	}

	if err := m.server.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// Stop останавливает модуль мониторинга
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	if err := m.server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}

	logger.Info("Monitoring stopped")
	return nil
}

// SetShuttingDown переводит эндпоинт готовности в состояние 503, чтобы
// балансировщик перестал направлять трафик до фактической остановки
func (m *Monitor) SetShuttingDown(value bool) {
	m.server.SetShuttingDown(value)
}

// IsEnabled возвращает true, если мониторинг включен
func (m *Monitor) IsEnabled() bool {
	return m.config.Enabled
}
