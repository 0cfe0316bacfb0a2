package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"buildcache/config"
	"buildcache/logger"
)

// Manager владеет набором бэкендов и следит за их здоровьем
type Manager struct {
	healthCfg config.HealthCheckConfig
	backends  map[string]*Backend
	order     []string // имена бэкендов в порядке конфигурации
	metrics   *Metrics

	// Управление жизненным циклом
	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager создает бэкенд для каждого бакета разрешенной конфигурации
func NewManager(resolved *config.ResolvedConfig, healthCfg config.HealthCheckConfig) (*Manager, error) {
	if resolved == nil {
		return nil, fmt.Errorf("resolved config for storage manager not provided")
	}
	if err := healthCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid health check config: %w", err)
	}

	manager := &Manager{
		healthCfg: healthCfg,
		backends:  make(map[string]*Backend),
		metrics:   NewMetrics(),
		stopChan:  make(chan struct{}),
	}

	for i := range resolved.Buckets {
		bucketCfg := &resolved.Buckets[i]
		backend, err := newBackend(bucketCfg, manager.metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend %q: %w", bucketCfg.Name, err)
		}
		manager.backends[backend.Name] = backend
		manager.order = append(manager.order, backend.Name)
		manager.metrics.BackendState.WithLabelValues(backend.Name).Set(backend.GetState().ToFloat64())
	}

	logger.Info("Storage manager initialized with %d backends", len(manager.backends))
	for _, name := range manager.order {
		backend := manager.backends[name]
		logger.Info("  - %s: bucket %s (endpoint: %s)", name, backend.Bucket, endpointLabel(backend.Endpoint))
	}

	return manager, nil
}

// Start запускает фоновые проверки здоровья
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("storage manager is already running")
	}

	logger.Info("Starting storage manager...")

	m.wg.Add(1)
	go m.runHealthChecks()

	m.running = true
	logger.Info("Storage manager started")

	return nil
}

// Stop останавливает фоновые проверки
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	logger.Info("Stopping storage manager...")

	close(m.stopChan)
	m.wg.Wait()

	// Новый канал на случай повторного запуска
	m.stopChan = make(chan struct{})

	m.running = false
	logger.Info("Storage manager stopped")

	return nil
}

// IsRunning возвращает true, если менеджер запущен
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Get возвращает бэкенд по имени. Набор бэкендов неизменен после
// создания менеджера, поэтому блокировка не нужна
func (m *Manager) Get(name string) (*Backend, bool) {
	backend, exists := m.backends[name]
	return backend, exists
}

// All возвращает все бэкенды в порядке конфигурации
func (m *Manager) All() []*Backend {
	backends := make([]*Backend, 0, len(m.order))
	for _, name := range m.order {
		backends = append(backends, m.backends[name])
	}
	return backends
}

// Stores возвращает бэкенды как хранилища объектов для слоя маршрутизации
func (m *Manager) Stores() map[string]ObjectStore {
	stores := make(map[string]ObjectStore, len(m.backends))
	for name, backend := range m.backends {
		stores[name] = backend
	}
	return stores
}

// LiveCount возвращает число бэкендов в состоянии UP
func (m *Manager) LiveCount() int {
	count := 0
	for _, backend := range m.backends {
		if backend.GetState() == StateUp {
			count++
		}
	}
	return count
}

// TestAll проверяет доступность всех бэкендов. Вызывается при старте:
// ошибки всех бэкендов собираются в один отчет, чтобы оператор увидел
// полную картину за один запуск
func (m *Manager) TestAll(ctx context.Context) error {
	var failures []string
	for _, name := range m.order {
		backend := m.backends[name]
		if err := backend.TestConnection(ctx); err != nil {
			logger.Error("Connectivity test failed for backend %q: %v", name, err)
			failures = append(failures, err.Error())
			continue
		}
		logger.Info("Backend %q connectivity test passed", name)
	}
	if len(failures) > 0 {
		return fmt.Errorf("connectivity test failed for %d of %d backends: %s",
			len(failures), len(m.backends), strings.Join(failures, "; "))
	}
	return nil
}

// runHealthChecks выполняет активные проверки здоровья в фоновом режиме
func (m *Manager) runHealthChecks() {
	defer m.wg.Done()

	interval := m.healthCfg.IntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug("Doing initial health check")
	m.performHealthChecks()

	logger.Debug("Health check routine started with interval %v", interval)
	for {
		select {
		case <-ticker.C:
			m.performHealthChecks()
		case <-m.stopChan:
			logger.Debug("Health check routine stopped")
			return
		}
	}
}

// performHealthChecks проверяет все бэкенды параллельно
func (m *Manager) performHealthChecks() {
	logger.Debug("Performing health checks for %d backends", len(m.backends))

	var wg sync.WaitGroup
	for _, backend := range m.backends {
		wg.Add(1)
		go func(b *Backend) {
			defer wg.Done()
			m.checkBackend(b)
		}(backend)
	}

	wg.Wait()
	logger.Debug("Health checks completed")
}

// checkBackend выполняет проверку одного бэкенда и применяет переходы
// состояний: UP уходит в DOWN после порога подряд идущих неудач, DOWN
// возвращается через PROBING, PROBING падает обратно при любой неудаче
func (m *Manager) checkBackend(backend *Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), m.healthCfg.CheckTimeoutDuration())
	defer cancel()

	logger.Debug("Checking backend %s (state: %s)", backend.Name, backend.GetState())

	// Легковесная проверка - HeadBucket
	_, err := backend.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(backend.Bucket),
	})

	backend.mu.Lock()
	defer backend.mu.Unlock()

	backend.lastCheckTime = time.Now()
	oldState := backend.state

	if err != nil {
		backend.lastError = err
		backend.consecutiveSuccesses = 0
		backend.consecutiveFailures++

		logger.Debug("Backend %s health check failed: %v (consecutive failures: %d)",
			backend.Name, err, backend.consecutiveFailures)

		switch backend.state {
		case StateUp:
			if backend.consecutiveFailures >= m.healthCfg.FailureThreshold {
				m.setState(backend, StateDown)
				logger.Warn("Backend %s transitioned from UP to DOWN after %d consecutive failures",
					backend.Name, backend.consecutiveFailures)
			}
		case StateProbing:
			// Из PROBING сразу в DOWN при любой неудаче
			m.setState(backend, StateDown)
			logger.Warn("Backend %s transitioned from PROBING to DOWN after health check failure", backend.Name)
		case StateDown:
			// Остаемся в DOWN
		}
	} else {
		backend.lastError = nil
		backend.consecutiveFailures = 0
		backend.consecutiveSuccesses++

		logger.Debug("Backend %s health check succeeded (consecutive successes: %d)",
			backend.Name, backend.consecutiveSuccesses)

		switch backend.state {
		case StateDown:
			// Из DOWN в PROBING при первом успехе
			m.setState(backend, StateProbing)
			logger.Info("Backend %s transitioned from DOWN to PROBING after successful health check", backend.Name)
		case StateProbing:
			if backend.consecutiveSuccesses >= m.healthCfg.SuccessThreshold {
				m.setState(backend, StateUp)
				logger.Info("Backend %s transitioned from PROBING to UP after %d consecutive successes",
					backend.Name, backend.consecutiveSuccesses)
			}
		case StateUp:
			// Остаемся в UP
		}
	}

	if oldState != backend.state {
		logger.Info("Backend %s state changed: %s -> %s", backend.Name, oldState, backend.state)
	}
}

// setState меняет состояние бэкенда и обновляет метрику.
// Вызывается под backend.mu
func (m *Manager) setState(backend *Backend, state BackendState) {
	backend.state = state
	m.metrics.BackendState.WithLabelValues(backend.Name).Set(state.ToFloat64())
}

func endpointLabel(endpoint string) string {
	if endpoint == "" {
		return "AWS default"
	}
	return endpoint
}
