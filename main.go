package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buildcache/auth"
	"buildcache/config"
	"buildcache/logger"
	"buildcache/monitoring"
	"buildcache/routing"
	"buildcache/server"
	"buildcache/storage"
)

const (
	// connectivityTestTimeout - бюджет стартовой проверки связности бэкендов
	connectivityTestTimeout = 10 * time.Second

	// shutdownTimeout - бюджет корректного завершения процесса
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Парсим аргументы командной строки
	var (
		configFile          = flag.String("config", "", "Configuration file path (YAML)")
		listenAddr          = flag.String("listen", "", "Listen address (overrides configured port)")
		tlsCert             = flag.String("tls-cert", "", "TLS certificate file (enables HTTPS)")
		tlsKey              = flag.String("tls-key", "", "TLS key file")
		logLevel            = flag.String("log-level", "", "Log level (debug, info, warn, error) (overrides config)")
		debugMode           = flag.Bool("debug", false, "Force debug log level (overrides config)")
		metricsAddr         = flag.String("metrics-listen", "", "Metrics server listen address (overrides config)")
		disableMetrics      = flag.Bool("disable-metrics", false, "Disable metrics server (overrides config)")
		disableHealthChecks = flag.Bool("disable-health-checks", false, "Disable background backend health checks")
	)
	flag.Parse()

	// Загружаем конфигурацию
	var cfg *config.Config
	var err error

	if *configFile != "" {
		logger.Info("Loading configuration from file: %s", *configFile)
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		logger.Info("Configuration loaded successfully")
	} else {
		logger.Error("Config file not provided or incorrect. Exiting.")
		os.Exit(1)
	}

	// Применяем переопределения из командной строки
	applyCommandLineOverrides(cfg, *logLevel, *debugMode, *metricsAddr, *disableMetrics)

	// Устанавливаем уровень логирования
	level := logger.ParseLogLevel(cfg.Logging.Level)
	if cfg.Debug {
		level = logger.DEBUG
	}
	logger.SetGlobalLevel(level)

	logger.Info("Build cache server starting...")
	logger.Info("Log level: %s", level.String())

	// Разрешаем топологию: подставляем переменные окружения и проверяем
	// инварианты. При провале печатаем все нарушения сразу, а не первое
	resolved, err := cfg.Resolve(os.LookupEnv)
	if err != nil {
		var validationErrors config.ValidationErrors
		if errors.As(err, &validationErrors) {
			logger.Error("Configuration is invalid, %d problem(s) found:", len(validationErrors))
			for _, problem := range validationErrors {
				logger.Error("  - %s", problem.Error())
			}
			os.Exit(1)
		}
		log.Fatalf("Failed to resolve configuration: %v", err)
	}

	// Создаем storage manager
	backendManager, err := storage.NewManager(resolved, cfg.HealthCheck)
	if err != nil {
		log.Fatalf("Failed to create storage manager: %v", err)
	}

	// Создаем и запускаем модуль мониторинга. Менеджер бэкендов передается
	// как источник готовности: процесс готов, пока жив хотя бы один бэкенд
	var monitor *monitoring.Monitor
	if cfg.Monitoring.Enabled {
		monitor, err = monitoring.New(&cfg.Monitoring, backendManager)
		if err != nil {
			log.Fatalf("Failed to create monitoring module: %v", err)
		}

		err = monitor.Start()
		if err != nil {
			log.Fatalf("Failed to start monitoring module: %v", err)
		}

		logger.Info("Monitoring enabled on %s", cfg.Monitoring.ListenAddress)
	} else {
		logger.Info("Monitoring disabled")
	}

	// Проверяем связность с бэкендами до приема трафика: процесс не должен
	// подниматься поверх заведомо недостижимых бакетов
	testCtx, testCancel := context.WithTimeout(context.Background(), connectivityTestTimeout)
	err = backendManager.TestAll(testCtx)
	testCancel()
	if err != nil {
		log.Fatalf("Backend connectivity test failed: %v", err)
	}

	// Запускаем фоновые проверки здоровья
	if *disableHealthChecks {
		logger.Info("Background health checks disabled")
	} else {
		if err := backendManager.Start(); err != nil {
			log.Fatalf("Failed to start storage manager: %v", err)
		}
	}

	// Создаем маршрутизатор токенов и аутентификатор
	router, err := routing.NewRouter(resolved, backendManager.Stores())
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	authenticator, err := auth.NewBearerAuthenticator(router)
	if err != nil {
		log.Fatalf("Failed to create authenticator: %v", err)
	}

	// Создаем HTTP сервер кеша
	serverConfig := server.DefaultConfig()
	serverConfig.ListenAddress = fmt.Sprintf(":%d", resolved.Port)
	if *listenAddr != "" {
		serverConfig.ListenAddress = *listenAddr
	}
	serverConfig.TLSCertFile = *tlsCert
	serverConfig.TLSKeyFile = *tlsKey

	cacheServer, err := server.New(serverConfig, authenticator)
	if err != nil {
		log.Fatalf("Failed to create cache server: %v", err)
	}

	logger.Info("Configuration:")
	logger.Info("  Listen Address: %s", serverConfig.ListenAddress)
	logger.Info("  Backends: %d", len(resolved.Buckets))
	logger.Info("  Service Tokens: %d", len(resolved.Tokens))
	if serverConfig.TLSCertFile != "" {
		logger.Info("  TLS Enabled: Yes")
		logger.Info("  TLS Cert: %s", serverConfig.TLSCertFile)
		logger.Info("  TLS Key: %s", serverConfig.TLSKeyFile)
	} else {
		logger.Info("  TLS Enabled: No")
	}

	// Настраиваем graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем сервер в отдельной горутине
	go func() {
		if err := cacheServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	logger.Info("Build cache server started successfully")
	if monitor != nil && monitor.IsEnabled() {
		logger.Info("Metrics available at: %s", cfg.Monitoring.ListenAddress)
	}

	// Ждем сигнал для остановки
	sig := <-sigChan
	logger.Info("Received signal %v, shutting down...", sig)

	// Сначала снимаем готовность, чтобы балансировщик перестал направлять
	// трафик на останавливающийся процесс
	if monitor != nil {
		monitor.SetShuttingDown(true)
	}

	// Создаем контекст с таймаутом для graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Останавливаем HTTP сервер
	if err := cacheServer.Stop(ctx); err != nil {
		logger.Error("Error stopping cache server: %v", err)
	}

	// Останавливаем storage manager
	if backendManager.IsRunning() {
		if err := backendManager.Stop(); err != nil {
			logger.Error("Error stopping storage manager: %v", err)
		}
	}

	// Останавливаем мониторинг
	if monitor != nil {
		if err := monitor.Stop(ctx); err != nil {
			logger.Error("Error stopping monitoring: %v", err)
		}
	}

	logger.Info("Build cache server stopped")
}

// applyCommandLineOverrides применяет переопределения из командной строки
func applyCommandLineOverrides(cfg *config.Config,
	logLevel string, debugMode bool, metricsAddr string, disableMetrics bool) {

	// Переопределения логирования
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		logger.Debug("Override: logging.level = %s", logLevel)
	}

	if debugMode {
		cfg.Debug = true
		logger.Debug("Override: debug = true")
	}

	// Переопределения мониторинга
	if metricsAddr != "" {
		cfg.Monitoring.ListenAddress = metricsAddr
		logger.Debug("Override: monitoring.listenAddress = %s", metricsAddr)
	}

	if disableMetrics {
		cfg.Monitoring.Enabled = false
		logger.Debug("Override: monitoring.enabled = false")
	}
}
