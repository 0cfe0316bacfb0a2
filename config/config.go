package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"buildcache/monitoring"
)

// Таймаут операций с бэкендом по умолчанию, в секундах
const defaultBucketTimeout = 30

// BucketConfig описывает один S3-совместимый бэкенд хранилища
type BucketConfig struct {
	// Name - логическое имя бэкенда, на него ссылаются сервисные токены
	Name string `yaml:"name"`

	// BucketName - имя бакета на стороне хранилища
	BucketName string `yaml:"bucketName"`

	// Region - регион хранилища (опционально, иначе цепочка SDK по умолчанию)
	Region string `yaml:"region"`

	// Каждое секретное поле задается либо литералом, либо именем
	// переменной окружения, из которой значение читается при старте
	AccessKeyID        string `yaml:"accessKeyId"`
	AccessKeyIDEnv     string `yaml:"accessKeyIdEnv"`
	SecretAccessKey    string `yaml:"secretAccessKey"`
	SecretAccessKeyEnv string `yaml:"secretAccessKeyEnv"`
	SessionToken       string `yaml:"sessionToken"`
	SessionTokenEnv    string `yaml:"sessionTokenEnv"`

	// EndpointURL - адрес S3-совместимого сервиса (MinIO, LocalStack и т.д.)
	EndpointURL string `yaml:"endpointUrl"`

	// ForcePathStyle - использовать path-style адресацию вместо virtual-host
	ForcePathStyle bool `yaml:"forcePathStyle"`

	// Timeout - таймаут операций с бэкендом в секундах
	Timeout int `yaml:"timeout"`
}

// ServiceTokenConfig описывает один сервисный токен доступа к кешу
type ServiceTokenConfig struct {
	// Name - имя токена, используется только в диагностике и логах
	Name string `yaml:"name"`

	// Bucket - ссылка на buckets[].name
	Bucket string `yaml:"bucket"`

	// Prefix - префикс ключей внутри бакета, пустой означает корень
	Prefix string `yaml:"prefix"`

	// Значение bearer-токена литералом или именем переменной окружения
	AccessToken    string `yaml:"accessToken"`
	AccessTokenEnv string `yaml:"accessTokenEnv"`
}

// LoggingConfig содержит конфигурацию логирования
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// HealthCheckConfig содержит настройки фоновой проверки бэкендов
type HealthCheckConfig struct {
	// Interval - интервал между проверками в секундах
	Interval int `yaml:"interval"`

	// CheckTimeout - таймаут одной проверки в секундах
	CheckTimeout int `yaml:"checkTimeout"`

	// FailureThreshold - число подряд неудачных проверок до перехода в DOWN
	FailureThreshold int `yaml:"failureThreshold"`

	// SuccessThreshold - число подряд успешных проверок до перехода в UP
	SuccessThreshold int `yaml:"successThreshold"`
}

// IntervalDuration возвращает интервал проверки как time.Duration
func (h HealthCheckConfig) IntervalDuration() time.Duration {
	return time.Duration(h.Interval) * time.Second
}

// CheckTimeoutDuration возвращает таймаут одной проверки как time.Duration
func (h HealthCheckConfig) CheckTimeoutDuration() time.Duration {
	return time.Duration(h.CheckTimeout) * time.Second
}

// Validate проверяет корректность настроек фоновой проверки
func (h HealthCheckConfig) Validate() error {
	if h.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if h.CheckTimeout <= 0 {
		return fmt.Errorf("checkTimeout must be positive")
	}
	if h.FailureThreshold < 1 {
		return fmt.Errorf("failureThreshold must be at least 1")
	}
	if h.SuccessThreshold < 1 {
		return fmt.Errorf("successThreshold must be at least 1")
	}
	return nil
}

// DefaultHealthCheckConfig возвращает настройки фоновой проверки по умолчанию
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Interval:         15,
		CheckTimeout:     5,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

// Config - корень конфигурационного документа
type Config struct {
	// Port - порт HTTP сервера кеша
	Port int `yaml:"port"`

	// Debug принудительно включает уровень логирования DEBUG
	Debug bool `yaml:"debug"`

	// Logging - конфигурация логирования
	Logging LoggingConfig `yaml:"logging"`

	// Monitoring - конфигурация сервера метрик
	Monitoring monitoring.Config `yaml:"monitoring"`

	// HealthCheck - настройки фоновой проверки бэкендов
	HealthCheck HealthCheckConfig `yaml:"healthCheck"`

	// Buckets - список бэкендов хранилища
	Buckets []BucketConfig `yaml:"buckets"`

	// ServiceAccessTokens - список сервисных токенов доступа
	ServiceAccessTokens []ServiceTokenConfig `yaml:"serviceAccessTokens"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Port:  3000,
		Debug: false,
		Logging: LoggingConfig{
			Level: "info",
		},
		Monitoring:  *monitoring.DefaultConfig(),
		HealthCheck: DefaultHealthCheckConfig(),
	}
}

// Load загружает конфигурационный документ из файла. Переменные окружения
// на этом этапе не читаются: подстановка и проверка выполняются в Resolve
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	// Начинаем с конфигурации по умолчанию
	config := DefaultConfig()

	// Неизвестные поля считаем ошибкой, чтобы опечатка в имени поля
	// не превращалась молча в значение по умолчанию
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	// Значения по умолчанию для элементов списков задаются после разбора
	for i := range config.Buckets {
		if config.Buckets[i].Timeout == 0 {
			config.Buckets[i].Timeout = defaultBucketTimeout
		}
	}

	return config, nil
}
