package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/middleware"
	"github.com/cenkalti/backoff/v4"

	"buildcache/config"
	"buildcache/logger"
)

const (
	// Размер части многочастевой загрузки. Тело больше одной части
	// uploader отправляет по частям, удерживая память в пределах
	// нескольких буферов этого размера
	putPartSize    = 8 * 1024 * 1024
	putConcurrency = 3

	// Политика повторов читающих операций
	maxRetries           = 3
	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// Backend - один S3-совместимый бэкенд, привязанный к конкретному бакету
type Backend struct {
	Name     string
	Bucket   string
	Endpoint string

	client          *s3.Client
	streamingClient *s3.Client // клиент без подписи тела для http:// эндпоинтов
	uploader        *manager.Uploader
	timeout         time.Duration
	metrics         *Metrics

	// Состояние фоновой проверки здоровья, защищено мьютексом
	mu                   sync.RWMutex
	state                BackendState
	lastError            error
	lastCheckTime        time.Time
	consecutiveFailures  int
	consecutiveSuccesses int
}

// newBackend создает и настраивает один бэкенд по разрешенной конфигурации
func newBackend(cfg *config.ResolvedBucket, metrics *Metrics) (*Backend, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.HasStaticCredentials() {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for backend %q: %w", cfg.Name, err)
	}

	// Регион либо задан явно, либо обнаружен цепочкой SDK; без него
	// клиент не сможет подписывать запросы
	if awsConfig.Region == "" {
		return nil, fmt.Errorf("backend %q: region is not configured and could not be discovered", cfg.Name)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	backend := &Backend{
		Name:     cfg.Name,
		Bucket:   cfg.BucketName,
		Endpoint: cfg.EndpointURL,
		client:   client,
		timeout:  cfg.Timeout,
		metrics:  metrics,
		state:    StateUp,
	}

	// Для http:// эндпоинтов создаем второй клиент: без вычисления SHA256
	// по телу SDK подписывает запрос как UNSIGNED-PAYLOAD и поток не
	// приходится буферизовать целиком
	if strings.HasPrefix(strings.ToLower(cfg.EndpointURL), "http://") {
		logger.Warn("Backend %q uses a plain HTTP endpoint, uploads will use an unsigned-payload client", cfg.Name)
		backend.streamingClient = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.UsePathStyle = cfg.ForcePathStyle
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
				return v4.RemoveComputePayloadSHA256Middleware(stack)
			})
		})
	}

	uploadClient := client
	if backend.streamingClient != nil {
		uploadClient = backend.streamingClient
	}
	backend.uploader = manager.NewUploader(uploadClient, func(u *manager.Uploader) {
		u.PartSize = putPartSize
		u.Concurrency = putConcurrency
	})

	logger.Debug("Created backend %q (bucket: %s, endpoint: %s, timeout: %v)",
		cfg.Name, cfg.BucketName, cfg.EndpointURL, cfg.Timeout)

	return backend, nil
}

// Exists проверяет наличие объекта в бакете
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.Head(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Head возвращает метаданные объекта без чтения содержимого
func (b *Backend) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	var out *s3.HeadObjectOutput
	err := b.retry(ctx, "HEAD", func() error {
		var err error
		out, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
	b.observe("HEAD", start, err, 0, 0)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat object %q on backend %q: %w", key, b.Name, err)
	}

	return headObjectInfo(out), nil
}

// Get открывает потоковое чтение объекта. Таймаут операции должен жить,
// пока потребитель читает поток, поэтому cancel привязан к Close
// возвращенного reader, а не к выходу из функции
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	opCtx, cancel := context.WithTimeout(ctx, b.timeout)

	start := time.Now()
	var out *s3.GetObjectOutput
	err := b.retry(opCtx, "GET", func() error {
		var err error
		out, err = b.client.GetObject(opCtx, &s3.GetObjectInput{
			Bucket: aws.String(b.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		cancel()
		b.observe("GET", start, err, 0, 0)
		if errors.Is(err, ErrObjectNotFound) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("failed to open object %q on backend %q: %w", key, b.Name, err)
	}

	info := &ObjectInfo{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}

	counting := NewCountingReader(out.Body)
	reader := &objectReader{
		reader:  counting,
		closer:  out.Body,
		cancel:  cancel,
		backend: b,
		start:   start,
	}
	return reader, info, nil
}

// Put потоково записывает объект. Uploader сам переключается на
// многочастевую загрузку, когда тело превышает размер одной части, и
// прерывает незавершенную загрузку при ошибке. Повторы на этом уровне
// невозможны: тело запроса уже прочитано
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	counting := NewCountingReader(body)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(key),
		Body:        counting,
		ContentType: aws.String("application/octet-stream"),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	_, err := b.uploader.Upload(ctx, input)
	err = classify(err)
	b.observe("PUT", start, err, 0, counting.Count())
	if err != nil {
		return fmt.Errorf("failed to upload object %q to backend %q: %w", key, b.Name, err)
	}

	logger.Debug("Backend %q: uploaded %q (%d bytes)", b.Name, key, counting.Count())
	return nil
}

// TestConnection проверяет доступность бакета. Используется при старте:
// процесс не должен принимать трафик, пока все бэкенды не подтверждены
func (b *Backend) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.Bucket),
	})
	if err != nil {
		return fmt.Errorf("backend %q: bucket %q is not reachable: %w", b.Name, b.Bucket, err)
	}
	return nil
}

// GetState возвращает текущее состояние бэкенда (потокобезопасно)
func (b *Backend) GetState() BackendState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// GetLastError возвращает последнюю ошибку проверки (потокобезопасно)
func (b *Backend) GetLastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastError
}

// GetLastCheckTime возвращает время последней проверки (потокобезопасно)
func (b *Backend) GetLastCheckTime() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastCheckTime
}

// retry выполняет операцию с ограниченным числом повторов и
// экспоненциальной задержкой. Повторяются только временные сбои;
// NotFound и клиентские ошибки прерывают цикл сразу
func (b *Backend) retry(ctx context.Context, operation string, call func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     retryInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         retryMaxInterval,
		Clock:               backoff.SystemClock,
	}, maxRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := classify(call())
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		logger.Debug("Backend %q: %s attempt %d failed with a transient error: %v", b.Name, operation, attempt, err)
		return err
	}, policy)
}

// observe обновляет метрики по завершенной операции
func (b *Backend) observe(operation string, start time.Time, err error, bytesRead, bytesWritten int64) {
	b.metrics.RequestsTotal.WithLabelValues(b.Name, operation, resultLabel(err)).Inc()
	b.metrics.RequestLatency.WithLabelValues(b.Name, operation).Observe(time.Since(start).Seconds())
	if bytesRead > 0 {
		b.metrics.BytesRead.WithLabelValues(b.Name).Add(float64(bytesRead))
	}
	if bytesWritten > 0 {
		b.metrics.BytesWritten.WithLabelValues(b.Name).Add(float64(bytesWritten))
	}
}

// classify переводит ошибку SDK в ошибки слоя хранилища. NotFound
// распознается и по типизированным ошибкам SDK, и по HTTP-коду ответа
func classify(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return ErrObjectNotFound
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrObjectNotFound
	}

	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound {
		return ErrObjectNotFound
	}

	return err
}

// isRetryable отделяет временные сбои (сетевые проблемы, 5xx) от ошибок,
// повтор которых бессмыслен
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return false
	}

	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		if code := httpErr.HTTPStatusCode(); code >= 400 && code < 500 {
			return false
		}
	}
	return true
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrObjectNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func headObjectInfo(out *s3.HeadObjectOutput) *ObjectInfo {
	info := &ObjectInfo{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info
}

// objectReader связывает жизненный цикл потока чтения с таймаутом
// операции: отмена контекста и запись метрик происходят при закрытии
type objectReader struct {
	reader  *CountingReader
	closer  io.Closer
	cancel  context.CancelFunc
	backend *Backend
	start   time.Time
	once    sync.Once
}

func (r *objectReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *objectReader) Close() error {
	var err error
	r.once.Do(func() {
		err = r.closer.Close()
		r.cancel()
		r.backend.observe("GET", r.start, nil, r.reader.Count(), 0)
	})
	return err
}
