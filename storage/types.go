package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound возвращается операциями чтения для отсутствующего
// объекта. Обработчики HTTP сопоставляют его с кодом ответа через errors.Is
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo описывает метаданные объекта без его содержимого
type ObjectInfo struct {
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectStore - единый набор операций над объектами, который
// маршрутизатор выдает обработчикам. Каждая реализация привязана
// к одному бакету
type ObjectStore interface {
	// Exists проверяет наличие объекта
	Exists(ctx context.Context, key string) (bool, error)

	// Head возвращает метаданные объекта или ErrObjectNotFound
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Get открывает потоковое чтение объекта. Вызывающий обязан
	// закрыть возвращенный reader
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Put потоково записывает объект. size < 0 означает, что размер
	// заранее неизвестен
	Put(ctx context.Context, key string, body io.Reader, size int64) error
}

// BackendState представляет состояние бэкенда
type BackendState string

const (
	StateUp      BackendState = "UP"      // Бэкенд полностью работоспособен
	StateDown    BackendState = "DOWN"    // Бэкенд недоступен
	StateProbing BackendState = "PROBING" // Промежуточное состояние - проверка восстановления
)

// String возвращает строковое представление состояния
func (s BackendState) String() string {
	return string(s)
}

// ToFloat64 возвращает числовое представление состояния для метрик Prometheus
func (s BackendState) ToFloat64() float64 {
	switch s {
	case StateUp:
		return 1.0
	case StateProbing:
		return 0.5
	default:
		return 0.0
	}
}

// CountingReader оборачивает io.Reader и считает прочитанные байты
type CountingReader struct {
	reader io.Reader
	count  int64
}

// NewCountingReader создает новый CountingReader
func NewCountingReader(reader io.Reader) *CountingReader {
	return &CountingReader{reader: reader}
}

// Read реализует io.Reader и считает байты
func (cr *CountingReader) Read(p []byte) (n int, err error) {
	n, err = cr.reader.Read(p)
	cr.count += int64(n)
	return n, err
}

// Count возвращает количество прочитанных байт
func (cr *CountingReader) Count() int64 {
	return cr.count
}
