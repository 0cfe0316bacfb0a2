package config

import "time"

// ResolvedBucket - полностью разрешенное описание бэкенда хранилища.
// Все переменные окружения уже подставлены, таймаут переведен в Duration
type ResolvedBucket struct {
	Name            string
	BucketName      string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	EndpointURL     string
	ForcePathStyle  bool
	Timeout         time.Duration
}

// HasStaticCredentials сообщает, задана ли статическая пара ключей.
// Без пары бэкенд использует цепочку провайдеров SDK
func (b *ResolvedBucket) HasStaticCredentials() bool {
	return b.AccessKeyID != "" && b.SecretAccessKey != ""
}

// ResolvedToken - разрешенный сервисный токен, привязанный к одному
// бэкенду и одному префиксу
type ResolvedToken struct {
	Name        string
	Bucket      string
	Prefix      string
	AccessToken string
}

// ResolvedConfig - проверенная топология процесса: бэкенды и токены.
// Строится ровно один раз при старте и далее не изменяется, поэтому
// безопасно разделяется всеми обработчиками запросов без блокировок
type ResolvedConfig struct {
	Port  int
	Debug bool

	// Buckets и Tokens сохраняют порядок документа для детерминированных
	// логов и стабильной диагностики
	Buckets []ResolvedBucket
	Tokens  []ResolvedToken

	bucketByName  map[string]*ResolvedBucket
	tokenBySecret map[string]*ResolvedToken
}

func newResolvedConfig(port int, debug bool, buckets []ResolvedBucket, tokens []ResolvedToken) *ResolvedConfig {
	resolved := &ResolvedConfig{
		Port:          port,
		Debug:         debug,
		Buckets:       buckets,
		Tokens:        tokens,
		bucketByName:  make(map[string]*ResolvedBucket, len(buckets)),
		tokenBySecret: make(map[string]*ResolvedToken, len(tokens)),
	}
	for i := range resolved.Buckets {
		bucket := &resolved.Buckets[i]
		resolved.bucketByName[bucket.Name] = bucket
	}
	for i := range resolved.Tokens {
		token := &resolved.Tokens[i]
		resolved.tokenBySecret[token.AccessToken] = token
	}
	return resolved
}

// Bucket возвращает бэкенд по логическому имени
func (c *ResolvedConfig) Bucket(name string) (*ResolvedBucket, bool) {
	bucket, ok := c.bucketByName[name]
	return bucket, ok
}

// TokenBySecret возвращает сервисный токен по значению bearer-секрета
func (c *ResolvedConfig) TokenBySecret(secret string) (*ResolvedToken, bool) {
	token, ok := c.tokenBySecret[secret]
	return token, ok
}
