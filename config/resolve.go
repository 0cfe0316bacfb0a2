package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvLookup - функция поиска переменной окружения. Сигнатура совпадает
// с os.LookupEnv, в тестах подменяется на словарь
type EnvLookup func(name string) (string, bool)

// Resolve выполняет один полный проход по документу: подставляет значения
// из переменных окружения, нормализует префиксы и проверяет все структурные
// инварианты. Проход не прерывается на первой ошибке: возвращается либо
// неизменяемая топология, либо полный список нарушений (ValidationErrors).
// lookup == nil означает os.LookupEnv
func (c *Config) Resolve(lookup EnvLookup) (*ResolvedConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var errs ValidationErrors

	// Бэкенды: разрешение учетных данных и инварианты имен
	buckets := make([]ResolvedBucket, 0, len(c.Buckets))
	bucketNames := make(map[string]bool, len(c.Buckets))
	for i := range c.Buckets {
		b := &c.Buckets[i]
		entity := bucketEntity(i, b.Name)

		if b.Name == "" {
			errs = append(errs, ValidationError{Entity: entity, Field: "name", Message: "must not be empty"})
		} else if bucketNames[b.Name] {
			errs = append(errs, ValidationError{Entity: entity, Field: "name", Message: fmt.Sprintf("duplicate bucket name %q", b.Name)})
		} else {
			bucketNames[b.Name] = true
		}

		if b.BucketName == "" {
			errs = append(errs, ValidationError{Entity: entity, Field: "bucketName", Message: "must not be empty"})
		}

		if b.Timeout <= 0 {
			errs = append(errs, ValidationError{Entity: entity, Field: "timeout", Message: "must be positive"})
		}

		accessKey, akErr := resolveOptional(entity, "accessKeyId", b.AccessKeyID, b.AccessKeyIDEnv, lookup)
		if akErr != nil {
			errs = append(errs, *akErr)
		}
		secretKey, skErr := resolveOptional(entity, "secretAccessKey", b.SecretAccessKey, b.SecretAccessKeyEnv, lookup)
		if skErr != nil {
			errs = append(errs, *skErr)
		}
		sessionToken, stErr := resolveOptional(entity, "sessionToken", b.SessionToken, b.SessionTokenEnv, lookup)
		if stErr != nil {
			errs = append(errs, *stErr)
		}

		// Ключ доступа и секретный ключ задаются только парой. Проверяем
		// парность лишь тогда, когда оба поля разрешились без ошибок,
		// чтобы не дублировать уже собранные нарушения
		if akErr == nil && skErr == nil && (accessKey != "") != (secretKey != "") {
			errs = append(errs, ValidationError{
				Entity:  entity,
				Field:   "accessKeyId",
				Message: "accessKeyId and secretAccessKey must be provided together",
			})
		}

		// Сессионный токен без статической пары ключей не имеет смысла
		// и не передается в SDK
		if accessKey == "" || secretKey == "" {
			sessionToken = ""
		}

		buckets = append(buckets, ResolvedBucket{
			Name:            b.Name,
			BucketName:      b.BucketName,
			Region:          b.Region,
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			SessionToken:    sessionToken,
			EndpointURL:     b.EndpointURL,
			ForcePathStyle:  b.ForcePathStyle,
			Timeout:         time.Duration(b.Timeout) * time.Second,
		})
	}

	// Сервисные токены: разрешение bearer-значений, нормализация префиксов,
	// инварианты имен, ссылок и уникальности секретов
	tokens := make([]ResolvedToken, 0, len(c.ServiceAccessTokens))
	tokenNames := make(map[string]bool, len(c.ServiceAccessTokens))
	secretOwners := make(map[string]string, len(c.ServiceAccessTokens))
	for i := range c.ServiceAccessTokens {
		t := &c.ServiceAccessTokens[i]
		entity := tokenEntity(i, t.Name)

		if t.Name == "" {
			errs = append(errs, ValidationError{Entity: entity, Field: "name", Message: "must not be empty"})
		} else if tokenNames[t.Name] {
			errs = append(errs, ValidationError{Entity: entity, Field: "name", Message: fmt.Sprintf("duplicate service token name %q", t.Name)})
		} else {
			tokenNames[t.Name] = true
		}

		if t.Bucket == "" {
			errs = append(errs, ValidationError{Entity: entity, Field: "bucket", Message: "must not be empty"})
		} else if !bucketNames[t.Bucket] {
			errs = append(errs, ValidationError{Entity: entity, Field: "bucket", Message: fmt.Sprintf("references unknown bucket %q", t.Bucket)})
		}

		secret, secErr := resolveRequired(entity, "accessToken", t.AccessToken, t.AccessTokenEnv, lookup)
		if secErr != nil {
			errs = append(errs, *secErr)
		} else {
			// Два токена с одинаковым секретом сделали бы маршрутизацию
			// неоднозначной. Само значение секрета в сообщение не попадает
			if owner, dup := secretOwners[secret]; dup {
				errs = append(errs, ValidationError{
					Entity:  entity,
					Field:   "accessToken",
					Message: fmt.Sprintf("duplicate bearer token value, already used by service token %q", owner),
				})
			} else {
				secretOwners[secret] = t.Name
			}
		}

		tokens = append(tokens, ResolvedToken{
			Name:        t.Name,
			Bucket:      t.Bucket,
			Prefix:      normalizePrefix(t.Prefix),
			AccessToken: secret,
		})
	}

	if len(c.Buckets) == 0 {
		errs = append(errs, ValidationError{Entity: "config", Field: "buckets", Message: "at least one bucket must be configured"})
	}
	if len(c.ServiceAccessTokens) == 0 {
		errs = append(errs, ValidationError{Entity: "config", Field: "serviceAccessTokens", Message: "at least one service access token must be configured"})
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{Entity: "config", Field: "port", Message: "must be between 1 and 65535"})
	}

	if !isValidLogLevel(c.Logging.Level) {
		errs = append(errs, ValidationError{Entity: "config", Field: "logging.level", Message: fmt.Sprintf("unknown log level %q", c.Logging.Level)})
	}

	if err := c.Monitoring.Validate(); err != nil {
		errs = append(errs, ValidationError{Entity: "config", Field: "monitoring", Message: err.Error()})
	}

	if err := c.HealthCheck.Validate(); err != nil {
		errs = append(errs, ValidationError{Entity: "config", Field: "healthCheck", Message: err.Error()})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return newResolvedConfig(c.Port, c.Debug, buckets, tokens), nil
}

// resolveOptional разрешает секретное поле, которое может отсутствовать.
// Литерал имеет приоритет над ссылкой на переменную окружения. Ссылка на
// неустановленную или пустую переменную - всегда фатальная ошибка, даже
// для опционального поля: молчаливый пропуск маскировал бы опечатку в
// имени переменной
func resolveOptional(entity, field, literal, envName string, lookup EnvLookup) (string, *ValidationError) {
	if literal != "" {
		return literal, nil
	}
	if envName == "" {
		return "", nil
	}

	value, ok := lookup(envName)
	if !ok {
		return "", &ValidationError{
			Entity:  entity,
			Field:   field + "Env",
			Message: fmt.Sprintf("environment variable %q is not set", envName),
		}
	}
	if value == "" {
		return "", &ValidationError{
			Entity:  entity,
			Field:   field + "Env",
			Message: fmt.Sprintf("environment variable %q is set but empty", envName),
		}
	}
	return value, nil
}

// resolveRequired разрешает поле, у которого нет запасного механизма
// обнаружения: значение обязано появиться из литерала или переменной
func resolveRequired(entity, field, literal, envName string, lookup EnvLookup) (string, *ValidationError) {
	value, verr := resolveOptional(entity, field, literal, envName, lookup)
	if verr != nil {
		return "", verr
	}
	if value == "" {
		return "", &ValidationError{
			Entity:  entity,
			Field:   field,
			Message: fmt.Sprintf("either %s or %sEnv must be set", field, field),
		}
	}
	return value, nil
}

// normalizePrefix приводит префикс к каноническому виду: непустой префикс
// начинается ровно с одного разделителя и не заканчивается разделителем,
// пустой остается пустым и означает корень бакета. Один лишь "/" - это
// тоже корень. Функция идемпотентна
func normalizePrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

func bucketEntity(index int, name string) string {
	if name == "" {
		return fmt.Sprintf("buckets[%d]", index)
	}
	return fmt.Sprintf("bucket %q", name)
}

func tokenEntity(index int, name string) string {
	if name == "" {
		return fmt.Sprintf("serviceAccessTokens[%d]", index)
	}
	return fmt.Sprintf("service token %q", name)
}

// isValidLogLevel проверяет корректность уровня логирования
func isValidLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
