package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envLookup строит EnvLookup поверх словаря, чтобы тесты не зависели
// от реального окружения процесса
func envLookup(env map[string]string) EnvLookup {
	return func(name string) (string, bool) {
		value, ok := env[name]
		return value, ok
	}
}

// validConfig возвращает минимальную корректную конфигурацию,
// от которой отталкиваются отдельные тесты
func validConfig() *Config {
	config := DefaultConfig()
	config.Buckets = []BucketConfig{
		{
			Name:       "main",
			BucketName: "cache-1",
			Region:     "us-west-2",
			Timeout:    30,
		},
	}
	config.ServiceAccessTokens = []ServiceTokenConfig{
		{
			Name:        "t1",
			Bucket:      "main",
			Prefix:      "/ci",
			AccessToken: "secret-abc",
		},
	}
	return config
}

func requireValidationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()

	require.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	return verrs
}

func TestResolveSuccess(t *testing.T) {
	resolved, err := validConfig().Resolve(envLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, 3000, resolved.Port)
	assert.False(t, resolved.Debug)

	require.Len(t, resolved.Buckets, 1)
	bucket := resolved.Buckets[0]
	assert.Equal(t, "main", bucket.Name)
	assert.Equal(t, "cache-1", bucket.BucketName)
	assert.Equal(t, "us-west-2", bucket.Region)
	assert.Equal(t, 30*time.Second, bucket.Timeout)
	assert.False(t, bucket.HasStaticCredentials())

	require.Len(t, resolved.Tokens, 1)
	token := resolved.Tokens[0]
	assert.Equal(t, "t1", token.Name)
	assert.Equal(t, "main", token.Bucket)
	assert.Equal(t, "/ci", token.Prefix)
	assert.Equal(t, "secret-abc", token.AccessToken)

	byName, ok := resolved.Bucket("main")
	require.True(t, ok)
	assert.Equal(t, "cache-1", byName.BucketName)

	bySecret, ok := resolved.TokenBySecret("secret-abc")
	require.True(t, ok)
	assert.Equal(t, "t1", bySecret.Name)

	_, ok = resolved.TokenBySecret("wrong-token")
	assert.False(t, ok)
}

func TestResolveCredentialsFromEnvironment(t *testing.T) {
	config := validConfig()
	config.Buckets[0].AccessKeyIDEnv = "CACHE_ACCESS_KEY"
	config.Buckets[0].SecretAccessKeyEnv = "CACHE_SECRET_KEY"
	config.ServiceAccessTokens[0].AccessToken = ""
	config.ServiceAccessTokens[0].AccessTokenEnv = "CACHE_TOKEN"

	resolved, err := config.Resolve(envLookup(map[string]string{
		"CACHE_ACCESS_KEY": "AKIAEXAMPLE",
		"CACHE_SECRET_KEY": "topsecret",
		"CACHE_TOKEN":      "secret-abc",
	}))
	require.NoError(t, err)

	bucket := resolved.Buckets[0]
	assert.Equal(t, "AKIAEXAMPLE", bucket.AccessKeyID)
	assert.Equal(t, "topsecret", bucket.SecretAccessKey)
	assert.True(t, bucket.HasStaticCredentials())
	assert.Equal(t, "secret-abc", resolved.Tokens[0].AccessToken)
}

func TestResolveLiteralWinsOverEnvironment(t *testing.T) {
	config := validConfig()
	config.Buckets[0].AccessKeyID = "literal-key"
	config.Buckets[0].AccessKeyIDEnv = "CACHE_ACCESS_KEY"
	config.Buckets[0].SecretAccessKey = "literal-secret"

	// Переменная установлена в другое значение: выиграть должен литерал
	resolved, err := config.Resolve(envLookup(map[string]string{
		"CACHE_ACCESS_KEY": "env-key",
	}))
	require.NoError(t, err)
	assert.Equal(t, "literal-key", resolved.Buckets[0].AccessKeyID)

	// При заданном литерале переменная не читается вовсе, поэтому ее
	// отсутствие не является ошибкой
	resolved, err = config.Resolve(envLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, "literal-key", resolved.Buckets[0].AccessKeyID)
}

func TestResolveUnsetEnvironmentVariable(t *testing.T) {
	config := validConfig()
	config.Buckets[0].AccessKeyIDEnv = "CACHE_MISSING_KEY"
	config.Buckets[0].SecretAccessKey = "topsecret"

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 1)
	assert.Equal(t, `bucket "main"`, verrs[0].Entity)
	assert.Equal(t, "accessKeyIdEnv", verrs[0].Field)
	// Ошибка называет точное имя переменной
	assert.Contains(t, verrs[0].Message, "CACHE_MISSING_KEY")
	assert.Contains(t, verrs[0].Message, "not set")
}

func TestResolveEmptyEnvironmentVariable(t *testing.T) {
	config := validConfig()
	config.ServiceAccessTokens[0].AccessToken = ""
	config.ServiceAccessTokens[0].AccessTokenEnv = "CACHE_TOKEN"

	_, err := config.Resolve(envLookup(map[string]string{"CACHE_TOKEN": ""}))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 1)
	assert.Equal(t, "accessTokenEnv", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "CACHE_TOKEN")
	assert.Contains(t, verrs[0].Message, "empty")
}

func TestResolveDuplicateBearerValues(t *testing.T) {
	config := validConfig()
	config.ServiceAccessTokens = append(config.ServiceAccessTokens, ServiceTokenConfig{
		Name:        "t2",
		Bucket:      "main",
		Prefix:      "/other",
		AccessToken: "secret-abc",
	})

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 1)
	assert.Equal(t, `service token "t2"`, verrs[0].Entity)
	assert.Contains(t, verrs[0].Message, `"t1"`)
	// Значение секрета не должно попадать в сообщение об ошибке
	assert.NotContains(t, verrs[0].Error(), "secret-abc")
}

func TestResolveMissingToken(t *testing.T) {
	config := validConfig()
	config.ServiceAccessTokens[0].AccessToken = ""
	config.ServiceAccessTokens[0].AccessTokenEnv = ""

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 1)
	assert.Equal(t, "accessToken", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "either accessToken or accessTokenEnv")
}

func TestResolveCredentialPair(t *testing.T) {
	tests := []struct {
		name      string
		accessKey string
		secretKey string
		wantErr   bool
	}{
		{"both present", "AKIAEXAMPLE", "topsecret", false},
		{"both absent", "", "", false},
		{"lone access key", "AKIAEXAMPLE", "", true},
		{"lone secret key", "", "topsecret", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := validConfig()
			config.Buckets[0].AccessKeyID = test.accessKey
			config.Buckets[0].SecretAccessKey = test.secretKey

			_, err := config.Resolve(envLookup(nil))
			if !test.wantErr {
				require.NoError(t, err)
				return
			}
			verrs := requireValidationErrors(t, err)
			require.Len(t, verrs, 1)
			assert.Contains(t, verrs[0].Message, "provided together")
		})
	}
}

func TestResolveSessionTokenRequiresKeyPair(t *testing.T) {
	config := validConfig()
	config.Buckets[0].SessionToken = "session-token"

	// Сессионный токен без статической пары ключей отбрасывается
	resolved, err := config.Resolve(envLookup(nil))
	require.NoError(t, err)
	assert.Empty(t, resolved.Buckets[0].SessionToken)

	config.Buckets[0].AccessKeyID = "AKIAEXAMPLE"
	config.Buckets[0].SecretAccessKey = "topsecret"

	resolved, err = config.Resolve(envLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, "session-token", resolved.Buckets[0].SessionToken)
}

func TestResolveDanglingBucketReference(t *testing.T) {
	config := validConfig()
	config.ServiceAccessTokens[0].Bucket = "nonexistent"

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 1)
	// Ошибка называет и токен, и отсутствующий бэкенд
	assert.Equal(t, `service token "t1"`, verrs[0].Entity)
	assert.Contains(t, verrs[0].Message, `"nonexistent"`)
}

func TestResolveDuplicateBucketNames(t *testing.T) {
	config := validConfig()
	config.Buckets = append(config.Buckets, BucketConfig{
		Name:       "main",
		BucketName: "cache-2",
		Timeout:    30,
	})

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 1)
	assert.Contains(t, verrs[0].Message, "duplicate bucket name")
}

func TestResolveDuplicateTokenNames(t *testing.T) {
	config := validConfig()
	config.ServiceAccessTokens = append(config.ServiceAccessTokens, ServiceTokenConfig{
		Name:        "t1",
		Bucket:      "main",
		AccessToken: "secret-def",
	})

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 1)
	assert.Contains(t, verrs[0].Message, "duplicate service token name")
}

func TestResolveEmptyNames(t *testing.T) {
	config := validConfig()
	config.Buckets[0].Name = ""
	config.ServiceAccessTokens[0].Bucket = ""
	config.ServiceAccessTokens[0].Name = ""

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	// Пустые имена именуются позиционно
	entities := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		entities = append(entities, ve.Entity)
	}
	assert.Contains(t, entities, "buckets[0]")
	assert.Contains(t, entities, "serviceAccessTokens[0]")
}

func TestResolveEmptyTopology(t *testing.T) {
	config := DefaultConfig()

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	require.Len(t, verrs, 2)
	assert.Contains(t, verrs[0].Message, "at least one bucket")
	assert.Contains(t, verrs[1].Message, "at least one service access token")
}

func TestResolveCollectsAllViolations(t *testing.T) {
	// Один документ с нарушениями в разных местах: проход должен
	// собрать их все, а не остановиться на первом
	config := DefaultConfig()
	config.Port = 0
	config.Buckets = []BucketConfig{
		{Name: "main", BucketName: "", Timeout: 30, AccessKeyID: "AKIAEXAMPLE"},
		{Name: "main", BucketName: "cache-2", Timeout: 30},
	}
	config.ServiceAccessTokens = []ServiceTokenConfig{
		{Name: "t1", Bucket: "missing", AccessToken: "secret-abc"},
		{Name: "t2", Bucket: "main", AccessTokenEnv: "CACHE_UNSET_TOKEN"},
	}

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)

	var messages []string
	for _, ve := range verrs {
		messages = append(messages, ve.Error())
	}
	combined := fmt.Sprint(messages)

	assert.Contains(t, combined, "bucketName")
	assert.Contains(t, combined, "provided together")
	assert.Contains(t, combined, "duplicate bucket name")
	assert.Contains(t, combined, `unknown bucket "missing"`)
	assert.Contains(t, combined, "CACHE_UNSET_TOKEN")
	assert.Contains(t, combined, "port")
	assert.GreaterOrEqual(t, len(verrs), 6)
}

func TestResolveDeterminism(t *testing.T) {
	config := validConfig()
	config.Buckets[0].AccessKeyIDEnv = "CACHE_ACCESS_KEY"
	config.Buckets[0].SecretAccessKeyEnv = "CACHE_SECRET_KEY"
	lookup := envLookup(map[string]string{
		"CACHE_ACCESS_KEY": "AKIAEXAMPLE",
		"CACHE_SECRET_KEY": "topsecret",
	})

	first, err := config.Resolve(lookup)
	require.NoError(t, err)
	second, err := config.Resolve(lookup)
	require.NoError(t, err)

	// Повторное разрешение при том же окружении дает идентичную топологию
	assert.Equal(t, first, second)
}

func TestResolveInvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		config := validConfig()
		config.Port = port

		_, err := config.Resolve(envLookup(nil))
		verrs := requireValidationErrors(t, err)
		require.Len(t, verrs, 1)
		assert.Equal(t, "port", verrs[0].Field)
	}
}

func TestResolveInvalidLogLevel(t *testing.T) {
	config := validConfig()
	config.Logging.Level = "verbose"

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)
	require.Len(t, verrs, 1)
	assert.Equal(t, "logging.level", verrs[0].Field)
}

func TestResolveInvalidHealthCheck(t *testing.T) {
	config := validConfig()
	config.HealthCheck.Interval = 0

	_, err := config.Resolve(envLookup(nil))
	verrs := requireValidationErrors(t, err)
	require.Len(t, verrs, 1)
	assert.Equal(t, "healthCheck", verrs[0].Field)
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"/", ""},
		{"//", ""},
		{"ci", "/ci"},
		{"/ci", "/ci"},
		{"ci/", "/ci"},
		{"/ci/", "/ci"},
		{"//ci//", "/ci"},
		{"/team1/subteam", "/team1/subteam"},
		{"team1/subteam/", "/team1/subteam"},
		{"  /ci  ", "/ci"},
		{"   ", ""},
	}

	for _, test := range tests {
		result := normalizePrefix(test.input)
		assert.Equal(t, test.expected, result, "normalizePrefix(%q)", test.input)

		// Нормализация идемпотентна
		assert.Equal(t, result, normalizePrefix(result), "normalizePrefix(%q) is not idempotent", test.input)
	}
}

func TestResolveNormalizesPrefixes(t *testing.T) {
	config := validConfig()
	config.ServiceAccessTokens[0].Prefix = "ci/"

	resolved, err := config.Resolve(envLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, "/ci", resolved.Tokens[0].Prefix)
}
