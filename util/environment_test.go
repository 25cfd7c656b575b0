package util

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentDefaults(t *testing.T) {
	for _, k := range []string{"PERSIST_METHOD", "REDIS_HOST", "REDIS_PORT", "REST_PORT", "NATS_URL"} {
		// restored by t.Setenv when the test ends
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	e, err := LoadEnvironment()
	require.NoError(t, err)
	assert.Equal(t, PersistMemory, e.GetPersistMethod())
	assert.Equal(t, "localhost:6379", e.GetRedisAddr())
	assert.Equal(t, 8080, e.GetRestPort())
	assert.Equal(t, "", e.GetNatsURL())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PERSIST_METHOD", "REDIS")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("LOG_LEVEL", "debug")
	e, err := LoadEnvironment()
	require.NoError(t, err)
	assert.Equal(t, PersistRedis, e.GetPersistMethod())
	assert.Equal(t, "cache:6380", e.GetRedisAddr())
	assert.Equal(t, zerolog.DebugLevel, e.GetZeroLogLogLevel())
}

func TestLoadEnvironmentInvalidPort(t *testing.T) {
	t.Setenv("REDIS_PORT", "not-a-port")
	_, err := LoadEnvironment()
	assert.Error(t, err)
}

func TestInvalidPersistMethodPanics(t *testing.T) {
	e := &Environment{PersistMethod: "floppy"}
	assert.Panics(t, func() { e.GetPersistMethod() })
}
