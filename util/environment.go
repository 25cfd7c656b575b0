package util

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voyager.com/tiltengine/logging"
)

var environmentLogger = log.With().Str("logger_name", "util::environment").Logger()

const (
	PersistMemory = "memory"
	PersistRedis  = "redis"
	PersistSQL    = "sql"
)

// Environment holds the process configuration read from environment variables.
type Environment struct {
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	PersistMethod     string `env:"PERSIST_METHOD" envDefault:"memory"`
	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPW           string `env:"REDIS_PW"`
	RedisDB           int    `env:"REDIS_DB" envDefault:"0"`
	SQLDriver         string `env:"SQL_DRIVER" envDefault:"postgres"`
	SQLDSN            string `env:"SQL_DSN"`
	NatsURL           string `env:"NATS_URL"`
	RestPort          int    `env:"REST_PORT" envDefault:"8080"`
	PersonalityConfig string `env:"PERSONALITY_CONFIG" envDefault:"personality.yaml"`
	ViewCacheSize     int    `env:"VIEW_CACHE_SIZE" envDefault:"10000"`
}

// Env is a helper object for accessing environment variables.
var Env = mustLoadEnvironment()

func mustLoadEnvironment() *Environment {
	e, err := LoadEnvironment()
	if err != nil {
		environmentLogger.Error().Msg(err.Error())
		panic(err.Error())
	}
	return e
}

// LoadEnvironment parses the current process environment.
func LoadEnvironment() (*Environment, error) {
	e := &Environment{}
	if err := env.Parse(e); err != nil {
		return nil, fmt.Errorf("Invalid environment: %w", err)
	}
	return e, nil
}

func (e *Environment) GetZeroLogLogLevel() zerolog.Level {
	l, err := logging.ParseLevel(e.LogLevel)
	if err != nil {
		msg := fmt.Sprintf("Unsupported LOG_LEVEL: %s", e.LogLevel)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return l
}

func (e *Environment) GetPersistMethod() string {
	method := strings.ToLower(e.PersistMethod)
	switch method {
	case PersistMemory, PersistRedis, PersistSQL:
		return method
	default:
		msg := fmt.Sprintf("Invalid PERSIST_METHOD %s", e.PersistMethod)
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
}

func (e *Environment) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", e.RedisHost, e.RedisPort)
}

func (e *Environment) GetRedisPW() string {
	return e.RedisPW
}

func (e *Environment) GetRedisDB() int {
	return e.RedisDB
}

func (e *Environment) GetSQLDriver() string {
	return e.SQLDriver
}

func (e *Environment) GetSQLDSN() string {
	if e.SQLDSN == "" {
		msg := "SQL_DSN is not defined"
		environmentLogger.Error().Msg(msg)
		panic(msg)
	}
	return e.SQLDSN
}

// GetNatsURL returns an empty string when the service runs without NATS.
func (e *Environment) GetNatsURL() string {
	return e.NatsURL
}

func (e *Environment) GetRestPort() int {
	return e.RestPort
}

func (e *Environment) GetPersonalityConfig() string {
	return e.PersonalityConfig
}

func (e *Environment) GetViewCacheSize() int {
	if e.ViewCacheSize <= 0 {
		return 10000
	}
	return e.ViewCacheSize
}
