package personality

import (
	"context"

	"github.com/rs/zerolog/log"

	"voyager.com/tiltengine/util"
)

var storeLogger = log.With().Str("logger_name", "personality::store").Logger()

// CreateStore picks the persistence backend named by PERSIST_METHOD.
func CreateStore(ctx context.Context, env *util.Environment) (Store, error) {
	switch env.GetPersistMethod() {
	case util.PersistRedis:
		storeLogger.Info().Msgf("Using redis store at %s", env.GetRedisAddr())
		return NewRedisStore(env.GetRedisAddr(), env.GetRedisPW(), env.GetRedisDB()), nil
	case util.PersistSQL:
		storeLogger.Info().Msgf("Using %s store", env.GetSQLDriver())
		store, err := OpenSQLStore(ctx, env.GetSQLDriver(), env.GetSQLDSN())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		storeLogger.Info().Msg("Using in-memory store")
		return NewMemoryStore(), nil
	}
}
