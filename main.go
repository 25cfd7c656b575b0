package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	caches "voyager.com/tiltengine/caching"
	"voyager.com/tiltengine/logging"
	"voyager.com/tiltengine/nats"
	"voyager.com/tiltengine/personality"
	"voyager.com/tiltengine/rest"
	"voyager.com/tiltengine/util"
)

var configFile *string
var restPort *int
var mainLogger = logging.GetZeroLogger("main::main", nil)

func init() {
	configFile = flag.String("config", "", "YAML file containing trait, event, tilt and mood tables")
	restPort = flag.Int("port", 0, "REST port (overrides REST_PORT)")
}

func main() {
	err := run()
	if err != nil {
		mainLogger.Error().Msg(err.Error())
		os.Exit(1)
	}
}

func run() error {
	logLevel := util.Env.GetZeroLogLogLevel()
	fmt.Printf("Setting log level to %s\n", logLevel)
	zerolog.SetGlobalLevel(logLevel)
	flag.Parse()

	config, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "Error while parsing personality config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := personality.CreateStore(ctx, util.Env)
	if err != nil {
		return errors.Wrap(err, "Error while creating personality store")
	}

	archive, err := caches.NewViewCache(util.Env.GetViewCacheSize())
	if err != nil {
		return err
	}

	opts := []personality.ManagerOption{personality.WithViewArchive(archive)}
	natsURL := util.Env.GetNatsURL()
	var nc *natsgo.Conn
	if natsURL != "" {
		mainLogger.Info().Msgf("NATS URL: %s", natsURL)
		nc, err = natsgo.Connect(natsURL)
		if err != nil {
			return errors.Wrapf(err, "Failed to connect to nats server at %s", natsURL)
		}
		defer nc.Close()
		opts = append(opts, personality.WithStatePublisher(nats.NewStatePublisher(nc)))
	}

	manager := personality.NewManager(config, store, opts...)
	if nc != nil {
		listener := nats.NewListener(nc, manager)
		if err := listener.Subscribe(); err != nil {
			return errors.Wrap(err, "Error while subscribing to personality subjects")
		}
		defer listener.Unsubscribe()
	}

	port := util.Env.GetRestPort()
	if *restPort != 0 {
		port = *restPort
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- rest.RunRestServer(manager, archive, port)
	}()

	select {
	case <-ctx.Done():
		mainLogger.Info().Msg("Shutting down")
	case err = <-errCh:
	}

	for _, gameID := range manager.GameIDs() {
		if endErr := manager.EndGame(context.Background(), gameID); endErr != nil {
			mainLogger.Error().Uint64(logging.GameIDKey, gameID).Msg(endErr.Error())
		}
	}
	return err
}

func loadConfig() (*personality.Config, error) {
	file := *configFile
	if file == "" {
		file = util.Env.GetPersonalityConfig()
	}
	if _, err := os.Stat(file); os.IsNotExist(err) {
		mainLogger.Warn().Msgf("%s not found. Using the default personality tables.", file)
		return personality.DefaultConfig(), nil
	}
	return personality.ParseConfig(file)
}
