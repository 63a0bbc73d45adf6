package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/activitypub"
	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/federation"
	"github.com/deemkeen/tusk/streaming"
	"github.com/deemkeen/tusk/util"
	"github.com/deemkeen/tusk/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const keyBits = 2048

type app struct {
	conf   *util.AppConfig
	log    zerolog.Logger
	db     *db.DB
	urls   *activitypub.URLs
	server *web.Server
	worker *federation.Worker
}

func newApp(conf *util.AppConfig, logger zerolog.Logger, database *db.DB, urls *activitypub.URLs, server *web.Server, worker *federation.Worker) *app {
	return &app{conf: conf, log: logger, db: database, urls: urls, server: server, worker: worker}
}

func provideBus(conf *util.AppConfig, logger zerolog.Logger) *streaming.Bus {
	return streaming.NewBus(conf.Conf.StreamCapacity, logger)
}

func provideActors(store activitypub.Store, transport activitypub.Transport, urls *activitypub.URLs, conf *util.AppConfig, logger zerolog.Logger) *activitypub.Actors {
	return activitypub.NewActors(store, transport, urls, conf.ActorCacheTTL(), logger)
}

func main() {
	register := flag.String("register", "", "create a local user with this name, print a session token and exit")
	flag.Parse()

	a, cleanup, err := initApp()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer cleanup()

	if a.conf.Conf.Dev {
		fmt.Println("Configuration: ")
		fmt.Println(util.PrettyPrint(a.conf))
	}

	if *register != "" {
		if err := a.register(context.Background(), *register); err != nil {
			a.log.Fatal().Err(err).Str("name", *register).Msg("Failed to register user")
		}
		return
	}

	if err := a.run(); err != nil {
		a.log.Fatal().Err(err).Send()
	}
}

// run serves HTTP and drains the delivery queue until SIGINT or SIGTERM.
func (a *app) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info().Str("version", util.GetNameAndVersion()).Str("domain", a.conf.Conf.SslDomain).Msg("Starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	if a.conf.Conf.WithAp {
		g.Go(func() error {
			return a.worker.Run(ctx)
		})
	}

	err := g.Wait()
	a.log.Info().Msg("Shutdown complete")
	return err
}

// register creates a local account with a fresh key pair and prints a bearer token for it.
func (a *app) register(ctx context.Context, name string) error {
	if _, err := a.db.LocalUserByName(ctx, name); err == nil {
		return errors.Errorf("user %s already exists", name)
	}

	keys, err := util.GeneratePemKeypair(keyBits)
	if err != nil {
		return err
	}
	u := a.urls.LocalUser(name, keys)
	if err := a.db.CreateLocalUser(ctx, u); err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	session, err := a.db.CreateSession(ctx, u.Id)
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}

	a.log.Info().Str("name", name).Str("actor", u.APId).Msg("Registered local user")
	fmt.Println(session.Token)
	return nil
}
