//go:build wireinject
// +build wireinject

package main

import (
	"github.com/deemkeen/tusk/activitypub"
	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/federation"
	"github.com/deemkeen/tusk/notify"
	"github.com/deemkeen/tusk/streaming"
	"github.com/deemkeen/tusk/util"
	"github.com/deemkeen/tusk/web"
	"github.com/google/wire"
)

var storeSet = wire.NewSet(
	db.NewDB,
	wire.Bind(new(activitypub.Store), new(*db.DB)),
	wire.Bind(new(notify.Store), new(*db.DB)),
	wire.Bind(new(federation.Store), new(*db.DB)),
	wire.Bind(new(web.Store), new(*db.DB)),
)

var federationSet = wire.NewSet(
	federation.NewClient,
	federation.NewWorker,
	federation.NewVerifier,
	wire.Bind(new(activitypub.Transport), new(*federation.Client)),
	wire.Bind(new(federation.ActorResolver), new(*activitypub.Actors)),
	wire.Bind(new(federation.KeyFetcher), new(*federation.Client)),
	wire.Bind(new(web.SignatureVerifier), new(*federation.Verifier)),
)

var activitypubSet = wire.NewSet(
	activitypub.NewURLs,
	activitypub.NewRecipients,
	activitypub.NewOutbox,
	activitypub.NewInbox,
	provideActors,
	wire.Bind(new(activitypub.Notifier), new(*notify.Service)),
	wire.Bind(new(web.InboxHandler), new(*activitypub.Inbox)),
)

func initApp() (*app, func(), error) {
	wire.Build(
		util.ReadConf,
		util.NewLogger,
		storeSet,
		provideBus,
		wire.Bind(new(notify.Publisher), new(*streaming.Bus)),
		notify.NewService,
		federationSet,
		activitypubSet,
		web.NewServer,
		newApp,
	)
	return nil, nil, nil
}
