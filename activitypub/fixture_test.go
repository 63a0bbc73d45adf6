package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/notify"
	"github.com/deemkeen/tusk/streaming"
	"github.com/deemkeen/tusk/util"
	"github.com/rs/zerolog"
)

const (
	localHost  = "tusk.example"
	remoteHost = "remote.example"
)

type delivery struct {
	sender   string
	activity Activity
	inboxes  []string
}

// fakeTransport serves registered objects and records deliveries.
type fakeTransport struct {
	mu         sync.Mutex
	objects    map[string]any
	fetches    map[string]int
	deliveries []delivery
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{objects: map[string]any{}, fetches: map[string]int{}}
}

func (f *fakeTransport) serve(iri string, obj any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[iri] = obj
}

func (f *fakeTransport) Dereference(ctx context.Context, iri string, into any) error {
	f.mu.Lock()
	obj, ok := f.objects[iri]
	f.fetches[iri]++
	f.mu.Unlock()
	if !ok {
		return errors.Errorf("GET %s: 404", iri)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, into)
}

func (f *fakeTransport) Deliver(ctx context.Context, sender *domain.User, activity any, inboxes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{sender: sender.APId, activity: activity.(Activity), inboxes: inboxes})
	return nil
}

func (f *fakeTransport) delivered() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.deliveries...)
}

type fixture struct {
	db        *db.DB
	bus       *streaming.Bus
	transport *fakeTransport
	urls      *URLs
	actors    *Actors
	outbox    *Outbox
	inbox     *Inbox

	bob   *domain.User // local, auto accepts
	carol *domain.User // local, approves followers manually
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	database, err := db.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conf := &util.AppConfig{}
	conf.Conf.SslDomain = localHost

	f := &fixture{
		db:        database,
		bus:       streaming.NewBus(10, logger),
		transport: newFakeTransport(),
		urls:      NewURLs(conf),
	}
	notifier := notify.NewService(database, f.bus, logger)
	f.actors = NewActors(database, f.transport, f.urls, time.Hour, logger)
	f.outbox = NewOutbox(database, f.transport, NewRecipients(database), notifier, f.urls, logger)
	f.inbox = NewInbox(database, f.actors, notifier, f.outbox, logger)

	keys := &util.RsaKeyPair{Public: "PUBLIC", Private: "PRIVATE"}
	f.bob = f.urls.LocalUser("bob", keys)
	f.carol = f.urls.LocalUser("carol", keys)
	f.carol.ManuallyApprovesFollowers = true
	for _, u := range []*domain.User{f.bob, f.carol} {
		if err := database.CreateLocalUser(ctx, u); err != nil {
			t.Fatalf("Failed to create %s: %v", u.Name, err)
		}
	}
	return f
}

// remote registers a remote actor document and returns its IRI.
func (f *fixture) remote(name string) string {
	return f.remoteOn(remoteHost, name)
}

func (f *fixture) remoteOn(host, name string) string {
	iri := fmt.Sprintf("https://%s/users/%s", host, name)
	f.transport.serve(iri, &Person{
		ID:                iri,
		Type:              "Person",
		PreferredUsername: name,
		Inbox:             iri + "/inbox",
		Followers:         iri + "/followers",
		Endpoints:         &Endpoints{SharedInbox: "https://" + host + "/inbox"},
		PublicKey:         PublicKey{ID: KeyID(iri), Owner: iri, PublicKeyPem: "PEM"},
	})
	return iri
}

func (f *fixture) user(t *testing.T, iri string) *domain.User {
	t.Helper()
	u, err := f.db.UserByAPId(context.Background(), iri)
	if err != nil {
		t.Fatalf("Failed to read user %s: %v", iri, err)
	}
	return u
}

func (f *fixture) process(t *testing.T, body string) Outcome {
	t.Helper()
	outcome, err := f.inbox.Process(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("Failed to process activity: %v\n%s", err, body)
	}
	return outcome
}

func (f *fixture) notifications(t *testing.T, u *domain.User) []domain.Notification {
	t.Helper()
	ns, err := f.db.Notifications(context.Background(), u.Id, 50)
	if err != nil {
		t.Fatalf("Failed to read notifications: %v", err)
	}
	return ns
}

func (f *fixture) claimed(t *testing.T, id string) bool {
	t.Helper()
	ok, err := f.db.ActivityProcessed(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to read ledger: %v", err)
	}
	return ok
}

func followJSON(id, actor, object string) string {
	return fmt.Sprintf(`{"@context":"https://www.w3.org/ns/activitystreams","id":%q,"type":"Follow","actor":%q,"object":%q}`, id, actor, object)
}

func wrapJSON(kind, id, actor, object string) string {
	return fmt.Sprintf(`{"@context":"https://www.w3.org/ns/activitystreams","id":%q,"type":%q,"actor":%q,"object":%s}`, id, kind, actor, object)
}

func likeJSON(id, actor, object string) string {
	return fmt.Sprintf(`{"id":%q,"type":"Like","actor":%q,"object":%q}`, id, actor, object)
}
