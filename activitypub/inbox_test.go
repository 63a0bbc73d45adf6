package activitypub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/streaming"
)

func createJSON(createID, noteID, actor string, to []string, mentions ...string) string {
	tags := make([]map[string]string, len(mentions))
	for i, m := range mentions {
		tags[i] = map[string]string{"type": "Mention", "href": m}
	}
	act := map[string]any{
		"@context": ContextActivityStreams,
		"id":       createID,
		"type":     "Create",
		"actor":    actor,
		"to":       to,
		"object": map[string]any{
			"id":           noteID,
			"type":         "Note",
			"attributedTo": actor,
			"content":      "<p>hello</p>",
			"to":           to,
			"cc":           []string{},
			"tag":          tags,
		},
	}
	b, _ := json.Marshal(act)
	return string(b)
}

func nextEvent(t *testing.T, s *streaming.Subscription) streaming.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for streaming event")
	}
	return streaming.Event{}
}

func expectKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("Expected %s error, got %s: %v", kind, got, err)
	}
}

func (f *fixture) publish(t *testing.T, author *domain.User) *domain.Post {
	t.Helper()
	post, err := f.outbox.PublishNote(context.Background(), author, &domain.Post{Content: "local post"}, nil)
	if err != nil {
		t.Fatalf("Failed to publish note: %v", err)
	}
	return post
}

func TestFollowIsAutoAccepted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	sub := f.bus.Subscribe(f.bob.Id)
	defer sub.Close()

	body := followJSON("https://remote.example/activities/1", alice, f.bob.APId)
	if got := f.process(t, body); got != Applied {
		t.Fatalf("Expected applied, got %s", got)
	}

	aliceUser := f.user(t, alice)
	if _, err := f.db.Follower(ctx, aliceUser.Id, f.bob.Id); err != nil {
		t.Fatalf("Expected follower edge, got %v", err)
	}

	ds := f.transport.delivered()
	if len(ds) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(ds))
	}
	accept, ok := ds[0].activity.(*Accept)
	if !ok {
		t.Fatalf("Expected Accept, got %T", ds[0].activity)
	}
	if accept.Object.ID != "https://remote.example/activities/1" {
		t.Errorf("Expected accepted follow id, got '%s'", accept.Object.ID)
	}
	if len(ds[0].inboxes) != 1 || ds[0].inboxes[0] != "https://remote.example/inbox" {
		t.Errorf("Expected shared inbox, got %v", ds[0].inboxes)
	}

	ev := nextEvent(t, sub)
	if ev.Kind != streaming.KindNotification || ev.Notification.Kind != domain.NotificationFollow {
		t.Errorf("Expected follow notification event, got %+v", ev)
	}

	// redelivery is acknowledged without effects
	if got := f.process(t, body); got != Duplicate {
		t.Fatalf("Expected duplicate, got %s", got)
	}
	if n := len(f.notifications(t, f.bob)); n != 1 {
		t.Errorf("Expected 1 notification, got %d", n)
	}
	if n := len(f.transport.delivered()); n != 1 {
		t.Errorf("Expected no second Accept, got %d deliveries", n)
	}
}

func TestFollowRequestApproval(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")

	followID := "https://remote.example/activities/2"
	f.process(t, followJSON(followID, alice, f.carol.APId))
	aliceUser := f.user(t, alice)

	if _, err := f.db.Follower(ctx, aliceUser.Id, f.carol.Id); !domain.IsNotFound(err) {
		t.Fatalf("Expected no follower edge before approval, got %v", err)
	}
	if _, err := f.db.FollowRequest(ctx, aliceUser.Id, f.carol.Id); err != nil {
		t.Fatalf("Expected pending request, got %v", err)
	}
	ns := f.notifications(t, f.carol)
	if len(ns) != 1 || ns[0].Kind != domain.NotificationFollowRequest {
		t.Fatalf("Expected a follow_request notification, got %+v", ns)
	}
	if n := len(f.transport.delivered()); n != 0 {
		t.Fatalf("Expected no delivery before approval, got %d", n)
	}

	if err := f.outbox.AcceptFollowRequest(ctx, f.carol, aliceUser); err != nil {
		t.Fatalf("Failed to accept follow request: %v", err)
	}
	if _, err := f.db.Follower(ctx, aliceUser.Id, f.carol.Id); err != nil {
		t.Errorf("Expected follower edge after approval, got %v", err)
	}
	if _, err := f.db.FollowRequest(ctx, aliceUser.Id, f.carol.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected request to be gone, got %v", err)
	}
	ns = f.notifications(t, f.carol)
	if len(ns) != 1 || ns[0].Kind != domain.NotificationFollow {
		t.Errorf("Expected the request notification replaced by a follow notification, got %+v", ns)
	}

	ds := f.transport.delivered()
	if len(ds) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(ds))
	}
	if accept, ok := ds[0].activity.(*Accept); !ok || accept.Object.ID != followID {
		t.Errorf("Expected Accept of %s, got %+v", followID, ds[0].activity)
	}
}

func TestUndoFollow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")

	// pending
	f.process(t, followJSON("https://remote.example/activities/f1", alice, f.carol.APId))
	f.process(t, wrapJSON("Undo", "https://remote.example/activities/u1", alice,
		followJSON("https://remote.example/activities/f1", alice, f.carol.APId)))
	aliceUser := f.user(t, alice)
	if _, err := f.db.FollowRequest(ctx, aliceUser.Id, f.carol.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected request removed, got %v", err)
	}
	if n := len(f.notifications(t, f.carol)); n != 0 {
		t.Errorf("Expected request notification removed, got %d", n)
	}

	// confirmed
	f.process(t, followJSON("https://remote.example/activities/f2", alice, f.bob.APId))
	f.process(t, wrapJSON("Undo", "https://remote.example/activities/u2", alice,
		followJSON("https://remote.example/activities/f2", alice, f.bob.APId)))
	if _, err := f.db.Follower(ctx, aliceUser.Id, f.bob.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected follower removed, got %v", err)
	}
	if n := len(f.notifications(t, f.bob)); n != 0 {
		t.Errorf("Expected follow notification removed, got %d", n)
	}
}

func TestUndoFollowByAnotherActor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	mallory := f.remote("mallory")

	f.process(t, followJSON("https://remote.example/activities/f1", alice, f.bob.APId))

	undoID := "https://remote.example/activities/evil"
	_, err := f.inbox.Process(ctx, []byte(wrapJSON("Undo", undoID, mallory,
		followJSON("https://remote.example/activities/f1", alice, f.bob.APId))))
	expectKind(t, err, domain.KindVerification)

	if f.claimed(t, undoID) {
		t.Error("Expected rejected activity to stay out of the ledger")
	}
	if _, err := f.db.Follower(ctx, f.user(t, alice).Id, f.bob.Id); err != nil {
		t.Errorf("Expected follow to survive, got %v", err)
	}
}

func TestOutgoingFollowAccepted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	aliceUser, err := f.actors.Resolve(ctx, alice)
	if err != nil {
		t.Fatalf("Failed to resolve alice: %v", err)
	}

	if err := f.outbox.Follow(ctx, f.bob, aliceUser); err != nil {
		t.Fatalf("Failed to follow: %v", err)
	}
	if _, err := f.db.FollowRequest(ctx, f.bob.Id, aliceUser.Id); err != nil {
		t.Fatalf("Expected pending request, got %v", err)
	}
	ds := f.transport.delivered()
	if len(ds) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(ds))
	}
	follow, ok := ds[0].activity.(*Follow)
	if !ok {
		t.Fatalf("Expected Follow, got %T", ds[0].activity)
	}

	f.process(t, wrapJSON("Accept", "https://remote.example/activities/a1", alice,
		followJSON(follow.ID, f.bob.APId, alice)))
	if _, err := f.db.Follower(ctx, f.bob.Id, aliceUser.Id); err != nil {
		t.Errorf("Expected follower edge after Accept, got %v", err)
	}
	if _, err := f.db.FollowRequest(ctx, f.bob.Id, aliceUser.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected request promoted, got %v", err)
	}

	f.process(t, wrapJSON("Reject", "https://remote.example/activities/r1", alice,
		followJSON(follow.ID, f.bob.APId, alice)))
	if _, err := f.db.Follower(ctx, f.bob.Id, aliceUser.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected Reject to remove the follow, got %v", err)
	}
}

func TestRejectPendingRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	aliceUser, err := f.actors.Resolve(ctx, alice)
	if err != nil {
		t.Fatalf("Failed to resolve alice: %v", err)
	}

	if err := f.outbox.Follow(ctx, f.bob, aliceUser); err != nil {
		t.Fatalf("Failed to follow: %v", err)
	}
	follow, ok := f.transport.delivered()[0].activity.(*Follow)
	if !ok {
		t.Fatalf("Expected Follow, got %T", f.transport.delivered()[0].activity)
	}

	f.process(t, wrapJSON("Reject", "https://remote.example/activities/r1", alice,
		followJSON(follow.ID, f.bob.APId, alice)))
	if _, err := f.db.FollowRequest(ctx, f.bob.Id, aliceUser.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected request removed, got %v", err)
	}
	if _, err := f.db.Follower(ctx, f.bob.Id, aliceUser.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected no follower edge, got %v", err)
	}
}

func TestRejectIncomingRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")

	followID := "https://remote.example/activities/f1"
	f.process(t, followJSON(followID, alice, f.carol.APId))
	aliceUser := f.user(t, alice)
	if n := len(f.notifications(t, f.carol)); n != 1 {
		t.Fatalf("Expected a follow_request notification, got %d", n)
	}

	f.process(t, wrapJSON("Reject", "https://tusk.example/u/carol/activities/reject/1", f.carol.APId,
		followJSON(followID, alice, f.carol.APId)))

	if _, err := f.db.FollowRequest(ctx, aliceUser.Id, f.carol.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected request removed, got %v", err)
	}
	if _, err := f.db.Follower(ctx, aliceUser.Id, f.carol.Id); !domain.IsNotFound(err) {
		t.Errorf("Expected no follower edge, got %v", err)
	}
	if ns := f.notifications(t, f.carol); len(ns) != 0 {
		t.Errorf("Expected no follow or follow_request notification, got %+v", ns)
	}
}

func TestAcceptByWrongActor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	mallory := f.remote("mallory")
	aliceUser, _ := f.actors.Resolve(ctx, alice)

	if err := f.outbox.Follow(ctx, f.bob, aliceUser); err != nil {
		t.Fatalf("Failed to follow: %v", err)
	}

	acceptID := "https://remote.example/activities/fake-accept"
	_, err := f.inbox.Process(ctx, []byte(wrapJSON("Accept", acceptID, mallory,
		followJSON("https://tusk.example/u/bob/activities/follow/1", f.bob.APId, alice))))
	expectKind(t, err, domain.KindVerification)

	if f.claimed(t, acceptID) {
		t.Error("Expected rejected Accept to stay out of the ledger")
	}
	if _, err := f.db.FollowRequest(ctx, f.bob.Id, aliceUser.Id); err != nil {
		t.Errorf("Expected request still pending, got %v", err)
	}
}

func TestLikeIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	post := f.publish(t, f.bob)

	f.process(t, likeJSON("https://remote.example/activities/l1", alice, post.APId))
	f.process(t, likeJSON("https://remote.example/activities/l2", alice, post.APId))

	if n, _ := f.db.CountLikes(ctx, post.Id); n != 1 {
		t.Errorf("Expected 1 like, got %d", n)
	}
	ns := f.notifications(t, f.bob)
	if len(ns) != 1 || ns[0].Kind != domain.NotificationFavourite || ns[0].PostId != post.Id {
		t.Errorf("Expected one favourite notification for the post, got %+v", ns)
	}
}

func TestUndoLike(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	mallory := f.remote("mallory")
	post := f.publish(t, f.bob)

	like := likeJSON("https://remote.example/activities/l1", alice, post.APId)
	f.process(t, like)

	evilID := "https://remote.example/activities/u-evil"
	_, err := f.inbox.Process(ctx, []byte(wrapJSON("Undo", evilID, mallory, like)))
	expectKind(t, err, domain.KindVerification)
	if f.claimed(t, evilID) {
		t.Error("Expected rejected Undo to stay out of the ledger")
	}
	if n, _ := f.db.CountLikes(ctx, post.Id); n != 1 {
		t.Fatalf("Expected like to survive, got %d", n)
	}

	f.process(t, wrapJSON("Undo", "https://remote.example/activities/u1", alice, like))
	if n, _ := f.db.CountLikes(ctx, post.Id); n != 0 {
		t.Errorf("Expected like removed, got %d", n)
	}
	if n := len(f.notifications(t, f.bob)); n != 0 {
		t.Errorf("Expected favourite notification removed, got %d", n)
	}
}

func TestLikeFetchesUnknownPost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	dave := f.remoteOn("other.example", "dave")
	noteID := "https://other.example/notes/1"
	f.transport.serve(noteID, &Note{ID: noteID, Type: "Note", AttributedTo: IRI(dave), Content: "remote", To: IRIs{PublicIRI}})

	f.process(t, likeJSON("https://remote.example/activities/l1", alice, noteID))

	post, err := f.db.PostByAPId(ctx, noteID)
	if err != nil {
		t.Fatalf("Expected fetched post, got %v", err)
	}
	if post.AuthorId != f.user(t, dave).Id {
		t.Errorf("Expected post attributed to dave")
	}
	if n, _ := f.db.CountLikes(ctx, post.Id); n != 1 {
		t.Errorf("Expected 1 like, got %d", n)
	}
}

func TestAnnounceAndUndo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	post := f.publish(t, f.bob)

	announce := `{"id":"https://remote.example/activities/b1","type":"Announce","actor":"` + alice +
		`","object":"` + post.APId + `","to":"` + PublicIRI + `","cc":["` + alice + `/followers"]}`
	f.process(t, announce)

	boost, err := f.db.Boost(ctx, f.user(t, alice).Id, post.Id)
	if err != nil {
		t.Fatalf("Expected boost, got %v", err)
	}
	if boost.Visibility != domain.VisibilityPublic {
		t.Errorf("Expected public boost, got %s", boost.Visibility)
	}
	ns := f.notifications(t, f.bob)
	if len(ns) != 1 || ns[0].Kind != domain.NotificationReblog {
		t.Fatalf("Expected reblog notification, got %+v", ns)
	}

	f.process(t, wrapJSON("Undo", "https://remote.example/activities/ub1", alice, announce))
	if n, _ := f.db.CountBoosts(ctx, post.Id); n != 0 {
		t.Errorf("Expected boost removed, got %d", n)
	}
	if n := len(f.notifications(t, f.bob)); n != 0 {
		t.Errorf("Expected reblog notification removed, got %d", n)
	}
}

func TestCreateNoteWithMention(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	noteID := "https://remote.example/notes/1"

	f.process(t, createJSON("https://remote.example/notes/1/activity", noteID, alice, []string{PublicIRI}, f.bob.APId))

	post, err := f.db.PostByAPId(ctx, noteID)
	if err != nil {
		t.Fatalf("Expected stored post, got %v", err)
	}
	if post.Visibility != domain.VisibilityPublic {
		t.Errorf("Expected public post, got %s", post.Visibility)
	}
	mentioned, _ := f.db.MentionedUsers(ctx, post.Id)
	if len(mentioned) != 1 || mentioned[0].Id != f.bob.Id {
		t.Errorf("Expected bob mentioned, got %+v", mentioned)
	}
	ns := f.notifications(t, f.bob)
	if len(ns) != 1 || ns[0].Kind != domain.NotificationMention || ns[0].PostId != post.Id {
		t.Fatalf("Expected mention notification, got %+v", ns)
	}

	// same note under a new activity id updates in place
	f.process(t, createJSON("https://remote.example/notes/1/activity-again", noteID, alice, []string{PublicIRI}, f.bob.APId))
	again, _ := f.db.PostByAPId(ctx, noteID)
	if again.Id != post.Id {
		t.Errorf("Expected the same post row, got %s and %s", post.Id, again.Id)
	}
	if n := len(f.notifications(t, f.bob)); n != 1 {
		t.Errorf("Expected one mention notification, got %d", n)
	}
}

func TestDirectNoteIsStreamedToMentioned(t *testing.T) {
	f := setup(t)
	alice := f.remote("alice")
	sub := f.bus.Subscribe(f.bob.Id)
	defer sub.Close()

	f.process(t, createJSON("https://remote.example/notes/dm/activity", "https://remote.example/notes/dm", alice, []string{f.bob.APId}, f.bob.APId))

	if ev := nextEvent(t, sub); ev.Kind != streaming.KindNotification {
		t.Fatalf("Expected notification first, got %s", ev.Kind)
	}
	ev := nextEvent(t, sub)
	if ev.Kind != streaming.KindUpdate || ev.Post.Visibility != domain.VisibilityDirect {
		t.Fatalf("Expected direct update, got %+v", ev)
	}
	if names := ev.Names(); len(names) != 1 || names[0] != string(streaming.Direct) {
		t.Errorf("Expected direct category, got %v", names)
	}
}

func TestCreateNoteByAnotherActor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	mallory := f.remote("mallory")

	body := createJSON("https://remote.example/notes/2/activity", "https://remote.example/notes/2", alice, []string{PublicIRI})
	var act map[string]any
	json.Unmarshal([]byte(body), &act)
	act["actor"] = mallory
	forged, _ := json.Marshal(act)

	_, err := f.inbox.Process(ctx, forged)
	expectKind(t, err, domain.KindVerification)
	if f.claimed(t, "https://remote.example/notes/2/activity") {
		t.Error("Expected forged Create to stay out of the ledger")
	}
	if _, err := f.db.PostByAPId(ctx, "https://remote.example/notes/2"); !domain.IsNotFound(err) {
		t.Errorf("Expected no post, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	mallory := f.remote("mallory")
	f.actors.Resolve(ctx, alice)

	profile := `{"id":"` + alice + `","type":"Person","preferredUsername":"alice","name":"Alice A.","inbox":"` + alice + `/inbox"}`
	f.process(t, wrapJSON("Update", "https://remote.example/activities/up1", alice, profile))
	if got := f.user(t, alice).DisplayName; got != "Alice A." {
		t.Errorf("Expected updated display name, got '%s'", got)
	}

	_, err := f.inbox.Process(ctx, []byte(wrapJSON("Update", "https://remote.example/activities/up2", mallory, profile)))
	expectKind(t, err, domain.KindVerification)

	local := `{"id":"` + f.bob.APId + `","type":"Person","preferredUsername":"bob","name":"pwned","inbox":"` + f.bob.InboxURI + `"}`
	_, err = f.inbox.Process(ctx, []byte(wrapJSON("Update", "https://tusk.example/activities/up3", f.bob.APId, local)))
	expectKind(t, err, domain.KindVerification)
	if got := f.user(t, f.bob.APId).DisplayName; got != "bob" {
		t.Errorf("Expected local profile untouched, got '%s'", got)
	}
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.remote("alice")
	mallory := f.remote("mallory")
	noteID := "https://remote.example/notes/3"
	f.process(t, createJSON(noteID+"/activity", noteID, alice, []string{PublicIRI}))

	_, err := f.inbox.Process(ctx, []byte(wrapJSON("Delete", "https://remote.example/activities/d0", mallory, `"`+noteID+`"`)))
	expectKind(t, err, domain.KindVerification)

	f.process(t, wrapJSON("Delete", "https://remote.example/activities/d1", alice, `{"id":"`+noteID+`","type":"Tombstone"}`))
	if _, err := f.db.PostByAPId(ctx, noteID); !domain.IsNotFound(err) {
		t.Errorf("Expected post deleted, got %v", err)
	}

	f.process(t, wrapJSON("Delete", "https://remote.example/activities/d2", alice, `"`+alice+`"`))
	if _, err := f.db.UserByAPId(ctx, alice); !domain.IsNotFound(err) {
		t.Errorf("Expected actor deleted, got %v", err)
	}
}

func TestRejectedBeforeLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.inbox.Process(ctx, []byte(`{"id":"https://remote.example/activities/m1","type":"Move","actor":"https://remote.example/users/alice","object":"https://x.example/u/a"}`))
	expectKind(t, err, domain.KindMalformed)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
	if f.claimed(t, "https://remote.example/activities/m1") {
		t.Error("Expected unsupported activity to stay out of the ledger")
	}

	_, err = f.inbox.Process(ctx, []byte(`{"type":"Follow","actor":"https://remote.example/users/alice","object":"`+f.bob.APId+`"}`))
	expectKind(t, err, domain.KindMalformed)

	_, err = f.inbox.Process(ctx, []byte(`not json`))
	expectKind(t, err, domain.KindMalformed)
}

func TestUnreachableActorCanBeRetried(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ghost := "https://remote.example/users/ghost"
	body := followJSON("https://remote.example/activities/g1", ghost, f.bob.APId)

	_, err := f.inbox.Process(ctx, []byte(body))
	expectKind(t, err, domain.KindDependency)
	if f.claimed(t, "https://remote.example/activities/g1") {
		t.Fatal("Expected failed fetch to leave the id unclaimed")
	}

	f.remote("ghost")
	if got := f.process(t, body); got != Applied {
		t.Errorf("Expected retry to apply, got %s", got)
	}
}
