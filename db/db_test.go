package db

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/deemkeen/andstatus/domain"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestOrigin(t *testing.T, db *DB) *domain.Origin {
	t.Helper()
	o := &domain.Origin{Name: "mastodon.social", Type: domain.OriginActivityPub, Host: "mastodon.social"}
	if err := db.UpsertOrigin(context.Background(), o); err != nil {
		t.Fatalf("Failed to create origin: %v", err)
	}
	return o
}

func createTestActor(t *testing.T, db *DB, originId int64, oid, username string) *domain.Actor {
	t.Helper()
	a := &domain.Actor{
		OriginId:    originId,
		Oid:         oid,
		Username:    username,
		WebFingerId: username + "@mastodon.social",
		UpdatedAt:   time.UnixMilli(1700000000000),
		GroupType:   domain.GroupNotAGroup,
	}
	if err := db.InsertActor(context.Background(), a); err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	return a
}

func createTestNote(t *testing.T, db *DB, originId int64, oid string, authorId int64) *domain.Note {
	t.Helper()
	n := &domain.Note{OriginId: originId, Oid: oid, Status: domain.NoteLoaded, AuthorId: authorId, Content: "hello"}
	if err := db.InsertNote(context.Background(), n); err != nil {
		t.Fatalf("Failed to create note: %v", err)
	}
	return n
}

func TestUpsertOriginKeepsId(t *testing.T) {
	db := setupTestDB(t)
	o := createTestOrigin(t, db)

	again := &domain.Origin{Name: o.Name, Type: domain.OriginActivityPub, Host: "other.host"}
	if err := db.UpsertOrigin(context.Background(), again); err != nil {
		t.Fatalf("UpsertOrigin failed: %v", err)
	}
	if again.Id != o.Id {
		t.Errorf("Expected id %d, got %d", o.Id, again.Id)
	}
	stored, err := db.OriginById(context.Background(), o.Id)
	if err != nil {
		t.Fatalf("OriginById failed: %v", err)
	}
	if stored.Host != "other.host" {
		t.Errorf("Expected host to be updated, got '%s'", stored.Host)
	}
}

func TestActorLookups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	a := createTestActor(t, db, o.Id, "https://mastodon.social/users/bob", "bob")

	byOid, err := db.ActorByOid(ctx, o.Id, a.Oid)
	if err != nil {
		t.Fatalf("ActorByOid failed: %v", err)
	}
	if byOid.Id != a.Id || byOid.Username != "bob" {
		t.Errorf("Unexpected actor %s", byOid.ToString())
	}
	if !byOid.UpdatedAt.Equal(a.UpdatedAt) {
		t.Errorf("UpdatedAt round trip failed: %v vs %v", byOid.UpdatedAt, a.UpdatedAt)
	}

	byWf, err := db.ActorByWebFingerId(ctx, o.Id, "bob@mastodon.social")
	if err != nil || byWf.Id != a.Id {
		t.Errorf("ActorByWebFingerId failed: %v", err)
	}

	if _, err := db.ActorByOid(ctx, o.Id, "https://nowhere/users/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateActor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	a := createTestActor(t, db, o.Id, domain.TempOidFor("bob@mastodon.social"), "bob")

	a.Oid = "https://mastodon.social/users/bob"
	a.RealName = "Bob"
	if err := db.UpdateActor(ctx, a); err != nil {
		t.Fatalf("UpdateActor failed: %v", err)
	}
	stored, err := db.ActorById(ctx, a.Id)
	if err != nil {
		t.Fatalf("ActorById failed: %v", err)
	}
	if stored.Oid != a.Oid || stored.RealName != "Bob" {
		t.Errorf("Update not stored: %s", stored.ToString())
	}
}

func TestEnsurePseudoActorIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)

	first, err := db.EnsurePseudoActor(ctx, o.Id, domain.GroupPublic)
	if err != nil {
		t.Fatalf("EnsurePseudoActor failed: %v", err)
	}
	second, err := db.EnsurePseudoActor(ctx, o.Id, domain.GroupPublic)
	if err != nil {
		t.Fatalf("EnsurePseudoActor failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected the same id, got %d and %d", first, second)
	}
	followers, err := db.EnsurePseudoActor(ctx, o.Id, domain.GroupFollowers)
	if err != nil {
		t.Fatalf("EnsurePseudoActor failed: %v", err)
	}
	if followers == first {
		t.Error("Followers and Public must be different actors")
	}
	if _, err := db.EnsurePseudoActor(ctx, o.Id, domain.GroupGeneric); err == nil {
		t.Error("A generic group is not a pseudo actor")
	}
}

func TestMergeActorsRepointsReferences(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	winner := createTestActor(t, db, o.Id, "https://mastodon.social/users/bob", "bob")
	loser := createTestActor(t, db, o.Id, domain.TempOidFor("bob@mastodon.social"), "bob")
	other := createTestActor(t, db, o.Id, "https://mastodon.social/users/alice", "alice")

	note := createTestNote(t, db, o.Id, "https://mastodon.social/notes/1", loser.Id)
	if _, err := db.ReplaceAudience(ctx, note.Id, []int64{winner.Id, loser.Id}, domain.VisibilityPrivate); err != nil {
		t.Fatalf("ReplaceAudience failed: %v", err)
	}
	if err := db.AddGroupMember(ctx, domain.GroupFriends, other.Id, loser.Id); err != nil {
		t.Fatalf("AddGroupMember failed: %v", err)
	}
	now := time.Now()
	if err := db.IncrementNotification(ctx, domain.EventMention, loser.Id, now); err != nil {
		t.Fatal(err)
	}
	if err := db.IncrementNotification(ctx, domain.EventMention, winner.Id, now); err != nil {
		t.Fatal(err)
	}
	rec := &domain.ActivityRecord{OriginId: o.Id, Oid: "https://mastodon.social/activities/1",
		Type: domain.ActivityCreate, ActorId: loser.Id, NoteId: note.Id}
	if _, err := db.UpsertActivity(ctx, rec); err != nil {
		t.Fatalf("UpsertActivity failed: %v", err)
	}

	if err := db.MergeActors(ctx, winner, loser.Id); err != nil {
		t.Fatalf("MergeActors failed: %v", err)
	}

	if _, err := db.ActorById(ctx, loser.Id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Merged actor should be deleted, got %v", err)
	}
	stored, _ := db.NoteById(ctx, note.Id)
	if stored.AuthorId != winner.Id {
		t.Errorf("Expected author %d, got %d", winner.Id, stored.AuthorId)
	}
	audience, _ := db.AudienceOf(ctx, note.Id)
	if len(audience) != 1 || audience[0] != winner.Id {
		t.Errorf("Expected audience [%d], got %v", winner.Id, audience)
	}
	friends, _ := db.GroupMembers(ctx, domain.GroupFriends, other.Id)
	if len(friends) != 1 || friends[0] != winner.Id {
		t.Errorf("Expected friends [%d], got %v", winner.Id, friends)
	}
	act, _ := db.ActivityByOid(ctx, o.Id, rec.Oid)
	if act.ActorId != winner.Id {
		t.Errorf("Expected activity actor %d, got %d", winner.Id, act.ActorId)
	}
	counters, _ := db.NotificationCounters(ctx)
	if len(counters) != 1 || counters[0].Count != 2 || counters[0].ActorId != winner.Id {
		t.Errorf("Expected one merged counter of 2, got %+v", counters)
	}
}

func TestUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	a1 := createTestActor(t, db, o.Id, "https://mastodon.social/users/bob", "bob")
	a2 := createTestActor(t, db, o.Id, "https://mastodon.social/users/bob2", "bob2")

	u1, err := db.CreateUserFor(ctx, a1, domain.True)
	if err != nil {
		t.Fatalf("CreateUserFor failed: %v", err)
	}
	u2, err := db.CreateUserFor(ctx, a2, domain.Unknown)
	if err != nil {
		t.Fatalf("CreateUserFor failed: %v", err)
	}

	users, err := db.AllUsers(ctx)
	if err != nil {
		t.Fatalf("AllUsers failed: %v", err)
	}
	if len(users) != 2 || !users[0].ActorIds.Has(a1.Id) {
		t.Fatalf("Unexpected users %v", users)
	}

	if err := db.MergeUsers(ctx, u1, u2.Id); err != nil {
		t.Fatalf("MergeUsers failed: %v", err)
	}
	merged, err := db.UserById(ctx, u1.Id)
	if err != nil {
		t.Fatalf("UserById failed: %v", err)
	}
	if !merged.ActorIds.Has(a1.Id) || !merged.ActorIds.Has(a2.Id) {
		t.Errorf("Expected both actors, got %v", merged.ActorIds.Sorted())
	}
	if _, err := db.UserById(ctx, u2.Id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Merged user should be deleted, got %v", err)
	}
	mine, _ := db.MyUsers(ctx)
	if len(mine) != 1 || mine[0].Id != u1.Id {
		t.Errorf("Expected my user %d, got %v", u1.Id, mine)
	}
}

func TestConversationItemsOf(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	a := createTestActor(t, db, o.Id, "https://mastodon.social/users/bob", "bob")

	n1 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/1", a.Id)
	n2 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/2", a.Id)
	n3 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/3", a.Id)
	db.SetNoteConversation(ctx, n1.Id, n1.Id)
	db.SetNoteConversation(ctx, n2.Id, n1.Id)

	items, err := db.ConversationItemsOf(ctx, []int64{n1.Id})
	if err != nil {
		t.Fatalf("ConversationItemsOf failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 notes of the conversation, got %d", len(items))
	}
	for _, it := range items {
		if it.Id == n3.Id {
			t.Error("Unrelated note should not be loaded")
		}
	}

	all, _ := db.ConversationItems(ctx)
	if len(all) != 3 {
		t.Errorf("Expected 3 notes, got %d", len(all))
	}
}

func TestUpdateConversations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	a := createTestActor(t, db, o.Id, "https://mastodon.social/users/bob", "bob")
	n1 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/1", a.Id)
	n2 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/2", a.Id)
	n2.InReplyToNoteId = 999
	n2.InReplyToActorId = a.Id
	db.UpdateNote(ctx, n2)

	items := []domain.ConversationItem{
		{Id: n1.Id, OriginId: o.Id, ConversationId: n1.Id},
		{Id: n2.Id, OriginId: o.Id, ConversationId: n2.Id, InReplyToNoteId: 0},
	}
	var failures int
	written, err := db.UpdateConversations(ctx, items, func(domain.ConversationItem, error) { failures++ })
	if err != nil {
		t.Fatalf("UpdateConversations failed: %v", err)
	}
	if written != 2 || failures != 0 {
		t.Errorf("Expected 2 written and no failures, got %d and %d", written, failures)
	}
	stored, _ := db.NoteById(ctx, n2.Id)
	if stored.ConversationId != n2.Id || stored.InReplyToNoteId != 0 || stored.InReplyToActorId != 0 {
		t.Errorf("Unexpected note after update: %s", stored.ToString())
	}
}

func TestUpdateConversationsReportsFailedRowOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	a := createTestActor(t, db, o.Id, "https://mastodon.social/users/bob", "bob")
	n1 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/1", a.Id)
	n2 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/2", a.Id)
	n3 := createTestNote(t, db, o.Id, "https://mastodon.social/notes/3", a.Id)

	_, err := db.db.ExecContext(ctx, `CREATE TRIGGER reject_note_2 BEFORE UPDATE ON note
		WHEN NEW.id = `+strconv.FormatInt(n2.Id, 10)+` BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	if err != nil {
		t.Fatalf("Failed to create trigger: %v", err)
	}

	items := []domain.ConversationItem{
		{Id: n1.Id, OriginId: o.Id, ConversationId: n1.Id},
		{Id: n2.Id, OriginId: o.Id, ConversationId: n1.Id},
		{Id: n3.Id, OriginId: o.Id, ConversationId: n1.Id},
	}
	var reported []int64
	written, err := db.UpdateConversations(ctx, items, func(it domain.ConversationItem, err error) {
		reported = append(reported, it.Id)
	})
	if err != nil {
		t.Fatalf("UpdateConversations failed: %v", err)
	}
	if written != 2 {
		t.Errorf("Expected 2 written, got %d", written)
	}
	if len(reported) != 1 || reported[0] != n2.Id {
		t.Errorf("Expected only note %d reported once, got %v", n2.Id, reported)
	}
	stored, _ := db.NoteById(ctx, n3.Id)
	if stored.ConversationId != n1.Id {
		t.Errorf("Expected note after the failed row to be written, got %s", stored.ToString())
	}
}

func TestEnsureStubNote(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)

	stub, err := db.EnsureStubNote(ctx, o.Id, "https://mastodon.social/notes/parent", 0)
	if err != nil {
		t.Fatalf("EnsureStubNote failed: %v", err)
	}
	if stub.Status != domain.NoteAbsent {
		t.Errorf("Expected absent status, got %s", stub.Status)
	}
	again, _ := db.EnsureStubNote(ctx, o.Id, stub.Oid, 0)
	if again.Id != stub.Id {
		t.Error("EnsureStubNote should return the existing note")
	}
}

func TestReplaceAudienceIsDiffBased(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	a := createTestActor(t, db, o.Id, "https://mastodon.social/users/a", "a")
	b := createTestActor(t, db, o.Id, "https://mastodon.social/users/b", "b")
	c := createTestActor(t, db, o.Id, "https://mastodon.social/users/c", "c")
	n := createTestNote(t, db, o.Id, "https://mastodon.social/notes/1", a.Id)

	changed, err := db.ReplaceAudience(ctx, n.Id, []int64{a.Id, b.Id}, domain.VisibilityPrivate)
	if err != nil || !changed {
		t.Fatalf("ReplaceAudience should change the audience: %v", err)
	}
	changed, _ = db.ReplaceAudience(ctx, n.Id, []int64{b.Id, a.Id}, domain.VisibilityPrivate)
	if changed {
		t.Error("Same audience should not be reported as changed")
	}
	db.ReplaceAudience(ctx, n.Id, []int64{b.Id, c.Id}, domain.VisibilityPrivate)
	ids, _ := db.AudienceOf(ctx, n.Id)
	if len(ids) != 2 || ids[0] != b.Id || ids[1] != c.Id {
		t.Errorf("Expected [%d %d], got %v", b.Id, c.Id, ids)
	}
	stored, _ := db.NoteById(ctx, n.Id)
	if stored.Visibility != domain.VisibilityPrivate {
		t.Errorf("Expected private visibility, got %s", stored.Visibility)
	}
}

func TestUpsertActivityIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	rec := &domain.ActivityRecord{OriginId: o.Id, Oid: "https://mastodon.social/activities/1", Type: domain.ActivityLike}

	inserted, err := db.UpsertActivity(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("First upsert should insert: %v", err)
	}
	db.SetActivityEvent(ctx, rec.Id, domain.EventLike, 5)

	again := &domain.ActivityRecord{OriginId: o.Id, Oid: rec.Oid, Type: domain.ActivityLike}
	inserted, err = db.UpsertActivity(ctx, again)
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if inserted {
		t.Error("Second upsert should not insert")
	}
	if again.Id != rec.Id || again.Event != domain.EventLike || again.NotifiedActorId != 5 {
		t.Errorf("Existing event should be kept, got %+v", again)
	}
}

func TestTimeline(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tl := &domain.Timeline{TimelineType: "home", ActorId: 1, OriginId: 1, YoungestPosition: "p1", SyncedDate: time.Now()}
	if err := db.SaveTimeline(ctx, tl); err != nil {
		t.Fatalf("SaveTimeline failed: %v", err)
	}
	tl.YoungestPosition = "p2"
	if err := db.SaveTimeline(ctx, tl); err != nil {
		t.Fatalf("SaveTimeline failed: %v", err)
	}
	stored, err := db.Timeline(ctx, "home", 1, 1)
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if stored.YoungestPosition != "p2" || stored.Id != tl.Id {
		t.Errorf("Unexpected timeline %+v", stored)
	}
}

func TestInTransactionRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)
	boom := errors.New("boom")

	err := db.InTransaction(ctx, func(tx *Tx) error {
		a := &domain.Actor{OriginId: o.Id, Oid: "https://mastodon.social/users/x", Username: "x"}
		if err := tx.InsertActor(ctx, a); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	counts, _ := db.Counts(ctx)
	if counts["actor"] != 0 {
		t.Errorf("Insert should be rolled back, got %d actors", counts["actor"])
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(errors.New("plain")) {
		t.Error("A plain error is not transient")
	}
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
}

func TestSaveActorUpgradesPartialActor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	o := createTestOrigin(t, db)

	partial, changed, err := db.SaveActor(ctx, &domain.Actor{OriginId: o.Id, WebFingerId: "bob@mastodon.social"})
	if err != nil || !changed {
		t.Fatalf("SaveActor should insert a partial actor: %v", err)
	}
	if domain.IsRealOid(partial.Oid) {
		t.Errorf("Partial actor should get a synthetic oid, got '%s'", partial.Oid)
	}

	full, changed, err := db.SaveActor(ctx, &domain.Actor{
		OriginId:    o.Id,
		Oid:         "https://mastodon.social/users/bob",
		Username:    "bob",
		WebFingerId: "bob@mastodon.social",
		UpdatedAt:   time.Now(),
	})
	if err != nil || !changed {
		t.Fatalf("SaveActor should upgrade the partial actor: %v", err)
	}
	if full.Id != partial.Id {
		t.Errorf("Expected the partial row %d to be reused, got %d", partial.Id, full.Id)
	}
	if full.Oid != "https://mastodon.social/users/bob" {
		t.Errorf("Expected the real oid, got '%s'", full.Oid)
	}

	_, changed, err = db.SaveActor(ctx, &domain.Actor{OriginId: o.Id, Oid: full.Oid})
	if err != nil || changed {
		t.Errorf("Saving a known actor without news should not change anything: %v", err)
	}

	other, _, err := db.SaveActor(ctx, &domain.Actor{
		OriginId:    o.Id,
		Oid:         "https://mastodon.social/users/bob-moved",
		WebFingerId: "bob@mastodon.social",
	})
	if err != nil {
		t.Fatalf("SaveActor failed: %v", err)
	}
	if other.Id == full.Id {
		t.Error("A different real oid must not be merged by webfinger")
	}
}
