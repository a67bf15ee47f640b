// Package ingest applies connector activities to the store, one logical
// transaction per activity.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/audience"
	"github.com/deemkeen/andstatus/cache"
	"github.com/deemkeen/andstatus/connector"
	"github.com/deemkeen/andstatus/db"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

// Result tells what one activity changed.
type Result struct {
	ActivityId int64
	// Inserted is false when the activity oid had been seen before
	Inserted        bool
	NoteId          int64
	Event           domain.NotificationEventType
	NotifiedActorId int64
	Audience        *domain.Audience
}

type Updater struct {
	store    *db.DB
	cache    *cache.Cache
	audience *audience.Resolver
	log      *log.Logger
}

func NewUpdater(store *db.DB, c *cache.Cache) *Updater {
	return &Updater{
		store:    store,
		cache:    c,
		audience: audience.NewResolver(),
		log:      util.Logger("Ingest"),
	}
}

// apply is the state of one activity within its transaction.
type apply struct {
	u      *Updater
	tx     *db.Tx
	act    *domain.Activity
	origin *domain.Origin
	res    *Result

	actor    *domain.Actor
	author   *domain.Actor
	objActor *domain.Actor
	note     *domain.Note
	parent   *domain.Note

	touched map[int64]*domain.Actor
	changed domain.IdSet
}

// OnActivity makes the updater a connector sink.
func (u *Updater) OnActivity(ctx context.Context, act *domain.Activity) error {
	_, err := u.Apply(ctx, act)
	return err
}

// Apply stores the activity with its actors, note, audience and
// notification event. Missing parts are stored as empty values; only store
// failures are returned.
func (u *Updater) Apply(ctx context.Context, act *domain.Activity) (*Result, error) {
	if act == nil {
		return nil, errors.New("nil activity")
	}
	var a *apply
	err := u.store.InTransaction(ctx, func(tx *db.Tx) error {
		a = &apply{
			u:       u,
			tx:      tx,
			act:     act,
			res:     &Result{},
			touched: make(map[int64]*domain.Actor),
			changed: domain.NewIdSet(),
		}
		return a.run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("applying activity %s: %w", act.Oid, err)
	}
	a.updateCache(ctx)
	u.log.Debug("Activity applied", "type", act.Type, "oid", act.Oid, "noteId", a.res.NoteId,
		"inserted", a.res.Inserted, "event", a.res.Event)
	return a.res, nil
}

func (a *apply) run(ctx context.Context) error {
	origin, err := a.tx.OriginById(ctx, a.act.OriginId)
	if err != nil {
		return fmt.Errorf("origin %d: %w", a.act.OriginId, err)
	}
	a.origin = origin

	if a.actor, err = a.saveActor(ctx, a.act.Actor); err != nil {
		return err
	}
	if a.author, err = a.saveActor(ctx, a.act.Author); err != nil {
		return err
	}
	if a.objActor, err = a.saveActor(ctx, a.act.ObjActor); err != nil {
		return err
	}

	typ := activityType(a.act.Type)
	switch typ {
	case domain.ActivityCreate, domain.ActivityUpdate:
		// the actor authors what it creates unless told otherwise
		if a.author == nil {
			a.author = a.actor
		}
		if a.act.Note != nil {
			err = a.saveNote(ctx)
		}
	case domain.ActivityDelete:
		err = a.deleteNote(ctx)
	case domain.ActivityAnnounce, domain.ActivityLike:
		err = a.referenceNote(ctx)
	case domain.ActivityFollow:
		err = a.follow(ctx, true)
	case domain.ActivityUndo:
		switch activityType(a.act.UndoneType) {
		case domain.ActivityFollow:
			err = a.follow(ctx, false)
		case domain.ActivityLike, domain.ActivityAnnounce:
			err = a.referenceNote(ctx)
		}
	default:
		a.u.log.Debug("Activity recorded only", "type", typ, "oid", a.act.Oid)
	}
	if err != nil {
		return err
	}

	// the addressing of Like or Announce is not the note's audience
	if a.note != nil && a.act.Addressing != nil && (typ == domain.ActivityCreate || typ == domain.ActivityUpdate) {
		aud, err := a.u.audience.ResolveAndSave(ctx, a.tx, a.origin.Id, a.note.Id, a.act.Addressing)
		if err != nil {
			return err
		}
		a.res.Audience = aud
	}
	return a.record(ctx)
}

func activityType(t domain.ActivityType) domain.ActivityType {
	return domain.ActivityTypeOf(string(t))
}

// saveActor upserts one referenced actor of the activity. Returns nil when
// the activity carries none.
func (a *apply) saveActor(ctx context.Context, in *domain.Actor) (*domain.Actor, error) {
	if in.IsEmpty() {
		return nil, nil
	}
	c := in.Clone()
	c.OriginId = a.origin.Id
	if wf := c.NormalizedWebFingerId(a.origin.Host); wf != "" {
		c.WebFingerId = wf
	}
	stored, changed, err := a.tx.SaveActor(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("saving actor %s: %w", c.UniqueName(), err)
	}
	a.touched[stored.Id] = stored
	if changed {
		a.changed.Add(stored.Id)
	}
	return stored, nil
}

func (a *apply) actorId(x *domain.Actor) int64 {
	if x == nil {
		return 0
	}
	return x.Id
}

func (a *apply) follow(ctx context.Context, follow bool) error {
	if a.actor == nil || a.objActor == nil {
		a.u.log.Warn("Follow without both actors", "oid", a.act.Oid)
		return nil
	}
	change := a.tx.AddGroupMember
	if !follow {
		change = a.tx.RemoveGroupMember
	}
	if err := change(ctx, domain.GroupFriends, a.actor.Id, a.objActor.Id); err != nil {
		return err
	}
	return change(ctx, domain.GroupFollowers, a.objActor.Id, a.actor.Id)
}

// activityOid returns the oid of the activity, deriving a stable synthetic
// one from its content when the payload had none.
func (a *apply) activityOid() string {
	if a.act.Oid != "" {
		return a.act.Oid
	}
	parts := []string{string(a.act.Type), string(a.act.UndoneType)}
	if a.actor != nil {
		parts = append(parts, a.actor.Oid)
	}
	if a.note != nil {
		parts = append(parts, a.note.Oid)
	}
	if a.objActor != nil {
		parts = append(parts, a.objActor.Oid)
	}
	return domain.TempOidFor(strings.Join(parts, ":"))
}

func (a *apply) record(ctx context.Context) error {
	r := &domain.ActivityRecord{
		OriginId:   a.origin.Id,
		Oid:        a.activityOid(),
		Type:       activityType(a.act.Type),
		ActorId:    a.actorId(a.actor),
		ObjActorId: a.actorId(a.objActor),
		UpdatedAt:  a.act.UpdatedAt,
	}
	if a.note != nil {
		r.NoteId = a.note.Id
		a.res.NoteId = a.note.Id
	}
	inserted, err := a.tx.UpsertActivity(ctx, r)
	if err != nil {
		return err
	}
	a.res.ActivityId = r.Id
	a.res.Inserted = inserted
	if !inserted {
		a.res.Event = r.Event
		a.res.NotifiedActorId = r.NotifiedActorId
		return nil
	}

	event, notified := a.event()
	if event == domain.EventEmpty {
		return nil
	}
	if err := a.tx.SetActivityEvent(ctx, r.Id, event, notified); err != nil {
		return err
	}
	at := a.act.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if err := a.tx.IncrementNotification(ctx, event, a.actorId(a.actor), at); err != nil {
		return err
	}
	a.res.Event = event
	a.res.NotifiedActorId = notified
	return nil
}

// event picks the notification a new activity raises for one of my actors.
func (a *apply) event() (domain.NotificationEventType, int64) {
	c := a.u.cache
	if c == nil {
		return domain.EventEmpty, 0
	}
	actingId := a.actorId(a.actor)
	isOther := func(id int64) bool { return id != 0 && id != actingId && c.IsMe(id) }

	switch activityType(a.act.Type) {
	case domain.ActivityFollow:
		if a.objActor != nil && isOther(a.objActor.Id) {
			return domain.EventFollow, a.objActor.Id
		}
	case domain.ActivityLike:
		if a.note != nil && isOther(a.note.AuthorId) {
			return domain.EventLike, a.note.AuthorId
		}
	case domain.ActivityAnnounce:
		if a.note != nil && isOther(a.note.AuthorId) {
			return domain.EventAnnounce, a.note.AuthorId
		}
	case domain.ActivityCreate:
		if a.note == nil {
			break
		}
		if a.parent != nil && isOther(a.parent.AuthorId) {
			return domain.EventReply, a.parent.AuthorId
		}
		if a.res.Audience != nil {
			for _, id := range a.res.Audience.ActorIds() {
				if isOther(id) {
					return domain.EventMention, id
				}
			}
		}
	}
	return domain.EventEmpty, 0
}

// updateCache runs after commit. Actors the activity changed are reloaded
// so that a partial actor upgraded in place replaces its cached copy.
func (a *apply) updateCache(ctx context.Context) {
	c := a.u.cache
	if c == nil {
		return
	}
	for id, actor := range a.touched {
		if a.changed.Has(id) {
			c.Load(ctx, id, true)
		} else {
			c.UpdateCache(actor)
		}
	}

	typ := activityType(a.act.Type)
	follow := typ == domain.ActivityFollow
	unfollow := typ == domain.ActivityUndo && activityType(a.act.UndoneType) == domain.ActivityFollow
	if (!follow && !unfollow) || a.actor == nil || a.objActor == nil {
		return
	}
	if c.IsMe(a.actor.Id) {
		if follow {
			c.AddFriend(a.actor.Id, a.objActor.Id)
		} else {
			c.RemoveFriend(a.actor.Id, a.objActor.Id)
		}
	}
	if c.IsMe(a.objActor.Id) {
		if follow {
			c.AddFollower(a.objActor.Id, a.actor.Id)
		} else {
			c.RemoveFollower(a.objActor.Id, a.actor.Id)
		}
	}
}

// Sync drains the connector into the updater and stores the timeline
// position, also after a partial run.
func (u *Updater) Sync(ctx context.Context, c connector.Connector, tl *domain.Timeline) (int, error) {
	var last *domain.Activity
	n, err := connector.Drain(ctx, c, connector.SinkFunc(func(ctx context.Context, act *domain.Activity) error {
		if err := u.OnActivity(ctx, act); err != nil {
			return err
		}
		last = act
		return nil
	}))

	if tl != nil {
		tl.SyncedDate = time.Now()
		if last != nil {
			tl.YoungestPosition = last.Oid
			if last.UpdatedAt.After(tl.YoungestDate) {
				tl.YoungestDate = last.UpdatedAt
			}
		}
		if serr := u.store.SaveTimeline(context.WithoutCancel(ctx), tl); serr != nil {
			u.log.Error("Failed to save timeline", "timeline", tl.TimelineType, "err", serr)
			if err == nil {
				err = serr
			}
		}
	}
	u.log.Info("Sync done", "activities", n, "err", err)
	return n, err
}
