package db

import (
	"context"
	"fmt"
	"time"

	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

const (
	sqlSelectActivity = `SELECT id, origin_id, activity_oid, activity_type, actor_id, note_id, obj_actor_id,
		notified_actor_id, event_type, updated_date, ins_date FROM activity`
	sqlInsertActivity = `INSERT OR IGNORE INTO activity(origin_id, activity_oid, activity_type, actor_id, note_id,
		obj_actor_id, notified_actor_id, event_type, updated_date, ins_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateActivity = `UPDATE activity SET activity_type = ?, actor_id = ?, note_id = ?, obj_actor_id = ?,
		notified_actor_id = ?, event_type = ?, updated_date = ? WHERE id = ?`
)

func scanActivity(s scanner) (*domain.ActivityRecord, error) {
	var r domain.ActivityRecord
	var activityType string
	var event, updated, inserted int64
	err := s.Scan(&r.Id, &r.OriginId, &r.Oid, &activityType, &r.ActorId, &r.NoteId, &r.ObjActorId,
		&r.NotifiedActorId, &event, &updated, &inserted)
	if err != nil {
		return nil, err
	}
	r.Type = domain.ActivityTypeOf(activityType)
	r.Event = domain.NotificationEventTypeFromCode(event)
	r.UpdatedAt = util.FromMillis(updated)
	r.InsertedAt = util.FromMillis(inserted)
	return &r, nil
}

func (s *queries) ActivityByOid(ctx context.Context, originId int64, oid string) (*domain.ActivityRecord, error) {
	r, err := scanActivity(s.q.QueryRowContext(ctx, sqlSelectActivity+` WHERE origin_id = ? AND activity_oid = ?`, originId, oid))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// UpsertActivity stores the activity keyed by (origin, oid) and sets its Id.
// inserted is false when the activity was already known; its row is then
// refreshed without touching the notification event.
func (s *queries) UpsertActivity(ctx context.Context, r *domain.ActivityRecord) (inserted bool, err error) {
	if r.InsertedAt.IsZero() {
		r.InsertedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx, sqlInsertActivity, r.OriginId, r.Oid, string(r.Type), r.ActorId, r.NoteId,
		r.ObjActorId, r.NotifiedActorId, r.Event.Code(), util.ToMillis(r.UpdatedAt), util.ToMillis(r.InsertedAt))
	if err != nil {
		return false, fmt.Errorf("inserting activity %s: %w", r.Oid, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.Id, err = res.LastInsertId()
		return true, err
	}

	stored, err := s.ActivityByOid(ctx, r.OriginId, r.Oid)
	if err != nil {
		return false, err
	}
	r.Id = stored.Id
	r.Event = stored.Event
	r.NotifiedActorId = stored.NotifiedActorId
	r.InsertedAt = stored.InsertedAt
	_, err = s.execWithRetry(ctx, sqlUpdateActivity, string(r.Type), r.ActorId, r.NoteId, r.ObjActorId,
		r.NotifiedActorId, r.Event.Code(), util.ToMillis(r.UpdatedAt), r.Id)
	if err != nil {
		return false, fmt.Errorf("updating activity %s: %w", r.Oid, err)
	}
	return false, nil
}

// SetActivityEvent records the notification produced by a new activity.
func (s *queries) SetActivityEvent(ctx context.Context, activityId int64, event domain.NotificationEventType, notifiedActorId int64) error {
	_, err := s.execWithRetry(ctx, `UPDATE activity SET event_type = ?, notified_actor_id = ? WHERE id = ?`,
		event.Code(), notifiedActorId, activityId)
	return err
}
