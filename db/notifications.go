package db

import (
	"context"
	"fmt"
	"time"

	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

const (
	sqlIncrementNotification = `INSERT INTO notification(event_type, actor_id, count, updated_date) VALUES (?, ?, 1, ?)
		ON CONFLICT(event_type, actor_id) DO UPDATE SET
			count = notification.count + 1,
			updated_date = max(notification.updated_date, excluded.updated_date)`
	sqlSelectTimeline = `SELECT id, timeline_type, actor_id, origin_id, youngest_position, youngest_date, synced_date FROM timeline`
	sqlUpsertTimeline = `INSERT INTO timeline(timeline_type, actor_id, origin_id, youngest_position, youngest_date, synced_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(timeline_type, actor_id, origin_id) DO UPDATE SET
			youngest_position = excluded.youngest_position,
			youngest_date = excluded.youngest_date,
			synced_date = excluded.synced_date`
)

func (s *queries) IncrementNotification(ctx context.Context, event domain.NotificationEventType, actorId int64, at time.Time) error {
	if _, err := s.execWithRetry(ctx, sqlIncrementNotification, event.Code(), actorId, util.ToMillis(at)); err != nil {
		return fmt.Errorf("counting %s notification of actor %d: %w", event, actorId, err)
	}
	return nil
}

func (s *queries) NotificationCounters(ctx context.Context) ([]domain.NotificationCounter, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT event_type, actor_id, count, updated_date FROM notification
		ORDER BY event_type, actor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []domain.NotificationCounter
	for rows.Next() {
		var c domain.NotificationCounter
		var event, updated int64
		if err := rows.Scan(&event, &c.ActorId, &c.Count, &updated); err != nil {
			return counters, err
		}
		c.Event = domain.NotificationEventTypeFromCode(event)
		c.UpdatedAt = util.FromMillis(updated)
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// SaveTimeline upserts the sync position and sets the Id.
func (s *queries) SaveTimeline(ctx context.Context, tl *domain.Timeline) error {
	_, err := s.execWithRetry(ctx, sqlUpsertTimeline, tl.TimelineType, tl.ActorId, tl.OriginId, tl.YoungestPosition,
		util.ToMillis(tl.YoungestDate), util.ToMillis(tl.SyncedDate))
	if err != nil {
		return fmt.Errorf("saving timeline %s: %w", tl.TimelineType, err)
	}
	stored, err := s.Timeline(ctx, tl.TimelineType, tl.ActorId, tl.OriginId)
	if err != nil {
		return err
	}
	tl.Id = stored.Id
	return nil
}

func (s *queries) Timeline(ctx context.Context, timelineType string, actorId, originId int64) (*domain.Timeline, error) {
	var tl domain.Timeline
	var youngest, synced int64
	err := s.q.QueryRowContext(ctx, sqlSelectTimeline+` WHERE timeline_type = ? AND actor_id = ? AND origin_id = ?`,
		timelineType, actorId, originId).
		Scan(&tl.Id, &tl.TimelineType, &tl.ActorId, &tl.OriginId, &tl.YoungestPosition, &youngest, &synced)
	if err != nil {
		return nil, notFound(err)
	}
	tl.YoungestDate = util.FromMillis(youngest)
	tl.SyncedDate = util.FromMillis(synced)
	return &tl, nil
}

// Counts returns the number of rows per table.
func (s *queries) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, table := range []string{"origin", "user", "actor", "note", "audience", "activity", "group_member", "notification", "timeline"} {
		var n int64
		if err := s.q.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
