package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

const (
	sqlActorColumns = `id, origin_id, actor_oid, username, webfinger_id, real_name, summary,
		profile_url, homepage_url, avatar_url, notes_count, following_count, followers_count,
		created_date, updated_date, group_type, user_id`
	sqlSelectActor = `SELECT ` + sqlActorColumns + ` FROM actor`
	sqlInsertActor = `INSERT INTO actor(origin_id, actor_oid, username, webfinger_id, real_name, summary,
		profile_url, homepage_url, avatar_url, notes_count, following_count, followers_count,
		created_date, updated_date, group_type, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateActor = `UPDATE actor SET actor_oid = ?, username = ?, webfinger_id = ?, real_name = ?, summary = ?,
		profile_url = ?, homepage_url = ?, avatar_url = ?, notes_count = ?, following_count = ?,
		followers_count = ?, created_date = ?, updated_date = ?, group_type = ?, user_id = ?
		WHERE id = ?`
	sqlInsertPseudoActor = `INSERT OR IGNORE INTO actor(origin_id, actor_oid, username, group_type)
		VALUES (?, ?, ?, ?)`
)

// Statements re-pointing every reference from one actor (second argument)
// to another (first argument).
var sqlMergeActorReferences = []string{
	`UPDATE note SET author_id = ? WHERE author_id = ?`,
	`UPDATE note SET in_reply_to_actor_id = ? WHERE in_reply_to_actor_id = ?`,
	`UPDATE OR IGNORE audience SET actor_id = ? WHERE actor_id = ?`,
	`UPDATE OR IGNORE group_member SET member_actor_id = ? WHERE member_actor_id = ?`,
	`UPDATE OR IGNORE group_member SET parent_actor_id = ? WHERE parent_actor_id = ?`,
	`UPDATE activity SET actor_id = ? WHERE actor_id = ?`,
	`UPDATE activity SET obj_actor_id = ? WHERE obj_actor_id = ?`,
	`UPDATE activity SET notified_actor_id = ? WHERE notified_actor_id = ?`,
	`INSERT INTO notification(event_type, actor_id, count, updated_date)
		SELECT event_type, ?, count, updated_date FROM notification WHERE actor_id = ?
		ON CONFLICT(event_type, actor_id) DO UPDATE SET
			count = notification.count + excluded.count,
			updated_date = max(notification.updated_date, excluded.updated_date)`,
	`UPDATE OR IGNORE timeline SET actor_id = ? WHERE actor_id = ?`,
}

// Rows of the merged actor left behind by UPDATE OR IGNORE duplicates.
var sqlDeleteActorLeftovers = []string{
	`DELETE FROM audience WHERE actor_id = ?`,
	`DELETE FROM group_member WHERE member_actor_id = ?`,
	`DELETE FROM group_member WHERE parent_actor_id = ?`,
	`DELETE FROM notification WHERE actor_id = ?`,
	`DELETE FROM timeline WHERE actor_id = ?`,
	`DELETE FROM actor WHERE id = ?`,
}

func scanActor(s scanner) (*domain.Actor, error) {
	var a domain.Actor
	var created, updated, groupType int64
	err := s.Scan(&a.Id, &a.OriginId, &a.Oid, &a.Username, &a.WebFingerId, &a.RealName, &a.Summary,
		&a.ProfileURL, &a.HomepageURL, &a.AvatarURL, &a.NotesCount, &a.FollowingCount, &a.FollowersCount,
		&created, &updated, &groupType, &a.UserId)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = util.FromMillis(created)
	a.UpdatedAt = util.FromMillis(updated)
	a.GroupType = domain.GroupTypeFromCode(groupType)
	return &a, nil
}

func (s *queries) queryActors(ctx context.Context, query string, args ...any) ([]*domain.Actor, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []*domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return actors, err
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

func (s *queries) ActorById(ctx context.Context, id int64) (*domain.Actor, error) {
	a, err := scanActor(s.q.QueryRowContext(ctx, sqlSelectActor+` WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *queries) ActorByOid(ctx context.Context, originId int64, oid string) (*domain.Actor, error) {
	a, err := scanActor(s.q.QueryRowContext(ctx, sqlSelectActor+` WHERE origin_id = ? AND actor_oid = ?`, originId, oid))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ActorByWebFingerId returns the oldest actor of the origin with this webfinger id.
func (s *queries) ActorByWebFingerId(ctx context.Context, originId int64, webFingerId string) (*domain.Actor, error) {
	a, err := scanActor(s.q.QueryRowContext(ctx,
		sqlSelectActor+` WHERE origin_id = ? AND webfinger_id = ? ORDER BY id LIMIT 1`, originId, webFingerId))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *queries) ActorByUsername(ctx context.Context, originId int64, username string) (*domain.Actor, error) {
	a, err := scanActor(s.q.QueryRowContext(ctx,
		sqlSelectActor+` WHERE origin_id = ? AND username = ? ORDER BY id LIMIT 1`, originId, username))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *queries) AllActors(ctx context.Context) ([]*domain.Actor, error) {
	return s.queryActors(ctx, sqlSelectActor+` ORDER BY id`)
}

func (s *queries) ActorsByIds(ctx context.Context, ids []int64) ([]*domain.Actor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryActors(ctx, sqlSelectActor+` WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`, int64Args(ids)...)
}

// InsertActor stores a new actor and sets its Id.
func (s *queries) InsertActor(ctx context.Context, a *domain.Actor) error {
	res, err := s.execWithRetry(ctx, sqlInsertActor, a.OriginId, a.Oid, a.Username, a.WebFingerId, a.RealName, a.Summary,
		a.ProfileURL, a.HomepageURL, a.AvatarURL, a.NotesCount, a.FollowingCount, a.FollowersCount,
		util.ToMillis(a.CreatedAt), util.ToMillis(a.UpdatedAt), a.GroupType.Code(), a.UserId)
	if err != nil {
		return fmt.Errorf("inserting actor %s: %w", a.Oid, err)
	}
	a.Id, err = res.LastInsertId()
	return err
}

func (s *queries) UpdateActor(ctx context.Context, a *domain.Actor) error {
	_, err := s.execWithRetry(ctx, sqlUpdateActor, a.Oid, a.Username, a.WebFingerId, a.RealName, a.Summary,
		a.ProfileURL, a.HomepageURL, a.AvatarURL, a.NotesCount, a.FollowingCount, a.FollowersCount,
		util.ToMillis(a.CreatedAt), util.ToMillis(a.UpdatedAt), a.GroupType.Code(), a.UserId, a.Id)
	if err != nil {
		return fmt.Errorf("updating actor %d: %w", a.Id, err)
	}
	return nil
}

func (s *queries) UpdateActorWebFinger(ctx context.Context, actorId int64, webFingerId string) error {
	_, err := s.execWithRetry(ctx, `UPDATE actor SET webfinger_id = ? WHERE id = ?`, webFingerId, actorId)
	return err
}

func (s *queries) SetActorUser(ctx context.Context, actorId, userId int64) error {
	_, err := s.execWithRetry(ctx, `UPDATE actor SET user_id = ? WHERE id = ?`, userId, actorId)
	return err
}

// EnsurePseudoActor returns the id of the Public or Followers actor of the origin.
func (s *queries) EnsurePseudoActor(ctx context.Context, originId int64, groupType domain.GroupType) (int64, error) {
	var oid string
	switch groupType {
	case domain.GroupPublic:
		oid = domain.PublicCollectionOid
	case domain.GroupFollowers:
		oid = domain.FollowersCollectionOid
	default:
		return 0, fmt.Errorf("%s is not a pseudo actor", groupType)
	}
	if _, err := s.execWithRetry(ctx, sqlInsertPseudoActor, originId, oid, groupType.String(), groupType.Code()); err != nil {
		return 0, fmt.Errorf("creating %s actor: %w", groupType, err)
	}
	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM actor WHERE origin_id = ? AND actor_oid = ?`, originId, oid).Scan(&id)
	return id, err
}

// MergeActors saves the winner and moves every reference of the loser to it,
// then deletes the loser. Either all of it happens or nothing does.
func (db *DB) MergeActors(ctx context.Context, winner *domain.Actor, loserId int64) error {
	if winner.Id == loserId {
		return fmt.Errorf("cannot merge actor %d into itself", loserId)
	}
	return db.InTransaction(ctx, func(tx *Tx) error {
		if err := tx.UpdateActor(ctx, winner); err != nil {
			return err
		}
		for _, stmt := range sqlMergeActorReferences {
			if _, err := tx.execWithRetry(ctx, stmt, winner.Id, loserId); err != nil {
				return fmt.Errorf("merging actor %d into %d: %w", loserId, winner.Id, err)
			}
		}
		for _, stmt := range sqlDeleteActorLeftovers {
			if _, err := tx.execWithRetry(ctx, stmt, loserId); err != nil {
				return fmt.Errorf("deleting merged actor %d: %w", loserId, err)
			}
		}
		return nil
	})
}

// SaveActor upserts the actor by (origin, oid), falling back to its
// webfinger id or username to find a partial row created earlier. A new
// actor without an oid gets a synthetic one. Returns the stored actor and
// whether the store changed.
func (s *queries) SaveActor(ctx context.Context, in *domain.Actor) (*domain.Actor, bool, error) {
	stored, err := s.findActor(ctx, in)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		a := in.Clone()
		a.Id = 0
		if a.Oid == "" {
			a.Oid = domain.TempOidFor(a.UniqueName())
		}
		if a.GroupType == domain.GroupUnknown {
			a.GroupType = domain.GroupNotAGroup
		}
		if err := s.InsertActor(ctx, a); err != nil {
			return nil, false, err
		}
		return a, true, nil
	}

	if !stored.MergeFrom(in) {
		return stored, false, nil
	}
	if err := s.UpdateActor(ctx, stored); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (s *queries) findActor(ctx context.Context, in *domain.Actor) (*domain.Actor, error) {
	lookups := []func() (*domain.Actor, error){}
	if in.Id != 0 {
		lookups = append(lookups, func() (*domain.Actor, error) { return s.ActorById(ctx, in.Id) })
	}
	if in.Oid != "" {
		lookups = append(lookups, func() (*domain.Actor, error) { return s.ActorByOid(ctx, in.OriginId, in.Oid) })
	}
	if in.WebFingerId != "" {
		lookups = append(lookups, func() (*domain.Actor, error) {
			return s.ActorByWebFingerId(ctx, in.OriginId, in.WebFingerId)
		})
	}
	if in.Username != "" && !domain.IsRealOid(in.Oid) {
		lookups = append(lookups, func() (*domain.Actor, error) {
			return s.ActorByUsername(ctx, in.OriginId, in.Username)
		})
	}

	for i, lookup := range lookups {
		a, err := lookup()
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// two different real oids are two different actors
		if i > 0 && domain.IsRealOid(in.Oid) && domain.IsRealOid(a.Oid) && a.Oid != in.Oid {
			continue
		}
		return a, nil
	}
	return nil, nil
}
