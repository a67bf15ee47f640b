package db

import (
	"context"
	"fmt"

	"github.com/deemkeen/andstatus/domain"
)

const (
	sqlSelectUser  = `SELECT id, known_as, is_my_user FROM user`
	sqlInsertUser  = `INSERT INTO user(known_as, is_my_user) VALUES (?, ?)`
	sqlUpdateUser  = `UPDATE user SET known_as = ?, is_my_user = ? WHERE id = ?`
	sqlUserActors  = `SELECT id, user_id FROM actor WHERE user_id != 0`
	sqlReownActors = `UPDATE actor SET user_id = ? WHERE user_id = ?`
)

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	var isMyUser int64
	if err := s.Scan(&u.Id, &u.KnownAs, &isMyUser); err != nil {
		return nil, err
	}
	u.IsMyUser = domain.TriStateFromCode(isMyUser)
	u.ActorIds = domain.NewIdSet()
	return &u, nil
}

func (s *queries) UserById(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, sqlSelectUser+` WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	ids, err := s.q.QueryContext(ctx, `SELECT id FROM actor WHERE user_id = ?`, id)
	if err != nil {
		return nil, err
	}
	actorIds, err := collectIds(ids)
	if err != nil {
		return nil, err
	}
	u.ActorIds = domain.NewIdSet(actorIds...)
	return u, nil
}

// AllUsers returns every user with the ids of its actors.
func (s *queries) AllUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.q.QueryContext(ctx, sqlSelectUser+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var users []*domain.User
	byId := make(map[int64]*domain.User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		users = append(users, u)
		byId[u.Id] = u
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.q.QueryContext(ctx, sqlUserActors)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var actorId, userId int64
		if err := rows.Scan(&actorId, &userId); err != nil {
			return nil, err
		}
		if u, ok := byId[userId]; ok {
			u.ActorIds.Add(actorId)
		}
	}
	return users, rows.Err()
}

func (s *queries) MyUsers(ctx context.Context) ([]*domain.User, error) {
	all, err := s.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	var mine []*domain.User
	for _, u := range all {
		if u.IsMyUser.IsTrue() {
			mine = append(mine, u)
		}
	}
	return mine, nil
}

// InsertUser stores a new user and sets its Id.
func (s *queries) InsertUser(ctx context.Context, u *domain.User) error {
	res, err := s.execWithRetry(ctx, sqlInsertUser, u.KnownAs, u.IsMyUser.Code())
	if err != nil {
		return fmt.Errorf("inserting user %s: %w", u.KnownAs, err)
	}
	u.Id, err = res.LastInsertId()
	return err
}

func (s *queries) UpdateUser(ctx context.Context, u *domain.User) error {
	if _, err := s.execWithRetry(ctx, sqlUpdateUser, u.KnownAs, u.IsMyUser.Code(), u.Id); err != nil {
		return fmt.Errorf("updating user %d: %w", u.Id, err)
	}
	return nil
}

func (s *queries) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM user WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	return nil
}

// CreateUserFor creates a user owning the actor and links them.
func (s *queries) CreateUserFor(ctx context.Context, a *domain.Actor, isMyUser domain.TriState) (*domain.User, error) {
	u := domain.NewUser(a.UniqueName(), isMyUser)
	if err := s.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	if err := s.SetActorUser(ctx, a.Id, u.Id); err != nil {
		return nil, err
	}
	a.UserId = u.Id
	u.ActorIds.Add(a.Id)
	return u, nil
}

// CreateUserFor runs the user creation and the actor link in one transaction.
func (db *DB) CreateUserFor(ctx context.Context, a *domain.Actor, isMyUser domain.TriState) (*domain.User, error) {
	var u *domain.User
	err := db.InTransaction(ctx, func(tx *Tx) error {
		var err error
		u, err = tx.CreateUserFor(ctx, a, isMyUser)
		return err
	})
	return u, err
}

// MergeUsers moves all actors of the loser to the winner, saves the winner
// and deletes the loser.
func (db *DB) MergeUsers(ctx context.Context, winner *domain.User, loserId int64) error {
	if winner.Id == loserId {
		return fmt.Errorf("cannot merge user %d into itself", loserId)
	}
	return db.InTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.execWithRetry(ctx, sqlReownActors, winner.Id, loserId); err != nil {
			return fmt.Errorf("merging user %d into %d: %w", loserId, winner.Id, err)
		}
		if err := tx.UpdateUser(ctx, winner); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, loserId)
	})
}
