package checker

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

// ActorStore is the part of the database the users pass works on.
type ActorStore interface {
	AllOrigins(ctx context.Context) ([]*domain.Origin, error)
	AllActors(ctx context.Context) ([]*domain.Actor, error)
	AllUsers(ctx context.Context) ([]*domain.User, error)
	UpdateActorWebFinger(ctx context.Context, actorId int64, webFingerId string) error
	CreateUserFor(ctx context.Context, a *domain.Actor, isMyUser domain.TriState) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	MergeActors(ctx context.Context, winner *domain.Actor, loserId int64) error
	MergeUsers(ctx context.Context, winner *domain.User, loserId int64) error
}

// CacheUpdater is told about actors and users that were merged away, and
// rereads the actors that absorbed them.
type CacheUpdater interface {
	Load(ctx context.Context, actorId int64, reloadFirst bool) *domain.Actor
	Remove(actorId int64)
	RemoveUser(userId int64)
	IsMe(actorId int64) bool
}

// Users merges duplicate actors and keeps the user rows consistent with them.
type Users struct {
	store ActorStore
	cache CacheUpdater
	log   *log.Logger
}

// NewUsers creates the users pass; cache may be nil.
func NewUsers(store ActorStore, cache CacheUpdater) *Users {
	return &Users{store: store, cache: cache, log: util.Logger("Users")}
}

type actorKey struct {
	originId int64
	name     string
}

// Fix returns the number of actors and users fixed, or to fix when counting only.
func (u *Users) Fix(ctx context.Context, opts Options) (int, error) {
	origins, err := u.store.AllOrigins(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading origins: %w", err)
	}
	hosts := make(map[int64]string, len(origins))
	for _, o := range origins {
		hosts[o.Id] = o.Host
	}
	actors, err := u.store.AllActors(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading actors: %w", err)
	}

	fixed := 0
	steps := []func(context.Context, []*domain.Actor, map[int64]string, Options) ([]*domain.Actor, int, error){
		u.fixWebFingerIds,
		u.mergeDuplicateActors,
		u.fixMissingUsers,
	}
	for i, step := range steps {
		if ctx.Err() != nil {
			return fixed, fmt.Errorf("%w after %d fixes", ErrCancelled, fixed)
		}
		var n int
		actors, n, err = step(ctx, actors, hosts, opts)
		fixed += n
		if err != nil {
			return fixed, err
		}
		opts.report("users", i+1, len(steps)+2)
	}

	n, err := u.deleteOrphanUsers(ctx, opts)
	fixed += n
	if err != nil {
		return fixed, err
	}
	opts.report("users", len(steps)+1, len(steps)+2)

	n, err = u.mergeUsersAcrossOrigins(ctx, actors, opts)
	fixed += n
	if err != nil {
		return fixed, err
	}
	opts.report("users", len(steps)+2, len(steps)+2)

	u.log.Info("Users checked", "actors", len(actors), "fixed", fixed, "countOnly", opts.CountOnly)
	return fixed, nil
}

func (u *Users) fixWebFingerIds(ctx context.Context, actors []*domain.Actor, hosts map[int64]string, opts Options) ([]*domain.Actor, int, error) {
	fixed := 0
	for _, a := range actors {
		if a.GroupType.IsPseudo() {
			continue
		}
		wf := a.NormalizedWebFingerId(hosts[a.OriginId])
		if wf == "" || wf == a.WebFingerId {
			continue
		}
		fixed++
		if !opts.CountOnly {
			if err := u.store.UpdateActorWebFinger(ctx, a.Id, wf); err != nil {
				u.log.Error("Failed to fix webfinger id", "actorId", a.Id, "err", err)
				continue
			}
		}
		a.WebFingerId = wf
	}
	return actors, fixed, nil
}

// mergeDuplicateActors merges actors of one origin with the same webfinger id
// (or username) into the one with a real oid, or into the oldest one when
// none has a real oid.
func (u *Users) mergeDuplicateActors(ctx context.Context, actors []*domain.Actor, _ map[int64]string, opts Options) ([]*domain.Actor, int, error) {
	groups := make(map[actorKey][]*domain.Actor)
	var keys []actorKey
	for _, a := range actors {
		if a.GroupType.IsPseudo() {
			continue
		}
		name := a.WebFingerId
		if name == "" {
			name = strings.ToLower(a.Username)
		}
		if name == "" {
			continue
		}
		key := actorKey{a.OriginId, name}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], a)
	}

	merged := domain.NewIdSet()
	fixed := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return survivors(actors, merged), fixed, fmt.Errorf("%w after %d fixes", ErrCancelled, fixed)
		}
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		winner, ok := pickWinner(group)
		if !ok {
			u.log.Warn("Skipping duplicates with several real oids", "originId", key.originId, "name", key.name, "actors", len(group))
			continue
		}
		for _, loser := range group {
			if loser.Id == winner.Id {
				continue
			}
			fixed++
			if opts.CountOnly {
				continue
			}
			candidate := winner.Clone()
			candidate.MergeFrom(loser)
			if err := u.store.MergeActors(ctx, candidate, loser.Id); err != nil {
				u.log.Error("Failed to merge actor", "actorId", loser.Id, "into", winner.Id, "err", err)
				fixed--
				continue
			}
			*winner = *candidate
			merged.Add(loser.Id)
			if u.cache != nil {
				u.cache.Remove(loser.Id)
				u.cache.Load(ctx, winner.Id, true)
			}
			u.log.Info("Merged actor", "actorId", loser.Id, "into", winner.Id, "name", key.name)
		}
	}
	return survivors(actors, merged), fixed, nil
}

// pickWinner returns the only actor with a real oid, or the oldest one
// when no actor has a real oid.
func pickWinner(group []*domain.Actor) (*domain.Actor, bool) {
	var withRealOid []*domain.Actor
	oldest := group[0]
	for _, a := range group {
		if domain.IsRealOid(a.Oid) {
			withRealOid = append(withRealOid, a)
		}
		if a.Id < oldest.Id {
			oldest = a
		}
	}
	switch len(withRealOid) {
	case 0:
		return oldest, true
	case 1:
		return withRealOid[0], true
	default:
		return nil, false
	}
}

func survivors(actors []*domain.Actor, merged domain.IdSet) []*domain.Actor {
	if len(merged) == 0 {
		return actors
	}
	out := make([]*domain.Actor, 0, len(actors)-len(merged))
	for _, a := range actors {
		if !merged.Has(a.Id) {
			out = append(out, a)
		}
	}
	return out
}

func (u *Users) fixMissingUsers(ctx context.Context, actors []*domain.Actor, _ map[int64]string, opts Options) ([]*domain.Actor, int, error) {
	users, err := u.store.AllUsers(ctx)
	if err != nil {
		return actors, 0, fmt.Errorf("loading users: %w", err)
	}
	known := domain.NewIdSet()
	for _, user := range users {
		known.Add(user.Id)
	}

	fixed := 0
	for _, a := range actors {
		if a.GroupType.IsPseudo() || (a.UserId != 0 && known.Has(a.UserId)) {
			continue
		}
		fixed++
		if opts.CountOnly {
			continue
		}
		isMine := domain.Unknown
		if u.cache != nil && u.cache.IsMe(a.Id) {
			isMine = domain.True
		}
		if _, err := u.store.CreateUserFor(ctx, a, isMine); err != nil {
			u.log.Error("Failed to create user", "actorId", a.Id, "err", err)
			fixed--
		}
	}
	return actors, fixed, nil
}

func (u *Users) deleteOrphanUsers(ctx context.Context, opts Options) (int, error) {
	users, err := u.store.AllUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading users: %w", err)
	}
	fixed := 0
	for _, user := range users {
		if len(user.ActorIds) > 0 || user.IsMyUser.IsTrue() {
			continue
		}
		fixed++
		if opts.CountOnly {
			continue
		}
		if err := u.store.DeleteUser(ctx, user.Id); err != nil {
			u.log.Error("Failed to delete orphan user", "userId", user.Id, "err", err)
			fixed--
			continue
		}
		if u.cache != nil {
			u.cache.RemoveUser(user.Id)
		}
	}
	return fixed, nil
}

// mergeUsersAcrossOrigins gives actors sharing a webfinger id one user,
// keeping the user marked mine, else the oldest one.
func (u *Users) mergeUsersAcrossOrigins(ctx context.Context, actors []*domain.Actor, opts Options) (int, error) {
	users, err := u.store.AllUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading users: %w", err)
	}
	byId := make(map[int64]*domain.User, len(users))
	for _, user := range users {
		byId[user.Id] = user
	}
	userOf := make(map[int64]int64)
	for _, user := range users {
		for actorId := range user.ActorIds {
			userOf[actorId] = user.Id
		}
	}

	byWebFinger := make(map[string]domain.IdSet)
	var names []string
	for _, a := range actors {
		if a.WebFingerId == "" || a.GroupType.IsPseudo() {
			continue
		}
		userId := userOf[a.Id]
		if userId == 0 {
			continue
		}
		if _, ok := byWebFinger[a.WebFingerId]; !ok {
			byWebFinger[a.WebFingerId] = domain.NewIdSet()
			names = append(names, a.WebFingerId)
		}
		byWebFinger[a.WebFingerId].Add(userId)
	}

	fixed := 0
	for _, name := range names {
		var ids []int64
		for _, id := range byWebFinger[name].Sorted() {
			if byId[id] != nil {
				ids = append(ids, id)
			}
		}
		if len(ids) < 2 {
			continue
		}
		winner := byId[ids[0]]
		for _, id := range ids {
			if byId[id].IsMyUser.IsTrue() {
				winner = byId[id]
				break
			}
		}
		for _, id := range ids {
			if id == winner.Id {
				continue
			}
			fixed++
			if opts.CountOnly {
				continue
			}
			candidate := winner.Clone()
			candidate.Absorb(byId[id])
			if err := u.store.MergeUsers(ctx, candidate, id); err != nil {
				u.log.Error("Failed to merge user", "userId", id, "into", winner.Id, "err", err)
				fixed--
				continue
			}
			*winner = *candidate
			delete(byId, id)
			if u.cache != nil {
				u.cache.RemoveUser(id)
			}
		}
	}
	return fixed, nil
}
