// Package cache keeps a process-wide in-memory view of actors, their users
// and the friend/follower relations of "my" actors.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/db"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

// Store is the part of the database the cache reads from.
type Store interface {
	ActorById(ctx context.Context, id int64) (*domain.Actor, error)
	UserById(ctx context.Context, id int64) (*domain.User, error)
	MyUsers(ctx context.Context) ([]*domain.User, error)
	GroupMembers(ctx context.Context, groupType domain.GroupType, parentId int64) ([]int64, error)
}

type oidKey struct {
	originId int64
	oid      string
}

type Cache struct {
	mu    sync.RWMutex
	store Store
	log   *log.Logger

	actors     map[int64]*domain.Actor
	byOid      map[oidKey]int64
	byUsername map[oidKey]int64
	users      map[int64]*domain.User
	myActors   domain.IdSet

	// other actor -> my actors that follow it / are followed by it
	friendsOf   map[int64]domain.IdSet
	followersOf map[int64]domain.IdSet
}

func New(store Store) *Cache {
	return &Cache{
		store:       store,
		log:         util.Logger("Cache"),
		actors:      make(map[int64]*domain.Actor),
		byOid:       make(map[oidKey]int64),
		byUsername:  make(map[oidKey]int64),
		users:       make(map[int64]*domain.User),
		myActors:    domain.NewIdSet(),
		friendsOf:   make(map[int64]domain.IdSet),
		followersOf: make(map[int64]domain.IdSet),
	}
}

// Load returns the cached actor, reading it from the store when it is not
// cached or reloadFirst is set. A reloaded row replaces the cached actor
// unless the cached one is strictly newer. A miss returns an empty actor.
func (c *Cache) Load(ctx context.Context, actorId int64, reloadFirst bool) *domain.Actor {
	if actorId == 0 {
		return domain.EmptyActor()
	}
	if !reloadFirst {
		c.mu.RLock()
		cached, ok := c.actors[actorId]
		c.mu.RUnlock()
		if ok {
			return cached.Clone()
		}
	}

	a, err := c.store.ActorById(ctx, actorId)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			c.log.Error("Failed to load actor", "actorId", actorId, "err", err)
		}
		return domain.EmptyActor()
	}
	c.loadUser(ctx, a.UserId)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.actors[actorId]; ok && cached.IsNewerThan(a) {
		return cached.Clone()
	}
	c.put(a)
	return a.Clone()
}

// loadUser caches the user of a freshly loaded actor.
func (c *Cache) loadUser(ctx context.Context, userId int64) {
	if userId == 0 {
		return
	}
	c.mu.RLock()
	_, ok := c.users[userId]
	c.mu.RUnlock()
	if ok {
		return
	}
	u, err := c.store.UserById(ctx, userId)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			c.log.Error("Failed to load user", "userId", userId, "err", err)
		}
		return
	}
	c.UpdateUser(u)
}

// UpdateCache admits the actor unless the cached one is better to keep.
// Returns true when the cache now holds the given actor.
func (c *Cache) UpdateCache(a *domain.Actor) bool {
	if a.IsEmpty() || a.Id == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.actors[a.Id]; ok && cached.IsBetterToCacheThan(a) {
		return false
	}
	c.put(a)
	return true
}

// put stores a copy of the actor and refreshes the lookup indices. Callers
// hold the write lock.
func (c *Cache) put(a *domain.Actor) {
	if old, ok := c.actors[a.Id]; ok {
		c.unindex(old)
	}
	stored := a.Clone()
	c.actors[a.Id] = stored
	if stored.Oid != "" {
		c.byOid[oidKey{stored.OriginId, stored.Oid}] = stored.Id
	}
	if stored.Username != "" {
		c.byUsername[oidKey{stored.OriginId, strings.ToLower(stored.Username)}] = stored.Id
	}
}

func (c *Cache) unindex(a *domain.Actor) {
	if id, ok := c.byOid[oidKey{a.OriginId, a.Oid}]; ok && id == a.Id {
		delete(c.byOid, oidKey{a.OriginId, a.Oid})
	}
	key := oidKey{a.OriginId, strings.ToLower(a.Username)}
	if id, ok := c.byUsername[key]; ok && id == a.Id {
		delete(c.byUsername, key)
	}
}

// Get returns the cached actor without touching the store.
func (c *Cache) Get(actorId int64) *domain.Actor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a, ok := c.actors[actorId]; ok {
		return a.Clone()
	}
	return domain.EmptyActor()
}

func (c *Cache) ByOid(originId int64, oid string) *domain.Actor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.byOid[oidKey{originId, oid}]; ok {
		return c.actors[id].Clone()
	}
	return domain.EmptyActor()
}

func (c *Cache) ByUsername(originId int64, username string) *domain.Actor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.byUsername[oidKey{originId, strings.ToLower(username)}]; ok {
		return c.actors[id].Clone()
	}
	return domain.EmptyActor()
}

// Remove forgets an actor, e.g. after it was merged into another one.
func (c *Cache) Remove(actorId int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.actors[actorId]; ok {
		c.unindex(a)
		delete(c.actors, actorId)
	}
	c.myActors.Remove(actorId)
	for _, index := range []map[int64]domain.IdSet{c.friendsOf, c.followersOf} {
		delete(index, actorId)
		for other, mine := range index {
			mine.Remove(actorId)
			if len(mine) == 0 {
				delete(index, other)
			}
		}
	}
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.actors)
}
