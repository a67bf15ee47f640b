package cache

import (
	"context"
	"fmt"

	"github.com/deemkeen/andstatus/domain"
)

func (c *Cache) UpdateUser(u *domain.User) {
	if u.IsEmpty() || u.Id == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.Id] = u.Clone()
	if u.IsMyUser.IsTrue() {
		for id := range u.ActorIds {
			c.myActors.Add(id)
		}
	}
}

func (c *Cache) RemoveUser(userId int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userId)
}

// UserOf returns the cached user of the actor, or nil.
func (c *Cache) UserOf(actorId int64) *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actors[actorId]
	if !ok || a.UserId == 0 {
		return nil
	}
	return c.users[a.UserId].Clone()
}

// AddMyActor marks the actor as one of my accounts.
func (c *Cache) AddMyActor(a *domain.Actor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.myActors.Add(a.Id)
	if a.Id != 0 {
		if cached, ok := c.actors[a.Id]; !ok || !cached.IsBetterToCacheThan(a) {
			c.put(a)
		}
	}
}

func (c *Cache) MyActorIds() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.myActors.Sorted()
}

// IsMe reports whether the actor is one of my accounts or belongs to a user
// marked as mine.
func (c *Cache) IsMe(actorId int64) bool {
	if actorId == 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isMe(actorId)
}

func (c *Cache) isMe(actorId int64) bool {
	if c.myActors.Has(actorId) {
		return true
	}
	a, ok := c.actors[actorId]
	if !ok || a.UserId == 0 {
		return false
	}
	u, ok := c.users[a.UserId]
	return ok && u.IsMyUser.IsTrue()
}

func (c *Cache) IsMeOrMyFriend(a *domain.Actor) bool {
	if a.IsEmpty() || a.Id == 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isMe(a.Id) || len(c.friendsOf[a.Id]) > 0
}

// SetFriendsOf replaces the actors my actor follows.
func (c *Cache) SetFriendsOf(myActorId int64, friendIds []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replaceMembers(c.friendsOf, myActorId, friendIds)
}

// SetFollowersOf replaces the actors following my actor.
func (c *Cache) SetFollowersOf(myActorId int64, followerIds []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replaceMembers(c.followersOf, myActorId, followerIds)
}

func (c *Cache) AddFriend(myActorId, friendId int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addMember(c.friendsOf, myActorId, friendId)
}

func (c *Cache) RemoveFriend(myActorId, friendId int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removeMember(c.friendsOf, myActorId, friendId)
}

func (c *Cache) AddFollower(myActorId, followerId int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addMember(c.followersOf, myActorId, followerId)
}

func (c *Cache) RemoveFollower(myActorId, followerId int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removeMember(c.followersOf, myActorId, followerId)
}

// MyActorsFollowing returns my actors that follow the other actor.
func (c *Cache) MyActorsFollowing(otherId int64) []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.friendsOf[otherId].Sorted()
}

// MyActorsFollowedBy returns my actors the other actor follows.
func (c *Cache) MyActorsFollowedBy(otherId int64) []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.followersOf[otherId].Sorted()
}

func replaceMembers(index map[int64]domain.IdSet, myActorId int64, memberIds []int64) {
	for other, mine := range index {
		mine.Remove(myActorId)
		if len(mine) == 0 {
			delete(index, other)
		}
	}
	for _, id := range memberIds {
		addMember(index, myActorId, id)
	}
}

func addMember(index map[int64]domain.IdSet, myActorId, otherId int64) {
	if otherId == 0 || myActorId == 0 {
		return
	}
	mine, ok := index[otherId]
	if !ok {
		mine = domain.NewIdSet()
		index[otherId] = mine
	}
	mine.Add(myActorId)
}

func removeMember(index map[int64]domain.IdSet, myActorId, otherId int64) {
	if mine, ok := index[otherId]; ok {
		mine.Remove(myActorId)
		if len(mine) == 0 {
			delete(index, otherId)
		}
	}
}

// Reload re-reads my users, my actors and their friends and followers.
func (c *Cache) Reload(ctx context.Context) error {
	users, err := c.store.MyUsers(ctx)
	if err != nil {
		return fmt.Errorf("loading my users: %w", err)
	}
	for _, u := range users {
		c.UpdateUser(u)
		for _, actorId := range u.ActorIds.Sorted() {
			a := c.Load(ctx, actorId, true)
			if a.IsEmpty() {
				continue
			}
			c.AddMyActor(a)
		}
	}

	for _, myActorId := range c.MyActorIds() {
		friends, err := c.store.GroupMembers(ctx, domain.GroupFriends, myActorId)
		if err != nil {
			return fmt.Errorf("loading friends of %d: %w", myActorId, err)
		}
		c.SetFriendsOf(myActorId, friends)

		followers, err := c.store.GroupMembers(ctx, domain.GroupFollowers, myActorId)
		if err != nil {
			return fmt.Errorf("loading followers of %d: %w", myActorId, err)
		}
		c.SetFollowersOf(myActorId, followers)
	}
	c.log.Info("Cache reloaded", "myActors", len(c.MyActorIds()), "actors", c.Size())
	return nil
}
