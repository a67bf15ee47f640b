package domain

import "fmt"

// User groups the Actors of different origins that belong to one real person.
// ActorIds is the inverse of Actor.UserId.
type User struct {
	Id       int64
	KnownAs  string
	IsMyUser TriState
	ActorIds IdSet
}

func NewUser(knownAs string, isMyUser TriState) *User {
	return &User{KnownAs: knownAs, IsMyUser: isMyUser, ActorIds: NewIdSet()}
}

func (u *User) IsEmpty() bool {
	return u == nil || (u.Id == 0 && len(u.ActorIds) == 0)
}

// Absorb moves the other User's actors into u. The "mine" flag survives
// when either side had it.
func (u *User) Absorb(other *User) {
	if u.ActorIds == nil {
		u.ActorIds = NewIdSet()
	}
	for id := range other.ActorIds {
		u.ActorIds.Add(id)
	}
	if other.IsMyUser.IsTrue() {
		u.IsMyUser = True
	} else if !u.IsMyUser.IsKnown() {
		u.IsMyUser = other.IsMyUser
	}
	if u.KnownAs == "" {
		u.KnownAs = other.KnownAs
	}
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.ActorIds = u.ActorIds.Clone()
	return &c
}

func (u *User) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tKnownAs: %s \n\tIsMyUser: %s \n\tActors: %v", u.Id, u.KnownAs, u.IsMyUser, u.ActorIds.Sorted())
}
