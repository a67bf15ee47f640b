package domain

import (
	"fmt"
	"strings"
	"time"
)

// SomeTimeAgo is the sentinel below which a date means "never updated"
var SomeTimeAgo = time.UnixMilli(1)

// Actor is one identity within one origin. A partially defined Actor
// (synthetic OID, no username, never updated) may be enriched later.
type Actor struct {
	Id             int64
	OriginId       int64
	Oid            string
	Username       string
	WebFingerId    string
	RealName       string
	Summary        string
	ProfileURL     string
	HomepageURL    string
	AvatarURL      string
	NotesCount     int64
	FollowingCount int64
	FollowersCount int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	GroupType      GroupType
	UserId         int64
}

// EmptyActor is returned instead of nil on lookups that found nothing.
func EmptyActor() *Actor {
	return &Actor{}
}

func (a *Actor) IsEmpty() bool {
	return a == nil || (a.Id == 0 && a.Oid == "" && a.Username == "" && a.WebFingerId == "")
}

func (a *Actor) NeverUpdated() bool {
	return !a.UpdatedAt.After(SomeTimeAgo)
}

func (a *Actor) IsPartiallyDefined() bool {
	return !IsRealOid(a.Oid) || a.Username == "" || a.NeverUpdated()
}

func (a *Actor) IsFullyDefined() bool {
	return !a.IsPartiallyDefined()
}

// effectiveUpdated collapses every "never updated" date to the zero time,
// so 0 and 1 millisecond compare as equal.
func (a *Actor) effectiveUpdated() time.Time {
	if a.NeverUpdated() {
		return time.Time{}
	}
	return a.UpdatedAt
}

// IsNewerThan reports whether a carries a strictly newer update than other.
func (a *Actor) IsNewerThan(other *Actor) bool {
	if other.IsEmpty() {
		return !a.IsEmpty()
	}
	return a.effectiveUpdated().After(other.effectiveUpdated())
}

// IsBetterToCacheThan decides whether a cached Actor should stay in place
// when other arrives. Equal update dates keep what is cached.
func (a *Actor) IsBetterToCacheThan(other *Actor) bool {
	if other.IsEmpty() {
		return true
	}
	if a.IsEmpty() {
		return false
	}
	return !other.IsNewerThan(a)
}

// UniqueName is the WebFinger id when known, else the username.
func (a *Actor) UniqueName() string {
	if a.WebFingerId != "" {
		return a.WebFingerId
	}
	return a.Username
}

// NormalizedWebFingerId lowercases the stored value or derives
// username@host when only the username is known.
func (a *Actor) NormalizedWebFingerId(host string) string {
	wf := strings.TrimPrefix(strings.TrimSpace(a.WebFingerId), "acct:")
	wf = strings.TrimPrefix(wf, "@")
	if wf == "" && a.Username != "" && host != "" && !strings.Contains(a.Username, "@") {
		wf = a.Username + "@" + host
	}
	if wf == "" && strings.Contains(a.Username, "@") {
		wf = strings.TrimPrefix(a.Username, "@")
	}
	if !strings.Contains(wf, "@") {
		return ""
	}
	return strings.ToLower(wf)
}

// MergeFrom folds an incoming payload for the same Actor into a.
// Non-empty incoming values always fill empty fields; they replace known
// values only when the incoming payload is strictly newer.
func (a *Actor) MergeFrom(in *Actor) bool {
	if in.IsEmpty() {
		return false
	}
	newer := in.IsNewerThan(a)
	changed := false
	setString := func(dst *string, v string) {
		if v == "" || *dst == v {
			return
		}
		if newer || *dst == "" {
			*dst = v
			changed = true
		}
	}
	setCount := func(dst *int64, v int64) {
		if v <= 0 || *dst == v {
			return
		}
		if newer || *dst == 0 {
			*dst = v
			changed = true
		}
	}

	if IsRealOid(in.Oid) && !IsRealOid(a.Oid) {
		a.Oid = in.Oid
		changed = true
	}
	setString(&a.Username, in.Username)
	setString(&a.WebFingerId, in.WebFingerId)
	setString(&a.RealName, in.RealName)
	setString(&a.Summary, in.Summary)
	setString(&a.ProfileURL, in.ProfileURL)
	setString(&a.HomepageURL, in.HomepageURL)
	setString(&a.AvatarURL, in.AvatarURL)
	setCount(&a.NotesCount, in.NotesCount)
	setCount(&a.FollowingCount, in.FollowingCount)
	setCount(&a.FollowersCount, in.FollowersCount)

	if in.GroupType != GroupUnknown && (a.GroupType == GroupUnknown || (newer && a.GroupType != in.GroupType)) {
		a.GroupType = in.GroupType
		changed = true
	}
	if a.CreatedAt.IsZero() && !in.CreatedAt.IsZero() {
		a.CreatedAt = in.CreatedAt
		changed = true
	}
	if newer {
		a.UpdatedAt = in.UpdatedAt
		changed = true
	}
	if a.UserId == 0 && in.UserId != 0 {
		a.UserId = in.UserId
		changed = true
	}
	return changed
}

func (a *Actor) Clone() *Actor {
	if a == nil {
		return EmptyActor()
	}
	c := *a
	return &c
}

func (a *Actor) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tOrigin: %d \n\tOid: %s \n\tUsername: %s \n\tWebFingerId: %s \n\tUpdatedAt: %s", a.Id, a.OriginId, a.Oid, a.Username, a.WebFingerId, a.UpdatedAt)
}
