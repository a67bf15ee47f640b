package domain

import (
	"fmt"
	"time"
)

type ActivityType string

const (
	ActivityCreate   ActivityType = "Create"
	ActivityUpdate   ActivityType = "Update"
	ActivityDelete   ActivityType = "Delete"
	ActivityAnnounce ActivityType = "Announce"
	ActivityLike     ActivityType = "Like"
	ActivityUndo     ActivityType = "Undo"
	ActivityFollow   ActivityType = "Follow"
	ActivityAccept   ActivityType = "Accept"
	ActivityUnknown  ActivityType = "Unknown"
)

func ActivityTypeOf(s string) ActivityType {
	switch t := ActivityType(s); t {
	case ActivityCreate, ActivityUpdate, ActivityDelete, ActivityAnnounce, ActivityLike,
		ActivityUndo, ActivityFollow, ActivityAccept:
		return t
	default:
		return ActivityUnknown
	}
}

// Activity is one connector-normalized activity. Any of the referenced
// entities may be missing or partially populated.
type Activity struct {
	OriginId int64
	Oid      string
	Type     ActivityType
	// UndoneType is the type of the activity an Undo reverts
	UndoneType ActivityType
	Actor      *Actor
	// Author of Note; the Actor is assumed when nil
	Author          *Actor
	Note            *Note
	InReplyToOid    string
	InReplyToAuthor *Actor
	// ObjActor is the object of Follow or of a profile Update
	ObjActor *Actor
	// Addressing is nil when the payload carried none
	Addressing *Addressing
	UpdatedAt  time.Time
}

// ActivityRecord is a row of the activity log.
type ActivityRecord struct {
	Id              int64
	OriginId        int64
	Oid             string
	Type            ActivityType
	ActorId         int64
	NoteId          int64
	ObjActorId      int64
	NotifiedActorId int64
	Event           NotificationEventType
	UpdatedAt       time.Time
	InsertedAt      time.Time
}

func (act *Activity) ToString() string {
	return fmt.Sprintf("\n\tOid: %s \n\tType: %s \n\tOrigin: %d \n\tUpdatedAt: %s", act.Oid, act.Type, act.OriginId, act.UpdatedAt)
}
