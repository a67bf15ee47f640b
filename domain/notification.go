package domain

import "time"

type NotificationEventType int

const (
	EventEmpty NotificationEventType = iota
	EventMention
	EventReply
	EventLike
	EventFollow
	EventAnnounce
)

func NotificationEventTypeFromCode(code int64) NotificationEventType {
	switch e := NotificationEventType(code); e {
	case EventMention, EventReply, EventLike, EventFollow, EventAnnounce:
		return e
	default:
		return EventEmpty
	}
}

func (e NotificationEventType) Code() int64 {
	return int64(e)
}

func (e NotificationEventType) String() string {
	switch e {
	case EventMention:
		return "mention"
	case EventReply:
		return "reply"
	case EventLike:
		return "like"
	case EventFollow:
		return "follow"
	case EventAnnounce:
		return "announce"
	default:
		return "empty"
	}
}

// NotificationCounter aggregates events of one type caused by one actor.
type NotificationCounter struct {
	Event     NotificationEventType
	ActorId   int64
	Count     int64
	UpdatedAt time.Time
}

// Timeline keeps the sync position of one connector source.
type Timeline struct {
	Id               int64
	TimelineType     string
	ActorId          int64
	OriginId         int64
	YoungestPosition string
	YoungestDate     time.Time
	SyncedDate       time.Time
}
