package domain

import (
	"fmt"
	"time"
)

type NoteStatus int

const (
	NoteStatusUnknown NoteStatus = iota
	NoteLoaded
	NoteSending
	NoteDeleted
	// NoteAbsent is a stub known only by its OID, e.g. the parent of a reply
	NoteAbsent
)

func NoteStatusFromCode(code int64) NoteStatus {
	switch s := NoteStatus(code); s {
	case NoteLoaded, NoteSending, NoteDeleted, NoteAbsent:
		return s
	default:
		return NoteStatusUnknown
	}
}

func (s NoteStatus) Code() int64 {
	return int64(s)
}

func (s NoteStatus) String() string {
	switch s {
	case NoteLoaded:
		return "loaded"
	case NoteSending:
		return "sending"
	case NoteDeleted:
		return "deleted"
	case NoteAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

type Note struct {
	Id               int64
	OriginId         int64
	Oid              string
	Status           NoteStatus
	ConversationId   int64 // 0 until resolved
	ConversationOid  string
	InReplyToNoteId  int64
	InReplyToActorId int64
	AuthorId         int64
	Name             string
	Content          string
	URL              string
	Visibility       Visibility
	Sensitive        bool
	AttachmentsCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (note *Note) IsEmpty() bool {
	return note == nil || (note.Id == 0 && note.Oid == "")
}

func (note *Note) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tOid: %s \n\tStatus: %s \n\tConversationId: %d \n\tInReplyTo: %d \n\tContent: %s", note.Id, note.Oid, note.Status, note.ConversationId, note.InReplyToNoteId, note.Content)
}

// ConversationItem is the part of a note row that conversation repair works on.
type ConversationItem struct {
	Id              int64
	OriginId        int64
	ConversationId  int64
	ConversationOid string
	InReplyToNoteId int64
}
