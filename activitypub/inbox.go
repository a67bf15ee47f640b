// Package activitypub normalizes ActivityStreams 2.0 payloads into domain
// activities and fetches them from remote outboxes.
package activitypub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deemkeen/andstatus/domain"
)

// Activity is the wire form of an incoming activity. Actor and object may
// each be a bare URI or an embedded object.
type Activity struct {
	Context   interface{}     `json:"@context"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     json.RawMessage `json:"actor"`
	Object    json.RawMessage `json:"object"`
	Published string          `json:"published"`
	Updated   string          `json:"updated"`
	addressing
}

// Object is an embedded object: a note, a tombstone, an actor, or an
// activity wrapped by Undo.
type Object struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	Content      string          `json:"content"`
	URL          json.RawMessage `json:"url"`
	AttributedTo json.RawMessage `json:"attributedTo"`
	InReplyTo    json.RawMessage `json:"inReplyTo"`
	Conversation string          `json:"conversation"`
	ContextOid   json.RawMessage `json:"context"`
	Sensitive    bool            `json:"sensitive"`
	Attachment   json.RawMessage `json:"attachment"`
	Published    string          `json:"published"`
	Updated      string          `json:"updated"`
	Actor        json.RawMessage `json:"actor"`
	Object       json.RawMessage `json:"object"`
	addressing
}

type addressing struct {
	To       json.RawMessage `json:"to"`
	Cc       json.RawMessage `json:"cc"`
	Bto      json.RawMessage `json:"bto"`
	Bcc      json.RawMessage `json:"bcc"`
	Audience json.RawMessage `json:"audience"`
}

func (a addressing) fields() []json.RawMessage {
	return []json.RawMessage{a.To, a.Cc, a.Bto, a.Bcc, a.Audience}
}

// ParseActivity normalizes one AS2 activity of the origin. Only invalid
// JSON is an error; everything the payload lacks stays empty.
func ParseActivity(originId int64, body []byte) (*domain.Activity, error) {
	var wire Activity
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}

	act := &domain.Activity{
		OriginId:  originId,
		Oid:       wire.ID,
		Type:      domain.ActivityTypeOf(wire.Type),
		Actor:     actorRef(wire.Actor),
		UpdatedAt: firstTime(wire.Updated, wire.Published),
	}
	obj, objURI := objectRef(wire.Object)
	addr := newAddressBook()
	addr.add(wire.addressing)

	switch act.Type {
	case domain.ActivityCreate, domain.ActivityUpdate:
		if obj == nil {
			break
		}
		if isActorType(obj.Type) {
			act.ObjActor = actorFromObject(obj)
			break
		}
		applyNote(act, obj)
		addr.add(obj.addressing)
	case domain.ActivityDelete:
		if obj != nil {
			objURI = obj.ID
		}
		// deleting the actor itself is recorded only
		if objURI != "" && (act.Actor == nil || objURI != act.Actor.Oid) {
			act.Note = &domain.Note{Oid: objURI}
		}
	case domain.ActivityLike, domain.ActivityAnnounce:
		act.Note = notePointer(obj, objURI)
		if obj != nil && obj.Content != "" {
			applyNote(act, obj)
		}
	case domain.ActivityFollow:
		act.ObjActor = objectActor(obj, objURI)
	case domain.ActivityUndo:
		if obj == nil {
			break
		}
		act.UndoneType = domain.ActivityTypeOf(obj.Type)
		inner, innerURI := objectRef(obj.Object)
		switch act.UndoneType {
		case domain.ActivityFollow:
			act.ObjActor = objectActor(inner, innerURI)
		case domain.ActivityLike, domain.ActivityAnnounce:
			act.Note = notePointer(inner, innerURI)
		}
	}

	act.Addressing = addr.result()
	if act.UpdatedAt.IsZero() && act.Note != nil {
		act.UpdatedAt = act.Note.UpdatedAt
	}
	return act, nil
}

// applyNote fills the note, its author and its reply pointer.
func applyNote(act *domain.Activity, obj *Object) {
	n := &domain.Note{
		Oid:              obj.ID,
		Name:             obj.Name,
		Content:          obj.Content,
		URL:              firstString(obj.URL),
		Sensitive:        obj.Sensitive,
		AttachmentsCount: len(itemsOf(obj.Attachment)),
		CreatedAt:        parseTime(obj.Published),
		UpdatedAt:        firstTime(obj.Updated, obj.Published),
		ConversationOid:  obj.Conversation,
	}
	if n.ConversationOid == "" {
		n.ConversationOid = firstString(obj.ContextOid)
	}
	act.Note = n
	if author := actorRef(obj.AttributedTo); author != nil {
		act.Author = author
	}
	if parent, parentURI := objectRef(obj.InReplyTo); parent != nil {
		act.InReplyToOid = parent.ID
		act.InReplyToAuthor = actorRef(parent.AttributedTo)
	} else {
		act.InReplyToOid = parentURI
	}
}

func notePointer(obj *Object, uri string) *domain.Note {
	if obj != nil {
		uri = obj.ID
	}
	if uri == "" {
		return nil
	}
	return &domain.Note{Oid: uri}
}

func objectActor(obj *Object, uri string) *domain.Actor {
	if obj != nil {
		return actorFromObject(obj)
	}
	if uri == "" {
		return nil
	}
	return &domain.Actor{Oid: uri}
}

// objectRef splits a field that is either a URI or an embedded object.
func objectRef(raw json.RawMessage) (*Object, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ""
	}
	var uri string
	if err := json.Unmarshal(raw, &uri); err == nil {
		return nil, uri
	}
	var obj Object
	if err := json.Unmarshal(raw, &obj); err == nil {
		return &obj, obj.ID
	}
	return nil, ""
}

// addressBook collects recipients from the addressing fields.
type addressBook struct {
	seen    map[string]bool
	present bool
	addr    *domain.Addressing
}

func newAddressBook() *addressBook {
	return &addressBook{seen: make(map[string]bool), addr: &domain.Addressing{}}
}

func (b *addressBook) add(a addressing) {
	for _, raw := range a.fields() {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		b.present = true
		values, ok := recipientIds(raw)
		if !ok {
			b.addr.Unresolvable = true
			continue
		}
		for _, v := range values {
			b.addOne(v)
		}
	}
}

func (b *addressBook) addOne(oid string) {
	switch {
	case oid == "":
		b.addr.Unresolvable = true
	case domain.IsPublicMarker(oid):
		b.addr.Public = true
	case strings.HasSuffix(oid, "/followers"):
		b.addr.Followers = true
	case !b.seen[oid]:
		b.seen[oid] = true
		b.addr.Recipients = append(b.addr.Recipients, &domain.Actor{Oid: oid})
	}
}

// result is nil when the payload carried no addressing at all.
func (b *addressBook) result() *domain.Addressing {
	if !b.present {
		return nil
	}
	return b.addr
}

// recipientIds reads a string, an array of strings, or objects with ids.
func recipientIds(raw json.RawMessage) ([]string, bool) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, true
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var obj Object
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		return []string{obj.ID}, true
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		obj, uri := objectRef(item)
		if obj != nil {
			uri = obj.ID
		}
		ids = append(ids, uri)
	}
	return ids, true
}

// itemsOf returns the items of a field holding one value or an array.
func itemsOf(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	return []json.RawMessage{raw}
}

// firstString returns the first URI of a field that may be a string, an
// object with href or id, or an array of those.
func firstString(raw json.RawMessage) string {
	for _, item := range itemsOf(raw) {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			return s
		}
		var link struct {
			Href string `json:"href"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(item, &link); err == nil {
			if link.Href != "" {
				return link.Href
			}
			if link.ID != "" {
				return link.ID
			}
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstTime(values ...string) time.Time {
	for _, v := range values {
		if t := parseTime(v); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
