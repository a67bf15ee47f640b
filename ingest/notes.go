package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/deemkeen/andstatus/db"
	"github.com/deemkeen/andstatus/domain"
)

// saveNote upserts the note of the activity keyed by (origin, oid), links
// it to its parent and assigns a conversation when that is cheap to find.
func (a *apply) saveNote(ctx context.Context) error {
	in := *a.act.Note
	in.OriginId = a.origin.Id
	if in.Oid == "" {
		in.Oid = domain.TempOidFor(a.act.Oid)
	}
	if in.AuthorId == 0 {
		in.AuthorId = a.actorId(a.author)
	}
	if in.Status == domain.NoteStatusUnknown || in.Status == domain.NoteAbsent {
		in.Status = domain.NoteLoaded
	}

	stored, err := a.tx.NoteByOid(ctx, in.OriginId, in.Oid)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	n := &in
	if stored != nil {
		n = mergeNote(stored, &in, activityType(a.act.Type) == domain.ActivityUpdate)
	} else {
		n.Id = 0
		n.ConversationId = 0
		n.InReplyToNoteId = 0
	}

	if err := a.linkParent(ctx, n); err != nil {
		return err
	}
	if err := a.assignConversation(ctx, n); err != nil {
		return err
	}

	if n.Id == 0 {
		if err := a.tx.InsertNote(ctx, n); err != nil {
			return err
		}
		if n.ConversationId == 0 {
			n.ConversationId = n.Id
			if err := a.tx.SetNoteConversation(ctx, n.Id, n.Id); err != nil {
				return err
			}
		}
	} else if err := a.tx.UpdateNote(ctx, n); err != nil {
		return err
	}
	a.note = n
	return nil
}

// mergeNote folds an incoming payload into the stored row. The stored
// conversation and reply link survive unless the payload brings its own.
// Loaded content only changes through an edit that is strictly newer; a
// stub takes whatever arrives.
func mergeNote(stored, in *domain.Note, edit bool) *domain.Note {
	n := *in
	n.Id = stored.Id
	n.ConversationId = stored.ConversationId
	n.InReplyToNoteId = stored.InReplyToNoteId
	n.InReplyToActorId = stored.InReplyToActorId
	n.Visibility = stored.Visibility
	if n.ConversationOid == "" {
		n.ConversationOid = stored.ConversationOid
	}
	if n.AuthorId == 0 {
		n.AuthorId = stored.AuthorId
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = stored.CreatedAt
	}

	stub := stored.Status == domain.NoteAbsent || stored.Status == domain.NoteStatusUnknown
	if stub || (edit && in.UpdatedAt.After(stored.UpdatedAt)) {
		return &n
	}
	n.Status = stored.Status
	n.Name = stored.Name
	n.Content = stored.Content
	n.Sensitive = stored.Sensitive
	n.AttachmentsCount = stored.AttachmentsCount
	n.UpdatedAt = stored.UpdatedAt
	if stored.URL != "" {
		n.URL = stored.URL
	}
	return &n
}

func (a *apply) linkParent(ctx context.Context, n *domain.Note) error {
	oid := a.act.InReplyToOid
	if oid == "" || oid == n.Oid {
		return nil
	}
	parentAuthor, err := a.saveActor(ctx, a.act.InReplyToAuthor)
	if err != nil {
		return err
	}
	parent, err := a.tx.EnsureStubNote(ctx, a.origin.Id, oid, a.actorId(parentAuthor))
	if err != nil {
		return fmt.Errorf("parent %s: %w", oid, err)
	}
	if n.InReplyToNoteId != parent.Id {
		// a new parent invalidates the conversation
		n.ConversationId = 0
	}
	n.InReplyToNoteId = parent.Id
	n.InReplyToActorId = parent.AuthorId
	if n.InReplyToActorId == 0 {
		n.InReplyToActorId = a.actorId(parentAuthor)
	}
	a.parent = parent
	return nil
}

// assignConversation takes the conversation of the parent, else of a note
// sharing the conversation oid. A note left without one roots its own after
// insert; anything deeper is left to the conversation checker.
func (a *apply) assignConversation(ctx context.Context, n *domain.Note) error {
	if n.ConversationId != 0 {
		return nil
	}
	if a.parent != nil {
		if a.parent.ConversationId == 0 {
			a.parent.ConversationId = a.parent.Id
			if err := a.tx.SetNoteConversation(ctx, a.parent.Id, a.parent.Id); err != nil {
				return err
			}
		}
		n.ConversationId = a.parent.ConversationId
		return nil
	}
	if !domain.IsRealOid(n.ConversationOid) {
		if n.Id != 0 {
			n.ConversationId = n.Id
		}
		return nil
	}
	_, conversationId, err := a.tx.NoteIdByConversationOid(ctx, n.OriginId, n.ConversationOid, n.Id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		if n.Id != 0 {
			n.ConversationId = n.Id
		}
		return nil
	case err != nil:
		return err
	}
	n.ConversationId = conversationId
	return nil
}

// deleteNote marks the note deleted and drops its content. Unknown notes
// are ignored.
func (a *apply) deleteNote(ctx context.Context) error {
	if a.act.Note == nil || a.act.Note.Oid == "" {
		return nil
	}
	n, err := a.tx.NoteByOid(ctx, a.origin.Id, a.act.Note.Oid)
	if errors.Is(err, db.ErrNotFound) {
		a.u.log.Debug("Delete of unknown note", "oid", a.act.Note.Oid)
		return nil
	}
	if err != nil {
		return err
	}
	n.Status = domain.NoteDeleted
	n.Content = ""
	n.Name = ""
	if !a.act.UpdatedAt.IsZero() {
		n.UpdatedAt = a.act.UpdatedAt
	}
	if err := a.tx.UpdateNote(ctx, n); err != nil {
		return err
	}
	a.note = n
	return nil
}

// referenceNote handles the object of Like and Announce: a full payload is
// saved, a bare oid becomes a stub.
func (a *apply) referenceNote(ctx context.Context) error {
	in := a.act.Note
	if in == nil || in.Oid == "" {
		return nil
	}
	if in.Content != "" || in.Name != "" {
		return a.saveNote(ctx)
	}
	authorId := in.AuthorId
	if authorId == 0 {
		authorId = a.actorId(a.author)
	}
	n, err := a.tx.EnsureStubNote(ctx, a.origin.Id, in.Oid, authorId)
	if err != nil {
		return err
	}
	a.note = n
	return nil
}
