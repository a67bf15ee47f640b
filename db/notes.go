package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

const (
	sqlNoteColumns = `id, origin_id, note_oid, note_status, conversation_id, conversation_oid,
		in_reply_to_note_id, in_reply_to_actor_id, author_id, name, content, url, visibility,
		sensitive, attachments_count, created_date, updated_date`
	sqlSelectNote = `SELECT ` + sqlNoteColumns + ` FROM note`
	sqlInsertNote = `INSERT INTO note(origin_id, note_oid, note_status, conversation_id, conversation_oid,
		in_reply_to_note_id, in_reply_to_actor_id, author_id, name, content, url, visibility,
		sensitive, attachments_count, created_date, updated_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateNote = `UPDATE note SET note_oid = ?, note_status = ?, conversation_id = ?, conversation_oid = ?,
		in_reply_to_note_id = ?, in_reply_to_actor_id = ?, author_id = ?, name = ?, content = ?, url = ?,
		visibility = ?, sensitive = ?, attachments_count = ?, created_date = ?, updated_date = ?
		WHERE id = ?`

	sqlConversationColumns = `SELECT id, origin_id, conversation_id, conversation_oid, in_reply_to_note_id FROM note`
	sqlUpdateConversation  = `UPDATE note SET conversation_id = ?, in_reply_to_note_id = ?,
		in_reply_to_actor_id = CASE WHEN ? = 0 THEN 0 ELSE in_reply_to_actor_id END
		WHERE id = ?`
)

func scanNote(s scanner) (*domain.Note, error) {
	var n domain.Note
	var status, visibility, created, updated int64
	err := s.Scan(&n.Id, &n.OriginId, &n.Oid, &status, &n.ConversationId, &n.ConversationOid,
		&n.InReplyToNoteId, &n.InReplyToActorId, &n.AuthorId, &n.Name, &n.Content, &n.URL, &visibility,
		&n.Sensitive, &n.AttachmentsCount, &created, &updated)
	if err != nil {
		return nil, err
	}
	n.Status = domain.NoteStatusFromCode(status)
	n.Visibility = domain.VisibilityFromCode(visibility)
	n.CreatedAt = util.FromMillis(created)
	n.UpdatedAt = util.FromMillis(updated)
	return &n, nil
}

func (s *queries) queryNotes(ctx context.Context, query string, args ...any) ([]*domain.Note, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return notes, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *queries) NoteById(ctx context.Context, id int64) (*domain.Note, error) {
	n, err := scanNote(s.q.QueryRowContext(ctx, sqlSelectNote+` WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (s *queries) NoteByOid(ctx context.Context, originId int64, oid string) (*domain.Note, error) {
	n, err := scanNote(s.q.QueryRowContext(ctx, sqlSelectNote+` WHERE origin_id = ? AND note_oid = ?`, originId, oid))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

// NotesOfConversation returns the notes in creation order.
func (s *queries) NotesOfConversation(ctx context.Context, conversationId int64) ([]*domain.Note, error) {
	return s.queryNotes(ctx, sqlSelectNote+` WHERE conversation_id = ? ORDER BY created_date, id`, conversationId)
}

// NoteIdByConversationOid returns a note of the origin, other than excludeId,
// with this conversation oid and a known conversation id.
func (s *queries) NoteIdByConversationOid(ctx context.Context, originId int64, conversationOid string, excludeId int64) (int64, int64, error) {
	var id, conversationId int64
	err := s.q.QueryRowContext(ctx, `SELECT id, conversation_id FROM note
		WHERE origin_id = ? AND conversation_oid = ? AND id != ? AND conversation_id != 0
		ORDER BY id LIMIT 1`, originId, conversationOid, excludeId).Scan(&id, &conversationId)
	if err != nil {
		return 0, 0, notFound(err)
	}
	return id, conversationId, nil
}

// InsertNote stores a new note and sets its Id.
func (s *queries) InsertNote(ctx context.Context, n *domain.Note) error {
	res, err := s.execWithRetry(ctx, sqlInsertNote, n.OriginId, n.Oid, n.Status.Code(), n.ConversationId, n.ConversationOid,
		n.InReplyToNoteId, n.InReplyToActorId, n.AuthorId, n.Name, n.Content, n.URL, n.Visibility.Code(),
		boolToInt(n.Sensitive), n.AttachmentsCount, util.ToMillis(n.CreatedAt), util.ToMillis(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting note %s: %w", n.Oid, err)
	}
	n.Id, err = res.LastInsertId()
	return err
}

func (s *queries) UpdateNote(ctx context.Context, n *domain.Note) error {
	_, err := s.execWithRetry(ctx, sqlUpdateNote, n.Oid, n.Status.Code(), n.ConversationId, n.ConversationOid,
		n.InReplyToNoteId, n.InReplyToActorId, n.AuthorId, n.Name, n.Content, n.URL, n.Visibility.Code(),
		boolToInt(n.Sensitive), n.AttachmentsCount, util.ToMillis(n.CreatedAt), util.ToMillis(n.UpdatedAt), n.Id)
	if err != nil {
		return fmt.Errorf("updating note %d: %w", n.Id, err)
	}
	return nil
}

func (s *queries) SetNoteConversation(ctx context.Context, noteId, conversationId int64) error {
	_, err := s.execWithRetry(ctx, `UPDATE note SET conversation_id = ? WHERE id = ?`, conversationId, noteId)
	return err
}

func (s *queries) SetNoteStatus(ctx context.Context, noteId int64, status domain.NoteStatus) error {
	_, err := s.execWithRetry(ctx, `UPDATE note SET note_status = ? WHERE id = ?`, status.Code(), noteId)
	return err
}

// EnsureStubNote returns the note with this oid, creating an absent
// placeholder when it is not known yet.
func (s *queries) EnsureStubNote(ctx context.Context, originId int64, oid string, authorId int64) (*domain.Note, error) {
	n, err := s.NoteByOid(ctx, originId, oid)
	if err == nil {
		return n, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	n = &domain.Note{OriginId: originId, Oid: oid, Status: domain.NoteAbsent, AuthorId: authorId}
	if err := s.InsertNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func scanConversationItems(rows *sql.Rows) ([]domain.ConversationItem, error) {
	defer rows.Close()
	var items []domain.ConversationItem
	for rows.Next() {
		var it domain.ConversationItem
		if err := rows.Scan(&it.Id, &it.OriginId, &it.ConversationId, &it.ConversationOid, &it.InReplyToNoteId); err != nil {
			return items, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ConversationItems loads the conversation fields of all notes, ordered by id.
func (s *queries) ConversationItems(ctx context.Context) ([]domain.ConversationItem, error) {
	rows, err := s.q.QueryContext(ctx, sqlConversationColumns+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanConversationItems(rows)
}

// ConversationItemsOf loads the given notes together with every note
// sharing a conversation with them.
func (s *queries) ConversationItemsOf(ctx context.Context, noteIds []int64) ([]domain.ConversationItem, error) {
	if len(noteIds) == 0 {
		return nil, nil
	}
	in := placeholders(len(noteIds))
	args := append(int64Args(noteIds), int64Args(noteIds)...)
	rows, err := s.q.QueryContext(ctx, sqlConversationColumns+` WHERE id IN (`+in+`)
		OR conversation_id IN (SELECT conversation_id FROM note WHERE id IN (`+in+`) AND conversation_id != 0)
		ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return scanConversationItems(rows)
}

// UpdateConversations writes the conversation fields of the items in one
// transaction. A row that cannot be written is skipped and reported to
// failed once the transaction has committed; the count of written rows is
// returned.
func (db *DB) UpdateConversations(ctx context.Context, items []domain.ConversationItem, failed func(domain.ConversationItem, error)) (int, error) {
	type rowFailure struct {
		item domain.ConversationItem
		err  error
	}
	var (
		written  int
		failures []rowFailure
	)
	err := db.InTransaction(ctx, func(tx *Tx) error {
		// a retried attempt starts over
		written, failures = 0, failures[:0]
		for _, it := range items {
			_, err := tx.execWithRetry(ctx, sqlUpdateConversation, it.ConversationId, it.InReplyToNoteId, it.InReplyToNoteId, it.Id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures = append(failures, rowFailure{it, err})
				continue
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if failed != nil {
		for _, f := range failures {
			failed(f.item, f.err)
		}
	}
	return written, nil
}
