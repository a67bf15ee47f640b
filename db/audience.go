package db

import (
	"context"
	"fmt"

	"github.com/deemkeen/andstatus/domain"
)

func (s *queries) AudienceOf(ctx context.Context, noteId int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT actor_id FROM audience WHERE note_id = ? ORDER BY actor_id`, noteId)
	if err != nil {
		return nil, err
	}
	return collectIds(rows)
}

// replaceAudience makes the stored audience equal to actorIds and saves the
// visibility of the note. Returns true when anything changed.
func (s *queries) replaceAudience(ctx context.Context, noteId int64, actorIds []int64, visibility domain.Visibility) (bool, error) {
	stored, err := s.AudienceOf(ctx, noteId)
	if err != nil {
		return false, err
	}
	want := domain.NewIdSet(actorIds...)
	have := domain.NewIdSet(stored...)
	changed := false

	for id := range have {
		if want.Has(id) {
			continue
		}
		if _, err := s.execWithRetry(ctx, `DELETE FROM audience WHERE note_id = ? AND actor_id = ?`, noteId, id); err != nil {
			return changed, fmt.Errorf("removing actor %d from audience of note %d: %w", id, noteId, err)
		}
		changed = true
	}
	for _, id := range want.Sorted() {
		if have.Has(id) {
			continue
		}
		if _, err := s.execWithRetry(ctx, `INSERT OR IGNORE INTO audience(note_id, actor_id) VALUES (?, ?)`, noteId, id); err != nil {
			return changed, fmt.Errorf("adding actor %d to audience of note %d: %w", id, noteId, err)
		}
		changed = true
	}

	res, err := s.execWithRetry(ctx, `UPDATE note SET visibility = ? WHERE id = ? AND visibility != ?`,
		visibility.Code(), noteId, visibility.Code())
	if err != nil {
		return changed, fmt.Errorf("saving visibility of note %d: %w", noteId, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		changed = true
	}
	return changed, nil
}

func (t *Tx) ReplaceAudience(ctx context.Context, noteId int64, actorIds []int64, visibility domain.Visibility) (bool, error) {
	return t.replaceAudience(ctx, noteId, actorIds, visibility)
}

func (db *DB) ReplaceAudience(ctx context.Context, noteId int64, actorIds []int64, visibility domain.Visibility) (bool, error) {
	changed := false
	err := db.InTransaction(ctx, func(tx *Tx) error {
		var err error
		changed, err = tx.replaceAudience(ctx, noteId, actorIds, visibility)
		return err
	})
	return changed, err
}
