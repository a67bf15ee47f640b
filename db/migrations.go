package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Dates are unix millis, 0 when unknown.
const (
	sqlCreateOriginTable = `CREATE TABLE IF NOT EXISTS origin (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin_name TEXT UNIQUE NOT NULL,
		origin_type TEXT NOT NULL,
		host TEXT NOT NULL DEFAULT ''
	)`

	sqlCreateUserTable = `CREATE TABLE IF NOT EXISTS user (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		known_as TEXT NOT NULL DEFAULT '',
		is_my_user INTEGER NOT NULL DEFAULT 0
	)`

	sqlCreateActorTable = `CREATE TABLE IF NOT EXISTS actor (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin_id INTEGER NOT NULL,
		actor_oid TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		webfinger_id TEXT NOT NULL DEFAULT '',
		real_name TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		profile_url TEXT NOT NULL DEFAULT '',
		homepage_url TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		notes_count INTEGER NOT NULL DEFAULT 0,
		following_count INTEGER NOT NULL DEFAULT 0,
		followers_count INTEGER NOT NULL DEFAULT 0,
		created_date INTEGER NOT NULL DEFAULT 0,
		updated_date INTEGER NOT NULL DEFAULT 0,
		group_type INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER NOT NULL DEFAULT 0,
		UNIQUE(origin_id, actor_oid)
	)`

	sqlCreateActorIndices = `
		CREATE INDEX IF NOT EXISTS idx_actor_webfinger ON actor(webfinger_id);
		CREATE INDEX IF NOT EXISTS idx_actor_username ON actor(origin_id, username);
		CREATE INDEX IF NOT EXISTS idx_actor_user ON actor(user_id);
	`

	sqlCreateNoteTable = `CREATE TABLE IF NOT EXISTS note (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin_id INTEGER NOT NULL,
		note_oid TEXT NOT NULL,
		note_status INTEGER NOT NULL DEFAULT 0,
		conversation_id INTEGER NOT NULL DEFAULT 0,
		conversation_oid TEXT NOT NULL DEFAULT '',
		in_reply_to_note_id INTEGER NOT NULL DEFAULT 0,
		in_reply_to_actor_id INTEGER NOT NULL DEFAULT 0,
		author_id INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		visibility INTEGER NOT NULL DEFAULT 0,
		sensitive INTEGER NOT NULL DEFAULT 0,
		attachments_count INTEGER NOT NULL DEFAULT 0,
		created_date INTEGER NOT NULL DEFAULT 0,
		updated_date INTEGER NOT NULL DEFAULT 0,
		UNIQUE(origin_id, note_oid)
	)`

	sqlCreateNoteIndices = `
		CREATE INDEX IF NOT EXISTS idx_note_in_reply_to ON note(in_reply_to_note_id);
		CREATE INDEX IF NOT EXISTS idx_note_conversation ON note(conversation_id);
		CREATE INDEX IF NOT EXISTS idx_note_conversation_oid ON note(origin_id, conversation_oid);
		CREATE INDEX IF NOT EXISTS idx_note_author ON note(author_id);
	`

	sqlCreateAudienceTable = `CREATE TABLE IF NOT EXISTS audience (
		note_id INTEGER NOT NULL,
		actor_id INTEGER NOT NULL,
		PRIMARY KEY(note_id, actor_id)
	)`

	sqlCreateAudienceIndices = `
		CREATE INDEX IF NOT EXISTS idx_audience_actor ON audience(actor_id);
	`

	sqlCreateActivityTable = `CREATE TABLE IF NOT EXISTS activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin_id INTEGER NOT NULL,
		activity_oid TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		actor_id INTEGER NOT NULL DEFAULT 0,
		note_id INTEGER NOT NULL DEFAULT 0,
		obj_actor_id INTEGER NOT NULL DEFAULT 0,
		notified_actor_id INTEGER NOT NULL DEFAULT 0,
		event_type INTEGER NOT NULL DEFAULT 0,
		updated_date INTEGER NOT NULL DEFAULT 0,
		ins_date INTEGER NOT NULL DEFAULT 0,
		UNIQUE(origin_id, activity_oid)
	)`

	sqlCreateActivityIndices = `
		CREATE INDEX IF NOT EXISTS idx_activity_actor ON activity(actor_id);
		CREATE INDEX IF NOT EXISTS idx_activity_note ON activity(note_id);
	`

	sqlCreateGroupMemberTable = `CREATE TABLE IF NOT EXISTS group_member (
		group_type INTEGER NOT NULL,
		parent_actor_id INTEGER NOT NULL,
		member_actor_id INTEGER NOT NULL,
		PRIMARY KEY(group_type, parent_actor_id, member_actor_id)
	)`

	sqlCreateNotificationTable = `CREATE TABLE IF NOT EXISTS notification (
		event_type INTEGER NOT NULL,
		actor_id INTEGER NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		updated_date INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY(event_type, actor_id)
	)`

	sqlCreateTimelineTable = `CREATE TABLE IF NOT EXISTS timeline (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timeline_type TEXT NOT NULL,
		actor_id INTEGER NOT NULL DEFAULT 0,
		origin_id INTEGER NOT NULL DEFAULT 0,
		youngest_position TEXT NOT NULL DEFAULT '',
		youngest_date INTEGER NOT NULL DEFAULT 0,
		synced_date INTEGER NOT NULL DEFAULT 0,
		UNIQUE(timeline_type, actor_id, origin_id)
	)`
)

var schema = []struct {
	name string
	sql  string
}{
	{"origin", sqlCreateOriginTable},
	{"user", sqlCreateUserTable},
	{"actor", sqlCreateActorTable},
	{"actor indices", sqlCreateActorIndices},
	{"note", sqlCreateNoteTable},
	{"note indices", sqlCreateNoteIndices},
	{"audience", sqlCreateAudienceTable},
	{"audience indices", sqlCreateAudienceIndices},
	{"activity", sqlCreateActivityTable},
	{"activity indices", sqlCreateActivityIndices},
	{"group_member", sqlCreateGroupMemberTable},
	{"notification", sqlCreateNotificationTable},
	{"timeline", sqlCreateTimelineTable},
}

// CreateSchema creates all tables and indices that do not exist yet.
func (db *DB) CreateSchema(ctx context.Context) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		for _, s := range schema {
			if _, err := tx.ExecContext(ctx, s.sql); err != nil {
				return fmt.Errorf("creating %s: %w", s.name, err)
			}
		}
		db.log.Debug("Schema is up to date", "tables", len(schema))
		return nil
	})
}
