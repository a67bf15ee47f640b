// Package checker runs the "fix data" maintenance passes: conversation
// repair and the actor/user consistency check.
package checker

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/util"
)

var (
	// ErrNoConversationId is returned when one conversation should be fixed
	// but none of its notes carries a conversation id.
	ErrNoConversationId = errors.New("no conversation id can be determined")
	ErrCancelled        = errors.New("maintenance pass cancelled")
)

// Progress of one pass.
type Progress struct {
	Checker string
	Done    int
	Total   int
}

type Options struct {
	// CountOnly counts what would be fixed without writing.
	CountOnly bool
	// ConversationNoteIds limits the run to the conversation of these notes.
	ConversationNoteIds []int64
	Progress            func(Progress)
}

func (o Options) report(checker string, done, total int) {
	if o.Progress != nil {
		o.Progress(Progress{Checker: checker, Done: done, Total: total})
	}
}

// Store is everything the passes need; *db.DB implements it.
type Store interface {
	NoteStore
	ActorStore
}

type Summary struct {
	CountOnly          bool
	UsersFixed         int
	ConversationsFixed int
	Duration           time.Duration
	Err                error
}

func (s Summary) Total() int {
	return s.UsersFixed + s.ConversationsFixed
}

func (s Summary) Completed() bool {
	return s.Err == nil
}

type Checker struct {
	users         *Users
	conversations *Conversations
	log           *log.Logger
}

func New(store Store, cache CacheUpdater, maxRecursion int) *Checker {
	return &Checker{
		users:         NewUsers(store, cache),
		conversations: NewConversations(store, maxRecursion),
		log:           util.Logger("Checker"),
	}
}

// FixData runs the users pass, then the conversation pass. A targeted
// conversation fix runs the conversation pass only.
func (c *Checker) FixData(ctx context.Context, opts Options) Summary {
	start := time.Now()
	summary := Summary{CountOnly: opts.CountOnly}

	if len(opts.ConversationNoteIds) == 0 {
		summary.UsersFixed, summary.Err = c.users.Fix(ctx, opts)
		if summary.Err != nil {
			c.log.Error("Users pass failed", "fixed", summary.UsersFixed, "err", summary.Err)
			summary.Duration = time.Since(start)
			return summary
		}
	}

	summary.ConversationsFixed, summary.Err = c.conversations.Fix(ctx, opts)
	if summary.Err != nil {
		c.log.Error("Conversations pass failed", "fixed", summary.ConversationsFixed, "err", summary.Err)
	}
	summary.Duration = time.Since(start)
	c.log.Info("Fix data done", "users", summary.UsersFixed, "conversations", summary.ConversationsFixed,
		"countOnly", opts.CountOnly, "duration", summary.Duration)
	return summary
}
