package checker

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

// NoteStore is the part of the database the conversation pass works on.
type NoteStore interface {
	ConversationItems(ctx context.Context) ([]domain.ConversationItem, error)
	ConversationItemsOf(ctx context.Context, noteIds []int64) ([]domain.ConversationItem, error)
	UpdateConversations(ctx context.Context, items []domain.ConversationItem, failed func(domain.ConversationItem, error)) (int, error)
}

// Conversations makes every reply tree, and every group of notes sharing a
// conversation oid, carry one conversation id.
type Conversations struct {
	store        NoteStore
	maxRecursion int
	log          *log.Logger
}

func NewConversations(store NoteStore, maxRecursion int) *Conversations {
	if maxRecursion <= 0 {
		maxRecursion = util.DefaultMaxRecursion
	}
	return &Conversations{store: store, maxRecursion: maxRecursion, log: util.Logger("Conversations")}
}

// snapshot is the loaded note set with staged changes.
type snapshot struct {
	items    map[int64]*domain.ConversationItem
	original map[int64]domain.ConversationItem
	children map[int64][]int64
	order    []int64
}

func newSnapshot(items []domain.ConversationItem) *snapshot {
	s := &snapshot{
		items:    make(map[int64]*domain.ConversationItem, len(items)),
		original: make(map[int64]domain.ConversationItem, len(items)),
		children: make(map[int64][]int64),
	}
	for _, it := range items {
		item := it
		s.items[it.Id] = &item
		s.original[it.Id] = it
		s.order = append(s.order, it.Id)
		if it.InReplyToNoteId != 0 {
			s.children[it.InReplyToNoteId] = append(s.children[it.InReplyToNoteId], it.Id)
		}
	}
	slices.Sort(s.order)
	return s
}

// changed returns the staged items that differ from what was loaded.
func (s *snapshot) changed() []domain.ConversationItem {
	var out []domain.ConversationItem
	for _, id := range s.order {
		it := s.items[id]
		orig := s.original[id]
		if it.ConversationId != orig.ConversationId || it.InReplyToNoteId != orig.InReplyToNoteId {
			out = append(out, *it)
		}
	}
	return out
}

// parentOf returns the loaded parent of a reply in the same origin, or nil.
func (s *snapshot) parentOf(it *domain.ConversationItem) *domain.ConversationItem {
	if it.InReplyToNoteId == 0 {
		return nil
	}
	parent, ok := s.items[it.InReplyToNoteId]
	if !ok || parent.OriginId != it.OriginId {
		return nil
	}
	return parent
}

// Fix runs the repair over the whole store, or over one conversation when
// opts.ConversationNoteIds is set. Returns the number of notes changed.
func (c *Conversations) Fix(ctx context.Context, opts Options) (int, error) {
	var items []domain.ConversationItem
	var err error
	if len(opts.ConversationNoteIds) > 0 {
		items, err = c.store.ConversationItemsOf(ctx, opts.ConversationNoteIds)
	} else {
		items, err = c.store.ConversationItems(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("loading notes: %w", err)
	}
	s := newSnapshot(items)

	if len(opts.ConversationNoteIds) > 0 {
		if err := c.fixOneConversation(s, opts.ConversationNoteIds); err != nil {
			return 0, err
		}
		return c.save(ctx, s, opts)
	}

	total := len(s.order)
	for i, id := range s.order {
		if ctx.Err() != nil {
			return c.cancelled(ctx, s, opts)
		}
		c.fixReply(s, s.items[id])
		opts.report("conversations", i+1, total*2)
	}

	if err := c.joinByConversationOid(ctx, s, opts, total); err != nil {
		return c.cancelled(ctx, s, opts)
	}
	return c.save(ctx, s, opts)
}

type oidGroup struct {
	originId int64
	oid      string
}

func (c *Conversations) fixReply(s *snapshot, it *domain.ConversationItem) {
	if it.InReplyToNoteId == 0 {
		return
	}
	parent := s.parentOf(it)
	if parent == nil {
		c.log.Warn("Clearing reply to a missing or foreign note", "noteId", it.Id, "inReplyTo", it.InReplyToNoteId)
		it.InReplyToNoteId = 0
		if it.ConversationId == 0 {
			it.ConversationId = it.Id
		}
		return
	}
	if parent.ConversationId == 0 {
		if it.ConversationId != 0 {
			parent.ConversationId = it.ConversationId
		} else {
			parent.ConversationId = parent.Id
		}
	}
	if it.ConversationId != parent.ConversationId {
		it.ConversationId = parent.ConversationId
		c.propagate(s, it)
	}
}

// components joins notes along reply links and shared conversation oids.
type components map[int64]int64

func (u components) find(id int64) int64 {
	for {
		p, ok := u[id]
		if !ok || p == id {
			return id
		}
		if gp, ok := u[p]; ok {
			u[id] = gp
		}
		id = p
	}
}

func (u components) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra < rb:
		u[rb] = ra
	case rb < ra:
		u[ra] = rb
	}
}

// joinByConversationOid gives all reply trees connected by a conversation
// oid the smallest conversation id of their roots. It runs after the reply
// pass, so notes with a parent only change through their root.
func (c *Conversations) joinByConversationOid(ctx context.Context, s *snapshot, opts Options, total int) error {
	u := make(components)
	first := make(map[oidGroup]int64)
	for i, id := range s.order {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		it := s.items[id]
		if parent := s.parentOf(it); parent != nil {
			u.union(it.Id, parent.Id)
		}
		if domain.IsRealOid(it.ConversationOid) {
			key := oidGroup{it.OriginId, it.ConversationOid}
			if f, ok := first[key]; ok {
				u.union(it.Id, f)
			} else {
				first[key] = it.Id
			}
		}
		opts.report("conversations", total+i+1, total*2)
	}

	withOid := domain.NewIdSet()
	for _, id := range first {
		withOid.Add(u.find(id))
	}
	target := make(map[int64]int64)
	var roots []*domain.ConversationItem
	for _, id := range s.order {
		it := s.items[id]
		comp := u.find(id)
		if !withOid.Has(comp) || s.parentOf(it) != nil {
			continue
		}
		roots = append(roots, it)
		conv := it.ConversationId
		if conv == 0 {
			conv = it.Id
		}
		if t, ok := target[comp]; !ok || conv < t {
			target[comp] = conv
		}
	}
	for _, root := range roots {
		if t := target[u.find(root.Id)]; root.ConversationId != t {
			root.ConversationId = t
			c.propagate(s, root)
		}
	}
	return nil
}

// propagate copies the conversation id of the note down its reply tree,
// stopping at maxRecursion levels.
func (c *Conversations) propagate(s *snapshot, from *domain.ConversationItem) {
	type step struct {
		id    int64
		depth int
	}
	visited := domain.NewIdSet(from.Id)
	queue := []step{{from.Id, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := s.items[cur.id]
		for _, childId := range s.children[cur.id] {
			child := s.items[childId]
			if child.InReplyToNoteId != node.Id || child.OriginId != node.OriginId || visited.Has(childId) {
				continue
			}
			if cur.depth+1 > c.maxRecursion {
				c.log.Warn("Conversation is too deep, stopping propagation", "noteId", from.Id, "depth", c.maxRecursion)
				return
			}
			visited.Add(childId)
			child.ConversationId = node.ConversationId
			queue = append(queue, step{childId, cur.depth + 1})
		}
	}
}

// fixOneConversation gives every loaded note the smallest conversation id
// found among them.
func (c *Conversations) fixOneConversation(s *snapshot, seed []int64) error {
	var smallest int64
	for _, id := range s.order {
		conv := s.items[id].ConversationId
		if conv != 0 && (smallest == 0 || conv < smallest) {
			smallest = conv
		}
	}
	if smallest == 0 {
		return fmt.Errorf("%w: notes %v", ErrNoConversationId, seed)
	}
	for _, id := range s.order {
		s.items[id].ConversationId = smallest
	}
	return nil
}

func (c *Conversations) save(ctx context.Context, s *snapshot, opts Options) (int, error) {
	changed := s.changed()
	if opts.CountOnly || len(changed) == 0 {
		c.log.Info("Conversations checked", "notes", len(s.order), "toFix", len(changed), "countOnly", opts.CountOnly)
		return len(changed), nil
	}
	written, err := c.store.UpdateConversations(ctx, changed, func(it domain.ConversationItem, err error) {
		c.log.Error("Failed to update conversation of note", "noteId", it.Id, "conversationId", it.ConversationId, "err", err)
	})
	if err != nil {
		return written, fmt.Errorf("saving conversations: %w", err)
	}
	c.log.Info("Conversations fixed", "notes", len(s.order), "fixed", written)
	return written, nil
}

// cancelled keeps the progress made so far and reports it.
func (c *Conversations) cancelled(ctx context.Context, s *snapshot, opts Options) (int, error) {
	n, err := c.save(context.WithoutCancel(ctx), s, opts)
	if err != nil {
		return n, err
	}
	return n, fmt.Errorf("%w after %d notes fixed", ErrCancelled, n)
}
