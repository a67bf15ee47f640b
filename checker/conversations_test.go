package checker

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/deemkeen/andstatus/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotes struct {
	items   map[int64]domain.ConversationItem
	failing domain.IdSet
	writes  int
}

func newFakeNotes(items ...domain.ConversationItem) *fakeNotes {
	f := &fakeNotes{items: make(map[int64]domain.ConversationItem), failing: domain.NewIdSet()}
	for _, it := range items {
		if it.OriginId == 0 {
			it.OriginId = 1
		}
		f.items[it.Id] = it
	}
	return f
}

func (f *fakeNotes) sorted() []domain.ConversationItem {
	var out []domain.ConversationItem
	for _, it := range f.items {
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b domain.ConversationItem) int { return int(a.Id - b.Id) })
	return out
}

func (f *fakeNotes) ConversationItems(context.Context) ([]domain.ConversationItem, error) {
	return f.sorted(), nil
}

func (f *fakeNotes) ConversationItemsOf(_ context.Context, noteIds []int64) ([]domain.ConversationItem, error) {
	seed := domain.NewIdSet(noteIds...)
	convs := domain.NewIdSet()
	for id := range seed {
		if it, ok := f.items[id]; ok {
			convs.Add(it.ConversationId)
		}
	}
	var out []domain.ConversationItem
	for _, it := range f.sorted() {
		if seed.Has(it.Id) || convs.Has(it.ConversationId) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeNotes) UpdateConversations(_ context.Context, items []domain.ConversationItem, failed func(domain.ConversationItem, error)) (int, error) {
	written := 0
	for _, it := range items {
		if f.failing.Has(it.Id) {
			failed(it, errors.New("disk I/O error"))
			continue
		}
		f.items[it.Id] = it
		written++
	}
	f.writes++
	return written, nil
}

func (f *fakeNotes) conv(id int64) int64 {
	return f.items[id].ConversationId
}

func TestReplyGetsConversationOfSelfRootedParent(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1},
		domain.ConversationItem{Id: 2, InReplyToNoteId: 1},
	)
	n, err := NewConversations(store, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1), store.conv(1))
	assert.Equal(t, int64(1), store.conv(2))
}

func TestNotesSharingConversationOid(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 5, ConversationOid: "c1"},
		domain.ConversationItem{Id: 9, ConversationOid: "c1"},
		domain.ConversationItem{Id: 11, ConversationOid: "c1", OriginId: 2},
	)
	_, err := NewConversations(store, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), store.conv(5))
	assert.Equal(t, int64(5), store.conv(9))
	assert.Equal(t, int64(11), store.conv(11), "same oid in another origin is another conversation")
}

func TestSyntheticConversationOidIsIgnored(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1, ConversationOid: domain.TempOidFor("x")},
		domain.ConversationItem{Id: 2, ConversationOid: domain.TempOidFor("x")},
	)
	n, err := NewConversations(store, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplyToMissingParentIsCleared(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 3, InReplyToNoteId: 42},
		domain.ConversationItem{Id: 4, InReplyToNoteId: 43, ConversationId: 7},
	)
	_, err := NewConversations(store, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, store.items[3].InReplyToNoteId)
	assert.Equal(t, int64(3), store.conv(3), "self-rooted when it had no conversation")
	assert.Zero(t, store.items[4].InReplyToNoteId)
	assert.Equal(t, int64(7), store.conv(4), "existing conversation id is kept")
}

func TestReplyToOtherOriginIsCleared(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1, OriginId: 1, ConversationId: 1},
		domain.ConversationItem{Id: 2, OriginId: 2, InReplyToNoteId: 1},
	)
	_, err := NewConversations(store, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, store.items[2].InReplyToNoteId)
	assert.Equal(t, int64(2), store.conv(2))
}

func TestReplyTreeClosureAndIdempotence(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1, ConversationId: 1},
		domain.ConversationItem{Id: 2, InReplyToNoteId: 1, ConversationId: 8},
		domain.ConversationItem{Id: 3, InReplyToNoteId: 2, ConversationId: 8},
		domain.ConversationItem{Id: 4, InReplyToNoteId: 3},
		domain.ConversationItem{Id: 8, ConversationId: 8},
		domain.ConversationItem{Id: 9, InReplyToNoteId: 8, ConversationOid: "c2"},
		domain.ConversationItem{Id: 10, ConversationOid: "c2"},
	)
	c := NewConversations(store, 0)

	first, err := c.Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Positive(t, first)

	for _, it := range store.items {
		if it.InReplyToNoteId != 0 {
			assert.Equal(t, store.conv(it.InReplyToNoteId), it.ConversationId, "note %d", it.Id)
		}
	}
	assert.Equal(t, int64(1), store.conv(4))
	assert.Equal(t, int64(8), store.conv(9), "reply link wins over the conversation oid")
	assert.Equal(t, int64(8), store.conv(10), "root of c2 is the first note seen")

	second, err := c.Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestConversationOidGroupsSettleInOnePass(t *testing.T) {
	// note 2 joins c1 through its parent, so note 3 of c2 must follow it
	store := newFakeNotes(
		domain.ConversationItem{Id: 1, ConversationOid: "c1"},
		domain.ConversationItem{Id: 2, ConversationOid: "c2", InReplyToNoteId: 5},
		domain.ConversationItem{Id: 3, ConversationOid: "c2"},
		domain.ConversationItem{Id: 5, ConversationOid: "c1"},
	)
	c := NewConversations(store, 0)

	_, err := c.Fix(context.Background(), Options{})
	require.NoError(t, err)
	for _, id := range []int64{1, 2, 3, 5} {
		assert.Equal(t, int64(1), store.conv(id), "note %d", id)
	}

	second, err := c.Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestPropagationDepthIsBounded(t *testing.T) {
	reverseChain := func() *fakeNotes {
		// 1 -> 2 -> ... -> 6, every note wrongly self-rooted
		var items []domain.ConversationItem
		for id := int64(1); id <= 6; id++ {
			it := domain.ConversationItem{Id: id, ConversationId: id}
			if id < 6 {
				it.InReplyToNoteId = id + 1
			}
			items = append(items, it)
		}
		return newFakeNotes(items...)
	}

	bounded := reverseChain()
	_, err := NewConversations(bounded, 2).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.NotEqual(t, int64(6), bounded.conv(1), "propagation stops at the bound")
	assert.Equal(t, int64(6), bounded.conv(5))

	unbounded := reverseChain()
	_, err = NewConversations(unbounded, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	for id := int64(1); id <= 6; id++ {
		assert.Equal(t, int64(6), unbounded.conv(id))
	}
}

func TestCyclicRepliesTerminate(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1, InReplyToNoteId: 2},
		domain.ConversationItem{Id: 2, InReplyToNoteId: 1},
	)
	_, err := NewConversations(store, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, store.conv(1), store.conv(2))
}

func TestOneConversationUsesSmallestId(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1, ConversationId: 5},
		domain.ConversationItem{Id: 2, ConversationId: 3},
		domain.ConversationItem{Id: 3, ConversationId: 5},
		domain.ConversationItem{Id: 4, ConversationId: 3},
		domain.ConversationItem{Id: 5, ConversationId: 12},
	)
	n, err := NewConversations(store, 0).Fix(context.Background(), Options{ConversationNoteIds: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, id := range []int64{1, 2, 3, 4} {
		assert.Equal(t, int64(3), store.conv(id))
	}
	assert.Equal(t, int64(12), store.conv(5), "unrelated conversation is untouched")
}

func TestOneConversationWithoutIdIsFatal(t *testing.T) {
	store := newFakeNotes(domain.ConversationItem{Id: 1}, domain.ConversationItem{Id: 2})
	_, err := NewConversations(store, 0).Fix(context.Background(), Options{ConversationNoteIds: []int64{1, 2}})
	assert.ErrorIs(t, err, ErrNoConversationId)
	assert.Zero(t, store.writes)
}

func TestCountOnlyDoesNotWrite(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1},
		domain.ConversationItem{Id: 2, InReplyToNoteId: 1},
	)
	n, err := NewConversations(store, 0).Fix(context.Background(), Options{CountOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, store.writes)
	assert.Zero(t, store.conv(2))
}

func TestFailedRowIsSkipped(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1},
		domain.ConversationItem{Id: 2, InReplyToNoteId: 1},
	)
	store.failing.Add(2)
	n, err := NewConversations(store, 0).Fix(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), store.conv(1))
}

func TestCancelledPassReportsPartialCount(t *testing.T) {
	store := newFakeNotes(
		domain.ConversationItem{Id: 1},
		domain.ConversationItem{Id: 2, InReplyToNoteId: 1},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := NewConversations(store, 0).Fix(ctx, Options{})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, n)
}

func TestProgressIsReported(t *testing.T) {
	store := newFakeNotes(domain.ConversationItem{Id: 1}, domain.ConversationItem{Id: 2})
	var last Progress
	_, err := NewConversations(store, 0).Fix(context.Background(), Options{Progress: func(p Progress) { last = p }})
	require.NoError(t, err)
	assert.Equal(t, "conversations", last.Checker)
	assert.Equal(t, last.Total, last.Done)
}
