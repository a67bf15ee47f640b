package domain

import "slices"

// IdSet is a set of local numeric ids.
type IdSet map[int64]struct{}

func NewIdSet(ids ...int64) IdSet {
	s := make(IdSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s IdSet) Add(id int64) {
	if id != 0 {
		s[id] = struct{}{}
	}
}

func (s IdSet) Remove(id int64) {
	delete(s, id)
}

func (s IdSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s IdSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s IdSet) Clone() IdSet {
	c := make(IdSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}
