package ecs

import "sort"

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID) bool
}

// Store is a generic typed map store for ECS components.
type Store[T any] struct {
	data map[EntityID]T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[EntityID]T, 64),
	}
}

func (s *Store[T]) Set(id EntityID, c T) {
	s.data[id] = c
}

func (s *Store[T]) Get(id EntityID) (T, bool) {
	c, ok := s.data[id]
	return c, ok
}

// Remove deletes the entity's value and reports whether it was present.
func (s *Store[T]) Remove(id EntityID) bool {
	if _, ok := s.data[id]; !ok {
		return false
	}
	delete(s.data, id)
	return true
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

// Entities returns the ids holding a value, in ascending order.
func (s *Store[T]) Entities() []EntityID {
	ids := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
