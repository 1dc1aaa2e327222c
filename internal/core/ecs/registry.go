package ecs

import "sort"

// Registry tracks component stores by key and supports bulk cleanup on
// entity destroy.
type Registry struct {
	stores map[int32]Removable
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[int32]Removable, 16),
	}
}

// Register adds a component store under key, replacing any previous store.
func (r *Registry) Register(key int32, store Removable) {
	r.stores[key] = store
}

func (r *Registry) Store(key int32) (Removable, bool) {
	s, ok := r.stores[key]
	return s, ok
}

// Keys returns the registered keys in ascending order.
func (r *Registry) Keys() []int32 {
	keys := make([]int32, 0, len(r.stores))
	for k := range r.stores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}
