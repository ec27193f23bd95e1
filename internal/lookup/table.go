// Package lookup builds the ID-keyed tables used to denormalize export rows.
// Tables are filled during a construction phase and only read afterwards.
package lookup

import (
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

// Table maps a normalized string ID to a value. It is never mutated after
// construction and is safe for concurrent reads.
type Table[V any] struct {
	entries map[string]V
}

// NewTable wraps entries. The caller must not modify entries afterwards.
func NewTable[V any](entries map[string]V) *Table[V] {
	if entries == nil {
		entries = map[string]V{}
	}
	return &Table[V]{entries: entries}
}

// Get looks up id in any wire representation.
func (t *Table[V]) Get(id any) (V, bool) {
	var zero V
	if t == nil {
		return zero, false
	}
	key := types.NormalizeID(id)
	if key == "" {
		return zero, false
	}
	v, ok := t.entries[key]
	return v, ok
}

// Value returns the entry for id or the zero value.
func (t *Table[V]) Value(id any) V {
	v, _ := t.Get(id)
	return v
}

// Len returns the number of entries.
func (t *Table[V]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// FromRecords projects records into a table keyed by idField. Records
// without an ID are skipped; a repeated ID keeps the last record.
func FromRecords[V any](records []types.Record, idField string, project func(types.Record) V) *Table[V] {
	entries := make(map[string]V, len(records))
	for _, r := range records {
		id := r.ID(idField)
		if id == "" {
			continue
		}
		entries[id] = project(r)
	}
	return NewTable(entries)
}

// Derive maps every entry of base through fn.
func Derive[V, W any](base *Table[V], fn func(V) W) *Table[W] {
	if base == nil {
		return NewTable[W](nil)
	}
	entries := make(map[string]W, len(base.entries))
	for k, v := range base.entries {
		entries[k] = fn(v)
	}
	return NewTable(entries)
}

// Grouped collects values under a parent key. Each key holds a set kept in
// first-seen order, so a value associated twice appears once.
func Grouped[V comparable](records []types.Record, key func(types.Record) string, value func(types.Record) (V, bool)) *Table[[]V] {
	entries := make(map[string][]V)
	seen := make(map[string]map[V]struct{})

	for _, r := range records {
		k := types.NormalizeID(key(r))
		if k == "" {
			continue
		}
		v, ok := value(r)
		if !ok {
			continue
		}
		set, exists := seen[k]
		if !exists {
			set = make(map[V]struct{})
			seen[k] = set
		}
		if _, dup := set[v]; dup {
			continue
		}
		set[v] = struct{}{}
		entries[k] = append(entries[k], v)
	}
	return NewTable(entries)
}

// Collect gathers the distinct non-empty IDs produced by fn over records,
// in first-seen order.
func Collect(records []types.Record, fn func(types.Record) []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range records {
		for _, id := range fn(r) {
			id = types.NormalizeID(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
