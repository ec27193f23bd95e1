// Package crmtest provides an in-memory collection source for tests of the
// lookup and export layers.
package crmtest

import (
	"context"
	"net/url"
	"sync"

	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

// Source serves fixed collections and counts calls per endpoint.
type Source struct {
	mu          sync.Mutex
	collections map[string][]types.Record
	fetchAll    map[string]int
	fetchByIDs  map[string]int
	requested   map[string][]string
}

// NewSource creates an empty source.
func NewSource() *Source {
	return &Source{
		collections: make(map[string][]types.Record),
		fetchAll:    make(map[string]int),
		fetchByIDs:  make(map[string]int),
		requested:   make(map[string][]string),
	}
}

// Add appends records to an endpoint's collection.
func (s *Source) Add(endpoint string, records ...types.Record) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[endpoint] = append(s.collections[endpoint], records...)
	return s
}

// FetchAll returns the whole collection.
func (s *Source) FetchAll(ctx context.Context, endpoint string, params url.Values) []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchAll[endpoint]++
	return append([]types.Record(nil), s.collections[endpoint]...)
}

// FetchByIDs returns the records whose idField matches one of ids.
func (s *Source) FetchByIDs(ctx context.Context, endpoint, idField string, ids []string) []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	s.fetchByIDs[endpoint]++
	s.requested[endpoint] = append(s.requested[endpoint], ids...)

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[types.NormalizeID(id)] = struct{}{}
	}
	var out []types.Record
	for _, r := range s.collections[endpoint] {
		if _, ok := want[r.ID(idField)]; ok {
			out = append(out, r)
		}
	}
	return out
}

// FetchAllCalls returns how often FetchAll hit endpoint.
func (s *Source) FetchAllCalls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchAll[endpoint]
}

// FetchByIDsCalls returns how often FetchByIDs hit endpoint.
func (s *Source) FetchByIDsCalls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchByIDs[endpoint]
}

// Requested returns the IDs asked of endpoint through FetchByIDs.
func (s *Source) Requested(endpoint string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested[endpoint]...)
}
