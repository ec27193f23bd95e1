// Package observability tracks per-run fetch outcomes so partial results are
// reported instead of silently shrinking the export.
package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FetchTally counts probe, page and batch outcomes per endpoint for one
// export run. A nil *FetchTally discards everything.
type FetchTally struct {
	mu        sync.Mutex
	endpoints map[string]*EndpointStats
}

// EndpointStats holds the outcome counters for one endpoint.
type EndpointStats struct {
	Endpoint      string `json:"endpoint"`
	Probes        int64  `json:"probes"`
	ProbesFailed  int64  `json:"probes_failed"`
	Pages         int64  `json:"pages"`
	PagesFailed   int64  `json:"pages_failed"`
	Batches       int64  `json:"batches"`
	BatchesFailed int64  `json:"batches_failed"`
}

// TallySnapshot is a point-in-time copy of a FetchTally.
type TallySnapshot struct {
	Endpoints     []EndpointStats `json:"endpoints"`
	ProbesFailed  int64           `json:"probes_failed"`
	PagesFailed   int64           `json:"pages_failed"`
	BatchesFailed int64           `json:"batches_failed"`
}

// NewFetchTally creates an empty tally.
func NewFetchTally() *FetchTally {
	return &FetchTally{endpoints: make(map[string]*EndpointStats)}
}

// RecordProbe records the count probe of a paged fetch.
func (t *FetchTally) RecordProbe(endpoint string, ok bool) {
	t.record(endpoint, func(s *EndpointStats) {
		s.Probes++
		if !ok {
			s.ProbesFailed++
		}
	})
}

// RecordPage records one page fetch.
func (t *FetchTally) RecordPage(endpoint string, ok bool) {
	t.record(endpoint, func(s *EndpointStats) {
		s.Pages++
		if !ok {
			s.PagesFailed++
		}
	})
}

// RecordBatch records one targeted ID batch.
func (t *FetchTally) RecordBatch(endpoint string, ok bool) {
	t.record(endpoint, func(s *EndpointStats) {
		s.Batches++
		if !ok {
			s.BatchesFailed++
		}
	})
}

func (t *FetchTally) record(endpoint string, apply func(*EndpointStats)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, exists := t.endpoints[endpoint]
	if !exists {
		stats = &EndpointStats{Endpoint: endpoint}
		t.endpoints[endpoint] = stats
	}
	apply(stats)
}

// Snapshot returns a copy of the counters sorted by endpoint.
func (t *FetchTally) Snapshot() TallySnapshot {
	var snap TallySnapshot
	if t == nil {
		return snap
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap.Endpoints = make([]EndpointStats, 0, len(t.endpoints))
	for _, s := range t.endpoints {
		snap.Endpoints = append(snap.Endpoints, *s)
		snap.ProbesFailed += s.ProbesFailed
		snap.PagesFailed += s.PagesFailed
		snap.BatchesFailed += s.BatchesFailed
	}
	sort.Slice(snap.Endpoints, func(i, j int) bool {
		return snap.Endpoints[i].Endpoint < snap.Endpoints[j].Endpoint
	})
	return snap
}

// Incomplete reports whether any fetch failed during the run.
func (s TallySnapshot) Incomplete() bool {
	return s.ProbesFailed+s.PagesFailed+s.BatchesFailed > 0
}

// Summary renders the failure counts for a log line, "" when complete.
func (s TallySnapshot) Summary() string {
	if !s.Incomplete() {
		return ""
	}
	var parts []string
	if s.ProbesFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d probes failed", s.ProbesFailed))
	}
	if s.PagesFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d pages failed", s.PagesFailed))
	}
	if s.BatchesFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d batches failed", s.BatchesFailed))
	}
	return "rows possibly incomplete: " + strings.Join(parts, ", ")
}
