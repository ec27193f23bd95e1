package crm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/observability"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
	"golang.org/x/sync/semaphore"
)

// PagerConfig holds pagination settings.
type PagerConfig struct {
	// PageSize is the skip/top window (default: 500).
	PageSize int
	// Workers bounds concurrent page and batch requests (default: 10).
	Workers int
	// BatchSize is the number of IDs per $filter request (default: 80).
	BatchSize int
}

// DefaultPagerConfig returns the default pagination settings.
func DefaultPagerConfig() PagerConfig {
	return PagerConfig{
		PageSize:  500,
		Workers:   10,
		BatchSize: 80,
	}
}

// Pager fetches whole collections and ID subsets through a Client. A Pager
// belongs to one export run; its tally collects that run's failures.
type Pager struct {
	client *Client
	cfg    PagerConfig
	tally  *observability.FetchTally
	logger *slog.Logger
}

// NewPager creates a pager. tally may be nil.
func NewPager(client *Client, cfg PagerConfig, tally *observability.FetchTally, logger *slog.Logger) *Pager {
	def := DefaultPagerConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pager{
		client: client,
		cfg:    cfg,
		tally:  tally,
		logger: logger,
	}
}

// PageCount returns ceil(total / pageSize).
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// FetchAll returns every record of endpoint. The count probe failing yields
// an empty result; a failed page contributes nothing. Pages are merged in
// page order.
func (p *Pager) FetchAll(ctx context.Context, endpoint string, params url.Values) []types.Record {
	probe := cloneValues(params)
	probe.Set("top", "1")
	probe.Set("count_total", "true")

	resp, err := p.client.Get(ctx, endpoint, probe)
	if err != nil {
		p.tally.RecordProbe(endpoint, false)
		p.logger.Warn("count probe failed", "endpoint", endpoint, "error", err)
		return nil
	}
	total, ok := resp.TotalCount()
	if !ok {
		p.tally.RecordProbe(endpoint, false)
		p.logger.Warn("count probe returned no total", "endpoint", endpoint)
		return nil
	}
	p.tally.RecordProbe(endpoint, true)

	pages := PageCount(total, p.cfg.PageSize)
	p.logger.Info("paged fetch", "endpoint", endpoint, "total", total, "pages", pages)
	if pages == 0 {
		return nil
	}

	results := make([][]types.Record, pages)
	p.forEach(ctx, pages, func(ctx context.Context, i int) {
		q := cloneValues(params)
		q.Set("skip", strconv.Itoa(i*p.cfg.PageSize))
		q.Set("top", strconv.Itoa(p.cfg.PageSize))

		records, err := p.getRecords(ctx, endpoint, q)
		if err != nil {
			p.tally.RecordPage(endpoint, false)
			p.logger.Warn("page skipped", "endpoint", endpoint, "page", i, "error", err)
			return
		}
		p.tally.RecordPage(endpoint, true)
		results[i] = records
	}, func(i int) {
		p.tally.RecordPage(endpoint, false)
	})

	records := flatten(results)
	p.logger.Info("paged fetch done", "endpoint", endpoint, "records", len(records), "expected", total)
	return records
}

// FetchByIDs returns the records of endpoint whose idField is in ids, using
// batched "$filter=<idField> in (...)" requests, each asking for as many
// records as it names. Empty and repeated IDs are
// dropped first; an empty working set makes no request.
func (p *Pager) FetchByIDs(ctx context.Context, endpoint, idField string, ids []string) []types.Record {
	unique := distinct(ids)
	if len(unique) == 0 {
		return nil
	}

	batches := chunk(unique, p.cfg.BatchSize)
	results := make([][]types.Record, len(batches))
	p.forEach(ctx, len(batches), func(ctx context.Context, i int) {
		q := url.Values{}
		q.Set("$filter", fmt.Sprintf("%s in (%s)", idField, strings.Join(batches[i], ",")))
		q.Set("top", strconv.Itoa(len(batches[i])))

		records, err := p.getRecords(ctx, endpoint, q)
		if err != nil {
			p.tally.RecordBatch(endpoint, false)
			p.logger.Warn("id batch skipped", "endpoint", endpoint, "batch", i, "ids", len(batches[i]), "error", err)
			return
		}
		p.tally.RecordBatch(endpoint, true)
		results[i] = records
	}, func(i int) {
		p.tally.RecordBatch(endpoint, false)
	})

	records := flatten(results)
	p.logger.Info("targeted fetch done", "endpoint", endpoint, "ids", len(unique), "batches", len(batches), "records", len(records))
	return records
}

func (p *Pager) getRecords(ctx context.Context, endpoint string, q url.Values) ([]types.Record, error) {
	resp, err := p.client.Get(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}
	return resp.Records()
}

// forEach runs fn for indices [0,n) with at most Workers in flight. Indices
// never started because ctx ended are passed to skipped.
func (p *Pager) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int), skipped func(i int)) {
	sem := semaphore.NewWeighted(int64(p.cfg.Workers))
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < n; j++ {
				skipped(j)
			}
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			fn(ctx, i)
		}(i)
	}

	wg.Wait()
}

func flatten(parts [][]types.Record) []types.Record {
	n := 0
	for _, part := range parts {
		n += len(part)
	}
	out := make([]types.Record, 0, n)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+4)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
