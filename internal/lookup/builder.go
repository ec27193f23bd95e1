package lookup

import (
	"context"
	"net/url"

	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Source is the fetch surface lookups are built from. *crm.Pager
// implements it.
type Source interface {
	// FetchAll returns a whole collection; failures shrink the result.
	FetchAll(ctx context.Context, endpoint string, params url.Values) []types.Record
	// FetchByIDs returns the records whose idField is in ids.
	FetchByIDs(ctx context.Context, endpoint, idField string, ids []string) []types.Record
}

// Full builds a table from an entire secondary collection.
func Full[V any](ctx context.Context, src Source, endpoint, idField string, params url.Values, project func(types.Record) V) *Table[V] {
	return FromRecords(src.FetchAll(ctx, endpoint, params), idField, project)
}

// Targeted builds a table from only the records referenced by ids. An
// empty working set makes no request.
func Targeted[V any](ctx context.Context, src Source, endpoint, idField string, ids []string, project func(types.Record) V) *Table[V] {
	if len(ids) == 0 {
		return NewTable[V](nil)
	}
	return FromRecords(src.FetchByIDs(ctx, endpoint, idField, ids), idField, project)
}

// Job builds one table into a variable owned by the caller.
type Job func(ctx context.Context) error

// Build runs independent jobs concurrently, at most limit at a time (no
// limit when limit <= 0), and returns once all of them finished. Each job
// must write only its own destination; callers read the tables after
// Build returns.
func Build(ctx context.Context, limit int, jobs ...Job) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return job(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
