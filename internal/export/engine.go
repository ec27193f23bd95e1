// Package export implements the generic join engine: fetch a primary
// collection, build lookups, resolve columns per record, fan out
// one-to-many relations, dedupe and hand the rows to a writer.
package export

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"path/filepath"

	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/lookup"
	"github.com/hussain-magshield/magshield-data-pipeline/pkg/types"
)

// Writer persists an ordered row set to path.
type Writer interface {
	Write(path string, columns []string, rows [][]any) error
}

// Env carries the collaborators of one export.
type Env struct {
	Source    lookup.Source
	Writer    Writer
	OutputDir string
	Logger    *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Result describes the outcome of one export. An empty Path means nothing
// was written and there is nothing to upload.
type Result struct {
	Domain string
	File   string
	Path   string
	Rows   int
}

// Absent reports whether the export produced no file.
func (r *Result) Absent() bool {
	return r == nil || r.Path == ""
}

// Exporter is one exportable domain.
type Exporter interface {
	Name() string
	FileName() string
	Export(ctx context.Context, env Env) (*Result, error)
}

// RowContext is what column resolvers see for one primary record.
type RowContext[L any] struct {
	Record  types.Record
	Fields  types.Fields
	Lookups L
}

// Column is one output column. Sub columns take their value from the
// fan-out rows produced by Spec.Expand instead of Value.
type Column[L any] struct {
	Name  string
	Date  DateRule
	Sub   bool
	Value func(RowContext[L]) any
}

// As returns a copy of c rendered with the given date rule.
func (c Column[L]) As(rule DateRule) Column[L] {
	c.Date = rule
	return c
}

// Field resolves a column from a top-level record field.
func Field[L any](name, field string) Column[L] {
	return Column[L]{Name: name, Value: func(rc RowContext[L]) any {
		return rc.Record.Value(field)
	}}
}

// Custom resolves a column from a custom field.
func Custom[L any](name, field string) Column[L] {
	return Column[L]{Name: name, Value: func(rc RowContext[L]) any {
		return rc.Fields.Get(field)
	}}
}

// Computed resolves a column with fn.
func Computed[L any](name string, fn func(RowContext[L]) any) Column[L] {
	return Column[L]{Name: name, Value: fn}
}

// Sub declares a column filled from fan-out rows.
func Sub[L any](name string) Column[L] {
	return Column[L]{Name: name, Sub: true}
}

// Spec describes one domain export. L is the domain's lookup bundle.
type Spec[L any] struct {
	Domain   string
	File     string
	Endpoint string
	Params   url.Values
	Columns  []Column[L]

	// Prepare builds the lookups from the primary records. Optional.
	Prepare func(ctx context.Context, src lookup.Source, primary []types.Record) (L, error)

	// Expand returns the sub-entity rows of a record, keyed by Sub column
	// name. Optional; with no sub-entities one row is emitted with the
	// Sub columns blank.
	Expand func(RowContext[L]) []Row
}

// Name returns the domain name.
func (s *Spec[L]) Name() string { return s.Domain }

// FileName returns the output file name.
func (s *Spec[L]) FileName() string { return s.File }

// Header returns the ordered column names.
func (s *Spec[L]) Header() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Export runs the whole pipeline for this domain.
func (s *Spec[L]) Export(ctx context.Context, env Env) (*Result, error) {
	logger := env.logger().With("domain", s.Domain)
	result := &Result{Domain: s.Domain, File: s.File}

	primary := env.Source.FetchAll(ctx, s.Endpoint, s.Params)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(primary) == 0 {
		logger.Info("no primary records, nothing to export", "endpoint", s.Endpoint)
		return result, nil
	}
	logger.Info("primary records fetched", "endpoint", s.Endpoint, "records", len(primary))

	var lookups L
	if s.Prepare != nil {
		var err error
		lookups, err = s.Prepare(ctx, env.Source, primary)
		if err != nil {
			if exporterrors.GetCategory(err) != "" {
				return nil, err
			}
			return nil, exporterrors.NewExportError(exporterrors.CodeLookupFailed, "building lookups for "+s.Domain, err)
		}
	}

	rows := Dedupe(s.BuildRows(primary, lookups))
	if len(rows) == 0 {
		logger.Info("no rows after filtering, nothing to export")
		return result, nil
	}

	path := filepath.Join(env.OutputDir, s.File)
	if err := env.Writer.Write(path, s.Header(), s.Matrix(rows)); err != nil {
		return nil, exporterrors.NewExportError(exporterrors.CodeWriteFailed, "writing "+s.File, err)
	}

	result.Path = path
	result.Rows = len(rows)
	logger.Info("export written", "path", path, "rows", len(rows))
	return result, nil
}

// BuildRows resolves every column of every primary record, fanning out
// through Expand.
func (s *Spec[L]) BuildRows(primary []types.Record, lookups L) []Row {
	rows := make([]Row, 0, len(primary))
	for _, rec := range primary {
		rc := RowContext[L]{Record: rec, Fields: rec.Fields(), Lookups: lookups}

		base := make(Row, len(s.Columns))
		for _, c := range s.Columns {
			if c.Sub || c.Value == nil {
				continue
			}
			base[c.Name] = normalize(c.Date, c.Value(rc))
		}

		if s.Expand == nil {
			rows = append(rows, s.withSub(base, nil))
			continue
		}
		subs := s.Expand(rc)
		if len(subs) == 0 {
			rows = append(rows, s.withSub(base, nil))
			continue
		}
		for _, sub := range subs {
			rows = append(rows, s.withSub(base, sub))
		}
	}
	return rows
}

func (s *Spec[L]) withSub(base, sub Row) Row {
	row := make(Row, len(s.Columns))
	for k, v := range base {
		row[k] = v
	}
	for _, c := range s.Columns {
		if c.Sub {
			row[c.Name] = normalize(c.Date, sub[c.Name])
		} else if _, ok := row[c.Name]; !ok {
			row[c.Name] = ""
		}
	}
	return row
}

// Matrix orders rows by the column list.
func (s *Spec[L]) Matrix(rows []Row) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		line := make([]any, len(s.Columns))
		for j, c := range s.Columns {
			line[j] = row[c.Name]
		}
		out[i] = line
	}
	return out
}

// normalize turns a resolved value into a cleaned spreadsheet scalar.
func normalize(rule DateRule, v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case types.Value:
		return normalize(rule, x.Display())
	case string:
		return rule.Apply(cleanString(x))
	case bool, int64, float64:
		return x
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case json.Number:
		return types.ValueOf(x).Display()
	default:
		return normalize(rule, types.ValueOf(x))
	}
}
