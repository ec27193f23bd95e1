// Package runlog records the outcome of every domain export in a SQLite
// audit table.
package runlog

// CreateRunsTableSQL creates the domain outcome table. One row per domain
// per run; tally holds the snappy-compressed JSON fetch tally.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS domain_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    run_group TEXT NOT NULL,
    domain TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    row_count INTEGER NOT NULL DEFAULT 0,
    file_name TEXT NOT NULL DEFAULT '',
    uploaded INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    tally BLOB
)`

// CreateRunsIndexesSQL creates the lookup indexes.
var CreateRunsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_domain_runs_run ON domain_runs(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_domain_runs_started ON domain_runs(started_at)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	return append([]string{CreateRunsTableSQL}, CreateRunsIndexesSQL...)
}
