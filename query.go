package regraft

import (
	"fmt"

	"github.com/jward/regraft/internal/store"
)

// QueryBuilder provides read access to persisted check results.
type QueryBuilder struct {
	store *store.Store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// StoredDiagnostic is one persisted finding with its file path attached.
type StoredDiagnostic struct {
	File      string
	Decl      string
	Rule      string
	Severity  string
	Message   string
	StartByte uint32
	EndByte   uint32
}

// DiagnosticsBySeverity returns every stored finding at the given severity,
// ordered by file path and position.
func (q *QueryBuilder) DiagnosticsBySeverity(severity string) ([]StoredDiagnostic, error) {
	return q.diagnosticsWhere(`d.severity = ?`, severity)
}

// DiagnosticsByRule returns every stored finding of the named rule.
func (q *QueryBuilder) DiagnosticsByRule(rule string) ([]StoredDiagnostic, error) {
	return q.diagnosticsWhere(`d.rule = ?`, rule)
}

func (q *QueryBuilder) diagnosticsWhere(cond string, arg any) ([]StoredDiagnostic, error) {
	rows, err := q.store.DB().Query(
		`SELECT f.path, d.decl, d.rule, d.severity, d.message, d.start_byte, d.end_byte
		 FROM diagnostics d JOIN files f ON f.id = d.file_id
		 WHERE `+cond+` ORDER BY f.path, d.start_byte, d.rule`, arg)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []StoredDiagnostic
	for rows.Next() {
		var d StoredDiagnostic
		if err := rows.Scan(&d.File, &d.Decl, &d.Rule, &d.Severity, &d.Message, &d.StartByte, &d.EndByte); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RuleCount is one row of the per-rule summary.
type RuleCount struct {
	Rule  string
	Count int
}

// Summary returns finding counts per rule across every checked file,
// most findings first.
func (q *QueryBuilder) Summary() ([]RuleCount, error) {
	rows, err := q.store.DB().Query(
		`SELECT rule, COUNT(*) FROM diagnostics GROUP BY rule ORDER BY COUNT(*) DESC, rule`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []RuleCount
	for rows.Next() {
		var rc RuleCount
		if err := rows.Scan(&rc.Rule, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// CheckedFiles returns the paths of every file with stored results.
func (q *QueryBuilder) CheckedFiles() ([]string, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths, nil
}
