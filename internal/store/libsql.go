package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rvergara/docflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. the action log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	tasks, err := json.Marshal(&exec.FlowTasks)
	if err != nil {
		return fmt.Errorf("marshal flow tasks: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (document_id, flow_id, flow_name, flow_tasks, status, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.DocumentID, nullStr(exec.FlowID), nullStr(exec.FlowName), string(tasks),
		string(exec.Status), timeOrNow(exec.CreatedAt), timeOrNow(exec.UpdatedAt), nullTime(exec.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, documentID string) (*Execution, error) {
	exec := &Execution{}
	var (
		flowID, flowName sql.NullString
		tasksJSON        string
		status           string
		completedAt      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, flow_id, flow_name, flow_tasks, status, created_at, updated_at, completed_at
		 FROM executions WHERE document_id = ?`, documentID,
	).Scan(&exec.DocumentID, &flowID, &flowName, &tasksJSON, &status, &exec.CreatedAt, &exec.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", documentID)
	}
	if err != nil {
		return nil, err
	}
	exec.FlowID = flowID.String
	exec.FlowName = flowName.String
	exec.Status = schema.FlowStatus(status)
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(tasksJSON), &exec.FlowTasks); err != nil {
		return nil, fmt.Errorf("unmarshal flow tasks: %w", err)
	}
	return exec, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, documentID string, update ExecutionUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if update.FlowTasks != nil {
		tasks, err := json.Marshal(update.FlowTasks)
		if err != nil {
			return fmt.Errorf("marshal flow tasks: %w", err)
		}
		sets = append(sets, "flow_tasks = ?")
		args = append(args, string(tasks))
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}

	args = append(args, documentID)
	query := "UPDATE executions SET " + strings.Join(sets, ", ") + " WHERE document_id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", documentID)
}

func (s *LibSQLStore) ListOpenExecutions(ctx context.Context) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id FROM executions WHERE status = ? ORDER BY created_at`, string(schema.FlowStatusInitiated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	execs := make([]*Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, nil
}

func (s *LibSQLStore) DeleteExecution(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE document_id = ?`, documentID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", documentID)
}

// --- Flow Actions ---

// AppendAction delegates to the action log for sequenced appends.
func (s *LibSQLStore) AppendAction(ctx context.Context, action *FlowAction) error {
	return NewActionLog(s).Append(ctx, action)
}

func (s *LibSQLStore) ListActions(ctx context.Context, filter ActionFilter) ([]*FlowAction, error) {
	query := `SELECT id, document_id, node_id, action_type, payload, timestamp, sequence FROM flow_actions`
	var where []string
	var args []any
	if filter.DocumentID != "" {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.Type != "" {
		where = append(where, "action_type = ?")
		args = append(args, filter.Type)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY document_id, sequence"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*FlowAction
	for rows.Next() {
		a := &FlowAction{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&a.ID, &a.DocumentID, &nodeID, &a.Type, &payload, &a.Timestamp, &a.Sequence); err != nil {
			return nil, err
		}
		a.NodeID = nodeID.String
		a.Payload = rawOrNil(payload)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// --- Form Data ---

func (s *LibSQLStore) SaveFormData(ctx context.Context, documentID, nodeID string, data map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal form data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO form_data (document_id, node_id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(document_id, node_id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		documentID, nodeID, string(payload), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) GetFormData(ctx context.Context, documentID, nodeID string) (map[string]string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM form_data WHERE document_id = ? AND node_id = ?`, documentID, nodeID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("unmarshal form data: %w", err)
	}
	return data, nil
}

// --- Flow Templates ---

func (s *LibSQLStore) StoreTemplate(ctx context.Context, tpl *FlowTemplate) error {
	graph, err := json.Marshal(&tpl.Graph)
	if err != nil {
		return fmt.Errorf("marshal template graph: %w", err)
	}
	if tpl.Version == 0 {
		tpl.Version = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flow_templates (id, name, version, graph, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, version=excluded.version, graph=excluded.graph, updated_at=excluded.updated_at`,
		tpl.ID, tpl.Name, tpl.Version, string(graph), timeOrNow(tpl.CreatedAt), timeOrNow(tpl.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetTemplate(ctx context.Context, id string) (*FlowTemplate, error) {
	t := &FlowTemplate{}
	var graphJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, graph, created_at, updated_at FROM flow_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Version, &graphJSON, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("flow template", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(graphJSON), &t.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal template graph: %w", err)
	}
	return t, nil
}

func (s *LibSQLStore) ListTemplates(ctx context.Context) ([]*FlowTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, graph, created_at, updated_at FROM flow_templates ORDER BY name, version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*FlowTemplate
	for rows.Next() {
		t := &FlowTemplate{}
		var graphJSON string
		if err := rows.Scan(&t.ID, &t.Name, &t.Version, &graphJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(graphJSON), &t.Graph); err != nil {
			return nil, fmt.Errorf("unmarshal template graph: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value, time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", key)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

var _ Store = (*LibSQLStore)(nil)

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

