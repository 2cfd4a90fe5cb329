package store

import (
	"context"
	"fmt"
	"time"
)

// ActionLog appends flow actions with a gapless per-document sequence.
// Appends run inside a BEGIN IMMEDIATE transaction so the sequence read
// and the insert are atomic even with concurrent writers.
type ActionLog struct {
	store *LibSQLStore
}

func NewActionLog(store *LibSQLStore) *ActionLog {
	return &ActionLog{store: store}
}

// Append assigns the next sequence number for the action's document and
// inserts it. The action's Sequence and Timestamp fields are filled in.
func (l *ActionLog) Append(ctx context.Context, action *FlowAction) error {
	if action.DocumentID == "" {
		return fmt.Errorf("append action: document id is required")
	}
	if action.Type == "" {
		return fmt.Errorf("append action: action type is required")
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}

	db := l.store.DB()

	// BEGIN IMMEDIATE takes the write lock up front so the MAX(sequence)
	// read cannot race another appender on the same document.
	if _, err := db.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	rollback := func() { _, _ = db.ExecContext(ctx, "ROLLBACK") }

	var next int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM flow_actions WHERE document_id = ?`,
		action.DocumentID,
	).Scan(&next)
	if err != nil {
		rollback()
		return fmt.Errorf("next sequence: %w", err)
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO flow_actions (document_id, node_id, action_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		action.DocumentID, nullStr(action.NodeID), action.Type, nullRaw(action.Payload),
		action.Timestamp, next,
	)
	if err != nil {
		rollback()
		return fmt.Errorf("insert action: %w", err)
	}

	if _, err := db.ExecContext(ctx, "COMMIT"); err != nil {
		rollback()
		return fmt.Errorf("commit append: %w", err)
	}

	action.Sequence = next
	if id, err := res.LastInsertId(); err == nil {
		action.ID = id
	}
	return nil
}
