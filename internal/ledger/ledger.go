package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store persists executions. All status changes go through Transition, which
// is the single serialization point for a given execution id.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create inserts exec as a new pending row. The id must not exist yet.
func (s *Store) Create(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		return fmt.Errorf("execution id is empty")
	}
	if exec.Command == "" {
		return fmt.Errorf("command is empty")
	}
	if exec.Status == "" {
		exec.Status = StatusPending
	}
	if exec.Status != StatusPending {
		return fmt.Errorf("new execution must be pending, got %q", exec.Status)
	}
	if exec.TriggerSource == "" {
		exec.TriggerSource = SourceUnknown
	}
	if exec.TriggeredBy == "" {
		exec.TriggeredBy = "unknown"
	}

	var args any
	if len(exec.Args) > 0 {
		raw, err := json.Marshal(exec.Args)
		if err != nil {
			return fmt.Errorf("marshal args: %w", err)
		}
		args = string(raw)
	}

	now := s.now().UTC()
	exec.CreatedAt = now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions(
  id, command, status, repository_id, head_owner, head_repo, head_branch, head_sha,
  base_owner, base_repo, pr_number, args, triggered_by, trigger_source, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, exec.ID, exec.Command, exec.Status,
		exec.Target.RepositoryID, exec.Target.HeadOwner, exec.Target.HeadRepo,
		exec.Target.HeadBranch, exec.Target.HeadSHA, exec.Target.BaseOwner, exec.Target.BaseRepo,
		exec.PRNumber, args, exec.TriggeredBy, exec.TriggerSource,
		now.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Transition atomically moves the execution from one of the expected statuses
// to newStatus. Exactly one of two concurrent calls for the same id can
// succeed; the loser observes ErrInvalidTransition. If newStatus is terminal
// the result payload and completion timestamp are recorded alongside.
func (s *Store) Transition(ctx context.Context, id string, expected []Status, newStatus Status, result json.RawMessage) error {
	if id == "" {
		return fmt.Errorf("execution id is empty")
	}
	if len(expected) == 0 {
		return fmt.Errorf("expected statuses are empty")
	}

	placeholders := make([]string, len(expected))
	queryArgs := []any{newStatus}

	var completedAt any
	if newStatus.Terminal() {
		completedAt = s.now().UTC().Format(time.RFC3339Nano)
	}
	queryArgs = append(queryArgs, completedAt)

	var resultVal any
	if len(result) > 0 {
		resultVal = string(result)
	}
	queryArgs = append(queryArgs, resultVal, id)

	for i, st := range expected {
		placeholders[i] = "?"
		queryArgs = append(queryArgs, st)
	}

	// Conditional update: the WHERE status IN (...) clause is the atomic
	// check-and-set guarding against replays and double reports.
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE executions
SET status = ?,
    completed_at = COALESCE(?, completed_at),
    result = COALESCE(?, result)
WHERE id = ? AND status IN (%s);
`, strings.Join(placeholders, ", ")), queryArgs...)
	if err != nil {
		return fmt.Errorf("transition execution: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition execution rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing updated: either the row is missing or it is in a status the
	// caller did not expect.
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM executions WHERE id = ?;`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrExecutionNotFound
	}
	if err != nil {
		return fmt.Errorf("load execution status: %w", err)
	}
	return fmt.Errorf("%w: execution %s is %s, expected one of %v", ErrInvalidTransition, id, current, expected)
}

// Get returns one execution by id.
func (s *Store) Get(ctx context.Context, id string) (*Execution, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("execution id is empty")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT id, command, status, repository_id, head_owner, head_repo, head_branch, head_sha,
       base_owner, base_repo, pr_number, args, triggered_by, trigger_source, result,
       created_at, completed_at
FROM executions
WHERE id = ?;
`, id)

	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	return exec, err
}

// List returns the most recent executions, newest first. Dashboard use only.
func (s *Store) List(ctx context.Context, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, command, status, repository_id, head_owner, head_repo, head_branch, head_sha,
       base_owner, base_repo, pr_number, args, triggered_by, trigger_source, result,
       created_at, completed_at
FROM executions
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return execs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var (
		exec         Execution
		statusS      string
		sourceS      string
		prNumber     sql.NullInt64
		args         sql.NullString
		result       sql.NullString
		createdAtS   string
		completedAtS sql.NullString
	)
	if err := row.Scan(
		&exec.ID, &exec.Command, &statusS,
		&exec.Target.RepositoryID, &exec.Target.HeadOwner, &exec.Target.HeadRepo,
		&exec.Target.HeadBranch, &exec.Target.HeadSHA, &exec.Target.BaseOwner, &exec.Target.BaseRepo,
		&prNumber, &args, &exec.TriggeredBy, &sourceS, &result,
		&createdAtS, &completedAtS,
	); err != nil {
		return nil, err
	}

	exec.Status = Status(statusS)
	exec.TriggerSource = TriggerSource(sourceS)

	if prNumber.Valid {
		n := int(prNumber.Int64)
		exec.PRNumber = &n
	}
	if args.Valid && args.String != "" {
		if err := json.Unmarshal([]byte(args.String), &exec.Args); err != nil {
			return nil, fmt.Errorf("decode stored args for execution=%q: %w", exec.ID, err)
		}
	}
	if result.Valid && result.String != "" {
		if !json.Valid([]byte(result.String)) {
			return nil, fmt.Errorf("stored result is invalid JSON for execution=%q", exec.ID)
		}
		exec.Result = json.RawMessage(result.String)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtS)
	if err != nil {
		return nil, fmt.Errorf("parse executions.created_at: %w", err)
	}
	exec.CreatedAt = createdAt

	if completedAtS.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAtS.String)
		if err != nil {
			return nil, fmt.Errorf("parse executions.completed_at: %w", err)
		}
		exec.CompletedAt = &t
	}
	return &exec, nil
}
