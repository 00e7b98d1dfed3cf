package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Execution is one recorded dispatch of a program's body: address, trigger
// time, outcome, and duration, mirroring automation.SceneExecution in the
// teacher and satisfying SPEC_FULL.md §15's execution-history requirement.
type Execution struct {
	ID            string     `json:"id"`
	ProgramAddr   int        `json:"program_address"`
	TriggerType   string     `json:"trigger_type"`
	TriggerSource string     `json:"trigger_source,omitempty"`
	TriggeredAt   time.Time  `json:"triggered_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Outcome       string     `json:"outcome"` // "ok", "fault", "interrupted"
	ErrorMessage  *string    `json:"error_message,omitempty"`
	DurationMS    *int       `json:"duration_ms,omitempty"`
}

// NewExecution starts an execution record for program, triggered by
// triggerType/triggerSource at the current time.
func NewExecution(programAddr int, triggerType, triggerSource string) *Execution {
	return &Execution{
		ID:            uuid.New().String(),
		ProgramAddr:   programAddr,
		TriggerType:   triggerType,
		TriggerSource: triggerSource,
		TriggeredAt:   time.Now().UTC(),
		Outcome:       "ok",
	}
}

// Repository persists ProgramRecord metadata and execution history. It does
// not persist compiled artifacts or script source — spec.md §1 places
// those out of the core's scope.
type Repository interface {
	GetProgram(ctx context.Context, address int) (*ProgramRecord, error)
	ListPrograms(ctx context.Context) ([]*ProgramRecord, error)
	CreateProgram(ctx context.Context, program *ProgramRecord) error
	UpdateProgram(ctx context.Context, program *ProgramRecord) error
	DeleteProgram(ctx context.Context, address int) error

	// DeleteProgramArtifacts best-effort removes any on-disk compiled
	// artifacts keyed by address. Absence of artifacts is not an error.
	DeleteProgramArtifacts(ctx context.Context, address int) error

	CreateExecution(ctx context.Context, exec *Execution) error
	ListExecutions(ctx context.Context, address int, limit int) ([]Execution, error)
}

// programColumns is the SELECT column list for program queries.
const programColumns = `address, name, domain, condition_type, enabled, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db           *sql.DB
	artifactsDir string
}

// NewSQLiteRepository creates a SQLite-backed repository. artifactsDir is
// the "programs/" directory under which compiled artifacts live
// (spec.md §6); it may be empty if artifacts are not used.
func NewSQLiteRepository(db *sql.DB, artifactsDir string) *SQLiteRepository {
	return &SQLiteRepository{db: db, artifactsDir: artifactsDir}
}

// GetProgram retrieves a program's persisted metadata by address.
func (r *SQLiteRepository) GetProgram(ctx context.Context, address int) (*ProgramRecord, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE address = ?`
	row := r.db.QueryRowContext(ctx, query, address)
	p, err := scanProgram(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}
	return p, nil
}

// ListPrograms retrieves all persisted program metadata, ordered by address.
func (r *SQLiteRepository) ListPrograms(ctx context.Context) ([]*ProgramRecord, error) {
	query := `SELECT ` + programColumns + ` FROM programs ORDER BY address`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying programs: %w", err)
	}
	defer rows.Close()

	var programs []*ProgramRecord
	for rows.Next() {
		p, scanErr := scanProgramRows(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning program: %w", scanErr)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating programs: %w", err)
	}
	return programs, nil
}

// CreateProgram inserts a new program's metadata.
func (r *SQLiteRepository) CreateProgram(ctx context.Context, program *ProgramRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO programs (address, name, domain, condition_type, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		program.Address,
		program.Name,
		program.Domain,
		string(program.ConditionType),
		boolToInt(program.Enabled()),
		now,
		now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrProgramExists
		}
		return fmt.Errorf("inserting program: %w", err)
	}
	return nil
}

// UpdateProgram persists a program's current configuration.
func (r *SQLiteRepository) UpdateProgram(ctx context.Context, program *ProgramRecord) error {
	query := `
		UPDATE programs SET name = ?, domain = ?, condition_type = ?, enabled = ?, updated_at = ?
		WHERE address = ?`

	result, err := r.db.ExecContext(ctx, query,
		program.Name,
		program.Domain,
		string(program.ConditionType),
		boolToInt(program.Enabled()),
		time.Now().UTC().Format(time.RFC3339),
		program.Address,
	)
	if err != nil {
		return fmt.Errorf("updating program: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProgramNotFound
	}
	return nil
}

// DeleteProgram removes a program's persisted metadata.
func (r *SQLiteRepository) DeleteProgram(ctx context.Context, address int) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM programs WHERE address = ?", address)
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProgramNotFound
	}
	return nil
}

// DeleteProgramArtifacts best-effort removes compiled artifacts for
// address: "{address}.dll" and the "arduino/{address}/" source tree, per
// spec.md §6. Absence of the artifacts directory or the files within it is
// not an error — they may never have existed.
func (r *SQLiteRepository) DeleteProgramArtifacts(ctx context.Context, address int) error {
	if r.artifactsDir == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return deleteArtifactFiles(r.artifactsDir, address)
}

// CreateExecution inserts a new execution history row.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO program_executions (
			id, program_address, trigger_type, trigger_source, triggered_at,
			completed_at, outcome, error_message, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		exec.ID,
		exec.ProgramAddr,
		exec.TriggerType,
		nullableString(&exec.TriggerSource),
		exec.TriggeredAt.Format(time.RFC3339),
		nullableTime(exec.CompletedAt),
		exec.Outcome,
		nullableString(exec.ErrorMessage),
		exec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// ListExecutions retrieves recent executions for a program, most recent
// first.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, address int, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, program_address, trigger_type, trigger_source, triggered_at,
			completed_at, outcome, error_message, duration_ms
		FROM program_executions
		WHERE program_address = ?
		ORDER BY triggered_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var executions []Execution
	for rows.Next() {
		exec, scanErr := scanExecutionRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution: %w", scanErr)
		}
		executions = append(executions, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return executions, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row *sql.Row) (*ProgramRecord, error) {
	return scanProgramRow(row)
}

func scanProgramRows(rows *sql.Rows) (*ProgramRecord, error) {
	return scanProgramRow(rows)
}

func scanProgramRow(scanner rowScanner) (*ProgramRecord, error) {
	var address, enabled int
	var name, domain, conditionType, createdAt, updatedAt string

	err := scanner.Scan(&address, &name, &domain, &conditionType, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p := NewProgramRecord(address, name, domain, ConditionType(conditionType))
	p.SetEnabled(enabled != 0)
	return p, nil
}

func scanExecutionRow(scanner rowScanner) (*Execution, error) {
	var e Execution
	var triggeredAt string
	var completedAt, triggerSource, errMsg sql.NullString
	var durationMS sql.NullInt64

	err := scanner.Scan(
		&e.ID,
		&e.ProgramAddr,
		&e.TriggerType,
		&triggerSource,
		&triggeredAt,
		&completedAt,
		&e.Outcome,
		&errMsg,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	if t, parseErr := time.Parse(time.RFC3339, triggeredAt); parseErr == nil {
		e.TriggeredAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, completedAt.String); parseErr == nil {
			e.CompletedAt = &t
		}
	}
	if triggerSource.Valid {
		e.TriggerSource = triggerSource.String
	}
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		e.DurationMS = &d
	}

	return &e, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}

// marshalScriptErrors serializes a program's diagnostics to JSON. It is
// unexported, so only this package can call it.
func marshalScriptErrors(errs []ProgramError) (string, error) {
	data, err := json.Marshal(errs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
