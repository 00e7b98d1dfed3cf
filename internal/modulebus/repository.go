package modulebus

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository persists Module identity and parameter values.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Module, error)
	List(ctx context.Context) ([]Module, error)
	ListByDomain(ctx context.Context, domain string) ([]Module, error)
	Create(ctx context.Context, module *Module) error
	Update(ctx context.Context, module *Module) error
	Delete(ctx context.Context, id string) error

	// SetParameter persists a single parameter value, upserting it.
	SetParameter(ctx context.Context, id, name string, value string) error
}

// SQLiteRepository implements Repository using SQLite, against the
// modules/module_parameters tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a module and its parameters by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Module, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, domain, protocol, created_at, updated_at FROM modules WHERE id = ?`, id)

	m, err := scanModule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}

	if err := r.loadParameters(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// List retrieves every module, ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Module, error) {
	return r.queryModules(ctx,
		`SELECT id, name, domain, protocol, created_at, updated_at FROM modules ORDER BY id`)
}

// ListByDomain retrieves every module in a given domain.
func (r *SQLiteRepository) ListByDomain(ctx context.Context, domain string) ([]Module, error) {
	return r.queryModules(ctx,
		`SELECT id, name, domain, protocol, created_at, updated_at FROM modules WHERE domain = ? ORDER BY id`,
		domain)
}

func (r *SQLiteRepository) queryModules(ctx context.Context, query string, args ...any) ([]Module, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		m, scanErr := scanModuleRows(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning module: %w", scanErr)
		}
		modules = append(modules, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating modules: %w", err)
	}

	for i := range modules {
		if err := r.loadParameters(ctx, &modules[i]); err != nil {
			return nil, err
		}
	}
	return modules, nil
}

// Create inserts a new module and its initial parameters.
func (r *SQLiteRepository) Create(ctx context.Context, module *Module) error {
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now

	if module.Name == "" {
		module.Name = module.ID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO modules (id, name, domain, protocol, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		module.ID, module.Name, module.Domain, module.Protocol,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrModuleExists
		}
		return fmt.Errorf("inserting module: %w", err)
	}

	for name, value := range module.Parameters {
		if err := r.SetParameter(ctx, module.ID, name, fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}

// Update persists a module's identity fields (domain, protocol).
// Parameters are updated independently via SetParameter.
func (r *SQLiteRepository) Update(ctx context.Context, module *Module) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE modules SET name = ?, domain = ?, protocol = ?, updated_at = ? WHERE id = ?`,
		module.Name, module.Domain, module.Protocol, now.Format(time.RFC3339), module.ID,
	)
	if err != nil {
		return fmt.Errorf("updating module: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrModuleNotFound
	}
	module.UpdatedAt = now
	return nil
}

// Delete removes a module and its parameters (cascaded by the schema).
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM modules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrModuleNotFound
	}
	return nil
}

// SetParameter upserts a single parameter value for module id.
func (r *SQLiteRepository) SetParameter(ctx context.Context, id, name string, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO module_parameters (module_id, name, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(module_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		id, name, value, now,
	)
	if err != nil {
		return fmt.Errorf("upserting parameter: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) loadParameters(ctx context.Context, m *Module) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, value FROM module_parameters WHERE module_id = ?`, m.ID)
	if err != nil {
		return fmt.Errorf("querying parameters: %w", err)
	}
	defer rows.Close()

	if m.Parameters == nil {
		m.Parameters = make(map[string]any)
	}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scanning parameter: %w", err)
		}
		m.Parameters[name] = value
	}
	return rows.Err()
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(row *sql.Row) (*Module, error) {
	return scanModuleRow(row)
}

func scanModuleRows(rows *sql.Rows) (*Module, error) {
	return scanModuleRow(rows)
}

func scanModuleRow(scanner rowScanner) (*Module, error) {
	var id, name, domain, protocol, createdAt, updatedAt string

	if err := scanner.Scan(&id, &name, &domain, &protocol, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	m := NewModule(id, domain, protocol)
	m.Name = name
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		m.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		m.UpdatedAt = t
	}
	return m, nil
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
