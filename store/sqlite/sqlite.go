/*
Package sqlite provides the SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (tracking.TimesheetStore,
  tracking.ImportStore, anomaly.OverrideStore, narrative.ConfigStore,
  history.SnapshotStore) using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  time_entries:      Immutable imported timesheet rows
  projects:          Project registry (type + work classification)
  team_members:      Roster with per-member capacity overrides
  allocations:       Per (month, project, person) planned hours
  project_budgets:   Per (month, project) planned totals
  capacity_config:   Singleton row with the default monthly capacity
  anomaly_overrides: Singleton JSON blob of threshold overrides
  narrative_config:  Singleton JSON blob of narrative settings
  anomaly_snapshots: Persisted finding lists, UNIQUE(month, filter)
  metric_snapshots:  Persisted metric records, UNIQUE(month, filter)

HOURS PRECISION:
  Hour columns are stored as decimal strings, never REAL. Fractional
  entries must sum exactly; parsing back through decimal preserves that.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/insights.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - tracking/store.go: Interface definitions
  - tracking/store/memory.go: In-memory implementation for testing
  - snapshots.go: Snapshot persistence in this package
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/factory"
	"github.com/warp/resource-insights/narrative"
	"github.com/warp/resource-insights/tracking"
)

const dayFormat = "2006-01-02"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Time entries (immutable after import)
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		person TEXT NOT NULL,
		project TEXT NOT NULL,
		activity TEXT,
		hours TEXT NOT NULL,
		task TEXT,
		task_id TEXT,
		done BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_entries_date
		ON time_entries(date);
	CREATE INDEX IF NOT EXISTS idx_entries_person
		ON time_entries(person);
	CREATE INDEX IF NOT EXISTS idx_entries_project
		ON time_entries(project);

	-- Project registry
	CREATE TABLE IF NOT EXISTS projects (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		class TEXT NOT NULL
	);

	-- Team roster
	CREATE TABLE IF NOT EXISTS team_members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		monthly_capacity TEXT NOT NULL DEFAULT '0'
	);

	-- Planned allocations, per (month, project, person)
	CREATE TABLE IF NOT EXISTS allocations (
		month TEXT NOT NULL,
		project TEXT NOT NULL,
		person TEXT NOT NULL,
		percent REAL DEFAULT 0,
		hours TEXT NOT NULL DEFAULT '0',
		UNIQUE(month, project, person)
	);

	-- Planned budgets, per (month, project)
	CREATE TABLE IF NOT EXISTS project_budgets (
		month TEXT NOT NULL,
		project TEXT NOT NULL,
		hours TEXT NOT NULL DEFAULT '0',
		UNIQUE(month, project)
	);

	-- Capacity defaults (singleton row)
	CREATE TABLE IF NOT EXISTS capacity_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		default_monthly_hours TEXT NOT NULL DEFAULT '0'
	);

	-- Anomaly threshold overrides (singleton JSON blob)
	CREATE TABLE IF NOT EXISTS anomaly_overrides (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL DEFAULT '{}'
	);

	-- Narrative configuration (singleton JSON blob)
	CREATE TABLE IF NOT EXISTS narrative_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL DEFAULT ''
	);

	-- Anomaly snapshots, upserted by (month, filter)
	CREATE TABLE IF NOT EXISTS anomaly_snapshots (
		month TEXT NOT NULL,
		filter TEXT NOT NULL DEFAULT '',
		findings_json TEXT NOT NULL,
		computed_at TEXT NOT NULL,
		UNIQUE(month, filter)
	);

	CREATE INDEX IF NOT EXISTS idx_anomaly_snapshots_filter_month
		ON anomaly_snapshots(filter, month);

	-- Metric snapshots, upserted by (month, filter)
	CREATE TABLE IF NOT EXISTS metric_snapshots (
		month TEXT NOT NULL,
		filter TEXT NOT NULL DEFAULT '',
		result_json TEXT NOT NULL,
		computed_at TEXT NOT NULL,
		UNIQUE(month, filter)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TIMESHEET READS (tracking.TimesheetStore interface)
// =============================================================================

// Entries returns every imported time entry.
func (s *Store) Entries(ctx context.Context) ([]tracking.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, date, person, project, activity, hours, task, task_id, done
		FROM time_entries
		ORDER BY date ASC, person ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []tracking.TimeEntry
	for rows.Next() {
		var (
			e        tracking.TimeEntry
			date     string
			project  string
			activity sql.NullString
			hours    string
			task     sql.NullString
			taskID   sql.NullString
		)
		if err := rows.Scan(&e.ID, &date, &e.Person, &project, &activity, &hours, &task, &taskID, &e.Done); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Date, err = time.Parse(dayFormat, date)
		if err != nil {
			return nil, fmt.Errorf("entry %s: bad date %q: %w", e.ID, date, err)
		}
		e.Hours, err = decimal.NewFromString(hours)
		if err != nil {
			return nil, fmt.Errorf("entry %s: bad hours %q: %w", e.ID, hours, err)
		}
		e.Project = tracking.ProjectCode(project)
		e.Activity = activity.String
		e.Task = task.String
		e.TaskID = taskID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Projects returns the project registry.
func (s *Store) Projects(ctx context.Context) ([]tracking.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT code, name, type, class FROM projects ORDER BY code",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []tracking.Project
	for rows.Next() {
		var p tracking.Project
		var code, ptype, class string
		if err := rows.Scan(&code, &p.Name, &ptype, &class); err != nil {
			return nil, err
		}
		p.Code = tracking.ProjectCode(code)
		p.Type = tracking.ProjectType(ptype)
		p.Class = tracking.WorkClass(class)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Members returns the team roster.
func (s *Store) Members(ctx context.Context) ([]tracking.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, role, monthly_capacity FROM team_members ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []tracking.TeamMember
	for rows.Next() {
		var m tracking.TeamMember
		var role, capacity string
		if err := rows.Scan(&m.ID, &m.Name, &role, &capacity); err != nil {
			return nil, err
		}
		m.Role = tracking.Role(role)
		m.MonthlyCapacity, err = decimal.NewFromString(capacity)
		if err != nil {
			return nil, fmt.Errorf("member %s: bad capacity %q: %w", m.ID, capacity, err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Allocations returns all planned allocations.
func (s *Store) Allocations(ctx context.Context) ([]tracking.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT month, project, person, percent, hours FROM allocations ORDER BY month, project, person",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []tracking.Allocation
	for rows.Next() {
		var a tracking.Allocation
		var month, project, hours string
		if err := rows.Scan(&month, &project, &a.Person, &a.Percent, &hours); err != nil {
			return nil, err
		}
		a.Month = tracking.Month(month)
		a.Project = tracking.ProjectCode(project)
		a.Hours, err = decimal.NewFromString(hours)
		if err != nil {
			return nil, fmt.Errorf("allocation %s/%s: bad hours %q: %w", month, project, hours, err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// Budgets returns all planned project budgets.
func (s *Store) Budgets(ctx context.Context) ([]tracking.ProjectBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT month, project, hours FROM project_budgets ORDER BY month, project",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []tracking.ProjectBudget
	for rows.Next() {
		var b tracking.ProjectBudget
		var month, project, hours string
		if err := rows.Scan(&month, &project, &hours); err != nil {
			return nil, err
		}
		b.Month = tracking.Month(month)
		b.Project = tracking.ProjectCode(project)
		b.Hours, err = decimal.NewFromString(hours)
		if err != nil {
			return nil, fmt.Errorf("budget %s/%s: bad hours %q: %w", month, project, hours, err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// Capacity returns the capacity configuration singleton.
func (s *Store) Capacity(ctx context.Context) (tracking.CapacityConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hours string
	err := s.db.QueryRowContext(ctx,
		"SELECT default_monthly_hours FROM capacity_config WHERE id = 1",
	).Scan(&hours)

	if err == sql.ErrNoRows {
		return tracking.CapacityConfig{}, nil
	}
	if err != nil {
		return tracking.CapacityConfig{}, err
	}

	d, err := decimal.NewFromString(hours)
	if err != nil {
		return tracking.CapacityConfig{}, fmt.Errorf("bad capacity %q: %w", hours, err)
	}
	return tracking.CapacityConfig{DefaultMonthlyHours: d}, nil
}

// =============================================================================
// IMPORT WRITES (tracking.ImportStore interface)
// =============================================================================

// SaveEntries inserts a batch of time entries atomically.
func (s *Store) SaveEntries(ctx context.Context, entries []tracking.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO time_entries (id, date, person, project, activity, hours, task, task_id, done)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			person = excluded.person,
			project = excluded.project,
			activity = excluded.activity,
			hours = excluded.hours,
			task = excluded.task,
			task_id = excluded.task_id,
			done = excluded.done
	`

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			e.ID, e.Date.Format(dayFormat), e.Person, string(e.Project),
			e.Activity, e.Hours.String(), e.Task, e.TaskID, e.Done,
		); err != nil {
			return fmt.Errorf("failed to save entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// SaveProjects upserts the project registry rows.
func (s *Store) SaveProjects(ctx context.Context, projects []tracking.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO projects (code, name, type, class)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			class = excluded.class
	`

	for _, p := range projects {
		if _, err := tx.ExecContext(ctx, query,
			string(p.Code), p.Name, string(p.Type), string(p.Class),
		); err != nil {
			return fmt.Errorf("failed to save project %s: %w", p.Code, err)
		}
	}
	return tx.Commit()
}

// SaveMembers upserts the roster rows.
func (s *Store) SaveMembers(ctx context.Context, members []tracking.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO team_members (id, name, role, monthly_capacity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			monthly_capacity = excluded.monthly_capacity
	`

	for _, m := range members {
		if _, err := tx.ExecContext(ctx, query,
			string(m.ID), m.Name, string(m.Role), m.MonthlyCapacity.String(),
		); err != nil {
			return fmt.Errorf("failed to save member %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// SaveAllocations upserts planned allocations.
func (s *Store) SaveAllocations(ctx context.Context, allocations []tracking.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO allocations (month, project, person, percent, hours)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(month, project, person) DO UPDATE SET
			percent = excluded.percent,
			hours = excluded.hours
	`

	for _, a := range allocations {
		if _, err := tx.ExecContext(ctx, query,
			string(a.Month), string(a.Project), a.Person, a.Percent, a.Hours.String(),
		); err != nil {
			return fmt.Errorf("failed to save allocation %s/%s: %w", a.Month, a.Project, err)
		}
	}
	return tx.Commit()
}

// SaveBudgets upserts planned project budgets.
func (s *Store) SaveBudgets(ctx context.Context, budgets []tracking.ProjectBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO project_budgets (month, project, hours)
		VALUES (?, ?, ?)
		ON CONFLICT(month, project) DO UPDATE SET
			hours = excluded.hours
	`

	for _, b := range budgets {
		if _, err := tx.ExecContext(ctx, query,
			string(b.Month), string(b.Project), b.Hours.String(),
		); err != nil {
			return fmt.Errorf("failed to save budget %s/%s: %w", b.Month, b.Project, err)
		}
	}
	return tx.Commit()
}

// SaveCapacity stores the capacity configuration singleton.
func (s *Store) SaveCapacity(ctx context.Context, cfg tracking.CapacityConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO capacity_config (id, default_monthly_hours)
		VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET
			default_monthly_hours = excluded.default_monthly_hours
	`

	_, err := s.db.ExecContext(ctx, query, cfg.DefaultMonthlyHours.String())
	return err
}

// ResetTimesheet clears all imported timesheet data (for demo/import reset).
// Configuration singletons and snapshots are untouched.
func (s *Store) ResetTimesheet(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"time_entries", "projects", "team_members", "allocations", "project_budgets", "capacity_config"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// CONFIG SINGLETONS (anomaly.OverrideStore, narrative.ConfigStore)
// =============================================================================

// Overrides loads the anomaly threshold override table.
func (s *Store) Overrides(ctx context.Context) (anomaly.Overrides, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json FROM anomaly_overrides WHERE id = 1",
	).Scan(&blob)

	if err == sql.ErrNoRows {
		return anomaly.Overrides{}, nil
	}
	if err != nil {
		return nil, err
	}
	return factory.ParseOverrides([]byte(blob))
}

// SaveOverrides stores the anomaly threshold override table.
func (s *Store) SaveOverrides(ctx context.Context, ov anomaly.Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := factory.OverridesJSON(ov)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO anomaly_overrides (id, config_json)
		VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json
	`

	_, err = s.db.ExecContext(ctx, query, string(blob))
	return err
}

// NarrativeConfig loads the narrative configuration singleton.
func (s *Store) NarrativeConfig(ctx context.Context) (narrative.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json FROM narrative_config WHERE id = 1",
	).Scan(&blob)

	if err == sql.ErrNoRows {
		return narrative.DefaultConfig(), nil
	}
	if err != nil {
		return narrative.Config{}, err
	}
	return factory.ParseNarrativeConfig([]byte(blob))
}

// SaveNarrativeConfig stores the narrative configuration singleton.
func (s *Store) SaveNarrativeConfig(ctx context.Context, cfg narrative.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := factory.NarrativeConfigJSON(cfg)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO narrative_config (id, config_json)
		VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json
	`

	_, err = s.db.ExecContext(ctx, query, string(blob))
	return err
}
