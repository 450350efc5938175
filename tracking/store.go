/*
store.go - Persistence interfaces for the timesheet record store

PURPOSE:
  Defines the interface between the analytics engines and the database.
  The engines are strictly read-side consumers of these tables: time
  entries, projects, and roster records are written only by the import
  pipeline, never by this core.

KEY INTERFACES:
  TimesheetStore: Full-table reads the engines load into a Dataset
  ImportStore:    Write-side used by the import endpoint and demo loaders

READ CONTRACT:
  Every method returns a complete table. The engines deliberately load
  whole tables and filter in memory: the dataset is local and small, and
  one scan per invocation keeps every aggregation a pure function of a
  single consistent snapshot.

ERROR CONTRACT:
  Store I/O errors propagate unchanged to the caller. The engines never
  catch or reinterpret them.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - tracking/store/memory.go: In-memory for testing

SEE ALSO:
  - dataset.go: Load() assembles a Dataset from a TimesheetStore
*/
package tracking

import "context"

// =============================================================================
// TIMESHEET STORE - Read-side interface
// =============================================================================

type TimesheetStore interface {
	// Entries returns every imported time entry, all periods. The
	// new-person rule and batch metrics need cross-period visibility.
	Entries(ctx context.Context) ([]TimeEntry, error)

	// Projects returns the project registry.
	Projects(ctx context.Context) ([]Project, error)

	// Members returns the team roster.
	Members(ctx context.Context) ([]TeamMember, error)

	// Allocations returns all per-engineer planned allocations.
	Allocations(ctx context.Context) ([]Allocation, error)

	// Budgets returns all per-project monthly hour budgets.
	Budgets(ctx context.Context) ([]ProjectBudget, error)

	// Capacity returns the global capacity configuration.
	Capacity(ctx context.Context) (CapacityConfig, error)
}

// =============================================================================
// IMPORT STORE - Write-side, owned by the import pipeline
// =============================================================================

// ImportStore is what the import endpoint and demo scenario loaders write
// through. Entries are append-only from the engines' point of view;
// ReplaceAll exists for re-imports, which supersede a whole dataset.
type ImportStore interface {
	SaveEntries(ctx context.Context, entries []TimeEntry) error
	SaveProjects(ctx context.Context, projects []Project) error
	SaveMembers(ctx context.Context, members []TeamMember) error
	SaveAllocations(ctx context.Context, allocations []Allocation) error
	SaveBudgets(ctx context.Context, budgets []ProjectBudget) error
	SaveCapacity(ctx context.Context, cfg CapacityConfig) error
	ResetTimesheet(ctx context.Context) error
}
