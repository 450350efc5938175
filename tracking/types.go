/*
Package tracking provides the timesheet record model for the insight engine.

PURPOSE:
  This package contains the typed shapes for everything the analytics core
  reads: per-person/per-day time entries, the project registry, the team
  roster, and planned-hours budgets. Every downstream engine (metrics,
  anomaly detection, narrative) consumes these records through the store
  interfaces defined here and never mutates them.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeEntry: One person, one day, one project, some hours. Immutable.
  - Project: Registry entry with type and work classification
  - TeamMember: Roster entry with role and optional capacity override
  - Allocation / ProjectBudget: Planned-hours budgets in two shapes

DESIGN PRINCIPLES:
  1. Immutability: Time entries are never modified after import
  2. Precision: Hours use decimal.Decimal so fractional entries sum exactly
  3. Purity: Aggregation is a pure function of a loaded dataset snapshot

SEE ALSO:
  - month.go: The calendar-month period type
  - project.go: Project code hierarchy resolution
  - dataset.go: The loaded, read-only dataset snapshot
  - store.go: Persistence interfaces
*/
package tracking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type MemberID string

// =============================================================================
// PROJECT - Registry entry
// =============================================================================

// ProjectType classifies what kind of work a project represents.
type ProjectType string

const (
	ProjectNPD         ProjectType = "new_product_development"
	ProjectSustaining  ProjectType = "sustaining"
	ProjectAdmin       ProjectType = "admin"
	ProjectOutOfOffice ProjectType = "out_of_office"
	ProjectSprint      ProjectType = "sprint"
)

// IsProductive reports whether hours on this project type count as
// productive work. Admin and out-of-office time never does.
func (t ProjectType) IsProductive() bool {
	return t != ProjectAdmin && t != ProjectOutOfOffice
}

// WorkClass distinguishes planned work from unplanned firefighting.
type WorkClass string

const (
	WorkPlanned      WorkClass = "planned"
	WorkFirefighting WorkClass = "unplanned_firefighting"
)

type Project struct {
	Code  ProjectCode
	Name  string
	Type  ProjectType
	Class WorkClass
}

// =============================================================================
// TEAM MEMBER - Roster entry
// =============================================================================

type Role string

const (
	RoleEngineer      Role = "engineer"
	RoleLabTechnician Role = "lab_technician"
)

type TeamMember struct {
	ID   MemberID
	Name string // join key to TimeEntry.Person
	Role Role

	// MonthlyCapacity overrides the global default capacity when positive.
	// Zero means "use the default".
	MonthlyCapacity decimal.Decimal
}

// =============================================================================
// TIME ENTRY - Immutable imported record
// =============================================================================

type TimeEntry struct {
	ID       EntryID
	Date     time.Time // calendar day, UTC
	Person   string    // display name, joins to TeamMember.Name
	Project  ProjectCode
	Activity string // activity category, e.g. "design", "testing"
	Hours    decimal.Decimal
	Task     string // free-text task label
	TaskID   string
	Done     bool
}

// Month returns the calendar month this entry falls in.
func (e TimeEntry) Month() Month {
	return MonthOf(e.Date)
}

// =============================================================================
// PLANNED-HOURS BUDGETS
// =============================================================================

// Allocation is a per (month, project, engineer) planned assignment.
type Allocation struct {
	Month   Month
	Project ProjectCode
	Person  string
	Percent float64 // share of the person's capacity
	Hours   decimal.Decimal
}

// ProjectBudget is a per (month, project) total, independent of people.
type ProjectBudget struct {
	Month   Month
	Project ProjectCode
	Hours   decimal.Decimal
}

// =============================================================================
// CAPACITY CONFIGURATION
// =============================================================================

// DefaultMonthlyCapacity is the terminal fallback when neither the member
// record nor the stored configuration provides a capacity figure.
const DefaultMonthlyCapacity = 140

type CapacityConfig struct {
	DefaultMonthlyHours decimal.Decimal
}

// DefaultHours resolves the configured default, falling back to the
// hard-coded capacity when the configuration is empty.
func (c CapacityConfig) DefaultHours() decimal.Decimal {
	if c.DefaultMonthlyHours.IsPositive() {
		return c.DefaultMonthlyHours
	}
	return decimal.NewFromInt(DefaultMonthlyCapacity)
}

// CapacityFor resolves one member's monthly capacity:
// member override, else configured default, else the hard-coded default.
func (c CapacityConfig) CapacityFor(m TeamMember) decimal.Decimal {
	if m.MonthlyCapacity.IsPositive() {
		return m.MonthlyCapacity
	}
	return c.DefaultHours()
}
