package tracking

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATASET - One read of the record store, shared by every engine
// =============================================================================

// Dataset is an in-memory snapshot of every table the engines read. Engines
// load it once per invocation and compute synchronously over it; re-running
// the same snapshot with the same configuration yields identical output.
type Dataset struct {
	Entries     []TimeEntry
	Projects    []Project
	Members     []TeamMember
	Allocations []Allocation
	Budgets     []ProjectBudget
	Capacity    CapacityConfig

	projectIndex map[ProjectCode]Project
	memberIndex  map[string]TeamMember
}

// Load reads a full dataset snapshot from the store. Store errors
// propagate unchanged.
func Load(ctx context.Context, store TimesheetStore) (*Dataset, error) {
	entries, err := store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := store.Projects(ctx)
	if err != nil {
		return nil, err
	}
	members, err := store.Members(ctx)
	if err != nil {
		return nil, err
	}
	allocations, err := store.Allocations(ctx)
	if err != nil {
		return nil, err
	}
	budgets, err := store.Budgets(ctx)
	if err != nil {
		return nil, err
	}
	capacity, err := store.Capacity(ctx)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Entries:     entries,
		Projects:    projects,
		Members:     members,
		Allocations: allocations,
		Budgets:     budgets,
		Capacity:    capacity,
	}
	ds.index()
	return ds, nil
}

// NewDataset builds a dataset directly from records (tests, demo loaders).
func NewDataset(entries []TimeEntry, projects []Project, members []TeamMember) *Dataset {
	ds := &Dataset{Entries: entries, Projects: projects, Members: members}
	ds.index()
	return ds
}

func (d *Dataset) index() {
	d.projectIndex = make(map[ProjectCode]Project, len(d.Projects))
	for _, p := range d.Projects {
		d.projectIndex[p.Code] = p
	}
	d.memberIndex = make(map[string]TeamMember, len(d.Members))
	for _, m := range d.Members {
		d.memberIndex[m.Name] = m
	}
}

// ProjectFor resolves a project record for a code, falling back to the
// parent record when only the parent is registered. Missing projects
// degrade to a zero Project rather than an error.
func (d *Dataset) ProjectFor(code ProjectCode) Project {
	if p, ok := d.projectIndex[code]; ok {
		return p
	}
	if p, ok := d.projectIndex[code.Parent()]; ok {
		return p
	}
	return Project{Code: code.Parent()}
}

// MemberFor looks up a roster record by display name.
func (d *Dataset) MemberFor(person string) (TeamMember, bool) {
	m, ok := d.memberIndex[person]
	return m, ok
}

// EntriesIn returns the entries for one month under an optional project
// filter. The filter matches the entry's code or its parent.
func (d *Dataset) EntriesIn(month Month, filter ProjectCode) []TimeEntry {
	var out []TimeEntry
	for _, e := range d.Entries {
		if e.Month() == month && e.Project.Under(filter) {
			out = append(out, e)
		}
	}
	return out
}

// EntriesInMonths returns entries for a set of months under a filter.
func (d *Dataset) EntriesInMonths(months []Month, filter ProjectCode) []TimeEntry {
	want := make(map[Month]bool, len(months))
	for _, m := range months {
		want[m] = true
	}
	var out []TimeEntry
	for _, e := range d.Entries {
		if want[e.Month()] && e.Project.Under(filter) {
			out = append(out, e)
		}
	}
	return out
}

// PartitionByMonth splits entries into per-month slices in one scan.
// Batch computations partition once and reuse the partitions.
func PartitionByMonth(entries []TimeEntry) map[Month][]TimeEntry {
	parts := make(map[Month][]TimeEntry)
	for _, e := range entries {
		m := e.Month()
		parts[m] = append(parts[m], e)
	}
	return parts
}

// Months returns every month that has at least one entry, ascending.
func (d *Dataset) Months() []Month {
	seen := make(map[Month]bool)
	var out []Month
	for _, e := range d.Entries {
		m := e.Month()
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sortMonths(out)
	return out
}

func sortMonths(months []Month) {
	// Insertion sort; month lists are tiny and the string form orders
	// chronologically.
	for i := 1; i < len(months); i++ {
		for j := i; j > 0 && months[j] < months[j-1]; j-- {
			months[j], months[j-1] = months[j-1], months[j]
		}
	}
}

// BudgetFor returns the total budgeted hours for (month, project),
// resolving the project through its parent code.
func (d *Dataset) BudgetFor(month Month, project ProjectCode) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, b := range d.Budgets {
		if b.Month == month && b.Project.Top() == project.Top() {
			total = total.Add(b.Hours)
			found = true
		}
	}
	return total, found
}

// SumHours adds entry hours exactly. Callers convert to float64 only at
// ratio boundaries.
func SumHours(entries []TimeEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Hours)
	}
	return total
}
