/*
Package metrics computes the normalized performance metrics record.

PURPOSE:
  Turns a dataset snapshot into a flat record of ~20 named values:
  utilization ratios, focus/fragmentation counts, workload-mix percentages,
  and raw hour totals by category. The record feeds the dashboard cards,
  the ratio-based anomaly rules, and the narrative generator.

KEY CONCEPTS:
  - One shared pure computation: Compute (one record over a period span)
    and ComputeBatch (one record per period) both run compute() over the
    same partitioned data, so their outputs agree exactly for any period.
  - Denominator-zero convention: every ratio returns 0 when its
    denominator is zero. No NaN, no infinity, ever.
  - Productive hours exclude admin and out-of-office project types;
    engineer-scoped ratios exclude lab technicians.

DESIGN PRINCIPLES:
  1. Purity: compute() holds no state and only reads the loaded dataset
  2. Single scan: batch mode partitions entries by month once
  3. Exact sums: hours accumulate as decimals, ratios convert at the edge

SEE ALSO:
  - tracking/dataset.go: Dataset loading and partitioning
  - anomaly/engine.go: Rule evaluation over the same dataset
*/
package metrics

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// RESULT - Fixed-shape metrics record
// =============================================================================

// Result is the metrics record for one period selector. A zero-entry
// selector yields an all-zero record, never an error.
type Result struct {
	Months []tracking.Month     `json:"months"`
	Filter tracking.ProjectCode `json:"filter,omitempty"`

	EntryCount int `json:"entryCount"`

	// Raw hour totals
	TotalHours       float64 `json:"totalHours"`
	ProductiveHours  float64 `json:"productiveHours"`
	EngineerHours    float64 `json:"engineerHours"` // productive hours by engineers
	NPDHours         float64 `json:"npdHours"`
	SustainingHours  float64 `json:"sustainingHours"`
	SprintHours      float64 `json:"sprintHours"`
	FirefightingHours float64 `json:"firefightingHours"`
	AdminHours       float64 `json:"adminHours"`
	OutOfOfficeHours float64 `json:"outOfOfficeHours"`
	MeetingHours     float64 `json:"meetingHours"`
	LabTechHours     float64 `json:"labTechHours"`

	// Capacity and utilization
	CapacityHours       float64 `json:"capacityHours"`
	UtilizationPct      float64 `json:"utilizationPct"`
	ActiveEngineers     int     `json:"activeEngineers"`
	AvgHoursPerEngineer float64 `json:"avgHoursPerEngineer"`

	// Workload mix
	NPDSharePct          float64 `json:"npdSharePct"`
	SustainingSharePct   float64 `json:"sustainingSharePct"`
	FirefightingSharePct float64 `json:"firefightingSharePct"`
	MeetingSharePct      float64 `json:"meetingSharePct"`

	// Focus and risk
	ProjectCount  int     `json:"projectCount"`
	FocusScore    float64 `json:"focusScore"`
	BusFactorRisk float64 `json:"busFactorRisk"`
	OvertimeDays  int     `json:"overtimeDays"`
}

// =============================================================================
// ENGINE - Entry points over the record store
// =============================================================================

type Engine struct {
	Store tracking.TimesheetStore
}

func NewEngine(store tracking.TimesheetStore) *Engine {
	return &Engine{Store: store}
}

// Compute produces one metrics record spanning the given months.
// Capacity is multiplied by the number of months in the span.
func (e *Engine) Compute(ctx context.Context, months []tracking.Month, filter tracking.ProjectCode) (Result, error) {
	ds, err := tracking.Load(ctx, e.Store)
	if err != nil {
		return Result{}, err
	}
	return ComputeDataset(ds, months, filter), nil
}

// ComputeMonth produces the record for a single month.
func (e *Engine) ComputeMonth(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (Result, error) {
	return e.Compute(ctx, []tracking.Month{month}, filter)
}

// ComputeBatch produces one record per month, partitioning the dataset
// once instead of re-scanning it per month.
func (e *Engine) ComputeBatch(ctx context.Context, months []tracking.Month, filter tracking.ProjectCode) ([]Result, error) {
	ds, err := tracking.Load(ctx, e.Store)
	if err != nil {
		return nil, err
	}
	return ComputeBatchDataset(ds, months, filter), nil
}

// =============================================================================
// PURE COMPUTATION - Shared by single and batch paths
// =============================================================================

// ComputeDataset computes one record over a loaded dataset.
func ComputeDataset(ds *tracking.Dataset, months []tracking.Month, filter tracking.ProjectCode) Result {
	return compute(ds, months, filter, ds.EntriesInMonths(months, filter))
}

// ComputeBatchDataset computes per-month records over one partitioning
// of the filtered entries.
func ComputeBatchDataset(ds *tracking.Dataset, months []tracking.Month, filter tracking.ProjectCode) []Result {
	parts := tracking.PartitionByMonth(ds.EntriesInMonths(months, filter))
	results := make([]Result, 0, len(months))
	for _, m := range months {
		results = append(results, compute(ds, []tracking.Month{m}, filter, parts[m]))
	}
	return results
}

type personDay struct {
	person string
	day    string
}

// compute is the single formula both entry points share. It is a pure
// function of (dataset, months, filter, entries) and must stay that way.
func compute(ds *tracking.Dataset, months []tracking.Month, filter tracking.ProjectCode, entries []tracking.TimeEntry) Result {
	r := Result{Months: months, Filter: filter}
	if len(entries) == 0 {
		return r
	}

	var (
		total      = decimal.Zero
		productive = decimal.Zero
		engProd    = decimal.Zero
		npd        = decimal.Zero
		sustaining = decimal.Zero
		sprint     = decimal.Zero
		firefight  = decimal.Zero
		admin      = decimal.Zero
		ooo        = decimal.Zero
		meeting    = decimal.Zero
		labTech    = decimal.Zero
	)

	personTotal := make(map[string]decimal.Decimal)
	personDayHours := make(map[personDay]decimal.Decimal)
	personProjects := make(map[string]map[tracking.ProjectCode]bool)
	projectHours := make(map[tracking.ProjectCode]decimal.Decimal)
	projectPeople := make(map[tracking.ProjectCode]map[string]bool)
	projectsSeen := make(map[tracking.ProjectCode]bool)

	for _, e := range entries {
		p := ds.ProjectFor(e.Project)
		h := e.Hours
		top := e.Project.Top()

		total = total.Add(h)
		personTotal[e.Person] = personTotal[e.Person].Add(h)
		pd := personDay{e.Person, e.Date.UTC().Format("2006-01-02")}
		personDayHours[pd] = personDayHours[pd].Add(h)
		projectsSeen[top] = true

		member, onRoster := ds.MemberFor(e.Person)
		isEngineer := onRoster && member.Role == tracking.RoleEngineer
		if onRoster && member.Role == tracking.RoleLabTechnician {
			labTech = labTech.Add(h)
		}

		switch p.Type {
		case tracking.ProjectNPD:
			npd = npd.Add(h)
		case tracking.ProjectSustaining:
			sustaining = sustaining.Add(h)
		case tracking.ProjectSprint:
			sprint = sprint.Add(h)
		case tracking.ProjectAdmin:
			admin = admin.Add(h)
		case tracking.ProjectOutOfOffice:
			ooo = ooo.Add(h)
		}
		if p.Class == tracking.WorkFirefighting {
			firefight = firefight.Add(h)
		}
		if IsMeetingTask(e.Task) {
			meeting = meeting.Add(h)
		}

		if p.Type.IsProductive() {
			productive = productive.Add(h)
			projectHours[top] = projectHours[top].Add(h)
			if projectPeople[top] == nil {
				projectPeople[top] = make(map[string]bool)
			}
			projectPeople[top][e.Person] = true
			if isEngineer {
				engProd = engProd.Add(h)
				if personProjects[e.Person] == nil {
					personProjects[e.Person] = make(map[tracking.ProjectCode]bool)
				}
				personProjects[e.Person][top] = true
			}
		}
	}

	// Capacity: active engineers only (>= 1 logged hour in the span),
	// each at their override or the default, times the number of months.
	capacity := decimal.Zero
	active := 0
	for _, m := range ds.Members {
		if m.Role != tracking.RoleEngineer {
			continue
		}
		if !personTotal[m.Name].IsPositive() {
			continue
		}
		active++
		monthly := ds.Capacity.CapacityFor(m)
		capacity = capacity.Add(monthly.Mul(decimal.NewFromInt(int64(len(months)))))
	}

	// Focus score: mean distinct projects over engineers with any
	// productive hours.
	focusSum := 0
	for _, projects := range personProjects {
		focusSum += len(projects)
	}

	// Bus factor risk: fraction of non-trivial projects where a single
	// contributor covers all hours. Distinct from the per-project anomaly
	// rule, which uses a greedy >50% coverage walk.
	eligible, solo := 0, 0
	threshold := decimal.NewFromInt(10)
	for code, hours := range projectHours {
		if !hours.GreaterThan(threshold) {
			continue
		}
		eligible++
		if len(projectPeople[code]) == 1 {
			solo++
		}
	}

	overtimeDays := 0
	eight := decimal.NewFromInt(8)
	for _, hours := range personDayHours {
		if hours.GreaterThan(eight) {
			overtimeDays++
		}
	}

	r.EntryCount = len(entries)
	r.TotalHours = f(total)
	r.ProductiveHours = f(productive)
	r.EngineerHours = f(engProd)
	r.NPDHours = f(npd)
	r.SustainingHours = f(sustaining)
	r.SprintHours = f(sprint)
	r.FirefightingHours = f(firefight)
	r.AdminHours = f(admin)
	r.OutOfOfficeHours = f(ooo)
	r.MeetingHours = f(meeting)
	r.LabTechHours = f(labTech)

	r.CapacityHours = f(capacity)
	r.ActiveEngineers = active
	r.UtilizationPct = Pct(engProd, capacity)
	r.AvgHoursPerEngineer = Ratio(engProd, decimal.NewFromInt(int64(active)))

	r.NPDSharePct = Pct(npd, productive)
	r.SustainingSharePct = Pct(sustaining, productive)
	r.FirefightingSharePct = Pct(firefight, total)
	r.MeetingSharePct = Pct(meeting, total)

	r.ProjectCount = len(projectsSeen)
	r.FocusScore = Ratio(decimal.NewFromInt(int64(focusSum)), decimal.NewFromInt(int64(len(personProjects))))
	r.BusFactorRisk = Ratio(decimal.NewFromInt(int64(solo)), decimal.NewFromInt(int64(eligible)))
	r.OvertimeDays = overtimeDays
	return r
}

// =============================================================================
// HELPERS
// =============================================================================

// Ratio divides with the denominator-zero => 0 convention.
func Ratio(num, den decimal.Decimal) float64 {
	if den.IsZero() || den.IsNegative() {
		return 0
	}
	return f(num.Div(den))
}

// Pct is Ratio scaled to a percentage.
func Pct(num, den decimal.Decimal) float64 {
	return Ratio(num, den) * 100
}

// IsMeetingTask reports whether a task label counts as meeting time.
func IsMeetingTask(task string) bool {
	return strings.Contains(strings.ToLower(task), "meeting")
}

func f(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
