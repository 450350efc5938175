package anomaly

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/metrics"
	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// PROFILE - One month's per-person / per-project aggregates
// =============================================================================

// Profile holds the partitioned aggregates every detector reads. It is
// built once per evaluation and shared with the narrative generator, whose
// observation triggers use the same figures under the same thresholds.
type Profile struct {
	Month   tracking.Month
	Filter  tracking.ProjectCode
	Entries []tracking.TimeEntry

	PersonTotal        map[string]decimal.Decimal
	PersonDays         map[string]map[string]decimal.Decimal               // person -> day -> hours
	PersonDayProjects  map[string]map[string]map[tracking.ProjectCode]bool // person -> day -> projects
	PersonMeeting      map[string]decimal.Decimal
	PersonFirefighting map[string]decimal.Decimal
	ProjectHours       map[tracking.ProjectCode]decimal.Decimal // productive types only, top-level codes
	ProjectPeople      map[tracking.ProjectCode]map[string]decimal.Decimal
}

// BuildProfile partitions one (month, filter) slice of the dataset.
func BuildProfile(ds *tracking.Dataset, month tracking.Month, filter tracking.ProjectCode) *Profile {
	p := &Profile{
		Month:              month,
		Filter:             filter,
		Entries:            ds.EntriesIn(month, filter),
		PersonTotal:        make(map[string]decimal.Decimal),
		PersonDays:         make(map[string]map[string]decimal.Decimal),
		PersonDayProjects:  make(map[string]map[string]map[tracking.ProjectCode]bool),
		PersonMeeting:      make(map[string]decimal.Decimal),
		PersonFirefighting: make(map[string]decimal.Decimal),
		ProjectHours:       make(map[tracking.ProjectCode]decimal.Decimal),
		ProjectPeople:      make(map[tracking.ProjectCode]map[string]decimal.Decimal),
	}

	for _, entry := range p.Entries {
		project := ds.ProjectFor(entry.Project)
		top := entry.Project.Top()
		day := entry.Date.UTC().Format("2006-01-02")
		h := entry.Hours

		p.PersonTotal[entry.Person] = p.PersonTotal[entry.Person].Add(h)

		if p.PersonDays[entry.Person] == nil {
			p.PersonDays[entry.Person] = make(map[string]decimal.Decimal)
			p.PersonDayProjects[entry.Person] = make(map[string]map[tracking.ProjectCode]bool)
		}
		p.PersonDays[entry.Person][day] = p.PersonDays[entry.Person][day].Add(h)
		if p.PersonDayProjects[entry.Person][day] == nil {
			p.PersonDayProjects[entry.Person][day] = make(map[tracking.ProjectCode]bool)
		}
		p.PersonDayProjects[entry.Person][day][top] = true

		if metrics.IsMeetingTask(entry.Task) {
			p.PersonMeeting[entry.Person] = p.PersonMeeting[entry.Person].Add(h)
		}
		if project.Class == tracking.WorkFirefighting {
			p.PersonFirefighting[entry.Person] = p.PersonFirefighting[entry.Person].Add(h)
		}
		if project.Type.IsProductive() {
			p.ProjectHours[top] = p.ProjectHours[top].Add(h)
			if p.ProjectPeople[top] == nil {
				p.ProjectPeople[top] = make(map[string]decimal.Decimal)
			}
			p.ProjectPeople[top][entry.Person] = p.ProjectPeople[top][entry.Person].Add(h)
		}
	}
	return p
}

// Persons returns everyone with logged time, sorted for determinism.
func (p *Profile) Persons() []string {
	out := make([]string, 0, len(p.PersonTotal))
	for person := range p.PersonTotal {
		out = append(out, person)
	}
	sort.Strings(out)
	return out
}

// Projects returns every productive project with logged time, sorted.
func (p *Profile) Projects() []tracking.ProjectCode {
	out := make([]tracking.ProjectCode, 0, len(p.ProjectHours))
	for code := range p.ProjectHours {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AvgProjectsPerDay is the mean distinct-projects-touched over days worked.
func (p *Profile) AvgProjectsPerDay(person string) float64 {
	days := p.PersonDayProjects[person]
	if len(days) == 0 {
		return 0
	}
	total := 0
	for _, projects := range days {
		total += len(projects)
	}
	return float64(total) / float64(len(days))
}

// FocusScore derives the 0-100 score from the per-day project average.
func (p *Profile) FocusScore(person string) float64 {
	avg := p.AvgProjectsPerDay(person)
	if avg <= 0 {
		return 0
	}
	return math.Min(100, math.Round(100/avg))
}

// OvertimeDays counts days where the person logged more than limit hours.
func (p *Profile) OvertimeDays(person string, limit decimal.Decimal) int {
	over := 0
	for _, hours := range p.PersonDays[person] {
		if hours.GreaterThan(limit) {
			over++
		}
	}
	return over
}

// MeetingPct is the person's meeting share of total hours, in percent.
func (p *Profile) MeetingPct(person string) float64 {
	return metrics.Pct(p.PersonMeeting[person], p.PersonTotal[person])
}

// FirefightingPct is the person's firefighting share, in percent.
func (p *Profile) FirefightingPct(person string) float64 {
	return metrics.Pct(p.PersonFirefighting[person], p.PersonTotal[person])
}

// =============================================================================
// BUDGET ROWS
// =============================================================================

// BudgetRow pairs a project's actual hours with its plan for the month.
type BudgetRow struct {
	Project tracking.ProjectCode
	Actual  decimal.Decimal
	Planned decimal.Decimal
}

// BurnRatio is actual over planned, denominator-zero => 0.
func (b BudgetRow) BurnRatio() float64 {
	return metrics.Ratio(b.Actual, b.Planned)
}

// Budgeted returns one row per budgeted project this month under the
// profile's filter, sorted by project code.
func (p *Profile) Budgeted(ds *tracking.Dataset) []BudgetRow {
	seen := make(map[tracking.ProjectCode]bool)
	var rows []BudgetRow
	for _, b := range ds.Budgets {
		top := b.Project.Top()
		if b.Month != p.Month || seen[top] || !top.Under(p.Filter) {
			continue
		}
		seen[top] = true
		planned, _ := ds.BudgetFor(p.Month, top)
		actual := decimal.Zero
		for _, e := range p.Entries {
			if e.Project.Top() == top {
				actual = actual.Add(e.Hours)
			}
		}
		rows = append(rows, BudgetRow{Project: top, Actual: actual, Planned: planned})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Project < rows[j].Project })
	return rows
}
