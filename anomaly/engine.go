/*
engine.go - The eight anomaly detectors

PURPOSE:
  Evaluates every enabled rule against one month's dataset and returns
  severity-sorted findings. Each detector is a pure function over the
  month profile plus the resolved thresholds; detectors never see each
  other's output, so toggling one rule cannot affect another.

EVALUATION ORDER:
  Detectors run in registry order. Output is then stably sorted by
  severity, so ties keep discovery order.

DETERMINISM:
  All per-person and per-project aggregates are walked in sorted key
  order. The same dataset and overrides always produce byte-identical
  findings, and each finding's identity is reproducible from its own
  fields alone.

SEE ALSO:
  - registry.go: Rule definitions and defaults
  - profile.go: The shared month aggregates
  - finding.go: Finding shape and identity
*/
package anomaly

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store  tracking.TimesheetStore
	Config OverrideStore
}

func NewEngine(store tracking.TimesheetStore, config OverrideStore) *Engine {
	return &Engine{Store: store, Config: config}
}

// Evaluate returns the severity-sorted findings for one (month, filter).
func (e *Engine) Evaluate(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) ([]Finding, error) {
	ds, err := tracking.Load(ctx, e.Store)
	if err != nil {
		return nil, err
	}
	ov, err := e.Config.Overrides(ctx)
	if err != nil {
		return nil, err
	}
	return EvaluateDataset(ds, ov, month, filter), nil
}

// EvaluateDataset is the pure evaluation over a loaded dataset.
func EvaluateDataset(ds *tracking.Dataset, ov Overrides, month tracking.Month, filter tracking.ProjectCode) []Finding {
	ev := &eval{ds: ds, ov: ov, Profile: BuildProfile(ds, month, filter)}

	var findings []Finding
	for _, rule := range Registry {
		if !ov.Enabled(rule.ID) {
			continue
		}
		findings = append(findings, ev.run(rule.ID)...)
	}
	SortFindings(findings)
	return findings
}

type eval struct {
	*Profile
	ds *tracking.Dataset
	ov Overrides
}

func (ev *eval) run(id RuleID) []Finding {
	switch id {
	case RuleOvertime:
		return ev.detectOvertime()
	case RuleContextSwitching:
		return ev.detectContextSwitching()
	case RuleBusFactor:
		return ev.detectBusFactor()
	case RuleMeetingHeavy:
		return ev.detectMeetingHeavy()
	case RuleFirefighting:
		return ev.detectFirefighting()
	case RuleOverBurn:
		return ev.detectOverBurn()
	case RuleUnderBurn:
		return ev.detectUnderBurn()
	case RuleNewPerson:
		return ev.detectNewPerson()
	}
	return nil
}

func (ev *eval) finding(id RuleID, person string, project tracking.ProjectCode, title, detail, comparison string, customized bool) Finding {
	rule, _ := RuleByID(id)
	return Finding{
		Rule:       id,
		Severity:   ev.ov.SeverityFor(id),
		Type:       rule.Category,
		Title:      title,
		Detail:     detail,
		Person:     person,
		Project:    project,
		Comparison: comparison,
		Customized: customized,
	}
}

func origin(customized bool) string {
	if customized {
		return "custom"
	}
	return "default"
}

// =============================================================================
// RULE 1: OVERTIME
// =============================================================================

func (ev *eval) detectOvertime() []Finding {
	daily := ev.ov.ParamValue(RuleOvertime, "dailyHours")
	minDays := ev.ov.ParamValue(RuleOvertime, "minDays")
	customized := ev.ov.AnyCustomized(RuleOvertime, "dailyHours", "minDays")
	limit := decimal.NewFromFloat(daily)

	var out []Finding
	for _, person := range ev.Persons() {
		over := ev.OvertimeDays(person, limit)
		if float64(over) < minDays {
			continue
		}
		out = append(out, ev.finding(RuleOvertime, person, "",
			"Sustained overtime",
			fmt.Sprintf("%s logged more than %.1fh on %d days in %s.", person, daily, over, ev.Month.Display()),
			fmt.Sprintf("%d days over %.1fh/day >= %.0f days (%s)", over, daily, minDays, origin(customized)),
			customized))
	}
	return out
}

// =============================================================================
// RULE 2: CONTEXT SWITCHING
// =============================================================================

func (ev *eval) detectContextSwitching() []Finding {
	minScore := ev.ov.ParamValue(RuleContextSwitching, "minFocusScore")
	customized := ev.ov.AnyCustomized(RuleContextSwitching, "minFocusScore")

	var out []Finding
	for _, person := range ev.Persons() {
		avg := ev.AvgProjectsPerDay(person)
		if avg <= 0 {
			continue
		}
		score := ev.FocusScore(person)
		if score >= minScore {
			continue
		}
		out = append(out, ev.finding(RuleContextSwitching, person, "",
			"Heavy context switching",
			fmt.Sprintf("%s touched %.1f projects per day on average in %s (focus score %.0f).", person, avg, ev.Month.Display(), score),
			fmt.Sprintf("focus score %.0f < %.0f (%s)", score, minScore, origin(customized)),
			customized))
	}
	return out
}

// =============================================================================
// RULE 3: SINGLE POINT OF FAILURE (BUS FACTOR)
// =============================================================================

// BusFactor returns the size of the minimal ordered set of top contributors
// (hours descending) whose cumulative share first exceeds half the total,
// plus the top contributor. Zero total yields (0, "").
func BusFactor(contributors map[string]decimal.Decimal) (int, string) {
	type share struct {
		person string
		hours  decimal.Decimal
	}
	total := decimal.Zero
	ranked := make([]share, 0, len(contributors))
	for person, hours := range contributors {
		ranked = append(ranked, share{person, hours})
		total = total.Add(hours)
	}
	if !total.IsPositive() {
		return 0, ""
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].hours.Equal(ranked[j].hours) {
			return ranked[i].hours.GreaterThan(ranked[j].hours)
		}
		return ranked[i].person < ranked[j].person
	})

	half := total.Div(decimal.NewFromInt(2))
	covered := decimal.Zero
	for i, s := range ranked {
		covered = covered.Add(s.hours)
		if covered.GreaterThan(half) {
			return i + 1, ranked[0].person
		}
	}
	return len(ranked), ranked[0].person
}

func (ev *eval) detectBusFactor() []Finding {
	maxBF := ev.ov.ParamValue(RuleBusFactor, "maxBusFactor")
	minHours := ev.ov.ParamValue(RuleBusFactor, "minHours")
	npdOnly := ev.ov.ParamValue(RuleBusFactor, "npdOnly") >= 1
	customized := ev.ov.AnyCustomized(RuleBusFactor, "maxBusFactor", "minHours", "npdOnly")
	floor := decimal.NewFromFloat(minHours)

	var out []Finding
	for _, project := range ev.Projects() {
		if npdOnly && ev.ds.ProjectFor(project).Type != tracking.ProjectNPD {
			continue
		}
		total := ev.ProjectHours[project]
		if total.LessThan(floor) {
			continue
		}
		bf, top := BusFactor(ev.ProjectPeople[project])
		if bf == 0 || float64(bf) > maxBF {
			continue
		}
		out = append(out, ev.finding(RuleBusFactor, top, project,
			"Single point of failure",
			fmt.Sprintf("%s carries project %s: bus factor %d on %sh this month.", top, project, bf, total.StringFixed(1)),
			fmt.Sprintf("bus factor %d <= %.0f with %sh >= %.0fh (%s)", bf, maxBF, total.StringFixed(1), minHours, origin(customized)),
			customized))
	}
	return out
}

// =============================================================================
// RULE 4: MEETING-HEAVY
// =============================================================================

func (ev *eval) detectMeetingHeavy() []Finding {
	maxPct := ev.ov.ParamValue(RuleMeetingHeavy, "maxMeetingPct")
	customized := ev.ov.AnyCustomized(RuleMeetingHeavy, "maxMeetingPct")

	var out []Finding
	for _, person := range ev.Persons() {
		pct := ev.MeetingPct(person)
		if pct <= maxPct {
			continue
		}
		out = append(out, ev.finding(RuleMeetingHeavy, person, "",
			"Meeting-heavy month",
			fmt.Sprintf("%s spent %.0f%% of logged time in meetings in %s.", person, pct, ev.Month.Display()),
			fmt.Sprintf("meeting share %.0f%% > %.0f%% (%s)", pct, maxPct, origin(customized)),
			customized))
	}
	return out
}

// =============================================================================
// RULE 5: FIREFIGHTING SPIKE
// =============================================================================

func (ev *eval) detectFirefighting() []Finding {
	maxPct := ev.ov.ParamValue(RuleFirefighting, "maxFirefightingPct")
	customized := ev.ov.AnyCustomized(RuleFirefighting, "maxFirefightingPct")

	var out []Finding
	for _, person := range ev.Persons() {
		pct := ev.FirefightingPct(person)
		if pct <= maxPct {
			continue
		}
		out = append(out, ev.finding(RuleFirefighting, person, "",
			"Firefighting spike",
			fmt.Sprintf("%s spent %.0f%% of logged time on unplanned firefighting in %s.", person, pct, ev.Month.Display()),
			fmt.Sprintf("firefighting share %.0f%% > %.0f%% (%s)", pct, maxPct, origin(customized)),
			customized))
	}
	return out
}

// =============================================================================
// RULES 6-7: PROJECT OVER/UNDER-BURN
// =============================================================================

func (ev *eval) detectOverBurn() []Finding {
	overPct := ev.ov.ParamValue(RuleOverBurn, "overBurnPct")
	customized := ev.ov.AnyCustomized(RuleOverBurn, "overBurnPct")
	limit := 1 + overPct/100

	var out []Finding
	for _, b := range ev.Budgeted(ev.ds) {
		ratio := b.BurnRatio()
		if ratio <= limit {
			continue
		}
		out = append(out, ev.finding(RuleOverBurn, "", b.Project,
			"Project over budget",
			fmt.Sprintf("Project %s burned %sh against a %sh plan in %s.", b.Project, b.Actual.StringFixed(1), b.Planned.StringFixed(1), ev.Month.Display()),
			fmt.Sprintf("burn ratio %.2f > %.2f (%s)", ratio, limit, origin(customized)),
			customized))
	}
	return out
}

func (ev *eval) detectUnderBurn() []Finding {
	underPct := ev.ov.ParamValue(RuleUnderBurn, "underBurnPct")
	customized := ev.ov.AnyCustomized(RuleUnderBurn, "underBurnPct")
	floor := underPct / 100

	var out []Finding
	for _, b := range ev.Budgeted(ev.ds) {
		if !b.Actual.IsPositive() {
			continue
		}
		ratio := b.BurnRatio()
		if ratio >= floor {
			continue
		}
		out = append(out, ev.finding(RuleUnderBurn, "", b.Project,
			"Project under budget",
			fmt.Sprintf("Project %s used only %sh of a %sh plan in %s.", b.Project, b.Actual.StringFixed(1), b.Planned.StringFixed(1), ev.Month.Display()),
			fmt.Sprintf("burn ratio %.2f < %.2f (%s)", ratio, floor, origin(customized)),
			customized))
	}
	return out
}

// =============================================================================
// RULE 8: NEW PERSON
// =============================================================================

func (ev *eval) detectNewPerson() []Finding {
	// Presence is checked within the filtered month, absence across the
	// whole dataset: someone is "new" only when no entry in any other
	// month mentions them.
	outside := make(map[string]bool)
	for _, e := range ev.ds.Entries {
		if e.Month() != ev.Month {
			outside[e.Person] = true
		}
	}

	var out []Finding
	for _, person := range ev.Persons() {
		if outside[person] {
			continue
		}
		if _, onRoster := ev.ds.MemberFor(person); !onRoster {
			continue
		}
		out = append(out, ev.finding(RuleNewPerson, person, "",
			"New team member",
			fmt.Sprintf("%s appears on the timesheet for the first time in %s.", person, ev.Month.Display()),
			fmt.Sprintf("first entries in %s, none in any other month (%s)", ev.Month, origin(false)),
			false))
	}
	return out
}
