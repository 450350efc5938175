/*
Package anomaly evaluates rule-triggered anomalies over a timesheet dataset.

PURPOSE:
  Eight independent, parameterized rules inspect one month's dataset and
  produce severity-ranked findings with stable cross-period identities.
  Rules are defined in a static registry; user customization lives in a
  sparse override table that merges with the registry through one pure
  resolution chain (override -> registry default -> zero).

KEY CONCEPTS IN THIS FILE (registry.go):
  - Rule: Static definition with category, default severity/enabled flag,
    and an ordered list of named, bounded numeric parameters
  - Registry: The compiled rule table. Never patched at runtime.

DESIGN PRINCIPLES:
  1. Registry + sparse overrides, resolved per field by pure functions
  2. Stable identity derived from (rule, subject) - no counters
  3. Detectors are independent: toggling one never affects another

SEE ALSO:
  - overrides.go: The user override table and resolution chain
  - engine.go: The eight detectors
  - finding.go: Finding shape, identity, ordering
*/
package anomaly

// =============================================================================
// RULE IDENTIFIERS
// =============================================================================

type RuleID string

const (
	RuleOvertime         RuleID = "overtime"
	RuleContextSwitching RuleID = "context-switching"
	RuleBusFactor        RuleID = "bus-factor"
	RuleMeetingHeavy     RuleID = "meeting-heavy"
	RuleFirefighting     RuleID = "firefighting-spike"
	RuleOverBurn         RuleID = "project-over-burn"
	RuleUnderBurn        RuleID = "project-under-burn"
	RuleNewPerson        RuleID = "new-person"
)

// =============================================================================
// SEVERITY
// =============================================================================

type Severity string

const (
	SeverityAlert   Severity = "alert"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities for sorting: alert < warning < info.
// Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityAlert:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// =============================================================================
// PARAMETERS
// =============================================================================

// Param is a named, bounded numeric rule parameter.
type Param struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Clamp bounds a candidate value to the parameter's range.
func (p Param) Clamp(v float64) float64 {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// =============================================================================
// RULE DEFINITION
// =============================================================================

type Rule struct {
	ID        RuleID   `json:"id"`
	Category  string   `json:"category"`
	Severity  Severity `json:"severity"`
	Enabled   bool     `json:"enabled"`
	Params    []Param  `json:"params"`
	Rationale string   `json:"rationale"`
}

// Param looks up a parameter definition by name.
func (r Rule) Param(name string) (Param, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// =============================================================================
// REGISTRY - The static rule table
// =============================================================================

// Registry lists every rule the engine knows, in evaluation order.
var Registry = []Rule{
	{
		ID:       RuleOvertime,
		Category: "workload",
		Severity: SeverityWarning,
		Enabled:  true,
		Params: []Param{
			{Name: "dailyHours", Label: "Daily hours threshold", Default: 8, Min: 4, Max: 16},
			{Name: "minDays", Label: "Minimum days over threshold", Default: 3, Min: 1, Max: 31},
		},
		Rationale: "Repeated long days precede burnout and quality drops.",
	},
	{
		ID:       RuleContextSwitching,
		Category: "focus",
		Severity: SeverityWarning,
		Enabled:  true,
		Params: []Param{
			{Name: "minFocusScore", Label: "Minimum focus score", Default: 30, Min: 0, Max: 100},
		},
		Rationale: "Juggling many projects per day taxes every one of them.",
	},
	{
		ID:       RuleBusFactor,
		Category: "risk",
		Severity: SeverityAlert,
		Enabled:  true,
		Params: []Param{
			{Name: "maxBusFactor", Label: "Maximum bus factor", Default: 1, Min: 1, Max: 5},
			{Name: "minHours", Label: "Minimum project hours", Default: 20, Min: 0, Max: 200},
			{Name: "npdOnly", Label: "New-product projects only", Default: 1, Min: 0, Max: 1},
		},
		Rationale: "A project carried by one person stalls the day they are out.",
	},
	{
		ID:       RuleMeetingHeavy,
		Category: "workload",
		Severity: SeverityInfo,
		Enabled:  true,
		Params: []Param{
			{Name: "maxMeetingPct", Label: "Meeting share threshold (%)", Default: 20, Min: 0, Max: 100},
		},
		Rationale: "Meeting-dominated weeks leave little room for build work.",
	},
	{
		ID:       RuleFirefighting,
		Category: "workload",
		Severity: SeverityWarning,
		Enabled:  true,
		Params: []Param{
			{Name: "maxFirefightingPct", Label: "Firefighting share threshold (%)", Default: 15, Min: 0, Max: 100},
		},
		Rationale: "Unplanned work crowding out planned work signals upstream problems.",
	},
	{
		ID:       RuleOverBurn,
		Category: "budget",
		Severity: SeverityAlert,
		Enabled:  true,
		Params: []Param{
			{Name: "overBurnPct", Label: "Over-burn tolerance (%)", Default: 30, Min: 0, Max: 200},
		},
		Rationale: "Actuals far past plan mean the plan or the scope is wrong.",
	},
	{
		ID:       RuleUnderBurn,
		Category: "budget",
		Severity: SeverityInfo,
		Enabled:  true,
		Params: []Param{
			{Name: "underBurnPct", Label: "Under-burn floor (%)", Default: 50, Min: 0, Max: 100},
		},
		Rationale: "A budgeted project barely touched is usually blocked or deprioritized.",
	},
	{
		ID:        RuleNewPerson,
		Category:  "roster",
		Severity:  SeverityInfo,
		Enabled:   true,
		Params:    nil,
		Rationale: "First month on the timesheet is worth a manager's glance.",
	},
}

// RuleByID returns a registry entry.
func RuleByID(id RuleID) (Rule, bool) {
	for _, r := range Registry {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
