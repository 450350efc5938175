package anomaly

import (
	"sort"

	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// FINDING - One triggered anomaly
// =============================================================================

// Finding is one triggered anomaly. At least one of Person/Project is set
// unless the rule is dataset-global. The Comparison string spells out the
// triggering inequality and whether the threshold was customized; it is
// cosmetic but required for a finding to be complete.
type Finding struct {
	Rule     RuleID               `json:"rule"`
	Severity Severity             `json:"severity"`
	Type     string               `json:"type"` // rule category tag
	Title    string               `json:"title"`
	Detail   string               `json:"detail"`
	Person   string               `json:"person,omitempty"`
	Project  tracking.ProjectCode `json:"project,omitempty"`

	Comparison string `json:"comparison"`
	Customized bool   `json:"customized"`
}

// Identity is the stable cross-period join key: rule + subject, derived
// from the finding's own fields with no external counter. Person wins over
// project when both are present; rules with neither are global.
func (f Finding) Identity() string {
	subject := "global"
	switch {
	case f.Person != "":
		subject = f.Person
	case f.Project != "":
		subject = string(f.Project)
	}
	return string(f.Rule) + "::" + subject
}

// SortFindings orders findings alert, warning, info. Ties keep discovery
// order (stable sort).
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() < findings[j].Severity.Rank()
	})
}
