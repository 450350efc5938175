/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Import:
    ImportRequest, EntryDTO, ProjectDTO, MemberDTO, AllocationDTO, BudgetDTO

  Findings:
    FindingDTO, EnrichedFindingDTO

  Configuration:
    RuleDTO, ParamDTO (registry description for the settings UI)

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: Configuration blob parsing
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/history"
	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// IMPORT TYPES
// =============================================================================

// ImportRequest is the bulk timesheet import payload.
type ImportRequest struct {
	Reset       bool            `json:"reset,omitempty"`
	Entries     []EntryDTO      `json:"entries,omitempty"`
	Projects    []ProjectDTO    `json:"projects,omitempty"`
	Members     []MemberDTO     `json:"members,omitempty"`
	Allocations []AllocationDTO `json:"allocations,omitempty"`
	Budgets     []BudgetDTO     `json:"budgets,omitempty"`

	// DefaultCapacityHours replaces the capacity singleton when positive.
	DefaultCapacityHours float64 `json:"defaultCapacityHours,omitempty"`
}

type EntryDTO struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"` // YYYY-MM-DD
	Person   string  `json:"person"`
	Project  string  `json:"project"`
	Activity string  `json:"activity,omitempty"`
	Hours    float64 `json:"hours"`
	Task     string  `json:"task,omitempty"`
	TaskID   string  `json:"taskId,omitempty"`
	Done     bool    `json:"done,omitempty"`
}

type ProjectDTO struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Class string `json:"class,omitempty"`
}

type MemberDTO struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Role            string  `json:"role"`
	MonthlyCapacity float64 `json:"monthlyCapacity,omitempty"`
}

type AllocationDTO struct {
	Month   string  `json:"month"`
	Project string  `json:"project"`
	Person  string  `json:"person"`
	Percent float64 `json:"percent,omitempty"`
	Hours   float64 `json:"hours"`
}

type BudgetDTO struct {
	Month   string  `json:"month"`
	Project string  `json:"project"`
	Hours   float64 `json:"hours"`
}

// ImportResponse reports what the import wrote.
type ImportResponse struct {
	Entries     int  `json:"entries"`
	Projects    int  `json:"projects"`
	Members     int  `json:"members"`
	Allocations int  `json:"allocations"`
	Budgets     int  `json:"budgets"`
	Reset       bool `json:"reset"`
}

func (d EntryDTO) toEntry() (tracking.TimeEntry, error) {
	date, err := parseDay(d.Date)
	if err != nil {
		return tracking.TimeEntry{}, err
	}
	return tracking.TimeEntry{
		ID:       tracking.EntryID(d.ID),
		Date:     date,
		Person:   d.Person,
		Project:  tracking.ProjectCode(d.Project),
		Activity: d.Activity,
		Hours:    decimal.NewFromFloat(d.Hours),
		Task:     d.Task,
		TaskID:   d.TaskID,
		Done:     d.Done,
	}, nil
}

func (d ProjectDTO) toProject() tracking.Project {
	class := tracking.WorkClass(d.Class)
	if class == "" {
		class = tracking.WorkPlanned
	}
	return tracking.Project{
		Code:  tracking.ProjectCode(d.Code),
		Name:  d.Name,
		Type:  tracking.ProjectType(d.Type),
		Class: class,
	}
}

func (d MemberDTO) toMember() tracking.TeamMember {
	return tracking.TeamMember{
		ID:              tracking.MemberID(d.ID),
		Name:            d.Name,
		Role:            tracking.Role(d.Role),
		MonthlyCapacity: decimal.NewFromFloat(d.MonthlyCapacity),
	}
}

// =============================================================================
// FINDING TYPES
// =============================================================================

// FindingDTO is a live finding in API responses.
type FindingDTO struct {
	Rule       string `json:"rule"`
	Severity   string `json:"severity"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Person     string `json:"person,omitempty"`
	Project    string `json:"project,omitempty"`
	Comparison string `json:"comparison,omitempty"`
	Customized bool   `json:"customized,omitempty"`
	Identity   string `json:"identity"`
}

func toFindingDTO(f anomaly.Finding) FindingDTO {
	return FindingDTO{
		Rule:       string(f.Rule),
		Severity:   string(f.Severity),
		Type:       f.Type,
		Title:      f.Title,
		Detail:     f.Detail,
		Person:     f.Person,
		Project:    string(f.Project),
		Comparison: f.Comparison,
		Customized: f.Customized,
		Identity:   f.Identity(),
	}
}

// EnrichedFindingDTO adds the cross-period status to a stored finding.
type EnrichedFindingDTO struct {
	Rule            string `json:"rule"`
	Severity        string `json:"severity"`
	Type            string `json:"type"`
	Title           string `json:"title"`
	Detail          string `json:"detail"`
	Person          string `json:"person,omitempty"`
	Project         string `json:"project,omitempty"`
	Identity        string `json:"identity"`
	Status          string `json:"status"`
	RecurringMonths int    `json:"recurringMonths,omitempty"`
}

func toEnrichedDTO(f history.EnrichedFinding) EnrichedFindingDTO {
	return EnrichedFindingDTO{
		Rule:            string(f.Rule),
		Severity:        string(f.Severity),
		Type:            f.Type,
		Title:           f.Title,
		Detail:          f.Detail,
		Person:          f.Person,
		Project:         string(f.Project),
		Identity:        f.Identity,
		Status:          string(f.Status),
		RecurringMonths: f.RecurringMonths,
	}
}

// =============================================================================
// CONFIGURATION TYPES
// =============================================================================

// RuleDTO describes a registry rule plus its effective settings, for the
// threshold settings UI.
type RuleDTO struct {
	ID        string     `json:"id"`
	Category  string     `json:"category"`
	Rationale string     `json:"rationale"`
	Severity  string     `json:"severity"`
	Enabled   bool       `json:"enabled"`
	Params    []ParamDTO `json:"params"`
}

type ParamDTO struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Default float64 `json:"default"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

func toRuleDTO(rule anomaly.Rule, ov anomaly.Overrides) RuleDTO {
	dto := RuleDTO{
		ID:        string(rule.ID),
		Category:  rule.Category,
		Rationale: rule.Rationale,
		Severity:  string(ov.SeverityFor(rule.ID)),
		Enabled:   ov.Enabled(rule.ID),
		Params:    make([]ParamDTO, len(rule.Params)),
	}
	for i, p := range rule.Params {
		dto.Params[i] = ParamDTO{
			Name:    p.Name,
			Label:   p.Label,
			Default: p.Default,
			Value:   ov.ParamValue(rule.ID, p.Name),
			Min:     p.Min,
			Max:     p.Max,
		}
	}
	return dto
}

// =============================================================================
// PERIOD TYPES
// =============================================================================

// PeriodDTO is one month with data, for the period picker.
type PeriodDTO struct {
	Month   string `json:"month"`
	Display string `json:"display"`
}
