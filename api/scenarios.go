/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the store with small, hand-built datasets that exercise the
  anomaly rules and narrative paths. Used for demos and frontend
  development so the dashboard has something to show without a real
  timesheet export.

SCENARIOS:
  healthy-team:  Balanced month, utilization near capacity, few findings
  crunch:        Heavy overtime + firefighting spike + meeting load
  solo-project:  One person carrying an NPD project, budget over-burn
  new-hire:      First-month person, under-burned project

DESIGN:
  Each scenario resets the timesheet tables, imports two consecutive
  months of entries, and refreshes the snapshots for both months so the
  enriched view immediately shows recurrence.

SEE ALSO:
  - handlers.go: Import handler (the non-demo ingestion path)
  - anomaly/registry.go: The rules these datasets trigger
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Months      []string `json:"months"`
}

type scenario struct {
	ScenarioDTO
	build func() seed
}

// seed is everything one scenario imports.
type seed struct {
	projects []tracking.Project
	members  []tracking.TeamMember
	entries  []tracking.TimeEntry
	budgets  []tracking.ProjectBudget
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "healthy-team",
			Name:        "Healthy team",
			Description: "Balanced workload, utilization near capacity, no alerts.",
			Months:      []string{"2025-05", "2025-06"},
		},
		build: seedHealthyTeam,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "crunch",
			Name:        "Crunch month",
			Description: "Sustained overtime, firefighting spike and meeting-heavy schedules.",
			Months:      []string{"2025-05", "2025-06"},
		},
		build: seedCrunch,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "solo-project",
			Name:        "Solo project",
			Description: "One engineer carrying an NPD project that is burning past its budget.",
			Months:      []string{"2025-05", "2025-06"},
		},
		build: seedSoloProject,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "new-hire",
			Name:        "New hire",
			Description: "A first-month engineer on an under-burned project.",
			Months:      []string{"2025-05", "2025-06"},
		},
		build: seedNewHire,
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario resets the store and imports the named scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var picked *scenario
	for i := range scenarios {
		if scenarios[i].ID == req.ID {
			picked = &scenarios[i]
			break
		}
	}
	if picked == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario %q", req.ID), nil)
		return
	}

	if err := h.loadScenario(r.Context(), picked); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, picked.ScenarioDTO)
}

func (h *Handler) loadScenario(ctx context.Context, sc *scenario) error {
	if err := h.Store.ResetTimesheet(ctx); err != nil {
		return err
	}

	data := sc.build()
	if err := h.Store.SaveProjects(ctx, data.projects); err != nil {
		return err
	}
	if err := h.Store.SaveMembers(ctx, data.members); err != nil {
		return err
	}
	if err := h.Store.SaveEntries(ctx, data.entries); err != nil {
		return err
	}
	if len(data.budgets) > 0 {
		if err := h.Store.SaveBudgets(ctx, data.budgets); err != nil {
			return err
		}
	}

	// Snapshot both months so the enriched view shows recurrence.
	for _, m := range sc.Months {
		if err := h.History.Refresh(ctx, tracking.Month(m), ""); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SEED BUILDERS
// =============================================================================

func demoProjects() []tracking.Project {
	return []tracking.Project{
		{Code: "atlas", Name: "Atlas", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		{Code: "atlas.fw", Name: "Atlas Firmware", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		{Code: "legacy", Name: "Legacy Support", Type: tracking.ProjectSustaining, Class: tracking.WorkPlanned},
		{Code: "hotline", Name: "Field Escalations", Type: tracking.ProjectSustaining, Class: tracking.WorkFirefighting},
		{Code: "admin", Name: "Admin", Type: tracking.ProjectAdmin, Class: tracking.WorkPlanned},
		{Code: "pto", Name: "Out of Office", Type: tracking.ProjectOutOfOffice, Class: tracking.WorkPlanned},
	}
}

func demoMembers(names ...string) []tracking.TeamMember {
	members := make([]tracking.TeamMember, len(names))
	for i, name := range names {
		members[i] = tracking.TeamMember{
			ID:   tracking.MemberID(fmt.Sprintf("m-%02d", i+1)),
			Name: name,
			Role: tracking.RoleEngineer,
		}
	}
	return members
}

// entrySeq numbers generated entries; daily emits one entry per weekday
// of a month for a person/project pair.
type entrySeq struct {
	n int
}

func (s *entrySeq) daily(month tracking.Month, person string, project tracking.ProjectCode, hoursPerDay float64, task string) []tracking.TimeEntry {
	var entries []tracking.TimeEntry
	start := month.Time()
	for d := start; d.Month() == start.Month(); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s.n++
		entries = append(entries, tracking.TimeEntry{
			ID:      tracking.EntryID(fmt.Sprintf("demo-%04d", s.n)),
			Date:    d,
			Person:  person,
			Project: project,
			Hours:   decimal.NewFromFloat(hoursPerDay),
			Task:    task,
		})
	}
	return entries
}

func seedHealthyTeam() seed {
	var seq entrySeq
	var entries []tracking.TimeEntry
	for _, month := range []tracking.Month{"2025-05", "2025-06"} {
		entries = append(entries, seq.daily(month, "Ada", "atlas", 4, "sensor bring-up")...)
		entries = append(entries, seq.daily(month, "Ada", "legacy", 2, "regression triage")...)
		entries = append(entries, seq.daily(month, "Grace", "atlas", 4, "enclosure design")...)
		entries = append(entries, seq.daily(month, "Grace", "atlas.fw", 2, "bootloader")...)
		entries = append(entries, seq.daily(month, "Lin", "legacy", 4, "field returns")...)
		entries = append(entries, seq.daily(month, "Lin", "atlas", 2, "test fixtures")...)
	}
	return seed{
		projects: demoProjects(),
		members:  demoMembers("Ada", "Grace", "Lin"),
		entries:  entries,
		budgets: []tracking.ProjectBudget{
			{Month: "2025-05", Project: "atlas", Hours: decimal.NewFromInt(220)},
			{Month: "2025-06", Project: "atlas", Hours: decimal.NewFromInt(220)},
		},
	}
}

func seedCrunch() seed {
	var seq entrySeq
	var entries []tracking.TimeEntry
	for _, month := range []tracking.Month{"2025-05", "2025-06"} {
		entries = append(entries, seq.daily(month, "Ada", "atlas", 9.5, "launch push")...)
		entries = append(entries, seq.daily(month, "Ada", "hotline", 1.5, "escalation calls")...)
		entries = append(entries, seq.daily(month, "Grace", "hotline", 3, "field failure analysis")...)
		entries = append(entries, seq.daily(month, "Grace", "atlas", 3, "design reviews")...)
		entries = append(entries, seq.daily(month, "Lin", "admin", 2, "status meeting")...)
		entries = append(entries, seq.daily(month, "Lin", "atlas", 4, "integration")...)
	}
	return seed{
		projects: demoProjects(),
		members:  demoMembers("Ada", "Grace", "Lin"),
		entries:  entries,
	}
}

func seedSoloProject() seed {
	var seq entrySeq
	var entries []tracking.TimeEntry
	for _, month := range []tracking.Month{"2025-05", "2025-06"} {
		entries = append(entries, seq.daily(month, "Ada", "atlas.fw", 7, "firmware")...)
		entries = append(entries, seq.daily(month, "Grace", "legacy", 6, "sustaining queue")...)
	}
	return seed{
		projects: demoProjects(),
		members:  demoMembers("Ada", "Grace"),
		entries:  entries,
		budgets: []tracking.ProjectBudget{
			// ~150h actual against 100h planned: well past the over-burn band.
			{Month: "2025-05", Project: "atlas", Hours: decimal.NewFromInt(100)},
			{Month: "2025-06", Project: "atlas", Hours: decimal.NewFromInt(100)},
		},
	}
}

func seedNewHire() seed {
	var seq entrySeq
	var entries []tracking.TimeEntry
	// Veterans in both months; Sam only appears in June.
	for _, month := range []tracking.Month{"2025-05", "2025-06"} {
		entries = append(entries, seq.daily(month, "Ada", "atlas", 6, "architecture")...)
		entries = append(entries, seq.daily(month, "Grace", "legacy", 6, "sustaining queue")...)
	}
	entries = append(entries, seq.daily("2025-06", "Sam", "atlas", 3, "onboarding tasks")...)
	return seed{
		projects: demoProjects(),
		members:  demoMembers("Ada", "Grace", "Sam"),
		entries:  entries,
		budgets: []tracking.ProjectBudget{
			// Far more planned than anyone logged: triggers under-burn.
			{Month: "2025-06", Project: "legacy", Hours: decimal.NewFromInt(400)},
		},
	}
}
