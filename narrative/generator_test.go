package narrative_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/narrative"
	"github.com/warp/resource-insights/tracking"
	"github.com/warp/resource-insights/tracking/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	entries  []tracking.TimeEntry
	projects []tracking.Project
	members  []tracking.TeamMember
	budgets  []tracking.ProjectBudget
	seq      int
}

func (f *fixture) log(person string, project tracking.ProjectCode, d time.Time, hours float64, activity, task string) {
	f.seq++
	f.entries = append(f.entries, tracking.TimeEntry{
		ID:       tracking.EntryID(fmt.Sprintf("e-%03d", f.seq)),
		Date:     d,
		Person:   person,
		Project:  project,
		Activity: activity,
		Hours:    decimal.NewFromFloat(hours),
		Task:     task,
	})
}

func (f *fixture) dataset() *tracking.Dataset {
	ds := tracking.NewDataset(f.entries, f.projects, f.members)
	ds.Budgets = f.budgets
	return ds
}

// calmTeam is two engineers at half utilization on one NPD project.
func calmTeam() *fixture {
	f := &fixture{
		projects: []tracking.Project{
			{Code: "atlas", Name: "Atlas", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
			{Code: "hotline", Name: "Hotline", Type: tracking.ProjectSustaining, Class: tracking.WorkFirefighting},
		},
		members: []tracking.TeamMember{
			{ID: "m-01", Name: "Ada", Role: tracking.RoleEngineer},
			{ID: "m-02", Name: "Grace", Role: tracking.RoleEngineer},
		},
	}
	for d := 2; d <= 11; d++ {
		f.log("Ada", "atlas", day(2025, time.June, d), 7, "design", "")
		f.log("Grace", "atlas", day(2025, time.June, d), 7, "testing", "")
	}
	return f
}

func generate(f *fixture, cfg narrative.Config, month tracking.Month, filter tracking.ProjectCode) narrative.Result {
	return narrative.GenerateDataset(f.dataset(), cfg, anomaly.Overrides{}, month, filter)
}

func defaults() narrative.Config { return narrative.DefaultConfig() }

// =============================================================================
// EMPTY MONTH
// =============================================================================

func TestGenerate_EmptyMonth(t *testing.T) {
	r := generate(calmTeam(), defaults(), "2030-01", "")

	if r.Paragraph != narrative.NoDataSentence {
		t.Errorf("Expected the no-data sentence, got %q", r.Paragraph)
	}
	if r.Highlights == nil || len(r.Highlights) != 0 {
		t.Errorf("Expected an empty highlight list, got %v", r.Highlights)
	}
}

// =============================================================================
// TEAM MODE
// =============================================================================

func TestTeamNarrative_CalmMonthParagraph(t *testing.T) {
	// GIVEN: 140h by two engineers against 280h capacity, no anomalies
	r := generate(calmTeam(), defaults(), "2025-06", "")

	want := "In June 2025, 2 engineers logged 140.0 hours across 1 projects (50% utilization). " +
		"New product development accounted for 100% of productive time, alongside 0.0 hours of sustaining work. " +
		"Ada and Grace finished below 70% of capacity."
	if r.Paragraph != want {
		t.Errorf("Paragraph mismatch:\n got %q\nwant %q", r.Paragraph, want)
	}

	if len(r.Highlights) != 2 || r.Highlights[0] != "140.0h logged" || r.Highlights[1] != "50% utilization" {
		t.Errorf("Unexpected highlights: %v", r.Highlights)
	}
}

func TestTeamNarrative_TrendClause(t *testing.T) {
	// GIVEN: May at 25% utilization (Ada alone, 35h) and June at 50%
	f := calmTeam()
	for d := 5; d <= 9; d++ {
		f.log("Ada", "atlas", day(2025, time.May, d), 7, "design", "")
	}

	r := generate(f, defaults(), "2025-06", "")

	if !strings.Contains(r.Paragraph, "(50% utilization, up from 25% last month)") {
		t.Errorf("Expected the trend clause, got %q", r.Paragraph)
	}

	// WHEN: Trends are switched off
	cfg := defaults()
	cfg.IncludeTrends = false
	r = generate(f, cfg, "2025-06", "")
	if strings.Contains(r.Paragraph, "last month") {
		t.Errorf("Expected no trend clause with trends off, got %q", r.Paragraph)
	}
}

func TestTeamNarrative_NoTrendWithoutPriorData(t *testing.T) {
	r := generate(calmTeam(), defaults(), "2025-06", "")
	if strings.Contains(r.Paragraph, "last month") {
		t.Errorf("Expected no trend clause without May data, got %q", r.Paragraph)
	}
}

func TestTeamNarrative_FirefightingObservationToneVariants(t *testing.T) {
	// GIVEN: 20% of team time on the firefighting-classed project,
	// heaviest for Ada
	f := calmTeam()
	for d := 2; d <= 6; d++ {
		f.log("Ada", "hotline", day(2025, time.June, d), 7, "", "")
	}
	// 35 of 175 hours = 20% > 15%

	cases := []struct {
		named, numeric bool
		want           string
	}{
		{true, true, "Unplanned firefighting consumed 20% of logged time, most of it from Ada."},
		{true, false, "Unplanned firefighting consumed a sizable share of logged time, most of it from Ada."},
		{false, true, "Unplanned firefighting consumed 20% of logged time."},
		{false, false, "Unplanned firefighting consumed a sizable share of logged time."},
	}
	for _, c := range cases {
		cfg := defaults()
		cfg.NameIndividuals = c.named
		cfg.IncludeNumbers = c.numeric
		r := generate(f, cfg, "2025-06", "")
		if !strings.Contains(r.Paragraph, c.want) {
			t.Errorf("named=%v numeric=%v: expected %q in %q", c.named, c.numeric, c.want, r.Paragraph)
		}
	}
}

func TestTeamNarrative_ToneFlagsNeverChangeTriggerSet(t *testing.T) {
	// GIVEN: A month with firefighting and overtime observations
	f := calmTeam()
	for d := 2; d <= 6; d++ {
		f.log("Ada", "hotline", day(2025, time.June, d), 7, "", "")
	}

	// Highlights = headline tags + one per selected observation, so the
	// observation count is len(highlights) minus the headline size.
	var counts []int
	for _, named := range []bool{true, false} {
		for _, numeric := range []bool{true, false} {
			cfg := defaults()
			cfg.NameIndividuals = named
			cfg.IncludeNumbers = numeric
			r := generate(f, cfg, "2025-06", "")
			headline := 1
			if numeric {
				headline = 2
			}
			counts = append(counts, len(r.Highlights)-headline)
		}
	}
	for _, c := range counts[1:] {
		if c != counts[0] {
			t.Errorf("Observation count varies with tone flags: %v", counts)
		}
	}
}

func TestTeamNarrative_ObservationCap(t *testing.T) {
	// GIVEN: Firefighting and overtime both trigger (Ada at 14h/day)
	f := calmTeam()
	for d := 2; d <= 6; d++ {
		f.log("Ada", "hotline", day(2025, time.June, d), 7, "", "")
	}

	cfg := defaults()
	cfg.MaxObservations = 1

	r := generate(f, cfg, "2025-06", "")

	// THEN: Only the highest-priority observation (firefighting, first
	// in the registry) survives the cap
	if !strings.Contains(r.Paragraph, "Unplanned firefighting") {
		t.Errorf("Expected the firefighting observation, got %q", r.Paragraph)
	}
	if strings.Contains(r.Paragraph, "worked past") {
		t.Errorf("Expected the overtime observation capped away, got %q", r.Paragraph)
	}
}

func TestTeamNarrative_PriorityReorder(t *testing.T) {
	f := calmTeam()
	for d := 2; d <= 6; d++ {
		f.log("Ada", "hotline", day(2025, time.June, d), 7, "", "")
	}

	// WHEN: Overtime is promoted above firefighting and the cap is one
	cfg := defaults()
	cfg.MaxObservations = 1
	cfg.Priority = []narrative.ObservationKey{narrative.ObsOvertime, narrative.ObsFirefighting}

	r := generate(f, cfg, "2025-06", "")

	if !strings.Contains(r.Paragraph, "Ada worked past 8h on 5 days.") {
		t.Errorf("Expected the overtime observation first, got %q", r.Paragraph)
	}
	if strings.Contains(r.Paragraph, "Unplanned firefighting") {
		t.Errorf("Expected firefighting capped away after the reorder, got %q", r.Paragraph)
	}
}

func TestTeamNarrative_DisabledObservationSkipped(t *testing.T) {
	f := calmTeam()
	for d := 2; d <= 6; d++ {
		f.log("Ada", "hotline", day(2025, time.June, d), 7, "", "")
	}

	cfg := defaults()
	cfg.Enabled = map[narrative.ObservationKey]bool{narrative.ObsFirefighting: false}

	r := generate(f, cfg, "2025-06", "")

	if strings.Contains(r.Paragraph, "Unplanned firefighting") {
		t.Errorf("Expected the disabled observation skipped, got %q", r.Paragraph)
	}
}

func TestTeamNarrative_NameListTruncation(t *testing.T) {
	// GIVEN: Five engineers all under 70% of capacity
	f := &fixture{
		projects: []tracking.Project{
			{Code: "atlas", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		},
	}
	names := []string{"Ada", "Ben", "Cleo", "Dee", "Eli"}
	for i, n := range names {
		f.members = append(f.members, tracking.TeamMember{
			ID:   tracking.MemberID(fmt.Sprintf("m-%02d", i+1)),
			Name: n,
			Role: tracking.RoleEngineer,
		})
		f.log(n, "atlas", day(2025, time.June, 2+i), 7, "", "")
	}

	r := generate(f, defaults(), "2025-06", "")

	if !strings.Contains(r.Paragraph, "Ada, Ben, Cleo, and 2 others finished below 70% of capacity.") {
		t.Errorf("Expected the truncated name list, got %q", r.Paragraph)
	}
}

func TestTeamNarrative_OpeningAndClosing(t *testing.T) {
	cfg := defaults()
	cfg.Opening = "Monthly engineering report."
	cfg.Closing = "Questions to the staffing channel."

	r := generate(calmTeam(), cfg, "2025-06", "")

	if !strings.HasPrefix(r.Paragraph, "Monthly engineering report. ") {
		t.Errorf("Expected the opening first, got %q", r.Paragraph)
	}
	if !strings.HasSuffix(r.Paragraph, "Questions to the staffing channel.") {
		t.Errorf("Expected the closing last, got %q", r.Paragraph)
	}
}

// =============================================================================
// PROJECT MODE
// =============================================================================

// soloProject is Ada alone on atlas with a 50h June budget.
func soloProject() *fixture {
	f := &fixture{
		projects: []tracking.Project{
			{Code: "atlas", Name: "Atlas", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		},
		members: []tracking.TeamMember{
			{ID: "m-01", Name: "Ada", Role: tracking.RoleEngineer},
		},
		budgets: []tracking.ProjectBudget{
			{Month: "2025-06", Project: "atlas", Hours: decimal.NewFromInt(50)},
		},
	}
	for d := 2; d <= 11; d++ {
		activity := "design"
		if d%2 == 0 {
			activity = "testing"
		}
		f.log("Ada", "atlas", day(2025, time.June, d), 6, activity, "")
	}
	return f
}

func TestProjectNarrative_FullParagraph(t *testing.T) {
	// GIVEN: 60h against a 50h plan, one solo contributor
	r := generate(soloProject(), defaults(), "2025-06", "atlas")

	want := "Project atlas logged 60.0 hours in June 2025. " +
		"Work spanned design and testing. " +
		"Actual hours came to 120% of the 50h plan, slightly over plan. " +
		"Ada has logged 100% of all hours on this project."
	if r.Paragraph != want {
		t.Errorf("Paragraph mismatch:\n got %q\nwant %q", r.Paragraph, want)
	}

	if len(r.Highlights) != 2 || r.Highlights[0] != "60.0h logged" || r.Highlights[1] != "Bus factor 1" {
		t.Errorf("Unexpected highlights: %v", r.Highlights)
	}
}

func TestProjectNarrative_SoleActivityFoldsIntoVolume(t *testing.T) {
	f := soloProject()
	for i := range f.entries {
		f.entries[i].Activity = "design"
	}

	r := generate(f, defaults(), "2025-06", "atlas")

	if !strings.Contains(r.Paragraph, "Project atlas logged 60.0 hours in June 2025, all on design.") {
		t.Errorf("Expected the folded activity clause, got %q", r.Paragraph)
	}
	if strings.Contains(r.Paragraph, "Work spanned") {
		t.Errorf("Expected no separate breakdown sentence, got %q", r.Paragraph)
	}
}

func TestProjectNarrative_DeviationBands(t *testing.T) {
	// The qualitative plan sentence exposes the deviation band directly.
	cases := []struct {
		budget int64
		want   string
	}{
		{60, "The project is tracking close to plan."},     // 100%
		{50, "The project is slightly over plan."},         // 120%
		{40, "The project is significantly exceeding plan."}, // 150%
		{150, "The project is well below plan."},           // 40%
		{80, "The project is running under plan."},         // 75%
	}
	for _, c := range cases {
		f := soloProject()
		f.budgets = []tracking.ProjectBudget{
			{Month: "2025-06", Project: "atlas", Hours: decimal.NewFromInt(c.budget)},
		}
		cfg := defaults()
		cfg.IncludeNumbers = false

		r := generate(f, cfg, "2025-06", "atlas")
		if !strings.Contains(r.Paragraph, c.want) {
			t.Errorf("budget %dh: expected %q in %q", c.budget, c.want, r.Paragraph)
		}
	}
}

func TestProjectNarrative_FirefightingClassification(t *testing.T) {
	f := soloProject()
	f.projects[0].Class = tracking.WorkFirefighting

	r := generate(f, defaults(), "2025-06", "atlas")

	if !strings.Contains(r.Paragraph, "This work is classified as unplanned firefighting.") {
		t.Errorf("Expected the classification sentence, got %q", r.Paragraph)
	}
}

func TestProjectNarrative_ContributorSplit(t *testing.T) {
	// GIVEN: Ada also works two other projects during the month
	f := soloProject()
	f.projects = append(f.projects,
		tracking.Project{Code: "legacy", Type: tracking.ProjectSustaining, Class: tracking.WorkPlanned},
		tracking.Project{Code: "tools", Type: tracking.ProjectSustaining, Class: tracking.WorkPlanned},
	)
	f.log("Ada", "legacy", day(2025, time.June, 12), 4, "", "")
	f.log("Ada", "tools", day(2025, time.June, 13), 4, "", "")

	r := generate(f, defaults(), "2025-06", "atlas")

	if !strings.Contains(r.Paragraph, "Ada, the primary contributor, split time across 2 other projects this month.") {
		t.Errorf("Expected the contributor-split observation, got %q", r.Paragraph)
	}
}

func TestProjectNarrative_ChildHoursRollIntoParent(t *testing.T) {
	// GIVEN: Hours logged on a child code, narrative for the parent
	f := soloProject()
	f.log("Ada", "atlas.fw", day(2025, time.June, 12), 5, "firmware", "")

	r := generate(f, defaults(), "2025-06", "atlas")

	if !strings.Contains(r.Paragraph, "Project atlas logged 65.0 hours") {
		t.Errorf("Expected the child hours folded in, got %q", r.Paragraph)
	}
}

// =============================================================================
// GENERATOR OVER A STORE
// =============================================================================

func TestGenerator_UsesStoredConfiguration(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	f := calmTeam()
	if err := mem.SaveProjects(ctx, f.projects); err != nil {
		t.Fatalf("Failed to save projects: %v", err)
	}
	if err := mem.SaveMembers(ctx, f.members); err != nil {
		t.Fatalf("Failed to save members: %v", err)
	}
	if err := mem.SaveEntries(ctx, f.entries); err != nil {
		t.Fatalf("Failed to save entries: %v", err)
	}
	cfg := defaults()
	cfg.Opening = "Stored opening."
	if err := mem.SaveNarrativeConfig(ctx, cfg); err != nil {
		t.Fatalf("Failed to save narrative config: %v", err)
	}

	g := narrative.NewGenerator(mem, mem, mem)
	r, err := g.Generate(ctx, "2025-06", "")
	if err != nil {
		t.Fatalf("Failed to generate: %v", err)
	}
	if !strings.HasPrefix(r.Paragraph, "Stored opening. ") {
		t.Errorf("Expected the stored opening applied, got %q", r.Paragraph)
	}
}
