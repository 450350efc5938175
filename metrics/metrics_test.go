package metrics_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/metrics"
	"github.com/warp/resource-insights/tracking"
	"github.com/warp/resource-insights/tracking/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func entry(person string, project tracking.ProjectCode, d time.Time, hours float64, task string) tracking.TimeEntry {
	return tracking.TimeEntry{
		ID:      tracking.EntryID(person + "-" + d.Format("2006-01-02") + "-" + string(project)),
		Date:    d,
		Person:  person,
		Project: project,
		Hours:   decimal.NewFromFloat(hours),
		Task:    task,
	}
}

// teamDataset is the shared fixture: two engineers and a lab technician
// across NPD, sustaining, admin, and firefighting work in June 2025.
func teamDataset() *tracking.Dataset {
	projects := []tracking.Project{
		{Code: "atlas", Name: "Atlas", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		{Code: "legacy", Name: "Legacy", Type: tracking.ProjectSustaining, Class: tracking.WorkPlanned},
		{Code: "hotline", Name: "Hotline", Type: tracking.ProjectSustaining, Class: tracking.WorkFirefighting},
		{Code: "admin", Name: "Admin", Type: tracking.ProjectAdmin, Class: tracking.WorkPlanned},
	}
	members := []tracking.TeamMember{
		{ID: "m-01", Name: "Ada", Role: tracking.RoleEngineer},
		{ID: "m-02", Name: "Grace", Role: tracking.RoleEngineer},
		{ID: "m-03", Name: "Sam", Role: tracking.RoleLabTechnician},
	}
	entries := []tracking.TimeEntry{
		entry("Ada", "atlas", day(2025, time.June, 2), 6, "design"),
		entry("Ada", "atlas.fw", day(2025, time.June, 2), 3, "firmware"), // same day: 9h total
		entry("Ada", "legacy", day(2025, time.June, 3), 8, "bugfix"),
		entry("Grace", "atlas", day(2025, time.June, 2), 8, "testing"),
		entry("Grace", "hotline", day(2025, time.June, 3), 4, "escalation"),
		entry("Grace", "admin", day(2025, time.June, 3), 2, "weekly meeting"),
		entry("Sam", "atlas", day(2025, time.June, 4), 8, "lab setup"),
		// previous month, must not leak into June figures
		entry("Ada", "atlas", day(2025, time.May, 20), 8, "design"),
	}
	ds := tracking.NewDataset(entries, projects, members)
	ds.Capacity = tracking.CapacityConfig{DefaultMonthlyHours: decimal.NewFromInt(140)}
	return ds
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// =============================================================================
// SINGLE-PERIOD COMPUTATION
// =============================================================================

func TestComputeDataset_JuneTotals(t *testing.T) {
	ds := teamDataset()
	june := []tracking.Month{"2025-06"}

	r := metrics.ComputeDataset(ds, june, "")

	// THEN: Only June entries count
	if r.EntryCount != 7 {
		t.Errorf("Expected 7 entries, got %d", r.EntryCount)
	}
	if !almost(r.TotalHours, 39) {
		t.Errorf("Expected 39 total hours, got %.1f", r.TotalHours)
	}
	// Admin hours are excluded from productive time
	if !almost(r.ProductiveHours, 37) {
		t.Errorf("Expected 37 productive hours, got %.1f", r.ProductiveHours)
	}
	// atlas.fw rolls up into atlas: NPD = 6+3+8 by engineers, +8 by Sam
	if !almost(r.NPDHours, 25) {
		t.Errorf("Expected 25 NPD hours, got %.1f", r.NPDHours)
	}
	if !almost(r.SustainingHours, 12) {
		t.Errorf("Expected 12 sustaining hours, got %.1f", r.SustainingHours)
	}
	if !almost(r.FirefightingHours, 4) {
		t.Errorf("Expected 4 firefighting hours, got %.1f", r.FirefightingHours)
	}
	if !almost(r.AdminHours, 2) {
		t.Errorf("Expected 2 admin hours, got %.1f", r.AdminHours)
	}
	if !almost(r.MeetingHours, 2) {
		t.Errorf("Expected 2 meeting hours from the 'weekly meeting' task, got %.1f", r.MeetingHours)
	}
	if !almost(r.LabTechHours, 8) {
		t.Errorf("Expected 8 lab-tech hours, got %.1f", r.LabTechHours)
	}
	// Engineer-productive hours exclude Sam's lab time and Grace's admin
	if !almost(r.EngineerHours, 29) {
		t.Errorf("Expected 29 engineer hours, got %.1f", r.EngineerHours)
	}
	// atlas (with atlas.fw folded in), legacy, hotline, admin
	if r.ProjectCount != 4 {
		t.Errorf("Expected 4 projects, got %d", r.ProjectCount)
	}
}

func TestComputeDataset_CapacityAndUtilization(t *testing.T) {
	ds := teamDataset()

	r := metrics.ComputeDataset(ds, []tracking.Month{"2025-06"}, "")

	// Two active engineers at 140h each; Sam is not an engineer
	if r.ActiveEngineers != 2 {
		t.Errorf("Expected 2 active engineers, got %d", r.ActiveEngineers)
	}
	if !almost(r.CapacityHours, 280) {
		t.Errorf("Expected 280 capacity hours, got %.1f", r.CapacityHours)
	}
	// 29 engineer hours over 280 capacity
	if !almost(r.UtilizationPct, 29.0/280*100) {
		t.Errorf("Expected utilization %.4f, got %.4f", 29.0/280*100, r.UtilizationPct)
	}
	if !almost(r.AvgHoursPerEngineer, 14.5) {
		t.Errorf("Expected 14.5 avg hours/engineer, got %.2f", r.AvgHoursPerEngineer)
	}
}

func TestComputeDataset_CapacityScalesWithWindow(t *testing.T) {
	// GIVEN: A two-month window
	ds := teamDataset()

	r := metrics.ComputeDataset(ds, []tracking.Month{"2025-05", "2025-06"}, "")

	// THEN: Each active engineer contributes capacity for both months
	if !almost(r.CapacityHours, 560) {
		t.Errorf("Expected 560 capacity hours over two months, got %.1f", r.CapacityHours)
	}
	if r.EntryCount != 8 {
		t.Errorf("Expected all 8 entries in the window, got %d", r.EntryCount)
	}
}

func TestComputeDataset_MemberCapacityOverride(t *testing.T) {
	ds := teamDataset()
	ds.Members[0].MonthlyCapacity = decimal.NewFromInt(80) // Ada works part-time
	// reindex so MemberFor sees the change
	ds = tracking.NewDataset(ds.Entries, ds.Projects, ds.Members)
	ds.Capacity = tracking.CapacityConfig{DefaultMonthlyHours: decimal.NewFromInt(140)}

	r := metrics.ComputeDataset(ds, []tracking.Month{"2025-06"}, "")

	if !almost(r.CapacityHours, 220) {
		t.Errorf("Expected 80+140 capacity hours, got %.1f", r.CapacityHours)
	}
}

func TestComputeDataset_ProjectFilter(t *testing.T) {
	ds := teamDataset()

	// WHEN: Filtering on atlas, which has a child code atlas.fw
	r := metrics.ComputeDataset(ds, []tracking.Month{"2025-06"}, "atlas")

	if r.EntryCount != 4 {
		t.Errorf("Expected 4 atlas entries (child included), got %d", r.EntryCount)
	}
	if !almost(r.TotalHours, 25) {
		t.Errorf("Expected 25 filtered hours, got %.1f", r.TotalHours)
	}
	if r.Filter != "atlas" {
		t.Errorf("Expected filter echoed in the result, got %q", r.Filter)
	}
}

func TestComputeDataset_OvertimeDays(t *testing.T) {
	ds := teamDataset()

	r := metrics.ComputeDataset(ds, []tracking.Month{"2025-06"}, "")

	// Ada's June 2: 6+3 = 9h over the 8h line. Everyone else at or below.
	if r.OvertimeDays != 1 {
		t.Errorf("Expected 1 overtime person-day, got %d", r.OvertimeDays)
	}
}

func TestComputeDataset_BusFactorRisk(t *testing.T) {
	// GIVEN: One project carried entirely by one person, one shared,
	// one too small to count
	projects := []tracking.Project{
		{Code: "solo", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		{Code: "shared", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		{Code: "tiny", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
	}
	members := []tracking.TeamMember{
		{ID: "m-01", Name: "Ada", Role: tracking.RoleEngineer},
		{ID: "m-02", Name: "Grace", Role: tracking.RoleEngineer},
	}
	entries := []tracking.TimeEntry{
		entry("Ada", "solo", day(2025, time.June, 2), 8, ""),
		entry("Ada", "solo", day(2025, time.June, 3), 8, ""),
		entry("Ada", "shared", day(2025, time.June, 4), 8, ""),
		entry("Grace", "shared", day(2025, time.June, 4), 8, ""),
		entry("Ada", "tiny", day(2025, time.June, 5), 2, ""),
	}
	ds := tracking.NewDataset(entries, projects, members)

	r := metrics.ComputeDataset(ds, []tracking.Month{"2025-06"}, "")

	// solo and shared clear the 10h bar, tiny does not; solo is the
	// only single-contributor project
	if !almost(r.BusFactorRisk, 0.5) {
		t.Errorf("Expected bus factor risk 0.5, got %.2f", r.BusFactorRisk)
	}
}

func TestComputeDataset_EmptyPeriodIsAllZero(t *testing.T) {
	ds := teamDataset()

	r := metrics.ComputeDataset(ds, []tracking.Month{"2030-01"}, "")

	if r.EntryCount != 0 {
		t.Fatalf("Expected no entries, got %d", r.EntryCount)
	}
	if r.TotalHours != 0 || r.UtilizationPct != 0 || r.ActiveEngineers != 0 ||
		r.FocusScore != 0 || r.BusFactorRisk != 0 || r.OvertimeDays != 0 {
		t.Error("Expected every figure zero for an empty period")
	}
	if len(r.Months) != 1 || r.Months[0] != "2030-01" {
		t.Errorf("Expected the requested window echoed, got %v", r.Months)
	}
}

// =============================================================================
// BATCH COMPUTATION
// =============================================================================

func TestComputeBatchDataset_MatchesSingleMonthResults(t *testing.T) {
	// GIVEN: Months computed individually and as a batch
	ds := teamDataset()
	months := []tracking.Month{"2025-05", "2025-06"}

	batch := metrics.ComputeBatchDataset(ds, months, "")
	if len(batch) != len(months) {
		t.Fatalf("Expected %d batch results, got %d", len(months), len(batch))
	}

	// THEN: Every batch element equals the single-month computation
	for i, m := range months {
		single := metrics.ComputeDataset(ds, []tracking.Month{m}, "")
		if batch[i].EntryCount != single.EntryCount {
			t.Errorf("%s: entry count %d != %d", m, batch[i].EntryCount, single.EntryCount)
		}
		if !almost(batch[i].TotalHours, single.TotalHours) {
			t.Errorf("%s: total hours %.2f != %.2f", m, batch[i].TotalHours, single.TotalHours)
		}
		if !almost(batch[i].UtilizationPct, single.UtilizationPct) {
			t.Errorf("%s: utilization %.2f != %.2f", m, batch[i].UtilizationPct, single.UtilizationPct)
		}
		if !almost(batch[i].CapacityHours, single.CapacityHours) {
			t.Errorf("%s: capacity %.2f != %.2f", m, batch[i].CapacityHours, single.CapacityHours)
		}
	}
}

func TestComputeBatchDataset_IncludesEmptyMonths(t *testing.T) {
	ds := teamDataset()

	batch := metrics.ComputeBatchDataset(ds, []tracking.Month{"2025-06", "2025-08"}, "")

	if len(batch) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(batch))
	}
	if batch[1].EntryCount != 0 || batch[1].TotalHours != 0 {
		t.Error("Expected the empty month to yield a zero record, not be dropped")
	}
}

// =============================================================================
// ENGINE OVER A STORE
// =============================================================================

func TestEngine_ComputeMonthThroughStore(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ds := teamDataset()
	if err := mem.SaveProjects(ctx, ds.Projects); err != nil {
		t.Fatalf("Failed to save projects: %v", err)
	}
	if err := mem.SaveMembers(ctx, ds.Members); err != nil {
		t.Fatalf("Failed to save members: %v", err)
	}
	if err := mem.SaveEntries(ctx, ds.Entries); err != nil {
		t.Fatalf("Failed to save entries: %v", err)
	}
	if err := mem.SaveCapacity(ctx, ds.Capacity); err != nil {
		t.Fatalf("Failed to save capacity: %v", err)
	}

	engine := metrics.NewEngine(mem)
	r, err := engine.ComputeMonth(ctx, "2025-06", "")
	if err != nil {
		t.Fatalf("Failed to compute month: %v", err)
	}

	pure := metrics.ComputeDataset(ds, []tracking.Month{"2025-06"}, "")
	if r.EntryCount != pure.EntryCount || !almost(r.TotalHours, pure.TotalHours) {
		t.Errorf("Store-backed result diverged from the pure computation: %+v vs %+v", r, pure)
	}
}

// =============================================================================
// RATIO CONVENTIONS
// =============================================================================

func TestRatio_DenominatorZeroConvention(t *testing.T) {
	if got := metrics.Ratio(decimal.NewFromInt(5), decimal.Zero); got != 0 {
		t.Errorf("Expected 0 for a zero denominator, got %f", got)
	}
	if got := metrics.Ratio(decimal.NewFromInt(5), decimal.NewFromInt(-2)); got != 0 {
		t.Errorf("Expected 0 for a negative denominator, got %f", got)
	}
	if got := metrics.Pct(decimal.NewFromInt(1), decimal.NewFromInt(4)); !almost(got, 25) {
		t.Errorf("Expected 25%%, got %f", got)
	}
}

func TestIsMeetingTask(t *testing.T) {
	if !metrics.IsMeetingTask("Weekly MEETING with ops") {
		t.Error("Expected case-insensitive match")
	}
	if metrics.IsMeetingTask("code review") {
		t.Error("Expected no match without the keyword")
	}
}
