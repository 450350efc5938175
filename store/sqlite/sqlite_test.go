package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/history"
	"github.com/warp/resource-insights/metrics"
	"github.com/warp/resource-insights/store/sqlite"
	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func metricsResult(totalHours float64, engineers int) metrics.Result {
	return metrics.Result{
		Months:          []tracking.Month{"2025-06"},
		TotalHours:      totalHours,
		ActiveEngineers: engineers,
	}
}

func sampleEntries() []tracking.TimeEntry {
	return []tracking.TimeEntry{
		{
			ID:       "e-001",
			Date:     day(2025, time.June, 2),
			Person:   "Ada",
			Project:  "atlas.fw",
			Activity: "design",
			Hours:    decimal.RequireFromString("7.25"),
			Task:     "connector layout",
			TaskID:   "T-100",
			Done:     true,
		},
		{
			ID:      "e-002",
			Date:    day(2025, time.June, 3),
			Person:  "Grace",
			Project: "legacy",
			Hours:   decimal.RequireFromString("0.5"),
		},
	}
}

// =============================================================================
// TIMESHEET ROUND-TRIPS
// =============================================================================

func TestEntries_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveEntries(ctx, sampleEntries()))

	got, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Rows come back ordered by date
	first := got[0]
	assert.Equal(t, tracking.EntryID("e-001"), first.ID)
	assert.Equal(t, "Ada", first.Person)
	assert.Equal(t, tracking.ProjectCode("atlas.fw"), first.Project)
	assert.Equal(t, "design", first.Activity)
	assert.Equal(t, "connector layout", first.Task)
	assert.Equal(t, "T-100", first.TaskID)
	assert.True(t, first.Done)
	assert.True(t, first.Date.Equal(day(2025, time.June, 2)))

	// Fractional hours survive the TEXT column exactly
	assert.True(t, first.Hours.Equal(decimal.RequireFromString("7.25")),
		"expected 7.25 hours, got %s", first.Hours)
	assert.True(t, got[1].Hours.Equal(decimal.RequireFromString("0.5")),
		"expected 0.5 hours, got %s", got[1].Hours)
}

func TestEntries_UpsertByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	entries := sampleEntries()

	require.NoError(t, store.SaveEntries(ctx, entries))

	// WHEN: The same entry IDs are imported again with changed hours
	entries[0].Hours = decimal.NewFromInt(4)
	require.NoError(t, store.SaveEntries(ctx, entries))

	got, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2, "re-import must not duplicate rows")
	assert.True(t, got[0].Hours.Equal(decimal.NewFromInt(4)))
}

func TestProjectsMembersBudgets_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveProjects(ctx, []tracking.Project{
		{Code: "atlas", Name: "Atlas", Type: tracking.ProjectNPD, Class: tracking.WorkPlanned},
		{Code: "hotline", Name: "Hotline", Type: tracking.ProjectSustaining, Class: tracking.WorkFirefighting},
	}))
	require.NoError(t, store.SaveMembers(ctx, []tracking.TeamMember{
		{ID: "m-01", Name: "Ada", Role: tracking.RoleEngineer, MonthlyCapacity: decimal.NewFromInt(120)},
		{ID: "m-02", Name: "Sam", Role: tracking.RoleLabTechnician},
	}))
	require.NoError(t, store.SaveAllocations(ctx, []tracking.Allocation{
		{Month: "2025-06", Project: "atlas", Person: "Ada", Percent: 80, Hours: decimal.NewFromInt(96)},
	}))
	require.NoError(t, store.SaveBudgets(ctx, []tracking.ProjectBudget{
		{Month: "2025-06", Project: "atlas", Hours: decimal.NewFromInt(200)},
	}))

	projects, err := store.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, tracking.WorkFirefighting, projects[1].Class)

	members, err := store.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.True(t, members[0].MonthlyCapacity.Equal(decimal.NewFromInt(120)))
	assert.True(t, members[1].MonthlyCapacity.IsZero(), "absent capacity must read back as zero")

	allocations, err := store.Allocations(ctx)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, 80.0, allocations[0].Percent)

	budgets, err := store.Budgets(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.True(t, budgets[0].Hours.Equal(decimal.NewFromInt(200)))
}

func TestCapacity_SingletonUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Fresh store: empty configuration, not an error
	cfg, err := store.Capacity(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.DefaultMonthlyHours.IsZero())

	require.NoError(t, store.SaveCapacity(ctx, tracking.CapacityConfig{
		DefaultMonthlyHours: decimal.NewFromInt(150),
	}))
	require.NoError(t, store.SaveCapacity(ctx, tracking.CapacityConfig{
		DefaultMonthlyHours: decimal.NewFromInt(160),
	}))

	cfg, err = store.Capacity(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.DefaultMonthlyHours.Equal(decimal.NewFromInt(160)),
		"expected the second save to win, got %s", cfg.DefaultMonthlyHours)
}

func TestResetTimesheet_KeepsConfigurationAndSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveEntries(ctx, sampleEntries()))
	require.NoError(t, store.SaveOverrides(ctx, anomaly.Overrides{
		anomaly.RuleOvertime: {Severity: anomaly.SeverityAlert},
	}))
	require.NoError(t, store.UpsertAnomalySnapshot(ctx, history.AnomalySnapshot{
		Month: "2025-06", ComputedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.ResetTimesheet(ctx))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// User configuration and history survive a timesheet reset
	ov, err := store.Overrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, anomaly.SeverityAlert, ov.SeverityFor(anomaly.RuleOvertime))

	snap, err := store.AnomalySnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

// =============================================================================
// CONFIGURATION SINGLETONS
// =============================================================================

func TestOverrides_RoundTripAndClamping(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Fresh store: empty table
	ov, err := store.Overrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, ov)

	off := false
	require.NoError(t, store.SaveOverrides(ctx, anomaly.Overrides{
		anomaly.RuleOvertime: {
			Enabled: &off,
			Params:  map[string]float64{"dailyHours": 10},
		},
	}))

	ov, err = store.Overrides(ctx)
	require.NoError(t, err)
	assert.False(t, ov.Enabled(anomaly.RuleOvertime))
	assert.Equal(t, 10.0, ov.ParamValue(anomaly.RuleOvertime, "dailyHours"))
}

func TestNarrativeConfig_DefaultsUntilSaved(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cfg, err := store.NarrativeConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.NameIndividuals, "fresh store must serve the defaults")
	assert.Equal(t, 3, cfg.MaxObs())

	cfg.NameIndividuals = false
	cfg.Opening = "Monthly report."
	require.NoError(t, store.SaveNarrativeConfig(ctx, cfg))

	got, err := store.NarrativeConfig(ctx)
	require.NoError(t, err)
	assert.False(t, got.NameIndividuals)
	assert.Equal(t, "Monthly report.", got.Opening)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func sampleSnapshot(month tracking.Month, filter tracking.ProjectCode) history.AnomalySnapshot {
	return history.AnomalySnapshot{
		Month:  month,
		Filter: filter,
		Findings: []history.StoredFinding{
			{
				Rule:     anomaly.RuleOvertime,
				Severity: anomaly.SeverityWarning,
				Type:     "workload",
				Title:    "Sustained overtime",
				Detail:   "Ada logged more than 8.0h on 4 days in June 2025.",
				Person:   "Ada",
				Identity: "overtime::Ada",
			},
		},
		ComputedAt: time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestAnomalySnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-06", "")))

	got, err := store.AnomalySnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "overtime::Ada", got.Findings[0].Identity)
	assert.Equal(t, anomaly.SeverityWarning, got.Findings[0].Severity)
	assert.True(t, got.ComputedAt.Equal(sampleSnapshot("2025-06", "").ComputedAt))

	// Missing keys are nil, not an error
	missing, err := store.AnomalySnapshot(ctx, "2025-07", "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAnomalySnapshot_UpsertReplacesByKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-06", "")))

	// WHEN: The same (month, filter) key is written with no findings
	require.NoError(t, store.UpsertAnomalySnapshot(ctx, history.AnomalySnapshot{
		Month: "2025-06", ComputedAt: time.Now().UTC(),
	}))

	got, err := store.AnomalySnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Findings, "upsert must replace, not accumulate")
}

func TestAnomalySnapshot_FilterIsPartOfTheKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-06", "")))
	require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-06", "atlas")))

	teamWide, err := store.AnomalySnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	filtered, err := store.AnomalySnapshot(ctx, "2025-06", "atlas")
	require.NoError(t, err)

	require.NotNil(t, teamWide)
	require.NotNil(t, filtered)
	assert.Equal(t, tracking.ProjectCode(""), teamWide.Filter)
	assert.Equal(t, tracking.ProjectCode("atlas"), filtered.Filter)
}

func TestAnomalySnapshotsBefore_StrictlyEarlierAscending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, m := range []tracking.Month{"2025-05", "2025-03", "2025-06", "2025-04"} {
		require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot(m, "")))
	}
	// A filtered snapshot must not leak into the team-wide history
	require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-05", "atlas")))

	priors, err := store.AnomalySnapshotsBefore(ctx, "", "2025-06")
	require.NoError(t, err)
	require.Len(t, priors, 3)

	want := []tracking.Month{"2025-03", "2025-04", "2025-05"}
	for i, m := range want {
		assert.Equal(t, m, priors[i].Month)
	}
}

func TestMetricSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertMetricSnapshot(ctx, history.MetricSnapshot{
		Month:      "2025-06",
		Result:     metricsResult(142.5, 2),
		ComputedAt: time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC),
	}))

	got, err := store.MetricSnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 142.5, got.Result.TotalHours)
	assert.Equal(t, 2, got.Result.ActiveEngineers)

	missing, err := store.MetricSnapshot(ctx, "2025-08", "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteSnapshotsNotIn_PrunesBothKinds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-05", "")))
	require.NoError(t, store.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-06", "")))
	require.NoError(t, store.UpsertMetricSnapshot(ctx, history.MetricSnapshot{
		Month: "2025-05", Result: metricsResult(10, 1), ComputedAt: time.Now().UTC(),
	}))

	// WHEN: Only June remains known
	require.NoError(t, store.DeleteSnapshotsNotIn(ctx, []tracking.Month{"2025-06"}))

	gone, err := store.AnomalySnapshot(ctx, "2025-05", "")
	require.NoError(t, err)
	assert.Nil(t, gone)

	goneMetric, err := store.MetricSnapshot(ctx, "2025-05", "")
	require.NoError(t, err)
	assert.Nil(t, goneMetric)

	kept, err := store.AnomalySnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithSnapshotTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.WithSnapshotTx(ctx, func(st history.SnapshotStore) error {
		if err := st.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-06", "")); err != nil {
			return err
		}
		return st.UpsertMetricSnapshot(ctx, history.MetricSnapshot{
			Month: "2025-06", Result: metricsResult(140, 2), ComputedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	snap, err := store.AnomalySnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestWithSnapshotTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	boom := errors.New("boom")

	err := store.WithSnapshotTx(ctx, func(st history.SnapshotStore) error {
		if err := st.UpsertAnomalySnapshot(ctx, sampleSnapshot("2025-06", "")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: The write inside the failed transaction never landed
	snap, err := store.AnomalySnapshot(ctx, "2025-06", "")
	require.NoError(t, err)
	assert.Nil(t, snap)
}
