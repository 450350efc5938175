/*
Package history persists per-period snapshots and diffs them across months.

PURPOSE:
  The only write-side component in the analytics core. Refresh computes the
  live findings and metrics for a (month, filter) key and upserts them as
  snapshots; Enrich replays prior snapshots to tag each current finding as
  new, recurring (with a month count), or resolved.

RECURRENCE WALK:
  Prior snapshots are walked in reverse chronological order starting from
  the immediate predecessor. Each prior snapshot that shares an identity
  with the current one adds 1 to that identity's recurrence counter. The
  walk stops entirely the first time a prior snapshot shares NO identities
  with the current one: a total gap breaks the streak even if identities
  reappear further back. This is a deliberate business rule, not an
  implementation accident. Do not "fix" it.

UPSERT CONTRACT:
  Snapshots are keyed by (month, filter) and upserted, never duplicated.
  Snapshots for months that no longer have any entries are pruned during
  refresh. Both the anomaly and the metric snapshot writes of one refresh
  are applied in a single store transaction when the store supports it.

CONCURRENCY:
  Concurrent refreshes for the same key are last-writer-wins;
  callers needing strict ordering serialize refreshes themselves.

SEE ALSO:
  - anomaly/finding.go: Identity derivation
  - store/sqlite/snapshots.go: Persistent implementation
*/
package history

import (
	"context"
	"time"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/metrics"
	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// SNAPSHOT SHAPES
// =============================================================================

// StoredFinding is the persisted shape of a finding: comparison metadata is
// dropped, the stable identity is kept.
type StoredFinding struct {
	Rule     anomaly.RuleID       `json:"rule"`
	Severity anomaly.Severity     `json:"severity"`
	Type     string               `json:"type"`
	Title    string               `json:"title"`
	Detail   string               `json:"detail"`
	Person   string               `json:"person,omitempty"`
	Project  tracking.ProjectCode `json:"project,omitempty"`
	Identity string               `json:"identity"`
}

// Strip converts a live finding to its persisted shape.
func Strip(f anomaly.Finding) StoredFinding {
	return StoredFinding{
		Rule:     f.Rule,
		Severity: f.Severity,
		Type:     f.Type,
		Title:    f.Title,
		Detail:   f.Detail,
		Person:   f.Person,
		Project:  f.Project,
		Identity: f.Identity(),
	}
}

// AnomalySnapshot is one persisted finding list per (month, filter) key.
type AnomalySnapshot struct {
	Month      tracking.Month       `json:"month"`
	Filter     tracking.ProjectCode `json:"filter,omitempty"`
	Findings   []StoredFinding      `json:"findings"`
	ComputedAt time.Time            `json:"computedAt"`
}

// MetricSnapshot is one persisted metrics record per (month, filter) key.
type MetricSnapshot struct {
	Month      tracking.Month       `json:"month"`
	Filter     tracking.ProjectCode `json:"filter,omitempty"`
	Result     metrics.Result       `json:"result"`
	ComputedAt time.Time            `json:"computedAt"`
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

type SnapshotStore interface {
	// AnomalySnapshot returns the snapshot for a key, nil if none exists.
	AnomalySnapshot(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (*AnomalySnapshot, error)

	// AnomalySnapshotsBefore returns every snapshot for the same filter
	// with a strictly earlier month, sorted ascending by month.
	AnomalySnapshotsBefore(ctx context.Context, filter tracking.ProjectCode, month tracking.Month) ([]AnomalySnapshot, error)

	// UpsertAnomalySnapshot inserts or replaces by (month, filter).
	UpsertAnomalySnapshot(ctx context.Context, snap AnomalySnapshot) error

	// MetricSnapshot returns the metric snapshot for a key, nil if none.
	MetricSnapshot(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (*MetricSnapshot, error)

	// UpsertMetricSnapshot inserts or replaces by (month, filter).
	UpsertMetricSnapshot(ctx context.Context, snap MetricSnapshot) error

	// DeleteSnapshotsNotIn prunes snapshots of both kinds whose month is
	// not in the given set of known months.
	DeleteSnapshotsNotIn(ctx context.Context, months []tracking.Month) error
}

// TxSnapshotStore adds atomic multi-write support. Refresh uses it when
// available so one refresh's writes land all-or-nothing.
type TxSnapshotStore interface {
	SnapshotStore

	// WithSnapshotTx executes fn within a transaction. Error rolls back.
	WithSnapshotTx(ctx context.Context, fn func(SnapshotStore) error) error
}

// =============================================================================
// ENRICHED FINDING
// =============================================================================

type Status string

const (
	StatusNew       Status = "new"
	StatusRecurring Status = "recurring"
	StatusResolved  Status = "resolved"
)

type EnrichedFinding struct {
	StoredFinding
	Status          Status `json:"status"`
	RecurringMonths int    `json:"recurringMonths,omitempty"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store     tracking.TimesheetStore
	Snapshots SnapshotStore
	Config    anomaly.OverrideStore

	// Now is swappable for tests. Defaults to time.Now.
	Now func() time.Time
}

func NewService(store tracking.TimesheetStore, snapshots SnapshotStore, config anomaly.OverrideStore) *Service {
	return &Service{Store: store, Snapshots: snapshots, Config: config, Now: time.Now}
}

// Refresh recomputes findings and metrics for (month, filter), upserts both
// snapshots, and prunes snapshots for months with no remaining entries.
func (s *Service) Refresh(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) error {
	ds, err := tracking.Load(ctx, s.Store)
	if err != nil {
		return err
	}
	ov, err := s.Config.Overrides(ctx)
	if err != nil {
		return err
	}

	findings := anomaly.EvaluateDataset(ds, ov, month, filter)
	stored := make([]StoredFinding, len(findings))
	for i, f := range findings {
		stored[i] = Strip(f)
	}
	now := s.Now()

	anomalySnap := AnomalySnapshot{Month: month, Filter: filter, Findings: stored, ComputedAt: now}
	metricSnap := MetricSnapshot{
		Month:      month,
		Filter:     filter,
		Result:     metrics.ComputeDataset(ds, []tracking.Month{month}, filter),
		ComputedAt: now,
	}
	known := ds.Months()

	apply := func(st SnapshotStore) error {
		if err := st.UpsertAnomalySnapshot(ctx, anomalySnap); err != nil {
			return err
		}
		if err := st.UpsertMetricSnapshot(ctx, metricSnap); err != nil {
			return err
		}
		return st.DeleteSnapshotsNotIn(ctx, known)
	}

	if tx, ok := s.Snapshots.(TxSnapshotStore); ok {
		return tx.WithSnapshotTx(ctx, apply)
	}
	return apply(s.Snapshots)
}

// Enrich loads the (month, filter) snapshot, falling back to a live
// computation with everything marked new, and tags each finding with its
// cross-period status. Findings whose rule is currently disabled are
// excluded even when a stale snapshot still contains them.
func (s *Service) Enrich(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) ([]EnrichedFinding, error) {
	ov, err := s.Config.Overrides(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := s.Snapshots.AnomalySnapshot(ctx, month, filter)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		// No snapshot yet: compute live, everything is new.
		ds, err := tracking.Load(ctx, s.Store)
		if err != nil {
			return nil, err
		}
		live := anomaly.EvaluateDataset(ds, ov, month, filter)
		out := make([]EnrichedFinding, 0, len(live))
		for _, f := range live {
			out = append(out, EnrichedFinding{StoredFinding: Strip(f), Status: StatusNew})
		}
		return out, nil
	}

	priors, err := s.Snapshots.AnomalySnapshotsBefore(ctx, filter, month)
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(snap.Findings))
	for _, f := range snap.Findings {
		current[f.Identity] = true
	}

	// Backward walk from the immediate predecessor. A prior snapshot
	// sharing no identities at all ends the walk.
	counts := make(map[string]int)
	for i := len(priors) - 1; i >= 0; i-- {
		overlap := false
		for _, f := range priors[i].Findings {
			if current[f.Identity] {
				counts[f.Identity]++
				overlap = true
			}
		}
		if !overlap {
			break
		}
	}

	out := make([]EnrichedFinding, 0, len(snap.Findings))
	for _, f := range snap.Findings {
		if !ov.Enabled(f.Rule) {
			continue
		}
		ef := EnrichedFinding{StoredFinding: f, Status: StatusNew}
		if counts[f.Identity] > 0 {
			ef.Status = StatusRecurring
			ef.RecurringMonths = counts[f.Identity]
		}
		out = append(out, ef)
	}

	// Resolved: present in the immediate predecessor, absent now.
	if len(priors) > 0 {
		prev := priors[len(priors)-1]
		for _, f := range prev.Findings {
			if current[f.Identity] || !ov.Enabled(f.Rule) {
				continue
			}
			out = append(out, EnrichedFinding{StoredFinding: f, Status: StatusResolved})
		}
	}
	return out, nil
}
