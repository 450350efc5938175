// Package store provides the in-memory store implementation.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/history"
	"github.com/warp/resource-insights/narrative"
	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every store interface in memory. Reads return copies
// so callers can never alias internal state.
type Memory struct {
	mu sync.RWMutex

	entries     []tracking.TimeEntry
	projects    []tracking.Project
	members     []tracking.TeamMember
	allocations []tracking.Allocation
	budgets     []tracking.ProjectBudget
	capacity    tracking.CapacityConfig

	overrides anomaly.Overrides
	narrative *narrative.Config

	anomalySnaps map[snapKey]history.AnomalySnapshot
	metricSnaps  map[snapKey]history.MetricSnapshot
}

type snapKey struct {
	Month  tracking.Month
	Filter tracking.ProjectCode
}

func NewMemory() *Memory {
	return &Memory{
		overrides:    anomaly.Overrides{},
		anomalySnaps: make(map[snapKey]history.AnomalySnapshot),
		metricSnaps:  make(map[snapKey]history.MetricSnapshot),
	}
}

// =============================================================================
// TIMESHEET READS
// =============================================================================

func (m *Memory) Entries(_ context.Context) ([]tracking.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]tracking.TimeEntry(nil), m.entries...), nil
}

func (m *Memory) Projects(_ context.Context) ([]tracking.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]tracking.Project(nil), m.projects...), nil
}

func (m *Memory) Members(_ context.Context) ([]tracking.TeamMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]tracking.TeamMember(nil), m.members...), nil
}

func (m *Memory) Allocations(_ context.Context) ([]tracking.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]tracking.Allocation(nil), m.allocations...), nil
}

func (m *Memory) Budgets(_ context.Context) ([]tracking.ProjectBudget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]tracking.ProjectBudget(nil), m.budgets...), nil
}

func (m *Memory) Capacity(_ context.Context) (tracking.CapacityConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capacity, nil
}

// =============================================================================
// IMPORT WRITES
// =============================================================================

func (m *Memory) SaveEntries(_ context.Context, entries []tracking.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *Memory) SaveProjects(_ context.Context, projects []tracking.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = append(m.projects, projects...)
	return nil
}

func (m *Memory) SaveMembers(_ context.Context, members []tracking.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = append(m.members, members...)
	return nil
}

func (m *Memory) SaveAllocations(_ context.Context, allocations []tracking.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations = append(m.allocations, allocations...)
	return nil
}

func (m *Memory) SaveBudgets(_ context.Context, budgets []tracking.ProjectBudget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets = append(m.budgets, budgets...)
	return nil
}

func (m *Memory) SaveCapacity(_ context.Context, cfg tracking.CapacityConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = cfg
	return nil
}

func (m *Memory) ResetTimesheet(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.projects = nil
	m.members = nil
	m.allocations = nil
	m.budgets = nil
	m.capacity = tracking.CapacityConfig{}
	return nil
}

// =============================================================================
// CONFIG SINGLETONS
// =============================================================================

func (m *Memory) Overrides(_ context.Context) (anomaly.Overrides, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(anomaly.Overrides, len(m.overrides))
	for id, ov := range m.overrides {
		out[id] = ov
	}
	return out, nil
}

func (m *Memory) SaveOverrides(_ context.Context, ov anomaly.Overrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = ov
	return nil
}

func (m *Memory) NarrativeConfig(_ context.Context) (narrative.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.narrative == nil {
		return narrative.DefaultConfig(), nil
	}
	return *m.narrative, nil
}

func (m *Memory) SaveNarrativeConfig(_ context.Context, cfg narrative.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.narrative = &cfg
	return nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) AnomalySnapshot(_ context.Context, month tracking.Month, filter tracking.ProjectCode) (*history.AnomalySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.anomalySnaps[snapKey{month, filter}]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *Memory) AnomalySnapshotsBefore(_ context.Context, filter tracking.ProjectCode, month tracking.Month) ([]history.AnomalySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []history.AnomalySnapshot
	for key, snap := range m.anomalySnaps {
		if key.Filter == filter && key.Month.Before(month) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (m *Memory) UpsertAnomalySnapshot(_ context.Context, snap history.AnomalySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalySnaps[snapKey{snap.Month, snap.Filter}] = snap
	return nil
}

func (m *Memory) MetricSnapshot(_ context.Context, month tracking.Month, filter tracking.ProjectCode) (*history.MetricSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.metricSnaps[snapKey{month, filter}]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *Memory) UpsertMetricSnapshot(_ context.Context, snap history.MetricSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metricSnaps[snapKey{snap.Month, snap.Filter}] = snap
	return nil
}

func (m *Memory) DeleteSnapshotsNotIn(_ context.Context, months []tracking.Month) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := make(map[tracking.Month]bool, len(months))
	for _, month := range months {
		keep[month] = true
	}
	for key := range m.anomalySnaps {
		if !keep[key.Month] {
			delete(m.anomalySnaps, key)
		}
	}
	for key := range m.metricSnaps {
		if !keep[key.Month] {
			delete(m.metricSnaps, key)
		}
	}
	return nil
}

// WithSnapshotTx applies fn directly. The memory store cannot roll
// back; the sqlite store provides real transactions.
func (m *Memory) WithSnapshotTx(_ context.Context, fn func(history.SnapshotStore) error) error {
	return fn(m)
}
