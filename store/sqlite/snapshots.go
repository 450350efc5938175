package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/resource-insights/history"
	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// SNAPSHOT STORE (history.SnapshotStore / history.TxSnapshotStore)
// =============================================================================

// querier is the subset of *sql.DB and *sql.Tx the snapshot methods need,
// so the same code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AnomalySnapshot returns the snapshot for a key, nil if none exists.
func (s *Store) AnomalySnapshot(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (*history.AnomalySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return anomalySnapshot(ctx, s.db, month, filter)
}

func anomalySnapshot(ctx context.Context, q querier, month tracking.Month, filter tracking.ProjectCode) (*history.AnomalySnapshot, error) {
	var blob, computedAt string
	err := q.QueryRowContext(ctx,
		"SELECT findings_json, computed_at FROM anomaly_snapshots WHERE month = ? AND filter = ?",
		string(month), string(filter),
	).Scan(&blob, &computedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := history.AnomalySnapshot{Month: month, Filter: filter}
	if err := json.Unmarshal([]byte(blob), &snap.Findings); err != nil {
		return nil, fmt.Errorf("snapshot %s/%s: bad findings json: %w", month, filter, err)
	}
	snap.ComputedAt, _ = time.Parse(time.RFC3339, computedAt)
	return &snap, nil
}

// AnomalySnapshotsBefore returns every snapshot for the same filter with a
// strictly earlier month, sorted ascending by month.
func (s *Store) AnomalySnapshotsBefore(ctx context.Context, filter tracking.ProjectCode, month tracking.Month) ([]history.AnomalySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return anomalySnapshotsBefore(ctx, s.db, filter, month)
}

func anomalySnapshotsBefore(ctx context.Context, q querier, filter tracking.ProjectCode, month tracking.Month) ([]history.AnomalySnapshot, error) {
	// Month strings sort chronologically, so ORDER BY month is correct.
	query := `
		SELECT month, findings_json, computed_at
		FROM anomaly_snapshots
		WHERE filter = ? AND month < ?
		ORDER BY month ASC
	`

	rows, err := q.QueryContext(ctx, query, string(filter), string(month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []history.AnomalySnapshot
	for rows.Next() {
		var m, blob, computedAt string
		if err := rows.Scan(&m, &blob, &computedAt); err != nil {
			return nil, err
		}
		snap := history.AnomalySnapshot{Month: tracking.Month(m), Filter: filter}
		if err := json.Unmarshal([]byte(blob), &snap.Findings); err != nil {
			return nil, fmt.Errorf("snapshot %s/%s: bad findings json: %w", m, filter, err)
		}
		snap.ComputedAt, _ = time.Parse(time.RFC3339, computedAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// UpsertAnomalySnapshot inserts or replaces by (month, filter).
func (s *Store) UpsertAnomalySnapshot(ctx context.Context, snap history.AnomalySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertAnomalySnapshot(ctx, s.db, snap)
}

func upsertAnomalySnapshot(ctx context.Context, q querier, snap history.AnomalySnapshot) error {
	blob, err := json.Marshal(snap.Findings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO anomaly_snapshots (month, filter, findings_json, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(month, filter) DO UPDATE SET
			findings_json = excluded.findings_json,
			computed_at = excluded.computed_at
	`

	_, err = q.ExecContext(ctx, query,
		string(snap.Month), string(snap.Filter), string(blob),
		snap.ComputedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// MetricSnapshot returns the metric snapshot for a key, nil if none.
func (s *Store) MetricSnapshot(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (*history.MetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return metricSnapshot(ctx, s.db, month, filter)
}

func metricSnapshot(ctx context.Context, q querier, month tracking.Month, filter tracking.ProjectCode) (*history.MetricSnapshot, error) {
	var blob, computedAt string
	err := q.QueryRowContext(ctx,
		"SELECT result_json, computed_at FROM metric_snapshots WHERE month = ? AND filter = ?",
		string(month), string(filter),
	).Scan(&blob, &computedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := history.MetricSnapshot{Month: month, Filter: filter}
	if err := json.Unmarshal([]byte(blob), &snap.Result); err != nil {
		return nil, fmt.Errorf("metric snapshot %s/%s: bad result json: %w", month, filter, err)
	}
	snap.ComputedAt, _ = time.Parse(time.RFC3339, computedAt)
	return &snap, nil
}

// UpsertMetricSnapshot inserts or replaces by (month, filter).
func (s *Store) UpsertMetricSnapshot(ctx context.Context, snap history.MetricSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertMetricSnapshot(ctx, s.db, snap)
}

func upsertMetricSnapshot(ctx context.Context, q querier, snap history.MetricSnapshot) error {
	blob, err := json.Marshal(snap.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO metric_snapshots (month, filter, result_json, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(month, filter) DO UPDATE SET
			result_json = excluded.result_json,
			computed_at = excluded.computed_at
	`

	_, err = q.ExecContext(ctx, query,
		string(snap.Month), string(snap.Filter), string(blob),
		snap.ComputedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteSnapshotsNotIn prunes snapshots of both kinds whose month is not in
// the given set of known months.
func (s *Store) DeleteSnapshotsNotIn(ctx context.Context, months []tracking.Month) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSnapshotsNotIn(ctx, s.db, months)
}

func deleteSnapshotsNotIn(ctx context.Context, q querier, months []tracking.Month) error {
	if len(months) == 0 {
		if _, err := q.ExecContext(ctx, "DELETE FROM anomaly_snapshots"); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, "DELETE FROM metric_snapshots")
		return err
	}

	placeholders := strings.Repeat("?,", len(months))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(months))
	for i, m := range months {
		args[i] = string(m)
	}

	if _, err := q.ExecContext(ctx,
		"DELETE FROM anomaly_snapshots WHERE month NOT IN ("+placeholders+")", args...,
	); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		"DELETE FROM metric_snapshots WHERE month NOT IN ("+placeholders+")", args...,
	)
	return err
}

// WithSnapshotTx executes fn within a database transaction. An error from
// fn rolls everything back.
func (s *Store) WithSnapshotTx(ctx context.Context, fn func(history.SnapshotStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txSnapshots{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txSnapshots routes snapshot calls through an open transaction. The parent
// store's lock is already held for the duration of the transaction.
type txSnapshots struct {
	tx *sql.Tx
}

func (ts *txSnapshots) AnomalySnapshot(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (*history.AnomalySnapshot, error) {
	return anomalySnapshot(ctx, ts.tx, month, filter)
}

func (ts *txSnapshots) AnomalySnapshotsBefore(ctx context.Context, filter tracking.ProjectCode, month tracking.Month) ([]history.AnomalySnapshot, error) {
	return anomalySnapshotsBefore(ctx, ts.tx, filter, month)
}

func (ts *txSnapshots) UpsertAnomalySnapshot(ctx context.Context, snap history.AnomalySnapshot) error {
	return upsertAnomalySnapshot(ctx, ts.tx, snap)
}

func (ts *txSnapshots) MetricSnapshot(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (*history.MetricSnapshot, error) {
	return metricSnapshot(ctx, ts.tx, month, filter)
}

func (ts *txSnapshots) UpsertMetricSnapshot(ctx context.Context, snap history.MetricSnapshot) error {
	return upsertMetricSnapshot(ctx, ts.tx, snap)
}

func (ts *txSnapshots) DeleteSnapshotsNotIn(ctx context.Context, months []tracking.Month) error {
	return deleteSnapshotsNotIn(ctx, ts.tx, months)
}
