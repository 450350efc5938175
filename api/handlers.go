/*
handlers.go - HTTP API handlers for the timesheet insight engine

PURPOSE:
  Exposes the analytics core via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Metrics:
    GET    /api/metrics                     Single record for a window
    GET    /api/metrics/batch               Per-month records for a range
    GET    /api/metrics/snapshot            Persisted metric snapshot

  Anomalies:
    GET    /api/anomalies                   Live findings, severity-sorted
    GET    /api/anomalies/enriched          Findings with cross-period status
    POST   /api/anomalies/refresh           Recompute + persist snapshots

  Narrative:
    GET    /api/narrative                   Generated summary paragraph

  Configuration:
    GET    /api/config/rules                Registry + effective settings
    PUT    /api/config/rules                Replace threshold overrides
    GET    /api/config/narrative            Narrative settings
    PUT    /api/config/narrative            Replace narrative settings

  Data:
    POST   /api/import                      Bulk timesheet import
    GET    /api/periods                     Months with data

  Scenarios:
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario

QUERY PARAMETERS:
  month=YYYY-MM   The analysis month (required on most reads)
  filter=CODE     Optional project filter (top-level or child code)
  from/to=YYYY-MM Month range for batch metrics

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/factory"
	"github.com/warp/resource-insights/history"
	"github.com/warp/resource-insights/metrics"
	"github.com/warp/resource-insights/narrative"
	"github.com/warp/resource-insights/tracking"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is everything the API needs from storage. Both the SQLite store
// and the in-memory store satisfy it.
type Backend interface {
	tracking.TimesheetStore
	tracking.ImportStore
	anomaly.OverrideStore
	narrative.ConfigStore
	history.SnapshotStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store Backend

	Metrics    *metrics.Engine
	Anomalies  *anomaly.Engine
	History    *history.Service
	Narratives *narrative.Generator
}

// NewHandler creates a handler with all engines wired to the given backend.
func NewHandler(store Backend) *Handler {
	return &Handler{
		Store:      store,
		Metrics:    metrics.NewEngine(store),
		Anomalies:  anomaly.NewEngine(store, store),
		History:    history.NewService(store, store, store),
		Narratives: narrative.NewGenerator(store, store, store),
	}
}

// =============================================================================
// METRIC HANDLERS
// =============================================================================

// GetMetrics returns one aggregated record. With from/to it aggregates the
// whole window into a single record; otherwise month selects one month.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	filter := filterParam(r)

	months, ok := h.windowParam(w, r)
	if !ok {
		return
	}

	result, err := h.Metrics.Compute(r.Context(), months, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetMetricsBatch returns one record per month over a range.
func (h *Handler) GetMetricsBatch(w http.ResponseWriter, r *http.Request) {
	filter := filterParam(r)

	months, ok := h.windowParam(w, r)
	if !ok {
		return
	}

	results, err := h.Metrics.ComputeBatch(r.Context(), months, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute metrics", err)
		return
	}

	type monthResult struct {
		Month  string         `json:"month"`
		Result metrics.Result `json:"result"`
	}
	out := make([]monthResult, len(results))
	for i, res := range results {
		out[i] = monthResult{Month: months[i].String(), Result: res}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMetricSnapshot returns the persisted metric snapshot for a key.
func (h *Handler) GetMetricSnapshot(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}

	snap, err := h.Store.MetricSnapshot(r.Context(), month, filterParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load snapshot", err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "No snapshot for this period", nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// windowParam resolves the month window: explicit from/to range, a single
// month, or every known month when nothing is given.
func (h *Handler) windowParam(w http.ResponseWriter, r *http.Request) ([]tracking.Month, bool) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	if fromStr != "" || toStr != "" {
		from, err := tracking.ParseMonth(fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from month (use YYYY-MM)", err)
			return nil, false
		}
		to, err := tracking.ParseMonth(toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to month (use YYYY-MM)", err)
			return nil, false
		}
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "Range end precedes start", nil)
			return nil, false
		}
		var months []tracking.Month
		for m := from; !to.Before(m); m = m.Next() {
			months = append(months, m)
		}
		return months, true
	}

	if s := r.URL.Query().Get("month"); s != "" {
		month, err := tracking.ParseMonth(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
			return nil, false
		}
		return []tracking.Month{month}, true
	}

	ds, err := tracking.Load(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load dataset", err)
		return nil, false
	}
	return ds.Months(), true
}

// =============================================================================
// ANOMALY HANDLERS
// =============================================================================

// GetFindings returns the live findings for a period, severity-sorted.
func (h *Handler) GetFindings(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}

	findings, err := h.Anomalies.Evaluate(r.Context(), month, filterParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to evaluate rules", err)
		return
	}

	dtos := make([]FindingDTO, len(findings))
	for i, f := range findings {
		dtos[i] = toFindingDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEnrichedFindings returns findings tagged new/recurring/resolved.
func (h *Handler) GetEnrichedFindings(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}

	enriched, err := h.History.Enrich(r.Context(), month, filterParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to enrich findings", err)
		return
	}

	dtos := make([]EnrichedFindingDTO, len(enriched))
	for i, f := range enriched {
		dtos[i] = toEnrichedDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RefreshFindings recomputes and persists the snapshots for a period.
func (h *Handler) RefreshFindings(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	filter := filterParam(r)

	if err := h.History.Refresh(r.Context(), month, filter); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to refresh snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "refreshed",
		"month":  month.String(),
		"filter": string(filter),
	})
}

// =============================================================================
// NARRATIVE HANDLERS
// =============================================================================

// GetNarrative returns the generated summary for a period.
func (h *Handler) GetNarrative(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}

	result, err := h.Narratives.Generate(r.Context(), month, filterParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate narrative", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// GetRules returns the rule registry with effective settings applied.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	ov, err := h.Store.Overrides(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load overrides", err)
		return
	}

	dtos := make([]RuleDTO, len(anomaly.Registry))
	for i, rule := range anomaly.Registry {
		dtos[i] = toRuleDTO(rule, ov)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutOverrides replaces the threshold override table.
func (h *Handler) PutOverrides(w http.ResponseWriter, r *http.Request) {
	blob, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ov, err := factory.ParseOverrides(blob)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid overrides", err)
		return
	}

	if err := h.Store.SaveOverrides(r.Context(), ov); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save overrides", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// GetNarrativeConfig returns the narrative settings.
func (h *Handler) GetNarrativeConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.NarrativeConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load narrative config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutNarrativeConfig replaces the narrative settings.
func (h *Handler) PutNarrativeConfig(w http.ResponseWriter, r *http.Request) {
	blob, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := factory.ParseNarrativeConfig(blob)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid narrative config", err)
		return
	}

	if err := h.Store.SaveNarrativeConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save narrative config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// =============================================================================
// DATA HANDLERS
// =============================================================================

// Import writes a bulk timesheet payload to the store.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if req.Reset {
		if err := h.Store.ResetTimesheet(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset timesheet", err)
			return
		}
	}

	entries := make([]tracking.TimeEntry, len(req.Entries))
	for i, d := range req.Entries {
		e, err := d.toEntry()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid entry %q", d.ID), err)
			return
		}
		entries[i] = e
	}

	projects := make([]tracking.Project, len(req.Projects))
	for i, d := range req.Projects {
		projects[i] = d.toProject()
	}
	members := make([]tracking.TeamMember, len(req.Members))
	for i, d := range req.Members {
		members[i] = d.toMember()
	}

	allocations := make([]tracking.Allocation, len(req.Allocations))
	for i, d := range req.Allocations {
		allocations[i] = tracking.Allocation{
			Month:   tracking.Month(d.Month),
			Project: tracking.ProjectCode(d.Project),
			Person:  d.Person,
			Percent: d.Percent,
			Hours:   decimal.NewFromFloat(d.Hours),
		}
	}
	budgets := make([]tracking.ProjectBudget, len(req.Budgets))
	for i, d := range req.Budgets {
		budgets[i] = tracking.ProjectBudget{
			Month:   tracking.Month(d.Month),
			Project: tracking.ProjectCode(d.Project),
			Hours:   decimal.NewFromFloat(d.Hours),
		}
	}

	if len(projects) > 0 {
		if err := h.Store.SaveProjects(ctx, projects); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save projects", err)
			return
		}
	}
	if len(members) > 0 {
		if err := h.Store.SaveMembers(ctx, members); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save members", err)
			return
		}
	}
	if len(entries) > 0 {
		if err := h.Store.SaveEntries(ctx, entries); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save entries", err)
			return
		}
	}
	if len(allocations) > 0 {
		if err := h.Store.SaveAllocations(ctx, allocations); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save allocations", err)
			return
		}
	}
	if len(budgets) > 0 {
		if err := h.Store.SaveBudgets(ctx, budgets); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save budgets", err)
			return
		}
	}
	if req.DefaultCapacityHours > 0 {
		cfg := tracking.CapacityConfig{DefaultMonthlyHours: decimal.NewFromFloat(req.DefaultCapacityHours)}
		if err := h.Store.SaveCapacity(ctx, cfg); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save capacity", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, ImportResponse{
		Entries:     len(entries),
		Projects:    len(projects),
		Members:     len(members),
		Allocations: len(allocations),
		Budgets:     len(budgets),
		Reset:       req.Reset,
	})
}

// GetPeriods returns the months that have data, ascending.
func (h *Handler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	ds, err := tracking.Load(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load dataset", err)
		return
	}

	months := ds.Months()
	dtos := make([]PeriodDTO, len(months))
	for i, m := range months {
		dtos[i] = PeriodDTO{Month: m.String(), Display: m.Display()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func monthParam(w http.ResponseWriter, r *http.Request) (tracking.Month, bool) {
	month, err := tracking.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return "", false
	}
	return month, true
}

func filterParam(r *http.Request) tracking.ProjectCode {
	return tracking.ProjectCode(r.URL.Query().Get("filter"))
}

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func readBody(r *http.Request) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
