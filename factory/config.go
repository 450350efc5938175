/*
Package factory converts JSON configuration blobs into typed configuration.

PURPOSE:
  The dashboard persists its two user-configuration singletons as JSON:
  the anomaly threshold overrides and the narrative configuration. This
  package converts those blobs into the typed structures the engines use,
  applying defaults and bounds so the engines never see out-of-range
  values.

WHY JSON?
  - The configuration editors live in the frontend
  - Easy UI <-> store round-tripping without schema migrations
  - Unknown rules/observations survive round trips untouched by old builds

KEY FEATURES:
  - Unknown rule IDs are dropped (stale overrides from removed rules)
  - Parameter values are clamped to the registry bounds
  - Narrative maxObservations is clamped to [1,3] on the way in

USAGE:
  ov, err := factory.ParseOverrides(blob)
  blob, err := factory.OverridesJSON(ov)

SEE ALSO:
  - anomaly/overrides.go: The resolution chain the output feeds
  - narrative/config.go: The narrative configuration shape
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/narrative"
)

// =============================================================================
// ANOMALY THRESHOLD OVERRIDES
// =============================================================================

// ParseOverrides decodes the override table, dropping entries for rules
// the registry no longer knows and clamping parameters to their bounds.
func ParseOverrides(data []byte) (anomaly.Overrides, error) {
	if len(data) == 0 {
		return anomaly.Overrides{}, nil
	}
	var raw anomaly.Overrides
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid overrides json: %w", err)
	}

	out := make(anomaly.Overrides, len(raw))
	for id, ov := range raw {
		rule, known := anomaly.RuleByID(id)
		if !known {
			continue
		}
		if ov.Params != nil {
			clamped := make(map[string]float64, len(ov.Params))
			for name, v := range ov.Params {
				if p, ok := rule.Param(name); ok {
					clamped[name] = p.Clamp(v)
				}
			}
			ov.Params = clamped
		}
		out[id] = ov
	}
	return out, nil
}

// OverridesJSON encodes the override table for persistence.
func OverridesJSON(ov anomaly.Overrides) ([]byte, error) {
	return json.Marshal(ov)
}

// =============================================================================
// NARRATIVE CONFIGURATION
// =============================================================================

// ParseNarrativeConfig decodes the narrative singleton, falling back to
// the defaults for an empty blob and normalizing the observation cap.
func ParseNarrativeConfig(data []byte) (narrative.Config, error) {
	if len(data) == 0 {
		return narrative.DefaultConfig(), nil
	}
	var cfg narrative.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return narrative.Config{}, fmt.Errorf("invalid narrative config json: %w", err)
	}
	cfg.MaxObservations = cfg.MaxObs()
	if len(cfg.Priority) == 0 {
		cfg.Priority = narrative.DefaultConfig().Priority
	}
	return cfg, nil
}

// NarrativeConfigJSON encodes the narrative singleton for persistence.
func NarrativeConfigJSON(cfg narrative.Config) ([]byte, error) {
	return json.Marshal(cfg)
}
