package anomaly

import "context"

// =============================================================================
// THRESHOLD OVERRIDES - Sparse user customization, keyed by rule
// =============================================================================

// Override is the user-tunable part of one rule. Every field is optional:
// absence falls back to the registry default. The dashboard needs to detect
// "is this parameter currently customized", so the resolution chain is
// explicit and reproducible: override -> registry default -> zero.
type Override struct {
	Enabled  *bool              `json:"enabled,omitempty"`
	Severity Severity           `json:"severity,omitempty"`
	Params   map[string]float64 `json:"params,omitempty"`
}

// Overrides is the full sparse override table.
type Overrides map[RuleID]Override

// OverrideStore persists the override table as user configuration.
type OverrideStore interface {
	Overrides(ctx context.Context) (Overrides, error)
	SaveOverrides(ctx context.Context, ov Overrides) error
}

// =============================================================================
// RESOLUTION CHAIN
// =============================================================================

// Enabled resolves whether a rule runs. Unknown rules are disabled.
func (o Overrides) Enabled(id RuleID) bool {
	if ov, ok := o[id]; ok && ov.Enabled != nil {
		return *ov.Enabled
	}
	rule, ok := RuleByID(id)
	if !ok {
		return false
	}
	return rule.Enabled
}

// SeverityFor resolves a rule's severity, terminal fallback "info".
func (o Overrides) SeverityFor(id RuleID) Severity {
	if ov, ok := o[id]; ok && ov.Severity != "" {
		return ov.Severity
	}
	if rule, ok := RuleByID(id); ok && rule.Severity != "" {
		return rule.Severity
	}
	return SeverityInfo
}

// ParamValue resolves one parameter: override, else registry default,
// else zero. Overridden values are clamped to the parameter bounds.
func (o Overrides) ParamValue(id RuleID, name string) float64 {
	rule, haveRule := RuleByID(id)
	if ov, ok := o[id]; ok {
		if v, ok := ov.Params[name]; ok {
			if haveRule {
				if p, ok := rule.Param(name); ok {
					return p.Clamp(v)
				}
			}
			return v
		}
	}
	if haveRule {
		if p, ok := rule.Param(name); ok {
			return p.Default
		}
	}
	return 0
}

// IsCustomized reports whether a parameter currently differs from the
// registry default because of an override entry.
func (o Overrides) IsCustomized(id RuleID, name string) bool {
	ov, ok := o[id]
	if !ok {
		return false
	}
	_, ok = ov.Params[name]
	return ok
}

// AnyCustomized reports whether any of the named parameters is overridden.
func (o Overrides) AnyCustomized(id RuleID, names ...string) bool {
	for _, n := range names {
		if o.IsCustomized(id, n) {
			return true
		}
	}
	return false
}
