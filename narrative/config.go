/*
Package narrative assembles the monthly natural-language summary.

PURPOSE:
  Produces a short paragraph plus highlight tags for one month, in two
  modes: organization-wide (no project filter) and single-project (filter
  present). Sentences come from a static observation registry merged with
  a user configuration singleton: per-observation enable flags, an explicit
  priority order, three independent tone flags, an observation cap, and
  custom opening/closing sentences.

KEY CONCEPTS IN THIS FILE (config.go):
  - ObservationKey / Definition: The static observation registry
  - Config: The user configuration singleton with tone flags
  - Selection: triggered candidates, priority-sorted, capped

TONE FLAGS:
  NameIndividuals: name people vs. "one engineer" phrasing
  IncludeNumbers:  exact figures vs. qualitative language
  IncludeTrends:   append month-over-month clauses when data allows

SEE ALSO:
  - phrasing.go: The 2x2 phrasing variant tables
  - generator.go: Sentence assembly for both modes
*/
package narrative

import "context"

// =============================================================================
// MODES
// =============================================================================

type Mode string

const (
	ModeTeam    Mode = "team"
	ModeProject Mode = "project"
)

// =============================================================================
// OBSERVATION REGISTRY
// =============================================================================

type ObservationKey string

const (
	ObsFirefighting     ObservationKey = "firefighting-load"
	ObsBusFactor        ObservationKey = "bus-factor-risk"
	ObsFocus            ObservationKey = "focus-fragmentation"
	ObsOvertime         ObservationKey = "overtime"
	ObsMeetingTax       ObservationKey = "meeting-tax"
	ObsOverBurn         ObservationKey = "project-over-burn"
	ObsUnderBurn        ObservationKey = "project-under-burn"
	ObsLabSupport       ObservationKey = "lab-support"
	ObsProjectBusFactor ObservationKey = "project-bus-factor"
	ObsContributorSplit ObservationKey = "contributor-split"
)

// Definition is one static registry entry: which modes an observation
// applies to. The phrasing tables in phrasing.go carry its sentences.
type Definition struct {
	Key   ObservationKey
	Modes []Mode
}

// Registry lists every observation in default priority order.
var Registry = []Definition{
	{ObsFirefighting, []Mode{ModeTeam}},
	{ObsBusFactor, []Mode{ModeTeam}},
	{ObsFocus, []Mode{ModeTeam}},
	{ObsOvertime, []Mode{ModeTeam}},
	{ObsMeetingTax, []Mode{ModeTeam}},
	{ObsOverBurn, []Mode{ModeTeam, ModeProject}},
	{ObsUnderBurn, []Mode{ModeTeam, ModeProject}},
	{ObsLabSupport, []Mode{ModeTeam}},
	{ObsProjectBusFactor, []Mode{ModeProject}},
	{ObsContributorSplit, []Mode{ModeProject}},
}

// AppliesTo reports whether the definition covers a mode.
func (d Definition) AppliesTo(mode Mode) bool {
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// DefinitionFor returns the registry entry for a key.
func DefinitionFor(key ObservationKey) (Definition, bool) {
	for _, d := range Registry {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// =============================================================================
// CONFIGURATION - User singleton
// =============================================================================

type Config struct {
	// Enabled flags per observation. Absent keys default to enabled.
	Enabled map[ObservationKey]bool `json:"enabled,omitempty"`

	// Priority orders observation keys; keys absent from the list sort
	// after all present keys, keeping registry order among themselves.
	Priority []ObservationKey `json:"priority,omitempty"`

	NameIndividuals bool `json:"nameIndividuals"`
	IncludeNumbers  bool `json:"includeNumbers"`
	IncludeTrends   bool `json:"includeTrends"`

	// MaxObservations caps selected observations, clamped to [1,3].
	MaxObservations int `json:"maxObservations"`

	Opening string `json:"opening,omitempty"`
	Closing string `json:"closing,omitempty"`
}

// DefaultConfig matches a fresh install: everything enabled, registry
// priority, all tone flags on, cap of three.
func DefaultConfig() Config {
	priority := make([]ObservationKey, 0, len(Registry))
	for _, d := range Registry {
		priority = append(priority, d.Key)
	}
	return Config{
		Priority:        priority,
		NameIndividuals: true,
		IncludeNumbers:  true,
		IncludeTrends:   true,
		MaxObservations: 3,
	}
}

// EnabledFor resolves an observation's enable flag; absent means enabled.
func (c Config) EnabledFor(key ObservationKey) bool {
	if c.Enabled == nil {
		return true
	}
	if v, ok := c.Enabled[key]; ok {
		return v
	}
	return true
}

// MaxObs clamps the configured cap to [1,3].
func (c Config) MaxObs() int {
	switch {
	case c.MaxObservations < 1:
		return 1
	case c.MaxObservations > 3:
		return 3
	default:
		return c.MaxObservations
	}
}

// priorityIndex returns a key's sort position: its index in Priority, or
// len(Priority) for absent keys so they sort last and stay stable.
func (c Config) priorityIndex(key ObservationKey) int {
	for i, k := range c.Priority {
		if k == key {
			return i
		}
	}
	return len(c.Priority)
}

// ConfigStore persists the narrative configuration singleton.
type ConfigStore interface {
	NarrativeConfig(ctx context.Context) (Config, error)
	SaveNarrativeConfig(ctx context.Context, cfg Config) error
}
