/*
phrasing.go - Tone-variant phrasing tables and list helpers

PURPOSE:
  Each observation has up to four phrasing variants, one per combination
  of the (nameIndividuals, includeNumbers) tone flags. The variants are
  explicit template tables rather than conditionals embedded in a format
  string, so each wording can be audited and tested on its own. Some
  observations never name an individual; their named and anonymous rows
  coincide on purpose.

PLACEHOLDERS:
  Templates are fmt.Sprintf formats. The generator picks the row for the
  current flags and supplies the matching argument list; rows of one
  table may take different argument counts.
*/
package narrative

import (
	"fmt"
	"strings"
)

// =============================================================================
// VARIANT TABLE
// =============================================================================

// variants is one observation's 2x2 phrasing table.
type variants struct {
	NamedNumeric     string
	NamedQualitative string
	AnonNumeric      string
	AnonQualitative  string
}

// pick selects the row for the current tone flags.
func (v variants) pick(named, numeric bool) string {
	switch {
	case named && numeric:
		return v.NamedNumeric
	case named:
		return v.NamedQualitative
	case numeric:
		return v.AnonNumeric
	default:
		return v.AnonQualitative
	}
}

// =============================================================================
// OBSERVATION PHRASING - Team mode
// =============================================================================

var firefightingPhrasing = variants{
	NamedNumeric:     "Unplanned firefighting consumed %.0f%% of logged time, most of it from %s.",
	NamedQualitative: "Unplanned firefighting consumed a sizable share of logged time, most of it from %s.",
	AnonNumeric:      "Unplanned firefighting consumed %.0f%% of logged time.",
	AnonQualitative:  "Unplanned firefighting consumed a sizable share of logged time.",
}

var busFactorPhrasing = variants{
	NamedNumeric:     "Project %s rests on %s alone (bus factor %d).",
	NamedQualitative: "Project %s rests entirely on %s.",
	AnonNumeric:      "%d project(s) rest on a single contributor.",
	AnonQualitative:  "At least one project rests on a single contributor.",
}

var focusPhrasing = variants{
	NamedNumeric:     "%s split days across %.1f projects on average (focus score %.0f).",
	NamedQualitative: "%s split most days across several projects.",
	AnonNumeric:      "One engineer split days across %.1f projects on average.",
	AnonQualitative:  "One engineer split most days across several projects.",
}

var overtimePhrasing = variants{
	NamedNumeric:     "%s worked past %.0fh on %d days.",
	NamedQualitative: "%s worked long days repeatedly.",
	AnonNumeric:      "One team member worked past %.0fh on %d days.",
	AnonQualitative:  "One team member worked long days repeatedly.",
}

var meetingTaxPhrasing = variants{
	NamedNumeric:     "Meetings took %.0f%% of logged time, heaviest for %s.",
	NamedQualitative: "Meetings took an outsized share of logged time, heaviest for %s.",
	AnonNumeric:      "Meetings took %.0f%% of logged time.",
	AnonQualitative:  "Meetings took an outsized share of logged time.",
}

var overBurnPhrasing = variants{
	NamedNumeric:     "Project %s is at %.0f%% of its monthly plan.",
	NamedQualitative: "Project %s is significantly over its monthly plan.",
	AnonNumeric:      "Project %s is at %.0f%% of its monthly plan.",
	AnonQualitative:  "Project %s is significantly over its monthly plan.",
}

var underBurnPhrasing = variants{
	NamedNumeric:     "Project %s has used only %.0f%% of its monthly plan.",
	NamedQualitative: "Project %s has barely drawn on its monthly plan.",
	AnonNumeric:      "Project %s has used only %.0f%% of its monthly plan.",
	AnonQualitative:  "Project %s has barely drawn on its monthly plan.",
}

var labSupportPhrasing = variants{
	NamedNumeric:     "Lab technicians contributed %.1f hours of support work.",
	NamedQualitative: "Lab technicians contributed supporting hours throughout the month.",
	AnonNumeric:      "Lab technicians contributed %.1f hours of support work.",
	AnonQualitative:  "Lab technicians contributed supporting hours throughout the month.",
}

// =============================================================================
// OBSERVATION PHRASING - Project mode
// =============================================================================

var projectBusFactorPhrasing = variants{
	NamedNumeric:     "%s has logged %.0f%% of all hours on this project.",
	NamedQualitative: "%s carries most of this project.",
	AnonNumeric:      "A single engineer has logged %.0f%% of all hours on this project.",
	AnonQualitative:  "A single engineer carries most of this project.",
}

var contributorSplitPhrasing = variants{
	NamedNumeric:     "%s, the primary contributor, split time across %d other projects this month.",
	NamedQualitative: "%s, the primary contributor, also split time across several other projects.",
	AnonNumeric:      "The primary contributor split time across %d other projects this month.",
	AnonQualitative:  "The primary contributor also split time across several other projects.",
}

// =============================================================================
// LIST HELPERS
// =============================================================================

// oxford joins names with commas and a final "and".
func oxford(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

// nameList joins like oxford but truncates past three names to
// "A, B, C, and N others".
func nameList(names []string) string {
	if len(names) <= 3 {
		return oxford(names)
	}
	return fmt.Sprintf("%s, %s, %s, and %d others", names[0], names[1], names[2], len(names)-3)
}

// joinSentences glues sentences with single spaces, skipping blanks.
func joinSentences(sentences []string) string {
	var parts []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
