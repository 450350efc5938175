/*
generator.go - Narrative assembly for team and project modes

PURPOSE:
  Builds the monthly paragraph and highlight tags. Mode selection is
  automatic: a project filter selects the single-project narrative, its
  absence the team narrative. Observation triggers reuse the anomaly
  thresholds currently in effect, so the narrative and the anomaly panel
  never disagree about what is notable.

COMPOSITION (team):
  optional opening, volume sentence (with optional trend clause),
  work-mix sentence, up to maxObservations observation sentences,
  capacity sentence, optional closing.

COMPOSITION (project):
  activity-volume sentence (folding in a sole activity type), plan
  comparison with a qualitative deviation clause, project-scoped
  observations, firefighting-classification sentence, custom open/close.

SEE ALSO:
  - config.go: Observation registry and configuration
  - phrasing.go: The 2x2 variant tables
*/
package narrative

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/resource-insights/anomaly"
	"github.com/warp/resource-insights/metrics"
	"github.com/warp/resource-insights/tracking"
)

// NoDataSentence is the exact paragraph for a month with zero entries.
const NoDataSentence = "No timesheet data available for this month."

// Result is the generated narrative.
type Result struct {
	Paragraph  string   `json:"paragraph"`
	Highlights []string `json:"highlights"`
}

// =============================================================================
// GENERATOR
// =============================================================================

type Generator struct {
	Store     tracking.TimesheetStore
	Config    ConfigStore
	Overrides anomaly.OverrideStore
}

func NewGenerator(store tracking.TimesheetStore, config ConfigStore, overrides anomaly.OverrideStore) *Generator {
	return &Generator{Store: store, Config: config, Overrides: overrides}
}

// Generate produces the narrative for one (month, filter).
func (g *Generator) Generate(ctx context.Context, month tracking.Month, filter tracking.ProjectCode) (Result, error) {
	ds, err := tracking.Load(ctx, g.Store)
	if err != nil {
		return Result{}, err
	}
	cfg, err := g.Config.NarrativeConfig(ctx)
	if err != nil {
		return Result{}, err
	}
	ov, err := g.Overrides.Overrides(ctx)
	if err != nil {
		return Result{}, err
	}
	return GenerateDataset(ds, cfg, ov, month, filter), nil
}

// GenerateDataset is the pure narrative computation.
func GenerateDataset(ds *tracking.Dataset, cfg Config, ov anomaly.Overrides, month tracking.Month, filter tracking.ProjectCode) Result {
	gn := &gen{
		ds:      ds,
		cfg:     cfg,
		ov:      ov,
		month:   month,
		filter:  filter,
		result:  metrics.ComputeDataset(ds, []tracking.Month{month}, filter),
		profile: anomaly.BuildProfile(ds, month, filter),
	}
	if gn.result.EntryCount == 0 {
		return Result{Paragraph: NoDataSentence, Highlights: []string{}}
	}
	if filter != "" {
		return gn.projectNarrative()
	}
	return gn.teamNarrative()
}

type gen struct {
	ds      *tracking.Dataset
	cfg     Config
	ov      anomaly.Overrides
	month   tracking.Month
	filter  tracking.ProjectCode
	result  metrics.Result
	profile *anomaly.Profile
}

// candidate is one triggered observation with its rendered sentence.
type candidate struct {
	key       ObservationKey
	sentence  string
	highlight string
}

// =============================================================================
// OBSERVATION SELECTION - Identical in both modes
// =============================================================================

// selectObservations renders every triggered observation for the mode,
// sorts by the configured priority (absent keys last, stable), and caps
// the list. Tone flags only affect phrasing, never triggering.
func (g *gen) selectObservations(mode Mode) []candidate {
	var triggered []candidate
	for _, def := range Registry {
		if !def.AppliesTo(mode) || !g.cfg.EnabledFor(def.Key) {
			continue
		}
		if c := g.buildObservation(def.Key); c != nil {
			triggered = append(triggered, *c)
		}
	}
	sort.SliceStable(triggered, func(i, j int) bool {
		return g.cfg.priorityIndex(triggered[i].key) < g.cfg.priorityIndex(triggered[j].key)
	})
	if max := g.cfg.MaxObs(); len(triggered) > max {
		triggered = triggered[:max]
	}
	return triggered
}

func (g *gen) buildObservation(key ObservationKey) *candidate {
	switch key {
	case ObsFirefighting:
		return g.obsFirefighting()
	case ObsBusFactor:
		return g.obsBusFactor()
	case ObsFocus:
		return g.obsFocus()
	case ObsOvertime:
		return g.obsOvertime()
	case ObsMeetingTax:
		return g.obsMeetingTax()
	case ObsOverBurn:
		return g.obsOverBurn()
	case ObsUnderBurn:
		return g.obsUnderBurn()
	case ObsLabSupport:
		return g.obsLabSupport()
	case ObsProjectBusFactor:
		return g.obsProjectBusFactor()
	case ObsContributorSplit:
		return g.obsContributorSplit()
	}
	return nil
}

func (g *gen) named() bool   { return g.cfg.NameIndividuals }
func (g *gen) numeric() bool { return g.cfg.IncludeNumbers }

// =============================================================================
// TEAM OBSERVATIONS
// =============================================================================

func (g *gen) obsFirefighting() *candidate {
	pct := g.result.FirefightingSharePct
	if pct <= g.ov.ParamValue(anomaly.RuleFirefighting, "maxFirefightingPct") {
		return nil
	}
	person := g.heaviest(g.profile.PersonFirefighting)

	var sentence string
	switch {
	case g.named() && g.numeric():
		sentence = fmt.Sprintf(firefightingPhrasing.NamedNumeric, pct, person)
	case g.named():
		sentence = fmt.Sprintf(firefightingPhrasing.NamedQualitative, person)
	case g.numeric():
		sentence = fmt.Sprintf(firefightingPhrasing.AnonNumeric, pct)
	default:
		sentence = firefightingPhrasing.AnonQualitative
	}
	return &candidate{ObsFirefighting, sentence, g.tag(fmt.Sprintf("%.0f%% firefighting", pct), "Firefighting load")}
}

func (g *gen) obsBusFactor() *candidate {
	maxBF := g.ov.ParamValue(anomaly.RuleBusFactor, "maxBusFactor")
	minHours := decimal.NewFromFloat(g.ov.ParamValue(anomaly.RuleBusFactor, "minHours"))
	npdOnly := g.ov.ParamValue(anomaly.RuleBusFactor, "npdOnly") >= 1

	var spofs []tracking.ProjectCode
	var firstOwner string
	var firstBF int
	for _, project := range g.profile.Projects() {
		if npdOnly && g.ds.ProjectFor(project).Type != tracking.ProjectNPD {
			continue
		}
		if g.profile.ProjectHours[project].LessThan(minHours) {
			continue
		}
		bf, owner := anomaly.BusFactor(g.profile.ProjectPeople[project])
		if bf == 0 || float64(bf) > maxBF {
			continue
		}
		if len(spofs) == 0 {
			firstOwner, firstBF = owner, bf
		}
		spofs = append(spofs, project)
	}
	if len(spofs) == 0 {
		return nil
	}

	var sentence string
	switch {
	case g.named() && g.numeric():
		sentence = fmt.Sprintf(busFactorPhrasing.NamedNumeric, spofs[0], firstOwner, firstBF)
	case g.named():
		sentence = fmt.Sprintf(busFactorPhrasing.NamedQualitative, spofs[0], firstOwner)
	case g.numeric():
		sentence = fmt.Sprintf(busFactorPhrasing.AnonNumeric, len(spofs))
	default:
		sentence = busFactorPhrasing.AnonQualitative
	}
	return &candidate{ObsBusFactor, sentence, g.tag(fmt.Sprintf("Bus factor %d", firstBF), "Key-person risk")}
}

func (g *gen) obsFocus() *candidate {
	minScore := g.ov.ParamValue(anomaly.RuleContextSwitching, "minFocusScore")
	worst := ""
	worstScore := math.MaxFloat64
	for _, person := range g.profile.Persons() {
		if g.profile.AvgProjectsPerDay(person) <= 0 {
			continue
		}
		if score := g.profile.FocusScore(person); score < minScore && score < worstScore {
			worst, worstScore = person, score
		}
	}
	if worst == "" {
		return nil
	}
	avg := g.profile.AvgProjectsPerDay(worst)

	var sentence string
	switch {
	case g.named() && g.numeric():
		sentence = fmt.Sprintf(focusPhrasing.NamedNumeric, worst, avg, worstScore)
	case g.named():
		sentence = fmt.Sprintf(focusPhrasing.NamedQualitative, worst)
	case g.numeric():
		sentence = fmt.Sprintf(focusPhrasing.AnonNumeric, avg)
	default:
		sentence = focusPhrasing.AnonQualitative
	}
	return &candidate{ObsFocus, sentence, g.tag(fmt.Sprintf("Focus score %.0f", worstScore), "Fragmented focus")}
}

func (g *gen) obsOvertime() *candidate {
	daily := g.ov.ParamValue(anomaly.RuleOvertime, "dailyHours")
	minDays := g.ov.ParamValue(anomaly.RuleOvertime, "minDays")
	limit := decimal.NewFromFloat(daily)

	worst := ""
	worstDays := 0
	for _, person := range g.profile.Persons() {
		if days := g.profile.OvertimeDays(person, limit); float64(days) >= minDays && days > worstDays {
			worst, worstDays = person, days
		}
	}
	if worst == "" {
		return nil
	}

	var sentence string
	switch {
	case g.named() && g.numeric():
		sentence = fmt.Sprintf(overtimePhrasing.NamedNumeric, worst, daily, worstDays)
	case g.named():
		sentence = fmt.Sprintf(overtimePhrasing.NamedQualitative, worst)
	case g.numeric():
		sentence = fmt.Sprintf(overtimePhrasing.AnonNumeric, daily, worstDays)
	default:
		sentence = overtimePhrasing.AnonQualitative
	}
	return &candidate{ObsOvertime, sentence, g.tag(fmt.Sprintf("%d overtime days", worstDays), "Overtime")}
}

func (g *gen) obsMeetingTax() *candidate {
	pct := g.result.MeetingSharePct
	if pct <= g.ov.ParamValue(anomaly.RuleMeetingHeavy, "maxMeetingPct") {
		return nil
	}
	person := g.heaviest(g.profile.PersonMeeting)

	var sentence string
	switch {
	case g.named() && g.numeric():
		sentence = fmt.Sprintf(meetingTaxPhrasing.NamedNumeric, pct, person)
	case g.named():
		sentence = fmt.Sprintf(meetingTaxPhrasing.NamedQualitative, person)
	case g.numeric():
		sentence = fmt.Sprintf(meetingTaxPhrasing.AnonNumeric, pct)
	default:
		sentence = meetingTaxPhrasing.AnonQualitative
	}
	return &candidate{ObsMeetingTax, sentence, g.tag(fmt.Sprintf("%.0f%% meetings", pct), "Meeting tax")}
}

func (g *gen) obsOverBurn() *candidate {
	limit := 1 + g.ov.ParamValue(anomaly.RuleOverBurn, "overBurnPct")/100
	for _, b := range g.profile.Budgeted(g.ds) {
		ratio := b.BurnRatio()
		if ratio <= limit {
			continue
		}
		sentence := fmt.Sprintf(overBurnPhrasing.pick(g.named(), g.numeric()), argsBurn(b.Project, ratio, g.numeric())...)
		return &candidate{ObsOverBurn, sentence, g.tag(fmt.Sprintf("%.0f%% of plan", ratio*100), "Over budget")}
	}
	return nil
}

func (g *gen) obsUnderBurn() *candidate {
	floor := g.ov.ParamValue(anomaly.RuleUnderBurn, "underBurnPct") / 100
	for _, b := range g.profile.Budgeted(g.ds) {
		if !b.Actual.IsPositive() {
			continue
		}
		ratio := b.BurnRatio()
		if ratio >= floor {
			continue
		}
		sentence := fmt.Sprintf(underBurnPhrasing.pick(g.named(), g.numeric()), argsBurn(b.Project, ratio, g.numeric())...)
		return &candidate{ObsUnderBurn, sentence, g.tag(fmt.Sprintf("%.0f%% of plan", ratio*100), "Under budget")}
	}
	return nil
}

func argsBurn(project tracking.ProjectCode, ratio float64, numeric bool) []any {
	if numeric {
		return []any{project, ratio * 100}
	}
	return []any{project}
}

func (g *gen) obsLabSupport() *candidate {
	if g.result.LabTechHours <= 0 {
		return nil
	}
	var sentence string
	if g.numeric() {
		sentence = fmt.Sprintf(labSupportPhrasing.pick(g.named(), true), g.result.LabTechHours)
	} else {
		sentence = labSupportPhrasing.pick(g.named(), false)
	}
	return &candidate{ObsLabSupport, sentence, g.tag(fmt.Sprintf("%.1fh lab support", g.result.LabTechHours), "Lab support")}
}

// =============================================================================
// PROJECT OBSERVATIONS
// =============================================================================

func (g *gen) obsProjectBusFactor() *candidate {
	project := g.filter.Top()
	contributors := g.profile.ProjectPeople[project]
	total := g.profile.ProjectHours[project]
	minHours := decimal.NewFromFloat(g.ov.ParamValue(anomaly.RuleBusFactor, "minHours"))
	maxBF := g.ov.ParamValue(anomaly.RuleBusFactor, "maxBusFactor")
	if total.LessThan(minHours) {
		return nil
	}
	bf, owner := anomaly.BusFactor(contributors)
	if bf == 0 || float64(bf) > maxBF {
		return nil
	}
	share := metrics.Pct(contributors[owner], total)

	var sentence string
	switch {
	case g.named() && g.numeric():
		sentence = fmt.Sprintf(projectBusFactorPhrasing.NamedNumeric, owner, share)
	case g.named():
		sentence = fmt.Sprintf(projectBusFactorPhrasing.NamedQualitative, owner)
	case g.numeric():
		sentence = fmt.Sprintf(projectBusFactorPhrasing.AnonNumeric, share)
	default:
		sentence = projectBusFactorPhrasing.AnonQualitative
	}
	return &candidate{ObsProjectBusFactor, sentence, g.tag(fmt.Sprintf("Bus factor %d", bf), "Key-person risk")}
}

func (g *gen) obsContributorSplit() *candidate {
	project := g.filter.Top()
	_, owner := anomaly.BusFactor(g.profile.ProjectPeople[project])
	if owner == "" {
		return nil
	}
	// Fragmentation is measured against the whole month, not just this
	// project's slice.
	monthWide := anomaly.BuildProfile(g.ds, g.month, "")
	distinct := make(map[tracking.ProjectCode]bool)
	for _, days := range monthWide.PersonDayProjects[owner] {
		for code := range days {
			if code != project {
				distinct[code] = true
			}
		}
	}
	if len(distinct) < 2 {
		return nil
	}

	var sentence string
	switch {
	case g.named() && g.numeric():
		sentence = fmt.Sprintf(contributorSplitPhrasing.NamedNumeric, owner, len(distinct))
	case g.named():
		sentence = fmt.Sprintf(contributorSplitPhrasing.NamedQualitative, owner)
	case g.numeric():
		sentence = fmt.Sprintf(contributorSplitPhrasing.AnonNumeric, len(distinct))
	default:
		sentence = contributorSplitPhrasing.AnonQualitative
	}
	return &candidate{ObsContributorSplit, sentence, g.tag(fmt.Sprintf("%d side projects", len(distinct)), "Split attention")}
}

// =============================================================================
// TEAM NARRATIVE
// =============================================================================

func (g *gen) teamNarrative() Result {
	var sentences []string
	if g.cfg.Opening != "" {
		sentences = append(sentences, g.cfg.Opening)
	}
	sentences = append(sentences, g.volumeSentence())
	sentences = append(sentences, g.mixSentences()...)

	selected := g.selectObservations(ModeTeam)
	highlights := g.headlineHighlights()
	for _, c := range selected {
		sentences = append(sentences, c.sentence)
		highlights = append(highlights, c.highlight)
	}

	if s := g.capacitySentence(); s != "" {
		sentences = append(sentences, s)
	}
	if g.cfg.Closing != "" {
		sentences = append(sentences, g.cfg.Closing)
	}
	return Result{Paragraph: joinSentences(sentences), Highlights: highlights}
}

func (g *gen) volumeSentence() string {
	r := g.result
	trend := g.trendClause()
	if g.numeric() {
		return fmt.Sprintf("In %s, %d engineers logged %.1f hours across %d projects (%.0f%% utilization%s).",
			g.month.Display(), r.ActiveEngineers, r.TotalHours, r.ProjectCount, r.UtilizationPct, trend)
	}
	return fmt.Sprintf("In %s, the team logged time across %d projects%s%s.",
		g.month.Display(), r.ProjectCount, qualUtilization(r.UtilizationPct), trend)
}

// trendClause compares utilization to the previous month. Appended only
// when trends are enabled, the previous month has data, and the delta is
// at least one percentage point.
func (g *gen) trendClause() string {
	if !g.cfg.IncludeTrends {
		return ""
	}
	prev := metrics.ComputeDataset(g.ds, []tracking.Month{g.month.Prev()}, g.filter)
	if prev.EntryCount == 0 {
		return ""
	}
	delta := g.result.UtilizationPct - prev.UtilizationPct
	if math.Abs(delta) < 1 {
		return ""
	}
	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	if g.numeric() {
		return fmt.Sprintf(", %s from %.0f%% last month", direction, prev.UtilizationPct)
	}
	return fmt.Sprintf(", %s from last month", direction)
}

func qualUtilization(pct float64) string {
	switch {
	case pct >= 100:
		return " running over capacity"
	case pct >= 75:
		return " at healthy utilization"
	case pct > 0:
		return " below target utilization"
	default:
		return ""
	}
}

func (g *gen) mixSentences() []string {
	r := g.result
	var out []string
	if g.numeric() {
		out = append(out, fmt.Sprintf("New product development accounted for %.0f%% of productive time, alongside %.1f hours of sustaining work.",
			r.NPDSharePct, r.SustainingHours))
		if r.FirefightingHours > 0 {
			out = append(out, fmt.Sprintf("Firefighting consumed %.0f%% of all hours.", r.FirefightingSharePct))
		}
		return out
	}
	out = append(out, "Effort went to a mix of new product development and sustaining work.")
	if r.FirefightingHours > 0 {
		out = append(out, "Firefighting took part of the month as well.")
	}
	return out
}

func (g *gen) capacitySentence() string {
	var under []string
	for _, m := range g.ds.Members {
		if m.Role != tracking.RoleEngineer {
			continue
		}
		logged := g.profile.PersonTotal[m.Name]
		if !logged.IsPositive() {
			continue
		}
		capacity := g.ds.Capacity.CapacityFor(m)
		if metrics.Ratio(logged, capacity) < 0.7 {
			under = append(under, m.Name)
		}
	}
	sort.Strings(under)

	switch {
	case len(under) > 0 && g.named() && g.numeric():
		return fmt.Sprintf("%s finished below 70%% of capacity.", nameList(under))
	case len(under) > 0 && g.named():
		return fmt.Sprintf("%s had spare capacity this month.", nameList(under))
	case len(under) > 0 && g.numeric():
		return fmt.Sprintf("%d team member(s) finished below 70%% of capacity.", len(under))
	case len(under) > 0:
		return "Some team members had spare capacity this month."
	case g.result.UtilizationPct > 100:
		return "The team as a whole ran over capacity."
	default:
		return ""
	}
}

func (g *gen) headlineHighlights() []string {
	if g.numeric() {
		return []string{
			fmt.Sprintf("%.1fh logged", g.result.TotalHours),
			fmt.Sprintf("%.0f%% utilization", g.result.UtilizationPct),
		}
	}
	return []string{"Monthly summary"}
}

// =============================================================================
// PROJECT NARRATIVE
// =============================================================================

func (g *gen) projectNarrative() Result {
	project := g.filter.Top()
	var sentences []string
	if g.cfg.Opening != "" {
		sentences = append(sentences, g.cfg.Opening)
	}
	sentences = append(sentences, g.activitySentences(project)...)
	if s := g.planSentence(project); s != "" {
		sentences = append(sentences, s)
	}

	selected := g.selectObservations(ModeProject)
	highlights := g.projectHighlights()
	for _, c := range selected {
		sentences = append(sentences, c.sentence)
		highlights = append(highlights, c.highlight)
	}

	if g.ds.ProjectFor(project).Class == tracking.WorkFirefighting {
		sentences = append(sentences, "This work is classified as unplanned firefighting.")
	}
	if g.cfg.Closing != "" {
		sentences = append(sentences, g.cfg.Closing)
	}
	return Result{Paragraph: joinSentences(sentences), Highlights: highlights}
}

// activitySentences folds a sole activity type into the volume sentence
// and otherwise adds a separate breakdown sentence.
func (g *gen) activitySentences(project tracking.ProjectCode) []string {
	seen := make(map[string]bool)
	var activities []string
	for _, e := range g.profile.Entries {
		if e.Activity != "" && !seen[e.Activity] {
			seen[e.Activity] = true
			activities = append(activities, e.Activity)
		}
	}
	sort.Strings(activities)

	var volume string
	switch {
	case g.numeric() && len(activities) == 1:
		volume = fmt.Sprintf("Project %s logged %.1f hours in %s, all on %s.", project, g.result.TotalHours, g.month.Display(), activities[0])
	case g.numeric():
		volume = fmt.Sprintf("Project %s logged %.1f hours in %s.", project, g.result.TotalHours, g.month.Display())
	case len(activities) == 1:
		volume = fmt.Sprintf("Project %s saw steady activity in %s, all on %s.", project, g.month.Display(), activities[0])
	default:
		volume = fmt.Sprintf("Project %s saw steady activity in %s.", project, g.month.Display())
	}

	out := []string{volume}
	if len(activities) > 1 {
		out = append(out, fmt.Sprintf("Work spanned %s.", oxford(activities)))
	}
	return out
}

func (g *gen) planSentence(project tracking.ProjectCode) string {
	planned, ok := g.ds.BudgetFor(g.month, project)
	if !ok || !planned.IsPositive() {
		return ""
	}
	actual := tracking.SumHours(g.profile.Entries)
	pct := metrics.Pct(actual, planned)
	clause := deviationClause(pct, actual.IsPositive())
	if g.numeric() {
		return fmt.Sprintf("Actual hours came to %.0f%% of the %sh plan, %s.", pct, planned.StringFixed(0), clause)
	}
	return fmt.Sprintf("The project is %s.", clause)
}

// deviationClause maps the burn percentage to qualitative language.
// Bands: 90-110 close to plan, up to 130 slightly over, past 130
// significantly exceeding; under 50 (with any actuals) well below.
func deviationClause(pct float64, hasActuals bool) string {
	switch {
	case pct >= 90 && pct <= 110:
		return "tracking close to plan"
	case pct > 110 && pct <= 130:
		return "slightly over plan"
	case pct > 130:
		return "significantly exceeding plan"
	case pct < 50 && hasActuals:
		return "well below plan"
	default:
		return "running under plan"
	}
}

func (g *gen) projectHighlights() []string {
	if g.numeric() {
		return []string{fmt.Sprintf("%.1fh logged", g.result.TotalHours)}
	}
	return []string{"Project summary"}
}

// =============================================================================
// HELPERS
// =============================================================================

// heaviest returns the person with the most hours in a bucket map, ties
// broken alphabetically.
func (g *gen) heaviest(bucket map[string]decimal.Decimal) string {
	best := ""
	bestHours := decimal.Zero
	for _, person := range g.profile.Persons() {
		if h, ok := bucket[person]; ok && h.GreaterThan(bestHours) {
			best, bestHours = person, h
		}
	}
	return best
}

// tag picks the numeric or qualitative highlight text per the tone flag.
func (g *gen) tag(numericTag, qualitativeTag string) string {
	if g.numeric() {
		return numericTag
	}
	return qualitativeTag
}
