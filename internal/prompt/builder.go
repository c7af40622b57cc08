package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/troykelly/playlistgen/internal/model"
)

// Builder assembles the selector's system and user messages from a daypart's
// derived criteria, per spec.md §4.5's conversation protocol.
type Builder struct {
	loader *Loader
}

func NewPromptBuilder(loader *Loader) *Builder {
	return &Builder{loader: loader}
}

// BuildSystemPrompt carries the role, daypart name, target count range,
// Australian-content minimum, and the output-format contract.
func (b *Builder) BuildSystemPrompt(spec model.PlaylistSpecification, daypart *model.DaypartSpecification) (string, error) {
	role, err := b.loader.GetSystemPrompt()
	if err != nil {
		return "", fmt.Errorf("prompt: loading system prompt: %w", err)
	}
	toolUsage, err := b.loader.GetToolUsageInstructions()
	if err != nil {
		return "", fmt.Errorf("prompt: loading tool usage instructions: %w", err)
	}
	outputFormat, err := b.loader.GetOutputFormatInstructions()
	if err != nil {
		return "", fmt.Errorf("prompt: loading output format instructions: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(role)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Daypart: %s\n", daypart.DisplayName)
	fmt.Fprintf(&sb, "Target track count: %d to %d tracks.\n", spec.TargetMin, spec.TargetMax)
	fmt.Fprintf(&sb, "Australian content minimum: %.0f%% of the final playlist.\n", spec.Criteria.AustralianMinimum*100)
	sb.WriteString("\n")
	sb.WriteString(toolUsage)
	sb.WriteString("\n\n")
	sb.WriteString(outputFormat)

	return sb.String(), nil
}

// BuildUserPrompt renders the full criteria as structured text: BPM
// sub-windows, target genre/era fractions, mood includes/excludes, and
// specialty constraint.
func (b *Builder) BuildUserPrompt(daypart *model.DaypartSpecification, criteria model.TrackSelectionCriteria) string {
	var sb strings.Builder

	sb.WriteString("BPM progression (sub-window time range -> BPM band):\n")
	for _, r := range criteria.BPMRanges {
		fmt.Fprintf(&sb, "  - %s - %s: %d-%d BPM\n", r.SubWindowStart, r.SubWindowEnd, r.BPMMin, r.BPMMax)
	}

	sb.WriteString("\nTarget genre mix:\n")
	for _, genre := range sortedKeys(criteria.GenreCriteria) {
		c := criteria.GenreCriteria[genre]
		fmt.Fprintf(&sb, "  - %s: %.0f%% (tolerance +/-%.0f%%)\n", genre, c.Target*100, c.Tolerance*100)
	}

	sb.WriteString("\nTarget era mix:\n")
	for _, label := range sortedKeys(criteria.EraCriteria) {
		c := criteria.EraCriteria[label]
		fmt.Fprintf(&sb, "  - %s (%d-%d): %.0f%% (tolerance +/-%.0f%%)\n", label, c.YearMin, c.YearMax, c.Target*100, c.Tolerance*100)
	}

	if len(criteria.MoodIncludes) > 0 {
		fmt.Fprintf(&sb, "\nMood, include: %s\n", strings.Join(criteria.MoodIncludes, ", "))
	}
	if len(criteria.MoodExcludes) > 0 {
		fmt.Fprintf(&sb, "Mood, exclude: %s\n", strings.Join(criteria.MoodExcludes, ", "))
	}

	if criteria.Specialty != nil {
		fmt.Fprintf(&sb, "\nSpecialty constraint: %s\n", criteria.Specialty.Tag)
		for _, key := range sortedStringKeys(criteria.Specialty.Parameters) {
			fmt.Fprintf(&sb, "  - %s: %s\n", key, criteria.Specialty.Parameters[key])
		}
	}

	fmt.Fprintf(&sb, "\nAustralian content minimum: %.0f%%\n", criteria.AustralianMinimum*100)

	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
