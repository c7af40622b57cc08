// Package docparser parses a station programming markdown document into an
// immutable model.ProgrammingDocument, per spec.md §4.1/§6.
package docparser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/playlistcore/errs"
)

var (
	reGroupHeading = regexp.MustCompile(`(?i)^#{1,6}\s*(monday|tuesday|wednesday|thursday|friday|weekday|saturday|sunday|weekend)\s*programming`)

	reH3Heading = regexp.MustCompile(`^###\s+(.+?)\s*$`)
	// Historical weekend shape: a bold line carrying both the time range and
	// the daypart name, e.g. "**6:00 AM - 10:00 AM - Morning Drive**".
	reBoldTimeRangeHeading = regexp.MustCompile(`^\*\*\s*(\d{1,2}:\d{2}\s*(?:[AaPp][Mm])?)\s*-\s*(\d{1,2}:\d{2}\s*(?:[AaPp][Mm])?)\s*-\s*(.+?)\s*\*\*\s*$`)

	reTime            = regexp.MustCompile(`(?i)\*\*Time\*\*:\s*(\d{1,2}:\d{2}\s*(?:[AaPp][Mm])?)\s*-\s*(\d{1,2}:\d{2}\s*(?:[AaPp][Mm])?)`)
	reTracksPerHour   = regexp.MustCompile(`(?i)\*\*Tracks per Hour\*\*:\s*(\d+)(?:\s*-\s*(\d+))?`)
	reBPMHeader       = regexp.MustCompile(`(?i)\*\*BPM Progression\*\*:?`)
	reBPMEntry        = regexp.MustCompile(`(\d{1,2}:\d{2}\s*(?:[AaPp][Mm])?)\s*-\s*(\d{1,2}:\d{2}\s*(?:[AaPp][Mm])?)\s*:\s*(\d+)\s*-\s*(\d+)\s*BPM`)
	reGenreHeader     = regexp.MustCompile(`(?i)\*\*Genre Mix\*\*:?`)
	reEraHeader       = regexp.MustCompile(`(?i)\*\*Era Distribution\*\*:?`)
	rePercentEntry    = regexp.MustCompile(`^[-*]\s*([A-Za-z0-9 /&'.]+?)\s*:\s*(\d+(?:\.\d+)?)\s*%`)
	reAustralian      = regexp.MustCompile(`(?i)\*\*Australian Content\*\*:\s*(\d+(?:\.\d+)?)\s*%`)
	reMood            = regexp.MustCompile(`(?i)\*\*Mood\*\*:\s*(.+)`)
	reMoodExclusions  = regexp.MustCompile(`(?i)\*\*Mood Exclusions\*\*:\s*(.+)`)
	reSpecialty       = regexp.MustCompile(`(?i)\*\*Specialty\*\*:\s*(.+)`)
	reSpecialtyPct    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*([A-Za-z][A-Za-z0-9 /&'.]*)`)
	reBoldFieldHeader = regexp.MustCompile(`^\*\*[A-Za-z].*\*\*`)
)

// Load reads path, validates it, and returns an immutable
// model.ProgrammingDocument or an errs.ParseError-wrapped error.
func Load(path string) (*model.ProgrammingDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.KindParseError, err, "reading %s", path)
	}

	sum := sha256.Sum256(raw)
	version := hex.EncodeToString(sum[:])

	lines := strings.Split(string(raw), "\n")

	groups, globalAustralian, err := splitGroups(lines)
	if err != nil {
		return nil, errs.New(errs.KindParseError, err, "parsing %s", path)
	}

	structures := make([]model.ProgrammingStructure, 0, len(groups))
	for _, g := range groups {
		dayparts, err := parseDayparts(g.tag, g.lines)
		if err != nil {
			return nil, errs.New(errs.KindParseError, err, "parsing %s group in %s", g.tag, path)
		}
		structures = append(structures, model.ProgrammingStructure{Tag: g.tag, Dayparts: dayparts})
	}

	if globalAustralian == 0 {
		globalAustralian = model.AustralianMinimumHard
	}

	return &model.ProgrammingDocument{
		DocumentPath:             path,
		Version:                  version,
		LoadedAt:                 time.Now().UTC(),
		Structures:               structures,
		AustralianContentMinimum: globalAustralian,
	}, nil
}

type group struct {
	tag   string
	lines []string
}

// splitGroups partitions the document into per-schedule-tag line blocks and
// extracts a station-wide Australian content line if one appears outside any
// daypart (spec.md §4.1: "the Australian content line is global").
func splitGroups(lines []string) ([]group, float64, error) {
	var groups []group
	var current *group
	globalAustralian := 0.0

	for _, line := range lines {
		if m := reGroupHeading.FindStringSubmatch(line); m != nil {
			groups = append(groups, group{tag: normalizeScheduleTag(m[1])})
			current = &groups[len(groups)-1]
			continue
		}
		if current == nil {
			if m := reAustralian.FindStringSubmatch(line); m != nil {
				v, err := strconv.ParseFloat(m[1], 64)
				if err == nil {
					globalAustralian = v / 100.0
				}
			}
			continue
		}
		current.lines = append(current.lines, line)
	}

	if len(groups) == 0 {
		return nil, 0, fmt.Errorf("no weekday/saturday/sunday programming section found")
	}
	return groups, globalAustralian, nil
}

func normalizeScheduleTag(raw string) string {
	switch strings.ToLower(raw) {
	case "saturday":
		return "saturday"
	case "sunday":
		return "sunday"
	default:
		return "weekday"
	}
}

// daypartBlock is the raw line span belonging to one daypart, regardless of
// which of the two heading shapes delimited it.
type daypartBlock struct {
	name  string
	lines []string
}

func parseDayparts(scheduleTag string, lines []string) ([]*model.DaypartSpecification, error) {
	blocks := splitDaypartBlocks(lines)
	result := make([]*model.DaypartSpecification, 0, len(blocks))
	for _, b := range blocks {
		d, err := parseDaypartBlock(scheduleTag, b)
		if err != nil {
			return nil, fmt.Errorf("daypart %q: %w", b.name, err)
		}
		result = append(result, d)
	}
	return result, nil
}

// splitDaypartBlocks supports both shapes spec.md §4.1 requires: H3-delimited
// blocks, and bold-time-range-delimited blocks (the historical weekend
// shape), possibly mixed within the same section.
func splitDaypartBlocks(lines []string) []daypartBlock {
	var blocks []daypartBlock
	var current *daypartBlock

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := reH3Heading.FindStringSubmatch(trimmed); m != nil {
			blocks = append(blocks, daypartBlock{name: m[1]})
			current = &blocks[len(blocks)-1]
			continue
		}
		if m := reBoldTimeRangeHeading.FindStringSubmatch(trimmed); m != nil {
			blocks = append(blocks, daypartBlock{name: m[3]})
			current = &blocks[len(blocks)-1]
			// Synthesize a **Time** field so the rest of the field scanner,
			// which only recognises the H3 shape's explicit field, still works.
			current.lines = append(current.lines, fmt.Sprintf("**Time**: %s - %s", m[1], m[2]))
			continue
		}
		if current == nil {
			continue
		}
		current.lines = append(current.lines, line)
	}
	return blocks
}

func parseDaypartBlock(scheduleTag string, b daypartBlock) (*model.DaypartSpecification, error) {
	var timeStart, timeEnd model.ClockTime
	var err error
	timeFound := false
	for _, line := range b.lines {
		if m := reTime.FindStringSubmatch(line); m != nil {
			timeStart, err = parseClockTime(m[1])
			if err != nil {
				return nil, err
			}
			timeEnd, err = parseClockTime(m[2])
			if err != nil {
				return nil, err
			}
			timeFound = true
			break
		}
	}
	if !timeFound {
		return nil, fmt.Errorf("missing **Time** field")
	}

	tphMin, tphMax, err := parseTracksPerHour(b.lines)
	if err != nil {
		return nil, err
	}

	bpmRanges, err := parseBPMProgression(b.lines)
	if err != nil {
		return nil, err
	}

	genreMix := parsePercentSection(b.lines, reGenreHeader)
	eraMix := parsePercentSection(b.lines, reEraHeader)

	moodIncludes, moodExcludes := parseMood(b.lines)
	specialty := parseSpecialty(b.lines)
	australianOverride := parseAustralianOverride(b.lines)

	params := model.DaypartParams{
		DisplayName:       b.name,
		ScheduleTag:       scheduleTag,
		TimeStart:         timeStart,
		TimeEnd:           timeEnd,
		BPMRanges:         bpmRanges,
		GenreMix:          genreMix,
		EraDistribution:   eraMix,
		MoodIncludes:      moodIncludes,
		MoodExcludes:      moodExcludes,
		TracksPerHourMin:  tphMin,
		TracksPerHourMax:  tphMax,
		Specialty:         specialty,
		AustralianMinimum: australianOverride,
	}

	return model.NewDaypartSpecification(uuid.NewString(), params)
}

func parseClockTime(s string) (model.ClockTime, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	pm := strings.HasSuffix(upper, "PM")
	am := strings.HasSuffix(upper, "AM")
	if pm || am {
		s = strings.TrimSpace(s[:len(s)-2])
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if pm && hour != 12 {
		hour += 12
	}
	if am && hour == 12 {
		hour = 0
	}
	return model.NewClockTime(hour, minute)
}

func parseTracksPerHour(lines []string) (int, int, error) {
	for _, line := range lines {
		if m := reTracksPerHour.FindStringSubmatch(line); m != nil {
			min, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, 0, err
			}
			max := min
			if m[2] != "" {
				max, err = strconv.Atoi(m[2])
				if err != nil {
					return 0, 0, err
				}
			}
			return min, max, nil
		}
	}
	return 0, 0, fmt.Errorf("missing **Tracks per Hour** field")
}

func parseBPMProgression(lines []string) ([]model.BPMRange, error) {
	inSection := false
	var ranges []model.BPMRange
	for _, line := range lines {
		if reBPMHeader.MatchString(line) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if m := reBPMEntry.FindStringSubmatch(line); m != nil {
			start, err := parseClockTime(m[1])
			if err != nil {
				return nil, err
			}
			end, err := parseClockTime(m[2])
			if err != nil {
				return nil, err
			}
			bpmMin, err := strconv.Atoi(m[3])
			if err != nil {
				return nil, err
			}
			bpmMax, err := strconv.Atoi(m[4])
			if err != nil {
				return nil, err
			}
			r, err := model.NewBPMRange(start, end, bpmMin, bpmMax)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, r)
			continue
		}
		if isSectionBoundary(line) {
			inSection = false
		}
	}
	return ranges, nil
}

// isSectionBoundary reports whether line starts a new bold field, which ends
// whatever bullet list preceded it.
func isSectionBoundary(line string) bool {
	return reBoldFieldHeader.MatchString(strings.TrimSpace(line))
}

func parsePercentSection(lines []string, header *regexp.Regexp) map[string]float64 {
	result := map[string]float64{}
	inSection := false
	for _, line := range lines {
		if header.MatchString(line) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if m := rePercentEntry.FindStringSubmatch(trimmed); m != nil {
			pct, err := strconv.ParseFloat(m[2], 64)
			if err == nil {
				result[strings.TrimSpace(m[1])] = pct / 100.0
			}
			continue
		}
		if trimmed != "" && isSectionBoundary(trimmed) {
			inSection = false
		}
	}
	return result
}

func parseMood(lines []string) (includes []string, excludes []string) {
	for _, line := range lines {
		if m := reMood.FindStringSubmatch(line); m != nil {
			includes = splitCommaList(m[1])
		}
		if m := reMoodExclusions.FindStringSubmatch(line); m != nil {
			excludes = splitCommaList(m[1])
		}
	}
	return includes, excludes
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseAustralianOverride reads a **Australian Content**: N% minimum line
// local to a daypart block, overriding the station-wide floor for it alone.
func parseAustralianOverride(lines []string) *float64 {
	for _, line := range lines {
		if m := reAustralian.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				frac := v / 100.0
				return &frac
			}
		}
	}
	return nil
}

func parseSpecialty(lines []string) *model.SpecialtyConstraint {
	for _, line := range lines {
		if m := reSpecialty.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(m[1])
			params := map[string]string{"description": value}
			if pm := reSpecialtyPct.FindStringSubmatch(value); pm != nil {
				params["percentage"] = pm[1]
				params["genre"] = strings.TrimSpace(pm[2])
			}
			tag := strings.ToLower(strings.ReplaceAll(value, " ", "_"))
			return &model.SpecialtyConstraint{Tag: tag, Parameters: params}
		}
	}
	return nil
}
