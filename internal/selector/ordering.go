package selector

import (
	"sort"

	"github.com/troykelly/playlistgen/internal/model"
)

// orderTracks lays the selected tracks out against the daypart's BPM
// sub-windows per spec.md §4.5: positions are partitioned across
// sub-windows proportionally to each sub-window's duration, the same split
// validator.rangeForPosition uses on the scoring side, and within a
// partition tracks are ordered by ascending BPM (tie-break: track id
// ascending) so consecutive tracks differ by at most 15 BPM wherever the
// candidate pool allows it. A sub-window short on matching tracks borrows
// from the overflow of others rather than leaving its slots empty.
func orderTracks(tracks []model.SelectedTrack, ranges []model.BPMRange) []model.SelectedTrack {
	if len(ranges) == 0 || len(tracks) == 0 {
		return assignPositions(sortByIDAscending(tracks))
	}

	total := len(tracks)
	slotCounts := make([]int, len(ranges))
	for p := 0; p < total; p++ {
		slotCounts[rangeIndexForPosition(p, total, ranges)]++
	}

	groups := make([][]model.SelectedTrack, len(ranges))
	for _, t := range tracks {
		idx := bestRangeIndex(t, ranges)
		groups[idx] = append(groups[idx], t)
	}
	for _, g := range groups {
		sortByBPMThenID(g)
	}

	ordered := make([]model.SelectedTrack, 0, total)
	var overflow []model.SelectedTrack
	for i, g := range groups {
		take := slotCounts[i]
		if take > len(g) {
			take = len(g)
		}
		ordered = append(ordered, g[:take]...)
		overflow = append(overflow, g[take:]...)
	}

	sortByBPMThenID(overflow)
	ordered = append(ordered, overflow...)

	return assignPositions(ordered)
}

// rangeIndexForPosition maps playlist position p (0-based, out of total) to
// the sub-window scheduled for it, splitting positions across sub-windows
// proportionally to each sub-window's clock-time duration. Mirrors
// validator.rangeForPosition so the order the selector lays tracks out in
// and the coherence the validator scores them against agree on what
// "scheduled for this position" means.
func rangeIndexForPosition(p, total int, ranges []model.BPMRange) int {
	if total <= 0 {
		return 0
	}
	span := ranges[len(ranges)-1].SubWindowEnd - ranges[0].SubWindowStart
	if span <= 0 {
		return 0
	}
	fraction := float64(p) / float64(total)
	offset := model.ClockTime(float64(span)*fraction) + ranges[0].SubWindowStart
	for i, r := range ranges {
		if r.CoversInstant(offset) {
			return i
		}
	}
	return len(ranges) - 1
}

// bestRangeIndex picks the sub-window whose BPM band contains the track's
// BPM; falls back to the sub-window whose midpoint is numerically closest
// when the track's BPM sits outside every band.
func bestRangeIndex(t model.SelectedTrack, ranges []model.BPMRange) int {
	bpm := bpmOf(t)
	for i, r := range ranges {
		if r.Contains(bpm) {
			return i
		}
	}

	best := 0
	bestDist := -1
	for i, r := range ranges {
		mid := (r.BPMMin + r.BPMMax) / 2
		dist := mid - bpm
		if dist < 0 {
			dist = -dist
		}
		if bestDist == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

func bpmOf(t model.SelectedTrack) int {
	if t.BPM == nil {
		return 0
	}
	return *t.BPM
}

func sortByBPMThenID(tracks []model.SelectedTrack) {
	sort.SliceStable(tracks, func(i, j int) bool {
		bi, bj := bpmOf(tracks[i]), bpmOf(tracks[j])
		if bi != bj {
			return bi < bj
		}
		return tracks[i].TrackID < tracks[j].TrackID
	})
}

func sortByIDAscending(tracks []model.SelectedTrack) []model.SelectedTrack {
	out := append([]model.SelectedTrack(nil), tracks...)
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}

func assignPositions(tracks []model.SelectedTrack) []model.SelectedTrack {
	for i := range tracks {
		tracks[i].PositionInPlaylist = i
	}
	return tracks
}
