package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// SearchWindow bounds the clinic's bookable hours and the granularity of
// candidate start times.
type SearchWindow struct {
	DayStartMinutes  int // minutes after local midnight, e.g. 480 for 08:00
	DayEndMinutes    int // minutes after local midnight, e.g. 1020 for 17:00
	IncrementMinutes int // candidate start time step
}

// searcher walks a bounded day horizon for one request, placing series one at
// a time against the shared day index. It owns no locks and performs no I/O;
// candidate slots are scratch data until the transactor commits them.
type searcher struct {
	idx     *DayIndex
	clus    ClusteringPreference
	win     SearchWindow
	loc     *time.Location
	day0    time.Time // request date at clinic-local midnight
	horizon int       // number of days searched, day0 inclusive
}

type seriesResult struct {
	Slots   []AppointmentSlot
	Status  SeriesStatus
	Reason  FailureReason
	Message string
}

func newSearcher(idx *DayIndex, clus ClusteringPreference, win SearchWindow, loc *time.Location, requestDate time.Time, horizon int) *searcher {
	return &searcher{
		idx:     idx,
		clus:    clus,
		win:     win,
		loc:     loc,
		day0:    midnight(requestDate, loc),
		horizon: horizon,
	}
}

// searchSeries places as many occurrences of one series as the horizon,
// weekly quota, and clustering constraints allow. earliest is the first
// permissible day, already resolved against dependencies and fixed start
// dates. Slots found here are recorded in the day index so later series see
// them.
func (s *searcher) searchSeries(req AppointmentRequest, earliest time.Time) seriesResult {
	want := 1
	var pattern RecurringPattern
	if req.Pattern != nil {
		pattern = *req.Pattern
		want = pattern.TotalOccurrences
	}

	firstDay := s.day0
	if e := midnight(earliest, s.loc); e.After(firstDay) {
		firstDay = e
	}
	horizonEnd := s.day0.AddDate(0, 0, s.horizon)
	if !firstDay.Before(horizonEnd) {
		return seriesResult{
			Status:  StatusCannotSchedule,
			Reason:  ReasonHorizonExhausted,
			Message: "no searchable days remain before the horizon",
		}
	}

	target := pattern.MaxPerWeek
	if pattern.PreferredPerWeek > 0 {
		target = pattern.PreferredPerWeek
	}

	var (
		slots          []AppointmentSlot
		clusterBlocked bool
		quotaBlocked   bool
		weekCounts     = map[string]int{}
		weeksVisited   = map[string]struct{}{}
	)

	for _, day := range s.dayOrder(firstDay, horizonEnd, req.Pattern != nil) {
		if len(slots) == want {
			break
		}

		if req.Pattern != nil {
			wk := isoWeekKey(day)
			weeksVisited[wk] = struct{}{}
			limit := weekCap(pattern, target, len(slots), len(weeksVisited))
			if weekCounts[wk] >= limit {
				quotaBlocked = true
				continue
			}
		}

		start, ok, blocked := s.findStartOnDay(day, req)
		if blocked {
			clusterBlocked = true
		}
		if !ok {
			continue
		}

		slot := AppointmentSlot{
			SeriesID:        req.SeriesID,
			Provider:        req.Provider,
			Type:            req.Type,
			Start:           start,
			DurationMinutes: req.DurationMinutes,
		}
		slots = append(slots, slot)
		s.idx.Place(slot, req.SameDaySequence)
		if req.Pattern != nil {
			weekCounts[isoWeekKey(day)]++
		}
	}

	// Day preference may place out of calendar order; occurrences are always
	// numbered by start time.
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	for i := range slots {
		slots[i].Occurrence = i + 1
	}

	switch {
	case len(slots) == want:
		return seriesResult{Slots: slots, Status: StatusFullyScheduled}
	case len(slots) > 0:
		return seriesResult{
			Slots:   slots,
			Status:  StatusPartiallyScheduled,
			Reason:  partialReason(clusterBlocked, quotaBlocked),
			Message: fmt.Sprintf("placed %d of %d occurrences before the search horizon ended", len(slots), want),
		}
	default:
		reason := partialReason(clusterBlocked, quotaBlocked)
		return seriesResult{
			Status:  StatusCannotSchedule,
			Reason:  reason,
			Message: cannotScheduleMessage(reason),
		}
	}
}

// dayOrder yields the candidate days. Normally that is plain chronological
// order; with preferExistingDays set, days the patient already visits come
// first — across the whole horizon for a single appointment, within each ISO
// week for a recurring one so the weekly pacing stays intact.
func (s *searcher) dayOrder(firstDay, horizonEnd time.Time, recurring bool) []time.Time {
	var days []time.Time
	for d := firstDay; d.Before(horizonEnd); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	if !s.clus.Enabled || !s.clus.PreferExistingDays {
		return days
	}
	if !recurring {
		return partitionByOccupancy(days, s.idx)
	}

	out := make([]time.Time, 0, len(days))
	for start := 0; start < len(days); {
		end := start + 1
		for end < len(days) && isoWeekKey(days[end]) == isoWeekKey(days[start]) {
			end++
		}
		out = append(out, partitionByOccupancy(days[start:end], s.idx)...)
		start = end
	}
	return out
}

func partitionByOccupancy(days []time.Time, idx *DayIndex) []time.Time {
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		if idx.HasAppointments(d) {
			out = append(out, d)
		}
	}
	for _, d := range days {
		if !idx.HasAppointments(d) {
			out = append(out, d)
		}
	}
	return out
}

// weekCap is how many occurrences may land in the current week. The target
// rate is preferredPerWeek when set; a series that has fallen behind that
// pace may catch up to maxPerWeek.
func weekCap(p RecurringPattern, target, placed, weeksVisited int) int {
	expected := target * (weeksVisited - 1)
	if placed < expected {
		return p.MaxPerWeek
	}
	return target
}

// findStartOnDay picks the earliest valid start time on day, first-fit
// ascending. It returns blocked=true when the day was rejected purely by
// clustering bounds, which distinguishes a clustering conflict from an
// exhausted horizon in the series outcome.
func (s *searcher) findStartOnDay(day time.Time, req AppointmentRequest) (start time.Time, ok bool, blocked bool) {
	existing := s.idx.OnDate(day)

	if s.clus.Enabled && len(existing) >= s.clus.MaxAppointmentsPerDay {
		return time.Time{}, false, true
	}

	dur := time.Duration(req.DurationMinutes) * time.Minute
	dayOpen := day.Add(time.Duration(s.win.DayStartMinutes) * time.Minute)
	dayClose := day.Add(time.Duration(s.win.DayEndMinutes) * time.Minute)
	step := time.Duration(s.win.IncrementMinutes) * time.Minute

	// Series placed earlier in this request with a lower same-day sequence
	// hint must keep their time ordering on a shared day.
	var notBefore time.Time
	if req.SameDaySequence > 0 {
		for _, p := range existing {
			if p.SeriesID != "" && p.SameDaySequence > 0 && p.SameDaySequence < req.SameDaySequence && p.End.After(notBefore) {
				notBefore = p.End
			}
		}
	}

	sawClusterReject := false
	for cand := dayOpen; !cand.Add(dur).After(dayClose); cand = cand.Add(step) {
		if !notBefore.IsZero() && cand.Before(notBefore) {
			continue
		}
		if conflictsWithDay(cand, cand.Add(dur), existing) {
			continue
		}
		if s.clus.Enabled && len(existing) > 0 && !s.withinClusterBounds(cand, dur, existing) {
			sawClusterReject = true
			continue
		}
		return cand, true, false
	}

	return time.Time{}, false, sawClusterReject
}

// conflictsWithDay rejects candidates overlapping any of the patient's
// same-day appointments. The patient cannot be in two places at once, so
// provider identity does not matter here; global provider availability is
// what the transactor re-validates at commit time.
func conflictsWithDay(start, end time.Time, day []placement) bool {
	for _, p := range day {
		if overlaps(start, end, p.Start, p.End) {
			return true
		}
	}
	return false
}

// withinClusterBounds enforces the same-day packing rules: the candidate must
// keep at least MinMinutesBetween between itself and each neighbouring
// appointment, and the day's first-to-last start span including the candidate
// must not exceed MaxMinutesBetween.
func (s *searcher) withinClusterBounds(cand time.Time, dur time.Duration, day []placement) bool {
	minGap := time.Duration(s.clus.MinMinutesBetween) * time.Minute
	maxSpan := time.Duration(s.clus.MaxMinutesBetween) * time.Minute
	candEnd := cand.Add(dur)

	firstStart := cand
	lastStart := cand
	for _, p := range day {
		if p.Start.Before(firstStart) {
			firstStart = p.Start
		}
		if p.Start.After(lastStart) {
			lastStart = p.Start
		}

		if !p.End.After(cand) {
			// Neighbour ends before the candidate begins.
			if cand.Sub(p.End) < minGap {
				return false
			}
		} else if !p.Start.Before(candEnd) {
			// Neighbour begins after the candidate ends.
			if p.Start.Sub(candEnd) < minGap {
				return false
			}
		}
	}

	return lastStart.Sub(firstStart) <= maxSpan
}

func partialReason(clusterBlocked, quotaBlocked bool) FailureReason {
	switch {
	case clusterBlocked:
		return ReasonClusteringConflict
	case quotaBlocked:
		return ReasonPatternConflict
	default:
		return ReasonHorizonExhausted
	}
}

func cannotScheduleMessage(r FailureReason) string {
	switch r {
	case ReasonClusteringConflict:
		return "no candidate time satisfied the clustering bounds within the search horizon"
	case ReasonPatternConflict:
		return "the weekly quota left no placeable day within the search horizon"
	default:
		return "the search horizon was exhausted before any occurrence could be placed"
	}
}
