package scheduling

import (
	"sort"
	"time"
)

// placement is one occupied interval on a patient's day, either a previously
// booked appointment or a slot provisionally placed during this request.
type placement struct {
	SeriesID        string
	SameDaySequence int
	Provider        ProviderRef
	Start           time.Time
	End             time.Time
}

// DayIndex groups a patient's appointments by clinic-local calendar date so
// the search engine can answer same-day questions in O(1). Existing
// appointments are loaded once; provisional placements are layered on top as
// the search progresses and never touch the loaded records.
type DayIndex struct {
	loc  *time.Location
	days map[string][]placement
}

func BuildDayIndex(appts []ExistingAppointment, loc *time.Location) *DayIndex {
	idx := &DayIndex{
		loc:  loc,
		days: make(map[string][]placement, len(appts)),
	}
	for _, a := range appts {
		idx.add(placement{
			Provider: a.Provider,
			Start:    a.Start,
			End:      a.End,
		})
	}
	return idx
}

// Place records a provisionally scheduled slot so later series in the same
// request see it when clustering and checking overlaps.
func (idx *DayIndex) Place(slot AppointmentSlot, sameDaySequence int) {
	idx.add(placement{
		SeriesID:        slot.SeriesID,
		SameDaySequence: sameDaySequence,
		Provider:        slot.Provider,
		Start:           slot.Start,
		End:             slot.End(),
	})
}

func (idx *DayIndex) add(p placement) {
	key := idx.dateKey(p.Start)
	day := append(idx.days[key], p)
	sort.Slice(day, func(i, j int) bool { return day[i].Start.Before(day[j].Start) })
	idx.days[key] = day
}

// OnDate returns the day's placements ordered by start time. The slice is
// shared; callers must not mutate it.
func (idx *DayIndex) OnDate(day time.Time) []placement {
	return idx.days[idx.dateKey(day)]
}

func (idx *DayIndex) HasAppointments(day time.Time) bool {
	return len(idx.days[idx.dateKey(day)]) > 0
}

func (idx *DayIndex) CountOn(day time.Time) int {
	return len(idx.days[idx.dateKey(day)])
}

func (idx *DayIndex) dateKey(t time.Time) string {
	return t.In(idx.loc).Format("2006-01-02")
}
