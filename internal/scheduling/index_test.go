package scheduling

import (
	"testing"
	"time"
)

func TestDayIndex_GroupsByClinicLocalDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	// 2025-01-07T02:00Z is still Jan 6 in New York.
	existing := []ExistingAppointment{
		{
			Provider: ClinicianRef(testClinician),
			Start:    time.Date(2025, time.January, 7, 2, 0, 0, 0, time.UTC),
			End:      time.Date(2025, time.January, 7, 3, 0, 0, 0, time.UTC),
		},
		{
			Provider: ClinicianRef(testClinician),
			Start:    time.Date(2025, time.January, 6, 15, 0, 0, 0, time.UTC),
			End:      time.Date(2025, time.January, 6, 16, 0, 0, 0, time.UTC),
		},
	}
	idx := BuildDayIndex(existing, ny)

	jan6 := time.Date(2025, time.January, 6, 0, 0, 0, 0, ny)
	if got := idx.CountOn(jan6); got != 2 {
		t.Errorf("count on Jan 6 (NY) = %d, want 2", got)
	}
	jan7 := time.Date(2025, time.January, 7, 0, 0, 0, 0, ny)
	if idx.HasAppointments(jan7) {
		t.Error("Jan 7 (NY) should be empty")
	}
}

func TestDayIndex_OnDateSortedByStart(t *testing.T) {
	idx := BuildDayIndex(nil, time.UTC)
	idx.Place(AppointmentSlot{SeriesID: "b", Start: at(2025, time.January, 6, 14, 0), DurationMinutes: 30}, 0)
	idx.Place(AppointmentSlot{SeriesID: "a", Start: at(2025, time.January, 6, 9, 0), DurationMinutes: 30}, 0)

	got := idx.OnDate(day(2025, time.January, 6))
	if len(got) != 2 {
		t.Fatalf("placements = %d, want 2", len(got))
	}
	if got[0].SeriesID != "a" || got[1].SeriesID != "b" {
		t.Errorf("order = %s, %s; want a, b", got[0].SeriesID, got[1].SeriesID)
	}
	if want := at(2025, time.January, 6, 9, 30); !got[0].End.Equal(want) {
		t.Errorf("placement end = %v, want %v", got[0].End, want)
	}
}
