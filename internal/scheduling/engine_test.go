package scheduling

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/medisync/clinic-scheduler/internal/redis"
)

type fakeStore struct {
	listFn    func(ctx context.Context, patientID, clinicID uuid.UUID, from, to time.Time) ([]ExistingAppointment, error)
	reserveFn func(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error)
}

func (f *fakeStore) ListPatientAppointments(ctx context.Context, patientID, clinicID uuid.UUID, from, to time.Time) ([]ExistingAppointment, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, patientID, clinicID, from, to)
}

func (f *fakeStore) ReserveSlots(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
	if f.reserveFn == nil {
		out := make([]AppointmentSlot, len(slots))
		copy(out, slots)
		for i := range out {
			out[i].Reserved = true
		}
		return out, nil
	}
	return f.reserveFn(ctx, rc, slots)
}

// fakeLocker runs the callback inline, optionally failing the first failCount
// acquisitions. Every key set handed to it is recorded for assertions.
type fakeLocker struct {
	keySets   [][]string
	failCount int
}

func (f *fakeLocker) WithResourceDayLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	f.keySets = append(f.keySets, keys)
	if f.failCount > 0 {
		f.failCount--
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

func newTestEngine(store Store, locker redisclient.Locker, retries int) *Engine {
	return NewEngine(store, locker, Options{ReservationRetries: retries}, nil)
}

func TestEngine_DependentSeriesStartsAfterPrerequisite(t *testing.T) {
	req := validFindRequest()
	req.MaxDaysToSearch = 30
	req.Requests = []AppointmentRequest{
		{
			SeriesID:        "surgery-prep",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePrimaryCareVisit,
			DurationMinutes: 30,
			Pattern:         &RecurringPattern{TotalOccurrences: 3, MaxPerWeek: 3},
		},
		{
			SeriesID:        "post-op-pt",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePhysicalTherapy,
			DurationMinutes: 45,
			Pattern: &RecurringPattern{
				TotalOccurrences:     2,
				MaxPerWeek:           2,
				StartAfterSeriesID:   "surgery-prep",
				StartAfterOccurrence: 2,
			},
		},
	}

	engine := newTestEngine(&fakeStore{}, &fakeLocker{}, 1)
	resp, err := engine.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success")
	}

	prep := resp.Series[0]
	pt := resp.Series[1]
	if prep.Status != StatusFullyScheduled || pt.Status != StatusFullyScheduled {
		t.Fatalf("statuses = %s / %s, want both fully scheduled", prep.Status, pt.Status)
	}

	// Occurrence 2 of the prep series lands on Jan 7, so the therapy series
	// may not begin before Jan 8.
	prereqEnd := prep.Slots[1].End()
	for _, slot := range pt.Slots {
		if !slot.Start.After(prereqEnd) {
			t.Errorf("dependent slot %v does not follow prerequisite end %v", slot.Start, prereqEnd)
		}
		if midnight(slot.Start, time.UTC).Equal(midnight(prereqEnd, time.UTC)) {
			t.Errorf("dependent slot %v shares a day with the prerequisite occurrence", slot.Start)
		}
	}
}

func TestEngine_PrerequisiteUnderDeliveryFailsDependent(t *testing.T) {
	req := validFindRequest()
	req.MaxDaysToSearch = 2
	req.Requests = []AppointmentRequest{
		{
			SeriesID:        "prep",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePrimaryCareVisit,
			DurationMinutes: 30,
			Pattern:         &RecurringPattern{TotalOccurrences: 3, MaxPerWeek: 3},
		},
		{
			SeriesID:        "followup",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePhysicalTherapy,
			DurationMinutes: 45,
			Pattern: &RecurringPattern{
				TotalOccurrences:     1,
				MaxPerWeek:           1,
				StartAfterSeriesID:   "prep",
				StartAfterOccurrence: 3,
			},
		},
	}

	engine := newTestEngine(&fakeStore{}, &fakeLocker{}, 1)
	resp, err := engine.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prep := resp.Series[0]
	followup := resp.Series[1]
	if prep.Status != StatusPartiallyScheduled {
		t.Errorf("prep status = %s, want %s", prep.Status, StatusPartiallyScheduled)
	}
	if followup.Status != StatusCannotSchedule {
		t.Errorf("followup status = %s, want %s", followup.Status, StatusCannotSchedule)
	}
	if !strings.Contains(followup.Message, "prerequisite") {
		t.Errorf("followup message = %q, want prerequisite explanation", followup.Message)
	}
	if !resp.Success {
		t.Error("partial prep placement should still count as success")
	}
}

func TestEngine_ReservationConflictTriggersReSearch(t *testing.T) {
	calls := 0
	store := &fakeStore{
		reserveFn: func(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
			calls++
			if calls == 1 {
				return nil, &ReservationConflictError{Slot: slots[0]}
			}
			out := make([]AppointmentSlot, len(slots))
			copy(out, slots)
			for i := range out {
				out[i].Reserved = true
			}
			return out, nil
		},
	}

	req := validFindRequest()
	engine := newTestEngine(store, &fakeLocker{}, 1)
	resp, err := engine.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("reserve calls = %d, want 2", calls)
	}
	if !resp.Success {
		t.Fatal("expected success after re-search")
	}

	// The first candidate, 08:00, was lost to a concurrent request; the
	// re-search must route around the conflicted interval.
	got := resp.Series[0].Slots[0].Start
	if want := at(2025, time.January, 6, 8, 30); !got.Equal(want) {
		t.Errorf("re-searched start = %v, want %v", got, want)
	}
	if !resp.Series[0].Slots[0].Reserved {
		t.Error("committed slot should be marked reserved")
	}
}

func TestEngine_RepeatedConflictDropsSeriesKeepsSiblings(t *testing.T) {
	otherClinician := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	store := &fakeStore{
		reserveFn: func(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
			for _, s := range slots {
				if s.SeriesID == "contested" {
					return nil, &ReservationConflictError{Slot: s}
				}
			}
			out := make([]AppointmentSlot, len(slots))
			copy(out, slots)
			for i := range out {
				out[i].Reserved = true
			}
			return out, nil
		},
	}

	req := validFindRequest()
	req.Requests = []AppointmentRequest{
		{
			SeriesID:        "contested",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePrimaryCareVisit,
			DurationMinutes: 30,
		},
		{
			SeriesID:        "quiet",
			Provider:        ClinicianRef(otherClinician),
			Type:            TypeLabDraw,
			DurationMinutes: 30,
		},
	}

	engine := newTestEngine(store, &fakeLocker{}, 1)
	resp, err := engine.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	contested := resp.Series[0]
	quiet := resp.Series[1]
	if contested.Status != StatusCannotSchedule {
		t.Errorf("contested status = %s, want %s", contested.Status, StatusCannotSchedule)
	}
	if !strings.Contains(contested.Message, "concurrent") {
		t.Errorf("contested message = %q, want a concurrent-request explanation", contested.Message)
	}
	if quiet.Status != StatusFullyScheduled {
		t.Errorf("quiet status = %s, want %s", quiet.Status, StatusFullyScheduled)
	}
	if !resp.Success {
		t.Error("sibling commit should keep the response successful")
	}
	for _, d := range resp.ReservationDetails {
		if d.SeriesID == "contested" {
			t.Error("dropped series must not appear in reservation details")
		}
	}
}

func TestEngine_ReservationConflictReSearchesDependents(t *testing.T) {
	calls := 0
	store := &fakeStore{
		reserveFn: func(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
			calls++
			if calls == 1 {
				for _, s := range slots {
					if s.SeriesID == "procedure" {
						return nil, &ReservationConflictError{Slot: s}
					}
				}
			}
			out := make([]AppointmentSlot, len(slots))
			copy(out, slots)
			for i := range out {
				out[i].Reserved = true
			}
			return out, nil
		},
	}

	req := validFindRequest()
	req.Requests = []AppointmentRequest{
		{
			// Fills the whole clinic day, so losing its slot moves it a
			// full day later.
			SeriesID:        "procedure",
			Provider:        ClinicianRef(testClinician),
			Type:            TypeIVTherapy,
			DurationMinutes: 540,
		},
		{
			SeriesID:        "followup",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePrimaryCareVisit,
			DurationMinutes: 30,
			Pattern: &RecurringPattern{
				TotalOccurrences:     1,
				MaxPerWeek:           1,
				StartAfterSeriesID:   "procedure",
				StartAfterOccurrence: 1,
			},
		},
	}

	engine := newTestEngine(store, &fakeLocker{}, 1)
	resp, err := engine.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	procedure := resp.Series[0]
	followup := resp.Series[1]
	if procedure.Status != StatusFullyScheduled || followup.Status != StatusFullyScheduled {
		t.Fatalf("statuses = %s / %s, want both fully scheduled", procedure.Status, followup.Status)
	}

	// The re-search pushed the procedure to the next day; the followup must
	// move with it, never keeping a slot anchored to the old occurrence time.
	prereqEnd := procedure.Slots[0].End()
	if followup.Slots[0].Start.Before(prereqEnd) {
		t.Errorf("followup start %v precedes prerequisite end %v", followup.Slots[0].Start, prereqEnd)
	}
}

func TestEngine_DroppedSeriesCascadesToDependents(t *testing.T) {
	otherClinician := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	store := &fakeStore{
		reserveFn: func(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
			for _, s := range slots {
				if s.SeriesID == "procedure" {
					return nil, &ReservationConflictError{Slot: s}
				}
			}
			out := make([]AppointmentSlot, len(slots))
			copy(out, slots)
			for i := range out {
				out[i].Reserved = true
			}
			return out, nil
		},
	}

	req := validFindRequest()
	req.Requests = []AppointmentRequest{
		{
			SeriesID:        "procedure",
			Provider:        ClinicianRef(testClinician),
			Type:            TypeIVTherapy,
			DurationMinutes: 30,
		},
		{
			SeriesID:        "rehab",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePhysicalTherapy,
			DurationMinutes: 45,
			Pattern: &RecurringPattern{
				TotalOccurrences:     1,
				MaxPerWeek:           1,
				StartAfterSeriesID:   "procedure",
				StartAfterOccurrence: 1,
			},
		},
		{
			SeriesID:        "lab",
			Provider:        ClinicianRef(otherClinician),
			Type:            TypeLabDraw,
			DurationMinutes: 30,
		},
	}

	engine := newTestEngine(store, &fakeLocker{}, 0)
	resp, err := engine.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	procedure := resp.Series[0]
	rehab := resp.Series[1]
	lab := resp.Series[2]
	if procedure.Status != StatusCannotSchedule {
		t.Errorf("procedure status = %s, want %s", procedure.Status, StatusCannotSchedule)
	}
	if rehab.Status != StatusCannotSchedule {
		t.Errorf("rehab status = %s, want %s", rehab.Status, StatusCannotSchedule)
	}
	if !strings.Contains(rehab.Message, "prerequisite") {
		t.Errorf("rehab message = %q, want a prerequisite explanation", rehab.Message)
	}
	if lab.Status != StatusFullyScheduled {
		t.Errorf("lab status = %s, want %s", lab.Status, StatusFullyScheduled)
	}
	for _, d := range resp.ReservationDetails {
		if d.SeriesID != "lab" {
			t.Errorf("series %s must not reach the commit batch", d.SeriesID)
		}
	}
}

func TestEngine_RerunAgainstOwnOutputDoesNotCollide(t *testing.T) {
	req := validFindRequest()
	req.Requests[0].Provider = ClinicianRef(testClinician)
	req.Requests[0].Pattern = &RecurringPattern{TotalOccurrences: 3, MaxPerWeek: 3}

	first := newTestEngine(&fakeStore{}, &fakeLocker{}, 1)
	firstResp, err := first.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if !firstResp.Success {
		t.Fatal("first run should schedule")
	}

	committed := make([]ExistingAppointment, 0, len(firstResp.ReservationDetails))
	for _, d := range firstResp.ReservationDetails {
		committed = append(committed, ExistingAppointment{
			ID:        uuid.New(),
			PatientID: req.PatientID,
			ClinicID:  req.ClinicID,
			Provider:  d.Provider,
			Type:      d.Type,
			Start:     d.Start,
			End:       d.End,
		})
	}

	second := newTestEngine(&fakeStore{
		listFn: func(ctx context.Context, patientID, clinicID uuid.UUID, from, to time.Time) ([]ExistingAppointment, error) {
			return committed, nil
		},
	}, &fakeLocker{}, 1)
	secondResp, err := second.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if !secondResp.Success {
		t.Fatal("second run should still find open time")
	}

	for _, d := range secondResp.ReservationDetails {
		for _, prior := range committed {
			if overlaps(d.Start, d.End, prior.Start, prior.End) {
				t.Errorf("slot %v-%v collides with previously committed %v-%v",
					d.Start, d.End, prior.Start, prior.End)
			}
		}
	}
}

func TestEngine_LockContentionAbandonsBatch(t *testing.T) {
	locker := &fakeLocker{failCount: 10}
	engine := newTestEngine(&fakeStore{}, locker, 1)

	resp, err := engine.FindAvailableAppointments(context.Background(), validFindRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Success {
		t.Error("expected failure when locks stay contended")
	}
	if resp.ReservationDetails != nil {
		t.Error("failed response must omit reservation details entirely")
	}
	if len(locker.keySets) != 2 {
		t.Errorf("lock attempts = %d, want one retry then abandon", len(locker.keySets))
	}
	if got := resp.Series[0].Status; got != StatusCannotSchedule {
		t.Errorf("series status = %s, want %s", got, StatusCannotSchedule)
	}
}

func TestEngine_LockContentionRecoversOnRetry(t *testing.T) {
	locker := &fakeLocker{failCount: 1}
	engine := newTestEngine(&fakeStore{}, locker, 1)

	resp, err := engine.FindAvailableAppointments(context.Background(), validFindRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success once the lock frees up")
	}
	if len(locker.keySets) != 2 {
		t.Errorf("lock attempts = %d, want 2", len(locker.keySets))
	}
}

func TestEngine_LockKeysCoverEveryResourceDay(t *testing.T) {
	locker := &fakeLocker{}
	engine := newTestEngine(&fakeStore{}, locker, 0)

	req := validFindRequest()
	req.Requests[0].Provider = ClinicianRef(testClinician)
	req.Requests[0].Pattern = &RecurringPattern{TotalOccurrences: 2, MaxPerWeek: 2}

	if _, err := engine.FindAvailableAppointments(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locker.keySets) != 1 {
		t.Fatalf("lock attempts = %d, want 1", len(locker.keySets))
	}
	want := []string{
		"clinician:" + testClinician.String() + "|2025-01-06",
		"clinician:" + testClinician.String() + "|2025-01-07",
	}
	got := locker.keySets[0]
	if len(got) != len(want) {
		t.Fatalf("lock keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lock key %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEngine_LookupFailureAbortsRequest(t *testing.T) {
	store := &fakeStore{
		listFn: func(ctx context.Context, patientID, clinicID uuid.UUID, from, to time.Time) ([]ExistingAppointment, error) {
			return nil, errors.New("connection refused")
		},
	}
	engine := newTestEngine(store, &fakeLocker{}, 1)

	_, err := engine.FindAvailableAppointments(context.Background(), validFindRequest())
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("error = %v, want LookupError", err)
	}
}

func TestEngine_ZeroHorizonSkipsStore(t *testing.T) {
	store := &fakeStore{
		listFn: func(ctx context.Context, patientID, clinicID uuid.UUID, from, to time.Time) ([]ExistingAppointment, error) {
			t.Fatal("lookup must not run for a zero day horizon")
			return nil, nil
		},
		reserveFn: func(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
			t.Fatal("reserve must not run for a zero day horizon")
			return nil, nil
		},
	}
	engine := newTestEngine(store, &fakeLocker{}, 1)

	req := validFindRequest()
	req.MaxDaysToSearch = 0

	resp, err := engine.FindAvailableAppointments(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Success {
		t.Error("zero horizon cannot schedule anything")
	}
	for _, s := range resp.Series {
		if s.Status != StatusCannotSchedule {
			t.Errorf("series %s status = %s, want %s", s.SeriesID, s.Status, StatusCannotSchedule)
		}
	}
}

func TestEngine_InvalidRequestRejectedBeforeSearch(t *testing.T) {
	engine := newTestEngine(&fakeStore{}, &fakeLocker{}, 1)

	req := validFindRequest()
	req.Requests[0].DurationMinutes = 0

	_, err := engine.FindAvailableAppointments(context.Background(), req)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestEngine_DependencyCycleRejected(t *testing.T) {
	engine := newTestEngine(&fakeStore{}, &fakeLocker{}, 1)

	req := validFindRequest()
	req.Requests = []AppointmentRequest{
		{
			SeriesID:        "a",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePrimaryCareVisit,
			DurationMinutes: 30,
			Pattern: &RecurringPattern{
				TotalOccurrences: 1, MaxPerWeek: 1,
				StartAfterSeriesID: "b", StartAfterOccurrence: 1,
			},
		},
		{
			SeriesID:        "b",
			Provider:        ClinicianRef(testClinician),
			Type:            TypePrimaryCareVisit,
			DurationMinutes: 30,
			Pattern: &RecurringPattern{
				TotalOccurrences: 1, MaxPerWeek: 1,
				StartAfterSeriesID: "a", StartAfterOccurrence: 1,
			},
		},
	}

	_, err := engine.FindAvailableAppointments(context.Background(), req)
	var cycleErr *DependencyCycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error = %v, want DependencyCycleError", err)
	}
}
