package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	redisclient "github.com/medisync/clinic-scheduler/internal/redis"
)

// Options tunes the engine. Zero values fall back to sane clinic defaults.
type Options struct {
	Location           *time.Location
	Window             SearchWindow
	ReservationRetries int
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Window.DayStartMinutes == 0 && o.Window.DayEndMinutes == 0 {
		o.Window = SearchWindow{DayStartMinutes: 8 * 60, DayEndMinutes: 17 * 60}
	}
	if o.Window.IncrementMinutes <= 0 {
		o.Window.IncrementMinutes = 15
	}
	if o.ReservationRetries < 0 {
		o.ReservationRetries = 0
	}
	return o
}

// Engine runs the full scheduling pipeline for one request: validation,
// existing-appointment indexing, dependency-ordered slot search, locked
// reservation, and response assembly. Requests share no mutable state;
// correctness under concurrency comes from the transactor's lock ordering
// alone.
type Engine struct {
	store Store
	tx    *transactor
	opts  Options
	log   *zap.Logger
}

func NewEngine(store Store, locker redisclient.Locker, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: store,
		tx:    &transactor{store: store, locker: locker},
		opts:  opts.withDefaults(),
		log:   log,
	}
}

// FindAvailableAppointments searches and atomically reserves slots for every
// requested series. Validation, dependency, and lookup failures return an
// error with no partial work; per-series scheduling failures are data in the
// response.
func (e *Engine) FindAvailableAppointments(ctx context.Context, req FindAvailableAppointmentsRequest) (FindAvailableAppointmentsResponse, error) {
	if err := ValidateRequest(req); err != nil {
		return FindAvailableAppointmentsResponse{}, err
	}

	ordered, err := ResolveOrder(req.Requests)
	if err != nil {
		return FindAvailableAppointmentsResponse{}, err
	}

	if req.MaxDaysToSearch == 0 {
		results := make(map[string]seriesResult, len(req.Requests))
		for _, ar := range req.Requests {
			results[ar.SeriesID] = seriesResult{
				Status:  StatusCannotSchedule,
				Reason:  ReasonHorizonExhausted,
				Message: "search horizon is zero days",
			}
		}
		return assembleResponse(req.Requests, results, nil), nil
	}

	loc := e.opts.Location
	day0 := midnight(req.RequestDate, loc)
	horizonEnd := day0.AddDate(0, 0, req.MaxDaysToSearch)

	existing, err := e.store.ListPatientAppointments(ctx, req.PatientID, req.ClinicID, day0, horizonEnd)
	if err != nil {
		return FindAvailableAppointmentsResponse{}, &LookupError{Err: err}
	}

	idx := BuildDayIndex(existing, loc)
	results := e.searchAll(idx, req, ordered)

	rc := ReservationContext{
		ClinicID:    req.ClinicID,
		PatientID:   req.PatientID,
		RequestedBy: req.RequestingClinicianID,
	}
	committed, err := e.commitWithRetry(ctx, req, ordered, rc, results)
	if err != nil {
		return FindAvailableAppointmentsResponse{}, err
	}

	resp := assembleResponse(req.Requests, results, committed)
	e.log.Info("scheduling request completed",
		zap.String("patient_id", req.PatientID.String()),
		zap.String("clinic_id", req.ClinicID.String()),
		zap.Bool("success", resp.Success),
		zap.Int("series", len(resp.Series)),
		zap.Int("reserved_slots", len(committed)),
	)
	return resp, nil
}

// searchAll runs the slot search for each series in resolver order against a
// shared day index, so later series cluster around and never collide with
// earlier placements.
func (e *Engine) searchAll(idx *DayIndex, req FindAvailableAppointmentsRequest, ordered []AppointmentRequest) map[string]seriesResult {
	s := newSearcher(idx, req.Clustering, e.opts.Window, e.opts.Location, req.RequestDate, req.MaxDaysToSearch)
	results := make(map[string]seriesResult, len(ordered))

	for _, ar := range ordered {
		earliest, depErr := e.earliestStart(ar, results)
		if depErr != nil {
			results[ar.SeriesID] = seriesResult{
				Status:  StatusCannotSchedule,
				Reason:  ReasonPatternConflict,
				Message: depErr.Error(),
			}
			e.log.Debug("series skipped", zap.String("series_id", ar.SeriesID), zap.Error(depErr))
			continue
		}
		results[ar.SeriesID] = s.searchSeries(ar, earliest)
	}
	return results
}

// earliestStart resolves the first permissible day for a series: the request
// date, the pattern's fixed start date, or the day after the prerequisite
// occurrence ends, whichever is latest.
func (e *Engine) earliestStart(ar AppointmentRequest, results map[string]seriesResult) (time.Time, error) {
	var earliest time.Time
	if ar.Pattern == nil {
		return earliest, nil
	}

	if ar.Pattern.FixedStartDate != nil {
		earliest = *ar.Pattern.FixedStartDate
	}

	if ar.Pattern.StartAfterSeriesID != "" {
		prereq, ok := results[ar.Pattern.StartAfterSeriesID]
		if !ok {
			// Resolver order guarantees the prerequisite ran first.
			return time.Time{}, fmt.Errorf("prerequisite series %q has no result", ar.Pattern.StartAfterSeriesID)
		}
		n := ar.Pattern.StartAfterOccurrence
		if len(prereq.Slots) < n {
			return time.Time{}, fmt.Errorf("prerequisite series %q placed %d occurrences, need %d",
				ar.Pattern.StartAfterSeriesID, len(prereq.Slots), n)
		}
		after := midnight(prereq.Slots[n-1].End(), e.opts.Location).AddDate(0, 0, 1)
		if after.After(earliest) {
			earliest = after
		}
	}
	return earliest, nil
}

// commitWithRetry drives the reservation protocol. The first conflict buys
// the conflicting series one re-search against refreshed store data; a second
// conflict drops that series from the batch so its siblings can still commit.
// Lock contention gets one blind retry before the whole batch is abandoned.
func (e *Engine) commitWithRetry(ctx context.Context, req FindAvailableAppointmentsRequest, ordered []AppointmentRequest, rc ReservationContext, results map[string]seriesResult) ([]AppointmentSlot, error) {
	reSearched := e.opts.ReservationRetries == 0
	lockRetried := false

	for attempt := 0; attempt <= len(ordered)+e.opts.ReservationRetries+1; attempt++ {
		batch := collectSlots(ordered, results)
		if len(batch) == 0 {
			return nil, nil
		}

		reserved, err := e.tx.reserve(ctx, rc, batch)
		if err == nil {
			return reserved, nil
		}

		var conflict *ReservationConflictError
		switch {
		case errors.As(err, &conflict):
			sid := conflict.Slot.SeriesID
			e.log.Warn("reservation conflict",
				zap.String("series_id", sid),
				zap.Time("slot_start", conflict.Slot.Start),
			)
			if !reSearched {
				reSearched = true
				if e.reSearchSeries(ctx, req, ordered, sid, results, conflict.Slot) {
					continue
				}
			}
			results[sid] = seriesResult{
				Status:  StatusCannotSchedule,
				Reason:  ReasonReservationConflict,
				Message: "slot was reserved by a concurrent request: " + conflict.Error(),
			}
			e.dropDependents(ordered, sid, results)

		case errors.Is(err, redisclient.ErrLockNotAcquired):
			if !lockRetried {
				lockRetried = true
				continue
			}
			for _, ar := range ordered {
				if len(results[ar.SeriesID].Slots) > 0 {
					results[ar.SeriesID] = seriesResult{
						Status:  StatusCannotSchedule,
						Reason:  ReasonReservationConflict,
						Message: "reservation locks are held by a concurrent request",
					}
				}
			}
			return nil, nil

		default:
			return nil, fmt.Errorf("reserve slots: %w", err)
		}
	}

	return nil, ErrReservationContention
}

// reSearchSeries retries the slot search for the conflicted series against a
// freshly loaded index, so the replacement slots avoid whatever a concurrent
// request just committed. Series that depend on it, directly or through a
// chain, are re-searched along with it: their earliest start derives from the
// prerequisite's occurrence times, which have just moved. The patient-scoped
// lookup cannot see another patient's booking, so the conflicted interval
// itself is blocked out explicitly. Returns false when the refresh fails; the
// caller then falls back to dropping the series.
func (e *Engine) reSearchSeries(ctx context.Context, req FindAvailableAppointmentsRequest, ordered []AppointmentRequest, sid string, results map[string]seriesResult, conflicted AppointmentSlot) bool {
	loc := e.opts.Location
	day0 := midnight(req.RequestDate, loc)
	horizonEnd := day0.AddDate(0, 0, req.MaxDaysToSearch)

	existing, err := e.store.ListPatientAppointments(ctx, req.PatientID, req.ClinicID, day0, horizonEnd)
	if err != nil {
		e.log.Warn("re-search lookup failed", zap.String("series_id", sid), zap.Error(err))
		return false
	}

	idx := BuildDayIndex(existing, loc)
	idx.Place(AppointmentSlot{
		Provider:        conflicted.Provider,
		Type:            conflicted.Type,
		Start:           conflicted.Start,
		DurationMinutes: conflicted.DurationMinutes,
	}, 0)

	affected := dependentClosure(ordered, sid)
	for _, ar := range ordered {
		if affected[ar.SeriesID] {
			continue
		}
		for _, slot := range results[ar.SeriesID].Slots {
			idx.Place(slot, ar.SameDaySequence)
		}
	}

	s := newSearcher(idx, req.Clustering, e.opts.Window, loc, req.RequestDate, req.MaxDaysToSearch)
	for _, ar := range ordered {
		if !affected[ar.SeriesID] {
			continue
		}
		earliest, depErr := e.earliestStart(ar, results)
		if depErr != nil {
			results[ar.SeriesID] = seriesResult{
				Status:  StatusCannotSchedule,
				Reason:  ReasonPatternConflict,
				Message: depErr.Error(),
			}
			continue
		}
		results[ar.SeriesID] = s.searchSeries(ar, earliest)
	}
	return true
}

// dependentClosure returns sid plus every series that transitively declares
// it as a prerequisite. One pass suffices because ordered is topologically
// sorted.
func dependentClosure(ordered []AppointmentRequest, sid string) map[string]bool {
	affected := map[string]bool{sid: true}
	for _, ar := range ordered {
		if ar.Pattern != nil && affected[ar.Pattern.StartAfterSeriesID] {
			affected[ar.SeriesID] = true
		}
	}
	return affected
}

// dropDependents clears every series that transitively depends on sid once
// sid itself is no longer scheduled, so no slot anchored to the old
// occurrence times can reach the commit batch.
func (e *Engine) dropDependents(ordered []AppointmentRequest, sid string, results map[string]seriesResult) {
	affected := dependentClosure(ordered, sid)
	for _, ar := range ordered {
		if ar.SeriesID == sid || !affected[ar.SeriesID] {
			continue
		}
		if _, err := e.earliestStart(ar, results); err != nil {
			results[ar.SeriesID] = seriesResult{
				Status:  StatusCannotSchedule,
				Reason:  ReasonPatternConflict,
				Message: err.Error(),
			}
		}
	}
}

func collectSlots(ordered []AppointmentRequest, results map[string]seriesResult) []AppointmentSlot {
	var out []AppointmentSlot
	for _, ar := range ordered {
		out = append(out, results[ar.SeriesID].Slots...)
	}
	return out
}
