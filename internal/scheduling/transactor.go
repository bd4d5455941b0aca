package scheduling

import (
	"context"
	"sort"

	redisclient "github.com/medisync/clinic-scheduler/internal/redis"
)

// transactor commits a candidate slot batch under per-resource-per-day locks.
// The locker takes the keys in ascending order, so two concurrent requests
// that both touch two of the same resources cannot circular-wait; the store
// re-validates every slot inside one transaction, so a batch either commits
// whole or not at all.
type transactor struct {
	store  Store
	locker redisclient.Locker
}

func (t *transactor) reserve(ctx context.Context, rc ReservationContext, slots []AppointmentSlot) ([]AppointmentSlot, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	var reserved []AppointmentSlot
	err := t.locker.WithResourceDayLocks(ctx, lockKeys(slots), func(lockCtx context.Context) error {
		committed, err := t.store.ReserveSlots(lockCtx, rc, slots)
		if err != nil {
			return err
		}
		reserved = committed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// lockKeys derives the deduplicated resource|date lock set for a batch. Slot
// start times already carry the clinic timezone, so the date half of the key
// is clinic-local.
func lockKeys(slots []AppointmentSlot) []string {
	seen := make(map[string]struct{}, len(slots))
	keys := make([]string, 0, len(slots))
	for _, s := range slots {
		key := s.Provider.Key() + "|" + s.Start.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
