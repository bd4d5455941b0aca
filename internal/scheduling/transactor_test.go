package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLockKeys_DeduplicatedAndSorted(t *testing.T) {
	clinA := uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	resB := uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")

	slots := []AppointmentSlot{
		{Provider: ClinicianRef(clinA), Start: time.Date(2025, time.January, 7, 9, 0, 0, 0, time.UTC)},
		{Provider: ResourceRef(resB), Start: time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)},
		{Provider: ClinicianRef(clinA), Start: time.Date(2025, time.January, 7, 14, 0, 0, 0, time.UTC)},
		{Provider: ClinicianRef(clinA), Start: time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)},
	}

	got := lockKeys(slots)
	want := []string{
		"clinician:" + clinA.String() + "|2025-01-06",
		"clinician:" + clinA.String() + "|2025-01-07",
		"resource:" + resB.String() + "|2025-01-06",
	}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, got[i], want[i])
		}
	}
}
