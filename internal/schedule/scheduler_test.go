package schedule

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSchedule_InvalidInputs(t *testing.T) {
	if _, err := Schedule(date(2024, 2, 1), date(2024, 1, 1), 3); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := Schedule(date(2024, 1, 1), date(2024, 2, 1), 0); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
}

func TestSchedule_SingleVisitOnFriday(t *testing.T) {
	// 2024-01-05 is a Friday; the single visit shifts to the following
	// Monday and the contract end is ignored.
	dates, err := Schedule(date(2024, 1, 5), date(2024, 2, 5), 1)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected 1 date, got %d", len(dates))
	}
	if want := date(2024, 1, 8); !dates[0].Equal(want) {
		t.Fatalf("expected %v, got %v", want, dates[0])
	}
}

func TestSchedule_ThreeVisits(t *testing.T) {
	dates, err := Schedule(date(2024, 1, 1), date(2024, 4, 1), 3)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	if !dates[0].Equal(date(2024, 1, 1)) {
		t.Fatalf("first date should be contract start, got %v", dates[0])
	}
	if !dates[2].Equal(FridayAdjust(date(2024, 4, 1))) {
		t.Fatalf("last date should be friday-adjusted contract end, got %v", dates[2])
	}
	if !dates[1].After(dates[0]) || !dates[1].Before(dates[2]) {
		t.Fatalf("interior date %v not strictly between %v and %v", dates[1], dates[0], dates[2])
	}
}

func TestSchedule_Properties(t *testing.T) {
	cases := []struct {
		start time.Time
		end   time.Time
		count int
	}{
		{date(2024, 1, 1), date(2024, 12, 31), 12},
		{date(2024, 3, 15), date(2025, 3, 15), 4},
		{date(2024, 6, 1), date(2024, 6, 1), 1},
		{date(2023, 1, 2), date(2024, 1, 2), 6},
	}
	for _, tc := range cases {
		dates, err := Schedule(tc.start, tc.end, tc.count)
		if err != nil {
			t.Fatalf("Schedule(%v, %v, %d) error: %v", tc.start, tc.end, tc.count, err)
		}
		if len(dates) != tc.count {
			t.Fatalf("Schedule(%v, %v, %d) returned %d dates", tc.start, tc.end, tc.count, len(dates))
		}
		for i := 1; i < len(dates); i++ {
			if dates[i].Before(dates[i-1]) {
				t.Fatalf("dates not ascending: %v before %v", dates[i], dates[i-1])
			}
		}
		if dates[0].Weekday() == time.Friday {
			t.Fatalf("first date %v falls on a Friday", dates[0])
		}
		if dates[len(dates)-1].Weekday() == time.Friday {
			t.Fatalf("last date %v falls on a Friday", dates[len(dates)-1])
		}
	}
}

func TestSchedule_ShortRangeCollides(t *testing.T) {
	// Window shorter than the visit count: interior month offsets floor to
	// zero and dates collide on the start day. The scheduler does not dedup.
	dates, err := Schedule(date(2024, 1, 1), date(2024, 1, 3), 4)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(dates) != 4 {
		t.Fatalf("expected 4 dates, got %d", len(dates))
	}
	for _, d := range dates[1:3] {
		if !d.Equal(dates[0]) {
			t.Fatalf("expected interior dates to collide with start, got %v", d)
		}
	}
}

func TestFridayAdjust(t *testing.T) {
	friday := date(2024, 1, 5)
	if got := FridayAdjust(friday); !got.Equal(date(2024, 1, 8)) {
		t.Fatalf("expected Monday, got %v", got)
	}
	monday := date(2024, 1, 8)
	if got := FridayAdjust(monday); !got.Equal(monday) {
		t.Fatalf("non-Friday should be unchanged, got %v", got)
	}
}

func TestVisitWindow(t *testing.T) {
	start, end := VisitWindow(date(2024, 1, 8))
	if start.Hour() != VisitStartHour || end.Hour() != VisitEndHour {
		t.Fatalf("unexpected window %v - %v", start, end)
	}
	if !end.After(start) {
		t.Fatalf("window end %v not after start %v", end, start)
	}
}
