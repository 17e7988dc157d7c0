package calendar

import (
	"testing"
	"time"

	"replenisher/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Scenario A — Friday dual-lane protection.
func TestProtectionWindow_FridayDualLane(t *testing.T) {
	cal := New(DefaultConfig())
	friday := date(2026, 2, 6)

	r1, r2, p, err := cal.ProtectionWindow(friday, LaneSaturday)
	if err != nil {
		t.Fatalf("SATURDAY lane: %v", err)
	}
	if !r1.Equal(date(2026, 2, 7)) || !r2.Equal(date(2026, 2, 10)) || p != 3 {
		t.Fatalf("SATURDAY lane: got r1=%v r2=%v P=%d, want r1=2026-02-07 r2=2026-02-10 P=3", r1, r2, p)
	}

	r1, r2, p, err = cal.ProtectionWindow(friday, LaneMonday)
	if err != nil {
		t.Fatalf("MONDAY lane: %v", err)
	}
	if !r1.Equal(date(2026, 2, 9)) || !r2.Equal(date(2026, 2, 10)) || p != 1 {
		t.Fatalf("MONDAY lane: got r1=%v r2=%v P=%d, want r1=2026-02-09 r2=2026-02-10 P=1", r1, r2, p)
	}
}

func TestGetFridayLanes(t *testing.T) {
	cal := New(DefaultConfig())
	lanes, err := cal.GetFridayLanes(date(2026, 2, 6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lanes.Saturday.ProtectionDays != 3 || lanes.Monday.ProtectionDays != 1 {
		t.Fatalf("unexpected lanes: %+v", lanes)
	}
}

func TestNextReceiptDate_NonFridayLaneRejected(t *testing.T) {
	cal := New(DefaultConfig())
	monday := date(2026, 2, 9)
	if _, err := cal.NextReceiptDate(monday, LaneSaturday); err == nil {
		t.Fatalf("expected error for SATURDAY lane on a non-Friday order date")
	}
}

func TestIsOrderDay_NotAnOrderDayOnSunday(t *testing.T) {
	cal := New(DefaultConfig())
	sunday := date(2026, 2, 8)
	if cal.IsOrderDay(sunday) {
		t.Fatalf("Sunday should not be an order day under default config")
	}
	if _, err := cal.NextReceiptDate(sunday, LaneStandard); err == nil {
		t.Fatalf("expected NotAnOrderDay error")
	}
}

// Invariant 9: monthly fixed-date holiday matches d iff d.day == params.day.
func TestHolidayRule_MonthlyFixedMatchesDayOnly(t *testing.T) {
	hc := NewHolidayCalendar([]model.HolidayRule{
		{Name: "Monthly closure", Scope: "warehouse", Effect: model.EffectBoth, Type: model.HolidayFixed, Day: 1},
	})

	for day := 1; day <= 28; day++ {
		d := date(2026, time.March, day)
		got := hc.IsHoliday(d, "warehouse", model.EffectBoth)
		want := day == 1
		if got != want {
			t.Fatalf("day=%d: got %v, want %v", day, got, want)
		}
	}
}

func TestEasterSunday_KnownDates(t *testing.T) {
	cases := map[int]time.Time{
		2026: date(2026, time.April, 5),
		2025: date(2025, time.April, 20),
		2024: date(2024, time.March, 31),
	}
	for year, want := range cases {
		got := EasterSunday(year)
		if !got.Equal(want) {
			t.Fatalf("EasterSunday(%d) = %v, want %v", year, got, want)
		}
	}
}

func TestHolidayCalendar_EasterAndEasterMondayAreSystemBoth(t *testing.T) {
	hc := NewHolidayCalendar(nil)
	easter := EasterSunday(2026)
	if !hc.IsHoliday(easter, "system", model.EffectBoth) {
		t.Fatalf("Easter Sunday should be a system/both holiday")
	}
	if !hc.IsHoliday(easter.AddDate(0, 0, 1), "", model.EffectNoOrder) {
		t.Fatalf("Easter Monday should block ordering")
	}
}

func TestHolidayCalendar_InvalidFixedDateNeverMatches(t *testing.T) {
	hc := NewHolidayCalendar([]model.HolidayRule{
		{Name: "Bogus", Scope: "system", Effect: model.EffectBoth, Type: model.HolidayFixed, Month: 2, Day: 30},
	})
	for day := 1; day <= 28; day++ {
		if hc.IsHoliday(date(2026, time.February, day), "system", model.EffectBoth) {
			t.Fatalf("Feb %d matched an impossible Feb 30 rule", day)
		}
	}
	if len(hc.ListHolidays(2026, "system")) == 0 {
		t.Fatalf("expected at least the built-in Italian holidays")
	}
}
