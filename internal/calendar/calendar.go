// Package calendar computes order/delivery day rules, the dual-lane
// Friday policy, and holiday effects (C1 in the component design).
package calendar

import (
	"strings"
	"time"

	"replenisher/internal/apperr"
	"replenisher/internal/model"
)

// Lane selects which receipt-date rule applies when deriving a protection
// window.
type Lane string

const (
	LaneStandard Lane = "STANDARD"
	LaneSaturday Lane = "SATURDAY"
	LaneMonday   Lane = "MONDAY"
)

// Config holds the recognized calendar options. Zero value is not
// meaningful; use DefaultConfig().
type Config struct {
	OrderDays    map[time.Weekday]bool
	DeliveryDays map[time.Weekday]bool
	LeadTimeDays int
	Holidays     *HolidayCalendar
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// WeekdaySet converts lowercase weekday names (as configured via
// spec.md §6's order_days/delivery_days overrides) into the set form
// Config.OrderDays/DeliveryDays expect. Unrecognized names are ignored.
func WeekdaySet(names []string) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		if wd, ok := weekdayNames[strings.ToLower(n)]; ok {
			out[wd] = true
		}
	}
	return out
}

// DefaultConfig returns Mon-Fri order days, Mon-Sat delivery days, lead
// time 1, and the built-in Italian public holiday calendar with no
// custom rules.
func DefaultConfig() Config {
	return Config{
		OrderDays: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
		DeliveryDays: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true, time.Saturday: true,
		},
		LeadTimeDays: 1,
		Holidays:     NewHolidayCalendar(nil),
	}
}

// Calendar evaluates order/delivery day rules against a Config.
type Calendar struct {
	cfg Config
}

// New builds a Calendar from cfg, filling the holiday calendar with the
// built-in Italian rules if cfg.Holidays is nil.
func New(cfg Config) *Calendar {
	if cfg.Holidays == nil {
		cfg.Holidays = NewHolidayCalendar(nil)
	}
	return &Calendar{cfg: cfg}
}

func truncateDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// IsOrderDay reports whether d's weekday is an order day and no active
// holiday blocks ordering on d.
func (c *Calendar) IsOrderDay(d time.Time) bool {
	d = truncateDay(d)
	if !c.cfg.OrderDays[d.Weekday()] {
		return false
	}
	return !c.cfg.Holidays.IsHoliday(d, "", model.EffectNoOrder)
}

// IsDeliveryDay reports whether d's weekday is a delivery day and no
// active holiday blocks receipt on d.
func (c *Calendar) IsDeliveryDay(d time.Time) bool {
	d = truncateDay(d)
	if !c.cfg.DeliveryDays[d.Weekday()] {
		return false
	}
	return !c.cfg.Holidays.IsHoliday(d, "", model.EffectNoReceipt)
}

// NextDeliveryDay returns the smallest d' >= d that is a delivery day.
// Fails with apperr.NotFound (kind NoDeliveryWindow) if none is found
// within 14 iterations.
func (c *Calendar) NextDeliveryDay(d time.Time) (time.Time, error) {
	cur := truncateDay(d)
	for i := 0; i < 14; i++ {
		if c.IsDeliveryDay(cur) {
			return cur, nil
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return time.Time{}, apperr.New(apperr.NotFound, "NoDeliveryWindow: no delivery day found within 14 days")
}

// NextOrderOpportunity returns the smallest d' > d that is an order day.
func (c *Calendar) NextOrderOpportunity(d time.Time) (time.Time, error) {
	cur := truncateDay(d).AddDate(0, 0, 1)
	for i := 0; i < 14; i++ {
		if c.IsOrderDay(cur) {
			return cur, nil
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return time.Time{}, apperr.New(apperr.NotFound, "NoOrderOpportunity: no order day found within 14 days")
}

// NextReceiptDate computes the receipt date for an order placed on
// orderDate via lane. Fails with apperr.InvalidInput (NotAnOrderDay) when
// orderDate is not an order day, or when a Friday-only lane is requested
// for a non-Friday order date.
func (c *Calendar) NextReceiptDate(orderDate time.Time, lane Lane) (time.Time, error) {
	orderDate = truncateDay(orderDate)
	if !c.IsOrderDay(orderDate) {
		return time.Time{}, apperr.New(apperr.InvalidInput, "NotAnOrderDay: "+orderDate.Format("2006-01-02"))
	}

	switch lane {
	case LaneSaturday, LaneMonday:
		if orderDate.Weekday() != time.Friday {
			return time.Time{}, apperr.Newf(apperr.InvalidInput,
				"lane %s is only valid when order_date is a Friday", lane)
		}
		if lane == LaneSaturday {
			return orderDate.AddDate(0, 0, 1), nil // following Saturday
		}
		return orderDate.AddDate(0, 0, 3), nil // following Monday
	default: // STANDARD
		return c.NextDeliveryDay(orderDate.AddDate(0, 0, c.cfg.LeadTimeDays))
	}
}

// ProtectionWindow derives (r1, r2, P) for an order placed on orderDate
// via lane: r1 is this order's receipt date, r2 is the receipt date of
// the next order opportunity via the STANDARD lane, and P = r2 - r1 in
// whole days (never negative).
func (c *Calendar) ProtectionWindow(orderDate time.Time, lane Lane) (r1, r2 time.Time, protectionDays int, err error) {
	r1, err = c.NextReceiptDate(orderDate, lane)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}

	nextOpportunity, err := c.NextOrderOpportunity(orderDate)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}

	r2, err = c.NextReceiptDate(nextOpportunity, LaneStandard)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}

	protectionDays = int(r2.Sub(r1).Hours() / 24)
	if protectionDays < 0 {
		protectionDays = 0
	}
	return r1, r2, protectionDays, nil
}

// FridayLanes is the pair of protection windows produced by
// GetFridayLanes.
type FridayLanes struct {
	Saturday struct {
		R1, R2         time.Time
		ProtectionDays int
	}
	Monday struct {
		R1, R2         time.Time
		ProtectionDays int
	}
}

// GetFridayLanes computes both the SATURDAY and MONDAY protection windows
// for an order placed on friday. friday must be a Friday.
func (c *Calendar) GetFridayLanes(friday time.Time) (FridayLanes, error) {
	var lanes FridayLanes

	r1, r2, p, err := c.ProtectionWindow(friday, LaneSaturday)
	if err != nil {
		return lanes, err
	}
	lanes.Saturday.R1, lanes.Saturday.R2, lanes.Saturday.ProtectionDays = r1, r2, p

	r1, r2, p, err = c.ProtectionWindow(friday, LaneMonday)
	if err != nil {
		return lanes, err
	}
	lanes.Monday.R1, lanes.Monday.R2, lanes.Monday.ProtectionDays = r1, r2, p

	return lanes, nil
}
