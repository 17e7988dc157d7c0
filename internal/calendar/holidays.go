package calendar

import (
	"time"

	"replenisher/internal/model"
)

// EasterSunday computes the date of Easter Sunday for year using the
// Meeus/Jones/Butcher Gregorian algorithm.
//
// https://en.wikipedia.org/wiki/Date_of_Easter#Anonymous_Gregorian_algorithm
func EasterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h+l-7*m+114)%31 + 1)

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// italianSystemRules returns the fixed-date Italian public holidays as
// system-scope, both-effect rules. Easter and Easter Monday are handled
// dynamically (see appliesToDate / HolidayCalendar.isHoliday) since they
// move year to year.
func italianSystemRules() []model.HolidayRule {
	fixed := []struct {
		name         string
		month, day   int
	}{
		{"Capodanno", 1, 1},
		{"Epifania", 1, 6},
		{"Liberazione", 4, 25},
		{"Festa del Lavoro", 5, 1},
		{"Festa della Repubblica", 6, 2},
		{"Ferragosto", 8, 15},
		{"Ognissanti", 11, 1},
		{"Immacolata Concezione", 12, 8},
		{"Natale", 12, 25},
		{"Santo Stefano", 12, 26},
	}

	rules := make([]model.HolidayRule, 0, len(fixed))
	for _, h := range fixed {
		rules = append(rules, model.HolidayRule{
			Name:   h.name,
			Scope:  "system",
			Effect: model.EffectBoth,
			Type:   model.HolidayFixed,
			Month:  h.month,
			Day:    h.day,
		})
	}
	return rules
}

// appliesToDate reports whether rule matches checkDate.
func appliesToDate(rule model.HolidayRule, checkDate time.Time) bool {
	switch rule.Type {
	case model.HolidaySingle:
		return sameDate(checkDate, rule.Date)
	case model.HolidayRange:
		return !checkDate.Before(rule.Start) && !checkDate.After(rule.End)
	case model.HolidayFixed:
		if rule.Month == 0 {
			// Monthly recurrence: only day specified.
			return checkDate.Day() == rule.Day
		}
		return int(checkDate.Month()) == rule.Month && checkDate.Day() == rule.Day
	default:
		return false
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// HolidayCalendar is the unified holiday/closure calendar: Italian public
// holidays plus any configured custom rules.
type HolidayCalendar struct {
	Rules []model.HolidayRule
}

// NewHolidayCalendar builds a calendar from custom rules plus the
// built-in Italian public holidays. Built-in rules are always present;
// custom rules can add further closures on top (overlapping dates with
// different effects both apply — effects union).
func NewHolidayCalendar(customRules []model.HolidayRule) *HolidayCalendar {
	rules := make([]model.HolidayRule, 0, len(customRules)+len(italianSystemRules()))
	rules = append(rules, customRules...)
	rules = append(rules, italianSystemRules()...)
	return &HolidayCalendar{Rules: rules}
}

// IsHoliday reports whether checkDate is blocked for the given scope and
// effect. A nil/empty scope or effect matches any.
func (c *HolidayCalendar) IsHoliday(checkDate time.Time, scope string, effect model.HolidayEffect) bool {
	easter := EasterSunday(checkDate.Year())
	easterMonday := easter.AddDate(0, 0, 1)
	if sameDate(checkDate, easter) || sameDate(checkDate, easterMonday) {
		if scope == "" || scope == "system" {
			return true
		}
	}

	for _, rule := range c.Rules {
		if !appliesToDate(rule, checkDate) {
			continue
		}
		if scope != "" && rule.Scope != scope {
			continue
		}
		if effect != "" && rule.Effect != effect && rule.Effect != model.EffectBoth {
			continue
		}
		return true
	}
	return false
}

// EffectsOn returns the set of effects active on checkDate for scope (""
// matches every scope).
func (c *HolidayCalendar) EffectsOn(checkDate time.Time, scope string) map[model.HolidayEffect]bool {
	effects := map[model.HolidayEffect]bool{}

	easter := EasterSunday(checkDate.Year())
	easterMonday := easter.AddDate(0, 0, 1)
	if sameDate(checkDate, easter) || sameDate(checkDate, easterMonday) {
		if scope == "" || scope == "system" {
			effects[model.EffectNoOrder] = true
			effects[model.EffectNoReceipt] = true
		}
	}

	for _, rule := range c.Rules {
		if !appliesToDate(rule, checkDate) {
			continue
		}
		if scope != "" && rule.Scope != scope {
			continue
		}
		switch rule.Effect {
		case model.EffectBoth:
			effects[model.EffectNoOrder] = true
			effects[model.EffectNoReceipt] = true
		case model.EffectNoOrder:
			effects[model.EffectNoOrder] = true
		case model.EffectNoReceipt:
			effects[model.EffectNoReceipt] = true
		}
	}
	return effects
}

// ListHolidays returns the sorted distinct holiday dates for year and
// scope ("" matches every scope).
func (c *HolidayCalendar) ListHolidays(year int, scope string) []time.Time {
	seen := map[string]time.Time{}
	add := func(d time.Time) {
		seen[d.Format("2006-01-02")] = d
	}

	if scope == "" || scope == "system" {
		easter := EasterSunday(year)
		add(easter)
		add(easter.AddDate(0, 0, 1))
	}

	for _, rule := range c.Rules {
		if scope != "" && rule.Scope != scope {
			continue
		}
		switch rule.Type {
		case model.HolidaySingle:
			if rule.Date.Year() == year {
				add(rule.Date)
			}
		case model.HolidayRange:
			for d := rule.Start; !d.After(rule.End); d = d.AddDate(0, 0, 1) {
				if d.Year() == year {
					add(d)
				}
			}
		case model.HolidayFixed:
			if rule.Month == 0 {
				continue // monthly recurrence has no single per-year date list
			}
			if rule.Day < 1 || rule.Day > 31 {
				continue
			}
			d := time.Date(year, time.Month(rule.Month), rule.Day, 0, 0, 0, 0, time.UTC)
			if int(d.Month()) != rule.Month {
				continue // invalid date (e.g. Feb 30): never matches
			}
			add(d)
		}
	}

	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sortTimes(out)
	return out
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
