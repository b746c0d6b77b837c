package relative

import (
	"math"
	"strconv"
	"time"
)

const daysPerYear = 365

// Format renders an offset as a compact label. An empty result means no
// label should be shown. Rules are applied in order:
//
//  1. today and (all-day or already started): ""
//  2. showYears and |days| >= 365: "[-]<y>y<d>d"
//  3. past: "<days>d" (negative)
//  4. timed today: "<hours>h"
//  5. tomorrow: "1d" when all-day or more than 24h away, else "<hours>h"
//  6. otherwise "<days>d"
func Format(o Offset, allDay, showYears bool) string {
	if o.Today && (allDay || o.Hours <= 0) {
		return ""
	}

	abs := o.Days
	if abs < 0 {
		abs = -abs
	}
	if showYears && abs >= daysPerYear {
		sign := ""
		if o.Days < 0 {
			sign = "-"
		}
		return sign + strconv.Itoa(abs/daysPerYear) + "y" + strconv.Itoa(abs%daysPerYear) + "d"
	}

	if o.Days < 0 {
		return strconv.Itoa(o.Days) + "d"
	}

	if !allDay && o.Today {
		return hours(o.Hours)
	}

	if o.Tomorrow {
		if allDay || o.Hours > 24 {
			return "1d"
		}
		return hours(o.Hours)
	}

	return strconv.Itoa(o.Days) + "d"
}

// Label is shorthand for Format(Classify(now, d), d.AllDay, showYears).
func Label(now time.Time, d Date, showYears bool) string {
	return Format(Classify(now, d), d.AllDay, showYears)
}

// hours rounds half away from zero.
func hours(h float64) string {
	return strconv.Itoa(int(math.Round(h))) + "h"
}
