package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SecondsPerDay is the number of seconds in a wall-clock day.
const SecondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock time expressed as seconds since local midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hour, minute and second components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// TimeOfDayOf returns the wall-clock time of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return NewTimeOfDay(h, m, s)
}

// ParseTimeOfDay parses "H:mm", "HH:mm" or "HH:mm:ss".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q (want H:mm or HH:mm:ss)", s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		if p == "" || len(p) > 2 || (i > 0 && len(p) != 2) {
			return 0, fmt.Errorf("invalid time of day %q (want H:mm or HH:mm:ss)", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		vals[i] = n
	}
	return NewTimeOfDay(vals[0], vals[1], vals[2]), nil
}

// String formats the time as HH:mm, or HH:mm:ss when seconds are set.
func (t TimeOfDay) String() string {
	h, m, s := int(t)/3600, (int(t)%3600)/60, int(t)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// IsValid reports whether t lies within a single day.
func (t TimeOfDay) IsValid() bool {
	return t >= 0 && t < SecondsPerDay
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Weekdays is a set of days of the week stored as a bitmask.
// The empty set matches every day.
type Weekdays uint8

// AllWeekdays contains every day of the week.
const AllWeekdays Weekdays = 1<<7 - 1

// NewWeekdays builds a set from the given days.
func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// Has reports whether d is in the set. An empty set contains every day.
func (w Weekdays) Has(d time.Weekday) bool {
	if w == 0 {
		return true
	}
	return w&(1<<uint(d)) != 0
}

// Days returns the members of the set in Sunday-first order.
func (w Weekdays) Days() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

// String lists the days as lowercase three-letter names, or "every day".
func (w Weekdays) String() string {
	if w == 0 || w == AllWeekdays {
		return "every day"
	}
	var names []string
	for _, d := range w.Days() {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}

// MarshalJSON encodes the set as a list of three-letter day names. The
// empty set encodes as an empty list.
func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 7)
	for _, d := range w.Days() {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return json.Marshal(names)
}

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var days []time.Weekday
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return err
		}
		days = append(days, d)
	}
	*w = NewWeekdays(days...)
	return nil
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day of week %q", s)
}

// TimeWindow is a recurring time-of-day interval on selected days.
//
// A window whose Start is after End wraps past midnight: on each selected
// day it covers [Start, 24:00) and [00:00, End]. Wrap with Start == End
// denotes a full 24 hour window. Both ends are inclusive.
type TimeWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
	Days  Weekdays  `json:"days"`
	Wrap  bool      `json:"wrap,omitempty"`
}

// Wraps reports whether the window crosses midnight.
func (w TimeWindow) Wraps() bool {
	return w.Start > w.End || (w.Start == w.End && w.Wrap)
}

// Contains reports whether the wall-clock instant (day, t) falls inside the window.
func (w TimeWindow) Contains(day time.Weekday, t TimeOfDay) bool {
	if !w.Days.Has(day) {
		return false
	}
	if !w.Wraps() {
		return w.Start != w.End && t >= w.Start && t <= w.End
	}
	return t >= w.Start || t <= w.End
}

// Until returns how long from (day, t) until the window closes, and false
// when the instant is outside the window. Past Start, a wrapping window runs
// on into the next day only when that day is selected too.
func (w TimeWindow) Until(day time.Weekday, t TimeOfDay) (time.Duration, bool) {
	if !w.Contains(day, t) {
		return 0, false
	}
	var secs int
	switch {
	case !w.Wraps() || (t <= w.End && t < w.Start):
		secs = int(w.End - t)
	case w.Days.Has(nextDay(day)):
		secs = SecondsPerDay - int(t) + int(w.End)
	default:
		secs = SecondsPerDay - int(t)
	}
	return time.Duration(secs) * time.Second, true
}

// String renders the window as "days HH:mm-HH:mm".
func (w TimeWindow) String() string {
	return fmt.Sprintf("%s %s-%s", w.Days, w.Start, w.End)
}

func nextDay(d time.Weekday) time.Weekday {
	return (d + 1) % 7
}
