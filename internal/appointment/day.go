package appointment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// ISODate is the canonical storage and wire form of a Day.
	ISODate = "2006-01-02"
	// DisplayDate is the legacy human form still rendered next to the ISO date.
	DisplayDate = "02 Jan 2006"
)

// Accepted input layouts, canonical first.
var dayLayouts = []string{
	ISODate,
	DisplayDate,
	"2 Jan 2006",
	"02 Jan ' 2006",
	"2 Jan ' 2006",
}

// Day is a calendar date without time of day, always held in UTC.
type Day struct {
	t time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates t to its calendar date in t's own location.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// ParseDay accepts the ISO form or one of the legacy display forms.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DayOf(t), nil
		}
	}
	return Day{}, fmt.Errorf("unrecognised date %q", s)
}

func (d Day) Time() time.Time { return d.t }

func (d Day) IsZero() bool { return d.t.IsZero() }

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// String renders the ISO form.
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(ISODate)
}

// Display renders the legacy form, e.g. "26 Mar 2024".
func (d Day) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DisplayDate)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
