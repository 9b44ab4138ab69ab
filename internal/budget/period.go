package budget

import "time"

const MONTH_LABEL_LAYOUT = "January 2006"

// Period is a closed interval of instants.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthPeriod spans the first to the last instant of the month in loc.
func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, 0).Add(-time.Nanosecond),
	}
}

// PreviousMonthPeriod is the whole calendar month before the one containing now.
func PreviousMonthPeriod(now time.Time, loc *time.Location) Period {
	now = now.In(loc)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
	return MonthPeriod(first.Year(), first.Month(), loc)
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) Label() string {
	return p.Start.Format(MONTH_LABEL_LAYOUT)
}

// SameDay compares calendar dates in loc, not elapsed hours.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
