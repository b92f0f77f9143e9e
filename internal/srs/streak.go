package srs

import "time"

// Streak is the number of consecutive days on which the last due note was completed.
type Streak struct {
	Count    int
	LastDate string // DateLayout, empty before the first increment
}

// DateString formats t as a local calendar date.
func DateString(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// UpdateStreak applies one "all due notes completed" event on the given day.
//
// An empty or yesterday's LastDate extends the streak, any other earlier date
// restarts it at 1, and a LastDate equal to today leaves it untouched.
func UpdateStreak(s Streak, today string) Streak {
	if s.LastDate == today {
		return s
	}
	if s.LastDate == "" || s.LastDate == previousDay(today) {
		return Streak{Count: s.Count + 1, LastDate: today}
	}
	return Streak{Count: 1, LastDate: today}
}

func previousDay(day string) string {
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DateLayout)
}
