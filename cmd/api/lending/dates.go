package lending

import "time"

const DateLayout = "2006-01-02"

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrResponseInvalidArgument.WithDetail("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}

// DaysBetween counts whole calendar days from from to to, negative when to is earlier.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// ComputeFine charges rate for every whole day returned lies after due.
func ComputeFine(due, returned time.Time, rate Money) Money {
	days := DaysBetween(due, returned)
	if days <= 0 {
		return 0
	}
	return rate.Times(days)
}
