package quota

import "time"

const DayLayout = "2006-01-02"

// Clock decides which usage day an instant belongs to. The day starts at
// midnight in a fixed UTC offset, independent of the server locale.
type Clock struct {
	Offset time.Duration
	Now    func() time.Time
}

func (c Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Clock) Today() string { return c.DayOf(c.now()) }

func (c Clock) DayOf(t time.Time) string {
	return t.UTC().Add(c.Offset).Format(DayLayout)
}
