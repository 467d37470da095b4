package view

import (
	"fmt"
	"time"

	"eventcal/internal/dateutil"
)

// Day is one cell of the week or month grid. Blank cells pad the month
// grid before the 1st and carry no date.
type Day struct {
	Date     dateutil.Date `json:"date,omitzero"`
	Label    string        `json:"label,omitempty"`
	Blank    bool          `json:"blank,omitempty"`
	IsToday  bool          `json:"is_today,omitempty"`
	Empty    bool          `json:"empty"`
	Cards    []Card        `json:"cards,omitempty"`
	Overflow int           `json:"overflow,omitempty"`
}

// MonthGrid lays out one calendar month. Cells start with Leading blank
// cells so that day 1 sits under its weekday header.
type MonthGrid struct {
	Year     int        `json:"year"`
	Month    time.Month `json:"month"`
	Weekdays []string   `json:"weekdays"`
	Leading  int        `json:"leading"`
	Cells    []Day      `json:"cells"`
}

// weekRange is the 7-day span containing anchor.
func weekRange(anchor dateutil.Date, weekStart time.Weekday) (dateutil.Date, dateutil.Date) {
	start := anchor.StartOfWeek(weekStart)
	return start, start.AddDays(6)
}

func monthRange(anchor dateutil.Date) (dateutil.Date, dateutil.Date) {
	first := anchor.StartOfMonth()
	return first, first.AddDays(dateutil.DaysInMonth(first.Year, first.Month) - 1)
}

func groupByDate(cards []Card) map[dateutil.Date][]Card {
	out := make(map[dateutil.Date][]Card)
	for _, c := range cards {
		out[c.InstanceDate] = append(out[c.InstanceDate], c)
	}
	return out
}

func buildWeek(start dateutil.Date, today dateutil.Date, cards []Card) []Day {
	byDate := groupByDate(cards)
	days := make([]Day, 0, 7)
	for i := range 7 {
		d := start.AddDays(i)
		cs := byDate[d]
		days = append(days, Day{
			Date:    d,
			Label:   fmt.Sprintf("%s %d", d.Weekday().String()[:3], d.Day),
			IsToday: d == today,
			Empty:   len(cs) == 0,
			Cards:   cs,
		})
	}
	return days
}

func buildMonth(anchor, today dateutil.Date, weekStart time.Weekday, cellLimit int, cards []Card) *MonthGrid {
	first := anchor.StartOfMonth()
	n := dateutil.DaysInMonth(first.Year, first.Month)
	leading := (int(first.Weekday()) - int(weekStart) + 7) % 7
	byDate := groupByDate(cards)

	g := &MonthGrid{
		Year:     first.Year,
		Month:    first.Month,
		Weekdays: weekdayHeaders(weekStart),
		Leading:  leading,
		Cells:    make([]Day, 0, leading+n),
	}
	for range leading {
		g.Cells = append(g.Cells, Day{Blank: true, Empty: true})
	}
	for i := range n {
		d := first.AddDays(i)
		cs := byDate[d]
		cell := Day{
			Date:    d,
			Label:   fmt.Sprint(d.Day),
			IsToday: d == today,
			Empty:   len(cs) == 0,
			Cards:   cs,
		}
		if cellLimit > 0 && len(cs) > cellLimit {
			cell.Cards = cs[:cellLimit]
			cell.Overflow = len(cs) - cellLimit
		}
		g.Cells = append(g.Cells, cell)
	}
	return g
}

func weekdayHeaders(weekStart time.Weekday) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = time.Weekday((int(weekStart) + i) % 7).String()[:3]
	}
	return out
}
