// Package stats derives dashboard figures from rows that are already loaded.
// Nothing here performs I/O and every function ignores input order.
package stats

import (
	"math"

	"schooldesk/internal/school"
)

// Summary counts a student's records by status.
type Summary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// AttendancePercent is round(100 * present / total), and 0 for no records.
func AttendancePercent(records []school.AttendanceRecord) int {
	present := 0
	for _, r := range records {
		if r.Status == school.StatusPresent {
			present++
		}
	}
	return percent(present, len(records))
}

// CountByRole counts profiles with exactly the given role.
func CountByRole(profiles []school.Profile, role school.Role) int {
	n := 0
	for _, p := range profiles {
		if p.Role == role {
			n++
		}
	}
	return n
}

// Summarize tallies records per status. Late counts toward the total but
// not toward the percentage.
func Summarize(records []school.AttendanceRecord) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case school.StatusPresent:
			s.Present++
		case school.StatusAbsent:
			s.Absent++
		case school.StatusLate:
			s.Late++
		}
	}
	s.Total = len(records)
	s.Percent = percent(s.Present, s.Total)
	return s
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}
