package policy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DaySet is an ordered set of non-negative day offsets. Reminder day lists
// are persisted as comma-separated text ("7,3,1"); parsing and validation
// happen once here, at the load boundary, never at the use sites.
type DaySet struct {
	days []int
}

// ParseDaySet parses a comma-separated list of day offsets. Whitespace around
// entries is tolerated, duplicates collapse, and the result is sorted
// ascending. An empty string yields an empty set.
func ParseDaySet(s string) (DaySet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DaySet{}, nil
	}

	seen := make(map[int]bool)
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return DaySet{}, fmt.Errorf("invalid day offset %q: %w", part, err)
		}
		if n < 0 {
			return DaySet{}, fmt.Errorf("day offset must be non-negative, got %d", n)
		}
		if !seen[n] {
			seen[n] = true
			days = append(days, n)
		}
	}
	sort.Ints(days)

	return DaySet{days: days}, nil
}

// NewDaySet builds a set from explicit offsets. Panics on negative input;
// intended for literals in code and tests.
func NewDaySet(days ...int) DaySet {
	var s strings.Builder
	for i, d := range days {
		if d < 0 {
			panic(fmt.Sprintf("negative day offset %d", d))
		}
		if i > 0 {
			s.WriteByte(',')
		}
		s.WriteString(strconv.Itoa(d))
	}
	set, err := ParseDaySet(s.String())
	if err != nil {
		panic(err)
	}
	return set
}

// Contains reports whether day is a member of the set.
func (s DaySet) Contains(day int) bool {
	for _, d := range s.days {
		if d == day {
			return true
		}
	}
	return false
}

// Len returns the number of offsets in the set.
func (s DaySet) Len() int {
	return len(s.days)
}

// Days returns the offsets in ascending order. The returned slice is a copy.
func (s DaySet) Days() []int {
	out := make([]int, len(s.days))
	copy(out, s.days)
	return out
}

// String renders the set back to its persisted comma-separated form.
func (s DaySet) String() string {
	parts := make([]string, len(s.days))
	for i, d := range s.days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
