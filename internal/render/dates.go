package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december`

type datePattern struct {
	re    *regexp.Regexp
	parts func(m []string) (year, month, day string)
}

// datePatterns are tried in order; the first pattern yielding a valid date
// wins.
var datePatterns = []datePattern{
	{
		re:    regexp.MustCompile(`(?i)\b(\d{1,2})\s+(` + monthNames + `)\s+(\d{4})\b`),
		parts: func(m []string) (string, string, string) { return m[3], m[2], m[1] },
	},
	{
		re:    regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`),
		parts: func(m []string) (string, string, string) { return m[1], m[2], m[3] },
	},
	{
		re:    regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		parts: func(m []string) (string, string, string) { return m[3], m[1], m[2] },
	},
	{
		re:    regexp.MustCompile(`(?i)\b(` + monthNames + `)\s+(\d{1,2}),?\s+(\d{4})\b`),
		parts: func(m []string) (string, string, string) { return m[3], m[1], m[2] },
	},
}

// ParseDate finds a calendar date in s. Recognized forms, by priority:
// "15 March 2024", "2024-03-15", "3/15/2024" and "March 15, 2024".
func ParseDate(s string) (time.Time, bool) {
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if t, ok := buildDate(p.parts(m)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func buildDate(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		m = monthNumber(month)
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != time.Month(m) {
		return time.Time{}, false
	}
	return t, true
}

func monthNumber(name string) int {
	for i, n := range strings.Split(monthNames, "|") {
		if strings.EqualFold(n, name) {
			return i + 1
		}
	}
	return 0
}

// OrdinalDate formats t as "Mar 15th, 2024", the default journal page title
// format of Logseq.
func OrdinalDate(t time.Time) string {
	return fmt.Sprintf("%s %d%s, %d", t.Format("Jan"), t.Day(), ordinalSuffix(t.Day()), t.Year())
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// ParseTimestamp reads an RFC 3339 metadata value.
func ParseTimestamp(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
