package livectx

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	recencyWords = []string{
		"latest", "recent", "emerging", "current", "currently",
		"now", "today", "this year", "ongoing", "new ",
	}
)

// TemporalHint inspects the query for temporal intent and returns a hint
// string for the external search call. An explicit year wins; otherwise
// recency wording maps to the current year. Empty means no temporal intent.
func TemporalHint(query string, now time.Time) string {
	if year := yearPattern.FindString(query); year != "" {
		return year
	}
	lower := strings.ToLower(query)
	for _, w := range recencyWords {
		if strings.Contains(lower, w) {
			return fmt.Sprintf("%d", now.Year())
		}
	}
	return ""
}

// RecencyLabel renders a published timestamp as a human-readable age.
// A zero timestamp yields the empty string.
func RecencyLabel(published, now time.Time) string {
	if published.IsZero() {
		return ""
	}
	days := int(now.Sub(published).Hours() / 24)
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return plural(days/7, "week")
	case days < 365:
		return plural(days/30, "month")
	default:
		return plural(days/365, "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
