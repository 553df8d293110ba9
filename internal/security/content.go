package security

import (
	"regexp"
	"strings"
	"unicode"
)

// injectionPatterns match instruction-override phrasing that fetched web
// pages sometimes plant for LLM pipelines. Matching is done against
// normalized text, so zero-width padding and exotic whitespace do not
// evade it. Homoglyph substitution is not detected.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above|prior)\s+(instructions?|context)`),
	regexp.MustCompile(`(?i)^\s*(important|critical|urgent|system)\s*:`),
	regexp.MustCompile(`(?i)^new\s+(instruction|task|rule)\s*:`),
	regexp.MustCompile(`(?i)^you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`),
	regexp.MustCompile(`(?i)</?(system|instruction|prompt)>`),
	regexp.MustCompile(`(?i)do\s+anything\s+now`),
	regexp.MustCompile(`(?i)jailbreak`),
}

// ScrubExternal prepares untrusted web text for inclusion in a prompt:
// invisible characters are stripped, whitespace is normalized, and lines
// matching known injection phrasing are dropped entirely.
func ScrubExternal(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = normalizeLine(line)
		if line == "" {
			continue
		}
		if matchesInjection(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// ContainsInjection reports whether text carries instruction-override
// phrasing, for callers that want to log rather than silently drop.
func ContainsInjection(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if matchesInjection(normalizeLine(line)) {
			return true
		}
	}
	return false
}

func matchesInjection(line string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// normalizeLine strips format and combining characters that could split a
// matched phrase, and collapses runs of whitespace.
func normalizeLine(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
