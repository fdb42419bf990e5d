package utils

import "strings"

// TruncateForLog trims s and cuts it to at most limit runes for a log preview.
// A cut preview ends with "...".
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)

	seen := 0
	for i := range s {
		if seen == limit {
			return s[:i] + "..."
		}
		seen++
	}
	return s
}

// NormalizeLines collapses runs of spaces and tabs inside each line and drops
// blank lines, keeping line order.
func NormalizeLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
