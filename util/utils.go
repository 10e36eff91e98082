package util

import "strings"

// NormalizeString lower-cases s, trims it, and replaces inner spaces with underscores.
func NormalizeString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ToLower(s)
}

// PathSegments splits a URL path into its segments after trimming leading and
// trailing slashes. An empty or all-slash path yields no segments.
func PathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
