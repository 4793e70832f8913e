package slug

import (
	"regexp"
	"strings"
)

var unsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// Segment turns s into a lowercase path segment, falling back to def when
// nothing usable remains.
func Segment(s, def string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = unsafe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return def
	}
	return s
}
