package task

import (
	"regexp"
	"strings"
)

const maxSlugLength = 48

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a task title to a branch-friendly slug: lowercase,
// non-alphanumeric runs collapsed to "-", trimmed, clamped to 48 chars.
// An empty result falls back to "task".
func Slug(title string) string {
	slug := strings.ToLower(title)
	slug = nonAlphanumeric.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		// Truncate at word boundary.
		truncated := slug[:maxSlugLength]
		// Only trim to last hyphen if we cut mid-word.
		if slug[maxSlugLength] != '-' {
			if idx := strings.LastIndex(truncated, "-"); idx > 0 {
				truncated = truncated[:idx]
			}
		}
		slug = strings.TrimRight(truncated, "-")
	}

	if slug == "" {
		return "task"
	}
	return slug
}
