package obsidian

import (
	"regexp"
	"strings"
)

// Category routes a section to a top-level vault folder.
type Category string

const (
	Calendar  Category = "calendar"
	Reference Category = "reference"
	Project   Category = "project"
	General   Category = "general"
)

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

var categoryKeywords = []struct {
	cat      Category
	keywords []string
}{
	{Calendar, []string{"diary", "journal", "daily"}},
	{Reference, []string{"research", "reference", "archive", "papers"}},
	{Project, []string{"project", "tutorial", "development"}},
}

// Classify picks the category of a section name. The first matching
// keyword group wins; a four-digit year also marks a calendar section.
func Classify(section string) Category {
	lower := strings.ToLower(section)
	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.cat
			}
		}
		if group.cat == Calendar && yearRe.MatchString(lower) {
			return Calendar
		}
	}
	return General
}

// Base is the vault folder for the category, "" for the vault root.
func (c Category) Base() string {
	switch c {
	case Calendar:
		return "daily"
	case Reference:
		return "references"
	case Project:
		return "projects"
	}
	return ""
}

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	slugDropRe = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)
	dashRunRe  = regexp.MustCompile(`-{2,}`)
)

// Slug makes a file-system-safe name: whitespace becomes '-', anything but
// letters, digits, '_' and '-' is dropped, and dash runs collapse.
func Slug(s string) string {
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), "-")
	s = slugDropRe.ReplaceAllString(s, "")
	s = dashRunRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_")
	if s == "" {
		return "untitled"
	}
	return s
}
