package logseq

import (
	"regexp"
	"strings"
)

var (
	taskRe    = regexp.MustCompile(`(?i)\b(TODO|TASK|Action Item)\b`)
	meetingRe = regexp.MustCompile(`(?i)\b(meeting|agenda|minutes)\b`)

	priorityA = regexp.MustCompile(`(?i)\b(urgent|critical|high priority|asap)\b`)
	priorityB = regexp.MustCompile(`(?i)\b(important|medium priority)\b`)

	checkboxRe   = regexp.MustCompile(`^\s*\[([ xX])\]\s*(.+)$`)
	taskPrefixRe = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(TODO|DONE|TASK):?\s*(.+)$`)
	taskItemRe   = regexp.MustCompile(`(?i)^\s*(?:\[[ xX]\]|(?:[-*]\s*)?(?:TODO|DONE|TASK)\b)`)
)

// Priority grades task text: A for urgent wording, B for important, C
// otherwise.
func Priority(text string) string {
	switch {
	case priorityA.MatchString(text):
		return "A"
	case priorityB.MatchString(text):
		return "B"
	}
	return "C"
}

// IsTaskItem reports whether a list item is written as a task.
func IsTaskItem(text string) bool {
	return taskItemRe.MatchString(text)
}

// ParseTaskState extracts the done flag and the residual text of a task
// item. The checkbox form is tried before the keyword prefix; text that
// matches neither is an open task.
func ParseTaskState(text string) (done bool, rest string) {
	if m := checkboxRe.FindStringSubmatch(text); m != nil {
		return m[1] != " ", strings.TrimSpace(m[2])
	}
	if m := taskPrefixRe.FindStringSubmatch(text); m != nil {
		return strings.EqualFold(m[1], "DONE"), strings.TrimSpace(m[2])
	}
	return false, strings.TrimSpace(text)
}

var contentTypes = []struct {
	re  *regexp.Regexp
	typ string
}{
	{regexp.MustCompile(`(?i)\b(meeting|minutes|agenda)\b`), "meeting-notes"},
	{regexp.MustCompile(`(?i)\b(todo|task|action item)\b`), "task-list"},
	{regexp.MustCompile(`(?i)\b(research|analysis|study)\b`), "research"},
	{regexp.MustCompile(`(?i)\b(diary|journal|daily)\b`), "diary-entry"},
	{regexp.MustCompile(`(?i)\b(project|development|implementation)\b`), "project-notes"},
}

// DetectContentType classifies page text, returning "" when nothing
// matches.
func DetectContentType(text string) string {
	for _, ct := range contentTypes {
		if ct.re.MatchString(text) {
			return ct.typ
		}
	}
	return ""
}
