package progress

import "strings"

const (
	taskIDPrefix = "task("
	taskIDSuffix = ")"
)

// TaskID identifies a task for progress tracking. The zero value means no
// tracking.
type TaskID string

// ParseTaskID extracts the id from the legacy "task(<id>)" form. It reports false
// for any other string, including "task()".
func ParseTaskID(s string) (TaskID, bool) {
	if !strings.HasPrefix(s, taskIDPrefix) || !strings.HasSuffix(s, taskIDSuffix) {
		return "", false
	}
	id := s[len(taskIDPrefix) : len(s)-len(taskIDSuffix)]
	if id == "" {
		return "", false
	}
	return TaskID(id), true
}

// Wire returns the id in its legacy "task(<id>)" form.
func (id TaskID) Wire() string {
	return taskIDPrefix + string(id) + taskIDSuffix
}

// IsZero reports whether the id is empty.
func (id TaskID) IsZero() bool {
	return id == ""
}
