package domain

import (
	"time"
)

const batchDateLayout = "2006-01-02"

// BatchKey derives the key shared by all sibling assignments of one authoring
// action. It is a persisted convention used for both writing and querying,
// so every caller must go through this function.
func BatchKey(templateName string, date time.Time) string {
	return templateName + "-" + date.UTC().Format(batchDateLayout)
}

// BatchDate truncates a scheduled date to the calendar day used in BatchKey.
func BatchDate(date time.Time) time.Time {
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
