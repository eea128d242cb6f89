package domain

import "time"

// AgingBucket classifies overdue severity by days past the due date.
type AgingBucket string

const (
	AgingCurrent AgingBucket = "current"
	Aging1To30   AgingBucket = "1-30"
	Aging31To60  AgingBucket = "31-60"
	Aging61To90  AgingBucket = "61-90"
	Aging90Plus  AgingBucket = "90+"
)

// DaysOverdue returns the number of whole days now is past dueDate, or 0 if
// the due date has not passed. Both dates are compared at day granularity in
// UTC so a document is never overdue during its own due day.
func DaysOverdue(dueDate, now time.Time) int {
	due := dueDate.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	days := int(today.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// BucketFor maps a days-overdue count to its aging bucket.
func BucketFor(daysOverdue int) AgingBucket {
	switch {
	case daysOverdue <= 0:
		return AgingCurrent
	case daysOverdue <= 30:
		return Aging1To30
	case daysOverdue <= 60:
		return Aging31To60
	case daysOverdue <= 90:
		return Aging61To90
	default:
		return Aging90Plus
	}
}
