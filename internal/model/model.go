package model

import "time"

// User-facing date/time input formats. These are a contract with the chat
// user: anything that doesn't match exactly is rejected, not guessed at.
const (
	DateLayout = "02.01.2006"
	TimeLayout = "15:04"
)

// Recurrence says how often a reminder repeats. A recurring reminder is a
// chain of rows: when one occurrence fires, the dispatcher inserts the next
// one as a fresh row and leaves the old row behind as history.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// ParseRecurrence maps a callback action token to a Recurrence.
// "once" is the token users see for non-repeating reminders.
func ParseRecurrence(s string) (Recurrence, bool) {
	switch s {
	case "once":
		return RecurrenceNone, true
	case string(RecurrenceWeekly):
		return RecurrenceWeekly, true
	case string(RecurrenceMonthly):
		return RecurrenceMonthly, true
	case string(RecurrenceYearly):
		return RecurrenceYearly, true
	default:
		return "", false
	}
}

// Label returns the human-readable recurrence text used in lists and
// confirmation messages.
func (r Recurrence) Label() string {
	switch r {
	case RecurrenceWeekly:
		return "every week"
	case RecurrenceMonthly:
		return "every month"
	case RecurrenceYearly:
		return "every year"
	default:
		return "once"
	}
}

// User is a Telegram account known to the bot. Created lazily on the first
// /start; the display name and handle are refreshed on every session start.
type User struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"uniqueIndex;not null"`
	FirstName  string `gorm:"not null"`
	Username   string
	CreatedAt  time.Time

	// Reminders are owned exclusively: deleting a user cascades.
	Reminders []Reminder `gorm:"constraint:OnDelete:CASCADE"`
}

// Reminder is a single occurrence. RemindAt is stored in the bot's fixed
// time zone. Notified flips to true exactly once, when the dispatcher has
// delivered the notification; the row is never mutated otherwise.
type Reminder struct {
	ID         uint       `gorm:"primaryKey"`
	UserID     uint       `gorm:"index;not null"`
	Title      string     `gorm:"type:text;not null"`
	RemindAt   time.Time  `gorm:"index;not null"`
	Recurrence Recurrence `gorm:"type:text;not null;default:none"`
	Notified   bool       `gorm:"not null;default:false"`
	CreatedAt  time.Time
}
