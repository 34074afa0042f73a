// Package conversation implements the multi-turn dialogue that creates and
// deletes reminders. The machine is an explicit state/event/transition type
// with no transport dependency: it consumes Events and returns Replies, and
// the Telegram router decides how those hit the wire.
package conversation

import (
	"strconv"
	"strings"
)

type State int

const (
	StateMainMenu State = iota
	StateSetTitle
	StateSetDate
	StateSetTime
	StateConfirmRecurrence
	StateRemindersList
	StateConfirmDelete
)

func (s State) String() string {
	switch s {
	case StateMainMenu:
		return "main_menu"
	case StateSetTitle:
		return "set_title"
	case StateSetDate:
		return "set_date"
	case StateSetTime:
		return "set_time"
	case StateConfirmRecurrence:
		return "confirm_recurrence"
	case StateRemindersList:
		return "reminders_list"
	case StateConfirmDelete:
		return "confirm_delete"
	default:
		return "unknown"
	}
}

// Action is one of the closed set of discrete-choice tokens delivered via
// inline-button callbacks.
type Action string

const (
	ActionAdd     Action = "add"
	ActionList    Action = "list"
	ActionAbout   Action = "about"
	ActionCancel  Action = "cancel"
	ActionBack    Action = "back"
	ActionYes     Action = "yes"
	ActionNo      Action = "no"
	ActionOnce    Action = "once"
	ActionWeekly  Action = "weekly"
	ActionMonthly Action = "monthly"
	ActionYearly  Action = "yearly"
	ActionDelete  Action = "delete" // carries a reminder id: "delete:<id>"
)

// DeleteData formats the callback payload for a per-reminder delete button.
func DeleteData(id uint) string {
	return string(ActionDelete) + ":" + strconv.FormatUint(uint64(id), 10)
}

// ParseAction decodes raw callback data into an action token plus, for
// delete, the target reminder id. ok is false for anything outside the
// closed set.
func ParseAction(data string) (action Action, targetID uint, ok bool) {
	data = strings.TrimSpace(data)
	if rest, found := strings.CutPrefix(data, string(ActionDelete)+":"); found {
		id, err := strconv.ParseUint(rest, 10, 32)
		if err != nil || id == 0 {
			return "", 0, false
		}
		return ActionDelete, uint(id), true
	}
	switch Action(data) {
	case ActionAdd, ActionList, ActionAbout, ActionCancel, ActionBack,
		ActionYes, ActionNo, ActionOnce, ActionWeekly, ActionMonthly, ActionYearly:
		return Action(data), 0, true
	default:
		return "", 0, false
	}
}

type EventKind int

const (
	// EventStart is the session-start event (/start).
	EventStart EventKind = iota
	// EventHelp shows the help text (/help).
	EventHelp
	// EventText is a free-text message.
	EventText
	// EventAction is a discrete choice from an inline button.
	EventAction
)

type Event struct {
	Kind     EventKind
	Text     string
	Action   Action
	TargetID uint

	// Sender identity, used to lazily upsert the user record. FromID is the
	// sender's account id, which only matches the chat id in private chats.
	FromID    int64
	FirstName string
	Username  string
}

// Button is a transport-agnostic inline button.
type Button struct {
	Label string
	Data  string
}

// Reply is the rendered outcome of one transition: HTML text plus an inline
// keyboard. Every reply carries a keyboard so the user is never left in a
// dead end.
type Reply struct {
	Text     string
	Keyboard [][]Button
}
