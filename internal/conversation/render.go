package conversation

import (
	"fmt"
	"strings"

	"remindbot/internal/model"
	"remindbot/pkg/tgui"
)

const (
	msgGreeting = "Hello, %s! Welcome to the reminder bot.\n\n" +
		"I send you a message when an important date comes up: birthdays, meetings, payments and anything else you want to remember."
	msgAbout = "📆 <b>Reminder Bot</b> 📆\n\n" +
		"Keeps track of important dates and pings you on time. Reminders can be one-time or repeat weekly, monthly or yearly.\n\n" +
		"Commands:\n/start — open the main menu\n/help — show this help"
	msgMainMenu       = "Main menu:"
	msgCancelled      = "Cancelled. Back to the main menu."
	msgAskTitle       = "What should I remind you about?"
	msgAskDate        = "Enter the date (DD.MM.YYYY format):\nFor example: 15.05.2025"
	msgBadDate        = "❌ Wrong format. Please enter the date as DD.MM.YYYY (for example, 15.05.2025):"
	msgAskTime        = "Enter the time (HH:MM format):\nFor example: 14:30"
	msgBadTime        = "❌ Wrong format. Please enter the time as HH:MM (for example, 14:30):"
	msgAskRecurrence  = "How often should this reminder repeat?"
	msgConfirmDelete  = "Delete this reminder?"
	msgDeleted        = "✅ Reminder deleted."
	msgDeleteAborted  = "Deletion cancelled."
	msgDeleteMissing  = "❌ Reminder not found."
	msgNoReminders    = "📝 You have no reminders yet."
	msgGenericFailure = "❌ Something went wrong. Please try again."
	msgUseButtons     = "Please use the buttons below."
)

func mainMenuKeyboard() [][]Button {
	return [][]Button{
		{{Label: "📝 Add reminder", Data: string(ActionAdd)}},
		{{Label: "📋 My reminders", Data: string(ActionList)}},
		{{Label: "ℹ️ About", Data: string(ActionAbout)}},
	}
}

func cancelKeyboard() [][]Button {
	return [][]Button{{{Label: "🔙 Cancel", Data: string(ActionCancel)}}}
}

func recurrenceKeyboard() [][]Button {
	return [][]Button{
		{{Label: "🔄 Every year", Data: string(ActionYearly)}},
		{{Label: "🔄 Every month", Data: string(ActionMonthly)}},
		{{Label: "🔄 Every week", Data: string(ActionWeekly)}},
		{{Label: "1️⃣ One time", Data: string(ActionOnce)}},
		{{Label: "🔙 Cancel", Data: string(ActionCancel)}},
	}
}

func yesNoKeyboard() [][]Button {
	return [][]Button{{
		{Label: "✅ Yes", Data: string(ActionYes)},
		{Label: "❌ No", Data: string(ActionNo)},
	}}
}

func menuReply(text string) Reply {
	return Reply{Text: text, Keyboard: mainMenuKeyboard()}
}

func promptReply(text string) Reply {
	return Reply{Text: text, Keyboard: cancelKeyboard()}
}

func createdReply(rem *model.Reminder) Reply {
	text := fmt.Sprintf(
		"✅ Reminder saved!\n\n📝 Title: %s\n📅 Date: %s\n🕒 Time: %s\n🔄 Repeats: %s",
		tgui.Esc(rem.Title),
		rem.RemindAt.Format(model.DateLayout),
		rem.RemindAt.Format(model.TimeLayout),
		rem.Recurrence.Label(),
	)
	return menuReply(text)
}

// listReply renders the user's reminders in insertion order, one delete
// button per row, plus a back button.
func listReply(reminders []model.Reminder) Reply {
	if len(reminders) == 0 {
		return Reply{
			Text:     msgNoReminders,
			Keyboard: [][]Button{{{Label: "🔙 Back", Data: string(ActionBack)}}},
		}
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Your reminders:</b>\n")
	keyboard := make([][]Button, 0, len(reminders)+1)
	for i, rem := range reminders {
		fmt.Fprintf(&sb, "\n<b>%d. %s</b>\n📅 %s  🕒 %s  🔄 %s\n",
			i+1,
			tgui.Esc(rem.Title),
			rem.RemindAt.Format(model.DateLayout),
			rem.RemindAt.Format(model.TimeLayout),
			rem.Recurrence.Label(),
		)
		keyboard = append(keyboard, []Button{{
			Label: fmt.Sprintf("❌ Delete %d", i+1),
			Data:  DeleteData(rem.ID),
		}})
	}
	keyboard = append(keyboard, []Button{{Label: "🔙 Back", Data: string(ActionBack)}})
	return Reply{Text: sb.String(), Keyboard: keyboard}
}
