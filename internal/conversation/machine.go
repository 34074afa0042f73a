package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/model"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Machine drives the reminder dialogue. Handle applies one event to one
// session and returns the reply to render; all validation happens before any
// state advances, so invalid input always re-prompts in place.
type Machine struct {
	repo storage.Repository
	loc  *time.Location
	log  logx.Logger
}

func NewMachine(repo storage.Repository, loc *time.Location, log logx.Logger) *Machine {
	return &Machine{repo: repo, loc: loc, log: log}
}

func (m *Machine) Handle(ctx context.Context, sess *Session, ev Event) Reply {
	switch ev.Kind {
	case EventStart:
		return m.start(ctx, sess, ev)
	case EventHelp:
		sess.clearScratch()
		sess.State = StateMainMenu
		return menuReply(msgAbout)
	case EventText:
		return m.text(sess, ev)
	case EventAction:
		return m.action(ctx, sess, ev)
	default:
		return menuReply(msgMainMenu)
	}
}

// start upserts the user record and (re)enters the main menu. It doubles as
// the escape hatch: restarting always clears in-flight scratch.
func (m *Machine) start(ctx context.Context, sess *Session, ev Event) Reply {
	sess.clearScratch()
	sess.State = StateMainMenu

	user, err := m.repo.FindOrCreateUser(ctx, ev.FromID, ev.FirstName, ev.Username)
	if err != nil {
		m.log.Error("session start failed", logx.Int64("chat_id", sess.ChatID), logx.Err(err))
		return menuReply(msgGenericFailure)
	}
	sess.UserID = user.ID
	return menuReply(fmt.Sprintf(msgGreeting, tgui.Esc(user.FirstName)))
}

func (m *Machine) text(sess *Session, ev Event) Reply {
	switch sess.State {
	case StateSetTitle:
		// Titles are accepted verbatim; no length or content validation.
		sess.Title = ev.Text
		sess.State = StateSetDate
		return promptReply(msgAskDate)

	case StateSetDate:
		date, err := ParseDate(ev.Text, m.loc)
		if err != nil {
			return promptReply(msgBadDate)
		}
		sess.Date = date
		sess.State = StateSetTime
		return promptReply(msgAskTime)

	case StateSetTime:
		hour, minute, err := ParseClock(ev.Text)
		if err != nil {
			return promptReply(msgBadTime)
		}
		sess.RemindAt = At(sess.Date, hour, minute)
		sess.State = StateConfirmRecurrence
		return Reply{Text: msgAskRecurrence, Keyboard: recurrenceKeyboard()}

	default:
		// Free text outside the add flow is a no-op fallback.
		return menuReply(msgUseButtons)
	}
}

func (m *Machine) action(ctx context.Context, sess *Session, ev Event) Reply {
	// Global actions work from any state.
	switch ev.Action {
	case ActionCancel, ActionBack:
		sess.clearScratch()
		sess.State = StateMainMenu
		if ev.Action == ActionBack {
			return menuReply(msgMainMenu)
		}
		return menuReply(msgCancelled)

	case ActionDelete:
		sess.PendingDelete = ev.TargetID
		sess.State = StateConfirmDelete
		return Reply{Text: msgConfirmDelete, Keyboard: yesNoKeyboard()}
	}

	switch sess.State {
	case StateMainMenu, StateRemindersList:
		return m.menuAction(ctx, sess, ev)
	case StateConfirmRecurrence:
		return m.confirmRecurrence(ctx, sess, ev)
	case StateConfirmDelete:
		return m.confirmDelete(ctx, sess, ev)
	default:
		// Unrecognized action for this state: stay put.
		return menuReply(msgUseButtons)
	}
}

func (m *Machine) menuAction(ctx context.Context, sess *Session, ev Event) Reply {
	switch ev.Action {
	case ActionAdd:
		sess.clearScratch()
		sess.State = StateSetTitle
		return promptReply(msgAskTitle)

	case ActionList:
		if err := m.ensureUser(ctx, sess, ev); err != nil {
			sess.State = StateMainMenu
			return menuReply(msgGenericFailure)
		}
		reminders, err := m.repo.ListReminders(ctx, sess.UserID)
		if err != nil {
			m.log.Error("list reminders failed", logx.Int64("chat_id", sess.ChatID), logx.Err(err))
			sess.State = StateMainMenu
			return menuReply(msgGenericFailure)
		}
		sess.State = StateRemindersList
		return listReply(reminders)

	case ActionAbout:
		sess.State = StateMainMenu
		return menuReply(msgAbout)

	default:
		return menuReply(msgUseButtons)
	}
}

func (m *Machine) confirmRecurrence(ctx context.Context, sess *Session, ev Event) Reply {
	rec, ok := model.ParseRecurrence(string(ev.Action))
	if !ok {
		return menuReply(msgUseButtons)
	}

	if err := m.ensureUser(ctx, sess, ev); err != nil {
		sess.clearScratch()
		sess.State = StateMainMenu
		return menuReply(msgGenericFailure)
	}

	rem, err := m.repo.CreateReminder(ctx, sess.UserID, sess.Title, sess.RemindAt, rec)
	sess.clearScratch()
	sess.State = StateMainMenu
	if err != nil {
		m.log.Error("create reminder failed", logx.Int64("chat_id", sess.ChatID), logx.Err(err))
		return menuReply(msgGenericFailure)
	}
	return createdReply(rem)
}

func (m *Machine) confirmDelete(ctx context.Context, sess *Session, ev Event) Reply {
	pending := sess.PendingDelete
	sess.PendingDelete = 0
	sess.State = StateMainMenu

	if ev.Action != ActionYes || pending == 0 {
		return menuReply(msgDeleteAborted)
	}

	switch err := m.repo.DeleteReminder(ctx, pending); {
	case err == nil:
		return menuReply(msgDeleted)
	case errors.Is(err, storage.ErrNotFound):
		return menuReply(msgDeleteMissing)
	default:
		m.log.Error("delete reminder failed", logx.Uint("reminder_id", pending), logx.Err(err))
		return menuReply(msgGenericFailure)
	}
}

// ensureUser lazily resolves the database user for sessions that started
// before a restart (in-memory sessions don't survive one).
func (m *Machine) ensureUser(ctx context.Context, sess *Session, ev Event) error {
	if sess.UserID != 0 {
		return nil
	}
	user, err := m.repo.FindOrCreateUser(ctx, ev.FromID, ev.FirstName, ev.Username)
	if err != nil {
		m.log.Error("user lookup failed", logx.Int64("chat_id", sess.ChatID), logx.Err(err))
		return err
	}
	sess.UserID = user.ID
	return nil
}
