package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"remindbot/internal/model"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Reminder{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewRepository(db)
}

func TestFindOrCreateUserUpserts(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.FindOrCreateUser(ctx, 42, "Alice", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	// Same account with a changed handle refreshes the row instead of
	// inserting a second one.
	again, err := repo.FindOrCreateUser(ctx, 42, "Alice", "alice_new")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.ID != created.ID {
		t.Fatalf("expected same user id, got %d and %d", created.ID, again.ID)
	}
	if again.Username != "alice_new" {
		t.Fatalf("username not refreshed: %q", again.Username)
	}
}

func TestCreateListDeleteReminder(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	user, err := repo.FindOrCreateUser(ctx, 1, "Bob", "")
	if err != nil {
		t.Fatalf("user: %v", err)
	}

	at := time.Date(2025, 5, 15, 14, 30, 0, 0, time.UTC)
	first, err := repo.CreateReminder(ctx, user.ID, "Meeting", at, model.RecurrenceNone)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateReminder(ctx, user.ID, "Dentist", at.Add(time.Hour), model.RecurrenceWeekly); err != nil {
		t.Fatalf("create second: %v", err)
	}

	reminders, err := repo.ListReminders(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reminders) != 2 || reminders[0].Title != "Meeting" || reminders[1].Title != "Dentist" {
		t.Fatalf("unexpected list order: %+v", reminders)
	}

	if err := repo.DeleteReminder(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteReminder(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestFindDueUnnotified(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	user, _ := repo.FindOrCreateUser(ctx, 2, "Carol", "")
	now := time.Date(2025, 5, 15, 14, 30, 0, 0, time.UTC)

	due, _ := repo.CreateReminder(ctx, user.ID, "due", now.Add(-time.Minute), model.RecurrenceNone)
	if _, err := repo.CreateReminder(ctx, user.ID, "future", now.Add(time.Hour), model.RecurrenceNone); err != nil {
		t.Fatalf("create: %v", err)
	}
	delivered, _ := repo.CreateReminder(ctx, user.ID, "delivered", now.Add(-time.Hour), model.RecurrenceNone)
	if err := repo.MarkNotified(ctx, delivered.ID); err != nil {
		t.Fatalf("mark notified: %v", err)
	}

	got, err := repo.FindDueUnnotified(ctx, now)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expected exactly the due reminder, got %+v", got)
	}
}

func TestCompleteOccurrenceInsertsSuccessorAtomically(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	user, _ := repo.FindOrCreateUser(ctx, 3, "Dave", "")
	at := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rem, _ := repo.CreateReminder(ctx, user.ID, "standup", at, model.RecurrenceWeekly)

	next := model.NextOccurrence(rem.RemindAt, rem.Recurrence)
	if err := repo.CompleteOccurrence(ctx, rem, next); err != nil {
		t.Fatalf("complete: %v", err)
	}

	reminders, _ := repo.ListReminders(ctx, user.ID)
	if len(reminders) != 2 {
		t.Fatalf("expected original plus successor, got %d rows", len(reminders))
	}

	var unnotified int
	for _, r := range reminders {
		if !r.Notified {
			unnotified++
			if !r.RemindAt.Equal(next) {
				t.Fatalf("successor anchored at %v, want %v", r.RemindAt, next)
			}
			if r.Recurrence != model.RecurrenceWeekly || r.Title != "standup" {
				t.Fatalf("successor lost attributes: %+v", r)
			}
		}
	}
	// At most one row per chain is ever unnotified.
	if unnotified != 1 {
		t.Fatalf("expected exactly one unnotified row, got %d", unnotified)
	}
}

func TestCompleteOccurrenceOneShotLeavesNoSuccessor(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	user, _ := repo.FindOrCreateUser(ctx, 4, "Erin", "")
	rem, _ := repo.CreateReminder(ctx, user.ID, "once", time.Now().UTC(), model.RecurrenceNone)

	if err := repo.CompleteOccurrence(ctx, rem, time.Time{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	reminders, _ := repo.ListReminders(ctx, user.ID)
	if len(reminders) != 1 || !reminders[0].Notified {
		t.Fatalf("one-shot reminder must stay a single notified row: %+v", reminders)
	}
}

func TestPurgeNotified(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	user, _ := repo.FindOrCreateUser(ctx, 5, "Finn", "")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old, _ := repo.CreateReminder(ctx, user.ID, "old", now.Add(-60*24*time.Hour), model.RecurrenceNone)
	_ = repo.MarkNotified(ctx, old.ID)
	recent, _ := repo.CreateReminder(ctx, user.ID, "recent", now.Add(-time.Hour), model.RecurrenceNone)
	_ = repo.MarkNotified(ctx, recent.ID)
	// Recurring history rows are kept: they are the chain's audit trail.
	weekly, _ := repo.CreateReminder(ctx, user.ID, "weekly", now.Add(-60*24*time.Hour), model.RecurrenceWeekly)
	_ = repo.MarkNotified(ctx, weekly.ID)

	n, err := repo.PurgeNotified(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}

	reminders, _ := repo.ListReminders(ctx, user.ID)
	if len(reminders) != 2 {
		t.Fatalf("expected recent and weekly to survive, got %+v", reminders)
	}
}
