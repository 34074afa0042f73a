package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"remindbot/internal/model"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()

	// Foreign keys stay off here so the orphan tests can seed reminder rows
	// whose owner does not exist.
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Reminder{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return storage.NewRepository(db)
}

type sentAlert struct {
	chatID int64
	text   string
}

// fakeNotifier records deliveries and can fail the first N attempts.
type fakeNotifier struct {
	mu       sync.Mutex
	sent     []sentAlert
	failNext int
}

func (f *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, sentAlert{chatID: chatID, text: text})
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, storage.Repository, *fakeNotifier) {
	t.Helper()
	repo := newTestRepo(t)
	fake := &fakeNotifier{}
	d := New(repo, fake, cfg, logx.Nop())
	return d, repo, fake
}

func seedUser(t *testing.T, repo storage.Repository, telegramID int64) *model.User {
	t.Helper()
	user, err := repo.FindOrCreateUser(context.Background(), telegramID, "Alice", "alice")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedReminder(t *testing.T, repo storage.Repository, userID uint, title string, at time.Time, rec model.Recurrence) *model.Reminder {
	t.Helper()
	rem, err := repo.CreateReminder(context.Background(), userID, title, at, rec)
	if err != nil {
		t.Fatalf("seed reminder: %v", err)
	}
	return rem
}

func TestRunDeliversOneShot(t *testing.T) {
	t.Parallel()
	d, repo, fake := newTestDispatcher(t, Config{})
	ctx := context.Background()

	now := time.Date(2025, time.May, 15, 14, 30, 5, 0, time.UTC)
	d.now = func() time.Time { return now }

	user := seedUser(t, repo, 42)
	seedReminder(t, repo, user.ID, "Meeting",
		time.Date(2025, time.May, 15, 14, 30, 0, 0, time.UTC), model.RecurrenceNone)

	d.run(ctx)

	if fake.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", fake.sentCount())
	}
	if fake.sent[0].chatID != 42 {
		t.Fatalf("chat id = %d, want 42", fake.sent[0].chatID)
	}
	if !strings.Contains(fake.sent[0].text, "Meeting") {
		t.Fatalf("alert missing title: %q", fake.sent[0].text)
	}

	reminders, _ := repo.ListReminders(ctx, user.ID)
	if len(reminders) != 1 {
		t.Fatalf("one-shot must not grow the list, got %d rows", len(reminders))
	}
	if !reminders[0].Notified {
		t.Fatalf("delivered reminder must be marked notified")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()
	d, repo, fake := newTestDispatcher(t, Config{})
	ctx := context.Background()

	now := time.Date(2025, time.May, 15, 15, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	user := seedUser(t, repo, 42)
	seedReminder(t, repo, user.ID, "Once only",
		time.Date(2025, time.May, 15, 14, 30, 0, 0, time.UTC), model.RecurrenceNone)

	d.run(ctx)
	d.run(ctx)

	if fake.sentCount() != 1 {
		t.Fatalf("sent = %d, want exactly 1 across two runs", fake.sentCount())
	}
}

func TestRunRegeneratesWeekly(t *testing.T) {
	t.Parallel()
	d, repo, fake := newTestDispatcher(t, Config{})
	ctx := context.Background()

	due := time.Date(2025, time.May, 15, 14, 30, 0, 0, time.UTC)
	now := due.Add(30 * time.Second)
	d.now = func() time.Time { return now }

	user := seedUser(t, repo, 42)
	seedReminder(t, repo, user.ID, "Standup", due, model.RecurrenceWeekly)

	d.run(ctx)

	if fake.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", fake.sentCount())
	}

	reminders, _ := repo.ListReminders(ctx, user.ID)
	if len(reminders) != 2 {
		t.Fatalf("expected delivered row plus successor, got %d rows", len(reminders))
	}

	var unnotified []model.Reminder
	for _, rem := range reminders {
		if !rem.Notified {
			unnotified = append(unnotified, rem)
		}
	}
	if len(unnotified) != 1 {
		t.Fatalf("expected exactly one pending occurrence, got %d", len(unnotified))
	}
	wantNext := due.AddDate(0, 0, 7)
	if !unnotified[0].RemindAt.Equal(wantNext) {
		t.Fatalf("successor at %v, want %v", unnotified[0].RemindAt, wantNext)
	}
	if unnotified[0].Recurrence != model.RecurrenceWeekly {
		t.Fatalf("successor recurrence = %q", unnotified[0].Recurrence)
	}

	// The successor is in the future; a second run must send nothing.
	d.run(ctx)
	if fake.sentCount() != 1 {
		t.Fatalf("sent = %d after second run, want 1", fake.sentCount())
	}
}

func TestRunSkipsFutureReminders(t *testing.T) {
	t.Parallel()
	d, repo, fake := newTestDispatcher(t, Config{})
	ctx := context.Background()

	now := time.Date(2025, time.May, 15, 14, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	user := seedUser(t, repo, 42)
	seedReminder(t, repo, user.ID, "Later",
		now.Add(time.Hour), model.RecurrenceNone)

	d.run(ctx)
	if fake.sentCount() != 0 {
		t.Fatalf("sent = %d, want 0 for future reminders", fake.sentCount())
	}
}

func TestDeliveryFailureRetriesNextRun(t *testing.T) {
	t.Parallel()
	d, repo, fake := newTestDispatcher(t, Config{})
	ctx := context.Background()

	now := time.Date(2025, time.May, 15, 15, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	user := seedUser(t, repo, 42)
	seedReminder(t, repo, user.ID, "Flaky",
		now.Add(-time.Minute), model.RecurrenceNone)

	fake.failNext = 1
	d.run(ctx)
	if fake.sentCount() != 0 {
		t.Fatalf("sent = %d after failed run, want 0", fake.sentCount())
	}
	reminders, _ := repo.ListReminders(ctx, user.ID)
	if reminders[0].Notified {
		t.Fatalf("failed delivery must leave the row pending")
	}

	d.run(ctx)
	if fake.sentCount() != 1 {
		t.Fatalf("sent = %d after retry run, want 1", fake.sentCount())
	}
	reminders, _ = repo.ListReminders(ctx, user.ID)
	if !reminders[0].Notified {
		t.Fatalf("retried delivery must mark the row notified")
	}
}

func TestOrphanSkippedByDefault(t *testing.T) {
	t.Parallel()
	d, repo, fake := newTestDispatcher(t, Config{})
	ctx := context.Background()

	now := time.Date(2025, time.May, 15, 15, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	// A reminder pointing at a user id that was never created.
	seedReminder(t, repo, 9999, "Ghost", now.Add(-time.Minute), model.RecurrenceNone)

	d.run(ctx)
	if fake.sentCount() != 0 {
		t.Fatalf("sent = %d, want 0 for an orphan", fake.sentCount())
	}

	due, _ := repo.FindDueUnnotified(ctx, now)
	if len(due) != 1 {
		t.Fatalf("skipped orphan must stay pending, got %d due rows", len(due))
	}
}

func TestOrphanQuarantined(t *testing.T) {
	t.Parallel()
	d, repo, fake := newTestDispatcher(t, Config{QuarantineOrphans: true})
	ctx := context.Background()

	now := time.Date(2025, time.May, 15, 15, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	seedReminder(t, repo, 9999, "Ghost", now.Add(-time.Minute), model.RecurrenceNone)

	d.run(ctx)
	if fake.sentCount() != 0 {
		t.Fatalf("sent = %d, want 0 for an orphan", fake.sentCount())
	}

	due, _ := repo.FindDueUnnotified(ctx, now)
	if len(due) != 0 {
		t.Fatalf("quarantined orphan must not come back, got %d due rows", len(due))
	}
}

func TestPurgeRemovesOldHistory(t *testing.T) {
	t.Parallel()
	d, repo, _ := newTestDispatcher(t, Config{RetentionMaxAge: 30 * 24 * time.Hour})
	ctx := context.Background()

	now := time.Date(2025, time.May, 15, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	user := seedUser(t, repo, 42)
	old := seedReminder(t, repo, user.ID, "Ancient",
		now.AddDate(0, -3, 0), model.RecurrenceNone)
	recent := seedReminder(t, repo, user.ID, "Recent",
		now.Add(-time.Hour), model.RecurrenceNone)
	if err := repo.MarkNotified(ctx, old.ID); err != nil {
		t.Fatalf("mark old: %v", err)
	}
	if err := repo.MarkNotified(ctx, recent.ID); err != nil {
		t.Fatalf("mark recent: %v", err)
	}

	d.purge(ctx)

	reminders, _ := repo.ListReminders(ctx, user.ID)
	if len(reminders) != 1 {
		t.Fatalf("expected 1 row after purge, got %d", len(reminders))
	}
	if reminders[0].ID != recent.ID {
		t.Fatalf("purge removed the wrong row")
	}
}

func TestRenderAlert(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, time.May, 15, 14, 30, 0, 0, time.UTC)

	oneShot := &model.Reminder{Title: "Call <mom>", RemindAt: at, Recurrence: model.RecurrenceNone}
	text := renderAlert(oneShot)
	if !strings.Contains(text, "Call &lt;mom&gt;") {
		t.Fatalf("title not escaped: %q", text)
	}
	if !strings.Contains(text, "15.05.2025") || !strings.Contains(text, "14:30") {
		t.Fatalf("alert missing timestamp: %q", text)
	}
	if strings.Contains(text, "Repeats") {
		t.Fatalf("one-shot alert must not mention repetition: %q", text)
	}

	weekly := &model.Reminder{Title: "Standup", RemindAt: at, Recurrence: model.RecurrenceWeekly}
	text = renderAlert(weekly)
	if !strings.Contains(text, "22.05.2025") {
		t.Fatalf("weekly alert missing next date: %q", text)
	}
}
