package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"remindbot/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the single source of truth for users and reminders. Both the
// conversation flow and the dispatcher go through it; every call is a short,
// independent transaction.
type Repository interface {
	// FindOrCreateUser upserts the user for a Telegram account. The display
	// name and handle are refreshed when they changed.
	FindOrCreateUser(ctx context.Context, telegramID int64, firstName, username string) (*model.User, error)
	UserByID(ctx context.Context, id uint) (*model.User, error)

	ListReminders(ctx context.Context, userID uint) ([]model.Reminder, error)
	CreateReminder(ctx context.Context, userID uint, title string, remindAt time.Time, rec model.Recurrence) (*model.Reminder, error)
	// DeleteReminder removes one reminder; ErrNotFound when the id is unknown.
	DeleteReminder(ctx context.Context, id uint) error

	// FindDueUnnotified returns reminders with RemindAt <= now that have not
	// been delivered yet. Ordering is not significant.
	FindDueUnnotified(ctx context.Context, now time.Time) ([]model.Reminder, error)
	MarkNotified(ctx context.Context, id uint) error
	InsertSuccessor(ctx context.Context, rem *model.Reminder, nextAt time.Time) (*model.Reminder, error)
	// CompleteOccurrence marks rem notified and, when nextAt is non-zero,
	// inserts the successor row inside the same transaction, so a crash
	// can neither re-notify nor lose the next occurrence.
	CompleteOccurrence(ctx context.Context, rem *model.Reminder, nextAt time.Time) error

	// PurgeNotified deletes notified, non-recurring history rows older than
	// cutoff and reports how many were removed.
	PurgeNotified(ctx context.Context, cutoff time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository wraps a GORM handle in the Repository contract.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindOrCreateUser(ctx context.Context, telegramID int64, firstName, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		if user.FirstName != firstName || user.Username != username {
			user.FirstName = firstName
			user.Username = username
			if err := r.db.WithContext(ctx).Model(&user).
				Updates(map[string]any{"first_name": firstName, "username": username}).Error; err != nil {
				return nil, fmt.Errorf("update user: %w", err)
			}
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{TelegramID: telegramID, FirstName: firstName, Username: username}
		if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *gormRepository) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user by id: %w", err)
	}
	return &user, nil
}

func (r *gormRepository) ListReminders(ctx context.Context, userID uint) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

func (r *gormRepository) CreateReminder(ctx context.Context, userID uint, title string, remindAt time.Time, rec model.Recurrence) (*model.Reminder, error) {
	rem := model.Reminder{
		UserID:     userID,
		Title:      title,
		RemindAt:   remindAt,
		Recurrence: rec,
	}
	if err := r.db.WithContext(ctx).Create(&rem).Error; err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return &rem, nil
}

func (r *gormRepository) DeleteReminder(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Reminder{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete reminder: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) FindDueUnnotified(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	var due []model.Reminder
	if err := r.db.WithContext(ctx).
		Where("remind_at <= ? AND notified = ?", now, false).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("find due: %w", err)
	}
	return due, nil
}

func (r *gormRepository) MarkNotified(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ?", id).
		Update("notified", true)
	if res.Error != nil {
		return fmt.Errorf("mark notified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) InsertSuccessor(ctx context.Context, rem *model.Reminder, nextAt time.Time) (*model.Reminder, error) {
	next := model.Reminder{
		UserID:     rem.UserID,
		Title:      rem.Title,
		RemindAt:   nextAt,
		Recurrence: rem.Recurrence,
	}
	if err := r.db.WithContext(ctx).Create(&next).Error; err != nil {
		return nil, fmt.Errorf("insert successor: %w", err)
	}
	return &next, nil
}

func (r *gormRepository) CompleteOccurrence(ctx context.Context, rem *model.Reminder, nextAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &gormRepository{db: tx}
		if err := scoped.MarkNotified(ctx, rem.ID); err != nil {
			return err
		}
		if nextAt.IsZero() {
			return nil
		}
		_, err := scoped.InsertSuccessor(ctx, rem, nextAt)
		return err
	})
}

func (r *gormRepository) PurgeNotified(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("notified = ? AND recurrence = ? AND remind_at < ?", true, model.RecurrenceNone, cutoff).
		Delete(&model.Reminder{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge notified: %w", res.Error)
	}
	return res.RowsAffected, nil
}
