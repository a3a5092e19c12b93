package storage

import (
	"errors"
	"fmt"

	"redweb-bot/internal/models"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("storage: user not found")

// UserRepository is the persistence contract the lifecycle engine runs
// against. The reconciliation loop is the only writer of Notified and
// ProfileData; the renewal path writes SubscriptionEnd and Notified together
// in one Save so a concurrent warning cannot be clobbered halfway.
type UserRepository interface {
	ListAll() ([]models.User, error)
	Get(telegramID int64) (*models.User, error)
	Save(user *models.User) error
	Delete(telegramID int64) error
	// DemoteAllAdmins strips the admin flag from every record in one
	// statement; the startup admin sync re-promotes from the allow-list.
	DemoteAllAdmins() error
}

type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (r *Users) ListAll() ([]models.User, error) {
	var users []models.User
	if err := r.db.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *Users) Get(telegramID int64) (*models.User, error) {
	var user models.User
	err := r.db.Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return &user, nil
}

func (r *Users) Save(user *models.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %d: %w", user.TelegramID, err)
	}
	return nil
}

func (r *Users) Delete(telegramID int64) error {
	if err := r.db.Where("telegram_id = ?", telegramID).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("failed to delete user %d: %w", telegramID, err)
	}
	return nil
}

func (r *Users) DemoteAllAdmins() error {
	err := r.db.Model(&models.User{}).Where("is_admin = ?", true).Update("is_admin", false).Error
	if err != nil {
		return fmt.Errorf("failed to demote admins: %w", err)
	}
	return nil
}
