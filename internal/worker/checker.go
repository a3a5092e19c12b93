package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"redweb-bot/internal/models"
	"redweb-bot/internal/notify"
	"redweb-bot/internal/storage"
	"redweb-bot/internal/vpn"
)

const (
	noticeWindow  = 24 * time.Hour
	adminValidity = 365 * 24 * time.Hour

	expiryNoticeText  = "⚠️ Ваша подписка истекает через 24 часа! Продлите подписку, чтобы сохранить доступ."
	revokedNoticeText = "❌ Ваша подписка истекла. Доступ к VPN отключен."
)

// Provisioner is the slice of the VPN service the loop needs: teardown only.
// Profile creation belongs to the purchase path.
type Provisioner interface {
	DeleteClient(ctx context.Context, email string) error
}

// Checker reconciles every subscriber against wall-clock time on a fixed
// cadence. One instance, sequential passes, no overlap.
type Checker struct {
	Users    storage.UserRepository
	Notifier notify.Notifier
	VPN      Provisioner
	Interval time.Duration
}

func NewChecker(users storage.UserRepository, notifier notify.Notifier, provisioner Provisioner) *Checker {
	return &Checker{
		Users:    users,
		Notifier: notifier,
		VPN:      provisioner,
		Interval: time.Hour,
	}
}

// Start runs one pass immediately, then one per interval until the context is
// cancelled. Cancellation interrupts only the inter-pass sleep; an in-flight
// pass always completes.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	log.Println("Background subscription worker started")
	c.RunPass(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Background subscription worker stopped")
			return
		case <-ticker.C:
			c.RunPass(ctx)
		}
	}
}

// RunPass scans all subscribers once. A failure on one subscriber is logged
// and never aborts the rest of the pass; a listing failure skips the pass and
// the loop re-arms.
func (c *Checker) RunPass(ctx context.Context) {
	log.Println("Running subscription check cycle...")

	users, err := c.Users.ListAll()
	if err != nil {
		log.Printf("Error listing users: %v", err)
		return
	}

	now := time.Now().UTC()
	for i := range users {
		if err := c.reconcile(ctx, &users[i], now); err != nil {
			log.Printf("Failed to reconcile user %d: %v", users[i].TelegramID, err)
		}
	}
}

// reconcile applies at most one transition: deprovision when the period has
// ended, otherwise the 24h warning when due. Never both in one pass.
func (c *Checker) reconcile(ctx context.Context, user *models.User, now time.Time) error {
	if user.SubscriptionEnd == nil {
		return nil
	}
	remaining := user.SubscriptionEnd.Sub(now)

	if remaining <= 0 {
		if user.HasProfile() {
			return c.deprovision(ctx, user)
		}
		return nil
	}

	if remaining < noticeWindow && !user.Notified {
		return c.notifyExpiring(ctx, user)
	}
	return nil
}

func (c *Checker) notifyExpiring(ctx context.Context, user *models.User) error {
	if err := c.Notifier.Send(ctx, user.TelegramID, expiryNoticeText); err != nil {
		return fmt.Errorf("expiry notice: %w", err)
	}

	user.Notified = true
	if err := c.Users.Save(user); err != nil {
		return fmt.Errorf("marking notified: %w", err)
	}
	log.Printf("Sent 24h notification to user %d", user.TelegramID)
	return nil
}

func (c *Checker) deprovision(ctx context.Context, user *models.User) error {
	var profile vpn.Profile
	if err := json.Unmarshal([]byte(user.ProfileData), &profile); err != nil {
		return fmt.Errorf("malformed stored profile: %w", err)
	}
	if profile.Email == "" {
		return errors.New("stored profile has no access label")
	}

	if err := c.VPN.DeleteClient(ctx, profile.Email); err != nil {
		return fmt.Errorf("deleting panel client %s: %w", profile.Email, err)
	}

	user.ProfileData = ""
	if err := c.Users.Save(user); err != nil {
		return fmt.Errorf("clearing profile: %w", err)
	}

	if err := c.Notifier.Send(ctx, user.TelegramID, revokedNoticeText); err != nil {
		log.Printf("Failed to send revoke notice to %d: %v", user.TelegramID, err)
	}
	log.Printf("Subscription of user %d expired, profile removed", user.TelegramID)
	return nil
}

// SyncAdmins rebuilds the admin flags from the configured allow-list. Runs
// once at process start; a failure here aborts startup.
func (c *Checker) SyncAdmins(adminIDs []int64) error {
	if err := c.Users.DemoteAllAdmins(); err != nil {
		return err
	}

	for _, id := range adminIDs {
		user, err := c.Users.Get(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			end := time.Now().UTC().Add(adminValidity)
			user = &models.User{
				TelegramID:      id,
				FullName:        "Admin",
				IsAdmin:         true,
				SubscriptionEnd: &end,
			}
		case err != nil:
			return err
		default:
			user.IsAdmin = true
		}

		if err := c.Users.Save(user); err != nil {
			return err
		}
	}

	log.Println("Admin status updated in database")
	return nil
}
