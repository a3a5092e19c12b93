package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"redweb-bot/internal/config"
	"redweb-bot/internal/models"
	"redweb-bot/internal/notify"
	"redweb-bot/internal/storage"
	"redweb-bot/internal/utils"
	"redweb-bot/internal/vpn"

	"gorm.io/gorm"
)

// Handler is the renewal path: a confirmed payment extends the subscription
// period and re-arms the expiry warning. It is the only writer of
// SubscriptionEnd, and it always writes SubscriptionEnd and Notified in the
// same save.
type Handler struct {
	Cfg      *config.Config
	Users    storage.UserRepository
	VPN      *vpn.Service
	Notifier notify.Notifier
	DB       *gorm.DB
}

func NewHandler(cfg *config.Config, users storage.UserRepository, vpnService *vpn.Service, notifier notify.Notifier, db *gorm.DB) *Handler {
	return &Handler{
		Cfg:      cfg,
		Users:    users,
		VPN:      vpnService,
		Notifier: notifier,
		DB:       db,
	}
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !utils.IsAllowedIP(host, h.Cfg.AllowedYooIP) {
		log.Printf("Rejected webhook from %s", host)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var notification WebhookNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		log.Printf("Failed to decode webhook: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if notification.Event != "payment.succeeded" {
		log.Printf("Ignored event: %s", notification.Event)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.processSuccess(r.Context(), notification.Object); err != nil {
		log.Printf("Failed to process payment success: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) processSuccess(ctx context.Context, obj WebhookObject) error {
	log.Printf("Processing payment success: %s", obj.ID)

	telegramIDStr, ok := obj.Metadata["telegram_id"]
	if !ok {
		return fmt.Errorf("metadata missing telegram_id")
	}
	telegramID, err := strconv.ParseInt(telegramIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram_id: %w", err)
	}

	months := 1
	if monthsStr, ok := obj.Metadata["months"]; ok {
		if n, err := strconv.Atoi(monthsStr); err == nil && n > 0 {
			months = n
		}
	}

	user, err := h.Users.Get(telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		user = &models.User{TelegramID: telegramID}
	} else if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	// A lapsed subscription restarts from now; an active one stacks.
	now := time.Now().UTC()
	base := now
	if user.SubscriptionEnd != nil && user.SubscriptionEnd.After(now) {
		base = *user.SubscriptionEnd
	}
	newEnd := base.Add(time.Duration(months) * 30 * 24 * time.Hour)

	var profile *vpn.Profile
	if user.HasProfile() {
		var stored vpn.Profile
		if err := json.Unmarshal([]byte(user.ProfileData), &stored); err == nil {
			profile = &stored
		}
	}

	if profile == nil {
		created, err := h.VPN.CreateProfile(ctx, telegramID)
		if err != nil {
			log.Printf("Failed to provision profile for %d: %v", telegramID, err)
		} else {
			profile = created
			data, err := json.Marshal(created)
			if err != nil {
				return fmt.Errorf("failed to serialize profile: %w", err)
			}
			user.ProfileData = string(data)
		}
	}

	// New period begins: the 24h warning must be able to fire again.
	user.SubscriptionEnd = &newEnd
	user.Notified = false
	if err := h.Users.Save(user); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	if profile != nil {
		if err := h.VPN.ExtendClient(ctx, profile.Email, newEnd); err != nil {
			log.Printf("Failed to extend panel client %s: %v", profile.Email, err)
		}
	}

	amountVal, _ := strconv.ParseFloat(obj.Amount.Value, 64)
	record := models.Payment{
		UserID:     user.ID,
		Amount:     amountVal,
		Months:     months,
		Status:     "succeeded",
		YooKassaID: obj.ID,
	}
	if err := h.DB.Create(&record).Error; err != nil {
		log.Printf("Failed to record payment: %v", err)
	}

	if profile == nil {
		_ = h.Notifier.Send(ctx, telegramID,
			"✅ Оплата прошла успешно! Но возникла проблема при выдаче доступа. Напишите в поддержку.")
		return nil
	}

	msg := fmt.Sprintf("✅ Оплата прошла успешно!\n\n📅 Подписка действует до: %s\n\n🔗 Твоя ссылка на VPN:\n%s",
		newEnd.Format("02.01.2006"), vpn.AccessURL(h.Cfg, profile))
	if err := h.Notifier.Send(ctx, telegramID, msg); err != nil {
		log.Printf("Failed to send payment confirmation to %d: %v", telegramID, err)
	}

	return nil
}
