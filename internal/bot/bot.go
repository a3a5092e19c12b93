package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"redweb-bot/internal/config"
	"redweb-bot/internal/models"
	"redweb-bot/internal/payment"
	"redweb-bot/internal/storage"
	"redweb-bot/internal/vpn"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/redis/go-redis/v9"
)

const statsCacheTTL = 5 * time.Minute

type Bot struct {
	Instance      *telego.Bot
	Cfg           *config.Config
	Users         storage.UserRepository
	VPN           *vpn.Service
	PaymentClient *payment.Client
	Redis         *redis.Client
}

func NewBot(cfg *config.Config, users storage.UserRepository, vpnService *vpn.Service, paymentClient *payment.Client, rdb *redis.Client) (*Bot, error) {
	tgBot, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance:      tgBot,
		Cfg:           cfg,
		Users:         users,
		VPN:           vpnService,
		PaymentClient: paymentClient,
		Redis:         rdb,
	}, nil
}

func (b *Bot) mainMenu() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("👤 Личный кабинет").WithCallbackData("profile"),
			tu.InlineKeyboardButton("🚀 Купить VPN").WithCallbackData("buy_vpn"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📖 Инструкция").WithCallbackData("instruction"),
		),
	)
}

func (b *Bot) tariffMenu() *telego.InlineKeyboardMarkup {
	months := make([]int, 0, len(b.Cfg.Prices))
	for m := range b.Cfg.Prices {
		months = append(months, m)
	}
	sort.Ints(months)

	var rows [][]telego.InlineKeyboardButton
	for _, m := range months {
		label := fmt.Sprintf("%d мес — %d₽", m, b.Cfg.CalculatePrice(m))
		if b.Cfg.Prices[m].DiscountPercent > 0 {
			label += fmt.Sprintf(" (-%d%%)", b.Cfg.Prices[m].DiscountPercent)
		}
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(label).WithCallbackData(fmt.Sprintf("buy_%d", m)),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("« Назад").WithCallbackData("start_back"),
	))
	return tu.InlineKeyboard(rows...)
}

func (b *Bot) Start() {
	updates, _ := b.Instance.UpdatesViaLongPolling(context.Background(), nil)

	handler, _ := th.NewBotHandler(b.Instance, updates)

	// /start command
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		telegramID := message.From.ID

		user, err := b.Users.Get(telegramID)
		if errors.Is(err, storage.ErrNotFound) {
			user = &models.User{
				TelegramID: telegramID,
				Username:   message.From.Username,
				FullName:   message.From.FirstName,
			}
			if err := b.Users.Save(user); err != nil {
				log.Printf("Failed to create user %d: %v", telegramID, err)
			}
		} else if err != nil {
			log.Printf("Failed to get user %d: %v", telegramID, err)
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("Привет, %s! 👋\n\nЯ помогу тебе с доступом к VPN.", message.From.FirstName),
		).WithReplyMarkup(b.mainMenu()))
		return nil
	}, th.CommandEqual("start"))

	// /stats command - admin only, shows currently connected clients
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		telegramID := update.Message.From.ID

		user, err := b.Users.Get(telegramID)
		if err != nil || !user.IsAdmin {
			return nil
		}

		online := b.onlineUsersCached(ctx.Context())
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(telegramID),
			fmt.Sprintf("📊 Сейчас онлайн: %d", online),
		))
		return nil
	}, th.CommandEqual("stats"))

	// Tariff selection
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(callback.From.ID),
			"📊 Выберите тарифный план:",
		).WithReplyMarkup(b.tariffMenu()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("buy_vpn"))

	// Purchase: create a payment link for the chosen tariff
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		months, err := strconv.Atoi(strings.TrimPrefix(callback.Data, "buy_"))
		if err != nil {
			return nil
		}
		price := b.Cfg.CalculatePrice(months)
		if price == 0 {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), "❌ Неизвестный тариф."))
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
			return nil
		}

		metadata := map[string]string{
			"telegram_id": strconv.FormatInt(telegramID, 10),
			"months":      strconv.Itoa(months),
		}
		description := fmt.Sprintf("VPN подписка на %d мес.", months)

		paymentResp, err := b.PaymentClient.CreatePayment(ctx.Context(),
			fmt.Sprintf("%d.00", price), "RUB", description, "https://t.me/redweb_vpn_bot", metadata)
		if err != nil {
			log.Printf("Failed to create payment for %d: %v", telegramID, err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), "❌ Ошибка при создании платежа."))
		} else {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(telegramID),
				fmt.Sprintf("💳 Ссылка для оплаты (%d₽):\n%s\n\nПосле оплаты доступ придет автоматически.",
					price, paymentResp.Confirmation.ConfirmationURL),
			))
		}

		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix("buy_"))

	// Profile view
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		user, err := b.Users.Get(telegramID)
		if err != nil {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), "👤 Профиль не найден. Нажмите /start."))
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
			return nil
		}

		status := "❌ Нет подписки"
		expiry := "N/A"
		if user.SubscriptionEnd != nil {
			expiry = user.SubscriptionEnd.Format("02.01.2006")
			if user.SubscriptionEnd.After(time.Now()) {
				status = "✅ Активна"
			} else {
				status = "⚠️ Истекла"
			}
		}

		msg := fmt.Sprintf("👤 *Личный кабинет:*\n\n🔹 ID: `%d`\n🔹 Статус: %s\n🔹 Действует до: %s", telegramID, status, expiry)

		if user.HasProfile() {
			var profile vpn.Profile
			if err := json.Unmarshal([]byte(user.ProfileData), &profile); err != nil {
				log.Printf("Malformed profile for %d: %v", telegramID, err)
			} else {
				stats := b.userStatsCached(ctx.Context(), profile.Email)
				msg += fmt.Sprintf("\n🔹 Трафик: ⬆️ %.2f MB / ⬇️ %.2f MB",
					float64(stats.Upload)/1024/1024, float64(stats.Download)/1024/1024)
				msg += fmt.Sprintf("\n\n🔗 *Твоя ссылка на VPN:*\n`%s`", vpn.AccessURL(b.Cfg, &profile))
			}
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), msg).
			WithParseMode(telego.ModeMarkdown).WithReplyMarkup(b.mainMenu()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("profile"))

	// Instruction
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery

		msg := "📖 *Как пользоваться VPN:*\n\n" +
			"1. Купите подписку через кнопку 'Купить VPN'.\n" +
			"2. После оплаты вы получите ссылку.\n" +
			"3. Скачайте приложение (V2RayNG для Android, v2BOX для iOS).\n" +
			"4. Импортируйте ссылку в приложение.\n" +
			"5. Нажмите 'Подключиться'!"

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(callback.From.ID), msg).WithParseMode(telego.ModeMarkdown))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("instruction"))

	// Back to main menu
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(callback.From.ID),
			"Главное меню:",
		).WithReplyMarkup(b.mainMenu()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("start_back"))

	handler.Start()
}

// Traffic counters feed a display path only, so a short redis cache keeps the
// profile button from hammering the panel.
func (b *Bot) userStatsCached(ctx context.Context, email string) vpn.Stats {
	key := "stats_" + email

	if cached, err := b.Redis.Get(ctx, key).Result(); err == nil {
		var stats vpn.Stats
		if json.Unmarshal([]byte(cached), &stats) == nil {
			return stats
		}
	}

	stats := b.VPN.UserStats(ctx, email)
	if data, err := json.Marshal(stats); err == nil {
		b.Redis.Set(ctx, key, data, statsCacheTTL)
	}
	return stats
}

func (b *Bot) onlineUsersCached(ctx context.Context) int {
	const key = "online_users"

	if cached, err := b.Redis.Get(ctx, key).Result(); err == nil {
		if n, err := strconv.Atoi(cached); err == nil {
			return n
		}
	}

	n := b.VPN.OnlineUsers(ctx)
	b.Redis.Set(ctx, key, strconv.Itoa(n), time.Minute)
	return n
}
