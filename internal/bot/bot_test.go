package bot

import (
	"testing"

	"redweb-bot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffMenu(t *testing.T) {
	b := &Bot{Cfg: &config.Config{
		Prices: map[int]config.Tariff{
			12: {BasePrice: 2400, DiscountPercent: 34},
			1:  {BasePrice: 200, DiscountPercent: 0},
			3:  {BasePrice: 600, DiscountPercent: 18},
		},
	}}

	menu := b.tariffMenu()
	require.Len(t, menu.InlineKeyboard, 4, "three tariffs plus the back row")

	// Rows come out sorted by subscription length.
	assert.Equal(t, "1 мес — 200₽", menu.InlineKeyboard[0][0].Text)
	assert.Equal(t, "buy_1", menu.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "3 мес — 492₽ (-18%)", menu.InlineKeyboard[1][0].Text)
	assert.Equal(t, "12 мес — 1584₽ (-34%)", menu.InlineKeyboard[2][0].Text)
	assert.Equal(t, "start_back", menu.InlineKeyboard[3][0].CallbackData)
}

func TestMainMenu(t *testing.T) {
	b := &Bot{Cfg: &config.Config{}}

	menu := b.mainMenu()
	require.Len(t, menu.InlineKeyboard, 2)
	assert.Equal(t, "profile", menu.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "buy_vpn", menu.InlineKeyboard[0][1].CallbackData)
}
