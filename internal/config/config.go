package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Tariff struct {
	BasePrice       int
	DiscountPercent int
}

type Config struct {
	BotToken string

	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	XUIAPIURL   string
	XUIBasePath string
	XUIUsername string
	XUIPassword string
	XUIHost     string
	InboundID   int

	RealityPublicKey   string
	RealityFingerprint string
	RealitySNI         string
	RealityShortID     string
	RealitySpiderX     string

	AdminIDs []int64

	YookassaShopID string
	YookassaKey    string
	WebhookAddr    string
	AllowedYooIP   []string

	// Price table keyed by subscription length in months.
	Prices map[int]Tariff
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		BotToken:           getEnv("BOT_TOKEN", ""),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "redweb_bot"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		XUIAPIURL:          strings.TrimRight(getEnv("XUI_API_URL", ""), "/"),
		XUIBasePath:        strings.Trim(getEnv("XUI_BASE_PATH", ""), "/"),
		XUIUsername:        getEnv("XUI_USERNAME", ""),
		XUIPassword:        getEnv("XUI_PASSWORD", ""),
		XUIHost:            getEnv("XUI_HOST", ""),
		InboundID:          getEnvInt("INBOUND_ID", 3),
		RealityPublicKey:   getEnv("REALITY_PUBLIC_KEY", ""),
		RealityFingerprint: getEnv("REALITY_FINGERPRINT", "chrome"),
		RealitySNI:         getEnv("REALITY_SNI", "google.com"),
		RealityShortID:     getEnv("REALITY_SHORT_ID", ""),
		RealitySpiderX:     getEnv("REALITY_SPIDER_X", "/"),
		AdminIDs:           parseIDList(getEnv("ADMINS", "")),
		YookassaShopID:     getEnv("YOOKASSA_SHOP_ID", ""),
		YookassaKey:        getEnv("YOOKASSA_SECRET_KEY", ""),
		WebhookAddr:        getEnv("WEBHOOK_ADDR", ":8443"),
		AllowedYooIP: []string{
			"185.71.76.0/27",
			"185.71.77.0/27",
			"77.75.153.0/25",
			"77.75.156.224/28",
			"77.75.154.128/25",
			"2a02:5180::/32",
		},
		Prices: map[int]Tariff{
			1:  {BasePrice: 200, DiscountPercent: 0},
			3:  {BasePrice: 600, DiscountPercent: 18},
			6:  {BasePrice: 1200, DiscountPercent: 28},
			12: {BasePrice: 2400, DiscountPercent: 34},
		},
	}
}

// Validate fails fast on anything the bot cannot run without.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"BOT_TOKEN", c.BotToken},
		{"XUI_API_URL", c.XUIAPIURL},
		{"XUI_USERNAME", c.XUIUsername},
		{"XUI_PASSWORD", c.XUIPassword},
		{"XUI_HOST", c.XUIHost},
	}
	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("missing required config: %s", field.name)
		}
	}
	if c.InboundID <= 0 {
		return fmt.Errorf("invalid INBOUND_ID: %d", c.InboundID)
	}
	return nil
}

// CalculatePrice returns the discounted price for a tariff, 0 for unknown lengths.
func (c *Config) CalculatePrice(months int) int {
	tariff, ok := c.Prices[months]
	if !ok {
		return 0
	}
	discount := tariff.BasePrice * tariff.DiscountPercent / 100
	return tariff.BasePrice - discount
}

// PanelBaseURL is the panel root including the random base path segment.
func (c *Config) PanelBaseURL() string {
	if c.XUIBasePath == "" {
		return c.XUIAPIURL
	}
	return c.XUIAPIURL + "/" + c.XUIBasePath
}

// The panel stores SNI and short id as comma lists; clients use the first entry.
func (c *Config) FirstSNI() string {
	return firstOf(c.RealitySNI)
}

func (c *Config) FirstShortID() string {
	return firstOf(c.RealityShortID)
}

func firstOf(list string) string {
	return strings.TrimSpace(strings.Split(list, ",")[0])
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("Skipping invalid admin id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
