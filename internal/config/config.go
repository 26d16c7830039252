package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration

	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAPIBaseURL    string

	PortalBaseURL string
	PortalAPIKey  string

	SchedulingBaseURL string
	SchedulingAPIKey  string

	ProviderID string

	BookingMinLeadTime   time.Duration
	BookingLookaheadDays int
	BookingDateChoices   int
	BookingPageSize      int
	ClinicUTCOffset      string

	ResetKeyword         string
	SupportHandoffNumber string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("VERIFY_TOKEN", ""),
		WhatsAppAPIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),

		PortalBaseURL: getEnv("PORTAL_BASE_URL", ""),
		PortalAPIKey:  getEnv("PORTAL_API_KEY", ""),

		SchedulingBaseURL: getEnv("SCHEDULING_BASE_URL", ""),
		SchedulingAPIKey:  getEnv("SCHEDULING_API_KEY", ""),

		ProviderID: getEnv("PROVIDER_ID", ""),

		BookingMinLeadTime:   getEnvAsDuration("BOOKING_MIN_LEAD_TIME", 6*time.Hour),
		BookingLookaheadDays: getEnvAsInt("BOOKING_LOOKAHEAD_DAYS", 60),
		BookingDateChoices:   getEnvAsInt("BOOKING_DATE_CHOICES", 3),
		BookingPageSize:      getEnvAsInt("BOOKING_PAGE_SIZE", 3),
		ClinicUTCOffset:      getEnv("CLINIC_TZ", "-03:00"),

		ResetKeyword:         getEnv("RESET_KEYWORD", ""),
		SupportHandoffNumber: getEnv("SUPPORT_HANDOFF_NUMBER", "5519933005596"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
