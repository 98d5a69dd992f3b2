package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Database. Driver is "postgres" or "sqlite"; SQLitePath is used when
	// the driver is sqlite.
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// WAHA upstream.
	WahaURL              string
	WahaAPIKey           string
	WahaSession          string
	DefaultCountryCode   string
	EnforceActiveSession bool

	// Messaging.
	ChurchName    string
	CommunityLink string
	WebhookBase   string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "followup"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("DB_PATH", "./followup.db"),

		WahaURL:              getEnv("WAHA_API_URL", "http://localhost:3000"),
		WahaAPIKey:           getEnv("WAHA_API_KEY", ""),
		WahaSession:          getEnv("WAHA_SESSION", "default"),
		DefaultCountryCode:   getEnv("WAHA_DEFAULT_COUNTRY_CODE", "234"),
		EnforceActiveSession: getBoolEnv("WAHA_ENFORCE_ACTIVE_SESSION", true),

		ChurchName:    getEnv("CHURCH_NAME", "Victory Chapel"),
		CommunityLink: getEnv("WHATSAPP_COMMUNITY_LINK", ""),
		WebhookBase:   getEnv("WEBHOOK_BASE_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return strings.ToLower(value) != "false"
}
