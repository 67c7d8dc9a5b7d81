package main

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server settings, read once from the environment at
// startup and treated as immutable.
type Config struct {
	// Server
	ServerPort string

	// Database
	DatabaseDSN string

	// Reset tokens
	RedisAddr     string
	RedisPassword string
	ResetTokenTTL time.Duration
	SweepInterval time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	TemplateDir  string

	// Notifications
	NotificationsURL string

	Debug bool
}

// Load reads the Config from environment variables. Everything has a
// development-friendly default: with no environment at all the server runs
// on sqlite in a local file, keeps reset tokens in memory, and logs emails
// instead of sending them.
func Load() *Config {
	return &Config{
		ServerPort:       getEnvString("SERVER_PORT", "8080"),
		DatabaseDSN:      getEnvString("DATABASE_DSN", "file:accounts.db?cache=shared"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		ResetTokenTTL:    getEnvDuration("RESET_TOKEN_TTL", 15*time.Minute),
		SweepInterval:    getEnvDuration("RESET_SWEEP_INTERVAL", time.Minute),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getEnvInt("SMTP_PORT", 465),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:         getEnvString("SMTP_FROM", "no-reply@localhost"),
		TemplateDir:      getEnvString("TEMPLATE_DIR", "./templates"),
		NotificationsURL: os.Getenv("NOTIFICATIONS_URL"),
		Debug:            getEnvBool("DEBUG", false),
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
