package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

type Config struct {
	AppURL                 string
	DatabaseDSN            string
	RedisAddr              string
	RedisEnabled           bool
	RateLimit              int
	ShutdownTimeoutSeconds int
	LogLevel               string

	// Cron specs for the named jobs, robfig/cron 5-field syntax.
	TaskGenerationCron    string
	MeetingGenerationCron string
	SweepCron             string
	ReminderCron          string

	// Horizon for cron-triggered generation runs, in days from today.
	GenerationHorizonDays int

	SwapExpiryDays       int
	QueueEntryTTLMinutes int
	JobLockTTLSeconds    int
	NotifyTimeoutSeconds int

	SlackBotToken string
	SlackChannel  string
}

func Load() Config {
	appHost := getEnv("APP_HOST", "127.0.0.1")
	appPort := getEnv("APP_PORT", "8080")
	redisHost := getEnv("REDIS_HOST", "127.0.0.1")
	redisPort := getEnv("REDIS_PORT", "6379")

	cfg := Config{
		AppURL:                 fmt.Sprintf("%s:%s", appHost, appPort),
		DatabaseDSN:            getEnv("DATABASE_DSN", "lab-scheduler.db"),
		RedisAddr:              fmt.Sprintf("%s:%s", redisHost, redisPort),
		RedisEnabled:           getEnvAsBool("REDIS_ENABLED", true),
		RateLimit:              getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		ShutdownTimeoutSeconds: getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 20),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		TaskGenerationCron:     getEnv("TASK_GENERATION_CRON", "0 6 * * *"),
		MeetingGenerationCron:  getEnv("MEETING_GENERATION_CRON", "30 6 * * *"),
		SweepCron:              getEnv("SWEEP_CRON", "*/10 * * * *"),
		ReminderCron:           getEnv("REMINDER_CRON", "0 9 * * *"),
		GenerationHorizonDays:  getEnvAsInt("GENERATION_HORIZON_DAYS", 35),
		SwapExpiryDays:         getEnvAsInt("SWAP_EXPIRY_DAYS", 7),
		QueueEntryTTLMinutes:   getEnvAsInt("QUEUE_ENTRY_TTL_MINUTES", 30),
		JobLockTTLSeconds:      getEnvAsInt("JOB_LOCK_TTL_SECONDS", 300),
		NotifyTimeoutSeconds:   getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 5),
		SlackBotToken:          getEnv("SLACK_BOT_TOKEN", ""),
		SlackChannel:           getEnv("SLACK_CHANNEL", ""),
	}

	validate(cfg)
	return cfg
}

func validate(cfg Config) {
	if cfg.AppURL == "" {
		log.Fatal("APP_URL must not be empty (e.g. 127.0.0.1:8080)")
	}
	if cfg.DatabaseDSN == "" {
		log.Fatal("DATABASE_DSN must not be empty")
	}
	if cfg.RateLimit <= 0 {
		log.Fatal("RATE_LIMIT_PER_MINUTE must be greater than 0")
	}
	if cfg.GenerationHorizonDays <= 0 {
		log.Fatal("GENERATION_HORIZON_DAYS must be greater than 0")
	}
	if cfg.SwapExpiryDays <= 0 {
		log.Fatal("SWAP_EXPIRY_DAYS must be greater than 0")
	}
	if cfg.QueueEntryTTLMinutes <= 0 {
		log.Fatal("QUEUE_ENTRY_TTL_MINUTES must be greater than 0")
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid integer value for %s", key)
		}
		return i
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Fatalf("invalid boolean value for %s", key)
		}
		return b
	}
	return defaultVal
}
