package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort          string
	RealtimePort        string
	DatabaseURL         string
	LogLevel            string
	LogFile             string
	SchedulerWorkers    int
	ChannelPoolSize     int
	AlarmLeadMinutes    int
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRefreshToken  string
	GoogleTokenURL      string
	YouTubeAPIBaseURL   string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		RealtimePort:       getEnv("REALTIME_PORT", "8081"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
		SchedulerWorkers:   getEnvInt("SCHEDULER_WORKERS", 10),
		ChannelPoolSize:    getEnvInt("CHANNEL_POOL_SIZE", 1),
		AlarmLeadMinutes:   getEnvInt("ALARM_LEAD_MINUTES", 10),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
		GoogleTokenURL:     getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		YouTubeAPIBaseURL:  getEnv("YOUTUBE_API_BASE_URL", "https://www.googleapis.com/youtube/v3"),
	}
}

// AlarmLeadTime returns how far before an auction's start the "starting
// soon" alarm fires.
func (c *Config) AlarmLeadTime() time.Duration {
	return time.Duration(c.AlarmLeadMinutes) * time.Minute
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

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}
