package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	SiteBaseURL string

	Headless     bool
	WebDriverURL string

	// account intake
	AccountsCSV   string
	QueueURL      string
	QueueToken    string
	QueueXORKey   string
	QueueHMACKey  string

	// runner caps
	MaxRestarts   int
	CourseRetries int
	QuizAttempts  int

	WatchSlack     time.Duration
	WatchPoll      time.Duration
	DefaultLecture time.Duration

	// event store
	DBDriver string
	DBDSN    string

	// status endpoint
	HTTPAddr        string
	StatusTokenHash string // bcrypt
	CORSOrigins     []string

	// notification channel
	NotifyAPIBase string
	NotifyChatID  string

	ExportCertificates bool
}

func FromEnv() Config {
	return Config{
		SiteBaseURL: envOr("SITE_BASE_URL", "https://kpbma-cpedu.com"),

		Headless:     envBool("HEADLESS", true),
		WebDriverURL: envOr("WEBDRIVER_URL", "http://localhost:9515"),

		AccountsCSV:  envOr("ACCOUNTS_CSV", ""),
		QueueURL:     envOr("QUEUE_URL", ""),
		QueueToken:   envOr("QUEUE_TOKEN", ""),
		QueueXORKey:  envOr("QUEUE_XOR_KEY", ""),
		QueueHMACKey: envOr("QUEUE_HMAC_KEY", ""),

		MaxRestarts:   envInt("MAX_RESTARTS", 3),
		CourseRetries: envInt("COURSE_RETRIES", 3),
		QuizAttempts:  envInt("QUIZ_ATTEMPTS", 3),

		WatchSlack:     envDur("WATCH_SLACK", 90*time.Second),
		WatchPoll:      envDur("WATCH_POLL", 10*time.Second),
		DefaultLecture: envDur("DEFAULT_LECTURE", 70*time.Minute),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		HTTPAddr:        envOr("HTTP_ADDR", ""),
		StatusTokenHash: envOr("STATUS_TOKEN_HASH", ""),
		CORSOrigins:     csvOr("CORS_ORIGINS", "http://localhost:3000"),

		NotifyAPIBase: envOr("NOTIFY_API_BASE", ""),
		NotifyChatID:  envOr("NOTIFY_CHAT_ID", ""),

		ExportCertificates: envBool("EXPORT_CERTIFICATES", true),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
