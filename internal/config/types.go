package config

// Env holds the values read from the environment (or the matching flags).
// The three tokens are required; ConfigPath is optional.
type Env struct {
	PracticumToken string `long:"practicum-token" env:"PRACTICUM_TOKEN" description:"Practicum API OAuth token"`
	TelegramToken  string `long:"telegram-token" env:"TELEGRAM_TOKEN" description:"Telegram bot token"`
	TelegramChatID string `long:"telegram-chat-id" env:"TELEGRAM_CHAT_ID" description:"Telegram chat that receives notifications"`
	ConfigPath     string `long:"config" env:"BOT_CONFIG" description:"Optional YAML or JSON file with tunables"`
}

// File is the optional tunables file.
//
// All durations are Go duration strings (e.g. "30s", "10m").
//
// Example (YAML):
//
//	poll:
//	  interval: "10m"
//	errors:
//	  retention: "24h"
//	logging:
//	  level: debug
type File struct {
	Poll     PollConfig        `json:"poll"`
	Errors   ErrorsConfig      `json:"errors"`
	Telegram TelegramConfig    `json:"telegram"`
	Logging  LoggingConfig     `json:"logging"`
	Verdicts map[string]string `json:"verdicts,omitempty"`
}

type PollConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	// Interval is a Go duration, an "@every" descriptor or a cron expression.
	Interval string `json:"interval,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type ErrorsConfig struct {
	Retention string `json:"retention,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
}

type TelegramConfig struct {
	SendTimeout string `json:"send_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty"`
	// Offline skips the getMe handshake at startup.
	Offline bool `json:"offline,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
