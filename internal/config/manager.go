package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// ErrHelp is returned by Load when help output was requested.
var ErrHelp = errors.New("help requested")

// MissingError lists required environment variables that are unset or empty.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Names, ", ")
}

// Config is the resolved runtime configuration.
type Config struct {
	PracticumToken string
	TelegramToken  string
	ChatID         int64

	Endpoint     string
	PollInterval string
	PollTimeout  time.Duration

	ErrorRetention time.Duration
	ErrorPrefix    string

	SendTimeout time.Duration
	RatePerSec  int
	ThreadID    int
	Offline     bool

	Logging  LoggingConfig
	Verdicts map[string]string
}

// Load reads the optional dotenv file, then the environment and args, then
// the tunables file if one is configured. Existing environment variables win
// over the dotenv file.
func Load(args []string, dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dotenv %s: %w", dotenvPath, err)
		}
	}

	var env Env
	// Parse errors are returned, not printed; the caller logs them once.
	parser := flags.NewParser(&env, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := checkRequired(env); err != nil {
		return nil, err
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(env.TelegramChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be an integer chat id: %w", err)
	}

	var file File
	if p := strings.TrimSpace(env.ConfigPath); p != "" {
		if file, err = ParseFile(p); err != nil {
			return nil, err
		}
	}

	return resolve(env, chatID, file)
}

func checkRequired(env Env) error {
	var missing []string
	for _, kv := range []struct{ name, val string }{
		{"PRACTICUM_TOKEN", env.PracticumToken},
		{"TELEGRAM_TOKEN", env.TelegramToken},
		{"TELEGRAM_CHAT_ID", env.TelegramChatID},
	} {
		if strings.TrimSpace(kv.val) == "" {
			missing = append(missing, kv.name)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Names: missing}
	}
	return nil
}

// ParseFile strictly decodes a JSON or YAML tunables file.
func ParseFile(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}

	var f File
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("%s (%s): %w", path, format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return File{}, fmt.Errorf("%s: invalid config: trailing data", path)
		}
		return File{}, err
	}
	return f, nil
}

func resolve(env Env, chatID int64, f File) (*Config, error) {
	pollTimeout, err := ParseDurationOrDefault("poll.timeout", f.Poll.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	retention, err := ParseDurationOrDefault("errors.retention", f.Errors.Retention, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	sendTimeout, err := ParseDurationOrDefault("telegram.send_timeout", f.Telegram.SendTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	if f.Telegram.RatePerSec < 0 {
		return nil, fmt.Errorf("telegram.rate_per_sec must be >= 0")
	}

	logging := f.Logging
	if logging.Level == "" {
		logging.Level = "DEBUG"
	}
	if logging.Console == nil {
		on := true
		logging.Console = &on
	}

	return &Config{
		PracticumToken: strings.TrimSpace(env.PracticumToken),
		TelegramToken:  strings.TrimSpace(env.TelegramToken),
		ChatID:         chatID,
		Endpoint:       strings.TrimSpace(f.Poll.Endpoint),
		PollInterval:   strings.TrimSpace(f.Poll.Interval),
		PollTimeout:    pollTimeout,
		ErrorRetention: retention,
		ErrorPrefix:    f.Errors.Prefix,
		SendTimeout:    sendTimeout,
		RatePerSec:     f.Telegram.RatePerSec,
		ThreadID:       f.Telegram.ThreadID,
		Offline:        f.Telegram.Offline,
		Logging:        logging,
		Verdicts:       f.Verdicts,
	}, nil
}
