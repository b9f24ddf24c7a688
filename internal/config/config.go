package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
		// RedactKeys add header and parameter names masked in logs
		RedactKeys []string
	}
	// Retry is the default policy for relayed requests that carry none.
	Retry struct {
		Times    int           `validate:"gte=0,lte=100"`
		Interval time.Duration `validate:"gte=0"`
		Timeout  time.Duration `validate:"gte=0"`
	}
	Request struct {
		Timeout time.Duration `validate:"gt=0"`
	}
	Probe struct {
		Schedule string   `validate:"required_with=URLs"`
		URLs     []string `validate:"dive,url"`
		Code     string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/relay.log")
	c.Log.RedactKeys = splitList(os.Getenv("LOG_REDACT_KEYS"))

	var err error
	if c.Retry.Times, err = getint("RETRY_TIMES", 0); err != nil {
		return Config{}, err
	}
	if c.Retry.Interval, err = getduration("RETRY_INTERVAL", time.Second); err != nil {
		return Config{}, err
	}
	if c.Retry.Timeout, err = getduration("RETRY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if c.Request.Timeout, err = getduration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	c.Probe.URLs = splitList(os.Getenv("PROBE_URLS"))
	c.Probe.Schedule = os.Getenv("PROBE_SCHEDULE")
	if c.Probe.Schedule == "" && len(c.Probe.URLs) > 0 {
		c.Probe.Schedule = "@every 1m"
	}
	c.Probe.Code = getenv("PROBE_CODE", "0")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

// getduration accepts Go durations ("1.5s") and bare integers as milliseconds.
func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
