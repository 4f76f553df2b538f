package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads key=value pairs from the given files (default ".env") into the
// process environment. Variables already set in the environment win. Missing files
// are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func String(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Int returns a positive integer from key, or fallback when unset or invalid.
func Int(key string, fallback int) int {
	v, err := strconv.Atoi(String(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func Bool(key string, fallback bool) bool {
	switch strings.ToLower(String(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// Seconds reads a whole number of seconds from key.
func Seconds(key string, fallback time.Duration) time.Duration {
	n := Int(key, 0)
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// List splits a comma separated value, dropping blanks.
func List(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(String(key, fallback), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
