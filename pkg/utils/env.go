package utils

import (
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	gonanoid "github.com/matoous/go-nanoid"
)

// LoadEnv loads .env files. The plain .env is loaded first; when env is set,
// .env.<env> is overlaid on top so environment-specific values win.
func LoadEnv(env string) error {
	err := godotenv.Load(".env")
	if env != "" {
		if overlayErr := godotenv.Overload(".env." + strings.ToLower(env)); overlayErr == nil {
			return nil
		}
	}
	return err
}

// GetEnv returns the trimmed value of an environment variable.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetIntEnv parses an integer environment variable, returning 0 when unset
// or malformed.
func GetIntEnv(key string) int64 {
	value := GetEnv(key)
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// GetBoolEnv parses a boolean environment variable. "1", "true", "yes" and
// "on" (any case) count as true.
func GetBoolEnv(key string) bool {
	value := strings.ToLower(GetEnv(key))
	switch value {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// GetFloatEnv parses a float environment variable, returning 0 when unset or
// malformed.
func GetFloatEnv(key string) float64 {
	value := GetEnv(key)
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}

const randAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandText returns a random alphanumeric string of length n.
func RandText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randAlphabet[rand.Intn(len(randAlphabet))]
	}
	return string(b)
}

// ShortID returns a short URL-safe identifier for log correlation.
func ShortID(n int) string {
	id, err := gonanoid.Nanoid(n)
	if err != nil {
		return RandText(n)
	}
	return id
}
