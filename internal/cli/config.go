package cli

import (
	"os"
	"time"
)

// Config holds CLI configuration
type Config struct {
	Server  string
	User    string
	Pass    string
	Output  string
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Server:  getEnvOrDefault("GAMELOBBY_SERVER", "localhost:8888"),
		User:    os.Getenv("GAMELOBBY_USER"),
		Pass:    os.Getenv("GAMELOBBY_PASS"),
		Output:  "text",
		Timeout: 30 * time.Second,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
