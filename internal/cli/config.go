package cli

import "os"

// Environment variables read by the admin client commands
const (
	AdminURLEnv = "WQ_ADMIN_URL"
	OutputEnv   = "WQ_OUTPUT"
)

// Config holds the admin client settings shared by every command
type Config struct {
	ServerURL string
	Output    string
}

// DefaultConfig reads the environment, falling back to a local server and
// text output
func DefaultConfig() *Config {
	return &Config{
		ServerURL: envOr(AdminURLEnv, "http://localhost:8080"),
		Output:    envOr(OutputEnv, "text"),
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
