// Package config loads process-wide configuration from the environment.
// Mandatory values are validated before any network connection is attempted;
// a missing value is a startup error and the process must not run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the bot reads at startup.
type Config struct {
	DiscordToken string

	ProxmoxHost        string
	ProxmoxPort        int
	ProxmoxTokenID     string
	ProxmoxTokenSecret string
	ProxmoxCABundle    string
	ProxmoxInsecureTLS bool
	RequestTimeout     time.Duration

	PollInterval    time.Duration
	DataDir         string
	CommandPrefix   string
	EmergencySecret string
	HistoryLimit    int

	// WebAddr enables the dashboard API when non-empty, e.g. ":8080".
	WebAddr  string
	WebToken string
}

// Load reads configuration from the environment and validates mandatory
// values.
func Load() (Config, error) {
	cfg := Config{
		DiscordToken:       os.Getenv("PVEBOT_DISCORD_TOKEN"),
		ProxmoxHost:        os.Getenv("PVEBOT_PROXMOX_HOST"),
		ProxmoxPort:        envInt("PVEBOT_PROXMOX_PORT", 8006),
		ProxmoxTokenID:     os.Getenv("PVEBOT_PROXMOX_TOKEN_ID"),
		ProxmoxTokenSecret: os.Getenv("PVEBOT_PROXMOX_TOKEN_SECRET"),
		ProxmoxCABundle:    os.Getenv("PVEBOT_PROXMOX_CA_BUNDLE"),
		ProxmoxInsecureTLS: envBool("PVEBOT_PROXMOX_INSECURE_TLS", false),
		RequestTimeout:     envDuration("PVEBOT_REQUEST_TIMEOUT", 10*time.Second),
		PollInterval:       envDuration("PVEBOT_POLL_INTERVAL", 60*time.Second),
		DataDir:            env("PVEBOT_DATA_DIR", "data"),
		CommandPrefix:      env("PVEBOT_COMMAND_PREFIX", "!"),
		EmergencySecret:    os.Getenv("PVEBOT_EMERGENCY_SECRET"),
		HistoryLimit:       envInt("PVEBOT_HISTORY_LIMIT", 1440),
		WebAddr:            os.Getenv("PVEBOT_WEB_ADDR"),
		WebToken:           os.Getenv("PVEBOT_WEB_TOKEN"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var missing []string
	if c.DiscordToken == "" {
		missing = append(missing, "PVEBOT_DISCORD_TOKEN")
	}
	if c.ProxmoxHost == "" {
		missing = append(missing, "PVEBOT_PROXMOX_HOST")
	}
	if c.ProxmoxTokenID == "" {
		missing = append(missing, "PVEBOT_PROXMOX_TOKEN_ID")
	}
	if c.ProxmoxTokenSecret == "" {
		missing = append(missing, "PVEBOT_PROXMOX_TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing mandatory environment variables: %s", strings.Join(missing, ", "))
	}
	if c.ProxmoxCABundle != "" && c.ProxmoxInsecureTLS {
		return fmt.Errorf("PVEBOT_PROXMOX_CA_BUNDLE and PVEBOT_PROXMOX_INSECURE_TLS are mutually exclusive")
	}
	if c.WebAddr != "" && c.WebToken == "" {
		return fmt.Errorf("PVEBOT_WEB_TOKEN is required when PVEBOT_WEB_ADDR is set")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("PVEBOT_POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	return nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
