package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/utils"
)

// Environment variables recognized for credentials.
const (
	EnvUsername   = "APPLE_ID_USER"
	EnvPassword   = "APPLE_ID_PWD"
	EnvTrustToken = "TRUST_TOKEN"

	scrubPlaceholder = "********"
)

// Config is everything the core recognizes; the rest of the CLI surface is
// the front end's concern.
type Config struct {
	Username   string
	Password   string
	TrustToken string

	DataDir         string
	Port            int
	Schedule        string
	MaxRetries      int
	DownloadThreads int
	MFATimeout      time.Duration

	Force        bool
	RemoteDelete bool
}

// Defaults returns a config with every default applied.
func Defaults() Config {
	return Config{
		DataDir:         "./photos",
		Port:            80,
		MaxRetries:      3,
		DownloadThreads: 16,
		MFATimeout:      10 * time.Minute,
	}
}

// ResolveEnv fills unset credential fields from the environment. Flags have
// already been bound by the front end, so flag > env > .env ordering holds.
func (c *Config) ResolveEnv() {
	if c.Username == "" {
		c.Username = utils.GetEnvWithKey(EnvUsername)
	}
	if c.Password == "" {
		c.Password = utils.GetEnvWithKey(EnvPassword)
	}
	if c.TrustToken == "" {
		c.TrustToken = utils.GetEnvWithKey(EnvTrustToken)
	}
}

// Validate checks the pieces every operation needs.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return apperr.New(apperr.KindAuth, "username and password are required")
	}
	if c.DataDir == "" {
		return apperr.New(apperr.KindLibrary, "data directory is required")
	}
	return nil
}

// TrustTokenPath is where the trust token persists between runs.
func (c *Config) TrustTokenPath() string {
	return filepath.Join(c.DataDir, ".trust-token")
}

// ScrubEnv replaces credential material in the process environment and argv
// so no later error report can carry a credential substring.
func (c *Config) ScrubEnv() {
	for _, key := range []string{EnvUsername, EnvPassword, EnvTrustToken} {
		if os.Getenv(key) != "" {
			_ = os.Setenv(key, scrubPlaceholder)
		}
	}
	for i, arg := range os.Args {
		if c.Username != "" && strings.Contains(arg, c.Username) {
			arg = strings.ReplaceAll(arg, c.Username, scrubPlaceholder)
			os.Args[i] = arg
		}
		if c.Password != "" && strings.Contains(arg, c.Password) {
			os.Args[i] = strings.ReplaceAll(arg, c.Password, scrubPlaceholder)
		}
		if c.TrustToken != "" && strings.Contains(arg, c.TrustToken) {
			os.Args[i] = strings.ReplaceAll(arg, c.TrustToken, scrubPlaceholder)
		}
	}
}

// MaskedUser is safe to log.
func (c *Config) MaskedUser() string {
	return utils.MaskString(c.Username)
}
