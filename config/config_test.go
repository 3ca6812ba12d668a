package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Config_ResolveEnvFillsCredentials(t *testing.T) {
	t.Setenv(EnvUsername, "user@example.com")
	t.Setenv(EnvPassword, "hunter2")
	t.Setenv(EnvTrustToken, "opaque")

	cfg := Defaults()
	cfg.ResolveEnv()

	assert.Equal(t, "user@example.com", cfg.Username)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, "opaque", cfg.TrustToken)
	require.NoError(t, cfg.Validate())
}

func Test_Config_FlagsWinOverEnv(t *testing.T) {
	t.Setenv(EnvUsername, "env@example.com")

	cfg := Defaults()
	cfg.Username = "flag@example.com"
	cfg.ResolveEnv()

	assert.Equal(t, "flag@example.com", cfg.Username)
}

func Test_Config_ScrubEnvRemovesCredentials(t *testing.T) {
	t.Setenv(EnvPassword, "super-secret-pwd")
	t.Setenv(EnvTrustToken, "super-secret-token")

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"icloud-backup", "--password", "super-secret-pwd", "sync"}

	cfg := Defaults()
	cfg.ResolveEnv()
	cfg.ScrubEnv()

	for _, env := range os.Environ() {
		assert.NotContains(t, env, "super-secret-pwd")
		assert.NotContains(t, env, "super-secret-token")
	}
	assert.NotContains(t, strings.Join(os.Args, " "), "super-secret-pwd")
}

func Test_Config_Defaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 80, cfg.Port)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 16, cfg.DownloadThreads)
	assert.Error(t, cfg.Validate(), "credentials are required")
}
