package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_phoneWarning_ListsValidIDs(t *testing.T) {
	phones := []TrustedPhone{
		{ID: 2, NumberWithDialCode: "+49-123-456"},
		{ID: 3, NumberWithDialCode: "+49-789-123"},
	}

	want := "Selected Phone Number ID does not exist.\nAvailable numbers:\n- 2: +49-123-456\n- 3: +49-789-123"
	assert.Equal(t, want, phoneWarning(phones))
}

func Test_TrustToken_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".trust-token")

	require.NoError(t, saveTrustToken(path, "opaque-token"))
	assert.Equal(t, "opaque-token", loadTrustToken(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "trust token is credential material")
}

func Test_TrustToken_MissingFileMeansEmpty(t *testing.T) {
	assert.Empty(t, loadTrustToken(filepath.Join(t.TempDir(), "nope")))
	assert.Empty(t, loadTrustToken(""))
}

func Test_NewSession_RequiresCredentials(t *testing.T) {
	_, err := NewSession(Config{Username: "user@example.com"}, nil)
	assert.Error(t, err)

	s, err := NewSession(Config{Username: "user@example.com", Password: "hunter2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, s.State())
}
