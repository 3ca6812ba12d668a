package auth

import (
	"os"
	"strings"

	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
)

// loadTrustToken reads a previously persisted trust token. A missing or
// unreadable file just means MFA will run again.
func loadTrustToken(path string) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// saveTrustToken persists the token for future sign-ins. The file is
// credential material, mode 0600.
func saveTrustToken(path, token string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return apperr.Wrap(apperr.KindAuth, "cannot write trust token", err)
	}
	return nil
}
