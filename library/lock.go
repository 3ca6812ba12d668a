package library

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/StorX2-0/iCloud-Backup/pkg/apperr"
	"github.com/StorX2-0/iCloud-Backup/pkg/logger"
)

// AcquireLock asserts exclusive mutation of the data directory by creating
// .library.lock with this process's PID. With force set, a stale lock is
// replaced; otherwise a held lock is a fatal conflict naming the owner.
func (l *Library) AcquireLock(ctx context.Context, force bool) error {
	path := filepath.Join(l.DataDir, LockFileName)
	pid := strconv.Itoa(os.Getpid())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		_, werr := f.WriteString(pid)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			_ = os.Remove(path)
			return apperr.Wrap(apperr.KindLibrary, "cannot write library lock", werr)
		}
		return nil
	}
	if !os.IsExist(err) {
		return apperr.Wrap(apperr.KindLibrary, "cannot create library lock", err)
	}

	owner, rerr := os.ReadFile(path)
	ownerPID := strings.TrimSpace(string(owner))
	if rerr != nil {
		ownerPID = "unknown"
	}
	if !force {
		return apperr.New(apperr.KindLibrary, "library is locked by another process").
			With("pid", ownerPID)
	}

	logger.Warn(ctx, "forcing library lock takeover", logger.String("previous_pid", ownerPID))
	if err := os.WriteFile(path, []byte(pid), 0644); err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot take over library lock", err)
	}
	return nil
}

// ReleaseLock deletes the lock file, but only if its content still matches
// this process's PID.
func (l *Library) ReleaseLock(ctx context.Context) error {
	path := filepath.Join(l.DataDir, LockFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.KindLibrary, "cannot read library lock", err)
	}
	if strings.TrimSpace(string(content)) != strconv.Itoa(os.Getpid()) {
		logger.Warn(ctx, "library lock owned by another process, leaving it",
			logger.String("pid", strings.TrimSpace(string(content))))
		return nil
	}
	if err := os.Remove(path); err != nil {
		return apperr.Wrap(apperr.KindLibrary, "cannot remove library lock", err)
	}
	return nil
}
