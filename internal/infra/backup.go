package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

const backupSuffix = ".backup"

// BackupManager handles rename-based preservation of pre-existing host files
// and archival of prior report files. Preserve is an involution: invoking it
// before writing a required file backs the original up, invoking it again
// during cleanup restores it.
type BackupManager struct {
	logger *zap.Logger
}

// NewBackupManager creates a backup manager.
func NewBackupManager(logger *zap.Logger) *BackupManager {
	return &BackupManager{logger: logger}
}

// Preserve restores path from its backup sibling when one exists, otherwise
// backs path up, otherwise does nothing. At most one of {path, path.backup}
// transitions per call; restore and backup are mutually exclusive.
func (b *BackupManager) Preserve(path string) (domain.PreserveAction, error) {
	backupPath := path + backupSuffix

	if _, err := os.Stat(backupPath); err == nil {
		b.logger.Info("restoring backed up file", zap.String("path", path))
		if err := os.Rename(backupPath, path); err != nil {
			return domain.PreserveNone, fmt.Errorf("failed to restore '%s': %w", path, err)
		}
		return domain.PreserveRestored, nil
	}

	if _, err := os.Stat(path); err == nil {
		b.logger.Info("file already present on system, backing up",
			zap.String("path", path),
			zap.String("backup", backupPath))
		if err := os.Rename(path, backupPath); err != nil {
			return domain.PreserveNone, fmt.Errorf("failed to back up '%s': %w", path, err)
		}
		return domain.PreserveBackedUp, nil
	}

	return domain.PreserveNone, nil
}

// Archive moves path into archiveDir renamed with a last-modified timestamp
// suffix (name-YYYYMMDDTHHMMSSZ.ext), preserving report history across runs.
func (b *BackupManager) Archive(path, archiveDir string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", path, err)
	}

	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	stamp := info.ModTime().UTC().Format("20060102T150405Z")
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	dest := filepath.Join(archiveDir, fmt.Sprintf("%s-%s%s", name, stamp, ext))

	b.logger.Info("archiving previous report", zap.String("from", path), zap.String("to", dest))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("failed to archive '%s': %w", path, err)
	}
	return nil
}

// Ensure BackupManager implements domain.FilePreserver.
var _ domain.FilePreserver = (*BackupManager)(nil)
