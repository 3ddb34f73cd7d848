package infra

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

// latestTransactionPattern picks transaction ids out of 'yum history list'
// output; the last match is the most recent transaction.
var latestTransactionPattern = regexp.MustCompile(`(?m)^\s*(\d+)`)

// YumManager implements domain.PackageManager by shelling out to yum and rpm.
type YumManager struct {
	runner  domain.CommandRunner
	yumPath string
	rpmPath string
	logger  *zap.Logger
}

// NewYumManager creates a package manager.
func NewYumManager(runner domain.CommandRunner, yumPath, rpmPath string, logger *zap.Logger) *YumManager {
	return &YumManager{
		runner:  runner,
		yumPath: yumPath,
		rpmPath: rpmPath,
		logger:  logger,
	}
}

// Installed reports whether pkg is present on the system.
func (m *YumManager) Installed(ctx context.Context, pkg string) (bool, error) {
	_, code, err := m.runner.Run(ctx, []string{m.rpmPath, "-q", pkg})
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// EnsureInstalled installs pkg when absent or updates it when present.
//
// Distinguishing fresh install from update matters: undo-on-failure must only
// reverse this run's own side effects, never revert a pre-existing
// installation to an unknown prior state, so updates yield no undo handle.
func (m *YumManager) EnsureInstalled(ctx context.Context, pkg string) (bool, string, error) {
	m.logger.Info("installing & updating package", zap.String("package", pkg))

	installed, err := m.Installed(ctx, pkg)
	if err != nil {
		return false, "", err
	}

	if !installed {
		output, code, err := m.runner.Run(ctx, []string{m.yumPath, "install", pkg, "-y"})
		if err != nil {
			return false, "", err
		}
		if code != 0 {
			return false, "", domain.NewCondition(
				domain.KindInstall,
				fmt.Sprintf("Failed to install %s RPM.", pkg),
				fmt.Sprintf("Installing %s with yum exited with code '%d' and output:\n%s",
					pkg, code, strings.TrimRight(output, "\n")),
			)
		}
		txID, err := m.LastTransactionID(ctx, pkg)
		if err != nil {
			return true, "", err
		}
		return true, txID, nil
	}

	output, code, err := m.runner.Run(ctx, []string{m.yumPath, "update", pkg, "-y"})
	if err != nil {
		return false, "", err
	}
	if code != 0 {
		return false, "", domain.NewCondition(
			domain.KindUpdate,
			fmt.Sprintf("Failed to update %s RPM.", pkg),
			fmt.Sprintf("Updating %s with yum exited with code '%d' and output:\n%s",
				pkg, code, strings.TrimRight(output, "\n")),
		)
	}
	return false, "", nil
}

// LastTransactionID returns the most recent yum transaction id for pkg.
// Best-effort: a failing lookup is logged and yields an empty id, since
// 'yum history list' exits non-zero when no transaction exists. The caller
// then simply has no undo handle for cleanup.
func (m *YumManager) LastTransactionID(ctx context.Context, pkg string) (string, error) {
	output, code, err := m.runner.Run(ctx, []string{m.yumPath, "history", "list", pkg})
	if err != nil {
		return "", err
	}
	if code != 0 {
		m.logger.Warn("listing yum transaction history failed, cleanup may not remove the package",
			zap.String("package", pkg),
			zap.Int("exit_status", code),
			zap.String("output", output))
		return "", nil
	}

	matches := latestTransactionPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return "", nil
	}
	return matches[len(matches)-1][1], nil
}

// InstallPackage installs pkg, returning combined output and exit code.
func (m *YumManager) InstallPackage(ctx context.Context, pkg string) (string, int, error) {
	return m.runner.Run(ctx, []string{m.yumPath, "install", "-y", pkg})
}

// UndoTransaction rolls back a recorded package transaction.
func (m *YumManager) UndoTransaction(ctx context.Context, txID string) error {
	output, code, err := m.runner.Run(ctx, []string{m.yumPath, "history", "undo", "-y", txID})
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("undo of yum transaction %s failed with exit status '%d' and output:\n%s",
			txID, code, output)
	}
	return nil
}

// ConfigModified runs 'rpm -Va pkg' and reports whether the file at path has
// an md5 digest mismatch against the package default. rpm -Va exits non-zero
// whenever any verification difference exists, so a zero exit means no
// modifications at all.
func (m *YumManager) ConfigModified(ctx context.Context, pkg, path string) (bool, error) {
	output, code, err := m.runner.Run(ctx, []string{m.rpmPath, "-Va", pkg})
	if err != nil {
		return false, err
	}
	if code == 0 {
		return false, nil
	}

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		status := strings.NewReplacer(".", "", "?", "").Replace(fields[0])
		if fields[len(fields)-1] == path && strings.Contains(status, "5") {
			return true, nil
		}
	}
	return false, nil
}

// Ensure YumManager implements domain.PackageManager.
var _ domain.PackageManager = (*YumManager)(nil)
