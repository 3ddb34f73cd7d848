package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

// SystemdManager implements domain.ServiceManager via systemctl.
type SystemdManager struct {
	runner        domain.CommandRunner
	systemctlPath string
	logger        *zap.Logger
}

// NewSystemdManager creates a service manager.
func NewSystemdManager(runner domain.CommandRunner, systemctlPath string, logger *zap.Logger) *SystemdManager {
	return &SystemdManager{
		runner:        runner,
		systemctlPath: systemctlPath,
		logger:        logger,
	}
}

// Enable enables a unit to start at boot.
func (s *SystemdManager) Enable(ctx context.Context, unit string) (string, int, error) {
	s.logger.Info("enabling service", zap.String("unit", unit))
	return s.runner.Run(ctx, []string{s.systemctlPath, "enable", unit})
}

// Start starts a unit now.
func (s *SystemdManager) Start(ctx context.Context, unit string) (string, int, error) {
	s.logger.Info("starting service", zap.String("unit", unit))
	return s.runner.Run(ctx, []string{s.systemctlPath, "start", unit})
}

// Ensure SystemdManager implements domain.ServiceManager.
var _ domain.ServiceManager = (*SystemdManager)(nil)
