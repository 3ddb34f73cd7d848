package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

// InsightsClient implements domain.InventoryClient by invoking the host's
// inventory client binary to re-register the system after a conversion.
type InsightsClient struct {
	runner     domain.CommandRunner
	clientPath string
	logger     *zap.Logger
}

// NewInsightsClient creates an inventory client.
func NewInsightsClient(runner domain.CommandRunner, clientPath string, logger *zap.Logger) *InsightsClient {
	return &InsightsClient{
		runner:     runner,
		clientPath: clientPath,
		logger:     logger,
	}
}

// Refresh re-registers the host.
func (c *InsightsClient) Refresh(ctx context.Context) (string, int, error) {
	c.logger.Info("updating system status in inventory")
	return c.runner.Run(ctx, []string{c.clientPath})
}

// Ensure InsightsClient implements domain.InventoryClient.
var _ domain.InventoryClient = (*InsightsClient)(nil)
