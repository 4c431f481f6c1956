package session

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/config"
	"github.com/Raikerian/meetingmind-streamer/internal/protocol"
)

const defaultHistorySize = 20

// Module provides the session controller.
var Module = fx.Module("session",
	fx.Provide(
		NewHistoryProvider,
		NewStreamClient,
		NewController,
	),
	fx.Invoke(registerController),
)

// NewHistoryProvider creates the History with config-derived size.
func NewHistoryProvider(cfg *config.Config, logger *zap.Logger) (*History, error) {
	size := cfg.Session.HistorySize
	if size <= 0 {
		logger.Warn("Session history size is not configured or is invalid, defaulting to 20",
			zap.Int("configuredSize", size))
		size = defaultHistorySize
	}
	logger.Info("Creating session history", zap.Int("size", size))

	return NewHistory(size)
}

// NewStreamClient exposes the protocol client through the narrow interface the controller uses.
func NewStreamClient(c *protocol.Client) StreamClient {
	return c
}

// registerController attaches the log sink and ends any running session on shutdown.
func registerController(lc fx.Lifecycle, c *Controller, logger *zap.Logger) {
	c.Subscribe(NewLogSink(logger))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			c.Shutdown(ctx)

			return nil
		},
	})
}
