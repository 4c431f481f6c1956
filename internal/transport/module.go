package transport

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/config"
)

// Module provides the streaming transport.
var Module = fx.Module("transport",
	fx.Provide(NewDialerProvider),
)

// NewDialerProvider builds the websocket dialer from the server settings.
func NewDialerProvider(cfg *config.Config, logger *zap.Logger) Dialer {
	return NewWebSocketDialer(logger, cfg.Server.WriteTimeout)
}
