package protocol

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/config"
	"github.com/Raikerian/meetingmind-streamer/internal/infrastructure"
	"github.com/Raikerian/meetingmind-streamer/internal/transport"
)

// Module provides the protocol client.
var Module = fx.Module("protocol",
	fx.Provide(NewClientProvider),
)

// ClientParams are the dependencies of NewClientProvider.
type ClientParams struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Dialer  transport.Dialer
	Metrics *infrastructure.Metrics `optional:"true"`
}

// NewClientProvider builds a client for the configured stream URL.
func NewClientProvider(p ClientParams) (*Client, error) {
	url, err := p.Config.Server.StreamURL()
	if err != nil {
		return nil, err
	}
	p.Logger.Info("Creating protocol client", zap.String("url", url))

	return NewClient(p.Logger, p.Dialer, url, p.Metrics), nil
}
