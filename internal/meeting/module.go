package meeting

import (
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/config"
)

// Module provides the REST collaborator.
var Module = fx.Module("meeting",
	fx.Provide(NewAPIProvider),
)

// NewAPIProvider builds the client from the server section of the config.
func NewAPIProvider(cfg *config.Config, logger *zap.Logger) API {
	return NewClient(logger, &http.Client{Timeout: cfg.Server.RequestTimeout}, cfg.Server.APIURL)
}
