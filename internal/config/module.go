// Package config loads the streamer configuration from YAML, .env and the environment.
package config

import (
	"go.uber.org/fx"
)

// Module provides the validated *Config. Callers supply the file location as a Path.
var Module = fx.Module("config",
	fx.Provide(LoadConfig),
)
