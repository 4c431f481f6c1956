package capture

import "go.uber.org/fx"

// Module provides the microphone and the file decoder.
var Module = fx.Module("capture",
	fx.Provide(
		NewPermissionChecker,
		NewPortAudioMicrophone,
		NewDecoder,
	),
)
