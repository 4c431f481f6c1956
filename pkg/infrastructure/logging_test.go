package infrastructure_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Raikerian/meetingmind-streamer/pkg/infrastructure"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)

	return zap.New(core), logs
}

func TestFxLoggerAdapter_Levels(t *testing.T) {
	boom := errors.New("boom")

	tests := map[string]struct {
		event   fxevent.Event
		level   zapcore.Level
		message string
	}{
		"hook_executing": {
			event:   &fxevent.OnStartExecuting{CallerName: "app", FunctionName: "run"},
			level:   zapcore.DebugLevel,
			message: "OnStart hook executing",
		},
		"hook_failed": {
			event:   &fxevent.OnStopExecuted{CallerName: "app", FunctionName: "stop", Err: boom},
			level:   zapcore.ErrorLevel,
			message: "OnStop hook failed",
		},
		"provided": {
			event:   &fxevent.Provided{OutputTypeNames: []string{"*zap.Logger"}, ModuleName: "logger"},
			level:   zapcore.DebugLevel,
			message: "Provided",
		},
		"invoke_failed": {
			event:   &fxevent.Invoked{FunctionName: "register", Err: boom},
			level:   zapcore.ErrorLevel,
			message: "Invoked failed",
		},
		"started": {
			event:   &fxevent.Started{},
			level:   zapcore.InfoLevel,
			message: "Started",
		},
		"stopping": {
			event:   &fxevent.Stopping{Signal: os.Interrupt},
			level:   zapcore.InfoLevel,
			message: "Received signal",
		},
		"rolling_back": {
			event:   &fxevent.RollingBack{StartErr: boom},
			level:   zapcore.ErrorLevel,
			message: "Start failed, rolling back",
		},
		"unknown": {
			event:   &fxevent.Replaced{OutputTypeNames: []string{"x"}},
			level:   zapcore.DebugLevel,
			message: "Unhandled Fx event",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			logger, logs := observed()
			infrastructure.NewFxLoggerAdapter(logger).LogEvent(tt.event)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.message, entries[0].Message)
			assert.Equal(t, "fx", entries[0].LoggerName)
		})
	}
}

func TestFxLoggerAdapter_StructuredFields(t *testing.T) {
	logger, logs := observed()
	infrastructure.NewFxLoggerAdapter(logger).LogEvent(&fxevent.Provided{
		OutputTypeNames: []string{"*config.Config"},
		ConstructorName: "config.LoadConfig()",
		ModuleName:      "config",
	})

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "config", fields["module"])
	assert.Equal(t, "config.LoadConfig()", fields["constructor"])
	assert.Equal(t, []interface{}{"*config.Config"}, fields["outputs"])
}

func TestFxPrinter_Printf(t *testing.T) {
	logger, logs := observed()
	infrastructure.NewFxPrinter(logger).Printf("Test message: %s", "hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Test message: hello", logs.All()[0].Message)
}

func TestFxIntegration(t *testing.T) {
	logger, logs := observed()

	app := fxtest.New(t,
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
		fx.Supply(logger),
		fx.Invoke(func(*zap.Logger) {}),
	)
	app.RequireStart()
	app.RequireStop()

	assert.NotZero(t, logs.FilterMessage("Started").Len())
	assert.NotZero(t, logs.FilterMessage("Stopped").Len())
}
