// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter routes Fx container events and prints to a zap.Logger with structured fields.
// Wiring noise goes to debug, lifecycle milestones to info, failures to error.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter returns an fxevent.Logger backed by logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// NewFxPrinter returns an fx.Printer backed by logger.
func NewFxPrinter(logger *zap.Logger) fx.Printer {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// LogEvent implements fxevent.Logger.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		a.logger.Debug("OnStart hook executing", hookFields(e.CallerName, e.FunctionName)...)
	case *fxevent.OnStartExecuted:
		a.hookResult("OnStart hook", e.CallerName, e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuting:
		a.logger.Debug("OnStop hook executing", hookFields(e.CallerName, e.FunctionName)...)
	case *fxevent.OnStopExecuted:
		a.hookResult("OnStop hook", e.CallerName, e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.Supplied:
		a.withError("Supplied", e.Err, zap.String("type", e.TypeName), moduleField(e.ModuleName))
	case *fxevent.Provided:
		a.withError("Provided", e.Err,
			zap.Strings("outputs", e.OutputTypeNames),
			zap.String("constructor", e.ConstructorName),
			moduleField(e.ModuleName))
	case *fxevent.Decorated:
		a.withError("Decorated", e.Err, zap.Strings("outputs", e.OutputTypeNames), moduleField(e.ModuleName))
	case *fxevent.Invoking:
		a.logger.Debug("Invoking", zap.String("function", e.FunctionName), moduleField(e.ModuleName))
	case *fxevent.Invoked:
		a.withError("Invoked", e.Err, zap.String("function", e.FunctionName), moduleField(e.ModuleName))
	case *fxevent.Stopping:
		a.logger.Info("Received signal", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		a.milestone("Stopped", e.Err)
	case *fxevent.RollingBack:
		a.logger.Error("Start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		a.milestone("Rolled back", e.Err)
	case *fxevent.Started:
		a.milestone("Started", e.Err)
	case *fxevent.LoggerInitialized:
		a.withError("Logger initialized", e.Err, zap.String("constructor", e.ConstructorName))
	default:
		a.logger.Debug("Unhandled Fx event", zap.String("event", fmt.Sprintf("%T", event)))
	}
}

// Printf implements fx.Printer.
func (a *FxLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Sugar().Infof(format, args...)
}

func (a *FxLoggerAdapter) hookResult(action, caller, function, runtime string, err error) {
	fields := hookFields(caller, function)
	if err != nil {
		a.logger.Error(action+" failed", append(fields, zap.Error(err))...)

		return
	}
	a.logger.Debug(action+" executed", append(fields, zap.String("runtime", runtime))...)
}

func (a *FxLoggerAdapter) withError(msg string, err error, fields ...zap.Field) {
	if err != nil {
		a.logger.Error(msg+" failed", append(fields, zap.Error(err))...)

		return
	}
	a.logger.Debug(msg, fields...)
}

func (a *FxLoggerAdapter) milestone(msg string, err error) {
	if err != nil {
		a.logger.Error(msg+" with error", zap.Error(err))

		return
	}
	a.logger.Info(msg)
}

func hookFields(caller, function string) []zap.Field {
	return []zap.Field{zap.String("caller", caller), zap.String("callee", function)}
}

func moduleField(name string) zap.Field {
	if name == "" {
		return zap.Skip()
	}

	return zap.String("module", name)
}
