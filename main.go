// Package main provides the entry point for the meeting streamer.
package main

import (
	"flag"
	"strings"

	"go.uber.org/fx"

	"github.com/Raikerian/meetingmind-streamer/internal/app"
	"github.com/Raikerian/meetingmind-streamer/internal/capture"
	"github.com/Raikerian/meetingmind-streamer/internal/config"
	"github.com/Raikerian/meetingmind-streamer/internal/infrastructure"
	"github.com/Raikerian/meetingmind-streamer/internal/meeting"
	"github.com/Raikerian/meetingmind-streamer/internal/protocol"
	"github.com/Raikerian/meetingmind-streamer/internal/session"
	"github.com/Raikerian/meetingmind-streamer/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	file := flag.String("file", "", "stream this audio file (wav, flac, mp3) instead of the microphone")
	title := flag.String("title", "", "meeting title (defaults to session.title)")
	participants := flag.String("participants", "", "comma-separated participant names")
	confidential := flag.Bool("confidential", false, "disable remote processing for this meeting")
	flag.Parse()

	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,
		infrastructure.MetricsModule,

		// Transport and collaborators
		transport.Module,
		protocol.Module,
		meeting.Module,
		capture.Module,

		// Application modules
		session.Module,

		fx.Supply(config.Path(*configPath)),
		fx.Provide(func(cfg *config.Config) app.Options {
			return resolveOptions(cfg, *file, *title, *participants, *confidential)
		}),

		// Configure Fx to use our Zap logger for its own internal logging
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
	)

	// Run blocks until SIGINT/SIGTERM or until the session ends.
	application.Run()
}

// resolveOptions fills flag values that were left empty from the session config.
func resolveOptions(cfg *config.Config, file, title, participants string, confidential bool) app.Options {
	opts := app.Options{
		File:         file,
		Title:        title,
		Participants: cfg.Session.Participants,
		Confidential: confidential || cfg.Session.Confidential,
	}
	if opts.Title == "" {
		opts.Title = cfg.Session.Title
	}
	if participants != "" {
		opts.Participants = nil
		for _, p := range strings.Split(participants, ",") {
			if p = strings.TrimSpace(p); p != "" {
				opts.Participants = append(opts.Participants, p)
			}
		}
	}

	return opts
}
