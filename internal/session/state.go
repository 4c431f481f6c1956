// Package session owns the lifecycle of one recording or upload session end to end.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned by Start while another session is connecting, active or stopping.
	ErrSessionActive = errors.New("session: another session is in progress")
	// ErrStartAborted is returned when Stop or the caller's context cancels a connecting session.
	ErrStartAborted = errors.New("session: start aborted")
)

// State of the controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// FailureKind classifies session failures.
type FailureKind int

const (
	FailurePermissionDenied FailureKind = iota
	FailureAudioSource
	FailureDecode
	FailureSessionCreate
	FailureTransport
	FailureStopAPI
)

func (k FailureKind) String() string {
	switch k {
	case FailurePermissionDenied:
		return "permission_denied"
	case FailureAudioSource:
		return "audio_source"
	case FailureDecode:
		return "decode"
	case FailureSessionCreate:
		return "session_create"
	case FailureTransport:
		return "transport"
	case FailureStopAPI:
		return "stop_api"
	default:
		return "unknown"
	}
}

// Failure is a classified session error.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("session %s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err is a Failure of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var f *Failure

	return errors.As(err, &f) && f.Kind == kind
}

// Mode is how audio reaches the session.
type Mode int

const (
	ModeLive Mode = iota
	ModeFile
)

func (m Mode) String() string {
	if m == ModeFile {
		return "file"
	}

	return "live"
}

// EndReason records why a session left the active state.
type EndReason int

const (
	// EndStopped is a client stop, including the automatic stop after an upload.
	EndStopped EndReason = iota
	// EndServerStopped is a server-initiated graceful end.
	EndServerStopped
	// EndPeerClosed is a close from the server without a stopped message.
	EndPeerClosed
	// EndFailed is an abnormal transport termination.
	EndFailed
)

func (r EndReason) String() string {
	switch r {
	case EndStopped:
		return "stopped"
	case EndServerStopped:
		return "server_stopped"
	case EndPeerClosed:
		return "peer_closed"
	case EndFailed:
		return "failed"
	default:
		return "unknown"
	}
}
