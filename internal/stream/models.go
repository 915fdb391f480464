package stream

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Key names one logical stream. It namespaces both the process table and the
// on-disk artifact directory, so it must be a single safe path segment.
type Key string

// DefaultKey is used when a request does not name a stream.
const DefaultKey Key = "default"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Validate reports whether k is usable as a directory name under the HLS root.
func (k Key) Validate() error {
	if !keyPattern.MatchString(string(k)) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, string(k))
	}
	return nil
}

// StartStatus is the outcome of Supervisor.Start.
type StartStatus string

const (
	StatusStarted        StartStatus = "started"
	StatusAlreadyRunning StartStatus = "already_running"
)

// StopStatus is the outcome of Supervisor.Stop.
type StopStatus string

const (
	StatusStopped    StopStatus = "stopped"
	StatusNotRunning StopStatus = "not_running"
)

var (
	// ErrInvalidKey is returned for stream keys that are not a safe path segment.
	ErrInvalidKey = errors.New("invalid stream key")

	// ErrSourceRequired is returned when Start is called without a source URL.
	ErrSourceRequired = errors.New("rtsp_url required")

	// ErrLaunch wraps every failure to prepare or spawn a transcoder.
	ErrLaunch = errors.New("transcoder launch failed")

	// ErrStreamNotFound is returned when a stream has no artifact directory.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrArtifactNotFound is returned when a requested artifact cannot be
	// resolved inside the stream directory.
	ErrArtifactNotFound = errors.New("file not found")
)

// Info is a point-in-time view of a tracked transcoder.
type Info struct {
	Key       Key       `json:"stream_key"`
	PID       int       `json:"pid"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	Alive     bool      `json:"running"`
	ExitError string    `json:"exit_error,omitempty"`
	LogTail   []string  `json:"log_tail,omitempty"`
}
