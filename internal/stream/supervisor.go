package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"overlay-streamer/internal/platform/metrics"
)

// Supervisor owns the table of running transcoders, at most one per key.
// A single mutex covers every lookup-then-mutate sequence, including the
// directory preparation and spawn inside Start, so concurrent start/stop
// calls cannot launch duplicates or lose track of a child.
type Supervisor struct {
	mu    sync.Mutex
	procs map[Key]*Process

	artifacts *Artifacts
	command   CommandFunc
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCommand replaces the transcoder command builder.
func WithCommand(fn CommandFunc) Option {
	return func(s *Supervisor) { s.command = fn }
}

// WithMetrics records lifecycle counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// NewSupervisor returns a Supervisor writing output through artifacts.
// By default it runs "ffmpeg" from PATH.
func NewSupervisor(artifacts *Artifacts, log *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		procs:     make(map[Key]*Process),
		artifacts: artifacts,
		command:   FFmpegCommand("ffmpeg"),
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a transcoder for key reading from source. A live process for
// key makes this a no-op returning StatusAlreadyRunning. Directory or spawn
// failures are returned wrapped in ErrLaunch and leave the table unchanged.
func (s *Supervisor) Start(key Key, source string) (StartStatus, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrSourceRequired
	}
	if err := key.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.procs[key]; ok {
		if p.Alive() {
			return StatusAlreadyRunning, nil
		}
		s.log.Info("replacing exited transcoder",
			slog.String("stream_key", string(key)),
			slog.Int("pid", p.PID()),
			slog.Any("exit", p.ExitErr()))
		delete(s.procs, key)
	}

	dir, err := s.artifacts.Prepare(key)
	if err != nil {
		s.launchFailed(key, err)
		return "", fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	p, err := startProcess(key, source, s.command(source, dir), s.log)
	if err != nil {
		s.launchFailed(key, err)
		return "", fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	s.procs[key] = p

	s.log.Info("transcoder started",
		slog.String("stream_key", string(key)),
		slog.Int("pid", p.PID()),
		slog.String("source", p.source),
		slog.String("dir", dir))
	if s.metrics != nil {
		s.metrics.IncStreamsStarted()
	}
	return StatusStarted, nil
}

func (s *Supervisor) launchFailed(key Key, err error) {
	s.log.Error("transcoder launch failed",
		slog.String("stream_key", string(key)),
		slog.String("error", err.Error()))
	if s.metrics != nil {
		s.metrics.IncLaunchFailures()
	}
}

// Stop sends SIGTERM to the transcoder for key and forgets it without waiting
// for it to exit. Signal errors are swallowed: the usual cause is a child that
// already exited.
func (s *Supervisor) Stop(key Key) StopStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[key]
	if !ok {
		return StatusNotRunning
	}
	s.terminateLocked(p)
	delete(s.procs, key)

	s.log.Info("transcoder stopped", slog.String("stream_key", string(key)), slog.Int("pid", p.PID()))
	if s.metrics != nil {
		s.metrics.IncStreamsStopped()
	}
	return StatusStopped
}

func (s *Supervisor) terminateLocked(p *Process) {
	if err := p.Terminate(); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, os.ErrProcessDone) {
			level = slog.LevelDebug
		}
		s.log.Log(context.Background(), level, "terminate signal not delivered",
			slog.String("stream_key", string(p.key)),
			slog.String("error", err.Error()))
	}
}

// Lookup returns a snapshot of the transcoder tracked for key.
func (s *Supervisor) Lookup(key Key) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[key]
	if !ok {
		return Info{}, false
	}
	return p.Info(), true
}

// List returns snapshots of all tracked transcoders ordered by key.
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Count returns the number of tracked transcoders, live or not yet reaped.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Reap drops entries whose process exited without a Stop call and returns
// their keys.
func (s *Supervisor) Reap() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []Key
	for key, p := range s.procs {
		if p.Alive() {
			continue
		}
		delete(s.procs, key)
		reaped = append(reaped, key)
		s.log.Info("reaped exited transcoder",
			slog.String("stream_key", string(key)),
			slog.Int("pid", p.PID()),
			slog.Any("exit", p.ExitErr()))
	}
	if s.metrics != nil && len(reaped) > 0 {
		s.metrics.AddReaped(len(reaped))
	}
	sort.Slice(reaped, func(i, j int) bool { return reaped[i] < reaped[j] })
	return reaped
}

// RunReaper calls Reap every interval until ctx is done. A non-positive
// interval disables the loop; the call then just waits for ctx.
func (s *Supervisor) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reap()
		}
	}
}

// StopAll terminates every tracked transcoder and empties the table.
// It returns how many processes were signalled.
func (s *Supervisor) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.procs)
	for key, p := range s.procs {
		s.terminateLocked(p)
		delete(s.procs, key)
	}
	if n > 0 {
		s.log.Info("terminated all transcoders", slog.Int("count", n))
	}
	return n
}
