package stream

import (
	"bufio"
	"io"
	"log/slog"
	"net/url"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// tailLines bounds how much transcoder stderr is retained per process.
const tailLines = 10

// Process is one running transcoder. It is owned by the Supervisor.
type Process struct {
	key     Key
	source  string
	cmd     *exec.Cmd
	started time.Time

	done    chan struct{}
	exitErr error // valid once done is closed

	tailMu sync.Mutex
	tail   []string
}

// startProcess starts cmd and returns once the child is running. Output is
// drained in the background so the child never blocks on a full pipe.
func startProcess(key Key, source string, cmd *exec.Cmd, log *slog.Logger) (*Process, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		key:     key,
		source:  redactSource(source),
		cmd:     cmd,
		started: time.Now().UTC(),
		done:    make(chan struct{}),
	}
	plog := log.With(slog.String("stream_key", string(key)), slog.Int("pid", cmd.Process.Pid))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.drain(stdout, "stdout", plog)
	}()
	go func() {
		defer wg.Done()
		p.drain(stderr, "stderr", plog)
	}()
	go func() {
		// Wait must not run before the pipes are fully read.
		wg.Wait()
		p.exitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

func (p *Process) drain(r io.Reader, source string, log *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if source == "stderr" {
			p.remember(line)
		}
		log.Debug("transcoder output", slog.String("source", source), slog.String("line", line))
	}
	if err := sc.Err(); err != nil {
		log.Warn("transcoder output read failed", slog.String("source", source), slog.String("error", err.Error()))
	}
}

func (p *Process) remember(line string) {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	p.tail = append(p.tail, line)
	if len(p.tail) > tailLines {
		p.tail = p.tail[len(p.tail)-tailLines:]
	}
}

// PID returns the OS process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited and been waited for.
func (p *Process) Done() <-chan struct{} { return p.done }

// Alive polls for exit without blocking.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the Wait error once the process has exited, nil before that
// or after a clean exit.
func (p *Process) ExitErr() error {
	if p.Alive() {
		return nil
	}
	return p.exitErr
}

// Terminate asks the process to exit with SIGTERM and returns immediately.
// A process that already exited reports os.ErrProcessDone.
func (p *Process) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	info := Info{
		Key:       p.key,
		PID:       p.PID(),
		Source:    p.source,
		StartedAt: p.started,
		Alive:     p.Alive(),
	}
	if err := p.ExitErr(); err != nil {
		info.ExitError = err.Error()
	}
	p.tailMu.Lock()
	info.LogTail = append([]string(nil), p.tail...)
	p.tailMu.Unlock()
	return info
}

// redactSource hides credentials embedded in the source URL.
func redactSource(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return "[unparseable]"
	}
	return u.Redacted()
}
