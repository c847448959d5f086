package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/logging"
)

var (
	// ErrSpawn wraps failures to create the transcoder process.
	ErrSpawn = errors.New("transcoder process creation failed")

	// ErrStopped is delivered to a pending start callback when the process
	// was stopped before it produced any output.
	ErrStopped = errors.New("transcoder stopped before producing output")
)

// Owner tears down the session a supervisor belongs to.
type Owner interface {
	StopStream(sessionID string)
}

// Controller force-stops a streaming session at the protocol layer.
type Controller interface {
	ForceStopStreamingSession(sessionID string)
}

// Options configures a Supervisor.
type Options struct {
	Executable string
	Args       string // whitespace tokenized, no shell quoting
	SessionID  string
	Logger     *slog.Logger
	Debug      bool

	Owner      Owner
	Controller Controller

	// OnStart is called exactly once: with nil on the first diagnostic
	// line, or with an error if the process fails or exits first.
	OnStart func(error)

	// OnProgress receives every decoded progress report.
	OnProgress func(*ffmpeg.Progress)
}

// Supervisor owns one transcoder process.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	stopping  bool
	streaming bool
	onStart   func(error)
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startedAt time.Time
	exit      ExitStatus

	firstOutput chan struct{}
	firstOnce   sync.Once
	done        chan struct{}
}

// New creates a supervisor in StateSpawning. Call Start to run the process.
func New(opts Options) *Supervisor {
	if opts.Executable == "" {
		opts.Executable = ffmpeg.DefaultExecutable
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("process")
	}
	if opts.SessionID != "" {
		logger = logger.With("session_id", opts.SessionID)
	}

	return &Supervisor{
		opts:        opts,
		logger:      logger,
		state:       StateSpawning,
		onStart:     opts.OnStart,
		firstOutput: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start spawns the process. Spawn failures are already reported through
// OnStart and the Owner when Start returns them. Starting a supervisor that
// was stopped beforehand moves it straight to StateExited.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state != StateSpawning {
		s.mu.Unlock()
		return nil
	}
	if s.stopping {
		s.state = StateExited
		s.exit = ExitStatus{Code: -1}
		cb := s.takeStartLocked()
		s.mu.Unlock()

		s.firstOnce.Do(func() { close(s.firstOutput) })
		if cb != nil {
			cb(ErrStopped)
		}
		close(s.done)
		return nil
	}

	s.logger.Debug("Stream command", "command", s.opts.Executable+" "+s.opts.Args)

	cmd := exec.Command(s.opts.Executable, ffmpeg.Tokenize(s.opts.Args)...)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, stdout, stderr, err := pipes(cmd)
	if err == nil {
		s.startedAt = time.Now()
		err = cmd.Start()
	}
	if err != nil {
		s.state = StateExited
		s.exit = ExitStatus{Code: -1, Err: err}
		cb := s.takeStartLocked()
		s.mu.Unlock()
		return s.spawnFailed(cb, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.state = StateRunning
	s.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readProgress(stdout)
	}()
	go func() {
		defer readers.Done()
		s.readDiagnostics(stderr)
	}()
	go s.wait(&readers)

	return nil
}

func pipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	return stdin, stdout, stderr, nil
}

func (s *Supervisor) spawnFailed(cb func(error), cause error) error {
	s.logger.Error("Transcoder process creation failed", "executable", s.opts.Executable, "error", cause)

	spawnErr := fmt.Errorf("%w: %w", ErrSpawn, cause)
	s.firstOnce.Do(func() { close(s.firstOutput) })
	if cb != nil {
		cb(spawnErr)
	}
	close(s.done)

	if s.opts.Owner != nil {
		s.opts.Owner.StopStream(s.opts.SessionID)
	}
	return spawnErr
}

// Stop kills the process group with SIGKILL. It is safe to call at any
// time and any number of times.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopping = true
	cmd := s.cmd
	running := s.state == StateRunning
	s.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return
	}

	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Debug("Failed to kill transcoder", "pid", cmd.Process.Pid, "error", err)
	}
}

// Stdin returns the process input pipe, or nil before the process runs.
func (s *Supervisor) Stdin() io.WriteCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdin
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Streaming reports whether a progress report with frames has been seen.
func (s *Supervisor) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// ExitStatus returns the exit status. Only meaningful after Done is closed.
func (s *Supervisor) ExitStatus() ExitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit
}

// FirstOutput is closed on the first diagnostic line or on exit.
func (s *Supervisor) FirstOutput() <-chan struct{} {
	return s.firstOutput
}

// Done is closed after the process exited and exit handling completed.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) takeStartLocked() func(error) {
	cb := s.onStart
	s.onStart = nil
	return cb
}

func (s *Supervisor) signalFirstOutput() {
	s.firstOnce.Do(func() { close(s.firstOutput) })

	s.mu.Lock()
	cb := s.takeStartLocked()
	s.mu.Unlock()

	if cb != nil {
		cb(nil)
	}
}

func (s *Supervisor) readProgress(stdout io.Reader) {
	err := ffmpeg.ScanProgress(stdout, func(p *ffmpeg.Progress) {
		if s.opts.OnProgress != nil {
			s.opts.OnProgress(p)
		}
		if p.Frame <= 0 {
			return
		}

		s.mu.Lock()
		first := !s.streaming
		s.streaming = true
		startedAt := s.startedAt
		s.mu.Unlock()

		if first {
			elapsed := time.Since(startedAt)
			s.logger.Log(context.Background(), LatencyLevel(elapsed),
				fmt.Sprintf("Getting the first frames took %.3f seconds", elapsed.Seconds()))
		}
	})
	if err != nil {
		s.logger.Debug("Progress stream unreadable, discarding", "error", err)
		_, _ = io.Copy(io.Discard, stdout)
	}
}

func (s *Supervisor) readDiagnostics(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := ffmpeg.ParseLogLine(scanner.Text())
		s.signalFirstOutput()

		switch {
		case line.Severe():
			s.logger.Error(line.String(), "ffmpeg_level", line.Level)
		case s.opts.Debug:
			s.logger.Debug(line.String(), "ffmpeg_level", line.Level)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("Diagnostic stream unreadable, discarding", "error", err)
		_, _ = io.Copy(io.Discard, stderr)
	}
}

func (s *Supervisor) wait(readers *sync.WaitGroup) {
	readers.Wait()
	waitErr := s.cmd.Wait()
	status := exitStatus(s.cmd.ProcessState, waitErr)

	s.mu.Lock()
	s.state = StateExited
	s.exit = status
	stopping := s.stopping
	streaming := s.streaming
	cb := s.takeStartLocked()
	s.mu.Unlock()

	s.firstOnce.Do(func() { close(s.firstOutput) })
	defer close(s.done)

	msg := "Transcoder " + status.String()
	switch {
	case stopping:
		s.logger.Debug(msg + " (expected)")
		if cb != nil {
			cb(ErrStopped)
		}

	case status.Signaled() || status.Code == 255:
		s.logger.Error(msg + " (unexpected)")
		if cb != nil {
			cb(errors.New(msg))
		}

	default:
		s.logger.Error(msg + " (error)")
		if s.opts.Owner != nil {
			s.opts.Owner.StopStream(s.opts.SessionID)
		}
		if !streaming && cb != nil {
			cb(errors.New(msg))
		} else if s.opts.Controller != nil {
			s.opts.Controller.ForceStopStreamingSession(s.opts.SessionID)
		}
	}
}

func exitStatus(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1, Err: err}
	}

	status := ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Code = -1
		status.Signal = unix.SignalName(ws.Signal())
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Err = err
	}
	return status
}
