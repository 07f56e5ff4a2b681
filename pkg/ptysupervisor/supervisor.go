// Package ptysupervisor spawns the AI assistant CLI under a pseudo
// terminal and exposes its I/O and liveness to a TransportBridge.
package ptysupervisor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/creack/pty"
	"github.com/mylxsw/asteria/log"
)

// ErrWriterTaken is returned by TakeWriter on the second and later call.
var ErrWriterTaken = errors.New("ptysupervisor: writer already taken")

// Size is a PTY window size in character cells (no pixel geometry).
type Size struct {
	Rows uint16
	Cols uint16
}

// Supervisor owns a single child process attached to a PTY master. Exactly
// one Supervisor exists per assistant terminal bridge.
type Supervisor struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	ptmx      *os.File
	writerTaken bool

	exitOnce sync.Once
	exitErr  error
	running  bool
}

// New spawns program (with args) under a newly allocated PTY. envOverrides
// are merged on top of a curated environment: TERM inherited or defaulted
// to xterm-256color, HOME/XDG_CONFIG_HOME/PATH inherited when set, and a
// session credential taking precedence over any same-named variable
// already present in the environment.
func New(program string, args []string, envOverrides map[string]string, initial Size) (*Supervisor, error) {
	cmd := exec.Command(program, args...)
	cmd.Env = buildEnv(envOverrides)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: initial.Rows,
		Cols: initial.Cols,
	})
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cmd:     cmd,
		ptmx:    ptmx,
		running: true,
	}

	go s.watchExit()

	return s, nil
}

// buildEnv assembles the child process environment: inherit
// TERM/HOME/XDG_CONFIG_HOME/PATH/GEMINI_API_KEY when the host has them,
// default TERM to xterm-256color otherwise, then apply overrides left to
// right, treating empty override values as absent so they never clobber an
// inherited credential.
func buildEnv(overrides map[string]string) []string {
	base := map[string]string{
		"TERM": "xterm-256color",
	}
	for _, key := range []string{"TERM", "HOME", "XDG_CONFIG_HOME", "PATH", "GEMINI_API_KEY"} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			base[key] = v
		}
	}

	for key, value := range overrides {
		if strings.TrimSpace(key) == "" || value == "" {
			continue
		}
		base[key] = value
	}

	keys := make([]string, 0, len(base))
	for k := range base {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+base[k])
	}
	return env
}

func (s *Supervisor) watchExit() {
	err := s.cmd.Wait()
	s.exitOnce.Do(func() {
		s.mu.Lock()
		s.running = false
		s.exitErr = err
		s.mu.Unlock()
		if err != nil {
			log.Debugf("ptysupervisor: child exited: %v", err)
		} else {
			log.Debugf("ptysupervisor: child exited cleanly")
		}
	})
}

// GetReader returns a reader over the PTY master. Every call returns the
// master itself, not a clone, so concurrent readers share one stream and
// each byte goes to only one of them.
func (s *Supervisor) GetReader() io.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptmx
}

// TakeWriter returns the sole writer handle for this supervisor. It may
// be called at most once; later calls return ErrWriterTaken.
func (s *Supervisor) TakeWriter() (io.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writerTaken {
		return nil, ErrWriterTaken
	}
	s.writerTaken = true
	return s.ptmx, nil
}

// Resize adjusts the PTY window dimensions. Safe to call concurrently
// with I/O on the master.
func (s *Supervisor) Resize(size Size) error {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()

	return pty.Setsize(ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// IsRunning performs a non-blocking poll of child liveness.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ExitErr returns the error observed when the child exited, if any. Only
// meaningful once IsRunning returns false.
func (s *Supervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Close terminates the child process and releases the PTY master. Safe
// to call multiple times.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	cmd := s.cmd
	ptmx := s.ptmx
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if ptmx != nil {
		return ptmx.Close()
	}
	return nil
}
