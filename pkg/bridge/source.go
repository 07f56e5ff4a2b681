package bridge

import (
	"context"
	"io"

	"github.com/gemini-cockpit/server/pkg/ptysupervisor"
	"github.com/gemini-cockpit/server/pkg/sshchannel"
)

// OutputSource is the read side of a backend a TerminalBridge pumps
// from. Next blocks until a fragment arrives, the source reaches a
// clean end-of-stream (eof=true), or ctx expires (err=ctx.Err()).
// Bridges call Next repeatedly with a short-lived child context so
// writes triggered from the browser are never starved behind a long
// read.
type OutputSource interface {
	Next(ctx context.Context) (fragment string, eof bool, err error)
}

// InputSink is the write side of a backend a TerminalBridge pumps to.
type InputSink interface {
	Write(data string) error
	Resize(cols, rows int) error
}

// ptySource adapts a PTY master reader into an OutputSource by pumping
// it through a background goroutine, the same cancellable-blocking-read
// shape used elsewhere in this codebase for PTY and SSH I/O.
type ptySource struct {
	ch chan string
}

// NewPTYSource wraps a PTY supervisor's reader.
func NewPTYSource(sup *ptysupervisor.Supervisor) OutputSource {
	s := &ptySource{ch: make(chan string, 16)}
	go s.pump(sup.GetReader())
	return s
}

func (s *ptySource) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.ch <- string(buf[:n])
		}
		if err != nil {
			close(s.ch)
			return
		}
	}
}

func (s *ptySource) Next(ctx context.Context) (string, bool, error) {
	select {
	case frag, ok := <-s.ch:
		if !ok {
			return "", true, nil
		}
		return frag, false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// ptySink adapts a PTY supervisor's writer and resize into an InputSink.
type ptySink struct {
	writer io.Writer
	sup    *ptysupervisor.Supervisor
}

// NewPTYSink takes the supervisor's sole writer. Returns an error if the
// writer has already been taken.
func NewPTYSink(sup *ptysupervisor.Supervisor) (InputSink, error) {
	w, err := sup.TakeWriter()
	if err != nil {
		return nil, err
	}
	return &ptySink{writer: w, sup: sup}, nil
}

func (s *ptySink) Write(data string) error {
	_, err := s.writer.Write([]byte(data))
	return err
}

func (s *ptySink) Resize(cols, rows int) error {
	return s.sup.Resize(ptysupervisor.Size{Cols: uint16(cols), Rows: uint16(rows)})
}

// sshSource adapts an SSH channel into an OutputSource.
type sshSource struct {
	ch *sshchannel.Channel
}

// NewSSHSource wraps an SSH channel's ReadOutput as an OutputSource.
func NewSSHSource(ch *sshchannel.Channel) OutputSource {
	return &sshSource{ch: ch}
}

func (s *sshSource) Next(ctx context.Context) (string, bool, error) {
	res, err := s.ch.ReadOutput(ctx)
	if err != nil {
		return "", false, err
	}
	if res.EOF {
		return "", true, nil
	}
	return res.Fragment, false, nil
}

// sshSink adapts an SSH channel into an InputSink.
type sshSink struct {
	ch *sshchannel.Channel
}

// NewSSHSink wraps an SSH channel's SendInput/Resize as an InputSink.
func NewSSHSink(ch *sshchannel.Channel) InputSink {
	return &sshSink{ch: ch}
}

func (s *sshSink) Write(data string) error {
	return s.ch.SendInput(data)
}

func (s *sshSink) Resize(cols, rows int) error {
	return s.ch.Resize(cols, rows)
}
