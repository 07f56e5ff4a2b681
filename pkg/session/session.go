// Package session implements the Session aggregate and its registry:
// the unit of isolation for one operator's assistant+SSH cockpit.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/gemini-cockpit/server/pkg/approval"
	"github.com/gemini-cockpit/server/pkg/mcpserver"
	"github.com/gemini-cockpit/server/pkg/ptysupervisor"
	"github.com/gemini-cockpit/server/pkg/sshchannel"
)

// Session is the per-operator aggregate: one optional assistant PTY, at
// most one live SSH channel, and the approval/tool plumbing between
// them.
type Session struct {
	ID string

	approvals *approval.Coordinator
	output    *sshchannel.OutputBuffer
	tools     *mcpserver.Server

	mu  sync.Mutex
	pty *ptysupervisor.Supervisor
	ssh *sshchannel.Channel
}

// New creates a Session with a fresh ApprovalCoordinator, OutputBuffer,
// and ToolServer. No PTY or SSH channel is attached yet.
func New(id string) *Session {
	s := &Session{
		ID:        id,
		approvals: approval.NewCoordinator(),
		output:    sshchannel.NewOutputBuffer(),
	}
	s.tools = mcpserver.New(s)
	return s
}

// Approvals returns the session's ApprovalCoordinator.
func (s *Session) Approvals() *approval.Coordinator { return s.approvals }

// Tools returns the session's MCP ToolServer.
func (s *Session) Tools() *mcpserver.Server { return s.tools }

// OutputBuffer returns the session's bounded SSH output ring.
func (s *Session) OutputBuffer() *sshchannel.OutputBuffer { return s.output }

// AttachPTY installs the assistant's PTY supervisor. Called once by the
// component that spawns the assistant CLI for this session.
func (s *Session) AttachPTY(pty *ptysupervisor.Supervisor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pty = pty
}

// PTY returns the assistant PTY supervisor, or nil if none is attached.
func (s *Session) PTY() *ptysupervisor.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pty
}

// Connect implements mcpserver.Backend: it dials a new SSH channel and
// installs it in the session's slot, replacing and closing any prior
// channel without draining it first (see DESIGN.md open-question
// resolutions).
func (s *Session) Connect(ctx context.Context, cfg sshchannel.Config) error {
	ch, err := sshchannel.Dial(ctx, cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prior := s.ssh
	s.ssh = ch
	s.mu.Unlock()

	if prior != nil {
		_ = prior.Close()
	}

	return nil
}

// HasChannel implements mcpserver.Backend.
func (s *Session) HasChannel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssh != nil
}

// Channel returns the current SSH channel, or nil if none is connected.
func (s *Session) Channel() *sshchannel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssh
}

// ExecuteCommand implements mcpserver.Backend.
func (s *Session) ExecuteCommand(command string) error {
	ch := s.Channel()
	if ch == nil {
		return errors.New("session: no SSH channel attached")
	}
	return ch.ExecuteCommand(command)
}

// RecentOutput implements mcpserver.Backend.
func (s *Session) RecentOutput(n int) []string {
	return s.output.Recent(n)
}

// Close tears down whatever is attached to this session: the assistant
// PTY (if any) and the SSH channel (if any).
func (s *Session) Close() error {
	s.mu.Lock()
	pty := s.pty
	ch := s.ssh
	s.pty = nil
	s.ssh = nil
	s.mu.Unlock()

	var firstErr error
	if pty != nil {
		if err := pty.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if ch != nil {
		if err := ch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
