// Package bridge implements the generic duplex adapter between a
// browser WebSocket transport and a backend (the assistant PTY, an SSH
// channel, or the approval coordinator).
package bridge

// TerminalMessage is the tagged-JSON frame shape used by the assistant
// and SSH terminal WebSockets.
type TerminalMessage struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	TerminalInput  = "input"
	TerminalResize = "resize"
	TerminalOutput = "output"
	TerminalError  = "error"
)

// CommandMessage is the tagged-JSON frame shape used by the approval
// WebSocket.
type CommandMessage struct {
	Type       string `json:"type"`
	ApprovalID string `json:"approval_id,omitempty"`
	Command    string `json:"command,omitempty"`
	Approved   bool   `json:"approved,omitempty"`
}

const (
	CommandRequested = "command_requested"
	CommandApproved  = "command_approved"
	CommandRejected  = "command_rejected"
	CommandDecision  = "command_decision"
)
