package mcpserver

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/gemini-cockpit/server/pkg/approval"
	"github.com/gemini-cockpit/server/pkg/sshchannel"
)

// Backend is the narrow set of session operations a ToolServer needs.
// Session implements this directly; mcpserver never imports pkg/session
// to avoid an import cycle.
type Backend interface {
	Connect(ctx context.Context, cfg sshchannel.Config) error
	HasChannel() bool
	ExecuteCommand(command string) error
	RecentOutput(n int) []string
	Approvals() *approval.Coordinator
}

func toolDescriptors() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:        "ssh_connect",
			Description: "Connect to a remote SSH server. Must be called before executing commands.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"host":        map[string]any{"type": "string"},
					"port":        map[string]any{"type": "integer", "default": 22},
					"username":    map[string]any{"type": "string"},
					"password":    map[string]any{"type": "string"},
					"private_key": map[string]any{"type": "string"},
				},
				"required": []string{"host", "username"},
			},
		},
		{
			Name:        "ssh_execute",
			Description: "Execute a command on the connected SSH server. Requires user approval before execution.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command":          map[string]any{"type": "string"},
					"timeout_seconds":  map[string]any{"type": "integer", "default": 30},
					"wait_for_output":  map[string]any{"type": "boolean", "default": true},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        "ssh_read_output",
			Description: "Read recent output from the SSH terminal session.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"lines": map[string]any{"type": "integer", "default": 50},
				},
			},
		},
	}
}

type sshConnectParams struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	PrivateKey string `json:"private_key"`
}

type sshExecuteParams struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	WaitForOutput  *bool  `json:"wait_for_output"`
}

type sshReadOutputParams struct {
	Lines int `json:"lines"`
}

// postExecuteSettleDelay is the heuristic pause between writing an
// approved command and reading back the output buffer, giving the
// remote shell a moment to produce output.
const postExecuteSettleDelay = 500 * time.Millisecond

// callTool dispatches a single tools/call invocation by name.
func callTool(ctx context.Context, backend Backend, name string, arguments jsoniter.RawMessage) CallToolResult {
	switch name {
	case "ssh_connect":
		return callSSHConnect(ctx, backend, arguments)
	case "ssh_execute":
		return callSSHExecute(ctx, backend, arguments)
	case "ssh_read_output":
		return callSSHReadOutput(backend, arguments)
	default:
		return CallToolResult{Content: textContent(fmt.Sprintf("unknown tool: %s", name)), IsError: true}
	}
}

func callSSHConnect(ctx context.Context, backend Backend, arguments jsoniter.RawMessage) CallToolResult {
	var params sshConnectParams
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &params); err != nil {
			return CallToolResult{Content: textContent("invalid ssh_connect arguments: " + err.Error()), IsError: true}
		}
	}
	if params.Port == 0 {
		params.Port = 22
	}

	err := backend.Connect(ctx, sshchannel.Config{
		Host:       params.Host,
		Port:       params.Port,
		Username:   params.Username,
		Password:   params.Password,
		PrivateKey: params.PrivateKey,
	})
	if err != nil {
		return CallToolResult{Content: textContent("failed to connect: " + err.Error()), IsError: true}
	}
	return CallToolResult{Content: textContent(fmt.Sprintf("connected to %s@%s:%d", params.Username, params.Host, params.Port))}
}

func callSSHExecute(ctx context.Context, backend Backend, arguments jsoniter.RawMessage) CallToolResult {
	var params sshExecuteParams
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &params); err != nil {
			return CallToolResult{Content: textContent("invalid ssh_execute arguments: " + err.Error()), IsError: true}
		}
	}
	if params.TimeoutSeconds == 0 {
		params.TimeoutSeconds = 30
	}
	waitForOutput := true
	if params.WaitForOutput != nil {
		waitForOutput = *params.WaitForOutput
	}

	if !backend.HasChannel() {
		return CallToolResult{Content: textContent("no SSH connection established; call ssh_connect first"), IsError: true}
	}

	outcome := backend.Approvals().WaitForApproval(ctx, params.Command, time.Duration(params.TimeoutSeconds)*time.Second)

	switch outcome {
	case approval.Approved:
		if err := backend.ExecuteCommand(params.Command); err != nil {
			return CallToolResult{Content: textContent("failed to execute command: " + err.Error()), IsError: true}
		}
		if !waitForOutput {
			return CallToolResult{Content: textContent("command sent")}
		}
		time.Sleep(postExecuteSettleDelay)
		recent := backend.RecentOutput(50)
		if len(recent) == 0 {
			return CallToolResult{Content: textContent("command executed; no output captured yet")}
		}
		return CallToolResult{Content: textContent(joinLines(recent))}
	case approval.Rejected:
		return CallToolResult{Content: textContent("command rejected by operator"), IsError: true}
	case approval.Timeout:
		return CallToolResult{Content: textContent("approval request timed out"), IsError: true}
	default:
		return CallToolResult{Content: textContent("approval channel closed before a decision was made"), IsError: true}
	}
}

func callSSHReadOutput(backend Backend, arguments jsoniter.RawMessage) CallToolResult {
	var params sshReadOutputParams
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &params); err != nil {
			return CallToolResult{Content: textContent("invalid ssh_read_output arguments: " + err.Error()), IsError: true}
		}
	}
	if params.Lines == 0 {
		params.Lines = 50
	}

	recent := backend.RecentOutput(params.Lines)
	if len(recent) == 0 {
		return CallToolResult{Content: textContent("no output")}
	}
	return CallToolResult{Content: textContent(joinLines(recent))}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
