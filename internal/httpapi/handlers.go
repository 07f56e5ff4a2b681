package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mylxsw/asteria/log"

	"github.com/gemini-cockpit/server/pkg/bridge"
	"github.com/gemini-cockpit/server/pkg/mcpserver"
	"github.com/gemini-cockpit/server/pkg/ptysupervisor"
	"github.com/gemini-cockpit/server/pkg/session"
	"github.com/gemini-cockpit/server/pkg/sshchannel"
)

// assistantWindow is the initial PTY size for a spawned assistant CLI.
var assistantWindow = ptysupervisor.Size{Rows: 24, Cols: 80}

// Handler wires the session registry to the HTTP/WebSocket surface.
type Handler struct {
	registry      *session.Registry
	assistantCmd  string
	assistantArgs []string
	upgrader      websocket.Upgrader
}

// NewHandler builds a Handler. assistantCmd/assistantArgs describe how to
// launch the AI assistant CLI under a PTY for every created session.
func NewHandler(registry *session.Registry, assistantCmd string, assistantArgs []string) *Handler {
	return &Handler{
		registry:      registry,
		assistantCmd:  assistantCmd,
		assistantArgs: assistantArgs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func mcpURL(r *http.Request, sessionID string) string {
	return fmt.Sprintf("http://%s/mcp/%s", r.Host, sessionID)
}

// HandleCreateSession implements POST /api/session/create.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	s := h.registry.Create()
	url := mcpURL(r, s.ID)

	envOverrides := map[string]string{
		"GEMINI_API_KEY": req.APIKey,
		"MCP_URL":        url,
	}

	pty, err := ptysupervisor.New(h.assistantCmd, h.assistantArgs, envOverrides, assistantWindow)
	if err != nil {
		_ = h.registry.Remove(s.ID)
		log.Errorf("HandleCreateSession: failed to spawn assistant: %v", err)
		writeJSONResponse(w, http.StatusInternalServerError, CreateSessionResponse{
			Success: false,
			Error:   fmt.Sprintf("failed to spawn assistant: %v", err),
		})
		return
	}
	s.AttachPTY(pty)

	writeJSONResponse(w, http.StatusOK, CreateSessionResponse{
		SessionID: s.ID,
		Success:   true,
		MCPURL:    url,
	})
}

// HandleSSHConnect implements POST /api/ssh/connect. Every call mints its
// own session rather than attaching to an existing one.
func (h *Handler) HandleSSHConnect(w http.ResponseWriter, r *http.Request) {
	var req SSHConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, SSHConnectResponse{
			Success: false,
			Error:   fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	s := h.registry.Create()

	cfg := sshchannel.Config{
		Host:       req.Host,
		Port:       req.Port,
		Username:   req.Username,
		Password:   req.Password,
		PrivateKey: req.PrivateKey,
	}

	if err := s.Connect(r.Context(), cfg); err != nil {
		_ = h.registry.Remove(s.ID)
		writeJSONResponse(w, http.StatusOK, SSHConnectResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	writeJSONResponse(w, http.StatusOK, SSHConnectResponse{
		SessionID: s.ID,
		Success:   true,
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleAssistantTerminalWS implements GET /ws/gemini-terminal/{session_id}.
func (h *Handler) HandleAssistantTerminalWS(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("HandleAssistantTerminalWS: upgrade failed: %v", err)
		return
	}

	pty := s.PTY()
	if pty == nil {
		_ = conn.WriteJSON(bridge.TerminalMessage{Type: bridge.TerminalError, Message: "no assistant attached to this session"})
		_ = conn.Close()
		return
	}

	if !pty.IsRunning() {
		diag := fmt.Sprintf("assistant exited immediately after spawn; mcp url: %s", mcpURL(r, s.ID))
		_ = conn.WriteJSON(bridge.TerminalMessage{Type: bridge.TerminalOutput, Data: diag})
		_ = conn.Close()
		return
	}

	sink, err := bridge.NewPTYSink(pty)
	if err != nil {
		_ = conn.WriteJSON(bridge.TerminalMessage{Type: bridge.TerminalError, Message: err.Error()})
		_ = conn.Close()
		return
	}
	source := bridge.NewPTYSource(pty)

	if err := bridge.RunTerminalBridge(r.Context(), conn, source, sink, nil); err != nil {
		log.Debugf("HandleAssistantTerminalWS: bridge ended: %v", err)
	}
}

// HandleSSHTerminalWS implements GET /ws/ssh-terminal/{session_id}.
func (h *Handler) HandleSSHTerminalWS(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("HandleSSHTerminalWS: upgrade failed: %v", err)
		return
	}

	ch := s.Channel()
	if ch == nil {
		_ = conn.WriteJSON(bridge.TerminalMessage{Type: bridge.TerminalError, Message: "no SSH channel connected for this session"})
		_ = conn.Close()
		return
	}

	source := bridge.NewSSHSource(ch)
	sink := bridge.NewSSHSink(ch)

	onFragment := func(frag string) { s.OutputBuffer().Add(frag) }

	if err := bridge.RunTerminalBridge(r.Context(), conn, source, sink, onFragment); err != nil {
		log.Debugf("HandleSSHTerminalWS: bridge ended: %v", err)
	}
}

// HandleCommandsWS implements GET /ws/commands/{session_id}.
func (h *Handler) HandleCommandsWS(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("HandleCommandsWS: upgrade failed: %v", err)
		return
	}

	if err := bridge.RunApprovalBridge(r.Context(), conn, s.Approvals()); err != nil {
		log.Debugf("HandleCommandsWS: bridge ended: %v", err)
	}
}

// HandleMCP implements POST /mcp/{session_id}.
func (h *Handler) HandleMCP(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	if _, err := uuid.Parse(sessionID); err != nil {
		writeJSONResponse(w, http.StatusOK, mcpErrorResponse(mcpserver.CodeInvalidRequest, "malformed session id"))
		return
	}

	s, err := h.registry.Get(sessionID)
	if err != nil {
		writeJSONResponse(w, http.StatusOK, mcpErrorResponse(mcpserver.CodeSessionNotFound, "session not found"))
		return
	}

	var req mcpserver.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusOK, mcpErrorResponse(mcpserver.CodeInvalidRequest, "malformed JSON-RPC request"))
		return
	}

	resp := s.Tools().Handle(r.Context(), req)
	writeJSONResponse(w, http.StatusOK, resp)
}

func mcpErrorResponse(code int, message string) mcpserver.Response {
	return mcpserver.Response{
		JSONRPC: "2.0",
		Error:   &mcpserver.RPCError{Code: code, Message: message},
	}
}

// HandleMCPEvents implements GET /mcp/{session_id}/events.
func (h *Handler) HandleMCPEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	if _, err := uuid.Parse(sessionID); err != nil {
		http.Error(w, "malformed session id", http.StatusBadRequest)
		return
	}

	s, err := h.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := s.Approvals().Subscribe()
	defer unsubscribe()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, _ := json.Marshal(evt)
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", mcpserver.SSEEventName(evt), data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := mux.Vars(r)["session_id"]
	s, err := h.registry.Get(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return s, true
}
