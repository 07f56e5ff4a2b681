package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter creates a new HTTP router.
func NewRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(RecoveryMiddleware)

	router.HandleFunc("/api/session/create", handler.HandleCreateSession).Methods(http.MethodPost)
	router.HandleFunc("/api/ssh/connect", handler.HandleSSHConnect).Methods(http.MethodPost)

	router.HandleFunc("/ws/gemini-terminal/{session_id}", handler.HandleAssistantTerminalWS).Methods(http.MethodGet)
	router.HandleFunc("/ws/ssh-terminal/{session_id}", handler.HandleSSHTerminalWS).Methods(http.MethodGet)
	router.HandleFunc("/ws/commands/{session_id}", handler.HandleCommandsWS).Methods(http.MethodGet)

	router.HandleFunc("/mcp/{session_id}", handler.HandleMCP).Methods(http.MethodPost)
	router.HandleFunc("/mcp/{session_id}/events", handler.HandleMCPEvents).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
