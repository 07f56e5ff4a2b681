package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mylxsw/asteria/log"

	"github.com/gemini-cockpit/server/internal/httpapi"
	"github.com/gemini-cockpit/server/pkg/session"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:3000", "server listen address")
	assistantCmd := flag.String("assistant-cmd", "gemini", "AI assistant CLI to spawn under a PTY for each session")
	assistantArgs := flag.String("assistant-args", "", "space-separated extra arguments passed to the assistant CLI")
	flag.Parse()

	var args []string
	if strings.TrimSpace(*assistantArgs) != "" {
		args = strings.Fields(*assistantArgs)
	}

	registry := session.NewRegistry()
	handler := httpapi.NewHandler(registry, *assistantCmd, args)
	router := httpapi.NewRouter(handler)

	server := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	go func() {
		log.Debugf("gemini-cockpit server listening on %s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Debug("shutting down")
	registry.ShutdownAll()
	log.Debug("server stopped")
}
