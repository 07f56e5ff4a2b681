package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/gemini-cockpit/server/pkg/approval"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// readSlice bounds each OutputSource.Next call so a pending write is
// never starved behind a long-idle read.
const readSlice = 50 * time.Millisecond

// WSConn is the subset of *websocket.Conn a bridge needs. Satisfied
// directly by *websocket.Conn; narrowed here so bridges are testable
// against a fake.
type WSConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

func writeJSON(conn WSConn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// RunTerminalBridge pumps a single assistant or SSH terminal connection
// until either side ends, cancelling its peer. onFragment, if non-nil,
// observes every fragment read from the backend (used to feed the SSH
// output buffer and, optionally, the assistant's passive view).
func RunTerminalBridge(parent context.Context, conn WSConn, source OutputSource, sink InputSink, onFragment func(string)) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	errCh := make(chan error, 2)

	go func() { errCh <- pumpOutbound(ctx, conn, source, onFragment) }()
	go func() { errCh <- pumpInbound(conn, sink) }()

	err := <-errCh
	cancel()
	_ = conn.Close()
	<-errCh

	return err
}

func pumpOutbound(ctx context.Context, conn WSConn, source OutputSource, onFragment func(string)) error {
	for {
		iterCtx, cancel := context.WithTimeout(ctx, readSlice)
		frag, eof, err := source.Next(iterCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
		if eof {
			return nil
		}
		if frag == "" {
			continue
		}

		if onFragment != nil {
			onFragment(frag)
		}
		if err := writeJSON(conn, TerminalMessage{Type: TerminalOutput, Data: frag}); err != nil {
			return err
		}
	}
}

func pumpInbound(conn WSConn, sink InputSink) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg TerminalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case TerminalInput:
			if err := sink.Write(msg.Data); err != nil {
				return err
			}
		case TerminalResize:
			if err := sink.Resize(msg.Width, msg.Height); err != nil {
				return err
			}
		}
	}
}

// RunApprovalBridge pumps the approval WebSocket: coordinator events out,
// CommandDecision frames in.
func RunApprovalBridge(parent context.Context, conn WSConn, coordinator *approval.Coordinator) error {
	events, unsubscribe := coordinator.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					errCh <- nil
					return
				}
				cm := CommandMessage{Type: string(evt.Type), ApprovalID: evt.ApprovalID, Command: evt.Command}
				if err := writeJSON(conn, cm); err != nil {
					errCh <- err
					return
				}
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			var msg CommandMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			if msg.Type == CommandDecision {
				coordinator.SubmitDecision(msg.ApprovalID, msg.Approved)
			}
		}
	}()

	err := <-errCh
	cancel()
	_ = conn.Close()
	<-errCh

	return err
}
