package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gemini-cockpit/server/pkg/approval"
)

var errFakeConnClosed = errors.New("bridge: fake conn closed")

// fakeConn is a hand-written stand-in for *websocket.Conn.
type fakeConn struct {
	toClient   chan []byte
	fromClient chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toClient:   make(chan []byte, 64),
		fromClient: make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg, ok := <-c.fromClient:
		if !ok {
			return 0, nil, errFakeConnClosed
		}
		return 1, msg, nil
	case <-c.closed:
		return 0, nil, errFakeConnClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeConnClosed
	default:
	}
	select {
	case c.toClient <- data:
		return nil
	default:
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeSource struct {
	ch chan string
}

func (s *fakeSource) Next(ctx context.Context) (string, bool, error) {
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

type fakeSink struct {
	mu      sync.Mutex
	writes  []string
	resizes [][2]int
}

func (s *fakeSink) Write(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, data)
	return nil
}

func (s *fakeSink) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes = append(s.resizes, [2]int{cols, rows})
	return nil
}

func recvToClient(t *testing.T, conn *fakeConn) []byte {
	t.Helper()
	select {
	case msg := <-conn.toClient:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

func TestTerminalBridgeForwardsOutput(t *testing.T) {
	conn := newFakeConn()
	source := &fakeSource{ch: make(chan string, 4)}
	sink := &fakeSink{}

	done := make(chan error, 1)
	go func() { done <- RunTerminalBridge(context.Background(), conn, source, sink, nil) }()

	source.ch <- "hello from backend"

	raw := recvToClient(t, conn)
	var msg TerminalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != TerminalOutput || msg.Data != "hello from backend" {
		t.Fatalf("unexpected frame: %+v", msg)
	}

	close(source.ch)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean end of stream, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("bridge did not terminate after source EOF")
	}
}

func TestTerminalBridgeForwardsInputAndResize(t *testing.T) {
	conn := newFakeConn()
	source := &fakeSource{ch: make(chan string)}
	sink := &fakeSink{}

	done := make(chan error, 1)
	go func() { done <- RunTerminalBridge(context.Background(), conn, source, sink, nil) }()

	inputFrame, _ := json.Marshal(TerminalMessage{Type: TerminalInput, Data: "ls -la\n"})
	conn.fromClient <- inputFrame

	resizeFrame, _ := json.Marshal(TerminalMessage{Type: TerminalResize, Width: 120, Height: 40})
	conn.fromClient <- resizeFrame

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		ready := len(sink.writes) == 1 && len(sink.resizes) == 1
		sink.mu.Unlock()
		if ready {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.writes) != 1 || sink.writes[0] != "ls -la\n" {
		t.Fatalf("expected one forwarded write, got %v", sink.writes)
	}
	if len(sink.resizes) != 1 || sink.resizes[0] != [2]int{120, 40} {
		t.Fatalf("expected one forwarded resize, got %v", sink.resizes)
	}

	close(conn.fromClient)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bridge did not terminate after conn closed")
	}
}

func TestTerminalBridgeOnFragmentObserver(t *testing.T) {
	conn := newFakeConn()
	source := &fakeSource{ch: make(chan string, 1)}
	sink := &fakeSink{}

	var observed []string
	var mu sync.Mutex

	done := make(chan error, 1)
	go func() {
		done <- RunTerminalBridge(context.Background(), conn, source, sink, func(frag string) {
			mu.Lock()
			observed = append(observed, frag)
			mu.Unlock()
		})
	}()

	source.ch <- "fragment-1"
	recvToClient(t, conn)
	close(source.ch)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0] != "fragment-1" {
		t.Fatalf("expected onFragment to observe the fragment, got %v", observed)
	}
}

func TestApprovalBridgeForwardsEventsAndDecisions(t *testing.T) {
	conn := newFakeConn()
	coordinator := approval.NewCoordinator()

	done := make(chan error, 1)
	go func() { done <- RunApprovalBridge(context.Background(), conn, coordinator) }()

	id, verdict := coordinator.RequestApproval("uptime")

	raw := recvToClient(t, conn)
	var msg CommandMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != CommandRequested || msg.ApprovalID != id || msg.Command != "uptime" {
		t.Fatalf("unexpected frame: %+v", msg)
	}

	decisionFrame, _ := json.Marshal(CommandMessage{Type: CommandDecision, ApprovalID: id, Approved: true})
	conn.fromClient <- decisionFrame

	select {
	case v, ok := <-verdict:
		if !ok || !v {
			t.Fatalf("expected verdict true, got %v ok=%v", v, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for verdict")
	}

	approvedFrame := recvToClient(t, conn)
	var approvedMsg CommandMessage
	if err := json.Unmarshal(approvedFrame, &approvedMsg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if approvedMsg.Type != CommandApproved || approvedMsg.ApprovalID != id {
		t.Fatalf("unexpected frame: %+v", approvedMsg)
	}

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("approval bridge did not terminate after conn closed")
	}
}
