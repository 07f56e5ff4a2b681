// Package sshchannel mediates a single authenticated SSH shell channel:
// connection, keystroke and command delivery, output decoding, resize,
// and orderly teardown.
package sshchannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/mylxsw/asteria/log"
	"golang.org/x/crypto/ssh"
)

// ErrNoAuthMethod is returned when neither a password nor private key
// material is supplied.
var ErrNoAuthMethod = errors.New("sshchannel: no authentication method provided")

// Config describes the connection parameters for Dial.
type Config struct {
	Host       string
	Port       int // zero defaults to 22
	Username   string
	Password   string
	PrivateKey string // PEM-encoded

	// HostKeyCallback overrides host-key verification. When nil, the
	// connection trusts any server key and logs a one-time warning.
	HostKeyCallback ssh.HostKeyCallback
}

var insecureWarningOnce sync.Once

func (c Config) hostKeyCallback() ssh.HostKeyCallback {
	if c.HostKeyCallback != nil {
		return c.HostKeyCallback
	}
	insecureWarningOnce.Do(func() {
		log.Errorf("sshchannel: no host key verification configured, trusting any server key")
	})
	return ssh.InsecureIgnoreHostKey()
}

func (c Config) authMethod() (ssh.AuthMethod, error) {
	if c.Password != "" {
		return ssh.Password(c.Password), nil
	}
	if c.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(c.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("sshchannel: failed to decode private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return nil, ErrNoAuthMethod
}

// Channel is a single-owner wrapper around one interactive SSH shell
// channel. All mutating operations (SendInput, ExecuteCommand, Resize,
// Close) are serialized by an internal mutex, matching the non-re-entrant
// nature of the underlying channel state machine.
type Channel struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.Writer

	outputCh chan string
	pumpWG   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// ReadResult is the outcome of a single ReadOutput call.
type ReadResult struct {
	Fragment string
	EOF      bool
}

// Dial establishes the connection, authenticates, opens a session,
// requests a PTY and a shell. Both must succeed or Dial fails.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	auth, err := cfg.authMethod()
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: cfg.hostKeyCallback(),
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sshchannel: dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sshchannel: handshake/auth: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sshchannel: open session: %w", err)
	}

	if err := session.RequestPty("xterm", 24, 80, ssh.TerminalModes{}); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("sshchannel: request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("sshchannel: stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("sshchannel: stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("sshchannel: stderr pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("sshchannel: request shell: %w", err)
	}

	c := &Channel{
		client:   client,
		session:  session,
		stdin:    stdin,
		outputCh: make(chan string, 16),
	}

	c.pumpWG.Add(2)
	go c.pump(stdout)
	go c.pump(stderr)
	go func() {
		c.pumpWG.Wait()
		close(c.outputCh)
	}()

	return c, nil
}

// pump decodes raw bytes as UTF-8 (lossy) fragments and forwards them to
// outputCh until the reader reaches EOF or errors.
func (c *Channel) pump(r io.Reader) {
	defer c.pumpWG.Done()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.outputCh <- toValidUTF8(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func toValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// SendInput writes raw bytes to the channel's data stream. Callers
// supply any trailing newline themselves.
func (c *Channel) SendInput(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("sshchannel: channel closed")
	}
	_, err := c.stdin.Write([]byte(data))
	return err
}

// ExecuteCommand writes text followed by a newline. Semantically
// identical to SendInput with an appended newline; exists to make the
// approval path's intent explicit.
func (c *Channel) ExecuteCommand(text string) error {
	return c.SendInput(text + "\n")
}

// ReadOutput awaits the next decoded fragment, or reports EOF once both
// stdout and stderr pumps have drained. ctx cancellation (typically a
// short per-iteration deadline from the owning bridge) returns ctx.Err()
// without consuming a fragment, letting the caller interleave writes.
func (c *Channel) ReadOutput(ctx context.Context) (ReadResult, error) {
	select {
	case frag, ok := <-c.outputCh:
		if !ok {
			return ReadResult{EOF: true}, nil
		}
		return ReadResult{Fragment: frag}, nil
	case <-ctx.Done():
		return ReadResult{}, ctx.Err()
	}
}

// Resize sends a window-change request for the PTY. Pixel dimensions
// are always zero.
func (c *Channel) Resize(widthCols, heightRows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("sshchannel: channel closed")
	}
	return c.session.WindowChange(heightRows, widthCols)
}

// Close sends channel EOF and disconnects. Safe to call multiple times.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Closing the stdin pipe sends the channel EOF.
	if wc, ok := c.stdin.(io.Closer); ok {
		_ = wc.Close()
	}

	// Session close routinely races the remote shell's own EOF; only the
	// client-level disconnect error is worth surfacing.
	_ = c.session.Close()
	return c.client.Close()
}
