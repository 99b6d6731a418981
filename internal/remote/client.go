package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds the connection parameters for one Client.
type Config struct {
	MulticastGroup string // default "239.0.0.1"
	MulticastPort  int    // default 6766
	BindAddress    string // default "0.0.0.0"
	CommandIP      string // address the editor dials back to, default "127.0.0.1"

	// ProjectName filters discovery to one project's editor.
	ProjectName string
	// ExpectedNodeID pins discovery to one specific instance.
	ExpectedNodeID string
	// ExpectedPID, when non-zero, is verified over the command channel
	// right after connecting. A stale broadcast can advertise a port now
	// owned by a different editor process; the PID check catches that.
	ExpectedPID int
}

const (
	DefaultMulticastGroup = "239.0.0.1"
	DefaultMulticastPort  = 6766

	pidProbeSnippet = "import os; print(os.getpid())"
)

// Client is the remote execution client for a single editor instance. At
// most one node identity is active per client; the command channel is
// exclusively owned and Execute calls are serialized.
type Client struct {
	cfg    Config
	source string

	mu   sync.Mutex
	disc *Discovery
	ch   *Channel
	node *NodeIdentity
}

func NewClient(cfg Config) *Client {
	if cfg.MulticastGroup == "" {
		cfg.MulticastGroup = DefaultMulticastGroup
	}
	if cfg.MulticastPort == 0 {
		cfg.MulticastPort = DefaultMulticastPort
	}
	if cfg.CommandIP == "" {
		cfg.CommandIP = "127.0.0.1"
	}
	return &Client{
		cfg:    cfg,
		source: "ue-mcp-" + uuid.NewString(),
	}
}

// Connect discovers a matching editor, opens the command channel and, when
// ExpectedPID is set, verifies the peer's identity. Calling while already
// connected is a no-op.
func (c *Client) Connect(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connectedLocked() {
		return nil
	}
	c.teardownLocked()

	deadline := time.Now().Add(timeout)

	disc := NewDiscovery(DiscoveryConfig{
		Group:          c.cfg.MulticastGroup,
		Port:           c.cfg.MulticastPort,
		BindAddress:    c.cfg.BindAddress,
		ProjectName:    c.cfg.ProjectName,
		ExpectedNodeID: c.cfg.ExpectedNodeID,
		ExpectedPID:    c.cfg.ExpectedPID,
	}, c.source)

	node, err := disc.WaitForNode(timeout)
	if err != nil {
		disc.Close()
		return err
	}

	ch, port, err := ListenCommand(c.cfg.CommandIP)
	if err != nil {
		disc.Close()
		return err
	}

	openMsg, err := NewMessage(c.source, node.NodeID, TypeOpenConnection, OpenConnectionData{
		CommandIP:   c.cfg.CommandIP,
		CommandPort: port,
	})
	if err == nil {
		err = disc.Send(openMsg)
	}
	if err != nil {
		ch.Close()
		disc.Close()
		return err
	}

	acceptTimeout := time.Until(deadline)
	if acceptTimeout <= 0 {
		acceptTimeout = time.Second
	}
	if err := ch.Accept(acceptTimeout); err != nil {
		ch.Close()
		disc.Close()
		return err
	}

	c.disc = disc
	c.ch = ch
	c.node = node

	if c.cfg.ExpectedPID != 0 {
		actual, ok := c.probePIDLocked(ctx)
		if !ok || actual != c.cfg.ExpectedPID {
			mismatch := &IdentityMismatchError{ExpectedPID: c.cfg.ExpectedPID, ActualPID: actual}
			c.teardownLocked()
			return mismatch
		}
	}

	log.Printf("remote: connected to editor %s (project %q)", node.NodeID, node.ProjectName)
	return nil
}

// Execute runs code in the editor and returns the assembled response. The
// channel is reset on framing errors or cancellation so a later call never
// observes a partially read stream.
func (c *Client) Execute(ctx context.Context, code string, execType ExecType, timeout time.Duration) (*CommandResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executeLocked(ctx, code, execType, timeout)
}

func (c *Client) executeLocked(ctx context.Context, code string, execType ExecType, timeout time.Duration) (*CommandResponse, error) {
	if !c.connectedLocked() {
		return nil, ErrNotConnected
	}
	if execType == "" {
		execType = ExecuteFile
	}

	cmdMsg, err := NewMessage(c.source, c.node.NodeID, TypeCommand, CommandData{
		Command:    code,
		Unattended: true,
		ExecMode:   execType,
	})
	if err != nil {
		return nil, err
	}
	if err := c.ch.Send(cmdMsg); err != nil {
		c.teardownLocked()
		return nil, err
	}

	// Abandoning the call must not leave the stream half-read; closing
	// the channel unblocks the read below.
	done := make(chan struct{})
	defer close(done)
	go func(ch *Channel) {
		select {
		case <-ctx.Done():
			ch.Close()
		case <-done:
		}
	}(c.ch)

	deadline := time.Now().Add(timeout)
	for {
		msg, err := c.ch.ReadMessage(deadline)
		if err != nil {
			c.teardownLocked()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if msg.Type == TypeCommand {
			// Our own request echoed back by the loopback path.
			continue
		}
		if msg.Type != TypeCommandResult {
			continue
		}

		var result CommandResultData
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			c.teardownLocked()
			return nil, fmt.Errorf("remote: decode command result: %w", err)
		}
		return responseFromResult(&result), nil
	}
}

// VerifyPID confirms the connected editor's OS process ID by running a
// one-line introspection snippet remotely. Best-effort safety check: any
// execution or parse failure yields false, never an error.
func (c *Client) VerifyPID(ctx context.Context, expectedPID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	actual, ok := c.probePIDLocked(ctx)
	return ok && actual == expectedPID
}

func (c *Client) probePIDLocked(ctx context.Context) (int, bool) {
	if !c.connectedLocked() {
		return 0, false
	}
	resp, err := c.executeLocked(ctx, pidProbeSnippet, ExecuteStatement, 5*time.Second)
	if err != nil || !resp.Success {
		return 0, false
	}
	for _, frag := range resp.Output {
		line := strings.TrimSpace(frag.Output)
		if pid, err := strconv.Atoi(line); err == nil {
			return pid, true
		}
	}
	return 0, false
}

// IsConnected reports whether the channel is open and a node identity has
// been captured. An open socket with no identified peer is not connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Client) connectedLocked() bool {
	return c.ch.Connected() && c.node != nil
}

// NodeID returns the connected instance's node ID, or "" when disconnected.
func (c *Client) NodeID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.node == nil {
		return ""
	}
	return c.node.NodeID
}

// Node returns a copy of the captured node identity.
func (c *Client) Node() (NodeIdentity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.node == nil {
		return NodeIdentity{}, false
	}
	return *c.node, true
}

// Disconnect closes the command channel and releases discovery resources.
// Safe to call multiple times and before Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.node != nil && c.disc != nil {
		closeMsg, err := NewMessage(c.source, c.node.NodeID, TypeCloseConnection, nil)
		if err == nil {
			if err := c.disc.Send(closeMsg); err != nil {
				log.Printf("remote: send close_connection: %v", err)
			}
		}
	}
	c.teardownLocked()
}

func (c *Client) teardownLocked() {
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
	if c.disc != nil {
		c.disc.Close()
		c.disc = nil
	}
	c.node = nil
}
