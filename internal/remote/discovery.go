package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// DiscoveryConfig controls how editor instances are located on the
// multicast group.
type DiscoveryConfig struct {
	Group       string // multicast group address, e.g. "239.0.0.1"
	Port        int    // multicast port, e.g. 6766
	BindAddress string // local bind address, default "0.0.0.0"

	// Filters. Zero values match everything.
	ProjectName    string
	ExpectedNodeID string
	ExpectedPID    int
}

func (c *DiscoveryConfig) groupAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(c.Group), Port: c.Port}
}

// Discovery listens on the remote execution multicast group and resolves
// pong broadcasts into NodeIdentity values. Duplicate broadcasts are
// deduplicated by node ID, last message wins.
type Discovery struct {
	cfg    DiscoveryConfig
	source string

	conn     net.PacketConn
	pconn    *ipv4.PacketConn
	sendConn *net.UDPConn

	mu    sync.Mutex
	nodes map[string]NodeIdentity
	subs  []chan NodeIdentity
}

// NewDiscovery creates a listener for the given group. source is this
// client's node ID, used to ignore our own ping echoes.
func NewDiscovery(cfg DiscoveryConfig, source string) *Discovery {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	return &Discovery{
		cfg:    cfg,
		source: source,
		nodes:  make(map[string]NodeIdentity),
	}
}

// Open joins the multicast group. Must be called before WaitForNode.
func (d *Discovery) Open() error {
	if d.conn != nil {
		return nil
	}

	// A locally launched editor already holds this port; both sockets set
	// the reuse options so the bind succeeds side by side.
	lc := net.ListenConfig{Control: reuseAddrControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("%s:%d", d.cfg.BindAddress, d.cfg.Port))
	if err != nil {
		return fmt.Errorf("remote: bind multicast socket: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(d.cfg.Group)}
	if err := pconn.JoinGroup(nil, group); err != nil {
		conn.Close()
		return fmt.Errorf("remote: join multicast group %s: %w", d.cfg.Group, err)
	}
	// The editor may run on this same host; without loopback we would
	// never see its broadcasts.
	if err := pconn.SetMulticastLoopback(true); err != nil {
		log.Printf("discovery: set multicast loopback: %v", err)
	}

	sendConn, err := net.DialUDP("udp4", nil, d.cfg.groupAddr())
	if err != nil {
		conn.Close()
		return fmt.Errorf("remote: open multicast send socket: %w", err)
	}

	d.conn = conn
	d.pconn = pconn
	d.sendConn = sendConn
	return nil
}

// Close releases the multicast sockets. Safe to call multiple times.
func (d *Discovery) Close() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
		d.pconn = nil
	}
	if d.sendConn != nil {
		d.sendConn.Close()
		d.sendConn = nil
	}
}

// Send broadcasts a message to the multicast group.
func (d *Discovery) Send(msg *Message) error {
	if d.sendConn == nil {
		return fmt.Errorf("remote: discovery not open")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("remote: marshal discovery message: %w", err)
	}
	if _, err := d.sendConn.Write(data); err != nil {
		return fmt.Errorf("remote: send discovery message: %w", err)
	}
	return nil
}

// Ping solicits pong responses from every editor on the group.
func (d *Discovery) Ping() error {
	msg, err := NewMessage(d.source, "", TypePing, nil)
	if err != nil {
		return err
	}
	return d.Send(msg)
}

// WaitForNode pings the group and collects responses until a matching node
// is seen or the timeout elapses. Returns ErrDiscoveryTimeout when nothing
// matched in time.
func (d *Discovery) WaitForNode(timeout time.Duration) (*NodeIdentity, error) {
	if err := d.Open(); err != nil {
		return nil, err
	}
	if err := d.Ping(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, BufferSize)

	for time.Now().Before(deadline) {
		d.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := d.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, fmt.Errorf("remote: read discovery socket: %w", err)
		}

		node, ok := d.handleDatagram(buf[:n])
		if ok {
			return node, nil
		}
	}

	return nil, ErrDiscoveryTimeout
}

// Subscribe returns a channel that receives every matching NodeIdentity
// observed after this call, for long-lived monitoring. The caller owns the
// read side; the channel is dropped when it would block.
func (d *Discovery) Subscribe() <-chan NodeIdentity {
	ch := make(chan NodeIdentity, 16)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

// Run pumps the multicast socket until the socket is closed, feeding
// subscribers. Intended for the continuous monitoring mode; WaitForNode
// does its own reads.
func (d *Discovery) Run() {
	buf := make([]byte, BufferSize)
	for {
		if d.conn == nil {
			return
		}
		d.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := d.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		d.handleDatagram(buf[:n])
	}
}

// handleDatagram decodes one datagram and applies the configured filters.
// Malformed datagrams and unrelated nodes are skipped. Returns the node
// identity when the datagram announced a matching editor.
func (d *Discovery) handleDatagram(data []byte) (*NodeIdentity, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if !msg.Valid() || msg.Type != TypePong {
		return nil, false
	}
	if msg.Source == "" || msg.Source == d.source {
		return nil, false
	}
	if d.cfg.ExpectedNodeID != "" && msg.Source != d.cfg.ExpectedNodeID {
		return nil, false
	}

	var pong PongData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &pong); err != nil {
			return nil, false
		}
	}
	if d.cfg.ProjectName != "" && pong.ProjectName != "" && pong.ProjectName != d.cfg.ProjectName {
		return nil, false
	}
	// Not every editor build reports its PID in the pong; a definitive
	// check happens over the command channel via VerifyPID.
	if d.cfg.ExpectedPID != 0 && pong.ProcessID != 0 && pong.ProcessID != d.cfg.ExpectedPID {
		return nil, false
	}

	node := NodeIdentity{
		NodeID:        msg.Source,
		ProcessID:     pong.ProcessID,
		ProjectName:   pong.ProjectName,
		EngineVersion: pong.EngineVersion,
	}

	d.mu.Lock()
	d.nodes[node.NodeID] = node
	subs := d.subs
	d.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- node:
		default:
		}
	}

	return &node, true
}

// Nodes returns a snapshot of every matching node seen so far.
func (d *Discovery) Nodes() []NodeIdentity {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]NodeIdentity, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, n)
	}
	return out
}
