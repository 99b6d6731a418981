package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Channel is the command connection to one editor instance. The topology
// follows the editor's protocol: the client listens on an ephemeral TCP
// port, announces it in an open_connection broadcast, and the editor dials
// back. One logical message may span any number of TCP segments; messages
// are framed by JSON document completeness.
//
// Close may be called from a different goroutine than the one blocked in
// ReadMessage; the mutex guards the fields and the blocked read returns
// with an error once the connection is closed under it.
type Channel struct {
	mu      sync.Mutex
	ln      net.Listener
	conn    net.Conn
	pending []byte
}

// ListenCommand opens the local listener for the command channel and
// returns it together with the port the editor should dial.
func ListenCommand(ip string) (*Channel, int, error) {
	if ip == "" {
		ip = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(ip, "0"))
	if err != nil {
		return nil, 0, fmt.Errorf("remote: listen command channel: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return &Channel{ln: ln}, port, nil
}

// Accept waits for the editor to dial the advertised port.
func (c *Channel) Accept(timeout time.Duration) error {
	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()
	if ln == nil {
		return errors.New("remote: command channel not listening")
	}
	if tl, ok := ln.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(timeout))
	}
	conn, err := ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return fmt.Errorf("%w: editor did not open the command connection", ErrTimeout)
		}
		return fmt.Errorf("remote: accept command connection: %w", err)
	}

	c.mu.Lock()
	if c.ln == nil {
		// Closed while we were blocked in Accept.
		c.mu.Unlock()
		conn.Close()
		return errors.New("remote: command channel closed")
	}
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Connected reports whether the editor side of the channel is open.
func (c *Channel) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one message to the editor.
func (c *Channel) Send(msg *Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("remote: marshal command message: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("remote: write command channel: %w", err)
	}
	return nil
}

// ReadMessage reads until one complete message has been reassembled or the
// deadline passes. Partial reads are accumulated across calls; bytes
// following a complete document are kept for the next message. Returns
// ErrMalformedStream when the stream carries bytes that cannot frame a
// message; the channel must be closed after that.
func (c *Channel) ReadMessage(deadline time.Time) (*Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	buf := make([]byte, BufferSize)
	for {
		msg, ok, err := c.takePending()
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}

		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		conn.SetReadDeadline(deadline)
		n, err := conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.pending = append(c.pending, buf[:n]...)
			c.mu.Unlock()
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("remote: read command channel: %w", err)
		}
	}
}

// takePending attempts to decode the first complete JSON document from the
// accumulated bytes. On success the consumed prefix is dropped; bytes that
// can never frame a message surface as ErrMalformedStream.
func (c *Channel) takePending() (*Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil, false, nil
	}
	dec := json.NewDecoder(bytes.NewReader(c.pending))
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, nil
		}
		c.pending = nil
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedStream, err)
	}
	rest := c.pending[dec.InputOffset():]
	c.pending = append([]byte(nil), rest...)
	return &msg, true, nil
}

// Close shuts the connection and the listener down. Safe to call multiple
// times, before Accept, and concurrently with a blocked ReadMessage.
func (c *Channel) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	conn, ln := c.conn, c.ln
	c.conn = nil
	c.ln = nil
	c.pending = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if ln != nil {
		ln.Close()
	}
}
