// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/luma/tvremote/transport"
)

// Dialer hands out Conns. Set Err to make the next dials fail.
type Dialer struct {
	mu    sync.Mutex
	Err   error
	conns []*Conn
	addrs []string
}

func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Dial(ctx context.Context, host string, port int) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.addrs = append(d.addrs, fmt.Sprintf("%s:%d", host, port))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d.Err != nil {
		return nil, d.Err
	}

	c := NewConn()
	d.conns = append(d.conns, c)

	return c, nil
}

func (d *Dialer) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Err = err
}

// Last returns the most recently dialed connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) == 0 {
		return nil
	}

	return d.conns[len(d.conns)-1]
}

func (d *Dialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.addrs...)
}

// Conn records writes and lets a test inject inbound events.
type Conn struct {
	mu      sync.Mutex
	writes  [][]byte
	closes  int
	closed  bool
	WriteFn func(data []byte) error

	events chan transport.Event
}

func NewConn() *Conn {
	return &Conn{events: make(chan transport.Event, 64)}
}

func (c *Conn) Events() <-chan transport.Event {
	return c.events
}

func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return transport.ErrClosed
	}

	if c.WriteFn != nil {
		if err := c.WriteFn(data); err != nil {
			return err
		}
	}

	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

// Close behaves like a local destroy, the event stream ends with EventClose.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closes++
	c.finish(nil)

	return nil
}

// Deliver injects inbound bytes.
func (c *Conn) Deliver(data []byte) {
	c.send(transport.Event{Type: transport.EventData, Data: data})
}

// Timeout injects an idle timeout.
func (c *Conn) Timeout() {
	c.send(transport.Event{Type: transport.EventTimeout})
}

// Fail simulates a transport error, followed by close.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finish(err)
}

// Hangup simulates the remote end closing the connection.
func (c *Conn) Hangup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finish(nil)
}

func (c *Conn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([][]byte(nil), c.writes...)
}

func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closes
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Conn) send(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.events <- ev
}

// finish must be called with mu held
func (c *Conn) finish(err error) {
	if c.closed {
		return
	}

	c.closed = true

	if err != nil {
		c.events <- transport.Event{Type: transport.EventError, Err: err}
	}

	c.events <- transport.Event{Type: transport.EventClose}
	close(c.events)
}

var _ transport.Dialer = (*Dialer)(nil)
var _ transport.Conn = (*Conn)(nil)
