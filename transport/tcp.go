package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type TCPDialer struct {
	opts Options
}

func NewTCPDialer(options Options) *TCPDialer {
	return &TCPDialer{opts: options.withDefaults()}
}

func (d *TCPDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: d.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	tcpConn := NewTCPConn(conn.(*net.TCPConn), d.opts, d.opts.Log.With(zap.String("addr", addr)))
	tcpConn.Start()

	return tcpConn, nil
}

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	conn *net.TCPConn
	opts Options

	writeQueue chan []byte
	events     chan Event

	// failure is the first error seen by either loop
	failMu  sync.Mutex
	failure error

	log *zap.Logger
}

func NewTCPConn(conn *net.TCPConn, options Options, log *zap.Logger) *TCPConn {
	ctx, cancel := context.WithCancel(context.Background())

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		opts:       options,
		writeQueue: make(chan []byte, options.WriteQueueSize),
		events:     make(chan Event, 255),
		log:        log,
	}
}

// Start runs the read and write loops. Once both have exited EventClose is
// sent and the events channel is closed.
func (t *TCPConn) Start() {
	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	go func() {
		t.loopWaiter.Wait()

		if err := t.getFailure(); err != nil {
			t.events <- Event{Type: EventError, Err: err}
		}

		t.events <- Event{Type: EventClose}
		close(t.events)
	}()
}

func (t *TCPConn) Events() <-chan Event {
	return t.events
}

func (t *TCPConn) Close() error {
	var err error

	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close()
	})

	return err
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")
	defer log.Debug("Read loop exited")

	// A read error stops writes too
	defer t.cancel()

	buf := make([]byte, t.opts.ReadBufferSize)

	for {
		if t.opts.IdleTimeout > 0 {
			if err := t.conn.SetReadDeadline(time.Now().Add(t.opts.IdleTimeout)); err != nil {
				t.fail(err)
				return
			}
		}

		n, err := t.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			if t.opts.Trace {
				log.Debug("Read", zap.Binary("data", data))
			}

			t.emit(Event{Type: EventData, Data: data})
		}

		if err == nil {
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && t.isRunning() {
			t.emit(Event{Type: EventTimeout})
			continue
		}

		if errors.Is(err, io.EOF) || !t.isRunning() || isClosedConnErr(err) {
			// Remote hung up or we closed the connection ourselves
			return
		}

		log.Warn("Failed to read from receiver", zap.Error(err))
		t.fail(err)
		return
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")
	defer log.Debug("Write loop exited")

	for {
		select {
		case <-t.ctx.Done():
			return

		case data := <-t.writeQueue:
			if t.opts.Trace {
				log.Debug("Write", zap.Binary("data", data))
			}

			if _, err := t.conn.Write(data); err != nil {
				if !t.isRunning() || isClosedConnErr(err) {
					return
				}

				log.Error("Failed to write from write queue", zap.Error(err))
				t.fail(err)

				// Unblock the read loop
				t.conn.Close()
				return
			}
		}
	}
}

// Write queues data for the write loop to write into the connection.
func (t *TCPConn) Write(ctx context.Context, data []byte) error {
	if !t.isRunning() {
		return ErrClosed
	}

	select {
	case t.writeQueue <- data:
		return nil

	case <-t.ctx.Done():
		return ErrClosed

	case <-ctx.Done():
		return ctx.Err()
	}
}

// emit drops events once Close has been called, the reader may have gone.
func (t *TCPConn) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.ctx.Done():
	}
}

func (t *TCPConn) fail(err error) {
	t.failMu.Lock()
	defer t.failMu.Unlock()

	if t.failure == nil {
		t.failure = err
	}
}

func (t *TCPConn) getFailure() error {
	t.failMu.Lock()
	defer t.failMu.Unlock()

	return t.failure
}

// isRunning returns true if Close has not been called
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		return false

	default:
		return true
	}
}

func isClosedConnErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

var _ Dialer = (*TCPDialer)(nil)
var _ Conn = (*TCPConn)(nil)
