package fanout

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Defaults for [WebSocketOptions].
const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

var (
	// ErrSlowConsumer is returned by [WebSocketSubscriber.Send] when the
	// send queue is full.
	ErrSlowConsumer = errors.New("fanout: subscriber send queue full")

	// ErrSubscriberClosed is returned by [WebSocketSubscriber.Send] after the
	// connection has gone away.
	ErrSubscriberClosed = errors.New("fanout: subscriber closed")
)

// WebSocketOptions tunes a [WebSocketSubscriber]. Zero fields use the
// package defaults.
type WebSocketOptions struct {
	SendBuffer   int           // queued messages before the client counts as slow
	WriteTimeout time.Duration // deadline for each frame
	PingInterval time.Duration // keepalive period; the read deadline is twice this
	Logger       *log.Logger
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// WebSocketSubscriber adapts a websocket connection to [Subscriber].
//
// Send only enqueues; a writer goroutine drains the queue and sends periodic
// pings. When the queue is full Send fails and the hub drops the client, so a
// stalled browser tab never holds up a broadcast.
type WebSocketSubscriber struct {
	conn *websocket.Conn
	opts WebSocketOptions

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
}

// NewWebSocketSubscriber wraps conn and starts its writer goroutine. The
// caller should run [WebSocketSubscriber.ReadLoop] to notice the client
// going away.
func NewWebSocketSubscriber(conn *websocket.Conn, opts WebSocketOptions) *WebSocketSubscriber {
	opts = opts.withDefaults()
	w := &WebSocketSubscriber{
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
	w.writerWG.Add(1)
	go w.writeLoop()
	return w
}

// Send queues msg for delivery.
func (w *WebSocketSubscriber) Send(msg []byte) error {
	select {
	case <-w.done:
		return ErrSubscriberClosed
	default:
	}
	select {
	case w.send <- msg:
		return nil
	case <-w.done:
		return ErrSubscriberClosed
	default:
		return ErrSlowConsumer
	}
}

// Close stops the writer, which sends a close frame and closes the
// connection. It is safe to call more than once.
func (w *WebSocketSubscriber) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return nil
}

// Done is closed once the subscriber has been closed.
func (w *WebSocketSubscriber) Done() <-chan struct{} { return w.done }

// Wait blocks until the writer goroutine has exited.
func (w *WebSocketSubscriber) Wait() { w.writerWG.Wait() }

// ReadLoop reads and discards client frames until the connection fails or is
// closed, then closes the subscriber. Clients are not expected to send data;
// reading is how close frames and pongs are processed.
func (w *WebSocketSubscriber) ReadLoop() {
	defer w.Close()

	wait := 2 * w.opts.PingInterval
	w.conn.SetReadLimit(4096)
	w.conn.SetReadDeadline(time.Now().Add(wait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.opts.Logger.Debug("websocket read failed", "remote", w.conn.RemoteAddr(), "err", err)
			}
			return
		}
	}
}

func (w *WebSocketSubscriber) writeLoop() {
	defer w.writerWG.Done()
	defer w.conn.Close()

	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				w.opts.Logger.Debug("websocket write failed", "remote", w.conn.RemoteAddr(), "err", err)
				w.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(w.opts.WriteTimeout)
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				w.Close()
				return
			}
		case <-w.done:
			w.drain()
			deadline := time.Now().Add(w.opts.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			w.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

// drain flushes messages queued before Close so a shutdown does not cut off
// events that were already accepted.
func (w *WebSocketSubscriber) drain() {
	for {
		select {
		case msg := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
