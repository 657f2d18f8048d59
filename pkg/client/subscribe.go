package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/fanout"
)

// Subscription is a live event stream from the server.
type Subscription struct {
	conn   *websocket.Conn
	events chan fanout.Event

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe opens the websocket event channel. The first event received is
// the server's connected acknowledgement. The stream ends when ctx is done,
// [Subscription.Close] is called or the connection fails; Events is closed
// then and Err reports why.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, errors.Wrap(errors.FromStatus(resp.StatusCode), err, "subscribe: server returned %d", resp.StatusCode)
		}
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "subscribe")
	}

	s := &Subscription{
		conn:   conn,
		events: make(chan fanout.Event, 64),
		done:   make(chan struct{}),
	}
	go s.read()
	go func() {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			s.Close()
		case <-s.done:
		}
	}()
	c.logger.Debug("subscribed", "url", u.String())
	return s, nil
}

// Events delivers events in the order the server broadcast them.
func (s *Subscription) Events() <-chan fanout.Event { return s.events }

// Err returns the reason the stream ended, or nil while it is open or after
// a clean close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteMessage(websocket.CloseMessage, msg)
		err = s.conn.Close()
	})
	return err
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Subscription) read() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.Close()
					return
				}
				s.fail(errors.Wrap(errors.ErrCodeNetwork, err, "event stream"))
				s.Close()
			}
			return
		}

		var ev fanout.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.fail(errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode event"))
			s.Close()
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
