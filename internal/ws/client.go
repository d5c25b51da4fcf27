package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edutrack/messaging/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

// bufPool pools bytes.Buffer for JSON encoding in the hot-path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client represents a single WebSocket connection and its live subscriptions.
// A connection watches at most one direct pair and at most one group at a
// time; a new subscribe replaces the old scope.
// Lifecycle: NewClient -> Start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan OutgoingMessage
	userID string

	// subMu guards the subscription scopes. Each scope has its own
	// generation counter, bumped on every change of that scope; in-flight
	// history loads carry the generation they were started under and are
	// discarded when it no longer matches (stale-response guard). The
	// counters are independent so resubscribing one scope cannot invalidate
	// a load in flight for the other.
	subMu    sync.Mutex
	dmPeer   string
	groupID  string
	dmGen    uint64
	groupGen uint64

	// done is used as a non-blocking guard in enqueue.
	done chan struct{}
	// cancel cancels the context passed to Start, triggering pump shutdown.
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	size := sendBufSize
	if hub.sendBuf > 0 {
		size = hub.sendBuf
	}
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan OutgoingMessage, size),
		userID: userID,
		done:   make(chan struct{}),
	}
}

// UserID returns the authenticated user this connection belongs to.
func (c *Client) UserID() string { return c.userID }

// beginSubscribe tears down the named scope and returns its new generation.
// The caller loads history under this generation and commits it afterwards.
// An empty scope tears down both (unsubscribe-all).
func (c *Client) beginSubscribe(scope string) uint64 {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	switch scope {
	case ScopeDirect:
		c.dmGen++
		c.dmPeer = ""
		return c.dmGen
	case ScopeGroup:
		c.groupGen++
		c.groupID = ""
		return c.groupGen
	default:
		c.dmGen++
		c.groupGen++
		c.dmPeer = ""
		c.groupID = ""
		return 0
	}
}

// commitSubscribe installs the scope and enqueues the history snapshot in one
// step, provided no newer subscribe of the SAME scope superseded gen in the
// meantime. Doing both under subMu keeps the snapshot ordered before any live
// event for the new scope.
func (c *Client) commitSubscribe(gen uint64, scope, id string, snapshot OutgoingMessage) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	switch scope {
	case ScopeDirect:
		if gen != c.dmGen {
			return false
		}
		c.dmPeer = id
	case ScopeGroup:
		if gen != c.groupGen {
			return false
		}
		c.groupID = id
	default:
		return false
	}
	c.enqueue(snapshot)
	return true
}

func (c *Client) watchingDirect(peerID string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.dmPeer != "" && c.dmPeer == peerID
}

func (c *Client) watchingGroup(groupID string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.groupID != "" && c.groupID == groupID
}

// enqueue hands a frame to the write pump without blocking. A client that
// cannot drain its buffer is closed (backpressure).
func (c *Client) enqueue(msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

// Start launches readPump and writePump goroutines with controlled lifecycle.
// ctx controls pump lifetime; cancel is stored for Close().
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		// Force both pumps to unblock (ReadMessage / WriteMessage will error).
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump reads messages from the WebSocket connection.
// Exits on read error (triggered by conn.Close from Close() or writePump exit).
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%s: %v", c.userID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%s: %v", c.userID, err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Errorf("ws unmarshal error user=%s: %v", c.userID, err)
			continue
		}

		c.hub.HandleMessage(ctx, c, msg)
	}
}

// writePump writes messages to the WebSocket connection.
// Exits on ctx cancellation, write error, or connection close.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Errorf("ws close message user=%s: %v", c.userID, err)
			}
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.userID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(msg); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws marshal error user=%s: %v", c.userID, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for WebSocket text messages.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.userID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
