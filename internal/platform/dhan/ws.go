package dhan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next frame or pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	handshakeTimeout = 15 * time.Second
)

// Credentials identify the account on the feed socket.
type Credentials struct {
	ClientID    string
	AccessToken string
}

// FeedURL builds the authenticated feed URL. It fails with
// domain.ErrMissingCredentials when either credential is empty.
func FeedURL(base string, creds Credentials, authType int) (string, error) {
	if creds.ClientID == "" || creds.AccessToken == "" {
		return "", domain.ErrMissingCredentials
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("dhan/ws: parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("version", "2")
	q.Set("token", creds.AccessToken)
	q.Set("clientId", creds.ClientID)
	q.Set("authType", strconv.Itoa(authType))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConnOptions tunes subscribe batching.
type ConnOptions struct {
	RequestCode int
	BatchSize   int
	// BatchPacing is the pause between consecutive subscribe messages.
	BatchPacing time.Duration
}

// Conn is one live connection to the broker feed. Reads must come from a
// single goroutine; writes are serialised internally.
type Conn struct {
	conn *websocket.Conn
	opts ConnOptions

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the feed socket at feedURL.
func Dial(ctx context.Context, feedURL string, opts ConnOptions) (*Conn, error) {
	if opts.RequestCode == 0 {
		opts.RequestCode = RequestSubscribeTicker
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	ws, _, err := dialer.DialContext(ctx, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dhan/ws: connect: %w", err)
	}

	c := &Conn{conn: ws, opts: opts, done: make(chan struct{})}

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go c.pingLoop()
	return c, nil
}

// Subscribe sends subscribe messages covering subs, at most BatchSize
// instruments each, pausing BatchPacing between messages.
func (c *Conn) Subscribe(ctx context.Context, subs []domain.Subscription) error {
	batches := BuildSubscribeBatches(subs, c.opts.RequestCode, c.opts.BatchSize)
	for i, req := range batches {
		if i > 0 && c.opts.BatchPacing > 0 {
			t := time.NewTimer(c.opts.BatchPacing)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-c.done:
				t.Stop()
				return fmt.Errorf("dhan/ws: %w", domain.ErrWSDisconnect)
			case <-t.C:
			}
		}
		if err := c.sendJSON(req); err != nil {
			return fmt.Errorf("dhan/ws: subscribe batch %d: %w", i, err)
		}
	}
	return nil
}

// ReadFrame blocks for the next data frame. Any data on the wire pushes the
// read deadline forward.
func (c *Conn) ReadFrame() (messageType int, data []byte, err error) {
	messageType, data, err = c.conn.ReadMessage()
	if err != nil {
		return 0, nil, fmt.Errorf("dhan/ws: read: %w", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	return messageType, data, nil
}

// Close sends a normal-closure frame and closes the socket. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop keeps the connection alive until Close.
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
