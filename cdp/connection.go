package cdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"github.com/grafana/xk6-headless/log"
)

const (
	handshakeTimeout = 10 * time.Second
	// DevTools messages carrying screenshots and documents are large.
	wsBufferSize = 1 << 20
)

// ErrClosed is returned by the calls made on a closed connection.
var ErrClosed = errors.New("cdp connection closed")

// wsIOError marks the errors coming from the websocket itself.
type wsIOError struct {
	err error
}

func (e wsIOError) Error() string { return e.err.Error() }
func (e wsIOError) Unwrap() error { return e.err }

// connection is a websocket to a DevTools endpoint. Reads and writes may
// happen concurrently but each of them from a single goroutine.
type connection struct {
	ws     *websocket.Conn
	wsURL  string
	logger *log.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConnection(ctx context.Context, wsURL string, logger *log.Logger) (*connection, error) {
	wd := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   wsBufferSize,
		WriteBufferSize:  wsBufferSize,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", wsURL, err)
	}

	return &connection{ws: ws, wsURL: wsURL, logger: logger}, nil
}

// readMessage blocks until the next message arrives.
func (c *connection) readMessage() (*cdproto.Message, error) {
	_, buf, err := c.ws.ReadMessage()
	if err != nil {
		return nil, wsIOError{err}
	}

	var msg cdproto.Message
	lexer := jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&lexer)
	if err := lexer.Error(); err != nil {
		return nil, fmt.Errorf("decoding CDP message %q: %w", buf, err)
	}
	c.logger.Tracef("connection:readMessage", "wsURL:%q <- %s", c.wsURL, buf)

	return &msg, nil
}

func (c *connection) writeMessage(msg *cdproto.Message) error {
	var w jwriter.Writer
	msg.MarshalEasyJSON(&w)
	if w.Error != nil {
		return fmt.Errorf("encoding CDP message %d: %w", msg.ID, w.Error)
	}
	buf, err := w.BuildBytes()
	if err != nil {
		return fmt.Errorf("encoding CDP message %d: %w", msg.ID, err)
	}
	c.logger.Tracef("connection:writeMessage", "wsURL:%q -> %s", c.wsURL, buf)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, buf); err != nil {
		return wsIOError{err}
	}
	return nil
}

// isClosedError tells whether err reports an orderly end of the connection.
func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// Close sends a close frame and closes the socket.
func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
