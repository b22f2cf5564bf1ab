// Package cdp is a Chrome DevTools Protocol client.
package cdp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/pkg/errors"

	"github.com/grafana/xk6-headless/cdp/domains"
	"github.com/grafana/xk6-headless/log"
)

var _ cdp.Executor = &Client{}

// Client manages CDP communication with the browser.
type Client struct {
	logger *log.Logger

	Browser   domains.Browser
	Target    domains.Target
	Page      domains.Page
	Runtime   domains.Runtime
	Input     domains.Input
	Emulation domains.Emulation
	Fetch     domains.Fetch
	DOM       domains.DOM

	conn      *connection
	wsURL     string
	msgID     int64
	sendCh    chan *cdproto.Message
	msgSubsMu sync.Mutex
	msgSubs   map[int64]chan *cdproto.Message
	watcher   *eventWatcher

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// NewClient returns a new Client that is unusable until a CDP connection is
// established with Connect().
func NewClient(logger *log.Logger) *Client {
	c := &Client{
		logger:  logger,
		sendCh:  make(chan *cdproto.Message, 32),
		msgSubs: make(map[int64]chan *cdproto.Message),
		watcher: newEventWatcher(logger),
		done:    make(chan struct{}),
	}

	c.Browser = domains.NewBrowser(c)
	c.Target = domains.NewTarget(c)
	c.Page = domains.NewPage(c)
	c.Runtime = domains.NewRuntime(c)
	c.Input = domains.NewInput(c)
	c.Emulation = domains.NewEmulation(c)
	c.Fetch = domains.NewFetch(c)
	c.DOM = domains.NewDOM(c)

	return c
}

// Connect to the browser that exposes a CDP API at wsURL.
func (c *Client) Connect(ctx context.Context, wsURL string) (err error) {
	if c.wsURL != "" {
		return fmt.Errorf("CDP connection already established to %q", c.wsURL)
	}

	if c.conn, err = newConnection(ctx, wsURL, c.logger); err != nil {
		return err
	}
	c.logger.Debugf("cdp", "established CDP connection to %q", wsURL)
	c.wsURL = wsURL

	go c.recvLoop()
	go c.sendLoop()

	return nil
}

// Done is closed once the connection is closed or lost.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, or nil while it is up.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close disconnects from the browser's CDP API.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		close(c.done)
		c.watcher.close()
		if c.conn != nil {
			if cerr := c.conn.Close(); cerr != nil {
				c.logger.Debugf("Client:shutdown", "wsURL:%q closing: %v", c.wsURL, cerr)
			}
		}
	})
}

// Execute implements cdp.Executor and performs a synchronous send and
// receive. The command goes to the session set with WithSessionID.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	id := atomic.AddInt64(&c.msgID, 1)
	sid := GetSessionID(ctx)
	c.logger.Debugf("Client:Execute", "sid:%q id:%d method:%q", sid, id, method)

	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return errors.Wrapf(err, "encoding %s params", method)
		}
	}
	msg := &cdproto.Message{
		ID:        id,
		SessionID: target.SessionID(sid),
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}

	// Only one response carries the message ID.
	recvCh := make(chan *cdproto.Message, 1)
	c.msgSubsMu.Lock()
	c.msgSubs[id] = recvCh
	c.msgSubsMu.Unlock()
	defer func() {
		c.msgSubsMu.Lock()
		delete(c.msgSubs, id)
		c.msgSubsMu.Unlock()
	}()

	select {
	case c.sendCh <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.Err()
	}

	select {
	case msg := <-recvCh:
		switch {
		case msg.Error != nil:
			return errors.Wrap(msg.Error, method)
		case res != nil:
			return errors.Wrapf(easyjson.Unmarshal(msg.Result, res), "decoding %s result", method)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.Err()
	}
}

// Subscribe returns a channel that receives the given events of the session
// set in ctx with WithSessionID, or the browser events when there is none.
// The returned function unsubscribes and closes the channel, which is also
// closed when the connection ends.
func (c *Client) Subscribe(ctx context.Context, events ...cdproto.MethodType) (<-chan *Event, func()) {
	return c.watcher.subscribe(GetSessionID(ctx), events...)
}

func (c *Client) recvLoop() {
	for {
		msg, err := c.conn.readMessage()
		var wsErr wsIOError
		switch {
		case errors.As(err, &wsErr):
			if !isClosedError(err) {
				c.logger.Debugf("Client:recvLoop", "wsURL:%q ioErr:%v", c.wsURL, err)
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		case err != nil:
			c.logger.Errorf("Client:recvLoop", "wsURL:%q %v", c.wsURL, err)
			continue
		}

		switch {
		case msg.Method != "":
			evt, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				// Events added after the cdproto release are not known.
				c.logger.Debugf("Client:recvLoop", "unmarshalling CDP event %s: %v", msg.Method, err)
				continue
			}
			c.watcher.notify(&Event{
				Name:      msg.Method,
				Data:      evt,
				SessionID: string(msg.SessionID),
			})
		case msg.ID > 0:
			c.msgSubsMu.Lock()
			ch, ok := c.msgSubs[msg.ID]
			c.msgSubsMu.Unlock()
			if !ok {
				c.logger.Debugf("Client:recvLoop", "no caller waits for message %d", msg.ID)
				continue
			}
			ch <- msg
		default:
			c.logger.Errorf("Client:recvLoop", "ignoring malformed incoming CDP message (missing id or method): %#v", msg)
		}
	}
}

func (c *Client) sendLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.writeMessage(msg); err != nil {
				c.logger.Debugf("Client:sendLoop", "wsURL:%q id:%d err:%v", c.wsURL, msg.ID, err)
				c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
				return
			}
		case <-c.done:
			return
		}
	}
}
