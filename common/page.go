/*
 *
 * xk6-headless - a headless page automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/log"
)

// Ensure Page implements the api.Page interface.
var _ api.Page = &Page{}

// Page lifecycle states.
const (
	PageStateOpen int64 = iota
	PageStateClosing
	PageStateClosed
)

// Page is the handle of one browser session. Its methods can be called
// from any goroutine; they are run one at a time, in arrival order, by a
// worker goroutine that owns the engine.
type Page struct {
	id    string
	state int64
	opts  PageOptions

	cmds      *commandChannel
	done      chan struct{}
	closeOnce sync.Once

	keys    *keyInput
	metrics *pageMetrics
	logger  *log.Logger
}

// NewPage starts a worker, launches an engine with launcher on it and
// returns the handle once the engine is ready. The tracer and Prometheus
// registerer attached to ctx, if any, are used by the page.
func NewPage(ctx context.Context, launcher api.EngineLauncher, opts *PageOptions, logger *log.Logger) (*Page, error) {
	if logger == nil {
		logger = log.NullLogger()
	}
	if opts == nil {
		opts = NewPageOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, newError(ErrorKindInvalidArgument, "newPage", err, "")
	}
	keys, err := newKeyInput(opts.KeyboardLayout)
	if err != nil {
		return nil, newError(ErrorKindInvalidArgument, "newPage", err, "")
	}

	p := Page{
		id:      uuid.NewString(),
		state:   PageStateOpen,
		opts:    *opts,
		cmds:    newCommandChannel(),
		done:    make(chan struct{}),
		keys:    keys,
		metrics: newPageMetrics(GetRegisterer(ctx)),
		logger:  logger,
	}
	w := worker{
		ctx:     ctx,
		id:      p.id,
		opts:    &p.opts,
		logger:  logger,
		tracer:  GetTracer(ctx),
		metrics: p.metrics,
		cmds:    p.cmds,
		state:   newPageState(&p.opts),
		keys:    p.keys,
	}

	ready := make(chan error, 1)
	go w.run(launcher, ready, p.done)
	if err := <-ready; err != nil {
		<-p.done
		p.state = PageStateClosed
		return nil, newError(ErrorKindInit, "newPage", err, "")
	}
	logger.Debugf("Page:NewPage", "pid:%s viewport:%dx%d", p.id, p.opts.Width, p.opts.Height)

	return &p, nil
}

// ID returns the unique id of the page.
func (p *Page) ID() string { return p.id }

// Options returns a copy of the page options.
func (p *Page) Options() PageOptions { return p.opts }

// send queues a command and waits for its response.
func (p *Page) send(params commandParams) (payload, error) {
	cmd := newCommand(params)
	p.metrics.queueDepth.Inc()
	if err := p.cmds.enqueue(cmd); err != nil {
		p.metrics.queueDepth.Dec()
		return nil, err
	}

	select {
	case r := <-cmd.slot.ch:
		return r.payload, r.err
	case <-p.done:
	}
	// The worker fulfils or rejects every queued command before it exits.
	select {
	case r := <-cmd.slot.ch:
		return r.payload, r.err
	default:
		return nil, newError(ErrorKindChannelClosed, params.name(), nil, "worker exited")
	}
}

// call sends params and returns the payload of the type its command answers
// with.
func call[T payload](p *Page, params commandParams) (T, error) {
	var zero T
	if atomic.LoadInt64(&p.state) != PageStateOpen {
		return zero, newError(ErrorKindChannelClosed, params.name(), nil, "page is closed")
	}
	pl, err := p.send(params)
	if err != nil {
		return zero, err
	}
	v, ok := pl.(T)
	if !ok {
		return zero, newError(ErrorKindScript, params.name(), nil, "unexpected response %T", pl)
	}
	return v, nil
}

func invalid(op, format string, args ...any) error {
	return newError(ErrorKindInvalidArgument, op, nil, format, args...)
}

func checkSelector(op, selector string) error {
	if selector == "" {
		return invalid(op, "empty selector")
	}
	return nil
}

func checkTimeout(op string, d time.Duration) error {
	if d < 0 {
		return invalid(op, "negative duration %s", d)
	}
	return nil
}

func checkPoint(op string, xs ...float64) error {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return invalid(op, "coordinate %v is not finite", x)
		}
	}
	return nil
}

// Open creates the session if needed and navigates it to rawURL.
func (p *Page) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return newError(ErrorKindInvalidArgument, "open", err, "")
	}
	if u.Scheme == "" {
		return invalid("open", "url %q has no scheme", rawURL)
	}
	_, err = call[noPayload](p, openCmd{url: rawURL})
	return err
}

// Reload reloads the current page.
func (p *Page) Reload() error {
	_, err := call[noPayload](p, reloadCmd{})
	return err
}

// GoBack navigates to the previous history entry. It returns false when
// there is none.
func (p *Page) GoBack() (bool, error) {
	ok, err := call[boolPayload](p, goBackCmd{})
	return bool(ok), err
}

// GoForward navigates to the next history entry. It returns false when
// there is none.
func (p *Page) GoForward() (bool, error) {
	ok, err := call[boolPayload](p, goForwardCmd{})
	return bool(ok), err
}

// Reset closes the session and clears the page state. The page options
// are kept.
func (p *Page) Reset() error {
	_, err := call[noPayload](p, resetCmd{})
	return err
}

// Close stops the worker and the engine. Commands that are still queued
// fail with a channel closed error. Close can be called more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		atomic.StoreInt64(&p.state, PageStateClosing)
		if _, err := p.send(shutdownCmd{}); err != nil && !errors.Is(err, ErrChannelClosed) {
			p.logger.Warnf("Page:Close", "pid:%s %v", p.id, err)
		}
		p.cmds.close()
		<-p.done
		atomic.StoreInt64(&p.state, PageStateClosed)
		p.logger.Debugf("Page:Close", "pid:%s closed", p.id)
	})
	return nil
}

// Evaluate runs script in the page and returns its JSON encoded result.
func (p *Page) Evaluate(script string) (json.RawMessage, error) {
	if script == "" {
		return nil, invalid("evaluate", "empty script")
	}
	v, err := call[jsonPayload](p, evaluateCmd{script: script})
	return json.RawMessage(v), err
}

// Screenshot captures the page as PNG. The whole document is captured when
// the page was created with FullPage.
func (p *Page) Screenshot() ([]byte, error) {
	b, err := call[bytesPayload](p, screenshotCmd{fullPage: p.opts.FullPage})
	return []byte(b), err
}

// ScreenshotFullPage captures the whole document as PNG.
func (p *Page) ScreenshotFullPage() ([]byte, error) {
	b, err := call[bytesPayload](p, screenshotCmd{fullPage: true})
	return []byte(b), err
}

// HTML returns the serialized document.
func (p *Page) HTML() (string, error) {
	s, err := call[textPayload](p, htmlCmd{})
	return string(s), err
}

// URL returns the URL of the current history entry.
func (p *Page) URL() (string, error) {
	s, err := call[textPayload](p, urlCmd{})
	return string(s), err
}

// Title returns the document title.
func (p *Page) Title() (string, error) {
	s, err := call[textPayload](p, titleCmd{})
	return string(s), err
}

// ConsoleMessages returns the buffered console messages, oldest first.
func (p *Page) ConsoleMessages() ([]api.ConsoleMessage, error) {
	m, err := call[consolePayload](p, consoleLogCmd{})
	return []api.ConsoleMessage(m), err
}

// NetworkRequests returns the buffered requests, oldest first.
func (p *Page) NetworkRequests() ([]api.NetworkRequest, error) {
	r, err := call[networkPayload](p, networkLogCmd{})
	return []api.NetworkRequest(r), err
}

// WaitForSelector waits until an element matches selector.
func (p *Page) WaitForSelector(selector string, timeout time.Duration) error {
	if err := checkSelector("waitForSelector", selector); err != nil {
		return err
	}
	if err := checkTimeout("waitForSelector", timeout); err != nil {
		return err
	}
	_, err := call[noPayload](p, waitForSelectorCmd{selector: selector, timeout: timeout})
	return err
}

// WaitForCondition waits until script evaluates to a truthy value.
func (p *Page) WaitForCondition(script string, timeout time.Duration) error {
	if script == "" {
		return invalid("waitForCondition", "empty script")
	}
	if err := checkTimeout("waitForCondition", timeout); err != nil {
		return err
	}
	_, err := call[noPayload](p, waitForConditionCmd{script: script, timeout: timeout})
	return err
}

// Wait keeps the page running for d.
func (p *Page) Wait(d time.Duration) error {
	if err := checkTimeout("wait", d); err != nil {
		return err
	}
	_, err := call[noPayload](p, waitCmd{d: d})
	return err
}

// WaitForNavigation waits for the next main frame navigation to load.
func (p *Page) WaitForNavigation(timeout time.Duration) error {
	if err := checkTimeout("waitForNavigation", timeout); err != nil {
		return err
	}
	_, err := call[noPayload](p, waitForNavigationCmd{timeout: timeout})
	return err
}

// WaitForNetworkIdle waits until no request was issued for idle. It returns
// at once when the page never issued a request.
func (p *Page) WaitForNetworkIdle(idle, timeout time.Duration) error {
	if err := checkTimeout("waitForNetworkIdle", idle); err != nil {
		return err
	}
	if err := checkTimeout("waitForNetworkIdle", timeout); err != nil {
		return err
	}
	_, err := call[noPayload](p, waitForNetworkIdleCmd{idle: idle, timeout: timeout})
	return err
}

// Click clicks at x,y of the viewport.
func (p *Page) Click(x, y float64) error {
	if err := checkPoint("click", x, y); err != nil {
		return err
	}
	_, err := call[noPayload](p, clickAtCmd{x: x, y: y})
	return err
}

// ClickSelector clicks the center of the first element matching selector.
func (p *Page) ClickSelector(selector string) error {
	if err := checkSelector("clickSelector", selector); err != nil {
		return err
	}
	_, err := call[noPayload](p, clickSelectorCmd{selector: selector})
	return err
}

// TypeText types text into the focused element.
func (p *Page) TypeText(text string) error {
	_, err := call[noPayload](p, typeTextCmd{text: text})
	return err
}

// KeyPress presses and releases key, e.g. "Enter" or "a".
func (p *Page) KeyPress(key string) error {
	if err := p.keys.validate(key); err != nil {
		return newError(ErrorKindInvalidArgument, "keyPress", err, "")
	}
	_, err := call[noPayload](p, keyPressCmd{key: key})
	return err
}

// MouseMove moves the mouse to x,y of the viewport.
func (p *Page) MouseMove(x, y float64) error {
	if err := checkPoint("mouseMove", x, y); err != nil {
		return err
	}
	_, err := call[noPayload](p, mouseMoveCmd{x: x, y: y})
	return err
}

// Scroll scrolls by the given deltas. A positive deltaY scrolls down.
func (p *Page) Scroll(deltaX, deltaY float64) error {
	if err := checkPoint("scroll", deltaX, deltaY); err != nil {
		return err
	}
	_, err := call[noPayload](p, scrollByCmd{dx: deltaX, dy: deltaY})
	return err
}

// ScrollToSelector scrolls the first element matching selector into view.
func (p *Page) ScrollToSelector(selector string) error {
	if err := checkSelector("scrollToSelector", selector); err != nil {
		return err
	}
	_, err := call[noPayload](p, scrollToSelectorCmd{selector: selector})
	return err
}

// SelectOption selects the option with value of the <select> matching
// selector.
func (p *Page) SelectOption(selector, value string) error {
	if err := checkSelector("selectOption", selector); err != nil {
		return err
	}
	_, err := call[noPayload](p, selectOptionCmd{selector: selector, value: value})
	return err
}

// SetInputFiles sets the files of the file input matching selector.
func (p *Page) SetInputFiles(selector string, files []api.InputFile) error {
	if err := checkSelector("setInputFiles", selector); err != nil {
		return err
	}
	for i, f := range files {
		if f.Name == "" {
			return invalid("setInputFiles", "file %d has no name", i)
		}
	}
	_, err := call[noPayload](p, setInputFilesCmd{selector: selector, files: append([]api.InputFile(nil), files...)})
	return err
}

// Cookies returns the cookies visible to the document, as document.cookie
// does.
func (p *Page) Cookies() (string, error) {
	s, err := call[textPayload](p, cookiesCmd{})
	return string(s), err
}

// SetCookie sets a cookie using the document.cookie syntax.
func (p *Page) SetCookie(cookie string) error {
	if cookie == "" {
		return invalid("setCookie", "empty cookie")
	}
	_, err := call[noPayload](p, setCookieCmd{cookie: cookie})
	return err
}

// ClearCookies expires the cookies visible to the document.
func (p *Page) ClearCookies() error {
	_, err := call[noPayload](p, clearCookiesCmd{})
	return err
}

// BlockURLs replaces the blocked URL patterns. Requests whose URL contains
// one of the patterns fail.
func (p *Page) BlockURLs(patterns []string) error {
	_, err := call[noPayload](p, blockURLsCmd{patterns: append([]string(nil), patterns...)})
	return err
}

// ClearBlockedURLs removes the blocked URL patterns.
func (p *Page) ClearBlockedURLs() error {
	return p.BlockURLs(nil)
}

// ElementRect returns the bounding box of the first element matching
// selector.
func (p *Page) ElementRect(selector string) (api.ElementRect, error) {
	if err := checkSelector("elementRect", selector); err != nil {
		return api.ElementRect{}, err
	}
	r, err := call[rectPayload](p, elementRectCmd{selector: selector})
	return api.ElementRect(r), err
}

// ElementText returns the text content of the first element matching
// selector.
func (p *Page) ElementText(selector string) (string, error) {
	if err := checkSelector("elementText", selector); err != nil {
		return "", err
	}
	s, err := call[textPayload](p, elementTextCmd{selector: selector})
	return string(s), err
}

// ElementAttribute returns the value of the attribute name of the first
// element matching selector. ok is false when the element has no such
// attribute.
func (p *Page) ElementAttribute(selector, name string) (string, bool, error) {
	if err := checkSelector("elementAttribute", selector); err != nil {
		return "", false, err
	}
	if name == "" {
		return "", false, invalid("elementAttribute", "empty attribute name")
	}
	a, err := call[attrPayload](p, elementAttrCmd{selector: selector, attr: name})
	return a.value, a.ok, err
}

// ElementHTML returns the outer HTML of the first element matching
// selector.
func (p *Page) ElementHTML(selector string) (string, error) {
	if err := checkSelector("elementHTML", selector); err != nil {
		return "", err
	}
	s, err := call[textPayload](p, elementHTMLCmd{selector: selector})
	return string(s), err
}
