// Package sim is an in-process api.Engine. It parses documents with
// x/net/html, runs their scripts with goja and lays them out with fixed
// metrics, which is enough to drive pages without a browser.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/log"
)

// DefaultUserAgent is used when the engine options carry none.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) xk6-headless-sim/1.0"

// fetchTimeout bounds a single document or script fetch.
const fetchTimeout = 30 * time.Second

type loadKind int

const (
	loadNew loadKind = iota
	loadHistory
	loadReload
)

type loadStage int

const (
	stageFetch loadStage = iota
	stageParse
	stageComplete
)

// load is a navigation in progress. It advances one stage per pump.
type load struct {
	url   string
	kind  loadKind
	stage loadStage
	host  *host
}

type cookie struct {
	host string
	// domain cookies are sent to the subdomains of host too.
	domain bool
	*http.Cookie
}

var _ api.Engine = &Engine{}

// Engine is the simulated engine. Like every api.Engine it must only be used
// from the goroutine that launched it.
type Engine struct {
	ctx    context.Context
	web    *Web
	logger *log.Logger
	d      api.EngineDelegate

	width, height int64
	ua            string

	session bool
	closed  bool
	page    *host
	pending *load
	entries []string
	idx     int
	cookies []*cookie
	dirty   bool
}

// NewLauncher returns a launcher of engines loading documents from web.
func NewLauncher(web *Web, logger *log.Logger) api.EngineLauncher {
	if logger == nil {
		logger = log.NullLogger()
	}
	return api.EngineLauncherFunc(func(ctx context.Context, opts api.EngineOptions, d api.EngineDelegate) (api.Engine, error) {
		if web == nil {
			return nil, errors.New("sim: no web to load documents from")
		}
		if opts.Width <= 0 || opts.Height <= 0 {
			return nil, fmt.Errorf("sim: invalid viewport %dx%d", opts.Width, opts.Height)
		}
		logger.Debugf("sim:launch", "viewport:%dx%d", opts.Width, opts.Height)
		return &Engine{
			ctx:    ctx,
			web:    web,
			logger: logger,
			d:      d,
			width:  opts.Width,
			height: opts.Height,
			ua:     opts.UserAgent,
			idx:    -1,
		}, nil
	})
}

func (e *Engine) userAgent() string {
	if e.ua == "" {
		return DefaultUserAgent
	}
	return e.ua
}

func (e *Engine) check() error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", api.ErrEngineFault)
	}
	if !e.session {
		return errors.New("no session")
	}
	return nil
}

// OpenSession implements api.Engine. The session starts on about:blank.
func (e *Engine) OpenSession(context.Context) error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", api.ErrEngineFault)
	}
	if e.session {
		return nil
	}
	h, err := e.blank()
	if err != nil {
		return err
	}
	e.session, e.page = true, h
	return nil
}

// CloseSession implements api.Engine. It drops the document, the history and
// the cookies.
func (e *Engine) CloseSession(context.Context) error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", api.ErrEngineFault)
	}
	e.session = false
	e.page, e.pending = nil, nil
	e.entries, e.idx = nil, -1
	e.cookies = nil
	e.dirty = false
	return nil
}

func (e *Engine) blank() (*host, error) {
	u, _ := url.Parse("about:blank")
	doc, err := newDocument(u, "", true, e.width, e.height)
	if err != nil {
		return nil, err
	}
	return newHost(e, doc)
}

// Navigate implements api.Engine.
func (e *Engine) Navigate(_ context.Context, rawURL string) error {
	if err := e.check(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("net::ERR_INVALID_URL at %s", rawURL)
	}
	e.start(u.String(), loadNew)
	return nil
}

// Reload implements api.Engine.
func (e *Engine) Reload(context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	if e.idx < 0 {
		return api.ErrNoHistory
	}
	e.start(e.entries[e.idx], loadReload)
	return nil
}

// GoBack implements api.Engine.
func (e *Engine) GoBack(context.Context) error {
	return e.move(-1)
}

// GoForward implements api.Engine.
func (e *Engine) GoForward(context.Context) error {
	return e.move(1)
}

func (e *Engine) move(delta int) error {
	if err := e.check(); err != nil {
		return err
	}
	i := e.idx + delta
	if e.idx < 0 || i < 0 || i >= len(e.entries) {
		return api.ErrNoHistory
	}
	e.idx = i
	e.start(e.entries[i], loadHistory)
	return nil
}

// start begins loading rawURL. A load in progress is abandoned.
func (e *Engine) start(rawURL string, kind loadKind) {
	e.logger.Debugf("sim:start", "url:%q kind:%d", rawURL, kind)
	e.d.OnLoadStatus(api.LoadStarted, nil)
	if e.d.OnRequest(api.NetworkRequest{Method: http.MethodGet, URL: rawURL, IsMainFrame: true}) {
		e.d.OnLoadStatus(api.LoadFailed, fmt.Errorf("net::ERR_BLOCKED_BY_CLIENT at %s", rawURL))
		return
	}
	e.pending = &load{url: rawURL, kind: kind}
}

// request reports a subresource request and tells whether it may proceed.
func (e *Engine) request(rawURL string) bool {
	return !e.d.OnRequest(api.NetworkRequest{Method: http.MethodGet, URL: rawURL})
}

// Pump implements api.Engine. It advances the pending load by one stage,
// runs the due timers and reports a frame when the document changed.
func (e *Engine) Pump() error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", api.ErrEngineFault)
	}
	if !e.session {
		return nil
	}
	if l := e.pending; l != nil {
		if err := e.advance(l); err != nil {
			return err
		}
	}
	if e.page != nil {
		e.page.runTimers(time.Now())
	}
	if e.dirty {
		e.dirty = false
		e.d.OnFrame()
	}
	return nil
}

func (e *Engine) advance(l *load) error {
	switch l.stage {
	case stageFetch:
		ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
		resp, err := e.web.fetch(ctx, l.url, e.userAgent())
		cancel()
		if err != nil {
			e.fail(l, err)
			return nil
		}
		u, err := url.Parse(resp.url)
		if err != nil {
			e.fail(l, err)
			return nil
		}
		doc, err := newDocument(u, resp.body, resp.isHTML(), e.width, e.height)
		if err != nil {
			e.fail(l, err)
			return nil
		}
		h, err := newHost(e, doc)
		if err != nil {
			return err
		}

		final := normalizeURL(resp.url)
		e.commit(l, final)
		l.host, l.stage = h, stageParse
		e.page = h
		e.dirty = true
		e.d.OnNavigated(final)
		e.d.OnTitleChanged(doc.title())

	case stageParse:
		l.host.runScripts(e.ctx)
		if e.pending != l {
			return nil
		}
		l.host.readyState = "interactive"
		e.d.OnTitleChanged(l.host.doc.title())
		l.host.dispatch(l.host.doc.root, l.host.newEvent("DOMContentLoaded", true, false))
		if e.pending == l {
			l.stage = stageComplete
		}

	case stageComplete:
		l.host.readyState = "complete"
		l.host.dispatch(nil, l.host.newEvent("load", false, false))
		if e.pending != l {
			return nil
		}
		e.pending = nil
		e.dirty = true
		e.d.OnLoadStatus(api.LoadComplete, nil)
	}
	return nil
}

func (e *Engine) fail(l *load, err error) {
	if e.pending == l {
		e.pending = nil
	}
	e.logger.Debugf("sim:load", "url:%q err:%v", l.url, err)
	e.d.OnLoadStatus(api.LoadFailed, err)
}

// commit records the committed URL in the engine history.
func (e *Engine) commit(l *load, final string) {
	switch {
	case l.kind == loadNew || e.idx < 0:
		e.entries = append(e.entries[:e.idx+1], final)
		e.idx = len(e.entries) - 1
	default:
		e.entries[e.idx] = final
	}
}

func (e *Engine) current() (*host, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if e.page == nil {
		return nil, errors.New("no document")
	}
	return e.page, nil
}

// Evaluate implements api.Engine.
func (e *Engine) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	h, err := e.current()
	if err != nil {
		return nil, err
	}
	return h.evaluate(ctx, script)
}

// QueryElement implements api.Engine.
func (e *Engine) QueryElement(_ context.Context, selector string) (*api.ElementInfo, error) {
	h, err := e.current()
	if err != nil {
		return nil, err
	}
	n, err := h.doc.queryOne(nil, selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", api.ErrInvalidSelector, selector, err)
	}
	if n == nil {
		return nil, nil
	}
	return h.doc.elementInfo(n), nil
}

// CaptureScreenshot implements api.Engine.
func (e *Engine) CaptureScreenshot(context.Context) ([]byte, error) {
	h, err := e.current()
	if err != nil {
		return nil, err
	}
	return render(h.doc)
}

// CaptureHTML implements api.Engine.
func (e *Engine) CaptureHTML(context.Context) (string, error) {
	h, err := e.current()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for c := h.doc.root.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(outerHTML(c))
	}
	return sb.String(), nil
}

// DispatchInput implements api.Engine.
func (e *Engine) DispatchInput(_ context.Context, ev api.InputEvent) error {
	h, err := e.current()
	if err != nil {
		return err
	}
	return h.input(ev)
}

// Resize implements api.Engine.
func (e *Engine) Resize(_ context.Context, width, height int64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d", width, height)
	}
	e.width, e.height = width, height
	if e.page != nil {
		e.page.doc.resize(width, height)
		e.page.dispatch(nil, e.page.newEvent("resize", false, false))
		e.dirty = true
	}
	return nil
}

// Close implements api.Engine.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.session = false
	e.page, e.pending = nil, nil
	e.logger.Debugf("sim:close", "engine closed")
	return nil
}

// cookieHeader returns the cookies visible to u as a Cookie header value.
func (e *Engine) cookieHeader(u *url.URL) string {
	now := time.Now()
	var parts []string
	for _, c := range e.cookies {
		if c.matches(u) && (c.Expires.IsZero() || c.Expires.After(now)) {
			parts = append(parts, c.Name+"="+c.Value)
		}
	}
	return strings.Join(parts, "; ")
}

// setCookie stores the cookie of a Set-Cookie line for u. Lines that do not
// parse are ignored, as browsers do.
func (e *Engine) setCookie(u *url.URL, line string) {
	hc, err := http.ParseSetCookie(line)
	if err != nil || u.Hostname() == "" {
		e.logger.Debugf("sim:cookie", "ignoring cookie %q: %v", line, err)
		return
	}
	c := &cookie{host: u.Hostname(), Cookie: hc}
	if d := strings.TrimPrefix(strings.ToLower(hc.Domain), "."); d != "" {
		if c.host != d && !strings.HasSuffix(c.host, "."+d) {
			return
		}
		c.host, c.domain = d, true
	}
	if c.Path == "" || !strings.HasPrefix(c.Path, "/") {
		c.Path = "/"
	}

	kept := e.cookies[:0]
	for _, o := range e.cookies {
		if o.Name != c.Name || o.host != c.host || o.Path != c.Path {
			kept = append(kept, o)
		}
	}
	e.cookies = kept

	expired := hc.MaxAge < 0 || (!hc.Expires.IsZero() && !hc.Expires.After(time.Now()))
	if !expired {
		e.cookies = append(e.cookies, c)
	}
}

func (c *cookie) matches(u *url.URL) bool {
	host := u.Hostname()
	if host != c.host && !(c.domain && strings.HasSuffix(host, "."+c.host)) {
		return false
	}
	if c.Secure && u.Scheme != "https" {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return strings.HasPrefix(path, c.Path)
}
