package chromium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	cdpcdp "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/cdp"
	"github.com/grafana/xk6-headless/common/js"
	"github.com/grafana/xk6-headless/log"
)

const (
	// commandTimeout bounds the commands the engine sends on its own, e.g.
	// to continue intercepted requests.
	commandTimeout = 10 * time.Second
	// navigateTimeout bounds the navigation commands. Page loads are timed
	// by the caller.
	navigateTimeout = 5 * time.Minute
	closeTimeout    = 5 * time.Second

	errorPagePrefix = "chrome-error://"
)

var _ api.Engine = &Engine{}

// sessionEvents are the events of the page session drained by Pump.
var sessionEvents = []cdproto.MethodType{ //nolint:gochecknoglobals
	cdproto.EventPageFrameStartedLoading,
	cdproto.EventPageFrameNavigated,
	cdproto.EventPageNavigatedWithinDocument,
	cdproto.EventPageLoadEventFired,
	cdproto.EventRuntimeConsoleAPICalled,
	cdproto.EventFetchRequestPaused,
}

// navResult is the outcome of a navigation command run in the background.
type navResult struct {
	gen          int
	url          string
	errorText    string
	sameDocument bool
	err          error
}

// Engine is an api.Engine driving a page of a Chromium browser over CDP.
// The session is a browser context with a single page target.
//
// CDP events are queued by the client and handed to the delegate by Pump.
// Navigation commands run in the background since Chromium answers them
// only once the main request was let through, which happens in Pump.
type Engine struct {
	ctx    context.Context
	logger *log.Logger
	d      api.EngineDelegate
	opts   api.EngineOptions

	client *cdp.Client
	proc   *browserProcess
	done   chan struct{}
	closed bool

	// session
	gen          int
	bctxID       string
	targetID     string
	sessionID    string
	events       <-chan *cdp.Event
	targets      <-chan *cdp.Event
	unsubscribe  []func()
	navs         chan navResult
	navsInFlight int

	mainFrame cdpcdp.FrameID
	title     string
	loading   bool
	failed    bool
	errorPage bool
	dirty     bool
}

func newEngine(
	ctx context.Context, client *cdp.Client, proc *browserProcess,
	opts api.EngineOptions, d api.EngineDelegate, logger *log.Logger,
) *Engine {
	return &Engine{
		ctx:    ctx,
		logger: logger,
		d:      d,
		opts:   opts,
		client: client,
		proc:   proc,
		done:   make(chan struct{}),
		navs:   make(chan navResult, 16),
	}
}

func (e *Engine) check() error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", api.ErrEngineFault)
	}
	select {
	case <-e.client.Done():
		return fmt.Errorf("%w: browser connection lost: %v", api.ErrEngineFault, e.client.Err())
	default:
	}
	return nil
}

func (e *Engine) checkSession() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.sessionID == "" {
		return errors.New("no session")
	}
	return nil
}

// session routes the commands sent with ctx to the page target.
func (e *Engine) session(ctx context.Context) context.Context {
	return cdp.WithSessionID(ctx, e.sessionID)
}

// OpenSession creates a browser context and a blank page in it.
func (e *Engine) OpenSession(ctx context.Context) (err error) {
	if err := e.check(); err != nil {
		return err
	}
	if e.sessionID != "" {
		return errors.New("session already open")
	}

	bctxID, err := e.client.Target.CreateBrowserContext(ctx, false)
	if err != nil {
		return err
	}
	e.bctxID = bctxID
	defer func() {
		if err != nil {
			e.closeSession(ctx)
		}
	}()

	// Events are subscribed to before attaching so that none is missed.
	if e.targetID, err = e.client.Target.CreateTarget(ctx, "about:blank", bctxID); err != nil {
		return err
	}
	e.targets, _ = e.subscribe(context.Background(), cdproto.EventTargetTargetInfoChanged)
	if e.sessionID, err = e.client.Target.AttachToTarget(ctx, e.targetID); err != nil {
		return err
	}
	e.gen++
	e.events, _ = e.subscribe(e.session(context.Background()), sessionEvents...)
	dialogs, _ := e.subscribe(e.session(context.Background()), cdproto.EventPageJavascriptDialogOpening)
	go e.dismissDialogs(e.sessionID, dialogs)

	sctx := e.session(ctx)
	for _, enable := range []func(context.Context) error{
		e.client.Page.Enable,
		e.client.Runtime.Enable,
		e.client.Fetch.Enable,
	} {
		if err := enable(sctx); err != nil {
			return err
		}
	}
	if err := e.client.Emulation.SetViewport(sctx, e.opts.Width, e.opts.Height); err != nil {
		return err
	}
	if e.opts.UserAgent != "" {
		if err := e.client.Emulation.SetUserAgent(sctx, e.opts.UserAgent); err != nil {
			return err
		}
	}
	frame, err := e.client.Page.MainFrame(sctx)
	if err != nil {
		return err
	}
	e.mainFrame = frame.ID
	e.logger.Debugf("Engine:OpenSession", "bctxid:%s tid:%s sid:%s", e.bctxID, e.targetID, e.sessionID)

	return nil
}

func (e *Engine) subscribe(ctx context.Context, events ...cdproto.MethodType) (<-chan *cdp.Event, func()) {
	ch, cancel := e.client.Subscribe(ctx, events...)
	e.unsubscribe = append(e.unsubscribe, cancel)
	return ch, cancel
}

// dismissDialogs dismisses the dialogs of a session until it ends. A page
// showing a dialog does not answer any other command.
func (e *Engine) dismissDialogs(sessionID string, dialogs <-chan *cdp.Event) {
	for evt := range dialogs {
		ev, ok := evt.Data.(*page.EventJavascriptDialogOpening)
		if !ok {
			continue
		}
		e.logger.Debugf("Engine:dismissDialogs", "sid:%s %s: %q", sessionID, ev.Type, ev.Message)

		ctx, cancel := context.WithTimeout(cdp.WithSessionID(context.Background(), sessionID), commandTimeout)
		if err := e.client.Page.HandleJavaScriptDialog(ctx, false); err != nil {
			e.logger.Debugf("Engine:dismissDialogs", "sid:%s %v", sessionID, err)
		}
		cancel()
	}
}

// CloseSession disposes of the browser context, its page and its storage.
func (e *Engine) CloseSession(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.closeSession(ctx)
}

func (e *Engine) closeSession(ctx context.Context) error {
	for _, cancel := range e.unsubscribe {
		cancel()
	}
	var err error
	if e.bctxID != "" {
		err = e.client.Target.DisposeBrowserContext(ctx, e.bctxID)
	}

	e.unsubscribe = nil
	e.events, e.targets = nil, nil
	e.bctxID, e.targetID, e.sessionID = "", "", ""
	e.navsInFlight = 0
	e.mainFrame, e.title = "", ""
	e.loading, e.failed, e.errorPage, e.dirty = false, false, false, false

	return err
}

// beginNav reports the start of a load requested by the caller.
func (e *Engine) beginNav() {
	e.loading = true
	e.failed = false
	e.errorPage = false
	e.d.OnLoadStatus(api.LoadStarted, nil)
}

// goNav runs a navigation command in the background. Its outcome is
// handled by Pump.
func (e *Engine) goNav(url string, nav func(ctx context.Context) (errorText string, sameDocument bool, err error)) {
	e.navsInFlight++
	gen, sid := e.gen, e.sessionID

	go func() {
		ctx, cancel := context.WithTimeout(cdp.WithSessionID(context.Background(), sid), navigateTimeout)
		defer cancel()

		r := navResult{gen: gen, url: url}
		r.errorText, r.sameDocument, r.err = nav(ctx)
		select {
		case e.navs <- r:
		case <-e.done:
		}
	}()
}

// Navigate starts loading url in the page.
func (e *Engine) Navigate(_ context.Context, url string) error {
	if err := e.checkSession(); err != nil {
		return err
	}
	e.beginNav()
	e.goNav(url, func(ctx context.Context) (string, bool, error) {
		return e.client.Page.Navigate(ctx, url)
	})

	return nil
}

// Reload reloads the current document.
func (e *Engine) Reload(_ context.Context) error {
	if err := e.checkSession(); err != nil {
		return err
	}
	e.beginNav()
	e.goNav("", func(ctx context.Context) (string, bool, error) {
		return "", false, e.client.Page.Reload(ctx)
	})

	return nil
}

// GoBack navigates to the previous history entry.
func (e *Engine) GoBack(ctx context.Context) error {
	return e.move(ctx, -1)
}

// GoForward navigates to the next history entry.
func (e *Engine) GoForward(ctx context.Context) error {
	return e.move(ctx, 1)
}

func (e *Engine) move(ctx context.Context, delta int64) error {
	if err := e.checkSession(); err != nil {
		return err
	}
	current, entries, err := e.client.Page.NavigationHistory(e.session(ctx))
	if err != nil {
		return err
	}
	i := current + delta
	if i < 0 || i >= int64(len(entries)) {
		return api.ErrNoHistory
	}

	entry := entries[i]
	// Moving between fragments of a document loads nothing.
	sameDocument := current >= 0 && current < int64(len(entries)) &&
		stripFragment(entries[current].URL) == stripFragment(entry.URL)

	e.beginNav()
	e.goNav(entry.URL, func(ctx context.Context) (string, bool, error) {
		return "", sameDocument, e.client.Page.NavigateToHistoryEntry(ctx, entry.ID)
	})

	return nil
}

func stripFragment(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		return url[:i]
	}
	return url
}

// Evaluate runs script in the main frame. A script still running when ctx
// is done is terminated.
func (e *Engine) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	if err := e.checkSession(); err != nil {
		return nil, err
	}

	res, exc, err := e.client.Runtime.Evaluate(e.session(ctx), script)
	if err != nil {
		if ctx.Err() != nil {
			e.terminateExecution()
			return nil, fmt.Errorf("script interrupted: %w", ctx.Err())
		}
		return nil, err
	}
	if exc != nil {
		return nil, &api.ScriptException{Message: exceptionMessage(exc)}
	}

	return remoteValue(res), nil
}

func (e *Engine) terminateExecution() {
	ctx, cancel := context.WithTimeout(e.session(context.Background()), commandTimeout)
	defer cancel()
	if err := e.client.Runtime.TerminateExecution(ctx); err != nil {
		e.logger.Debugf("Engine:terminateExecution", "sid:%s %v", e.sessionID, err)
	}
}

// exceptionMessage returns the first line of the description of the thrown
// value, e.g. "Error: boom", or the thrown value itself.
func exceptionMessage(exc *cdpruntime.ExceptionDetails) string {
	if o := exc.Exception; o != nil {
		if o.Description != "" {
			msg, _, _ := strings.Cut(o.Description, "\n")
			return msg
		}
		if len(o.Value) > 0 {
			var s string
			if err := json.Unmarshal(o.Value, &s); err == nil {
				return s
			}
			return string(o.Value)
		}
	}
	return exc.Text
}

// remoteValue returns the JSON value of a by-value remote object. Values
// without a JSON form, undefined included, are returned as null.
func remoteValue(o *cdpruntime.RemoteObject) json.RawMessage {
	if o == nil || o.Type == cdpruntime.TypeUndefined || o.UnserializableValue != "" || len(o.Value) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(o.Value)
}

// QueryElement describes the first element matching selector.
func (e *Engine) QueryElement(ctx context.Context, selector string) (*api.ElementInfo, error) {
	script, err := js.Call(js.ElementInfoScript, selector)
	if err != nil {
		return nil, err
	}
	v, err := e.Evaluate(ctx, script)
	if err != nil {
		return nil, err
	}
	return decodeElementInfo(v, selector)
}

func decodeElementInfo(v json.RawMessage, selector string) (*api.ElementInfo, error) {
	var r struct {
		api.ElementInfo
		Invalid *string `json:"invalid"`
	}
	if string(v) == "null" {
		return nil, nil //nolint:nilnil
	}
	if err := json.Unmarshal(v, &r); err != nil {
		return nil, fmt.Errorf("decoding element of %q: %w", selector, err)
	}
	if r.Invalid != nil {
		return nil, fmt.Errorf("%w: %q: %s", api.ErrInvalidSelector, selector, *r.Invalid)
	}
	return &r.ElementInfo, nil
}

// CaptureScreenshot encodes the viewport as PNG.
func (e *Engine) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	if err := e.checkSession(); err != nil {
		return nil, err
	}
	return e.client.Page.CaptureScreenshot(e.session(ctx))
}

// CaptureHTML serializes the document of the main frame.
func (e *Engine) CaptureHTML(ctx context.Context) (string, error) {
	if err := e.checkSession(); err != nil {
		return "", err
	}
	return e.client.DOM.DocumentHTML(e.session(ctx))
}

// DispatchInput sends an input event to the page.
func (e *Engine) DispatchInput(ctx context.Context, ev api.InputEvent) error {
	if err := e.checkSession(); err != nil {
		return err
	}
	sctx := e.session(ctx)

	var err error
	switch ev := ev.(type) {
	case api.MouseEvent:
		typ, button := input.MouseMoved, input.None
		switch ev.Type {
		case api.MouseDown:
			typ, button = input.MousePressed, input.Left
		case api.MouseUp:
			typ, button = input.MouseReleased, input.Left
		}
		err = e.client.Input.DispatchMouseEvent(sctx, typ, ev.X, ev.Y, button)
	case api.WheelEvent:
		err = e.client.Input.DispatchWheelEvent(sctx, ev.X, ev.Y, ev.DeltaX, ev.DeltaY)
	case api.KeyEvent:
		typ := input.KeyDown
		if ev.Type == api.KeyUp {
			typ = input.KeyUp
		}
		err = e.client.Input.DispatchKeyEvent(sctx, typ, ev.Key, ev.Code, ev.Text, ev.KeyCode)
	case api.TextEvent:
		err = e.client.Input.InsertText(sctx, ev.Text)
	default:
		err = fmt.Errorf("unsupported input event %T", ev)
	}
	if err != nil {
		return err
	}
	e.dirty = true

	return nil
}

// Resize changes the size of the viewport.
func (e *Engine) Resize(ctx context.Context, width, height int64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d", width, height)
	}
	if err := e.checkSession(); err != nil {
		return err
	}
	if err := e.client.Emulation.SetViewport(e.session(ctx), width, height); err != nil {
		return err
	}
	e.opts.Width, e.opts.Height = width, height
	e.dirty = true

	return nil
}

// Pump hands the queued CDP events to the delegate. It returns early once
// a load completed or failed so that the caller sees the load status before
// the events that follow it.
func (e *Engine) Pump() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.sessionID == "" {
		return nil
	}

	for {
		select {
		case r := <-e.navs:
			if e.onNavResult(r) {
				return nil
			}
		case evt, ok := <-e.events:
			if !ok {
				return e.check()
			}
			if e.onEvent(evt) {
				return nil
			}
		case evt, ok := <-e.targets:
			if !ok {
				return e.check()
			}
			e.onTargetEvent(evt)
		default:
			if e.dirty {
				e.dirty = false
				e.d.OnFrame()
			}
			return nil
		}
	}
}

// onNavResult handles the outcome of a navigation command and reports
// whether it ended the load.
func (e *Engine) onNavResult(r navResult) bool {
	if r.gen != e.gen {
		return false
	}
	e.navsInFlight--

	switch {
	case r.err != nil:
		return e.fail(r.err)
	case r.errorText != "":
		return e.fail(fmt.Errorf("%s at %s", r.errorText, r.url))
	case r.sameDocument && e.loading:
		e.loading = false
		e.dirty = true
		e.d.OnLoadStatus(api.LoadComplete, nil)
		return true
	}
	return false
}

func (e *Engine) fail(err error) bool {
	if !e.loading {
		e.logger.Debugf("Engine:fail", "sid:%s no load in progress: %v", e.sessionID, err)
		return false
	}
	e.loading = false
	e.failed = true
	e.d.OnLoadStatus(api.LoadFailed, err)
	return true
}

// onEvent handles an event of the page session and reports whether it
// ended the load.
func (e *Engine) onEvent(evt *cdp.Event) bool {
	switch ev := evt.Data.(type) {
	case *page.EventFrameStartedLoading:
		// Loads started by the page itself, e.g. by a link.
		if ev.FrameID != e.mainFrame || e.loading || e.failed {
			return false
		}
		e.loading = true
		e.d.OnLoadStatus(api.LoadStarted, nil)
	case *page.EventFrameNavigated:
		return e.onFrameNavigated(ev.Frame)
	case *page.EventNavigatedWithinDocument:
		if ev.FrameID == e.mainFrame {
			e.d.OnNavigated(ev.URL)
		}
	case *page.EventLoadEventFired:
		if e.errorPage || !e.loading {
			return false
		}
		e.loading = false
		e.dirty = true
		e.refreshTitle()
		e.d.OnLoadStatus(api.LoadComplete, nil)
		return true
	case *cdpruntime.EventConsoleAPICalled:
		e.d.OnConsoleMessage(api.ConsoleMessage{
			Level:   consoleLevel(ev.Type),
			Message: consoleText(ev),
		})
	case *fetch.EventRequestPaused:
		e.onRequestPaused(ev)
	}
	return false
}

func (e *Engine) onFrameNavigated(f *cdpcdp.Frame) bool {
	if f == nil || f.ParentID != "" {
		return false
	}
	e.mainFrame = f.ID
	e.dirty = true

	// Failed loads commit an error page. The failure itself is reported
	// by the navigation command when there is one.
	if strings.HasPrefix(f.URL, errorPagePrefix) {
		e.errorPage = true
		if e.navsInFlight == 0 {
			return e.fail(errors.New("navigation failed"))
		}
		return false
	}

	e.errorPage = false
	if e.failed {
		e.failed = false
		if !e.loading {
			e.loading = true
			e.d.OnLoadStatus(api.LoadStarted, nil)
		}
	}
	e.d.OnNavigated(f.URL + f.URLFragment)

	return false
}

func (e *Engine) onTargetEvent(evt *cdp.Event) {
	ev, ok := evt.Data.(*target.EventTargetInfoChanged)
	if !ok || ev.TargetInfo == nil || string(ev.TargetInfo.TargetID) != e.targetID {
		return
	}
	e.refreshTitle()
}

// refreshTitle reads the document title. Target infos report the URL as
// the title of untitled documents.
func (e *Engine) refreshTitle() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, exc, err := e.client.Runtime.Evaluate(e.session(ctx), "document.title")
	if err != nil || exc != nil {
		e.logger.Debugf("Engine:refreshTitle", "sid:%s err:%v exception:%v", e.sessionID, err, exc != nil)
		return
	}
	var title string
	if err := json.Unmarshal(remoteValue(res), &title); err != nil {
		return
	}
	if title != e.title {
		e.title = title
		e.d.OnTitleChanged(title)
	}
}

func (e *Engine) onRequestPaused(ev *fetch.EventRequestPaused) {
	req := ev.Request
	if req == nil {
		return
	}
	block := e.d.OnRequest(api.NetworkRequest{
		Method:      req.Method,
		URL:         req.URL + req.URLFragment,
		IsMainFrame: ev.ResourceType == network.ResourceTypeDocument && ev.FrameID == e.mainFrame,
	})

	ctx, cancel := context.WithTimeout(e.session(context.Background()), commandTimeout)
	defer cancel()
	var err error
	if block {
		err = e.client.Fetch.BlockRequest(ctx, ev.RequestID)
	} else {
		err = e.client.Fetch.ContinueRequest(ctx, ev.RequestID)
	}
	if err != nil {
		// The request may be gone with its frame.
		e.logger.Debugf("Engine:onRequestPaused", "sid:%s %s %q block:%t: %v", e.sessionID, req.Method, req.URL, block, err)
	}
}

func consoleLevel(t cdpruntime.APIType) string {
	switch t {
	case cdpruntime.APITypeWarning:
		return "warn"
	case cdpruntime.APITypeLog, cdpruntime.APITypeInfo, cdpruntime.APITypeError, cdpruntime.APITypeDebug:
		return string(t)
	}
	return "log"
}

// consoleText joins the arguments of a console call the way the console
// prints them.
func consoleText(ev *cdpruntime.EventConsoleAPICalled) string {
	args := make([]string, 0, len(ev.Args))
	for _, o := range ev.Args {
		args = append(args, remoteObjectText(o))
	}
	return strings.Join(args, " ")
}

func remoteObjectText(o *cdpruntime.RemoteObject) string {
	switch {
	case o.Type == cdpruntime.TypeUndefined:
		return "undefined"
	case o.UnserializableValue != "":
		return string(o.UnserializableValue)
	case o.Type == cdpruntime.TypeString:
		var s string
		if err := json.Unmarshal(o.Value, &s); err == nil {
			return s
		}
	case len(o.Value) > 0 && (o.Type != cdpruntime.TypeObject || o.Subtype == ""):
		return string(o.Value)
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}

// Close closes the browser and waits for its process to exit.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)
	for _, cancel := range e.unsubscribe {
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	select {
	case <-e.client.Done():
	default:
		if err := e.client.Browser.Close(ctx); err != nil {
			e.logger.Debugf("Engine:Close", "closing browser: %v", err)
		}
	}
	_ = e.client.Close()
	if e.proc != nil {
		e.proc.terminate()
	}

	return nil
}
