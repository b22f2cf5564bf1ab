package common

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grafana/xk6-headless/api"
)

// fakeResource is a document served by fakeEngine.
type fakeResource struct {
	title    string
	redirect string
	fail     error
	// never keeps the load pending forever.
	never bool
	// delay is the number of pumps before the load completes.
	delay    int
	console  []api.ConsoleMessage
	requests []string
}

type fakeLoad struct {
	url  string
	wait int
}

// fakeEngine is a scripted api.Engine. Loads complete on Pump, after the
// delay of the resource.
type fakeEngine struct {
	resources map[string]fakeResource
	elements  map[string]*api.ElementInfo
	evaluate  func(script string) (json.RawMessage, error)
	// clickNavigates is loaded when the mouse button is released.
	clickNavigates string
	// frozen engines do not repaint after a resize.
	frozen bool
	// moveErr fails GoBack and GoForward.
	moveErr error
	// pumpPanic makes the next Pump panic.
	pumpPanic atomic.Bool

	d    api.EngineDelegate
	opts api.EngineOptions

	history []string
	idx     int
	pending *fakeLoad
	height  int64
	dirty   bool

	mu       sync.Mutex
	inputs   []api.InputEvent
	resizes  []int64
	blocked  []string
	sessions int
	closed   bool
	order    []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		resources: make(map[string]fakeResource),
		elements:  make(map[string]*api.ElementInfo),
		idx:       -1,
	}
}

func (e *fakeEngine) launcher() api.EngineLauncher {
	return api.EngineLauncherFunc(func(_ context.Context, opts api.EngineOptions, d api.EngineDelegate) (api.Engine, error) {
		e.d, e.opts, e.height = d, opts, opts.Height
		return e, nil
	})
}

func (e *fakeEngine) OpenSession(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions++
	return nil
}

func (e *fakeEngine) CloseSession(context.Context) error {
	e.history, e.idx, e.pending = nil, -1, nil
	return nil
}

func (e *fakeEngine) Navigate(_ context.Context, url string) error {
	if _, ok := e.resources[url]; !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	e.history = append(e.history[:e.idx+1], url)
	e.idx = len(e.history) - 1
	e.start(url)
	return nil
}

func (e *fakeEngine) start(url string) {
	e.d.OnLoadStatus(api.LoadStarted, nil)
	e.d.OnRequest(api.NetworkRequest{Method: "GET", URL: url, IsMainFrame: true})
	e.pending = &fakeLoad{url: url, wait: e.resources[url].delay}
}

func (e *fakeEngine) Reload(context.Context) error {
	e.start(e.history[e.idx])
	return nil
}

func (e *fakeEngine) GoBack(context.Context) error {
	if e.moveErr != nil {
		return e.moveErr
	}
	if e.idx <= 0 {
		return api.ErrNoHistory
	}
	e.idx--
	e.start(e.history[e.idx])
	return nil
}

func (e *fakeEngine) GoForward(context.Context) error {
	if e.moveErr != nil {
		return e.moveErr
	}
	if e.idx >= len(e.history)-1 {
		return api.ErrNoHistory
	}
	e.idx++
	e.start(e.history[e.idx])
	return nil
}

func (e *fakeEngine) Evaluate(_ context.Context, script string) (json.RawMessage, error) {
	if e.evaluate == nil {
		return json.RawMessage("null"), nil
	}
	return e.evaluate(script)
}

func (e *fakeEngine) QueryElement(_ context.Context, selector string) (*api.ElementInfo, error) {
	if selector == "!!" {
		return nil, fmt.Errorf("%w: %s", api.ErrInvalidSelector, selector)
	}
	el, ok := e.elements[selector]
	if !ok {
		return nil, nil
	}
	c := *el
	return &c, nil
}

func (e *fakeEngine) CaptureScreenshot(context.Context) ([]byte, error) {
	return []byte(fmt.Sprintf("png:%dx%d", e.opts.Width, e.height)), nil
}

func (e *fakeEngine) CaptureHTML(context.Context) (string, error) {
	if e.idx < 0 {
		return "<html></html>", nil
	}
	return fmt.Sprintf("<html><head><title>%s</title></head></html>", e.resources[e.history[e.idx]].title), nil
}

func (e *fakeEngine) DispatchInput(_ context.Context, ev api.InputEvent) error {
	e.mu.Lock()
	e.inputs = append(e.inputs, ev)
	e.mu.Unlock()

	e.dirty = true
	m, ok := ev.(api.MouseEvent)
	if ok && m.Type == api.MouseUp {
		e.record("click")
	}
	if ok && m.Type == api.MouseUp && e.clickNavigates != "" {
		e.history = append(e.history[:e.idx+1], e.clickNavigates)
		e.idx = len(e.history) - 1
		e.start(e.clickNavigates)
	}
	return nil
}

func (e *fakeEngine) Resize(_ context.Context, _, height int64) error {
	e.mu.Lock()
	e.resizes = append(e.resizes, height)
	e.mu.Unlock()

	e.height = height
	e.dirty = !e.frozen
	return nil
}

func (e *fakeEngine) Pump() error {
	if e.pumpPanic.CompareAndSwap(true, false) {
		panic("renderer crashed")
	}
	if e.dirty {
		e.dirty = false
		e.d.OnFrame()
	}
	if e.pending == nil {
		return nil
	}
	if e.pending.wait > 0 {
		e.pending.wait--
		return nil
	}

	url := e.pending.url
	res := e.resources[url]
	if res.never {
		return nil
	}
	e.pending = nil
	if res.fail != nil {
		e.d.OnLoadStatus(api.LoadFailed, res.fail)
		return nil
	}

	e.d.OnNavigated(url)
	if res.redirect != "" {
		url = res.redirect
		e.history[e.idx] = url
		res = e.resources[url]
		e.d.OnNavigated(url)
	}
	for _, r := range res.requests {
		if e.d.OnRequest(api.NetworkRequest{Method: "GET", URL: r}) {
			e.mu.Lock()
			e.blocked = append(e.blocked, r)
			e.mu.Unlock()
		}
	}
	for _, m := range res.console {
		e.d.OnConsoleMessage(m)
	}
	e.d.OnTitleChanged(res.title)
	e.d.OnLoadStatus(api.LoadComplete, nil)
	e.d.OnFrame()

	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) recordedInputs() []api.InputEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]api.InputEvent(nil), e.inputs...)
}

func (e *fakeEngine) recordedResizes() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.resizes...)
}

func (e *fakeEngine) recordedBlocked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.blocked...)
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// record appends op to the order in which the engine saw operations.
func (e *fakeEngine) record(op string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.order = append(e.order, op)
}

func (e *fakeEngine) recordedOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}
