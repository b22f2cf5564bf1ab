package sim

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/grafana/xk6-headless/api"
)

//go:embed prelude.js
var prelude string

// host is the script environment of one document: a goja runtime with the
// window, document and DOM objects bridged onto the parsed tree.
type host struct {
	e   *Engine
	vm  *goja.Runtime
	doc *document

	window *goja.Object
	nodes  map[*html.Node]*goja.Object
	objs   map[*goja.Object]*html.Node
	// listeners are keyed by node; nil is the window.
	listeners map[*html.Node]map[string][]goja.Value
	handlers  map[*html.Node]map[string]goja.Callable
	files     map[*html.Node]goja.Value
	timers    *timers
	pressed   *html.Node

	stringify   goja.Callable
	createEvent goja.Callable
	readyState  string
}

func newHost(e *Engine, doc *document) (*host, error) {
	h := &host{
		e:          e,
		vm:         goja.New(),
		doc:        doc,
		nodes:      make(map[*html.Node]*goja.Object),
		objs:       make(map[*goja.Object]*html.Node),
		listeners:  make(map[*html.Node]map[string][]goja.Value),
		handlers:   make(map[*html.Node]map[string]goja.Callable),
		files:      make(map[*html.Node]goja.Value),
		timers:     newTimers(),
		readyState: "loading",
	}
	if _, err := h.vm.RunScript("prelude.js", prelude); err != nil {
		return nil, fmt.Errorf("%w: running prelude: %w", api.ErrEngineFault, err)
	}

	var ok bool
	if h.stringify, ok = goja.AssertFunction(h.vm.Get("JSON").ToObject(h.vm).Get("stringify")); !ok {
		return nil, fmt.Errorf("%w: JSON.stringify is not a function", api.ErrEngineFault)
	}
	if h.createEvent, ok = goja.AssertFunction(h.vm.Get("__createEvent")); !ok {
		return nil, fmt.Errorf("%w: event constructor missing", api.ErrEngineFault)
	}

	h.window = h.vm.GlobalObject()
	h.initWindow()
	h.initConsole()
	h.initTimers()

	return h, nil
}

func (h *host) initWindow() {
	w := h.window
	must(w.Set("window", w))
	must(w.Set("self", w))
	must(w.Set("document", h.newDocumentObject()))
	must(w.Set("location", h.newLocation()))
	must(w.Set("navigator", map[string]any{
		"userAgent": h.e.userAgent(),
		"language":  "en-US",
		"languages": []string{"en-US", "en"},
		"webdriver": false,
	}))

	h.accessor(w, "innerWidth", func() goja.Value { return h.vm.ToValue(h.doc.width) }, nil)
	h.accessor(w, "innerHeight", func() goja.Value { return h.vm.ToValue(h.doc.height) }, nil)
	h.accessor(w, "scrollX", func() goja.Value { return h.vm.ToValue(h.doc.scrollX) }, nil)
	h.accessor(w, "scrollY", func() goja.Value { return h.vm.ToValue(h.doc.scrollY) }, nil)
	h.accessor(w, "pageYOffset", func() goja.Value { return h.vm.ToValue(h.doc.scrollY) }, nil)

	must(w.Set("scrollTo", func(c goja.FunctionCall) goja.Value {
		x, y := h.scrollArgs(c)
		h.scroll(x, y)
		return goja.Undefined()
	}))
	must(w.Set("scrollBy", func(c goja.FunctionCall) goja.Value {
		x, y := h.scrollArgs(c)
		h.scroll(h.doc.scrollX+x, h.doc.scrollY+y)
		return goja.Undefined()
	}))

	// Dialogs are dismissed as soon as they open.
	must(w.Set("alert", func(c goja.FunctionCall) goja.Value {
		h.e.logger.Debugf("sim:dialog", "alert %q dismissed", c.Argument(0).String())
		return goja.Undefined()
	}))
	must(w.Set("confirm", func(c goja.FunctionCall) goja.Value {
		h.e.logger.Debugf("sim:dialog", "confirm %q dismissed", c.Argument(0).String())
		return h.vm.ToValue(false)
	}))
	must(w.Set("prompt", func(c goja.FunctionCall) goja.Value {
		h.e.logger.Debugf("sim:dialog", "prompt %q dismissed", c.Argument(0).String())
		return goja.Null()
	}))

	must(w.Set("atob", func(c goja.FunctionCall) goja.Value {
		s := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
				return -1
			}
			return r
		}, c.Argument(0).String())
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(s)
		}
		if err != nil {
			panic(h.vm.NewTypeError("atob: invalid base64 input"))
		}
		return h.vm.ToValue(latin1(b))
	}))
	must(w.Set("btoa", func(c goja.FunctionCall) goja.Value {
		s := c.Argument(0).String()
		b := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				panic(h.vm.NewTypeError("btoa: character out of range"))
			}
			b = append(b, byte(r))
		}
		return h.vm.ToValue(base64.StdEncoding.EncodeToString(b))
	}))

	h.eventTarget(w, nil)
}

func (h *host) initConsole() {
	console := h.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		level := level
		must(console.Set(level, func(c goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(c.Arguments))
			for _, a := range c.Arguments {
				parts = append(parts, h.format(a))
			}
			h.e.d.OnConsoleMessage(api.ConsoleMessage{Level: level, Message: strings.Join(parts, " ")})
			return goja.Undefined()
		}))
	}
	must(h.window.Set("console", console))
}

// format renders a console argument: strings as is, other values as JSON
// when they can be encoded.
func (h *host) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if _, ok := v.Export().(string); ok {
		return v.String()
	}
	if _, ok := goja.AssertFunction(v); ok {
		return v.String()
	}
	if obj, ok := v.(*goja.Object); ok {
		if s, err := h.stringify(goja.Undefined(), obj); err == nil && !goja.IsUndefined(s) {
			return s.String()
		}
	}
	return v.String()
}

func (h *host) initTimers() {
	set := func(repeat bool) func(goja.FunctionCall) goja.Value {
		return func(c goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(c.Argument(0))
			if !ok {
				src := c.Argument(0).String()
				fn = func(goja.Value, ...goja.Value) (goja.Value, error) {
					return h.vm.RunString(src)
				}
			}
			delay := time.Duration(c.Argument(1).ToInteger()) * time.Millisecond
			var args []goja.Value
			if len(c.Arguments) > 2 {
				args = c.Arguments[2:]
			}
			return h.vm.ToValue(h.timers.add(fn, delay, repeat, args))
		}
	}
	clear := func(c goja.FunctionCall) goja.Value {
		h.timers.cancel(c.Argument(0).ToInteger())
		return goja.Undefined()
	}

	must(h.window.Set("setTimeout", set(false)))
	must(h.window.Set("setInterval", set(true)))
	must(h.window.Set("clearTimeout", clear))
	must(h.window.Set("clearInterval", clear))
	must(h.window.Set("requestAnimationFrame", func(c goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(c.Argument(0))
		if !ok {
			panic(h.vm.NewTypeError("requestAnimationFrame: callback is not a function"))
		}
		return h.vm.ToValue(h.timers.add(fn, 16*time.Millisecond, false, []goja.Value{h.vm.ToValue(0)}))
	}))
	must(h.window.Set("cancelAnimationFrame", clear))
}

// runTimers runs the callbacks due at now.
func (h *host) runTimers(now time.Time) {
	for _, tm := range h.timers.due(now) {
		if _, err := tm.fn(goja.Undefined(), tm.args...); err != nil {
			h.uncaught(err)
		}
	}
}

func (h *host) newDocumentObject() *goja.Object {
	d := h.vm.NewObject()
	h.nodes[h.doc.root] = d
	h.objs[d] = h.doc.root

	must(d.Set("nodeType", 9))
	must(d.Set("nodeName", "#document"))
	h.accessor(d, "documentElement", func() goja.Value { return h.wrap(h.doc.documentElement()) }, nil)
	h.accessor(d, "body", func() goja.Value { return h.wrap(h.doc.body()) }, nil)
	h.accessor(d, "head", func() goja.Value { return h.wrap(h.doc.head()) }, nil)
	h.accessor(d, "activeElement", func() goja.Value {
		if h.doc.focus != nil {
			return h.wrap(h.doc.focus)
		}
		return h.wrap(h.doc.body())
	}, nil)
	h.accessor(d, "readyState", func() goja.Value { return h.vm.ToValue(h.readyState) }, nil)
	h.accessor(d, "URL", func() goja.Value { return h.vm.ToValue(h.doc.url.String()) }, nil)
	h.accessor(d, "location", func() goja.Value { return h.window.Get("location") }, func(v goja.Value) {
		h.jsNavigate(v.String())
	})
	h.accessor(d, "title",
		func() goja.Value { return h.vm.ToValue(h.doc.title()) },
		func(v goja.Value) {
			h.doc.setTitle(v.String())
			h.e.d.OnTitleChanged(h.doc.title())
		})
	h.accessor(d, "cookie",
		func() goja.Value { return h.vm.ToValue(h.e.cookieHeader(h.doc.url)) },
		func(v goja.Value) { h.e.setCookie(h.doc.url, v.String()) })

	must(d.Set("querySelector", func(c goja.FunctionCall) goja.Value {
		return h.querySelector(nil, c.Argument(0).String())
	}))
	must(d.Set("querySelectorAll", func(c goja.FunctionCall) goja.Value {
		return h.querySelectorAll(nil, c.Argument(0).String())
	}))
	must(d.Set("getElementById", func(c goja.FunctionCall) goja.Value {
		id := c.Argument(0).String()
		var found *html.Node
		walkElements(h.doc.root, func(n *html.Node) bool {
			if v, _ := attr(n, "id"); v == id {
				found = n
				return false
			}
			return true
		})
		return h.wrap(found)
	}))
	must(d.Set("getElementsByTagName", func(c goja.FunctionCall) goja.Value {
		return h.querySelectorAll(nil, c.Argument(0).String())
	}))
	must(d.Set("createElement", func(c goja.FunctionCall) goja.Value {
		tag := strings.ToLower(c.Argument(0).String())
		return h.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	}))
	must(d.Set("createTextNode", func(c goja.FunctionCall) goja.Value {
		return h.wrap(&html.Node{Type: html.TextNode, Data: c.Argument(0).String()})
	}))
	must(d.Set("hasFocus", func(goja.FunctionCall) goja.Value { return h.vm.ToValue(true) }))

	h.eventTarget(d, h.doc.root)
	return d
}

func (h *host) newLocation() *goja.Object {
	l := h.vm.NewObject()
	h.accessor(l, "href", func() goja.Value { return h.vm.ToValue(h.doc.url.String()) }, func(v goja.Value) {
		h.jsNavigate(v.String())
	})
	for name, get := range map[string]func() string{
		"protocol": func() string { return h.doc.url.Scheme + ":" },
		"host":     func() string { return h.doc.url.Host },
		"hostname": func() string { return h.doc.url.Hostname() },
		"port":     func() string { return h.doc.url.Port() },
		"pathname": func() string { return h.doc.url.EscapedPath() },
		"search": func() string {
			if h.doc.url.RawQuery == "" {
				return ""
			}
			return "?" + h.doc.url.RawQuery
		},
		"hash": func() string {
			if h.doc.url.Fragment == "" {
				return ""
			}
			return "#" + h.doc.url.Fragment
		},
		"origin": func() string { return h.doc.url.Scheme + "://" + h.doc.url.Host },
	} {
		get := get
		h.accessor(l, name, func() goja.Value { return h.vm.ToValue(get()) }, nil)
	}
	must(l.Set("assign", func(c goja.FunctionCall) goja.Value {
		h.jsNavigate(c.Argument(0).String())
		return goja.Undefined()
	}))
	must(l.Set("replace", func(c goja.FunctionCall) goja.Value {
		h.jsNavigate(c.Argument(0).String())
		return goja.Undefined()
	}))
	must(l.Set("reload", func(goja.FunctionCall) goja.Value {
		h.jsNavigate(h.doc.url.String())
		return goja.Undefined()
	}))
	must(l.Set("toString", func(goja.FunctionCall) goja.Value { return h.vm.ToValue(h.doc.url.String()) }))
	return l
}

// navigate starts a navigation requested by the page. The document is
// fetched on a later pump.
func (h *host) navigate(ref string) error {
	const scheme = "javascript:"
	if s := strings.TrimSpace(ref); len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme) {
		if _, err := h.vm.RunString(s[len(scheme):]); err != nil {
			h.uncaught(err)
		}
		return nil
	}
	u, err := h.doc.resolve(ref)
	if err != nil {
		return fmt.Errorf("invalid URL %q", ref)
	}
	h.e.start(u, loadNew)
	return nil
}

// jsNavigate is navigate for script callers: errors are thrown.
func (h *host) jsNavigate(ref string) {
	if err := h.navigate(ref); err != nil {
		panic(h.vm.NewTypeError(err.Error()))
	}
}

// accessor defines a non enumerable accessor property on o.
func (h *host) accessor(o *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	var getter, setter goja.Value
	if get != nil {
		getter = h.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	}
	if set != nil {
		setter = h.vm.ToValue(func(c goja.FunctionCall) goja.Value {
			set(c.Argument(0))
			return goja.Undefined()
		})
	}
	must(o.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE))
}

func (h *host) scrollArgs(c goja.FunctionCall) (x, y float64) {
	if o, ok := c.Argument(0).(*goja.Object); ok && len(c.Arguments) == 1 {
		return o.Get("left").ToFloat(), o.Get("top").ToFloat()
	}
	return c.Argument(0).ToFloat(), c.Argument(1).ToFloat()
}

func (h *host) scroll(x, y float64) {
	h.doc.scrollTo(x, y)
	h.e.dirty = true
	h.dispatch(h.doc.root, h.newEvent("scroll", false, false))
}

// runScripts runs the scripts of the document in order and reports the
// requests of its subresources.
func (h *host) runScripts(ctx context.Context) {
	var scripts, resources []*html.Node
	walkElements(h.doc.root, func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Script:
			scripts = append(scripts, n)
		case atom.Img, atom.Iframe:
			if hasAttr(n, "src") {
				resources = append(resources, n)
			}
		case atom.Link:
			if hasAttr(n, "href") && strings.EqualFold(attrOr(n, "rel", ""), "stylesheet") {
				resources = append(resources, n)
			}
		}
		return true
	})

	for _, n := range scripts {
		if t := strings.ToLower(attrOr(n, "type", "")); t != "" && t != "text/javascript" && t != "application/javascript" {
			continue
		}
		name, src := h.doc.url.String(), textContent(n)
		if ref, ok := attr(n, "src"); ok {
			u, err := h.doc.resolve(ref)
			if err != nil || !h.e.request(u) {
				continue
			}
			fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
			resp, err := h.e.web.fetch(fctx, u, h.e.userAgent())
			cancel()
			if err != nil {
				h.e.d.OnConsoleMessage(api.ConsoleMessage{Level: "error", Message: "Failed to load resource: " + err.Error()})
				continue
			}
			name, src = u, resp.body
		}
		if _, err := h.vm.RunScript(name, src); err != nil {
			h.uncaught(err)
		}
		if h.e.pending != nil && h.e.pending.host != h {
			// the script navigated away
			return
		}
	}

	for _, n := range resources {
		ref := attrOr(n, "src", attrOr(n, "href", ""))
		if u, err := h.doc.resolve(ref); err == nil {
			h.e.request(u)
		}
	}
}

// evaluate runs script and returns its completion value as JSON.
func (h *host) evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		h.vm.Interrupt(ctx.Err())
		close(interrupted)
	})
	v, err := h.vm.RunString(script)
	if !stop() {
		<-interrupted
	}
	h.vm.ClearInterrupt()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, fmt.Errorf("script interrupted: %w", context.DeadlineExceeded)
		}
		return nil, scriptException(err)
	}
	return h.toJSON(v)
}

func (h *host) toJSON(v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) {
		return json.RawMessage("null"), nil
	}
	s, err := h.stringify(goja.Undefined(), v)
	if err != nil {
		return nil, scriptException(err)
	}
	if goja.IsUndefined(s) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(s.String()), nil
}

// uncaught reports an exception no script handled, the way browsers log
// them to the console.
func (h *host) uncaught(err error) {
	msg := err.Error()
	var ex *goja.Exception
	if errors.As(err, &ex) {
		msg = ex.Value().String()
	}
	h.e.d.OnConsoleMessage(api.ConsoleMessage{Level: "error", Message: "Uncaught " + msg})
}

func scriptException(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &api.ScriptException{Message: ex.Value().String()}
	}
	return &api.ScriptException{Message: err.Error()}
}

// walkElements calls fn for the elements under n in document order until
// fn returns false.
func walkElements(n *html.Node, fn func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !fn(c) {
			return false
		}
		if !walkElements(c, fn) {
			return false
		}
	}
	return true
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
