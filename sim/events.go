package sim

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/grafana/xk6-headless/api"
)

// eventTarget adds the listener methods to o. n is the node of o, nil for
// the window.
func (h *host) eventTarget(o *goja.Object, n *html.Node) {
	must(o.Set("addEventListener", func(c goja.FunctionCall) goja.Value {
		typ, fn := c.Argument(0).String(), c.Argument(1)
		if _, ok := goja.AssertFunction(fn); !ok {
			return goja.Undefined()
		}
		byType := h.listeners[n]
		if byType == nil {
			byType = make(map[string][]goja.Value)
			h.listeners[n] = byType
		}
		for _, l := range byType[typ] {
			if l.StrictEquals(fn) {
				return goja.Undefined()
			}
		}
		byType[typ] = append(byType[typ], fn)
		return goja.Undefined()
	}))
	must(o.Set("removeEventListener", func(c goja.FunctionCall) goja.Value {
		typ, fn := c.Argument(0).String(), c.Argument(1)
		ls := h.listeners[n][typ]
		for i, l := range ls {
			if l.StrictEquals(fn) {
				h.listeners[n][typ] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
		return goja.Undefined()
	}))
	must(o.Set("dispatchEvent", func(c goja.FunctionCall) goja.Value {
		ev, ok := c.Argument(0).(*goja.Object)
		if !ok {
			panic(h.vm.NewTypeError("dispatchEvent: argument is not an event"))
		}
		return h.vm.ToValue(h.dispatch(n, ev))
	}))
}

func (h *host) newEvent(typ string, bubbles, cancelable bool) *goja.Object {
	v, err := h.createEvent(goja.Undefined(), h.vm.ToValue(typ), h.vm.ToValue(bubbles), h.vm.ToValue(cancelable))
	if err != nil {
		panic(err)
	}
	return v.ToObject(h.vm)
}

// target returns the script object of an event target node.
func (h *host) target(n *html.Node) *goja.Object {
	if n == nil {
		return h.window
	}
	return h.wrap(n).ToObject(h.vm)
}

// dispatch fires ev at target and, when it bubbles, at its ancestors, the
// document and the window. It returns false when a handler canceled ev.
func (h *host) dispatch(target *html.Node, ev *goja.Object) bool {
	path := []*html.Node{target}
	if target != nil {
		for p := target.Parent; p != nil; p = p.Parent {
			path = append(path, p)
		}
		if path[len(path)-1] == h.doc.root {
			path = append(path, nil)
		}
	}

	typ := ev.Get("type").String()
	bubbles := ev.Get("bubbles").ToBoolean()
	must(ev.Set("target", h.target(target)))

	for i, n := range path {
		if i > 0 && !bubbles {
			break
		}
		cur := h.target(n)
		must(ev.Set("currentTarget", cur))

		if fn, ok := goja.AssertFunction(cur.Get("on" + typ)); ok {
			h.invoke(fn, cur, ev)
		} else if fn := h.attributeHandler(n, typ); fn != nil {
			h.invoke(fn, cur, ev)
		}
		for _, l := range append([]goja.Value(nil), h.listeners[n][typ]...) {
			if fn, ok := goja.AssertFunction(l); ok {
				h.invoke(fn, cur, ev)
			}
		}
		if ev.Get("__stop").ToBoolean() {
			break
		}
	}
	must(ev.Set("currentTarget", goja.Null()))

	return !ev.Get("defaultPrevented").ToBoolean()
}

func (h *host) invoke(fn goja.Callable, this goja.Value, ev *goja.Object) {
	if _, err := fn(this, ev); err != nil {
		h.uncaught(err)
	}
}

// attributeHandler compiles the inline on<type> attribute of n. The
// window uses the attributes of <body>.
func (h *host) attributeHandler(n *html.Node, typ string) goja.Callable {
	el := n
	if el == nil {
		el = h.doc.body()
	}
	if el == nil || el.Type != html.ElementNode {
		return nil
	}
	src, ok := attr(el, "on"+typ)
	if !ok {
		return nil
	}
	if fn, ok := h.handlers[el][typ]; ok {
		return fn
	}
	v, err := h.vm.RunString("(function (event) {\n" + src + "\n})")
	if err != nil {
		h.uncaught(err)
		return nil
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil
	}
	if h.handlers[el] == nil {
		h.handlers[el] = make(map[string]goja.Callable)
	}
	h.handlers[el][typ] = fn
	return fn
}

// mouseEvent fires a mouse event at the viewport point x,y.
func (h *host) mouseEvent(n *html.Node, typ string, x, y float64) bool {
	ev := h.newEvent(typ, true, typ != "mousemove")
	must(ev.Set("clientX", x))
	must(ev.Set("clientY", y))
	must(ev.Set("button", 0))
	return h.dispatch(n, ev)
}

// input applies an input event to the document.
func (h *host) input(ev api.InputEvent) error {
	d := h.doc
	switch ev := ev.(type) {
	case api.MouseEvent:
		n := d.elementAt(ev.X, ev.Y)
		switch ev.Type {
		case api.MouseMove:
			h.mouseEvent(n, "mousemove", ev.X, ev.Y)
		case api.MouseDown:
			h.pressed = n
			if h.mouseEvent(n, "mousedown", ev.X, ev.Y) {
				h.focus(focusTarget(n))
			}
		case api.MouseUp:
			h.mouseEvent(n, "mouseup", ev.X, ev.Y)
			if h.pressed != nil {
				h.pressed = nil
				h.clickAt(n, ev.X, ev.Y)
			}
		default:
			return fmt.Errorf("unknown mouse event type %q", ev.Type)
		}
	case api.WheelEvent:
		n := d.elementAt(ev.X, ev.Y)
		we := h.newEvent("wheel", true, true)
		must(we.Set("deltaX", ev.DeltaX))
		must(we.Set("deltaY", ev.DeltaY))
		if h.dispatch(n, we) {
			h.scroll(d.scrollX+ev.DeltaX, d.scrollY+ev.DeltaY)
		}
	case api.KeyEvent:
		h.key(ev)
	case api.TextEvent:
		h.insertText(ev.Text)
	default:
		return fmt.Errorf("unsupported input event %T", ev)
	}
	return nil
}

func (h *host) key(ev api.KeyEvent) {
	n := h.doc.focus
	if n == nil {
		n = h.doc.body()
	}

	typ := "keydown"
	if ev.Type == api.KeyUp {
		typ = "keyup"
	}
	ke := h.newEvent(typ, true, true)
	must(ke.Set("key", ev.Key))
	must(ke.Set("code", ev.Code))
	must(ke.Set("keyCode", ev.KeyCode))
	must(ke.Set("which", ev.KeyCode))
	if !h.dispatch(n, ke) || ev.Type != api.KeyDown {
		return
	}

	switch ev.Key {
	case "Enter":
		if n.DataAtom == atom.Input {
			if form := closest(n, atom.Form); form != nil {
				h.submit(form)
			}
			return
		}
	case "Backspace":
		if editable(n) {
			v := []rune(h.doc.value(n))
			if len(v) > 0 {
				h.setValue(n, string(v[:len(v)-1]))
				h.dispatch(n, h.newEvent("input", true, false))
			}
		}
		return
	case "Tab":
		h.focusNext(n)
		return
	}
	if ev.Text != "" {
		h.insertText(ev.Text)
	}
}

// insertText appends text to the value of the focused control.
func (h *host) insertText(text string) {
	n := h.doc.focus
	if n == nil || !editable(n) {
		return
	}
	text = strings.ReplaceAll(text, "\r", "\n")
	if n.DataAtom != atom.Textarea {
		text = strings.ReplaceAll(text, "\n", "")
	}
	if text == "" {
		return
	}
	h.setValue(n, h.doc.value(n)+text)
	h.dispatch(n, h.newEvent("input", true, false))
}

// click fires a click at n and runs its default action.
func (h *host) click(n *html.Node) {
	r := h.doc.clientRect(n)
	x, y := r.Center()
	h.clickAt(n, x, y)
}

func (h *host) clickAt(n *html.Node, x, y float64) {
	if !h.mouseEvent(n, "click", x, y) {
		return
	}

	switch inputType(n) {
	case "checkbox":
		h.doc.checked[n] = !h.doc.isChecked(n)
		h.changed(n)
		return
	case "radio":
		h.checkRadio(n)
		h.changed(n)
		return
	case "submit", "image":
		if form := closest(n, atom.Form); form != nil {
			h.submit(form)
		}
		return
	}
	if n.DataAtom == atom.Button && strings.ToLower(attrOr(n, "type", "submit")) == "submit" {
		if form := closest(n, atom.Form); form != nil {
			h.submit(form)
		}
		return
	}
	if a := closest(n, atom.A); a != nil {
		href, ok := attr(a, "href")
		if ok && !strings.HasPrefix(href, "#") {
			if err := h.navigate(href); err != nil {
				h.uncaught(err)
			}
		}
	}
}

func (h *host) checkRadio(n *html.Node) {
	name := attrOr(n, "name", "")
	if name != "" {
		scope := closest(n, atom.Form)
		if scope == nil {
			scope = h.doc.root
		}
		walkElements(scope, func(o *html.Node) bool {
			if inputType(o) == "radio" && attrOr(o, "name", "") == name {
				h.doc.checked[o] = false
			}
			return true
		})
	}
	h.doc.checked[n] = true
}

func (h *host) changed(n *html.Node) {
	h.mutated()
	h.dispatch(n, h.newEvent("input", true, false))
	h.dispatch(n, h.newEvent("change", true, false))
}

// submit fires the submit event of form and navigates to its action with
// the form data in the query.
func (h *host) submit(form *html.Node) {
	if !h.dispatch(form, h.newEvent("submit", true, true)) {
		return
	}

	values := url.Values{}
	walkElements(form, func(n *html.Node) bool {
		name := attrOr(n, "name", "")
		if name == "" || hasAttr(n, "disabled") {
			return true
		}
		switch n.DataAtom {
		case atom.Input:
			switch inputType(n) {
			case "checkbox", "radio":
				if h.doc.isChecked(n) {
					values.Add(name, attrOr(n, "value", "on"))
				}
			case "submit", "button", "reset", "file", "image":
			default:
				values.Add(name, h.doc.value(n))
			}
		case atom.Textarea, atom.Select:
			values.Add(name, h.doc.value(n))
		}
		return true
	})

	action, err := h.doc.resolve(attrOr(form, "action", ""))
	if err != nil {
		h.uncaught(err)
		return
	}
	u, err := url.Parse(action)
	if err != nil {
		h.uncaught(err)
		return
	}
	u.RawQuery = values.Encode()
	if err := h.navigate(u.String()); err != nil {
		h.uncaught(err)
	}
}

func (h *host) focus(n *html.Node) {
	old := h.doc.focus
	if old == n {
		return
	}
	if old != nil {
		h.doc.focus = nil
		h.dispatch(old, h.newEvent("blur", false, false))
	}
	h.doc.focus = n
	if n != nil {
		h.dispatch(n, h.newEvent("focus", false, false))
	}
}

// focusNext moves the focus to the next focusable element in document
// order.
func (h *host) focusNext(from *html.Node) {
	var first, next *html.Node
	seen := from == nil || from == h.doc.body()
	walkElements(h.doc.root, func(n *html.Node) bool {
		if n == from {
			seen = true
			return true
		}
		if !focusable(n) || !rendered(n) {
			return true
		}
		if first == nil {
			first = n
		}
		if seen {
			next = n
			return false
		}
		return true
	})
	if next == nil {
		next = first
	}
	h.focus(next)
}

// focusTarget returns the element a press on n focuses, nil to clear the
// focus.
func focusTarget(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && focusable(n) {
			return n
		}
	}
	return nil
}
