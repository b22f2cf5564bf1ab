package sim

import (
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// wrap returns the script object of n, creating it on first use so that a
// node always maps to the same object.
func (h *host) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if o, ok := h.nodes[n]; ok {
		return o
	}
	o := h.vm.NewObject()
	h.nodes[n] = o
	h.objs[o] = n

	switch n.Type {
	case html.TextNode:
		must(o.Set("nodeType", 3))
		must(o.Set("nodeName", "#text"))
		h.accessor(o, "textContent", func() goja.Value { return h.vm.ToValue(n.Data) }, func(v goja.Value) {
			n.Data = v.String()
			h.mutated()
		})
		h.accessor(o, "parentNode", func() goja.Value { return h.parent(n) }, nil)
		return o
	case html.ElementNode:
	default:
		must(o.Set("nodeType", 8))
		return o
	}

	h.initElement(o, n)
	return o
}

func (h *host) initElement(o *goja.Object, n *html.Node) {
	d := h.doc
	str := func(s string) goja.Value { return h.vm.ToValue(s) }
	reflect := func(prop, name string) {
		h.accessor(o, prop, func() goja.Value { return str(attrOr(n, name, "")) }, func(v goja.Value) {
			setAttr(n, name, v.String())
			h.mutated()
		})
	}

	must(o.Set("nodeType", 1))
	h.accessor(o, "tagName", func() goja.Value { return str(strings.ToUpper(n.Data)) }, nil)
	h.accessor(o, "nodeName", func() goja.Value { return str(strings.ToUpper(n.Data)) }, nil)
	h.accessor(o, "localName", func() goja.Value { return str(n.Data) }, nil)
	reflect("id", "id")
	reflect("className", "class")
	reflect("name", "name")
	reflect("href", "href")
	reflect("src", "src")
	reflect("placeholder", "placeholder")

	h.accessor(o, "type", func() goja.Value {
		if n.DataAtom == atom.Input {
			return str(inputType(n))
		}
		if n.DataAtom == atom.Select {
			return str("select-one")
		}
		return str(attrOr(n, "type", ""))
	}, nil)

	h.accessor(o, "textContent", func() goja.Value { return str(textContent(n)) }, func(v goja.Value) {
		setText(n, v.String())
		h.mutated()
	})
	h.accessor(o, "innerText", func() goja.Value { return str(strings.TrimSpace(textContent(n))) }, func(v goja.Value) {
		setText(n, v.String())
		h.mutated()
	})
	h.accessor(o, "innerHTML", func() goja.Value { return str(innerHTML(n)) }, func(v goja.Value) {
		if err := setInnerHTML(n, v.String()); err != nil {
			panic(h.vm.NewGoError(err))
		}
		h.mutated()
	})
	h.accessor(o, "outerHTML", func() goja.Value { return str(outerHTML(n)) }, nil)

	h.accessor(o, "value", func() goja.Value { return str(d.value(n)) }, func(v goja.Value) {
		h.setValue(n, v.String())
	})
	h.accessor(o, "checked", func() goja.Value { return h.vm.ToValue(d.isChecked(n)) }, func(v goja.Value) {
		d.checked[n] = v.ToBoolean()
		h.mutated()
	})
	h.accessor(o, "disabled", func() goja.Value { return h.vm.ToValue(hasAttr(n, "disabled")) }, nil)
	h.accessor(o, "selectedIndex", func() goja.Value {
		v := d.value(n)
		for i, opt := range options(n) {
			if optionValue(opt) == v {
				return h.vm.ToValue(i)
			}
		}
		return h.vm.ToValue(-1)
	}, nil)
	h.accessor(o, "options", func() goja.Value {
		return h.list(options(n))
	}, nil)
	h.accessor(o, "files", func() goja.Value {
		if f, ok := h.files[n]; ok {
			return f
		}
		return h.vm.NewArray()
	}, func(v goja.Value) {
		h.files[n] = v
	})

	h.accessor(o, "parentNode", func() goja.Value { return h.parent(n) }, nil)
	h.accessor(o, "parentElement", func() goja.Value {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return h.wrap(n.Parent)
	}, nil)
	h.accessor(o, "children", func() goja.Value {
		var els []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				els = append(els, c)
			}
		}
		return h.list(els)
	}, nil)
	h.accessor(o, "childNodes", func() goja.Value {
		var nodes []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			nodes = append(nodes, c)
		}
		return h.list(nodes)
	}, nil)
	h.accessor(o, "firstElementChild", func() goja.Value {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				return h.wrap(c)
			}
		}
		return goja.Null()
	}, nil)
	h.accessor(o, "attributes", func() goja.Value {
		attrs := make([]any, 0, len(n.Attr))
		for _, a := range n.Attr {
			attrs = append(attrs, map[string]any{"name": a.Key, "value": a.Val})
		}
		return h.vm.NewArray(attrs...)
	}, nil)
	h.accessor(o, "style", func() goja.Value { return h.style(n) }, nil)

	for _, dim := range []struct {
		name string
		get  func() float64
	}{
		{"clientWidth", func() float64 { return d.clientRect(n).Width }},
		{"clientHeight", func() float64 { return h.clientHeight(n) }},
		{"offsetWidth", func() float64 { return d.clientRect(n).Width }},
		{"offsetHeight", func() float64 { return d.clientRect(n).Height }},
		{"scrollWidth", func() float64 { return d.clientRect(n).Width }},
		{"scrollHeight", func() float64 { return h.scrollHeight(n) }},
		{"scrollTop", func() float64 { return h.scrollTop(n) }},
	} {
		get := dim.get
		h.accessor(o, dim.name, func() goja.Value { return h.vm.ToValue(get()) }, nil)
	}

	must(o.Set("getAttribute", func(c goja.FunctionCall) goja.Value {
		if v, ok := attr(n, strings.ToLower(c.Argument(0).String())); ok {
			return str(v)
		}
		return goja.Null()
	}))
	must(o.Set("setAttribute", func(c goja.FunctionCall) goja.Value {
		setAttr(n, c.Argument(0).String(), c.Argument(1).String())
		h.mutated()
		return goja.Undefined()
	}))
	must(o.Set("hasAttribute", func(c goja.FunctionCall) goja.Value {
		return h.vm.ToValue(hasAttr(n, strings.ToLower(c.Argument(0).String())))
	}))
	must(o.Set("removeAttribute", func(c goja.FunctionCall) goja.Value {
		removeAttr(n, strings.ToLower(c.Argument(0).String()))
		h.mutated()
		return goja.Undefined()
	}))
	must(o.Set("querySelector", func(c goja.FunctionCall) goja.Value {
		return h.querySelector(n, c.Argument(0).String())
	}))
	must(o.Set("querySelectorAll", func(c goja.FunctionCall) goja.Value {
		return h.querySelectorAll(n, c.Argument(0).String())
	}))
	must(o.Set("matches", func(c goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.matches(n, c.Argument(0).String()))
	}))
	must(o.Set("closest", func(c goja.FunctionCall) goja.Value {
		sel := c.Argument(0).String()
		for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
			if h.matches(p, sel) {
				return h.wrap(p)
			}
		}
		return goja.Null()
	}))
	must(o.Set("contains", func(c goja.FunctionCall) goja.Value {
		other, _ := h.node(c.Argument(0))
		for p := other; p != nil; p = p.Parent {
			if p == n {
				return h.vm.ToValue(true)
			}
		}
		return h.vm.ToValue(false)
	}))
	must(o.Set("getBoundingClientRect", func(goja.FunctionCall) goja.Value {
		r := d.clientRect(n)
		return h.vm.ToValue(map[string]any{
			"x": r.X, "y": r.Y, "width": r.Width, "height": r.Height,
			"left": r.X, "top": r.Y, "right": r.X + r.Width, "bottom": r.Y + r.Height,
		})
	}))
	must(o.Set("scrollIntoView", func(goja.FunctionCall) goja.Value {
		d.scrollIntoView(n)
		h.e.dirty = true
		return goja.Undefined()
	}))
	must(o.Set("click", func(goja.FunctionCall) goja.Value {
		h.click(n)
		return goja.Undefined()
	}))
	must(o.Set("focus", func(goja.FunctionCall) goja.Value {
		h.focus(n)
		return goja.Undefined()
	}))
	must(o.Set("blur", func(goja.FunctionCall) goja.Value {
		if d.focus == n {
			h.focus(nil)
		}
		return goja.Undefined()
	}))
	must(o.Set("appendChild", func(c goja.FunctionCall) goja.Value {
		child, ok := h.node(c.Argument(0))
		if !ok {
			panic(h.vm.NewTypeError("appendChild: argument is not a node"))
		}
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		n.AppendChild(child)
		h.mutated()
		return c.Argument(0)
	}))
	must(o.Set("remove", func(goja.FunctionCall) goja.Value {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
			h.mutated()
		}
		return goja.Undefined()
	}))

	h.eventTarget(o, n)
}

// node returns the node of a wrapped object.
func (h *host) node(v goja.Value) (*html.Node, bool) {
	o, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	n, ok := h.objs[o]
	return n, ok
}

func (h *host) parent(n *html.Node) goja.Value {
	if n.Parent == nil {
		return goja.Null()
	}
	return h.wrap(n.Parent)
}

func (h *host) list(nodes []*html.Node) goja.Value {
	items := make([]any, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, h.wrap(n))
	}
	return h.vm.NewArray(items...)
}

func (h *host) querySelector(scope *html.Node, selector string) goja.Value {
	n, err := h.doc.queryOne(scope, selector)
	if err != nil {
		panic(h.syntaxError(selector))
	}
	return h.wrap(n)
}

func (h *host) querySelectorAll(scope *html.Node, selector string) goja.Value {
	nodes, err := h.doc.query(scope, selector)
	if err != nil {
		panic(h.syntaxError(selector))
	}
	return h.list(nodes)
}

func (h *host) matches(n *html.Node, selector string) bool {
	nodes, err := h.doc.query(nil, selector)
	if err != nil {
		panic(h.syntaxError(selector))
	}
	for _, m := range nodes {
		if m == n {
			return true
		}
	}
	return false
}

func (h *host) syntaxError(selector string) *goja.Object {
	return h.vm.NewTypeError("SyntaxError: '" + selector + "' is not a valid selector")
}

// style exposes the inline style of n. Only display is understood by the
// layout.
func (h *host) style(n *html.Node) goja.Value {
	s := h.vm.NewObject()
	h.accessor(s, "display", func() goja.Value {
		if !rendered(n) && hasAttr(n, "style") {
			return h.vm.ToValue("none")
		}
		return h.vm.ToValue("")
	}, func(v goja.Value) {
		style := strings.ReplaceAll(attrOr(n, "style", ""), "display:none", "")
		style = strings.ReplaceAll(style, "display: none", "")
		if v.String() == "none" {
			style = "display:none;" + style
		}
		setAttr(n, "style", strings.Trim(style, "; "))
		h.mutated()
	})
	return s
}

func (h *host) clientHeight(n *html.Node) float64 {
	if n == h.doc.documentElement() {
		return h.doc.height
	}
	return h.doc.clientRect(n).Height
}

func (h *host) scrollHeight(n *html.Node) float64 {
	if n == h.doc.documentElement() || n == h.doc.body() {
		_, height := h.doc.contentSize()
		return height
	}
	return h.doc.clientRect(n).Height
}

func (h *host) scrollTop(n *html.Node) float64 {
	if n == h.doc.documentElement() {
		return h.doc.scrollY
	}
	return 0
}

// setValue changes the value of a form control without firing events.
func (h *host) setValue(n *html.Node, v string) {
	switch n.DataAtom {
	case atom.Select:
		for _, o := range options(n) {
			if optionValue(o) == v {
				h.doc.values[n] = v
				break
			}
		}
	case atom.Input, atom.Textarea:
		h.doc.values[n] = v
	default:
		setAttr(n, "value", v)
	}
	h.mutated()
}

// mutated invalidates the layout and schedules a frame.
func (h *host) mutated() {
	h.doc.invalidate()
	h.e.dirty = true
}
