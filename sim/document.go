package sim

import (
	"bytes"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/grafana/xk6-headless/api"
)

// Synthetic layout metrics, in CSS pixels.
const (
	lineHeight = 24
	charWidth  = 8
	bodyMargin = 8
)

// box is the position of an element in document coordinates.
type box struct {
	x, y, w, h float64
}

func (b box) contains(x, y float64) bool {
	return b.w > 0 && b.h > 0 && x >= b.x && x < b.x+b.w && y >= b.y && y < b.y+b.h
}

// document is a parsed HTML document and the state the DOM keeps outside
// of the node tree.
type document struct {
	url  *url.URL
	root *html.Node
	doc  *goquery.Document

	// values holds the value of form controls once it was changed.
	values  map[*html.Node]string
	checked map[*html.Node]bool
	focus   *html.Node

	width, height    float64
	scrollX, scrollY float64

	boxes  map[*html.Node]box
	order  []*html.Node
	bottom float64
	stale  bool
}

func newDocument(u *url.URL, body string, isHTML bool, width, height int64) (*document, error) {
	if !isHTML {
		body = "<html><head></head><body><pre>" + html.EscapeString(body) + "</pre></body></html>"
	}
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &document{
		url:     u,
		root:    root,
		doc:     goquery.NewDocumentFromNode(root),
		values:  make(map[*html.Node]string),
		checked: make(map[*html.Node]bool),
		width:   float64(width),
		height:  float64(height),
		stale:   true,
	}, nil
}

func (d *document) documentElement() *html.Node {
	for n := d.root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.DataAtom == atom.Html {
			return n
		}
	}
	return nil
}

func (d *document) body() *html.Node {
	return d.child(atom.Body)
}

func (d *document) head() *html.Node {
	return d.child(atom.Head)
}

func (d *document) child(a atom.Atom) *html.Node {
	de := d.documentElement()
	if de == nil {
		return nil
	}
	for n := de.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}

// title returns the text of the first <title>, with collapsed white space.
func (d *document) title() string {
	n := d.doc.Find("title").First()
	return strings.Join(strings.Fields(n.Text()), " ")
}

func (d *document) setTitle(title string) {
	sel := d.doc.Find("title").First()
	if sel.Length() == 0 {
		head := d.head()
		if head == nil {
			return
		}
		t := &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		head.AppendChild(t)
		sel = d.doc.FindNodes(t)
	}
	setText(sel.Get(0), title)
}

// query returns the elements under scope matching selector, in document
// order. scope nil means the whole document.
func (d *document) query(scope *html.Node, selector string) ([]*html.Node, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	s := d.doc.Selection
	if scope != nil {
		s = d.doc.FindNodes(scope)
	}
	return s.FindMatcher(m).Nodes, nil
}

func (d *document) queryOne(scope *html.Node, selector string) (*html.Node, error) {
	nodes, err := d.query(scope, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// resolve resolves ref against the document URL.
func (d *document) resolve(ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return d.url.ResolveReference(r).String(), nil
}

// elementInfo describes n for api.Engine.QueryElement.
func (d *document) elementInfo(n *html.Node) *api.ElementInfo {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	return &api.ElementInfo{
		Rect:       d.clientRect(n),
		Text:       textContent(n),
		HTML:       outerHTML(n),
		Attributes: attrs,
	}
}

// invalidate marks the layout stale after a DOM or viewport change.
func (d *document) invalidate() {
	d.stale = true
}

func (d *document) layout() {
	if !d.stale {
		return
	}
	d.boxes = make(map[*html.Node]box)
	d.order = d.order[:0]
	d.bottom = 0
	if body := d.body(); body != nil {
		d.bottom = d.place(body, bodyMargin, bodyMargin, d.width-2*bodyMargin) + bodyMargin
	}
	if de := d.documentElement(); de != nil {
		d.boxes[de] = box{w: d.width, h: math.Max(d.bottom, d.height)}
	}
	d.stale = false
	d.clampScroll()
}

// place lays n out as a block at y and returns the y below it.
func (d *document) place(n *html.Node, x, y, w float64) float64 {
	if n.Type != html.ElementNode || !rendered(n) {
		return y
	}
	d.order = append(d.order, n)

	start := y
	y += float64(ownLines(n, w)) * lineHeight
	// the options of a select are drawn inside its single line
	if n.DataAtom != atom.Select {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			y = d.place(c, x, y, w)
		}
	}
	d.boxes[n] = box{x: x, y: start, w: w, h: y - start}

	return y
}

// contentSize is the scrollable size of the document.
func (d *document) contentSize() (w, h float64) {
	d.layout()
	return d.width, math.Max(d.bottom, d.height)
}

// clientRect returns the rect of n relative to the viewport.
func (d *document) clientRect(n *html.Node) api.ElementRect {
	d.layout()
	b, ok := d.boxes[n]
	if !ok {
		return api.ElementRect{}
	}
	return api.ElementRect{X: b.x - d.scrollX, Y: b.y - d.scrollY, Width: b.w, Height: b.h}
}

// elementAt returns the innermost element at the viewport point x,y.
func (d *document) elementAt(x, y float64) *html.Node {
	d.layout()
	x, y = x+d.scrollX, y+d.scrollY
	var hit *html.Node
	for _, n := range d.order {
		if d.boxes[n].contains(x, y) {
			hit = n
		}
	}
	if hit == nil {
		return d.body()
	}
	return hit
}

func (d *document) scrollTo(x, y float64) {
	d.scrollX, d.scrollY = x, y
	d.clampScroll()
}

func (d *document) clampScroll() {
	maxY := math.Max(0, d.bottom-d.height)
	d.scrollY = math.Min(math.Max(0, d.scrollY), maxY)
	d.scrollX = 0
}

// scrollIntoView centers n vertically in the viewport.
func (d *document) scrollIntoView(n *html.Node) {
	d.layout()
	b := d.boxes[n]
	d.scrollTo(0, b.y+b.h/2-d.height/2)
}

func (d *document) resize(width, height int64) {
	d.width, d.height = float64(width), float64(height)
	d.invalidate()
}

// value returns the current value of a form control.
func (d *document) value(n *html.Node) string {
	if v, ok := d.values[n]; ok {
		return v
	}
	switch n.DataAtom {
	case atom.Textarea:
		return textContent(n)
	case atom.Select:
		opts := options(n)
		for _, o := range opts {
			if hasAttr(o, "selected") {
				return optionValue(o)
			}
		}
		if len(opts) > 0 {
			return optionValue(opts[0])
		}
		return ""
	case atom.Option:
		return optionValue(n)
	}
	v, _ := attr(n, "value")
	return v
}

func (d *document) isChecked(n *html.Node) bool {
	if c, ok := d.checked[n]; ok {
		return c
	}
	return hasAttr(n, "checked")
}

// editable reports whether typing into n changes its value.
func editable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		switch inputType(n) {
		case "text", "search", "email", "password", "url", "tel", "number":
			return true
		}
	}
	return false
}

func focusable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Input, atom.Textarea, atom.Select, atom.Button:
		return true
	case atom.A:
		return hasAttr(n, "href")
	}
	return hasAttr(n, "tabindex")
}

func rendered(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Template, atom.Title, atom.Meta, atom.Link, atom.Noscript:
		return false
	case atom.Input:
		if inputType(n) == "hidden" {
			return false
		}
	}
	if hasAttr(n, "hidden") {
		return false
	}
	style, _ := attr(n, "style")
	return !strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none")
}

// ownLines is the number of lines n takes besides its children.
func ownLines(n *html.Node, w float64) int {
	switch n.DataAtom {
	case atom.Input, atom.Button, atom.Select, atom.Br, atom.Hr:
		return 1
	case atom.Textarea:
		return 2
	case atom.Img:
		if h, err := strconv.Atoi(attrOr(n, "height", "")); err == nil && h > 0 {
			return (h + lineHeight - 1) / lineHeight
		}
		return 1
	}

	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
	}
	text := strings.Join(strings.Fields(sb.String()), " ")
	if text == "" {
		return 0
	}
	perLine := max(1, int(w/charWidth))
	return (len([]rune(text)) + perLine - 1) / perLine
}

func inputType(n *html.Node) string {
	if n.DataAtom != atom.Input {
		return ""
	}
	t := strings.ToLower(attrOr(n, "type", "text"))
	if t == "" {
		return "text"
	}
	return t
}

func options(sel *html.Node) []*html.Node {
	var opts []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == atom.Option {
				opts = append(opts, c)
				continue
			}
			walk(c)
		}
	}
	walk(sel)
	return opts
}

func optionValue(o *html.Node) string {
	if v, ok := attr(o, "value"); ok {
		return v
	}
	return strings.TrimSpace(textContent(o))
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrOr(n *html.Node, key, def string) string {
	if v, ok := attr(n, key); ok {
		return v
	}
	return def
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func setText(n *html.Node, text string) {
	removeChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

func outerHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

func setInnerHTML(n *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return err
	}
	removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// closest returns n or its first ancestor matching the atom.
func closest(n *html.Node, a atom.Atom) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}
