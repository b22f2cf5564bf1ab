package sim

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-headless/api"
)

// recorder is an api.EngineDelegate that keeps every event.
type recorder struct {
	statuses []api.LoadStatus
	errs     []error
	urls     []string
	titles   []string
	console  []api.ConsoleMessage
	requests []api.NetworkRequest
	frames   int
	block    func(url string) bool
}

func (r *recorder) OnLoadStatus(s api.LoadStatus, err error) {
	r.statuses = append(r.statuses, s)
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *recorder) OnNavigated(url string)                { r.urls = append(r.urls, url) }
func (r *recorder) OnTitleChanged(title string)           { r.titles = append(r.titles, title) }
func (r *recorder) OnConsoleMessage(m api.ConsoleMessage) { r.console = append(r.console, m) }
func (r *recorder) OnFrame()                              { r.frames++ }

func (r *recorder) OnRequest(req api.NetworkRequest) bool {
	r.requests = append(r.requests, req)
	return r.block != nil && r.block(req.URL)
}

func (r *recorder) last() api.LoadStatus {
	if len(r.statuses) == 0 {
		return 0
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recorder) title() string {
	if len(r.titles) == 0 {
		return ""
	}
	return r.titles[len(r.titles)-1]
}

func newTestEngine(t *testing.T, web *Web) (*Engine, *recorder) {
	t.Helper()

	rec := &recorder{}
	eng, err := NewLauncher(web, nil).Launch(context.Background(), api.EngineOptions{Width: 800, Height: 600}, rec)
	require.NoError(t, err)
	e, ok := eng.(*Engine)
	require.True(t, ok)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.OpenSession(context.Background()))

	return e, rec
}

// settle pumps e until the pending load is over.
func settle(t *testing.T, e *Engine, rec *recorder) {
	t.Helper()

	for i := 0; i < 20; i++ {
		require.NoError(t, e.Pump())
		if e.pending == nil && rec.last() != api.LoadStarted {
			return
		}
	}
	t.Fatalf("load of %v did not settle", e.pending)
}

func open(t *testing.T, e *Engine, rec *recorder, url string) {
	t.Helper()

	require.NoError(t, e.Navigate(context.Background(), url))
	settle(t, e, rec)
}

func eval(t *testing.T, e *Engine, script string) string {
	t.Helper()

	v, err := e.Evaluate(context.Background(), script)
	require.NoError(t, err)
	return string(v)
}

func TestEngineLoad(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", `<html><head><title> Hello
		World </title><script>console.log("hi", 1 + 1, {a: 1});</script></head>
		<body><img src="/logo.png"><p>text</p></body></html>`)
	web.AddRedirect("https://site.test/old", "/")

	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/old")

	assert.Equal(t, []api.LoadStatus{api.LoadStarted, api.LoadComplete}, rec.statuses)
	assert.Equal(t, []string{"https://site.test/"}, rec.urls)
	assert.Equal(t, "Hello World", rec.title())
	assert.Equal(t, []api.ConsoleMessage{{Level: "log", Message: `hi 2 {"a":1}`}}, rec.console)
	assert.Positive(t, rec.frames)

	require.Len(t, rec.requests, 2)
	assert.Equal(t, api.NetworkRequest{Method: "GET", URL: "https://site.test/old", IsMainFrame: true}, rec.requests[0])
	assert.Equal(t, api.NetworkRequest{Method: "GET", URL: "https://site.test/logo.png"}, rec.requests[1])

	assert.Equal(t, `"complete"`, eval(t, e, "document.readyState"))
	assert.Equal(t, `"https://site.test/"`, eval(t, e, "location.href"))
}

func TestEngineLoadFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"unknown_host", "https://nowhere.test/", "net::ERR_NAME_NOT_RESOLVED"},
		{"blocked", "https://site.test/blocked", "net::ERR_BLOCKED_BY_CLIENT"},
		{"redirect_loop", "https://site.test/loop", "net::ERR_TOO_MANY_REDIRECTS"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			web := NewWeb()
			web.AddHTML("https://site.test/blocked", "<p>never</p>")
			web.AddRedirect("https://site.test/loop", "https://site.test/loop")

			e, rec := newTestEngine(t, web)
			rec.block = func(url string) bool { return strings.Contains(url, "blocked") }
			open(t, e, rec, tc.url)

			assert.Equal(t, api.LoadFailed, rec.last())
			require.Len(t, rec.errs, 1)
			assert.Contains(t, rec.errs[0].Error(), tc.want)
			assert.Empty(t, rec.urls)
		})
	}
}

func TestEngineEvaluate(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", `<title>T</title><p id="x" data-k="v">one</p>`)
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/")

	tests := []struct {
		name, script, want string
	}{
		{"number", "1 + 1", "2"},
		{"undefined", "undefined", "null"},
		{"object", "({a: [1, 'x']})", `{"a":[1,"x"]}`},
		{"title", "document.title", `"T"`},
		{"attribute", "document.querySelector('#x').getAttribute('data-k')", `"v"`},
		{"missing_attribute", "document.querySelector('#x').getAttribute('nope')", "null"},
		{"identity", "document.querySelector('p') === document.getElementById('x')", "true"},
		{"tag_name", "document.body.firstElementChild.tagName", `"P"`},
		{"alert", "alert('a')", "null"},
		{"confirm", "confirm('a')", "false"},
		{"prompt", "prompt('a')", "null"},
		{"btoa", "atob(btoa('hé'))", `"hé"`},
		{"function", "(function () {})", "null"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eval(t, e, tc.script))
		})
	}

	_, err := e.Evaluate(context.Background(), "throw new Error('boom')")
	var ex *api.ScriptException
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "Error: boom", ex.Message)

	_, err = e.Evaluate(context.Background(), "document.querySelector('!!')")
	require.ErrorAs(t, err, &ex)
	assert.Contains(t, ex.Message, "not a valid selector")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = e.Evaluate(ctx, "while (true) {}")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the runtime is usable after an interrupt
	assert.Equal(t, "3", eval(t, e, "1 + 2"))
}

func TestEngineHistory(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/a", "<title>A</title>")
	web.AddHTML("https://site.test/b", "<title>B</title>")
	e, rec := newTestEngine(t, web)
	ctx := context.Background()

	require.ErrorIs(t, e.GoBack(ctx), api.ErrNoHistory)
	require.ErrorIs(t, e.Reload(ctx), api.ErrNoHistory)

	open(t, e, rec, "https://site.test/a")
	open(t, e, rec, "https://site.test/b")

	require.NoError(t, e.GoBack(ctx))
	settle(t, e, rec)
	assert.Equal(t, "A", rec.title())
	require.ErrorIs(t, e.GoBack(ctx), api.ErrNoHistory)

	require.NoError(t, e.GoForward(ctx))
	settle(t, e, rec)
	assert.Equal(t, "B", rec.title())
	require.ErrorIs(t, e.GoForward(ctx), api.ErrNoHistory)

	require.NoError(t, e.Reload(ctx))
	settle(t, e, rec)
	assert.Equal(t, []string{"https://site.test/a", "https://site.test/b"}, e.entries)
	assert.Equal(t, 1, e.idx)

	require.NoError(t, e.CloseSession(ctx))
	assert.Empty(t, e.entries)
	require.Error(t, e.Navigate(ctx, "https://site.test/a"))
}

func TestEngineQueryElement(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", "<body>\n<p id=a>one</p>\n<p id=b>two</p>\n</body>")
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/")
	ctx := context.Background()

	el, err := e.QueryElement(ctx, "#b")
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, api.ElementRect{X: 8, Y: 32, Width: 784, Height: 24}, el.Rect)
	assert.Equal(t, "two", el.Text)
	assert.Equal(t, `<p id="b">two</p>`, el.HTML)
	assert.Equal(t, map[string]string{"id": "b"}, el.Attributes)

	el, err = e.QueryElement(ctx, "#missing")
	require.NoError(t, err)
	assert.Nil(t, el)

	_, err = e.QueryElement(ctx, "p[")
	require.ErrorIs(t, err, api.ErrInvalidSelector)
}

func TestEngineInput(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", `<body>
<input id="name">
<input id="agree" type="checkbox">
<button id="go" onclick="document.title = 'clicked ' + document.getElementById('name').value">Go</button>
<a id="next" href="/next">next</a>
</body>`)
	web.AddHTML("https://site.test/next", "<title>Next</title>")
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/")
	ctx := context.Background()

	click := func(selector string) {
		t.Helper()
		el, err := e.QueryElement(ctx, selector)
		require.NoError(t, err)
		require.NotNil(t, el, selector)
		x, y := el.Rect.Center()
		for _, typ := range []api.MouseEventType{api.MouseMove, api.MouseDown, api.MouseUp} {
			require.NoError(t, e.DispatchInput(ctx, api.MouseEvent{Type: typ, X: x, Y: y}))
		}
	}

	click("#name")
	assert.Equal(t, `"name"`, eval(t, e, "document.activeElement.id"))
	require.NoError(t, e.DispatchInput(ctx, api.KeyEvent{Type: api.KeyDown, Key: "a", Code: "KeyA", Text: "a", KeyCode: 65}))
	require.NoError(t, e.DispatchInput(ctx, api.KeyEvent{Type: api.KeyUp, Key: "a", Code: "KeyA", KeyCode: 65}))
	require.NoError(t, e.DispatchInput(ctx, api.TextEvent{Text: "bc"}))
	require.NoError(t, e.DispatchInput(ctx, api.KeyEvent{Type: api.KeyDown, Key: "Backspace", Code: "Backspace", KeyCode: 8}))
	assert.Equal(t, `"ab"`, eval(t, e, "document.getElementById('name').value"))

	click("#agree")
	assert.Equal(t, "true", eval(t, e, "document.getElementById('agree').checked"))

	click("#go")
	assert.Equal(t, "clicked ab", rec.title())

	require.NoError(t, e.DispatchInput(ctx, api.WheelEvent{X: 10, Y: 10, DeltaY: 100}))
	assert.Equal(t, "0", eval(t, e, "window.scrollY"), "the document is shorter than the viewport")

	click("#next")
	settle(t, e, rec)
	assert.Equal(t, "https://site.test/next", rec.urls[len(rec.urls)-1])
	assert.Equal(t, "Next", rec.title())
}

func TestEngineFormSubmit(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", `<form action="/search"><input name="q" id="q">
<input type="checkbox" name="safe" checked></form>`)
	web.AddHTML("https://site.test/search?q=go&safe=on", "<title>Results</title>")
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/")
	ctx := context.Background()

	eval(t, e, "document.getElementById('q').focus()")
	require.NoError(t, e.DispatchInput(ctx, api.TextEvent{Text: "go"}))
	require.NoError(t, e.DispatchInput(ctx, api.KeyEvent{Type: api.KeyDown, Key: "Enter", Code: "Enter", Text: "\r", KeyCode: 13}))
	settle(t, e, rec)

	assert.Equal(t, "https://site.test/search?q=go&safe=on", rec.urls[len(rec.urls)-1])
	assert.Equal(t, "Results", rec.title())
}

func TestEngineScriptNavigation(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", `<script>location.href = "/moved";</script><title>First</title>`)
	web.AddHTML("https://site.test/moved", "<title>Moved</title>")
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/")

	assert.Equal(t, []string{"https://site.test/", "https://site.test/moved"}, rec.urls)
	assert.Equal(t, "Moved", rec.title())
	assert.Equal(t, api.LoadComplete, rec.last())
}

func TestEngineTimersAndEvents(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", `<body onload="console.log('loaded')"><script>
document.addEventListener("DOMContentLoaded", function () { console.log("ready"); });
window.addEventListener("load", function () { console.log("load " + document.readyState); });
</script></body>`)
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/")

	msgs := make([]string, 0, len(rec.console))
	for _, m := range rec.console {
		msgs = append(msgs, m.Message)
	}
	assert.Equal(t, []string{"ready", "loaded", "load complete"}, msgs)

	eval(t, e, "setTimeout(function (t) { document.title = t; }, 0, 'later')")
	id := eval(t, e, "setTimeout(function () { document.title = 'never'; }, 0)")
	eval(t, e, "clearTimeout("+id+")")
	require.NoError(t, e.Pump())
	assert.Equal(t, "later", rec.title())
	assert.Zero(t, e.page.timers.len())

	assert.Equal(t, "true", eval(t, e, `(function () {
		var seen = [];
		var el = document.body;
		el.addEventListener("custom", function (ev) { seen.push("body:" + ev.detail); });
		document.addEventListener("custom", function () { seen.push("document"); });
		el.dispatchEvent(new CustomEvent("custom", {detail: 7, bubbles: true}));
		return seen.join(",") === "body:7,document";
	})()`))

}

func TestEngineCookies(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/a/", "")
	web.AddHTML("https://other.test/", "")
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/a/")

	eval(t, e, `document.cookie = "a=1"`)
	eval(t, e, `document.cookie = "b=2; path=/a"`)
	eval(t, e, `document.cookie = "c=3; path=/z"`)
	eval(t, e, `document.cookie = "not a cookie"`)
	assert.Equal(t, `"a=1; b=2"`, eval(t, e, "document.cookie"))

	eval(t, e, `document.cookie = "a=; expires=Thu, 01 Jan 1970 00:00:00 GMT"`)
	assert.Equal(t, `"b=2"`, eval(t, e, "document.cookie"))

	open(t, e, rec, "https://other.test/")
	assert.Equal(t, `""`, eval(t, e, "document.cookie"))
}

func TestEngineCapture(t *testing.T) {
	t.Parallel()

	web := NewWeb()
	web.AddHTML("https://site.test/", "<title>Shot</title><h1>Title</h1><input value=x><button>b</button><hr><img height=48>")
	e, rec := newTestEngine(t, web)
	open(t, e, rec, "https://site.test/")
	ctx := context.Background()

	html, err := e.CaptureHTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "<title>Shot</title>")

	decode := func() (int, int) {
		t.Helper()
		b, err := e.CaptureScreenshot(ctx)
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(b))
		require.NoError(t, err)
		return img.Bounds().Dx(), img.Bounds().Dy()
	}

	w, h := decode()
	assert.Equal(t, [2]int{800, 600}, [2]int{w, h})

	require.NoError(t, e.Resize(ctx, 320, 2000))
	w, h = decode()
	assert.Equal(t, [2]int{320, 2000}, [2]int{w, h})
	assert.Equal(t, "320", eval(t, e, "innerWidth"))

	require.Error(t, e.Resize(ctx, 0, 10))
}

func TestEngineClosed(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, NewWeb())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	err := e.Pump()
	require.ErrorIs(t, err, api.ErrEngineFault)
	_, err = e.Evaluate(context.Background(), "1")
	require.ErrorIs(t, err, api.ErrEngineFault)
	require.True(t, errors.Is(e.OpenSession(context.Background()), api.ErrEngineFault))
}

func TestLauncherRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := NewLauncher(NewWeb(), nil).Launch(context.Background(), api.EngineOptions{}, &recorder{})
	require.Error(t, err)
	_, err = NewLauncher(nil, nil).Launch(context.Background(), api.EngineOptions{Width: 1, Height: 1}, &recorder{})
	require.Error(t, err)
}
