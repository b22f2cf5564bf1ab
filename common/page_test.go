package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/log"
)

// newTestPage returns a page running e with short waits.
func newTestPage(t *testing.T, e *fakeEngine, opts ...func(*PageOptions)) *Page {
	t.Helper()

	return newTestPageContext(context.Background(), t, e, opts...)
}

func newTestPageContext(ctx context.Context, t *testing.T, e *fakeEngine, opts ...func(*PageOptions)) *Page {
	t.Helper()

	o := NewPageOptions()
	o.LoadTimeout = 2 * time.Second
	o.Settle = 0
	o.PollInterval = 5 * time.Millisecond
	o.PumpInterval = time.Millisecond
	o.InputSettle = 0
	for _, fn := range opts {
		fn(o)
	}

	p, err := NewPage(ctx, e.launcher(), o, log.NullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return p
}

func TestPageOpen(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://example.test"] = fakeResource{redirect: "https://example.test/home"}
	e.resources["https://example.test/home"] = fakeResource{title: "Home"}
	p := newTestPage(t, e)

	require.NoError(t, p.Open("https://example.test"))

	u, err := p.URL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/home", u)

	title, err := p.Title()
	require.NoError(t, err)
	assert.Equal(t, "Home", title)

	html, err := p.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, "<title>Home</title>")
}

func TestPageOpenFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		res  *fakeResource
		want error
	}{
		{name: "unresolved", url: "https://nowhere.test", want: ErrLoad},
		{name: "load_failed", url: "https://fail.test", res: &fakeResource{fail: errors.New("net::ERR_CONNECTION_REFUSED")}, want: ErrLoad},
		{name: "timeout", url: "https://slow.test", res: &fakeResource{never: true}, want: ErrTimeout},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newFakeEngine()
			if tc.res != nil {
				e.resources[tc.url] = *tc.res
			}
			e.resources["https://ok.test"] = fakeResource{title: "OK"}
			p := newTestPage(t, e, func(o *PageOptions) { o.LoadTimeout = 100 * time.Millisecond })

			err := p.Open(tc.url)
			require.ErrorIs(t, err, tc.want)
			var pe *Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "open", pe.Op)

			// the worker keeps serving commands
			_, err = p.URL()
			require.NoError(t, err)
			require.NoError(t, p.Open("https://ok.test"))
			title, err := p.Title()
			require.NoError(t, err)
			assert.Equal(t, "OK", title)
		})
	}
}

func TestPageNoActiveSession(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, newFakeEngine())

	calls := map[string]func() error{
		"url":             func() error { _, err := p.URL(); return err },
		"evaluate":        func() error { _, err := p.Evaluate("1"); return err },
		"wait":            func() error { return p.Wait(time.Millisecond) },
		"waitForSelector": func() error { return p.WaitForSelector("a", time.Millisecond) },
		"click":           func() error { return p.Click(1, 1) },
		"goBack":          func() error { _, err := p.GoBack(); return err },
		"screenshot":      func() error { _, err := p.Screenshot(); return err },
		"elementText":     func() error { _, err := p.ElementText("a"); return err },
	}
	for name, fn := range calls {
		assert.ErrorIs(t, fn(), ErrNoActiveSession, name)
	}

	msgs, err := p.ConsoleMessages()
	require.NoError(t, err)
	assert.Empty(t, msgs)
	reqs, err := p.NetworkRequests()
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.NoError(t, p.BlockURLs([]string{"ads"}))
	assert.NoError(t, p.Reset())
}

func TestPageInvalidArguments(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, newFakeEngine())

	calls := map[string]func() error{
		"open_no_scheme":     func() error { return p.Open("example.test") },
		"open_bad_url":       func() error { return p.Open("http://[::1") },
		"evaluate_empty":     func() error { _, err := p.Evaluate(""); return err },
		"selector_empty":     func() error { return p.WaitForSelector("", time.Second) },
		"timeout_negative":   func() error { return p.WaitForNavigation(-time.Second) },
		"wait_negative":      func() error { return p.Wait(-time.Millisecond) },
		"condition_empty":    func() error { return p.WaitForCondition("", time.Second) },
		"click_nan":          func() error { return p.Click(math.NaN(), 0) },
		"scroll_inf":         func() error { return p.Scroll(0, math.Inf(1)) },
		"key_unknown":        func() error { return p.KeyPress("NotAKey") },
		"cookie_empty":       func() error { return p.SetCookie("") },
		"attribute_empty":    func() error { _, _, err := p.ElementAttribute("a", ""); return err },
		"file_without_name":  func() error { return p.SetInputFiles("input", []api.InputFile{{}}) },
		"rect_selector_none": func() error { _, err := p.ElementRect(""); return err },
	}
	for name, fn := range calls {
		assert.ErrorIs(t, fn(), ErrInvalidArgument, name)
	}
}

func TestPageReset(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{
		title:    "A",
		console:  []api.ConsoleMessage{{Level: "log", Message: "one"}, {Level: "error", Message: "two"}},
		requests: []string{"https://a.test/app.js"},
	}
	p := newTestPage(t, e, func(o *PageOptions) { o.Width, o.Height = 800, 600 })

	require.NoError(t, p.BlockURLs([]string{"app.js"}))
	require.NoError(t, p.Open("https://a.test"))
	msgs, err := p.ConsoleMessages()
	require.NoError(t, err)
	assert.Equal(t, []api.ConsoleMessage{{Level: "log", Message: "one"}, {Level: "error", Message: "two"}}, msgs)

	require.NoError(t, p.Reset())

	msgs, err = p.ConsoleMessages()
	require.NoError(t, err)
	assert.Empty(t, msgs)
	reqs, err := p.NetworkRequests()
	require.NoError(t, err)
	assert.Empty(t, reqs)
	_, err = p.URL()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, int64(800), p.Options().Width)
	assert.Equal(t, int64(600), p.Options().Height)

	// blocked patterns were cleared
	require.NoError(t, p.Open("https://a.test"))
	assert.Equal(t, []string{"https://a.test/app.js"}, e.recordedBlocked())
	require.NoError(t, p.Close())
	assert.Equal(t, 2, e.sessions)
}

func TestPageClose(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	p := newTestPage(t, e)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, e.isClosed())

	_, err := p.URL()
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, p.Open("https://a.test"), ErrChannelClosed)
}

func TestPageCloseWithPendingCommands(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Wait(10 * time.Millisecond)
			if err != nil {
				assert.ErrorIs(t, err, ErrChannelClosed)
			}
		}()
	}
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, p.Close())
	wg.Wait()
}

func TestPageInitFailure(t *testing.T) {
	t.Parallel()

	launchErr := errors.New("no browser found")
	launcher := api.EngineLauncherFunc(func(context.Context, api.EngineOptions, api.EngineDelegate) (api.Engine, error) {
		return nil, launchErr
	})

	p, err := NewPage(context.Background(), launcher, nil, nil)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrInit)
	assert.ErrorIs(t, err, launchErr)

	opts := NewPageOptions()
	opts.Width = 0
	_, err = NewPage(context.Background(), newFakeEngine().launcher(), opts, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPageEngineFault(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	e.evaluate = func(string) (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: target crashed", api.ErrEngineFault)
	}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	_, err := p.Evaluate("1")
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, err, api.ErrEngineFault)

	_, err = p.URL()
	assert.ErrorIs(t, err, ErrChannelClosed)

	require.NoError(t, p.Close())
	assert.True(t, e.isClosed())
}

func TestPagePumpPanic(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	e.pumpPanic.Store(true)
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the engine panicked")
	}

	_, err := p.URL()
	assert.ErrorIs(t, err, ErrChannelClosed)
	require.NoError(t, p.Close())
	assert.True(t, e.isClosed())
}

func TestPageConcurrentCallers(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	e.evaluate = func(script string) (json.RawMessage, error) {
		return json.Marshal(script)
	}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	const callers, calls = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				script := fmt.Sprintf("%d-%d", i, j)
				v, err := p.Evaluate(script)
				if assert.NoError(t, err) {
					assert.JSONEq(t, fmt.Sprintf("%q", script), string(v))
				}
			}
		}()
	}
	wg.Wait()
}

func TestPageSequentialConsistency(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{title: "A"}
	e.resources["https://b.test"] = fakeResource{title: "B", delay: 5}
	p := newTestPage(t, e)

	for _, u := range []string{"https://a.test", "https://b.test", "https://a.test"} {
		require.NoError(t, p.Open(u))
		got, err := p.URL()
		require.NoError(t, err)
		assert.Equal(t, u, got)
	}
}

func TestPageConcurrentClickAndEvaluate(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	e.elements["#a"] = &api.ElementInfo{Rect: api.ElementRect{X: 10, Y: 10, Width: 20, Height: 20}}
	e.evaluate = func(script string) (json.RawMessage, error) {
		if script != "readAState()" {
			return json.RawMessage("null"), nil
		}
		var clicks int
		for _, op := range e.recordedOrder() {
			if op == "click" {
				clicks++
			}
		}
		e.record("evaluate")
		return json.Marshal(clicks)
	}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	const rounds = 25
	for i := 0; i < rounds; i++ {
		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			got   json.RawMessage
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, p.ClickSelector("#a"))
		}()
		go func() {
			defer wg.Done()
			<-start
			var err error
			got, err = p.Evaluate("readAState()")
			assert.NoError(t, err)
		}()
		close(start)
		wg.Wait()

		order := e.recordedOrder()
		require.Len(t, order, 2*(i+1))
		want := i
		if order[len(order)-2] == "click" {
			// the click ran first, so the evaluation saw it
			want = i + 1
		}
		assert.JSONEq(t, fmt.Sprint(want), string(got), "round %d order %v", i, order[len(order)-2:])
	}
}

func TestPageWaitTimeout(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	const (
		timeout          = 150 * time.Millisecond
		poll             = 20 * time.Millisecond
		schedulingMargin = 25 * time.Millisecond
	)
	p := newTestPage(t, e, func(o *PageOptions) { o.PollInterval = poll })
	require.NoError(t, p.Open("https://a.test"))

	start := time.Now()
	err := p.WaitForSelector("#missing", timeout)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	// sleeps are clipped to the deadline; the margin covers scheduling
	assert.Less(t, elapsed, timeout+poll+schedulingMargin)

	start = time.Now()
	require.NoError(t, p.Wait(50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPageWaitForCondition(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	var calls, dataCalls int
	e.evaluate = func(script string) (json.RawMessage, error) {
		switch script {
		case "window.ready":
			calls++
			if calls < 3 {
				return json.RawMessage("0"), nil
			}
			return json.RawMessage(`"yes"`), nil
		case "document.querySelector('#x').dataset.ready":
			// #x shows up on the third check
			dataCalls++
			if dataCalls < 3 {
				return nil, &api.ScriptException{Message: "TypeError: Cannot read properties of null"}
			}
			return json.RawMessage("true"), nil
		case "throw":
			return nil, &api.ScriptException{Message: "Error: boom"}
		}
		return json.RawMessage("null"), nil
	}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	require.NoError(t, p.WaitForCondition("window.ready", time.Second))
	assert.ErrorIs(t, p.WaitForCondition("window.never", 30*time.Millisecond), ErrTimeout)

	require.NoError(t, p.WaitForCondition("document.querySelector('#x').dataset.ready", time.Second))
	assert.Equal(t, 3, dataCalls)

	const timeout = 50 * time.Millisecond
	start := time.Now()
	err := p.WaitForCondition("throw", timeout)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), timeout)

	assert.ErrorIs(t, p.WaitForSelector("!!", time.Second), ErrInvalidArgument)

	_, err = p.Evaluate("throw")
	assert.ErrorIs(t, err, ErrScript)
	v, err := p.Evaluate("undefined")
	require.NoError(t, err)
	assert.Equal(t, "null", string(v))
}

func TestPageWaitForNavigation(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{title: "A"}
	e.resources["https://b.test"] = fakeResource{title: "B", delay: 200}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	assert.ErrorIs(t, p.WaitForNavigation(20*time.Millisecond), ErrTimeout)

	e.clickNavigates = "https://b.test"
	require.NoError(t, p.Click(5, 5))
	require.NoError(t, p.WaitForNavigation(5*time.Second))

	u, err := p.URL()
	require.NoError(t, err)
	assert.Equal(t, "https://b.test", u)

	ok, err := p.GoBack()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPageHistory(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{title: "A"}
	e.resources["https://b.test"] = fakeResource{title: "B"}
	p := newTestPage(t, e)

	ok, err := p.GoBack()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.False(t, ok)

	require.NoError(t, p.Open("https://a.test"))
	ok, err = p.GoBack()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Open("https://b.test"))

	assertPage := func(wantURL, wantTitle string) {
		t.Helper()
		u, err := p.URL()
		require.NoError(t, err)
		assert.Equal(t, wantURL, u)
		title, err := p.Title()
		require.NoError(t, err)
		assert.Equal(t, wantTitle, title)
	}

	ok, err = p.GoBack()
	require.NoError(t, err)
	assert.True(t, ok)
	assertPage("https://a.test", "A")

	ok, err = p.GoForward()
	require.NoError(t, err)
	assert.True(t, ok)
	assertPage("https://b.test", "B")

	ok, err = p.GoForward()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Reload())
	assertPage("https://b.test", "B")
}

func TestPageHistoryMoveFailure(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{title: "A"}
	e.resources["https://b.test"] = fakeResource{title: "B"}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))
	require.NoError(t, p.Open("https://b.test"))

	e.moveErr = errors.New("target detached")
	ok, err := p.GoBack()
	assert.ErrorIs(t, err, ErrLoad)
	assert.False(t, ok)

	// the cursor did not move, so going back still works once the engine
	// does
	e.moveErr = nil
	ok, err = p.GoForward()
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = p.GoBack()
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := p.URL()
	require.NoError(t, err)
	assert.Equal(t, "https://a.test", u)
}

func TestPageBuffers(t *testing.T) {
	t.Parallel()

	var console []api.ConsoleMessage
	for i := 0; i < 5; i++ {
		console = append(console, api.ConsoleMessage{Level: "log", Message: fmt.Sprint(i)})
	}
	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{
		console:  console,
		requests: []string{"https://a.test/app.js", "https://ads.test/x.js"},
	}
	p := newTestPage(t, e, func(o *PageOptions) {
		o.ConsoleCapacity = 3
		o.NetworkCapacity = 2
	})
	require.NoError(t, p.BlockURLs([]string{"ads."}))
	require.NoError(t, p.Open("https://a.test"))

	msgs, err := p.ConsoleMessages()
	require.NoError(t, err)
	assert.Equal(t, console[2:], msgs)

	reqs, err := p.NetworkRequests()
	require.NoError(t, err)
	assert.Equal(t, []api.NetworkRequest{
		{Method: "GET", URL: "https://a.test/app.js"},
		{Method: "GET", URL: "https://ads.test/x.js"},
	}, reqs)
	assert.Equal(t, []string{"https://ads.test/x.js"}, e.recordedBlocked())

	// reading does not consume
	again, err := p.ConsoleMessages()
	require.NoError(t, err)
	assert.Equal(t, msgs, again)

	require.NoError(t, p.WaitForNetworkIdle(10*time.Millisecond, time.Second))

	require.NoError(t, p.ClearBlockedURLs())
	require.NoError(t, p.Reload())
	assert.Len(t, e.recordedBlocked(), 1)
}

func TestPageElements(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	e.elements["a.more"] = &api.ElementInfo{
		Rect:       api.ElementRect{X: 10, Y: 20, Width: 100, Height: 40},
		Text:       "More",
		HTML:       `<a class="more" href="/more">More</a>`,
		Attributes: map[string]string{"class": "more", "href": "/more"},
	}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	rect, err := p.ElementRect("a.more")
	require.NoError(t, err)
	assert.Equal(t, api.ElementRect{X: 10, Y: 20, Width: 100, Height: 40}, rect)

	text, err := p.ElementText("a.more")
	require.NoError(t, err)
	assert.Equal(t, "More", text)

	html, err := p.ElementHTML("a.more")
	require.NoError(t, err)
	assert.Equal(t, `<a class="more" href="/more">More</a>`, html)

	v, ok, err := p.ElementAttribute("a.more", "href")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/more", v)

	v, ok, err = p.ElementAttribute("a.more", "title")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)

	_, _, err = p.ElementAttribute("#missing", "href")
	assert.ErrorIs(t, err, ErrSelectorNotFound)
	_, err = p.ElementText("#missing")
	assert.ErrorIs(t, err, ErrSelectorNotFound)
	_, err = p.ElementRect("!!")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, p.WaitForSelector("a.more", time.Second))
	require.NoError(t, p.ClickSelector("a.more"))
	assert.Equal(t, []api.InputEvent{
		api.MouseEvent{Type: api.MouseMove, X: 60, Y: 40},
		api.MouseEvent{Type: api.MouseDown, X: 60, Y: 40},
		api.MouseEvent{Type: api.MouseUp, X: 60, Y: 40},
	}, e.recordedInputs())
	assert.ErrorIs(t, p.ClickSelector("#missing"), ErrSelectorNotFound)
}

func TestPageInput(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	p := newTestPage(t, e, func(o *PageOptions) { o.Width, o.Height = 800, 600 })
	require.NoError(t, p.Open("https://a.test"))

	require.NoError(t, p.KeyPress("Enter"))
	require.NoError(t, p.TypeText("hé"))
	require.NoError(t, p.MouseMove(3, 4))
	require.NoError(t, p.Scroll(0, 120))

	assert.Equal(t, []api.InputEvent{
		api.KeyEvent{Type: api.KeyDown, Key: "Enter", Code: "Enter", Text: "\r", KeyCode: 13},
		api.KeyEvent{Type: api.KeyUp, Key: "Enter", Code: "Enter", KeyCode: 13},
		api.KeyEvent{Type: api.KeyDown, Key: "h", Code: "KeyH", Text: "h", KeyCode: 72},
		api.KeyEvent{Type: api.KeyUp, Key: "h", Code: "KeyH", KeyCode: 72},
		api.TextEvent{Text: "é"},
		api.MouseEvent{Type: api.MouseMove, X: 3, Y: 4},
		api.WheelEvent{X: 400, Y: 300, DeltaY: 120},
	}, e.recordedInputs())
}

func TestPageScripts(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	var cookies []string
	e.evaluate = func(script string) (json.RawMessage, error) {
		switch {
		case script == "document.cookie":
			return json.Marshal(strings.Join(cookies, "; "))
		case strings.Contains(script, "document.cookie = c"):
			cookies = append(cookies, "a=1")
			return json.RawMessage("true"), nil
		case strings.Contains(script, "expires=Thu"):
			cookies = nil
			return json.RawMessage("true"), nil
		case strings.Contains(script, `"#missing"`) && strings.Contains(script, "scrollIntoView"):
			return json.RawMessage("false"), nil
		case strings.Contains(script, `"#missing"`):
			return json.RawMessage(`"not_found"`), nil
		case strings.Contains(script, `"#text"`):
			return json.RawMessage(`"not_select"`), nil
		case strings.Contains(script, "not_select"), strings.Contains(script, "not_file_input"):
			return json.RawMessage(`"ok"`), nil
		}
		return json.RawMessage("true"), nil
	}
	p := newTestPage(t, e)
	require.NoError(t, p.Open("https://a.test"))

	require.NoError(t, p.SetCookie("a=1"))
	c, err := p.Cookies()
	require.NoError(t, err)
	assert.Equal(t, "a=1", c)
	require.NoError(t, p.ClearCookies())
	c, err = p.Cookies()
	require.NoError(t, err)
	assert.Empty(t, c)

	assert.NoError(t, p.SelectOption("select", "b"))
	assert.ErrorIs(t, p.SelectOption("#missing", "b"), ErrSelectorNotFound)
	assert.ErrorIs(t, p.SelectOption("#text", "b"), ErrScript)

	files := []api.InputFile{{Name: "a.txt", MimeType: "text/plain", Data: []byte("hello")}}
	assert.NoError(t, p.SetInputFiles("input[type=file]", files))
	assert.ErrorIs(t, p.SetInputFiles("#missing", files), ErrSelectorNotFound)

	assert.NoError(t, p.ScrollToSelector("footer"))
	assert.ErrorIs(t, p.ScrollToSelector("#missing"), ErrSelectorNotFound)
}

func TestPageScreenshot(t *testing.T) {
	t.Parallel()

	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	e.evaluate = func(script string) (json.RawMessage, error) {
		if strings.Contains(script, "scrollHeight") {
			return json.RawMessage(`{"width": 800, "height": 2500.5}`), nil
		}
		return json.RawMessage("null"), nil
	}
	p := newTestPage(t, e, func(o *PageOptions) { o.Width, o.Height = 800, 600 })
	require.NoError(t, p.Open("https://a.test"))

	b, err := p.Screenshot()
	require.NoError(t, err)
	assert.Equal(t, "png:800x600", string(b))
	assert.Empty(t, e.recordedResizes())

	b, err = p.ScreenshotFullPage()
	require.NoError(t, err)
	assert.Equal(t, "png:800x2501", string(b))
	assert.Equal(t, []int64{2501, 600}, e.recordedResizes())

	e.frozen = true
	_, err = p.ScreenshotFullPage()
	assert.ErrorIs(t, err, ErrScreenshot)
	assert.Equal(t, []int64{2501, 600, 2501, 600}, e.recordedResizes(), "the viewport is restored")
}

func TestPageMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	e := newFakeEngine()
	e.resources["https://a.test"] = fakeResource{}
	p := newTestPageContext(WithRegisterer(context.Background(), reg), t, e)

	require.NoError(t, p.Open("https://a.test"))
	_, err := p.URL()
	require.NoError(t, err)
	_, err = p.ElementText("#missing")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.commands.WithLabelValues("open", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.commands.WithLabelValues("url", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.commands.WithLabelValues("elementText", "selector not found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.metrics.queueDepth))

	// a second page shares the collectors
	p2 := newTestPageContext(WithRegisterer(context.Background(), reg), t, newFakeEngine())
	assert.Same(t, p.metrics.commands, p2.metrics.commands)
}
