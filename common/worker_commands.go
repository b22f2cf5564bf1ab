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
	"time"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/common/js"
)

// dispatch runs a command other than shutdown against the engine.
//
//nolint:funlen,gocyclo,cyclop
func (w *worker) dispatch(ctx context.Context, params commandParams) (payload, error) {
	op := params.name()

	switch c := params.(type) {
	case openCmd:
		return noPayload{}, w.open(ctx, c.url)
	case reloadCmd:
		_, err := w.navigate(ctx, op, navReload, w.state.url, w.engine.Reload)
		return noPayload{}, err
	case goBackCmd:
		ok, err := w.history(ctx, op, -1)
		return boolPayload(ok), err
	case goForwardCmd:
		ok, err := w.history(ctx, op, 1)
		return boolPayload(ok), err
	case resetCmd:
		return noPayload{}, w.reset(ctx)

	case evaluateCmd:
		v, err := w.evalJS(ctx, op, c.script)
		return jsonPayload(v), err
	case screenshotCmd:
		b, err := w.screenshot(ctx, op, c.fullPage)
		return bytesPayload(b), err
	case htmlCmd:
		cctx, cancel := w.callCtx(ctx)
		defer cancel()
		s, err := w.engine.CaptureHTML(cctx)
		if err != nil {
			return nil, w.engineError(ErrorKindScript, op, err)
		}
		return textPayload(s), nil
	case urlCmd:
		return textPayload(w.state.url), nil
	case titleCmd:
		return textPayload(w.state.title), nil
	case consoleLogCmd:
		return consolePayload(w.state.console.snapshot()), nil
	case networkLogCmd:
		return networkPayload(w.state.network.snapshot()), nil

	case waitForSelectorCmd:
		err := w.pollUntil(c.timeout, w.opts.PollInterval, func() (bool, error) {
			el, err := w.queryElement(ctx, op, c.selector)
			if err != nil {
				return false, w.notYet(op, err)
			}
			return el != nil, nil
		})
		return noPayload{}, w.waitError(op, err, "no element matched %q within %s", c.selector, c.timeout)
	case waitForConditionCmd:
		err := w.pollUntil(c.timeout, w.opts.PollInterval, func() (bool, error) {
			v, err := w.evalJS(ctx, op, c.script)
			if err != nil {
				return false, w.notYet(op, err)
			}
			return truthy(v), nil
		})
		return noPayload{}, w.waitError(op, err, "condition not met within %s", c.timeout)
	case waitCmd:
		return noPayload{}, w.pumpFor(c.d)
	case waitForNavigationCmd:
		return noPayload{}, w.waitForNavigation(op, c.timeout)
	case waitForNetworkIdleCmd:
		if w.state.requests == 0 {
			return noPayload{}, nil
		}
		err := w.pollUntil(c.timeout, w.opts.PollInterval, func() (bool, error) {
			return time.Since(w.state.lastRequest) >= c.idle, nil
		})
		return noPayload{}, w.waitError(op, err, "network not idle for %s within %s", c.idle, c.timeout)

	case clickAtCmd:
		return noPayload{}, w.click(ctx, op, c.x, c.y)
	case clickSelectorCmd:
		el, err := w.visibleElement(ctx, op, c.selector)
		if err != nil {
			return nil, err
		}
		x, y := el.Rect.Center()
		return noPayload{}, w.click(ctx, op, x, y)
	case typeTextCmd:
		return noPayload{}, w.input(ctx, op, w.keys.typ(c.text)...)
	case keyPressCmd:
		evs, err := w.keys.press(c.key)
		if err != nil {
			return nil, newError(ErrorKindInvalidArgument, op, err, "")
		}
		return noPayload{}, w.input(ctx, op, evs...)
	case mouseMoveCmd:
		return noPayload{}, w.input(ctx, op, api.MouseEvent{Type: api.MouseMove, X: c.x, Y: c.y})
	case scrollByCmd:
		return noPayload{}, w.input(ctx, op, api.WheelEvent{
			X:      float64(w.opts.Width) / 2,
			Y:      float64(w.opts.Height) / 2,
			DeltaX: c.dx,
			DeltaY: c.dy,
		})
	case scrollToSelectorCmd:
		if err := w.scrollIntoView(ctx, op, c.selector); err != nil {
			return nil, err
		}
		return noPayload{}, w.waitForFrame(w.opts.InputSettle)
	case selectOptionCmd:
		return noPayload{}, w.callStatus(ctx, op, c.selector, js.SelectOptionScript, c.selector, c.value)
	case setInputFilesCmd:
		files := c.files
		if files == nil {
			files = []api.InputFile{}
		}
		return noPayload{}, w.callStatus(ctx, op, c.selector, js.SetInputFilesScript, c.selector, files)

	case cookiesCmd:
		s, err := w.evalString(ctx, op, "document.cookie")
		return textPayload(s), err
	case setCookieCmd:
		_, err := w.call(ctx, op, "(c) => { document.cookie = c; return true; }", c.cookie)
		return noPayload{}, err
	case clearCookiesCmd:
		_, err := w.call(ctx, op, js.ClearCookiesScript)
		return noPayload{}, err
	case blockURLsCmd:
		w.state.setBlocked(c.patterns)
		return noPayload{}, nil

	case elementRectCmd:
		el, err := w.element(ctx, op, c.selector)
		if err != nil {
			return nil, err
		}
		return rectPayload(el.Rect), nil
	case elementTextCmd:
		el, err := w.element(ctx, op, c.selector)
		if err != nil {
			return nil, err
		}
		return textPayload(el.Text), nil
	case elementAttrCmd:
		el, err := w.element(ctx, op, c.selector)
		if err != nil {
			return nil, err
		}
		v, ok := el.Attributes[c.attr]
		return attrPayload{value: v, ok: ok}, nil
	case elementHTMLCmd:
		el, err := w.element(ctx, op, c.selector)
		if err != nil {
			return nil, err
		}
		return textPayload(el.HTML), nil
	}

	return nil, newError(ErrorKindInvalidArgument, op, nil, "unknown command %T", params)
}

// open creates the session when there is none and navigates it to url.
func (w *worker) open(ctx context.Context, url string) error {
	if !w.state.active {
		cctx, cancel := w.callCtx(ctx)
		err := w.engine.OpenSession(cctx)
		cancel()
		if err != nil {
			return w.engineError(ErrorKindInit, "open", err)
		}
		w.state.active = true
		w.logger.Debugf("Worker:open", "pid:%s session opened", w.id)
	}

	_, err := w.navigate(ctx, "open", navNew, url, func(ctx context.Context) error {
		return w.engine.Navigate(ctx, url)
	})
	return err
}

// history moves the history cursor by delta and navigates to the entry. It
// returns false when there is no entry to move to.
func (w *worker) history(ctx context.Context, op string, delta int) (bool, error) {
	move := w.engine.GoBack
	canMove := w.state.canGoBack()
	if delta > 0 {
		move = w.engine.GoForward
		canMove = w.state.canGoForward()
	}
	if !canMove {
		return false, nil
	}

	w.state.cursor += delta
	requested, err := w.navigate(ctx, op, navHistory, w.state.history[w.state.cursor], move)
	if !requested {
		// The engine did not move.
		w.state.cursor -= delta
		if errors.Is(err, api.ErrNoHistory) {
			return false, nil
		}
		return false, err
	}
	return err == nil, err
}

func (w *worker) reset(ctx context.Context) error {
	if w.state.active {
		cctx, cancel := w.callCtx(ctx)
		err := w.engine.CloseSession(cctx)
		cancel()
		if errors.Is(err, api.ErrEngineFault) {
			return err
		}
		if err != nil {
			w.logger.Warnf("Worker:reset", "pid:%s closing session: %v", w.id, err)
		}
	}
	w.state.reset()
	w.tracer.EndNavigation(w.id)
	return nil
}

// waitForNavigation waits for the load of a navigation the page started on
// its own, e.g. after a click on a link. A navigation started since the
// previous wait or navigation command counts, so a click that navigated
// before the wait began is not missed.
func (w *worker) waitForNavigation(op string, timeout time.Duration) error {
	err := w.pollUntil(timeout, w.opts.PollInterval, func() (bool, error) {
		if w.state.pageNavs == w.state.navsWaited {
			return false, nil
		}
		return w.state.loadComplete || w.state.loadErr != nil, nil
	})
	if err != nil {
		return w.waitError(op, err, "no navigation within %s", timeout)
	}
	w.state.navsWaited = w.state.pageNavs
	if w.state.loadErr != nil {
		return newError(ErrorKindLoad, op, w.state.loadErr, "")
	}
	return nil
}

// click moves the mouse to x,y and presses its main button there.
func (w *worker) click(ctx context.Context, op string, x, y float64) error {
	return w.input(ctx, op,
		api.MouseEvent{Type: api.MouseMove, X: x, Y: y},
		api.MouseEvent{Type: api.MouseDown, X: x, Y: y},
		api.MouseEvent{Type: api.MouseUp, X: x, Y: y},
	)
}

// input dispatches evs in order, then gives the engine a chance to render
// their effects.
func (w *worker) input(ctx context.Context, op string, evs ...api.InputEvent) error {
	for _, ev := range evs {
		cctx, cancel := w.callCtx(ctx)
		err := w.engine.DispatchInput(cctx, ev)
		cancel()
		if err != nil {
			return w.engineError(ErrorKindScript, op, err)
		}
	}
	return w.waitForFrame(w.opts.InputSettle)
}

// element returns the first element matching selector, or a selector not
// found error.
func (w *worker) element(ctx context.Context, op, selector string) (*api.ElementInfo, error) {
	el, err := w.queryElement(ctx, op, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, newError(ErrorKindSelectorNotFound, op, nil, "%q", selector)
	}
	return el, nil
}

// visibleElement is like element but scrolls the element into the viewport
// first when its center is outside of it.
func (w *worker) visibleElement(ctx context.Context, op, selector string) (*api.ElementInfo, error) {
	el, err := w.element(ctx, op, selector)
	if err != nil {
		return nil, err
	}
	if x, y := el.Rect.Center(); w.inViewport(x, y) {
		return el, nil
	}

	if err := w.scrollIntoView(ctx, op, selector); err != nil {
		return nil, err
	}
	if err := w.waitForFrame(w.opts.InputSettle); err != nil {
		return nil, err
	}
	return w.element(ctx, op, selector)
}

func (w *worker) inViewport(x, y float64) bool {
	return x >= 0 && y >= 0 && x < float64(w.opts.Width) && y < float64(w.opts.Height)
}

func (w *worker) scrollIntoView(ctx context.Context, op, selector string) error {
	v, err := w.call(ctx, op, js.ScrollIntoViewScript, selector)
	if err != nil {
		return err
	}
	if !truthy(v) {
		return newError(ErrorKindSelectorNotFound, op, nil, "%q", selector)
	}
	return nil
}

func (w *worker) queryElement(ctx context.Context, op, selector string) (*api.ElementInfo, error) {
	cctx, cancel := w.callCtx(ctx)
	defer cancel()

	el, err := w.engine.QueryElement(cctx, selector)
	if errors.Is(err, api.ErrInvalidSelector) {
		return nil, newError(ErrorKindInvalidArgument, op, err, "selector %q", selector)
	}
	if err != nil {
		return nil, w.engineError(ErrorKindScript, op, err)
	}
	return el, nil
}

// callStatus calls one of the scripts reporting their outcome as a status
// string.
func (w *worker) callStatus(ctx context.Context, op, selector, fn string, args ...any) error {
	v, err := w.call(ctx, op, fn, args...)
	if err != nil {
		return err
	}
	var status string
	if err := json.Unmarshal(v, &status); err != nil {
		return newError(ErrorKindScript, op, err, "unexpected result %s", v)
	}

	switch status {
	case "ok":
		return w.waitForFrame(w.opts.InputSettle)
	case "not_found":
		return newError(ErrorKindSelectorNotFound, op, nil, "%q", selector)
	default:
		return newError(ErrorKindScript, op, nil, "%q: %s", selector, status)
	}
}

// call evaluates the function expression fn applied to args.
func (w *worker) call(ctx context.Context, op, fn string, args ...any) (json.RawMessage, error) {
	script, err := js.Call(fn, args...)
	if err != nil {
		return nil, newError(ErrorKindInvalidArgument, op, err, "")
	}
	return w.evalJS(ctx, op, script)
}

func (w *worker) evalJS(ctx context.Context, op, script string) (json.RawMessage, error) {
	cctx, cancel := w.callCtx(ctx)
	defer cancel()

	v, err := w.engine.Evaluate(cctx, script)
	if err != nil {
		return nil, w.engineError(ErrorKindScript, op, err)
	}
	if len(v) == 0 {
		return json.RawMessage("null"), nil
	}
	return v, nil
}

func (w *worker) evalString(ctx context.Context, op, script string) (string, error) {
	v, err := w.evalJS(ctx, op, script)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", newError(ErrorKindScript, op, err, "expected a string, got %s", v)
	}
	return s, nil
}

// callCtx bounds a single engine call by the load timeout.
func (w *worker) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.opts.LoadTimeout)
}

// engineError classifies an error returned by the engine. Engine faults
// are returned as is so the worker can stop.
func (w *worker) engineError(kind ErrorKind, op string, err error) error {
	var pe *Error
	switch {
	case errors.Is(err, api.ErrEngineFault):
		return err
	case errors.As(err, &pe):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return newError(ErrorKindTimeout, op, err, "engine did not answer within %s", w.opts.LoadTimeout)
	}
	return newError(kind, op, err, "")
}

// notYet makes a script failure inside a wait condition count as the
// condition not holding yet, e.g. while the element a condition reads is
// still missing or the document is being replaced.
func (w *worker) notYet(op string, err error) error {
	if errors.Is(err, ErrScript) {
		w.logger.Debugf("Worker:"+op, "pid:%s condition not met: %v", w.id, err)
		return nil
	}
	return err
}

// waitError turns the error of a bounded wait into a Page error.
func (w *worker) waitError(op string, err error, format string, args ...any) error {
	if errors.Is(err, errDeadline) {
		return newError(ErrorKindTimeout, op, nil, format, args...)
	}
	return err
}

// truthy tells whether the JSON encoded value v is truthy in JavaScript.
func truthy(v json.RawMessage) bool {
	var x any
	if err := json.Unmarshal(v, &x); err != nil {
		return false
	}
	switch x := x.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}
