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
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// errDeadline is returned by the waits below when their deadline elapsed.
// Commands turn it into a timeout error.
var errDeadline = errors.New("deadline exceeded")

// pumpFor keeps the engine running for d.
func (w *worker) pumpFor(d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		if err := w.pump(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		time.Sleep(min(w.opts.PumpInterval, remaining))
	}
}

// pollUntil pumps the engine and checks cond every interval until cond
// holds or timeout elapses. An error from cond ends the wait.
func (w *worker) pollUntil(timeout, interval time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := w.pump(); err != nil {
			return err
		}
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errDeadline
		}
		if err := w.pumpFor(min(interval, remaining)); err != nil {
			return err
		}
	}
}

// waitForFrame waits up to timeout for the engine to produce a frame. Not
// getting one is not an error.
func (w *worker) waitForFrame(timeout time.Duration) error {
	start := w.state.frames
	err := w.pollUntil(timeout, w.opts.PumpInterval, func() (bool, error) {
		return w.state.frames > start, nil
	})
	if errors.Is(err, errDeadline) {
		return nil
	}
	return err
}

// waitForLoad waits for the pending load to complete or fail.
func (w *worker) waitForLoad(op string, timeout time.Duration) error {
	err := w.pollUntil(timeout, w.opts.PumpInterval, func() (bool, error) {
		return w.state.loadComplete || w.state.loadErr != nil, nil
	})
	switch {
	case errors.Is(err, errDeadline):
		return newError(ErrorKindTimeout, op, nil, "page did not load within %s", timeout)
	case err != nil:
		return err
	case w.state.loadErr != nil:
		return newError(ErrorKindLoad, op, w.state.loadErr, "")
	}
	return nil
}

// navigate requests a navigation with start, waits for the load up to the
// load timeout, then lets the page settle. It reports whether start
// requested the load, which is not the case when start failed.
func (w *worker) navigate(
	ctx context.Context, op string, kind navKind, target string, start func(context.Context) error,
) (requested bool, err error) {
	// The navigation span stays open until the next navigation.
	w.tracer.TraceNavigation(w.ctx, w.id, oteltrace.WithAttributes(
		attribute.String("navigation.command", op),
		attribute.String("navigation.url", target),
	))

	w.state.beginLoad(kind)
	cctx, cancel := context.WithTimeout(ctx, w.opts.LoadTimeout)
	err = start(cctx)
	cancel()
	if err != nil {
		w.state.endLoad()
		return false, w.engineError(ErrorKindLoad, op, err)
	}

	err = w.waitForLoad(op, w.opts.LoadTimeout)
	w.state.endLoad()
	if err != nil {
		return true, err
	}

	return true, w.pumpFor(w.opts.Settle)
}
