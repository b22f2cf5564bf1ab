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
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/log"
	"github.com/grafana/xk6-headless/trace"
)

var _ api.EngineDelegate = &worker{}

// worker is the goroutine that owns the engine and the page state. It runs
// the queued commands one at a time and answers each exactly once.
type worker struct {
	ctx     context.Context
	id      string
	opts    *PageOptions
	logger  *log.Logger
	tracer  *trace.Tracer
	metrics *pageMetrics
	cmds    *commandChannel

	engine api.Engine
	state  *pageState
	keys   *keyInput

	// fault is set once the engine reported an unrecoverable error.
	fault error
}

// run launches the engine, reports the outcome on ready and serves commands
// until shutdown or an engine fault. done is closed when run returns.
func (w *worker) run(launcher api.EngineLauncher, ready chan<- error, done chan<- struct{}) {
	defer close(done)

	// Engines may rely on thread local state.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	engine, err := launcher.Launch(w.ctx, w.opts.engineOptions(), w)
	if err != nil {
		w.cmds.close()
		ready <- err
		return
	}
	w.engine = engine
	w.logger.Debugf("Worker:run", "pid:%s engine ready", w.id)
	ready <- nil

	w.loop()

	if n := w.cmds.close(); n > 0 {
		w.metrics.queueDepth.Sub(float64(n))
		w.logger.Debugf("Worker:run", "pid:%s rejected %d pending commands", w.id, n)
	}
	if err := w.engine.Close(); err != nil {
		w.logger.Warnf("Worker:run", "pid:%s closing engine: %v", w.id, err)
	}
	w.tracer.EndNavigation(w.id)
	w.logger.Debugf("Worker:run", "pid:%s stopped", w.id)
}

func (w *worker) loop() {
	for {
		if err := w.pump(); err != nil {
			return
		}
		cmd, ok := w.cmds.dequeue(w.opts.PumpInterval)
		if !ok {
			if w.cmds.isClosed() {
				return
			}
			continue
		}
		if stop := w.serve(cmd); stop {
			return
		}
	}
}

// serve runs cmd and fulfils its response slot. It reports whether the loop
// must stop.
func (w *worker) serve(cmd *command) (stop bool) {
	w.metrics.queueDepth.Dec()
	name := cmd.params.name()

	ctx, span := w.tracer.TraceCommand(w.ctx, w.id, name,
		oteltrace.WithAttributes(attribute.String("page.id", w.id)))
	defer span.End()

	w.logger.Debugf("Worker:"+name, "pid:%s queued:%s", w.id, time.Since(cmd.enqueued))

	var r response
	if _, ok := cmd.params.(shutdownCmd); ok {
		stop = true
		r = response{payload: noPayload{}}
	} else {
		r = w.execute(ctx, cmd.params)
	}
	if w.fault != nil {
		stop = true
		w.logger.Errorf("Worker:"+name, "pid:%s engine fault, stopping: %v", w.id, w.fault)
	}

	if r.err != nil {
		span.SetStatus(codes.Error, r.err.Error())
		w.logger.Debugf("Worker:"+name, "pid:%s err:%v", w.id, r.err)
	}
	w.metrics.commands.WithLabelValues(name, outcome(r.err)).Inc()
	w.metrics.duration.WithLabelValues(name).Observe(time.Since(cmd.enqueued).Seconds())

	if !cmd.slot.fulfil(r) {
		w.logger.Warnf("Worker:"+name, "pid:%s response already delivered", w.id)
	}

	return stop
}

func (w *worker) execute(ctx context.Context, params commandParams) (r response) {
	name := params.name()
	defer func() {
		if rec := recover(); rec != nil {
			w.fault = fmt.Errorf("%w: panic: %v", api.ErrEngineFault, rec)
			r = response{err: newError(ErrorKindChannelClosed, name, w.fault, "worker loop stopped")}
		}
	}()

	if needsSession(params) && !w.state.active {
		return response{err: newError(ErrorKindNoActiveSession, name, nil, "open a page first")}
	}

	p, err := w.dispatch(ctx, params)
	if err != nil {
		if errors.Is(err, api.ErrEngineFault) {
			w.fault = err
			err = newError(ErrorKindChannelClosed, name, err, "worker loop stopped")
		}
		return response{err: err}
	}
	return response{payload: p}
}

// pump runs one engine iteration. It returns an error only for engine
// faults. A panic in the engine or in a delegate callback is a fault.
func (w *worker) pump() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic in pump: %v", api.ErrEngineFault, rec)
			w.fault = err
			w.logger.Errorf("Worker:pump", "pid:%s %v", w.id, err)
		}
	}()

	err = w.engine.Pump()
	if err == nil {
		return nil
	}
	if errors.Is(err, api.ErrEngineFault) {
		w.fault = err
		w.logger.Errorf("Worker:pump", "pid:%s %v", w.id, err)
		return err
	}
	w.logger.Debugf("Worker:pump", "pid:%s %v", w.id, err)
	return nil
}

// OnLoadStatus implements api.EngineDelegate.
func (w *worker) OnLoadStatus(status api.LoadStatus, err error) {
	w.logger.Debugf("Worker:OnLoadStatus", "pid:%s status:%s err:%v", w.id, status, err)
	switch status {
	case api.LoadStarted:
		if w.state.nav == navNone {
			w.state.pageNavs++
		}
		w.state.loadComplete = false
		w.state.loadErr = nil
	case api.LoadComplete:
		w.state.loadComplete = true
	case api.LoadFailed:
		if err == nil {
			err = errors.New("navigation failed")
		}
		w.state.loadErr = err
	}
}

// OnNavigated implements api.EngineDelegate.
func (w *worker) OnNavigated(url string) {
	w.logger.Debugf("Worker:OnNavigated", "pid:%s url:%q", w.id, url)
	w.state.commit(url)
}

// OnTitleChanged implements api.EngineDelegate.
func (w *worker) OnTitleChanged(title string) {
	w.state.title = title
}

// OnConsoleMessage implements api.EngineDelegate.
func (w *worker) OnConsoleMessage(msg api.ConsoleMessage) {
	if w.state.console.push(msg) {
		w.metrics.evicted.WithLabelValues("console").Inc()
	}
	w.tracer.AddEvent(w.id, "console", attribute.String("console.level", msg.Level))
}

// OnRequest implements api.EngineDelegate.
func (w *worker) OnRequest(req api.NetworkRequest) bool {
	w.state.requests++
	w.state.lastRequest = time.Now()
	if w.state.network.push(req) {
		w.metrics.evicted.WithLabelValues("network").Inc()
	}
	blocked := w.state.isBlocked(req.URL)
	if blocked {
		w.logger.Debugf("Worker:OnRequest", "pid:%s blocked %s %q", w.id, req.Method, req.URL)
	}
	return blocked
}

// OnFrame implements api.EngineDelegate.
func (w *worker) OnFrame() {
	w.state.frames++
}
