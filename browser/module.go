// Package browser provides the k6/x/headless JS module: synchronous page
// handles scripts drive from their VU code.
package browser

import (
	"context"
	"errors"
	"os"
	"regexp"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/chromium"
	"github.com/grafana/xk6-headless/common"
	"github.com/grafana/xk6-headless/env"
	"github.com/grafana/xk6-headless/k6ext"
	"github.com/grafana/xk6-headless/log"
	"github.com/grafana/xk6-headless/osext"
	"github.com/grafana/xk6-headless/sim"

	k6common "go.k6.io/k6/js/common"
	k6modules "go.k6.io/k6/js/modules"
	k6stats "go.k6.io/k6/stats"
)

const version = "0.1.0"

type (
	// RootModule is the global module instance that will create module
	// instances for each VU.
	RootModule struct {
		runID   string
		metrics *k6ext.CustomMetrics
		logger  *log.Logger
	}

	// JSModule exposes the properties available to the JS script.
	JSModule struct {
		NewPage func(opts goja.Value) (mapping, error) `js:"newPage"`
		Version string                                 `js:"version"`
	}

	// ModuleInstance represents an instance of the JS module.
	ModuleInstance struct {
		mod *JSModule
	}
)

// moduleVU carries module specific VU information.
type moduleVU struct {
	k6modules.VU

	root *RootModule
}

func (vu moduleVU) Context() context.Context {
	// browser processes launched by the VU are killed with the run
	return osext.WithRunID(vu.VU.Context(), vu.root.runID)
}

var (
	_ k6modules.Module   = &RootModule{}
	_ k6modules.Instance = &ModuleInstance{}
)

// New returns a pointer to a new RootModule instance.
func New() *RootModule {
	return &RootModule{
		runID:   uuid.NewString(),
		metrics: k6ext.NewCustomMetrics(),
		logger:  newLogger(os.LookupEnv),
	}
}

func newLogger(lookup env.LookupFunc) *log.Logger {
	var filter *regexp.Regexp
	if v, ok := lookup(env.LogCategoryFilter); ok {
		filter, _ = regexp.Compile(v)
	}
	l := log.New(logrus.StandardLogger(), false, filter)
	if v, ok := lookup(env.LogLevel); ok {
		if err := l.SetLevel(v); err != nil {
			l.Warnf("browser", "%v", err)
		}
	}
	return l
}

// NewModuleInstance implements the k6modules.Module interface to return
// a new instance for each VU.
func (m *RootModule) NewModuleInstance(vu k6modules.VU) k6modules.Instance {
	mvu := moduleVU{VU: vu, root: m}

	return &ModuleInstance{
		mod: &JSModule{
			NewPage: func(opts goja.Value) (mapping, error) {
				return newPage(mvu, opts)
			},
			Version: version,
		},
	}
}

// Exports returns the exports of the JS module so that it can be used in test
// scripts.
func (mi *ModuleInstance) Exports() k6modules.Exports {
	return k6modules.Exports{Default: mi.mod}
}

func newPage(vu moduleVU, jsOpts goja.Value) (mapping, error) {
	if vu.VU.Context() == nil {
		return nil, errors.New("newPage can only be called in the VU context")
	}
	ctx := vu.Context()

	opts := NewOptions()
	if err := opts.Page.Parse(os.LookupEnv, vu.root.logger); err != nil {
		return nil, err
	}
	if err := opts.Launch.Parse(os.LookupEnv, vu.root.logger); err != nil {
		return nil, err
	}
	if err := opts.ParseOptions(vu.Runtime(), jsOpts); err != nil {
		k6common.Throw(vu.Runtime(), err)
	}

	var launcher api.EngineLauncher
	switch opts.Engine {
	case EngineSim:
		launcher = sim.NewLauncher(sim.NewWeb(), vu.root.logger)
	default:
		launcher = chromium.NewBrowserType(opts.Launch, vu.root.logger)
	}

	start := time.Now()
	p, err := common.NewPage(ctx, launcher, opts.Page, vu.root.logger)
	if err != nil {
		return nil, err
	}
	vu.pushDuration(vu.root.metrics.PageCommand, start, "newPage")

	// pages left open by the script are closed with the VU
	go func() {
		<-ctx.Done()
		_ = p.Close()
	}()

	return mapPage(vu, p, opts.Page.LoadTimeout), nil
}

// pushDuration reports the duration of a command since start. Nothing is
// reported outside of the VU context.
func (vu moduleVU) pushDuration(m *k6stats.Metric, start time.Time, command string) {
	state := vu.State()
	if state == nil {
		return
	}
	k6ext.PushDuration(vu.Context(), state.Samples, m, time.Since(start), map[string]string{"command": command})
}

// timed runs the command fn and reports its duration to m, or counts its
// failure.
func (vu moduleVU) timed(command string, m *k6stats.Metric, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		vu.pushError(command)
		return err
	}
	vu.pushDuration(m, start, command)
	return nil
}

// pushError counts a failed command.
func (vu moduleVU) pushError(command string) {
	state := vu.State()
	if state == nil {
		return
	}
	k6ext.PushValue(vu.Context(), state.Samples, vu.root.metrics.PageErrors, 1, map[string]string{"command": command})
}
