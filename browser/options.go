package browser

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"gopkg.in/guregu/null.v3"

	"github.com/grafana/xk6-headless/chromium"
	"github.com/grafana/xk6-headless/common"
)

// Engines a page can run on.
const (
	EngineChromium = "chromium"
	EngineSim      = "sim"
)

// Options are the options of newPage.
type Options struct {
	Engine string
	Page   *common.PageOptions
	Launch *chromium.LaunchOptions
}

// NewOptions returns the default options, overridden by the environment.
func NewOptions() *Options {
	return &Options{
		Engine: EngineChromium,
		Page:   common.NewPageOptions(),
		Launch: chromium.NewLaunchOptions(),
	}
}

// ParseOptions overrides o with the options object of a script. Durations
// are given in milliseconds.
func (o *Options) ParseOptions(rt *goja.Runtime, opts goja.Value) error { //nolint:cyclop
	if !gojaValueExists(opts) {
		return nil
	}

	obj := opts.ToObject(rt)
	for _, k := range obj.Keys() {
		v := obj.Get(k)
		switch k {
		case "engine":
			switch e := v.String(); e {
			case EngineChromium, EngineSim:
				o.Engine = e
			default:
				return fmt.Errorf("unsupported engine %q: must be %q or %q", e, EngineChromium, EngineSim)
			}
		case "width":
			o.Page.Width = v.ToInteger()
		case "height":
			o.Page.Height = v.ToInteger()
		case "timeout":
			o.Page.LoadTimeout = toDuration(v)
		case "settle":
			o.Page.Settle = toDuration(v)
		case "fullPage":
			o.Page.FullPage = v.ToBoolean()
		case "userAgent":
			o.Page.UserAgent = null.StringFrom(v.String())
		case "keyboardLayout":
			o.Page.KeyboardLayout = v.String()
		case "executablePath":
			o.Launch.ExecutablePath = v.String()
		case "headless":
			o.Launch.Headless = v.ToBoolean()
		case "args":
			var args []string
			if err := rt.ExportTo(v, &args); err != nil {
				return fmt.Errorf("parsing args: %w", err)
			}
			o.Launch.Args = args
		}
	}

	return o.Page.Validate()
}

// toDuration converts a number of milliseconds to a duration.
func toDuration(v goja.Value) time.Duration {
	return time.Duration(v.ToFloat() * float64(time.Millisecond))
}
