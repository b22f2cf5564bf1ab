package browser

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/grafana/xk6-headless/api"
)

// mapPage to the JS module. Waits without a timeout argument use
// defaultTimeout.
func mapPage(vu moduleVU, p api.Page, defaultTimeout time.Duration) mapping { //nolint:funlen
	rt := vu.Runtime()
	metrics := vu.root.metrics

	// cmd runs a command that does not load a document.
	cmd := func(name string, fn func() error) error {
		return vu.timed(name, metrics.PageCommand, fn)
	}
	// load runs a command that loads a document.
	load := func(name string, fn func() error) error {
		return vu.timed(name, metrics.PageLoad, fn)
	}
	timeout := func(v goja.Value) time.Duration {
		if !gojaValueExists(v) {
			return defaultTimeout
		}
		return toDuration(v)
	}
	moved := func(name string, move func() (bool, error)) func() (bool, error) {
		return func() (ok bool, err error) {
			err = load(name, func() error {
				ok, err = move()
				return err
			})
			return ok, err
		}
	}

	return mapping{
		"open": func(url string) error {
			return load("open", func() error { return p.Open(url) })
		},
		"reload": func() error {
			return load("reload", p.Reload)
		},
		"goBack":    moved("goBack", p.GoBack),
		"goForward": moved("goForward", p.GoForward),
		"reset": func() error {
			return cmd("reset", p.Reset)
		},
		"close": p.Close,
		"evaluate": func(script string) (v goja.Value, err error) {
			err = cmd("evaluate", func() error {
				raw, err := p.Evaluate(script)
				if err != nil {
					return err
				}
				v, err = parseJSON(rt, raw)
				return err
			})
			return v, err
		},
		"screenshot": func() (v goja.Value, err error) {
			err = cmd("screenshot", func() error {
				buf, err := p.Screenshot()
				v = toArrayBuffer(rt, buf)
				return err
			})
			return v, err
		},
		"screenshotFullPage": func() (v goja.Value, err error) {
			err = cmd("screenshotFullPage", func() error {
				buf, err := p.ScreenshotFullPage()
				v = toArrayBuffer(rt, buf)
				return err
			})
			return v, err
		},
		"html":  p.HTML,
		"url":   p.URL,
		"title": p.Title,
		"consoleMessages": func() ([]mapping, error) {
			msgs, err := p.ConsoleMessages()
			if err != nil {
				return nil, err
			}
			mm := make([]mapping, 0, len(msgs))
			for _, m := range msgs {
				mm = append(mm, mapConsoleMessage(m))
			}
			return mm, nil
		},
		"networkRequests": func() ([]mapping, error) {
			reqs, err := p.NetworkRequests()
			if err != nil {
				return nil, err
			}
			mr := make([]mapping, 0, len(reqs))
			for _, r := range reqs {
				mr = append(mr, mapRequest(r))
			}
			return mr, nil
		},
		"waitForSelector": func(selector string, t goja.Value) error {
			return cmd("waitForSelector", func() error { return p.WaitForSelector(selector, timeout(t)) })
		},
		"waitForCondition": func(script string, t goja.Value) error {
			return cmd("waitForCondition", func() error { return p.WaitForCondition(script, timeout(t)) })
		},
		"wait": func(d goja.Value) error {
			return cmd("wait", func() error { return p.Wait(toDuration(d)) })
		},
		"waitForNavigation": func(t goja.Value) error {
			return load("waitForNavigation", func() error { return p.WaitForNavigation(timeout(t)) })
		},
		"waitForNetworkIdle": func(idle, t goja.Value) error {
			return cmd("waitForNetworkIdle", func() error { return p.WaitForNetworkIdle(toDuration(idle), timeout(t)) })
		},
		"click": func(x, y float64) error {
			return cmd("click", func() error { return p.Click(x, y) })
		},
		"clickSelector": func(selector string) error {
			return cmd("clickSelector", func() error { return p.ClickSelector(selector) })
		},
		"typeText": func(text string) error {
			return cmd("typeText", func() error { return p.TypeText(text) })
		},
		"keyPress": func(key string) error {
			return cmd("keyPress", func() error { return p.KeyPress(key) })
		},
		"mouseMove": func(x, y float64) error {
			return cmd("mouseMove", func() error { return p.MouseMove(x, y) })
		},
		"scroll": func(deltaX, deltaY float64) error {
			return cmd("scroll", func() error { return p.Scroll(deltaX, deltaY) })
		},
		"scrollToSelector": func(selector string) error {
			return cmd("scrollToSelector", func() error { return p.ScrollToSelector(selector) })
		},
		"selectOption": func(selector, value string) error {
			return cmd("selectOption", func() error { return p.SelectOption(selector, value) })
		},
		"setInputFiles": func(selector string, files goja.Value) error {
			ff, err := parseInputFiles(rt, files)
			if err != nil {
				return err
			}
			return cmd("setInputFiles", func() error { return p.SetInputFiles(selector, ff) })
		},
		"cookies":      p.Cookies,
		"setCookie":    p.SetCookie,
		"clearCookies": p.ClearCookies,
		"blockURLs": func(patterns []string) error {
			return p.BlockURLs(patterns)
		},
		"clearBlockedURLs": p.ClearBlockedURLs,
		"elementRect": func(selector string) (mapping, error) {
			r, err := p.ElementRect(selector)
			if err != nil {
				return nil, err
			}
			return mapping{"x": r.X, "y": r.Y, "width": r.Width, "height": r.Height}, nil
		},
		"elementText": p.ElementText,
		"elementAttribute": func(selector, name string) (goja.Value, error) {
			v, ok, err := p.ElementAttribute(selector, name)
			if err != nil || !ok {
				return goja.Null(), err
			}
			return rt.ToValue(v), nil
		},
		"elementHTML": p.ElementHTML,
	}
}

// parseInputFiles parses an array of {name, mimeType, buffer} objects. The
// content can also be given as a base64 string in data.
func parseInputFiles(rt *goja.Runtime, files goja.Value) ([]api.InputFile, error) {
	if !gojaValueExists(files) {
		return nil, nil
	}

	var ff []api.InputFile
	obj := files.ToObject(rt)
	for _, k := range obj.Keys() {
		fo := obj.Get(k).ToObject(rt)
		f := api.InputFile{
			Name:     fo.Get("name").String(),
			MimeType: "application/octet-stream",
		}
		if v := fo.Get("mimeType"); gojaValueExists(v) {
			f.MimeType = v.String()
		}
		switch data := exportArg(fo.Get("buffer")).(type) {
		case goja.ArrayBuffer:
			f.Data = data.Bytes()
		case nil:
			s, _ := exportArg(fo.Get("data")).(string)
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("decoding the data of file %q: %w", f.Name, err)
			}
			f.Data = b
		default:
			return nil, fmt.Errorf("invalid buffer of file %q: %T", f.Name, data)
		}
		ff = append(ff, f)
	}

	return ff, nil
}
