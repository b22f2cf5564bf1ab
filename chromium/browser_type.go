// Package chromium launches Chromium processes and drives them over CDP as
// page engines.
package chromium

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/cdp"
	"github.com/grafana/xk6-headless/env"
	"github.com/grafana/xk6-headless/log"
	"github.com/grafana/xk6-headless/storage"
)

// DefaultLaunchTimeout bounds the start of the browser and the CDP
// handshake.
const DefaultLaunchTimeout = 30 * time.Second

// ErrExecutableNotFound is returned when no Chromium executable is found.
var ErrExecutableNotFound = errors.New("chromium executable not found")

// Ensure BrowserType launches engines.
var _ api.EngineLauncher = &BrowserType{}

// LaunchOptions are the settings of the browser processes.
type LaunchOptions struct {
	ExecutablePath string        `yaml:"executablePath"`
	Headless       bool          `yaml:"headless"`
	Args           []string      `yaml:"args"`
	Env            []string      `yaml:"env"`
	Timeout        time.Duration `yaml:"launchTimeout"`
}

// NewLaunchOptions returns the default launch options.
func NewLaunchOptions() *LaunchOptions {
	return &LaunchOptions{
		Headless: true,
		Timeout:  DefaultLaunchTimeout,
	}
}

// Parse overrides the options with the values found in the environment.
func (o *LaunchOptions) Parse(lookup env.LookupFunc, logger *log.Logger) error {
	if v, ok := lookup(env.ExecutablePath); ok {
		logger.Debugf("LaunchOptions:Parse", "%s=%q", env.ExecutablePath, v)
		o.ExecutablePath = v
	}
	if v, ok := lookup(env.Headless); ok {
		logger.Debugf("LaunchOptions:Parse", "%s=%q", env.Headless, v)
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", env.Headless, err)
		}
		o.Headless = headless
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("invalid launch timeout %s: must be positive", o.Timeout)
	}

	return nil
}

// BrowserType launches a Chromium process per engine.
type BrowserType struct {
	opts   LaunchOptions
	logger *log.Logger
}

// NewBrowserType returns a BrowserType launching browsers with opts.
func NewBrowserType(opts *LaunchOptions, logger *log.Logger) *BrowserType {
	if opts == nil {
		opts = NewLaunchOptions()
	}
	if logger == nil {
		logger = log.NullLogger()
	}
	return &BrowserType{opts: *opts, logger: logger}
}

// Name returns the name of the browser.
func (b *BrowserType) Name() string { return "chromium" }

// ExecutablePath returns the path of the browser executable: the
// configured one, or the first Chromium or Chrome found in PATH.
func (b *BrowserType) ExecutablePath() (string, error) {
	if b.opts.ExecutablePath != "" {
		return b.opts.ExecutablePath, nil
	}
	for _, name := range executableNames() {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrExecutableNotFound
}

func executableNames() []string {
	names := []string{
		"chromium",
		"chromium-browser",
		"google-chrome",
		"google-chrome-stable",
		"headless_shell",
		"chrome",
	}
	switch runtime.GOOS {
	case "darwin":
		names = append(names,
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		)
	case "windows":
		names = append(names,
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		)
	}
	return names
}

// Launch starts a browser and connects to it. The browser is killed when
// ctx is done or the engine is closed.
func (b *BrowserType) Launch(ctx context.Context, opts api.EngineOptions, d api.EngineDelegate) (api.Engine, error) {
	if d == nil {
		return nil, errors.New("launching chromium: no engine delegate")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("launching chromium: invalid viewport %dx%d", opts.Width, opts.Height)
	}
	path, err := b.ExecutablePath()
	if err != nil {
		return nil, err
	}

	dataDir := &storage.Dir{}
	if err := dataDir.Make("", ""); err != nil {
		return nil, err
	}
	proc, err := newBrowserProcess(ctx, path, b.flags(dataDir.Dir, opts), b.opts.Env, dataDir, b.opts.Timeout, b.logger)
	if err != nil {
		if cerr := dataDir.Cleanup(); cerr != nil {
			b.logger.Warnf("BrowserType:Launch", "%v", cerr)
		}
		return nil, fmt.Errorf("launching %s: %w", path, err)
	}

	cctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	client := cdp.NewClient(b.logger)
	if err := client.Connect(cctx, proc.wsURL); err != nil {
		proc.terminate()
		return nil, err
	}
	// Title changes are only reported through target info updates.
	if err := client.Target.SetDiscoverTargets(cctx, true); err != nil {
		_ = client.Close()
		proc.terminate()
		return nil, err
	}
	product, _, err := client.Browser.Version(cctx)
	if err != nil {
		_ = client.Close()
		proc.terminate()
		return nil, err
	}
	b.logger.Debugf("BrowserType:Launch", "pid:%d product:%q", proc.Pid(), product)

	return newEngine(ctx, client, proc, opts, d, b.logger), nil
}

func (b *BrowserType) flags(dataDir string, opts api.EngineOptions) []string {
	args := []string{
		"--disable-background-networking",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-breakpad",
		"--disable-component-update",
		"--disable-default-apps",
		"--disable-dev-shm-usage",
		"--disable-extensions",
		"--disable-hang-monitor",
		"--disable-popup-blocking",
		"--disable-prompt-on-repost",
		"--disable-renderer-backgrounding",
		"--disable-sync",
		"--hide-scrollbars",
		"--metrics-recording-only",
		"--mute-audio",
		"--no-default-browser-check",
		"--no-first-run",
		"--password-store=basic",
		"--use-mock-keychain",
		"--remote-debugging-port=0",
		"--user-data-dir=" + dataDir,
		fmt.Sprintf("--window-size=%d,%d", opts.Width, opts.Height),
	}
	if b.opts.Headless {
		args = append(args, "--headless", "--disable-gpu")
	}
	if os.Geteuid() == 0 {
		// The sandbox refuses to run as root.
		args = append(args, "--no-sandbox")
	}
	args = append(args, b.opts.Args...)

	return append(args, "about:blank")
}
