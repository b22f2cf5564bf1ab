package main

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/grafana/xk6-headless/browser"
	"github.com/grafana/xk6-headless/chromium"
	"github.com/grafana/xk6-headless/common"
	"github.com/grafana/xk6-headless/env"
	"github.com/grafana/xk6-headless/log"
	"github.com/grafana/xk6-headless/otel"
)

// Config is the configuration of a run.
type Config struct {
	Engine      string                 `yaml:"engine"`
	Page        common.PageOptions     `yaml:"page"`
	Launch      chromium.LaunchOptions `yaml:"launch"`
	Trace       otel.Options           `yaml:"trace"`
	MetricsAddr string                 `yaml:"metricsAddr"`
	LogLevel    string                 `yaml:"logLevel"`

	// capture
	Screenshot string        `yaml:"screenshot"`
	HTML       string        `yaml:"html"`
	Eval       string        `yaml:"eval"`
	WaitFor    string        `yaml:"waitFor"`
	Wait       time.Duration `yaml:"wait"`
	Console    bool          `yaml:"console"`

	logger *log.Logger
}

// flags are the command line flags. They override the configuration when
// set.
type flags struct {
	config      string
	engine      string
	width       int64
	height      int64
	timeout     time.Duration
	settle      time.Duration
	fullPage    bool
	userAgent   string
	executable  string
	headful     bool
	screenshot  string
	html        string
	eval        string
	evalFile    string
	waitFor     string
	wait        time.Duration
	console     bool
	metricsAddr string
	trace       string
	verbose     bool
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.config, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.engine, "engine", browser.EngineChromium, "engine: chromium or sim")
	fs.Int64Var(&f.width, "width", common.DefaultWidth, "viewport width")
	fs.Int64Var(&f.height, "height", common.DefaultHeight, "viewport height")
	fs.DurationVar(&f.timeout, "timeout", common.DefaultLoadTimeout, "page load timeout")
	fs.DurationVar(&f.settle, "settle", common.DefaultSettle, "time the page keeps running after it loaded")
	fs.BoolVar(&f.fullPage, "fullpage", false, "capture the whole document")
	fs.StringVar(&f.userAgent, "user-agent", "", "user agent override")
	fs.StringVar(&f.executable, "executable", "", "browser executable")
	fs.BoolVar(&f.headful, "headful", false, "show the browser window")
	fs.StringVarP(&f.screenshot, "screenshot", "o", "", `PNG output file, "-" for stdout`)
	fs.StringVar(&f.html, "html", "", `HTML output file, "-" for stdout`)
	fs.StringVarP(&f.eval, "eval", "e", "", "script to evaluate, its JSON result is printed")
	fs.StringVar(&f.evalFile, "eval-file", "", "file of the script to evaluate")
	fs.StringVar(&f.waitFor, "wait-for", "", "selector to wait for before capturing")
	fs.DurationVar(&f.wait, "wait", 0, "extra time to wait before capturing")
	fs.BoolVar(&f.console, "console", false, "print the console messages")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")
	fs.StringVar(&f.trace, "trace", "", "trace exporter: none, stdout or otlphttp")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the configuration file, then the environment, then the
// flags that were set.
func loadConfig(f *flags, fs *pflag.FlagSet, lookup env.LookupFunc) (*Config, error) {
	cfg := &Config{
		Engine:   browser.EngineChromium,
		Page:     *common.NewPageOptions(),
		Launch:   *chromium.NewLaunchOptions(),
		Trace:    otel.Options{Exporter: otel.ExporterNone},
		LogLevel: "info",
	}
	if f.config != "" {
		b, err := os.ReadFile(f.config)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", f.config, err)
		}
	}

	if v, ok := lookup(env.LogLevel); ok {
		cfg.LogLevel = v
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	logger, err := newLogger(cfg.LogLevel, lookup)
	if err != nil {
		return nil, err
	}
	cfg.logger = logger

	if err := cfg.Page.Parse(lookup, logger); err != nil {
		return nil, err
	}
	if err := cfg.Launch.Parse(lookup, logger); err != nil {
		return nil, err
	}
	if err := cfg.applyFlags(f, fs); err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

func (c *Config) applyFlags(f *flags, fs *pflag.FlagSet) error {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("engine", func() { c.Engine = f.engine })
	set("width", func() { c.Page.Width = f.width })
	set("height", func() { c.Page.Height = f.height })
	set("timeout", func() { c.Page.LoadTimeout = f.timeout })
	set("settle", func() { c.Page.Settle = f.settle })
	set("fullpage", func() { c.Page.FullPage = f.fullPage })
	set("user-agent", func() { c.Page.UserAgent = null.StringFrom(f.userAgent) })
	set("executable", func() { c.Launch.ExecutablePath = f.executable })
	set("headful", func() { c.Launch.Headless = !f.headful })
	set("screenshot", func() { c.Screenshot = f.screenshot })
	set("html", func() { c.HTML = f.html })
	set("eval", func() { c.Eval = f.eval })
	set("wait-for", func() { c.WaitFor = f.waitFor })
	set("wait", func() { c.Wait = f.wait })
	set("console", func() { c.Console = f.console })
	set("metrics-addr", func() { c.MetricsAddr = f.metricsAddr })
	set("trace", func() { c.Trace.Exporter = f.trace })

	if f.evalFile != "" {
		if f.eval != "" {
			return fmt.Errorf("--eval and --eval-file are mutually exclusive")
		}
		b, err := os.ReadFile(f.evalFile)
		if err != nil {
			return fmt.Errorf("reading script: %w", err)
		}
		c.Eval = string(b)
	}

	return nil
}

func (c *Config) validate() error {
	switch c.Engine {
	case browser.EngineChromium, browser.EngineSim:
	default:
		return fmt.Errorf("unsupported engine %q", c.Engine)
	}
	if c.Wait < 0 {
		return fmt.Errorf("invalid wait %s: must not be negative", c.Wait)
	}
	return c.Page.Validate()
}

func newLogger(level string, lookup env.LookupFunc) (*log.Logger, error) {
	var filter *regexp.Regexp
	if v, ok := lookup(env.LogCategoryFilter); ok {
		var err error
		if filter, err = regexp.Compile(v); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", env.LogCategoryFilter, err)
		}
	}

	l := logrus.New()
	l.SetOutput(os.Stderr)
	logger := log.New(l, false, filter)
	if err := logger.SetLevel(level); err != nil {
		return nil, err
	}
	return logger, nil
}
