// Package env provides types to interact with environment setup.
package env

import "os"

// LookupFunc defines a function to look up a key from the environment.
type LookupFunc func(key string) (string, bool)

// Lookup looks up a key from the process environment.
func Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// Keys used to configure a page from the environment.
const (
	// Width is the viewport width in pixels.
	Width = "XK6_HEADLESS_WIDTH"
	// Height is the viewport height in pixels.
	Height = "XK6_HEADLESS_HEIGHT"
	// LoadTimeout is the page load timeout, e.g. 30s.
	LoadTimeout = "XK6_HEADLESS_TIMEOUT"
	// Settle is how long to keep the engine running after a load.
	Settle = "XK6_HEADLESS_SETTLE"
	// FullPage enables full page screenshots by default.
	FullPage = "XK6_HEADLESS_FULL_PAGE"
	// UserAgent overrides the engine user agent.
	UserAgent = "XK6_HEADLESS_USER_AGENT"
	// PollInterval is the interval between condition checks in waits.
	PollInterval = "XK6_HEADLESS_POLL_INTERVAL"
	// KeyboardLayout names the layout used to type keys, e.g. us.
	KeyboardLayout = "XK6_HEADLESS_KEYBOARD_LAYOUT"
	// ExecutablePath overrides the Chromium executable.
	ExecutablePath = "XK6_HEADLESS_EXECUTABLE_PATH"
	// Headless can be set to false to show the browser window.
	Headless = "XK6_HEADLESS_HEADLESS"
	// LogCategoryFilter filters the log entries by category.
	LogCategoryFilter = "XK6_HEADLESS_LOG_CATEGORY_FILTER"
	// LogLevel sets the level of the logger, e.g. debug.
	LogLevel = "XK6_HEADLESS_LOG_LEVEL"
)

// ConstLookup is a LookupFunc that always returns the given value and true
// if the key matches the given key. Otherwise it returns an empty string and
// false. It is used in tests.
func ConstLookup(k, v string) LookupFunc {
	return func(key string) (string, bool) {
		if key == k {
			return v, true
		}
		return "", false
	}
}

// EmptyLookup is a LookupFunc that always returns "" and false.
func EmptyLookup(_ string) (string, bool) { return "", false }
