package api

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrEngineFault is wrapped by engine errors the engine cannot recover from.
// A page stops serving commands once its engine reports it.
var ErrEngineFault = errors.New("engine fault")

// ErrInvalidSelector is wrapped by engine errors caused by a selector that
// cannot be parsed.
var ErrInvalidSelector = errors.New("invalid selector")

// ErrNoHistory is returned by GoBack and GoForward when there is no entry
// to move to.
var ErrNoHistory = errors.New("no history entry")

// ScriptException is returned by Evaluate when the script threw.
type ScriptException struct {
	Message string
}

func (e *ScriptException) Error() string {
	return "script exception: " + e.Message
}

// LoadStatus is a load state reported by an engine.
type LoadStatus int

// Load states of the main frame.
const (
	LoadStarted LoadStatus = iota + 1
	LoadComplete
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadStarted:
		return "started"
	case LoadComplete:
		return "complete"
	case LoadFailed:
		return "failed"
	}
	return "unknown"
}

// EngineOptions are the settings an engine is launched with.
type EngineOptions struct {
	Width     int64
	Height    int64
	UserAgent string
}

// EngineDelegate receives the engine events. Engines call it only from
// within a method call made on the goroutine that launched them, so a
// delegate never needs locking.
type EngineDelegate interface {
	// OnLoadStatus reports the main frame load progress. err is set with
	// LoadFailed.
	OnLoadStatus(status LoadStatus, err error)
	// OnNavigated reports the URL the main frame committed to.
	OnNavigated(url string)
	// OnTitleChanged reports a new document title.
	OnTitleChanged(title string)
	// OnConsoleMessage reports a console API call.
	OnConsoleMessage(msg ConsoleMessage)
	// OnRequest reports an outgoing request. Returning true blocks it.
	OnRequest(req NetworkRequest) (block bool)
	// OnFrame reports that the engine produced a new frame.
	OnFrame()
}

// Engine is a single-threaded browser engine. Every method, Pump included,
// must be called from the goroutine that launched the engine.
type Engine interface {
	// OpenSession creates the browsing session (the web view).
	OpenSession(ctx context.Context) error
	// CloseSession destroys the browsing session and its state.
	CloseSession(ctx context.Context) error

	// Navigate starts loading url. Load progress is reported through
	// EngineDelegate.OnLoadStatus.
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error

	// Evaluate runs script in the main frame and returns its JSON encoded
	// completion value. undefined is returned as null.
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)
	// QueryElement returns the first element matching selector, or nil.
	QueryElement(ctx context.Context, selector string) (*ElementInfo, error)
	// CaptureScreenshot encodes the current viewport as PNG.
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	// CaptureHTML serializes the current document.
	CaptureHTML(ctx context.Context) (string, error)
	DispatchInput(ctx context.Context, ev InputEvent) error
	// Resize changes the viewport size.
	Resize(ctx context.Context, width, height int64) error

	// Pump runs one iteration of pending engine work: script callbacks,
	// resource loads and rendering ticks. It does not block.
	Pump() error
	// Close shuts the engine down.
	Close() error
}

// EngineLauncher starts an engine. Launch is called on the goroutine that
// will own the engine.
type EngineLauncher interface {
	Launch(ctx context.Context, opts EngineOptions, delegate EngineDelegate) (Engine, error)
}

// EngineLauncherFunc adapts a function to EngineLauncher.
type EngineLauncherFunc func(ctx context.Context, opts EngineOptions, delegate EngineDelegate) (Engine, error)

// Launch calls f.
func (f EngineLauncherFunc) Launch(ctx context.Context, opts EngineOptions, delegate EngineDelegate) (Engine, error) {
	return f(ctx, opts, delegate)
}
