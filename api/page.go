// Package api holds the public interfaces of xk6-headless.
package api

import (
	"encoding/json"
	"time"
)

// Page is a synchronous handle to one browser session. All methods are safe
// for concurrent use; calls are executed one at a time in arrival order.
type Page interface {
	Open(url string) error
	Reload() error
	GoBack() (bool, error)
	GoForward() (bool, error)
	Reset() error
	Close() error

	Evaluate(script string) (json.RawMessage, error)
	Screenshot() ([]byte, error)
	ScreenshotFullPage() ([]byte, error)
	HTML() (string, error)
	URL() (string, error)
	Title() (string, error)
	ConsoleMessages() ([]ConsoleMessage, error)
	NetworkRequests() ([]NetworkRequest, error)

	WaitForSelector(selector string, timeout time.Duration) error
	WaitForCondition(script string, timeout time.Duration) error
	Wait(d time.Duration) error
	WaitForNavigation(timeout time.Duration) error
	WaitForNetworkIdle(idle, timeout time.Duration) error

	Click(x, y float64) error
	ClickSelector(selector string) error
	TypeText(text string) error
	KeyPress(key string) error
	MouseMove(x, y float64) error
	Scroll(deltaX, deltaY float64) error
	ScrollToSelector(selector string) error
	SelectOption(selector, value string) error
	SetInputFiles(selector string, files []InputFile) error

	Cookies() (string, error)
	SetCookie(cookie string) error
	ClearCookies() error
	BlockURLs(patterns []string) error
	ClearBlockedURLs() error

	ElementRect(selector string) (ElementRect, error)
	ElementText(selector string) (string, error)
	ElementAttribute(selector, name string) (value string, ok bool, err error)
	ElementHTML(selector string) (string, error)
}
