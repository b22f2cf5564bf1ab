package api

// ConsoleMessage is a message logged through the console API.
type ConsoleMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NetworkRequest is a request issued by the page.
type NetworkRequest struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	IsMainFrame bool   `json:"isMainFrame"`
}

// ElementRect is the bounding box of an element in CSS pixels, relative to
// the viewport.
type ElementRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the rect.
func (r ElementRect) Center() (x, y float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// ElementInfo describes an element found by a selector.
type ElementInfo struct {
	Rect       ElementRect       `json:"rect"`
	Text       string            `json:"text"`
	HTML       string            `json:"html"`
	Attributes map[string]string `json:"attributes"`
}

// InputFile is a file set on a file input.
type InputFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// InputEvent is an input event dispatched to an engine. It is one of
// MouseEvent, WheelEvent, KeyEvent or TextEvent.
type InputEvent interface {
	inputEvent()
}

// MouseEventType is the kind of a mouse event.
type MouseEventType string

// Mouse event types.
const (
	MouseMove MouseEventType = "move"
	MouseDown MouseEventType = "down"
	MouseUp   MouseEventType = "up"
)

// MouseEvent is a mouse move or button event at a viewport position.
type MouseEvent struct {
	Type MouseEventType
	X, Y float64
}

// WheelEvent scrolls at a viewport position. A positive DeltaY scrolls down.
type WheelEvent struct {
	X, Y           float64
	DeltaX, DeltaY float64
}

// KeyEventType is the kind of a key event.
type KeyEventType string

// Key event types.
const (
	KeyDown KeyEventType = "down"
	KeyUp   KeyEventType = "up"
)

// KeyEvent is a key down or up event. Text is the text the key produces,
// empty for non printable keys.
type KeyEvent struct {
	Type    KeyEventType
	Key     string
	Code    string
	Text    string
	KeyCode int64
}

// TextEvent inserts text without dispatching key events.
type TextEvent struct {
	Text string
}

func (MouseEvent) inputEvent() {}
func (WheelEvent) inputEvent() {}
func (KeyEvent) inputEvent()   {}
func (TextEvent) inputEvent()  {}
