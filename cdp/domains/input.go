package domains

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	cdpi "github.com/chromedp/cdproto/input"
)

// Input exposes the CDP Input domain actions.
type Input interface {
	DispatchMouseEvent(ctx context.Context, typ cdpi.MouseType, x, y float64, button cdpi.MouseButton) error
	DispatchWheelEvent(ctx context.Context, x, y, deltaX, deltaY float64) error
	DispatchKeyEvent(ctx context.Context, typ cdpi.KeyType, key, code, text string, keyCode int64) error
	InsertText(ctx context.Context, text string) error
}

var _ Input = &input{}

type input struct {
	exec cdp.Executor
}

// NewInput returns a new CDP Input domain wrapper.
func NewInput(exec cdp.Executor) Input {
	return &input{exec}
}

func (i *input) DispatchMouseEvent(ctx context.Context, typ cdpi.MouseType, x, y float64, button cdpi.MouseButton) error {
	action := cdpi.DispatchMouseEvent(typ, x, y).WithButton(button)
	if typ == cdpi.MousePressed || typ == cdpi.MouseReleased {
		action = action.WithClickCount(1)
	}
	return action.Do(cdp.WithExecutor(ctx, i.exec))
}

func (i *input) DispatchWheelEvent(ctx context.Context, x, y, deltaX, deltaY float64) error {
	action := cdpi.DispatchMouseEvent(cdpi.MouseWheel, x, y).
		WithDeltaX(deltaX).
		WithDeltaY(deltaY)
	return action.Do(cdp.WithExecutor(ctx, i.exec))
}

// DispatchKeyEvent sends a key event. Key downs without text are sent as
// raw key downs so that they produce no character.
func (i *input) DispatchKeyEvent(ctx context.Context, typ cdpi.KeyType, key, code, text string, keyCode int64) error {
	if typ == cdpi.KeyDown && text == "" {
		typ = cdpi.KeyRawDown
	}
	action := cdpi.DispatchKeyEvent(typ).
		WithKey(key).
		WithCode(code).
		WithWindowsVirtualKeyCode(keyCode).
		WithNativeVirtualKeyCode(keyCode)
	if typ == cdpi.KeyDown {
		action = action.WithText(text).WithUnmodifiedText(text)
	}
	return action.Do(cdp.WithExecutor(ctx, i.exec))
}

func (i *input) InsertText(ctx context.Context, text string) error {
	action := cdpi.InsertText(text)
	return action.Do(cdp.WithExecutor(ctx, i.exec))
}
