package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpe "github.com/chromedp/cdproto/emulation"
)

// Emulation exposes the CDP Emulation domain actions.
type Emulation interface {
	SetViewport(ctx context.Context, width, height int64) error
	SetUserAgent(ctx context.Context, userAgent string) error
}

var _ Emulation = &emulation{}

type emulation struct {
	exec cdp.Executor
}

// NewEmulation returns a new CDP Emulation domain wrapper.
func NewEmulation(exec cdp.Executor) Emulation {
	return &emulation{exec}
}

func (e *emulation) SetViewport(ctx context.Context, width, height int64) error {
	action := cdpe.SetDeviceMetricsOverride(width, height, 1, false)
	if err := action.Do(cdp.WithExecutor(ctx, e.exec)); err != nil {
		return fmt.Errorf("setting viewport to %dx%d: %w", width, height, err)
	}

	return nil
}

func (e *emulation) SetUserAgent(ctx context.Context, userAgent string) error {
	action := cdpe.SetUserAgentOverride(userAgent)
	if err := action.Do(cdp.WithExecutor(ctx, e.exec)); err != nil {
		return fmt.Errorf("setting user agent: %w", err)
	}

	return nil
}
