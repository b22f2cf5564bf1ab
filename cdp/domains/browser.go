package domains

import (
	"context"

	cdpb "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
)

// Browser exposes the CDP Browser domain actions.
type Browser interface {
	Close(ctx context.Context) error
	// Version returns the product name and version, e.g. HeadlessChrome/96.0.
	Version(ctx context.Context) (product, userAgent string, err error)
}

var _ Browser = &browser{}

type browser struct {
	exec cdp.Executor
}

// NewBrowser returns a new CDP Browser domain wrapper.
func NewBrowser(exec cdp.Executor) Browser {
	return &browser{exec}
}

func (b *browser) Close(ctx context.Context) error {
	action := cdpb.Close()
	return action.Do(cdp.WithExecutor(ctx, b.exec))
}

func (b *browser) Version(ctx context.Context) (product, userAgent string, err error) {
	action := cdpb.GetVersion()
	_, product, _, userAgent, _, err = action.Do(cdp.WithExecutor(ctx, b.exec))
	return product, userAgent, err
}
