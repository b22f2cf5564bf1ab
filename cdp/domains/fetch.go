package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpf "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
)

// Fetch exposes the CDP Fetch domain actions used to intercept requests.
type Fetch interface {
	// Enable pauses every request until it is continued or failed.
	Enable(context.Context) error
	ContinueRequest(ctx context.Context, requestID cdpf.RequestID) error
	// BlockRequest fails the request as blocked by the client.
	BlockRequest(ctx context.Context, requestID cdpf.RequestID) error
}

var _ Fetch = &fetch{}

type fetch struct {
	exec cdp.Executor
}

// NewFetch returns a new CDP Fetch domain wrapper.
func NewFetch(exec cdp.Executor) Fetch {
	return &fetch{exec}
}

func (f *fetch) Enable(ctx context.Context) error {
	action := cdpf.Enable().WithPatterns([]*cdpf.RequestPattern{{URLPattern: "*"}})
	if err := action.Do(cdp.WithExecutor(ctx, f.exec)); err != nil {
		return fmt.Errorf("enabling fetch CDP domain: %w", err)
	}

	return nil
}

func (f *fetch) ContinueRequest(ctx context.Context, requestID cdpf.RequestID) error {
	action := cdpf.ContinueRequest(requestID)
	return action.Do(cdp.WithExecutor(ctx, f.exec))
}

func (f *fetch) BlockRequest(ctx context.Context, requestID cdpf.RequestID) error {
	action := cdpf.FailRequest(requestID, network.ErrorReasonBlockedByClient)
	return action.Do(cdp.WithExecutor(ctx, f.exec))
}
