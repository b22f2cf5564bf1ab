package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpp "github.com/chromedp/cdproto/page"
)

// Page exposes the CDP Page domain actions.
type Page interface {
	Enable(context.Context) error
	// Navigate returns the error text of the navigation. sameDocument is
	// true when no new document was loaded.
	Navigate(ctx context.Context, url string) (errorText string, sameDocument bool, err error)
	Reload(context.Context) error
	NavigationHistory(context.Context) (current int64, entries []*cdpp.NavigationEntry, err error)
	NavigateToHistoryEntry(ctx context.Context, entryID int64) error
	MainFrame(context.Context) (*cdp.Frame, error)
	CaptureScreenshot(context.Context) ([]byte, error)
	HandleJavaScriptDialog(ctx context.Context, accept bool) error
}

var _ Page = &page{}

type page struct {
	exec cdp.Executor
}

// NewPage returns a new CDP Page domain wrapper.
func NewPage(exec cdp.Executor) Page {
	return &page{exec}
}

func (p *page) Enable(ctx context.Context) error {
	action := cdpp.Enable()
	if err := action.Do(cdp.WithExecutor(ctx, p.exec)); err != nil {
		return fmt.Errorf("enabling page CDP domain: %w", err)
	}

	return nil
}

func (p *page) Navigate(ctx context.Context, url string) (string, bool, error) {
	action := cdpp.Navigate(url)

	_, loaderID, errorText, err := action.Do(cdp.WithExecutor(ctx, p.exec))
	if err != nil {
		return "", false, fmt.Errorf("navigating to %q: %w", url, err)
	}

	return errorText, loaderID == "", nil
}

func (p *page) Reload(ctx context.Context) error {
	action := cdpp.Reload()
	if err := action.Do(cdp.WithExecutor(ctx, p.exec)); err != nil {
		return fmt.Errorf("reloading: %w", err)
	}

	return nil
}

func (p *page) NavigationHistory(ctx context.Context) (int64, []*cdpp.NavigationEntry, error) {
	action := cdpp.GetNavigationHistory()
	current, entries, err := action.Do(cdp.WithExecutor(ctx, p.exec))
	if err != nil {
		return 0, nil, fmt.Errorf("getting navigation history: %w", err)
	}

	return current, entries, nil
}

func (p *page) NavigateToHistoryEntry(ctx context.Context, entryID int64) error {
	action := cdpp.NavigateToHistoryEntry(entryID)
	if err := action.Do(cdp.WithExecutor(ctx, p.exec)); err != nil {
		return fmt.Errorf("navigating to history entry %d: %w", entryID, err)
	}

	return nil
}

func (p *page) MainFrame(ctx context.Context) (*cdp.Frame, error) {
	action := cdpp.GetFrameTree()
	tree, err := action.Do(cdp.WithExecutor(ctx, p.exec))
	if err != nil {
		return nil, fmt.Errorf("getting frame tree: %w", err)
	}

	return tree.Frame, nil
}

func (p *page) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	action := cdpp.CaptureScreenshot().WithFormat(cdpp.CaptureScreenshotFormatPng)
	buf, err := action.Do(cdp.WithExecutor(ctx, p.exec))
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}

	return buf, nil
}

func (p *page) HandleJavaScriptDialog(ctx context.Context, accept bool) error {
	action := cdpp.HandleJavaScriptDialog(accept)
	if err := action.Do(cdp.WithExecutor(ctx, p.exec)); err != nil {
		return fmt.Errorf("handling dialog: %w", err)
	}

	return nil
}
