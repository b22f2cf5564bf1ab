package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpd "github.com/chromedp/cdproto/dom"
)

// DOM exposes the CDP DOM domain actions.
type DOM interface {
	// DocumentHTML serializes the document of the main frame.
	DocumentHTML(context.Context) (string, error)
}

var _ DOM = &dom{}

type dom struct {
	exec cdp.Executor
}

// NewDOM returns a new CDP DOM domain wrapper.
func NewDOM(exec cdp.Executor) DOM {
	return &dom{exec}
}

func (d *dom) DocumentHTML(ctx context.Context) (string, error) {
	ctx = cdp.WithExecutor(ctx, d.exec)

	root, err := cdpd.GetDocument().Do(ctx)
	if err != nil {
		return "", fmt.Errorf("getting document: %w", err)
	}
	html, err := cdpd.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("getting outer HTML: %w", err)
	}

	return html, nil
}
