package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpr "github.com/chromedp/cdproto/runtime"
)

// Runtime exposes the CDP Runtime domain actions.
type Runtime interface {
	Enable(context.Context) error
	// Evaluate runs expression in the main world of the page and returns
	// its value serialized as JSON.
	Evaluate(ctx context.Context, expression string) (*cdpr.RemoteObject, *cdpr.ExceptionDetails, error)
	TerminateExecution(context.Context) error
}

var _ Runtime = &runtime{}

type runtime struct {
	exec cdp.Executor
}

// NewRuntime returns a new CDP Runtime domain wrapper.
func NewRuntime(exec cdp.Executor) Runtime {
	return &runtime{exec}
}

func (r *runtime) Enable(ctx context.Context) error {
	action := cdpr.Enable()
	if err := action.Do(cdp.WithExecutor(ctx, r.exec)); err != nil {
		return fmt.Errorf("enabling runtime CDP domain: %w", err)
	}

	return nil
}

func (r *runtime) Evaluate(ctx context.Context, expression string) (*cdpr.RemoteObject, *cdpr.ExceptionDetails, error) {
	action := cdpr.Evaluate(expression).
		WithReturnByValue(true).
		WithAwaitPromise(false)
	return action.Do(cdp.WithExecutor(ctx, r.exec))
}

func (r *runtime) TerminateExecution(ctx context.Context) error {
	action := cdpr.TerminateExecution()
	return action.Do(cdp.WithExecutor(ctx, r.exec))
}
