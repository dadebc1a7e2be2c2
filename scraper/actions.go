package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/webexporter/models"
)

// actionTimeout is the default per-action deadline.
const actionTimeout = 10 * time.Second

// withTab runs fn on tab id bound to a context limited by the action
// timeout.
func (b *Browser) withTab(ctx context.Context, id int, fn func(p *rod.Page) error) error {
	page, err := b.page(id)
	if err != nil {
		return err
	}
	actionCtx, cancel := context.WithTimeout(ctx, b.cfg.ActionTimeout)
	defer cancel()
	return fn(page.Context(actionCtx))
}

// URL returns the current URL of tab id.
func (b *Browser) URL(ctx context.Context, id int) (string, error) {
	var u string
	err := b.withTab(ctx, id, func(p *rod.Page) error {
		info, err := p.Info()
		if err != nil {
			return fmt.Errorf("tab %d info: %w", id, err)
		}
		u = info.URL
		return nil
	})
	return u, err
}

// Navigate loads rawURL in tab id and waits for the load event.
func (b *Browser) Navigate(ctx context.Context, id int, rawURL string) error {
	return b.withTab(ctx, id, func(p *rod.Page) error {
		if err := p.Navigate(rawURL); err != nil {
			return categorize(p.GetContext(), err, "navigation failed")
		}
		return p.WaitLoad()
	})
}

// Reload reloads tab id.
func (b *Browser) Reload(ctx context.Context, id int) error {
	return b.withTab(ctx, id, func(p *rod.Page) error {
		if err := p.Reload(); err != nil {
			return categorize(p.GetContext(), err, "reload failed")
		}
		return nil
	})
}

// Click clicks the first element matching selector in tab id. A missing
// element is reported as false, not as an error.
func (b *Browser) Click(ctx context.Context, id int, selector string) (bool, error) {
	if selector == "" {
		return false, models.Errorf(models.ErrCodeInvalidInput, "click requires a selector")
	}
	clicked := false
	err := b.withTab(ctx, id, func(p *rod.Page) error {
		has, el, err := p.Has(selector)
		if err != nil {
			return fmt.Errorf("query %q: %w", selector, err)
		}
		if !has {
			return nil
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click %q: %w", selector, err)
		}
		clicked = true
		return nil
	})
	return clicked, err
}

// categorize tells a deadline or cancellation apart from a browser failure.
func categorize(ctx context.Context, err error, msg string) error {
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return models.NewError(models.ErrCodeWaitTimeout, msg, err)
	case ctx.Err() != nil:
		return models.NewError(models.ErrCodeCancelled, msg, err)
	}
	return models.NewError(models.ErrCodeBrowserCrash, msg, err)
}
