// Package presenter writes cycle results back into the page: the draft goes
// into the composer, verdicts go into a small badge next to it.
package presenter

import (
	"context"
	"sync"
	"time"

	"replydraft/internal/browser"
	"replydraft/internal/logging"
	"replydraft/internal/selectors"

	"github.com/jonboulle/clockwork"
)

const (
	// DraftLabel marks composer text written by the assistant.
	DraftLabel = "AI draft"
	// NoResponseFallback is shown when the service gave no summary.
	NoResponseFallback = "No response needed"

	fadeCallTimeout = 5 * time.Second
)

// Page is the slice of a browser tab the presenter writes to.
type Page interface {
	FillComposer(ctx context.Context, selector, text string) (browser.FillResult, error)
	ShowBadge(ctx context.Context, composerSelector string, kind browser.BadgeKind, text string, fadeOnType bool) (bool, error)
	FadeBadge(ctx context.Context) error
	RemoveBadge(ctx context.Context) error
}

// Presenter owns the badge and its fade timer.
type Presenter struct {
	page  Page
	reg   *selectors.Registry
	clock clockwork.Clock
	fade  time.Duration

	mu     sync.Mutex
	timer  clockwork.Timer
	closed bool
}

// New returns a Presenter. fade bounds the no-response badge (10s if zero).
func New(page Page, reg *selectors.Registry, clock clockwork.Clock, fade time.Duration) *Presenter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if fade <= 0 {
		fade = 10 * time.Second
	}
	return &Presenter{page: page, reg: reg, clock: clock, fade: fade}
}

// PresentDraft fills the composer with text and shows the draft badge, which
// fades on the first keystroke. A composer that already holds the user's own
// text is left alone. The bool reports whether the text reached the composer.
func (p *Presenter) PresentDraft(ctx context.Context, text string) (bool, error) {
	if !p.begin() {
		return false, nil
	}
	composer := p.reg.Rule(selectors.RoleComposer)

	res, err := p.page.FillComposer(ctx, composer, text)
	if err != nil {
		return false, err
	}
	switch res {
	case browser.FillMissing:
		logging.PresenterWarn("composer not found, draft not shown")
		return false, nil
	case browser.FillOccupied:
		logging.PresenterWarn("composer already has text, draft not injected")
		return false, nil
	}

	shown, err := p.page.ShowBadge(ctx, composer, browser.BadgeDraft, DraftLabel, true)
	if err != nil {
		return true, err
	}
	if !shown {
		logging.PresenterWarn("draft injected but badge anchor missing")
	}
	logging.Presenter("draft injected (%d chars)", len(text))
	return true, nil
}

// PresentNoResponse shows summary (or a fallback) in a low-key badge that
// fades after the configured period.
func (p *Presenter) PresentNoResponse(ctx context.Context, summary string) error {
	if !p.begin() {
		return nil
	}
	if summary == "" {
		summary = NoResponseFallback
	}

	shown, err := p.page.ShowBadge(ctx, p.reg.Rule(selectors.RoleComposer), browser.BadgeNoResponse, summary, false)
	if err != nil {
		return err
	}
	if !shown {
		logging.PresenterWarn("composer not found, no-response badge not shown")
		return nil
	}

	fadeCtx := context.WithoutCancel(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.timer = p.clock.AfterFunc(p.fade, func() {
		ctx, cancel := context.WithTimeout(fadeCtx, fadeCallTimeout)
		defer cancel()
		if err := p.page.FadeBadge(ctx); err != nil {
			logging.PresenterWarn("fade badge: %v", err)
		}
	})
	logging.Presenter("no-response badge shown: %s", summary)
	return nil
}

// begin cancels a pending fade; a new badge replaces the old one.
func (p *Presenter) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return true
}

// Close stops the fade timer and takes any badge off the page. Later calls
// present nothing.
func (p *Presenter) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fadeCallTimeout)
	defer cancel()
	if err := p.page.RemoveBadge(ctx); err != nil {
		logging.PresenterWarn("remove badge: %v", err)
	}
}
