package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
)

// BadgeID is the DOM id of the single assistant badge.
const BadgeID = "replydraft-badge"

// BadgeKind selects badge styling.
type BadgeKind string

const (
	BadgeDraft      BadgeKind = "draft"
	BadgeNoResponse BadgeKind = "no_response"
)

// FillResult reports what FillComposer did.
type FillResult string

const (
	FillDone     FillResult = "filled"
	FillOccupied FillResult = "occupied" // the user already typed something
	FillMissing  FillResult = "missing"
)

// PageSnapshot is the document and location captured in one evaluation so
// extraction always sees a consistent pair.
type PageSnapshot struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

// Tab is one messaging tab.
type Tab struct {
	page *rod.Page
}

// NewTab wraps a rod page.
func NewTab(page *rod.Page) *Tab {
	return &Tab{page: page}
}

// Page returns the underlying rod page.
func (t *Tab) Page() *rod.Page {
	return t.page
}

// Location returns location.href.
func (t *Tab) Location(ctx context.Context) (string, error) {
	res, err := t.eval(ctx, `() => location.href`)
	if err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return res.Value.Str(), nil
}

// Exists reports whether selector matches anything.
func (t *Tab) Exists(ctx context.Context, selector string) (bool, error) {
	res, err := t.eval(ctx, `(sel) => !!document.querySelector(sel)`, selector)
	if err != nil {
		return false, fmt.Errorf("probe %q: %w", selector, err)
	}
	return res.Value.Bool(), nil
}

// Snapshot captures the serialized document together with its location.
func (t *Tab) Snapshot(ctx context.Context) (*PageSnapshot, error) {
	res, err := t.eval(ctx, `() => ({ html: document.documentElement.outerHTML, url: location.href })`)
	if err != nil {
		return nil, fmt.Errorf("snapshot page: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var snap PageSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// fillJS writes text into the composer as paragraphs and dispatches an input
// event so the host page's own state sees the change.
const fillJS = `(sel, text) => {
	const el = document.querySelector(sel);
	if (!el) return 'missing';
	const current = ('value' in el ? el.value : el.innerText) || '';
	if (current.trim() !== '') return 'occupied';
	el.focus();
	if ('value' in el) {
		el.value = text;
	} else {
		el.innerHTML = '';
		for (const line of text.split('\n')) {
			const p = document.createElement('p');
			if (line) p.textContent = line; else p.appendChild(document.createElement('br'));
			el.appendChild(p);
		}
	}
	el.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'insertText', data: text }));
	return 'filled';
}`

// FillComposer writes text into the composer unless the user already typed there.
func (t *Tab) FillComposer(ctx context.Context, selector, text string) (FillResult, error) {
	res, err := t.eval(ctx, fillJS, selector, text)
	if err != nil {
		return FillMissing, fmt.Errorf("fill composer: %w", err)
	}
	switch r := FillResult(res.Value.Str()); r {
	case FillDone, FillOccupied:
		return r, nil
	default:
		return FillMissing, nil
	}
}

// showBadgeJS replaces any badge with a new one anchored to the composer's
// form (or parent). fadeOnType installs a one-shot keydown listener.
const showBadgeJS = `(sel, id, kind, text, fadeOnType) => {
	const old = document.getElementById(id);
	if (old) old.remove();
	const composer = document.querySelector(sel);
	if (!composer) return false;
	const anchor = composer.closest('form') || composer.parentElement;
	if (!anchor) return false;
	if (getComputedStyle(anchor).position === 'static') anchor.style.position = 'relative';
	const b = document.createElement('div');
	b.id = id;
	b.dataset.kind = kind;
	b.textContent = text;
	b.setAttribute('aria-hidden', 'true');
	const strong = kind === 'draft';
	b.style.cssText = [
		'position:absolute', 'top:-28px', 'right:8px', 'z-index:9999',
		'pointer-events:none', 'padding:3px 8px', 'border-radius:10px',
		'font:600 12px/1.4 system-ui,sans-serif', 'transition:opacity .3s ease',
		strong ? 'background:#0a66c2;color:#fff' : 'background:#eef3f8;color:#56687a',
	].join(';');
	anchor.appendChild(b);
	if (fadeOnType) {
		composer.addEventListener('keydown', () => {
			b.style.opacity = '0';
			setTimeout(() => b.remove(), 300);
		}, { once: true });
	}
	return true;
}`

// ShowBadge displays the badge. It reports false when the composer is absent.
func (t *Tab) ShowBadge(ctx context.Context, composerSelector string, kind BadgeKind, text string, fadeOnType bool) (bool, error) {
	res, err := t.eval(ctx, showBadgeJS, composerSelector, BadgeID, string(kind), text, fadeOnType)
	if err != nil {
		return false, fmt.Errorf("show badge: %w", err)
	}
	return res.Value.Bool(), nil
}

// FadeBadge fades out and removes the badge, if any.
func (t *Tab) FadeBadge(ctx context.Context) error {
	_, err := t.eval(ctx, `(id) => {
		const b = document.getElementById(id);
		if (!b) return false;
		b.style.opacity = '0';
		setTimeout(() => b.remove(), 300);
		return true;
	}`, BadgeID)
	if err != nil {
		return fmt.Errorf("fade badge: %w", err)
	}
	return nil
}

// RemoveBadge removes the badge immediately.
func (t *Tab) RemoveBadge(ctx context.Context) error {
	_, err := t.eval(ctx, `(id) => {
		const b = document.getElementById(id);
		if (b) b.remove();
		return true;
	}`, BadgeID)
	if err != nil {
		return fmt.Errorf("remove badge: %w", err)
	}
	return nil
}
