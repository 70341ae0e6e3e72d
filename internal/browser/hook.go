package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"replydraft/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// EventType distinguishes hook events.
type EventType string

const (
	EventNav      EventType = "nav"
	EventMutation EventType = "mutation"
)

// Event is one buffered change observed inside the page.
type Event struct {
	Type  EventType `json:"type"`
	Href  string    `json:"href,omitempty"`
	Count int       `json:"count,omitempty"` // mutation records in the batch
	TS    float64   `json:"ts"`
}

// AttachResult reports the outcome of binding the thread watcher.
type AttachResult string

const (
	AttachNew     AttachResult = "attached"
	AttachSame    AttachResult = "same"
	AttachMissing AttachResult = "missing"
)

// maxBufferedEvents caps the in-page buffer between drains.
const maxBufferedEvents = 500

// hookJS installs window.__replydraft: a whole-document observer that turns
// location changes into nav events, and attach(selector) which binds a
// second observer to the thread container.
var hookJS = fmt.Sprintf(`() => {
	const w = window;
	if (w.__replydraft) return 'present';
	const h = { events: [], href: location.href, threadEl: null, threadObs: null };
	const push = (e) => {
		e.ts = Date.now();
		h.events.push(e);
		if (h.events.length > %d) h.events.shift();
	};
	h.docObs = new MutationObserver(() => {
		if (location.href !== h.href) {
			h.href = location.href;
			push({ type: 'nav', href: h.href });
		}
	});
	h.docObs.observe(document.documentElement || document.body, { childList: true, subtree: true });
	h.attach = (sel) => {
		const el = document.querySelector(sel);
		if (!el) return 'missing';
		if (el === h.threadEl) return 'same';
		if (h.threadObs) h.threadObs.disconnect();
		h.threadEl = el;
		h.threadObs = new MutationObserver((ms) => push({ type: 'mutation', count: ms.length }));
		h.threadObs.observe(el, { childList: true, subtree: true, characterData: true });
		return 'attached';
	};
	h.drain = () => {
		const out = h.events;
		h.events = [];
		return out;
	};
	w.__replydraft = h;
	return 'installed';
}`, maxBufferedEvents)

const attachJS = `(sel) => {
	const h = window.__replydraft;
	if (!h) return 'nohook';
	return h.attach(sel);
}`

// drainJS returns null when the hook is gone (full page reload).
const drainJS = `() => {
	const h = window.__replydraft;
	if (!h) return null;
	return h.drain();
}`

// InstallHook installs the change hook. Reinstalling is a no-op.
func (t *Tab) InstallHook(ctx context.Context) error {
	res, err := t.eval(ctx, hookJS)
	if err != nil {
		return fmt.Errorf("install hook: %w", err)
	}
	if res.Value.Str() == "installed" {
		logging.BrowserDebug("change hook installed")
	}
	return nil
}

// AttachThread binds the thread watcher to the first element matching
// selector. A missing hook reports AttachMissing.
func (t *Tab) AttachThread(ctx context.Context, selector string) (AttachResult, error) {
	res, err := t.eval(ctx, attachJS, selector)
	if err != nil {
		return AttachMissing, fmt.Errorf("attach thread watcher: %w", err)
	}
	switch r := AttachResult(res.Value.Str()); r {
	case AttachNew, AttachSame:
		return r, nil
	default:
		return AttachMissing, nil
	}
}

// Drain returns and clears buffered events. hooked is false when the page
// has lost the hook and it must be reinstalled.
func (t *Tab) Drain(ctx context.Context) (events []Event, hooked bool, err error) {
	res, err := t.eval(ctx, drainJS)
	if err != nil {
		return nil, false, fmt.Errorf("drain hook events: %w", err)
	}
	if res.Value.Nil() {
		return nil, false, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, true, fmt.Errorf("encode hook events: %w", err)
	}
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, true, fmt.Errorf("decode hook events: %w", err)
	}
	return events, true, nil
}

func (t *Tab) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return t.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
}
