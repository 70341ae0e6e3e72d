// Package pipeline runs evaluation cycles: snapshot the page, extract the
// actionable state, deduplicate, request a draft, present it. At most one
// cycle runs at a time and each conversation state is drafted at most once.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"replydraft/internal/browser"
	"replydraft/internal/config"
	"replydraft/internal/drafts"
	"replydraft/internal/extract"
	"replydraft/internal/logging"
	"replydraft/internal/metrics"
	"replydraft/internal/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomeDropped        Outcome = "dropped" // another cycle held the lock
	OutcomeDisabled       Outcome = "disabled"
	OutcomeNoSnapshot     Outcome = "no_snapshot"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeAlreadyDrafted Outcome = "already_drafted"
	OutcomeDrafted        Outcome = "drafted"
	OutcomeDraftSkipped   Outcome = "draft_skipped" // drafted but the composer was missing or occupied
	OutcomeNoResponse     Outcome = "no_response"
	OutcomeFailed         Outcome = "failed"
)

// Snapshotter captures the page.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*browser.PageSnapshot, error)
}

// DraftClient requests drafts from the drafting service.
type DraftClient interface {
	Draft(ctx context.Context, settings config.Settings, req drafts.Request) (*drafts.Response, error)
}

// Presenter renders a cycle's result.
type Presenter interface {
	PresentDraft(ctx context.Context, text string) (bool, error)
	PresentNoResponse(ctx context.Context, summary string) error
	Close()
}

// Deps are the Coordinator's collaborators.
type Deps struct {
	Page      Snapshotter
	Extractor *extract.Extractor
	Settings  config.SettingsProvider
	Records   store.Records
	Client    DraftClient
	Presenter Presenter
	Metrics   *metrics.Metrics // optional
	Clock     clockwork.Clock  // optional
}

// Coordinator is the single-flight, dedup gate for one watched tab.
type Coordinator struct {
	deps Deps

	processing atomic.Bool

	mu        sync.Mutex
	currentID string
}

// New returns a Coordinator.
func New(deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Coordinator{deps: deps}
}

// CurrentConversationID returns the last conversation id a cycle settled on.
func (c *Coordinator) CurrentConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

func (c *Coordinator) setCurrent(id string) {
	c.mu.Lock()
	c.currentID = id
	c.mu.Unlock()
}

// Evaluate runs one cycle. A trigger that arrives while a cycle is in flight
// is dropped; the next settled change re-evaluates from a fresh snapshot.
func (c *Coordinator) Evaluate(ctx context.Context, reason string) Outcome {
	if !c.processing.CompareAndSwap(false, true) {
		logging.PipelineDebug("cycle in flight, dropping %s trigger", reason)
		c.deps.Metrics.ObserveCycle(reason, string(OutcomeDropped))
		return OutcomeDropped
	}
	defer c.processing.Store(false)
	defer c.deps.Metrics.CycleStarted()()

	cycle := uuid.NewString()[:8]
	outcome := c.run(ctx, cycle, reason)
	c.deps.Metrics.ObserveCycle(reason, string(outcome))
	logging.Get(logging.CategoryPipeline).Infow("cycle", "id", cycle, "reason", reason, "outcome", string(outcome))
	return outcome
}

func (c *Coordinator) run(ctx context.Context, cycle, reason string) Outcome {
	settings, err := c.deps.Settings.Settings(ctx)
	if err != nil {
		logging.PipelineError("[%s] read settings: %v", cycle, err)
		return OutcomeFailed
	}
	if !settings.Enabled {
		return OutcomeDisabled
	}

	page, err := c.deps.Page.Snapshot(ctx)
	if err != nil {
		logging.PipelineError("[%s] %v", cycle, err)
		return OutcomeFailed
	}
	snap, err := c.deps.Extractor.ExtractHTML(page.HTML, page.URL)
	if err != nil {
		logging.PipelineError("[%s] %v", cycle, err)
		return OutcomeFailed
	}
	if snap == nil {
		return OutcomeNoSnapshot
	}

	id := snap.ConversationID
	if id == c.CurrentConversationID() {
		return OutcomeUnchanged
	}

	if _, found, err := c.deps.Records.Get(ctx, id); err != nil {
		logging.PipelineError("[%s] read record %s: %v", cycle, id, err)
		return OutcomeFailed
	} else if found {
		c.setCurrent(id)
		logging.Pipeline("[%s] %s already drafted", cycle, id)
		return OutcomeAlreadyDrafted
	}

	logging.Pipeline("[%s] requesting draft for %s (%s, trigger=%s)", cycle, id, snap.SenderName, reason)
	start := c.deps.Clock.Now()
	resp, err := c.deps.Client.Draft(ctx, settings, drafts.RequestFromSnapshot(snap))
	elapsed := c.deps.Clock.Since(start)
	if err != nil {
		result := "error"
		if errors.Is(err, drafts.ErrNotConfigured) {
			result = "not_configured"
		}
		c.deps.Metrics.ObserveDraftRequest(result, elapsed)
		// No record and no current id: the same state stays eligible.
		logging.PipelineError("[%s] draft request for %s failed: %v", cycle, id, err)
		return OutcomeFailed
	}

	// Record before presenting so an immediately following cycle cannot re-request.
	rec := store.DraftRecord{ConversationID: id, Drafted: true, Timestamp: c.deps.Clock.Now()}
	if err := c.deps.Records.Put(ctx, rec); err != nil {
		logging.PipelineError("[%s] persist record %s: %v", cycle, id, err)
	}
	c.setCurrent(id)

	if resp.NeedsResponse && resp.DraftText != "" {
		c.deps.Metrics.ObserveDraftRequest("draft", elapsed)
		placed, err := c.deps.Presenter.PresentDraft(ctx, resp.DraftText)
		if err != nil {
			logging.PipelineError("[%s] present draft: %v", cycle, err)
		}
		if !placed {
			logging.Pipeline("[%s] draft for %s not placed in the composer", cycle, id)
			return OutcomeDraftSkipped
		}
		logging.Pipeline("[%s] draft presented for %s (urgency=%s)", cycle, id, resp.Urgency)
		return OutcomeDrafted
	}

	c.deps.Metrics.ObserveDraftRequest("no_response", elapsed)
	if err := c.deps.Presenter.PresentNoResponse(ctx, resp.Summary); err != nil {
		logging.PipelineError("[%s] present verdict: %v", cycle, err)
	}
	logging.Pipeline("[%s] no response needed for %s", cycle, id)
	return OutcomeNoResponse
}

// Close releases the presenter's timer.
func (c *Coordinator) Close() {
	if c.deps.Presenter != nil {
		c.deps.Presenter.Close()
	}
}
