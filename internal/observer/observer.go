// Package observer turns page changes into evaluation triggers: navigation
// fires at once, content mutations fire after a quiet period.
package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"replydraft/internal/browser"
	"replydraft/internal/logging"
	"replydraft/internal/selectors"

	"github.com/jonboulle/clockwork"
)

// Reason says why an evaluation was triggered.
type Reason string

const (
	ReasonInitial    Reason = "initial"
	ReasonNavigation Reason = "navigation"
	ReasonReload     Reason = "reload" // hook lost to a full page load
	ReasonMutation   Reason = "mutation"
)

// TriggerFunc runs one evaluation cycle.
type TriggerFunc func(ctx context.Context, reason Reason)

// Page is the slice of a browser tab the observer drives.
type Page interface {
	Prober
	InstallHook(ctx context.Context) error
	AttachThread(ctx context.Context, selector string) (browser.AttachResult, error)
	Drain(ctx context.Context) ([]browser.Event, bool, error)
}

// Options holds observer timings.
type Options struct {
	ReadyPoll     time.Duration
	Debounce      time.Duration
	AttachRetry   time.Duration
	DrainInterval time.Duration
	Clock         clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.ReadyPoll <= 0 {
		o.ReadyPoll = 500 * time.Millisecond
	}
	if o.Debounce <= 0 {
		o.Debounce = 800 * time.Millisecond
	}
	if o.AttachRetry <= 0 {
		o.AttachRetry = time.Second
	}
	if o.DrainInterval <= 0 {
		o.DrainInterval = 100 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Observer watches one tab.
type Observer struct {
	page    Page
	reg     *selectors.Registry
	trigger TriggerFunc
	opts    Options

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New returns an Observer that calls trigger for every settled change.
func New(page Page, reg *selectors.Registry, trigger TriggerFunc, opts Options) *Observer {
	return &Observer{
		page:    page,
		reg:     reg,
		trigger: trigger,
		opts:    opts.withDefaults(),
	}
}

// Run waits for the page to be ready, then observes until ctx is done.
// It returns after every trigger it started has finished.
func (o *Observer) Run(ctx context.Context) error {
	defer o.shutdown()

	if err := AwaitReady(ctx, o.page, o.reg, o.opts.Clock, o.opts.ReadyPoll); err != nil {
		return err
	}
	if err := o.page.InstallHook(ctx); err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	o.attach(ctx)

	debouncer := NewDebouncer(o.opts.Clock, o.opts.Debounce, func() {
		o.fire(ctx, ReasonMutation)
	})
	defer debouncer.Cancel()

	o.fire(ctx, ReasonInitial)

	drain := o.opts.Clock.NewTicker(o.opts.DrainInterval)
	defer drain.Stop()
	retry := o.opts.Clock.NewTicker(o.opts.AttachRetry)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Observer("observer stopped: %v", ctx.Err())
			return nil

		case <-retry.Chan():
			o.attach(ctx)

		case <-drain.Chan():
			events, hooked, err := o.page.Drain(ctx)
			if err != nil {
				logging.ObserverDebug("drain: %v", err)
				continue
			}
			if !hooked {
				logging.Observer("change hook lost, reinstalling")
				if err := o.page.InstallHook(ctx); err != nil {
					logging.ObserverWarn("reinstall hook: %v", err)
					continue
				}
				o.navigated(ctx, debouncer, ReasonReload)
				continue
			}
			o.handle(ctx, debouncer, events)
		}
	}
}

func (o *Observer) handle(ctx context.Context, debouncer *Debouncer, events []browser.Event) {
	mutations := 0
	var nav *browser.Event
	for i := range events {
		switch events[i].Type {
		case browser.EventNav:
			nav = &events[i]
		case browser.EventMutation:
			mutations++
		}
	}

	if nav != nil {
		logging.ObserverDebug("navigation to %s", nav.Href)
		o.navigated(ctx, debouncer, ReasonNavigation)
		return
	}
	if mutations > 0 {
		logging.ObserverDebug("%d mutation batch(es), debouncing", mutations)
		debouncer.Schedule()
	}
}

// navigated evaluates at once. The thread watcher is re-probed first so a
// replaced container is observed before the cycle runs.
func (o *Observer) navigated(ctx context.Context, debouncer *Debouncer, reason Reason) {
	debouncer.Cancel()
	o.attach(ctx)
	o.fire(ctx, reason)
}

func (o *Observer) attach(ctx context.Context) {
	res, err := o.page.AttachThread(ctx, o.reg.Rule(selectors.RoleThread))
	if err != nil {
		logging.ObserverDebug("attach thread watcher: %v", err)
		return
	}
	if res == browser.AttachNew {
		logging.Observer("thread watcher attached")
	}
}

// fire runs the trigger off the loop goroutine so draining continues
// while a cycle is in flight.
func (o *Observer) fire(ctx context.Context, reason Reason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped || ctx.Err() != nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.trigger(ctx, reason)
	}()
}

func (o *Observer) shutdown() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.wg.Wait()
}
