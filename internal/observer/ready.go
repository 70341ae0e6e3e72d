package observer

import (
	"context"
	"time"

	"replydraft/internal/logging"
	"replydraft/internal/selectors"

	"github.com/jonboulle/clockwork"
)

// Prober answers "does this selector match anything right now".
type Prober interface {
	Exists(ctx context.Context, selector string) (bool, error)
}

// AwaitReady blocks until the conversation list or the thread container is
// present. It polls every interval with no retry limit; only ctx ends it early.
func AwaitReady(ctx context.Context, p Prober, reg *selectors.Registry, clock clockwork.Clock, interval time.Duration) error {
	roles := []selectors.Role{selectors.RoleConversationList, selectors.RoleThread}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		for _, role := range roles {
			ok, err := p.Exists(ctx, reg.Rule(role))
			if err != nil {
				// Mid-navigation evaluations fail; treat as not ready.
				logging.ObserverDebug("readiness probe %s: %v", role, err)
				continue
			}
			if ok {
				logging.Observer("page ready (%s found after %d probe(s))", role, attempts)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}
