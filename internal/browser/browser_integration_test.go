//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"replydraft/internal/browser"

	"github.com/stretchr/testify/require"
)

const threadPage = `<html><body>
<div class="msg-conversations-container__conversations-list"></div>
<ul class="msg-s-message-list-content">
	<li class="msg-s-message-list__event"><div class="msg-s-event-listitem">
		<div class="msg-s-event-listitem__body">Are you free Thursday?</div>
	</div></li>
</ul>
<form><div class="msg-form__contenteditable" contenteditable="true"></div></form>
</body></html>`

func startTab(t *testing.T) (*browser.Tab, context.Context) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, threadPage)
	}))
	t.Cleanup(ts.Close)

	sm := browser.NewSessionManager(browser.Config{
		Headless:          true,
		NavigationTimeout: 10 * time.Second,
		SessionStore:      filepath.Join(t.TempDir(), "sessions.json"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	t.Cleanup(func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	})

	require.NoError(t, sm.Start(ctx), "Failed to start browser")
	tab, session, err := sm.OpenTab(ctx, ts.URL+"/messaging/thread/abc123/")
	require.NoError(t, err, "Failed to open tab")
	require.NotEmpty(t, session.TargetID)
	return tab, ctx
}

func TestTab_SnapshotAndExists_Integration(t *testing.T) {
	tab, ctx := startTab(t)

	ok, err := tab.Exists(ctx, ".msg-s-message-list-content")
	require.NoError(t, err)
	require.True(t, ok)

	snap, err := tab.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, snap.HTML, "Are you free Thursday?")
	require.Contains(t, snap.URL, "/messaging/thread/abc123/")
}

func TestTab_HookEvents_Integration(t *testing.T) {
	tab, ctx := startTab(t)

	require.NoError(t, tab.InstallHook(ctx))
	res, err := tab.AttachThread(ctx, ".msg-s-message-list-content")
	require.NoError(t, err)
	require.Equal(t, browser.AttachNew, res)

	res, err = tab.AttachThread(ctx, ".msg-s-message-list-content")
	require.NoError(t, err)
	require.Equal(t, browser.AttachSame, res)

	_, err = tab.Page().Eval(`() => {
		document.querySelector('.msg-s-message-list-content').append(document.createElement('li'));
		history.pushState({}, '', '/messaging/thread/xyz/');
	}`)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, hooked, err := tab.Drain(ctx)
		if err != nil || !hooked {
			return false
		}
		for _, ev := range events {
			if ev.Type == browser.EventMutation {
				return true
			}
		}
		return false
	}, 5*time.Second, 100*time.Millisecond)
}

func TestTab_ComposerAndBadge_Integration(t *testing.T) {
	tab, ctx := startTab(t)
	composer := ".msg-form__contenteditable"

	res, err := tab.FillComposer(ctx, composer, "Thursday works.")
	require.NoError(t, err)
	require.Equal(t, browser.FillDone, res)

	res, err = tab.FillComposer(ctx, composer, "second draft")
	require.NoError(t, err)
	require.Equal(t, browser.FillOccupied, res, "typed text is never overwritten")

	shown, err := tab.ShowBadge(ctx, composer, browser.BadgeDraft, "Draft ready", true)
	require.NoError(t, err)
	require.True(t, shown)
	present, err := tab.Exists(ctx, "#"+browser.BadgeID)
	require.NoError(t, err)
	require.True(t, present)

	require.NoError(t, tab.RemoveBadge(ctx))
	present, err = tab.Exists(ctx, "#"+browser.BadgeID)
	require.NoError(t, err)
	require.False(t, present)
}

func TestSessionManager_IsConnected_Integration(t *testing.T) {
	sm := browser.NewSessionManager(browser.Config{
		Headless:          true,
		NavigationTimeout: 10 * time.Second,
		SessionStore:      filepath.Join(t.TempDir(), "sessions.json"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, sm.Start(ctx))
	require.True(t, sm.IsConnected(ctx))

	require.NoError(t, sm.Shutdown(context.Background()))
	require.False(t, sm.IsConnected(ctx))
}
