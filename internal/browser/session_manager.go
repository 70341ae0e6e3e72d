// Package browser hosts the messaging page: it launches or connects to Chrome
// over CDP, finds or opens the messaging tab, and exposes that tab as a small
// evaluator the observer, pipeline and presenter drive.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"replydraft/internal/config"
	"replydraft/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Session describes the public metadata for a tracked tab.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	tab  *Tab
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string
	Launch            []string
	Headless          bool
	UserDataDir       string
	NavigationTimeout time.Duration
	SessionStore      string
}

// ConfigFrom maps the file config section.
func ConfigFrom(c *config.Config) Config {
	return Config{
		DebuggerURL:       c.Browser.DebuggerURL,
		Launch:            c.Browser.Launch,
		Headless:          c.Browser.Headless,
		UserDataDir:       c.Browser.UserDataDir,
		NavigationTimeout: c.GetNavigationTimeout(),
		SessionStore:      c.Browser.SessionStore,
	}
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// SessionManager owns the Chrome connection and tracks attached tabs.
type SessionManager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	launched   bool // we started the process and should close it
	sessions   map[string]*sessionRecord
	controlURL string // WebSocket URL for DevTools
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	if err := m.loadSessionsLocked(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	controlURL := m.cfg.DebuggerURL
	launched := false
	if controlURL == "" {
		url, err := m.launcher().Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch chrome: %w", err)
		}
		controlURL = url
		launched = true
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.launched = launched
	m.controlURL = controlURL
	logging.Browser("connected to %s (launched=%v)", controlURL, launched)
	return nil
}

func (m *SessionManager) launcher() *launcher.Launcher {
	l := launcher.New().Headless(m.cfg.Headless)
	if len(m.cfg.Launch) > 0 {
		l = l.Bin(m.cfg.Launch[0])
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
	}
	// A persistent profile keeps the user signed in across runs.
	if m.cfg.UserDataDir != "" {
		l = l.UserDataDir(m.cfg.UserDataDir)
	}
	return l
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected reports whether the browser still answers over CDP.
func (m *SessionManager) IsConnected(ctx context.Context) bool {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return false
	}
	_, err := b.Context(ctx).Version()
	return err == nil
}

// Shutdown forgets tracked tabs and disconnects. A browser we launched is
// closed; a browser we attached to is left running with its tabs intact.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	_ = m.persistSessions()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.sessions {
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil && m.launched {
		err = m.browser.Close()
	}
	m.browser = nil
	m.controlURL = ""
	logging.Browser("browser session shut down")
	return err
}

// List returns metadata for all known sessions.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, record := range m.sessions {
		results = append(results, record.meta)
	}
	return results
}

// OpenTab returns a tab showing url. In order of preference it reuses the
// tab from the previous run, an open tab whose URL starts with url's origin
// and path, or a freshly created one.
func (m *SessionManager) OpenTab(ctx context.Context, url string) (*Tab, *Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, nil, errors.New("browser not connected")
	}

	if page, meta := m.reattach(browser); page != nil {
		return m.track(ctx, page, meta, "reattached")
	}

	if page := findPage(browser, url); page != nil {
		meta := Session{ID: uuid.NewString(), TargetID: string(page.TargetID), URL: url, CreatedAt: time.Now()}
		return m.track(ctx, page, meta, "attached")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	if err := page.Timeout(m.cfg.navigationTimeout()).WaitLoad(); err != nil {
		logging.BrowserWarn("initial load of %s did not settle: %v", url, err)
	}
	meta := Session{ID: uuid.NewString(), TargetID: string(page.TargetID), URL: url, CreatedAt: time.Now()}
	return m.track(ctx, page, meta, "active")
}

// reattach looks for a persisted session whose target still exists.
func (m *SessionManager) reattach(browser *rod.Browser) (*rod.Page, Session) {
	m.mu.RLock()
	candidates := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		if rec.tab == nil && rec.meta.TargetID != "" {
			candidates = append(candidates, rec.meta)
		}
	}
	m.mu.RUnlock()

	for _, meta := range candidates {
		page, err := browser.PageFromTarget(proto.TargetTargetID(meta.TargetID))
		if err != nil {
			logging.BrowserDebug("persisted target %s gone: %v", meta.TargetID, err)
			m.mu.Lock()
			delete(m.sessions, meta.ID)
			m.mu.Unlock()
			continue
		}
		return page, meta
	}
	return nil, Session{}
}

func findPage(browser *rod.Browser, url string) *rod.Page {
	pages, err := browser.Pages()
	if err != nil {
		logging.BrowserWarn("list pages: %v", err)
		return nil
	}
	prefix := strings.TrimRight(url, "/")
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, prefix) {
			return p
		}
	}
	return nil
}

func (m *SessionManager) track(ctx context.Context, page *rod.Page, meta Session, status string) (*Tab, *Session, error) {
	tab := NewTab(page)
	if loc, err := tab.Location(ctx); err == nil {
		meta.URL = loc
	}
	meta.Status = status
	meta.LastActive = time.Now()

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, tab: tab}
	m.mu.Unlock()

	if err := m.persistSessions(); err != nil {
		logging.BrowserWarn("persist sessions: %v", err)
	}
	logging.Browser("tab %s %s at %s", meta.TargetID, status, meta.URL)
	return tab, &meta, nil
}

// persistSessions writes session metadata to disk.
func (m *SessionManager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	m.mu.RLock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		sessions = append(sessions, rec.meta)
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}

// loadSessionsLocked loads persisted metadata. Caller must hold lock.
func (m *SessionManager) loadSessionsLocked() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	data, err := os.ReadFile(m.cfg.SessionStore)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return err
	}

	for _, s := range sessions {
		s.Status = "detached"
		m.sessions[s.ID] = &sessionRecord{meta: s}
	}
	return nil
}
