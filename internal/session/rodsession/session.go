// Package rodsession implements session.Session over the Chrome DevTools
// protocol with go-rod.
//
// Tab handles are page target IDs, ordered by when the session first saw
// them. DevTools cannot reach the browser's own UI, so the chrome context
// is emulated: the tab strip, its buttons, the file menu and the tab
// shortcuts are virtual elements whose actions map onto Target commands.
// Preferences are kept per session for the same reason.
package rodsession

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/roelfdiedericks/gopuppet/internal/config"
	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// Localized strings of the emulated chrome.
var defaultEntities = map[string]string{
	"tabCmd.commandkey": "t",
	"closeCmd.key":      "w",
}

// Session is a session.Session connected to one Chromium browser.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher // set when the browser was launched by Connect
	stealth  bool

	mu       sync.Mutex
	order    []string // tab handles in strip order
	pages    map[string]*rod.Page
	focus    string
	selected string
	context  session.Context

	prefs      map[string]any
	entities   map[string]string
	elementIDs map[chromeKey]string
}

var _ session.Session = (*Session)(nil)

// Connect attaches to cfg.ControlURL, or launches a browser when it is empty.
func Connect(ctx context.Context, cfg config.SessionConfig) (*Session, error) {
	controlURL := cfg.ControlURL

	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().
			Headless(cfg.Headless).
			Set("disable-dev-shm-usage")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.Stealth {
			l = l.Set("disable-blink-features", "AutomationControlled")
		}
		if cfg.NoSandbox {
			l = l.Set("no-sandbox")
		}

		L_debug("rodsession: launching browser", "bin", cfg.Bin, "headless", cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", controlURL, err)
	}
	browser.DefaultDevice(ResolveDevice(cfg.Device))

	s, err := New(ctx, browser, cfg.Stealth)
	if err != nil {
		browser.Close()
		if l != nil {
			l.Cleanup()
		}
		return nil, err
	}
	s.launcher = l

	L_info("rodsession: connected", "controlURL", controlURL, "tabs", len(s.order))
	return s, nil
}

// New wraps an already connected browser. If it has no pages, one is opened.
func New(ctx context.Context, browser *rod.Browser, useStealth bool) (*Session, error) {
	s := &Session{
		browser:    browser,
		stealth:    useStealth,
		pages:      make(map[string]*rod.Page),
		context:    session.ContextContent,
		prefs:      make(map[string]any),
		entities:   make(map[string]string),
		elementIDs: make(map[chromeKey]string),
	}
	for k, v := range defaultEntities {
		s.entities[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(ctx); err != nil {
		return nil, err
	}
	if len(s.order) == 0 {
		if _, err := s.openLocked(ctx); err != nil {
			return nil, err
		}
	}
	s.focus = s.order[0]
	if s.selected == "" {
		s.selected = s.order[0]
	}
	return s, nil
}

// Close disconnects, and stops the browser if Connect launched it.
func (s *Session) Close() error {
	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	return err
}

// syncLocked reconciles the tracked tabs with the browser's pages.
func (s *Session) syncLocked(ctx context.Context) error {
	pages, err := s.browser.Context(ctx).Pages()
	if err != nil {
		return fmt.Errorf("failed to enumerate browser pages: %w", err)
	}

	present := make(map[string]*rod.Page, len(pages))
	ids := make([]string, 0, len(pages))
	for _, p := range pages {
		id := string(p.TargetID)
		present[id] = p
		ids = append(ids, id)
	}

	oldCount := len(s.order)
	s.order = reconcile(s.order, ids)
	s.pages = present
	if !slices.Contains(s.order, s.selected) {
		s.selected = ""
	}

	if oldCount != len(s.order) {
		L_debug("rodsession: tabs reconciled", "oldCount", oldCount, "newCount", len(s.order))
	}
	return nil
}

// reconcile keeps the known handles that are still present, in their known
// order, and appends new ones in the order they are reported.
func reconcile(known, current []string) []string {
	out := make([]string, 0, len(current))
	for _, h := range known {
		if slices.Contains(current, h) {
			out = append(out, h)
		}
	}
	for _, h := range current {
		if !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	return out
}

func (s *Session) pageLocked(handle string) (*rod.Page, error) {
	p, ok := s.pages[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNoSuchWindow, handle)
	}
	return p, nil
}

// openLocked creates a foreground page, with stealth when configured.
func (s *Session) openLocked(ctx context.Context) (string, error) {
	var (
		page *rod.Page
		err  error
	)
	if s.stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}

	id := string(page.TargetID)
	s.pages[id] = page
	if !slices.Contains(s.order, id) {
		s.order = append(s.order, id)
	}
	s.selected = id
	L_trace("rodsession: page opened", "handle", id)
	return id, nil
}

// activateLocked brings handle to the front and marks it selected.
func (s *Session) activateLocked(ctx context.Context, handle string) error {
	p, err := s.pageLocked(handle)
	if err != nil {
		return err
	}
	if _, err := p.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("failed to activate %s: %w", handle, err)
	}
	s.selected = handle
	return nil
}

// closeLocked closes handle. The last tab is kept open, as closing it would
// end the browser. A closed selected tab passes selection to its neighbour.
func (s *Session) closeLocked(ctx context.Context, handle string) error {
	p, err := s.pageLocked(handle)
	if err != nil {
		return err
	}
	if len(s.order) == 1 {
		return session.ErrLastTab
	}
	if err := p.Context(ctx).Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", handle, err)
	}

	idx := slices.Index(s.order, handle)
	s.order = slices.Delete(s.order, idx, idx+1)
	delete(s.pages, handle)
	L_trace("rodsession: page closed", "handle", handle)

	if s.selected == handle {
		s.selected = ""
		return s.activateLocked(ctx, s.order[min(idx, len(s.order)-1)])
	}
	return nil
}

func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.order), nil
}

func (s *Session) CurrentWindowHandle(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[s.focus]; !ok {
		return "", fmt.Errorf("%w: focused page was closed", session.ErrNoSuchWindow)
	}
	return s.focus, nil
}

// SwitchToWindow focuses handle and brings it to the front.
func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activateLocked(ctx, handle); err != nil {
		return err
	}
	s.focus = handle
	return nil
}

func (s *Session) CloseWindow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(ctx, s.focus)
}

// CurrentChromeWindowHandle returns the browser window id of the focused tab.
func (s *Session) CurrentChromeWindowHandle(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := proto.BrowserGetWindowForTarget{TargetID: proto.TargetTargetID(s.focus)}.Call(s.browser.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to get window for %s: %w", s.focus, err)
	}
	return strconv.Itoa(int(res.WindowID)), nil
}

func (s *Session) Context() session.Context {
	return s.context
}

func (s *Session) SetContext(ctx context.Context, c session.Context) error {
	if c != session.ContextChrome && c != session.ContextContent {
		return fmt.Errorf("unknown context %q", c)
	}
	s.context = c
	return nil
}

func (s *Session) Execute(ctx context.Context, command string, args ...any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.context == session.ContextChrome {
		return s.executeChromeLocked(ctx, command, args)
	}

	page, err := s.pageLocked(s.focus)
	if err != nil {
		return nil, err
	}
	res, err := page.Context(ctx).Eval(scriptFunction(command), args...)
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}
	return res.Value.Val(), nil
}

// scriptFunction wraps a WebDriver-style script body as a function.
func scriptFunction(body string) string {
	return "() => {\n" + body + "\n}"
}

func (s *Session) FindElement(ctx context.Context, scope session.Element, by session.Locator) (session.Element, error) {
	found, err := s.FindElements(ctx, scope, by)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", session.ErrNoSuchElement, by)
	}
	return found[0], nil
}

func (s *Session) FindElements(ctx context.Context, scope session.Element, by session.Locator) ([]session.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scope != nil && scope.Context() != s.context {
		return nil, fmt.Errorf("%w: scope %s is a %s element", session.ErrWrongContext, scope.ID(), scope.Context())
	}
	if s.context == session.ContextChrome {
		var parent *chromeElement
		if scope != nil {
			el, ok := scope.(*chromeElement)
			if !ok || el.s != s {
				return nil, fmt.Errorf("%w: scope is not an element of this session", session.ErrNoSuchElement)
			}
			parent = el
		}
		return s.findChromeLocked(parent, by), nil
	}
	return s.findContentLocked(ctx, scope, by)
}
