package memsession

import (
	"context"
	"fmt"
	"slices"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// Chrome element ids and anonids of the simulated browser window.
const (
	IDMainWindow    = "main-window"
	IDTabStrip      = "tabbrowser-tabs"
	IDFileMenu      = "file-menu"
	IDMenuNewTab    = "menu_newNavigatorTab"
	IDMenuCloseTab  = "menu_close"
	AnonNewTab      = "tabs-newtab-button"
	AnonCloseButton = "close-button"
)

// Session is a session.Session connected to a Browser.
type Session struct {
	b        *Browser
	context  session.Context
	switches int
}

var _ session.Session = (*Session)(nil)

// Browser returns the browser the session is connected to.
func (s *Session) Browser() *Browser {
	return s.b
}

// ContextSwitches counts SetContext calls that changed the context.
func (s *Session) ContextSwitches() int {
	return s.switches
}

func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	s.b.tickLocked()
	return slices.Clone(s.b.tabs), nil
}

func (s *Session) CurrentWindowHandle(ctx context.Context) (string, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if !slices.Contains(s.b.tabs, s.b.focus) {
		return "", fmt.Errorf("%w: focused window was closed", session.ErrNoSuchWindow)
	}
	return s.b.focus, nil
}

func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if !slices.Contains(s.b.tabs, handle) {
		return fmt.Errorf("%w: %s", session.ErrNoSuchWindow, handle)
	}
	s.b.focus = handle
	if s.b.opts.AutoSelectOnSwitch {
		s.b.selected = handle
	}
	return nil
}

func (s *Session) CloseWindow(ctx context.Context) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	h := s.b.focus
	if !slices.Contains(s.b.tabs, h) {
		return fmt.Errorf("%w: focused window was closed", session.ErrNoSuchWindow)
	}
	if s.b.opts.KeepLastTab && len(s.b.tabs) == 1 {
		return session.ErrLastTab
	}
	s.b.closeLocked(h)
	return nil
}

func (s *Session) CurrentChromeWindowHandle(ctx context.Context) (string, error) {
	return s.b.chromeHandle, nil
}

func (s *Session) Context() session.Context {
	return s.context
}

func (s *Session) SetContext(ctx context.Context, c session.Context) error {
	if c != session.ContextChrome && c != session.ContextContent {
		return fmt.Errorf("unknown context %q", c)
	}
	if c != s.context {
		s.switches++
	}
	s.context = c
	return nil
}

func (s *Session) Execute(ctx context.Context, command string, args ...any) (any, error) {
	if s.context == session.ContextContent {
		return s.executeContent(command)
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	switch command {
	case session.CommandTabHandle:
		tab, err := s.argLocked(args, 0, kindTab)
		if err != nil {
			return nil, err
		}
		return tab.handle, nil

	case session.CommandSelectedTabHandle:
		if _, err := s.argLocked(args, 0, kindTabStrip); err != nil {
			return nil, err
		}
		if s.b.selected == "" {
			return nil, fmt.Errorf("%w: no tab selected", session.ErrNoSuchWindow)
		}
		return s.b.selected, nil

	case session.CommandSelectTab:
		if _, err := s.argLocked(args, 0, kindTabStrip); err != nil {
			return nil, err
		}
		tab, err := s.argLocked(args, 1, kindTab)
		if err != nil {
			return nil, err
		}
		s.b.selectLocked(tab.handle)
		return nil, nil

	case session.CommandGetPref:
		name, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return s.b.prefs[name], nil

	case session.CommandSetPref:
		name, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("%s: missing value", command)
		}
		s.b.prefs[name] = args[1]
		return nil, nil

	case session.CommandResetPref:
		name, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		if def, ok := s.b.defaults[name]; ok {
			s.b.prefs[name] = def
		} else {
			delete(s.b.prefs, name)
		}
		return nil, nil

	case session.CommandGetEntity:
		id, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		if v, ok := s.b.entities[id]; ok {
			return v, nil
		}
		return nil, nil
	}

	return nil, fmt.Errorf("%w: %q", session.ErrUnsupportedCommand, command)
}

// executeContent understands a single page script, enough for callers
// that read the focused page's title.
func (s *Session) executeContent(script string) (any, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	switch script {
	case "return document.title":
		if !slices.Contains(s.b.tabs, s.b.focus) {
			return nil, fmt.Errorf("%w: focused window was closed", session.ErrNoSuchWindow)
		}
		return s.b.titles[s.b.focus], nil
	}
	if isChromeCommand(script) {
		return nil, fmt.Errorf("%w: %s needs chrome context", session.ErrWrongContext, script)
	}
	return nil, fmt.Errorf("%w: %q", session.ErrUnsupportedCommand, script)
}

func isChromeCommand(name string) bool {
	switch name {
	case session.CommandTabHandle, session.CommandSelectedTabHandle, session.CommandSelectTab,
		session.CommandGetPref, session.CommandSetPref, session.CommandResetPref, session.CommandGetEntity:
		return true
	}
	return false
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i, args[i])
	}
	return s, nil
}

// argLocked extracts a live element of the given kind from args.
func (s *Session) argLocked(args []any, i int, want elementKind) (*element, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing element argument %d", i)
	}
	el, ok := args[i].(*element)
	if !ok || el.s.b != s.b {
		return nil, fmt.Errorf("%w: argument %d is not an element of this browser", session.ErrNoSuchElement, i)
	}
	if el.kind != want {
		return nil, fmt.Errorf("%w: argument %d is a %s, want %s", session.ErrNoSuchElement, i, el.kind, want)
	}
	if err := s.b.liveLocked(el); err != nil {
		return nil, err
	}
	return el, nil
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
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	var parent *element
	if scope != nil {
		el, ok := scope.(*element)
		if !ok || el.s.b != s.b {
			return nil, fmt.Errorf("%w: scope is not an element of this browser", session.ErrNoSuchElement)
		}
		if el.ctx != s.context {
			return nil, fmt.Errorf("%w: scope %s is a %s element", session.ErrWrongContext, el.id, el.ctx)
		}
		if err := s.b.liveLocked(el); err != nil {
			return nil, err
		}
		parent = el
	}

	if s.context == session.ContextContent {
		if parent == nil && by.Strategy == session.StrategyTagName && by.Value == "body" {
			return []session.Element{s.newElementLocked(kindBody, "", "")}, nil
		}
		return nil, nil
	}
	return s.findChromeLocked(parent, by), nil
}

func (s *Session) findChromeLocked(parent *element, by session.Locator) []session.Element {
	parentKind := kindWindow
	if parent != nil {
		parentKind = parent.kind
	}

	one := func(kind elementKind, handle, name string) []session.Element {
		return []session.Element{s.newElementLocked(kind, handle, name)}
	}

	switch by.Strategy {
	case session.StrategyID:
		if parentKind != kindWindow && !(parentKind == kindFileMenu && isMenuItem(by.Value)) {
			return nil
		}
		switch {
		case by.Value == IDMainWindow && parent == nil:
			return one(kindWindow, "", "")
		case by.Value == IDTabStrip:
			return one(kindTabStrip, "", "")
		case by.Value == IDFileMenu:
			return one(kindFileMenu, "", "")
		case isMenuItem(by.Value):
			return one(kindMenuItem, "", by.Value)
		}

	case session.StrategyTagName:
		if by.Value == "tab" && (parentKind == kindTabStrip || parentKind == kindWindow) {
			found := make([]session.Element, 0, len(s.b.tabs))
			for _, h := range s.b.tabs {
				found = append(found, s.newElementLocked(kindTab, h, ""))
			}
			return found
		}

	case session.StrategyAnonAttribute:
		if by.Attr != "anonid" {
			return nil
		}
		switch {
		case by.Value == AnonNewTab && parentKind == kindTabStrip:
			return one(kindNewTabButton, "", "")
		case by.Value == AnonCloseButton && parentKind == kindTab:
			return one(kindCloseButton, parent.handle, "")
		}
	}
	return nil
}

func isMenuItem(id string) bool {
	return id == IDMenuNewTab || id == IDMenuCloseTab
}

func (s *Session) newElementLocked(kind elementKind, handle, name string) *element {
	ctx := session.ContextChrome
	if kind == kindBody {
		ctx = session.ContextContent
	}
	return &element{
		s:      s,
		id:     s.b.elementID(elementKey{kind: kind, handle: handle, name: name}),
		kind:   kind,
		handle: handle,
		name:   name,
		ctx:    ctx,
	}
}
