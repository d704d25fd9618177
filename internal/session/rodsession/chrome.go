package rodsession

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// Ids and anonids of the emulated chrome.
const (
	idMainWindow    = "main-window"
	idTabStrip      = "tabbrowser-tabs"
	idFileMenu      = "file-menu"
	idMenuNewTab    = "menu_newNavigatorTab"
	idMenuCloseTab  = "menu_close"
	anonNewTab      = "tabs-newtab-button"
	anonCloseButton = "close-button"
)

type chromeKind int

const (
	chromeWindow chromeKind = iota
	chromeTabStrip
	chromeTab
	chromeCloseButton
	chromeNewTabButton
	chromeMenu
	chromeMenuItem
)

var localNames = map[chromeKind]string{
	chromeWindow:       "window",
	chromeTabStrip:     "tabs",
	chromeTab:          "tab",
	chromeCloseButton:  "toolbarbutton",
	chromeNewTabButton: "toolbarbutton",
	chromeMenu:         "menu",
	chromeMenuItem:     "menuitem",
}

type chromeKey struct {
	kind   chromeKind
	handle string
	name   string
}

// chromeElement is a virtual node of the emulated browser chrome.
type chromeElement struct {
	s   *Session
	id  string
	key chromeKey
}

var _ session.Element = (*chromeElement)(nil)

func (e *chromeElement) ID() string               { return e.id }
func (e *chromeElement) Context() session.Context { return session.ContextChrome }

func (s *Session) chromeElementLocked(kind chromeKind, handle, name string) *chromeElement {
	key := chromeKey{kind: kind, handle: handle, name: name}
	id, ok := s.elementIDs[key]
	if !ok {
		id = uuid.NewString()
		s.elementIDs[key] = id
	}
	return &chromeElement{s: s, id: id, key: key}
}

func (s *Session) findChromeLocked(parent *chromeElement, by session.Locator) []session.Element {
	parentKind := chromeWindow
	if parent != nil {
		parentKind = parent.key.kind
	}
	one := func(kind chromeKind, handle, name string) []session.Element {
		return []session.Element{s.chromeElementLocked(kind, handle, name)}
	}

	switch by.Strategy {
	case session.StrategyID:
		switch {
		case by.Value == idMainWindow && parent == nil:
			return one(chromeWindow, "", "")
		case by.Value == idTabStrip && parentKind == chromeWindow:
			return one(chromeTabStrip, "", "")
		case by.Value == idFileMenu && parentKind == chromeWindow:
			return one(chromeMenu, "", by.Value)
		case (by.Value == idMenuNewTab || by.Value == idMenuCloseTab) &&
			(parentKind == chromeMenu || parentKind == chromeWindow):
			return one(chromeMenuItem, "", by.Value)
		}
	case session.StrategyTagName:
		if by.Value == "tab" && (parentKind == chromeTabStrip || parentKind == chromeWindow) {
			found := make([]session.Element, 0, len(s.order))
			for _, h := range s.order {
				found = append(found, s.chromeElementLocked(chromeTab, h, ""))
			}
			return found
		}
	case session.StrategyAnonAttribute:
		if by.Attr != "anonid" {
			return nil
		}
		switch {
		case by.Value == anonNewTab && parentKind == chromeTabStrip:
			return one(chromeNewTabButton, "", "")
		case by.Value == anonCloseButton && parentKind == chromeTab:
			return one(chromeCloseButton, parent.key.handle, "")
		}
	}
	return nil
}

// checkLocked fails for chrome elements used from content, and for elements
// of closed tabs.
func (e *chromeElement) checkLocked() error {
	if e.s.context != session.ContextChrome {
		return fmt.Errorf("%w: chrome element %s used from %s context", session.ErrWrongContext, e.id, e.s.context)
	}
	if h := e.key.handle; h != "" && !slices.Contains(e.s.order, h) {
		return fmt.Errorf("%w: stale element %s of closed tab %s", session.ErrNoSuchElement, e.id, h)
	}
	return nil
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return "", false, err
	}

	switch name {
	case "localName":
		return localNames[e.key.kind], true, nil
	case "id":
		switch e.key.kind {
		case chromeWindow:
			return idMainWindow, true, nil
		case chromeTabStrip:
			return idTabStrip, true, nil
		case chromeMenu, chromeMenuItem:
			return e.key.name, true, nil
		}
	case "anonid":
		switch e.key.kind {
		case chromeNewTabButton:
			return anonNewTab, true, nil
		case chromeCloseButton:
			return anonCloseButton, true, nil
		}
	case "label":
		if e.key.kind == chromeTab {
			page, err := s.pageLocked(e.key.handle)
			if err != nil {
				return "", false, err
			}
			info, err := page.Context(ctx).Info()
			if err != nil {
				return "", false, fmt.Errorf("failed to read page info: %w", err)
			}
			return info.Title, true, nil
		}
	case "selected":
		if e.key.kind == chromeTab && s.selected == e.key.handle {
			return "true", true, nil
		}
	}
	return "", false, nil
}

func (e *chromeElement) Click(ctx context.Context) error {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}

	switch e.key.kind {
	case chromeNewTabButton:
		_, err := s.openLocked(ctx)
		return err
	case chromeCloseButton:
		return s.closeLocked(ctx, e.key.handle)
	case chromeTab:
		return s.activateLocked(ctx, e.key.handle)
	case chromeMenuItem:
		return s.menuActionLocked(ctx, e.key.name)
	}
	return nil
}

func (s *Session) menuActionLocked(ctx context.Context, item string) error {
	switch item {
	case idMenuNewTab:
		_, err := s.openLocked(ctx)
		return err
	case idMenuCloseTab:
		return s.closeLocked(ctx, s.selected)
	}
	return fmt.Errorf("%w: menu item %s", session.ErrUnsupportedCommand, item)
}

// SendKeys performs the tab accelerators. Other input has no chrome
// equivalent over DevTools and is ignored.
func (e *chromeElement) SendKeys(ctx context.Context, keys ...string) error {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}
	if len(keys) < 2 || keys[0] != session.KeyAccel {
		return nil
	}

	switch strings.ToLower(strings.Join(keys[1:], "")) {
	case strings.ToLower(s.entities["tabCmd.commandkey"]):
		return s.menuActionLocked(ctx, idMenuNewTab)
	case strings.ToLower(s.entities["closeCmd.key"]):
		return s.menuActionLocked(ctx, idMenuCloseTab)
	}
	return nil
}

func (s *Session) executeChromeLocked(ctx context.Context, command string, args []any) (any, error) {
	switch command {
	case session.CommandTabHandle:
		el, err := s.chromeArgLocked(args, 0, chromeTab)
		if err != nil {
			return nil, err
		}
		return el.key.handle, nil

	case session.CommandSelectedTabHandle:
		if _, err := s.chromeArgLocked(args, 0, chromeTabStrip); err != nil {
			return nil, err
		}
		if s.selected == "" {
			return nil, fmt.Errorf("%w: no tab selected", session.ErrNoSuchWindow)
		}
		return s.selected, nil

	case session.CommandSelectTab:
		if _, err := s.chromeArgLocked(args, 0, chromeTabStrip); err != nil {
			return nil, err
		}
		el, err := s.chromeArgLocked(args, 1, chromeTab)
		if err != nil {
			return nil, err
		}
		return nil, s.activateLocked(ctx, el.key.handle)

	case session.CommandGetPref:
		name, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return s.prefs[name], nil

	case session.CommandSetPref:
		name, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("%s: missing value", command)
		}
		s.prefs[name] = args[1]
		return nil, nil

	case session.CommandResetPref:
		name, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		delete(s.prefs, name)
		return nil, nil

	case session.CommandGetEntity:
		id, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		if v, ok := s.entities[id]; ok {
			return v, nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", session.ErrUnsupportedCommand, command)
}

func (s *Session) chromeArgLocked(args []any, i int, want chromeKind) (*chromeElement, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing element argument %d", i)
	}
	el, ok := args[i].(*chromeElement)
	if !ok || el.s != s || el.key.kind != want {
		return nil, fmt.Errorf("%w: argument %d is not a %s element", session.ErrNoSuchElement, i, localNames[want])
	}
	if err := el.checkLocked(); err != nil {
		return nil, err
	}
	return el, nil
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	v, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i, args[i])
	}
	return v, nil
}
