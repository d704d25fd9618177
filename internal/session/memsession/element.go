package memsession

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

type elementKind int

const (
	kindWindow elementKind = iota
	kindTabStrip
	kindTab
	kindCloseButton
	kindNewTabButton
	kindFileMenu
	kindMenuItem
	kindBody
)

func (k elementKind) String() string {
	switch k {
	case kindWindow:
		return "window"
	case kindTabStrip:
		return "tabs"
	case kindTab:
		return "tab"
	case kindCloseButton:
		return "close-button"
	case kindNewTabButton:
		return "newtab-button"
	case kindFileMenu:
		return "menu"
	case kindMenuItem:
		return "menuitem"
	case kindBody:
		return "body"
	}
	return "unknown"
}

type elementKey struct {
	kind   elementKind
	handle string
	name   string
}

// element is a node of the simulated chrome (or the content body).
type element struct {
	s      *Session
	id     string
	kind   elementKind
	handle string // tab or close button: owning tab
	name   string // menu item id
	ctx    session.Context
}

var _ session.Element = (*element)(nil)

func (e *element) ID() string               { return e.id }
func (e *element) Context() session.Context { return e.ctx }

// liveLocked fails for elements of closed tabs.
func (b *Browser) liveLocked(e *element) error {
	if e.handle != "" && !slices.Contains(b.tabs, e.handle) {
		return fmt.Errorf("%w: stale %s element %s", session.ErrNoSuchElement, e.kind, e.id)
	}
	return nil
}

// checkLocked verifies the element is reachable from the session's context.
func (e *element) checkLocked() error {
	if e.s.context != e.ctx {
		return fmt.Errorf("%w: %s element %s used from %s context", session.ErrWrongContext, e.ctx, e.id, e.s.context)
	}
	return e.s.b.liveLocked(e)
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	b := e.s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return "", false, err
	}

	if name == "localName" {
		switch e.kind {
		case kindCloseButton, kindNewTabButton:
			return "toolbarbutton", true, nil
		default:
			return e.kind.String(), true, nil
		}
	}

	switch e.kind {
	case kindWindow:
		if name == "id" {
			return IDMainWindow, true, nil
		}
	case kindTabStrip:
		if name == "id" {
			return IDTabStrip, true, nil
		}
	case kindTab:
		switch name {
		case "label":
			return b.titles[e.handle], true, nil
		case "selected":
			if b.selected == e.handle {
				return "true", true, nil
			}
		}
	case kindCloseButton:
		if name == "anonid" {
			return AnonCloseButton, true, nil
		}
	case kindNewTabButton:
		if name == "anonid" {
			return AnonNewTab, true, nil
		}
	case kindMenuItem:
		if name == "id" {
			return e.name, true, nil
		}
	}
	return "", false, nil
}

func (e *element) Click(ctx context.Context) error {
	b := e.s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}

	switch e.kind {
	case kindNewTabButton:
		b.requestOpen()
	case kindCloseButton:
		return b.requestClose(e.handle)
	case kindTab:
		b.selectLocked(e.handle)
	case kindMenuItem:
		switch e.name {
		case IDMenuNewTab:
			b.requestOpen()
		case IDMenuCloseTab:
			return b.requestClose(b.selected)
		}
	}
	return nil
}

// SendKeys recognizes the accelerator shortcuts for opening and closing
// tabs, resolved through the localized entities. Other input is ignored.
func (e *element) SendKeys(ctx context.Context, keys ...string) error {
	b := e.s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}
	if e.ctx != session.ContextChrome || len(keys) == 0 || keys[0] != session.KeyAccel {
		return nil
	}

	key := strings.ToLower(strings.Join(keys[1:], ""))
	switch key {
	case strings.ToLower(b.entities["tabCmd.commandkey"]):
		b.requestOpen()
	case strings.ToLower(b.entities["closeCmd.key"]):
		return b.requestClose(b.selected)
	}
	return nil
}
