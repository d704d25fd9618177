package tabs

import (
	"context"
	"fmt"
	"strings"

	"github.com/roelfdiedericks/gopuppet/internal/base"
)

type triggerKind int

const (
	kindButton triggerKind = iota
	kindMenu
	kindShortcut
	kindCustom
)

// Trigger selects how an open or close is performed in the UI. The zero
// value is Button.
type Trigger struct {
	kind triggerKind
	fn   func(ctx context.Context, tab *Tab) error
}

var (
	// Button clicks the new-tab button, or the tab's close button.
	Button = Trigger{kind: kindButton}
	// Menu uses the File menu entries.
	Menu = Trigger{kind: kindMenu}
	// Shortcut presses the localized accelerator key.
	Shortcut = Trigger{kind: kindShortcut}
)

// Custom runs fn instead of a built-in interaction. For opens, fn receives
// the selected tab; for closes, the tab being closed.
func Custom(fn func(ctx context.Context, tab *Tab) error) Trigger {
	return Trigger{kind: kindCustom, fn: fn}
}

// ParseTrigger maps "button", "menu" and "shortcut" to their triggers.
// The empty string is Button.
func ParseTrigger(s string) (Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "button":
		return Button, nil
	case "menu":
		return Menu, nil
	case "shortcut":
		return Shortcut, nil
	}
	return Trigger{}, fmt.Errorf("%w: unknown trigger %q (want button, menu or shortcut)", base.ErrInvalidArgument, s)
}

func (t Trigger) String() string {
	switch t.kind {
	case kindMenu:
		return "menu"
	case kindShortcut:
		return "shortcut"
	case kindCustom:
		return "custom"
	}
	return "button"
}

func (t Trigger) custom(ctx context.Context, tab *Tab) error {
	if t.fn == nil {
		return fmt.Errorf("%w: custom trigger without a function", base.ErrInvalidArgument)
	}
	return t.fn(ctx, tab)
}
