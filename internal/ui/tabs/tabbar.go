// Package tabs models the tab strip of a browser window: the ordered tabs,
// opening and closing them through the UI, and switching between them.
//
// Nothing here caches remote state. Every query re-reads the strip, since
// tabs open, close and move without the driver's involvement.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	"github.com/roelfdiedericks/gopuppet/internal/libcache"
	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	. "github.com/roelfdiedericks/gopuppet/internal/metrics"
	"github.com/roelfdiedericks/gopuppet/internal/session"
	"github.com/roelfdiedericks/gopuppet/internal/wait"
)

// Chrome elements and entities the tab bar drives.
const (
	idTabStrip      = "tabbrowser-tabs"
	idFileMenu      = "file-menu"
	idMenuNewTab    = "menu_newNavigatorTab"
	idMenuCloseTab  = "menu_close"
	anonNewTab      = "tabs-newtab-button"
	anonCloseButton = "close-button"

	entityNewTabKey = "tabCmd.commandkey"
	entityCloseKey  = "closeCmd.key"
)

// Window is what the tab bar needs from the window that owns it.
type Window interface {
	base.Window
	// SendShortcut types key into the window, with the accelerator
	// modifier when accel is set.
	SendShortcut(ctx context.Context, key string, accel bool) error
	// SelectMenuItem opens menuID and activates itemID.
	SelectMenuItem(ctx context.Context, menuID, itemID string) error
	// Entity returns a localized string of the window's chrome.
	Entity(ctx context.Context, id string) (string, error)
}

// waitConfigured is implemented by owners that carry poll settings.
type waitConfigured interface {
	WaitOptions() wait.Options
}

// CloseOptions control CloseTab.
type CloseOptions struct {
	Trigger Trigger
	// Force closes the tab with a direct session command instead of the
	// trigger, which cannot be blocked by a confirmation prompt.
	Force bool
}

// TabBar is the tab strip of one window.
type TabBar struct {
	*base.Lib
	window Window

	// Wait bounds the polls for tabs to appear, vanish and take focus.
	Wait wait.Options
}

func init() {
	libcache.Register("tabs.TabBar", func(getter base.SessionGetter, owner any) (any, error) {
		w, ok := owner.(Window)
		if !ok {
			return nil, fmt.Errorf("%w: tab bar owner must be a window, got %T", base.ErrTypeConstraint, owner)
		}
		return New(getter, w)
	})
}

// New returns the tab bar of window. Poll bounds are taken from the window
// when it provides them.
func New(getter base.SessionGetter, window Window) (*TabBar, error) {
	lib, err := base.NewLib(getter)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return nil, fmt.Errorf("%w: window is required", base.ErrTypeConstraint)
	}

	tb := &TabBar{Lib: lib, window: window}
	if wc, ok := window.(waitConfigured); ok {
		tb.Wait = wc.WaitOptions()
	}
	return tb, nil
}

// Window returns the owning window.
func (tb *TabBar) Window() Window {
	return tb.window
}

// strip locates the tab strip element. Caller is in the chrome context.
func (tb *TabBar) strip(ctx context.Context) (session.Element, error) {
	root, err := tb.window.Element(ctx)
	if err != nil {
		return nil, err
	}
	el, err := tb.Session().FindElement(ctx, root, session.ByID(idTabStrip))
	if err != nil {
		return nil, fmt.Errorf("failed to locate tab strip: %w", err)
	}
	return el, nil
}

// Toolbar returns the tab strip element.
func (tb *TabBar) Toolbar(ctx context.Context) (*base.UIElement, error) {
	var el session.Element
	err := session.UsingChrome(ctx, tb.Session(), func() error {
		var err error
		el, err = tb.strip(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return base.NewUIElement(tb.Getter(), tb.window, el)
}

// NewTabButton returns the strip's new-tab button.
func (tb *TabBar) NewTabButton(ctx context.Context) (*base.UIElement, error) {
	var el session.Element
	err := session.UsingChrome(ctx, tb.Session(), func() error {
		strip, err := tb.strip(ctx)
		if err != nil {
			return err
		}
		el, err = tb.Session().FindElement(ctx, strip, session.ByAnonAttribute("anonid", anonNewTab))
		if err != nil {
			return fmt.Errorf("failed to locate new tab button: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return base.NewUIElement(tb.Getter(), tb.window, el)
}

// Tabs returns the open tabs in strip order, read fresh from the browser.
func (tb *TabBar) Tabs(ctx context.Context) ([]*Tab, error) {
	var tabs []*Tab
	err := session.UsingChrome(ctx, tb.Session(), func() error {
		strip, err := tb.strip(ctx)
		if err != nil {
			return err
		}
		els, err := tb.Session().FindElements(ctx, strip, session.ByTagName("tab"))
		if err != nil {
			return fmt.Errorf("failed to list tabs: %w", err)
		}

		tabs = make([]*Tab, 0, len(els))
		for _, el := range els {
			raw, err := tb.Session().Execute(ctx, session.CommandTabHandle, el)
			if err != nil {
				return fmt.Errorf("failed to read tab handle: %w", err)
			}
			handle, ok := raw.(string)
			if !ok || handle == "" {
				return fmt.Errorf("%w: tab %s has handle %v", base.ErrInvalidState, el.ID(), raw)
			}
			tab, err := newTab(tb, el, handle)
			if err != nil {
				return err
			}
			tabs = append(tabs, tab)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tabs, nil
}

func (tb *TabBar) handles(ctx context.Context) ([]string, error) {
	handles, err := tb.Session().WindowHandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list window handles: %w", err)
	}
	return handles, nil
}

// selected locates the focused handle among the current tabs.
func (tb *TabBar) selected(ctx context.Context) (int, []*Tab, error) {
	current, err := tb.Session().CurrentWindowHandle(ctx)
	if err != nil {
		return -1, nil, fmt.Errorf("%w: no focused tab: %w", base.ErrInvalidState, err)
	}
	tabs, err := tb.Tabs(ctx)
	if err != nil {
		return -1, nil, err
	}
	for i, tab := range tabs {
		if tab.handle == current {
			return i, tabs, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: focused handle %s is not a tab of this window", base.ErrInvalidState, current)
}

// SelectedIndex returns the strip position of the focused tab.
func (tb *TabBar) SelectedIndex(ctx context.Context) (int, error) {
	i, _, err := tb.selected(ctx)
	return i, err
}

// SelectedTab returns the focused tab.
func (tb *TabBar) SelectedTab(ctx context.Context) (*Tab, error) {
	i, tabs, err := tb.selected(ctx)
	if err != nil {
		return nil, err
	}
	return tabs[i], nil
}

// OpenTab opens a tab with trigger and waits until it exists and has focus.
func (tb *TabBar) OpenTab(ctx context.Context, trigger Trigger) (tab *Tab, err error) {
	defer MetricStartAuto("tabs")()
	defer func() { recordResult("open", err) }()

	start, err := tb.handles(ctx)
	if err != nil {
		return nil, err
	}

	if err := tb.dispatchOpen(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to open tab by %s: %w", trigger, err)
	}

	var handle string
	err = wait.Until(ctx, tb.Wait, "a new tab to open", func(ctx context.Context) (bool, error) {
		current, err := tb.handles(ctx)
		if err != nil {
			return false, err
		}
		added := newHandles(start, current)
		if len(added) != 1 {
			return false, nil
		}
		handle = added[0]
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	tab, err = tb.tabByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if err := tab.Select(ctx); err != nil {
		return nil, err
	}
	if err := tb.waitFocused(ctx, handle); err != nil {
		return nil, err
	}

	L_debug("tabs: opened tab", "handle", handle, "trigger", trigger)
	return tab, nil
}

func (tb *TabBar) dispatchOpen(ctx context.Context, trigger Trigger) error {
	switch trigger.kind {
	case kindMenu:
		return tb.window.SelectMenuItem(ctx, idFileMenu, idMenuNewTab)
	case kindShortcut:
		key, err := tb.window.Entity(ctx, entityNewTabKey)
		if err != nil {
			return err
		}
		return tb.window.SendShortcut(ctx, key, true)
	case kindCustom:
		selected, err := tb.SelectedTab(ctx)
		if err != nil {
			return err
		}
		return trigger.custom(ctx, selected)
	}

	button, err := tb.NewTabButton(ctx)
	if err != nil {
		return err
	}
	return button.Click(ctx)
}

// CloseTab closes tab, or the selected tab when tab is nil, and waits until
// it is gone. Focus returns to the previously focused tab if it is still
// open, otherwise to the tab the browser selected in its place.
func (tb *TabBar) CloseTab(ctx context.Context, tab *Tab, opts CloseOptions) (err error) {
	defer MetricStartAuto("tabs")()
	defer func() { recordResult("close", err) }()

	if tab == nil {
		if tab, err = tb.SelectedTab(ctx); err != nil {
			return err
		}
	}

	start, err := tb.handles(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(start, tab.handle) {
		return fmt.Errorf("%w: %s is already closed", base.ErrNotFound, tab)
	}
	// A dangling focus is fine here; it means there is nothing to return to.
	prevFocus, _ := tb.Session().CurrentWindowHandle(ctx)

	if opts.Force {
		err = tb.forceClose(ctx, tab.handle, prevFocus)
	} else {
		err = tb.dispatchClose(ctx, tab, opts.Trigger)
	}
	if err != nil {
		if gone, herr := tb.vanished(ctx, tab.handle); herr == nil && gone {
			return fmt.Errorf("%w: %s closed before it could be closed: %w", base.ErrNotFound, tab, err)
		}
		if len(start) == 1 {
			return fmt.Errorf("%w: cannot close the last tab %s: %w", base.ErrInvalidState, tab.handle, err)
		}
		return fmt.Errorf("failed to close tab %s: %w", tab.handle, err)
	}

	err = wait.Until(ctx, tb.Wait, "tab "+tab.handle+" to close", func(ctx context.Context) (bool, error) {
		return tb.vanished(ctx, tab.handle)
	})
	if err != nil {
		return err
	}

	if err := tb.refocus(ctx, tab.handle, prevFocus); err != nil {
		return err
	}

	L_debug("tabs: closed tab", "handle", tab.handle, "trigger", opts.Trigger, "force", opts.Force)
	return nil
}

func (tb *TabBar) forceClose(ctx context.Context, handle, focused string) error {
	if focused != handle {
		if err := tb.Session().SwitchToWindow(ctx, handle); err != nil {
			return err
		}
	}
	return tb.Session().CloseWindow(ctx)
}

func (tb *TabBar) dispatchClose(ctx context.Context, tab *Tab, trigger Trigger) error {
	switch trigger.kind {
	case kindMenu:
		if err := tab.Select(ctx); err != nil {
			return err
		}
		return tb.window.SelectMenuItem(ctx, idFileMenu, idMenuCloseTab)
	case kindShortcut:
		if err := tab.Select(ctx); err != nil {
			return err
		}
		key, err := tb.window.Entity(ctx, entityCloseKey)
		if err != nil {
			return err
		}
		return tb.window.SendShortcut(ctx, key, true)
	case kindCustom:
		return trigger.custom(ctx, tab)
	}

	button, err := tab.CloseButton(ctx)
	if err != nil {
		return err
	}
	return button.Click(ctx)
}

// refocus moves focus off the closed handle.
func (tb *TabBar) refocus(ctx context.Context, closed, prevFocus string) error {
	target := prevFocus
	if target == closed {
		target = ""
	}

	tabs, err := tb.Tabs(ctx)
	if err != nil {
		return err
	}
	if target != "" && !slices.ContainsFunc(tabs, func(t *Tab) bool { return t.handle == target }) {
		target = ""
	}

	if target == "" {
		if target, err = tb.appSelectedHandle(ctx); err != nil {
			return err
		}
	}

	for _, tab := range tabs {
		if tab.handle == target {
			return tab.Select(ctx)
		}
	}
	return fmt.Errorf("%w: selected handle %s is not a tab of this window", base.ErrInvalidState, target)
}

// appSelectedHandle asks the browser which tab it shows.
func (tb *TabBar) appSelectedHandle(ctx context.Context) (string, error) {
	var handle string
	err := session.UsingChrome(ctx, tb.Session(), func() error {
		strip, err := tb.strip(ctx)
		if err != nil {
			return err
		}
		raw, err := tb.Session().Execute(ctx, session.CommandSelectedTabHandle, strip)
		if err != nil {
			return fmt.Errorf("failed to read selected tab: %w", err)
		}
		var ok bool
		if handle, ok = raw.(string); !ok || handle == "" {
			return fmt.Errorf("%w: browser reports no selected tab", base.ErrInvalidState)
		}
		return nil
	})
	return handle, err
}

// CloseAllTabs force-closes every tab whose handle is not among keep.
// Kept tabs that are already gone are ignored, and so are tabs that close
// on their own while the others are being closed.
func (tb *TabBar) CloseAllTabs(ctx context.Context, keep []*Tab) error {
	defer MetricStartAuto("tabs")()

	tabs, err := tb.Tabs(ctx)
	if err != nil {
		return err
	}

	closed, vanished := 0, 0
	for _, tab := range tabs {
		if slices.ContainsFunc(keep, tab.Equal) {
			continue
		}
		current, err := tb.handles(ctx)
		if err != nil {
			return err
		}
		if !slices.Contains(current, tab.handle) {
			vanished++
			continue
		}
		err = tb.CloseTab(ctx, tab, CloseOptions{Force: true})
		if errors.Is(err, base.ErrNotFound) {
			vanished++
			continue
		}
		if err != nil {
			return err
		}
		closed++
	}

	if vanished > 0 {
		if _, err := tb.Session().CurrentWindowHandle(ctx); errors.Is(err, session.ErrNoSuchWindow) {
			if err := tb.refocus(ctx, "", ""); err != nil {
				return err
			}
		}
	}

	L_debug("tabs: closed all tabs", "closed", closed, "vanished", vanished, "kept", len(tabs)-closed-vanished)
	return nil
}

// SwitchTo focuses the tab identified by target.
func (tb *TabBar) SwitchTo(ctx context.Context, target Target) (*Tab, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil switch target", base.ErrInvalidArgument)
	}
	tabs, err := tb.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	tab, err := target.resolve(ctx, tabs)
	if err != nil {
		return nil, err
	}
	if err := tab.SwitchTo(ctx); err != nil {
		return nil, err
	}
	return tab, nil
}

func (tb *TabBar) tabByHandle(ctx context.Context, handle string) (*Tab, error) {
	tabs, err := tb.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	for _, tab := range tabs {
		if tab.handle == handle {
			return tab, nil
		}
	}
	return nil, fmt.Errorf("%w: handle %s has no tab in this window", base.ErrInvalidState, handle)
}

// vanished reports whether handle is no longer open.
func (tb *TabBar) vanished(ctx context.Context, handle string) (bool, error) {
	current, err := tb.handles(ctx)
	if err != nil {
		return false, err
	}
	return !slices.Contains(current, handle), nil
}

func (tb *TabBar) waitFocused(ctx context.Context, handle string) error {
	return wait.Until(ctx, tb.Wait, "tab "+handle+" to take focus", func(ctx context.Context) (bool, error) {
		current, err := tb.Session().CurrentWindowHandle(ctx)
		if errors.Is(err, session.ErrNoSuchWindow) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return current == handle, nil
	})
}

// newHandles returns the handles in current that are not in start.
func newHandles(start, current []string) []string {
	var added []string
	for _, h := range current {
		if !slices.Contains(start, h) {
			added = append(added, h)
		}
	}
	return added
}

// recordResult counts an operation outcome by error kind.
func recordResult(op string, err error) {
	if err == nil {
		MetricSuccess("tabs", op)
		return
	}
	MetricFailWithReason("tabs", op, errorKind(err))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, base.ErrTimeout):
		return "timeout"
	case errors.Is(err, base.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, base.ErrNotFound):
		return "not_found"
	case errors.Is(err, base.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "remote"
}
