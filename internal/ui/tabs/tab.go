package tabs

import (
	"context"
	"fmt"
	"sync"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// Tab is a view over one open tab. It is only valid until the tab set
// changes; get fresh tabs from TabBar.Tabs after opening or closing.
type Tab struct {
	*base.UIElement
	bar    *TabBar
	handle string

	mu          sync.Mutex
	closeButton *base.UIElement
}

func newTab(bar *TabBar, el session.Element, handle string) (*Tab, error) {
	ui, err := base.NewUIElement(bar.Getter(), bar.window, el)
	if err != nil {
		return nil, err
	}
	return &Tab{UIElement: ui, bar: bar, handle: handle}, nil
}

// Handle is the tab's identity, stable while it is open.
func (t *Tab) Handle() string {
	return t.handle
}

// TabBar returns the strip the tab belongs to.
func (t *Tab) TabBar() *TabBar {
	return t.bar
}

// Equal reports whether t and other are the same remote tab.
func (t *Tab) Equal(other *Tab) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.handle == other.handle
}

func (t *Tab) String() string {
	return "tab " + t.handle
}

// Selected reports whether the tab is the focused tab of its strip.
func (t *Tab) Selected(ctx context.Context) (bool, error) {
	selected, err := t.bar.SelectedTab(ctx)
	if err != nil {
		return false, err
	}
	return selected.Equal(t), nil
}

// CloseButton returns the tab's close button, located on first use.
func (t *Tab) CloseButton(ctx context.Context) (*base.UIElement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closeButton != nil {
		return t.closeButton, nil
	}

	var el session.Element
	err := session.UsingChrome(ctx, t.Session(), func() error {
		var err error
		el, err = t.Session().FindElement(ctx, t.Element(), session.ByAnonAttribute("anonid", anonCloseButton))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to locate close button of %s: %w", t, err)
	}

	button, err := base.NewUIElement(t.Getter(), t.Window(), el)
	if err != nil {
		return nil, err
	}
	t.closeButton = button
	return button, nil
}

// Close closes the tab; see TabBar.CloseTab.
func (t *Tab) Close(ctx context.Context, opts CloseOptions) error {
	return t.bar.CloseTab(ctx, t, opts)
}

// Select makes the tab the browser's selected tab and moves session focus
// to it.
func (t *Tab) Select(ctx context.Context) error {
	err := session.UsingChrome(ctx, t.Session(), func() error {
		strip, err := t.bar.strip(ctx)
		if err != nil {
			return err
		}
		_, err = t.Session().Execute(ctx, session.CommandSelectTab, strip, t.Element())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to select %s: %w", t, err)
	}
	return t.SwitchTo(ctx)
}

// SwitchTo moves session focus to the tab. Whether the browser also selects
// it depends on the driver; callers that need the tab selected use Select.
func (t *Tab) SwitchTo(ctx context.Context) error {
	if err := t.Session().SwitchToWindow(ctx, t.handle); err != nil {
		return fmt.Errorf("failed to switch to %s: %w", t, err)
	}
	return nil
}
