// Package windows models top-level browser windows.
package windows

import (
	"context"
	"fmt"
	"sync"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	"github.com/roelfdiedericks/gopuppet/internal/l10n"
	"github.com/roelfdiedericks/gopuppet/internal/libcache"
	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	"github.com/roelfdiedericks/gopuppet/internal/session"
	"github.com/roelfdiedericks/gopuppet/internal/ui/tabs"
	"github.com/roelfdiedericks/gopuppet/internal/wait"
)

// IDMainWindow is the root element of a browser window's chrome.
const IDMainWindow = "main-window"

// BrowserWindow is a browser window. Its root element and handle are read
// on first use and kept; its sub-libraries are built once per window.
type BrowserWindow struct {
	*base.Lib
	libs *libcache.Cache
	wait wait.Options

	mu      sync.Mutex
	element session.Element
	handle  string
}

var _ tabs.Window = (*BrowserWindow)(nil)

func init() {
	libcache.Register("windows.BrowserWindow", func(getter base.SessionGetter, owner any) (any, error) {
		var opts wait.Options
		if wc, ok := owner.(interface{ WaitOptions() wait.Options }); ok {
			opts = wc.WaitOptions()
		}
		return New(getter, opts)
	})
}

// New returns a window over the session's chrome window. opts bound the
// polls of the window's tab bar.
func New(getter base.SessionGetter, opts wait.Options) (*BrowserWindow, error) {
	lib, err := base.NewLib(getter)
	if err != nil {
		return nil, err
	}
	w := &BrowserWindow{Lib: lib, wait: opts}
	w.libs = libcache.New(getter, w)
	return w, nil
}

// WaitOptions are the poll bounds handed to the window's libraries.
func (w *BrowserWindow) WaitOptions() wait.Options {
	return w.wait
}

// Element returns the window's root chrome element.
func (w *BrowserWindow) Element(ctx context.Context) (session.Element, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.element != nil {
		return w.element, nil
	}

	var el session.Element
	err := session.UsingChrome(ctx, w.Session(), func() error {
		var err error
		el, err = w.Session().FindElement(ctx, nil, session.ByID(IDMainWindow))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to locate main window: %w", err)
	}
	w.element = el
	return el, nil
}

// Handle returns the chrome window handle.
func (w *BrowserWindow) Handle(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.handle != "" {
		return w.handle, nil
	}
	h, err := w.Session().CurrentChromeWindowHandle(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read chrome window handle: %w", err)
	}
	w.handle = h
	return h, nil
}

// TabBar returns the window's tab bar.
func (w *BrowserWindow) TabBar() (*tabs.TabBar, error) {
	return libcache.Lookup[*tabs.TabBar](w.libs, "tabs.TabBar")
}

// L10n returns the localization library of the window's chrome.
func (w *BrowserWindow) L10n() (*l10n.L10n, error) {
	return libcache.Lookup[*l10n.L10n](w.libs, "l10n.L10n")
}

// Entity resolves a localized chrome string.
func (w *BrowserWindow) Entity(ctx context.Context, id string) (string, error) {
	lib, err := w.L10n()
	if err != nil {
		return "", err
	}
	return lib.Entity(ctx, id)
}

// SendShortcut types key into the window, with the accelerator modifier
// when accel is set.
func (w *BrowserWindow) SendShortcut(ctx context.Context, key string, accel bool) error {
	if key == "" {
		return fmt.Errorf("%w: empty shortcut key", base.ErrInvalidArgument)
	}
	root, err := w.Element(ctx)
	if err != nil {
		return err
	}

	keys := []string{key}
	if accel {
		keys = []string{session.KeyAccel, key}
	}
	L_trace("windows: sending shortcut", "key", key, "accel", accel)
	return session.UsingChrome(ctx, w.Session(), func() error {
		return root.SendKeys(ctx, keys...)
	})
}

// SelectMenuItem opens the menu menuID and activates its item itemID.
func (w *BrowserWindow) SelectMenuItem(ctx context.Context, menuID, itemID string) error {
	root, err := w.Element(ctx)
	if err != nil {
		return err
	}

	L_trace("windows: selecting menu item", "menu", menuID, "item", itemID)
	return session.UsingChrome(ctx, w.Session(), func() error {
		menu, err := w.Session().FindElement(ctx, root, session.ByID(menuID))
		if err != nil {
			return fmt.Errorf("failed to locate menu %s: %w", menuID, err)
		}
		item, err := w.Session().FindElement(ctx, menu, session.ByID(itemID))
		if err != nil {
			return fmt.Errorf("failed to locate menu item %s: %w", itemID, err)
		}
		return item.Click(ctx)
	})
}
