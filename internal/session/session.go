// Package session defines the remote-control contract the UI object model
// is built on. Implementations live in subpackages: memsession simulates a
// browser in memory, rodsession drives Chromium over the DevTools protocol.
package session

import (
	"context"
	"errors"
)

// Context names an execution scope of the remote session.
type Context string

const (
	// ContextChrome is the privileged scope of the browser's own UI.
	ContextChrome Context = "chrome"
	// ContextContent is the scope of the web page loaded in the focused tab.
	ContextContent Context = "content"
)

// Remote errors reported by Session implementations.
var (
	ErrNoSuchWindow       = errors.New("no such window")
	ErrNoSuchElement      = errors.New("no such element")
	ErrWrongContext       = errors.New("element not reachable from current context")
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrLastTab            = errors.New("window must keep at least one tab")
)

// KeyAccel is the platform accelerator modifier for SendKeys, encoded as the
// WebDriver Control key code point.
const KeyAccel = "\uE009"

// Session is one live connection to a remote automation endpoint.
// Calls are blocking round trips; a Session is driven by one caller at a time.
type Session interface {
	// WindowHandles lists the handles of all open tabs.
	WindowHandles(ctx context.Context) ([]string, error)
	// CurrentWindowHandle returns the focused tab handle, or ErrNoSuchWindow
	// if the focused tab was closed.
	CurrentWindowHandle(ctx context.Context) (string, error)
	SwitchToWindow(ctx context.Context, handle string) error
	// CloseWindow closes the focused tab.
	CloseWindow(ctx context.Context) error
	CurrentChromeWindowHandle(ctx context.Context) (string, error)

	Context() Context
	SetContext(ctx context.Context, c Context) error

	// Execute runs a command in the current context. Chrome-scope commands
	// are the Command* constants; content commands are page scripts.
	Execute(ctx context.Context, command string, args ...any) (any, error)

	// FindElement locates one element below scope (nil = document root).
	FindElement(ctx context.Context, scope Element, by Locator) (Element, error)
	FindElements(ctx context.Context, scope Element, by Locator) ([]Element, error)
}

// Element is a reference to one remote DOM node.
type Element interface {
	ID() string
	// Context is the scope the element was located in.
	Context() Context
	// Attribute returns ok=false if the element has no such attribute.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, keys ...string) error
}
