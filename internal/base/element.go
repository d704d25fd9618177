package base

import (
	"context"
	"fmt"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// Window is the owning top-level window of a UI element.
type Window interface {
	// Element resolves the window's root chrome element.
	Element(ctx context.Context) (session.Element, error)
	// Handle resolves the chrome window handle.
	Handle(ctx context.Context) (string, error)
}

// UIElement is a Lib bound to one chrome element inside one window.
// Both references are fixed at construction.
type UIElement struct {
	*Lib
	window  Window
	element session.Element
}

// NewUIElement wraps element, owned by window. The element must have been
// located in the chrome context; content elements are rejected.
func NewUIElement(getter SessionGetter, window Window, element session.Element) (*UIElement, error) {
	lib, err := NewLib(getter)
	if err != nil {
		return nil, err
	}
	if isNil(window) {
		return nil, fmt.Errorf("%w: window is required", ErrTypeConstraint)
	}
	if isNil(element) {
		return nil, fmt.Errorf("%w: element is required", ErrTypeConstraint)
	}
	if c := element.Context(); c != session.ContextChrome {
		return nil, fmt.Errorf("%w: element %s belongs to %s context, want %s",
			ErrTypeConstraint, element.ID(), c, session.ContextChrome)
	}

	return &UIElement{Lib: lib, window: window, element: element}, nil
}

// Element returns the underlying remote element.
func (e *UIElement) Element() session.Element {
	return e.element
}

// Window returns the owning window.
func (e *UIElement) Window() Window {
	return e.window
}

// Attribute reads an attribute of the element in the chrome context.
// A missing attribute is an ErrNoSuchAttribute error, not an empty string.
func (e *UIElement) Attribute(ctx context.Context, name string) (string, error) {
	var (
		value string
		ok    bool
	)
	err := session.UsingChrome(ctx, e.Session(), func() error {
		var err error
		value, ok, err = e.element.Attribute(ctx, name)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to read attribute %q: %w", name, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: element %s has no attribute %q", ErrNoSuchAttribute, e.element.ID(), name)
	}
	return value, nil
}

// Click clicks the element in the chrome context.
func (e *UIElement) Click(ctx context.Context) error {
	return session.UsingChrome(ctx, e.Session(), func() error {
		return e.element.Click(ctx)
	})
}

// SendKeys types keys into the element in the chrome context.
func (e *UIElement) SendKeys(ctx context.Context, keys ...string) error {
	return session.UsingChrome(ctx, e.Session(), func() error {
		return e.element.SendKeys(ctx, keys...)
	})
}
