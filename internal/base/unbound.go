package base

import (
	"context"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// unbound stands in for the session until the getter supplies one.
type unbound struct{}

var _ session.Session = unbound{}

func (unbound) WindowHandles(context.Context) ([]string, error) { return nil, ErrNoSession }

func (unbound) CurrentWindowHandle(context.Context) (string, error) { return "", ErrNoSession }

func (unbound) SwitchToWindow(context.Context, string) error { return ErrNoSession }

func (unbound) CloseWindow(context.Context) error { return ErrNoSession }

func (unbound) CurrentChromeWindowHandle(context.Context) (string, error) { return "", ErrNoSession }

func (unbound) Context() session.Context { return "" }

func (unbound) SetContext(context.Context, session.Context) error { return ErrNoSession }

func (unbound) Execute(context.Context, string, ...any) (any, error) { return nil, ErrNoSession }

func (unbound) FindElement(context.Context, session.Element, session.Locator) (session.Element, error) {
	return nil, ErrNoSession
}

func (unbound) FindElements(context.Context, session.Element, session.Locator) ([]session.Element, error) {
	return nil, ErrNoSession
}
