package rodsession

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// contentElement is a DOM node of the focused page.
type contentElement struct {
	s    *Session
	page *rod.Page
	el   *rod.Element
}

var _ session.Element = (*contentElement)(nil)

func (e *contentElement) ID() string               { return string(e.el.Object.ObjectID) }
func (e *contentElement) Context() session.Context { return session.ContextContent }

// cssSelector translates a locator into a CSS selector.
func cssSelector(by session.Locator) (string, error) {
	switch by.Strategy {
	case session.StrategyCSS:
		return by.Value, nil
	case session.StrategyID:
		return "[id=" + strconv.Quote(by.Value) + "]", nil
	case session.StrategyTagName:
		return by.Value, nil
	case session.StrategyAnonAttribute:
		return "[" + by.Attr + "=" + strconv.Quote(by.Value) + "]", nil
	}
	return "", fmt.Errorf("%w: locator strategy %q", session.ErrUnsupportedCommand, by.Strategy)
}

func (s *Session) findContentLocked(ctx context.Context, scope session.Element, by session.Locator) ([]session.Element, error) {
	selector, err := cssSelector(by)
	if err != nil {
		return nil, err
	}

	var (
		page  *rod.Page
		found rod.Elements
	)
	if scope != nil {
		parent, ok := scope.(*contentElement)
		if !ok || parent.s != s {
			return nil, fmt.Errorf("%w: scope is not an element of this session", session.ErrNoSuchElement)
		}
		page = parent.page
		found, err = parent.el.Context(ctx).Elements(selector)
	} else {
		if page, err = s.pageLocked(s.focus); err != nil {
			return nil, err
		}
		found, err = page.Context(ctx).Elements(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", by, err)
	}

	out := make([]session.Element, 0, len(found))
	for _, el := range found {
		out = append(out, &contentElement{s: s, page: page, el: el})
	}
	return out, nil
}

func (e *contentElement) check() error {
	if e.s.Context() != session.ContextContent {
		return fmt.Errorf("%w: content element %s used from %s context", session.ErrWrongContext, e.ID(), e.s.Context())
	}
	return nil
}

func (e *contentElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(); err != nil {
		return "", false, err
	}
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("failed to read attribute %s: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *contentElement) Click(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// SendKeys types text into the element. A leading session.KeyAccel holds
// Control while the remaining keys are pressed.
func (e *contentElement) SendKeys(ctx context.Context, keys ...string) error {
	if err := e.check(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if keys[0] != session.KeyAccel {
		return e.el.Context(ctx).Input(strings.Join(keys, ""))
	}

	if err := e.el.Context(ctx).Focus(); err != nil {
		return fmt.Errorf("failed to focus element: %w", err)
	}
	return e.page.Context(ctx).KeyActions().
		Press(input.ControlLeft).
		Type(keyCodes(strings.Join(keys[1:], ""))...).
		Do()
}

// keyCodes maps printable characters to keyboard keys.
func keyCodes(text string) []input.Key {
	out := make([]input.Key, 0, len(text))
	for _, r := range text {
		out = append(out, input.Key(r))
	}
	return out
}
