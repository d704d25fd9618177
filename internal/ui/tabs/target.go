package tabs

import (
	"context"
	"fmt"

	"github.com/roelfdiedericks/gopuppet/internal/base"
)

// Target identifies the tab to switch to: an Index, a *Tab or a Predicate.
type Target interface {
	resolve(ctx context.Context, tabs []*Tab) (*Tab, error)
}

// Index addresses a tab by its position in the strip.
type Index int

func (i Index) resolve(ctx context.Context, tabs []*Tab) (*Tab, error) {
	if i < 0 || int(i) >= len(tabs) {
		return nil, fmt.Errorf("%w: tab index %d out of range [0, %d)", base.ErrNotFound, int(i), len(tabs))
	}
	return tabs[i], nil
}

func (t *Tab) resolve(ctx context.Context, tabs []*Tab) (*Tab, error) {
	for _, candidate := range tabs {
		if candidate.Equal(t) {
			return candidate, nil
		}
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil tab", base.ErrNotFound)
	}
	return nil, fmt.Errorf("%w: tab %s is no longer open", base.ErrNotFound, t.handle)
}

// Predicate picks the first tab, in strip order, for which it returns true.
// An error stops the search.
type Predicate func(ctx context.Context, tab *Tab) (bool, error)

func (p Predicate) resolve(ctx context.Context, tabs []*Tab) (*Tab, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil predicate", base.ErrInvalidArgument)
	}
	for _, candidate := range tabs {
		ok, err := p(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if ok {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("%w: no tab matches the predicate", base.ErrNotFound)
}
