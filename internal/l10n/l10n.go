// Package l10n looks up localized strings of the browser chrome.
package l10n

import (
	"context"
	"fmt"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	"github.com/roelfdiedericks/gopuppet/internal/libcache"
	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// L10n resolves DTD entities in the chrome context.
type L10n struct {
	*base.Lib
}

func init() {
	libcache.Register("l10n.L10n", func(getter base.SessionGetter, owner any) (any, error) {
		return New(getter)
	})
}

// New returns the localization library of the session getter resolves to.
func New(getter base.SessionGetter) (*L10n, error) {
	lib, err := base.NewLib(getter)
	if err != nil {
		return nil, err
	}
	return &L10n{Lib: lib}, nil
}

// Entity returns the localized value of the entity id, e.g. "closeCmd.key".
func (l *L10n) Entity(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty entity id", base.ErrNotFound)
	}

	var raw any
	err := session.UsingChrome(ctx, l.Session(), func() error {
		var err error
		raw, err = l.Session().Execute(ctx, session.CommandGetEntity, id)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up entity %s: %w", id, err)
	}

	value, ok := raw.(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: entity %s", base.ErrNotFound, id)
	}
	return value, nil
}
