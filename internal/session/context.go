package session

import (
	"context"
	"fmt"

	. "github.com/roelfdiedericks/gopuppet/internal/logging"
)

// Using runs fn with s switched to context c and restores the previous
// context afterwards, on error and on panic as well.
//
// If s is already in c, fn runs directly: an enclosing Using owns the
// restore, so nested scopes never enter twice or restore out of order.
func Using(ctx context.Context, s Session, c Context, fn func() error) (err error) {
	prev := s.Context()
	if prev == c {
		return fn()
	}

	if err := s.SetContext(ctx, c); err != nil {
		return fmt.Errorf("failed to enter %s context: %w", c, err)
	}
	defer func() {
		// Restore with a fresh context so a cancelled ctx cannot strand
		// the session in the privileged scope.
		if rerr := s.SetContext(context.WithoutCancel(ctx), prev); rerr != nil {
			L_warn("session: failed to restore context", "from", c, "to", prev, "error", rerr)
			if err == nil {
				err = fmt.Errorf("failed to restore %s context: %w", prev, rerr)
			}
		}
	}()

	return fn()
}

// UsingChrome is Using with ContextChrome.
func UsingChrome(ctx context.Context, s Session, fn func() error) error {
	return Using(ctx, s, ContextChrome, fn)
}
