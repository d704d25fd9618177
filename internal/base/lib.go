// Package base holds the building blocks shared by every UI library: lazy
// binding to a remote session and wrappers bound to one chrome element.
package base

import (
	"fmt"
	"sync"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// SessionGetter supplies the session a library talks to.
type SessionGetter func() session.Session

// Lib binds a library to its session lazily. The getter is first called on
// the first Session() call. Once it returns a session, that session is kept
// and the getter is not called again, even if the session has since gone
// away; callers that need a fresh session build a fresh Lib. A nil result
// is not kept, so a client supplied later is still picked up.
type Lib struct {
	getter SessionGetter
	mu     sync.Mutex
	sess   session.Session
}

// NewLib returns a Lib for getter. A nil getter is rejected.
func NewLib(getter SessionGetter) (*Lib, error) {
	if getter == nil {
		return nil, fmt.Errorf("%w: session getter must be a function, got nil", ErrInvalidArgument)
	}
	return &Lib{getter: getter}, nil
}

// Session returns the bound session, resolving it on first use. While the
// getter has nothing to offer, every operation on the returned session
// fails with ErrInvalidState.
func (l *Lib) Session() session.Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sess == nil {
		if s := l.getter(); !isNil(s) {
			l.sess = s
		}
	}
	if l.sess == nil {
		return unbound{}
	}
	return l.sess
}

// Getter returns the getter the Lib was built with, for constructing
// dependent libraries over the same session.
func (l *Lib) Getter() SessionGetter {
	return l.getter
}
