// Package prefs reads and changes browser preferences, and puts back the
// values it changed.
package prefs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	"github.com/roelfdiedericks/gopuppet/internal/libcache"
	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// Preferences is the pref service of one session.
type Preferences struct {
	*base.Lib

	mu        sync.Mutex
	originals map[string]any // value before the first Set; nil means unset
}

func init() {
	libcache.Register("prefs.Preferences", func(getter base.SessionGetter, owner any) (any, error) {
		return New(getter)
	})
}

// New returns the preferences of the session getter resolves to.
func New(getter base.SessionGetter) (*Preferences, error) {
	lib, err := base.NewLib(getter)
	if err != nil {
		return nil, err
	}
	return &Preferences{Lib: lib, originals: make(map[string]any)}, nil
}

func (p *Preferences) execute(ctx context.Context, command string, args ...any) (any, error) {
	var result any
	err := session.UsingChrome(ctx, p.Session(), func() error {
		var err error
		result, err = p.Session().Execute(ctx, command, args...)
		return err
	})
	return result, err
}

// Get returns the current value of name, or nil if the pref does not exist.
func (p *Preferences) Get(ctx context.Context, name string) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty pref name", base.ErrInvalidArgument)
	}
	v, err := p.execute(ctx, session.CommandGetPref, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read pref %s: %w", name, err)
	}
	return v, nil
}

// Set changes name to value. The value it had before the first Set through
// p is remembered for RestoreAll.
func (p *Preferences) Set(ctx context.Context, name string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.originals[name]; !seen {
		orig, err := p.Get(ctx, name)
		if err != nil {
			return err
		}
		p.originals[name] = orig
	}

	if _, err := p.execute(ctx, session.CommandSetPref, name, value); err != nil {
		return fmt.Errorf("failed to set pref %s: %w", name, err)
	}
	L_debug("prefs: set", "name", name, "value", value)
	return nil
}

// Changed lists the prefs set through p since the last RestoreAll, sorted.
func (p *Preferences) Changed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.originals))
	for name := range p.originals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RestoreAll puts every pref changed through p back to its original value.
// Prefs that did not exist before are reset.
func (p *Preferences) RestoreAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.originals))
	for name := range p.originals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		orig := p.originals[name]
		var err error
		if orig == nil {
			_, err = p.execute(ctx, session.CommandResetPref, name)
		} else {
			_, err = p.execute(ctx, session.CommandSetPref, name, orig)
		}
		if err != nil {
			return fmt.Errorf("failed to restore pref %s: %w", name, err)
		}
		delete(p.originals, name)
	}

	if len(names) > 0 {
		L_debug("prefs: restored", "count", len(names))
	}
	return nil
}
