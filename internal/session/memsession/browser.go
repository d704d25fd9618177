// Package memsession simulates a remote browser in memory. It implements
// session.Session with the same chrome structure the UI libraries expect
// (main window, tab strip, new-tab button, per-tab close buttons, a file
// menu and accelerator shortcuts) so the tab state machine can be driven
// deterministically, including asynchronous opens and closes and changes
// made behind the driver's back.
package memsession

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// Options tune how the simulated browser reacts.
type Options struct {
	// ForegroundNewTabs makes a newly opened tab the selected tab.
	ForegroundNewTabs bool
	// SessionFollowsSelection moves session focus whenever the application
	// selects a tab. Marionette does not do this; the driver must switch.
	SessionFollowsSelection bool
	// AutoSelectOnSwitch selects a tab in the application when the session
	// switches to it.
	AutoSelectOnSwitch bool
	// KeepLastTab refuses to close the last tab with session.ErrLastTab.
	KeepLastTab bool
	// OpenDelay and CloseDelay are the number of WindowHandles calls after
	// which a UI-triggered open or close becomes visible.
	OpenDelay  int
	CloseDelay int
	// StallOpens drops UI-triggered opens entirely.
	StallOpens bool
}

// DefaultOptions mirror a stock desktop browser under Marionette.
func DefaultOptions() Options {
	return Options{
		ForegroundNewTabs:  true,
		AutoSelectOnSwitch: true,
		KeepLastTab:        true,
	}
}

// Entities localized by default.
var defaultEntities = map[string]string{
	"tabCmd.commandkey": "t",
	"closeCmd.key":      "w",
}

type pendingChange struct {
	remaining int
	apply     func()
}

// Browser is the simulated remote application.
type Browser struct {
	mu   sync.Mutex
	opts Options

	chromeHandle string
	tabs         []string // handles in tab strip order
	titles       map[string]string
	selected     string // application selection
	focus        string // session focus, may name a closed tab

	prefs    map[string]any
	defaults map[string]any
	entities map[string]string

	pending    []*pendingChange
	elementIDs map[elementKey]string
}

// New returns a browser with one open, selected and focused tab.
func New(opts Options) *Browser {
	b := &Browser{
		opts:         opts,
		chromeHandle: uuid.NewString(),
		titles:       make(map[string]string),
		prefs:        make(map[string]any),
		defaults:     make(map[string]any),
		entities:     make(map[string]string),
		elementIDs:   make(map[elementKey]string),
	}
	for k, v := range defaultEntities {
		b.entities[k] = v
	}

	first := b.addTabLocked()
	b.selected = first
	b.focus = first
	return b
}

// NewSession returns a session connected to b, starting in content context.
func (b *Browser) NewSession() *Session {
	return &Session{b: b, context: session.ContextContent}
}

// SetOptions replaces the browser's options.
func (b *Browser) SetOptions(opts Options) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts = opts
}

// Handles returns the open tab handles in strip order without advancing
// pending changes.
func (b *Browser) Handles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.tabs)
}

// Selected returns the application-selected handle.
func (b *Browser) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Focus returns the session-focused handle, which may be closed.
func (b *Browser) Focus() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focus
}

// PendingChanges reports UI-triggered changes not yet visible.
func (b *Browser) PendingChanges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// SetTitle sets the title of a tab.
func (b *Browser) SetTitle(handle, title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.titles[handle] = title
}

// SetEntity overrides a localized entity.
func (b *Browser) SetEntity(id, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities[id] = value
}

// SetDefaultPref sets the default value a pref resets to.
func (b *Browser) SetDefaultPref(name string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaults[name] = value
	if _, ok := b.prefs[name]; !ok {
		b.prefs[name] = value
	}
}

// OpenExternal opens a tab immediately, as a user or page would.
// Session focus is unchanged unless SessionFollowsSelection is set.
func (b *Browser) OpenExternal() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked()
}

// CloseExternal closes a tab immediately, bypassing the last-tab policy.
func (b *Browser) CloseExternal(handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.tabs, handle) {
		return fmt.Errorf("%w: %s", session.ErrNoSuchWindow, handle)
	}
	b.closeLocked(handle)
	return nil
}

// Move reorders a tab to index pos in the strip.
func (b *Browser) Move(handle string, pos int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := slices.Index(b.tabs, handle)
	if idx < 0 {
		return fmt.Errorf("%w: %s", session.ErrNoSuchWindow, handle)
	}
	if pos < 0 || pos >= len(b.tabs) {
		return fmt.Errorf("position %d out of range", pos)
	}
	b.tabs = slices.Delete(b.tabs, idx, idx+1)
	b.tabs = slices.Insert(b.tabs, pos, handle)
	return nil
}

func (b *Browser) addTabLocked() string {
	h := uuid.NewString()
	b.tabs = append(b.tabs, h)
	b.titles[h] = "New Tab"
	return h
}

func (b *Browser) openLocked() string {
	h := b.addTabLocked()
	if b.opts.ForegroundNewTabs {
		b.selectLocked(h)
	}
	L_trace("memsession: tab opened", "handle", h, "count", len(b.tabs))
	return h
}

func (b *Browser) selectLocked(h string) {
	b.selected = h
	if b.opts.SessionFollowsSelection {
		b.focus = h
	}
}

// closeLocked removes h. If it was selected, the tab that takes its place
// in the strip (or the new last tab) becomes selected.
func (b *Browser) closeLocked(h string) {
	idx := slices.Index(b.tabs, h)
	if idx < 0 {
		return
	}
	b.tabs = slices.Delete(b.tabs, idx, idx+1)
	delete(b.titles, h)

	if b.selected == h {
		b.selected = ""
		if len(b.tabs) > 0 {
			b.selectLocked(b.tabs[min(idx, len(b.tabs)-1)])
		}
	}
	L_trace("memsession: tab closed", "handle", h, "count", len(b.tabs))
}

// requestOpen handles a UI-triggered open.
func (b *Browser) requestOpen() {
	if b.opts.StallOpens {
		L_trace("memsession: open dropped")
		return
	}
	b.schedule(b.opts.OpenDelay, func() { b.openLocked() })
}

// requestClose handles a UI-triggered close of h.
func (b *Browser) requestClose(h string) error {
	if !slices.Contains(b.tabs, h) {
		return fmt.Errorf("%w: %s", session.ErrNoSuchWindow, h)
	}
	if b.opts.KeepLastTab && len(b.tabs) == 1 {
		return session.ErrLastTab
	}
	b.schedule(b.opts.CloseDelay, func() { b.closeLocked(h) })
	return nil
}

func (b *Browser) schedule(delay int, apply func()) {
	if delay <= 0 {
		apply()
		return
	}
	b.pending = append(b.pending, &pendingChange{remaining: delay, apply: apply})
}

// tickLocked advances pending changes by one observation.
func (b *Browser) tickLocked() {
	if len(b.pending) == 0 {
		return
	}
	remaining := b.pending[:0]
	for _, p := range b.pending {
		p.remaining--
		if p.remaining <= 0 {
			p.apply()
			continue
		}
		remaining = append(remaining, p)
	}
	b.pending = remaining
}

func (b *Browser) elementID(key elementKey) string {
	id, ok := b.elementIDs[key]
	if !ok {
		id = uuid.NewString()
		b.elementIDs[key] = id
	}
	return id
}
