// Package puppeteer is the entry point of the UI object model. A Puppeteer
// holds one session and hands out the libraries built on it.
package puppeteer

import (
	"sync"

	"github.com/roelfdiedericks/gopuppet/internal/l10n"
	"github.com/roelfdiedericks/gopuppet/internal/libcache"
	"github.com/roelfdiedericks/gopuppet/internal/prefs"
	"github.com/roelfdiedericks/gopuppet/internal/session"
	"github.com/roelfdiedericks/gopuppet/internal/ui/tabs"
	"github.com/roelfdiedericks/gopuppet/internal/ui/windows"
	"github.com/roelfdiedericks/gopuppet/internal/wait"
)

// Puppeteer gives access to the UI libraries of one session. Libraries are
// built on first access and kept for the Puppeteer's lifetime.
type Puppeteer struct {
	mu     sync.RWMutex
	client session.Session
	wait   wait.Options
	libs   *libcache.Cache
}

// Option configures a Puppeteer.
type Option func(*Puppeteer)

// WithWait sets the poll bounds used by the tab bar.
func WithWait(opts wait.Options) Option {
	return func(p *Puppeteer) { p.wait = opts }
}

// New returns a Puppeteer without a client; call SetClient before using
// any library.
func New(opts ...Option) *Puppeteer {
	p := &Puppeteer{}
	for _, opt := range opts {
		opt(p)
	}
	p.libs = libcache.New(p.Client, p)
	return p
}

// SetClient sets the session libraries bind to. Libraries bind on first
// use, so a client set after a library was used does not affect it.
func (p *Puppeteer) SetClient(s session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = s
}

// Client returns the current session.
func (p *Puppeteer) Client() session.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// WaitOptions are the poll bounds handed to the libraries.
func (p *Puppeteer) WaitOptions() wait.Options {
	return p.wait
}

// Browser returns the browser window.
func (p *Puppeteer) Browser() (*windows.BrowserWindow, error) {
	return libcache.Lookup[*windows.BrowserWindow](p.libs, "windows.BrowserWindow")
}

// Tabstrip returns the tab bar of the browser window.
func (p *Puppeteer) Tabstrip() (*tabs.TabBar, error) {
	w, err := p.Browser()
	if err != nil {
		return nil, err
	}
	return w.TabBar()
}

// Prefs returns the preferences library.
func (p *Puppeteer) Prefs() (*prefs.Preferences, error) {
	return libcache.Lookup[*prefs.Preferences](p.libs, "prefs.Preferences")
}

// L10n returns the localization library.
func (p *Puppeteer) L10n() (*l10n.L10n, error) {
	return libcache.Lookup[*l10n.L10n](p.libs, "l10n.L10n")
}
