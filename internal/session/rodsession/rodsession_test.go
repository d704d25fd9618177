package rodsession

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/input"
	"github.com/google/go-cmp/cmp"

	"github.com/roelfdiedericks/gopuppet/internal/session"
)

// offline returns a session with tracked tabs but no browser behind it,
// enough for everything that does not issue DevTools calls.
func offline(handles ...string) *Session {
	return &Session{
		order:      handles,
		context:    session.ContextChrome,
		prefs:      make(map[string]any),
		entities:   map[string]string{"tabCmd.commandkey": "t", "closeCmd.key": "w"},
		elementIDs: make(map[chromeKey]string),
		selected:   handles[0],
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name           string
		known, current []string
		want           []string
	}{
		{"first sync", nil, []string{"a", "b"}, []string{"a", "b"}},
		{"keeps known order", []string{"b", "a"}, []string{"a", "b"}, []string{"b", "a"}},
		{"appends new", []string{"a"}, []string{"c", "a"}, []string{"a", "c"}},
		{"drops closed", []string{"a", "b", "c"}, []string{"c", "a"}, []string{"a", "c"}},
		{"all gone", []string{"a"}, nil, []string{}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, reconcile(tt.known, tt.current)); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestCSSSelector(t *testing.T) {
	tests := []struct {
		by   session.Locator
		want string
	}{
		{session.ByCSS("div > a"), "div > a"},
		{session.ByID("main"), `[id="main"]`},
		{session.ByTagName("body"), "body"},
		{session.ByAnonAttribute("data-role", "close"), `[data-role="close"]`},
	}
	for _, tt := range tests {
		got, err := cssSelector(tt.by)
		if err != nil || got != tt.want {
			t.Errorf("cssSelector(%s) = %q, %v; want %q", tt.by, got, err, tt.want)
		}
	}
	if _, err := cssSelector(session.Locator{Strategy: "xpath"}); !errors.Is(err, session.ErrUnsupportedCommand) {
		t.Errorf("xpath err = %v", err)
	}
}

func TestScriptFunction(t *testing.T) {
	if got := scriptFunction("return document.title"); got != "() => {\nreturn document.title\n}" {
		t.Errorf("scriptFunction = %q", got)
	}
}

func TestResolveDevice(t *testing.T) {
	if got := ResolveDevice("iPhone-X"); got.Title != devices.IPhoneX.Title {
		t.Errorf("iphone-x = %s", got.Title)
	}
	for _, name := range []string{"", "clear", "toaster"} {
		if got := ResolveDevice(name); got.Title != devices.Clear.Title {
			t.Errorf("ResolveDevice(%q) = %s, want clear", name, got.Title)
		}
	}
}

func TestKeyCodes(t *testing.T) {
	got := keyCodes("tw")
	if len(got) != 2 || got[0] != input.Key('t') || got[1] != input.Key('w') {
		t.Errorf("keyCodes = %v", got)
	}
}

func TestEmulatedChromeStructure(t *testing.T) {
	s := offline("p1", "p2")
	ctx := context.Background()

	win, err := s.FindElement(ctx, nil, session.ByID(idMainWindow))
	if err != nil {
		t.Fatal(err)
	}
	strip, err := s.FindElement(ctx, win, session.ByID(idTabStrip))
	if err != nil {
		t.Fatal(err)
	}
	tabs, err := s.FindElements(ctx, strip, session.ByTagName("tab"))
	if err != nil || len(tabs) != 2 {
		t.Fatalf("tabs = %d, %v", len(tabs), err)
	}
	if _, err := s.FindElement(ctx, tabs[1], session.ByAnonAttribute("anonid", anonCloseButton)); err != nil {
		t.Errorf("close button: %v", err)
	}
	if _, err := s.FindElement(ctx, strip, session.ByAnonAttribute("anonid", anonNewTab)); err != nil {
		t.Errorf("new tab button: %v", err)
	}
	if _, err := s.FindElement(ctx, strip, session.ByID(idFileMenu)); !errors.Is(err, session.ErrNoSuchElement) {
		t.Errorf("menu under strip err = %v", err)
	}

	h, err := s.Execute(ctx, session.CommandTabHandle, tabs[1])
	if err != nil || h != "p2" {
		t.Errorf("tab handle = %v, %v", h, err)
	}
	sel, err := s.Execute(ctx, session.CommandSelectedTabHandle, strip)
	if err != nil || sel != "p1" {
		t.Errorf("selected = %v, %v", sel, err)
	}

	name, ok, err := tabs[0].Attribute(ctx, "localName")
	if err != nil || !ok || name != "tab" {
		t.Errorf("localName = %q %v %v", name, ok, err)
	}
	if v, ok, _ := tabs[0].Attribute(ctx, "selected"); !ok || v != "true" {
		t.Error("selected tab lacks selected attribute")
	}

	again, _ := s.FindElements(ctx, strip, session.ByTagName("tab"))
	if again[0].ID() != tabs[0].ID() {
		t.Error("element ids not stable")
	}

	s.context = session.ContextContent
	if _, _, err := tabs[0].Attribute(ctx, "localName"); !errors.Is(err, session.ErrWrongContext) {
		t.Errorf("content-context attribute err = %v", err)
	}
}

func TestStaleChromeElement(t *testing.T) {
	s := offline("p1", "p2")
	ctx := context.Background()

	tabs, _ := s.FindElements(ctx, nil, session.ByTagName("tab"))
	s.order = []string{"p1"}
	if _, err := s.Execute(ctx, session.CommandTabHandle, tabs[1]); !errors.Is(err, session.ErrNoSuchElement) {
		t.Errorf("stale tab err = %v", err)
	}
}

func TestEmulatedPrefsAndEntities(t *testing.T) {
	s := offline("p1")
	ctx := context.Background()

	if _, err := s.Execute(ctx, session.CommandSetPref, "a.b", 2); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Execute(ctx, session.CommandGetPref, "a.b"); v != 2 {
		t.Errorf("pref = %v", v)
	}
	if _, err := s.Execute(ctx, session.CommandResetPref, "a.b"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Execute(ctx, session.CommandGetPref, "a.b"); v != nil {
		t.Errorf("reset pref = %v", v)
	}
	if v, _ := s.Execute(ctx, session.CommandGetEntity, "closeCmd.key"); v != "w" {
		t.Errorf("entity = %v", v)
	}
	if _, err := s.Execute(ctx, "bogus"); !errors.Is(err, session.ErrUnsupportedCommand) {
		t.Errorf("bogus err = %v", err)
	}
}

func TestCloseLastTabRefusedWithoutBrowserCall(t *testing.T) {
	s := offline("p1")
	s.pages = map[string]*rod.Page{"p1": nil}
	s.focus = "p1"
	if err := s.CloseWindow(context.Background()); !errors.Is(err, session.ErrLastTab) {
		t.Errorf("err = %v, want ErrLastTab", err)
	}
}
