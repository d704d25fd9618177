package tabs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	"github.com/roelfdiedericks/gopuppet/internal/session"
	"github.com/roelfdiedericks/gopuppet/internal/session/memsession"
	"github.com/roelfdiedericks/gopuppet/internal/ui/tabs"
	"github.com/roelfdiedericks/gopuppet/internal/ui/windows"
	"github.com/roelfdiedericks/gopuppet/internal/wait"
)

var fastWait = wait.Options{Timeout: 500 * time.Millisecond, Interval: time.Millisecond}

type fixture struct {
	browser *memsession.Browser
	session *memsession.Session
	bar     *tabs.TabBar
}

func setup(t *testing.T, opts memsession.Options) *fixture {
	t.Helper()
	b := memsession.New(opts)
	s := b.NewSession()
	w, err := windows.New(func() session.Session { return s }, fastWait)
	if err != nil {
		t.Fatalf("windows.New: %v", err)
	}
	bar, err := w.TabBar()
	if err != nil {
		t.Fatalf("TabBar: %v", err)
	}
	return &fixture{browser: b, session: s, bar: bar}
}

func (f *fixture) tabs(t *testing.T) []*tabs.Tab {
	t.Helper()
	list, err := f.bar.Tabs(context.Background())
	if err != nil {
		t.Fatalf("Tabs: %v", err)
	}
	return list
}

func (f *fixture) handles(t *testing.T) []string {
	t.Helper()
	var hs []string
	for _, tab := range f.tabs(t) {
		hs = append(hs, tab.Handle())
	}
	return hs
}

func (f *fixture) focused(t *testing.T) string {
	t.Helper()
	h, err := f.session.CurrentWindowHandle(context.Background())
	if err != nil {
		t.Fatalf("CurrentWindowHandle: %v", err)
	}
	return h
}

func (f *fixture) selectedIndex(t *testing.T) int {
	t.Helper()
	i, err := f.bar.SelectedIndex(context.Background())
	if err != nil {
		t.Fatalf("SelectedIndex: %v", err)
	}
	return i
}

func (f *fixture) open(t *testing.T, trigger tabs.Trigger) *tabs.Tab {
	t.Helper()
	tab, err := f.bar.OpenTab(context.Background(), trigger)
	if err != nil {
		t.Fatalf("OpenTab(%s): %v", trigger, err)
	}
	return tab
}

func TestScenarioOpenCloseCloseAll(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()
	h0 := f.handles(t)[0]

	h1 := f.open(t, tabs.Button).Handle()
	if h1 == h0 {
		t.Fatal("new tab reuses the original handle")
	}
	if diff := cmp.Diff([]string{h0, h1}, f.handles(t)); diff != "" {
		t.Errorf("tabs after open (-want +got):\n%s", diff)
	}
	if i := f.selectedIndex(t); i != 1 {
		t.Errorf("selected index = %d, want 1", i)
	}

	if err := f.bar.CloseTab(ctx, nil, tabs.CloseOptions{}); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	if diff := cmp.Diff([]string{h0}, f.handles(t)); diff != "" {
		t.Errorf("tabs after close (-want +got):\n%s", diff)
	}
	if i := f.selectedIndex(t); i != 0 {
		t.Errorf("selected index = %d, want 0", i)
	}

	f.open(t, tabs.Button)
	f.open(t, tabs.Button)
	all := f.tabs(t)
	if len(all) != 3 {
		t.Fatalf("tabs = %d, want 3", len(all))
	}
	if err := f.bar.CloseAllTabs(ctx, all[:1]); err != nil {
		t.Fatalf("CloseAllTabs: %v", err)
	}
	left := f.tabs(t)
	if len(left) != 1 || !left[0].Equal(all[0]) {
		t.Errorf("tabs after close all = %v, want [%s]", f.handles(t), all[0].Handle())
	}
	if f.focused(t) != h0 {
		t.Errorf("focus = %s, want kept tab %s", f.focused(t), h0)
	}
}

func TestOpenTabByEachTrigger(t *testing.T) {
	triggers := []tabs.Trigger{
		tabs.Button,
		tabs.Menu,
		tabs.Shortcut,
		tabs.Custom(func(ctx context.Context, tab *tabs.Tab) error {
			button, err := tab.TabBar().NewTabButton(ctx)
			if err != nil {
				return err
			}
			return button.Click(ctx)
		}),
	}

	for _, trigger := range triggers {
		t.Run(trigger.String(), func(t *testing.T) {
			f := setup(t, memsession.DefaultOptions())
			ctx := context.Background()

			tab := f.open(t, trigger)
			hs := f.handles(t)
			if len(hs) != 2 {
				t.Fatalf("tabs = %v, want 2", hs)
			}
			if tab.Handle() != f.focused(t) || tab.Handle() != hs[1] {
				t.Errorf("opened %s, focused %s, strip %v", tab.Handle(), f.focused(t), hs)
			}

			if err := f.bar.CloseTab(ctx, nil, tabs.CloseOptions{}); err != nil {
				t.Fatalf("CloseTab: %v", err)
			}
			hs = f.handles(t)
			if len(hs) != 1 || hs[0] != f.focused(t) || hs[0] == tab.Handle() {
				t.Errorf("after close: strip %v focused %s", hs, f.focused(t))
			}
		})
	}
}

func TestCloseTabByEachTrigger(t *testing.T) {
	triggers := []tabs.Trigger{
		tabs.Button,
		tabs.Menu,
		tabs.Shortcut,
		tabs.Custom(func(ctx context.Context, tab *tabs.Tab) error {
			button, err := tab.CloseButton(ctx)
			if err != nil {
				return err
			}
			return button.Click(ctx)
		}),
	}

	for _, trigger := range triggers {
		t.Run(trigger.String(), func(t *testing.T) {
			f := setup(t, memsession.DefaultOptions())
			ctx := context.Background()

			tab := f.open(t, tabs.Button)
			if err := tab.Close(ctx, tabs.CloseOptions{Trigger: trigger}); err != nil {
				t.Fatalf("Close: %v", err)
			}
			hs := f.handles(t)
			if len(hs) != 1 || hs[0] == tab.Handle() {
				t.Fatalf("strip after close = %v", hs)
			}
			if hs[0] != f.focused(t) {
				t.Errorf("focus = %s, want %s", f.focused(t), hs[0])
			}
		})
	}
}

func TestForceClose(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	tab := f.open(t, tabs.Button)
	if err := tab.Close(ctx, tabs.CloseOptions{Force: true}); err != nil {
		t.Fatalf("forced Close: %v", err)
	}
	if n := len(f.tabs(t)); n != 1 {
		t.Errorf("tabs = %d, want 1", n)
	}
}

func TestCloseUnselectedTabKeepsFocus(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	newTab := f.open(t, tabs.Button)
	first := f.tabs(t)[0]

	for _, opts := range []tabs.CloseOptions{{}, {Force: true}} {
		if err := f.bar.CloseTab(ctx, first, opts); err != nil {
			t.Fatalf("CloseTab(%+v): %v", opts, err)
		}
		left := f.tabs(t)
		if len(left) != 1 || !left[0].Equal(newTab) {
			t.Fatalf("strip = %v, want only %s", f.handles(t), newTab.Handle())
		}
		if f.focused(t) != newTab.Handle() {
			t.Errorf("focus = %s, want %s", f.focused(t), newTab.Handle())
		}
		first = f.open(t, tabs.Button)
		if _, err := f.bar.SwitchTo(ctx, newTab); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCloseLastTabIsInvalidState(t *testing.T) {
	for _, opts := range []tabs.CloseOptions{{}, {Trigger: tabs.Menu}, {Force: true}} {
		f := setup(t, memsession.DefaultOptions())
		err := f.bar.CloseTab(context.Background(), nil, opts)
		if !errors.Is(err, base.ErrInvalidState) || !errors.Is(err, session.ErrLastTab) {
			t.Errorf("CloseTab(%+v) err = %v, want ErrInvalidState wrapping ErrLastTab", opts, err)
		}
		if n := len(f.tabs(t)); n != 1 {
			t.Errorf("tabs = %d, want 1", n)
		}
	}
}

func TestCloseAllTabsIdempotent(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		f.open(t, tabs.Button)
	}
	all := f.tabs(t)
	keep := []*tabs.Tab{all[1], all[3]}

	if err := f.bar.CloseAllTabs(ctx, keep); err != nil {
		t.Fatalf("CloseAllTabs: %v", err)
	}
	once := f.handles(t)
	if err := f.bar.CloseAllTabs(ctx, keep); err != nil {
		t.Fatalf("second CloseAllTabs: %v", err)
	}
	want := []string{all[1].Handle(), all[3].Handle()}
	if diff := cmp.Diff(want, once); diff != "" {
		t.Errorf("after first pass (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(once, f.handles(t)); diff != "" {
		t.Errorf("second pass changed tabs (-first +second):\n%s", diff)
	}
}

func TestCloseAllTabsIgnoresVanishedKeep(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	f.open(t, tabs.Button)
	f.open(t, tabs.Button)
	all := f.tabs(t)
	if err := f.browser.CloseExternal(all[2].Handle()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.bar.SwitchTo(ctx, tabs.Index(0)); err != nil {
		t.Fatal(err)
	}

	if err := f.bar.CloseAllTabs(ctx, []*tabs.Tab{all[0], all[2]}); err != nil {
		t.Fatalf("CloseAllTabs: %v", err)
	}
	if diff := cmp.Diff([]string{all[0].Handle()}, f.handles(t)); diff != "" {
		t.Errorf("tabs (-want +got):\n%s", diff)
	}
}

func TestSwitchTo(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	newTab := f.open(t, tabs.Button)
	if i := f.selectedIndex(t); i != 1 {
		t.Fatalf("selected index = %d", i)
	}
	sel, err := f.bar.SelectedTab(ctx)
	if err != nil || !sel.Equal(newTab) {
		t.Fatalf("selected tab = %v, %v; want %s", sel, err, newTab.Handle())
	}

	if _, err := f.bar.SwitchTo(ctx, tabs.Index(0)); err != nil {
		t.Fatal(err)
	}
	all := f.tabs(t)
	if f.selectedIndex(t) != 0 || f.focused(t) != all[0].Handle() {
		t.Errorf("after Index(0): index %d focus %s", f.selectedIndex(t), f.focused(t))
	}
	if sel, _ := f.bar.SelectedTab(ctx); !sel.Equal(all[0]) {
		t.Errorf("selected tab = %s, want %s", sel.Handle(), all[0].Handle())
	}

	if _, err := f.bar.SwitchTo(ctx, newTab); err != nil {
		t.Fatal(err)
	}
	if f.focused(t) != newTab.Handle() {
		t.Errorf("after Tab: focus %s", f.focused(t))
	}

	notSelected := tabs.Predicate(func(ctx context.Context, tab *tabs.Tab) (bool, error) {
		selected, err := tab.Selected(ctx)
		return !selected, err
	})
	if _, err := f.bar.SwitchTo(ctx, notSelected); err != nil {
		t.Fatal(err)
	}
	if f.focused(t) != all[0].Handle() {
		t.Errorf("after Predicate: focus %s, want %s", f.focused(t), all[0].Handle())
	}
}

func TestSwitchToNotFound(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	gone := f.open(t, tabs.Button)
	if err := gone.Close(ctx, tabs.CloseOptions{}); err != nil {
		t.Fatal(err)
	}

	never := tabs.Predicate(func(context.Context, *tabs.Tab) (bool, error) { return false, nil })
	for name, target := range map[string]tabs.Target{
		"index":     tabs.Index(5),
		"negative":  tabs.Index(-1),
		"stale tab": gone,
		"predicate": never,
	} {
		if _, err := f.bar.SwitchTo(ctx, target); !errors.Is(err, base.ErrNotFound) {
			t.Errorf("%s: err = %v, want ErrNotFound", name, err)
		}
	}

	boom := errors.New("boom")
	failing := tabs.Predicate(func(context.Context, *tabs.Tab) (bool, error) { return false, boom })
	if _, err := f.bar.SwitchTo(ctx, failing); !errors.Is(err, boom) {
		t.Errorf("predicate error = %v, want boom", err)
	}
}

func TestSelectedIndexDesync(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	focused := f.open(t, tabs.Button)
	if err := f.browser.CloseExternal(focused.Handle()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.bar.SelectedIndex(context.Background()); !errors.Is(err, base.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestOpenTabTimeout(t *testing.T) {
	opts := memsession.DefaultOptions()
	opts.StallOpens = true
	f := setup(t, opts)
	f.bar.Wait = wait.Options{Timeout: 30 * time.Millisecond, Interval: time.Millisecond}

	if _, err := f.bar.OpenTab(context.Background(), tabs.Button); !errors.Is(err, base.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if n := len(f.tabs(t)); n != 1 {
		t.Errorf("tabs = %d, want 1", n)
	}
}

func TestAsynchronousOpenAndClose(t *testing.T) {
	opts := memsession.DefaultOptions()
	opts.OpenDelay = 3
	opts.CloseDelay = 2
	f := setup(t, opts)
	ctx := context.Background()

	tab := f.open(t, tabs.Menu)
	if f.focused(t) != tab.Handle() {
		t.Errorf("focus = %s, want %s", f.focused(t), tab.Handle())
	}
	if err := f.bar.CloseTab(ctx, nil, tabs.CloseOptions{Trigger: tabs.Shortcut}); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	if n := f.browser.PendingChanges(); n != 0 {
		t.Errorf("pending changes = %d", n)
	}
	if n := len(f.tabs(t)); n != 1 {
		t.Errorf("tabs = %d, want 1", n)
	}
}

func TestBackgroundOpenIsFocused(t *testing.T) {
	opts := memsession.DefaultOptions()
	opts.ForegroundNewTabs = false
	opts.AutoSelectOnSwitch = false
	f := setup(t, opts)

	tab := f.open(t, tabs.Button)
	if f.focused(t) != tab.Handle() || f.browser.Selected() != tab.Handle() {
		t.Errorf("focus %s selected %s, want %s", f.focused(t), f.browser.Selected(), tab.Handle())
	}
}

func TestSelectAndSwitchToDiverge(t *testing.T) {
	opts := memsession.DefaultOptions()
	opts.AutoSelectOnSwitch = false
	f := setup(t, opts)
	ctx := context.Background()

	newTab := f.open(t, tabs.Button)
	first := f.tabs(t)[0]

	if err := first.SwitchTo(ctx); err != nil {
		t.Fatal(err)
	}
	if f.focused(t) != first.Handle() {
		t.Errorf("focus = %s after SwitchTo", f.focused(t))
	}
	if f.browser.Selected() != newTab.Handle() {
		t.Errorf("SwitchTo changed browser selection to %s", f.browser.Selected())
	}

	if err := first.Select(ctx); err != nil {
		t.Fatal(err)
	}
	if f.browser.Selected() != first.Handle() {
		t.Errorf("Select left browser selection at %s", f.browser.Selected())
	}
	all := f.tabs(t)
	if ok, _ := all[0].Selected(ctx); !ok {
		t.Error("first tab not selected")
	}
	if ok, _ := all[1].Selected(ctx); ok {
		t.Error("second tab still selected")
	}
}

func TestTabCountInvariant(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	opens, closes := 0, 0
	for i := 0; i < 12; i++ {
		if i%3 == 2 {
			all := f.tabs(t)
			if err := f.bar.CloseTab(ctx, all[i%len(all)], tabs.CloseOptions{}); err != nil {
				t.Fatalf("step %d: CloseTab: %v", i, err)
			}
			closes++
		} else {
			f.open(t, tabs.Button)
			opens++
		}
		if n := len(f.tabs(t)); n != 1+opens-closes {
			t.Fatalf("step %d: tabs = %d, want %d", i, n, 1+opens-closes)
		}
		if _, err := f.bar.SelectedIndex(ctx); err != nil {
			t.Fatalf("step %d: selection lost: %v", i, err)
		}
	}
}

func TestTabsFollowStripOrder(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	h0 := f.handles(t)[0]
	h1 := f.open(t, tabs.Button).Handle()

	if err := f.browser.Move(h0, 1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{h1, h0}, f.handles(t)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if i := f.selectedIndex(t); i != 0 {
		t.Errorf("selected index = %d, want 0 after move", i)
	}
}

func TestTabsAreEqualByHandle(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	f.open(t, tabs.Button)

	a, b := f.tabs(t), f.tabs(t)
	for i := range a {
		if a[i] == b[i] {
			t.Fatal("Tabs returned cached objects")
		}
		if !a[i].Equal(b[i]) {
			t.Errorf("tab %d differs between calls", i)
		}
	}
	if a[0].Equal(a[1]) {
		t.Error("different tabs compare equal")
	}
}

func TestElementsAndAttributes(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	toolbar, err := f.bar.Toolbar(ctx)
	if err != nil {
		t.Fatal(err)
	}
	button, err := f.bar.NewTabButton(ctx)
	if err != nil {
		t.Fatal(err)
	}
	tab := f.tabs(t)[0]
	closeButton, err := tab.CloseButton(ctx)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := tab.CloseButton(ctx)
	if again != closeButton {
		t.Error("close button located twice")
	}

	checks := []struct {
		name string
		el   interface {
			Attribute(context.Context, string) (string, error)
		}
		want string
	}{
		{"toolbar", toolbar, "tabs"},
		{"newtab button", button, "toolbarbutton"},
		{"tab", tab, "tab"},
		{"close button", closeButton, "toolbarbutton"},
	}
	for _, c := range checks {
		got, err := c.el.Attribute(ctx, "localName")
		if err != nil || got != c.want {
			t.Errorf("%s localName = %q, %v; want %q", c.name, got, err, c.want)
		}
	}

	if _, err := tab.Attribute(ctx, "bogus"); !errors.Is(err, base.ErrNoSuchAttribute) {
		t.Errorf("missing attribute err = %v, want ErrNoSuchAttribute", err)
	}
	if tab.Window() == nil || f.bar.Window() == nil {
		t.Error("window not wired")
	}
	if f.session.Context() != session.ContextContent {
		t.Errorf("session left in %s context", f.session.Context())
	}
}

// meddling closes tabs behind the tab bar's back around session calls.
type meddling struct {
	*memsession.Session
	beforeSwitch func(handle string)
	afterClose   func()
}

func (m *meddling) SwitchToWindow(ctx context.Context, handle string) error {
	if m.beforeSwitch != nil {
		m.beforeSwitch(handle)
	}
	return m.Session.SwitchToWindow(ctx, handle)
}

func (m *meddling) CloseWindow(ctx context.Context) error {
	if err := m.Session.CloseWindow(ctx); err != nil {
		return err
	}
	if m.afterClose != nil {
		m.afterClose()
	}
	return nil
}

func setupMeddling(t *testing.T) (*fixture, *meddling) {
	t.Helper()
	b := memsession.New(memsession.DefaultOptions())
	m := &meddling{Session: b.NewSession()}
	w, err := windows.New(func() session.Session { return m }, fastWait)
	if err != nil {
		t.Fatalf("windows.New: %v", err)
	}
	bar, err := w.TabBar()
	if err != nil {
		t.Fatalf("TabBar: %v", err)
	}
	return &fixture{browser: b, session: m.Session, bar: bar}, m
}

func TestCloseAllTabsToleratesTabClosingMidway(t *testing.T) {
	f, m := setupMeddling(t)
	ctx := context.Background()

	f.open(t, tabs.Button)
	f.open(t, tabs.Button)
	all := f.tabs(t)
	m.afterClose = func() {
		m.afterClose = nil
		if err := f.browser.CloseExternal(all[2].Handle()); err != nil {
			t.Errorf("CloseExternal: %v", err)
		}
	}

	if err := f.bar.CloseAllTabs(ctx, all[:1]); err != nil {
		t.Fatalf("CloseAllTabs: %v", err)
	}
	if diff := cmp.Diff([]string{all[0].Handle()}, f.handles(t)); diff != "" {
		t.Errorf("tabs (-want +got):\n%s", diff)
	}
	if got := f.focused(t); got != all[0].Handle() {
		t.Errorf("focus = %s, want %s", got, all[0].Handle())
	}
}

func TestCloseAllTabsToleratesTargetClosingDuringClose(t *testing.T) {
	f, m := setupMeddling(t)
	ctx := context.Background()

	f.open(t, tabs.Button)
	f.open(t, tabs.Button)
	all := f.tabs(t)
	if _, err := f.bar.SwitchTo(ctx, tabs.Index(0)); err != nil {
		t.Fatal(err)
	}
	m.beforeSwitch = func(handle string) {
		if handle == all[1].Handle() {
			m.beforeSwitch = nil
			if err := f.browser.CloseExternal(handle); err != nil {
				t.Errorf("CloseExternal: %v", err)
			}
		}
	}

	if err := f.bar.CloseAllTabs(ctx, all[:1]); err != nil {
		t.Fatalf("CloseAllTabs: %v", err)
	}
	if diff := cmp.Diff([]string{all[0].Handle()}, f.handles(t)); diff != "" {
		t.Errorf("tabs (-want +got):\n%s", diff)
	}
}

func TestCloseTabAlreadyClosedIsNotFound(t *testing.T) {
	f := setup(t, memsession.DefaultOptions())
	ctx := context.Background()

	f.open(t, tabs.Button)
	all := f.tabs(t)
	if err := f.browser.CloseExternal(all[1].Handle()); err != nil {
		t.Fatal(err)
	}

	for _, opts := range []tabs.CloseOptions{{}, {Force: true}} {
		err := f.bar.CloseTab(ctx, all[1], opts)
		if !errors.Is(err, base.ErrNotFound) {
			t.Errorf("CloseTab(%+v) err = %v, want ErrNotFound", opts, err)
		}
		if errors.Is(err, base.ErrInvalidState) {
			t.Errorf("CloseTab(%+v) reported the last-tab refusal: %v", opts, err)
		}
	}
	if n := len(f.tabs(t)); n != 1 {
		t.Errorf("tabs = %d, want 1", n)
	}
}
