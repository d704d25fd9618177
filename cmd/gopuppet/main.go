// Command gopuppet drives the tab strip of a remote browser from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	"github.com/roelfdiedericks/gopuppet/internal/config"
	"github.com/roelfdiedericks/gopuppet/internal/libcache"
	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	"github.com/roelfdiedericks/gopuppet/internal/metrics"
	"github.com/roelfdiedericks/gopuppet/internal/paths"
	"github.com/roelfdiedericks/gopuppet/internal/puppeteer"
	"github.com/roelfdiedericks/gopuppet/internal/session/memsession"
	"github.com/roelfdiedericks/gopuppet/internal/session/rodsession"
	"github.com/roelfdiedericks/gopuppet/internal/ui/tabs"
	"github.com/roelfdiedericks/gopuppet/internal/wait"
)

const version = "0.0.1"

// CLI defines the command-line interface
type CLI struct {
	ConfigPath string `help:"Config file path" name:"config" type:"path" short:"c"`
	LogLevel   string `help:"Log level (trace, debug, info, warn, error)" name:"log-level"`
	Demo       bool   `help:"Drive a simulated in-memory browser instead of a real one"`
	MetricsDB  string `help:"SQLite file for metric history" name:"metrics-db" type:"path"`

	Tabs    TabsCmd    `cmd:"" help:"Inspect and drive the tab strip"`
	Prefs   PrefsCmd   `cmd:"" help:"Read and write browser preferences"`
	Conf    ConfigCmd  `cmd:"" name:"config" help:"Manage the config file"`
	Metrics MetricsCmd `cmd:"" help:"Print recorded metrics (needs --metrics-db to see earlier runs)"`
	Libs    LibsCmd    `cmd:"" name:"libraries" help:"List the UI libraries and their cache tags"`
	Version VersionCmd `cmd:"" help:"Print version"`
}

// TabsCmd groups tab strip operations
type TabsCmd struct {
	List     TabsListCmd     `cmd:"" default:"1" help:"List open tabs"`
	Open     TabsOpenCmd     `cmd:"" help:"Open a new tab"`
	Close    TabsCloseCmd    `cmd:"" help:"Close a tab"`
	CloseAll TabsCloseAllCmd `cmd:"" name:"close-all" help:"Close every tab except the kept ones"`
	Switch   TabsSwitchCmd   `cmd:"" help:"Focus a tab by index"`
}

type TabsListCmd struct{}

type TabsOpenCmd struct {
	Trigger string `help:"How to open: button, menu or shortcut" default:"button" enum:"button,menu,shortcut"`
}

type TabsCloseCmd struct {
	Index   int    `help:"Tab index (default: selected tab)" default:"-1"`
	Trigger string `help:"How to close: button, menu or shortcut" default:"button" enum:"button,menu,shortcut"`
	Force   bool   `help:"Close through the session instead of the UI"`
}

type TabsCloseAllCmd struct {
	Keep []int `help:"Indexes of tabs to keep" sep:","`
}

type TabsSwitchCmd struct {
	Index int `arg:"" help:"Tab index"`
}

// PrefsCmd groups preference operations
type PrefsCmd struct {
	Get PrefsGetCmd `cmd:"" help:"Print a preference value"`
	Set PrefsSetCmd `cmd:"" help:"Set a preference (value parsed as JSON, else taken as a string)"`
}

type PrefsGetCmd struct {
	Name string `arg:"" help:"Preference name"`
}

type PrefsSetCmd struct {
	Name  string `arg:"" help:"Preference name"`
	Value string `arg:"" help:"Preference value"`
}

// ConfigCmd groups config file operations
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write the default config file"`
}

type ConfigInitCmd struct {
	Force bool `help:"Overwrite an existing config file"`
}

type MetricsCmd struct {
	Prefix string `arg:"" optional:"" help:"Only print metrics whose path starts with this"`
}

type LibsCmd struct{}

type VersionCmd struct{}

// App carries what commands share. The browser is connected on first use.
type App struct {
	ctx     context.Context
	cli     *CLI
	cfg     *config.Config
	pup     *puppeteer.Puppeteer
	closeFn func() error
}

func (a *App) puppeteer() (*puppeteer.Puppeteer, error) {
	if a.pup != nil {
		return a.pup, nil
	}

	p := puppeteer.New(puppeteer.WithWait(wait.Options{
		Timeout:  a.cfg.Wait.ResolveTimeout(),
		Interval: a.cfg.Wait.ResolveInterval(),
	}))

	if a.cli.Demo {
		b := memsession.New(memsession.DefaultOptions())
		b.SetTitle(b.Handles()[0], "Start Page")
		for _, title := range []string{"Documentation", "Issue Tracker"} {
			b.SetTitle(b.OpenExternal(), title)
		}
		p.SetClient(b.NewSession())
		L_debug("cli: using simulated browser", "tabs", len(b.Handles()))
	} else {
		s, err := rodsession.Connect(a.ctx, a.cfg.Session)
		if err != nil {
			return nil, err
		}
		p.SetClient(s)
		a.closeFn = s.Close
	}

	a.pup = p
	return p, nil
}

func (a *App) tabBar() (*tabs.TabBar, error) {
	p, err := a.puppeteer()
	if err != nil {
		return nil, err
	}
	return p.Tabstrip()
}

func (a *App) tabAt(tb *tabs.TabBar, index int) (*tabs.Tab, error) {
	all, err := tb.Tabs(a.ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(all) {
		return nil, fmt.Errorf("tab index %d out of range (0..%d)", index, len(all)-1)
	}
	return all[index], nil
}

func (a *App) close() {
	if a.closeFn == nil {
		return
	}
	if err := a.closeFn(); err != nil {
		L_warn("cli: failed to close browser", "error", err)
	}
}

func (c *TabsListCmd) Run(app *App) error {
	tb, err := app.tabBar()
	if err != nil {
		return err
	}
	all, err := tb.Tabs(app.ctx)
	if err != nil {
		return err
	}
	selected, err := tb.SelectedIndex(app.ctx)
	if err != nil {
		return err
	}

	for i, tab := range all {
		label, err := tabLabel(app.ctx, tab)
		if err != nil {
			return err
		}
		mark := " "
		if i == selected {
			mark = "*"
		}
		fmt.Printf("%s %d  %s  %s\n", mark, i, tab.Handle(), label)
	}
	return nil
}

// tabLabel returns the tab's label, or "" for a tab without one.
func tabLabel(ctx context.Context, tab *tabs.Tab) (string, error) {
	label, err := tab.Attribute(ctx, "label")
	if errors.Is(err, base.ErrNoSuchAttribute) {
		return "", nil
	}
	return label, err
}

func (c *TabsOpenCmd) Run(app *App) error {
	trigger, err := tabs.ParseTrigger(c.Trigger)
	if err != nil {
		return err
	}
	tb, err := app.tabBar()
	if err != nil {
		return err
	}
	tab, err := tb.OpenTab(app.ctx, trigger)
	if err != nil {
		return err
	}
	fmt.Println(tab.Handle())
	return nil
}

func (c *TabsCloseCmd) Run(app *App) error {
	trigger, err := tabs.ParseTrigger(c.Trigger)
	if err != nil {
		return err
	}
	tb, err := app.tabBar()
	if err != nil {
		return err
	}

	var tab *tabs.Tab
	if c.Index >= 0 {
		if tab, err = app.tabAt(tb, c.Index); err != nil {
			return err
		}
	}
	return tb.CloseTab(app.ctx, tab, tabs.CloseOptions{Trigger: trigger, Force: c.Force})
}

func (c *TabsCloseAllCmd) Run(app *App) error {
	tb, err := app.tabBar()
	if err != nil {
		return err
	}
	keep := make([]*tabs.Tab, 0, len(c.Keep))
	for _, i := range c.Keep {
		tab, err := app.tabAt(tb, i)
		if err != nil {
			return err
		}
		keep = append(keep, tab)
	}
	return tb.CloseAllTabs(app.ctx, keep)
}

func (c *TabsSwitchCmd) Run(app *App) error {
	tb, err := app.tabBar()
	if err != nil {
		return err
	}
	tab, err := tb.SwitchTo(app.ctx, tabs.Index(c.Index))
	if err != nil {
		return err
	}
	fmt.Println(tab.Handle())
	return nil
}

func (c *PrefsGetCmd) Run(app *App) error {
	p, err := app.puppeteer()
	if err != nil {
		return err
	}
	prefs, err := p.Prefs()
	if err != nil {
		return err
	}
	v, err := prefs.Get(app.ctx, c.Name)
	if err != nil {
		return err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *PrefsSetCmd) Run(app *App) error {
	var value any
	if err := json.Unmarshal([]byte(c.Value), &value); err != nil {
		value = c.Value
	}

	p, err := app.puppeteer()
	if err != nil {
		return err
	}
	prefs, err := p.Prefs()
	if err != nil {
		return err
	}
	return prefs.Set(app.ctx, c.Name, value)
}

func (c *ConfigInitCmd) Run(app *App) error {
	path := app.cli.ConfigPath
	if path == "" {
		var err error
		if path, err = paths.DefaultConfigPath(); err != nil {
			return err
		}
	}
	if err := paths.EnsureParentDir(path); err != nil {
		return err
	}
	if err := config.WriteDefault(path, c.Force); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func (c *MetricsCmd) Run(app *App) error {
	snap := metrics.GetInstance().GetSnapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		if strings.HasPrefix(k, c.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		data, err := json.Marshal(snap[k].Data)
		if err != nil {
			return err
		}
		fmt.Printf("%-40s %-12s %s\n", k, snap[k].Type, data)
	}
	return nil
}

func (c *LibsCmd) Run(app *App) error {
	for _, name := range libcache.Registered() {
		tag, err := libcache.Tag(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %s\n", name, tag)
	}
	return nil
}

func (c *VersionCmd) Run(app *App) error {
	fmt.Printf("gopuppet %s\n", version)
	return nil
}

func enableMetrics(dbPath string) error {
	path, err := paths.ExpandTilde(dbPath)
	if err != nil {
		return err
	}
	return metrics.GetInstance().EnablePersistence(path)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("gopuppet"),
		kong.Description("Drive the tab strip of a remote browser"),
		kong.UsageOnError(),
	)

	Init(DefaultConfig())

	cfg := config.Default()
	if kctx.Command() != "config init" && kctx.Command() != "version" && kctx.Command() != "libraries" {
		loaded, err := config.Load(cli.ConfigPath)
		if err != nil {
			L_fatal("failed to load config: %v", err)
		}
		cfg = loaded
	}

	levelName := cli.LogLevel
	if levelName == "" {
		levelName = cfg.Logging.Level
	}
	if levelName != "" {
		level, err := ParseLevel(levelName)
		if err != nil {
			L_fatal("invalid log level: %v", err)
		}
		SetLevel(level)
	}

	dbPath := cli.MetricsDB
	if dbPath == "" {
		dbPath = cfg.Metrics.DB
	}
	if dbPath != "" {
		if err := enableMetrics(dbPath); err != nil {
			L_warn("failed to enable metrics persistence", "path", dbPath, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	app := &App{ctx: ctx, cli: &cli, cfg: cfg}

	start := time.Now()
	err := kctx.Run(app)
	L_elapsed(start, "cli: command finished", "command", kctx.Command())

	app.close()
	if err := metrics.GetInstance().Close(); err != nil {
		L_warn("failed to save metrics", "error", err)
	}
	stop()

	if err != nil {
		L_error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}
