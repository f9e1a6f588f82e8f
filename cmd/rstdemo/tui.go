package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-rst/rst"
	"github.com/capatazlib/go-rst/rst/rsthttp"
	"github.com/capatazlib/go-rst/source/netaccept"
	"github.com/capatazlib/go-rst/source/sigwatch"
)

const (
	fgDefault string = "\033[0;0m"
	fgRed     string = "\033[1;31m"
	fgGreen   string = "\033[1;32m"

	maxLines = 200
)

// UI renders the supervisors status and the events they deliver. Every
// mutation of its state happens inside a g.Update callback, on the gocui
// main loop.
type UI struct {
	g               *gocui.Gui
	sources         []rsthttp.Source
	lines           []string
	refreshInterval time.Duration
	refresh         chan (interface{})
}

func (ui *UI) loop(ctx context.Context) {
	t := time.NewTicker(ui.refreshInterval)
	defer t.Stop()
	ui.g.Update(ui.update)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ui.refresh:
			ui.g.Update(ui.update)
		case <-t.C:
			ui.g.Update(ui.update)
		}
	}
}

func (ui *UI) requestRefresh() {
	select {
	case ui.refresh <- struct{}{}:
	default:
	}
}

// logf appends a line to the events view; it may be called from any
// goroutine
func (ui *UI) logf(format string, args ...interface{}) {
	line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	ui.g.Update(func(g *gocui.Gui) error {
		ui.lines = append(ui.lines, line)
		if len(ui.lines) > maxLines {
			ui.lines = ui.lines[len(ui.lines)-maxLines:]
		}
		return ui.update(g)
	})
}

func (ui *UI) notify(n rst.Notification) {
	switch n.GetTag() {
	case rst.SpawnFailed, rst.RestartFailed, rst.RestartExhausted, rst.WorkerFaulted, rst.WakeFailed:
		ui.logf("%s", red(n.String()))
	default:
		ui.logf("%s", n.String())
	}
}

func tuiCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return errorf("something went wrong: %s", err)
	}
	defer g.Close()

	ui := &UI{
		g:               g,
		refreshInterval: c.Duration("refresh"),
		refresh:         make(chan interface{}, 1),
	}

	// the terminal belongs to the UI, logs are dropped
	d, err := newDemo(cfg, io.Discard, map[string]rst.Notifier{"tui": ui.notify})
	if err != nil {
		return err
	}
	listenSup := supervise(d, "listen", netaccept.NewFactory(cfg.Listen.Addr))
	signalsSup := supervise(d, "signals", sigwatch.NewFactory(watchedSignals))
	ui.sources = d.sources

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- d.run(
			ctx,
			func(ctx context.Context) error {
				return consume(ctx, listenSup, func(conn netaccept.Conn) bool {
					ui.logf("listen: accepted %s", conn.RemoteAddr)
					return true
				})
			},
			func(ctx context.Context) error {
				return consume(ctx, signalsSup, func(sig sigwatch.Signal) bool {
					ui.logf("signals: received %s", sig.Name)
					return true
				})
			},
		)
		// consumers are done, leave the UI
		g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
	}()
	go ui.loop(ctx)

	g.Cursor = true
	g.SetManagerFunc(ui.layout)

	if err := ui.keybindings(g); err != nil {
		return errorf("something went wrong: %s", err)
	}

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return errorf("something went wrong: %s", err)
	}
	cancel()
	return <-runErr
}

func (ui *UI) keybindings(g *gocui.Gui) error {
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("", 'q', gocui.ModNone, quit); err != nil {
		return err
	}

	lnUpAct := func(cg *gocui.Gui, v *gocui.View) error {
		v.MoveCursor(0, -1, false)
		return nil
	}
	lnDownAct := func(cg *gocui.Gui, v *gocui.View) error {
		v.MoveCursor(0, 1, false)
		return nil
	}
	for key, action := range map[interface{}]func(*gocui.Gui, *gocui.View) error{
		gocui.KeyArrowUp:   lnUpAct,
		gocui.KeyArrowDown: lnDownAct,
		'k':                lnUpAct,
		'j':                lnDownAct,
	} {
		if err := g.SetKeybinding("supervisors", key, gocui.ModNone, action); err != nil {
			return err
		}
	}

	if err := g.SetKeybinding("supervisors", 'w', gocui.ModNone, func(cg *gocui.Gui, v *gocui.View) error {
		_, y := v.Cursor()
		_, yy := v.Origin()
		n := y + yy
		if n >= len(ui.sources) {
			// Cursor is below bottom of the list
			return nil
		}
		src := ui.sources[n]
		if err := src.Wake(); err != nil {
			ui.logf("%s", red(fmt.Sprintf("wake %s: %s", src.Status().Name, err)))
		}
		ui.requestRefresh()
		return nil
	}); err != nil {
		return err
	}
	return g.SetKeybinding("supervisors", 'r', gocui.ModNone, func(cg *gocui.Gui, v *gocui.View) error {
		ui.requestRefresh()
		return nil
	})
}

func (ui *UI) layout(g *gocui.Gui) error {
	// +-----------------------+
	// |          top          |
	// +-----------+-----------+
	// |supervisors|  events   |
	// +-----------+-----------+
	maxX, maxY := g.Size()

	if _, err := g.SetView("top", -1, -1, maxX, 3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
	}
	if v, err := g.SetView("supervisors", -1, 3, 50, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "supervisors"
		v.Highlight = true
	}
	if v, err := g.SetView("events", 50, 3, maxX, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "events"
		v.Autoscroll = true
		v.Wrap = true
	}
	if _, err := g.SetCurrentView("supervisors"); err != nil {
		return err
	}
	return ui.update(g)
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

func (ui *UI) update(g *gocui.Gui) error {
	v, err := g.View("top")
	if err != nil {
		// layout did not run yet
		return nil
	}
	v.Clear()
	fmt.Fprintln(v, `"q" or CTRL-C to quit`)
	fmt.Fprintf(v, "\"r\" to refresh (auto refresh every %s)\n", ui.refreshInterval.String())
	fmt.Fprintln(v, `"w" to wake the selected supervisor`)

	v, err = g.View("supervisors")
	if err != nil {
		return nil
	}
	v.Clear()
	for _, src := range ui.sources {
		st := src.Status()
		state := red(st.State.String())
		if st.State == rst.Running {
			state = green(st.State.String())
		}
		fmt.Fprintf(v, "%-10s gen=%-4d %s receivers=%d\n", st.Name, st.Generation, state, st.Receivers)
	}

	v, err = g.View("events")
	if err != nil {
		return nil
	}
	v.Clear()
	for _, line := range ui.lines {
		fmt.Fprintln(v, line)
	}
	return nil
}

func red(s string) string {
	return fmt.Sprintf("%s%s%s", fgRed, s, fgDefault)
}

func green(s string) string {
	return fmt.Sprintf("%s%s%s", fgGreen, s, fgDefault)
}
