package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// UIOptions defines options for the terminal viewer.
type UIOptions struct {
	Title        string
	NoColour     bool
	MouseEnabled bool
	MaxPoints    int // plotted tail per series, 0 = all
	HelpExtra    []string
	// OnSelect is called when the user picks a partition from the list.
	// Calls arrive in order on a goroutine of their own, never on the
	// event loop; selections made while one is running collapse into the
	// latest.
	OnSelect func(partition int)
	OnExit   func(code int)
	// Screen replaces the terminal, for tests.
	Screen tcell.Screen
}

// UI is the interactive terminal RenderSink: a partition list, a plot of
// the active partition and the usual top and bottom bars.
type UI struct {
	app        *tview.Application
	topBar     *tview.TextView
	list       *tview.List
	plot       *PlotView
	statusText *tview.TextView
	root       tview.Primitive
	modal      tview.Primitive
	prevFocus  tview.Primitive

	mu           sync.Mutex
	title        string
	noColour     bool
	mouseOn      bool
	paused       bool
	helpExtra    []string
	onExit       func(int)
	onSelect     func(int)
	partitions   []int
	active       int
	hasActive    bool
	latest       []Series
	decodeErrors int
	connState    string
	refreshing   bool
	stopped      bool

	pendingSelect    int
	hasPendingSelect bool
	selecting        bool

	// syncingList is only touched on the UI goroutine.
	syncingList bool
}

// NewUI creates the viewer. Nothing is drawn until Run.
func NewUI(opts UIOptions) *UI {
	u := &UI{
		title:     opts.Title,
		noColour:  opts.NoColour,
		mouseOn:   opts.MouseEnabled,
		helpExtra: append([]string(nil), opts.HelpExtra...),
		onSelect:  opts.OnSelect,
		connState: "connecting",
	}
	if u.title == "" {
		u.title = "simdash"
	}
	u.onExit = func(code int) {
		u.Stop()
		if opts.OnExit != nil {
			opts.OnExit(code)
		}
	}

	u.app = tview.NewApplication()
	if opts.Screen != nil {
		u.app.SetScreen(opts.Screen)
	}
	u.topBar = tview.NewTextView().SetWrap(false)
	u.statusText = tview.NewTextView().SetWrap(false)
	u.topBar.SetDynamicColors(!u.noColour)
	u.statusText.SetDynamicColors(!u.noColour)

	u.list = tview.NewList().ShowSecondaryText(false)
	u.list.SetBorder(true).SetTitle(" partitions ")
	u.plot = NewPlotView(opts.NoColour, opts.MaxPoints)
	u.plot.SetBorder(true)

	u.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(u.topBar, 1, 0, false).
		AddItem(tview.NewFlex().
			AddItem(u.list, 16, 0, true).
			AddItem(u.plot, 0, 1, false),
			0, 1, true).
		AddItem(u.statusText, 1, 0, false)

	u.bindKeys()
	u.app.EnableMouse(u.mouseOn)
	u.app.SetRoot(u.root, true)
	u.app.SetFocus(u.list)
	u.refreshDirect()
	return u
}

// Run blocks in the terminal event loop until the user quits or Stop is
// called.
func (u *UI) Run() error {
	return u.app.Run()
}

// Stop ends the event loop. Later Redraw calls are accepted and ignored.
func (u *UI) Stop() {
	u.mu.Lock()
	if u.stopped {
		u.mu.Unlock()
		return
	}
	u.stopped = true
	u.mu.Unlock()
	u.app.EnableMouse(false)
	u.app.Stop()
}

// Redraw replaces the plotted series. It never blocks on the event loop:
// the series are stored and at most one refresh is queued at a time.
func (u *UI) Redraw(partition int, series []Series) error {
	u.mu.Lock()
	u.active, u.hasActive = partition, true
	u.latest = series
	u.mu.Unlock()
	u.scheduleRefresh()
	return nil
}

// PartitionsChanged refreshes the partition list.
func (u *UI) PartitionsChanged(partitions []int) {
	u.mu.Lock()
	u.partitions = append([]int(nil), partitions...)
	u.mu.Unlock()
	u.scheduleRefresh()
}

// HandleEvent reflects stream lifecycle events in the top bar.
func (u *UI) HandleEvent(ev Event) {
	u.mu.Lock()
	switch ev.Kind {
	case EventOpen:
		u.connState = "connected"
	case EventDecodeError:
		u.decodeErrors++
	case EventError:
		u.connState = "error"
	case EventClosed:
		if u.connState != "error" {
			u.connState = "closed"
		}
	}
	u.mu.Unlock()
	u.scheduleRefresh()
}

// Reconnecting marks the top bar while a new connection is attempted.
func (u *UI) Reconnecting() {
	u.mu.Lock()
	u.connState = "connecting"
	u.partitions = nil
	u.latest = nil
	u.mu.Unlock()
	u.scheduleRefresh()
}

// SetTitle sets the title shown in the top bar and the help modal.
func (u *UI) SetTitle(s string) {
	u.mu.Lock()
	u.title = s
	u.mu.Unlock()
	u.scheduleRefresh()
}

// Do queues the given function to be executed in the UI event loop and
// waits until it has run. Never call it from the event loop itself.
func (u *UI) Do(fn func()) {
	u.app.QueueUpdateDraw(fn)
}

func (u *UI) scheduleRefresh() {
	u.mu.Lock()
	if u.stopped || u.refreshing {
		u.mu.Unlock()
		return
	}
	u.refreshing = true
	u.mu.Unlock()
	// QueueUpdateDraw waits for the event loop, which may be the caller.
	go u.Do(func() {
		u.mu.Lock()
		u.refreshing = false
		u.mu.Unlock()
		u.refreshDirect()
	})
}

func (u *UI) refreshDirect() {
	u.mu.Lock()
	partitions := append([]int(nil), u.partitions...)
	active, hasActive := u.active, u.hasActive
	series := u.latest
	paused := u.paused
	u.mu.Unlock()

	u.syncList(partitions, active, hasActive)
	if !paused {
		if hasActive {
			u.plot.SetTitle(fmt.Sprintf(" partition %d ", active))
		}
		u.plot.SetSeries(series)
	}
	u.updateTopBarDirect()
	u.updateBottomBarDirect()
}

func (u *UI) syncList(partitions []int, active int, hasActive bool) {
	u.syncingList = true
	defer func() { u.syncingList = false }()

	if u.list.GetItemCount() != len(partitions) {
		u.list.Clear()
		for _, p := range partitions {
			u.list.AddItem("partition "+strconv.Itoa(p), "", 0, nil)
		}
	}
	if !hasActive {
		return
	}
	for i, p := range partitions {
		if p == active {
			u.list.SetCurrentItem(i)
			return
		}
	}
}

func (u *UI) bindKeys() {
	u.list.SetChangedFunc(func(index int, _ string, _ string, _ rune) {
		if u.syncingList {
			return
		}
		u.mu.Lock()
		if index < 0 || index >= len(u.partitions) {
			u.mu.Unlock()
			return
		}
		u.pendingSelect, u.hasPendingSelect = u.partitions[index], true
		start := u.onSelect != nil && !u.selecting
		if start {
			u.selecting = true
		}
		u.mu.Unlock()
		if start {
			go u.deliverSelections()
		}
	})

	u.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if u.modal != nil {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyTab, tcell.KeyBacktab:
			if u.app.GetFocus() == u.list {
				u.app.SetFocus(u.plot)
			} else {
				u.app.SetFocus(u.list)
			}
			u.updateBottomBarDirect()
			return nil
		case tcell.KeyCtrlC:
			u.onExit(130)
			return nil
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q', 'Q':
				u.onExit(0)
				return nil
			case 'm':
				u.mu.Lock()
				u.mouseOn = !u.mouseOn
				on := u.mouseOn
				u.mu.Unlock()
				u.app.EnableMouse(on)
				u.updateBottomBarDirect()
				return nil
			case '?':
				u.showHelpModal()
				return nil
			case ' ':
				u.mu.Lock()
				u.paused = !u.paused
				u.mu.Unlock()
				u.refreshDirect()
				return nil
			}
		}
		return ev
	})
}

func (u *UI) deliverSelections() {
	for {
		u.mu.Lock()
		if !u.hasPendingSelect {
			u.selecting = false
			u.mu.Unlock()
			return
		}
		p := u.pendingSelect
		u.hasPendingSelect = false
		onSelect := u.onSelect
		u.mu.Unlock()
		onSelect(p)
	}
}

func (u *UI) key(s string) string {
	if u.noColour {
		return s
	}
	return "[blue::b]" + s + "[-:-:-]"
}

func (u *UI) badge(active bool, label string) string {
	if u.noColour {
		return label
	}
	if active {
		return "[green::b]" + label + "[-:-:-]"
	}
	return "[yellow]" + label + "[-:-:-]"
}

func (u *UI) updateBottomBarDirect() {
	u.mu.Lock()
	mouseOn := u.mouseOn
	paused := u.paused
	u.mu.Unlock()

	left := fmt.Sprintf("%s help | %s switch | %s pause | %s quit",
		u.key("?"), u.key("Tab"), u.key("Space"), u.key("q"))
	// Green mouse badge means the terminal can select text.
	right := fmt.Sprintf("%s | %s", u.badge(!mouseOn, "Mouse"), u.badge(!paused, "Running"))
	u.statusText.SetText(padBetween(u.statusText, left, right))
}

func (u *UI) updateTopBarDirect() {
	u.mu.Lock()
	title := u.title
	active, hasActive := u.active, u.hasActive
	series := u.latest
	decodeErrors := u.decodeErrors
	connState := u.connState
	npart := len(u.partitions)
	u.mu.Unlock()

	parts := []string{}
	if hasActive {
		parts = append(parts, fmt.Sprintf("p=%d", active))
		if x, ok := lastX(series); ok {
			parts = append(parts, "t="+strconv.FormatFloat(x, 'g', 6, 64))
		}
	}
	parts = append(parts,
		fmt.Sprintf("partitions:%d", npart),
		fmt.Sprintf("decode errors:%d", decodeErrors),
		u.badge(connState == "connected", connState),
	)
	u.topBar.SetText(padBetween(u.topBar, title, strings.Join(parts, " | ")))
}

func lastX(series []Series) (float64, bool) {
	for _, s := range series {
		if n := len(s.Points); n > 0 {
			return s.Points[n-1].X, true
		}
	}
	return 0, false
}

func padBetween(tv *tview.TextView, left, right string) string {
	_, _, w, _ := tv.GetInnerRect()
	if w <= 0 {
		return left + "  " + right
	}
	pad := w - visualLen(left) - visualLen(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

func (u *UI) showHelpModal() {
	u.prevFocus = u.app.GetFocus()
	u.mu.Lock()
	title := u.title
	u.mu.Unlock()
	lines := []string{
		title,
		"",
		"Focus & Quit",
		"  Tab / Shift+Tab     Switch focus (Partitions ↔ Plot)",
		"  Ctrl+C              Quit immediately",
		"  q                   Quit",
		"",
		"Partitions (when focused)",
		"  Up/Down             Select partition to plot",
		"",
		"Plot",
		"  Space               Pause/Resume drawing (data keeps arriving)",
		"  m                   Toggle mouse mode (green = terminal selection enabled)",
		"  ?                   Toggle this help",
		"",
		"Top Bar",
		"  Active partition, latest timestep, known partitions,",
		"  dropped frames and connection state.",
	}
	if len(u.helpExtra) > 0 {
		lines = append(lines, "")
		lines = append(lines, u.helpExtra...)
	}

	m := tview.NewModal().
		SetText(strings.Join(lines, "\n")).
		AddButtons([]string{"Close"}).
		SetDoneFunc(func(_ int, _ string) { u.closeModal() })
	u.modal = m
	u.app.SetRoot(m, true)
	u.app.SetFocus(m)
}

func (u *UI) closeModal() {
	if u.modal == nil {
		return
	}
	u.modal = nil
	u.app.SetRoot(u.root, true)
	if u.prevFocus != nil {
		u.app.SetFocus(u.prevFocus)
	}
}

func visualLen(s string) int {
	inTag := false
	n := 0
	for _, r := range s {
		switch r {
		case '[':
			inTag = true
		case ']':
			if inTag {
				inTag = false
			} else {
				n++
			}
		default:
			if !inTag {
				n++
			}
		}
	}
	return n
}
