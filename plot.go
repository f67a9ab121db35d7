package dashboard

import (
	"math"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/tview"
)

const (
	plotDot  = '•'
	plotLine = '·'
	yGutter  = 9
)

// PlotView is a tview primitive that draws line series on a character grid.
// Its methods must be called from the UI goroutine.
type PlotView struct {
	*tview.Box
	series    []Series
	noColour  bool
	maxPoints int
}

// NewPlotView returns an empty plot. maxPoints > 0 draws only the newest
// points of each series.
func NewPlotView(noColour bool, maxPoints int) *PlotView {
	return &PlotView{Box: tview.NewBox(), noColour: noColour, maxPoints: maxPoints}
}

// SetSeries replaces everything the plot shows.
func (v *PlotView) SetSeries(series []Series) {
	v.series = series
}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func (v *PlotView) tail(points []SeriesPoint) []SeriesPoint {
	if v.maxPoints > 0 && len(points) > v.maxPoints {
		return points[len(points)-v.maxPoints:]
	}
	return points
}

func (v *PlotView) bounds() (bounds, bool) {
	b := bounds{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
	found := false
	for _, s := range v.series {
		for _, p := range v.tail(s.Points) {
			if !finite(p) {
				continue
			}
			found = true
			b.minX, b.maxX = math.Min(b.minX, p.X), math.Max(b.maxX, p.X)
			b.minY, b.maxY = math.Min(b.minY, p.Y), math.Max(b.maxY, p.Y)
		}
	}
	if !found {
		return b, false
	}
	if b.maxX == b.minX {
		b.minX, b.maxX = b.minX-1, b.maxX+1
	}
	if b.maxY == b.minY {
		b.minY, b.maxY = b.minY-0.5, b.maxY+0.5
	}
	return b, true
}

// Draw implements tview.Primitive.
func (v *PlotView) Draw(screen tcell.Screen) {
	v.DrawForSubclass(screen, v)
	x, y, w, h := v.GetInnerRect()
	if w <= yGutter+2 || h < 4 {
		return
	}
	b, ok := v.bounds()
	if !ok {
		msg := "waiting for data"
		if v.series == nil {
			msg = "no partition selected"
		}
		tview.Print(screen, msg, x, y+h/2, w, tview.AlignCenter, tcell.ColorGray)
		return
	}

	// Row 0 legend, last row x labels, left gutter y labels.
	v.drawLegend(screen, x, y, w)
	px, py, pw, ph := x+yGutter, y+1, w-yGutter, h-2

	tview.Print(screen, formatTick(b.maxY), x, py, yGutter-1, tview.AlignRight, tcell.ColorGray)
	tview.Print(screen, formatTick(b.minY), x, py+ph-1, yGutter-1, tview.AlignRight, tcell.ColorGray)
	for row := py; row < py+ph; row++ {
		screen.SetContent(px-1, row, '│', nil, tcell.StyleDefault.Foreground(tcell.ColorGray))
	}
	tview.Print(screen, formatTick(b.minX), px, y+h-1, pw/2, tview.AlignLeft, tcell.ColorGray)
	tview.Print(screen, formatTick(b.maxX), px+pw/2, y+h-1, pw-pw/2, tview.AlignRight, tcell.ColorGray)

	col := func(xv float64) int {
		return px + cell(xv, b.minX, b.maxX, pw)
	}
	row := func(yv float64) int {
		return py + ph - 1 - cell(yv, b.minY, b.maxY, ph)
	}
	for _, s := range v.series {
		style := v.style(s.Color)
		havePrev := false
		var c0, r0 int
		for _, p := range v.tail(s.Points) {
			if !finite(p) {
				havePrev = false
				continue
			}
			c1, r1 := col(p.X), row(p.Y)
			if havePrev {
				drawSegment(screen, c0, r0, c1, r1, style)
			}
			screen.SetContent(c1, r1, plotDot, nil, style)
			c0, r0, havePrev = c1, r1, true
		}
	}
}

func finite(p SeriesPoint) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// cell maps v in [lo, hi] onto 0..n-1. Halving first keeps the span finite
// for values near ±MaxFloat64; the result is always inside the range.
func cell(v, lo, hi float64, n int) int {
	span := hi/2 - lo/2
	if span <= 0 || n <= 1 {
		return (n - 1) / 2
	}
	ratio := (v/2 - lo/2) / span
	if math.IsNaN(ratio) {
		return 0
	}
	ratio = math.Max(0, math.Min(1, ratio))
	return int(math.Round(ratio * float64(n-1)))
}

func (v *PlotView) drawLegend(screen tcell.Screen, x, y, w int) {
	cx := x
	for _, s := range v.series {
		label := "■ " + s.Name + "  "
		if cx+len(s.Name)+2 > x+w {
			return
		}
		_, printed := tview.Print(screen, label, cx, y, x+w-cx, tview.AlignLeft, v.colour(s.Color))
		cx += printed
	}
}

func (v *PlotView) colour(c colorful.Color) tcell.Color {
	if v.noColour {
		return tcell.ColorDefault
	}
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

func (v *PlotView) style(c colorful.Color) tcell.Style {
	return tcell.StyleDefault.Foreground(v.colour(c))
}

// drawSegment joins two cells with a Bresenham line, leaving the end
// points for the caller.
func drawSegment(screen tcell.Screen, x0, y0, x1, y1 int, style tcell.Style) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		screen.SetContent(x0, y0, plotLine, nil, style)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}
