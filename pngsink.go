package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// PNGSink renders the active partition to a single image file. Every
// redraw replaces the file atomically; a partition with nothing to draw
// removes it. NaN and infinite points are left out of the image.
type PNGSink struct {
	Path   string
	Width  int
	Height int
}

// NewPNGSink builds a sink from cfg.
func NewPNGSink(cfg PNGConfig) *PNGSink {
	return &PNGSink{Path: cfg.Path, Width: cfg.Width, Height: cfg.Height}
}

// Redraw implements RenderSink.
func (s *PNGSink) Redraw(partition int, series []Series) error {
	if s.Path == "" {
		return errors.New("png sink: no output path")
	}
	ch, ok := s.chart(partition, series)
	if !ok {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("png sink: remove %s: %w", s.Path, err)
		}
		return nil
	}
	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return fmt.Errorf("png sink: render partition %d: %w", partition, err)
	}
	return writeFileAtomic(s.Path, buf.Bytes())
}

func (s *PNGSink) chart(partition int, series []Series) (chart.Chart, bool) {
	width, height := s.Width, s.Height
	if width <= 0 {
		width = DefaultPNGWidth
	}
	if height <= 0 {
		height = DefaultPNGHeight
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	out := make([]chart.Series, 0, len(series))
	for _, sr := range series {
		xs := make([]float64, 0, len(sr.Points))
		ys := make([]float64, 0, len(sr.Points))
		for _, p := range sr.Points {
			if !finite(p) {
				continue
			}
			x, y := chartValue(p.X), chartValue(p.Y)
			xs, ys = append(xs, x), append(ys, y)
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
		if len(xs) == 0 {
			continue
		}
		// Pad to at least two X values for go-chart.
		if len(xs) == 1 {
			xs = append(xs, xs[0]+1)
			ys = append(ys, ys[0])
		}
		col := chartColor(sr.Color)
		out = append(out, chart.ContinuousSeries{
			Name:    sr.Name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: col, StrokeWidth: 2, DotColor: col, DotWidth: 2},
		})
	}
	if len(out) == 0 {
		return chart.Chart{}, false
	}

	xAxis := chart.XAxis{Name: "cumulative timesteps", ValueFormatter: chartTick}
	if minX == maxX {
		xAxis.Range = &chart.ContinuousRange{Min: minX, Max: maxX + 1}
	}
	yAxis := chart.YAxis{Name: "state", ValueFormatter: chartTick}
	if minY == maxY {
		yAxis.Range = &chart.ContinuousRange{Min: minY - 0.5, Max: maxY + 0.5}
	}
	ch := chart.Chart{
		Title:      "partition " + strconv.Itoa(partition),
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      xAxis,
		YAxis:      yAxis,
		Series:     out,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch, true
}

// chartLimit keeps axis deltas finite inside go-chart.
const chartLimit = math.MaxFloat64 / 4

func chartValue(v float64) float64 {
	return math.Max(-chartLimit, math.Min(chartLimit, v))
}

func chartTick(v interface{}) string {
	if f, ok := v.(float64); ok {
		return formatTick(f)
	}
	return fmt.Sprint(v)
}

func chartColor(c colorful.Color) drawing.Color {
	r, g, b := c.Clamped().RGB255()
	return drawing.Color{R: r, G: g, B: b, A: 255}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("png sink: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("png sink: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("png sink: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("png sink: rename %s: %w", path, err)
	}
	return nil
}
