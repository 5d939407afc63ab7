package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// WritePNG saves one score-versus-position plot per recorded axis into dir
// and returns the paths written. Non-finite scores are left out.
func (r *Recorder) WritePNG(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	var paths []string
	for _, d := range r.snapshot() {
		p := plot.New()
		p.Title.Text = axisTitle(d.axis)
		p.X.Label.Text = fmt.Sprintf("%s position (steps)", d.axis)
		p.Y.Label.Text = "score"

		pts := make(plotter.XYs, 0, len(d.series))
		var mark plotter.XYs
		for _, s := range d.series {
			if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(s.Position), Y: s.Score})
			if d.hasSel && s.Position == d.selected {
				mark = append(mark, plotter.XY{X: float64(s.Position), Y: s.Score})
			}
		}
		if len(pts) == 0 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return paths, fmt.Errorf("create %s line: %w", d.axis, err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("score", line)

		if len(mark) > 0 {
			sc, err := plotter.NewScatter(mark)
			if err != nil {
				return paths, fmt.Errorf("create %s marker: %w", d.axis, err)
			}
			sc.GlyphStyle.Shape = draw.CrossGlyph{}
			sc.GlyphStyle.Radius = vg.Points(5)
			sc.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
			p.Add(sc)
			p.Legend.Add(fmt.Sprintf("selected %d", d.selected), sc)
		}
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		path := filepath.Join(dir, fmt.Sprintf("coupling_%s.png", strings.ToLower(string(d.axis))))
		if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
