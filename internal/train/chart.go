package train

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/ayusman/signsync/internal/nn"
)

// PlotHistory renders loss and accuracy curves to a PNG file.
func PlotHistory(h nn.History, path string) error {
	if h.Epochs() == 0 {
		return fmt.Errorf("history is empty")
	}

	p := plot.New()
	p.Title.Text = "Training history"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Value"
	p.Add(plotter.NewGrid())

	series := []struct {
		name   string
		values []float64
	}{
		{"loss", h.Loss},
		{"accuracy", h.Accuracy},
		{"val_loss", h.ValLoss},
		{"val_accuracy", h.ValAccuracy},
	}

	for i, s := range series {
		if len(s.values) == 0 {
			continue
		}

		pts := make(plotter.XYs, len(s.values))
		for e, v := range s.values {
			pts[e] = plotter.XY{X: float64(e + 1), Y: v}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("build %s line: %w", s.name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	return nil
}
