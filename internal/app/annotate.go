package app

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/signsync/internal/detector"
)

var (
	colorGreen = color.RGBA{G: 255, A: 255}
	colorRed   = color.RGBA{R: 255, A: 255}
	colorWhite = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// HelpText is drawn at the bottom of live frames.
const HelpText = "Press 'q' to quit, 's' to save"

// Caption formats a prediction the way it is drawn on frames.
func Caption(p Prediction) string {
	return fmt.Sprintf("Prediction: %s (%.2f)", p.Label, p.Confidence)
}

// Annotate draws the hand skeleton, the caption and the key help onto frame.
func Annotate(frame *gocv.Mat, p Prediction) {
	if frame == nil || frame.Empty() {
		return
	}

	w, h := frame.Cols(), frame.Rows()
	if p.Hand != nil {
		pt := func(i int) image.Point {
			lm := p.Hand.Points[i]
			return image.Pt(int(lm.X*float64(w)), int(lm.Y*float64(h)))
		}
		for _, c := range detector.Connections {
			gocv.Line(frame, pt(c[0]), pt(c[1]), colorGreen, 2)
		}
		for i := range p.Hand.Points {
			gocv.Circle(frame, pt(i), 3, colorRed, -1)
		}
	}

	gocv.PutText(frame, Caption(p), image.Pt(10, 30), gocv.FontHersheySimplex, 1, colorGreen, 2)
	gocv.PutText(frame, HelpText, image.Pt(10, h-20), gocv.FontHersheySimplex, 0.7, colorWhite, 2)
}
