package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signsync/internal/capture"
)

// WindowTitle names the live prediction window.
const WindowTitle = "SignSync - Sign Language Recognition"

// Display shows annotated frames and reports key presses. *gocv.Window
// satisfies it.
type Display interface {
	IMShow(img gocv.Mat)
	WaitKey(delay int) int
	Close() error
}

// LoopOptions configures RunCamera.
type LoopOptions struct {
	// SaveDir receives frames saved with the 's' key.
	SaveDir string
	// Out receives user-facing messages.
	Out io.Writer
	// OnPrediction, if set, sees every processed frame.
	OnPrediction func(Prediction)
}

// RunCamera reads frames until 'q' is pressed, ctx is done or the camera
// fails. Each frame is classified, smoothed, annotated and shown; 's' saves
// the annotated frame.
func (s *Session) RunCamera(ctx context.Context, cam capture.Camera, display Display, opts LoopOptions) error {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.SaveDir == "" {
		opts.SaveDir = "."
	}

	defer display.Close()

	if err := cam.Open(); err != nil {
		return fmt.Errorf("could not open camera: %w", err)
	}
	defer cam.Close()

	fmt.Fprintln(opts.Out, "Starting real-time sign language prediction...")
	fmt.Fprintln(opts.Out, HelpText)
	s.log.Info("camera loop started")
	defer s.log.Info("camera loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			return fmt.Errorf("could not read frame: %w", err)
		}

		p := s.ProcessFrame(frame)
		Annotate(frame, p)
		if opts.OnPrediction != nil {
			opts.OnPrediction(p)
		}

		display.IMShow(*frame)
		key := display.WaitKey(1) & 0xFF

		switch key {
		case 'q':
			frame.Close()
			return nil
		case 's':
			path, err := capture.SaveFrame(opts.SaveDir, frame, s.now())
			if err != nil {
				s.log.WithError(err).Warn("frame not saved")
			} else {
				fmt.Fprintf(opts.Out, "Frame saved as: %s\n", path)
			}
		}
		frame.Close()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(FrameDelay):
		}
	}
}
