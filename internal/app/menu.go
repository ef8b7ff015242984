package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ayusman/signsync/internal/capture"
)

// Menu is the interactive text menu of the predict command.
type Menu struct {
	session *Session
	in      *bufio.Scanner
	out     io.Writer
	camera  func(ctx context.Context) error
}

// NewMenu creates a menu reading choices from in. camera runs the live
// prediction loop for option 1.
func NewMenu(session *Session, in io.Reader, out io.Writer, camera func(ctx context.Context) error) *Menu {
	return &Menu{
		session: session,
		in:      bufio.NewScanner(in),
		out:     out,
		camera:  camera,
	}
}

// Run shows the menu until the user exits, input ends or ctx is done.
func (m *Menu) Run(ctx context.Context) error {
	fmt.Fprintln(m.out, "\nSignSync predictor ready!")
	fmt.Fprintln(m.out, "Choose an option:")
	fmt.Fprintln(m.out, "1. Real-time camera prediction")
	fmt.Fprintln(m.out, "2. Predict from image file")
	fmt.Fprintln(m.out, "3. Exit")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		choice, ok := m.prompt("\nEnter your choice (1-3): ")
		if !ok {
			return m.in.Err()
		}

		switch choice {
		case "1":
			fmt.Fprintln(m.out, "\nStarting real-time prediction...")
			if err := m.camera(ctx); err != nil {
				fmt.Fprintf(m.out, "Error: %v\n", err)
			}
			fmt.Fprintln(m.out, "Real-time prediction stopped")

		case "2":
			path, ok := m.prompt("Enter image path: ")
			if !ok {
				return m.in.Err()
			}
			p, err := m.session.PredictImage(path)
			if errors.Is(err, capture.ErrImageNotFound) {
				fmt.Fprintln(m.out, "Image file not found!")
				continue
			}
			fmt.Fprintf(m.out, "\nPrediction: %s\n", p.Label)
			fmt.Fprintf(m.out, "Confidence: %.2f\n", p.Confidence)

		case "3":
			fmt.Fprintln(m.out, "Goodbye!")
			return nil

		default:
			fmt.Fprintln(m.out, "Invalid choice. Please enter 1, 2, or 3.")
		}
	}
}

func (m *Menu) prompt(label string) (string, bool) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}
