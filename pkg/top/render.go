//go:build linux

package top

import (
	"fmt"
	"io"
)

// Renderer consumes one Frame slice per display refresh.
type Renderer interface {
	Render([]Frame) error
}

// BatchRenderer appends one line per processor per refresh, suitable for
// piping into a file.
type BatchRenderer struct {
	W io.Writer
}

func (r BatchRenderer) Render(frames []Frame) error {
	for _, f := range frames {
		if err := writeFrame(r.W, f); err != nil {
			return err
		}
	}
	return nil
}

// ScreenRenderer repaints the terminal in place, one refresh per screen.
type ScreenRenderer struct {
	W io.Writer
}

func (r ScreenRenderer) Render(frames []Frame) error {
	if _, err := fmt.Fprint(r.W, "\x1b[H\x1b[2J"); err != nil {
		return err
	}
	for _, f := range frames {
		if err := writeFrame(r.W, f); err != nil {
			return err
		}
	}
	return nil
}

func writeFrame(w io.Writer, f Frame) error {
	_, err := fmt.Fprintf(w, "Cpu%-2d : %.1fGHz,  usr: %5.1f%%,  sys: %5.1f%%,  idle: %5.1f%%\n",
		f.CPU, f.FreqGHz, f.Usr, f.Sys, f.Idle)
	return err
}
