package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the hetcore banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  _          _", "#22d3ee"},
		{" | |__   ___| |_ ___ ___  _ __ ___", "#38bdf8"},
		{" | '_ \\ / _ \\ __/ __/ _ \\| '__/ _ \\", "#60a5fa"},
		{" | | | |  __/ || (_| (_) | | |  __/", "#818cf8"},
		{" |_| |_|\\___|\\__\\___\\___/|_|  \\___|", "#a78bfa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
