package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct{ text, color string }{
	{"  _ __   _____   _____| | | __ _ ", "#818cf8"},
	{" | '_ \\ / _ \\ \\ / / _ \\ | |/ _` |", "#a78bfa"},
	{" | | | | (_) \\ V /  __/ | | (_| |", "#c084fc"},
	{" |_| |_|\\___/ \\_/ \\___|_|_|\\__,_|", "#f472b6"},
}

// PrintBanner writes the novella banner to w, coloured for the terminal's
// profile. Plain text is written when w is not a terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, out.String(line.text).Foreground(out.Color(line.color)))
	}
	fmt.Fprintln(w)
}
