package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Console prints operator-facing status lines with optional color
type Console struct {
	out          io.Writer
	colorEnabled bool
	success      *color.Color
	errorC       *color.Color
	warning      *color.Color
	info         *color.Color
}

// New creates a console writing to stdout with automatic color detection
func New(noColor bool) *Console {
	return NewWithWriter(os.Stdout, !noColor && detectColorSupport())
}

// NewWithWriter creates a console with an explicit writer and color setting
func NewWithWriter(out io.Writer, colorEnabled bool) *Console {
	c := &Console{
		out:          out,
		colorEnabled: colorEnabled,
		success:      color.New(color.FgGreen, color.Bold),
		errorC:       color.New(color.FgRed, color.Bold),
		warning:      color.New(color.FgYellow),
		info:         color.New(color.FgCyan),
	}

	if !colorEnabled {
		for _, cc := range []*color.Color{c.success, c.errorC, c.warning, c.info} {
			cc.DisableColor()
		}
	}

	return c
}

// detectColorSupport checks if the terminal supports colors
func detectColorSupport() bool {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}

	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}

	return termenv.ColorProfile() != termenv.Ascii
}

// Success prints a success status line
func (c *Console) Success(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", c.success.Sprint("✓"), msg)
}

// Error prints an error status line
func (c *Console) Error(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", c.errorC.Sprint("✗"), msg)
}

// Warning prints a warning status line
func (c *Console) Warning(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", c.warning.Sprint("!"), msg)
}

// Info prints an informational status line
func (c *Console) Info(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", c.info.Sprint("•"), msg)
}

// ColorEnabled reports whether color output is active
func (c *Console) ColorEnabled() bool {
	return c.colorEnabled
}
