package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Logo is the banner printed before interactive commands
const Logo = `
  ╦╔═╗  ╦═╗╔═╗╔═╗╦  ╔═╗
  ║║ ╦  ╠╦╝║╣ ║╣ ║  ╚═╗
  ╩╚═╝  ╩╚═╚═╝╚═╝╩═╝╚═╝
  direct message reel harvester
`

var (
	cyanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	yellowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	redStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	greenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	magentaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Color functions for terminal output
var (
	Cyan    = render(cyanStyle)
	Yellow  = render(yellowStyle)
	Red     = render(redStyle)
	Green   = render(greenStyle)
	Magenta = render(magentaStyle)
	Dim     = render(dimStyle)
)

// out is where the Print helpers write
var out io.Writer = os.Stdout

func render(style lipgloss.Style) func(string) string {
	return func(text string) string {
		return style.Render(text)
	}
}

// SetOutput redirects the Print helpers
func SetOutput(w io.Writer) {
	out = w
}

// PrintLogo prints the banner
func PrintLogo() {
	fmt.Fprint(out, Cyan(Logo))
	fmt.Fprintln(out)
}

// PrintError prints an error message in red, with an optional detail
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(out, Green(msg))
}

// PrintInfo prints a labelled value
func PrintInfo(label string, value string) {
	fmt.Fprintf(out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(out, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(out, Magenta(msg))
}
